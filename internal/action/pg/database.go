package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/postgresutil"
)

var _ action.Database = (*Database)(nil)

type Database struct {
	db postgresutil.Querier // required
}

func NewDatabase(db postgresutil.Querier) *Database {
	return &Database{db: db}
}

// CreateStep implements action.Database.
func (d *Database) CreateStep(ctx context.Context, params *action.DatabaseCreateStepParams) (*action.Step, error) {
	query := `
		INSERT INTO action_steps (action_id, message, status)
		VALUES ($1, $2, $3)
		RETURNING id, action_id, created_at, message, status, completed_at
	`
	args := []any{params.ActionID, params.Message, string(params.Status)}

	rows, _ := d.db.Query(ctx, query, args...)
	s, err := pgx.CollectExactlyOneRow(rows, rowToStep)
	if err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}

	return s, nil
}

// UpdateStep implements action.Database.
func (d *Database) UpdateStep(ctx context.Context, params *action.DatabaseUpdateStepParams) (*action.Step, error) {
	query := `
		UPDATE action_steps
		SET status = $2, completed_at = $3
		WHERE id = $1
		RETURNING id, action_id, created_at, message, status, completed_at
	`
	args := []any{params.ID, string(params.Status), params.CompletedAt}

	rows, _ := d.db.Query(ctx, query, args...)
	s, err := pgx.CollectExactlyOneRow(rows, rowToStep)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, action.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("update step: %w", err)
	}

	return s, nil
}

// CreateLog implements action.Database.
func (d *Database) CreateLog(ctx context.Context, params *action.DatabaseCreateLogParams) (*action.Log, error) {
	query := `
		INSERT INTO action_logs (step_id, level, message, meta)
		VALUES ($1, $2, $3, $4)
		RETURNING id, step_id, created_at, level, message, meta
	`
	meta := params.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	args := []any{params.StepID, string(params.Level), params.Message, meta}

	rows, _ := d.db.Query(ctx, query, args...)
	l, err := pgx.CollectExactlyOneRow(rows, rowToLog)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}

	return l, nil
}

// GetAction implements action.Database.
// Steps are ordered by creation time, as are the logs of each step.
func (d *Database) GetAction(ctx context.Context, params *action.DatabaseGetActionParams) (*action.Action, error) {
	query := `
		SELECT id, created_at
		FROM actions
		WHERE id = $1
	`
	args := []any{params.ID}

	rows, _ := d.db.Query(ctx, query, args...)
	a, err := pgx.CollectExactlyOneRow(rows, rowToAction)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, action.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}

	query = `
		SELECT id, action_id, created_at, message, status, completed_at
		FROM action_steps
		WHERE action_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, _ = d.db.Query(ctx, query, args...)
	steps, err := pgx.CollectRows(rows, rowToStep)
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}

	query = `
		SELECT l.id, l.step_id, l.created_at, l.level, l.message, l.meta
		FROM action_logs l
		JOIN action_steps s ON s.id = l.step_id
		WHERE s.action_id = $1
		ORDER BY l.created_at ASC, l.id ASC
	`
	rows, _ = d.db.Query(ctx, query, args...)
	logs, err := pgx.CollectRows(rows, rowToLog)
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}

	stepByID := make(map[uuid.UUID]*action.Step, len(steps))
	for _, s := range steps {
		s.Logs = []*action.Log{}
		stepByID[s.ID] = s
	}
	for _, l := range logs {
		if s, ok := stepByID[l.StepID]; ok {
			s.Logs = append(s.Logs, l)
		}
	}

	a.Steps = steps
	return a, nil
}
