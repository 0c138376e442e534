package pg

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k11v/genbuild/internal/action"
)

type actionRow struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

func rowToAction(collectableRow pgx.CollectableRow) (*action.Action, error) {
	collectedRow, err := pgx.RowToStructByName[actionRow](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to action: %w", err)
	}

	a := &action.Action{
		ID:        collectedRow.ID,
		CreatedAt: collectedRow.CreatedAt,
		Steps:     []*action.Step{},
	}
	return a, nil
}

type stepRow struct {
	ID          uuid.UUID  `db:"id"`
	ActionID    uuid.UUID  `db:"action_id"`
	CreatedAt   time.Time  `db:"created_at"`
	Message     string     `db:"message"`
	Status      string     `db:"status"`
	CompletedAt *time.Time `db:"completed_at"`
}

func rowToStep(collectableRow pgx.CollectableRow) (*action.Step, error) {
	collectedRow, err := pgx.RowToStructByName[stepRow](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to step: %w", err)
	}

	status, known := action.StepStatusFromString(collectedRow.Status)
	if !known {
		slog.Default().Warn(
			"unknown status encountered while creating step",
			"status", collectedRow.Status,
			"step_id", collectedRow.ID,
		)
	}

	s := &action.Step{
		ID:          collectedRow.ID,
		ActionID:    collectedRow.ActionID,
		CreatedAt:   collectedRow.CreatedAt,
		Message:     collectedRow.Message,
		Status:      status,
		CompletedAt: collectedRow.CompletedAt,
	}
	return s, nil
}

type logRow struct {
	ID        uuid.UUID      `db:"id"`
	StepID    uuid.UUID      `db:"step_id"`
	CreatedAt time.Time      `db:"created_at"`
	Level     string         `db:"level"`
	Message   string         `db:"message"`
	Meta      map[string]any `db:"meta"`
}

func rowToLog(collectableRow pgx.CollectableRow) (*action.Log, error) {
	collectedRow, err := pgx.RowToStructByName[logRow](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to log: %w", err)
	}

	level, known := action.LevelFromString(collectedRow.Level)
	if !known {
		slog.Default().Warn(
			"unknown level encountered while creating log",
			"level", collectedRow.Level,
			"log_id", collectedRow.ID,
		)
	}

	meta := collectedRow.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	l := &action.Log{
		ID:        collectedRow.ID,
		StepID:    collectedRow.StepID,
		CreatedAt: collectedRow.CreatedAt,
		Level:     level,
		Message:   collectedRow.Message,
		Meta:      meta,
	}
	return l, nil
}
