package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/build/operation"
	"github.com/k11v/genbuild/internal/postgresutil"
)

var _ operation.Database = (*Database)(nil)

// buildColumns selects a build with its version links from a table aliased as b.
const buildColumns = `
	b.id, b.status, b.created_at,
	b.user_id, b.app_id,
	b.version, b.message,
	b.action_id,
	ARRAY(
		SELECT entity_version_id FROM build_entity_versions
		WHERE build_id = b.id ORDER BY entity_version_id
	) AS entity_version_ids,
	ARRAY(
		SELECT block_version_id FROM build_block_versions
		WHERE build_id = b.id ORDER BY block_version_id
	) AS block_version_ids
`

type Database struct {
	db postgresutil.Querier // required
}

func NewDatabase(db postgresutil.Querier) *Database {
	return &Database{db: db}
}

// CreateBuild implements operation.Database.
// The action, its steps and logs, the build and its version links are inserted in one transaction.
func (d *Database) CreateBuild(ctx context.Context, params *operation.DatabaseCreateBuildParams) (*build.Build, error) {
	pgxTx, err := d.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create build: %w", err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck
	tx := NewDatabase(pgxTx)

	actionID, err := tx.createAction(ctx, params.ActionSteps)
	if err != nil {
		return nil, fmt.Errorf("create build: %w", err)
	}

	query := `
		INSERT INTO builds (created_at, user_id, app_id, version, message, action_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	args := []any{params.CreatedAt, params.UserID, params.AppID, params.Version, params.Message, actionID, string(params.Status)}

	rows, _ := tx.db.Query(ctx, query, args...)
	id, err := pgx.CollectExactlyOneRow(rows, rowToUUID)
	if err != nil {
		return nil, fmt.Errorf("create build: %w", translateError(err))
	}

	query = `
		INSERT INTO build_entity_versions (build_id, entity_version_id)
		SELECT $1, unnest($2::uuid[])
	`
	if _, err = tx.db.Exec(ctx, query, id, uuidsOrEmpty(params.EntityVersionIDs)); err != nil {
		return nil, fmt.Errorf("create build: %w", translateError(err))
	}

	query = `
		INSERT INTO build_block_versions (build_id, block_version_id)
		SELECT $1, unnest($2::uuid[])
	`
	if _, err = tx.db.Exec(ctx, query, id, uuidsOrEmpty(params.BlockVersionIDs)); err != nil {
		return nil, fmt.Errorf("create build: %w", translateError(err))
	}

	b, err := tx.GetBuild(ctx, &operation.DatabaseGetBuildParams{ID: id})
	if err != nil {
		return nil, fmt.Errorf("create build: %w", err)
	}

	if err = pgxTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create build: %w", err)
	}

	return b, nil
}

func (d *Database) createAction(ctx context.Context, steps []*operation.DatabaseCreateBuildActionStep) (uuid.UUID, error) {
	query := `INSERT INTO actions DEFAULT VALUES RETURNING id`

	rows, _ := d.db.Query(ctx, query)
	actionID, err := pgx.CollectExactlyOneRow(rows, rowToUUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create action: %w", err)
	}

	for _, step := range steps {
		query = `
			INSERT INTO action_steps (action_id, message, status, completed_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`
		args := []any{actionID, step.Message, string(step.Status), step.CompletedAt}

		rows, _ = d.db.Query(ctx, query, args...)
		stepID, err := pgx.CollectExactlyOneRow(rows, rowToUUID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("create action: %w", err)
		}

		for _, l := range step.Logs {
			meta := l.Meta
			if meta == nil {
				meta = map[string]any{}
			}
			query = `
				INSERT INTO action_logs (step_id, level, message, meta)
				VALUES ($1, $2, $3, $4)
			`
			if _, err = d.db.Exec(ctx, query, stepID, string(l.Level), l.Message, meta); err != nil {
				return uuid.Nil, fmt.Errorf("create action: %w", err)
			}
		}
	}

	return actionID, nil
}

// GetBuild implements operation.Database.
func (d *Database) GetBuild(ctx context.Context, params *operation.DatabaseGetBuildParams) (*build.Build, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM builds b
		WHERE b.id = $1
	`
	args := []any{params.ID}

	rows, _ := d.db.Query(ctx, query, args...)
	b, err := pgx.CollectExactlyOneRow(rows, rowToBuild)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, operation.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}

	return b, nil
}

// ListBuilds implements operation.Database.
//
// TODO: params.PageLimit and params.PageOffset could be invalid.
// operation.Service constrains them, other callers get whatever Postgres does with them.
func (d *Database) ListBuilds(ctx context.Context, params *operation.DatabaseListBuildsParams) (*operation.DatabaseListBuildsResult, error) {
	query := `
		SELECT ` + buildColumns + `
		FROM builds b
		WHERE ($1::uuid IS NULL OR b.app_id = $1) AND ($2::uuid IS NULL OR b.user_id = $2)
		ORDER BY b.created_at DESC, b.id ASC
		LIMIT $3
		OFFSET $4
	`
	args := []any{params.AppID, params.UserID, params.PageLimit, params.PageOffset}

	rows, _ := d.db.Query(ctx, query, args...)
	builds, err := pgx.CollectRows(rows, rowToBuild)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}

	query = `
		SELECT count(*)
		FROM builds b
		WHERE ($1::uuid IS NULL OR b.app_id = $1) AND ($2::uuid IS NULL OR b.user_id = $2)
	`
	args = []any{params.AppID, params.UserID}

	rows, _ = d.db.Query(ctx, query, args...)
	totalSize, err := pgx.CollectExactlyOneRow(rows, rowToInt)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}

	nextPageOffset := new(int)
	*nextPageOffset = params.PageOffset + len(builds)
	if *nextPageOffset >= totalSize || len(builds) == 0 {
		nextPageOffset = nil
	}

	result := &operation.DatabaseListBuildsResult{
		Builds:         builds,
		NextPageOffset: nextPageOffset,
		TotalSize:      totalSize,
	}
	return result, nil
}

// UpdateBuild implements operation.Database.
// The write is skipped with operation.ErrInvalidTransition when the stored status isn't params.FromStatus.
func (d *Database) UpdateBuild(ctx context.Context, params *operation.DatabaseUpdateBuildParams) (*build.Build, error) {
	query := `
		WITH b AS (
			UPDATE builds
			SET status = $2
			WHERE id = $1 AND status = $3
			RETURNING *
		)
		SELECT ` + buildColumns + `
		FROM b
	`
	args := []any{params.ID, string(params.Status), string(params.FromStatus)}

	rows, _ := d.db.Query(ctx, query, args...)
	b, err := pgx.CollectExactlyOneRow(rows, rowToBuild)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, d.missingUpdateError(ctx, params.ID)
	} else if err != nil {
		return nil, fmt.Errorf("update build: %w", err)
	}

	return b, nil
}

// missingUpdateError tells a missing build from a build in another status.
func (d *Database) missingUpdateError(ctx context.Context, id uuid.UUID) error {
	query := `SELECT EXISTS (SELECT 1 FROM builds WHERE id = $1)`
	args := []any{id}

	rows, _ := d.db.Query(ctx, query, args...)
	exists, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[bool])
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	if !exists {
		return operation.ErrNotFound
	}
	return fmt.Errorf("update build: %w", operation.ErrInvalidTransition)
}

// translateError maps foreign key violations to operation.ErrInvalidReference.
func translateError(err error) error {
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return errors.Join(operation.ErrInvalidReference, err)
	}
	return err
}

func uuidsOrEmpty(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
