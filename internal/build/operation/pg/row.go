package pg

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k11v/genbuild/internal/build"
)

type row struct {
	ID               uuid.UUID   `db:"id"`
	Status           string      `db:"status"`
	CreatedAt        time.Time   `db:"created_at"`
	UserID           uuid.UUID   `db:"user_id"`
	AppID            uuid.UUID   `db:"app_id"`
	Version          string      `db:"version"`
	Message          string      `db:"message"`
	ActionID         uuid.UUID   `db:"action_id"`
	EntityVersionIDs []uuid.UUID `db:"entity_version_ids"`
	BlockVersionIDs  []uuid.UUID `db:"block_version_ids"`
}

func rowToBuild(collectableRow pgx.CollectableRow) (*build.Build, error) {
	collectedRow, err := pgx.RowToStructByName[row](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to build: %w", err)
	}

	status, known := build.StatusFromString(collectedRow.Status)
	if !known {
		slog.Default().Warn(
			"unknown status encountered while creating build",
			"status", collectedRow.Status,
			"build_id", collectedRow.ID,
		)
	}

	entityVersionIDs := collectedRow.EntityVersionIDs
	if entityVersionIDs == nil {
		entityVersionIDs = []uuid.UUID{}
	}
	blockVersionIDs := collectedRow.BlockVersionIDs
	if blockVersionIDs == nil {
		blockVersionIDs = []uuid.UUID{}
	}

	b := &build.Build{
		ID:               collectedRow.ID,
		Status:           status,
		CreatedAt:        collectedRow.CreatedAt,
		UserID:           collectedRow.UserID,
		AppID:            collectedRow.AppID,
		Version:          collectedRow.Version,
		Message:          collectedRow.Message,
		ActionID:         collectedRow.ActionID,
		EntityVersionIDs: entityVersionIDs,
		BlockVersionIDs:  blockVersionIDs,
	}
	return b, nil
}

func rowToUUID(collectableRow pgx.CollectableRow) (uuid.UUID, error) {
	var id uuid.UUID
	if err := collectableRow.Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("row to uuid: %w", err)
	}
	return id, nil
}

func rowToInt(collectableRow pgx.CollectableRow) (int, error) {
	var n int
	if err := collectableRow.Scan(&n); err != nil {
		return 0, fmt.Errorf("row to int: %w", err)
	}
	return n, nil
}
