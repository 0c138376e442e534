// Package postgrestest starts disposable Postgres databases for tests.
package postgrestest

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/k11v/genbuild/internal/postgresprovision"
	"github.com/k11v/genbuild/internal/postgresutil"
)

// Setup starts a Postgres container with the schema applied.
// The returned teardown terminates the container.
func Setup(ctx context.Context) (connectionString string, teardown func() error, err error) {
	teardown = func() error { return nil }

	username := "postgres"
	password := "postgres"
	database := "postgres"

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:17-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     username,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       database,
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	}

	c, err := testcontainers.GenericContainer(ctx, req)
	if c != nil {
		teardown = func() error { return c.Terminate(context.Background()) }
	}
	if err != nil {
		return "", teardown, fmt.Errorf("postgrestest: %w", err)
	}

	endpoint, err := c.PortEndpoint(ctx, nat.Port("5432/tcp"), "")
	if err != nil {
		return "", teardown, fmt.Errorf("postgrestest: %w", err)
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(username, password),
		Host:     endpoint,
		Path:     "/" + database,
		RawQuery: "sslmode=disable",
	}
	connectionString = u.String()

	if err = postgresprovision.Setup(connectionString); err != nil {
		return "", teardown, fmt.Errorf("postgrestest: %w", err)
	}

	return connectionString, teardown, nil
}

// NewTestPool calls Setup and connects to the database.
// The container is terminated when the test ends.
func NewTestPool(tb testing.TB, ctx context.Context) *pgxpool.Pool {
	tb.Helper()

	connectionString, teardown, err := Setup(ctx)
	tb.Cleanup(func() {
		if teardownErr := teardown(); teardownErr != nil {
			tb.Errorf("didn't want %q", teardownErr)
		}
	})
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}

	pool, err := postgresutil.NewPool(ctx, connectionString)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	tb.Cleanup(pool.Close)

	return pool
}

// InsertUser inserts a user and returns its ID.
func InsertUser(tb testing.TB, ctx context.Context, db postgresutil.Querier) uuid.UUID {
	tb.Helper()
	return insertReturningID(tb, ctx, db, `INSERT INTO users DEFAULT VALUES RETURNING id`)
}

// InsertApp inserts an app owned by userID and returns its ID.
func InsertApp(tb testing.TB, ctx context.Context, db postgresutil.Querier, userID uuid.UUID, name string) uuid.UUID {
	tb.Helper()
	return insertReturningID(tb, ctx, db, `INSERT INTO apps (user_id, name) VALUES ($1, $2) RETURNING id`, userID, name)
}

// InsertAppRole inserts a role of appID and returns its ID.
func InsertAppRole(tb testing.TB, ctx context.Context, db postgresutil.Querier, appID uuid.UUID, name, displayName string) uuid.UUID {
	tb.Helper()
	return insertReturningID(tb, ctx, db,
		`INSERT INTO app_roles (app_id, name, display_name) VALUES ($1, $2, $3) RETURNING id`,
		appID, name, displayName,
	)
}

// InsertEntity inserts an entity of appID and returns its ID.
func InsertEntity(tb testing.TB, ctx context.Context, db postgresutil.Querier, appID uuid.UUID) uuid.UUID {
	tb.Helper()
	return insertReturningID(tb, ctx, db, `INSERT INTO entities (app_id) VALUES ($1) RETURNING id`, appID)
}

// InsertEntityVersion inserts a version of entityID named name and returns its ID.
func InsertEntityVersion(tb testing.TB, ctx context.Context, db postgresutil.Querier, entityID uuid.UUID, versionNumber int, name string) uuid.UUID {
	tb.Helper()
	return insertReturningID(tb, ctx, db,
		`INSERT INTO entity_versions (entity_id, version_number, name, display_name, plural_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		entityID, versionNumber, name, name, name+"s",
	)
}

// InsertEntityField inserts a field into the entity version and returns its ID.
func InsertEntityField(tb testing.TB, ctx context.Context, db postgresutil.Querier, entityVersionID uuid.UUID, position int, name, dataType string) uuid.UUID {
	tb.Helper()
	return insertReturningID(tb, ctx, db,
		`INSERT INTO entity_fields (entity_version_id, position, name, display_name, data_type, required, searchable)
		VALUES ($1, $2, $3, $3, $4, true, false)
		RETURNING id`,
		entityVersionID, position, name, dataType,
	)
}

// InsertEntityPermission inserts a permission into the entity version and returns its ID.
func InsertEntityPermission(tb testing.TB, ctx context.Context, db postgresutil.Querier, entityVersionID uuid.UUID, action, typ string) uuid.UUID {
	tb.Helper()
	return insertReturningID(tb, ctx, db,
		`INSERT INTO entity_permissions (entity_version_id, action, type) VALUES ($1, $2, $3) RETURNING id`,
		entityVersionID, action, typ,
	)
}

// GrantEntityPermission links a role and field names to a permission.
func GrantEntityPermission(tb testing.TB, ctx context.Context, db postgresutil.Querier, permissionID, appRoleID uuid.UUID, fieldNames ...string) {
	tb.Helper()

	_, err := db.Exec(ctx,
		`INSERT INTO entity_permission_roles (entity_permission_id, app_role_id) VALUES ($1, $2)`,
		permissionID, appRoleID,
	)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}

	for _, name := range fieldNames {
		_, err = db.Exec(ctx,
			`INSERT INTO entity_permission_fields (entity_permission_id, field_name) VALUES ($1, $2)`,
			permissionID, name,
		)
		if err != nil {
			tb.Fatalf("didn't want %q", err)
		}
	}
}

// InsertAction inserts an empty action and returns its ID.
func InsertAction(tb testing.TB, ctx context.Context, db postgresutil.Querier) uuid.UUID {
	tb.Helper()
	return insertReturningID(tb, ctx, db, `INSERT INTO actions DEFAULT VALUES RETURNING id`)
}

func insertReturningID(tb testing.TB, ctx context.Context, db postgresutil.Querier, query string, args ...any) uuid.UUID {
	tb.Helper()

	var id uuid.UUID
	if err := db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	return id
}
