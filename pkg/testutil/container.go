// Package testutil provides the integration test harness for the
// payroll service: a shared PostgreSQL testcontainer, tenant seeding,
// domain fixtures, signed test tokens, and a sqlmock wrapper.
package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabase = "malipo_test"
	testUser     = "test"
	testPassword = "test"

	// CI can point MALIPO_TEST_POSTGRES_IMAGE at a registry mirror.
	imageEnvVar          = "MALIPO_TEST_POSTGRES_IMAGE"
	defaultPostgresImage = "postgres:15-alpine"
)

// PostgresContainer is a running throwaway PostgreSQL plus its DSN.
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// StartPostgres launches a PostgreSQL container for the test run.
// Suites share one container through NewIntegrationSuite; tests that
// need a dedicated instance can call this directly.
func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	image := os.Getenv(imageEnvVar)
	if image == "" {
		image = defaultPostgresImage
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(image),
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("container connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect opens a sqlx handle to the container.
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to test database: %w", err)
	}
	return db, nil
}

// ApplySchema creates the payroll schema. The deployment pipeline owns
// production migrations; this keeps the test DDL in one place, matching
// what the repositories expect.
func (c *PostgresContainer) ApplySchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range PayrollMigrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
