// Package testutil provides database helpers for integration tests.
//
// Integration tests need a live PostgreSQL reachable through the
// LOCKER_TEST_DATABASE_DSN environment variable; they skip when it is unset,
// so the default `go test ./...` run never requires infrastructure.
package testutil

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// DSNEnvVar names the environment variable carrying the test database DSN.
const DSNEnvVar = "LOCKER_TEST_DATABASE_DSN"

// SetupPostgresDB connects to the test database, runs migrations and wipes
// existing rows. Skips the test when no DSN is configured.
func SetupPostgresDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv(DSNEnvVar)
	if dsn == "" {
		t.Skipf("skipping integration test: %s not set", DSNEnvVar)
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "failed to connect to postgres")

	err = db.Ping()
	require.NoError(t, err, "failed to ping postgres database")

	runPostgresMigrations(t, db)
	CleanupPostgresDB(t, db)

	return db
}

// TeardownDB closes the database connection.
func TeardownDB(t *testing.T, db *sql.DB) {
	t.Helper()
	require.NoError(t, db.Close())
}

// CleanupPostgresDB removes all rows, child tables first.
func CleanupPostgresDB(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx := context.Background()
	for _, table := range []string{"locker", "vault", "fingerprint", "hash_table", "entity", "merchant"} {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err, "failed to clean table %s", table)
	}
}

// runPostgresMigrations applies the postgresql migrations from the repository
// root, located by walking up to go.mod from the test's working directory.
func runPostgresMigrations(t *testing.T, db *sql.DB) {
	t.Helper()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	require.NoError(t, err)

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+filepath.Join(moduleRoot(t), "migrations", "postgresql"),
		"postgres",
		driver,
	)
	require.NoError(t, err)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("failed to run migrations: %v", err)
	}
}

// moduleRoot walks up from the working directory until it finds go.mod.
func moduleRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above the test working directory")
		}
		dir = parent
	}
}
