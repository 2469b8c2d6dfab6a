package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/cardvault/locker/internal/errors"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// PostgreSQLTestRepository exercises a read/write/delete round-trip inside a
// transaction that is always rolled back, distinguishing connection, read,
// write and delete failures for the diagnostics endpoint.
type PostgreSQLTestRepository struct {
	db *sql.DB
}

// NewPostgreSQLTestRepository creates a new PostgreSQL Test repository instance.
func NewPostgreSQLTestRepository(db *sql.DB) *PostgreSQLTestRepository {
	return &PostgreSQLTestRepository{db: db}
}

// Test runs the round-trip. It reports the first failing stage:
// ErrTestDBConnection, ErrTestDBRead, ErrTestDBWrite or ErrTestDBDelete.
func (p *PostgreSQLTestRepository) Test(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(vaultDomain.ErrTestDBConnection, err.Error())
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return apperrors.Wrap(vaultDomain.ErrTestDBRead, err.Error())
	}

	probe := "diagnostics-" + uuid.New().String()
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO hash_table (hash_id, data_hash, created_at) VALUES ($1, $2, $3)`,
		probe,
		[]byte(probe),
		time.Now().UTC(),
	); err != nil {
		return apperrors.Wrap(vaultDomain.ErrTestDBWrite, err.Error())
	}

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM hash_table WHERE hash_id = $1`,
		probe,
	); err != nil {
		return apperrors.Wrap(vaultDomain.ErrTestDBDelete, err.Error())
	}

	return nil
}
