package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cardvault/locker/internal/database"
	apperrors "github.com/cardvault/locker/internal/errors"

	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// PostgreSQLHashRepository persists content hashes for dedup. The data_hash
// column is unique across all tenants; one hash row may be referenced by many
// lockers.
type PostgreSQLHashRepository struct {
	db *sql.DB
}

// NewPostgreSQLHashRepository creates a new PostgreSQL Hash repository instance.
func NewPostgreSQLHashRepository(db *sql.DB) *PostgreSQLHashRepository {
	return &PostgreSQLHashRepository{db: db}
}

// FindByDataHash retrieves the hash row matching the content hash.
// Returns ErrHashNotFound when no row matches.
func (p *PostgreSQLHashRepository) FindByDataHash(
	ctx context.Context,
	dataHash []byte,
) (*vaultDomain.HashTable, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT hash_id, data_hash, created_at
			  FROM hash_table
			  WHERE data_hash = $1`

	var hash vaultDomain.HashTable
	err := querier.QueryRowContext(ctx, query, dataHash).Scan(
		&hash.HashID,
		&hash.DataHash,
		&hash.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, vaultDomain.ErrHashNotFound
		}
		return nil, apperrors.Wrap(err, "failed to find hash")
	}

	return &hash, nil
}

// InsertHash inserts a hash row with a fresh hash_id. On a data_hash unique
// violation the existing row is returned instead.
func (p *PostgreSQLHashRepository) InsertHash(
	ctx context.Context,
	dataHash []byte,
) (*vaultDomain.HashTable, error) {
	querier := database.GetTx(ctx, p.db)

	// DO UPDATE is a no-op rewrite of the conflicting column so RETURNING
	// yields the existing row on conflict.
	query := `INSERT INTO hash_table (hash_id, data_hash, created_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (data_hash) DO UPDATE SET data_hash = EXCLUDED.data_hash
			  RETURNING hash_id, data_hash, created_at`

	var hash vaultDomain.HashTable
	err := querier.QueryRowContext(
		ctx,
		query,
		uuid.New().String(),
		dataHash,
		time.Now().UTC(),
	).Scan(&hash.HashID, &hash.DataHash, &hash.CreatedAt)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to insert hash")
	}

	return &hash, nil
}
