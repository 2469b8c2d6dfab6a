package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cardvault/locker/internal/database"
	apperrors "github.com/cardvault/locker/internal/errors"

	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// PostgreSQLEntityRepository persists external-mode DEK owners. The enc_key_id
// column holds the remote key manager's opaque handle; no key material is
// stored.
type PostgreSQLEntityRepository struct {
	db *sql.DB
}

// NewPostgreSQLEntityRepository creates a new PostgreSQL Entity repository instance.
func NewPostgreSQLEntityRepository(db *sql.DB) *PostgreSQLEntityRepository {
	return &PostgreSQLEntityRepository{db: db}
}

// FindByEntityID retrieves an entity scoped to the tenant.
// Returns ErrEntityNotFound when no row matches.
func (p *PostgreSQLEntityRepository) FindByEntityID(
	ctx context.Context,
	tenantID, entityID string,
) (*vaultDomain.Entity, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT tenant_id, entity_id, enc_key_id, created_at
			  FROM entity
			  WHERE tenant_id = $1 AND entity_id = $2`

	var entity vaultDomain.Entity
	err := querier.QueryRowContext(ctx, query, tenantID, entityID).Scan(
		&entity.TenantID,
		&entity.EntityID,
		&entity.EncKeyID,
		&entity.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, vaultDomain.ErrEntityNotFound
		}
		return nil, apperrors.Wrap(err, "failed to find entity")
	}

	return &entity, nil
}

// InsertOrGet inserts an entity row and returns it; on primary-key conflict
// the existing row wins and is returned instead.
func (p *PostgreSQLEntityRepository) InsertOrGet(
	ctx context.Context,
	entity *vaultDomain.Entity,
) (*vaultDomain.Entity, error) {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO entity (tenant_id, entity_id, enc_key_id, created_at)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (tenant_id, entity_id) DO NOTHING`

	_, err := querier.ExecContext(
		ctx,
		query,
		entity.TenantID,
		entity.EntityID,
		entity.EncKeyID,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to insert entity")
	}

	return p.FindByEntityID(ctx, entity.TenantID, entity.EntityID)
}
