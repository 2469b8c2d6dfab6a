// Package repository implements data persistence for the vault data plane.
//
// Each table (merchant, entity, hash_table, locker, vault, fingerprint) has a
// PostgreSQL repository using the native BYTEA type for encrypted columns. All
// repositories support transaction context via database.GetTx(), so multi-step
// operations can run atomically under database.TxManager.
//
// Insert-or-get semantics rely on ON CONFLICT clauses: a primary-key or
// unique-constraint conflict returns the existing row instead of failing,
// which keeps Add idempotent under concurrent duplicate requests.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cardvault/locker/internal/database"
	apperrors "github.com/cardvault/locker/internal/errors"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// PostgreSQLMerchantRepository persists internal-mode DEK owners. The enc_key
// column carries the master-key-wrapped DEK and never leaves the process
// unwrapped.
type PostgreSQLMerchantRepository struct {
	db *sql.DB
}

// NewPostgreSQLMerchantRepository creates a new PostgreSQL Merchant repository instance.
func NewPostgreSQLMerchantRepository(db *sql.DB) *PostgreSQLMerchantRepository {
	return &PostgreSQLMerchantRepository{db: db}
}

// FindByMerchantID retrieves a merchant scoped to the tenant.
// Returns ErrMerchantNotFound when no row matches.
func (p *PostgreSQLMerchantRepository) FindByMerchantID(
	ctx context.Context,
	tenantID, merchantID string,
) (*vaultDomain.Merchant, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT tenant_id, merchant_id, enc_key, created_at
			  FROM merchant
			  WHERE tenant_id = $1 AND merchant_id = $2`

	var merchant vaultDomain.Merchant
	var encKey []byte
	err := querier.QueryRowContext(ctx, query, tenantID, merchantID).Scan(
		&merchant.TenantID,
		&merchant.MerchantID,
		&encKey,
		&merchant.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, vaultDomain.ErrMerchantNotFound
		}
		return nil, apperrors.Wrap(err, "failed to find merchant")
	}

	merchant.EncKey = cryptoDomain.NewSecret(encKey)
	return &merchant, nil
}

// InsertOrGet inserts a merchant row and returns it; on primary-key conflict
// the existing row wins and is returned instead.
func (p *PostgreSQLMerchantRepository) InsertOrGet(
	ctx context.Context,
	merchant *vaultDomain.Merchant,
) (*vaultDomain.Merchant, error) {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO merchant (tenant_id, merchant_id, enc_key, created_at)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (tenant_id, merchant_id) DO NOTHING`

	_, err := querier.ExecContext(
		ctx,
		query,
		merchant.TenantID,
		merchant.MerchantID,
		merchant.EncKey.Expose(),
		time.Now().UTC(),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to insert merchant")
	}

	return p.FindByMerchantID(ctx, merchant.TenantID, merchant.MerchantID)
}

// FindWithoutEntity lists up to limit merchants of the tenant that have no
// corresponding entity row yet. Used by the key migration endpoint.
func (p *PostgreSQLMerchantRepository) FindWithoutEntity(
	ctx context.Context,
	tenantID string,
	limit int64,
) ([]*vaultDomain.Merchant, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT m.tenant_id, m.merchant_id, m.enc_key, m.created_at
			  FROM merchant m
			  LEFT JOIN entity e ON e.tenant_id = m.tenant_id AND e.entity_id = m.merchant_id
			  WHERE m.tenant_id = $1 AND e.entity_id IS NULL
			  ORDER BY m.created_at
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list merchants without entity")
	}
	defer func() { _ = rows.Close() }()

	var merchants []*vaultDomain.Merchant
	for rows.Next() {
		var merchant vaultDomain.Merchant
		var encKey []byte
		if err := rows.Scan(
			&merchant.TenantID,
			&merchant.MerchantID,
			&encKey,
			&merchant.CreatedAt,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan merchant")
		}
		merchant.EncKey = cryptoDomain.NewSecret(encKey)
		merchants = append(merchants, &merchant)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate merchants")
	}

	return merchants, nil
}
