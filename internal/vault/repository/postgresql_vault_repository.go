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

// PostgreSQLVaultRepository persists v2 entity-scoped payloads (no customer
// dimension).
type PostgreSQLVaultRepository struct {
	db *sql.DB
}

// NewPostgreSQLVaultRepository creates a new PostgreSQL Vault repository instance.
func NewPostgreSQLVaultRepository(db *sql.DB) *PostgreSQLVaultRepository {
	return &PostgreSQLVaultRepository{db: db}
}

const vaultColumns = `tenant_id, entity_id, vault_id, encrypted_data, created_at, expires_at`

// scanVault reads one vault row from a row scanner.
func scanVault(row interface{ Scan(...any) error }) (*vaultDomain.Vault, error) {
	var entry vaultDomain.Vault
	var encryptedData []byte
	var expiresAt sql.NullTime
	if err := row.Scan(
		&entry.TenantID,
		&entry.EntityID,
		&entry.VaultID,
		&encryptedData,
		&entry.CreatedAt,
		&expiresAt,
	); err != nil {
		return nil, err
	}
	entry.EncryptedData = cryptoDomain.NewSecret(encryptedData)
	if expiresAt.Valid {
		t := expiresAt.Time
		entry.ExpiresAt = &t
	}
	return &entry, nil
}

// FindByVaultID retrieves a vault entry by its full primary key.
// Returns ErrVaultNotFound when no row matches.
func (p *PostgreSQLVaultRepository) FindByVaultID(
	ctx context.Context,
	tenantID, entityID, vaultID string,
) (*vaultDomain.Vault, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + vaultColumns + `
			  FROM vault
			  WHERE tenant_id = $1 AND entity_id = $2 AND vault_id = $3`

	entry, err := scanVault(querier.QueryRowContext(ctx, query, tenantID, entityID, vaultID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, vaultDomain.ErrVaultNotFound
		}
		return nil, apperrors.Wrap(err, "failed to find vault entry")
	}

	return entry, nil
}

// InsertOrGet inserts a vault row and returns it; on primary-key conflict the
// existing row is returned instead of failing.
func (p *PostgreSQLVaultRepository) InsertOrGet(
	ctx context.Context,
	entry *vaultDomain.Vault,
) (*vaultDomain.Vault, error) {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO vault (` + vaultColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (tenant_id, entity_id, vault_id) DO NOTHING`

	var expiresAt any
	if entry.ExpiresAt != nil {
		expiresAt = entry.ExpiresAt.UTC()
	}

	_, err := querier.ExecContext(
		ctx,
		query,
		entry.TenantID,
		entry.EntityID,
		entry.VaultID,
		entry.EncryptedData.Expose(),
		time.Now().UTC(),
		expiresAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to insert vault entry")
	}

	return p.FindByVaultID(ctx, entry.TenantID, entry.EntityID, entry.VaultID)
}

// DeleteFromVault deletes a vault entry by primary key and returns the number
// of rows removed (0 or 1). Deleting a missing row is not an error.
func (p *PostgreSQLVaultRepository) DeleteFromVault(
	ctx context.Context,
	tenantID, entityID, vaultID string,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM vault
			  WHERE tenant_id = $1 AND entity_id = $2 AND vault_id = $3`

	result, err := querier.ExecContext(ctx, query, tenantID, entityID, vaultID)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete vault entry")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read deleted row count")
	}

	return deleted, nil
}
