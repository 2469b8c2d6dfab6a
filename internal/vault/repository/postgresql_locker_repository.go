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

// PostgreSQLLockerRepository persists v1 customer-scoped payloads. Every query
// carries the tenant id, so cross-tenant reads are structurally impossible.
type PostgreSQLLockerRepository struct {
	db *sql.DB
}

// NewPostgreSQLLockerRepository creates a new PostgreSQL Locker repository instance.
func NewPostgreSQLLockerRepository(db *sql.DB) *PostgreSQLLockerRepository {
	return &PostgreSQLLockerRepository{db: db}
}

const lockerColumns = `tenant_id, merchant_id, customer_id, locker_id, enc_data, hash_id, created_at, ttl`

// scanLocker reads one locker row from a row scanner.
func scanLocker(row interface{ Scan(...any) error }) (*vaultDomain.Locker, error) {
	var locker vaultDomain.Locker
	var encData []byte
	var ttl sql.NullTime
	if err := row.Scan(
		&locker.TenantID,
		&locker.MerchantID,
		&locker.CustomerID,
		&locker.LockerID,
		&encData,
		&locker.HashID,
		&locker.CreatedAt,
		&ttl,
	); err != nil {
		return nil, err
	}
	locker.EncData = cryptoDomain.NewSecret(encData)
	if ttl.Valid {
		t := ttl.Time
		locker.TTL = &t
	}
	return &locker, nil
}

// FindByLockerID retrieves a locker by its full primary key.
// Returns ErrLockerNotFound when no row matches.
func (p *PostgreSQLLockerRepository) FindByLockerID(
	ctx context.Context,
	tenantID, merchantID, customerID, lockerID string,
) (*vaultDomain.Locker, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + lockerColumns + `
			  FROM locker
			  WHERE tenant_id = $1 AND merchant_id = $2 AND customer_id = $3 AND locker_id = $4`

	locker, err := scanLocker(querier.QueryRowContext(ctx, query, tenantID, merchantID, customerID, lockerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, vaultDomain.ErrLockerNotFound
		}
		return nil, apperrors.Wrap(err, "failed to find locker")
	}

	return locker, nil
}

// FindByHashID retrieves the locker holding content with the given hash for a
// (merchant, customer) pair. A nil locker with nil error means no such row.
func (p *PostgreSQLLockerRepository) FindByHashID(
	ctx context.Context,
	tenantID, merchantID, customerID, hashID string,
) (*vaultDomain.Locker, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + lockerColumns + `
			  FROM locker
			  WHERE tenant_id = $1 AND merchant_id = $2 AND customer_id = $3 AND hash_id = $4`

	locker, err := scanLocker(querier.QueryRowContext(ctx, query, tenantID, merchantID, customerID, hashID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to find locker by hash")
	}

	return locker, nil
}

// InsertOrGet inserts a locker row and returns it; on primary-key conflict
// (same tenant/merchant/customer/locker_id) the existing row is returned
// instead of failing.
func (p *PostgreSQLLockerRepository) InsertOrGet(
	ctx context.Context,
	locker *vaultDomain.Locker,
) (*vaultDomain.Locker, error) {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO locker (` + lockerColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (tenant_id, merchant_id, customer_id, locker_id) DO NOTHING`

	var ttl any
	if locker.TTL != nil {
		ttl = locker.TTL.UTC()
	}

	_, err := querier.ExecContext(
		ctx,
		query,
		locker.TenantID,
		locker.MerchantID,
		locker.CustomerID,
		locker.LockerID,
		locker.EncData.Expose(),
		locker.HashID,
		time.Now().UTC(),
		ttl,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to insert locker")
	}

	return p.FindByLockerID(ctx, locker.TenantID, locker.MerchantID, locker.CustomerID, locker.LockerID)
}

// DeleteFromLocker deletes a locker by primary key and returns the number of
// rows removed (0 or 1). Deleting a missing row is not an error.
func (p *PostgreSQLLockerRepository) DeleteFromLocker(
	ctx context.Context,
	tenantID, merchantID, customerID, lockerID string,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM locker
			  WHERE tenant_id = $1 AND merchant_id = $2 AND customer_id = $3 AND locker_id = $4`

	result, err := querier.ExecContext(ctx, query, tenantID, merchantID, customerID, lockerID)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete locker")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read deleted row count")
	}

	return deleted, nil
}
