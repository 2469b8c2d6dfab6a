package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/cardvault/locker/internal/database"
	apperrors "github.com/cardvault/locker/internal/errors"

	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// PostgreSQLFingerprintRepository persists card fingerprints: a unique
// card_hash (HMAC-SHA-512 under a caller key) mapped to a stable opaque id.
type PostgreSQLFingerprintRepository struct {
	db *sql.DB
}

// NewPostgreSQLFingerprintRepository creates a new PostgreSQL Fingerprint repository instance.
func NewPostgreSQLFingerprintRepository(db *sql.DB) *PostgreSQLFingerprintRepository {
	return &PostgreSQLFingerprintRepository{db: db}
}

// FindByCardHash retrieves the fingerprint matching a card hash.
// Returns ErrFingerprintNotFound when no row matches.
func (p *PostgreSQLFingerprintRepository) FindByCardHash(
	ctx context.Context,
	cardHash []byte,
) (*vaultDomain.Fingerprint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT card_hash, card_fingerprint
			  FROM fingerprint
			  WHERE card_hash = $1`

	var fingerprint vaultDomain.Fingerprint
	err := querier.QueryRowContext(ctx, query, cardHash).Scan(
		&fingerprint.CardHash,
		&fingerprint.CardFingerprint,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, vaultDomain.ErrFingerprintNotFound
		}
		return nil, apperrors.Wrap(err, "failed to find fingerprint")
	}

	return &fingerprint, nil
}

// InsertOrGet inserts a fingerprint with a freshly generated id; on card_hash
// conflict the existing row is returned, so repeated calls stay idempotent.
func (p *PostgreSQLFingerprintRepository) InsertOrGet(
	ctx context.Context,
	cardHash []byte,
) (*vaultDomain.Fingerprint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO fingerprint (card_hash, card_fingerprint)
			  VALUES ($1, $2)
			  ON CONFLICT (card_hash) DO UPDATE SET card_hash = EXCLUDED.card_hash
			  RETURNING card_hash, card_fingerprint`

	var fingerprint vaultDomain.Fingerprint
	err := querier.QueryRowContext(
		ctx,
		query,
		cardHash,
		uuid.New().String(),
	).Scan(&fingerprint.CardHash, &fingerprint.CardFingerprint)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to insert fingerprint")
	}

	return &fingerprint, nil
}
