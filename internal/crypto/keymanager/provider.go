// Package keymanager resolves per-merchant data encryption keys and exposes
// the crypto operations that seal and open vault payloads.
//
// Two providers exist. The internal provider wraps each merchant's DEK under
// the tenant master key and stores it in the merchant table; payload
// encryption happens locally. The external provider registers the entity with
// a remote key manager and stores only the returned key identifier; payload
// bytes travel to the remote /data/encrypt and /data/decrypt endpoints and the
// DEK never enters this process.
package keymanager

import (
	"context"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/errors"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

var (
	// ErrKeyManager is the single error class external key manager failures
	// collapse into.
	ErrKeyManager = errors.New("key manager operation failed")

	// ErrKeyManagerUnauthorized indicates the remote key manager rejected the
	// master-key-derived credentials.
	ErrKeyManagerUnauthorized = errors.Wrap(errors.ErrUnauthorized, "key manager rejected credentials")
)

// CryptoOperations seals and opens payload bytes under the entity's DEK.
//
// Implementations: InternalCryptoOperations (local AES-256-GCM with the
// unwrapped DEK), ExternalCryptoOperations (delegated to the remote key
// manager).
type CryptoOperations interface {
	// Encrypt seals the plaintext payload. Failures are opaque.
	Encrypt(ctx context.Context, plaintext cryptoDomain.Secret) (cryptoDomain.Secret, error)

	// Decrypt opens a sealed payload. Failures are opaque.
	Decrypt(ctx context.Context, ciphertext cryptoDomain.Secret) (cryptoDomain.Secret, error)
}

// KeyProvider resolves the CryptoOperations for an entity (merchant_id on v1
// routes, entity_id on v2 routes).
//
// Implementations: InternalKeyManager, ExternalKeyManager.
type KeyProvider interface {
	// FindByEntityID resolves an existing entity's operations. Missing
	// entities are an error: retrieval and deletion never create keys.
	FindByEntityID(ctx context.Context, entityID string) (CryptoOperations, error)

	// FindOrCreateEntity resolves the entity's operations, creating and
	// persisting a fresh DEK (or remote key) on first use.
	FindOrCreateEntity(ctx context.Context, entityID string) (CryptoOperations, error)
}

// MerchantRepository is the persistence the internal provider needs.
type MerchantRepository interface {
	FindByMerchantID(ctx context.Context, tenantID, merchantID string) (*vaultDomain.Merchant, error)
	InsertOrGet(ctx context.Context, merchant *vaultDomain.Merchant) (*vaultDomain.Merchant, error)
	FindWithoutEntity(ctx context.Context, tenantID string, limit int64) ([]*vaultDomain.Merchant, error)
}

// EntityRepository is the persistence the external provider needs.
type EntityRepository interface {
	FindByEntityID(ctx context.Context, tenantID, entityID string) (*vaultDomain.Entity, error)
	InsertOrGet(ctx context.Context, entity *vaultDomain.Entity) (*vaultDomain.Entity, error)
}
