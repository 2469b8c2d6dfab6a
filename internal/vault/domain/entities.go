package domain

import (
	"time"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
)

// Merchant is the internal-mode DEK owner: enc_key holds the per-merchant DEK
// wrapped under the tenant master key.
type Merchant struct {
	TenantID   string
	MerchantID string
	EncKey     cryptoDomain.Secret
	CreatedAt  time.Time
}

// Entity is the external-mode DEK owner: EncKeyID is the remote key manager's
// opaque handle for the entity's DEK.
type Entity struct {
	TenantID  string
	EntityID  string
	EncKeyID  string
	CreatedAt time.Time
}

// HashTable deduplicates stored content: one row per distinct SHA-512 payload
// hash, referenced by any number of lockers.
type HashTable struct {
	HashID    string
	DataHash  []byte
	CreatedAt time.Time
}

// Locker is a v1 customer-scoped stored payload, sealed under the owning
// merchant's DEK.
type Locker struct {
	TenantID   string
	MerchantID string
	CustomerID string
	LockerID   string
	EncData    cryptoDomain.Secret
	HashID     string
	CreatedAt  time.Time
	TTL        *time.Time
}

// Expired reports whether the locker's TTL has passed at the given instant.
func (l *Locker) Expired(now time.Time) bool {
	return l.TTL != nil && now.After(*l.TTL)
}

// Vault is a v2 entity-scoped stored payload with no customer dimension.
type Vault struct {
	TenantID      string
	EntityID      string
	VaultID       string
	EncryptedData cryptoDomain.Secret
	CreatedAt     time.Time
	ExpiresAt     *time.Time
}

// Expired reports whether the vault entry's expiry has passed at the given instant.
func (v *Vault) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && now.After(*v.ExpiresAt)
}

// Fingerprint maps a card hash (HMAC-SHA-512 under a caller key) to a stable
// opaque identifier.
type Fingerprint struct {
	CardHash        []byte
	CardFingerprint string
}
