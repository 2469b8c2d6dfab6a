// Package usecase orchestrates the vault data plane: hash-dedup storage,
// retrieval with lazy TTL eviction, idempotent deletion and card
// fingerprinting, for both the v1 customer-scoped locker table and the v2
// entity-scoped vault table.
package usecase

import (
	"context"
	"time"

	"github.com/cardvault/locker/internal/tenant"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// LockerRepository persists v1 customer-scoped payloads.
type LockerRepository interface {
	FindByLockerID(ctx context.Context, tenantID, merchantID, customerID, lockerID string) (*vaultDomain.Locker, error)
	FindByHashID(ctx context.Context, tenantID, merchantID, customerID, hashID string) (*vaultDomain.Locker, error)
	InsertOrGet(ctx context.Context, locker *vaultDomain.Locker) (*vaultDomain.Locker, error)
	DeleteFromLocker(ctx context.Context, tenantID, merchantID, customerID, lockerID string) (int64, error)
}

// VaultRepository persists v2 entity-scoped payloads.
type VaultRepository interface {
	FindByVaultID(ctx context.Context, tenantID, entityID, vaultID string) (*vaultDomain.Vault, error)
	InsertOrGet(ctx context.Context, entry *vaultDomain.Vault) (*vaultDomain.Vault, error)
	DeleteFromVault(ctx context.Context, tenantID, entityID, vaultID string) (int64, error)
}

// HashRepository persists content hashes for dedup.
type HashRepository interface {
	FindByDataHash(ctx context.Context, dataHash []byte) (*vaultDomain.HashTable, error)
	InsertHash(ctx context.Context, dataHash []byte) (*vaultDomain.HashTable, error)
}

// FingerprintRepository persists card fingerprints.
type FingerprintRepository interface {
	FindByCardHash(ctx context.Context, cardHash []byte) (*vaultDomain.Fingerprint, error)
	InsertOrGet(ctx context.Context, cardHash []byte) (*vaultDomain.Fingerprint, error)
}

// TestRepository runs the diagnostics round-trip.
type TestRepository interface {
	Test(ctx context.Context) error
}

// AddCardInput is the validated v1 Add request.
type AddCardInput struct {
	MerchantID         string
	CustomerID         string
	RequestorReference string
	Payload            vaultDomain.Payload
	TTL                *time.Time
}

// AddCardOutput carries the stored reference, the dedup verdict when the
// content hash matched an existing row, and the optional fingerprint block.
type AddCardOutput struct {
	CardReference    string
	DuplicationCheck *vaultDomain.DuplicationCheck
	Fingerprint      *string
}

// DataUseCase is the v1 customer-scoped data plane.
//
// Implementation: dataUseCase.
type DataUseCase interface {
	// AddCard stores a payload, deduplicating on the content hash.
	AddCard(ctx context.Context, state *tenant.State, input AddCardInput) (*AddCardOutput, error)

	// RetrieveCard returns the stored payload, lazily evicting expired rows.
	RetrieveCard(ctx context.Context, state *tenant.State, merchantID, customerID, reference string) (vaultDomain.Payload, error)

	// DeleteCard removes the row; deleting a missing row is still Ok.
	DeleteCard(ctx context.Context, state *tenant.State, merchantID, customerID, reference string) error

	// Fingerprint derives the stable opaque id of a card under a caller key.
	Fingerprint(ctx context.Context, data, key string) (string, error)
}

// AddDataInput is the validated v2 Add request. Data is an opaque JSON value.
type AddDataInput struct {
	EntityID string
	VaultID  string
	Data     []byte
	TTL      *time.Time
}

// VaultV2UseCase is the v2 entity-scoped data plane.
//
// Implementation: vaultV2UseCase.
type VaultV2UseCase interface {
	AddData(ctx context.Context, state *tenant.State, input AddDataInput) (*vaultDomain.Vault, error)
	RetrieveData(ctx context.Context, state *tenant.State, entityID, vaultID string) ([]byte, error)
	DeleteData(ctx context.Context, state *tenant.State, entityID, vaultID string) error
}
