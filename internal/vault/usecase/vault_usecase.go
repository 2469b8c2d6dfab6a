package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/tenant"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// vaultV2UseCase implements VaultV2UseCase against the entity-scoped vault
// table. The protocol mirrors v1 without the customer dimension or the hash
// dedup: the (entity_id, vault_id) key itself is the dedup unit.
type vaultV2UseCase struct {
	vaultRepo VaultRepository
	logger    *slog.Logger
}

// NewVaultV2UseCase creates the v2 data plane use case.
func NewVaultV2UseCase(vaultRepo VaultRepository, logger *slog.Logger) VaultV2UseCase {
	return &vaultV2UseCase{vaultRepo: vaultRepo, logger: logger}
}

// AddData seals an opaque JSON value under the entity's DEK and inserts it.
// An existing row with the same key wins and is returned unchanged.
func (u *vaultV2UseCase) AddData(
	ctx context.Context,
	state *tenant.State,
	input AddDataInput,
) (*vaultDomain.Vault, error) {
	cryptoManager, err := state.KeyProvider.FindOrCreateEntity(ctx, input.EntityID)
	if err != nil {
		return nil, err
	}

	sealed, err := cryptoManager.Encrypt(ctx, cryptoDomain.NewSecret(input.Data))
	if err != nil {
		return nil, err
	}

	vaultID := input.VaultID
	if vaultID == "" {
		vaultID = uuid.New().String()
	}

	return u.vaultRepo.InsertOrGet(ctx, &vaultDomain.Vault{
		TenantID:      state.TenantID,
		EntityID:      input.EntityID,
		VaultID:       vaultID,
		EncryptedData: sealed,
		ExpiresAt:     input.TTL,
	})
}

// RetrieveData opens a stored value, lazily evicting expired rows the same
// way v1 does.
func (u *vaultV2UseCase) RetrieveData(
	ctx context.Context,
	state *tenant.State,
	entityID, vaultID string,
) ([]byte, error) {
	cryptoManager, err := state.KeyProvider.FindByEntityID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	entry, err := u.vaultRepo.FindByVaultID(ctx, state.TenantID, entityID, vaultID)
	if err != nil {
		return nil, err
	}

	if entry.Expired(time.Now().UTC()) {
		u.evictVault(state.TenantID, entityID, vaultID)
		return nil, vaultDomain.ErrVaultNotFound
	}

	decrypted, err := cryptoManager.Decrypt(ctx, entry.EncryptedData)
	if err != nil {
		return nil, err
	}

	return decrypted.Expose(), nil
}

// evictVault deletes an expired row on a detached goroutine.
func (u *vaultV2UseCase) evictVault(tenantID, entityID, vaultID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := u.vaultRepo.DeleteFromVault(ctx, tenantID, entityID, vaultID); err != nil {
			u.logger.Error("failed to evict expired vault entry",
				slog.String("entity_id", entityID),
				slog.Any("error", err),
			)
		}
	}()
}

// DeleteData removes the row after proving the entity exists. Deleting a
// missing row is still Ok.
func (u *vaultV2UseCase) DeleteData(
	ctx context.Context,
	state *tenant.State,
	entityID, vaultID string,
) error {
	if _, err := state.KeyProvider.FindByEntityID(ctx, entityID); err != nil {
		return err
	}

	_, err := u.vaultRepo.DeleteFromVault(ctx, state.TenantID, entityID, vaultID)
	return err
}
