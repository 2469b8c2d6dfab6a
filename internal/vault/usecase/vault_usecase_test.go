package usecase

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardvault/locker/internal/tenant"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

type memoryVaultRepo struct {
	mu      sync.Mutex
	entries map[string]*vaultDomain.Vault
}

func newMemoryVaultRepo() *memoryVaultRepo {
	return &memoryVaultRepo{entries: make(map[string]*vaultDomain.Vault)}
}

func vaultKey(tenantID, entityID, vaultID string) string {
	return tenantID + "/" + entityID + "/" + vaultID
}

func (r *memoryVaultRepo) FindByVaultID(
	_ context.Context,
	tenantID, entityID, vaultID string,
) (*vaultDomain.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[vaultKey(tenantID, entityID, vaultID)]
	if !ok {
		return nil, vaultDomain.ErrVaultNotFound
	}
	return entry, nil
}

func (r *memoryVaultRepo) InsertOrGet(
	_ context.Context,
	entry *vaultDomain.Vault,
) (*vaultDomain.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := vaultKey(entry.TenantID, entry.EntityID, entry.VaultID)
	if existing, ok := r.entries[key]; ok {
		return existing, nil
	}
	entry.CreatedAt = time.Now().UTC()
	r.entries[key] = entry
	return entry, nil
}

func (r *memoryVaultRepo) DeleteFromVault(
	_ context.Context,
	tenantID, entityID, vaultID string,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := vaultKey(tenantID, entityID, vaultID)
	if _, ok := r.entries[key]; !ok {
		return 0, nil
	}
	delete(r.entries, key)
	return 1, nil
}

func TestVaultV2UseCase(t *testing.T) {
	ctx := context.Background()

	newV2Harness := func() (VaultV2UseCase, *memoryVaultRepo, *tenant.State) {
		repo := newMemoryVaultRepo()
		useCase := NewVaultV2UseCase(repo, slog.Default())
		state := &tenant.State{TenantID: "demo", KeyProvider: newMemoryKeyProvider()}
		return useCase, repo, state
	}

	t.Run("add then retrieve round-trips", func(t *testing.T) {
		useCase, _, state := newV2Harness()
		data := []byte(`{"type":"PAYMENT","amount":100}`)

		entry, err := useCase.AddData(ctx, state, AddDataInput{
			EntityID: "e1",
			VaultID:  "v1",
			Data:     data,
		})
		require.NoError(t, err)
		assert.Equal(t, "v1", entry.VaultID)

		retrieved, err := useCase.RetrieveData(ctx, state, "e1", "v1")
		require.NoError(t, err)
		assert.Equal(t, data, retrieved)
	})

	t.Run("missing vault id gets generated", func(t *testing.T) {
		useCase, _, state := newV2Harness()

		entry, err := useCase.AddData(ctx, state, AddDataInput{
			EntityID: "e1",
			Data:     []byte(`{}`),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, entry.VaultID)
	})

	t.Run("existing key wins on re-add", func(t *testing.T) {
		useCase, repo, state := newV2Harness()

		first, err := useCase.AddData(ctx, state, AddDataInput{
			EntityID: "e1", VaultID: "v1", Data: []byte(`{"v":1}`),
		})
		require.NoError(t, err)

		second, err := useCase.AddData(ctx, state, AddDataInput{
			EntityID: "e1", VaultID: "v1", Data: []byte(`{"v":2}`),
		})
		require.NoError(t, err)

		assert.Equal(t, first.EncryptedData.Expose(), second.EncryptedData.Expose())
		assert.Len(t, repo.entries, 1)
	})

	t.Run("expired entry evicts durably", func(t *testing.T) {
		useCase, repo, state := newV2Harness()
		past := time.Now().UTC().Add(-time.Second)

		_, err := useCase.AddData(ctx, state, AddDataInput{
			EntityID: "e1", VaultID: "v1", Data: []byte(`{}`), TTL: &past,
		})
		require.NoError(t, err)

		_, err = useCase.RetrieveData(ctx, state, "e1", "v1")
		assert.ErrorIs(t, err, vaultDomain.ErrVaultNotFound)

		assert.Eventually(t, func() bool {
			repo.mu.Lock()
			defer repo.mu.Unlock()
			return len(repo.entries) == 0
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("delete is idempotent and requires the entity", func(t *testing.T) {
		useCase, _, state := newV2Harness()

		_, err := useCase.AddData(ctx, state, AddDataInput{
			EntityID: "e1", VaultID: "v1", Data: []byte(`{}`),
		})
		require.NoError(t, err)

		require.NoError(t, useCase.DeleteData(ctx, state, "e1", "v1"))
		require.NoError(t, useCase.DeleteData(ctx, state, "e1", "v1"))

		assert.Error(t, useCase.DeleteData(ctx, state, "ghost", "v1"))
	})
}
