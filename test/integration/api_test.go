// Package integration exercises the data plane against a real PostgreSQL.
// Tests skip unless LOCKER_TEST_DATABASE_DSN points at a reachable database.
package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardvault/locker/internal/crypto/keymanager"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
	"github.com/cardvault/locker/internal/database"
	"github.com/cardvault/locker/internal/tenant"
	"github.com/cardvault/locker/internal/testutil"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
	vaultRepository "github.com/cardvault/locker/internal/vault/repository"
	vaultUseCase "github.com/cardvault/locker/internal/vault/usecase"
)

// newTenantState builds an internal-mode tenant over a fresh master key.
func newTenantState(t *testing.T, tenantID string, merchantRepo keymanager.MerchantRepository) *tenant.State {
	t.Helper()

	masterKey, err := cryptoService.GenerateAES256Key()
	require.NoError(t, err)
	masterCipher, err := cryptoService.NewGCMAes256(masterKey)
	require.NoError(t, err)

	return &tenant.State{
		TenantID:    tenantID,
		KeyProvider: keymanager.NewInternalKeyManager(tenantID, masterCipher, merchantRepo),
	}
}

func TestDataPlane(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	ctx := context.Background()
	logger := slog.Default()

	merchantRepo := vaultRepository.NewPostgreSQLMerchantRepository(db)
	useCase := vaultUseCase.NewDataUseCase(
		database.NewTxManager(db),
		vaultRepository.NewPostgreSQLLockerRepository(db),
		vaultRepository.NewPostgreSQLHashRepository(db),
		vaultRepository.NewPostgreSQLFingerprintRepository(db),
		logger,
	)

	demo := newTenantState(t, "demo", merchantRepo)
	payload := vaultDomain.Payload{Card: &vaultDomain.Card{CardNumber: "4242424242424242"}}

	t.Run("add retrieve delete lifecycle", func(t *testing.T) {
		output, err := useCase.AddCard(ctx, demo, vaultUseCase.AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: payload,
		})
		require.NoError(t, err)
		require.NotEmpty(t, output.CardReference)
		assert.Nil(t, output.DuplicationCheck)

		// Re-add dedups onto the same row.
		again, err := useCase.AddCard(ctx, demo, vaultUseCase.AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: payload,
		})
		require.NoError(t, err)
		require.NotNil(t, again.DuplicationCheck)
		assert.Equal(t, vaultDomain.Duplicated, *again.DuplicationCheck)
		assert.Equal(t, output.CardReference, again.CardReference)

		// Same number with changed metadata collides on the stored row.
		name := "J DOE"
		renamed, err := useCase.AddCard(ctx, demo, vaultUseCase.AddCardInput{
			MerchantID: "m1", CustomerID: "c1",
			Payload: vaultDomain.Payload{
				Card: &vaultDomain.Card{CardNumber: "4242424242424242", NameOnCard: &name},
			},
		})
		require.NoError(t, err)
		require.NotNil(t, renamed.DuplicationCheck)
		assert.Equal(t, vaultDomain.MetaDataChanged, *renamed.DuplicationCheck)
		assert.Equal(t, output.CardReference, renamed.CardReference)

		retrieved, err := useCase.RetrieveCard(ctx, demo, "m1", "c1", output.CardReference)
		require.NoError(t, err)
		require.NotNil(t, retrieved.Card)
		assert.Equal(t, "4242424242424242", retrieved.Card.CardNumber)

		require.NoError(t, useCase.DeleteCard(ctx, demo, "m1", "c1", output.CardReference))
		require.NoError(t, useCase.DeleteCard(ctx, demo, "m1", "c1", output.CardReference))

		_, err = useCase.RetrieveCard(ctx, demo, "m1", "c1", output.CardReference)
		assert.ErrorIs(t, err, vaultDomain.ErrLockerNotFound)
	})

	t.Run("ttl expiry is durable", func(t *testing.T) {
		ttl := time.Now().UTC().Add(time.Second)
		output, err := useCase.AddCard(ctx, demo, vaultUseCase.AddCardInput{
			MerchantID: "m1", CustomerID: "c-ttl", Payload: payload, TTL: &ttl,
		})
		require.NoError(t, err)

		time.Sleep(2 * time.Second)

		_, err = useCase.RetrieveCard(ctx, demo, "m1", "c-ttl", output.CardReference)
		assert.ErrorIs(t, err, vaultDomain.ErrLockerNotFound)

		_, err = useCase.RetrieveCard(ctx, demo, "m1", "c-ttl", output.CardReference)
		assert.ErrorIs(t, err, vaultDomain.ErrLockerNotFound)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		output, err := useCase.AddCard(ctx, demo, vaultUseCase.AddCardInput{
			MerchantID: "m-iso", CustomerID: "c1", Payload: payload,
		})
		require.NoError(t, err)

		other := newTenantState(t, "other", merchantRepo)
		_, err = other.KeyProvider.FindOrCreateEntity(ctx, "m-iso")
		require.NoError(t, err)

		_, err = useCase.RetrieveCard(ctx, other, "m-iso", "c1", output.CardReference)
		assert.ErrorIs(t, err, vaultDomain.ErrLockerNotFound)
	})

	t.Run("fingerprint is idempotent per key", func(t *testing.T) {
		first, err := useCase.Fingerprint(ctx, "4242424242424242", "k1")
		require.NoError(t, err)

		again, err := useCase.Fingerprint(ctx, "4242424242424242", "k1")
		require.NoError(t, err)
		assert.Equal(t, first, again)

		other, err := useCase.Fingerprint(ctx, "4242424242424242", "k2")
		require.NoError(t, err)
		assert.NotEqual(t, first, other)
	})
}
