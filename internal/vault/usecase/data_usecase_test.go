package usecase

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/crypto/keymanager"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
	"github.com/cardvault/locker/internal/tenant"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// --- in-memory fixtures ---

// passthroughTx runs the function without a real transaction.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memoryLockerRepo struct {
	mu      sync.Mutex
	lockers map[string]*vaultDomain.Locker
}

func newMemoryLockerRepo() *memoryLockerRepo {
	return &memoryLockerRepo{lockers: make(map[string]*vaultDomain.Locker)}
}

func lockerKey(tenantID, merchantID, customerID, lockerID string) string {
	return tenantID + "/" + merchantID + "/" + customerID + "/" + lockerID
}

func (r *memoryLockerRepo) FindByLockerID(
	_ context.Context,
	tenantID, merchantID, customerID, lockerID string,
) (*vaultDomain.Locker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	locker, ok := r.lockers[lockerKey(tenantID, merchantID, customerID, lockerID)]
	if !ok {
		return nil, vaultDomain.ErrLockerNotFound
	}
	return locker, nil
}

func (r *memoryLockerRepo) FindByHashID(
	_ context.Context,
	tenantID, merchantID, customerID, hashID string,
) (*vaultDomain.Locker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, locker := range r.lockers {
		if locker.TenantID == tenantID && locker.MerchantID == merchantID &&
			locker.CustomerID == customerID && locker.HashID == hashID {
			return locker, nil
		}
	}
	return nil, nil
}

func (r *memoryLockerRepo) InsertOrGet(
	_ context.Context,
	locker *vaultDomain.Locker,
) (*vaultDomain.Locker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := lockerKey(locker.TenantID, locker.MerchantID, locker.CustomerID, locker.LockerID)
	if existing, ok := r.lockers[key]; ok {
		return existing, nil
	}
	locker.CreatedAt = time.Now().UTC()
	r.lockers[key] = locker
	return locker, nil
}

func (r *memoryLockerRepo) DeleteFromLocker(
	_ context.Context,
	tenantID, merchantID, customerID, lockerID string,
) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := lockerKey(tenantID, merchantID, customerID, lockerID)
	if _, ok := r.lockers[key]; !ok {
		return 0, nil
	}
	delete(r.lockers, key)
	return 1, nil
}

type memoryHashRepo struct {
	mu     sync.Mutex
	hashes map[string]*vaultDomain.HashTable
	nextID int
}

func newMemoryHashRepo() *memoryHashRepo {
	return &memoryHashRepo{hashes: make(map[string]*vaultDomain.HashTable)}
}

func (r *memoryHashRepo) FindByDataHash(
	_ context.Context,
	dataHash []byte,
) (*vaultDomain.HashTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.hashes[string(dataHash)]
	if !ok {
		return nil, vaultDomain.ErrHashNotFound
	}
	return hash, nil
}

func (r *memoryHashRepo) InsertHash(
	_ context.Context,
	dataHash []byte,
) (*vaultDomain.HashTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.hashes[string(dataHash)]; ok {
		return existing, nil
	}
	r.nextID++
	hash := &vaultDomain.HashTable{
		HashID:    string(rune('a' + r.nextID)),
		DataHash:  dataHash,
		CreatedAt: time.Now().UTC(),
	}
	r.hashes[string(dataHash)] = hash
	return hash, nil
}

type memoryFingerprintRepo struct {
	mu           sync.Mutex
	fingerprints map[string]*vaultDomain.Fingerprint
	nextID       int
}

func newMemoryFingerprintRepo() *memoryFingerprintRepo {
	return &memoryFingerprintRepo{fingerprints: make(map[string]*vaultDomain.Fingerprint)}
}

func (r *memoryFingerprintRepo) FindByCardHash(
	_ context.Context,
	cardHash []byte,
) (*vaultDomain.Fingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fingerprint, ok := r.fingerprints[string(cardHash)]
	if !ok {
		return nil, vaultDomain.ErrFingerprintNotFound
	}
	return fingerprint, nil
}

func (r *memoryFingerprintRepo) InsertOrGet(
	_ context.Context,
	cardHash []byte,
) (*vaultDomain.Fingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.fingerprints[string(cardHash)]; ok {
		return existing, nil
	}
	r.nextID++
	fingerprint := &vaultDomain.Fingerprint{
		CardHash:        cardHash,
		CardFingerprint: "fp-" + string(rune('0'+r.nextID)),
	}
	r.fingerprints[string(cardHash)] = fingerprint
	return fingerprint, nil
}

// memoryKeyProvider hands out one local AES-256-GCM cipher per entity,
// created on FindOrCreateEntity only.
type memoryKeyProvider struct {
	mu      sync.Mutex
	ciphers map[string]keymanager.CryptoOperations
}

func newMemoryKeyProvider() *memoryKeyProvider {
	return &memoryKeyProvider{ciphers: make(map[string]keymanager.CryptoOperations)}
}

type localOps struct{ cipher cryptoService.Cipher }

func (o *localOps) Encrypt(_ context.Context, p cryptoDomain.Secret) (cryptoDomain.Secret, error) {
	return o.cipher.Encrypt(p)
}

func (o *localOps) Decrypt(_ context.Context, c cryptoDomain.Secret) (cryptoDomain.Secret, error) {
	return o.cipher.Decrypt(c)
}

func (p *memoryKeyProvider) FindByEntityID(
	_ context.Context,
	entityID string,
) (keymanager.CryptoOperations, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops, ok := p.ciphers[entityID]
	if !ok {
		return nil, vaultDomain.ErrMerchantNotFound
	}
	return ops, nil
}

func (p *memoryKeyProvider) FindOrCreateEntity(
	_ context.Context,
	entityID string,
) (keymanager.CryptoOperations, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ops, ok := p.ciphers[entityID]; ok {
		return ops, nil
	}
	key, err := cryptoService.GenerateAES256Key()
	if err != nil {
		return nil, err
	}
	cipher, err := cryptoService.NewGCMAes256(key)
	if err != nil {
		return nil, err
	}
	ops := &localOps{cipher: cipher}
	p.ciphers[entityID] = ops
	return ops, nil
}

type harness struct {
	useCase    DataUseCase
	lockerRepo *memoryLockerRepo
	state      *tenant.State
}

func newHarness(t *testing.T, tenantID string) *harness {
	t.Helper()
	lockerRepo := newMemoryLockerRepo()
	return &harness{
		useCase: NewDataUseCase(
			passthroughTx{},
			lockerRepo,
			newMemoryHashRepo(),
			newMemoryFingerprintRepo(),
			slog.Default(),
		),
		lockerRepo: lockerRepo,
		state:      &tenant.State{TenantID: tenantID, KeyProvider: newMemoryKeyProvider()},
	}
}

func cardPayload(number string) vaultDomain.Payload {
	return vaultDomain.Payload{Card: &vaultDomain.Card{CardNumber: number}}
}

// --- tests ---

func TestAddCard(t *testing.T) {
	ctx := context.Background()

	t.Run("first add stores one row with no duplication flag", func(t *testing.T) {
		h := newHarness(t, "demo")

		output, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1",
			CustomerID: "c1",
			Payload:    cardPayload("4242424242424242"),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, output.CardReference)
		assert.Nil(t, output.DuplicationCheck)
		assert.Len(t, h.lockerRepo.lockers, 1)
	})

	t.Run("re-add reports Duplicated with the same reference", func(t *testing.T) {
		h := newHarness(t, "demo")
		input := AddCardInput{
			MerchantID: "m1",
			CustomerID: "c1",
			Payload:    cardPayload("4242424242424242"),
		}

		first, err := h.useCase.AddCard(ctx, h.state, input)
		require.NoError(t, err)

		second, err := h.useCase.AddCard(ctx, h.state, input)
		require.NoError(t, err)

		require.NotNil(t, second.DuplicationCheck)
		assert.Equal(t, vaultDomain.Duplicated, *second.DuplicationCheck)
		assert.Equal(t, first.CardReference, second.CardReference)
		assert.Len(t, h.lockerRepo.lockers, 1)
	})

	t.Run("same card with changed metadata reports MetaDataChanged", func(t *testing.T) {
		h := newHarness(t, "demo")

		first, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: cardPayload("4242424242424242"),
		})
		require.NoError(t, err)

		// The dedup key is the card number alone, so the nickname change
		// collides on the stored row instead of inserting a second one.
		name := "J DOE"
		withName := vaultDomain.Payload{
			Card: &vaultDomain.Card{CardNumber: "4242424242424242", NameOnCard: &name},
		}
		output, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: withName,
		})
		require.NoError(t, err)

		require.NotNil(t, output.DuplicationCheck)
		assert.Equal(t, vaultDomain.MetaDataChanged, *output.DuplicationCheck)
		assert.Equal(t, first.CardReference, output.CardReference)
		assert.Len(t, h.lockerRepo.lockers, 1)
	})

	t.Run("different card numbers store separate rows", func(t *testing.T) {
		h := newHarness(t, "demo")

		_, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: cardPayload("4242424242424242"),
		})
		require.NoError(t, err)

		output, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: cardPayload("4222222222222"),
		})
		require.NoError(t, err)

		assert.Nil(t, output.DuplicationCheck)
		assert.Len(t, h.lockerRepo.lockers, 2)
	})

	t.Run("caller-supplied reference is honored", func(t *testing.T) {
		h := newHarness(t, "demo")

		output, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID:         "m1",
			CustomerID:         "c1",
			RequestorReference: "my-ref-1",
			Payload:            cardPayload("4242424242424242"),
		})
		require.NoError(t, err)
		assert.Equal(t, "my-ref-1", output.CardReference)
	})

	t.Run("dedup fingerprint on raw-card payloads", func(t *testing.T) {
		h := newHarness(t, "demo")
		hasher, err := cryptoService.NewHmacSHA512(
			cryptoDomain.NewSecret([]byte("dedup-key")),
			cryptoService.FingerprintHashIterations,
		)
		require.NoError(t, err)
		h.state.DedupHasher = hasher

		output, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: cardPayload("4242424242424242"),
		})
		require.NoError(t, err)
		require.NotNil(t, output.Fingerprint)
		assert.NotEmpty(t, *output.Fingerprint)
	})
}

func TestRetrieveCard(t *testing.T) {
	ctx := context.Background()

	t.Run("add then retrieve is byte-equal", func(t *testing.T) {
		h := newHarness(t, "demo")
		payload := cardPayload("4242424242424242")

		output, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: payload,
		})
		require.NoError(t, err)

		retrieved, err := h.useCase.RetrieveCard(ctx, h.state, "m1", "c1", output.CardReference)
		require.NoError(t, err)

		wantBytes, err := payload.Canonicalize()
		require.NoError(t, err)
		gotBytes, err := retrieved.Canonicalize()
		require.NoError(t, err)
		assert.Equal(t, wantBytes, gotBytes)
	})

	t.Run("missing reference is not found", func(t *testing.T) {
		h := newHarness(t, "demo")

		_, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: cardPayload("4242424242424242"),
		})
		require.NoError(t, err)

		_, err = h.useCase.RetrieveCard(ctx, h.state, "m1", "c1", "ghost")
		assert.ErrorIs(t, err, vaultDomain.ErrLockerNotFound)
	})

	t.Run("expired ttl evicts durably", func(t *testing.T) {
		h := newHarness(t, "demo")
		past := time.Now().UTC().Add(-time.Second)

		output, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1",
			Payload: cardPayload("4242424242424242"),
			TTL:     &past,
		})
		require.NoError(t, err)

		_, err = h.useCase.RetrieveCard(ctx, h.state, "m1", "c1", output.CardReference)
		assert.ErrorIs(t, err, vaultDomain.ErrLockerNotFound)

		// The detached eviction removes the row; a later retrieve still
		// reports not found.
		assert.Eventually(t, func() bool {
			h.lockerRepo.mu.Lock()
			defer h.lockerRepo.mu.Unlock()
			return len(h.lockerRepo.lockers) == 0
		}, time.Second, 10*time.Millisecond)

		_, err = h.useCase.RetrieveCard(ctx, h.state, "m1", "c1", output.CardReference)
		assert.ErrorIs(t, err, vaultDomain.ErrLockerNotFound)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		lockerRepo := newMemoryLockerRepo()
		useCase := NewDataUseCase(
			passthroughTx{}, lockerRepo, newMemoryHashRepo(), newMemoryFingerprintRepo(), slog.Default(),
		)

		stateA := &tenant.State{TenantID: "tenant-a", KeyProvider: newMemoryKeyProvider()}
		stateB := &tenant.State{TenantID: "tenant-b", KeyProvider: newMemoryKeyProvider()}

		output, err := useCase.AddCard(ctx, stateA, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: cardPayload("4242424242424242"),
		})
		require.NoError(t, err)

		// Same merchant, customer and reference under the other tenant: the
		// provider has no merchant m1, and even with one the row is invisible.
		_, err = useCase.RetrieveCard(ctx, stateB, "m1", "c1", output.CardReference)
		require.Error(t, err)

		_, err = stateB.KeyProvider.FindOrCreateEntity(ctx, "m1")
		require.NoError(t, err)
		_, err = useCase.RetrieveCard(ctx, stateB, "m1", "c1", output.CardReference)
		assert.ErrorIs(t, err, vaultDomain.ErrLockerNotFound)
	})
}

func TestDeleteCard(t *testing.T) {
	ctx := context.Background()

	t.Run("delete is idempotent", func(t *testing.T) {
		h := newHarness(t, "demo")

		output, err := h.useCase.AddCard(ctx, h.state, AddCardInput{
			MerchantID: "m1", CustomerID: "c1", Payload: cardPayload("4242424242424242"),
		})
		require.NoError(t, err)

		require.NoError(t, h.useCase.DeleteCard(ctx, h.state, "m1", "c1", output.CardReference))
		require.NoError(t, h.useCase.DeleteCard(ctx, h.state, "m1", "c1", output.CardReference))
		assert.Len(t, h.lockerRepo.lockers, 0)
	})

	t.Run("unknown merchant fails", func(t *testing.T) {
		h := newHarness(t, "demo")
		err := h.useCase.DeleteCard(ctx, h.state, "ghost", "c1", "ref")
		assert.ErrorIs(t, err, vaultDomain.ErrMerchantNotFound)
	})
}

func TestFingerprint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "demo")

	first, err := h.useCase.Fingerprint(ctx, "4242424242424242", "k1")
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	// Identical inputs return exactly the same id.
	again, err := h.useCase.Fingerprint(ctx, "4242424242424242", "k1")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// A different key yields a different id.
	other, err := h.useCase.Fingerprint(ctx, "4242424242424242", "k2")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}
