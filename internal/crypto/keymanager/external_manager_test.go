package keymanager

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardvault/locker/internal/apiclient"
	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// memoryEntityRepo is an in-memory EntityRepository for provider tests.
type memoryEntityRepo struct {
	mu       sync.Mutex
	entities map[string]*vaultDomain.Entity
}

func newMemoryEntityRepo() *memoryEntityRepo {
	return &memoryEntityRepo{entities: make(map[string]*vaultDomain.Entity)}
}

func (r *memoryEntityRepo) FindByEntityID(
	_ context.Context,
	tenantID, entityID string,
) (*vaultDomain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.entities[tenantID+"/"+entityID]
	if !ok {
		return nil, vaultDomain.ErrEntityNotFound
	}
	return entity, nil
}

func (r *memoryEntityRepo) InsertOrGet(
	_ context.Context,
	entity *vaultDomain.Entity,
) (*vaultDomain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entity.TenantID + "/" + entity.EntityID
	if existing, ok := r.entities[key]; ok {
		return existing, nil
	}
	r.entities[key] = entity
	return entity, nil
}

// fakeKeyManager implements the remote key manager protocol with a reversible
// "encryption" so tests can assert round trips.
type fakeKeyManager struct {
	t           *testing.T
	createCalls int
	lastAuth    string
	lastTenant  string
}

func (f *fakeKeyManager) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/key/create", func(w http.ResponseWriter, r *http.Request) {
		f.createCalls++
		f.lastAuth = r.Header.Get("Authorization")
		f.lastTenant = r.Header.Get("x-tenant-id")

		var request DataKeyCreateRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(f.t, "Entity", request.DataIdentifier)

		writeJSON(w, DataKeyCreateResponse{
			Identifier: NewEntityIdentifier("remote-key-1"),
			KeyVersion: "v1",
		})
	})

	mux.HandleFunc("/key/transfer", func(w http.ResponseWriter, r *http.Request) {
		var request DataKeyTransferRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&request))

		key, err := base64.StdEncoding.DecodeString(request.Key)
		require.NoError(f.t, err)
		assert.Len(f.t, key, 32)

		writeJSON(w, DataKeyCreateResponse{
			Identifier: NewEntityIdentifier("migrated-" + request.KeyIdentifier),
			KeyVersion: "v1",
		})
	})

	mux.HandleFunc("/data/encrypt", func(w http.ResponseWriter, r *http.Request) {
		var request DataEncryptRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(f.t, "remote-key-1", request.KeyIdentifier)
		writeJSON(w, DataEncryptResponse{Data: "enc:" + request.Data})
	})

	mux.HandleFunc("/data/decrypt", func(w http.ResponseWriter, r *http.Request) {
		var request DataDecryptRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&request))
		writeJSON(w, DataDecryptResponse{Data: request.Data[len("enc:"):]})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newExternalManager(
	t *testing.T,
	url string,
	repo EntityRepository,
	masterKey []byte,
) *ExternalKeyManager {
	t.Helper()
	client, err := apiclient.New(apiclient.Config{
		Timeout:         5 * time.Second,
		IdleConnTimeout: time.Second,
		MaxConnsPerHost: 2,
	})
	require.NoError(t, err)
	return NewExternalKeyManager("demo", cryptoDomain.NewSecret(masterKey), url, client, repo)
}

func TestExternalKeyManager(t *testing.T) {
	ctx := context.Background()
	masterKey := []byte("0123456789abcdef0123456789abcdef")

	t.Run("find or create registers the key once", func(t *testing.T) {
		fake := &fakeKeyManager{t: t}
		server := httptest.NewServer(fake.handler())
		defer server.Close()

		repo := newMemoryEntityRepo()
		manager := newExternalManager(t, server.URL, repo, masterKey)

		ops, err := manager.FindOrCreateEntity(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, 1, fake.createCalls)

		// Credentials are the hex halves of the master key, base64-wrapped.
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte(
			"30313233343536373839616263646566"+
				":"+
				"30313233343536373839616263646566"))
		assert.Equal(t, expected, fake.lastAuth)
		assert.Equal(t, "demo", fake.lastTenant)

		// Second resolution hits the repo, not the key manager.
		_, err = manager.FindOrCreateEntity(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, 1, fake.createCalls)

		sealed, err := ops.Encrypt(ctx, cryptoDomain.NewSecret([]byte("cardholder data")))
		require.NoError(t, err)

		opened, err := ops.Decrypt(ctx, sealed)
		require.NoError(t, err)
		assert.Equal(t, []byte("cardholder data"), opened.Expose())
	})

	t.Run("find by entity id never creates", func(t *testing.T) {
		fake := &fakeKeyManager{t: t}
		server := httptest.NewServer(fake.handler())
		defer server.Close()

		manager := newExternalManager(t, server.URL, newMemoryEntityRepo(), masterKey)
		_, err := manager.FindByEntityID(ctx, "missing")
		assert.ErrorIs(t, err, vaultDomain.ErrEntityNotFound)
		assert.Equal(t, 0, fake.createCalls)
	})

	t.Run("unauthorized surfaces its own kind", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		manager := newExternalManager(t, server.URL, newMemoryEntityRepo(), masterKey)
		_, err := manager.FindOrCreateEntity(ctx, "m1")
		assert.ErrorIs(t, err, ErrKeyManagerUnauthorized)
	})

	t.Run("health check", func(t *testing.T) {
		fake := &fakeKeyManager{t: t}
		server := httptest.NewServer(fake.handler())
		defer server.Close()

		manager := newExternalManager(t, server.URL, newMemoryEntityRepo(), masterKey)
		assert.NoError(t, manager.HealthCheck(ctx))
	})
}

func TestKeyMigrator(t *testing.T) {
	ctx := context.Background()
	masterKey := []byte("0123456789abcdef0123456789abcdef")

	fake := &fakeKeyManager{t: t}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	master := newMasterCipher(t)
	merchantRepo := newMemoryMerchantRepo()
	entityRepo := newMemoryEntityRepo()

	// Seed two merchants with wrapped DEKs and no entity rows.
	internal := NewInternalKeyManager("demo", master, merchantRepo)
	_, err := internal.FindOrCreateEntity(ctx, "m1")
	require.NoError(t, err)
	_, err = internal.FindOrCreateEntity(ctx, "m2")
	require.NoError(t, err)

	external := newExternalManager(t, server.URL, entityRepo, masterKey)
	migrator := NewKeyMigrator("demo", master, merchantRepo, external, slog.Default())

	migrated, err := migrator.TransferKeys(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	// Both merchants now have entity rows carrying remote identifiers.
	for _, merchantID := range []string{"m1", "m2"} {
		entity, err := entityRepo.FindByEntityID(ctx, "demo", merchantID)
		require.NoError(t, err)
		assert.Contains(t, entity.EncKeyID, "migrated-")
	}

	// Re-running finds nothing left to migrate... once entities are visible
	// to the merchant query. The in-memory repo tracks that explicitly.
	merchantRepo.entities["m1"] = true
	merchantRepo.entities["m2"] = true
	migrated, err = migrator.TransferKeys(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)
}

func TestEncodeCiphertext(t *testing.T) {
	t.Run("utf8 passes through", func(t *testing.T) {
		assert.Equal(t, "enc:abcd", EncodeCiphertext([]byte("enc:abcd")))
	})

	t.Run("binary gets the v1 prefix", func(t *testing.T) {
		raw := []byte{0xff, 0xfe, 0x00, 0x01}
		encoded := EncodeCiphertext(raw)
		assert.Equal(t, "v1:"+base64.StdEncoding.EncodeToString(raw), encoded)
	})
}
