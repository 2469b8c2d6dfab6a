// Package tenant maps tenant ids to their isolated runtime state.
//
// The registry is the single gate between the HTTP edge and tenant data:
// unknown tenants are rejected outright, known-but-locked tenants are rejected
// until their custodians unlock the master key, and handlers only ever see the
// one resolved State. Cross-tenant access is structurally impossible because
// every repository call downstream is scoped by the state's tenant id.
package tenant

import (
	"context"
	"sync"

	"github.com/cardvault/locker/internal/config"
	"github.com/cardvault/locker/internal/custodian"
	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/crypto/keymanager"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
	"github.com/cardvault/locker/internal/errors"
)

var (
	// ErrInvalidTenant rejects requests whose x-tenant-id is unknown.
	ErrInvalidTenant = errors.Wrap(errors.ErrUnauthorized, "Invalid x-tenant-id")

	// ErrCustodianLocked rejects requests for tenants whose master key is not
	// yet unlocked.
	ErrCustodianLocked = errors.Wrap(errors.ErrLocked, "custodian locked")
)

// State is everything the data plane may touch for one tenant.
type State struct {
	TenantID  string
	Config    config.TenantConfig
	MasterKey cryptoDomain.Secret

	// KeyProvider resolves per-merchant crypto operations.
	KeyProvider keymanager.KeyProvider

	// External and Migrator are set only when the external key manager is
	// enabled.
	External *keymanager.ExternalKeyManager
	Migrator *keymanager.KeyMigrator

	// Envelope is set only when the JWE+JWS middleware is enabled.
	Envelope *cryptoService.JWEncryption

	// DedupHasher is set only when the tenant opted into fingerprint dedup
	// on Add responses.
	DedupHasher cryptoService.Hasher
}

// StateFactory builds a tenant's State once its master key is available.
type StateFactory func(
	ctx context.Context,
	tenantCfg config.TenantConfig,
	masterKey cryptoDomain.Secret,
) (*State, error)

// Registry holds the custodians and resolved states of all known tenants.
// It is read-mostly: writes happen at startup and on custodian unlock.
type Registry struct {
	mu         sync.RWMutex
	custodians map[string]*custodian.Custodian
	states     map[string]*State
	configs    map[string]config.TenantConfig
	factory    StateFactory
}

// NewRegistry creates an empty registry with the given state factory.
func NewRegistry(factory StateFactory) *Registry {
	return &Registry{
		custodians: make(map[string]*custodian.Custodian),
		states:     make(map[string]*State),
		configs:    make(map[string]config.TenantConfig),
		factory:    factory,
	}
}

// Register adds a known tenant with its custodian. Called once per tenant at
// startup. If the custodian is already unlocked (secrets manager mode), the
// tenant state is built immediately.
func (r *Registry) Register(
	ctx context.Context,
	tenantCfg config.TenantConfig,
	keeper *custodian.Custodian,
) error {
	r.mu.Lock()
	r.custodians[tenantCfg.ID] = keeper
	r.configs[tenantCfg.ID] = tenantCfg
	r.mu.Unlock()

	if keeper.State() == custodian.Unlocked {
		return r.activate(ctx, tenantCfg.ID)
	}
	return nil
}

// IsKnown reports whether the tenant id is configured.
func (r *Registry) IsKnown(tenantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.custodians[tenantID]
	return ok
}

// State resolves a tenant's runtime state. Unknown tenants get
// ErrInvalidTenant; known tenants without an unlocked master key get
// ErrCustodianLocked.
func (r *Registry) State(tenantID string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.custodians[tenantID]; !ok {
		return nil, ErrInvalidTenant
	}

	state, ok := r.states[tenantID]
	if !ok {
		return nil, ErrCustodianLocked
	}

	return state, nil
}

// Custodian returns the tenant's custodian for the unlock endpoints.
func (r *Registry) Custodian(tenantID string) (*custodian.Custodian, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keeper, ok := r.custodians[tenantID]
	if !ok {
		return nil, ErrInvalidTenant
	}
	return keeper, nil
}

// Unlock runs the custodian decrypt and, on success, builds and publishes the
// tenant state.
func (r *Registry) Unlock(ctx context.Context, tenantID string) error {
	keeper, err := r.Custodian(tenantID)
	if err != nil {
		return err
	}

	if err := keeper.Decrypt(); err != nil {
		return err
	}

	return r.activate(ctx, tenantID)
}

// activate builds the tenant state from the unlocked master key and stores it.
func (r *Registry) activate(ctx context.Context, tenantID string) error {
	keeper, err := r.Custodian(tenantID)
	if err != nil {
		return err
	}

	masterKey, err := keeper.MasterKey()
	if err != nil {
		return err
	}

	r.mu.RLock()
	tenantCfg := r.configs[tenantID]
	_, alreadyActive := r.states[tenantID]
	r.mu.RUnlock()

	if alreadyActive {
		return nil
	}

	state, err := r.factory(ctx, tenantCfg, masterKey)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.states[tenantID] = state
	r.mu.Unlock()

	return nil
}

// Locked reports whether any known tenant is still waiting for custodian
// shares. Used by the diagnostics endpoint.
func (r *Registry) Locked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, keeper := range r.custodians {
		if _, ok := r.states[id]; !ok || keeper.State() != custodian.Unlocked {
			return true
		}
	}
	return false
}
