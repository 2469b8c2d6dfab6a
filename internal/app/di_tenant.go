package app

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/cardvault/locker/internal/config"
	"github.com/cardvault/locker/internal/custodian"
	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/crypto/keymanager"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
	apperrors "github.com/cardvault/locker/internal/errors"
	"github.com/cardvault/locker/internal/tenant"
)

// initRegistry creates the tenant registry and registers every configured
// tenant. Custodian mode leaves tenants locked; secrets manager mode fetches
// and validates every master key before the server starts, so a fetch failure
// aborts startup.
func (c *Container) initRegistry(ctx context.Context) error {
	if err := c.initUseCases(); err != nil {
		return err
	}

	registry := tenant.NewRegistry(c.tenantStateFactory())

	for _, tenantCfg := range c.config.Tenants {
		keeper, err := c.tenantCustodian(ctx, tenantCfg)
		if err != nil {
			return fmt.Errorf("tenant %s: %w", tenantCfg.ID, err)
		}

		if err := registry.Register(ctx, tenantCfg, keeper); err != nil {
			return fmt.Errorf("tenant %s: %w", tenantCfg.ID, err)
		}
	}

	c.registry = registry
	return nil
}

// tenantCustodian builds the tenant's custodian: locked over the wrapped blob
// in custodian mode, unlocked from the secrets manager otherwise.
func (c *Container) tenantCustodian(
	ctx context.Context,
	tenantCfg config.TenantConfig,
) (*custodian.Custodian, error) {
	if c.config.CustodianMode() {
		return custodian.New(tenantCfg.MasterKey, tenantCfg.MasterKeyValidation), nil
	}

	manager, err := c.SecretsManager(ctx)
	if err != nil {
		return nil, err
	}

	fetched, err := manager.GetSecret(ctx, cryptoDomain.NewSecret(tenantCfg.MasterKey))
	if err != nil {
		return nil, err
	}

	masterKey, err := decodeMasterKey(fetched)
	if err != nil {
		return nil, err
	}

	return custodian.NewUnlocked(masterKey, tenantCfg.MasterKeyValidation)
}

// decodeMasterKey accepts the fetched secret either as raw 32 bytes or as
// base64 text decoding to 32 bytes.
func decodeMasterKey(fetched cryptoDomain.Secret) (cryptoDomain.Secret, error) {
	if fetched.Len() == 32 {
		return fetched, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(string(fetched.Expose()))
	if err == nil && len(decoded) == 32 {
		fetched.Zero()
		return cryptoDomain.NewSecret(decoded), nil
	}

	return cryptoDomain.Secret{}, apperrors.Wrap(
		cryptoDomain.ErrFetchSecretFailed,
		"master key secret is not 32 bytes",
	)
}

// tenantStateFactory builds the per-tenant runtime state once the master key
// is available: DEK provider (internal or external), key migrator, JOSE
// envelope and dedup hasher.
func (c *Container) tenantStateFactory() tenant.StateFactory {
	return func(
		ctx context.Context,
		tenantCfg config.TenantConfig,
		masterKey cryptoDomain.Secret,
	) (*tenant.State, error) {
		masterCipher, err := cryptoService.NewGCMAes256(masterKey.Expose())
		if err != nil {
			return nil, err
		}

		state := &tenant.State{
			TenantID:  tenantCfg.ID,
			Config:    tenantCfg,
			MasterKey: masterKey,
		}

		if c.config.ExternalKeyManagerEnabled {
			client, err := c.APIClient()
			if err != nil {
				return nil, err
			}

			external := keymanager.NewExternalKeyManager(
				tenantCfg.ID,
				masterKey,
				c.config.ExternalKeyManagerURL,
				client,
				c.entityRepo,
			)
			state.KeyProvider = external
			state.External = external
			state.Migrator = keymanager.NewKeyMigrator(
				tenantCfg.ID,
				masterCipher,
				c.merchantRepo,
				external,
				c.Logger(),
			)
		} else {
			state.KeyProvider = keymanager.NewInternalKeyManager(
				tenantCfg.ID,
				masterCipher,
				c.merchantRepo,
			)
		}

		if c.config.MiddlewareEnabled {
			envelope, err := cryptoService.NewJWEncryption(
				tenantCfg.LockerPrivateKey,
				tenantCfg.TenantPublicKey,
			)
			if err != nil {
				return nil, err
			}
			state.Envelope = envelope
		}

		if tenantCfg.DedupEnabled {
			hasher, err := cryptoService.NewHmacSHA512(
				cryptoDomain.NewSecret([]byte(tenantCfg.DedupHashKey)),
				cryptoService.FingerprintHashIterations,
			)
			if err != nil {
				return nil, err
			}
			state.DedupHasher = hasher
		}

		return state, nil
	}
}
