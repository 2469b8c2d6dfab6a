// Package app provides the dependency injection container assembling the
// vault's components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cardvault/locker/internal/apiclient"
	"github.com/cardvault/locker/internal/cache"
	"github.com/cardvault/locker/internal/config"
	"github.com/cardvault/locker/internal/crypto/keymanager"
	"github.com/cardvault/locker/internal/database"
	lockerHTTP "github.com/cardvault/locker/internal/http"
	"github.com/cardvault/locker/internal/metrics"
	"github.com/cardvault/locker/internal/secrets"
	"github.com/cardvault/locker/internal/tenant"
	vaultHTTP "github.com/cardvault/locker/internal/vault/http"
	vaultRepository "github.com/cardvault/locker/internal/vault/repository"
	vaultUseCase "github.com/cardvault/locker/internal/vault/usecase"
)

// Container holds all application dependencies and provides methods to access
// them. Components are created lazily on first access.
type Container struct {
	config *config.Config

	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	secretsManager  secrets.Manager
	apiClient       *apiclient.Client

	merchantRepo    keymanager.MerchantRepository
	entityRepo      keymanager.EntityRepository
	lockerRepo      vaultUseCase.LockerRepository
	vaultRepo       vaultUseCase.VaultRepository
	hashRepo        vaultUseCase.HashRepository
	fingerprintRepo vaultUseCase.FingerprintRepository
	testRepo        vaultUseCase.TestRepository

	dataUseCase    vaultUseCase.DataUseCase
	vaultV2UseCase vaultUseCase.VaultV2UseCase

	registry   *tenant.Registry
	httpServer *lockerHTTP.Server

	loggerInit     sync.Once
	dbInit         sync.Once
	metricsInit    sync.Once
	secretsInit    sync.Once
	apiClientInit  sync.Once
	reposInit      sync.Once
	useCaseInit    sync.Once
	registryInit   sync.Once
	httpServerInit sync.Once
	initErrors     map[string]error
}

// NewContainer creates a new container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured slog logger.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		var level slog.Level
		switch c.config.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		c.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	})
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(
			c.config.DBDriver,
			c.config.DBConnectionString,
			c.config.DBMaxOpenConnections,
			c.config.DBMaxIdleConnections,
			c.config.DBConnMaxLifetime,
		)
		if err != nil {
			c.initErrors["db"] = err
			return
		}
		c.db = db
		c.txManager = database.NewTxManager(db)
	})
	if err := c.initErrors["db"]; err != nil {
		return nil, err
	}
	return c.db, nil
}

// MetricsProvider returns the metrics provider, or nil when disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	c.metricsInit.Do(func() {
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metrics"] = err
			return
		}
		c.metricsProvider = provider
	})
	if err := c.initErrors["metrics"]; err != nil {
		return nil, err
	}
	return c.metricsProvider, nil
}

// SecretsManager returns the configured secrets manager, or nil in custodian
// mode.
func (c *Container) SecretsManager(ctx context.Context) (secrets.Manager, error) {
	if c.config.CustodianMode() {
		return nil, nil
	}
	c.secretsInit.Do(func() {
		manager, err := c.initSecretsManager(ctx)
		if err != nil {
			c.initErrors["secrets"] = err
			return
		}
		c.secretsManager = manager
	})
	if err := c.initErrors["secrets"]; err != nil {
		return nil, err
	}
	return c.secretsManager, nil
}

// initSecretsManager builds the provider-specific manager.
func (c *Container) initSecretsManager(ctx context.Context) (secrets.Manager, error) {
	switch c.config.SecretsManagerProvider {
	case config.SecretsManagerNoOp:
		return secrets.NewNoOpManager(), nil
	case config.SecretsManagerVaultKV2:
		client, err := secrets.NewVaultClient(c.config.VaultAddress, c.config.VaultToken)
		if err != nil {
			return nil, err
		}
		return secrets.NewVaultKV2Manager(client), nil
	default:
		keeper, err := secrets.OpenKeeper(ctx, c.config.SecretsManagerKeyURI)
		if err != nil {
			return nil, err
		}
		return secrets.NewKMSManager(keeper), nil
	}
}

// APIClient returns the HTTP client for the external key manager.
func (c *Container) APIClient() (*apiclient.Client, error) {
	c.apiClientInit.Do(func() {
		client, err := apiclient.New(apiclient.Config{
			Timeout:         c.config.APIClientTimeout,
			IdleConnTimeout: c.config.APIClientIdleConnTimeout,
			MaxConnsPerHost: c.config.APIClientMaxConnsPerHost,
			CACert:          c.config.ExternalKeyManagerCACert,
			ClientCert:      c.config.ExternalKeyManagerClientCert,
			ClientKey:       c.config.ExternalKeyManagerClientKey,
		})
		if err != nil {
			c.initErrors["apiClient"] = err
			return
		}
		c.apiClient = client
	})
	if err := c.initErrors["apiClient"]; err != nil {
		return nil, err
	}
	return c.apiClient, nil
}

// initRepositories builds the PostgreSQL repositories, wrapping the hot
// lookup paths with caches when enabled.
func (c *Container) initRepositories() error {
	db, err := c.DB()
	if err != nil {
		return err
	}

	c.reposInit.Do(func() {
		merchantRepo := keymanager.MerchantRepository(vaultRepository.NewPostgreSQLMerchantRepository(db))
		entityRepo := keymanager.EntityRepository(vaultRepository.NewPostgreSQLEntityRepository(db))
		hashRepo := vaultUseCase.HashRepository(vaultRepository.NewPostgreSQLHashRepository(db))

		if c.config.CacheEnabled {
			cacheCfg := cache.Config{
				MaxEntries: c.config.CacheMaxEntries,
				TTI:        c.config.CacheTTI,
			}
			merchantRepo = cache.NewCachingMerchantRepository(merchantRepo, cacheCfg)
			entityRepo = cache.NewCachingEntityRepository(entityRepo, cacheCfg)
			hashRepo = cache.NewCachingHashRepository(hashRepo, cacheCfg)
		}

		c.merchantRepo = merchantRepo
		c.entityRepo = entityRepo
		c.hashRepo = hashRepo
		c.lockerRepo = vaultRepository.NewPostgreSQLLockerRepository(db)
		c.vaultRepo = vaultRepository.NewPostgreSQLVaultRepository(db)
		c.fingerprintRepo = vaultRepository.NewPostgreSQLFingerprintRepository(db)
		c.testRepo = vaultRepository.NewPostgreSQLTestRepository(db)
	})

	return nil
}

// initUseCases builds the data plane use cases.
func (c *Container) initUseCases() error {
	if err := c.initRepositories(); err != nil {
		return err
	}

	c.useCaseInit.Do(func() {
		c.dataUseCase = vaultUseCase.NewDataUseCase(
			c.txManager,
			c.lockerRepo,
			c.hashRepo,
			c.fingerprintRepo,
			c.Logger(),
		)
		c.vaultV2UseCase = vaultUseCase.NewVaultV2UseCase(c.vaultRepo, c.Logger())
	})

	return nil
}

// Registry returns the tenant registry with all configured tenants
// registered. In secrets manager mode every tenant starts unlocked; in
// custodian mode tenants wait for their shares.
func (c *Container) Registry(ctx context.Context) (*tenant.Registry, error) {
	var err error
	c.registryInit.Do(func() {
		err = c.initRegistry(ctx)
	})
	if err != nil {
		c.initErrors["registry"] = err
	}
	if storedErr := c.initErrors["registry"]; storedErr != nil {
		return nil, storedErr
	}
	return c.registry, nil
}

// HTTPServer returns the API server with all routes wired.
func (c *Container) HTTPServer(ctx context.Context) (*lockerHTTP.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		err = c.initHTTPServer(ctx)
	})
	if err != nil {
		c.initErrors["httpServer"] = err
	}
	if storedErr := c.initErrors["httpServer"]; storedErr != nil {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// initHTTPServer wires handlers, middleware and routes.
func (c *Container) initHTTPServer(ctx context.Context) error {
	if err := c.initUseCases(); err != nil {
		return err
	}

	registry, err := c.Registry(ctx)
	if err != nil {
		return err
	}

	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return err
	}

	logger := c.Logger()
	server := lockerHTTP.NewServer(c.config.ServerHost, c.config.ServerPort, logger)
	server.SetupRouter(
		c.config,
		registry,
		vaultHTTP.NewDataHandler(c.dataUseCase, logger),
		vaultHTTP.NewVaultV2Handler(c.vaultV2UseCase, logger),
		lockerHTTP.NewCustodianHandler(registry, logger),
		lockerHTTP.NewHealthHandler(c.testRepo, registry, logger),
		metricsProvider,
	)

	c.httpServer = server
	return nil
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*lockerHTTP.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil || provider == nil {
		return nil, err
	}
	return lockerHTTP.NewMetricsServer(
		c.config.MetricsHost,
		c.config.MetricsPort,
		provider,
		c.Logger(),
	), nil
}

// Shutdown closes all held resources.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("container shutdown: %v", errs)
	}
	return nil
}
