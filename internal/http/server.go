package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cardvault/locker/internal/config"
	"github.com/cardvault/locker/internal/metrics"
	"github.com/cardvault/locker/internal/tenant"
	vaultHTTP "github.com/cardvault/locker/internal/vault/http"
)

// Server is the API server.
type Server struct {
	server *http.Server
	logger *slog.Logger
	router *gin.Engine
}

// NewServer creates the API server; SetupRouter must run before Start.
func NewServer(host string, port int, logger *slog.Logger) *Server {
	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter wires all routes and middleware.
//
// Data paths run behind the tenant middleware (and the JOSE envelope when
// enabled); /cards/* aliases /data/*; custodian routes only require a known
// tenant id; health routes are open.
func (s *Server) SetupRouter(
	cfg *config.Config,
	registry *tenant.Registry,
	dataHandler *vaultHTTP.DataHandler,
	vaultV2Handler *vaultHTTP.VaultV2Handler,
	custodianHandler *CustodianHandler,
	healthHandler *HealthHandler,
	metricsProvider *metrics.Provider,
) {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(LoggerMiddleware(s.logger))

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	// Health endpoints stay outside tenant resolution.
	health := router.Group("/health")
	{
		health.GET("/", healthHandler.LivenessHandler)
		health.GET("/diagnostics", healthHandler.DiagnosticsHandler)
	}

	// Custodian unlock flow: the tenant must be known, nothing more.
	custodianRoutes := router.Group("/custodian")
	{
		custodianRoutes.POST("/key1", custodianHandler.Key1Handler)
		custodianRoutes.POST("/key2", custodianHandler.Key2Handler)
		custodianRoutes.POST("/decrypt", custodianHandler.DecryptHandler)
	}

	tenantMiddleware := TenantMiddleware(registry, s.logger)

	dataMiddleware := []gin.HandlerFunc{tenantMiddleware}
	if cfg.RateLimitEnabled {
		dataMiddleware = append(
			dataMiddleware,
			RateLimitMiddleware(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger),
		)
	}
	if cfg.MiddlewareEnabled {
		dataMiddleware = append(dataMiddleware, JOSEMiddleware(s.logger))
	}

	// v1 customer-scoped endpoints, with the /cards alias.
	for _, prefix := range []string{"/data", "/cards"} {
		group := router.Group(prefix, dataMiddleware...)
		{
			group.POST("/add", dataHandler.AddHandler)
			group.POST("/retrieve", dataHandler.RetrieveHandler)
			group.POST("/delete", dataHandler.DeleteHandler)
			group.POST("/fingerprint", dataHandler.FingerprintHandler)
		}
	}

	// Key migration, external mode only.
	keyGroup := router.Group("/key", dataMiddleware...)
	{
		keyGroup.POST("/transfer", dataHandler.TransferKeysHandler)
	}

	// v2 entity-scoped endpoints.
	v2 := router.Group("/api/v2/vault", dataMiddleware...)
	{
		v2.POST("/add", vaultV2Handler.AddHandler)
		v2.POST("/retrieve", vaultV2Handler.RetrieveHandler)
		v2.POST("/delete", vaultV2Handler.DeleteHandler)
		v2.POST("/fingerprint", dataHandler.FingerprintHandler)
	}

	s.router = router
}

// GetHandler returns the router for tests. Nil before SetupRouter.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start begins serving. Blocks until shutdown or listener failure.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not initialized - call SetupRouter first")
	}

	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
