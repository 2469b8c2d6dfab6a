package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/cardvault/locker/internal/errors"
	"github.com/cardvault/locker/internal/httputil"
	"github.com/cardvault/locker/internal/tenant"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
	"github.com/cardvault/locker/internal/vault/http/dto"
	vaultUseCase "github.com/cardvault/locker/internal/vault/usecase"
)

// HealthHandler serves liveness and the diagnostics round-trip. Diagnostics
// are deduplicated through singleflight so probe storms cost one DB
// round-trip.
type HealthHandler struct {
	testRepo vaultUseCase.TestRepository
	registry *tenant.Registry
	logger   *slog.Logger
	group    singleflight.Group
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(
	testRepo vaultUseCase.TestRepository,
	registry *tenant.Registry,
	logger *slog.Logger,
) *HealthHandler {
	return &HealthHandler{testRepo: testRepo, registry: registry, logger: logger}
}

// LivenessHandler answers 200 while the process runs. GET /health/
func (h *HealthHandler) LivenessHandler(c *gin.Context) {
	h.logger.Debug("health was called")
	c.JSON(http.StatusOK, dto.HealthResponse{Message: "Health is good"})
}

// DiagnosticsHandler reports the DB round-trip stages, the custodian lock
// status and, for the caller's tenant, the key manager probe.
// GET /health/diagnostics
func (h *HealthHandler) DiagnosticsHandler(c *gin.Context) {
	tenantID := c.GetHeader(tenant.HeaderTenantID)

	value, _, _ := h.group.Do("diagnostics/"+tenantID, func() (any, error) {
		response := dto.DiagnosticsResponse{
			KeyCustodianLocked: h.registry.Locked(),
			Database:           h.databaseHealth(c),
			KeyManagerStatus:   dto.HealthDisabled,
		}

		if state, err := h.registry.State(tenantID); err == nil && state.External != nil {
			response.KeyManagerStatus = dto.HealthFailing
			if err := state.External.HealthCheck(c.Request.Context()); err == nil {
				response.KeyManagerStatus = dto.HealthWorking
			} else {
				h.logger.Error("key manager probe failed", slog.Any("error", err))
			}
		}

		return response, nil
	})

	response, ok := value.(dto.DiagnosticsResponse)
	if !ok {
		httputil.HandleErrorGin(c, apperrors.New("diagnostics produced no response"), h.logger)
		return
	}

	c.JSON(http.StatusOK, response)
}

// databaseHealth runs the transactional round-trip and maps the failing stage
// onto the probe states.
func (h *HealthHandler) databaseHealth(c *gin.Context) dto.DatabaseHealth {
	err := h.testRepo.Test(c.Request.Context())
	if err == nil {
		return dto.DatabaseHealth{
			DatabaseConnection: dto.HealthWorking,
			DatabaseRead:       dto.HealthWorking,
			DatabaseWrite:      dto.HealthWorking,
			DatabaseDelete:     dto.HealthWorking,
		}
	}

	h.logger.Error("database diagnostics failed", slog.Any("error", err))

	health := dto.DatabaseHealth{
		DatabaseConnection: dto.HealthFailing,
		DatabaseRead:       dto.HealthFailing,
		DatabaseWrite:      dto.HealthFailing,
		DatabaseDelete:     dto.HealthFailing,
	}

	switch {
	case apperrors.Is(err, vaultDomain.ErrTestDBRead):
		health.DatabaseConnection = dto.HealthWorking
	case apperrors.Is(err, vaultDomain.ErrTestDBWrite):
		health.DatabaseConnection = dto.HealthWorking
		health.DatabaseRead = dto.HealthWorking
	case apperrors.Is(err, vaultDomain.ErrTestDBDelete):
		health.DatabaseConnection = dto.HealthWorking
		health.DatabaseRead = dto.HealthWorking
		health.DatabaseWrite = dto.HealthWorking
	}

	return health
}
