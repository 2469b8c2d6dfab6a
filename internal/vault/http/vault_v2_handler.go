package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cardvault/locker/internal/httputil"
	customValidation "github.com/cardvault/locker/internal/validation"
	"github.com/cardvault/locker/internal/vault/http/dto"
	vaultUseCase "github.com/cardvault/locker/internal/vault/usecase"
)

// VaultV2Handler handles the v2 entity-scoped data plane.
type VaultV2Handler struct {
	vaultUseCase vaultUseCase.VaultV2UseCase
	logger       *slog.Logger
}

// NewVaultV2Handler creates the v2 handler.
func NewVaultV2Handler(useCase vaultUseCase.VaultV2UseCase, logger *slog.Logger) *VaultV2Handler {
	return &VaultV2Handler{vaultUseCase: useCase, logger: logger}
}

// AddHandler stores an opaque JSON value. POST /api/v2/vault/add
func (h *VaultV2Handler) AddHandler(c *gin.Context) {
	state, ok := resolveState(c, h.logger)
	if !ok {
		return
	}

	var request dto.StoreDataRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	entry, err := h.vaultUseCase.AddData(c.Request.Context(), state, vaultUseCase.AddDataInput{
		EntityID: request.EntityID,
		VaultID:  request.VaultID,
		Data:     request.Data,
		TTL:      request.ExpiryTime(time.Now()),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.StoreDataResponse{
		EntityID: entry.EntityID,
		VaultID:  entry.VaultID,
	})
}

// RetrieveHandler returns a stored value. POST /api/v2/vault/retrieve
func (h *VaultV2Handler) RetrieveHandler(c *gin.Context) {
	state, ok := resolveState(c, h.logger)
	if !ok {
		return
	}

	var request dto.RetrieveDataRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	data, err := h.vaultUseCase.RetrieveData(
		c.Request.Context(), state, request.EntityID, request.VaultID,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.RetrieveDataResponse{Data: data})
}

// DeleteHandler removes a stored value. POST /api/v2/vault/delete
func (h *VaultV2Handler) DeleteHandler(c *gin.Context) {
	state, ok := resolveState(c, h.logger)
	if !ok {
		return
	}

	var request dto.DeleteDataRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	err := h.vaultUseCase.DeleteData(c.Request.Context(), state, request.EntityID, request.VaultID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteDataResponse{
		EntityID: request.EntityID,
		VaultID:  request.VaultID,
	})
}
