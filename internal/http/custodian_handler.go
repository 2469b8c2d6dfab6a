package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cardvault/locker/internal/httputil"
	"github.com/cardvault/locker/internal/tenant"
	customValidation "github.com/cardvault/locker/internal/validation"
	"github.com/cardvault/locker/internal/vault/http/dto"
)

// CustodianHandler serves the master-key unlock flow: two key-share
// submissions followed by a decrypt. The tenant only needs to be known here,
// not unlocked.
type CustodianHandler struct {
	registry *tenant.Registry
	logger   *slog.Logger
}

// NewCustodianHandler creates the custodian handler.
func NewCustodianHandler(registry *tenant.Registry, logger *slog.Logger) *CustodianHandler {
	return &CustodianHandler{registry: registry, logger: logger}
}

// bindShare extracts and validates the share payload and resolves the
// tenant's custodian.
func (h *CustodianHandler) bindShare(c *gin.Context) (string, bool) {
	var request dto.CustodianKeyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return "", false
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return "", false
	}
	return request.Key, true
}

// Key1Handler stores the first custodian share. POST /custodian/key1
func (h *CustodianHandler) Key1Handler(c *gin.Context) {
	share, ok := h.bindShare(c)
	if !ok {
		return
	}

	keeper, err := h.registry.Custodian(c.GetHeader(tenant.HeaderTenantID))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	if err := keeper.SubmitKey1(share); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Info("received custodian key1")
	c.JSON(http.StatusOK, dto.CustodianResponse{Message: "Received Key1"})
}

// Key2Handler stores the second custodian share. POST /custodian/key2
func (h *CustodianHandler) Key2Handler(c *gin.Context) {
	share, ok := h.bindShare(c)
	if !ok {
		return
	}

	keeper, err := h.registry.Custodian(c.GetHeader(tenant.HeaderTenantID))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	if err := keeper.SubmitKey2(share); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Info("received custodian key2")
	c.JSON(http.StatusOK, dto.CustodianResponse{Message: "Received Key2"})
}

// DecryptHandler unwraps the master key from the submitted shares and
// activates the tenant. POST /custodian/decrypt
func (h *CustodianHandler) DecryptHandler(c *gin.Context) {
	tenantID := c.GetHeader(tenant.HeaderTenantID)

	if err := h.registry.Unlock(c.Request.Context(), tenantID); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Info("custodian unlock successful", slog.String("tenant_id", tenantID))
	c.JSON(http.StatusOK, dto.CustodianResponse{Message: "Decryption successful"})
}
