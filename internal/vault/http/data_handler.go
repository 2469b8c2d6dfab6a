// Package http provides the HTTP handlers of the data plane: v1 customer-scoped
// card endpoints, v2 entity-scoped vault endpoints, fingerprinting and key
// migration. Handlers read the tenant state resolved by the tenant middleware
// and never touch storage outside it.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/cardvault/locker/internal/errors"
	"github.com/cardvault/locker/internal/httputil"
	"github.com/cardvault/locker/internal/tenant"
	customValidation "github.com/cardvault/locker/internal/validation"
	"github.com/cardvault/locker/internal/vault/http/dto"
	vaultUseCase "github.com/cardvault/locker/internal/vault/usecase"
)

// DataHandler handles the v1 customer-scoped data plane.
type DataHandler struct {
	dataUseCase vaultUseCase.DataUseCase
	logger      *slog.Logger
}

// NewDataHandler creates the v1 handler.
func NewDataHandler(dataUseCase vaultUseCase.DataUseCase, logger *slog.Logger) *DataHandler {
	return &DataHandler{dataUseCase: dataUseCase, logger: logger}
}

// resolveState pulls the tenant state placed by the tenant middleware.
func resolveState(c *gin.Context, logger *slog.Logger) (*tenant.State, bool) {
	state, ok := tenant.FromGin(c)
	if !ok {
		httputil.HandleErrorGin(c, tenant.ErrInvalidTenant, logger)
		return nil, false
	}
	return state, true
}

// AddHandler stores a payload. POST /data/add
func (h *DataHandler) AddHandler(c *gin.Context) {
	state, ok := resolveState(c, h.logger)
	if !ok {
		return
	}

	var request dto.StoreCardRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	output, err := h.dataUseCase.AddCard(c.Request.Context(), state, vaultUseCase.AddCardInput{
		MerchantID:         request.MerchantID,
		CustomerID:         request.MerchantCustomerID,
		RequestorReference: request.RequestorCardReference,
		Payload:            request.Payload(),
		TTL:                request.ExpiryTime(time.Now()),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	payload := &dto.StoreCardPayload{
		CardReference:    output.CardReference,
		DuplicationCheck: output.DuplicationCheck,
	}
	if output.Fingerprint != nil {
		payload.Dedup = &dto.DedupPayload{CardFingerprint: output.Fingerprint}
	}

	c.JSON(http.StatusOK, dto.StoreCardResponse{Status: dto.StatusOk, Payload: payload})
}

// RetrieveHandler returns a stored payload. POST /data/retrieve
func (h *DataHandler) RetrieveHandler(c *gin.Context) {
	state, ok := resolveState(c, h.logger)
	if !ok {
		return
	}

	var request dto.RetrieveCardRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	payload, err := h.dataUseCase.RetrieveCard(
		c.Request.Context(),
		state,
		request.MerchantID,
		request.MerchantCustomerID,
		request.CardReference,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.RetrieveCardResponse{
		Status: dto.StatusOk,
		Payload: &dto.RetrieveCardPayload{
			Card:        payload.Card,
			EncCardData: payload.EncCardData,
		},
	})
}

// DeleteHandler removes a stored payload. POST /data/delete
func (h *DataHandler) DeleteHandler(c *gin.Context) {
	state, ok := resolveState(c, h.logger)
	if !ok {
		return
	}

	var request dto.DeleteCardRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	err := h.dataUseCase.DeleteCard(
		c.Request.Context(),
		state,
		request.MerchantID,
		request.MerchantCustomerID,
		request.CardReference,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteCardResponse{Status: dto.StatusOk})
}

// FingerprintHandler derives a stable card fingerprint. POST /data/fingerprint
func (h *DataHandler) FingerprintHandler(c *gin.Context) {
	if _, ok := resolveState(c, h.logger); !ok {
		return
	}

	var request dto.FingerprintRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	fingerprint, err := h.dataUseCase.Fingerprint(c.Request.Context(), request.Data, request.Key)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.FingerprintResponse{FingerprintID: fingerprint})
}

// TransferKeysHandler migrates legacy internal DEKs to the external key
// manager. POST /key/transfer
func (h *DataHandler) TransferKeysHandler(c *gin.Context) {
	state, ok := resolveState(c, h.logger)
	if !ok {
		return
	}

	if state.Migrator == nil {
		httputil.HandleErrorGin(
			c,
			apperrors.Wrap(apperrors.ErrInvalidInput, "external key manager is not enabled"),
			h.logger,
		)
		return
	}

	var request dto.TransferKeysRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := request.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	migrated, err := state.Migrator.TransferKeys(c.Request.Context(), request.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.TransferKeysResponse{TotalTransferred: migrated})
}
