package dto

import (
	"encoding/json"

	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// StatusOk is the only success status on the data plane.
const StatusOk = "Ok"

// DedupPayload carries the fingerprint block on Add responses when the tenant
// opted into dedup.
type DedupPayload struct {
	CardFingerprint *string `json:"card_fingerprint,omitempty"`
}

// StoreCardPayload is the Add response payload.
type StoreCardPayload struct {
	CardReference    string                        `json:"card_reference"`
	DuplicationCheck *vaultDomain.DuplicationCheck `json:"duplication_check"`
	Dedup            *DedupPayload                 `json:"dedup,omitempty"`
}

// StoreCardResponse is the v1 Add response.
type StoreCardResponse struct {
	Status  string            `json:"status"`
	Payload *StoreCardPayload `json:"payload"`
}

// RetrieveCardPayload carries the stored payload back to the caller.
type RetrieveCardPayload struct {
	Card        *vaultDomain.Card `json:"card,omitempty"`
	EncCardData string            `json:"enc_card_data,omitempty"`
}

// RetrieveCardResponse is the v1 Retrieve response.
type RetrieveCardResponse struct {
	Status  string               `json:"status"`
	Payload *RetrieveCardPayload `json:"payload"`
}

// DeleteCardResponse is the v1 Delete response.
type DeleteCardResponse struct {
	Status string `json:"status"`
}

// FingerprintResponse is the fingerprint response.
type FingerprintResponse struct {
	FingerprintID string `json:"fingerprint_id"`
}

// StoreDataResponse is the v2 Add response.
type StoreDataResponse struct {
	EntityID string `json:"entity_id"`
	VaultID  string `json:"vault_id"`
}

// RetrieveDataResponse is the v2 Retrieve response.
type RetrieveDataResponse struct {
	Data json.RawMessage `json:"data"`
}

// DeleteDataResponse is the v2 Delete response.
type DeleteDataResponse struct {
	EntityID string `json:"entity_id"`
	VaultID  string `json:"vault_id"`
}

// CustodianResponse acknowledges custodian operations.
type CustodianResponse struct {
	Message string `json:"message"`
}

// TransferKeysResponse reports one migration batch.
type TransferKeysResponse struct {
	TotalTransferred int `json:"total_transferred"`
}

// HealthResponse is the liveness body.
type HealthResponse struct {
	Message string `json:"message"`
}

// HealthState reports one diagnostics probe.
type HealthState string

// Diagnostics probe outcomes.
const (
	HealthWorking  HealthState = "Working"
	HealthFailing  HealthState = "Failing"
	HealthDisabled HealthState = "Disabled"
)

// DatabaseHealth reports the DB round-trip stages.
type DatabaseHealth struct {
	DatabaseConnection HealthState `json:"database_connection"`
	DatabaseRead       HealthState `json:"database_read"`
	DatabaseWrite      HealthState `json:"database_write"`
	DatabaseDelete     HealthState `json:"database_delete"`
}

// DiagnosticsResponse is the /health/diagnostics body.
type DiagnosticsResponse struct {
	KeyCustodianLocked bool           `json:"key_custodian_locked"`
	Database           DatabaseHealth `json:"database"`
	KeyManagerStatus   HealthState    `json:"keymanager_status"`
}
