// Package dto defines the wire types of the data-plane API.
package dto

import (
	"encoding/json"
	"time"

	validation "github.com/jellydator/validation"

	customValidation "github.com/cardvault/locker/internal/validation"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// StoreCardRequest is the v1 Add request. Exactly one of card and
// enc_card_data must be present; raw card data takes priority. The ttl is
// relative seconds and becomes an absolute UTC expiry at storage time.
type StoreCardRequest struct {
	MerchantID             string            `json:"merchant_id"`
	MerchantCustomerID     string            `json:"merchant_customer_id"`
	RequestorCardReference string            `json:"requestor_card_reference,omitempty"`
	Card                   *vaultDomain.Card `json:"card,omitempty"`
	EncCardData            string            `json:"enc_card_data,omitempty"`
	TTL                    *int64            `json:"ttl,omitempty"`
}

// Validate checks identifiers, the payload variant, the card number and the TTL.
func (r StoreCardRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.MerchantID, customValidation.Identifier...),
		validation.Field(&r.MerchantCustomerID, customValidation.Identifier...),
		validation.Field(&r.RequestorCardReference, validation.Length(0, 255)),
	); err != nil {
		return err
	}

	if (r.Card == nil) == (r.EncCardData == "") {
		return validation.NewError(
			"validation_payload",
			"exactly one of card and enc_card_data must be provided",
		)
	}

	if r.Card != nil {
		if err := customValidation.CardNumber.Validate(r.Card.CardNumber); err != nil {
			return err
		}
	}

	if r.TTL != nil && *r.TTL <= 0 {
		return validation.NewError("validation_ttl", "ttl must be strictly in the future")
	}

	return nil
}

// Payload returns the tagged domain payload.
func (r StoreCardRequest) Payload() vaultDomain.Payload {
	if r.Card != nil {
		return vaultDomain.Payload{Card: r.Card}
	}
	return vaultDomain.Payload{EncCardData: r.EncCardData}
}

// ExpiryTime converts the relative ttl to an absolute UTC instant.
func (r StoreCardRequest) ExpiryTime(now time.Time) *time.Time {
	if r.TTL == nil {
		return nil
	}
	expiry := now.UTC().Add(time.Duration(*r.TTL) * time.Second)
	return &expiry
}

// RetrieveCardRequest is the v1 Retrieve request.
type RetrieveCardRequest struct {
	MerchantID         string `json:"merchant_id"`
	MerchantCustomerID string `json:"merchant_customer_id"`
	CardReference      string `json:"card_reference"`
}

// Validate checks the identifiers.
func (r RetrieveCardRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MerchantID, customValidation.Identifier...),
		validation.Field(&r.MerchantCustomerID, customValidation.Identifier...),
		validation.Field(&r.CardReference, customValidation.Identifier...),
	)
}

// DeleteCardRequest is the v1 Delete request.
type DeleteCardRequest struct {
	MerchantID         string `json:"merchant_id"`
	MerchantCustomerID string `json:"merchant_customer_id"`
	CardReference      string `json:"card_reference"`
}

// Validate checks the identifiers.
func (r DeleteCardRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MerchantID, customValidation.Identifier...),
		validation.Field(&r.MerchantCustomerID, customValidation.Identifier...),
		validation.Field(&r.CardReference, customValidation.Identifier...),
	)
}

// FingerprintRequest derives a card fingerprint under a caller-provided key.
type FingerprintRequest struct {
	Data string `json:"data"`
	Key  string `json:"key"`
}

// Validate checks both fields are present.
func (r FingerprintRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Data, validation.Required, customValidation.NotBlank),
		validation.Field(&r.Key, validation.Required, customValidation.NotBlank),
	)
}

// StoreDataRequest is the v2 Add request: an opaque JSON value stored under
// (entity_id, vault_id).
type StoreDataRequest struct {
	EntityID string          `json:"entity_id"`
	VaultID  string          `json:"vault_id,omitempty"`
	Data     json.RawMessage `json:"data"`
	TTL      *int64          `json:"ttl,omitempty"`
}

// Validate checks the identifiers, the data presence and the TTL.
func (r StoreDataRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.EntityID, customValidation.Identifier...),
		validation.Field(&r.VaultID, validation.Length(0, 255)),
	); err != nil {
		return err
	}

	if len(r.Data) == 0 {
		return validation.NewError("validation_data", "data must be provided")
	}

	if r.TTL != nil && *r.TTL <= 0 {
		return validation.NewError("validation_ttl", "ttl must be strictly in the future")
	}

	return nil
}

// ExpiryTime converts the relative ttl to an absolute UTC instant.
func (r StoreDataRequest) ExpiryTime(now time.Time) *time.Time {
	if r.TTL == nil {
		return nil
	}
	expiry := now.UTC().Add(time.Duration(*r.TTL) * time.Second)
	return &expiry
}

// RetrieveDataRequest is the v2 Retrieve request.
type RetrieveDataRequest struct {
	EntityID string `json:"entity_id"`
	VaultID  string `json:"vault_id"`
}

// Validate checks the identifiers.
func (r RetrieveDataRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EntityID, customValidation.Identifier...),
		validation.Field(&r.VaultID, customValidation.Identifier...),
	)
}

// DeleteDataRequest is the v2 Delete request.
type DeleteDataRequest struct {
	EntityID string `json:"entity_id"`
	VaultID  string `json:"vault_id"`
}

// Validate checks the identifiers.
func (r DeleteDataRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EntityID, customValidation.Identifier...),
		validation.Field(&r.VaultID, customValidation.Identifier...),
	)
}

// CustodianKeyRequest carries one hex-encoded custodian share.
type CustodianKeyRequest struct {
	Key string `json:"key"`
}

// Validate checks the share is present; the custodian enforces format.
func (r CustodianKeyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required, customValidation.NotBlank),
	)
}

// TransferKeysRequest bounds one key migration batch.
type TransferKeysRequest struct {
	Limit int64 `json:"limit"`
}

// Validate checks the limit is positive.
func (r TransferKeysRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Limit, validation.Required, validation.Min(int64(1))),
	)
}
