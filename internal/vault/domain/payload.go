package domain

import (
	"bytes"
	"encoding/json"

	"github.com/cardvault/locker/internal/errors"
)

// Card carries raw cardholder data. Only the number is validated; the
// remaining fields are stored opaquely.
type Card struct {
	CardNumber   string  `json:"card_number"`
	NameOnCard   *string `json:"name_on_card,omitempty"`
	CardExpMonth *string `json:"card_exp_month,omitempty"`
	CardExpYear  *string `json:"card_exp_year,omitempty"`
	CardBrand    *string `json:"card_brand,omitempty"`
	CardISIN     *string `json:"card_isin,omitempty"`
	NickName     *string `json:"nick_name,omitempty"`
}

// DuplicationCheck reports the outcome of storing content that hashes to an
// existing row.
type DuplicationCheck string

const (
	// Duplicated means the stored payload is byte-equal to the request payload.
	Duplicated DuplicationCheck = "Duplicated"

	// MetaDataChanged means the content hash matched but the payloads differ
	// (e.g. a changed nickname on the same card).
	MetaDataChanged DuplicationCheck = "MetaDataChanged"
)

// Payload is the tagged request data: either raw cardholder data or an opaque
// pre-encrypted blob. Exactly one variant is set.
type Payload struct {
	Card        *Card  `json:"card,omitempty"`
	EncCardData string `json:"enc_card_data,omitempty"`
}

// IsCard reports whether the payload carries raw cardholder data.
func (p Payload) IsCard() bool {
	return p.Card != nil
}

// Canonicalize serializes the payload deterministically. The canonical bytes
// are what gets sealed under the DEK and what duplication compares against.
func (p Payload) Canonicalize() ([]byte, error) {
	out, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "failed to canonicalize payload")
	}
	return out, nil
}

// DedupKey serializes the content-dedup key: the card number for raw card
// payloads, the opaque blob for enc_card_data. Metadata (nickname, expiry,
// brand) stays out, so re-adding the same card with changed metadata collides
// on the same hash row and surfaces MetaDataChanged instead of a new locker.
func (p Payload) DedupKey() ([]byte, error) {
	key := p.EncCardData
	if p.Card != nil {
		key = p.Card.CardNumber
	}

	out, err := json.Marshal(key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "failed to serialize dedup key")
	}
	return out, nil
}

// PayloadFromCanonical parses canonical bytes back into a payload.
func PayloadFromCanonical(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, errors.Wrap(errors.ErrInvalidInput, "failed to parse stored payload")
	}
	return p, nil
}

// CompareForDuplication reports Duplicated when the stored canonical bytes
// equal the request's, MetaDataChanged otherwise.
func CompareForDuplication(stored, requested []byte) DuplicationCheck {
	if bytes.Equal(stored, requested) {
		return Duplicated
	}
	return MetaDataChanged
}
