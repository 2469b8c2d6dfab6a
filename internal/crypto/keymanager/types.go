package keymanager

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/errors"
)

// dataIdentifierEntity tags every key manager identifier; the protocol only
// knows the Entity kind.
const dataIdentifierEntity = "Entity"

// Identifier names a key on the remote key manager.
type Identifier struct {
	DataIdentifier string `json:"data_identifier"`
	KeyIdentifier  string `json:"key_identifier"`
}

// NewEntityIdentifier builds an Entity identifier for the given key id.
func NewEntityIdentifier(keyIdentifier string) Identifier {
	return Identifier{
		DataIdentifier: dataIdentifierEntity,
		KeyIdentifier:  keyIdentifier,
	}
}

// DataKeyCreateRequest asks the key manager to mint a key under a fresh
// identifier.
type DataKeyCreateRequest struct {
	Identifier
}

// NewDataKeyCreateRequest generates a request with a fresh identifier.
func NewDataKeyCreateRequest() DataKeyCreateRequest {
	return DataKeyCreateRequest{Identifier: NewEntityIdentifier(uuid.New().String())}
}

// DataKeyCreateResponse is returned by both /key/create and /key/transfer.
type DataKeyCreateResponse struct {
	Identifier
	KeyVersion string `json:"key_version"`
}

// DataKeyTransferRequest migrates a legacy internal DEK to the key manager.
type DataKeyTransferRequest struct {
	Identifier
	Key string `json:"key"`
}

// NewDataKeyTransferRequest wraps a raw DEK for transfer under a fresh
// identifier.
func NewDataKeyTransferRequest(dek cryptoDomain.Secret) DataKeyTransferRequest {
	return DataKeyTransferRequest{
		Identifier: NewEntityIdentifier(uuid.New().String()),
		Key:        base64.StdEncoding.EncodeToString(dek.Expose()),
	}
}

// DataEncryptRequest carries base64 plaintext to /data/encrypt.
type DataEncryptRequest struct {
	Identifier
	Data string `json:"data"`
}

// DataEncryptResponse carries the opaque ciphertext string.
type DataEncryptResponse struct {
	Data string `json:"data"`
}

// DataDecryptRequest carries the opaque ciphertext string to /data/decrypt.
type DataDecryptRequest struct {
	Identifier
	Data string `json:"data"`
}

// DataDecryptResponse carries base64 plaintext.
type DataDecryptResponse struct {
	Data string `json:"data"`
}

// legacyCiphertextPrefix marks ciphertext bytes that are not valid UTF-8 and
// were therefore base64-encoded for the wire.
const legacyCiphertextPrefix = "v1:"

// EncodeCiphertext renders stored ciphertext bytes for the wire. Ciphertext
// produced by the key manager is an opaque UTF-8 string and passes through
// unchanged; anything else is prefixed with "v1:" and base64-encoded.
func EncodeCiphertext(ciphertext []byte) string {
	if utf8.Valid(ciphertext) {
		return string(ciphertext)
	}
	return legacyCiphertextPrefix + base64.StdEncoding.EncodeToString(ciphertext)
}

// DecodePlaintext decodes the base64 plaintext returned by /data/decrypt.
func DecodePlaintext(data string) (cryptoDomain.Secret, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return cryptoDomain.Secret{}, errors.Wrap(ErrKeyManager, "response plaintext is not valid base64")
	}
	return cryptoDomain.NewSecret(raw), nil
}

// AuthHeaders derives the key manager credentials from the tenant master key:
// Basic base64(hex(master[:n/2]) + ":" + hex(master[n/2:])), plus x-tenant-id.
func AuthHeaders(tenantID string, masterKey cryptoDomain.Secret) map[string]string {
	raw := masterKey.Expose()
	left, right := raw[:len(raw)/2], raw[len(raw)/2:]
	credentials := hex.EncodeToString(left) + ":" + hex.EncodeToString(right)

	return map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials)),
		"x-tenant-id":   tenantID,
	}
}

// isNotFound reports whether the error is any of the domain not-found kinds.
func isNotFound(err error) bool {
	return errors.Is(err, errors.ErrNotFound)
}

// joinURL appends a path to the key manager base URL.
func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}
