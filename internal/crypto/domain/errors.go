// Package domain defines core cryptographic domain models for the vault.
// Payload bytes are sealed under per-merchant DEKs; DEKs are wrapped by a
// tenant master key (internal mode) or held by a remote key manager
// (external mode).
package domain

import (
	"github.com/cardvault/locker/internal/errors"
)

// Cryptographic operation errors. Encryption and decryption failures are
// deliberately opaque: callers never learn whether the key was wrong, the
// ciphertext was tampered with, or the input was truncated.
var (
	// ErrInvalidKeySize indicates the cryptographic key size is invalid (must be 32 bytes).
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrEncryptionFailed indicates an encryption operation failed.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed indicates a decryption operation failed.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidIterationCount indicates an HMAC iteration count below 1.
	ErrInvalidIterationCount = errors.Wrap(errors.ErrInvalidInput, "iteration count must be at least 1")

	// ErrRequestMiddleware indicates the JWE+JWS request envelope could not be opened.
	ErrRequestMiddleware = errors.Wrap(errors.ErrInvalidInput, "request middleware failed")

	// ErrResponseMiddleware indicates the JWE+JWS response envelope could not be built.
	ErrResponseMiddleware = errors.New("response middleware failed")

	// ErrFetchSecretFailed indicates the secrets manager could not return a secret.
	ErrFetchSecretFailed = errors.New("failed to fetch secret")

	// ErrMasterKeyValidationFailed indicates the unlocked master key did not
	// decrypt the configured known plaintext.
	ErrMasterKeyValidationFailed = errors.Wrap(errors.ErrInvalidInput, "master key validation failed")
)
