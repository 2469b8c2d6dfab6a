// Package service provides the cryptographic primitives used across the vault:
// AES-256-GCM payload encryption with the NONCE||CIPHERTEXT||TAG framing,
// SHA-512 content hashing and iterated HMAC-SHA-512 fingerprint derivation.
package service

import (
	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
)

// Cipher encrypts and decrypts byte vectors.
//
// Implementations frame the output as NONCE||CIPHERTEXT||TAG and must keep
// failures opaque: a decryption error never reveals whether the key was wrong,
// the data was tampered with, or the input was truncated.
//
// Implementation: GCMAes256
type Cipher interface {
	// Encrypt seals plaintext and returns NONCE||CIPHERTEXT||TAG.
	Encrypt(plaintext cryptoDomain.Secret) (cryptoDomain.Secret, error)

	// Decrypt opens NONCE||CIPHERTEXT||TAG and returns the plaintext.
	Decrypt(framed cryptoDomain.Secret) (cryptoDomain.Secret, error)
}

// Hasher digests a byte vector.
//
// Implementations: SHA512 (content dedup hashes), HmacSHA512 (card
// fingerprints under a caller-provided key).
type Hasher interface {
	Hash(input []byte) ([]byte, error)
}
