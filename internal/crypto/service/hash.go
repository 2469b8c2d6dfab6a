package service

import (
	"crypto/hmac"
	"crypto/sha512"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
)

// FingerprintHashIterations is the build-time HMAC iteration count used for
// card fingerprint derivation.
const FingerprintHashIterations = 1

// SHA512 implements Hasher with a single SHA-512 digest.
type SHA512 struct{}

// NewSHA512 creates a new SHA-512 hasher.
func NewSHA512() *SHA512 {
	return &SHA512{}
}

// Hash computes the SHA-512 digest of the input.
func (s *SHA512) Hash(input []byte) ([]byte, error) {
	digest := sha512.Sum512(input)
	return digest[:], nil
}

// HmacSHA512 implements Hasher with iterated HMAC-SHA-512 under a fixed key:
// H0 = HMAC(key, input); Hi = HMAC(key, Hi-1); the result is H(N-1).
type HmacSHA512 struct {
	key        cryptoDomain.Secret
	iterations int
}

// NewHmacSHA512 creates an iterated HMAC-SHA-512 hasher. The iteration count
// must be at least 1.
func NewHmacSHA512(key cryptoDomain.Secret, iterations int) (*HmacSHA512, error) {
	if iterations < 1 {
		return nil, cryptoDomain.ErrInvalidIterationCount
	}
	return &HmacSHA512{key: key, iterations: iterations}, nil
}

// Hash computes the iterated HMAC-SHA-512 of the input.
func (h *HmacSHA512) Hash(input []byte) ([]byte, error) {
	digest := input
	for i := 0; i < h.iterations; i++ {
		mac := hmac.New(sha512.New, h.key.Expose())
		mac.Write(digest)
		digest = mac.Sum(nil)
	}
	return digest, nil
}
