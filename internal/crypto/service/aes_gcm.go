package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"sync"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
)

const (
	keySize   = 32
	nonceSize = 12
)

// nonceSequence yields 96-bit nonces from a counter seeded with CSPRNG bytes.
// Each DEK is expected to seal far fewer than 2^96 messages, so the counter
// wraps on overflow without reuse in practice.
type nonceSequence struct {
	mu  sync.Mutex
	hi  uint32
	lo  uint64
}

func newNonceSequence() (*nonceSequence, error) {
	var seed [nonceSize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	return &nonceSequence{
		hi: binary.BigEndian.Uint32(seed[:4]),
		lo: binary.BigEndian.Uint64(seed[4:]),
	}, nil
}

// advance returns the current nonce and increments the counter, wrapping on
// overflow.
func (n *nonceSequence) advance() [nonceSize]byte {
	n.mu.Lock()
	defer n.mu.Unlock()

	var nonce [nonceSize]byte
	binary.BigEndian.PutUint32(nonce[:4], n.hi)
	binary.BigEndian.PutUint64(nonce[4:], n.lo)

	n.lo++
	if n.lo == 0 {
		n.hi++
	}

	return nonce
}

// GCMAes256 implements Cipher using AES-256-GCM.
//
// Encrypt emits NONCE||CIPHERTEXT||TAG; Decrypt expects the same framing.
type GCMAes256 struct {
	aead  cipher.AEAD
	nonce *nonceSequence
}

// NewGCMAes256 creates an AES-256-GCM cipher over the given 32-byte key.
func NewGCMAes256(key []byte) (*GCMAes256, error) {
	if len(key) != keySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cryptoDomain.ErrEncryptionFailed
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cryptoDomain.ErrEncryptionFailed
	}

	nonce, err := newNonceSequence()
	if err != nil {
		return nil, cryptoDomain.ErrEncryptionFailed
	}

	return &GCMAes256{aead: aead, nonce: nonce}, nil
}

// Encrypt seals the plaintext and returns NONCE||CIPHERTEXT||TAG.
func (g *GCMAes256) Encrypt(plaintext cryptoDomain.Secret) (cryptoDomain.Secret, error) {
	nonce := g.nonce.advance()

	out := make([]byte, nonceSize, nonceSize+len(plaintext.Expose())+g.aead.Overhead())
	copy(out, nonce[:])
	out = g.aead.Seal(out, nonce[:], plaintext.Expose(), nil)

	return cryptoDomain.NewSecret(out), nil
}

// Decrypt opens NONCE||CIPHERTEXT||TAG and returns the plaintext. The error is
// opaque regardless of the failure cause.
func (g *GCMAes256) Decrypt(framed cryptoDomain.Secret) (cryptoDomain.Secret, error) {
	raw := framed.Expose()
	if len(raw) < nonceSize+g.aead.Overhead() {
		return cryptoDomain.Secret{}, cryptoDomain.ErrDecryptionFailed
	}

	plaintext, err := g.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return cryptoDomain.Secret{}, cryptoDomain.ErrDecryptionFailed
	}

	return cryptoDomain.NewSecret(plaintext), nil
}

// GenerateAES256Key draws a fresh 32-byte key from the CSPRNG.
func GenerateAES256Key() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
