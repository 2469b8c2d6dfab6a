// Package custodian implements the per-tenant master-key unlock state machine.
//
// In custodian mode a tenant's master key only exists at rest as an
// AES-256-GCM-wrapped blob. Two custodians each hold a hex-encoded 16-byte
// share; once both shares arrive their concatenation is the 32-byte unwrapping
// key. A failed unwrap clears both shares and returns the tenant to Locked.
package custodian

import (
	"bytes"
	"encoding/hex"
	"sync"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
	"github.com/cardvault/locker/internal/errors"
)

// shareLength is the decoded byte length of one custodian share.
const shareLength = 16

// State is the unlock progress of one tenant.
type State int

const (
	// Locked: the master key exists only as a wrapped blob.
	Locked State = iota
	// HalfCustodian: both shares are present but the blob is not yet unwrapped.
	HalfCustodian
	// Unlocked: the master key is available in memory and validated.
	Unlocked
)

var (
	// ErrInvalidShare indicates a share that is not hex or not 16 bytes decoded.
	ErrInvalidShare = errors.Wrap(errors.ErrInvalidInput, "invalid custodian key share")

	// ErrSharesMissing indicates a decrypt attempt before both shares arrived.
	ErrSharesMissing = errors.Wrap(errors.ErrInvalidInput, "both custodian keys are not present")

	// ErrUnlockFailed indicates the shares did not unwrap the master key.
	ErrUnlockFailed = errors.Wrap(errors.ErrInvalidInput, "failed to decrypt master key")

	// ErrNotUnlocked indicates the master key was requested before unlock.
	ErrNotUnlocked = errors.Wrap(errors.ErrLocked, "tenant master key is locked")
)

// Custodian holds one tenant's unlock state. Share writes and the unwrap go
// through the writer lock; state reads take the reader lock.
type Custodian struct {
	mu sync.RWMutex

	state      State
	share1     string
	share2     string
	wrappedKey []byte
	validation []byte
	masterKey  cryptoDomain.Secret
}

// New creates a Locked custodian over the wrapped master-key blob. The
// optional validation ciphertext must decrypt to the fixed known plaintext
// before the tenant is declared unlocked.
func New(wrappedKey, validation []byte) *Custodian {
	return &Custodian{
		state:      Locked,
		wrappedKey: wrappedKey,
		validation: validation,
	}
}

// NewUnlocked creates a custodian that starts Unlocked with the given master
// key, for deployments where a secrets manager supplies the key at startup.
// The key is validated before acceptance.
func NewUnlocked(masterKey cryptoDomain.Secret, validation []byte) (*Custodian, error) {
	c := &Custodian{validation: validation}
	if err := c.validate(masterKey); err != nil {
		return nil, err
	}
	c.state = Unlocked
	c.masterKey = masterKey
	return c, nil
}

// State returns the current unlock state.
func (c *Custodian) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// MasterKey returns the unlocked master key, or ErrNotUnlocked.
func (c *Custodian) MasterKey() (cryptoDomain.Secret, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != Unlocked {
		return cryptoDomain.Secret{}, ErrNotUnlocked
	}
	return c.masterKey, nil
}

// SubmitKey1 stores the first custodian share.
func (c *Custodian) SubmitKey1(share string) error {
	return c.submit(share, func() { c.share1 = share })
}

// SubmitKey2 stores the second custodian share.
func (c *Custodian) SubmitKey2(share string) error {
	return c.submit(share, func() { c.share2 = share })
}

// submit validates the share and stores it under the writer lock, advancing to
// HalfCustodian once both distinct shares are present.
func (c *Custodian) submit(share string, store func()) error {
	decoded, err := hex.DecodeString(share)
	if err != nil || len(decoded) != shareLength {
		return ErrInvalidShare
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Unlocked {
		return nil
	}

	store()
	if c.share1 != "" && c.share2 != "" && c.share1 != c.share2 {
		c.state = HalfCustodian
	}

	return nil
}

// Decrypt concatenates the shares, hex-decodes them into the 32-byte
// unwrapping key and opens the wrapped master-key blob. On success the tenant
// becomes Unlocked; on any failure both shares are erased and the tenant
// returns to Locked.
func (c *Custodian) Decrypt() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Unlocked {
		return nil
	}

	if c.share1 == "" || c.share2 == "" {
		c.clearShares()
		return ErrSharesMissing
	}

	unwrapKey, err := hex.DecodeString(c.share1 + c.share2)
	if err != nil {
		c.clearShares()
		return ErrUnlockFailed
	}

	cipher, err := cryptoService.NewGCMAes256(unwrapKey)
	if err != nil {
		cryptoDomain.Zero(unwrapKey)
		c.clearShares()
		return ErrUnlockFailed
	}

	masterKey, err := cipher.Decrypt(cryptoDomain.NewSecret(c.wrappedKey))
	cryptoDomain.Zero(unwrapKey)
	if err != nil {
		c.clearShares()
		return ErrUnlockFailed
	}

	if err := c.validate(masterKey); err != nil {
		masterKey.Zero()
		c.clearShares()
		return err
	}

	c.masterKey = masterKey
	c.state = Unlocked
	c.clearShares()

	return nil
}

// clearShares erases both shares and drops back to Locked unless already
// unlocked.
func (c *Custodian) clearShares() {
	c.share1 = ""
	c.share2 = ""
	if c.state != Unlocked {
		c.state = Locked
	}
}

// validate checks the key length and, when a validation ciphertext is
// configured, that it decrypts to the known plaintext under the key.
func (c *Custodian) validate(masterKey cryptoDomain.Secret) error {
	if masterKey.Len() != 32 {
		return cryptoDomain.ErrMasterKeyValidationFailed
	}

	if len(c.validation) == 0 {
		return nil
	}

	cipher, err := cryptoService.NewGCMAes256(masterKey.Expose())
	if err != nil {
		return cryptoDomain.ErrMasterKeyValidationFailed
	}

	plaintext, err := cipher.Decrypt(cryptoDomain.NewSecret(c.validation))
	if err != nil {
		return cryptoDomain.ErrMasterKeyValidationFailed
	}
	if !bytes.Equal(plaintext.Expose(), []byte(KeyValidationPlaintext)) {
		plaintext.Zero()
		return cryptoDomain.ErrMasterKeyValidationFailed
	}
	plaintext.Zero()

	return nil
}

// KeyValidationPlaintext is what a tenant's validation ciphertext must decrypt
// to. The create-master-key command produces matching blobs.
const KeyValidationPlaintext = "locker master key validation"
