package custodian

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
)

// fixture wraps a fresh 32-byte master key under a known unwrapping key and
// returns the custodian plus the two hex shares.
type fixture struct {
	custodian *Custodian
	share1    string
	share2    string
	masterKey []byte
}

func newFixture(t *testing.T, withValidation bool) fixture {
	t.Helper()

	unwrapKey, err := cryptoService.GenerateAES256Key()
	require.NoError(t, err)
	masterKey, err := cryptoService.GenerateAES256Key()
	require.NoError(t, err)

	wrapper, err := cryptoService.NewGCMAes256(unwrapKey)
	require.NoError(t, err)
	wrapped, err := wrapper.Encrypt(cryptoDomain.NewSecret(append([]byte(nil), masterKey...)))
	require.NoError(t, err)

	var validation []byte
	if withValidation {
		masterCipher, err := cryptoService.NewGCMAes256(masterKey)
		require.NoError(t, err)
		sealed, err := masterCipher.Encrypt(cryptoDomain.NewSecret([]byte(KeyValidationPlaintext)))
		require.NoError(t, err)
		validation = sealed.Expose()
	}

	encoded := hex.EncodeToString(unwrapKey)
	return fixture{
		custodian: New(wrapped.Expose(), validation),
		share1:    encoded[:32],
		share2:    encoded[32:],
		masterKey: masterKey,
	}
}

func TestCustodianUnlock(t *testing.T) {
	t.Run("correct shares unlock and the key matches", func(t *testing.T) {
		f := newFixture(t, true)

		assert.Equal(t, Locked, f.custodian.State())
		require.NoError(t, f.custodian.SubmitKey1(f.share1))
		assert.Equal(t, Locked, f.custodian.State())
		require.NoError(t, f.custodian.SubmitKey2(f.share2))
		assert.Equal(t, HalfCustodian, f.custodian.State())

		require.NoError(t, f.custodian.Decrypt())
		assert.Equal(t, Unlocked, f.custodian.State())

		key, err := f.custodian.MasterKey()
		require.NoError(t, err)
		assert.Equal(t, f.masterKey, key.Expose())
	})

	t.Run("wrong shares leave the tenant locked with shares cleared", func(t *testing.T) {
		f := newFixture(t, false)

		wrong := "00112233445566778899aabbccddeeff"
		require.NoError(t, f.custodian.SubmitKey1(wrong))
		require.NoError(t, f.custodian.SubmitKey2(f.share2))

		assert.ErrorIs(t, f.custodian.Decrypt(), ErrUnlockFailed)
		assert.Equal(t, Locked, f.custodian.State())

		// Shares were erased: another decrypt reports them missing.
		assert.ErrorIs(t, f.custodian.Decrypt(), ErrSharesMissing)

		// Submitting the correct pair still unlocks.
		require.NoError(t, f.custodian.SubmitKey1(f.share1))
		require.NoError(t, f.custodian.SubmitKey2(f.share2))
		require.NoError(t, f.custodian.Decrypt())
		assert.Equal(t, Unlocked, f.custodian.State())
	})

	t.Run("decrypt before both shares", func(t *testing.T) {
		f := newFixture(t, false)
		require.NoError(t, f.custodian.SubmitKey1(f.share1))
		assert.ErrorIs(t, f.custodian.Decrypt(), ErrSharesMissing)
	})

	t.Run("master key unavailable while locked", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.custodian.MasterKey()
		assert.ErrorIs(t, err, ErrNotUnlocked)
	})

	t.Run("validation ciphertext gates the unlock", func(t *testing.T) {
		f := newFixture(t, true)

		// Corrupt the validation blob so the known plaintext check fails.
		f.custodian.validation[0] ^= 0xff

		require.NoError(t, f.custodian.SubmitKey1(f.share1))
		require.NoError(t, f.custodian.SubmitKey2(f.share2))
		assert.ErrorIs(t, f.custodian.Decrypt(), cryptoDomain.ErrMasterKeyValidationFailed)
		assert.Equal(t, Locked, f.custodian.State())
	})
}

func TestSubmitShareValidation(t *testing.T) {
	f := newFixture(t, false)

	assert.ErrorIs(t, f.custodian.SubmitKey1("not-hex"), ErrInvalidShare)
	assert.ErrorIs(t, f.custodian.SubmitKey1("abcd"), ErrInvalidShare)

	// 16 decoded bytes exactly
	assert.NoError(t, f.custodian.SubmitKey1("00112233445566778899aabbccddeeff"))
}

func TestNewUnlocked(t *testing.T) {
	t.Run("accepts a valid key", func(t *testing.T) {
		key, err := cryptoService.GenerateAES256Key()
		require.NoError(t, err)

		c, err := NewUnlocked(cryptoDomain.NewSecret(key), nil)
		require.NoError(t, err)
		assert.Equal(t, Unlocked, c.State())
	})

	t.Run("rejects a short key", func(t *testing.T) {
		_, err := NewUnlocked(cryptoDomain.NewSecret([]byte("short")), nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrMasterKeyValidationFailed)
	})
}
