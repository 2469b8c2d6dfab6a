// Package secrets resolves opaque configuration handles to plaintext secrets.
//
// The vault never parses the handle beyond what the selected provider needs:
// cloud KMS providers receive a base64 ciphertext to decrypt, HashiCorp Vault
// receives a "mount:path[:key]" KV2 locator, and the noop provider returns the
// handle unchanged for local development.
package secrets

import (
	"context"
	"encoding/base64"
	"strings"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	apperrors "github.com/cardvault/locker/internal/errors"

	// Register the KMS keeper drivers used by the cloud providers.
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/localsecrets"
)

// Manager fetches plaintext secrets given opaque handles. A fetch failure
// aborts startup; it is never surfaced as a runtime error.
type Manager interface {
	// GetSecret resolves a handle to the plaintext secret.
	GetSecret(ctx context.Context, handle cryptoDomain.Secret) (cryptoDomain.Secret, error)
}

// Keeper is the decrypt capability the cloud providers need; *secrets.Keeper
// implements it.
type Keeper interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// OpenKeeper opens a gocloud keeper for the given key URI
// (awskms://, gcpkms://, azurekeyvault://, base64key://).
func OpenKeeper(ctx context.Context, keyURI string) (Keeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, apperrors.Wrap(cryptoDomain.ErrFetchSecretFailed, "failed to open keeper")
	}
	return keeper, nil
}

// KMSManager implements Manager on top of a cloud KMS keeper. Handles are
// base64-encoded ciphertexts produced by the same key.
type KMSManager struct {
	keeper Keeper
}

// NewKMSManager creates a Manager backed by the given keeper.
func NewKMSManager(keeper Keeper) *KMSManager {
	return &KMSManager{keeper: keeper}
}

// GetSecret base64-decodes the handle and decrypts it through the keeper.
func (m *KMSManager) GetSecret(
	ctx context.Context,
	handle cryptoDomain.Secret,
) (cryptoDomain.Secret, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(handle.Expose()))
	if err != nil {
		return cryptoDomain.Secret{}, apperrors.Wrap(
			cryptoDomain.ErrFetchSecretFailed, "handle is not valid base64",
		)
	}

	plaintext, err := m.keeper.Decrypt(ctx, ciphertext)
	cryptoDomain.Zero(ciphertext)
	if err != nil {
		return cryptoDomain.Secret{}, apperrors.Wrap(
			cryptoDomain.ErrFetchSecretFailed, "keeper decrypt failed",
		)
	}

	return cryptoDomain.NewSecret(plaintext), nil
}

// Close releases the underlying keeper.
func (m *KMSManager) Close() error {
	return m.keeper.Close()
}

// KV2Reader is the read capability VaultKV2Manager needs from the HashiCorp
// Vault client.
type KV2Reader interface {
	ReadKV2(ctx context.Context, mount, path string) (map[string]any, error)
}

// VaultKV2Manager implements Manager against HashiCorp Vault KV version 2.
// Handles have the form "mount:path[:key]"; the key defaults to "value".
type VaultKV2Manager struct {
	reader KV2Reader
}

// NewVaultKV2Manager creates a Manager backed by the given KV2 reader.
func NewVaultKV2Manager(reader KV2Reader) *VaultKV2Manager {
	return &VaultKV2Manager{reader: reader}
}

// GetSecret reads the KV2 entry named by the handle and returns the selected
// field.
func (m *VaultKV2Manager) GetSecret(
	ctx context.Context,
	handle cryptoDomain.Secret,
) (cryptoDomain.Secret, error) {
	parts := strings.SplitN(string(handle.Expose()), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return cryptoDomain.Secret{}, apperrors.Wrap(
			cryptoDomain.ErrFetchSecretFailed, "handle must have the form mount:path[:key]",
		)
	}

	mount, path := parts[0], parts[1]
	field := "value"
	if len(parts) == 3 && parts[2] != "" {
		field = parts[2]
	}

	data, err := m.reader.ReadKV2(ctx, mount, path)
	if err != nil {
		return cryptoDomain.Secret{}, apperrors.Wrap(
			cryptoDomain.ErrFetchSecretFailed, "vault kv2 read failed",
		)
	}

	value, ok := data[field].(string)
	if !ok {
		return cryptoDomain.Secret{}, apperrors.Wrap(
			cryptoDomain.ErrFetchSecretFailed, "kv2 entry has no field "+field,
		)
	}

	return cryptoDomain.NewSecret([]byte(value)), nil
}

// NoOpManager implements Manager as the identity function. Local development
// only: the handle itself is the secret.
type NoOpManager struct{}

// NewNoOpManager creates the identity Manager.
func NewNoOpManager() *NoOpManager {
	return &NoOpManager{}
}

// GetSecret returns the handle unchanged.
func (m *NoOpManager) GetSecret(
	_ context.Context,
	handle cryptoDomain.Secret,
) (cryptoDomain.Secret, error) {
	return handle, nil
}
