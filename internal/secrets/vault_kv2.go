package secrets

import (
	"context"

	vaultapi "github.com/hashicorp/vault/api"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	apperrors "github.com/cardvault/locker/internal/errors"
)

// VaultClient adapts the HashiCorp Vault API client to the KV2Reader interface.
type VaultClient struct {
	client *vaultapi.Client
}

// NewVaultClient connects to HashiCorp Vault at the given address with the
// given token.
func NewVaultClient(address, token string) (*VaultClient, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, apperrors.Wrap(cryptoDomain.ErrFetchSecretFailed, "failed to create vault client")
	}
	client.SetToken(token)

	return &VaultClient{client: client}, nil
}

// ReadKV2 reads a KV version 2 entry and returns its data map.
func (v *VaultClient) ReadKV2(ctx context.Context, mount, path string) (map[string]any, error) {
	secret, err := v.client.KVv2(mount).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, apperrors.ErrNotFound
	}
	return secret.Data, nil
}
