package keymanager

import (
	"context"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// InternalKeyManager wraps per-merchant DEKs under the tenant master key and
// keeps them in the merchant table. The unwrapped DEK only ever lives in
// memory, inside the returned CryptoOperations.
type InternalKeyManager struct {
	tenantID     string
	masterCipher cryptoService.Cipher
	merchantRepo MerchantRepository
}

// NewInternalKeyManager creates the internal provider for one tenant. The
// master cipher must already be unlocked.
func NewInternalKeyManager(
	tenantID string,
	masterCipher cryptoService.Cipher,
	merchantRepo MerchantRepository,
) *InternalKeyManager {
	return &InternalKeyManager{
		tenantID:     tenantID,
		masterCipher: masterCipher,
		merchantRepo: merchantRepo,
	}
}

// FindByEntityID unwraps the merchant's DEK and returns local crypto
// operations. Missing merchants surface ErrMerchantNotFound.
func (m *InternalKeyManager) FindByEntityID(
	ctx context.Context,
	entityID string,
) (CryptoOperations, error) {
	merchant, err := m.merchantRepo.FindByMerchantID(ctx, m.tenantID, entityID)
	if err != nil {
		return nil, err
	}

	return m.operationsFor(merchant)
}

// FindOrCreateEntity returns the merchant's operations, generating and
// wrapping a fresh 32-byte DEK on first use. A concurrent first use is safe:
// the insert-or-get keeps whichever row won and that DEK is the one unwrapped.
func (m *InternalKeyManager) FindOrCreateEntity(
	ctx context.Context,
	entityID string,
) (CryptoOperations, error) {
	merchant, err := m.merchantRepo.FindByMerchantID(ctx, m.tenantID, entityID)
	if err == nil {
		return m.operationsFor(merchant)
	}
	if !isNotFound(err) {
		return nil, err
	}

	dek, err := cryptoService.GenerateAES256Key()
	if err != nil {
		return nil, cryptoDomain.ErrEncryptionFailed
	}

	wrapped, err := m.masterCipher.Encrypt(cryptoDomain.NewSecret(dek))
	if err != nil {
		return nil, err
	}

	merchant, err = m.merchantRepo.InsertOrGet(ctx, &vaultDomain.Merchant{
		TenantID:   m.tenantID,
		MerchantID: entityID,
		EncKey:     wrapped,
	})
	if err != nil {
		return nil, err
	}

	return m.operationsFor(merchant)
}

// operationsFor unwraps the stored DEK and builds the local cipher.
func (m *InternalKeyManager) operationsFor(
	merchant *vaultDomain.Merchant,
) (CryptoOperations, error) {
	dek, err := m.masterCipher.Decrypt(merchant.EncKey)
	if err != nil {
		return nil, err
	}

	cipher, err := cryptoService.NewGCMAes256(dek.Expose())
	if err != nil {
		return nil, err
	}

	return &InternalCryptoOperations{cipher: cipher}, nil
}

// InternalCryptoOperations performs payload encryption locally with the
// unwrapped DEK.
type InternalCryptoOperations struct {
	cipher cryptoService.Cipher
}

// Encrypt seals the payload with the merchant DEK.
func (o *InternalCryptoOperations) Encrypt(
	_ context.Context,
	plaintext cryptoDomain.Secret,
) (cryptoDomain.Secret, error) {
	return o.cipher.Encrypt(plaintext)
}

// Decrypt opens the payload with the merchant DEK.
func (o *InternalCryptoOperations) Decrypt(
	_ context.Context,
	ciphertext cryptoDomain.Secret,
) (cryptoDomain.Secret, error) {
	return o.cipher.Decrypt(ciphertext)
}
