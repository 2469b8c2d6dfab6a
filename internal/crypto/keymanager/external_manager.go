package keymanager

import (
	"context"
	"encoding/base64"

	"github.com/cardvault/locker/internal/apiclient"
	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/errors"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// ExternalKeyManager delegates DEK custody to a remote key manager service.
// Only the returned key identifier is persisted; payload bytes travel to the
// remote encrypt/decrypt endpoints under master-key-derived credentials.
type ExternalKeyManager struct {
	tenantID   string
	masterKey  cryptoDomain.Secret
	baseURL    string
	client     *apiclient.Client
	entityRepo EntityRepository
}

// NewExternalKeyManager creates the external provider for one tenant.
func NewExternalKeyManager(
	tenantID string,
	masterKey cryptoDomain.Secret,
	baseURL string,
	client *apiclient.Client,
	entityRepo EntityRepository,
) *ExternalKeyManager {
	return &ExternalKeyManager{
		tenantID:   tenantID,
		masterKey:  masterKey,
		baseURL:    baseURL,
		client:     client,
		entityRepo: entityRepo,
	}
}

// FindByEntityID resolves an existing entity's operations. Missing entities
// surface ErrEntityNotFound.
func (m *ExternalKeyManager) FindByEntityID(
	ctx context.Context,
	entityID string,
) (CryptoOperations, error) {
	entity, err := m.entityRepo.FindByEntityID(ctx, m.tenantID, entityID)
	if err != nil {
		return nil, err
	}

	return m.operationsFor(entity), nil
}

// FindOrCreateEntity resolves the entity's operations, asking the key manager
// to mint a key and persisting the returned identifier on first use.
func (m *ExternalKeyManager) FindOrCreateEntity(
	ctx context.Context,
	entityID string,
) (CryptoOperations, error) {
	entity, err := m.entityRepo.FindByEntityID(ctx, m.tenantID, entityID)
	if err == nil {
		return m.operationsFor(entity), nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	var response DataKeyCreateResponse
	if err := m.call(ctx, "/key/create", NewDataKeyCreateRequest(), &response); err != nil {
		return nil, err
	}

	entity, err = m.entityRepo.InsertOrGet(ctx, &vaultDomain.Entity{
		TenantID: m.tenantID,
		EntityID: entityID,
		EncKeyID: response.KeyIdentifier,
	})
	if err != nil {
		return nil, err
	}

	return m.operationsFor(entity), nil
}

// TransferKey migrates one legacy DEK to the key manager and persists the
// returned identifier for the entity.
func (m *ExternalKeyManager) TransferKey(
	ctx context.Context,
	entityID string,
	dek cryptoDomain.Secret,
) (*vaultDomain.Entity, error) {
	var response DataKeyCreateResponse
	if err := m.call(ctx, "/key/transfer", NewDataKeyTransferRequest(dek), &response); err != nil {
		return nil, err
	}

	return m.entityRepo.InsertOrGet(ctx, &vaultDomain.Entity{
		TenantID: m.tenantID,
		EntityID: entityID,
		EncKeyID: response.KeyIdentifier,
	})
}

// HealthCheck probes the key manager's /health endpoint.
func (m *ExternalKeyManager) HealthCheck(ctx context.Context) error {
	err := m.client.Get(ctx, joinURL(m.baseURL, "/health"), AuthHeaders(m.tenantID, m.masterKey), nil)
	if err != nil {
		return errors.Wrap(ErrKeyManager, err.Error())
	}
	return nil
}

// call POSTs to the key manager and collapses client failures into the single
// key manager error class, keeping the unauthorized kind visible.
func (m *ExternalKeyManager) call(ctx context.Context, path string, body, result any) error {
	err := m.client.Post(ctx, joinURL(m.baseURL, path), AuthHeaders(m.tenantID, m.masterKey), body, result)
	if err == nil {
		return nil
	}
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return ErrKeyManagerUnauthorized
	}
	return errors.Wrap(ErrKeyManager, err.Error())
}

// operationsFor binds the entity's key identifier to the remote operations.
func (m *ExternalKeyManager) operationsFor(entity *vaultDomain.Entity) CryptoOperations {
	return &ExternalCryptoOperations{manager: m, keyIdentifier: entity.EncKeyID}
}

// ExternalCryptoOperations delegates payload encryption to the remote key
// manager. It never holds DEK bytes.
type ExternalCryptoOperations struct {
	manager       *ExternalKeyManager
	keyIdentifier string
}

// Encrypt sends base64 plaintext to /data/encrypt and stores the returned
// opaque ciphertext string bytes.
func (o *ExternalCryptoOperations) Encrypt(
	ctx context.Context,
	plaintext cryptoDomain.Secret,
) (cryptoDomain.Secret, error) {
	request := DataEncryptRequest{
		Identifier: NewEntityIdentifier(o.keyIdentifier),
		Data:       base64.StdEncoding.EncodeToString(plaintext.Expose()),
	}

	var response DataEncryptResponse
	if err := o.manager.call(ctx, "/data/encrypt", request, &response); err != nil {
		return cryptoDomain.Secret{}, err
	}

	return cryptoDomain.NewSecret([]byte(response.Data)), nil
}

// Decrypt sends the stored ciphertext to /data/decrypt and decodes the base64
// plaintext response.
func (o *ExternalCryptoOperations) Decrypt(
	ctx context.Context,
	ciphertext cryptoDomain.Secret,
) (cryptoDomain.Secret, error) {
	request := DataDecryptRequest{
		Identifier: NewEntityIdentifier(o.keyIdentifier),
		Data:       EncodeCiphertext(ciphertext.Expose()),
	}

	var response DataDecryptResponse
	if err := o.manager.call(ctx, "/data/decrypt", request, &response); err != nil {
		return cryptoDomain.Secret{}, err
	}

	return DecodePlaintext(response.Data)
}
