package keymanager

import (
	"context"
	"log/slog"

	cryptoService "github.com/cardvault/locker/internal/crypto/service"
)

// KeyMigrator streams legacy internal-wrapped DEKs to the external key
// manager and records the returned identifiers in the entity table. The
// operation is re-runnable: merchants that already have an entity row are
// skipped and partial progress is kept.
type KeyMigrator struct {
	tenantID     string
	masterCipher cryptoService.Cipher
	merchantRepo MerchantRepository
	external     *ExternalKeyManager
	logger       *slog.Logger
}

// NewKeyMigrator creates the migrator for one tenant.
func NewKeyMigrator(
	tenantID string,
	masterCipher cryptoService.Cipher,
	merchantRepo MerchantRepository,
	external *ExternalKeyManager,
	logger *slog.Logger,
) *KeyMigrator {
	return &KeyMigrator{
		tenantID:     tenantID,
		masterCipher: masterCipher,
		merchantRepo: merchantRepo,
		external:     external,
		logger:       logger,
	}
}

// TransferKeys migrates up to limit merchants and returns how many succeeded.
// Individual failures are logged and skipped; the next run picks them up.
func (k *KeyMigrator) TransferKeys(ctx context.Context, limit int64) (int, error) {
	merchants, err := k.merchantRepo.FindWithoutEntity(ctx, k.tenantID, limit)
	if err != nil {
		return 0, err
	}

	k.logger.Debug("starting key migration",
		slog.String("tenant_id", k.tenantID),
		slog.Int("candidates", len(merchants)),
	)

	migrated := 0
	for _, merchant := range merchants {
		dek, err := k.masterCipher.Decrypt(merchant.EncKey)
		if err != nil {
			k.logger.Error("failed to unwrap merchant key for migration",
				slog.String("merchant_id", merchant.MerchantID),
				slog.Any("error", err),
			)
			continue
		}

		if _, err := k.external.TransferKey(ctx, merchant.MerchantID, dek); err != nil {
			dek.Zero()
			k.logger.Error("failed to migrate merchant key",
				slog.String("merchant_id", merchant.MerchantID),
				slog.Any("error", err),
			)
			continue
		}

		dek.Zero()
		migrated++
	}

	return migrated, nil
}
