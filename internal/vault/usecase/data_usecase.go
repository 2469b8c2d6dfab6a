package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/crypto/keymanager"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
	"github.com/cardvault/locker/internal/database"
	apperrors "github.com/cardvault/locker/internal/errors"
	"github.com/cardvault/locker/internal/tenant"
	vaultDomain "github.com/cardvault/locker/internal/vault/domain"
)

// dataUseCase implements DataUseCase.
//
// Add follows the hash-dedup protocol: SHA-512 over the payload's dedup key,
// upsert the hash row, then either report duplication against the existing
// locker (comparing the full decrypted payload) or seal and insert a new one.
// The DEK manager is resolved per request through the tenant state, so every
// cryptographic step stays inside the caller's tenant.
type dataUseCase struct {
	txManager       database.TxManager
	lockerRepo      LockerRepository
	hashRepo        HashRepository
	fingerprintRepo FingerprintRepository
	sha512          cryptoService.Hasher
	logger          *slog.Logger
}

// NewDataUseCase creates the v1 data plane use case.
func NewDataUseCase(
	txManager database.TxManager,
	lockerRepo LockerRepository,
	hashRepo HashRepository,
	fingerprintRepo FingerprintRepository,
	logger *slog.Logger,
) DataUseCase {
	return &dataUseCase{
		txManager:       txManager,
		lockerRepo:      lockerRepo,
		hashRepo:        hashRepo,
		fingerprintRepo: fingerprintRepo,
		sha512:          cryptoService.NewSHA512(),
		logger:          logger,
	}
}

// AddCard stores a payload with hash-based dedup.
func (u *dataUseCase) AddCard(
	ctx context.Context,
	state *tenant.State,
	input AddCardInput,
) (*AddCardOutput, error) {
	canonical, err := input.Payload.Canonicalize()
	if err != nil {
		return nil, err
	}

	// The content hash covers the dedup key only (card number or opaque
	// blob); the full payload with its metadata is what gets sealed.
	dedupKey, err := input.Payload.DedupKey()
	if err != nil {
		return nil, err
	}

	dataHash, err := u.sha512.Hash(dedupKey)
	if err != nil {
		return nil, err
	}

	existingHash, err := u.hashRepo.FindByDataHash(ctx, dataHash)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	cryptoManager, err := state.KeyProvider.FindOrCreateEntity(ctx, input.MerchantID)
	if err != nil {
		return nil, err
	}

	output := &AddCardOutput{}

	switch {
	case existingHash != nil:
		stored, err := u.lockerRepo.FindByHashID(
			ctx, state.TenantID, input.MerchantID, input.CustomerID, existingHash.HashID,
		)
		if err != nil {
			return nil, err
		}

		if stored != nil {
			decrypted, err := cryptoManager.Decrypt(ctx, stored.EncData)
			if err != nil {
				return nil, err
			}
			check := vaultDomain.CompareForDuplication(decrypted.Expose(), canonical)
			decrypted.Zero()

			output.CardReference = stored.LockerID
			output.DuplicationCheck = &check
			break
		}

		locker, err := u.sealAndInsert(ctx, state, cryptoManager, input, canonical, existingHash.HashID)
		if err != nil {
			return nil, err
		}
		output.CardReference = locker.LockerID

	default:
		// The hash row and the locker row land atomically: a cancelled
		// request never leaves a dangling hash-only insert.
		err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
			hashRow, err := u.hashRepo.InsertHash(txCtx, dataHash)
			if err != nil {
				return err
			}

			locker, err := u.sealAndInsert(txCtx, state, cryptoManager, input, canonical, hashRow.HashID)
			if err != nil {
				return err
			}
			output.CardReference = locker.LockerID
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if state.DedupHasher != nil && input.Payload.IsCard() {
		fingerprint, err := u.fingerprintFor(ctx, state.DedupHasher, input.Payload.Card.CardNumber)
		if err != nil {
			// Dedup is advisory: the payload is already stored, so a failed
			// fingerprint must not fail the request.
			u.logger.Error("failed to derive dedup fingerprint", slog.Any("error", err))
		} else {
			output.Fingerprint = &fingerprint
		}
	}

	return output, nil
}

// sealAndInsert encrypts the canonical payload and inserts the locker row,
// honoring the caller-supplied reference when present.
func (u *dataUseCase) sealAndInsert(
	ctx context.Context,
	state *tenant.State,
	cryptoManager keymanager.CryptoOperations,
	input AddCardInput,
	canonical []byte,
	hashID string,
) (*vaultDomain.Locker, error) {
	sealed, err := cryptoManager.Encrypt(ctx, cryptoDomain.NewSecret(canonical))
	if err != nil {
		return nil, err
	}

	reference := input.RequestorReference
	if reference == "" {
		reference = uuid.New().String()
	}

	return u.lockerRepo.InsertOrGet(ctx, &vaultDomain.Locker{
		TenantID:   state.TenantID,
		MerchantID: input.MerchantID,
		CustomerID: input.CustomerID,
		LockerID:   reference,
		EncData:    sealed,
		HashID:     hashID,
		TTL:        input.TTL,
	})
}

// RetrieveCard loads and opens a stored payload. An expired TTL triggers a
// detached best-effort delete and reports not-found; eviction failure is
// logged, never surfaced.
func (u *dataUseCase) RetrieveCard(
	ctx context.Context,
	state *tenant.State,
	merchantID, customerID, reference string,
) (vaultDomain.Payload, error) {
	cryptoManager, err := state.KeyProvider.FindByEntityID(ctx, merchantID)
	if err != nil {
		return vaultDomain.Payload{}, err
	}

	locker, err := u.lockerRepo.FindByLockerID(ctx, state.TenantID, merchantID, customerID, reference)
	if err != nil {
		return vaultDomain.Payload{}, err
	}

	if locker.Expired(time.Now().UTC()) {
		u.evictLocker(state.TenantID, merchantID, customerID, reference)
		return vaultDomain.Payload{}, vaultDomain.ErrLockerNotFound
	}

	decrypted, err := cryptoManager.Decrypt(ctx, locker.EncData)
	if err != nil {
		return vaultDomain.Payload{}, err
	}

	return vaultDomain.PayloadFromCanonical(decrypted.Expose())
}

// evictLocker deletes an expired row on a detached goroutine so the response
// is never blocked on the eviction.
func (u *dataUseCase) evictLocker(tenantID, merchantID, customerID, reference string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := u.lockerRepo.DeleteFromLocker(ctx, tenantID, merchantID, customerID, reference); err != nil {
			u.logger.Error("failed to evict expired locker",
				slog.String("merchant_id", merchantID),
				slog.Any("error", err),
			)
		}
	}()
}

// DeleteCard removes the row after proving the merchant exists. The result is
// Ok whether or not a row was removed.
func (u *dataUseCase) DeleteCard(
	ctx context.Context,
	state *tenant.State,
	merchantID, customerID, reference string,
) error {
	if _, err := state.KeyProvider.FindByEntityID(ctx, merchantID); err != nil {
		return err
	}

	_, err := u.lockerRepo.DeleteFromLocker(ctx, state.TenantID, merchantID, customerID, reference)
	return err
}

// Fingerprint derives the stable opaque id of data under a caller-provided
// HMAC key. Identical inputs always yield the same id.
func (u *dataUseCase) Fingerprint(ctx context.Context, data, key string) (string, error) {
	hasher, err := cryptoService.NewHmacSHA512(
		cryptoDomain.NewSecret([]byte(key)),
		cryptoService.FingerprintHashIterations,
	)
	if err != nil {
		return "", err
	}

	return u.fingerprintFor(ctx, hasher, data)
}

// fingerprintFor hashes the data and resolves-or-creates its fingerprint row.
func (u *dataUseCase) fingerprintFor(
	ctx context.Context,
	hasher cryptoService.Hasher,
	data string,
) (string, error) {
	cardHash, err := hasher.Hash([]byte(data))
	if err != nil {
		return "", err
	}

	fingerprint, err := u.fingerprintRepo.InsertOrGet(ctx, cardHash)
	if err != nil {
		return "", err
	}

	return fingerprint.CardFingerprint, nil
}

// isNotFound reports whether err is a not-found domain error.
func isNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}
