// Package domain defines the stored entities and payload model of the vault
// data plane: customer-scoped lockers (v1), entity-scoped vault rows (v2),
// content hashes and card fingerprints.
package domain

import (
	"github.com/cardvault/locker/internal/errors"
)

var (
	// ErrInvalidCardNumber indicates the card number failed Luhn or length validation.
	ErrInvalidCardNumber = errors.Wrap(errors.ErrInvalidInput, "invalid card number")

	// ErrInvalidTTL indicates a TTL that is not strictly in the future.
	ErrInvalidTTL = errors.Wrap(errors.ErrInvalidInput, "invalid ttl")

	// ErrLockerNotFound indicates no locker row matches the requested reference.
	ErrLockerNotFound = errors.Wrap(errors.ErrNotFound, "locker not found")

	// ErrVaultNotFound indicates no vault row matches the requested reference.
	ErrVaultNotFound = errors.Wrap(errors.ErrNotFound, "vault entry not found")

	// ErrHashNotFound indicates no hash row matches the content hash.
	ErrHashNotFound = errors.Wrap(errors.ErrNotFound, "hash not found")

	// ErrMerchantNotFound indicates no merchant row exists for the tenant.
	ErrMerchantNotFound = errors.Wrap(errors.ErrNotFound, "merchant not found")

	// ErrEntityNotFound indicates no entity row exists for the tenant.
	ErrEntityNotFound = errors.Wrap(errors.ErrNotFound, "entity not found")

	// ErrFingerprintNotFound indicates no fingerprint row matches the card hash.
	ErrFingerprintNotFound = errors.Wrap(errors.ErrNotFound, "fingerprint not found")

	// Health self-test failures, ordered by the stage that failed.

	// ErrTestDBConnection indicates the round-trip could not open a transaction.
	ErrTestDBConnection = errors.New("database connection failed")

	// ErrTestDBRead indicates the round-trip could not read.
	ErrTestDBRead = errors.New("database read failed")

	// ErrTestDBWrite indicates the round-trip could not write.
	ErrTestDBWrite = errors.New("database write failed")

	// ErrTestDBDelete indicates the round-trip could not delete.
	ErrTestDBDelete = errors.New("database delete failed")
)
