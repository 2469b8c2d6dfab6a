package commands

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cardvault/locker/internal/custodian"
	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
)

// RunCreateMasterKey generates a fresh tenant master key together with the
// custodian material: the wrapped blob for the config, the two hex shares for
// the custodians, and the validation ciphertext.
//
// Output goes to stdout only; nothing is persisted. The operator is expected
// to hand each share to a different custodian and discard this terminal
// output afterwards.
func RunCreateMasterKey(tenantID string) error {
	if tenantID == "" {
		tenantID = "demo"
	}

	masterKey, err := cryptoService.GenerateAES256Key()
	if err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	defer cryptoDomain.Zero(masterKey)

	unwrapKey, err := cryptoService.GenerateAES256Key()
	if err != nil {
		return fmt.Errorf("failed to generate custodian key: %w", err)
	}
	defer cryptoDomain.Zero(unwrapKey)

	wrapper, err := cryptoService.NewGCMAes256(unwrapKey)
	if err != nil {
		return err
	}
	wrapped, err := wrapper.Encrypt(cryptoDomain.NewSecret(append([]byte(nil), masterKey...)))
	if err != nil {
		return err
	}

	masterCipher, err := cryptoService.NewGCMAes256(masterKey)
	if err != nil {
		return err
	}
	validation, err := masterCipher.Encrypt(
		cryptoDomain.NewSecret([]byte(custodian.KeyValidationPlaintext)),
	)
	if err != nil {
		return err
	}

	section := strings.ToUpper(strings.ReplaceAll(tenantID, "-", "_"))
	shares := hex.EncodeToString(unwrapKey)

	fmt.Println("# Add to the environment (or .env):")
	fmt.Printf(
		"LOCKER__TENANT__%s__MASTER_KEY=%q\n",
		section,
		base64.StdEncoding.EncodeToString(wrapped.Expose()),
	)
	fmt.Printf(
		"LOCKER__TENANT__%s__MASTER_KEY_VALIDATION=%q\n",
		section,
		base64.StdEncoding.EncodeToString(validation.Expose()),
	)
	fmt.Println()
	fmt.Println("# Hand one share to each custodian; do not store them together:")
	fmt.Printf("custodian key1: %s\n", shares[:32])
	fmt.Printf("custodian key2: %s\n", shares[32:])

	return nil
}
