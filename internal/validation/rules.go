// Package validation provides custom validation rules for the application.
package validation

import (
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/cardvault/locker/internal/errors"
)

// Card numbers outside this length range are rejected before the Luhn check.
// The upper bound follows the ISO/IEC 7812 maximum.
const (
	minCardNumberLength = 12
	maxCardNumberLength = 19
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// Luhn validates a complete number (including check digit) given as digits.
func Luhn(digits []uint8) bool {
	sum := 0
	length := len(digits)

	for i := 0; i < length; i++ {
		digit := int(digits[length-1-i])

		// Double every second digit from the right, folding overflow back
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
	}

	return sum%10 == 0
}

// LuhnOnString validates a card number string. Whitespace is stripped; any
// non-digit character fails; the digit count must be within 12..19.
func LuhnOnString(number string) (bool, error) {
	number = strings.Join(strings.Fields(number), "")

	digits := make([]uint8, 0, maxCardNumberLength+1)
	for _, c := range number {
		if c < '0' || c > '9' {
			return false, apperrors.Wrap(
				apperrors.ErrInvalidInput,
				"invalid character found in card number",
			)
		}
		digits = append(digits, uint8(c-'0'))
	}

	if len(digits) < minCardNumberLength || len(digits) > maxCardNumberLength {
		return false, nil
	}

	return Luhn(digits), nil
}

// CardNumber is a validation rule checking length and Luhn compliance.
var CardNumber = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_card_number", "card number must be a string")
	}

	valid, err := LuhnOnString(s)
	if err != nil || !valid {
		return validation.NewError("validation_card_number", "card number failed validation")
	}

	return nil
})

// NotBlank validates that a string is not empty after trimming whitespace.
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// Identifier validates the opaque identifiers used across the API: non-blank
// and at most 255 bytes.
var Identifier = []validation.Rule{
	validation.Required,
	NotBlank,
	validation.Length(1, 255),
}
