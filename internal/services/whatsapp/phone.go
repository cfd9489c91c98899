package whatsapp

import (
	"errors"
	"fmt"
	"strings"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// ErrInvalidPhone indicates a number that cannot be messaged.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone strips formatting characters and applies the default country
// code to bare national numbers. The result contains digits only.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	digits := digitsOnly(raw)
	if digits == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidPhone, raw)
	}
	if len(digits) == minPhoneDigits && defaultCountryCode != "" {
		digits = defaultCountryCode + digits
	}
	if err := ValidatePhone(digits); err != nil {
		return "", err
	}
	return digits, nil
}

// ValidatePhone checks that the number is all digits within the length range
// international numbering allows.
func ValidatePhone(phone string) error {
	if phone == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPhone)
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q contains non-digits", ErrInvalidPhone, phone)
		}
	}
	if len(phone) < minPhoneDigits || len(phone) > maxPhoneDigits {
		return fmt.Errorf("%w: %q has %d digits, want %d-%d",
			ErrInvalidPhone, phone, len(phone), minPhoneDigits, maxPhoneDigits)
	}
	return nil
}

func digitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
