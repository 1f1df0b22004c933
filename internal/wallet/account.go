package wallet

import (
	"crypto/rand" // Secure random numbers
	"errors"      // Error wrapping
	"fmt"         // String formatting
	"math/big"    // Random range

	"github.com/ferdypruis/go-luhn" // Luhn check digits
)

const accountDigits = 10

// NewAccountNumber returns a random 10-digit account number whose last digit is a Luhn check digit
func NewAccountNumber() (string, error) {
	buf := make([]byte, 0, accountDigits)
	for i := 0; i < accountDigits-1; i++ {
		limit := int64(10)
		if i == 0 {
			limit = 9 // no leading zero
		}
		n, err := rand.Int(rand.Reader, big.NewInt(limit))
		if err != nil {
			return "", fmt.Errorf("account number: %w", err)
		}
		d := n.Int64()
		if i == 0 {
			d++
		}
		buf = append(buf, byte('0'+d))
	}
	for c := byte('0'); c <= '9'; c++ {
		if candidate := string(append(buf, c)); luhn.Valid(candidate) {
			return candidate, nil
		}
	}
	return "", errors.New("account number: no check digit")
}

// ValidAccountNumber reports whether s looks like an account number issued by NewAccountNumber
func ValidAccountNumber(s string) bool {
	return len(s) == accountDigits && luhn.Valid(s)
}
