package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// OTPLength is the number of digits in a one-time code.
const OTPLength = 6

// ErrMalformedOTP is returned for codes that are not exactly six digits.
var ErrMalformedOTP = errors.New("verification code must be 6 digits")

// NormalizeOTP strips spaces and dashes a user may paste and checks the code.
func NormalizeOTP(code string) (string, error) {
	code = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, code)
	if len(code) != OTPLength {
		return "", ErrMalformedOTP
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", ErrMalformedOTP
		}
	}
	return code, nil
}

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns a random zero-padded six digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
