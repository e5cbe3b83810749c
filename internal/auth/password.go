package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordStrength is the lowest score accepted at sign-up.
const MinPasswordStrength = 50

var (
	ErrWeakPassword     = errors.New("password is too weak")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// PasswordStrength scores a password from 0 to 100 in steps of 25: one step
// each for length of at least 8, a digit, a lowercase letter, and an
// uppercase letter or symbol.
func PasswordStrength(password string) int {
	var digit, lower, upperOrSymbol bool
	length := 0
	for _, r := range password {
		length++
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z':
			lower = true
		default:
			// Anything outside [a-z0-9] is an uppercase letter or a symbol.
			upperOrSymbol = true
		}
	}
	score := 0
	for _, ok := range []bool{length >= 8, digit, lower, upperOrSymbol} {
		if ok {
			score += 25
		}
	}
	return score
}

// StrengthLabel names a score for display.
func StrengthLabel(score int) string {
	switch {
	case score <= 25:
		return "weak"
	case score <= 50:
		return "fair"
	case score <= 75:
		return "good"
	default:
		return "strong"
	}
}

// CheckNewPassword applies the sign-up rules: the confirmation must match and
// the strength must reach MinPasswordStrength.
func CheckNewPassword(password, confirmation string) error {
	if password != confirmation {
		return ErrPasswordMismatch
	}
	if PasswordStrength(password) < MinPasswordStrength {
		return ErrWeakPassword
	}
	return nil
}
