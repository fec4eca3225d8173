package auth

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/ignite/mailcraft/internal/pkg/apperr"
)

const (
	bcryptCost        = 12
	MinPasswordLength = 10
	// bcrypt ignores input past 72 bytes
	maxPasswordBytes = 72
)

// ValidatePassword checks length limits.
func ValidatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return apperr.Invalid(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(pw) > maxPasswordBytes {
		return apperr.Invalid(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

// HashPassword validates length and returns a bcrypt hash.
func HashPassword(pw string) (string, error) {
	if err := ValidatePassword(pw); err != nil {
		return "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether pw matches hash. Malformed hashes never match.
func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// DummyHash is a valid hash of a random-looking password, compared against
// when the user does not exist so both login failures take as long.
var DummyHash = sync.OnceValue(func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte("mailcraft-no-such-user"), bcryptCost)
	return string(h)
})
