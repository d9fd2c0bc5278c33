package auth

import (
	"regexp"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 128
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// dummyHash is compared against when the user does not exist so that
// unknown usernames cost the same as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password-1"), bcrypt.DefaultCost)

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compares in constant time. An empty hash burns a comparison
// against dummyHash and always fails.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces 6-128 characters with at least one letter and one digit.
func ValidatePassword(password string) error {
	n := len([]rune(password))
	if n < minPasswordLen {
		return apperr.Validation("password must be at least 6 characters")
	}
	if n > maxPasswordLen {
		return apperr.Validation("password must be at most 128 characters")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperr.Validation("password must contain a letter and a digit")
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperr.Validation("username must be 3-32 letters, digits or underscores")
	}
	return nil
}
