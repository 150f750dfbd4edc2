package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxPasswordLength bounds the work an attacker can make argon2 do
const MaxPasswordLength = 128

// Password policy violations
var (
	ErrPasswordTooShort  = errors.New("password too short")
	ErrPasswordTooLong   = errors.New("password too long")
	ErrPasswordCommon    = errors.New("password too common")
	ErrPasswordRepeating = errors.New("password is a single repeated character")
)

// PasswordPolicy configures ValidatePassword
type PasswordPolicy struct {
	MinLength    int
	RejectCommon bool
}

var commonPasswords = map[string]struct{}{
	"password": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"qwerty": {}, "qwertyuiop": {}, "letmein": {}, "iloveyou": {},
	"password1": {}, "abc123": {}, "monkey": {}, "dragon": {},
	"football": {}, "baseball": {}, "welcome": {}, "admin123": {},
}

// ValidatePassword checks password against policy. The returned error wraps
// one of the ErrPassword* values and reads well in a form.
func ValidatePassword(password string, policy PasswordPolicy) error {
	minLength := policy.MinLength
	if minLength <= 0 {
		minLength = 6
	}

	length := utf8.RuneCountInString(password)
	if length < minLength {
		return fmt.Errorf("%w: this password is too short, it must contain at least %d characters", ErrPasswordTooShort, minLength)
	}
	if length > MaxPasswordLength {
		return fmt.Errorf("%w: this password must be at most %d characters", ErrPasswordTooLong, MaxPasswordLength)
	}

	if policy.RejectCommon {
		if _, ok := commonPasswords[strings.ToLower(password)]; ok {
			return fmt.Errorf("%w: this password is too common", ErrPasswordCommon)
		}
	}

	if isRepeatingChar(password) {
		return fmt.Errorf("%w: this password cannot be a single repeating character", ErrPasswordRepeating)
	}

	return nil
}

func isRepeatingChar(s string) bool {
	runes := []rune(s)
	if len(runes) < 2 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}
