package auth

import "strings"

// NormalizeEmail trims surrounding space and lowercases the domain part.
// The local part is kept as typed since some mail hosts treat it as case
// sensitive.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// EmailKey returns the form used to compare two addresses for equality
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail reports whether a and b name the same mailbox for login purposes
func SameEmail(a, b string) bool {
	return EmailKey(a) == EmailKey(b)
}
