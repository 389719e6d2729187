package flows

import "strings"

// User is the flow-local principal shape.
type User struct {
	ID           string
	Email        string
	Role         string
	PasswordHash string
	MFAEnabled   bool
}

// NormalizeEmail lowercases and trims an email. It is the lockout key and
// the credential-store lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
