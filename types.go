package clinicauth

import (
	"context"
	"time"
)

// Role is a principal's role. The set is closed.
type Role string

const (
	RoleClinician     Role = "doctor"
	RolePatient       Role = "patient"
	RoleAdministrator Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClinician, RolePatient, RoleAdministrator:
		return true
	}
	return false
}

// Principal is a user as the credential store holds it. MFASecret is the
// base32 TOTP secret, empty when none is enrolled.
type Principal struct {
	ID           string
	Email        string
	Role         Role
	MFAEnabled   bool
	MFASecret    string
	PasswordHash string
}

// Summary strips the secret-bearing fields.
func (p *Principal) Summary() PrincipalSummary {
	return PrincipalSummary{
		ID:         p.ID,
		Email:      p.Email,
		Role:       p.Role,
		MFAEnabled: p.MFAEnabled,
	}
}

// PrincipalSummary is the part of a principal safe to return to a client.
type PrincipalSummary struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	MFAEnabled bool   `json:"mfaEnabled"`
}

// CredentialStore is the principal repository. Lookups return (nil, nil)
// when nothing matches; a non-nil error always means a backend failure.
// FindByEmail receives an already lowercased, trimmed email.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error
	// SetMFASecret stores secret; an empty secret clears it.
	SetMFASecret(ctx context.Context, id string, secret string) error
}

// PasswordUpdater is an optional CredentialStore extension. When the store
// implements it, a successful login replaces bcrypt hashes and Argon2id
// hashes made with weaker parameters by a fresh Argon2id hash.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// TokenPair is a fresh access token with its refresh token.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// LoginResult carries either a TokenPair (no second factor) or a StepUpToken
// that must be exchanged through CompleteStepUp.
type LoginResult struct {
	AccessToken    string           `json:"accessToken,omitempty"`
	RefreshToken   string           `json:"refreshToken,omitempty"`
	TokenType      string           `json:"tokenType,omitempty"`
	StepUpRequired bool             `json:"mfaRequired"`
	StepUpToken    string           `json:"mfaToken,omitempty"`
	Principal      PrincipalSummary `json:"user"`
}

// Enrollment is returned once, at TOTP enrollment. The secret is never
// disclosed again.
type Enrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"otpauthUrl"`
	QRCodeDataURI   string `json:"qrCodeDataUrl"`
}

// StepUpState reports MFA configuration for a principal.
type StepUpState struct {
	Configured bool `json:"configured"`
	Enabled    bool `json:"enabled"`
}

// TokenSource says which verifier accepted a bearer token.
type TokenSource string

const (
	SourceLocal    TokenSource = "local"
	SourceExternal TokenSource = "external"
)

// PrincipalClaims is what AuthenticateRequest hands to the routing layer.
type PrincipalClaims struct {
	Subject    string      `json:"sub"`
	Email      string      `json:"email"`
	Role       Role        `json:"role"`
	MFAEnabled bool        `json:"mfaEnabled"`
	Source     TokenSource `json:"source"`
	// ExternalSubject is the provider's sub claim for external tokens.
	ExternalSubject string `json:"oidcSub,omitempty"`
}
