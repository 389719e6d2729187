package clinicauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth/envelope"
	"github.com/MrEthical07/clinicauth/internal/audit"
	"github.com/MrEthical07/clinicauth/jwt"
	"github.com/MrEthical07/clinicauth/oidc"
	"github.com/MrEthical07/clinicauth/otp"
)

// Config is the full Engine configuration. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	JWT        JWTConfig
	Refresh    RefreshConfig
	StepUp     StepUpConfig
	Lockout    LockoutConfig
	Password   PasswordConfig
	OIDC       OIDCConfig
	Encryption EncryptionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
TOKENS
====================================
*/

// JWTConfig controls local access and step-up tokens. Secret is the HS256
// key; PrivateKey/PublicKey are used with the ed25519 method instead.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	StepUpTTL     time.Duration
	Leeway        time.Duration
}

type RefreshConfig struct {
	TTL time.Duration
}

/*
====================================
SECOND FACTOR AND LOCKOUT
====================================
*/

// StepUpConfig controls TOTP parameters. Issuer is the label shown by
// authenticator apps and defaults to JWT.Issuer.
type StepUpConfig struct {
	Issuer     string
	Digits     int
	Period     int
	Skew       int
	Algorithm  string
	QRCodeSize int
}

type LockoutConfig struct {
	Enabled     bool
	MaxFailures int
	Duration    time.Duration
	Window      time.Duration
}

type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// BcryptCost should match the cost of imported legacy hashes. Zero
	// means 10.
	BcryptCost int
}

/*
====================================
EXTERNAL IDENTITY
====================================
*/

type OIDCConfig struct {
	Enabled        bool
	Required       bool
	Issuer         string
	Audience       string
	JWKSURI        string
	EmailClaim     string
	StepUpRoles    []string
	RequiredAMR    []string
	AllowedACR     []string
	ClockTolerance time.Duration
	KeyCacheTTL    time.Duration
	FetchTimeout   time.Duration
}

/*
====================================
DATA PROTECTION AND OPERATIONS
====================================
*/

// EncryptionConfig holds the envelope key ring. Without keys, EncryptField
// and DecryptField pass values through unchanged.
type EncryptionConfig struct {
	Keys         []envelope.KeySpec
	PrimaryKeyID string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Redaction is "none" or "strict".
	Redaction string
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. The signing secret is left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	totp := otp.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "prescription-api",
			Audience:      "prescription-api",
			AccessTTL:     15 * time.Minute,
			StepUpTTL:     5 * time.Minute,
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		StepUp: StepUpConfig{
			Digits:     totp.Digits,
			Period:     totp.Period,
			Skew:       totp.Skew,
			Algorithm:  totp.Algorithm,
			QRCodeSize: 200,
		},
		Lockout: LockoutConfig{
			Enabled:     true,
			MaxFailures: 5,
			Duration:    15 * time.Minute,
			Window:      15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		OIDC: OIDCConfig{
			EmailClaim:     oidc.DefaultEmailClaim,
			StepUpRoles:    []string{string(RoleClinician), string(RoleAdministrator)},
			RequiredAMR:    []string{"mfa"},
			ClockTolerance: oidc.DefaultClockTolerance,
			KeyCacheTTL:    oidc.DefaultKeyCacheTTL,
			FetchTimeout:   oidc.DefaultFetchTimeout,
		},
		Encryption: EncryptionConfig{
			PrimaryKeyID: envelope.DefaultPrimaryID,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
			Redaction:  audit.RedactionNone,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.OIDC.StepUpRoles = append([]string(nil), cfg.OIDC.StepUpRoles...)
	out.OIDC.RequiredAMR = append([]string(nil), cfg.OIDC.RequiredAMR...)
	out.OIDC.AllowedACR = append([]string(nil), cfg.OIDC.AllowedACR...)
	out.Encryption.Keys = append([]envelope.KeySpec(nil), cfg.Encryption.Keys...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting. Missing signing material
// wraps ErrMisconfigured.
func (c *Config) Validate() error {
	// JWT
	switch strings.ToLower(c.JWT.SigningMethod) {
	case string(jwt.MethodHS256):
		if len(c.JWT.Secret) == 0 {
			return fmt.Errorf("%w: JWT Secret is required", ErrMisconfigured)
		}
		if len(c.JWT.Secret) < jwt.MinSecretBytes {
			return fmt.Errorf("%w: JWT Secret must be at least %d bytes", ErrMisconfigured, jwt.MinSecretBytes)
		}
	case string(jwt.MethodEd25519):
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return fmt.Errorf("%w: ed25519 requires PrivateKey and PublicKey", ErrMisconfigured)
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" || strings.TrimSpace(c.JWT.Audience) == "" {
		return fmt.Errorf("%w: JWT Issuer and Audience are required", ErrMisconfigured)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.StepUpTTL <= 0 {
		return errors.New("JWT StepUpTTL must be > 0")
	}
	if c.JWT.StepUpTTL > c.JWT.AccessTTL {
		return errors.New("JWT StepUpTTL must not exceed AccessTTL")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}

	// Step-up
	if c.StepUp.Digits < 6 || c.StepUp.Digits > 8 {
		return errors.New("StepUp Digits must be between 6 and 8")
	}
	if c.StepUp.Period <= 0 {
		return errors.New("StepUp Period must be > 0")
	}
	if c.StepUp.Skew < 0 || c.StepUp.Skew > 10 {
		return errors.New("StepUp Skew must be between 0 and 10")
	}

	// Lockout
	if c.Lockout.Enabled {
		if c.Lockout.MaxFailures <= 0 {
			return errors.New("Lockout MaxFailures must be > 0")
		}
		if c.Lockout.Duration <= 0 || c.Lockout.Window <= 0 {
			return errors.New("Lockout Duration and Window must be > 0")
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("Password Time and Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}
	if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31) {
		return errors.New("Password BcryptCost must be in [4, 31]")
	}

	// OIDC
	if c.OIDC.Required && !c.OIDC.Enabled {
		return errors.New("OIDC Required needs OIDC Enabled")
	}
	if c.OIDC.Enabled {
		if c.OIDC.Issuer == "" || c.OIDC.Audience == "" || c.OIDC.JWKSURI == "" {
			return fmt.Errorf("%w: OIDC Issuer, Audience and JWKSURI are required", ErrMisconfigured)
		}
		if c.OIDC.Issuer == c.JWT.Issuer {
			return errors.New("OIDC Issuer must differ from JWT Issuer")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	switch c.Audit.Redaction {
	case "", audit.RedactionNone, audit.RedactionStrict:
	default:
		return errors.New("Audit Redaction must be 'none' or 'strict'")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
