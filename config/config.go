// Package config loads clinicauth settings from a YAML file and the
// environment with viper.
//
// Every key can be set as CLINICAUTH_<KEY> with dots replaced by
// underscores (CLINICAUTH_JWT_SECRET, CLINICAUTH_OIDC_ISSUER, ...). The
// unprefixed variable names used by existing deployments (JWT_SECRET,
// OIDC_ENABLED, DATA_ENCRYPTION_KEYS, LOGIN_MAX_FAILURES, ...) are accepted
// as well.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/envelope"
	"github.com/MrEthical07/clinicauth/oidc"
	"github.com/spf13/viper"
)

type JWTSettings struct {
	Secret           string        `mapstructure:"secret"`
	Issuer           string        `mapstructure:"issuer"`
	Audience         string        `mapstructure:"audience"`
	AccessTTLMinutes int           `mapstructure:"access_ttl_minutes"`
	MFATTLMinutes    int           `mapstructure:"mfa_ttl_minutes"`
	Leeway           time.Duration `mapstructure:"leeway"`
}

type OIDCSettings struct {
	Enabled               bool   `mapstructure:"enabled"`
	Required              bool   `mapstructure:"required"`
	Issuer                string `mapstructure:"issuer"`
	Audience              string `mapstructure:"audience"`
	JWKSURI               string `mapstructure:"jwks_uri"`
	EmailClaim            string `mapstructure:"email_claim"`
	MFARequiredRoles      string `mapstructure:"mfa_required_roles"`
	RequiredAMR           string `mapstructure:"required_amr"`
	RequiredACR           string `mapstructure:"required_acr"`
	ClockToleranceSeconds int    `mapstructure:"clock_tolerance_seconds"`
}

type LockoutSettings struct {
	MaxFailures          int `mapstructure:"max_failures"`
	LockMinutes          int `mapstructure:"lock_minutes"`
	FailureWindowMinutes int `mapstructure:"failure_window_minutes"`
}

type EncryptionSettings struct {
	// Keys is a key ring "id:secret,id2:secret2".
	Keys string `mapstructure:"keys"`
	// Key is a single secret added under KeyID when the ring lacks that id.
	Key   string `mapstructure:"key"`
	KeyID string `mapstructure:"key_id"`
}

type AuditSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	Sink      string `mapstructure:"sink"` // "log", "json" or "kafka"
	Redaction string `mapstructure:"redaction"`
	Buffer    int    `mapstructure:"buffer"`
	Brokers   string `mapstructure:"brokers"`
	Topic     string `mapstructure:"topic"`
}

type StoreSettings struct {
	// Refresh selects the refresh token store: "memory", "redis" or "postgres".
	Refresh     string `mapstructure:"refresh"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisAddr   string `mapstructure:"redis_addr"`
}

// RateLimitSettings toggles per-IP throttling of the auth routes. The
// budgets are fixed; the backend is Redis when store.redis_addr is set.
type RateLimitSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Settings is the full file/environment view.
type Settings struct {
	ServiceName    string             `mapstructure:"service_name"`
	Env            string             `mapstructure:"env"`
	LogLevel       string             `mapstructure:"log_level"`
	HTTPAddr       string             `mapstructure:"http_addr"`
	RefreshTTLDays int                `mapstructure:"refresh_ttl_days"`
	MFAIssuer      string             `mapstructure:"mfa_issuer"`
	JWT            JWTSettings        `mapstructure:"jwt"`
	OIDC           OIDCSettings       `mapstructure:"oidc"`
	Lockout        LockoutSettings    `mapstructure:"lockout"`
	Encryption     EncryptionSettings `mapstructure:"encryption"`
	Audit          AuditSettings      `mapstructure:"audit"`
	Store          StoreSettings      `mapstructure:"store"`
	RateLimit      RateLimitSettings  `mapstructure:"rate_limit"`
	Metrics        MetricsSettings    `mapstructure:"metrics"`
}

// legacyEnv maps keys to the unprefixed variable names accepted alongside
// CLINICAUTH_*.
var legacyEnv = map[string]string{
	"log_level":                      "LOG_LEVEL",
	"refresh_ttl_days":               "REFRESH_TOKEN_TTL_DAYS",
	"jwt.secret":                     "JWT_SECRET",
	"jwt.issuer":                     "JWT_ISSUER",
	"jwt.audience":                   "JWT_AUDIENCE",
	"jwt.access_ttl_minutes":         "ACCESS_TOKEN_TTL_MINUTES",
	"jwt.mfa_ttl_minutes":            "MFA_TOKEN_TTL_MINUTES",
	"oidc.enabled":                   "OIDC_ENABLED",
	"oidc.required":                  "OIDC_REQUIRED",
	"oidc.issuer":                    "OIDC_ISSUER",
	"oidc.audience":                  "OIDC_AUDIENCE",
	"oidc.jwks_uri":                  "OIDC_JWKS_URI",
	"oidc.email_claim":               "OIDC_EMAIL_CLAIM",
	"oidc.mfa_required_roles":        "OIDC_MFA_REQUIRED_ROLES",
	"oidc.required_amr":              "OIDC_REQUIRED_AMR",
	"oidc.required_acr":              "OIDC_REQUIRED_ACR",
	"oidc.clock_tolerance_seconds":   "OIDC_CLOCK_TOLERANCE_SECONDS",
	"lockout.max_failures":           "LOGIN_MAX_FAILURES",
	"lockout.lock_minutes":           "LOGIN_LOCK_MINUTES",
	"lockout.failure_window_minutes": "LOGIN_FAILURE_WINDOW_MINUTES",
	"encryption.keys":                "DATA_ENCRYPTION_KEYS",
	"encryption.key":                 "DATA_ENCRYPTION_KEY",
	"encryption.key_id":              "DATA_ENCRYPTION_KEY_ID",
	"audit.redaction":                "AUDIT_PII_REDACTION",
	"metrics.enabled":                "METRICS_ENABLED",
	"metrics.path":                   "METRICS_PATH",
}

// Load reads path (default config.yaml; a missing file is not an error)
// and the environment.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("CLINICAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := "CLINICAUTH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path == "" {
		path = "config.yaml"
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	d := clinicauth.DefaultConfig()

	v.SetDefault("service_name", "clinicauth")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("refresh_ttl_days", int(d.Refresh.TTL/(24*time.Hour)))
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("jwt.audience", d.JWT.Audience)
	v.SetDefault("jwt.access_ttl_minutes", int(d.JWT.AccessTTL/time.Minute))
	v.SetDefault("jwt.mfa_ttl_minutes", int(d.JWT.StepUpTTL/time.Minute))
	v.SetDefault("oidc.email_claim", d.OIDC.EmailClaim)
	v.SetDefault("oidc.mfa_required_roles", strings.Join(d.OIDC.StepUpRoles, ","))
	v.SetDefault("oidc.required_amr", strings.Join(d.OIDC.RequiredAMR, ","))
	v.SetDefault("oidc.clock_tolerance_seconds", int(d.OIDC.ClockTolerance/time.Second))
	v.SetDefault("lockout.max_failures", d.Lockout.MaxFailures)
	v.SetDefault("lockout.lock_minutes", int(d.Lockout.Duration/time.Minute))
	v.SetDefault("lockout.failure_window_minutes", int(d.Lockout.Window/time.Minute))
	v.SetDefault("encryption.key_id", d.Encryption.PrimaryKeyID)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.sink", "log")
	v.SetDefault("audit.redaction", clinicauth.RedactionNone)
	v.SetDefault("audit.buffer", d.Audit.BufferSize)
	v.SetDefault("audit.topic", "clinicauth.audit")
	v.SetDefault("mfa_issuer", "")
	v.SetDefault("jwt.leeway", "0s")
	v.SetDefault("audit.brokers", "")
	v.SetDefault("store.refresh", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// SetConfigFile reports a missing explicit path as an fs error.
	return errors.Is(err, fs.ErrNotExist)
}

// EngineConfig maps s onto clinicauth.Config. The result still has to pass
// Validate; a missing JWT secret surfaces there as ErrMisconfigured.
func (s *Settings) EngineConfig() clinicauth.Config {
	cfg := clinicauth.DefaultConfig()

	if s.JWT.Secret != "" {
		cfg.JWT.Secret = []byte(s.JWT.Secret)
	}
	cfg.JWT.Issuer = s.JWT.Issuer
	cfg.JWT.Audience = s.JWT.Audience
	cfg.JWT.AccessTTL = minutes(s.JWT.AccessTTLMinutes, cfg.JWT.AccessTTL)
	cfg.JWT.StepUpTTL = minutes(s.JWT.MFATTLMinutes, cfg.JWT.StepUpTTL)
	cfg.JWT.Leeway = s.JWT.Leeway
	if s.RefreshTTLDays > 0 {
		cfg.Refresh.TTL = time.Duration(s.RefreshTTLDays) * 24 * time.Hour
	}
	cfg.StepUp.Issuer = s.MFAIssuer

	cfg.Lockout.MaxFailures = s.Lockout.MaxFailures
	cfg.Lockout.Duration = minutes(s.Lockout.LockMinutes, cfg.Lockout.Duration)
	cfg.Lockout.Window = minutes(s.Lockout.FailureWindowMinutes, cfg.Lockout.Window)

	cfg.OIDC.Enabled = s.OIDC.Enabled
	cfg.OIDC.Required = s.OIDC.Required
	cfg.OIDC.Issuer = s.OIDC.Issuer
	cfg.OIDC.Audience = s.OIDC.Audience
	cfg.OIDC.JWKSURI = s.OIDC.JWKSURI
	if s.OIDC.EmailClaim != "" {
		cfg.OIDC.EmailClaim = s.OIDC.EmailClaim
	}
	cfg.OIDC.StepUpRoles = oidc.ParseList(s.OIDC.MFARequiredRoles)
	cfg.OIDC.RequiredAMR = oidc.ParseList(s.OIDC.RequiredAMR)
	cfg.OIDC.AllowedACR = oidc.ParseList(s.OIDC.RequiredACR)
	if s.OIDC.ClockToleranceSeconds > 0 {
		cfg.OIDC.ClockTolerance = time.Duration(s.OIDC.ClockToleranceSeconds) * time.Second
	}

	cfg.Encryption.Keys, cfg.Encryption.PrimaryKeyID = s.Encryption.KeySpecs()

	cfg.Audit.Enabled = s.Audit.Enabled
	cfg.Audit.Redaction = s.Audit.Redaction
	if s.Audit.Buffer > 0 {
		cfg.Audit.BufferSize = s.Audit.Buffer
	}

	cfg.Metrics.Enabled = s.Metrics.Enabled
	return cfg
}

// KeySpecs builds the key ring: the Keys list first, then Key under KeyID
// when the list has no entry with that id.
func (e EncryptionSettings) KeySpecs() ([]envelope.KeySpec, string) {
	primary := strings.TrimSpace(e.KeyID)
	if primary == "" {
		primary = envelope.DefaultPrimaryID
	}

	specs := envelope.ParseKeySpecs(e.Keys)
	if key := strings.TrimSpace(e.Key); key != "" {
		found := false
		for _, s := range specs {
			if s.ID == primary {
				found = true
				break
			}
		}
		if !found {
			specs = append(specs, envelope.KeySpec{ID: primary, Secret: key})
		}
	}
	return specs, primary
}

func minutes(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Minute
}
