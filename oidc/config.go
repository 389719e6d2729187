package oidc

import (
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEmailClaim     = "email"
	DefaultClockTolerance = 5 * time.Second
	DefaultKeyCacheTTL    = 10 * time.Minute
	DefaultFetchTimeout   = 5 * time.Second
	DefaultRefreshBackoff = 30 * time.Second
)

// Config describes the trusted identity provider.
type Config struct {
	Enabled  bool
	Required bool

	Issuer   string
	Audience string
	JWKSURI  string

	EmailClaim  string
	StepUpRoles []string
	RequiredAMR []string
	AllowedACR  []string

	ClockTolerance time.Duration
	KeyCacheTTL    time.Duration
	FetchTimeout   time.Duration
	// RefreshBackoff bounds how often an unknown kid may force a refetch.
	RefreshBackoff time.Duration

	HTTPClient *http.Client
	Now        func() time.Time
}

// DefaultConfig returns a disabled bridge with the stock policy.
func DefaultConfig() Config {
	return Config{
		EmailClaim:     DefaultEmailClaim,
		StepUpRoles:    []string{"doctor", "admin"},
		RequiredAMR:    []string{"mfa"},
		ClockTolerance: DefaultClockTolerance,
		KeyCacheTTL:    DefaultKeyCacheTTL,
		FetchTimeout:   DefaultFetchTimeout,
		RefreshBackoff: DefaultRefreshBackoff,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EmailClaim == "" {
		c.EmailClaim = d.EmailClaim
	}
	if c.ClockTolerance <= 0 {
		c.ClockTolerance = d.ClockTolerance
	}
	if c.KeyCacheTTL <= 0 {
		c.KeyCacheTTL = d.KeyCacheTTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.RefreshBackoff < 0 {
		c.RefreshBackoff = 0
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Policy returns the claim policy portion of c.
func (c Config) Policy() Policy {
	email := c.EmailClaim
	if email == "" {
		email = DefaultEmailClaim
	}
	return Policy{
		EmailClaim:  email,
		StepUpRoles: c.StepUpRoles,
		RequiredAMR: c.RequiredAMR,
		AllowedACR:  c.AllowedACR,
	}
}

// ParseList splits a comma-separated list, trimming blanks.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
