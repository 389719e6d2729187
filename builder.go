package clinicauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth/envelope"
	"github.com/MrEthical07/clinicauth/internal/audit"
	"github.com/MrEthical07/clinicauth/internal/limiters"
	"github.com/MrEthical07/clinicauth/jwt"
	"github.com/MrEthical07/clinicauth/oidc"
	"github.com/MrEthical07/clinicauth/otp"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/refresh"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config

	store        CredentialStore
	refreshStore refresh.Store
	auditSink    AuditSink
	logger       *slog.Logger
	httpClient   *http.Client
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCredentialStore sets the principal repository. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithRefreshStore sets refresh token persistence. The default is a
// process-local refresh.MemoryStore.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for operational warnings. Secrets, tokens and
// codes are never logged.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithHTTPClient sets the client used to download the provider key set.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithClock replaces time.Now across tokens, lockout, TOTP and the bridge.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. Missing
// signing material or a missing credential store yields ErrMisconfigured.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, fmt.Errorf("%w: credential store required", ErrMisconfigured)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		logger:  logger,
		now:     now,
		store:   b.store,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- LOCKOUT --------
	if cfg.Lockout.Enabled {
		engine.lockout = limiters.NewLockout(limiters.LockoutConfig{
			MaxFailures: cfg.Lockout.MaxFailures,
			Duration:    cfg.Lockout.Duration,
			Window:      cfg.Lockout.Window,
		}, now)
	}

	// -------- PASSWORDS --------
	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		BcryptCost:  cfg.Password.BcryptCost,
	})
	if err != nil {
		return nil, err
	}
	engine.passwords = ph

	// -------- TOKENS --------
	signKey := cfg.JWT.Secret
	if strings.EqualFold(cfg.JWT.SigningMethod, string(jwt.MethodEd25519)) {
		signKey = cfg.JWT.PrivateKey
	}
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cloneBytes(signKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	engine.tokens = jm

	store := b.refreshStore
	if store == nil {
		store = refresh.NewMemoryStore()
	}
	rm, err := refresh.NewManager(store, refresh.Config{TTL: cfg.Refresh.TTL, Now: now})
	if err != nil {
		return nil, err
	}
	engine.refresh = rm

	// -------- STEP-UP --------
	tm, err := otp.New(otp.Config{
		Digits:    cfg.StepUp.Digits,
		Period:    cfg.StepUp.Period,
		Skew:      cfg.StepUp.Skew,
		Algorithm: cfg.StepUp.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	engine.totp = tm

	// -------- EXTERNAL IDENTITY --------
	engine.oidcConfig = oidc.Config{
		Enabled:        cfg.OIDC.Enabled,
		Required:       cfg.OIDC.Required,
		Issuer:         cfg.OIDC.Issuer,
		Audience:       cfg.OIDC.Audience,
		JWKSURI:        cfg.OIDC.JWKSURI,
		EmailClaim:     cfg.OIDC.EmailClaim,
		StepUpRoles:    cfg.OIDC.StepUpRoles,
		RequiredAMR:    cfg.OIDC.RequiredAMR,
		AllowedACR:     cfg.OIDC.AllowedACR,
		ClockTolerance: cfg.OIDC.ClockTolerance,
		KeyCacheTTL:    cfg.OIDC.KeyCacheTTL,
		FetchTimeout:   cfg.OIDC.FetchTimeout,
		RefreshBackoff: oidc.DefaultRefreshBackoff,
		HTTPClient:     b.httpClient,
		Now:            now,
	}
	engine.policy = engine.oidcConfig.Policy()
	if cfg.OIDC.Enabled {
		ks, err := oidc.NewKeySet(engine.oidcConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
		}
		v, err := oidc.NewVerifier(engine.oidcConfig, ks)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
		}
		engine.keySet = ks
		engine.verifier = v
	}

	// -------- FIELD ENCRYPTION --------
	if len(cfg.Encryption.Keys) > 0 {
		ring, err := envelope.NewKeyRing(cfg.Encryption.Keys, cfg.Encryption.PrimaryKeyID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
		}
		engine.fields = envelope.New(ring)
	}

	// -------- AUDIT --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Redaction:  cfg.Audit.Redaction,
		Logger:     logger,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
