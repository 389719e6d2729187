package clinicauth

import (
	"strings"
	"time"
)

// SecurityReport summarises the effective security posture of an Engine.
// It carries no key material.
type SecurityReport struct {
	SigningAlgorithm string
	AccessTTL        time.Duration
	StepUpTTL        time.Duration
	RefreshTTL       time.Duration
	Argon2           PasswordConfigReport

	LockoutActive      bool
	LockoutMaxFailures int
	LockoutWindow      time.Duration

	ExternalIdentityEnabled  bool
	ExternalIdentityRequired bool
	ExternalStepUpRoles      []string

	FieldEncryptionActive bool
	EncryptionPrimaryKey  string
	EncryptionKeyCount    int

	AuditEnabled   bool
	AuditRedaction string
	MetricsEnabled bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		SigningAlgorithm: strings.ToLower(e.config.JWT.SigningMethod),
		AccessTTL:        e.config.JWT.AccessTTL,
		StepUpTTL:        e.config.JWT.StepUpTTL,
		RefreshTTL:       e.config.Refresh.TTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LockoutActive:            e.lockout != nil,
		ExternalIdentityEnabled:  e.config.OIDC.Enabled,
		ExternalIdentityRequired: e.config.OIDC.Required,
		AuditEnabled:             e.audit != nil,
		AuditRedaction:           e.config.Audit.Redaction,
		MetricsEnabled:           e.metrics.Enabled(),
	}
	if r.LockoutActive {
		r.LockoutMaxFailures = e.config.Lockout.MaxFailures
		r.LockoutWindow = e.config.Lockout.Window
	}
	if r.ExternalIdentityEnabled {
		r.ExternalStepUpRoles = append([]string(nil), e.config.OIDC.StepUpRoles...)
	}
	if e.fields != nil {
		r.FieldEncryptionActive = true
		r.EncryptionPrimaryKey = e.fields.Ring().PrimaryID()
		r.EncryptionKeyCount = len(e.fields.Ring().IDs())
	}
	if r.AuditRedaction == "" {
		r.AuditRedaction = RedactionNone
	}
	return r
}
