package clinicauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/clinicauth/internal/flows"
	"github.com/MrEthical07/clinicauth/jwt"
	gojwt "github.com/golang-jwt/jwt/v5"
)

const tokenTypeBearer = "Bearer"

// Login normalizes email, refuses locked emails with ErrAccountLocked and
// verifies the password. Unknown emails and wrong passwords both yield
// ErrInvalidCredentials and both count towards the lockout of that email.
// A principal with MFA enabled receives only a short-lived StepUpToken; it
// must be exchanged through CompleteStepUp.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	res := flows.RunLogin(ctx, email, password, e.loginDeps())

	switch res.Failure {
	case flows.LoginFailureNone:
		if res.RehashErr != nil {
			e.warn("password rehash failed", "user_id", res.User.ID, "error", res.RehashErr)
		}
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginFailed, false, "", ErrAccountLocked, func() map[string]any {
			return map[string]any{"email": res.Email}
		})
		return nil, ErrAccountLocked
	case flows.LoginFailureCredentials:
		e.metricInc(MetricLoginFailure)
		if res.LockedNow {
			e.metricInc(MetricLockoutEngaged)
		}
		userID := ""
		if res.User != nil {
			userID = res.User.ID
		}
		if res.Err != nil {
			e.warn("password verification failed", "user_id", userID, "error", res.Err)
		}
		e.emitAudit(ctx, auditEventLoginFailed, false, userID, ErrInvalidCredentials, func() map[string]any {
			return map[string]any{"email": res.Email, "locked": res.LockedNow}
		})
		return nil, ErrInvalidCredentials
	case flows.LoginFailureLookup:
		e.metricInc(MetricLoginFailure)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.metricInc(MetricLoginFailure)
		return nil, res.Err
	}

	out := &LoginResult{Principal: summaryFromUser(res.User)}
	if res.StepUp {
		e.metricInc(MetricStepUpRequired)
		out.StepUpRequired = true
		out.StepUpToken = res.StepUpToken
	} else {
		out.AccessToken = res.AccessToken
		out.RefreshToken = res.RefreshToken
		out.TokenType = tokenTypeBearer
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSucceeded, true, res.User.ID, nil, func() map[string]any {
		return map[string]any{"mfaRequired": res.StepUp}
	})
	return out, nil
}

// CompleteStepUp exchanges a step-up token and a current TOTP code for a
// full token pair. Ordinary access tokens are refused with ErrUnauthorized.
func (e *Engine) CompleteStepUp(ctx context.Context, stepUpToken, code string) (*TokenPair, error) {
	claims, err := e.tokens.ParseAccess(stepUpToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !claims.StepUp {
		return nil, ErrUnauthorized
	}
	return e.confirmStepUp(ctx, claims.Subject, code)
}

// VerifyStepUp confirms TOTP enrollment for an already authenticated
// principal and returns a fresh token pair. The first successful
// verification enables MFA.
func (e *Engine) VerifyStepUp(ctx context.Context, principalID, code string) (*TokenPair, error) {
	return e.confirmStepUp(ctx, principalID, code)
}

func (e *Engine) confirmStepUp(ctx context.Context, principalID, code string) (*TokenPair, error) {
	p, err := e.findPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.MFASecret == "" {
		e.metricInc(MetricStepUpFailure)
		return nil, ErrStepUpNotConfigured
	}
	if !e.totp.Verify(p.MFASecret, code, e.now()) {
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, auditEventStepUpVerifyFailed, false, p.ID, ErrInvalidStepUpCode, nil)
		return nil, ErrInvalidStepUpCode
	}

	if !p.MFAEnabled {
		if err := e.store.SetMFAEnabled(ctx, p.ID, true); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		p.MFAEnabled = true
	}

	pair, err := e.issuePair(ctx, p.ID, p.Email, string(p.Role), true)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricStepUpSuccess)
	e.emitAudit(ctx, auditEventStepUpVerified, true, p.ID, nil, nil)
	return pair, nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	deps := flows.LoginDeps{
		FindUser: func(ctx context.Context, email string) (*flows.User, error) {
			p, err := e.store.FindByEmail(ctx, email)
			if err != nil || p == nil {
				return nil, err
			}
			return userFromPrincipal(p), nil
		},
		VerifyPassword: e.passwords.Verify,
		VerifyDummy:    e.passwords.VerifyDummy,
		IssueStepUpToken: func(u *flows.User) (string, error) {
			return e.tokens.SignWithTTL(jwt.Claims{
				Email:            u.Email,
				Role:             u.Role,
				MFAEnabled:       true,
				StepUp:           true,
				RegisteredClaims: subjectClaims(u.ID),
			}, e.config.JWT.StepUpTTL)
		},
		IssueTokens: func(ctx context.Context, u *flows.User) (string, string, error) {
			pair, err := e.issuePair(ctx, u.ID, u.Email, u.Role, u.MFAEnabled)
			if err != nil {
				return "", "", err
			}
			return pair.AccessToken, pair.RefreshToken, nil
		},
	}
	if updater, ok := e.store.(PasswordUpdater); ok {
		deps.NeedsRehash = e.passwords.NeedsRehash
		deps.Rehash = func(ctx context.Context, u *flows.User, password string) error {
			hash, err := e.passwords.Hash(password)
			if err != nil {
				return err
			}
			return updater.UpdatePasswordHash(ctx, u.ID, hash)
		}
	}
	if e.lockout != nil {
		deps.IsLocked = e.lockout.IsLocked
		deps.RegisterFailure = e.lockout.RegisterFailure
		deps.RegisterSuccess = e.lockout.RegisterSuccess
	}
	return deps
}

// issuePair signs an access token and stores a new refresh token.
func (e *Engine) issuePair(ctx context.Context, id, email, role string, mfaEnabled bool) (*TokenPair, error) {
	access, err := e.signAccess(id, email, role, mfaEnabled)
	if err != nil {
		return nil, err
	}
	issued, err := e.refresh.Issue(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     issued.Token,
		TokenType:        tokenTypeBearer,
		RefreshExpiresAt: issued.ExpiresAt,
	}, nil
}

func (e *Engine) signAccess(id, email, role string, mfaEnabled bool) (string, error) {
	return e.tokens.SignAccess(jwt.Claims{
		Email:            email,
		Role:             role,
		MFAEnabled:       mfaEnabled,
		RegisteredClaims: subjectClaims(id),
	})
}

// findPrincipal loads id, mapping a miss to ErrPrincipalNotFound.
func (e *Engine) findPrincipal(ctx context.Context, id string) (*Principal, error) {
	if id == "" {
		return nil, ErrPrincipalNotFound
	}
	p, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if p == nil {
		return nil, ErrPrincipalNotFound
	}
	return p, nil
}

func userFromPrincipal(p *Principal) *flows.User {
	return &flows.User{
		ID:           p.ID,
		Email:        p.Email,
		Role:         string(p.Role),
		PasswordHash: p.PasswordHash,
		MFAEnabled:   p.MFAEnabled,
	}
}

func summaryFromUser(u *flows.User) PrincipalSummary {
	if u == nil {
		return PrincipalSummary{}
	}
	return PrincipalSummary{
		ID:         u.ID,
		Email:      u.Email,
		Role:       Role(u.Role),
		MFAEnabled: u.MFAEnabled,
	}
}

func subjectClaims(id string) gojwt.RegisteredClaims {
	return gojwt.RegisteredClaims{Subject: id}
}
