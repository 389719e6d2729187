package flows

import (
	"context"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureLocked
	LoginFailureLookup
	LoginFailureCredentials
	LoginFailureIssue
)

// LoginResult carries the issued tokens, or the step-up token, or failure
// metadata. LockedNow is set when this attempt's failure engaged the lock.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Email        string
	User         *User
	LockedNow    bool
	StepUp       bool
	StepUpToken  string
	AccessToken  string
	RefreshToken string
	// Rehashed is set when the stored hash was replaced; RehashErr when that
	// failed. Neither affects the outcome.
	Rehashed  bool
	RehashErr error
}

// LoginDeps captures login flow dependencies. Lockout funcs may be nil when
// lockout is disabled.
type LoginDeps struct {
	IsLocked        func(key string) bool
	RegisterFailure func(key string) bool
	RegisterSuccess func(key string)

	FindUser       func(ctx context.Context, email string) (*User, error)
	VerifyPassword func(password, hash string) (bool, error)
	VerifyDummy    func(password string)
	// NeedsRehash and Rehash are optional. After a successful verification
	// an outdated hash is replaced with one made from password.
	NeedsRehash func(hash string) bool
	Rehash      func(ctx context.Context, user *User, password string) error

	IssueStepUpToken func(user *User) (string, error)
	IssueTokens      func(ctx context.Context, user *User) (access, refresh string, err error)
}

// RunLogin checks the lockout, verifies the password and issues either a
// token pair or a step-up token. Unknown emails still pay for a password
// verification and count towards the lockout of that email.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	key := NormalizeEmail(email)

	if deps.IsLocked != nil && deps.IsLocked(key) {
		return LoginResult{Failure: LoginFailureLocked, Email: key}
	}

	fail := func(user *User, err error) LoginResult {
		locked := false
		if deps.RegisterFailure != nil {
			locked = deps.RegisterFailure(key)
		}
		return LoginResult{
			Failure:   LoginFailureCredentials,
			Err:       err,
			Email:     key,
			User:      user,
			LockedNow: locked,
		}
	}

	user, err := deps.FindUser(ctx, key)
	if err != nil {
		return LoginResult{Failure: LoginFailureLookup, Err: err, Email: key}
	}
	if user == nil {
		if deps.VerifyDummy != nil {
			deps.VerifyDummy(password)
		}
		return fail(nil, nil)
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return fail(user, err)
	}

	if deps.RegisterSuccess != nil {
		deps.RegisterSuccess(key)
	}

	out := LoginResult{Email: key, User: user}
	if deps.Rehash != nil && deps.NeedsRehash != nil && deps.NeedsRehash(user.PasswordHash) {
		if out.RehashErr = deps.Rehash(ctx, user, password); out.RehashErr == nil {
			out.Rehashed = true
		}
	}

	if user.MFAEnabled {
		token, err := deps.IssueStepUpToken(user)
		if err != nil {
			out.Failure, out.Err = LoginFailureIssue, err
			return out
		}
		out.StepUp, out.StepUpToken = true, token
		return out
	}

	access, refresh, err := deps.IssueTokens(ctx, user)
	if err != nil {
		out.Failure, out.Err = LoginFailureIssue, err
		return out
	}
	out.AccessToken, out.RefreshToken = access, refresh
	return out
}
