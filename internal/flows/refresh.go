package flows

import (
	"context"
	"errors"
	"time"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureUserMissing
	RefreshFailureBackend
	RefreshFailureIssueAccess
)

var errUserMissing = errors.New("refresh owner no longer exists")

// Rotation is the flow-local view of a completed refresh rotation.
type Rotation struct {
	UserID     string
	PreviousID string
	Token      string
	ExpiresAt  time.Time
}

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	UserID           string
	PreviousID       string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// Rotate consumes presented and issues a successor. authorize runs after
	// the presented token is found active and before it is consumed.
	Rotate           func(ctx context.Context, presented string, authorize func(context.Context, string) error) (*Rotation, error)
	FindUser         func(ctx context.Context, id string) (*User, error)
	IssueAccessToken func(user *User) (string, error)
	// InvalidRefresh is the sentinel Rotate returns for absent, revoked,
	// expired or raced tokens.
	InvalidRefresh error
}

// RunRefresh rotates a refresh token and mints a fresh access token for its
// owner. The owner is re-read before the presented token is consumed; a
// vanished owner leaves the token untouched and fails as invalid.
func RunRefresh(ctx context.Context, presented string, deps RefreshDeps) RefreshResult {
	var user *User

	authorize := func(ctx context.Context, userID string) error {
		u, err := deps.FindUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return errUserMissing
		}
		user = u
		return nil
	}

	rot, err := deps.Rotate(ctx, presented, authorize)
	if err != nil {
		switch {
		case deps.InvalidRefresh != nil && errors.Is(err, deps.InvalidRefresh):
			return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
		case errors.Is(err, errUserMissing):
			return RefreshResult{Failure: RefreshFailureUserMissing, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureBackend, Err: err}
		}
	}

	access, err := deps.IssueAccessToken(user)
	if err != nil {
		return RefreshResult{
			Failure:    RefreshFailureIssueAccess,
			Err:        err,
			UserID:     rot.UserID,
			PreviousID: rot.PreviousID,
		}
	}

	return RefreshResult{
		UserID:           rot.UserID,
		PreviousID:       rot.PreviousID,
		AccessToken:      access,
		RefreshToken:     rot.Token,
		RefreshExpiresAt: rot.ExpiresAt,
	}
}
