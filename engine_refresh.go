package clinicauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/clinicauth/internal/flows"
	"github.com/MrEthical07/clinicauth/refresh"
)

// Refresh rotates refreshToken and returns a new pair. The presented token
// is single-use: a replay, or the loser of a concurrent rotation, gets
// ErrInvalidRefreshToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	res := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		Rotate: func(ctx context.Context, presented string, authorize func(context.Context, string) error) (*flows.Rotation, error) {
			rot, err := e.refresh.Rotate(ctx, presented, authorize)
			if err != nil {
				return nil, err
			}
			return &flows.Rotation{
				UserID:     rot.UserID,
				PreviousID: rot.PreviousID,
				Token:      rot.Issued.Token,
				ExpiresAt:  rot.Issued.ExpiresAt,
			}, nil
		},
		FindUser: func(ctx context.Context, id string) (*flows.User, error) {
			p, err := e.store.FindByID(ctx, id)
			if err != nil || p == nil {
				return nil, err
			}
			return userFromPrincipal(p), nil
		},
		IssueAccessToken: func(u *flows.User) (string, error) {
			return e.signAccess(u.ID, u.Email, u.Role, u.MFAEnabled)
		},
		InvalidRefresh: refresh.ErrInvalidRefreshToken,
	})

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureInvalid, flows.RefreshFailureUserMissing:
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	case flows.RefreshFailureBackend:
		e.metricInc(MetricRefreshFailure)
		if errors.Is(res.Err, refresh.ErrStoreUnavailable) {
			return nil, res.Err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.metricInc(MetricRefreshFailure)
		return nil, res.Err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshRotated, true, res.UserID, nil, func() map[string]any {
		return map[string]any{"previousId": res.PreviousID}
	})
	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		TokenType:        tokenTypeBearer,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}, nil
}

// RevokeSession revokes refreshToken. Unknown and already revoked tokens are
// not errors; the result's Reason says which it was.
func (e *Engine) RevokeSession(ctx context.Context, refreshToken string) (refresh.RevokeResult, error) {
	res, err := e.refresh.Revoke(ctx, refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventRefreshRevokeFailed, false, "", err, nil)
		return refresh.RevokeResult{}, err
	}
	if !res.Revoked {
		e.emitAudit(ctx, auditEventRefreshRevokeFailed, false, res.UserID, nil, func() map[string]any {
			return map[string]any{"reason": res.Reason}
		})
		return res, nil
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventRefreshRevoked, true, res.UserID, nil, nil)
	return res, nil
}

// RevokeAllSessions revokes every active refresh token of principalID and
// returns how many were revoked.
func (e *Engine) RevokeAllSessions(ctx context.Context, principalID string) (int64, error) {
	if principalID == "" {
		return 0, ErrPrincipalNotFound
	}
	n, err := e.refresh.RevokeAll(ctx, principalID)
	if err != nil {
		e.emitAudit(ctx, auditEventRefreshRevokeAllFailed, false, principalID, err, nil)
		return 0, err
	}

	e.metricInc(MetricSessionRevokeAll)
	e.emitAudit(ctx, auditEventRefreshRevokedAll, true, principalID, nil, func() map[string]any {
		return map[string]any{"count": n}
	})
	return n, nil
}
