package oidc

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConfigured     = errors.New("oidc not configured")
	ErrExternalRequired  = errors.New("external identity token required")
	ErrInvalidToken      = errors.New("invalid external token")
	ErrKeyNotFound       = fmt.Errorf("%w: signing key not found", ErrInvalidToken)
	ErrKeyFetchFailed    = errors.New("oidc key set fetch failed")
	ErrKeySetInvalid     = fmt.Errorf("%w: malformed key set", ErrKeyFetchFailed)
	ErrClaimMissing      = errors.New("oidc email claim missing")
	ErrPrincipalNotFound = errors.New("oidc principal not found")
	ErrStepUpRequired    = errors.New("step-up authentication required")
)

// IsCanceled reports whether err comes from ctx being canceled or timing
// out, as opposed to the provider failing.
func IsCanceled(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
