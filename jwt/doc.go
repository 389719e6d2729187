// Package jwt signs and verifies locally issued access tokens and short-lived
// step-up tokens with pinned algorithms and strict issuer/audience/expiry checks.
//
// Every verification failure is reported as [ErrInvalidToken] (expiry as
// [ErrTokenExpired], which matches ErrInvalidToken under errors.Is) so callers
// never learn which check failed.
package jwt
