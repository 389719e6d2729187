// Package middleware exposes net/http adapters over clinicauth.Engine bearer
// authentication.
//
// # Guards
//
//   - [Require] accepts local access tokens and, when the bridge is enabled,
//     external provider tokens.
//   - [RequireStepUpPending] accepts only step-up tokens issued by Login for
//     principals with a second factor.
//   - [RequireRole] restricts an authenticated route to a set of roles.
//
// Each guard reads the Authorization header, delegates verification to the
// Engine and stores the resulting principal in the request context, where
// [PrincipalFromContext] finds it.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or look up principals itself. Rejections are written as
// {"error":{"code":...,"message":...}} with the status from clinicauth.StatusOf.
package middleware
