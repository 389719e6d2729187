// Package oidc verifies identity-provider access tokens and applies the
// step-up policy to them.
//
// [Classify] routes a bearer token to local or external verification using
// its unverified iss/aud claims. [KeySet] caches the provider's JWKS and
// coalesces concurrent fetches. [Verifier] checks signature, algorithm,
// issuer, audience and expiry. [Policy] maps claims to a principal email and
// enforces amr/acr requirements for roles that need step-up.
package oidc
