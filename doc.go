// Package clinicauth is the authentication and data-protection core of the
// clinic records service.
//
// The [Engine] establishes who a caller is (password login, local access
// tokens, or identity-provider tokens), enforces a TOTP second factor,
// rotates single-use refresh tokens and encrypts sensitive columns at rest.
// It is assembled by a [Builder] from a [CredentialStore], a refresh store
// and an optional [AuditSink]; HTTP, persistence of business data and
// secret loading stay outside.
//
// Engine methods are safe for concurrent use after [Builder.Build].
//
// # Leaf packages
//
//   - otp: HOTP/TOTP codes, provisioning URIs and QR images.
//   - envelope: AES-256-GCM field encryption with a rotating key ring.
//   - jwt: local access and step-up tokens.
//   - refresh: opaque refresh tokens with memory, Redis and Postgres stores.
//   - oidc: identity-provider token classification, verification and policy.
//   - password: Argon2id hashing with bcrypt verification for legacy hashes.
package clinicauth
