// Package otp implements HOTP (RFC 4226) and TOTP (RFC 6238) one-time codes over
// base32 shared secrets, plus otpauth:// provisioning URIs for authenticator apps.
//
// # Secrets
//
// Secrets are 160-bit random values encoded with the RFC 4648 base32 alphabet
// without padding. Decoding is permissive: lowercase input is accepted and
// characters outside the alphabet are dropped, so user-typed secrets with
// spaces or dashes still work.
//
// # What this package must NOT do
//
//   - Persist or log secrets.
//   - Track replayed codes (callers own replay policy).
package otp
