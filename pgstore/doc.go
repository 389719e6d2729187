// Package pgstore is a Postgres clinicauth.CredentialStore built on pgx.
//
// TOTP secrets are stored envelope-encrypted in users.mfa_secret when a
// Cipher is supplied; rows written before encryption was enabled are read
// as plaintext and upgraded by RewrapSecrets.
package pgstore
