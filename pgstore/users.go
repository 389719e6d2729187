package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/clinicauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the users table UserStore expects. Emails are unique
// regardless of case.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	mfa_enabled   BOOLEAN NOT NULL DEFAULT false,
	mfa_secret    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email));
`

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Cipher protects mfa_secret at rest. *envelope.Encrypter satisfies it.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) string
}

// UserStore implements clinicauth.CredentialStore over the users table.
type UserStore struct {
	db     DB
	cipher Cipher
}

var _ clinicauth.CredentialStore = (*UserStore)(nil)
var _ clinicauth.PasswordUpdater = (*UserStore)(nil)

// NewUserStore returns a store over db. A nil cipher stores secrets as is.
func NewUserStore(db DB, cipher Cipher) *UserStore {
	return &UserStore{db: db, cipher: cipher}
}

// EnsureSchema applies Schema.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

const selectUser = `
	SELECT id, email, role, password_hash, mfa_enabled, mfa_secret
	FROM users
`

// FindByEmail matches case-insensitively, so rows written before emails
// were normalized still resolve.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*clinicauth.Principal, error) {
	return s.scanOne(s.db.QueryRow(ctx, selectUser+`WHERE lower(email) = lower($1)`, normalizeEmail(email)))
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*clinicauth.Principal, error) {
	return s.scanOne(s.db.QueryRow(ctx, selectUser+`WHERE id = $1`, id))
}

func (s *UserStore) scanOne(row pgx.Row) (*clinicauth.Principal, error) {
	var (
		p      clinicauth.Principal
		role   string
		secret *string
	)
	if err := row.Scan(&p.ID, &p.Email, &role, &p.PasswordHash, &p.MFAEnabled, &secret); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pgstore: find user: %w", err)
	}
	p.Role = clinicauth.Role(role)
	if secret != nil {
		p.MFASecret = s.decrypt(*secret)
	}
	return &p, nil
}

func (s *UserStore) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users
		SET mfa_enabled = $2, updated_at = now()
		WHERE id = $1
	`, id, enabled)
	if err != nil {
		return fmt.Errorf("pgstore: set mfa enabled: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id, hash)
	if err != nil {
		return fmt.Errorf("pgstore: update password hash: %w", err)
	}
	return nil
}

// SetMFASecret encrypts and stores secret. An empty secret writes NULL.
func (s *UserStore) SetMFASecret(ctx context.Context, id string, secret string) error {
	var value *string
	if secret != "" {
		enc, err := s.encrypt(secret)
		if err != nil {
			return fmt.Errorf("pgstore: encrypt mfa secret: %w", err)
		}
		value = &enc
	}

	_, err := s.db.Exec(ctx, `
		UPDATE users
		SET mfa_secret = $2, updated_at = now()
		WHERE id = $1
	`, id, value)
	if err != nil {
		return fmt.Errorf("pgstore: set mfa secret: %w", err)
	}
	return nil
}

// Insert adds a principal with its email trimmed and lowercased. The MFA
// secret, if any, is encrypted.
func (s *UserStore) Insert(ctx context.Context, p clinicauth.Principal) error {
	var secret *string
	if p.MFASecret != "" {
		enc, err := s.encrypt(p.MFASecret)
		if err != nil {
			return fmt.Errorf("pgstore: encrypt mfa secret: %w", err)
		}
		secret = &enc
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, role, password_hash, mfa_enabled, mfa_secret)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, normalizeEmail(p.Email), string(p.Role), p.PasswordHash, p.MFAEnabled, secret)
	if err != nil {
		return fmt.Errorf("pgstore: insert user: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserStore) encrypt(v string) (string, error) {
	if s.cipher == nil {
		return v, nil
	}
	return s.cipher.Encrypt(v)
}

func (s *UserStore) decrypt(v string) string {
	if s.cipher == nil {
		return v
	}
	return s.cipher.Decrypt(v)
}
