package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/clinicauth/envelope"
	"github.com/jackc/pgx/v5"
)

// Rewrapper re-encrypts a value under the current primary key.
// *envelope.Encrypter satisfies it.
type Rewrapper interface {
	Rewrap(value string) (string, bool, error)
}

// RewrapSecrets re-encrypts every stored mfa_secret that is plaintext or
// sealed under a retired key, and returns how many rows changed.
func (s *UserStore) RewrapSecrets(ctx context.Context, r Rewrapper) (int, error) {
	if r == nil {
		return 0, errors.New("pgstore: rewrapper required")
	}

	rows, err := s.db.Query(ctx, `SELECT id, mfa_secret FROM users WHERE mfa_secret IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("pgstore: list secrets: %w", err)
	}
	type stored struct {
		id     string
		secret string
	}
	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stored, error) {
		var v stored
		err := row.Scan(&v.id, &v.secret)
		return v, err
	})
	if err != nil {
		return 0, fmt.Errorf("pgstore: list secrets: %w", err)
	}

	changed := 0
	for _, v := range pending {
		next, ok, err := s.upgrade(v.secret, r)
		if err != nil {
			return changed, err
		}
		if !ok {
			continue
		}
		if _, err := s.db.Exec(ctx, `
			UPDATE users
			SET mfa_secret = $2, updated_at = now()
			WHERE id = $1 AND mfa_secret = $3
		`, v.id, next, v.secret); err != nil {
			return changed, fmt.Errorf("pgstore: rewrap %s: %w", v.id, err)
		}
		changed++
	}
	return changed, nil
}

// upgrade returns the value to store for secret. Plaintext secrets are
// encrypted with the store cipher when one is configured.
func (s *UserStore) upgrade(secret string, r Rewrapper) (string, bool, error) {
	next, ok, err := r.Rewrap(secret)
	if err != nil || ok {
		return next, ok, err
	}
	if s.cipher == nil || strings.HasPrefix(secret, envelope.Prefix) {
		return secret, false, nil
	}
	enc, err := s.cipher.Encrypt(secret)
	if err != nil {
		return secret, false, err
	}
	return enc, enc != secret, nil
}
