package password

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hasher verifies Argon2id and bcrypt hashes and produces Argon2id ones.
//
// Every verification, including [Hasher.VerifyDummy], costs one Argon2id
// pass and one bcrypt comparison: the scheme not matching the stored hash
// is run against a throwaway hash. Response time therefore does not tell
// unknown emails apart from legacy bcrypt accounts, as long as legacy hashes
// use Config.BcryptCost.
type Hasher struct {
	argon      *Argon2
	bcryptCost int

	dummyOnce   sync.Once
	dummy       string
	dummyBcrypt []byte
	dummyErr    error
}

// NewHasher returns a Hasher that hashes with cfg.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("password bcrypt cost must be in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{argon: a, bcryptCost: cost}, nil
}

// Hash returns an Argon2id PHC string.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify checks password against encoded, dispatching on the hash prefix.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if len(password) > h.argon.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	switch {
	case strings.HasPrefix(encoded, "$"+algorithmID+"$"):
		ok, err := h.argon.Verify(password, encoded)
		h.burnBcrypt(password)
		return ok, err
	case isBcrypt(encoded):
		h.burnArgon(password)
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, ErrInvalidHash
	default:
		return false, ErrInvalidHash
	}
}

// NeedsRehash is true for bcrypt hashes and for Argon2id hashes made with
// weaker parameters. Unparseable hashes report false.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	upgrade, err := h.argon.NeedsUpgrade(encoded)
	return err == nil && upgrade
}

// VerifyDummy burns the same work as a real verification against hashes
// nobody knows the password to. Callers use it when no principal matched so
// that unknown and known identifiers take comparable time.
func (h *Hasher) VerifyDummy(password string) {
	h.burnArgon(password)
	h.burnBcrypt(password)
}

func (h *Hasher) initDummies() {
	h.dummyOnce.Do(func() {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err != nil {
			h.dummyErr = err
			return
		}
		secret := base64.RawStdEncoding.EncodeToString(raw)
		if h.dummy, h.dummyErr = h.argon.Hash(secret); h.dummyErr != nil {
			return
		}
		h.dummyBcrypt, h.dummyErr = bcrypt.GenerateFromPassword([]byte(secret), h.bcryptCost)
	})
}

func (h *Hasher) burnArgon(password string) {
	h.initDummies()
	if h.dummyErr != nil {
		return
	}
	_, _ = h.argon.Verify(password, h.dummy)
}

func (h *Hasher) burnBcrypt(password string) {
	h.initDummies()
	if h.dummyErr != nil {
		return
	}
	// bcrypt only reads the first 72 bytes.
	if len(password) > 72 {
		password = password[:72]
	}
	_ = bcrypt.CompareHashAndPassword(h.dummyBcrypt, []byte(password))
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
