package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

const (
	// SecretBytes is the size of generated shared secrets (160 bits).
	SecretBytes = 20

	DefaultDigits = 6
	DefaultPeriod = 30
	DefaultSkew   = 1
)

var (
	ErrEmptySecret          = errors.New("empty otp secret")
	ErrUnsupportedAlgorithm = errors.New("unsupported otp algorithm")
	ErrInvalidConfig        = errors.New("invalid otp configuration")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls code shape and verification tolerance.
//
// Skew is the number of time steps accepted on either side of the current one.
type Config struct {
	Digits    int
	Period    int
	Skew      int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
}

// DefaultConfig returns 6 digits, 30 second steps, one step of skew, SHA1.
func DefaultConfig() Config {
	return Config{
		Digits:    DefaultDigits,
		Period:    DefaultPeriod,
		Skew:      DefaultSkew,
		Algorithm: "SHA1",
	}
}

// Manager generates and verifies codes for a fixed configuration.
type Manager struct {
	config Config
}

// New validates cfg, filling zero values with defaults.
func New(cfg Config) (*Manager, error) {
	if cfg.Digits == 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, fmt.Errorf("%w: digits must be 6..8", ErrInvalidConfig)
	}
	if cfg.Period < 1 {
		return nil, fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if cfg.Skew < 0 || cfg.Skew > 10 {
		return nil, fmt.Errorf("%w: skew must be 0..10", ErrInvalidConfig)
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)
	return &Manager{config: cfg}, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// GenerateSecret returns a fresh base32 (unpadded) 160-bit secret.
func (m *Manager) GenerateSecret() (string, error) {
	return GenerateSecret()
}

// GenerateSecret returns a fresh base32 (unpadded) 160-bit secret.
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return secretEncoding.EncodeToString(raw), nil
}

// Code returns the TOTP code for secret at t.
func (m *Manager) Code(secret string, t time.Time) (string, error) {
	key := DecodeSecret(secret)
	if len(key) == 0 {
		return "", ErrEmptySecret
	}
	return hotpCode(key, uint64(t.Unix()/int64(m.config.Period)), m.config.Digits, m.config.Algorithm)
}

// Verify reports whether code matches secret at t within the configured skew.
// Every candidate step is compared in constant time.
func (m *Manager) Verify(secret, code string, t time.Time) bool {
	ok, _ := m.VerifyCounter(secret, code, t)
	return ok
}

// VerifyCounter is Verify that also returns the matched counter.
func (m *Manager) VerifyCounter(secret, code string, t time.Time) (bool, int64) {
	trimmed := strings.TrimSpace(code)
	if secret == "" || trimmed == "" {
		return false, 0
	}
	if len(trimmed) != m.config.Digits || !isNumericString(trimmed) {
		return false, 0
	}
	key := DecodeSecret(secret)
	if len(key) == 0 {
		return false, 0
	}

	matched := int64(-1)
	baseCounter := t.Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, uint64(counter), m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, 0
		}
		// keep scanning after a hit so timing does not reveal which step matched
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 && matched < 0 {
			matched = counter
		}
	}
	if matched < 0 {
		return false, 0
	}
	return true, matched
}

// HOTP computes the RFC 4226 HMAC-SHA1 code for counter.
func HOTP(secret []byte, counter uint64, digits int) string {
	code, _ := hotpCode(secret, counter, digits, "SHA1")
	return code
}

func hotpCode(secret []byte, counter uint64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// DecodeSecret decodes a base32 secret, dropping padding and any character
// outside A-Z2-7 after uppercasing. Trailing bits that do not fill a byte are
// discarded.
func DecodeSecret(secret string) []byte {
	out := make([]byte, 0, len(secret)*5/8)
	var (
		value uint32
		bits  uint
	)
	for _, r := range strings.ToUpper(secret) {
		var idx uint32
		switch {
		case r >= 'A' && r <= 'Z':
			idx = uint32(r - 'A')
		case r >= '2' && r <= '7':
			idx = uint32(r-'2') + 26
		default:
			continue
		}
		value = (value << 5) | idx
		bits += 5
		if bits >= 8 {
			out = append(out, byte(value>>(bits-8)))
			bits -= 8
			value &= (1 << bits) - 1
		}
	}
	return out
}

func isNumericString(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
