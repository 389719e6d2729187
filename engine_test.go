package clinicauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/clinicauth/password"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef-test"
	testPassword = "correct-password-123"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var fastPassword = PasswordConfig{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
	BcryptCost:  bcrypt.MinCost,
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Password = fastPassword
	return cfg
}

func hashPassword(t testing.TB, pw string) string {
	t.Helper()
	h, err := password.NewHasher(password.Config{
		Memory:      fastPassword.Memory,
		Time:        fastPassword.Time,
		Parallelism: fastPassword.Parallelism,
		SaltLength:  fastPassword.SaltLength,
		KeyLength:   fastPassword.KeyLength,
		BcryptCost:  fastPassword.BcryptCost,
	})
	require.NoError(t, err)
	encoded, err := h.Hash(pw)
	require.NoError(t, err)
	return encoded
}

type testEngine struct {
	*Engine
	store *MemoryCredentialStore
	clock *fakeClock
}

type engineOption func(*Builder, *Config)

func withConfig(mutate func(*Config)) engineOption {
	return func(_ *Builder, cfg *Config) { mutate(cfg) }
}

func withSink(sink AuditSink) engineOption {
	return func(b *Builder, cfg *Config) {
		cfg.Audit.Enabled = true
		b.WithAuditSink(sink)
	}
}

func newTestEngine(t *testing.T, principals []Principal, opts ...engineOption) *testEngine {
	t.Helper()

	cfg := testConfig()
	store := NewMemoryCredentialStore(principals...)
	clock := newFakeClock()

	b := New().WithCredentialStore(store).WithClock(clock.Now)
	for _, opt := range opts {
		opt(b, &cfg)
	}
	engine, err := b.WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, store: store, clock: clock}
}

func doctor(t testing.TB) Principal {
	return Principal{
		ID:           "u-doc",
		Email:        "doc@test",
		Role:         RoleClinician,
		PasswordHash: hashPassword(t, testPassword),
	}
}

func patient(t testing.TB) Principal {
	return Principal{
		ID:           "u-pat",
		Email:        "pat@test",
		Role:         RolePatient,
		PasswordHash: hashPassword(t, testPassword),
	}
}

// currentCode returns the TOTP code for the principal's stored secret at the
// engine clock.
func (te *testEngine) currentCode(t *testing.T, id string) string {
	t.Helper()
	p, err := te.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	code, err := te.totp.Code(p.MFASecret, te.clock.Now())
	require.NoError(t, err)
	return code
}

// enableMFA enrolls and confirms TOTP for id.
func (te *testEngine) enableMFA(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := te.EnrollStepUp(ctx, id, "", "")
	require.NoError(t, err)
	_, err = te.VerifyStepUp(ctx, id, te.currentCode(t, id))
	require.NoError(t, err)
}

func bcryptHash(t testing.TB, pw string) string {
	t.Helper()
	out, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(out)
}

var errStoreDown = errors.New("connection refused")

type failingStore struct {
	err error
}

func (s failingStore) FindByEmail(context.Context, string) (*Principal, error) { return nil, s.err }
func (s failingStore) FindByID(context.Context, string) (*Principal, error) { return nil, s.err }
func (s failingStore) SetMFAEnabled(context.Context, string, bool) error { return s.err }
func (s failingStore) SetMFASecret(context.Context, string, string) error { return s.err }
