package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

const (
	tokenRawSize = 48

	// DefaultTTL is seven days.
	DefaultTTL = 7 * 24 * time.Hour

	ReasonNotFound       = "NOT_FOUND"
	ReasonAlreadyRevoked = "ALREADY_REVOKED"
)

var (
	// ErrInvalidRefreshToken covers absent, revoked, expired and raced tokens alike.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("refresh token not found")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
	// ErrUserRequired is returned by RevokeAll for an empty user id.
	ErrUserRequired = errors.New("user id required")
)

// Record is the persisted form of a refresh token.
type Record struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the record is unrevoked and unexpired at now.
func (r *Record) Active(now time.Time) bool {
	return r != nil && r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Store persists refresh records. Implementations must make Rotate atomic:
// the presented record is revoked and next inserted only if the presented
// record is active at now. Rotate fills next.UserID from the presented record
// and returns the revoked record.
type Store interface {
	Create(ctx context.Context, rec Record) error
	FindByHash(ctx context.Context, hash string) (*Record, error)
	Rotate(ctx context.Context, presentedHash string, next Record, now time.Time) (*Record, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeByHash(ctx context.Context, hash string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

// Pinger is implemented by stores backed by a network service.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Config controls token lifetime and the clock.
type Config struct {
	TTL time.Duration
	Now func() time.Time
}

// Issued is a freshly minted token. Token is the only copy of the raw value.
type Issued struct {
	ID        string
	Token     string
	ExpiresAt time.Time
}

// Rotated is the result of a successful rotation.
type Rotated struct {
	UserID     string
	PreviousID string
	Issued
}

// RevokeResult distinguishes why a revoke did or did not happen.
type RevokeResult struct {
	Revoked bool
	Found   bool
	UserID  string
	Reason  string
}

// Manager implements issue/rotate/revoke on top of a Store.
type Manager struct {
	store  Store
	config Config
	rand   io.Reader
}

// NewManager returns a Manager over store.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("refresh store required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid refresh TTL")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{store: store, config: cfg, rand: rand.Reader}, nil
}

// HashToken returns the hex SHA-256 of token, the only form stores see.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue mints a token for userID and stores its hash.
func (m *Manager) Issue(ctx context.Context, userID string) (*Issued, error) {
	token, rec, err := m.newRecord(userID)
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return &Issued{ID: rec.ID, Token: token, ExpiresAt: rec.ExpiresAt}, nil
}

// Rotate exchanges presented for a new token. authorize, when set, runs after
// the presented record is found active and before it is consumed; an error
// from it aborts the rotation without revoking anything.
func (m *Manager) Rotate(
	ctx context.Context,
	presented string,
	authorize func(ctx context.Context, userID string) error,
) (*Rotated, error) {
	if presented == "" {
		return nil, ErrInvalidRefreshToken
	}
	hash := HashToken(presented)
	now := m.config.Now()

	rec, err := m.store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !rec.Active(now) {
		return nil, ErrInvalidRefreshToken
	}
	if authorize != nil {
		if err := authorize(ctx, rec.UserID); err != nil {
			return nil, err
		}
	}

	token, next, err := m.newRecord(rec.UserID)
	if err != nil {
		return nil, err
	}
	prev, err := m.store.Rotate(ctx, hash, next, now)
	if err != nil {
		return nil, err
	}

	return &Rotated{
		UserID:     prev.UserID,
		PreviousID: prev.ID,
		Issued:     Issued{ID: next.ID, Token: token, ExpiresAt: next.ExpiresAt},
	}, nil
}

// Revoke revokes presented. It never fails for unknown tokens; the result
// says whether the token was found and whether it was already revoked.
func (m *Manager) Revoke(ctx context.Context, presented string) (RevokeResult, error) {
	if presented == "" {
		return RevokeResult{Reason: ReasonNotFound}, nil
	}
	hash := HashToken(presented)

	rec, err := m.store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RevokeResult{Reason: ReasonNotFound}, nil
		}
		return RevokeResult{}, err
	}
	if rec.RevokedAt != nil {
		return RevokeResult{Found: true, UserID: rec.UserID, Reason: ReasonAlreadyRevoked}, nil
	}

	revoked, err := m.store.RevokeByHash(ctx, hash, m.config.Now())
	if err != nil {
		return RevokeResult{}, err
	}
	if !revoked {
		return RevokeResult{Found: true, UserID: rec.UserID, Reason: ReasonAlreadyRevoked}, nil
	}
	return RevokeResult{Revoked: true, Found: true, UserID: rec.UserID}, nil
}

// RevokeAll revokes every active token owned by userID.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUserRequired
	}
	return m.store.RevokeAllForUser(ctx, userID, m.config.Now())
}

// Ping checks the store when it implements Pinger. Other stores report
// zero latency and no error.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	p, ok := m.store.(Pinger)
	if !ok {
		return 0, nil
	}
	return p.Ping(ctx)
}

func (m *Manager) newRecord(userID string) (string, Record, error) {
	raw := make([]byte, tokenRawSize)
	if _, err := io.ReadFull(m.rand, raw); err != nil {
		return "", Record{}, fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	now := m.config.Now()
	return token, Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(m.config.TTL),
		CreatedAt: now,
	}, nil
}
