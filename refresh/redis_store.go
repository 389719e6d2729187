package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces refresh keys.
const DefaultRedisPrefix = "crt"

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusRevoked  int64 = 2
	rotateStatusRotated  int64 = 3
)

// extendUserSetLua moves a user set's expiry out to at_ms, never in, so the
// set lives as long as its longest-lived record.
const extendUserSetLua = `
local function extend_user_set(key, now_ms, at_ms)
  local ttl = redis.call("PTTL", key)
  if ttl < 0 or now_ms + ttl < at_ms then
    redis.call("PEXPIREAT", key, at_ms)
  end
end
`

// KEYS[1] user set. ARGV: now_ms, expires_ms, token hash.
const addToUserSetScript = extendUserSetLua + `
redis.call("SADD", KEYS[1], ARGV[3])
extend_user_set(KEYS[1], tonumber(ARGV[1]), tonumber(ARGV[2]))
return 1
`

// KEYS[1] presented record, KEYS[2] next record, KEYS[3] next id index.
// ARGV: now_ms, next_id, next_hash, next_expires_ms, user key prefix.
const rotateScript = extendUserSetLua + `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local f = redis.call("HMGET", KEYS[1], "id", "user_id", "expires_at", "revoked_at")
local now = tonumber(ARGV[1])
if f[4] and f[4] ~= "" then
  return {2}
end
local expires_at = tonumber(f[3])
if not expires_at or expires_at <= now then
  return {1}
end

redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
redis.call("HSET", KEYS[2],
  "id", ARGV[2],
  "user_id", f[2],
  "expires_at", ARGV[4],
  "revoked_at", "",
  "created_at", ARGV[1])
redis.call("PEXPIREAT", KEYS[2], ARGV[4])
redis.call("SET", KEYS[3], ARGV[3])
redis.call("PEXPIREAT", KEYS[3], ARGV[4])
redis.call("SADD", ARGV[5] .. f[2], ARGV[3])
extend_user_set(ARGV[5] .. f[2], now, tonumber(ARGV[4]))

return {3, f[1], f[2], f[3]}
`

var rotateLua = redis.NewScript(rotateScript)

// KEYS[1] record. ARGV[1] now_ms. Returns 1 when this call revoked it.
const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local revoked_at = redis.call("HGET", KEYS[1], "revoked_at")
if revoked_at and revoked_at ~= "" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// KEYS[1] user set. ARGV[1] now_ms, ARGV[2] record key prefix.
const revokeAllScript = `
local hashes = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, h in ipairs(hashes) do
  local key = ARGV[2] .. h
  if redis.call("EXISTS", key) == 0 then
    redis.call("SREM", KEYS[1], h)
  else
    local revoked_at = redis.call("HGET", key, "revoked_at")
    if not revoked_at or revoked_at == "" then
      redis.call("HSET", key, "revoked_at", ARGV[1])
      n = n + 1
    end
  end
end
return n
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// RedisStore keeps each record as a hash keyed by token hash, expiring at the
// record's own expiry. Revoked records are retained until then so replays are
// reported as already revoked rather than unknown.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) recordPrefix() string { return s.prefix + ":h:" }
func (s *RedisStore) userPrefix() string   { return s.prefix + ":u:" }

func (s *RedisStore) recordKey(hash string) string { return s.recordPrefix() + hash }
func (s *RedisStore) idKey(id string) string       { return s.prefix + ":id:" + id }
func (s *RedisStore) userKey(userID string) string { return s.userPrefix() + userID }

func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	key := s.recordKey(rec.TokenHash)
	now := rec.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	revokedAt := ""
	if rec.RevokedAt != nil {
		revokedAt = strconv.FormatInt(rec.RevokedAt.UnixMilli(), 10)
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", rec.ID,
			"user_id", rec.UserID,
			"expires_at", rec.ExpiresAt.UnixMilli(),
			"revoked_at", revokedAt,
			"created_at", rec.CreatedAt.UnixMilli(),
		)
		pipe.ExpireAt(ctx, key, rec.ExpiresAt)
		pipe.Set(ctx, s.idKey(rec.ID), rec.TokenHash, 0)
		pipe.ExpireAt(ctx, s.idKey(rec.ID), rec.ExpiresAt)
		pipe.Eval(ctx, addToUserSetScript, []string{s.userKey(rec.UserID)},
			now.UnixMilli(), rec.ExpiresAt.UnixMilli(), rec.TokenHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) FindByHash(ctx context.Context, hash string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(hash, fields)
}

func (s *RedisStore) Rotate(ctx context.Context, presentedHash string, next Record, now time.Time) (*Record, error) {
	res, err := rotateLua.Run(ctx, s.redis,
		[]string{s.recordKey(presentedHash), s.recordKey(next.TokenHash), s.idKey(next.ID)},
		now.UnixMilli(),
		next.ID,
		next.TokenHash,
		next.ExpiresAt.UnixMilli(),
		s.userPrefix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate reply", ErrStoreUnavailable)
	}

	status, _ := res[0].(int64)
	switch status {
	case rotateStatusRotated:
	case rotateStatusNotFound, rotateStatusExpired, rotateStatusRevoked:
		return nil, ErrInvalidRefreshToken
	default:
		return nil, fmt.Errorf("%w: unexpected rotate status %v", ErrStoreUnavailable, res[0])
	}
	if len(res) < 4 {
		return nil, fmt.Errorf("%w: short rotate reply", ErrStoreUnavailable)
	}

	id, _ := res[1].(string)
	userID, _ := res[2].(string)
	expiresRaw, _ := res[3].(string)
	expiresMS, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad expires_at %q", ErrStoreUnavailable, expiresRaw)
	}
	at := time.UnixMilli(now.UnixMilli())
	return &Record{
		ID:        id,
		UserID:    userID,
		TokenHash: presentedHash,
		ExpiresAt: time.UnixMilli(expiresMS),
		RevokedAt: &at,
	}, nil
}

func (s *RedisStore) Revoke(ctx context.Context, id string, at time.Time) error {
	hash, err := s.redis.Get(ctx, s.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_, err = s.RevokeByHash(ctx, hash, at)
	return err
}

func (s *RedisStore) RevokeByHash(ctx context.Context, hash string, at time.Time) (bool, error) {
	n, err := revokeLua.Run(ctx, s.redis, []string{s.recordKey(hash)}, at.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	n, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		at.UnixMilli(),
		s.recordPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func decodeRecord(hash string, fields map[string]string) (*Record, error) {
	rec := &Record{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		TokenHash: hash,
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad expires_at for record %s", ErrStoreUnavailable, rec.ID)
	}
	rec.ExpiresAt = time.UnixMilli(expires)
	if created, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		rec.CreatedAt = time.UnixMilli(created)
	}
	if raw := fields["revoked_at"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad revoked_at for record %s", ErrStoreUnavailable, rec.ID)
		}
		at := time.UnixMilli(ms)
		rec.RevokedAt = &at
	}
	return rec, nil
}
