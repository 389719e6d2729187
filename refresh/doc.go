// Package refresh issues, rotates and revokes opaque single-use refresh tokens.
//
// # Token format
//
// 48 random bytes, base64url without padding. The raw value is returned to the
// caller exactly once, at issuance; stores only ever see its SHA-256 hex hash.
//
// # Rotation
//
// Rotation revokes the presented record and inserts its successor as one
// atomic step at the store. Two concurrent rotations of the same token yield at
// most one success; the loser fails with [ErrInvalidRefreshToken].
//
// # Stores
//
//   - [MemoryStore]: mutex-guarded maps, for tests and single-process use.
//   - [RedisStore]: Lua scripts for compare-and-set rotation.
//   - [PostgresStore]: conditional UPDATE … RETURNING inside a transaction.
package refresh
