// Package limiters provides the sliding-window lockout that guards password
// logins.
//
// [Lockout] counts failures per key inside a rolling window and locks the key
// once the threshold is reached. An active lock is never extended by further
// failures; it simply expires.
//
// The package counts and locks. Flow functions decide what a lock means for
// the caller.
package limiters
