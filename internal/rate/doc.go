// Package rate provides fixed-window request limiters for the HTTP surface.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit in Redis, or
// an in-process table with the same semantics. Keys are "<prefix>:<bucket>:<key>",
// for example "crl:login:203.0.113.7".
//
// # What this package must NOT do
//
//   - Decide which routes are limited (internal/httpapi does that).
//   - Touch the login lockout, which counts credential failures, not requests.
package rate
