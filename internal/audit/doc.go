// Package audit carries security events from the Engine to a sink without
// putting sink latency on the request path.
//
// Events are redacted when they enter the [Dispatcher], so no sink ever sees
// a raw refresh token, password or MFA code in metadata. The dispatcher's
// worker owns delivery; a full buffer either drops (counted) or blocks the
// emitter until its context ends.
package audit
