// Package flows contains pure-function orchestrators for the Engine's
// authentication operations.
//
// Each flow function (RunLogin, RunRefresh, RunAuthenticate) accepts a typed
// dependency struct and returns a result carrying either the outcome or a
// failure kind. The root package maps failure kinds onto its public errors,
// audit events and metrics.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the lockout tracker, token managers,
// the external identity bridge and the credential store. They do NOT own any
// of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import clinicauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
