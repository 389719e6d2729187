// Package internal holds implementation packages that are private to clinicauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestrators for Engine operations
//   - httpapi: gorilla/mux routes over the Engine
//   - limiters: sliding-window failure lockout
//   - rate: fixed-window request limits, Redis-backed or in memory
//
// Types declared here never appear in the public clinicauth API.
package internal
