// Package attendance implements the attendance session core.
//
// It owns the per-identity sign-in state machine, computes session
// durations on close, and force-closes sessions still open at the
// configured daily cutoff. Persistence lives behind Store; card
// resolution and transport are handled by the caller.
package attendance
