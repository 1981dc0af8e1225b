// Package cache wraps the artifact store with get-or-compute semantics.
//
// Every call is keyed by the fingerprint of its work unit. A hit returns the
// stored payload; a miss runs the compute function inside a per-fingerprint
// single flight, stores the result and hands it to every waiter. Failures are
// never stored and are delivered to all waiters of that flight.
//
// Store failures surface as services.ErrStoreUnavailable and payload mismatches
// as services.ErrFingerprintCollision; both are fatal to a run.
package cache
