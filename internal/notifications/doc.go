// Package notifications pushes run outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on whether notifications are enabled. Delivery
// failures are returned to the caller, which logs them; a failed push never
// changes a run's outcome.
package notifications
