// Package services defines shared utilities consumed by the pipeline and its
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, language branches and
//     correlation identifiers for logging.
//   - The error taxonomy (compute failure, store unavailable, fingerprint
//     collision, partial language failure) plus classification markers that
//     decide whether a failure is retried.
//   - The Wrap helper that keeps stage context in error strings while leaving
//     markers matchable with errors.Is.
//
// HTTP clients for the text and speech providers live in subpackages.
package services
