// Package artifacts persists generated stage outputs keyed by fingerprint.
//
// The store is a single SQLite database (WAL, synchronous=FULL, immediate
// transactions) holding one immutable row per fingerprint plus an append-only
// spend ledger. Writes commit before returning. Put refuses to overwrite a
// fingerprint with a different payload, and eviction only happens through the
// explicit age and size policies or Purge.
//
// Callers inside a run go through the cache manager; the CLI reads the store
// directly for stats, listing and export.
package artifacts
