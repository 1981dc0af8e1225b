// Package pipeline drives one episode through research, script, per-language
// transformation and synthesis as a state machine over the artifact cache.
//
// Research and script run first and are fatal on failure. Each language then
// runs as an independent branch in a bounded errgroup: the primary language
// goes straight to synthesis, secondaries are transformed first. Every stage
// call goes through cache.Manager, so a rerun only pays for stages whose
// inputs changed. The WorkUnit for each stage folds in the upstream payload
// digest, which makes invalidation transitive.
//
// Transient failures are retried with capped exponential backoff; a cache
// miss reserves its estimated cost against the episode and daily budgets
// before the adapter is called. The resulting Manifest references artifacts
// by fingerprint only.
package pipeline
