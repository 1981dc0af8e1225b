// Package runner wires configuration, the artifact store, the cache manager,
// the stage adapters and the pipeline orchestrator into a single generation
// run.
//
// A run takes the data directory lock, opens a per-run log, applies the cache
// eviction policy, executes the plan and writes the manifest atomically to the
// output directory. On return the cache is drained so no computed artifact is
// lost to an early exit. The outcome is pushed through the notifications
// service unless the run was cancelled.
package runner
