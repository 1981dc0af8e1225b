// Package logs locates and tails the per-run log files written by the runner.
//
// Run logs live under <log_dir>/runs and are named by start time and run ID,
// so List can order them without opening each file. Tail reads the last N
// lines with bounded memory and can follow a file while a run is still
// writing to it.
package logs
