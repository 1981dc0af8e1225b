// Package logging assembles structured slog loggers for Constellation.
//
// It owns the console and JSON handlers, per-run log files tagged with run_id,
// and context helpers that stamp run, stage and language fields onto log lines
// so every branch of a run can be followed in isolation.
package logging
