package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"constellation/internal/config"
	"constellation/internal/logging"
	"constellation/internal/services"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Info("hello")
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "constellation.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func newFileLogger(t *testing.T) (string, func() string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "out.log")
	return logPath, func() string {
		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")
	if out := read(); strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", out)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")
	if out := read(); !strings.Contains(out, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", out)
	}
}

func TestConsolePrefixIncludesComponentAndLanguage(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "pipeline").Info("stage started", logging.String(logging.FieldLanguage, "hindi"), logging.String("stage", "transform"))
	out := read()
	if !strings.Contains(out, "pipeline[hindi]: stage started") {
		t.Fatalf("expected component and language prefix, got %q", out)
	}
	if strings.Contains(out, "language=") {
		t.Fatalf("language should be folded into prefix, got %q", out)
	}
	if !strings.Contains(out, "stage=transform") {
		t.Fatalf("expected stage attribute, got %q", out)
	}
}

func TestConsoleShortensFingerprints(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	full := strings.Repeat("ab", 32)
	logger.Info("cache hit", logging.String(logging.FieldFingerprint, full), logging.Duration("elapsed", 1500*time.Microsecond))
	out := read()
	if !strings.Contains(out, "fingerprint="+full[:12]+" ") {
		t.Fatalf("expected shortened fingerprint, got %q", out)
	}
	if strings.Contains(out, full) {
		t.Fatalf("full fingerprint leaked into console output: %q", out)
	}
	if !strings.Contains(out, "elapsed=2ms") {
		t.Fatalf("expected rounded duration, got %q", out)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("cache miss", logging.String(logging.FieldFingerprint, "abc"))

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if record["level"] != "warn" || record["msg"] != "cache miss" || record["fingerprint"] != "abc" {
		t.Fatalf("unexpected record %#v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key in %#v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsRunFields(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithStage(ctx, "synthesize")
	ctx = services.WithLanguage(ctx, "tamil")
	logging.WithContext(ctx, logger).Info("branch")

	out := read()
	for _, want := range []string{`"run_id":"run-1"`, `"stage":"synthesize"`, `"language":"tamil"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %q", want, out)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "budget nearly spent", "budget_warning")
	out := read()
	for _, want := range []string{`"event_type":"budget_warning"`, `"error_hint"`, `"impact"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %q", want, out)
		}
	}
}

func TestOpenRunLogTagsRecords(t *testing.T) {
	logDir := t.TempDir()
	run, err := logging.OpenRunLog(logging.NewNop(), logDir, "run-42", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("OpenRunLog: %v", err)
	}
	run.Logger.Info("assembled", logging.String("outcome", "succeeded"))
	if err := run.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if filepath.Base(run.Path) != "20260102T030405Z-run-42.log" {
		t.Fatalf("unexpected run log name %q", run.Path)
	}
	content, err := os.ReadFile(run.Path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(content), `"run_id":"run-42"`) {
		t.Fatalf("expected run_id in %q", content)
	}
}

func TestCleanupRunLogsRemovesExpired(t *testing.T) {
	logDir := t.TempDir()
	dir := logging.RunLogDir(logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	oldPath := filepath.Join(dir, "old.log")
	keepPath := filepath.Join(dir, "keep.log")
	freshPath := filepath.Join(dir, "fresh.log")
	for _, p := range []string{oldPath, keepPath, freshPath} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{oldPath, keepPath} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatal(err)
		}
	}

	removed := logging.CleanupRunLogs(nil, logDir, 5, keepPath)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{keepPath, freshPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
	if logging.CleanupRunLogs(nil, logDir, 0, "") != 0 {
		t.Fatal("retention 0 should disable pruning")
	}
}
