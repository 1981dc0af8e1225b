package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"constellation/internal/logging"
	"constellation/internal/logs"
)

func writeRunLog(t *testing.T, logDir, name, content string) string {
	t.Helper()
	dir := logging.RunLogDir(logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write run log: %v", err)
	}
	return path
}

func TestListOrdersNewestFirst(t *testing.T) {
	logDir := t.TempDir()
	writeRunLog(t, logDir, "20260301T120000Z-aaaa1111.log", "one\n")
	writeRunLog(t, logDir, "20260302T080000Z-bbbb2222.log", "two\n")
	writeRunLog(t, logDir, "notes.txt", "ignored\n")
	writeRunLog(t, logDir, "garbage.log", "ignored\n")

	runs, err := logs.List(logDir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "bbbb2222" || runs[1].RunID != "aaaa1111" {
		t.Fatalf("unexpected order: %s, %s", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].SizeBytes != 4 {
		t.Fatalf("size = %d", runs[0].SizeBytes)
	}
}

func TestFind(t *testing.T) {
	logDir := t.TempDir()
	if _, err := logs.Find(logDir, ""); !errors.Is(err, logs.ErrNoRunLogs) {
		t.Fatalf("expected ErrNoRunLogs, got %v", err)
	}
	writeRunLog(t, logDir, "20260301T120000Z-abc12345.log", "")
	writeRunLog(t, logDir, "20260302T120000Z-abd67890.log", "")

	latest, err := logs.Find(logDir, "latest")
	if err != nil || latest.RunID != "abd67890" {
		t.Fatalf("latest = %+v, %v", latest, err)
	}
	byPrefix, err := logs.Find(logDir, "abc")
	if err != nil || byPrefix.RunID != "abc12345" {
		t.Fatalf("prefix = %+v, %v", byPrefix, err)
	}
	if _, err := logs.Find(logDir, "ab"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
	if _, err := logs.Find(logDir, "zzz"); err == nil {
		t.Fatal("expected no match error")
	}
}

func TestTailLastLines(t *testing.T) {
	path := writeRunLog(t, t.TempDir(), "20260301T120000Z-run.log", "a\nb\nc\nd\n")

	var got []string
	err := logs.Tail(context.Background(), path, logs.TailOptions{Lines: 2}, func(line string) error {
		got = append(got, line)
		return nil
	})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if strings.Join(got, ",") != "c,d" {
		t.Fatalf("lines = %v", got)
	}
}

func TestTailFollowPicksUpAppendedLines(t *testing.T) {
	path := writeRunLog(t, t.TempDir(), "20260301T120000Z-run.log", "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Tail(ctx, path, logs.TailOptions{Lines: 10, Follow: true, Poll: 10 * time.Millisecond}, func(line string) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, line)
			if line == "later" {
				cancel()
			}
			return nil
		})
	}()

	time.Sleep(30 * time.Millisecond)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := file.WriteString("later\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = file.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Tail: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not observe appended line")
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(got, ",") != "start,later" {
		t.Fatalf("lines = %v", got)
	}
}

func TestFormatLine(t *testing.T) {
	line := `{"ts":"2026-03-01T12:00:05.250Z","level":"info","msg":"generation finished","run_id":"abc","outcome":"succeeded","manifest":"/tmp/a b.json"}`
	got := logs.FormatLine(line)
	want := `12:00:05 INFO  generation finished manifest="/tmp/a b.json" outcome=succeeded run_id=abc`
	if got != want {
		t.Fatalf("FormatLine = %q, want %q", got, want)
	}
	if logs.FormatLine("plain text") != "plain text" {
		t.Fatal("non-JSON lines should pass through")
	}
}
