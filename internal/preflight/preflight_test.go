package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"constellation/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithLLMEndpoint(srv.URL))
	cfg.LLM.APIKey = "good-key"
	if result := CheckLLM(context.Background(), "LLM API", cfg.LLM, "model"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	cfg.LLM.APIKey = "bad-key"
	if result := CheckLLM(context.Background(), "LLM API", cfg.LLM, "model"); result.Passed {
		t.Fatal("expected failure for bad key")
	}

	cfg.LLM.APIKey = ""
	result := CheckLLM(context.Background(), "LLM API", cfg.LLM, "model")
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result for missing key: %+v", result)
	}
}

func TestCheckSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("xi-api-key") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSpeechEndpoint(srv.URL))
	cfg.Speech.APIKey = "good-key"
	if result := CheckSpeech(context.Background(), "Speech API", cfg.Speech); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	cfg.Speech.APIKey = "bad-key"
	if result := CheckSpeech(context.Background(), "Speech API", cfg.Speech); result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	result := CheckDatabase(context.Background(), "Artifact database", store)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "0 artifacts") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}

	if result := CheckDatabase(context.Background(), "Artifact database", nil); result.Passed {
		t.Fatal("expected failure for nil store")
	}
}

func TestRunAllSkipsServicesByDefault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg, Options{})
	if len(results) != 3 {
		t.Fatalf("expected 3 directory checks, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAllTranscriptOnlySkipsSpeech(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg, Options{RequireServices: true, TranscriptOnly: true})
	if len(results) != 4 {
		t.Fatalf("expected 4 checks, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "LLM API" {
		t.Fatalf("expected only the LLM check to fail, got %+v", failed)
	}
}
