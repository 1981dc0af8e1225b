package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

const testScript = `{
  "summary": "Small shops adopt AI assistants.",
  "key_points": ["inventory forecasting"],
  "title": "AI Skills",
  "segments": [
    {"speaker": "alex", "text": "Welcome back."},
    {"speaker": "maya", "text": "Let us talk about AI skills."}
  ]
}`

type cliTestEnv struct {
	configPath string
	baseDir    string
	outputDir  string
	llmCalls   *atomic.Int64
	ntfyURL    string
	ntfyTitles chan string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("CONSTELLATION_LLM_API_KEY", "test-llm")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("ELEVENLABS_API_KEY", "test-speech")
	t.Setenv("CONSTELLATION_NTFY_TOPIC", "")

	llmCalls := new(atomic.Int64)
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		content := testScript
		if bytes.Contains(body, []byte(`\"ok\":true`)) {
			content = `{"ok":true}`
		} else {
			llmCalls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	})
	mux.HandleFunc("/speech/text-to-speech/{voice}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3:" + r.PathValue("voice")))
	})
	mux.HandleFunc("/speech/user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"subscription":{}}`))
	})
	ntfyTitles := make(chan string, 4)
	mux.HandleFunc("/ntfy", func(w http.ResponseWriter, r *http.Request) {
		ntfyTitles <- r.Header.Get("Title")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	env := &cliTestEnv{
		configPath: filepath.Join(homeDir, ".config", "constellation", "config.toml"),
		baseDir:    base,
		outputDir:  filepath.Join(base, "episodes"),
		llmCalls:   llmCalls,
		ntfyURL:    srv.URL + "/ntfy",
		ntfyTitles: ntfyTitles,
	}
	writeTestConfig(t, env, srv.URL)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv, serverURL string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
output_dir = %q

[cache]
drain_timeout_seconds = 5

[pipeline]
retry_base_millis = 1
retry_max_seconds = 1

[llm]
base_url = %q

[speech]
base_url = %q

[logging]
level = "error"
retention_days = 0
`,
		filepath.Join(env.baseDir, "data"),
		filepath.Join(env.baseDir, "logs"),
		env.outputDir,
		serverURL+"/chat",
		serverURL+"/speech",
	)
	if err := os.MkdirAll(filepath.Dir(env.configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
