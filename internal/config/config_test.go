package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"constellation/internal/config"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONSTELLATION_LLM_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("ELEVENLABS_API_KEY", "")
	t.Setenv("CONSTELLATION_NTFY_TOPIC", "")
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearCredentialEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "constellation")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Cache.DBPath != filepath.Join(wantData, "artifacts.db") {
		t.Fatalf("unexpected db path: %q", cfg.Cache.DBPath)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "constellation", "episodes") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.LLM.APIKey != "" || cfg.Speech.APIKey != "" {
		t.Fatal("expected credentials to have no defaults")
	}
	if got := len(cfg.Languages); got != 3 {
		t.Fatalf("expected three default languages, got %d", got)
	}
	if names := cfg.TierNames(); strings.Join(names, ",") != "economy,standard,premium" {
		t.Fatalf("unexpected tier order: %v", names)
	}
	if cfg.CacheMaxAge() != 0 {
		t.Fatalf("expected age eviction disabled by default, got %s", cfg.CacheMaxAge())
	}
	if cfg.CacheMaxBytes() != 2048*1024*1024 {
		t.Fatalf("unexpected size budget: %d", cfg.CacheMaxBytes())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.OutputDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearCredentialEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "constellation.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Cache struct {
			MaxAgeHours int `toml:"max_age_hours"`
		} `toml:"cache"`
		Pipeline struct {
			Concurrency int `toml:"concurrency"`
		} `toml:"pipeline"`
		Templates struct {
			Dialogue int `toml:"dialogue"`
		} `toml:"templates"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Cache.MaxAgeHours = 72
	custom.Pipeline.Concurrency = 4
	custom.Templates.Dialogue = 3
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Pipeline.Concurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.Pipeline.Concurrency)
	}
	if cfg.Pipeline.MaxAttempts != config.Default().Pipeline.MaxAttempts {
		t.Fatalf("expected untouched max_attempts default, got %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Templates.Dialogue != 3 || cfg.Templates.Research != 1 {
		t.Fatalf("unexpected template versions: %+v", cfg.Templates)
	}
	if cfg.CacheMaxAge().Hours() != 72 {
		t.Fatalf("expected 72h max age, got %s", cfg.CacheMaxAge())
	}
	if cfg.Cache.DBPath != filepath.Join(tempDir, "data", "artifacts.db") {
		t.Fatalf("expected db path under custom data dir, got %q", cfg.Cache.DBPath)
	}
}

func TestEnvVarOverridesConfigFileForAPIKeys(t *testing.T) {
	clearCredentialEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "constellation.toml")

	type payload struct {
		LLM struct {
			APIKey string `toml:"api_key"`
		} `toml:"llm"`
		Speech struct {
			APIKey string `toml:"api_key"`
		} `toml:"speech"`
	}
	custom := payload{}
	custom.LLM.APIKey = "file-llm"
	custom.Speech.APIKey = "file-speech"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "file-llm" || cfg.Speech.APIKey != "file-speech" {
		t.Fatalf("expected file credentials, got %q / %q", cfg.LLM.APIKey, cfg.Speech.APIKey)
	}

	t.Setenv("OPENROUTER_API_KEY", "env-llm")
	t.Setenv("ELEVENLABS_API_KEY", "env-speech")
	cfg, _, _, err = config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-llm" {
		t.Errorf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Speech.APIKey != "env-speech" {
		t.Errorf("expected speech key from env, got %q", cfg.Speech.APIKey)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	hindi, ok := cfg.Languages["hindi"]
	if !ok {
		t.Fatal("expected hindi language in sample")
	}
	if len(hindi.Hosts) != 2 || hindi.Hosts[0].Name != "arjun" {
		t.Fatalf("unexpected hindi hosts: %+v", hindi.Hosts)
	}
	if cfg.Tiers["economy"].SpeechModel != "eleven_turbo_v2" {
		t.Fatalf("unexpected economy speech model: %q", cfg.Tiers["economy"].SpeechModel)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero concurrency", func(c *config.Config) { c.Pipeline.Concurrency = 0 }, "pipeline.concurrency"},
		{"missing tier", func(c *config.Config) { delete(c.Tiers, "premium") }, "tiers.premium"},
		{"unknown default language", func(c *config.Config) { c.Pipeline.DefaultLanguage = "klingon" }, "pipeline.default_language"},
		{"host without voice", func(c *config.Config) {
			lang := c.Languages["tamil"]
			lang.Hosts = []config.Host{{Name: "meera"}}
			c.Languages["tamil"] = lang
		}, "voice_id"},
		{"negative budget", func(c *config.Config) { c.Budget.MaxDailyUSD = -1 }, "budget.max_daily_usd"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bare ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "my-podcast" }, "notifications.ntfy_topic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Cache.DBPath = filepath.Join(t.TempDir(), "artifacts.db")
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}
