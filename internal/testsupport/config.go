package testsupport

import (
	"path/filepath"
	"testing"

	"constellation/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Credentials are placeholders and retry delays are shortened so failure paths
// run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "episodes")
	cfgVal.Cache.DBPath = filepath.Join(base, "data", "artifacts.db")
	cfgVal.Cache.DrainTimeoutSeconds = 5
	cfgVal.LLM.APIKey = "test"
	cfgVal.Speech.APIKey = "test"
	cfgVal.Pipeline.RetryBaseMillis = 1
	cfgVal.Pipeline.RetryMaxSeconds = 1
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLLMEndpoint points the chat completion client at url, typically an httptest server.
func WithLLMEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// WithSpeechEndpoint points the text-to-speech client at url.
func WithSpeechEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Speech.BaseURL = url
	}
}

// WithConcurrency overrides the branch concurrency limit.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Concurrency = n
	}
}

// WithBudget overrides the per-episode and daily spend caps.
func WithBudget(episodeUSD, dailyUSD float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Budget.MaxEpisodeUSD = episodeUSD
		b.cfg.Budget.MaxDailyUSD = dailyUSD
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
