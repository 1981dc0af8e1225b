package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
}

// Cache contains artifact store location and eviction policy inputs.
// Zero values for MaxAgeHours and MaxSizeMiB disable the matching policy.
type Cache struct {
	DBPath              string `toml:"db_path"`
	MaxAgeHours         int    `toml:"max_age_hours"`
	MaxSizeMiB          int64  `toml:"max_size_mib"`
	PruneOnRun          bool   `toml:"prune_on_run"`
	DrainTimeoutSeconds int    `toml:"drain_timeout_seconds"`
}

// Pipeline contains orchestrator scheduling and retry settings.
type Pipeline struct {
	Concurrency        int    `toml:"concurrency"`
	MaxAttempts        int    `toml:"max_attempts"`
	RetryBaseMillis    int    `toml:"retry_base_millis"`
	RetryMaxSeconds    int    `toml:"retry_max_seconds"`
	CallTimeoutSeconds int    `toml:"call_timeout_seconds"`
	DefaultCostTier    string `toml:"default_cost_tier"`
	DefaultLanguage    string `toml:"default_language"`
	DefaultEpisodeType string `toml:"default_episode_type"`
}

// Templates carries the prompt and voice template versions per stage.
// Bumping a version invalidates every cached artifact of that stage.
type Templates struct {
	Namespace  string `toml:"namespace"`
	Research   int    `toml:"research"`
	Dialogue   int    `toml:"dialogue"`
	Transform  int    `toml:"transform"`
	Synthesize int    `toml:"synthesize"`
}

// Budget caps estimated spend.
type Budget struct {
	MaxEpisodeUSD float64 `toml:"max_episode_usd"`
	MaxDailyUSD   float64 `toml:"max_daily_usd"`
}

// LLM contains the chat completion connection settings shared by the text stages.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Speech contains the text-to-speech connection and voice settings.
type Speech struct {
	APIKey          string  `toml:"api_key"`
	BaseURL         string  `toml:"base_url"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	RetryAttempts   int     `toml:"retry_attempts"`
	Stability       float64 `toml:"stability"`
	SimilarityBoost float64 `toml:"similarity_boost"`
	Style           float64 `toml:"style"`
	SpeakerBoost    bool    `toml:"speaker_boost"`
	BitrateKbps     int     `toml:"bitrate_kbps"`
}

// Tier maps a cost tier to models and per-stage cost estimates.
type Tier struct {
	TextModel     string  `toml:"text_model"`
	SpeechModel   string  `toml:"speech_model"`
	ResearchUSD   float64 `toml:"research_usd"`
	DialogueUSD   float64 `toml:"dialogue_usd"`
	TransformUSD  float64 `toml:"transform_usd"`
	SynthesizeUSD float64 `toml:"synthesize_usd"`
}

// Host is one voice in a language's host pair.
type Host struct {
	Name    string `toml:"name"`
	VoiceID string `toml:"voice_id"`
	Gender  string `toml:"gender"`
}

// CulturalContext guides cross-language adaptation.
type CulturalContext struct {
	BusinessFocus      string   `toml:"business_focus"`
	CommunicationStyle string   `toml:"communication_style"`
	TechAdoption       string   `toml:"tech_adoption"`
	Examples           []string `toml:"examples"`
}

// Language describes one supported episode language.
type Language struct {
	Tag     string          `toml:"tag"`
	Display string          `toml:"display"`
	Hosts   []Host          `toml:"hosts"`
	Culture CulturalContext `toml:"culture"`
}

// Notifications configures run outcome pushes. An empty NtfyTopic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Constellation.
//
// Configuration sections by subsystem:
//   - Paths: data, log and manifest output directories
//   - Cache: artifact database location and eviction policy
//   - Pipeline: branch concurrency, retries and per-call timeout
//   - Templates: per-stage template versions folded into fingerprints
//   - Budget: per-episode and trailing-day spend caps
//   - LLM: chat completion endpoint used by research, dialogue and transform
//   - Speech: text-to-speech endpoint and voice settings
//   - Tiers: models and cost estimates for economy, standard and premium
//   - Languages: tags, hosts and cultural context per language
//   - Notifications: optional ntfy topic for run outcomes
//   - Logging: log format and level
type Config struct {
	Paths         Paths               `toml:"paths"`
	Cache         Cache               `toml:"cache"`
	Pipeline      Pipeline            `toml:"pipeline"`
	Templates     Templates           `toml:"templates"`
	Budget        Budget              `toml:"budget"`
	LLM           LLM                 `toml:"llm"`
	Speech        Speech              `toml:"speech"`
	Tiers         map[string]Tier     `toml:"tiers"`
	Languages     map[string]Language `toml:"languages"`
	Notifications Notifications       `toml:"notifications"`
	Logging       Logging             `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("constellation.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, log and output directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.OutputDir}
	if dbDir := filepath.Dir(c.Cache.DBPath); dbDir != "" && dbDir != "." {
		dirs = append(dirs, dbDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the single-operator lock file guarding the data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "constellation.lock")
}

// CacheMaxAge returns the age eviction threshold, or zero when disabled.
func (c *Config) CacheMaxAge() time.Duration {
	if c.Cache.MaxAgeHours <= 0 {
		return 0
	}
	return time.Duration(c.Cache.MaxAgeHours) * time.Hour
}

// CacheMaxBytes returns the size eviction budget, or zero when disabled.
func (c *Config) CacheMaxBytes() int64 {
	if c.Cache.MaxSizeMiB <= 0 {
		return 0
	}
	return c.Cache.MaxSizeMiB * 1024 * 1024
}

// DrainTimeout bounds how long shutdown waits for in-flight computations.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Cache.DrainTimeoutSeconds) * time.Second
}

// CallTimeout is the per-adapter-call deadline.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Pipeline.CallTimeoutSeconds) * time.Second
}

// RetryBackoff returns the base and maximum retry delays.
func (c *Config) RetryBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Pipeline.RetryBaseMillis) * time.Millisecond,
		time.Duration(c.Pipeline.RetryMaxSeconds) * time.Second
}

// TierNames returns the configured tier names in canonical order.
func (c *Config) TierNames() []string {
	names := make([]string, 0, len(c.Tiers))
	for _, name := range requiredTiers {
		if _, ok := c.Tiers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
