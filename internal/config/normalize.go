package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLLM()
	c.normalizeSpeech()
	c.normalizeTiers()
	c.normalizeLanguages()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Cache.DBPath) == "" {
		c.Cache.DBPath = filepath.Join(c.Paths.DataDir, defaultCacheDBName)
	}
	if c.Cache.DBPath, err = expandPath(c.Cache.DBPath); err != nil {
		return fmt.Errorf("cache.db_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.DefaultCostTier = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultCostTier))
	if c.Pipeline.DefaultCostTier == "" {
		c.Pipeline.DefaultCostTier = defaultCostTier
	}
	c.Pipeline.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultLanguage))
	if c.Pipeline.DefaultLanguage == "" {
		c.Pipeline.DefaultLanguage = defaultPrimaryLanguage
	}
	c.Pipeline.DefaultEpisodeType = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultEpisodeType))
	if c.Pipeline.DefaultEpisodeType == "" {
		c.Pipeline.DefaultEpisodeType = defaultEpisodeType
	}
	c.Templates.Namespace = strings.TrimSpace(c.Templates.Namespace)
	if c.Templates.Namespace == "" {
		c.Templates.Namespace = defaultTemplateNamespace
	}
}

func (c *Config) normalizeLLM() {
	if value, ok := lookupEnv("CONSTELLATION_LLM_API_KEY", "OPENROUTER_API_KEY"); ok {
		c.LLM.APIKey = value
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
}

func (c *Config) normalizeSpeech() {
	if value, ok := lookupEnv("ELEVENLABS_API_KEY"); ok {
		c.Speech.APIKey = value
	}
	c.Speech.APIKey = strings.TrimSpace(c.Speech.APIKey)
	c.Speech.BaseURL = strings.TrimRight(strings.TrimSpace(c.Speech.BaseURL), "/")
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = defaultSpeechBaseURL
	}
	if c.Speech.BitrateKbps <= 0 {
		c.Speech.BitrateKbps = defaultSpeechBitrateKbps
	}
}

func (c *Config) normalizeTiers() {
	normalized := make(map[string]Tier, len(c.Tiers))
	for name, tier := range c.Tiers {
		tier.TextModel = strings.TrimSpace(tier.TextModel)
		tier.SpeechModel = strings.TrimSpace(tier.SpeechModel)
		normalized[strings.ToLower(strings.TrimSpace(name))] = tier
	}
	c.Tiers = normalized
}

func (c *Config) normalizeLanguages() {
	defaults := defaultLanguages()
	normalized := make(map[string]Language, len(c.Languages))
	for name, lang := range c.Languages {
		key := strings.ToLower(strings.TrimSpace(name))
		fallback, known := defaults[key]
		lang.Tag = strings.TrimSpace(lang.Tag)
		if lang.Tag == "" && known {
			lang.Tag = fallback.Tag
		}
		lang.Display = strings.TrimSpace(lang.Display)
		if lang.Display == "" && known {
			lang.Display = fallback.Display
		}
		if len(lang.Hosts) == 0 && known {
			lang.Hosts = fallback.Hosts
		}
		for i := range lang.Hosts {
			lang.Hosts[i].Name = strings.ToLower(strings.TrimSpace(lang.Hosts[i].Name))
			lang.Hosts[i].VoiceID = strings.TrimSpace(lang.Hosts[i].VoiceID)
		}
		normalized[key] = lang
	}
	c.Languages = normalized
}

func (c *Config) normalizeNotifications() {
	if value, ok := lookupEnv("CONSTELLATION_NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// lookupEnv returns the first non-empty value among the named variables.
func lookupEnv(names ...string) (string, bool) {
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}
