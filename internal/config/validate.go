package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateTemplates(); err != nil {
		return err
	}
	if err := c.validateBudget(); err != nil {
		return err
	}
	if err := c.validateTiers(); err != nil {
		return err
	}
	if err := c.validateLanguages(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic: %q must be a full http(s) URL", topic)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.concurrency":          c.Pipeline.Concurrency,
		"pipeline.max_attempts":         c.Pipeline.MaxAttempts,
		"pipeline.call_timeout_seconds": c.Pipeline.CallTimeoutSeconds,
		"pipeline.retry_max_seconds":    c.Pipeline.RetryMaxSeconds,
		"llm.timeout_seconds":           c.LLM.TimeoutSeconds,
		"llm.retry_attempts":            c.LLM.RetryAttempts,
		"speech.timeout_seconds":        c.Speech.TimeoutSeconds,
		"speech.retry_attempts":         c.Speech.RetryAttempts,
	}); err != nil {
		return err
	}
	if c.Pipeline.RetryBaseMillis < 0 {
		return errors.New("pipeline.retry_base_millis must be >= 0")
	}
	return nil
}

func (c *Config) validateCache() error {
	if strings.TrimSpace(c.Cache.DBPath) == "" {
		return errors.New("cache.db_path must be set")
	}
	if c.Cache.MaxAgeHours < 0 {
		return errors.New("cache.max_age_hours must be >= 0 (0 disables age eviction)")
	}
	if c.Cache.MaxSizeMiB < 0 {
		return errors.New("cache.max_size_mib must be >= 0 (0 disables size eviction)")
	}
	if c.Cache.DrainTimeoutSeconds <= 0 {
		return errors.New("cache.drain_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTemplates() error {
	return ensurePositiveMap(map[string]int{
		"templates.research":   c.Templates.Research,
		"templates.dialogue":   c.Templates.Dialogue,
		"templates.transform":  c.Templates.Transform,
		"templates.synthesize": c.Templates.Synthesize,
	})
}

func (c *Config) validateBudget() error {
	if c.Budget.MaxEpisodeUSD < 0 {
		return errors.New("budget.max_episode_usd must be >= 0 (0 disables the cap)")
	}
	if c.Budget.MaxDailyUSD < 0 {
		return errors.New("budget.max_daily_usd must be >= 0 (0 disables the cap)")
	}
	return nil
}

func (c *Config) validateTiers() error {
	for _, name := range requiredTiers {
		tier, ok := c.Tiers[name]
		if !ok {
			return fmt.Errorf("tiers.%s must be configured", name)
		}
		if tier.TextModel == "" {
			return fmt.Errorf("tiers.%s.text_model must be set", name)
		}
		if tier.SpeechModel == "" {
			return fmt.Errorf("tiers.%s.speech_model must be set", name)
		}
		for field, value := range map[string]float64{
			"research_usd":   tier.ResearchUSD,
			"dialogue_usd":   tier.DialogueUSD,
			"transform_usd":  tier.TransformUSD,
			"synthesize_usd": tier.SynthesizeUSD,
		} {
			if value < 0 {
				return fmt.Errorf("tiers.%s.%s must be >= 0", name, field)
			}
		}
	}
	if _, ok := c.Tiers[c.Pipeline.DefaultCostTier]; !ok {
		return fmt.Errorf("pipeline.default_cost_tier %q is not a configured tier", c.Pipeline.DefaultCostTier)
	}
	return nil
}

func (c *Config) validateLanguages() error {
	if len(c.Languages) == 0 {
		return errors.New("at least one [languages.<name>] section is required")
	}
	names := make([]string, 0, len(c.Languages))
	for name := range c.Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lang := c.Languages[name]
		if lang.Tag == "" {
			return fmt.Errorf("languages.%s.tag must be set", name)
		}
		if len(lang.Hosts) == 0 {
			return fmt.Errorf("languages.%s.hosts must include at least one host", name)
		}
		for i, host := range lang.Hosts {
			if host.Name == "" {
				return fmt.Errorf("languages.%s.hosts[%d].name must be set", name, i)
			}
			if host.VoiceID == "" {
				return fmt.Errorf("languages.%s.hosts[%d].voice_id must be set", name, i)
			}
		}
	}
	if _, ok := c.Languages[c.Pipeline.DefaultLanguage]; !ok {
		return fmt.Errorf("pipeline.default_language %q is not a configured language", c.Pipeline.DefaultLanguage)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0 (0 keeps run logs forever)")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
