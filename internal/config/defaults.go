package config

const (
	defaultConfigPath            = "~/.config/constellation/config.toml"
	defaultDataDir               = "~/.local/share/constellation"
	defaultLogDir                = "~/.local/share/constellation/logs"
	defaultOutputDir             = "~/constellation/episodes"
	defaultCacheDBName           = "artifacts.db"
	defaultCacheMaxAgeHours      = 0
	defaultCacheMaxSizeMiB       = 2048
	defaultCacheDrainSeconds     = 120
	defaultPipelineConcurrency   = 2
	defaultPipelineMaxAttempts   = 4
	defaultPipelineRetryBaseMS   = 1000
	defaultPipelineRetryMaxSecs  = 30
	defaultPipelineCallTimeout   = 300
	defaultCostTier              = "standard"
	defaultPrimaryLanguage       = "english"
	defaultEpisodeType           = "conversation"
	defaultTemplateNamespace     = "constellation/v1"
	defaultMaxEpisodeUSD         = 12.00
	defaultMaxDailyUSD           = 15.00
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMTitle              = "Constellation"
	defaultLLMTimeoutSeconds     = 120
	defaultLLMRetryAttempts      = 1
	defaultSpeechBaseURL         = "https://api.elevenlabs.io/v1"
	defaultSpeechTimeoutSeconds  = 180
	defaultSpeechRetryAttempts   = 1
	defaultSpeechStability       = 0.35
	defaultSpeechSimilarityBoost = 0.75
	defaultSpeechBitrateKbps     = 128
	defaultNotifyTimeoutSeconds  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	tierEconomy                  = "economy"
	tierStandard                 = "standard"
	tierPremium                  = "premium"
	defaultEconomyTextModel      = "anthropic/claude-3.5-haiku"
	defaultStandardTextModel     = "anthropic/claude-3.7-sonnet"
	defaultPremiumTextModel      = "anthropic/claude-3.7-sonnet"
	defaultEconomySpeechModel    = "eleven_turbo_v2"
	defaultSpeechModel           = "eleven_multilingual_v2"
)

var requiredTiers = []string{tierEconomy, tierStandard, tierPremium}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
		},
		Cache: Cache{
			MaxAgeHours:         defaultCacheMaxAgeHours,
			MaxSizeMiB:          defaultCacheMaxSizeMiB,
			PruneOnRun:          true,
			DrainTimeoutSeconds: defaultCacheDrainSeconds,
		},
		Pipeline: Pipeline{
			Concurrency:        defaultPipelineConcurrency,
			MaxAttempts:        defaultPipelineMaxAttempts,
			RetryBaseMillis:    defaultPipelineRetryBaseMS,
			RetryMaxSeconds:    defaultPipelineRetryMaxSecs,
			CallTimeoutSeconds: defaultPipelineCallTimeout,
			DefaultCostTier:    defaultCostTier,
			DefaultLanguage:    defaultPrimaryLanguage,
			DefaultEpisodeType: defaultEpisodeType,
		},
		Templates: Templates{
			Namespace:  defaultTemplateNamespace,
			Research:   1,
			Dialogue:   1,
			Transform:  1,
			Synthesize: 1,
		},
		Budget: Budget{
			MaxEpisodeUSD: defaultMaxEpisodeUSD,
			MaxDailyUSD:   defaultMaxDailyUSD,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			RetryAttempts:  defaultLLMRetryAttempts,
		},
		Speech: Speech{
			BaseURL:         defaultSpeechBaseURL,
			TimeoutSeconds:  defaultSpeechTimeoutSeconds,
			RetryAttempts:   defaultSpeechRetryAttempts,
			Stability:       defaultSpeechStability,
			SimilarityBoost: defaultSpeechSimilarityBoost,
			SpeakerBoost:    true,
			BitrateKbps:     defaultSpeechBitrateKbps,
		},
		Tiers:     defaultTiers(),
		Languages: defaultLanguages(),
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultTiers() map[string]Tier {
	return map[string]Tier{
		tierEconomy: {
			TextModel:     defaultEconomyTextModel,
			SpeechModel:   defaultEconomySpeechModel,
			ResearchUSD:   0.05,
			DialogueUSD:   0.10,
			TransformUSD:  0.08,
			SynthesizeUSD: 0.60,
		},
		tierStandard: {
			TextModel:     defaultStandardTextModel,
			SpeechModel:   defaultSpeechModel,
			ResearchUSD:   0.30,
			DialogueUSD:   0.60,
			TransformUSD:  0.45,
			SynthesizeUSD: 1.50,
		},
		tierPremium: {
			TextModel:     defaultPremiumTextModel,
			SpeechModel:   defaultSpeechModel,
			ResearchUSD:   0.90,
			DialogueUSD:   1.80,
			TransformUSD:  1.35,
			SynthesizeUSD: 2.50,
		},
	}
}

func defaultLanguages() map[string]Language {
	return map[string]Language{
		"english": {
			Tag:     "en",
			Display: "English",
			Hosts: []Host{
				{Name: "alex", VoiceID: "UgBBYS2sOqTuMpoF3BR0", Gender: "male"},
				{Name: "maya", VoiceID: "XcXEQzuLXRU9RcfWzEJt", Gender: "female"},
			},
			Culture: CulturalContext{
				BusinessFocus:      "global scalability, international best practices",
				CommunicationStyle: "direct, data-driven, efficiency-focused",
				TechAdoption:       "early adopter, cutting-edge focus",
				Examples:           []string{"Silicon Valley startups", "global SaaS companies"},
			},
		},
		"hindi": {
			Tag:     "hi",
			Display: "Hindi",
			Hosts: []Host{
				{Name: "arjun", VoiceID: "m5qndnI7u4OAdXhH0Mr5", Gender: "male"},
				{Name: "priya", VoiceID: "1qEiC6qsybMkmnNdVMbK", Gender: "female"},
			},
			Culture: CulturalContext{
				BusinessFocus:      "MSMEs, digital transformation, tier-2/3 cities",
				CommunicationStyle: "relationship-first, practical examples",
				TechAdoption:       "gradual adoption, ROI-focused",
				Examples:           []string{"local kirana stores", "textile businesses", "food delivery"},
			},
		},
		"tamil": {
			Tag:     "ta",
			Display: "Tamil",
			Hosts: []Host{
				{Name: "karthik", VoiceID: "yt40uMsmnhVftG8ngHsz", Gender: "male"},
				{Name: "meera", VoiceID: "C2RGMrNBTZaNfddRPeRH", Gender: "female"},
			},
			Culture: CulturalContext{
				BusinessFocus:      "manufacturing + tech, traditional industries + AI",
				CommunicationStyle: "detail-oriented, practical implementation",
				TechAdoption:       "conservative but thorough",
				Examples:           []string{"automotive industry", "textile mills", "agricultural tech"},
			},
		},
	}
}
