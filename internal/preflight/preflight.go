package preflight

import (
	"context"

	"constellation/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects which checks RunAll performs.
type Options struct {
	// RequireServices adds the network checks against the LLM and speech APIs.
	RequireServices bool
	// TranscriptOnly skips the speech API check.
	TranscriptOnly bool
}

// RunAll executes the applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
	}

	if !opts.RequireServices {
		return results
	}

	results = append(results, CheckLLM(ctx, "LLM API", cfg.LLM, defaultTextModel(cfg)))
	if !opts.TranscriptOnly {
		results = append(results, CheckSpeech(ctx, "Speech API", cfg.Speech))
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func defaultTextModel(cfg *config.Config) string {
	if tier, ok := cfg.Tiers[cfg.Pipeline.DefaultCostTier]; ok {
		return tier.TextModel
	}
	return ""
}
