package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"constellation/internal/pipeline"
)

func TestGenerateWritesManifestAndFeedsCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{
		"generate",
		"--topic", "AI Skills",
		"--secondary-languages", "hindi",
		"--json",
	}, env.configPath)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var manifest pipeline.Manifest
	if err := json.Unmarshal([]byte(out), &manifest); err != nil {
		t.Fatalf("decode manifest output: %v\n%s", err, out)
	}
	if manifest.Outcome != pipeline.OutcomeSucceeded {
		t.Fatalf("outcome = %s", manifest.Outcome)
	}
	if got := env.llmCalls.Load(); got != 3 {
		t.Fatalf("llm calls = %d, want 3", got)
	}
	manifestPath := filepath.Join(env.outputDir, "ai-skills.manifest.json")
	if _, err := os.Stat(manifestPath); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}

	out, _, err = runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Artifacts: 5")
	requireContains(t, out, "synthesize")

	out, _, err = runCLI(t, []string{"cache", "list", "--stage", "synthesize"}, env.configPath)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, "english")
	requireContains(t, out, "hindi")
	if strings.Contains(out, "research") {
		t.Fatalf("stage filter ignored:\n%s", out)
	}

	fp := manifest.StageFingerprints[pipeline.SynthesizeKey("english")]
	exported := filepath.Join(t.TempDir(), "english.mp3")
	out, _, err = runCLI(t, []string{"cache", "export", fp[:12], "--output", exported}, env.configPath)
	if err != nil {
		t.Fatalf("cache export: %v", err)
	}
	requireContains(t, out, "Exported synthesize artifact")
	data, err := os.ReadFile(exported)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "mp3:") {
		t.Fatalf("unexpected exported payload %q", data)
	}

	out, _, err = runCLI(t, []string{"spend", "--runs", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	requireContains(t, out, "Last 24h")
	requireContains(t, out, "$4.35 of $15.00")

	out, _, err = runCLI(t, []string{"manifest", "show", manifestPath, "--format", "yaml"}, "")
	if err != nil {
		t.Fatalf("manifest show: %v", err)
	}
	requireContains(t, out, "outcome: succeeded")
	requireContains(t, out, "primary_language: english")

	if _, _, err := runCLI(t, []string{"manifest", "show", manifestPath, "--format", "xml"}, ""); err == nil {
		t.Fatal("expected unsupported format error")
	}

	// Rerun is served from the cache.
	out, _, err = runCLI(t, []string{"generate", "--topic", "AI Skills", "-s", "hindi"}, env.configPath)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if got := env.llmCalls.Load(); got != 3 {
		t.Fatalf("second run called the LLM: %d calls", got)
	}
	requireContains(t, out, "5 hits, 0 computed")

	if _, _, err := runCLI(t, []string{"cache", "purge"}, env.configPath); err == nil {
		t.Fatal("expected purge without --yes to fail")
	}
	out, _, err = runCLI(t, []string{"cache", "purge", "--yes"}, env.configPath)
	if err != nil {
		t.Fatalf("cache purge: %v", err)
	}
	requireContains(t, out, "Purged 5 artifacts")
}

func TestGenerateRejectsUnknownLanguage(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"generate", "--topic", "AI", "--language", "klingon"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unsupported language") {
		t.Fatalf("expected unsupported language error, got %v", err)
	}
	if env.llmCalls.Load() != 0 {
		t.Fatal("invalid plan should not reach the LLM")
	}
}

func TestGenerateRequiresTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"generate"}, env.configPath); err == nil {
		t.Fatal("expected missing --topic error")
	}
}

func TestBuildPlanDropsPrimaryFromSecondaries(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := newCommandContext(&env.configPath)
	cfg, err := ctx.ensureConfig()
	if err != nil {
		t.Fatal(err)
	}

	plan, err := buildPlan(cfg, generateFlags{
		topic:       " AI Skills ",
		language:    "en",
		secondaries: []string{"english,hi", "ta"},
		noOutro:     true,
	})
	if err != nil {
		t.Fatalf("buildPlan: %v", err)
	}
	if plan.PrimaryLanguage != "english" {
		t.Fatalf("primary = %s", plan.PrimaryLanguage)
	}
	if len(plan.SecondaryLanguages) != 2 || plan.SecondaryLanguages[0] != "hindi" || plan.SecondaryLanguages[1] != "tamil" {
		t.Fatalf("secondaries = %v", plan.SecondaryLanguages)
	}
	if plan.EpisodeType != "conversation" || plan.CostTier != "standard" {
		t.Fatalf("defaults not applied: %+v", plan)
	}
	if !plan.IncludeIntro || plan.IncludeOutro {
		t.Fatalf("intro/outro flags wrong: %+v", plan)
	}
}
