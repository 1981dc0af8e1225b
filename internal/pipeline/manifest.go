package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"constellation/internal/language"
	"constellation/internal/services"
)

// Outcome summarizes a run for operators.
type Outcome string

const (
	OutcomeSucceeded            Outcome = "succeeded"
	OutcomeSucceededWithCaveats Outcome = "succeeded_with_caveats"
	OutcomeFailed               Outcome = "failed"
)

const (
	stageKeyResearch         = "research"
	stageKeyScript           = "script"
	stageKeyTransformPrefix  = "transform:"
	stageKeySynthesizePrefix = "synthesize:"
	manifestTimeLayout       = time.RFC3339
	manifestMessageLimit     = 500
	manifestFileSuffix       = ".manifest.json"
)

// Failure records why one language branch (or a shared stage) failed.
type Failure struct {
	Language string `json:"language"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

// Manifest describes a run by fingerprint only. Every field except
// AssembledAt is a pure function of the plan and the cached artifacts.
type Manifest struct {
	Topic              string            `json:"topic" yaml:"topic"`
	EpisodeType        string            `json:"episode_type" yaml:"episode_type"`
	CostTier           string            `json:"cost_tier" yaml:"cost_tier"`
	PrimaryLanguage    string            `json:"primary_language" yaml:"primary_language"`
	SecondaryLanguages []string          `json:"secondary_languages" yaml:"secondary_languages"`
	StageFingerprints  map[string]string `json:"stage_fingerprints" yaml:"stage_fingerprints"`
	CompletedLanguages []string          `json:"completed_languages" yaml:"completed_languages"`
	FailedLanguages    []string          `json:"failed_languages" yaml:"failed_languages"`
	Failures           []Failure         `json:"failures" yaml:"failures"`
	Outcome            Outcome           `json:"outcome" yaml:"outcome"`
	TranscriptOnly     bool              `json:"transcript_only" yaml:"transcript_only"`
	AssembledAt        string            `json:"assembled_at" yaml:"assembled_at"`
}

// TransformKey is the stage fingerprint key for a language's transformation.
func TransformKey(lang language.Language) string { return stageKeyTransformPrefix + string(lang) }

// SynthesizeKey is the stage fingerprint key for a language's audio.
func SynthesizeKey(lang language.Language) string { return stageKeySynthesizePrefix + string(lang) }

func newManifest(plan Plan) *Manifest {
	m := &Manifest{
		Topic:              plan.Topic,
		EpisodeType:        string(plan.EpisodeType),
		CostTier:           string(plan.CostTier),
		PrimaryLanguage:    string(plan.PrimaryLanguage),
		SecondaryLanguages: []string{},
		StageFingerprints:  map[string]string{},
		CompletedLanguages: []string{},
		FailedLanguages:    []string{},
		Failures:           []Failure{},
		TranscriptOnly:     plan.TranscriptOnly,
	}
	for _, lang := range plan.SecondaryLanguages {
		m.SecondaryLanguages = append(m.SecondaryLanguages, string(lang))
	}
	return m
}

func newFailure(lang language.Language, stage string, err error) Failure {
	reason := services.Kind(err)
	msg := strings.TrimSpace(err.Error())
	if len(msg) > manifestMessageLimit {
		msg = msg[:manifestMessageLimit] + "..."
	}
	return Failure{Language: string(lang), Stage: stage, Reason: reason, Message: msg}
}

// sortFailures orders failures by plan language order, then stage order.
func sortFailures(failures []Failure, plan Plan) {
	rank := make(map[string]int)
	for i, lang := range plan.Languages() {
		rank[string(lang)] = i
	}
	stageRank := map[string]int{"research": 0, "dialogue": 1, "transform": 2, "synthesize": 3}
	sort.SliceStable(failures, func(i, j int) bool {
		if rank[failures[i].Language] != rank[failures[j].Language] {
			return rank[failures[i].Language] < rank[failures[j].Language]
		}
		return stageRank[failures[i].Stage] < stageRank[failures[j].Stage]
	})
}

// ManifestPartialFailure returns an error wrapping ErrPartialLanguageFailure
// when the run succeeded with caveats, and nil otherwise.
func ManifestPartialFailure(m *Manifest) error {
	if m == nil || m.Outcome != OutcomeSucceededWithCaveats {
		return nil
	}
	return fmt.Errorf("%w: %s", services.ErrPartialLanguageFailure, strings.Join(m.FailedLanguages, ", "))
}

// MarshalManifest encodes m as indented JSON with a trailing newline.
func MarshalManifest(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadManifest loads a manifest written by a previous run.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// ManifestFileName returns the manifest file name for a topic slug.
func ManifestFileName(slug string) string {
	return slug + manifestFileSuffix
}
