package stages

import (
	"context"
	"fmt"
	"strings"

	"constellation/internal/config"
	"constellation/internal/episode"
	"constellation/internal/fingerprint"
	"constellation/internal/language"
)

// Profile describes what a stage costs at a given tier. Model is folded into
// the work unit fingerprint; EstimatedCostUSD feeds the budget guard.
type Profile struct {
	Model            string
	EstimatedCostUSD float64
}

// Document is a fixed source handed to research.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ResearchRequest asks for a research brief on a topic.
type ResearchRequest struct {
	Topic     string
	Language  language.Language
	Documents []Document
	Depth     episode.Depth
	CostTier  fingerprint.CostTier
}

// ResearchResult is the research brief passed to script generation.
type ResearchResult struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Citations []string `json:"citations"`
}

// Segment is one spoken line.
type Segment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Script is a two-host dialogue in a single language.
type Script struct {
	Title    string            `json:"title"`
	Language language.Language `json:"language"`
	Segments []Segment         `json:"segments"`
	Text     string            `json:"text"`
}

// RenderText formats segments as "Speaker: line" paragraphs.
func RenderText(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, fmt.Sprintf("%s: %s", seg.Speaker, seg.Text))
	}
	return strings.Join(lines, "\n\n")
}

// ScriptRequest asks for a dialogue script grounded on research.
type ScriptRequest struct {
	Topic         string
	Research      ResearchResult
	EpisodeType   episode.Type
	CostTier      fingerprint.CostTier
	Language      language.Profile
	TargetMinutes int
	EpisodeNumber int
	IncludeIntro  bool
	IncludeOutro  bool
}

// TransformRequest asks for a culturally adapted rewrite of a script.
type TransformRequest struct {
	Script   Script
	From     language.Profile
	To       language.Profile
	CostTier fingerprint.CostTier
}

// SynthesisRequest asks for audio of a script voiced by the language's hosts.
type SynthesisRequest struct {
	Script   Script
	Language language.Profile
	CostTier fingerprint.CostTier
}

// Audio is a rendered clip.
type Audio struct {
	Bytes           []byte
	DurationSeconds float64
}

// Researcher produces research briefs.
type Researcher interface {
	Research(ctx context.Context, req ResearchRequest) (ResearchResult, error)
	Profile(tier fingerprint.CostTier) Profile
}

// ScriptWriter produces dialogue scripts.
type ScriptWriter interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (Script, error)
	Profile(tier fingerprint.CostTier) Profile
}

// Transformer adapts a script to another language and culture.
type Transformer interface {
	Transform(ctx context.Context, req TransformRequest) (Script, error)
	Profile(tier fingerprint.CostTier) Profile
}

// Synthesizer renders a script to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (Audio, error)
	Profile(tier fingerprint.CostTier) Profile
}

// Tiers resolves cost tiers to configured models and estimates.
type Tiers map[fingerprint.CostTier]config.Tier

// NewTiers converts the configuration table, rejecting unknown tier names.
func NewTiers(cfg map[string]config.Tier) (Tiers, error) {
	out := make(Tiers, len(cfg))
	for name, tier := range cfg {
		parsed, err := fingerprint.ParseCostTier(name)
		if err != nil {
			return nil, fmt.Errorf("tiers.%s: %w", name, err)
		}
		out[parsed] = tier
	}
	return out, nil
}

func (t Tiers) lookup(tier fingerprint.CostTier) config.Tier {
	if entry, ok := t[tier]; ok {
		return entry
	}
	return t[fingerprint.TierStandard]
}

// Stage returns the model and estimate for stage at tier.
func (t Tiers) Stage(stage fingerprint.Stage, tier fingerprint.CostTier) Profile {
	entry := t.lookup(tier)
	switch stage {
	case fingerprint.StageResearch:
		return Profile{Model: entry.TextModel, EstimatedCostUSD: entry.ResearchUSD}
	case fingerprint.StageDialogue:
		return Profile{Model: entry.TextModel, EstimatedCostUSD: entry.DialogueUSD}
	case fingerprint.StageTransform:
		return Profile{Model: entry.TextModel, EstimatedCostUSD: entry.TransformUSD}
	case fingerprint.StageSynthesize:
		return Profile{Model: entry.SpeechModel, EstimatedCostUSD: entry.SynthesizeUSD}
	default:
		return Profile{}
	}
}
