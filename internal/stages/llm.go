package stages

import (
	"context"
	"strings"

	"constellation/internal/fingerprint"
	"constellation/internal/language"
	"constellation/internal/services"
	"constellation/internal/services/llm"
)

// Completer is the subset of the llm client the text stages need.
type Completer interface {
	CompleteJSON(ctx context.Context, req llm.Request, target any) (llm.Response, error)
}

// LLMResearcher asks a chat model for a research brief.
type LLMResearcher struct {
	client Completer
	tiers  Tiers
}

// NewLLMResearcher constructs a researcher.
func NewLLMResearcher(client Completer, tiers Tiers) *LLMResearcher {
	return &LLMResearcher{client: client, tiers: tiers}
}

// Profile implements Researcher.
func (r *LLMResearcher) Profile(tier fingerprint.CostTier) Profile {
	return r.tiers.Stage(fingerprint.StageResearch, tier)
}

// Research implements Researcher.
func (r *LLMResearcher) Research(ctx context.Context, req ResearchRequest) (ResearchResult, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return ResearchResult{}, services.Wrap(services.ErrValidation, "research", "request", "topic required", nil)
	}
	var out ResearchResult
	_, err := r.client.CompleteJSON(ctx, llm.Request{
		Model:       r.Profile(req.CostTier).Model,
		System:      researchSystemPrompt,
		User:        researchPrompt(req),
		Temperature: 0.3,
	}, &out)
	if err != nil {
		return ResearchResult{}, err
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" && len(out.KeyPoints) == 0 {
		return ResearchResult{}, services.Wrap(services.ErrTransient, "research", "decode", "empty research brief", nil)
	}
	return out, nil
}

// LLMScriptWriter asks a chat model for a two-host dialogue.
type LLMScriptWriter struct {
	client Completer
	tiers  Tiers
}

// NewLLMScriptWriter constructs a script writer.
func NewLLMScriptWriter(client Completer, tiers Tiers) *LLMScriptWriter {
	return &LLMScriptWriter{client: client, tiers: tiers}
}

// Profile implements ScriptWriter.
func (w *LLMScriptWriter) Profile(tier fingerprint.CostTier) Profile {
	return w.tiers.Stage(fingerprint.StageDialogue, tier)
}

// GenerateScript implements ScriptWriter.
func (w *LLMScriptWriter) GenerateScript(ctx context.Context, req ScriptRequest) (Script, error) {
	var out Script
	_, err := w.client.CompleteJSON(ctx, llm.Request{
		Model:       w.Profile(req.CostTier).Model,
		System:      scriptSystemPrompt(req.Language),
		User:        scriptPrompt(req),
		Temperature: 0.8,
	}, &out)
	if err != nil {
		return Script{}, err
	}
	if out.Title == "" {
		out.Title = TitleTopic(req.Topic)
	}
	return normalizeScript(out, req.Language, "dialogue")
}

// LLMTransformer asks a chat model to culturally adapt a script.
type LLMTransformer struct {
	client Completer
	tiers  Tiers
}

// NewLLMTransformer constructs a transformer.
func NewLLMTransformer(client Completer, tiers Tiers) *LLMTransformer {
	return &LLMTransformer{client: client, tiers: tiers}
}

// Profile implements Transformer.
func (t *LLMTransformer) Profile(tier fingerprint.CostTier) Profile {
	return t.tiers.Stage(fingerprint.StageTransform, tier)
}

// Transform implements Transformer.
func (t *LLMTransformer) Transform(ctx context.Context, req TransformRequest) (Script, error) {
	if req.From.Language == req.To.Language {
		return Script{}, services.Wrap(services.ErrValidation, "transform", "request", "source and target language are the same", nil)
	}
	if len(req.Script.Segments) == 0 {
		return Script{}, services.Wrap(services.ErrValidation, "transform", "request", "script has no segments", nil)
	}
	var out Script
	_, err := t.client.CompleteJSON(ctx, llm.Request{
		Model:       t.Profile(req.CostTier).Model,
		System:      transformSystemPrompt(req.To),
		User:        transformPrompt(req),
		Temperature: 0.6,
	}, &out)
	if err != nil {
		return Script{}, err
	}
	if out.Title == "" {
		out.Title = req.Script.Title
	}
	return normalizeScript(out, req.To, "transform")
}

// normalizeScript pins speakers to the language's hosts and fills Text.
// Unknown speaker names are assigned to hosts alternately.
func normalizeScript(script Script, profile language.Profile, stage string) (Script, error) {
	hosts := profile.HostNames()
	known := make(map[string]string, len(hosts))
	for _, h := range hosts {
		known[strings.ToLower(h)] = h
	}
	segments := make([]Segment, 0, len(script.Segments))
	for _, seg := range script.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		speaker, ok := known[strings.ToLower(strings.TrimSpace(seg.Speaker))]
		if !ok && len(hosts) > 0 {
			speaker = hosts[len(segments)%len(hosts)]
		}
		segments = append(segments, Segment{Speaker: speaker, Text: text})
	}
	if len(segments) == 0 {
		return Script{}, services.Wrap(services.ErrTransient, stage, "decode", "model returned no dialogue", nil)
	}
	script.Language = profile.Language
	script.Segments = segments
	script.Title = strings.TrimSpace(script.Title)
	script.Text = RenderText(segments)
	return script, nil
}
