package stages

import (
	"context"
	"strings"

	"constellation/internal/config"
	"constellation/internal/fingerprint"
	"constellation/internal/services"
	"constellation/internal/services/speech"
)

// SpeechClient is the subset of the speech client the synthesizer needs.
type SpeechClient interface {
	Synthesize(ctx context.Context, req speech.Request) (speech.Audio, error)
}

// SpeechSynthesizer voices each segment with the speaking host's voice and
// concatenates the MP3 frames.
type SpeechSynthesizer struct {
	client   SpeechClient
	tiers    Tiers
	settings speech.VoiceSettings
}

// NewSpeechSynthesizer constructs a synthesizer using the configured voice settings.
func NewSpeechSynthesizer(client SpeechClient, tiers Tiers, cfg config.Speech) *SpeechSynthesizer {
	return &SpeechSynthesizer{
		client: client,
		tiers:  tiers,
		settings: speech.VoiceSettings{
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
			Style:           cfg.Style,
			SpeakerBoost:    cfg.SpeakerBoost,
		},
	}
}

// Profile implements Synthesizer.
func (s *SpeechSynthesizer) Profile(tier fingerprint.CostTier) Profile {
	return s.tiers.Stage(fingerprint.StageSynthesize, tier)
}

// Synthesize implements Synthesizer.
func (s *SpeechSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (Audio, error) {
	if len(req.Script.Segments) == 0 {
		return Audio{}, services.Wrap(services.ErrValidation, "synthesize", "request", "script has no segments", nil)
	}
	hosts := req.Language.Hosts
	if len(hosts) == 0 {
		return Audio{}, services.Wrap(services.ErrConfiguration, "synthesize", "voices", "language has no hosts", nil)
	}
	voices := make(map[string]string, len(hosts))
	for _, h := range hosts {
		voices[strings.ToLower(h.Name)] = h.VoiceID
	}
	model := s.Profile(req.CostTier).Model

	var out Audio
	for i, seg := range req.Script.Segments {
		voice, ok := voices[strings.ToLower(seg.Speaker)]
		if !ok {
			voice = hosts[i%len(hosts)].VoiceID
		}
		clip, err := s.client.Synthesize(ctx, speech.Request{
			Text:     seg.Text,
			VoiceID:  voice,
			ModelID:  model,
			Settings: s.settings,
		})
		if err != nil {
			return Audio{}, err
		}
		out.Bytes = append(out.Bytes, clip.Bytes...)
		out.DurationSeconds += clip.DurationSeconds
	}
	return out, nil
}
