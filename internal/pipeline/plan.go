package pipeline

import (
	"fmt"
	"strings"

	"constellation/internal/episode"
	"constellation/internal/fingerprint"
	"constellation/internal/language"
	"constellation/internal/services"
	"constellation/internal/stages"
)

// Plan is the input to one pipeline run.
type Plan struct {
	Topic              string
	PrimaryLanguage    language.Language
	SecondaryLanguages []language.Language
	EpisodeType        episode.Type
	CostTier           fingerprint.CostTier

	// TargetMinutes overrides the episode type's default length when positive.
	TargetMinutes  int
	EpisodeNumber  int
	IncludeIntro   bool
	IncludeOutro   bool
	TranscriptOnly bool
	Documents      []stages.Document
}

// Languages returns the primary language followed by the secondaries in plan order.
func (p Plan) Languages() []language.Language {
	out := make([]language.Language, 0, 1+len(p.SecondaryLanguages))
	out = append(out, p.PrimaryLanguage)
	return append(out, p.SecondaryLanguages...)
}

// Validate checks the plan against the language catalog.
func (p *Plan) Validate(catalog *language.Catalog) error {
	p.Topic = strings.TrimSpace(p.Topic)
	if p.Topic == "" {
		return invalidPlan("topic is required")
	}
	if _, err := episode.Parse(string(p.EpisodeType)); err != nil {
		return invalidPlan(err.Error())
	}
	if _, err := fingerprint.ParseCostTier(string(p.CostTier)); err != nil {
		return invalidPlan(err.Error())
	}
	if p.TargetMinutes < 0 {
		return invalidPlan("target minutes must be positive")
	}
	seen := make(map[language.Language]struct{})
	for _, lang := range p.Languages() {
		if _, err := catalog.Lookup(lang); err != nil {
			return invalidPlan(err.Error())
		}
		if _, dup := seen[lang]; dup {
			return invalidPlan(fmt.Sprintf("language %s listed more than once", lang))
		}
		seen[lang] = struct{}{}
	}
	return nil
}

func invalidPlan(msg string) error {
	return services.Wrap(services.ErrValidation, "pipeline", "plan", msg, nil)
}
