package stages

import (
	"context"
	"strings"

	"constellation/internal/episode"
	"constellation/internal/fingerprint"
	"constellation/internal/services"
	"constellation/internal/textutil"
)

// DocumentResearcher builds a research brief from fixed documents without any
// network access. Passages are ranked by relevance to the topic.
type DocumentResearcher struct{}

// NewDocumentResearcher constructs a document researcher.
func NewDocumentResearcher() *DocumentResearcher {
	return &DocumentResearcher{}
}

// Profile implements Researcher. Reading local documents costs nothing.
func (DocumentResearcher) Profile(fingerprint.CostTier) Profile {
	return Profile{Model: "documents"}
}

// Research implements Researcher.
func (DocumentResearcher) Research(ctx context.Context, req ResearchRequest) (ResearchResult, error) {
	if err := ctx.Err(); err != nil {
		return ResearchResult{}, err
	}
	if len(req.Documents) == 0 {
		return ResearchResult{}, services.Wrap(services.ErrValidation, "research", "documents", "no documents supplied", nil)
	}

	var passages []string
	source := make(map[string]string)
	for _, doc := range req.Documents {
		for _, p := range splitPassages(doc.Content) {
			if _, dup := source[p]; dup {
				continue
			}
			source[p] = doc.Name
			passages = append(passages, p)
		}
	}
	if len(passages) == 0 {
		return ResearchResult{}, services.Wrap(services.ErrValidation, "research", "documents", "documents are empty", nil)
	}

	points := textutil.RankPassages(req.Topic, passages, pointLimit(req.Depth))
	if len(points) == 0 {
		// Nothing mentions the topic; fall back to the opening passages.
		points = passages[:min(len(passages), pointLimit(req.Depth))]
	}
	var citations []string
	seen := make(map[string]struct{})
	for _, p := range points {
		name := source[p]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		citations = append(citations, name)
	}
	return ResearchResult{
		Summary:   strings.Join(points[:min(len(points), 2)], " "),
		KeyPoints: points,
		Citations: citations,
	}, nil
}

func pointLimit(depth episode.Depth) int {
	switch depth {
	case episode.DepthBrief:
		return 3
	case episode.DepthDeep:
		return 10
	default:
		return 5
	}
}

// splitPassages breaks a document into paragraphs, collapsing internal whitespace.
func splitPassages(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(content, "\n\n") {
		text := strings.Join(strings.Fields(block), " ")
		text = strings.TrimLeft(text, "#-* ")
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}
