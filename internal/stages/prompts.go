package stages

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	xlanguage "golang.org/x/text/language"

	"constellation/internal/episode"
	"constellation/internal/language"
)

var titleCaser = cases.Title(xlanguage.English)

// TitleTopic returns the topic in title case for prompts and episode titles.
func TitleTopic(topic string) string {
	return titleCaser.String(strings.TrimSpace(topic))
}

const researchSystemPrompt = `You are a research assistant preparing briefs for a business technology podcast.
Respond with JSON only: {"summary": string, "key_points": [string], "citations": [string]}.`

func researchPrompt(req ResearchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", TitleTopic(req.Topic))
	fmt.Fprintf(&b, "Depth: %s\n", req.Depth)
	switch req.Depth {
	case episode.DepthBrief:
		b.WriteString("Give 3 key points and a two sentence summary.\n")
	case episode.DepthDeep:
		b.WriteString("Give 8 to 10 key points with concrete numbers, case studies and a detailed summary.\n")
	default:
		b.WriteString("Give 5 key points and a one paragraph summary.\n")
	}
	if len(req.Documents) > 0 {
		b.WriteString("\nGround the brief in these documents and cite them by name:\n")
		for _, doc := range req.Documents {
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", doc.Name, strings.TrimSpace(doc.Content))
		}
	}
	return b.String()
}

func scriptSystemPrompt(profile language.Profile) string {
	hosts := strings.Join(profile.HostNames(), " and ")
	return fmt.Sprintf(`You write natural two-host podcast dialogue in %s. The hosts are %s.
Respond with JSON only: {"title": string, "segments": [{"speaker": string, "text": string}]}.
Every speaker must be one of the hosts.`, profile.Display, hosts)
}

func scriptPrompt(req ScriptRequest) string {
	capability := req.EpisodeType.Capabilities()
	minutes := req.TargetMinutes
	if minutes <= 0 {
		minutes = capability.DefaultMinutes
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", TitleTopic(req.Topic))
	fmt.Fprintf(&b, "Episode type: %s\n", req.EpisodeType)
	if req.EpisodeNumber > 0 {
		fmt.Fprintf(&b, "Episode number: %d\n", req.EpisodeNumber)
	}
	fmt.Fprintf(&b, "Target length: %d minutes, about %d segments of %d to %d words each.\n",
		minutes, capability.Segments, capability.MinWords, capability.MaxWords)
	fmt.Fprintf(&b, "Outline: %s\n", strings.Join(capability.Outline, "; "))
	if req.IncludeIntro {
		b.WriteString("Open with a short show introduction.\n")
	}
	if req.IncludeOutro {
		b.WriteString("Close with a short outro inviting listeners back.\n")
	}
	b.WriteString("\nResearch summary:\n")
	b.WriteString(strings.TrimSpace(req.Research.Summary))
	b.WriteString("\n")
	for _, point := range req.Research.KeyPoints {
		fmt.Fprintf(&b, "- %s\n", point)
	}
	return b.String()
}

func transformSystemPrompt(to language.Profile) string {
	return fmt.Sprintf(`You adapt podcast scripts for %s speaking audiences. Do not translate word for word:
rewrite idioms, examples and references so they land with the audience while keeping every fact.
The hosts are %s. Respond with JSON only: {"title": string, "segments": [{"speaker": string, "text": string}]}.`,
		to.Display, strings.Join(to.HostNames(), " and "))
}

func transformPrompt(req TransformRequest) string {
	culture := req.To.Culture
	var b strings.Builder
	fmt.Fprintf(&b, "Source language: %s\nTarget language: %s\n", req.From.Display, req.To.Display)
	fmt.Fprintf(&b, "Business focus: %s\n", culture.BusinessFocus)
	fmt.Fprintf(&b, "Communication style: %s\n", culture.CommunicationStyle)
	fmt.Fprintf(&b, "Technology adoption: %s\n", culture.TechAdoption)
	if len(culture.Examples) > 0 {
		fmt.Fprintf(&b, "Prefer examples such as: %s\n", strings.Join(culture.Examples, ", "))
	}
	fromHosts := req.From.HostNames()
	toHosts := req.To.HostNames()
	for i := range fromHosts {
		if i < len(toHosts) {
			fmt.Fprintf(&b, "Replace host %s with %s.\n", fromHosts[i], toHosts[i])
		}
	}
	fmt.Fprintf(&b, "\nTitle: %s\n\n", req.Script.Title)
	b.WriteString(RenderText(req.Script.Segments))
	return b.String()
}
