// Package episode defines the closed set of episode types and the capability
// table that tells research and dialogue stages how deep and how long to go.
package episode

import (
	"fmt"
	"strings"
)

// Type is one of the supported episode formats.
type Type string

const (
	Build        Type = "build"
	Introduction Type = "introduction"
	Conversation Type = "conversation"
	Interview    Type = "interview"
	Summary      Type = "summary"
	QuickTip     Type = "quick_tip"
)

// Depth controls how much research an episode needs.
type Depth string

const (
	DepthBrief    Depth = "brief"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// Capability is the per-type behaviour consumed by the pipeline.
type Capability struct {
	Type           Type
	Depth          Depth
	DefaultMinutes int
	Segments       int
	MinWords       int
	MaxWords       int
	Outline        []string
}

var capabilities = []Capability{
	{
		Type: Build, Depth: DepthDeep, DefaultMinutes: 20, Segments: 12, MinWords: 80, MaxWords: 150,
		Outline: []string{"problem framing", "architecture walkthrough", "implementation steps", "pitfalls", "recap"},
	},
	{
		Type: Introduction, Depth: DepthBrief, DefaultMinutes: 10, Segments: 10, MinWords: 100, MaxWords: 150,
		Outline: []string{"host introductions", "what the show covers", "who it is for", "what is next"},
	},
	{
		Type: Conversation, Depth: DepthStandard, DefaultMinutes: 15, Segments: 10, MinWords: 100, MaxWords: 150,
		Outline: []string{"hook", "context", "main discussion", "practical takeaways", "closing thoughts"},
	},
	{
		Type: Interview, Depth: DepthStandard, DefaultMinutes: 25, Segments: 14, MinWords: 80, MaxWords: 160,
		Outline: []string{"guest introduction", "background", "deep-dive questions", "lightning round", "wrap up"},
	},
	{
		Type: Summary, Depth: DepthDeep, DefaultMinutes: 8, Segments: 6, MinWords: 80, MaxWords: 140,
		Outline: []string{"key insights", "supporting evidence", "implications"},
	},
	{
		Type: QuickTip, Depth: DepthBrief, DefaultMinutes: 2, Segments: 3, MinWords: 40, MaxWords: 80,
		Outline: []string{"the tip", "why it works", "call to action"},
	},
}

// Types returns every episode type in canonical order.
func Types() []Type {
	out := make([]Type, len(capabilities))
	for i, c := range capabilities {
		out[i] = c.Type
	}
	return out
}

// Parse validates an episode type name. Hyphens are accepted for underscores.
func Parse(value string) (Type, error) {
	normalized := Type(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	for _, c := range capabilities {
		if c.Type == normalized {
			return c.Type, nil
		}
	}
	names := make([]string, len(capabilities))
	for i, c := range capabilities {
		names[i] = string(c.Type)
	}
	return "", fmt.Errorf("unknown episode type %q (supported: %s)", value, strings.Join(names, ", "))
}

// Capabilities returns the capability row for t. Unknown types fall back to
// conversation; Parse should be used at the edge to reject them.
func (t Type) Capabilities() Capability {
	for _, c := range capabilities {
		if c.Type == t {
			out := c
			out.Outline = append([]string(nil), c.Outline...)
			return out
		}
	}
	return Conversation.Capabilities()
}

func (t Type) String() string { return string(t) }
