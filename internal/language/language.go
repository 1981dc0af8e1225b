package language

import (
	"fmt"
	"sort"
	"strings"

	xlanguage "golang.org/x/text/language"

	"constellation/internal/config"
)

// Language is one of the closed set of episode languages.
type Language string

const (
	English Language = "english"
	Hindi   Language = "hindi"
	Tamil   Language = "tamil"
)

type entry struct {
	name  Language
	code2 string // ISO 639-1
	code3 string // ISO 639-2
}

var languages = []entry{
	{English, "en", "eng"},
	{Hindi, "hi", "hin"},
	{Tamil, "ta", "tam"},
}

// All returns every supported language in canonical order.
func All() []Language {
	out := make([]Language, len(languages))
	for i, e := range languages {
		out[i] = e.name
	}
	return out
}

func lookup(value string) (entry, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return entry{}, false
	}
	for _, e := range languages {
		if value == string(e.name) || value == e.code2 || value == e.code3 {
			return e, true
		}
	}
	// Accept full BCP 47 tags such as "hi-IN" by their base language.
	if tag, err := xlanguage.Parse(value); err == nil {
		base, _ := tag.Base()
		for _, e := range languages {
			if base.String() == e.code2 {
				return e, true
			}
		}
	}
	return entry{}, false
}

// Parse resolves a language name, ISO code or BCP 47 tag.
func Parse(value string) (Language, error) {
	e, ok := lookup(value)
	if !ok {
		return "", fmt.Errorf("unsupported language %q (supported: %s)", value, strings.Join(names(), ", "))
	}
	return e.name, nil
}

// ParseList parses a comma separated or repeated list, dropping duplicates
// while keeping first-seen order.
func ParseList(values []string) ([]Language, error) {
	var out []Language
	seen := make(map[Language]struct{})
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			lang, err := Parse(part)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[lang]; dup {
				continue
			}
			seen[lang] = struct{}{}
			out = append(out, lang)
		}
	}
	return out, nil
}

// ISO2 returns the ISO 639-1 code.
func (l Language) ISO2() string {
	if e, ok := lookup(string(l)); ok {
		return e.code2
	}
	return ""
}

func (l Language) String() string { return string(l) }

func names() []string {
	out := make([]string, len(languages))
	for i, e := range languages {
		out[i] = string(e.name)
	}
	return out
}

// Host is one voice of a language's host pair.
type Host struct {
	Name    string
	VoiceID string
	Gender  string
}

// Culture guides cross-language adaptation.
type Culture struct {
	BusinessFocus      string
	CommunicationStyle string
	TechAdoption       string
	Examples           []string
}

// Profile is the capability table row for one language.
type Profile struct {
	Language Language
	Tag      xlanguage.Tag
	Display  string
	Hosts    []Host
	Culture  Culture
}

// VoiceIDs returns the host voice identifiers in host order.
func (p Profile) VoiceIDs() []string {
	ids := make([]string, len(p.Hosts))
	for i, h := range p.Hosts {
		ids[i] = h.VoiceID
	}
	return ids
}

// HostNames returns the host names in host order.
func (p Profile) HostNames() []string {
	out := make([]string, len(p.Hosts))
	for i, h := range p.Hosts {
		out[i] = h.Name
	}
	return out
}

// Catalog holds the configured profile for each supported language.
type Catalog struct {
	profiles map[Language]Profile
}

// NewCatalog builds a catalog from configuration. Unknown language keys and
// malformed tags are rejected.
func NewCatalog(cfg map[string]config.Language) (*Catalog, error) {
	catalog := &Catalog{profiles: make(map[Language]Profile, len(cfg))}
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lang, err := Parse(key)
		if err != nil {
			return nil, fmt.Errorf("languages.%s: %w", key, err)
		}
		if string(lang) != strings.ToLower(strings.TrimSpace(key)) {
			return nil, fmt.Errorf("languages.%s: use the language name %q as the key", key, lang)
		}
		entry := cfg[key]
		tag, err := xlanguage.Parse(entry.Tag)
		if err != nil {
			return nil, fmt.Errorf("languages.%s.tag: %w", key, err)
		}
		if base, _ := tag.Base(); base.String() != lang.ISO2() {
			return nil, fmt.Errorf("languages.%s.tag: %q does not match %s", key, entry.Tag, lang)
		}
		if len(entry.Hosts) == 0 {
			return nil, fmt.Errorf("languages.%s: at least one host is required", key)
		}
		profile := Profile{
			Language: lang,
			Tag:      tag,
			Display:  entry.Display,
			Culture: Culture{
				BusinessFocus:      entry.Culture.BusinessFocus,
				CommunicationStyle: entry.Culture.CommunicationStyle,
				TechAdoption:       entry.Culture.TechAdoption,
				Examples:           append([]string(nil), entry.Culture.Examples...),
			},
		}
		if profile.Display == "" {
			profile.Display = strings.ToUpper(string(lang[:1])) + string(lang[1:])
		}
		for _, h := range entry.Hosts {
			profile.Hosts = append(profile.Hosts, Host{Name: h.Name, VoiceID: h.VoiceID, Gender: h.Gender})
		}
		catalog.profiles[lang] = profile
	}
	return catalog, nil
}

// Profile returns the profile for lang.
func (c *Catalog) Profile(lang Language) (Profile, bool) {
	if c == nil {
		return Profile{}, false
	}
	p, ok := c.profiles[lang]
	return p, ok
}

// Lookup returns the profile for lang or an error naming the missing entry.
func (c *Catalog) Lookup(lang Language) (Profile, error) {
	p, ok := c.Profile(lang)
	if !ok {
		return Profile{}, fmt.Errorf("language %q is not configured", lang)
	}
	return p, nil
}

// Languages returns the configured languages in canonical order.
func (c *Catalog) Languages() []Language {
	var out []Language
	for _, e := range languages {
		if _, ok := c.profiles[e.name]; ok {
			out = append(out, e.name)
		}
	}
	return out
}
