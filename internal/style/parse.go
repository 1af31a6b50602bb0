package style

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codebuildervaibhav/content-pipeline/internal/llm"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// ErrUnparseable is returned when a reply yields none of the categories
var ErrUnparseable = errors.New("could not parse style profile from model response")

// category names as stored on the profile, in output order
var categories = []string{"voice", "themes", "values", "emotionalTone", "relatability"}

// markdown section headings per category
var sectionNames = map[string]string{
	"voice":         "voice",
	"themes":        "themes",
	"values":        "values",
	"emotionalTone": "emotional_tone",
	"relatability":  "relatability",
}

// ParseProfile reads a model reply as JSON, fenced JSON, or "Section:" lists,
// in that order. Categories the reply leaves out come back empty and are
// listed in MissingFields.
func ParseProfile(reply string) (*types.ProfileResult, error) {
	reply = strings.TrimSpace(reply)

	var (
		fields map[string][]string
		source string
	)
	if f, ok := decodeJSON(reply); ok {
		fields, source = f, types.ProfileSourceJSON
	} else if obj := llm.ExtractJSON(reply); obj != "" {
		if f, ok := decodeJSON(obj); ok {
			fields, source = f, types.ProfileSourceJSON
			if llm.IsFenced(reply) {
				source = types.ProfileSourceFenced
			}
		}
	}
	if fields == nil {
		fields, source = parseSections(reply), types.ProfileSourceSections
	}

	res := &types.ProfileResult{Source: source, MissingFields: []string{}}
	found := 0
	for _, name := range categories {
		items := fields[name]
		if items == nil {
			items = []string{}
		}
		if len(items) == 0 {
			res.MissingFields = append(res.MissingFields, name)
		} else {
			found++
		}
		switch name {
		case "voice":
			res.Voice = items
		case "themes":
			res.Themes = items
		case "values":
			res.Values = items
		case "emotionalTone":
			res.EmotionalTone = items
		case "relatability":
			res.Relatability = items
		}
	}
	if found == 0 {
		return nil, ErrUnparseable
	}
	return res, nil
}

// RenderMarkdown formats a profile as the style-profile.md document
func RenderMarkdown(res *types.ProfileResult, clientID string, generated time.Time) string {
	var b strings.Builder
	b.WriteString("# Style Profile\n")
	fmt.Fprintf(&b, "Client ID: %s\n", clientID)
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format("2006-01-02 15:04:05"))

	lists := [][]string{res.Voice, res.Themes, res.Values, res.EmotionalTone, res.Relatability}
	for i, name := range categories {
		fmt.Fprintf(&b, "## %s:\n", sectionNames[name])
		for _, item := range lists[i] {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func decodeJSON(s string) (map[string][]string, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}

	out := make(map[string][]string)
	for key, val := range raw {
		name, ok := categoryOf(key)
		if !ok {
			continue
		}
		out[name] = decodeItems(val)
	}
	return out, true
}

// decodeItems accepts an array of strings, an array of scalars, or one string
func decodeItems(raw json.RawMessage) []string {
	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil {
		return cleanItems(strs)
	}
	var anys []interface{}
	if err := json.Unmarshal(raw, &anys); err == nil {
		items := make([]string, 0, len(anys))
		for _, a := range anys {
			if a != nil {
				items = append(items, fmt.Sprint(a))
			}
		}
		return cleanItems(items)
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return cleanItems([]string{one})
	}
	return nil
}

func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// categoryOf maps "Emotional Tone", "emotional_tone" or "emotionalTone" to emotionalTone
func categoryOf(key string) (string, bool) {
	k := strings.ToLower(key)
	k = strings.NewReplacer("_", "", " ", "", "-", "").Replace(k)
	switch k {
	case "voice":
		return "voice", true
	case "themes", "theme":
		return "themes", true
	case "values", "value":
		return "values", true
	case "emotionaltone", "tone":
		return "emotionalTone", true
	case "relatability":
		return "relatability", true
	}
	return "", false
}

// parseSections reads "Voice:" style headings followed by "- item" lines
func parseSections(reply string) map[string][]string {
	out := make(map[string][]string)
	current := ""
	for _, line := range strings.Split(reply, "\n") {
		lower := strings.ToLower(line)
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.Contains(lower, "voice:"):
			current = "voice"
		case strings.Contains(lower, "themes:"):
			current = "themes"
		case strings.Contains(lower, "values:"):
			current = "values"
		case strings.Contains(lower, "emotional") && strings.Contains(lower, "tone:"):
			current = "emotionalTone"
		case strings.Contains(lower, "relatability:"):
			current = "relatability"
		case current != "" && (strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*")):
			if item := strings.TrimSpace(trimmed[1:]); item != "" {
				out[current] = append(out[current], item)
			}
		}
	}
	return out
}
