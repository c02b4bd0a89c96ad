// Package templates holds the canned prompts offered next to the chat.
package templates

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type Kind string

const (
	// KindQuickAction templates operate on the current image and need one.
	KindQuickAction Kind = "action"
	KindSuggestion  Kind = "suggestion"
)

type Template struct {
	Name        string
	Label       string
	Instruction string
	Kind        Kind
}

func (t Template) RequiresImage() bool {
	return t.Kind == KindQuickAction
}

var QuickActions = []Template{
	{Name: "remove-bg", Label: "Remove BG", Instruction: "remove background and use professional lighting", Kind: KindQuickAction},
	{Name: "color-boost", Label: "Color Boost", Instruction: "boost saturation and improve contrast", Kind: KindQuickAction},
	{Name: "rim-light", Label: "Rim Light", Instruction: "add a white stroke glow around the subject", Kind: KindQuickAction},
}

// Suggestions are sent verbatim as chat messages.
var Suggestions = []Template{
	suggestion("Bright arrows"),
	suggestion("Glow edge"),
	suggestion("Blur background"),
	suggestion("Pop colors"),
	suggestion("Add vignette"),
	suggestion("Shadow subject"),
}

func suggestion(label string) Template {
	return Template{
		Name:        strings.ToLower(strings.ReplaceAll(label, " ", "-")),
		Label:       label,
		Instruction: label,
		Kind:        KindSuggestion,
	}
}

func All() []Template {
	return append(append([]Template{}, QuickActions...), Suggestions...)
}

// Find looks a template up by name or label, ignoring case. A 1-based
// index into the given catalog is also accepted.
func Find(catalog []Template, query string) (Template, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Template{}, false
	}
	if t, ok := lo.Find(catalog, func(t Template) bool {
		return t.Name == q || strings.ToLower(t.Label) == q
	}); ok {
		return t, true
	}
	idx, err := strconv.Atoi(q)
	if err == nil && idx >= 1 && idx <= len(catalog) {
		return catalog[idx-1], true
	}
	return Template{}, false
}

func Names(catalog []Template) []string {
	return lo.Map(catalog, func(t Template, _ int) string { return t.Name })
}
