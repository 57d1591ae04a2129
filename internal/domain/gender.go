package domain

import "strings"

// GenderContext tells callers how an agent should be addressed in languages
// with grammatical gender. English and other ungendered languages get nil.
type GenderContext struct {
	Language string `json:"language"`
	Gendered bool   `json:"gendered"`
	// AgentForm is the grammatical form the agent uses for itself.
	AgentForm string `json:"agentForm"`
	Note      string `json:"note"`
}

var genderedLanguages = map[string]string{
	"he": "Hebrew",
	"ar": "Arabic",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"pl": "Polish",
}

func GenderContextFor(language string) *GenderContext {
	base := strings.ToLower(language)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	name, ok := genderedLanguages[base]
	if !ok {
		return nil
	}
	return &GenderContext{
		Language:  base,
		Gendered:  true,
		AgentForm: "neutral",
		Note: name + " uses grammatical gender; the agent speaks in neutral or plural forms " +
			"unless the recipient's preferred form is known.",
	}
}
