package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"gopkg.in/yaml.v3"
)

const DefaultDisclosurePhrase = "This is an AI agent calling."

// Policy holds the compliance and billing rules that operators tune without a
// rebuild. Every field has a compiled-in default.
type Policy struct {
	TCPA             TCPAWindow            `yaml:"tcpa"`
	DisclosurePhrase string                `yaml:"disclosure_phrase"`
	ContentPatterns  []string              `yaml:"content_patterns"`
	TierPresets      map[string]TierPreset `yaml:"tier_presets"`

	compiled []*regexp.Regexp
	presets  map[domain.BillingTier]domain.SpendingLimits
}

// TCPAWindow is the local-time range in which outbound calls may be placed,
// as whole hours [StartHour, EndHour).
type TCPAWindow struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

type TierPreset struct {
	MaxActionsPerMinute *int     `yaml:"max_actions_per_minute"`
	MaxActionsPerHour   *int     `yaml:"max_actions_per_hour"`
	MaxActionsPerDay    *int     `yaml:"max_actions_per_day"`
	MaxSpendPerDay      *float64 `yaml:"max_spend_per_day"`
	MaxSpendPerMonth    *float64 `yaml:"max_spend_per_month"`
}

var defaultContentPatterns = []string{
	`\b(ssn|social security number)\s*[:#]?\s*\d{3}-?\d{2}-?\d{4}\b`,
	`\b(?:\d[ -]?){13,16}\b`,
	`\bwire\s+transfer\b.*\bgift\s+cards?\b`,
	`\b(guaranteed|risk[- ]free)\s+(returns?|profits?|income)\b`,
	`\bact\s+now\b.*\b(arrest|warrant|lawsuit)\b`,
}

func DefaultPolicy() *Policy {
	p := &Policy{
		TCPA:             TCPAWindow{StartHour: 8, EndHour: 21},
		DisclosurePhrase: DefaultDisclosurePhrase,
		ContentPatterns:  defaultContentPatterns,
	}
	if err := p.compile(); err != nil {
		panic(err)
	}
	return p
}

// LoadPolicy reads a YAML policy file. Fields absent from the file keep their
// defaults; an empty path returns the defaults.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) (*Policy, error) {
	p := &Policy{
		TCPA:             TCPAWindow{StartHour: 8, EndHour: 21},
		DisclosurePhrase: DefaultDisclosurePhrase,
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if p.ContentPatterns == nil {
		p.ContentPatterns = defaultContentPatterns
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) Validate() error {
	if p.TCPA.StartHour < 0 || p.TCPA.StartHour > 23 || p.TCPA.EndHour < 1 || p.TCPA.EndHour > 24 {
		return fmt.Errorf("tcpa: hours must be within 0-24")
	}
	if p.TCPA.StartHour >= p.TCPA.EndHour {
		return fmt.Errorf("tcpa: start_hour must be before end_hour")
	}
	for name := range p.TierPresets {
		if !domain.ValidBillingTier(name) {
			return fmt.Errorf("tier_presets: unknown tier %q", name)
		}
	}
	return nil
}

func (p *Policy) compile() error {
	p.compiled = p.compiled[:0]
	for _, pattern := range p.ContentPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return fmt.Errorf("content pattern %q: %w", pattern, err)
		}
		p.compiled = append(p.compiled, re)
	}

	p.presets = domain.DefaultTierPresets()
	for name, over := range p.TierPresets {
		tier := domain.BillingTier(name)
		p.presets[tier] = domain.LimitsPatch{
			MaxActionsPerMinute: over.MaxActionsPerMinute,
			MaxActionsPerHour:   over.MaxActionsPerHour,
			MaxActionsPerDay:    over.MaxActionsPerDay,
			MaxSpendPerDay:      over.MaxSpendPerDay,
			MaxSpendPerMonth:    over.MaxSpendPerMonth,
		}.Apply(p.presets[tier])
	}
	return nil
}

// ContentRules returns the compiled, case-insensitive content filters.
func (p *Policy) ContentRules() []*regexp.Regexp {
	return p.compiled
}

// Preset returns the ceilings for a billing tier.
func (p *Policy) Preset(tier domain.BillingTier) (domain.SpendingLimits, bool) {
	l, ok := p.presets[tier]
	return l, ok
}

// InWindow reports whether the local wall-clock time falls inside the
// permitted calling hours.
func (w TCPAWindow) InWindow(local time.Time) bool {
	h := local.Hour()
	return h >= w.StartHour && h < w.EndHour
}
