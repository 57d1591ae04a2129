package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/switchboard-labs/switchboard/internal/domain"
)

const capabilitiesExample = `{"capabilities": {"phone": true, "email": true}} or {"capabilities": ["phone", "email"]}`

// parseCapabilities accepts either an object of booleans or an array of
// capability names. set is false when the field was omitted or null.
func parseCapabilities(raw json.RawMessage) (caps domain.Capabilities, set bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return caps, false, nil
	}

	switch raw[0] {
	case '[':
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			return caps, false, invalidCapabilities(err.Error())
		}
		for _, n := range names {
			if !setCapability(&caps, n, true) {
				return caps, false, invalidCapabilities("unknown capability " + n)
			}
		}
	case '{':
		var flags map[string]bool
		if err := json.Unmarshal(raw, &flags); err != nil {
			return caps, false, invalidCapabilities(err.Error())
		}
		for n, on := range flags {
			if !setCapability(&caps, n, on) {
				return caps, false, invalidCapabilities("unknown capability " + n)
			}
		}
	default:
		return caps, false, invalidCapabilities("expected an object or an array")
	}
	return caps, true, nil
}

func setCapability(c *domain.Capabilities, name string, on bool) bool {
	switch canonicalKey(name) {
	case "phone", "sms":
		c.Phone = c.Phone || on
	case "whatsapp":
		c.WhatsApp = c.WhatsApp || on
	case "email":
		c.Email = c.Email || on
	case "voiceai", "voice":
		c.VoiceAI = c.VoiceAI || on
	default:
		return false
	}
	return true
}

func invalidCapabilities(detail string) error {
	return &domain.SanitizationError{
		Field:   "capabilities",
		Message: "invalid capabilities: " + detail + " (known: phone, whatsapp, email, voiceAi)",
		Example: capabilitiesExample,
	}
}

// canonicalKey folds camelCase and snake_case spellings to one form.
func canonicalKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(k))
}

var limitKeys = map[string]string{
	canonicalKey(domain.LimitActionsPerMinute): domain.LimitActionsPerMinute,
	canonicalKey(domain.LimitActionsPerHour):   domain.LimitActionsPerHour,
	canonicalKey(domain.LimitActionsPerDay):    domain.LimitActionsPerDay,
	canonicalKey(domain.LimitSpendPerDay):      domain.LimitSpendPerDay,
	canonicalKey(domain.LimitSpendPerMonth):    domain.LimitSpendPerMonth,
}

// parseLimits reads a limits object keyed in camelCase or snake_case.
// Null values are ignored; unknown keys are rejected.
func parseLimits(raw map[string]json.RawMessage) (domain.LimitsPatch, error) {
	var p domain.LimitsPatch
	for key, v := range raw {
		name, ok := limitKeys[canonicalKey(key)]
		if !ok {
			return p, &domain.SanitizationError{
				Field:   "limits",
				Message: fmt.Sprintf("unknown limit %q", key),
				Example: `{"limits": {"maxActionsPerMinute": 20, "maxSpendPerDay": 5}}`,
			}
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return p, &domain.SanitizationError{Field: name, Message: name + " must be a number"}
		}

		switch name {
		case domain.LimitSpendPerDay:
			p.MaxSpendPerDay = &f
		case domain.LimitSpendPerMonth:
			p.MaxSpendPerMonth = &f
		default:
			if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
				return p, &domain.SanitizationError{Field: name, Message: name + " must be a whole number"}
			}
			n := int(f)
			switch name {
			case domain.LimitActionsPerMinute:
				p.MaxActionsPerMinute = &n
			case domain.LimitActionsPerHour:
				p.MaxActionsPerHour = &n
			case domain.LimitActionsPerDay:
				p.MaxActionsPerDay = &n
			}
		}
	}
	return p, nil
}
