package service

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/switchboard-labs/switchboard/internal/domain"
)

const (
	maxSMSLength      = 1600
	maxMessageLength  = 10000
	maxSubjectLength  = 998
	maxGreetingLength = 1000
	maxNameLength     = 100
	maxHTMLLength     = 100000
)

var (
	e164       = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	agentIDRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
	languageRe = regexp.MustCompile(`^[a-zA-Z]{2,3}([-_][a-zA-Z0-9]{2,8})*$`)
	phoneNoise = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizePhone returns the E.164 form of raw. Ten-digit numbers are taken
// as NANP.
func NormalizePhone(field, raw string) (string, error) {
	s := phoneNoise.Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case !strings.HasPrefix(s, "+") && len(s) == 10:
		s = "+1" + s
	case !strings.HasPrefix(s, "+") && len(s) == 11 && s[0] == '1':
		s = "+" + s
	}
	if !e164.MatchString(s) {
		return "", &domain.SanitizationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a phone number in E.164 format, got %q", field, raw),
			Example: fmt.Sprintf(`{"%s": "+14155550100"}`, field),
		}
	}
	return s, nil
}

func NormalizeEmail(field, raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || !strings.Contains(addr.Address, "@") {
		return "", &domain.SanitizationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a valid email address, got %q", field, raw),
			Example: fmt.Sprintf(`{"%s": "someone@example.com"}`, field),
		}
	}
	return strings.ToLower(addr.Address), nil
}

// cleanText drops control characters other than newline and tab and enforces
// a maximum length in characters.
func cleanText(field, s string, max int) (string, error) {
	if !utf8.ValidString(s) {
		return "", &domain.SanitizationError{Field: field, Message: field + " must be valid UTF-8"}
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)
	if n := utf8.RuneCountInString(cleaned); n > max {
		return "", &domain.SanitizationError{
			Field:   field,
			Message: fmt.Sprintf("%s is too long: %d characters, maximum is %d", field, n, max),
		}
	}
	return cleaned, nil
}

func requireText(field, s string, max int, example string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", domain.MissingField(field, example)
	}
	return cleanText(field, s, max)
}

func validateAgentID(id string) error {
	if !agentIDRe.MatchString(id) {
		return &domain.SanitizationError{
			Field:   "agentId",
			Message: fmt.Sprintf("invalid agentId %q: use 1-64 letters, digits, '_' or '-'", id),
			Example: `{"agentId": "support-bot-1"}`,
		}
	}
	return nil
}

func validateLanguage(lang string) error {
	if !languageRe.MatchString(lang) {
		return &domain.SanitizationError{
			Field:   "language",
			Message: fmt.Sprintf("invalid language tag %q", lang),
			Example: `{"language": "en-US"}`,
		}
	}
	return nil
}

// normalizeTarget canonicalizes a recipient for the channel.
func normalizeTarget(channel domain.Channel, to string) (string, error) {
	switch channel {
	case domain.ChannelEmail:
		return NormalizeEmail("to", to)
	case domain.ChannelLine:
		h := strings.TrimSpace(to)
		if h == "" || strings.ContainsFunc(h, unicode.IsSpace) {
			return "", &domain.SanitizationError{Field: "to", Message: "to must be a LINE user id", Example: `{"to": "U4af4980629"}`}
		}
		return h, nil
	default:
		return NormalizePhone("to", to)
	}
}
