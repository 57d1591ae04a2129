package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/switchboard-labs/switchboard/internal/config"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"github.com/switchboard-labs/switchboard/internal/store"
	"go.uber.org/zap"
)

// Compliance check names, as reported in ComplianceError.Check.
const (
	CheckTCPA    = "tcpa_time_of_day"
	CheckDNC     = "do_not_contact"
	CheckContent = "content_filter"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// ComplianceGate decides whether an outbound action may proceed. Checks are
// read-only.
type ComplianceGate struct {
	dnc     domain.DNCStore
	orgs    domain.OrganizationStore
	auth    *AuthResolver
	audit   *AuditLogger
	policy  *config.Policy
	tz      *TimezoneResolver
	demo    bool
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     Clock
}

func NewComplianceGate(dnc domain.DNCStore, orgs domain.OrganizationStore, auth *AuthResolver, audit *AuditLogger, policy *config.Policy, tz *TimezoneResolver, demo bool, m *metrics.Metrics, logger *zap.Logger) *ComplianceGate {
	return &ComplianceGate{
		dnc:     dnc,
		orgs:    orgs,
		auth:    auth,
		audit:   audit,
		policy:  policy,
		tz:      tz,
		demo:    demo,
		metrics: m,
		logger:  logger,
		now:     utcNow,
	}
}

func (g *ComplianceGate) SetClock(c Clock) {
	g.now = c
}

// PreSendCheck runs every applicable check for one outbound action and
// returns a *domain.ComplianceError for the first denial. The calling-hours
// check applies to voice only and is skipped in demo mode.
func (g *ComplianceGate) PreSendCheck(ctx context.Context, orgID string, channel domain.Channel, to, body, html string) error {
	if channel == domain.ChannelVoice && !g.demo {
		if r := g.CheckTCPATimeOfDay(g.tz.ZoneFor(to)); !r.Allowed {
			return g.deny(orgID, to, r)
		}
	}

	r, err := g.CheckDNC(ctx, orgID, to, domain.ContactKindFor(channel))
	if err != nil {
		return err
	}
	if !r.Allowed {
		return g.deny(orgID, to, r)
	}

	if r := g.CheckContentFilter(body + "\n" + stripHTML(html)); !r.Allowed {
		return g.deny(orgID, to, r)
	}
	return nil
}

func (g *ComplianceGate) deny(orgID, to string, r domain.ComplianceResult) error {
	g.metrics.ActionDenied("compliance", r.Check)
	g.logger.Info("compliance check refused action",
		zap.String("org_id", orgID),
		zap.String("check", r.Check),
		zap.String("to", to),
		zap.String("reason", r.Reason))
	return r.Err()
}

// CheckTCPATimeOfDay reports whether it is currently within calling hours in
// the named zone. Unknown zones use the default zone.
func (g *ComplianceGate) CheckTCPATimeOfDay(zone string) domain.ComplianceResult {
	loc := g.tz.Location(zone)
	local := g.now().In(loc)
	w := g.policy.TCPA
	if !w.InWindow(local) {
		return domain.Deny(CheckTCPA, fmt.Sprintf(
			"calls are only permitted between %02d:00 and %02d:00 in the recipient's local time; it is %s in %s",
			w.StartHour, w.EndHour, local.Format("15:04"), loc.String()))
	}
	return domain.Allow()
}

func (g *ComplianceGate) CheckDNC(ctx context.Context, orgID, target string, kind domain.ContactKind) (domain.ComplianceResult, error) {
	entry, err := g.dnc.Find(ctx, orgID, normalizeContact(target, kind), kind)
	if err != nil {
		return domain.ComplianceResult{}, fmt.Errorf("check do-not-contact list: %w", err)
	}
	if entry != nil {
		scope := "platform-wide"
		if entry.OrgID != nil {
			scope = "organization"
		}
		return domain.Deny(CheckDNC, fmt.Sprintf("recipient is on the %s do-not-contact list", scope)), nil
	}
	return domain.Allow(), nil
}

func (g *ComplianceGate) CheckContentFilter(text string) domain.ComplianceResult {
	for _, re := range g.policy.ContentRules() {
		if re.MatchString(text) {
			return domain.Deny(CheckContent, "message content matches a prohibited pattern")
		}
	}
	return domain.Allow()
}

// ApplyDisclosure prefixes text with the AI disclosure phrase unless the org
// has disabled it or text already starts with it.
func (g *ComplianceGate) ApplyDisclosure(ctx context.Context, orgID, text string) (string, error) {
	org, err := g.orgs.GetByID(ctx, orgID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load organization: %w", err)
	}
	if org != nil && org.DisclosureDisabled {
		return text, nil
	}
	phrase := g.policy.DisclosurePhrase
	if phrase == "" || strings.HasPrefix(strings.TrimSpace(text), phrase) {
		return text, nil
	}
	if strings.TrimSpace(text) == "" {
		return phrase, nil
	}
	return phrase + " " + text, nil
}

// SetDisclosure turns the disclosure requirement off or back on for an org.
// Both directions are audited with the acting credential.
func (g *ComplianceGate) SetDisclosure(ctx context.Context, auth *domain.AuthInfo, orgID string, disabled bool) (*domain.Organization, error) {
	if orgID == "" && auth != nil {
		orgID = auth.OrgID
	}
	if orgID == "" {
		return nil, domain.MissingField("orgId", `{"orgId": "org_123", "disabled": true}`)
	}
	if err := g.auth.RequireOrgScope(auth, orgID); err != nil {
		return nil, err
	}
	actor := auth.Actor()
	if err := g.orgs.SetDisclosure(ctx, orgID, disabled, actor, g.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}

	event := domain.AuditDisclosureEnabled
	if disabled {
		event = domain.AuditDisclosureDisabled
	}
	g.audit.LogBestEffort(ctx, event, actor, orgID, map[string]any{"disabled": disabled})

	return g.orgs.GetByID(ctx, orgID)
}

// AddDNC registers a do-not-contact entry. A nil OrgID makes it global, which
// only the orchestrator may do.
func (g *ComplianceGate) AddDNC(ctx context.Context, auth *domain.AuthInfo, e *domain.DNCEntry) error {
	if err := g.requireDNCScope(auth, e.OrgID); err != nil {
		return err
	}
	target, err := normalizeDNCTarget(e.Target, e.Kind)
	if err != nil {
		return err
	}
	e.Target = target
	if err := g.dnc.Add(ctx, e); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrDNCExists
		}
		return err
	}
	g.audit.LogBestEffort(ctx, domain.AuditDNCAdded, auth.Actor(), e.Target, map[string]any{
		"kind":   e.Kind,
		"orgId":  e.OrgID,
		"reason": e.Reason,
	})
	return nil
}

func (g *ComplianceGate) RemoveDNC(ctx context.Context, auth *domain.AuthInfo, orgID *string, target string, kind domain.ContactKind) error {
	if err := g.requireDNCScope(auth, orgID); err != nil {
		return err
	}
	target, err := normalizeDNCTarget(target, kind)
	if err != nil {
		return err
	}
	removed, err := g.dnc.Remove(ctx, orgID, target, kind)
	if err != nil {
		return err
	}
	if !removed {
		return ErrDNCNotFound
	}
	g.audit.LogBestEffort(ctx, domain.AuditDNCRemoved, auth.Actor(), target, map[string]any{
		"kind":  kind,
		"orgId": orgID,
	})
	return nil
}

func (g *ComplianceGate) requireDNCScope(auth *domain.AuthInfo, orgID *string) error {
	if orgID == nil {
		return g.auth.RequireOrchestrator(auth)
	}
	return g.auth.RequireOrgScope(auth, *orgID)
}

func normalizeDNCTarget(target string, kind domain.ContactKind) (string, error) {
	example := `{"target": "+14155550100", "kind": "phone", "reason": "opted out"}`
	if strings.TrimSpace(target) == "" {
		return "", domain.MissingField("target", example)
	}
	switch kind {
	case domain.ContactPhone:
		return NormalizePhone("target", target)
	case domain.ContactEmail:
		return NormalizeEmail("target", target)
	case domain.ContactHandle:
		return strings.TrimSpace(target), nil
	}
	return "", &domain.SanitizationError{
		Field:   "kind",
		Message: fmt.Sprintf("invalid kind %q: expected phone, email or handle", kind),
		Example: example,
	}
}

// normalizeContact canonicalizes a target for lookup. Targets that fail
// normalization are looked up verbatim.
func normalizeContact(target string, kind domain.ContactKind) string {
	if n, err := normalizeDNCTarget(target, kind); err == nil {
		return n
	}
	return target
}

func stripHTML(html string) string {
	if html == "" {
		return ""
	}
	return htmlTag.ReplaceAllString(html, " ")
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
