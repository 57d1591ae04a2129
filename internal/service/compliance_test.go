package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchboard-labs/switchboard/internal/config"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"go.uber.org/zap"
)

func TestCheckTCPATimeOfDay(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		zone    string
		allowed bool
	}{
		{"new york afternoon", time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC), "America/New_York", true},
		{"new york 2am", time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC), "America/New_York", false},
		{"new york 8am opens", time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC), "America/New_York", true},
		{"new york 9pm closes", time.Date(2025, 3, 13, 1, 0, 0, 0, time.UTC), "America/New_York", false},
		{"los angeles 6am", time.Date(2025, 3, 12, 13, 0, 0, 0, time.UTC), "America/Los_Angeles", false},
		{"london evening", time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC), "Europe/London", true},
		{"unknown zone uses default", time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC), "Mars/Olympus", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			clock := newFakeClock(tt.now)
			clock.step = 0
			h.compliance.SetClock(clock.Now)

			r := h.compliance.CheckTCPATimeOfDay(tt.zone)
			assert.Equal(t, tt.allowed, r.Allowed)
			if !tt.allowed {
				assert.Equal(t, CheckTCPA, r.Check)
				assert.Contains(t, r.Reason, "08:00 and 21:00")
			}
		})
	}
}

func TestPreSendCheck_VoiceUsesRecipientZone(t *testing.T) {
	// 09:00 in New York, 06:00 in Los Angeles.
	h := newHarness(t, withNow(time.Date(2025, 3, 12, 13, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	assert.NoError(t, h.compliance.PreSendCheck(ctx, domain.DefaultOrgID, domain.ChannelVoice, "+12125550100", "", ""))

	err := h.compliance.PreSendCheck(ctx, domain.DefaultOrgID, domain.ChannelVoice, "+14155550100", "", "")
	var ce *domain.ComplianceError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CheckTCPA, ce.Check)

	assert.NoError(t, h.compliance.PreSendCheck(ctx, domain.DefaultOrgID, domain.ChannelSMS, "+14155550100", "hi", ""))
}

func TestPreSendCheck_DemoSkipsTimeOfDay(t *testing.T) {
	h := newHarness(t, withDemo(), withNow(time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC)))
	assert.NoError(t, h.compliance.PreSendCheck(context.Background(), domain.DefaultOrgID, domain.ChannelVoice, "+12125550100", "", ""))
}

func TestDNC_Scopes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acme, _ := h.createOrg(t, "acme")
	h.createOrg(t, "globex")
	acmeID := "acme"

	require.NoError(t, h.compliance.AddDNC(ctx, acme, &domain.DNCEntry{
		Target: "(415) 555-0100",
		Kind:   domain.ContactPhone,
		OrgID:  &acmeID,
		Reason: "opted out",
	}))
	assert.ErrorIs(t, h.compliance.AddDNC(ctx, acme, &domain.DNCEntry{Target: "+14155550100", Kind: domain.ContactPhone, OrgID: &acmeID}), ErrDNCExists)

	r, err := h.compliance.CheckDNC(ctx, "acme", "+14155550100", domain.ContactPhone)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "organization")

	r, err = h.compliance.CheckDNC(ctx, "globex", "+14155550100", domain.ContactPhone)
	require.NoError(t, err)
	assert.True(t, r.Allowed, "org entries do not leak to other orgs")

	// Only the orchestrator may file platform-wide entries.
	var ae *domain.AuthError
	require.ErrorAs(t, h.compliance.AddDNC(ctx, acme, &domain.DNCEntry{Target: "x@example.com", Kind: domain.ContactEmail}), &ae)
	require.NoError(t, h.compliance.AddDNC(ctx, h.orchestrator, &domain.DNCEntry{Target: "X@Example.com", Kind: domain.ContactEmail}))

	r, err = h.compliance.CheckDNC(ctx, "globex", "x@example.com", domain.ContactEmail)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "platform-wide")

	require.NoError(t, h.compliance.RemoveDNC(ctx, acme, &acmeID, "+14155550100", domain.ContactPhone))
	assert.ErrorIs(t, h.compliance.RemoveDNC(ctx, acme, &acmeID, "+14155550100", domain.ContactPhone), ErrDNCNotFound)

	r, err = h.compliance.CheckDNC(ctx, "acme", "+14155550100", domain.ContactPhone)
	require.NoError(t, err)
	assert.True(t, r.Allowed)

	assert.Len(t, h.auditStore.events(domain.AuditDNCAdded), 2)
	assert.Len(t, h.auditStore.events(domain.AuditDNCRemoved), 1)
}

func TestDNC_InvalidKind(t *testing.T) {
	h := newHarness(t)
	err := h.compliance.AddDNC(context.Background(), h.orchestrator, &domain.DNCEntry{Target: "abc", Kind: "fax"})
	var se *domain.SanitizationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "kind", se.Field)
}

func TestCheckContentFilter(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		text    string
		allowed bool
	}{
		{"Your appointment is confirmed for Tuesday.", true},
		{"My SSN: 123-45-6789", false},
		{"card 4111 1111 1111 1111 exp 12/29", false},
		{"Send a wire transfer and pay with gift cards", false},
		{"Guaranteed returns on every deposit", false},
		{"Order 12345 has shipped", true},
	}
	for _, tt := range tests {
		r := h.compliance.CheckContentFilter(tt.text)
		assert.Equal(t, tt.allowed, r.Allowed, tt.text)
	}

	err := h.compliance.PreSendCheck(context.Background(), domain.DefaultOrgID, domain.ChannelEmail, "a@example.com", "hello",
		"<p>act <b>now</b> or face arrest</p>")
	var ce *domain.ComplianceError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CheckContent, ce.Check)
}

func TestApplyDisclosure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	phrase := config.DefaultDisclosurePhrase

	got, err := h.compliance.ApplyDisclosure(ctx, domain.DefaultOrgID, "Hi, it's your dentist.")
	require.NoError(t, err)
	assert.Equal(t, phrase+" Hi, it's your dentist.", got)

	got, err = h.compliance.ApplyDisclosure(ctx, domain.DefaultOrgID, got)
	require.NoError(t, err)
	assert.Equal(t, phrase+" Hi, it's your dentist.", got, "applied once")

	got, err = h.compliance.ApplyDisclosure(ctx, domain.DefaultOrgID, "")
	require.NoError(t, err)
	assert.Equal(t, phrase, got)
}

func TestSetDisclosure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acme, _ := h.createOrg(t, "acme")
	h.createOrg(t, "globex")
	_, bot := h.provision(t, ProvisionRequest{AgentID: "bot-1", OrgID: "acme"})

	var ae *domain.AuthError
	_, err := h.compliance.SetDisclosure(ctx, bot, "acme", true)
	require.ErrorAs(t, err, &ae)
	_, err = h.compliance.SetDisclosure(ctx, acme, "globex", true)
	require.ErrorAs(t, err, &ae)

	org, err := h.compliance.SetDisclosure(ctx, acme, "", true)
	require.NoError(t, err)
	assert.True(t, org.DisclosureDisabled)
	require.NotNil(t, org.DisclosureDisabledBy)
	assert.Equal(t, "org:acme", *org.DisclosureDisabledBy)

	got, err := h.compliance.ApplyDisclosure(ctx, "acme", "Hello.")
	require.NoError(t, err)
	assert.Equal(t, "Hello.", got)

	events := h.auditStore.events(domain.AuditDisclosureDisabled)
	require.Len(t, events, 1)
	assert.Equal(t, "org:acme", events[0].Actor)

	org, err = h.compliance.SetDisclosure(ctx, h.orchestrator, "acme", false)
	require.NoError(t, err)
	assert.False(t, org.DisclosureDisabled)
	assert.Len(t, h.auditStore.events(domain.AuditDisclosureEnabled), 1)

	_, err = h.compliance.SetDisclosure(ctx, h.orchestrator, "nope", true)
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
}

func TestTimezoneResolver_ZoneFor(t *testing.T) {
	r := NewTimezoneResolver("America/New_York", zap.NewNop())
	assert.Equal(t, "America/New_York", r.ZoneFor("+12125550100"))
	assert.Equal(t, "America/Los_Angeles", r.ZoneFor("+14155550100"))
	assert.Equal(t, "America/Chicago", r.ZoneFor("+13125550100"))
	assert.Equal(t, "Europe/London", r.ZoneFor("+442071234567"))
	assert.Equal(t, "America/New_York", r.ZoneFor("+15555550100"), "unknown area code")
}
