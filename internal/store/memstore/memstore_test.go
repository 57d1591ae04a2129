package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/store"
)

func TestNew_SeedsDefaultOrganization(t *testing.T) {
	db := New(3)
	ctx := context.Background()

	org, err := db.Orgs.GetByID(ctx, domain.DefaultOrgID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultOrgID, org.ID)

	pool, err := db.Pool.GetAgentPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.MaxAgents)
	assert.Equal(t, 0, pool.ActiveAgents)
}

func TestAgentStore_ReturnsCopies(t *testing.T) {
	db := New(1)
	ctx := context.Background()

	require.NoError(t, db.Agents.Create(ctx, &domain.Agent{ID: "bot-1", OrgID: domain.DefaultOrgID, Status: domain.AgentStatusActive}))
	assert.ErrorIs(t, db.Agents.Create(ctx, &domain.Agent{ID: "bot-1"}), store.ErrConflict)

	a, err := db.Agents.GetByID(ctx, "bot-1")
	require.NoError(t, err)
	a.Status = domain.AgentStatusDeprovisioned

	again, err := db.Agents.GetByID(ctx, "bot-1")
	require.NoError(t, err)
	assert.True(t, again.IsActive())

	_, err = db.Agents.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenStore_RevokedHashCannotBeReused(t *testing.T) {
	db := New(1)
	ctx := context.Background()

	require.NoError(t, db.Tokens.Create(ctx, &domain.Token{AgentID: "bot-1", Hash: "h1"}))
	n, err := db.Tokens.RevokeAllForAgent(ctx, "bot-1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, db.Tokens.Create(ctx, &domain.Token{AgentID: "bot-1", Hash: "h1"}), store.ErrConflict)

	tok, err := db.Tokens.GetByHash(ctx, "h1")
	require.NoError(t, err)
	assert.NotNil(t, tok.RevokedAt)

	n, err = db.Tokens.RevokeAllForAgent(ctx, "bot-1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPoolStore_Capacity(t *testing.T) {
	db := New(1)
	ctx := context.Background()

	ok, err := db.Pool.IncrementActive(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.Pool.IncrementActive(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Pool.SetCapacity(ctx, 2))
	ok, err = db.Pool.IncrementActive(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.Pool.DecrementActive(ctx))
	require.NoError(t, db.Pool.DecrementActive(ctx))
	require.NoError(t, db.Pool.DecrementActive(ctx))
	pool, err := db.Pool.GetAgentPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pool.ActiveAgents)
}

func TestPoolStore_Senders(t *testing.T) {
	db := New(1)
	ctx := context.Background()

	sender, err := db.Pool.AssignSender(ctx, "bot-1")
	require.NoError(t, err)
	assert.Nil(t, sender)

	require.NoError(t, db.Pool.AddSender(ctx, "WA1", "+15550000001"))
	assert.ErrorIs(t, db.Pool.AddSender(ctx, "WA1", "+15550000001"), store.ErrConflict)

	sender, err = db.Pool.AssignSender(ctx, "bot-1")
	require.NoError(t, err)
	require.NotNil(t, sender)
	assert.Equal(t, "WA1", sender.SenderID)
	require.NotNil(t, sender.AssignedAgentID)
	assert.Equal(t, "bot-1", *sender.AssignedAgentID)

	available, assigned, err := db.Pool.CountSenders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
	assert.Equal(t, 1, assigned)

	n, err := db.Pool.ReleaseSender(ctx, "bot-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	available, _, err = db.Pool.CountSenders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, available)
}

func TestDNCStore_PrefersOrganizationEntry(t *testing.T) {
	db := New(1)
	ctx := context.Background()
	acme := "acme"

	require.NoError(t, db.DNC.Add(ctx, &domain.DNCEntry{Target: "+14155550100", Kind: domain.ContactPhone, Reason: "global"}))
	require.NoError(t, db.DNC.Add(ctx, &domain.DNCEntry{Target: "+14155550100", Kind: domain.ContactPhone, OrgID: &acme, Reason: "acme"}))
	assert.ErrorIs(t, db.DNC.Add(ctx, &domain.DNCEntry{Target: "+14155550100", Kind: domain.ContactPhone}), store.ErrConflict)

	e, err := db.DNC.Find(ctx, "acme", "+14155550100", domain.ContactPhone)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "acme", e.Reason)

	e, err = db.DNC.Find(ctx, "other", "+14155550100", domain.ContactPhone)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Nil(t, e.OrgID)

	e, err = db.DNC.Find(ctx, "acme", "+14155550100", domain.ContactEmail)
	require.NoError(t, err)
	assert.Nil(t, e)

	removed, err := db.DNC.Remove(ctx, nil, "+14155550100", domain.ContactPhone)
	require.NoError(t, err)
	assert.True(t, removed)

	e, err = db.DNC.Find(ctx, "other", "+14155550100", domain.ContactPhone)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDeadLetterStore_Lifecycle(t *testing.T) {
	db := New(1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.DeadLetters.Create(ctx, &domain.DeadLetter{AgentID: "bot-1", Channel: domain.ChannelSMS}))
	}
	require.NoError(t, db.DeadLetters.Create(ctx, &domain.DeadLetter{AgentID: "bot-2", Channel: domain.ChannelSMS}))

	ackAt := time.Now().Add(-time.Hour)
	claimed, err := db.DeadLetters.ClaimPending(ctx, "bot-1", 2, ackAt)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, domain.DeadLetterAcknowledged, claimed[0].Status)

	claimed, err = db.DeadLetters.ClaimPending(ctx, "bot-1", 10, ackAt)
	require.NoError(t, err)
	assert.Len(t, claimed, 1, "already claimed letters are not returned again")

	claimed, err = db.DeadLetters.ClaimPending(ctx, "bot-1", 10, ackAt)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	purged, err := db.DeadLetters.PurgeAcknowledged(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, purged)
}

func TestAuditStore_List(t *testing.T) {
	db := New(1)
	ctx := context.Background()

	require.NoError(t, db.Agents.Create(ctx, &domain.Agent{ID: "acme-bot", OrgID: "acme", Status: domain.AgentStatusActive}))
	require.NoError(t, db.Audit.Create(ctx, &domain.AuditLogEntry{EventType: domain.AuditAgentProvisioned, Target: "acme-bot"}))
	require.NoError(t, db.Audit.Create(ctx, &domain.AuditLogEntry{EventType: domain.AuditAgentProvisioned, Target: "other-bot"}))
	require.NoError(t, db.Audit.Create(ctx, &domain.AuditLogEntry{EventType: domain.AuditDNCAdded, Target: "+14155550100"}))

	all, err := db.Audit.List(ctx, domain.AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.AuditDNCAdded, all[0].EventType)

	scoped, err := db.Audit.List(ctx, domain.AuditFilter{OrgID: "acme", Limit: 10})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "acme-bot", scoped[0].Target)

	byType, err := db.Audit.List(ctx, domain.AuditFilter{EventType: domain.AuditAgentProvisioned, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "other-bot", byType[0].Target)
}

func TestCallLogStore_UpdateStatus(t *testing.T) {
	db := New(1)
	ctx := context.Background()

	require.NoError(t, db.Calls.Create(ctx, &domain.CallLog{CallSID: "CA1", AgentID: "bot-1", Status: domain.CallInitiated}))

	c, err := db.Calls.UpdateStatus(ctx, "bot-1", "CA1", domain.CallCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.CallCompleted, c.Status)
	assert.Equal(t, domain.CallCompleted, db.Calls.Calls()[0].Status)

	_, err = db.Calls.UpdateStatus(ctx, "bot-2", "CA1", domain.CallFailed)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
