package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

func TestTokenManager_IssueAndVerify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw, hash, err := h.tokens.Issue()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, AgentTokenPrefix))
	assert.Len(t, raw, len(AgentTokenPrefix)+2*tokenBytes)
	assert.Equal(t, HashToken(raw), hash)
	assert.NotContains(t, hash, raw)

	_, err = h.tokens.Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = h.tokens.Store(ctx, "bot-1", domain.DefaultOrgID, hash, "ci")
	require.NoError(t, err)
	tok, err := h.tokens.Verify(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "bot-1", tok.AgentID)
	assert.Equal(t, "ci", tok.Label)

	n, err := h.tokens.RevokeAll(ctx, "bot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = h.tokens.Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRegenerateToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, bot := h.provision(t, ProvisionRequest{AgentID: "bot-1"})

	regen, err := h.creds.RegenerateToken(ctx, bot, "", "rotated")
	require.NoError(t, err)
	assert.Equal(t, "bot-1", regen.AgentID)
	assert.NotEqual(t, res.SecurityToken, regen.Token)
	assert.Equal(t, "rotated", regen.Info.Label)
	assert.Equal(t, 1, h.tokenStore.live("bot-1"))

	tokens, err := h.creds.ListTokens(ctx, h.orchestrator, "bot-1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	revoked := 0
	for _, tok := range tokens {
		if tok.Revoked() {
			revoked++
		}
	}
	assert.Equal(t, 1, revoked)

	events := h.auditStore.events(domain.AuditTokenRegenerated)
	require.Len(t, events, 1)
	assert.Equal(t, "agent:bot-1", events[0].Actor)
	assert.NotContains(t, string(events[0].Details), regen.Token)
}

func TestRegenerateToken_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, bot1 := h.provision(t, ProvisionRequest{AgentID: "bot-1"})
	h.provision(t, ProvisionRequest{AgentID: "bot-2"})

	_, err := h.creds.RegenerateToken(ctx, bot1, "bot-2", "")
	var ae *domain.AuthError
	assert.ErrorAs(t, err, &ae)

	_, err = h.provisioning.Deprovision(ctx, h.orchestrator, "bot-2", false)
	require.NoError(t, err)
	_, err = h.creds.RegenerateToken(ctx, h.orchestrator, "bot-2", "")
	assert.ErrorIs(t, err, ErrAgentInactive)
}
