package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/store"
	"go.uber.org/zap"
)

// DemoOrchestratorToken is accepted as the orchestrator credential in demo mode.
const DemoOrchestratorToken = "demo-admin"

// AuthResolver maps a bearer credential to a tier and scope, and enforces
// that scope on every operation touching agent or org data.
type AuthResolver struct {
	orchestratorHash string
	demo             bool
	orgs             domain.OrganizationStore
	agents           domain.AgentStore
	tokens           *TokenManager
	logger           *zap.Logger
}

func NewAuthResolver(orchestratorToken string, demo bool, orgs domain.OrganizationStore, agents domain.AgentStore, tokens *TokenManager, logger *zap.Logger) *AuthResolver {
	r := &AuthResolver{
		demo:   demo,
		orgs:   orgs,
		agents: agents,
		tokens: tokens,
		logger: logger,
	}
	if orchestratorToken != "" {
		r.orchestratorHash = HashToken(orchestratorToken)
	}
	return r
}

func (r *AuthResolver) DemoMode() bool {
	return r.demo
}

// Resolve checks the orchestrator secret first, then organization tokens,
// then agent tokens.
func (r *AuthResolver) Resolve(ctx context.Context, raw string) (*domain.AuthInfo, error) {
	masked := domain.MaskCredential(raw)
	if raw == "" {
		if r.demo {
			return &domain.AuthInfo{Tier: domain.TierOrchestrator, Credential: masked, Demo: true}, nil
		}
		return nil, &domain.AuthError{Credential: masked, Reason: "missing bearer credential"}
	}

	hash := HashToken(raw)
	if r.isOrchestrator(hash) {
		return &domain.AuthInfo{Tier: domain.TierOrchestrator, Credential: masked, Demo: r.demo}, nil
	}

	org, err := r.orgs.GetByTokenHash(ctx, hash)
	switch {
	case err == nil:
		return &domain.AuthInfo{Tier: domain.TierOrganization, OrgID: org.ID, Credential: masked, Demo: r.demo}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup organization token: %w", err)
	}

	tok, err := r.tokens.Verify(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, &domain.AuthError{Credential: masked, Reason: "invalid or revoked token"}
		}
		return nil, fmt.Errorf("lookup agent token: %w", err)
	}
	agent, err := r.agents.GetByID(ctx, tok.AgentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &domain.AuthError{Credential: masked, Reason: "invalid or revoked token"}
		}
		return nil, fmt.Errorf("lookup token agent: %w", err)
	}
	if !agent.IsActive() {
		return nil, &domain.AuthError{Credential: masked, Reason: "agent is deprovisioned"}
	}
	r.tokens.Touch(ctx, tok.ID)

	return &domain.AuthInfo{
		Tier:       domain.TierAgent,
		OrgID:      agent.OrgID,
		AgentID:    agent.ID,
		Credential: masked,
		Demo:       r.demo,
	}, nil
}

func (r *AuthResolver) isOrchestrator(hash string) bool {
	if r.orchestratorHash != "" && subtle.ConstantTimeCompare([]byte(hash), []byte(r.orchestratorHash)) == 1 {
		return true
	}
	if r.demo {
		demo := HashToken(DemoOrchestratorToken)
		return subtle.ConstantTimeCompare([]byte(hash), []byte(demo)) == 1
	}
	return false
}

func (r *AuthResolver) RequireAdmin(auth *domain.AuthInfo) error {
	if auth == nil || !auth.IsAdmin() {
		return &domain.AuthError{Credential: credentialOf(auth), Reason: "operation requires an orchestrator or organization token"}
	}
	return nil
}

func (r *AuthResolver) RequireOrchestrator(auth *domain.AuthInfo) error {
	if auth == nil || auth.Tier != domain.TierOrchestrator {
		return &domain.AuthError{Credential: credentialOf(auth), Reason: "operation requires the orchestrator token"}
	}
	return nil
}

// RequireAgent resolves the agent an operation acts on. Agent tokens act on
// themselves and may omit the id; admin tokens must name the agent.
func (r *AuthResolver) RequireAgent(ctx context.Context, auth *domain.AuthInfo, requested, example string) (*domain.Agent, error) {
	if auth == nil {
		return nil, &domain.AuthError{Credential: credentialOf(auth), Reason: "missing bearer credential"}
	}
	agentID := requested
	if auth.Tier == domain.TierAgent {
		if requested != "" && requested != auth.AgentID {
			return nil, &domain.AuthError{
				Credential: auth.Credential,
				Reason:     fmt.Sprintf("token for agent %s cannot act on agent %s", auth.AgentID, requested),
			}
		}
		agentID = auth.AgentID
	}
	if agentID == "" {
		return nil, domain.MissingField("agentId", example)
	}
	return r.RequireAgentInOrg(ctx, auth, agentID)
}

// RequireAgentInOrg loads the agent and checks that the caller's scope
// covers it. Out-of-scope agents are reported the same way whether they
// exist or not.
func (r *AuthResolver) RequireAgentInOrg(ctx context.Context, auth *domain.AuthInfo, agentID string) (*domain.Agent, error) {
	if auth == nil {
		return nil, &domain.AuthError{Credential: credentialOf(auth), Reason: "missing bearer credential"}
	}
	denied := &domain.AuthError{
		Credential: auth.Credential,
		Reason:     fmt.Sprintf("agent %s is outside the scope of this token", agentID),
	}
	if auth.Tier == domain.TierAgent && agentID != auth.AgentID {
		return nil, denied
	}

	agent, err := r.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if auth.Tier == domain.TierOrchestrator {
				return nil, ErrAgentNotFound
			}
			return nil, denied
		}
		return nil, err
	}
	if auth.Tier != domain.TierOrchestrator && agent.OrgID != auth.OrgID {
		r.logger.Warn("cross-tenant access denied",
			zap.String("org_id", auth.OrgID),
			zap.String("agent_id", agentID))
		return nil, denied
	}
	return agent, nil
}

// RequireOrgScope checks that the caller may act on orgID. The orchestrator
// may act on any org; organization tokens only on their own.
func (r *AuthResolver) RequireOrgScope(auth *domain.AuthInfo, orgID string) error {
	if err := r.RequireAdmin(auth); err != nil {
		return err
	}
	if auth.Tier == domain.TierOrganization && orgID != auth.OrgID {
		return &domain.AuthError{
			Credential: auth.Credential,
			Reason:     fmt.Sprintf("organization %s is outside the scope of this token", orgID),
		}
	}
	return nil
}

func credentialOf(auth *domain.AuthInfo) string {
	if auth == nil {
		return domain.MaskCredential("")
	}
	return auth.Credential
}
