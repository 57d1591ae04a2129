package service

import (
	"context"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"go.uber.org/zap"
)

type RegeneratedToken struct {
	AgentID string        `json:"agentId"`
	Token   string        `json:"token"`
	Info    *domain.Token `json:"tokenInfo"`
}

// CredentialService exposes agent token management to admins and to the
// agent itself.
type CredentialService struct {
	auth   *AuthResolver
	tokens *TokenManager
	audit  *AuditLogger
	logger *zap.Logger
}

func NewCredentialService(auth *AuthResolver, tokens *TokenManager, audit *AuditLogger, logger *zap.Logger) *CredentialService {
	return &CredentialService{auth: auth, tokens: tokens, audit: audit, logger: logger}
}

func (s *CredentialService) ListTokens(ctx context.Context, auth *domain.AuthInfo, agentID string) ([]domain.Token, error) {
	agent, err := s.auth.RequireAgent(ctx, auth, agentID, "")
	if err != nil {
		return nil, err
	}
	return s.tokens.List(ctx, agent.ID)
}

// RegenerateToken revokes every live token of the agent and returns a new
// plaintext credential. The caller's own token stops working if it was one
// of them.
func (s *CredentialService) RegenerateToken(ctx context.Context, auth *domain.AuthInfo, agentID, label string) (*RegeneratedToken, error) {
	agent, err := s.auth.RequireAgent(ctx, auth, agentID, "")
	if err != nil {
		return nil, err
	}
	if !agent.IsActive() {
		return nil, ErrAgentInactive
	}
	if label == "" {
		label = "regenerated"
	}
	label, err = cleanText("label", label, maxNameLength)
	if err != nil {
		return nil, err
	}

	plaintext, tok, err := s.tokens.Regenerate(ctx, agent.ID, agent.OrgID, label)
	if err != nil {
		return nil, err
	}

	s.audit.LogBestEffort(ctx, domain.AuditTokenRegenerated, auth.Actor(), agent.ID, map[string]any{
		"tokenId": tok.ID,
		"label":   label,
	})
	return &RegeneratedToken{AgentID: agent.ID, Token: plaintext, Info: tok}, nil
}
