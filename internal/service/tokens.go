package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/store"
	"go.uber.org/zap"
)

const (
	AgentTokenPrefix = "sbk_"
	OrgTokenPrefix   = "sbo_"
	tokenBytes       = 32
)

// HashToken is the only form in which credentials are persisted or compared.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

func generateSecret(prefix string) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}

type TokenManager struct {
	store  domain.TokenStore
	logger *zap.Logger
	now    Clock
}

func NewTokenManager(s domain.TokenStore, logger *zap.Logger) *TokenManager {
	return &TokenManager{store: s, logger: logger, now: utcNow}
}

func (m *TokenManager) SetClock(c Clock) {
	m.now = c
}

// Issue creates a new agent credential. The plaintext is returned once and
// never stored.
func (m *TokenManager) Issue() (plaintext, hash string, err error) {
	plaintext, err = generateSecret(AgentTokenPrefix)
	if err != nil {
		return "", "", err
	}
	return plaintext, HashToken(plaintext), nil
}

// Store persists a token hash. A hash that was ever stored, revoked or not,
// is rejected with store.ErrConflict.
func (m *TokenManager) Store(ctx context.Context, agentID, orgID, hash, label string) (*domain.Token, error) {
	t := &domain.Token{AgentID: agentID, OrgID: orgID, Hash: hash, Label: label}
	if err := m.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Verify returns the live token for plaintext. Unknown and revoked tokens are
// indistinguishable to the caller.
func (m *TokenManager) Verify(ctx context.Context, plaintext string) (*domain.Token, error) {
	t, err := m.store.GetByHash(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if t.Revoked() {
		return nil, ErrTokenNotFound
	}
	return t, nil
}

func (m *TokenManager) RevokeAll(ctx context.Context, agentID string) (int64, error) {
	return m.store.RevokeAllForAgent(ctx, agentID, m.now())
}

// Regenerate revokes every live token of the agent and issues a fresh one.
func (m *TokenManager) Regenerate(ctx context.Context, agentID, orgID, label string) (string, *domain.Token, error) {
	if _, err := m.RevokeAll(ctx, agentID); err != nil {
		return "", nil, fmt.Errorf("revoke tokens: %w", err)
	}
	plaintext, hash, err := m.Issue()
	if err != nil {
		return "", nil, err
	}
	t, err := m.Store(ctx, agentID, orgID, hash, label)
	if err != nil {
		return "", nil, fmt.Errorf("store token: %w", err)
	}
	return plaintext, t, nil
}

func (m *TokenManager) List(ctx context.Context, agentID string) ([]domain.Token, error) {
	tokens, err := m.store.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}
	return tokens, nil
}

// Touch records token use. Failures are logged and otherwise ignored.
func (m *TokenManager) Touch(ctx context.Context, id string) {
	if err := m.store.Touch(ctx, id, m.now()); err != nil {
		m.logger.Warn("failed to record token use", zap.String("token_id", id), zap.Error(err))
	}
}
