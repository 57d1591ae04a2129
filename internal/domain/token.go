package domain

import "time"

// Tier is the trust level a bearer credential resolves to.
type Tier string

const (
	TierOrchestrator Tier = "orchestrator"
	TierOrganization Tier = "organization"
	TierAgent        Tier = "agent"
)

// Token is a stored agent credential. Only the hash is persisted.
type Token struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agentId"`
	OrgID      string     `json:"orgId"`
	Hash       string     `json:"-"`
	Label      string     `json:"label"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}

func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}

// AuthInfo is the result of resolving a credential. AgentID is set only for
// agent-tier credentials; OrgID is empty for the orchestrator.
type AuthInfo struct {
	Tier    Tier   `json:"tier"`
	OrgID   string `json:"orgId,omitempty"`
	AgentID string `json:"agentId,omitempty"`
	// Credential is a masked rendering of the presented credential, used in
	// error messages so callers can tell which token was rejected.
	Credential string `json:"-"`
	Demo       bool   `json:"-"`
}

func (a *AuthInfo) IsAdmin() bool {
	return a.Tier == TierOrchestrator || a.Tier == TierOrganization
}

// Actor renders the caller for audit records.
func (a *AuthInfo) Actor() string {
	switch a.Tier {
	case TierOrchestrator:
		return "orchestrator"
	case TierOrganization:
		return "org:" + a.OrgID
	default:
		return "agent:" + a.AgentID
	}
}

// MaskCredential keeps a short prefix of a secret for diagnostics.
func MaskCredential(raw string) string {
	switch {
	case raw == "":
		return "(none)"
	case len(raw) <= 8:
		return raw[:min(len(raw), 3)] + "…"
	default:
		return raw[:8] + "…"
	}
}
