package domain

import (
	"context"
	"time"
)

type OrganizationStore interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetByTokenHash(ctx context.Context, hash string) (*Organization, error)
	SetDisclosure(ctx context.Context, id string, disabled bool, actor string, at time.Time) error
}

type AgentStore interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id string) (*Agent, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Delete hard-deletes the channel row. Only saga compensation uses it.
	Delete(ctx context.Context, id string) error
	SetWhatsApp(ctx context.Context, id string, sender *WhatsAppSender, status WhatsAppStatus) error
	UpdateSettings(ctx context.Context, id string, s AgentSettings) (*Agent, error)
	UpdateBilling(ctx context.Context, id string, tier BillingTier, markupPercent *float64, billingEmail *string) error
	MarkDeprovisioned(ctx context.Context, id string, at time.Time) error
}

type TokenStore interface {
	Create(ctx context.Context, t *Token) error
	// GetByHash returns the token row, revoked or not.
	GetByHash(ctx context.Context, hash string) (*Token, error)
	ListByAgent(ctx context.Context, agentID string) ([]Token, error)
	RevokeAllForAgent(ctx context.Context, agentID string, at time.Time) (int64, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

type LimitsStore interface {
	Get(ctx context.Context, agentID string) (*SpendingLimits, error)
	Upsert(ctx context.Context, l *SpendingLimits) error
	Delete(ctx context.Context, agentID string) error
}

type UsageStore interface {
	Create(ctx context.Context, e *UsageLogEntry) error
	// Totals aggregates count and cost for each window in a single pass.
	Totals(ctx context.Context, agentID string, windows ...Window) ([]UsageTotals, error)
	Summary(ctx context.Context, agentID string, w Window) (*UsageSummary, error)
}

type DeadLetterStore interface {
	Create(ctx context.Context, d *DeadLetter) error
	// ClaimPending acknowledges up to limit of the agent's pending letters,
	// oldest first, and returns exactly the ones this call acknowledged.
	ClaimPending(ctx context.Context, agentID string, limit int, at time.Time) ([]DeadLetter, error)
	PurgeAcknowledged(ctx context.Context, before time.Time) (int64, error)
}

type CallLogStore interface {
	Create(ctx context.Context, c *CallLog) error
	// UpdateStatus sets the status of one of the agent's calls and returns
	// the updated row.
	UpdateStatus(ctx context.Context, agentID, callSID, status string) (*CallLog, error)
}

type PoolStore interface {
	GetAgentPool(ctx context.Context) (*AgentPool, error)
	// IncrementActive reports false when the pool is already at capacity.
	IncrementActive(ctx context.Context) (bool, error)
	DecrementActive(ctx context.Context) error
	// AssignSender returns nil when no sender is available.
	AssignSender(ctx context.Context, agentID string) (*WhatsAppSender, error)
	ReleaseSender(ctx context.Context, agentID string) (int64, error)
	CountSenders(ctx context.Context) (available int, assigned int, err error)
}

type DNCStore interface {
	// Find returns the matching org-level or global entry, or nil.
	Find(ctx context.Context, orgID string, target string, kind ContactKind) (*DNCEntry, error)
	Add(ctx context.Context, e *DNCEntry) error
	Remove(ctx context.Context, orgID *string, target string, kind ContactKind) (bool, error)
}

type AuditStore interface {
	Create(ctx context.Context, e *AuditLogEntry) error
	List(ctx context.Context, f AuditFilter) ([]AuditLogEntry, error)
}
