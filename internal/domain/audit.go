package domain

import (
	"encoding/json"
	"time"
)

const (
	AuditAgentProvisioned     = "agent.provisioned"
	AuditAgentProvisionFailed = "agent.provision_failed"
	AuditAgentDeprovisioned   = "agent.deprovisioned"
	AuditAgentSettingsUpdated = "agent.settings_updated"
	AuditTokenRegenerated     = "token.regenerated"
	AuditLimitsUpdated        = "limits.updated"
	AuditBillingConfigUpdated = "billing.config_updated"
	AuditOrganizationCreated  = "organization.created"
	AuditDisclosureDisabled   = "compliance.disclosure_disabled"
	AuditDisclosureEnabled    = "compliance.disclosure_enabled"
	AuditDNCAdded             = "compliance.dnc_added"
	AuditDNCRemoved           = "compliance.dnc_removed"
)

// AuditLogEntry is immutable once written.
type AuditLogEntry struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Actor     string          `json:"actor"`
	Target    string          `json:"target"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"createdAt"`
}

type AuditFilter struct {
	EventType string
	Target    string
	// OrgID restricts results to events about the org itself or its agents.
	OrgID  string
	Limit  int
	Before *time.Time
}
