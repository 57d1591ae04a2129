package domain

import "time"

// DefaultAgentPoolID names the single capacity row for agent provisioning.
const DefaultAgentPoolID = "default"

// DefaultMaxAgents is the capacity the pool starts with.
const DefaultMaxAgents = 100

type AgentPool struct {
	ID           string `json:"id"`
	ActiveAgents int    `json:"activeAgents"`
	MaxAgents    int    `json:"maxAgents"`
}

func (p *AgentPool) HasCapacity() bool {
	return p.ActiveAgents < p.MaxAgents
}

type SenderStatus string

const (
	SenderAvailable SenderStatus = "available"
	SenderAssigned  SenderStatus = "assigned"
)

// WhatsAppSender is a pre-registered sender identity leased to at most one
// active agent at a time.
type WhatsAppSender struct {
	SenderID        string       `json:"senderId"`
	PhoneNumber     string       `json:"phoneNumber"`
	Status          SenderStatus `json:"status"`
	AssignedAgentID *string      `json:"assignedAgentId,omitempty"`
	AssignedAt      *time.Time   `json:"assignedAt,omitempty"`
}

type PoolStatus struct {
	Agents           AgentPool `json:"agents"`
	SendersAvailable int       `json:"whatsappSendersAvailable"`
	SendersAssigned  int       `json:"whatsappSendersAssigned"`
}
