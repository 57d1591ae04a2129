package domain

import (
	"encoding/json"
	"time"
)

type DeadLetterStatus string

const (
	DeadLetterPending      DeadLetterStatus = "pending"
	DeadLetterAcknowledged DeadLetterStatus = "acknowledged"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// DeadLetter records a failed or undeliverable attempt so nothing is lost
// silently. The owning agent acknowledges entries by fetching them.
type DeadLetter struct {
	ID             string           `json:"id"`
	AgentID        string           `json:"agentId"`
	OrgID          string           `json:"orgId"`
	Channel        Channel          `json:"channel"`
	Direction      Direction        `json:"direction"`
	Reason         string           `json:"reason"`
	Payload        json.RawMessage  `json:"payload"`
	ErrorDetail    string           `json:"errorDetail,omitempty"`
	Status         DeadLetterStatus `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
	AcknowledgedAt *time.Time       `json:"acknowledgedAt,omitempty"`
}
