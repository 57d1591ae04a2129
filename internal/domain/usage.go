package domain

import "time"

type ActionType string

const (
	ActionSendMessage      ActionType = "send_message"
	ActionMakeCall         ActionType = "make_call"
	ActionCallOnBehalf     ActionType = "call_on_behalf"
	ActionSendVoiceMessage ActionType = "send_voice_message"
	ActionTransferCall     ActionType = "transfer_call"
)

// UsageLogEntry is one executed billable action. Rows are append-only; window
// aggregates over them drive both rate limiting and billing.
type UsageLogEntry struct {
	ID           string     `json:"id"`
	AgentID      string     `json:"agentId"`
	ActionType   ActionType `json:"actionType"`
	Channel      Channel    `json:"channel"`
	Target       string     `json:"target"`
	ProviderCost float64    `json:"providerCost"`
	ExternalID   string     `json:"externalId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// UsageTotals is the count and summed provider cost over one window.
type UsageTotals struct {
	Window  Window
	Actions int
	Cost    float64
}

type UsageSummary struct {
	TotalActions  int                `json:"totalActions"`
	TotalCost     float64            `json:"totalCost"`
	ByActionType  map[string]int     `json:"byActionType"`
	ByChannel     map[string]int     `json:"byChannel"`
	CostByChannel map[string]float64 `json:"costByChannel"`
}
