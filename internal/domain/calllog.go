package domain

import "time"

type CallKind string

const (
	CallKindOutbound     CallKind = "outbound"
	CallKindOnBehalf     CallKind = "on_behalf"
	CallKindVoiceMessage CallKind = "voice_message"
	CallKindTransfer     CallKind = "transfer"
	CallKindInbound      CallKind = "inbound"
)

// Call statuses reported by the telephony status callback. Busy, failed and
// no-answer end a call without it being completed.
const (
	CallQueued     = "queued"
	CallInitiated  = "initiated"
	CallRinging    = "ringing"
	CallInProgress = "in-progress"
	CallCompleted  = "completed"
	CallBusy       = "busy"
	CallFailed     = "failed"
	CallNoAnswer   = "no-answer"
	CallCanceled   = "canceled"
)

func ValidCallStatus(s string) bool {
	switch s {
	case CallQueued, CallInitiated, CallRinging, CallInProgress, CallCompleted,
		CallBusy, CallFailed, CallNoAnswer, CallCanceled:
		return true
	}
	return false
}

func CallNotCompleted(s string) bool {
	return s == CallBusy || s == CallFailed || s == CallNoAnswer
}

type CallLog struct {
	CallSID   string    `json:"callSid"`
	AgentID   string    `json:"agentId"`
	Direction Direction `json:"direction"`
	Kind      CallKind  `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Status    string    `json:"status"`
	Cost      float64   `json:"cost"`
	CreatedAt time.Time `json:"createdAt"`
}
