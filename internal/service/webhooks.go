package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/store"
	"go.uber.org/zap"
)

const (
	reasonInboundMessage   = "inbound_message"
	reasonInboundCall      = "inbound_call"
	reasonCallNotCompleted = "call_not_completed"
)

// InboundMessage is an SMS delivered to an agent's number.
type InboundMessage struct {
	MessageSID string `json:"messageSid,omitempty"`
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
}

// InboundCall is a call placed to an agent's number.
type InboundCall struct {
	CallSID string `json:"callSid"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type CallStatusUpdate struct {
	CallSID string
	Status  string
}

// webhookAgent loads the agent a provider callback is addressed to. Inbound
// traffic for unknown or deprovisioned agents is refused.
func (s *CommsService) webhookAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	if !agent.IsActive() {
		return nil, ErrAgentInactive
	}
	if agent.PhoneNumber == nil {
		return nil, ErrChannelNotProvisioned
	}
	return agent, nil
}

// inboundParties normalizes the caller and checks that the callback was
// addressed to the agent's own number.
func inboundParties(agent *domain.Agent, from, to string) (string, string, error) {
	from, err := NormalizePhone("From", from)
	if err != nil {
		return "", "", err
	}
	own := *agent.PhoneNumber
	if strings.TrimSpace(to) != "" {
		n, err := NormalizePhone("To", to)
		if err != nil {
			return "", "", err
		}
		if n != own {
			return "", "", &domain.SanitizationError{Field: "To", Message: "To does not match the agent's phone number"}
		}
	}
	return from, own, nil
}

// ReceiveSMS queues an inbound SMS as a pending dead letter; the agent picks
// it up from waiting-messages.
func (s *CommsService) ReceiveSMS(ctx context.Context, agentID string, msg InboundMessage) (*domain.DeadLetter, error) {
	agent, err := s.webhookAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if msg.From, msg.To, err = inboundParties(agent, msg.From, msg.To); err != nil {
		return nil, err
	}
	if msg.Body, err = cleanText("Body", msg.Body, maxMessageLength); err != nil {
		return nil, err
	}
	return s.queueInbound(ctx, agent, domain.ChannelSMS, reasonInboundMessage, msg)
}

// ReceiveCall logs an inbound call and queues a notice of it for the agent.
func (s *CommsService) ReceiveCall(ctx context.Context, agentID string, call InboundCall) (*domain.DeadLetter, error) {
	agent, err := s.webhookAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	call.CallSID = strings.TrimSpace(call.CallSID)
	if call.CallSID == "" {
		return nil, &domain.SanitizationError{Field: "CallSid", Message: "CallSid is required"}
	}
	if call.From, call.To, err = inboundParties(agent, call.From, call.To); err != nil {
		return nil, err
	}
	s.logCall(ctx, &domain.CallLog{
		CallSID:   call.CallSID,
		AgentID:   agent.ID,
		Direction: domain.DirectionInbound,
		Kind:      domain.CallKindInbound,
		From:      call.From,
		To:        call.To,
		Status:    domain.CallRinging,
		CreatedAt: s.now(),
	})
	return s.queueInbound(ctx, agent, domain.ChannelVoice, reasonInboundCall, call)
}

func (s *CommsService) queueInbound(ctx context.Context, agent *domain.Agent, channel domain.Channel, reason string, payload any) (*domain.DeadLetter, error) {
	dl := &domain.DeadLetter{
		AgentID:   agent.ID,
		OrgID:     agent.OrgID,
		Channel:   channel,
		Direction: domain.DirectionInbound,
		Reason:    reason,
		Payload:   mustJSON(payload),
	}
	if err := s.deadLetters.Create(context.WithoutCancel(ctx), dl); err != nil {
		return nil, fmt.Errorf("queue inbound %s: %w", channel, err)
	}
	s.metrics.DeadLetter(string(channel), reason)
	s.logger.Info("queued inbound traffic",
		zap.String("agent_id", agent.ID),
		zap.String("channel", string(channel)),
		zap.String("dead_letter_id", dl.ID))
	return dl, nil
}

// UpdateCallStatus records a status callback for one of the agent's calls.
// An outbound call that ends busy, failed or unanswered is also queued for
// the agent.
func (s *CommsService) UpdateCallStatus(ctx context.Context, agentID string, upd CallStatusUpdate) (*domain.CallLog, error) {
	sid := strings.TrimSpace(upd.CallSID)
	if sid == "" {
		return nil, &domain.SanitizationError{Field: "CallSid", Message: "CallSid is required"}
	}
	status := strings.ToLower(strings.TrimSpace(upd.Status))
	if !domain.ValidCallStatus(status) {
		return nil, &domain.SanitizationError{Field: "CallStatus", Message: fmt.Sprintf("unknown call status %q", upd.Status)}
	}

	call, err := s.calls.UpdateStatus(ctx, agentID, sid, status)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update call status: %w", err)
	}

	if call.Direction == domain.DirectionOutbound && domain.CallNotCompleted(status) {
		agent, err := s.agents.GetByID(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("load agent: %w", err)
		}
		dl := &domain.DeadLetter{
			AgentID:   agent.ID,
			OrgID:     agent.OrgID,
			Channel:   domain.ChannelVoice,
			Direction: domain.DirectionOutbound,
			Reason:    reasonCallNotCompleted,
			Payload:   mustJSON(call),
		}
		if err := s.deadLetters.Create(context.WithoutCancel(ctx), dl); err != nil {
			return nil, fmt.Errorf("queue call outcome: %w", err)
		}
		s.metrics.DeadLetter(string(domain.ChannelVoice), reasonCallNotCompleted)
	}
	s.logger.Debug("call status updated",
		zap.String("agent_id", agentID),
		zap.String("call_sid", sid),
		zap.String("status", status))
	return call, nil
}
