package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"go.uber.org/zap"
)

const (
	reasonProviderError     = "provider_error"
	waitingMessagesLimit    = 100
	defaultRequesterName    = "a colleague"
	voiceMessageContentType = "audio/mpeg"
)

type CommsOptions struct {
	ProviderTimeout time.Duration
	WebhookBaseURL  string
	Demo            bool
}

type SendMessageRequest struct {
	AgentID string
	Channel string
	To      string
	Body    string
	Subject string
	HTML    string
}

type MakeCallRequest struct {
	AgentID  string
	To       string
	Greeting string
	Voice    string
	Language string
}

type CallOnBehalfRequest struct {
	AgentID        string
	Target         string
	RequesterPhone string
	RequesterName  string
	Message        string
}

type VoiceMessageRequest struct {
	AgentID  string
	To       string
	Text     string
	Voice    string
	Language string
}

type TransferCallRequest struct {
	AgentID string
	CallSID string
	To      string
}

// SettingsUpdate carries the agent-settings fields; nil fields are unchanged.
type SettingsUpdate struct {
	AgentID         string
	DisplayName     *string
	Language        *string
	Voice           *string
	Greeting        *string
	BlockedChannels []string
	ReplaceBlocked  bool
}

// ActionResult is returned by every outbound communication operation.
type ActionResult struct {
	AgentID       string                `json:"agentId"`
	Channel       domain.Channel        `json:"channel"`
	From          string                `json:"from"`
	To            string                `json:"to"`
	MessageID     string                `json:"messageId,omitempty"`
	CallSID       string                `json:"callSid,omitempty"`
	Status        string                `json:"status"`
	Cost          float64               `json:"cost"`
	AudioURL      string                `json:"audioUrl,omitempty"`
	BridgeTo      string                `json:"bridgeTo,omitempty"`
	GenderContext *domain.GenderContext `json:"genderContext,omitempty"`
	Demo          bool                  `json:"demo,omitempty"`
}

type WaitingMessages struct {
	AgentID  string              `json:"agentId"`
	Messages []domain.DeadLetter `json:"messages"`
	Count    int                 `json:"count"`
}

type ChannelStatusResult struct {
	domain.ChannelStatus
	GenderContext *domain.GenderContext `json:"genderContext,omitempty"`
	Demo          bool                  `json:"demo,omitempty"`
}

// gatedAction is one outbound action run through the shared pipeline.
type gatedAction struct {
	agent      *domain.Agent
	kind       domain.ActionType
	channel    domain.Channel
	capability string
	to         string
	subject    string
	body       string
	html       string
	payload    any
	dispatch   func(ctx context.Context) (*domain.ProviderResult, error)
}

// CommsService runs agent-initiated communication. Every action goes
// through the same pipeline: per-agent lock, limits, compliance, provider
// dispatch, then the usage ledger.
type CommsService struct {
	agents      domain.AgentStore
	deadLetters domain.DeadLetterStore
	calls       domain.CallLogStore
	auth        *AuthResolver
	limiter     *Limiter
	compliance  *ComplianceGate
	billing     *BillingService
	audit       *AuditLogger
	providers   domain.Providers
	opts        CommsOptions
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         Clock
}

func NewCommsService(
	agents domain.AgentStore,
	deadLetters domain.DeadLetterStore,
	calls domain.CallLogStore,
	auth *AuthResolver,
	limiter *Limiter,
	compliance *ComplianceGate,
	billing *BillingService,
	audit *AuditLogger,
	providers domain.Providers,
	opts CommsOptions,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CommsService {
	return &CommsService{
		agents:      agents,
		deadLetters: deadLetters,
		calls:       calls,
		auth:        auth,
		limiter:     limiter,
		compliance:  compliance,
		billing:     billing,
		audit:       audit,
		providers:   providers,
		opts:        opts,
		metrics:     m,
		logger:      logger,
		now:         utcNow,
	}
}

func (s *CommsService) SetClock(c Clock) {
	s.now = c
}

// activeAgent resolves the agent an action runs as and checks it can act.
func (s *CommsService) activeAgent(ctx context.Context, auth *domain.AuthInfo, requested, example string) (*domain.Agent, error) {
	agent, err := s.auth.RequireAgent(ctx, auth, requested, example)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive() {
		return nil, ErrAgentInactive
	}
	return agent, nil
}

// channelAddress returns the agent's sending address on c.
func channelAddress(a *domain.Agent, c domain.Channel) (string, error) {
	if a.IsChannelBlocked(c) {
		return "", fmt.Errorf("%w: %s", ErrChannelBlocked, c)
	}
	var addr string
	switch c {
	case domain.ChannelSMS, domain.ChannelVoice:
		addr = deref(a.PhoneNumber)
	case domain.ChannelEmail:
		addr = deref(a.EmailAddress)
	case domain.ChannelWhatsApp:
		if a.WhatsAppStatus == domain.WhatsAppActive {
			addr = deref(a.WhatsAppNumber)
		}
	case domain.ChannelLine:
		addr = a.ID
	}
	if addr == "" {
		return "", fmt.Errorf("%w: %s", ErrChannelNotProvisioned, c)
	}
	return addr, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// execute holds the agent lock from the limit check until usage is logged,
// so concurrent actions of one agent always see each other's usage.
func (s *CommsService) execute(ctx context.Context, a gatedAction) (*domain.ProviderResult, error) {
	unlock, err := s.limiter.Lock(ctx, a.agent.ID)
	if err != nil {
		return nil, fmt.Errorf("lock agent: %w", err)
	}
	defer unlock()

	if err := s.limiter.Check(ctx, a.agent.ID, a.kind); err != nil {
		return nil, err
	}
	text := a.body
	if a.subject != "" {
		text = a.subject + "\n" + a.body
	}
	if err := s.compliance.PreSendCheck(ctx, a.agent.OrgID, a.channel, a.to, text, a.html); err != nil {
		return nil, err
	}

	res, err := a.dispatch(ctx)
	if err != nil {
		return nil, s.deadLetter(ctx, a, err)
	}

	entry := &domain.UsageLogEntry{
		AgentID:      a.agent.ID,
		ActionType:   a.kind,
		Channel:      a.channel,
		Target:       a.to,
		ProviderCost: res.Cost,
		ExternalID:   res.ProviderID,
	}
	if err := s.billing.LogUsage(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("usage not recorded for dispatched action",
			zap.String("agent_id", a.agent.ID),
			zap.String("action", string(a.kind)),
			zap.String("provider_id", res.ProviderID),
			zap.Error(err))
	}
	return res, nil
}

func (s *CommsService) deadLetter(ctx context.Context, a gatedAction, cause error) error {
	ctx = context.WithoutCancel(ctx)
	dl := &domain.DeadLetter{
		AgentID:     a.agent.ID,
		OrgID:       a.agent.OrgID,
		Channel:     a.channel,
		Direction:   domain.DirectionOutbound,
		Reason:      reasonProviderError,
		Payload:     mustJSON(a.payload),
		ErrorDetail: cause.Error(),
	}
	if err := s.deadLetters.Create(ctx, dl); err != nil {
		s.logger.Error("failed to write dead letter",
			zap.String("agent_id", a.agent.ID),
			zap.String("channel", string(a.channel)),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
	s.metrics.DeadLetter(string(a.channel), reasonProviderError)
	s.logger.Warn("provider call failed",
		zap.String("agent_id", a.agent.ID),
		zap.String("capability", a.capability),
		zap.String("dead_letter_id", dl.ID),
		zap.Error(cause))
	return &domain.ProviderError{Capability: a.capability, DeadLetterID: dl.ID, Err: cause}
}

func (s *CommsService) logCall(ctx context.Context, c *domain.CallLog) {
	if err := s.calls.Create(context.WithoutCancel(ctx), c); err != nil {
		s.logger.Warn("failed to write call log", zap.String("call_sid", c.CallSID), zap.Error(err))
	}
}

func (s *CommsService) statusWebhook(agentID string) string {
	if s.opts.WebhookBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/v1/webhooks/%s/voice/status", s.opts.WebhookBaseURL, agentID)
}

// SendMessage sends a text message. The channel defaults to email when to
// looks like an address and to sms otherwise.
func (s *CommsService) SendMessage(ctx context.Context, auth *domain.AuthInfo, req SendMessageRequest) (*ActionResult, error) {
	example := `{"to": "+14155550100", "body": "Your order has shipped.", "channel": "sms"}`
	agent, err := s.activeAgent(ctx, auth, req.AgentID, example)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, domain.MissingField("to", example)
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, domain.MissingField("body", example)
	}

	channel := domain.Channel(strings.ToLower(strings.TrimSpace(req.Channel)))
	if channel == "" {
		channel = domain.ChannelSMS
		if strings.Contains(req.To, "@") {
			channel = domain.ChannelEmail
		}
	}
	if !domain.ValidMessageChannel(string(channel)) {
		return nil, &domain.SanitizationError{
			Field:   "channel",
			Message: fmt.Sprintf("invalid channel %q: expected one of sms, email, whatsapp, line", req.Channel),
			Example: example,
		}
	}

	maxBody := maxMessageLength
	if channel == domain.ChannelSMS {
		maxBody = maxSMSLength
	}
	body, err := cleanText("body", req.Body, maxBody)
	if err != nil {
		return nil, err
	}
	to, err := normalizeTarget(channel, req.To)
	if err != nil {
		return nil, err
	}
	from, err := channelAddress(agent, channel)
	if err != nil {
		return nil, err
	}

	a := gatedAction{
		agent:      agent,
		kind:       domain.ActionSendMessage,
		channel:    channel,
		capability: string(channel),
		to:         to,
		body:       body,
	}
	switch channel {
	case domain.ChannelSMS:
		msg := domain.SMSRequest{From: from, To: to, Body: body}
		a.payload = msg
		a.dispatch = func(ctx context.Context) (*domain.ProviderResult, error) {
			return callProvider(ctx, s.opts.ProviderTimeout, s.metrics, a.capability, func(ctx context.Context) (*domain.ProviderResult, error) {
				return s.providers.Telephony.SendSMS(ctx, msg)
			})
		}
	case domain.ChannelEmail:
		subject := req.Subject
		if strings.TrimSpace(subject) == "" {
			subject = "Message from " + agent.DisplayName
		}
		if subject, err = cleanText("subject", subject, maxSubjectLength); err != nil {
			return nil, err
		}
		html, err := cleanText("html", req.HTML, maxHTMLLength)
		if err != nil {
			return nil, err
		}
		msg := domain.EmailRequest{From: from, To: to, Subject: subject, Text: body, HTML: html}
		a.subject = subject
		a.html = html
		a.payload = msg
		a.dispatch = func(ctx context.Context) (*domain.ProviderResult, error) {
			return callProvider(ctx, s.opts.ProviderTimeout, s.metrics, a.capability, func(ctx context.Context) (*domain.ProviderResult, error) {
				return s.providers.Email.Send(ctx, msg)
			})
		}
	default:
		sender := s.providers.WhatsApp
		if channel == domain.ChannelLine {
			sender = s.providers.Line
		}
		msg := domain.MessageRequest{From: from, To: to, Body: body}
		a.payload = msg
		a.dispatch = func(ctx context.Context) (*domain.ProviderResult, error) {
			return callProvider(ctx, s.opts.ProviderTimeout, s.metrics, a.capability, func(ctx context.Context) (*domain.ProviderResult, error) {
				return sender.Send(ctx, msg)
			})
		}
	}

	res, err := s.execute(ctx, a)
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		AgentID:       agent.ID,
		Channel:       channel,
		From:          from,
		To:            to,
		MessageID:     res.ProviderID,
		Status:        res.Status,
		Cost:          res.Cost,
		GenderContext: domain.GenderContextFor(agent.Language),
		Demo:          s.opts.Demo,
	}, nil
}

func (s *CommsService) greetingFor(agent *domain.Agent, greeting string) (string, error) {
	if strings.TrimSpace(greeting) == "" {
		greeting = agent.Greeting
	}
	if strings.TrimSpace(greeting) == "" {
		greeting = "Hello, this is " + agent.DisplayName + "."
	}
	return cleanText("greeting", greeting, maxGreetingLength)
}

func (s *CommsService) voiceSettings(agent *domain.Agent, voice, language string) (string, string, error) {
	if voice == "" {
		voice = agent.Voice
	}
	if language == "" {
		language = agent.Language
	}
	if err := validateLanguage(language); err != nil {
		return "", "", err
	}
	voice, err := cleanText("voice", voice, maxNameLength)
	return voice, language, err
}

func (s *CommsService) placeCall(ctx context.Context, agent *domain.Agent, kind domain.ActionType, callKind domain.CallKind, greeting string, req domain.CallRequest) (*ActionResult, error) {
	a := gatedAction{
		agent:      agent,
		kind:       kind,
		channel:    domain.ChannelVoice,
		capability: string(domain.ChannelVoice),
		to:         req.To,
		body:       greeting,
		payload:    req,
		dispatch: func(ctx context.Context) (*domain.ProviderResult, error) {
			return callProvider(ctx, s.opts.ProviderTimeout, s.metrics, string(domain.ChannelVoice), func(ctx context.Context) (*domain.ProviderResult, error) {
				return s.providers.Telephony.MakeCall(ctx, req)
			})
		},
	}
	res, err := s.execute(ctx, a)
	if err != nil {
		return nil, err
	}
	s.logCall(ctx, &domain.CallLog{
		CallSID:   res.ProviderID,
		AgentID:   agent.ID,
		Direction: domain.DirectionOutbound,
		Kind:      callKind,
		From:      req.From,
		To:        req.To,
		Status:    res.Status,
		Cost:      res.Cost,
		CreatedAt: s.now(),
	})
	return &ActionResult{
		AgentID:       agent.ID,
		Channel:       domain.ChannelVoice,
		From:          req.From,
		To:            req.To,
		CallSID:       res.ProviderID,
		Status:        res.Status,
		Cost:          res.Cost,
		BridgeTo:      req.BridgeTo,
		GenderContext: domain.GenderContextFor(agent.Language),
		Demo:          s.opts.Demo,
	}, nil
}

// MakeCall places an outbound call that opens with the agent's greeting,
// prefixed with the AI disclosure.
func (s *CommsService) MakeCall(ctx context.Context, auth *domain.AuthInfo, req MakeCallRequest) (*ActionResult, error) {
	example := `{"to": "+14155550100", "greeting": "Hi, calling about your appointment."}`
	agent, err := s.activeAgent(ctx, auth, req.AgentID, example)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, domain.MissingField("to", example)
	}
	to, err := NormalizePhone("to", req.To)
	if err != nil {
		return nil, err
	}
	from, err := channelAddress(agent, domain.ChannelVoice)
	if err != nil {
		return nil, err
	}
	voice, language, err := s.voiceSettings(agent, req.Voice, req.Language)
	if err != nil {
		return nil, err
	}
	greeting, err := s.greetingFor(agent, req.Greeting)
	if err != nil {
		return nil, err
	}
	if greeting, err = s.compliance.ApplyDisclosure(ctx, agent.OrgID, greeting); err != nil {
		return nil, err
	}

	return s.placeCall(ctx, agent, domain.ActionMakeCall, domain.CallKindOutbound, greeting, domain.CallRequest{
		From:          from,
		To:            to,
		Greeting:      greeting,
		Voice:         voice,
		Language:      language,
		StatusWebhook: s.statusWebhook(agent.ID),
	})
}

// CallOnBehalf calls target for a requester and bridges the requester in
// once the target answers.
func (s *CommsService) CallOnBehalf(ctx context.Context, auth *domain.AuthInfo, req CallOnBehalfRequest) (*ActionResult, error) {
	example := `{"target": "+14155550100", "requesterPhone": "+14155550199", "requesterName": "Dana", "message": "about the lease"}`
	agent, err := s.activeAgent(ctx, auth, req.AgentID, example)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Target) == "" {
		return nil, domain.MissingField("target", example)
	}
	if strings.TrimSpace(req.RequesterPhone) == "" {
		return nil, domain.MissingField("requesterPhone", example)
	}
	target, err := NormalizePhone("target", req.Target)
	if err != nil {
		return nil, err
	}
	requester, err := NormalizePhone("requesterPhone", req.RequesterPhone)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.RequesterName)
	if name == "" {
		name = defaultRequesterName
	}
	if name, err = cleanText("requesterName", name, maxNameLength); err != nil {
		return nil, err
	}
	message, err := cleanText("message", strings.TrimSpace(req.Message), maxGreetingLength)
	if err != nil {
		return nil, err
	}
	from, err := channelAddress(agent, domain.ChannelVoice)
	if err != nil {
		return nil, err
	}

	greeting := fmt.Sprintf("Hello, this is %s calling on behalf of %s.", agent.DisplayName, name)
	if message != "" {
		greeting += " " + message
	}
	greeting += " Please hold while I connect you."
	if greeting, err = s.compliance.ApplyDisclosure(ctx, agent.OrgID, greeting); err != nil {
		return nil, err
	}

	return s.placeCall(ctx, agent, domain.ActionCallOnBehalf, domain.CallKindOnBehalf, greeting, domain.CallRequest{
		From:          from,
		To:            target,
		Greeting:      greeting,
		Voice:         agent.Voice,
		Language:      agent.Language,
		BridgeTo:      requester,
		StatusWebhook: s.statusWebhook(agent.ID),
	})
}

// SendVoiceMessage renders text to audio, stores it and calls to to play it.
func (s *CommsService) SendVoiceMessage(ctx context.Context, auth *domain.AuthInfo, req VoiceMessageRequest) (*ActionResult, error) {
	example := `{"to": "+14155550100", "text": "Your table is ready."}`
	agent, err := s.activeAgent(ctx, auth, req.AgentID, example)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, domain.MissingField("to", example)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, domain.MissingField("text", example)
	}
	to, err := NormalizePhone("to", req.To)
	if err != nil {
		return nil, err
	}
	text, err := cleanText("text", req.Text, maxMessageLength)
	if err != nil {
		return nil, err
	}
	from, err := channelAddress(agent, domain.ChannelVoice)
	if err != nil {
		return nil, err
	}
	voice, language, err := s.voiceSettings(agent, req.Voice, req.Language)
	if err != nil {
		return nil, err
	}
	if text, err = s.compliance.ApplyDisclosure(ctx, agent.OrgID, text); err != nil {
		return nil, err
	}

	call := domain.CallRequest{From: from, To: to, Voice: voice, Language: language, StatusWebhook: s.statusWebhook(agent.ID)}
	var audioURL string
	a := gatedAction{
		agent:      agent,
		kind:       domain.ActionSendVoiceMessage,
		channel:    domain.ChannelVoice,
		capability: "voice_message",
		to:         to,
		body:       text,
		payload:    map[string]any{"call": call, "text": text},
		dispatch: func(ctx context.Context) (*domain.ProviderResult, error) {
			synth, err := callProvider(ctx, s.opts.ProviderTimeout, s.metrics, "tts", func(ctx context.Context) (*domain.Synthesis, error) {
				return s.providers.TTS.Synthesize(ctx, domain.SynthesisRequest{Text: text, Voice: voice, Language: language})
			})
			if err != nil {
				return nil, fmt.Errorf("synthesize: %w", err)
			}
			contentType := synth.ContentType
			if contentType == "" {
				contentType = voiceMessageContentType
			}
			key := fmt.Sprintf("voice/%s/%s.mp3", agent.ID, uuid.NewString())
			audioURL, err = callProvider(ctx, s.opts.ProviderTimeout, s.metrics, "storage", func(ctx context.Context) (string, error) {
				return s.providers.Storage.Upload(ctx, key, synth.Audio, contentType)
			})
			if err != nil {
				return nil, fmt.Errorf("upload audio: %w", err)
			}
			call.AudioURL = audioURL
			res, err := callProvider(ctx, s.opts.ProviderTimeout, s.metrics, string(domain.ChannelVoice), func(ctx context.Context) (*domain.ProviderResult, error) {
				return s.providers.Telephony.MakeCall(ctx, call)
			})
			if err != nil {
				return nil, fmt.Errorf("place call: %w", err)
			}
			combined := *res
			combined.Cost += synth.Cost
			return &combined, nil
		},
	}

	res, err := s.execute(ctx, a)
	if err != nil {
		return nil, err
	}
	s.logCall(ctx, &domain.CallLog{
		CallSID:   res.ProviderID,
		AgentID:   agent.ID,
		Direction: domain.DirectionOutbound,
		Kind:      domain.CallKindVoiceMessage,
		From:      from,
		To:        to,
		Status:    res.Status,
		Cost:      res.Cost,
		CreatedAt: s.now(),
	})
	return &ActionResult{
		AgentID:       agent.ID,
		Channel:       domain.ChannelVoice,
		From:          from,
		To:            to,
		CallSID:       res.ProviderID,
		Status:        res.Status,
		Cost:          res.Cost,
		AudioURL:      audioURL,
		GenderContext: domain.GenderContextFor(agent.Language),
		Demo:          s.opts.Demo,
	}, nil
}

func (s *CommsService) TransferCall(ctx context.Context, auth *domain.AuthInfo, req TransferCallRequest) (*ActionResult, error) {
	example := `{"callSid": "CA0123456789abcdef", "to": "+14155550100"}`
	agent, err := s.activeAgent(ctx, auth, req.AgentID, example)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CallSID) == "" {
		return nil, domain.MissingField("callSid", example)
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, domain.MissingField("to", example)
	}
	to, err := NormalizePhone("to", req.To)
	if err != nil {
		return nil, err
	}
	from, err := channelAddress(agent, domain.ChannelVoice)
	if err != nil {
		return nil, err
	}

	transfer := domain.TransferRequest{CallSID: strings.TrimSpace(req.CallSID), To: to}
	res, err := s.execute(ctx, gatedAction{
		agent:      agent,
		kind:       domain.ActionTransferCall,
		channel:    domain.ChannelVoice,
		capability: string(domain.ChannelVoice),
		to:         to,
		payload:    transfer,
		dispatch: func(ctx context.Context) (*domain.ProviderResult, error) {
			return callProvider(ctx, s.opts.ProviderTimeout, s.metrics, string(domain.ChannelVoice), func(ctx context.Context) (*domain.ProviderResult, error) {
				return s.providers.Telephony.TransferCall(ctx, transfer)
			})
		},
	})
	if err != nil {
		return nil, err
	}
	s.logCall(ctx, &domain.CallLog{
		CallSID:   transfer.CallSID,
		AgentID:   agent.ID,
		Direction: domain.DirectionOutbound,
		Kind:      domain.CallKindTransfer,
		From:      from,
		To:        to,
		Status:    res.Status,
		Cost:      res.Cost,
		CreatedAt: s.now(),
	})
	return &ActionResult{
		AgentID: agent.ID,
		Channel: domain.ChannelVoice,
		From:    from,
		To:      to,
		CallSID: transfer.CallSID,
		Status:  res.Status,
		Cost:    res.Cost,
		Demo:    s.opts.Demo,
	}, nil
}

// WaitingMessages returns the agent's pending dead letters and acknowledges
// them, so each is delivered once.
func (s *CommsService) WaitingMessages(ctx context.Context, auth *domain.AuthInfo, agentID string) (*WaitingMessages, error) {
	agent, err := s.auth.RequireAgent(ctx, auth, agentID, `{"agentId": "agt_0123456789ab"}`)
	if err != nil {
		return nil, err
	}
	pending, err := s.deadLetters.ClaimPending(ctx, agent.ID, waitingMessagesLimit, s.now())
	if err != nil {
		return nil, fmt.Errorf("claim waiting messages: %w", err)
	}
	if pending == nil {
		pending = []domain.DeadLetter{}
	}
	return &WaitingMessages{AgentID: agent.ID, Messages: pending, Count: len(pending)}, nil
}

func (s *CommsService) ChannelStatus(ctx context.Context, auth *domain.AuthInfo, agentID string) (*ChannelStatusResult, error) {
	agent, err := s.auth.RequireAgent(ctx, auth, agentID, `{"agentId": "agt_0123456789ab"}`)
	if err != nil {
		return nil, err
	}
	return &ChannelStatusResult{
		ChannelStatus: agent.StatusView(),
		GenderContext: domain.GenderContextFor(agent.Language),
		Demo:          s.opts.Demo,
	}, nil
}

func (s *CommsService) UpdateSettings(ctx context.Context, auth *domain.AuthInfo, req SettingsUpdate) (*ChannelStatusResult, error) {
	example := `{"language": "es-MX", "greeting": "Hola", "blockedChannels": ["whatsapp"]}`
	agent, err := s.activeAgent(ctx, auth, req.AgentID, example)
	if err != nil {
		return nil, err
	}
	if req.DisplayName == nil && req.Language == nil && req.Voice == nil && req.Greeting == nil &&
		req.BlockedChannels == nil && !req.ReplaceBlocked {
		return nil, &domain.SanitizationError{
			Field:   "settings",
			Message: "no settings to update: provide displayName, language, voice, greeting or blockedChannels",
			Example: example,
		}
	}

	upd := domain.AgentSettings{ReplaceBlocked: req.ReplaceBlocked}
	if req.DisplayName != nil {
		name, err := requireText("displayName", *req.DisplayName, maxNameLength, example)
		if err != nil {
			return nil, err
		}
		name = strings.TrimSpace(name)
		upd.DisplayName = &name
	}
	if req.Language != nil {
		if err := validateLanguage(*req.Language); err != nil {
			return nil, err
		}
		upd.Language = req.Language
	}
	if req.Voice != nil {
		v, err := cleanText("voice", *req.Voice, maxNameLength)
		if err != nil {
			return nil, err
		}
		upd.Voice = &v
	}
	if req.Greeting != nil {
		g, err := cleanText("greeting", *req.Greeting, maxGreetingLength)
		if err != nil {
			return nil, err
		}
		upd.Greeting = &g
	}
	for _, c := range req.BlockedChannels {
		c = strings.ToLower(strings.TrimSpace(c))
		if !domain.ValidChannel(c) {
			return nil, &domain.SanitizationError{
				Field:   "blockedChannels",
				Message: fmt.Sprintf("invalid channel %q: expected sms, email, whatsapp, line, voice or *", c),
				Example: example,
			}
		}
		if !slices.Contains(upd.BlockedChannels, c) {
			upd.BlockedChannels = append(upd.BlockedChannels, c)
		}
	}
	if upd.ReplaceBlocked && upd.BlockedChannels == nil {
		upd.BlockedChannels = []string{}
	}

	updated, err := s.agents.UpdateSettings(ctx, agent.ID, upd)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	s.audit.LogBestEffort(ctx, domain.AuditAgentSettingsUpdated, auth.Actor(), agent.ID, map[string]any{
		"displayName":     upd.DisplayName,
		"language":        upd.Language,
		"voice":           upd.Voice,
		"greeting":        upd.Greeting,
		"blockedChannels": upd.BlockedChannels,
		"replaceBlocked":  upd.ReplaceBlocked,
	})
	return &ChannelStatusResult{
		ChannelStatus: updated.StatusView(),
		GenderContext: domain.GenderContextFor(updated.Language),
		Demo:          s.opts.Demo,
	}, nil
}
