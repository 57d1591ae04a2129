package domain

import "context"

// ProviderResult is the normalized outcome of any provider call.
type ProviderResult struct {
	ProviderID string  `json:"providerId"`
	Cost       float64 `json:"cost"`
	Status     string  `json:"status"`
}

type SMSRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type CallRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Greeting string `json:"greeting,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
	// AudioURL plays a pre-rendered message instead of a live greeting.
	AudioURL string `json:"audioUrl,omitempty"`
	// BridgeTo connects the answered call to a second party.
	BridgeTo      string `json:"bridgeTo,omitempty"`
	StatusWebhook string `json:"statusWebhook,omitempty"`
}

type TransferRequest struct {
	CallSID string `json:"callSid"`
	To      string `json:"to"`
}

type NumberCapabilities struct {
	SMS   bool `json:"sms"`
	Voice bool `json:"voice"`
}

type WebhookConfig struct {
	Number   string `json:"number"`
	VoiceURL string `json:"voiceUrl"`
	SMSURL   string `json:"smsUrl"`
}

type EmailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

type MessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type SynthesisRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

type Synthesis struct {
	Audio       []byte
	ContentType string
	Cost        float64
}

// Telephony leases numbers and places calls and SMS.
type Telephony interface {
	SendSMS(ctx context.Context, req SMSRequest) (*ProviderResult, error)
	MakeCall(ctx context.Context, req CallRequest) (*ProviderResult, error)
	TransferCall(ctx context.Context, req TransferRequest) (*ProviderResult, error)
	SearchAndBuy(ctx context.Context, country string, caps NumberCapabilities) (string, error)
	ReleaseNumber(ctx context.Context, number string) error
	ConfigureWebhook(ctx context.Context, cfg WebhookConfig) error
}

type EmailSender interface {
	Send(ctx context.Context, req EmailRequest) (*ProviderResult, error)
}

// MessagingSender delivers chat messages (WhatsApp, LINE).
type MessagingSender interface {
	Send(ctx context.Context, req MessageRequest) (*ProviderResult, error)
}

type TTS interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error)
}

type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Providers is the set of outbound adapters, resolved once at startup.
type Providers struct {
	Telephony Telephony
	Email     EmailSender
	WhatsApp  MessagingSender
	Line      MessagingSender
	TTS       TTS
	Storage   Storage
}
