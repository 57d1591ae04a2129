// Package sandbox provides in-process providers for demo mode and tests. Every
// call is recorded, costs are fixed, and any operation can be made to fail.
package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/switchboard-labs/switchboard/internal/domain"
)

// Operation names accepted by FailOn.
const (
	OpSendSMS          = "send_sms"
	OpMakeCall         = "make_call"
	OpTransferCall     = "transfer_call"
	OpSearchAndBuy     = "search_and_buy"
	OpReleaseNumber    = "release_number"
	OpConfigureWebhook = "configure_webhook"
	OpSendEmail        = "send_email"
	OpSendMessage      = "send_message"
	OpSynthesize       = "synthesize"
	OpUpload           = "upload"
)

const (
	CostSMS          = 0.0079
	CostCall         = 0.014
	CostEmail        = 0.0001
	CostWhatsApp     = 0.005
	CostLine         = 0.0
	CostSynthesis    = 0.0003
	MediaURLPrefix   = "https://sandbox.switchboard.local/media/"
	sandboxNumberFmt = "+1555%07d"
)

// recorder counts calls per operation and returns injected failures.
type recorder struct {
	mu       sync.Mutex
	failures map[string]error
	calls    map[string]int
}

func (r *recorder) record(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[op]++
	return r.failures[op]
}

// FailOn makes op return err until cleared with a nil err.
func (r *recorder) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = map[string]error{}
	}
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

func (r *recorder) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func randomID(prefix string) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

type Telephony struct {
	recorder

	SMS       []domain.SMSRequest
	Placed    []domain.CallRequest
	Transfers []domain.TransferRequest
	Webhooks  []domain.WebhookConfig
	Leased    map[string]bool
	Released  []string
	next      int
}

func NewTelephony() *Telephony {
	return &Telephony{Leased: map[string]bool{}}
}

func (t *Telephony) SendSMS(_ context.Context, req domain.SMSRequest) (*domain.ProviderResult, error) {
	if err := t.record(OpSendSMS); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.SMS = append(t.SMS, req)
	t.mu.Unlock()
	return &domain.ProviderResult{ProviderID: randomID("SM"), Cost: CostSMS, Status: "queued"}, nil
}

func (t *Telephony) MakeCall(_ context.Context, req domain.CallRequest) (*domain.ProviderResult, error) {
	if err := t.record(OpMakeCall); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.Placed = append(t.Placed, req)
	t.mu.Unlock()
	return &domain.ProviderResult{ProviderID: randomID("CA"), Cost: CostCall, Status: "initiated"}, nil
}

func (t *Telephony) TransferCall(_ context.Context, req domain.TransferRequest) (*domain.ProviderResult, error) {
	if err := t.record(OpTransferCall); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.Transfers = append(t.Transfers, req)
	t.mu.Unlock()
	return &domain.ProviderResult{ProviderID: req.CallSID, Cost: CostCall, Status: "transferring"}, nil
}

func (t *Telephony) SearchAndBuy(_ context.Context, country string, _ domain.NumberCapabilities) (string, error) {
	if err := t.record(OpSearchAndBuy); err != nil {
		return "", err
	}
	switch strings.ToUpper(country) {
	case "", "US", "CA":
	default:
		return "", fmt.Errorf("no sandbox numbers available in %s", country)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	number := fmt.Sprintf(sandboxNumberFmt, t.next)
	t.Leased[number] = true
	return number, nil
}

func (t *Telephony) ReleaseNumber(_ context.Context, number string) error {
	if err := t.record(OpReleaseNumber); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.Leased, number)
	t.Released = append(t.Released, number)
	return nil
}

func (t *Telephony) ConfigureWebhook(_ context.Context, cfg domain.WebhookConfig) error {
	if err := t.record(OpConfigureWebhook); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Webhooks = append(t.Webhooks, cfg)
	return nil
}

// LeasedCount is the number of numbers currently held.
func (t *Telephony) LeasedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Leased)
}

type Email struct {
	recorder
	Sent []domain.EmailRequest
}

func (e *Email) Send(_ context.Context, req domain.EmailRequest) (*domain.ProviderResult, error) {
	if err := e.record(OpSendEmail); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.Sent = append(e.Sent, req)
	e.mu.Unlock()
	return &domain.ProviderResult{ProviderID: randomID("em_"), Cost: CostEmail, Status: "sent"}, nil
}

// Messaging is a chat channel (WhatsApp or LINE).
type Messaging struct {
	recorder
	channel domain.Channel
	cost    float64
	Sent    []domain.MessageRequest
}

func (m *Messaging) Send(_ context.Context, req domain.MessageRequest) (*domain.ProviderResult, error) {
	if err := m.record(OpSendMessage); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.Sent = append(m.Sent, req)
	m.mu.Unlock()
	return &domain.ProviderResult{ProviderID: randomID(string(m.channel) + "_"), Cost: m.cost, Status: "sent"}, nil
}

type TTS struct {
	recorder
	Requests []domain.SynthesisRequest
}

func (t *TTS) Synthesize(_ context.Context, req domain.SynthesisRequest) (*domain.Synthesis, error) {
	if err := t.record(OpSynthesize); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.Requests = append(t.Requests, req)
	t.mu.Unlock()
	return &domain.Synthesis{
		Audio:       []byte("ID3sandbox:" + req.Text),
		ContentType: "audio/mpeg",
		Cost:        CostSynthesis,
	}, nil
}

type Storage struct {
	recorder
	Objects map[string][]byte
}

func (s *Storage) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	if err := s.record(OpUpload); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Objects == nil {
		s.Objects = map[string][]byte{}
	}
	s.Objects[key] = append([]byte(nil), data...)
	return MediaURLPrefix + key, nil
}

// Set bundles one sandbox of each capability so tests can reach the concrete
// fakes behind a domain.Providers.
type Set struct {
	Telephony *Telephony
	Email     *Email
	WhatsApp  *Messaging
	Line      *Messaging
	TTS       *TTS
	Storage   *Storage
}

func NewSet() *Set {
	return &Set{
		Telephony: NewTelephony(),
		Email:     &Email{},
		WhatsApp:  &Messaging{channel: domain.ChannelWhatsApp, cost: CostWhatsApp},
		Line:      &Messaging{channel: domain.ChannelLine, cost: CostLine},
		TTS:       &TTS{},
		Storage:   &Storage{},
	}
}

func (s *Set) Providers() domain.Providers {
	return domain.Providers{
		Telephony: s.Telephony,
		Email:     s.Email,
		WhatsApp:  s.WhatsApp,
		Line:      s.Line,
		TTS:       s.TTS,
		Storage:   s.Storage,
	}
}
