// Package relay talks to a carrier relay service over HTTP. The relay fronts
// the real telephony, email, chat and speech vendors behind one JSON API.
package relay

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"go.uber.org/zap"
)

type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// result is the relay's response for every billable call.
type result struct {
	ID     string  `json:"id"`
	Cost   float64 `json:"cost"`
	Status string  `json:"status"`
}

type apiError struct {
	Error string `json:"error"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("relay baseURL cannot be empty")
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetError(&apiError{})
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	logger.Info("relay provider configured", zap.String("baseURL", baseURL))
	return &Client{http: c, logger: logger}, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*domain.ProviderResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result{}).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("relay %s request failed: %w", path, err)
	}
	if resp.IsError() {
		return nil, c.responseError(path, resp)
	}
	r := resp.Result().(*result)
	return &domain.ProviderResult{ProviderID: r.ID, Cost: r.Cost, Status: r.Status}, nil
}

func (c *Client) responseError(path string, resp *resty.Response) error {
	msg := resp.String()
	if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
		msg = e.Error
	}
	c.logger.Warn("relay returned an error",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.String("body", msg))
	return fmt.Errorf("relay %s: status %d: %s", path, resp.StatusCode(), msg)
}

type Telephony struct{ c *Client }

func (c *Client) Telephony() *Telephony { return &Telephony{c: c} }

func (t *Telephony) SendSMS(ctx context.Context, req domain.SMSRequest) (*domain.ProviderResult, error) {
	return t.c.post(ctx, "/v1/sms", req)
}

func (t *Telephony) MakeCall(ctx context.Context, req domain.CallRequest) (*domain.ProviderResult, error) {
	return t.c.post(ctx, "/v1/calls", req)
}

func (t *Telephony) TransferCall(ctx context.Context, req domain.TransferRequest) (*domain.ProviderResult, error) {
	return t.c.post(ctx, "/v1/calls/"+url.PathEscape(req.CallSID)+"/transfer", map[string]string{"to": req.To})
}

func (t *Telephony) SearchAndBuy(ctx context.Context, country string, caps domain.NumberCapabilities) (string, error) {
	var out struct {
		Number string `json:"number"`
	}
	resp, err := t.c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"country": country, "capabilities": caps}).
		SetResult(&out).
		Post("/v1/numbers")
	if err != nil {
		return "", fmt.Errorf("relay number purchase failed: %w", err)
	}
	if resp.IsError() {
		return "", t.c.responseError("/v1/numbers", resp)
	}
	if out.Number == "" {
		return "", fmt.Errorf("relay returned no number for %s", country)
	}
	return out.Number, nil
}

func (t *Telephony) ReleaseNumber(ctx context.Context, number string) error {
	path := "/v1/numbers/" + url.PathEscape(number)
	resp, err := t.c.http.R().SetContext(ctx).Delete(path)
	if err != nil {
		return fmt.Errorf("relay number release failed: %w", err)
	}
	if resp.IsError() {
		return t.c.responseError(path, resp)
	}
	return nil
}

func (t *Telephony) ConfigureWebhook(ctx context.Context, cfg domain.WebhookConfig) error {
	path := "/v1/numbers/" + url.PathEscape(cfg.Number) + "/webhooks"
	resp, err := t.c.http.R().SetContext(ctx).SetBody(cfg).Put(path)
	if err != nil {
		return fmt.Errorf("relay webhook configuration failed: %w", err)
	}
	if resp.IsError() {
		return t.c.responseError(path, resp)
	}
	return nil
}

type Email struct{ c *Client }

func (c *Client) Email() *Email { return &Email{c: c} }

func (e *Email) Send(ctx context.Context, req domain.EmailRequest) (*domain.ProviderResult, error) {
	return e.c.post(ctx, "/v1/email", req)
}

// Messaging sends chat messages on one channel.
type Messaging struct {
	c       *Client
	channel domain.Channel
}

func (c *Client) Messaging(channel domain.Channel) *Messaging {
	return &Messaging{c: c, channel: channel}
}

func (m *Messaging) Send(ctx context.Context, req domain.MessageRequest) (*domain.ProviderResult, error) {
	return m.c.post(ctx, "/v1/messages/"+string(m.channel), req)
}

type TTS struct{ c *Client }

func (c *Client) TTS() *TTS { return &TTS{c: c} }

// Synthesize returns raw audio. The relay reports the synthesis cost in the
// X-Relay-Cost header.
func (t *TTS) Synthesize(ctx context.Context, req domain.SynthesisRequest) (*domain.Synthesis, error) {
	resp, err := t.c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "audio/mpeg").
		SetBody(req).
		Post("/v1/tts")
	if err != nil {
		return nil, fmt.Errorf("relay tts request failed: %w", err)
	}
	if resp.IsError() {
		return nil, t.c.responseError("/v1/tts", resp)
	}
	cost, _ := strconv.ParseFloat(resp.Header().Get("X-Relay-Cost"), 64)
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &domain.Synthesis{Audio: resp.Body(), ContentType: contentType, Cost: cost}, nil
}
