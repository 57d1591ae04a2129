package handlers

import (
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/service"
	"go.uber.org/zap"
)

// WebhookHandler receives telephony provider callbacks for an agent's number.
type WebhookHandler struct {
	svc    *service.CommsService
	logger *zap.Logger
}

func NewWebhookHandler(svc *service.CommsService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, logger: logger}
}

// callbackParams holds a callback's fields keyed case-insensitively, so that
// both form posts (From, CallSid) and JSON bodies (from, callSid) are read.
type callbackParams map[string]string

func (p callbackParams) get(key string) string {
	return p[strings.ToLower(key)]
}

func readCallback(r *http.Request) (callbackParams, error) {
	params := callbackParams{}
	add := func(k, v string) {
		params[strings.ToLower(k)] = v
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body map[string]any
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		for k, v := range body {
			if s, ok := v.(string); ok {
				add(k, s)
			}
		}
		return params, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.SanitizationError{Field: "body", Message: "failed to read callback body"}
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, &domain.SanitizationError{Field: "body", Message: "invalid form body"}
	}
	for k, vs := range form {
		if len(vs) > 0 {
			add(k, vs[0])
		}
	}
	return params, nil
}

func (h *WebhookHandler) SMS(w http.ResponseWriter, r *http.Request) {
	p, err := readCallback(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	dl, err := h.svc.ReceiveSMS(r.Context(), chi.URLParam(r, "agentID"), service.InboundMessage{
		MessageSID: firstOf(p, "MessageSid", "SmsSid"),
		From:       p.get("From"),
		To:         p.get("To"),
		Body:       p.get("Body"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, map[string]any{"deadLetterId": dl.ID})
}

func (h *WebhookHandler) Voice(w http.ResponseWriter, r *http.Request) {
	p, err := readCallback(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	dl, err := h.svc.ReceiveCall(r.Context(), chi.URLParam(r, "agentID"), service.InboundCall{
		CallSID: p.get("CallSid"),
		From:    p.get("From"),
		To:      p.get("To"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, map[string]any{"deadLetterId": dl.ID})
}

func (h *WebhookHandler) VoiceStatus(w http.ResponseWriter, r *http.Request) {
	p, err := readCallback(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	call, err := h.svc.UpdateCallStatus(r.Context(), chi.URLParam(r, "agentID"), service.CallStatusUpdate{
		CallSID: p.get("CallSid"),
		Status:  firstOf(p, "CallStatus", "Status"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, call)
}

func firstOf(p callbackParams, keys ...string) string {
	for _, k := range keys {
		if v := p.get(k); v != "" {
			return v
		}
	}
	return ""
}
