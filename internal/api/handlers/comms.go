package handlers

import (
	"net/http"

	"github.com/switchboard-labs/switchboard/internal/service"
	"go.uber.org/zap"
)

type CommsHandler struct {
	svc    *service.CommsService
	logger *zap.Logger
}

func NewCommsHandler(svc *service.CommsService, logger *zap.Logger) *CommsHandler {
	return &CommsHandler{svc: svc, logger: logger}
}

type sendMessageRequest struct {
	AgentID string `json:"agentId"`
	Channel string `json:"channel"`
	To      string `json:"to"`
	Body    string `json:"body"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (h *CommsHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.SendMessage(r.Context(), authFrom(r), service.SendMessageRequest{
		AgentID: req.AgentID,
		Channel: req.Channel,
		To:      req.To,
		Body:    req.Body,
		Subject: req.Subject,
		HTML:    req.HTML,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

type makeCallRequest struct {
	AgentID  string `json:"agentId"`
	To       string `json:"to"`
	Greeting string `json:"greeting"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

func (h *CommsHandler) MakeCall(w http.ResponseWriter, r *http.Request) {
	var req makeCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.MakeCall(r.Context(), authFrom(r), service.MakeCallRequest(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

type callOnBehalfRequest struct {
	AgentID        string `json:"agentId"`
	Target         string `json:"target"`
	RequesterPhone string `json:"requesterPhone"`
	RequesterName  string `json:"requesterName"`
	Message        string `json:"message"`
}

func (h *CommsHandler) CallOnBehalf(w http.ResponseWriter, r *http.Request) {
	var req callOnBehalfRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.CallOnBehalf(r.Context(), authFrom(r), service.CallOnBehalfRequest(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

type voiceMessageRequest struct {
	AgentID  string `json:"agentId"`
	To       string `json:"to"`
	Text     string `json:"text"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

func (h *CommsHandler) SendVoiceMessage(w http.ResponseWriter, r *http.Request) {
	var req voiceMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.SendVoiceMessage(r.Context(), authFrom(r), service.VoiceMessageRequest(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

type transferCallRequest struct {
	AgentID string `json:"agentId"`
	CallSID string `json:"callSid"`
	To      string `json:"to"`
}

func (h *CommsHandler) TransferCall(w http.ResponseWriter, r *http.Request) {
	var req transferCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.TransferCall(r.Context(), authFrom(r), service.TransferCallRequest(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

func (h *CommsHandler) WaitingMessages(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.WaitingMessages(r.Context(), authFrom(r), agentParam(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

func (h *CommsHandler) ChannelStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ChannelStatus(r.Context(), authFrom(r), agentParam(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

type agentSettingsRequest struct {
	AgentID         string   `json:"agentId"`
	DisplayName     *string  `json:"displayName"`
	Language        *string  `json:"language"`
	Voice           *string  `json:"voice"`
	Greeting        *string  `json:"greeting"`
	BlockedChannels []string `json:"blockedChannels"`
	ReplaceBlocked  bool     `json:"replaceBlockedChannels"`
}

func (h *CommsHandler) AgentSettings(w http.ResponseWriter, r *http.Request) {
	var req agentSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.UpdateSettings(r.Context(), authFrom(r), service.SettingsUpdate(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}
