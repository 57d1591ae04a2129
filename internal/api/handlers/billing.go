package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/service"
	"go.uber.org/zap"
)

type BillingHandler struct {
	svc    *service.BillingService
	logger *zap.Logger
}

func NewBillingHandler(svc *service.BillingService, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{svc: svc, logger: logger}
}

func periodParam(r *http.Request) (domain.Period, error) {
	return domain.ParsePeriod(r.URL.Query().Get("period"), domain.PeriodToday)
}

func (h *BillingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.GetUsageSummary(r.Context(), authFrom(r), agentParam(r), period)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

func (h *BillingHandler) Billing(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.GetBillingSummary(r.Context(), authFrom(r), agentParam(r), period)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

type agentLimitsRequest struct {
	AgentID string                     `json:"agentId"`
	Limits  map[string]json.RawMessage `json:"limits"`
}

func (h *BillingHandler) AgentLimits(w http.ResponseWriter, r *http.Request) {
	var req agentLimitsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	patch, err := parseLimits(req.Limits)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	limits, err := h.svc.UpdateLimits(r.Context(), authFrom(r), req.AgentID, patch)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, map[string]any{"agentId": limits.AgentID, "limits": limits})
}

type billingConfigRequest struct {
	AgentID       string                     `json:"agentId"`
	Tier          *string                    `json:"tier"`
	MarkupPercent *float64                   `json:"markupPercent"`
	BillingEmail  *string                    `json:"billingEmail"`
	Limits        map[string]json.RawMessage `json:"limits"`
}

func (h *BillingHandler) BillingConfig(w http.ResponseWriter, r *http.Request) {
	var req billingConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	patch, err := parseLimits(req.Limits)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.SetBillingConfig(r.Context(), authFrom(r), service.BillingConfig{
		AgentID:       req.AgentID,
		Tier:          req.Tier,
		MarkupPercent: req.MarkupPercent,
		BillingEmail:  req.BillingEmail,
		Limits:        patch,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}
