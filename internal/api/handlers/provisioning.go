package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/switchboard-labs/switchboard/internal/service"
	"go.uber.org/zap"
)

type ProvisioningHandler struct {
	svc    *service.ProvisioningService
	logger *zap.Logger
}

func NewProvisioningHandler(svc *service.ProvisioningService, logger *zap.Logger) *ProvisioningHandler {
	return &ProvisioningHandler{svc: svc, logger: logger}
}

type provisionRequest struct {
	AgentID      string          `json:"agentId"`
	DisplayName  string          `json:"displayName"`
	OrgID        string          `json:"orgId"`
	Capabilities json.RawMessage `json:"capabilities"`
	Country      string          `json:"country"`
	Language     string          `json:"language"`
	Greeting     string          `json:"greeting"`
	Voice        string          `json:"voice"`
}

func (req provisionRequest) toService() (service.ProvisionRequest, error) {
	caps, set, err := parseCapabilities(req.Capabilities)
	if err != nil {
		return service.ProvisionRequest{}, err
	}
	return service.ProvisionRequest{
		AgentID:         req.AgentID,
		DisplayName:     req.DisplayName,
		OrgID:           req.OrgID,
		Capabilities:    caps,
		CapabilitiesSet: set,
		Country:         req.Country,
		Language:        req.Language,
		Greeting:        req.Greeting,
		Voice:           req.Voice,
	}, nil
}

func (h *ProvisioningHandler) decode(r *http.Request) (service.ProvisionRequest, error) {
	var req provisionRequest
	if err := decodeJSON(r, &req); err != nil {
		return service.ProvisionRequest{}, err
	}
	return req.toService()
}

func (h *ProvisioningHandler) Provision(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.Provision(r.Context(), authFrom(r), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

func (h *ProvisioningHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.Onboard(r.Context(), authFrom(r), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

type deprovisionRequest struct {
	AgentID string `json:"agentId"`
	// ReleaseNumber defaults to true when omitted.
	ReleaseNumber *bool `json:"releaseNumber"`
}

func (h *ProvisioningHandler) Deprovision(w http.ResponseWriter, r *http.Request) {
	var req deprovisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	release := req.ReleaseNumber == nil || *req.ReleaseNumber

	res, err := h.svc.Deprovision(r.Context(), authFrom(r), req.AgentID, release)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}
