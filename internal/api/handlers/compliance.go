package handlers

import (
	"net/http"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/service"
	"go.uber.org/zap"
)

type ComplianceHandler struct {
	gate   *service.ComplianceGate
	logger *zap.Logger
}

func NewComplianceHandler(gate *service.ComplianceGate, logger *zap.Logger) *ComplianceHandler {
	return &ComplianceHandler{gate: gate, logger: logger}
}

type dncRequest struct {
	Target string  `json:"target"`
	Kind   string  `json:"kind"`
	OrgID  *string `json:"orgId"`
	Reason string  `json:"reason"`
}

// scope defaults an organization caller to its own organization. Without an
// orgId the orchestrator files platform-wide entries.
func (req *dncRequest) scope(auth *domain.AuthInfo) {
	if req.OrgID == nil && auth != nil && auth.Tier == domain.TierOrganization {
		org := auth.OrgID
		req.OrgID = &org
	}
	if req.Kind == "" {
		req.Kind = string(domain.ContactPhone)
	}
}

func (h *ComplianceHandler) AddDNC(w http.ResponseWriter, r *http.Request) {
	var req dncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	auth := authFrom(r)
	req.scope(auth)

	entry := &domain.DNCEntry{
		Target: req.Target,
		Kind:   domain.ContactKind(req.Kind),
		OrgID:  req.OrgID,
		Reason: req.Reason,
	}
	if err := h.gate.AddDNC(r.Context(), auth, entry); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, entry)
}

// RemoveDNC reads target, kind and orgId from the body or, failing that, the
// query string.
func (h *ComplianceHandler) RemoveDNC(w http.ResponseWriter, r *http.Request) {
	var req dncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	if req.Target == "" {
		req.Target = q.Get("target")
	}
	if req.Kind == "" {
		req.Kind = q.Get("kind")
	}
	if req.OrgID == nil && q.Has("orgId") {
		org := q.Get("orgId")
		req.OrgID = &org
	}
	auth := authFrom(r)
	req.scope(auth)

	if err := h.gate.RemoveDNC(r.Context(), auth, req.OrgID, req.Target, domain.ContactKind(req.Kind)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, map[string]any{"target": req.Target, "kind": req.Kind, "orgId": req.OrgID, "removed": true})
}

type disclosureRequest struct {
	OrgID    string `json:"orgId"`
	Disabled *bool  `json:"disabled"`
}

func (h *ComplianceHandler) SetDisclosure(w http.ResponseWriter, r *http.Request) {
	var req disclosureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if req.Disabled == nil {
		writeServiceError(w, h.logger, domain.MissingField("disabled", `{"orgId": "acme", "disabled": true}`))
		return
	}

	org, err := h.gate.SetDisclosure(r.Context(), authFrom(r), req.OrgID, *req.Disabled)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, org)
}
