package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/service"
	"go.uber.org/zap"
)

// AdminHandler serves credential management, organizations, the audit log
// and pool status.
type AdminHandler struct {
	auth   *service.AuthResolver
	orgs   *service.OrganizationService
	creds  *service.CredentialService
	audit  *service.AuditLogger
	pool   *service.PoolManager
	logger *zap.Logger
}

func NewAdminHandler(auth *service.AuthResolver, orgs *service.OrganizationService, creds *service.CredentialService, audit *service.AuditLogger, pool *service.PoolManager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, orgs: orgs, creds: creds, audit: audit, pool: pool, logger: logger}
}

func (h *AdminHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	tokens, err := h.creds.ListTokens(r.Context(), authFrom(r), agentID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}
	writeOK(w, map[string]any{"agentId": agentID, "tokens": tokens})
}

type regenerateTokenRequest struct {
	Label string `json:"label"`
}

func (h *AdminHandler) RegenerateToken(w http.ResponseWriter, r *http.Request) {
	var req regenerateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.creds.RegenerateToken(r.Context(), authFrom(r), chi.URLParam(r, "id"), req.Label)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

type createOrganizationRequest struct {
	OrgID string `json:"orgId"`
	Name  string `json:"name"`
}

func (h *AdminHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.orgs.Create(r.Context(), authFrom(r), req.OrgID, req.Name)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, res)
}

// AuditLog lists audit entries, newest first. Query: eventType, target,
// limit, before (RFC 3339).
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.AuditFilter{
		EventType: q.Get("eventType"),
		Target:    q.Get("target"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeServiceError(w, h.logger, &domain.SanitizationError{Field: "limit", Message: "limit must be a positive integer"})
			return
		}
		f.Limit = n
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeServiceError(w, h.logger, &domain.SanitizationError{
				Field:   "before",
				Message: "before must be an RFC 3339 timestamp",
				Example: "?before=2025-03-01T00:00:00Z",
			})
			return
		}
		f.Before = &t
	}

	entries, err := h.audit.List(r.Context(), authFrom(r), f)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *AdminHandler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.RequireOrchestrator(authFrom(r)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	status, err := h.pool.Status(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeOK(w, status)
}
