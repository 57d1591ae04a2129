package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/switchboard-labs/switchboard/internal/api/middleware"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/service"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// NotFound and MethodNotAllowed keep router-level errors in the API's JSON
// error shape.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method "+r.Method+" is not allowed on "+r.URL.Path)
}

// writeOK renders v as a flat JSON object with "success": true merged in.
// Values that do not encode to an object are nested under "result".
func writeOK(w http.ResponseWriter, v any) {
	body := map[string]json.RawMessage{}
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			body = map[string]json.RawMessage{"result": raw}
		}
	}
	if body == nil {
		body = map[string]json.RawMessage{}
	}
	body["success"] = json.RawMessage("true")
	writeJSON(w, http.StatusOK, body)
}

// retryAfter is the Retry-After hint for each ceiling, in seconds.
var retryAfter = map[string]int{
	domain.LimitActionsPerMinute: 60,
	domain.LimitActionsPerHour:   3600,
	domain.LimitActionsPerDay:    86400,
	domain.LimitSpendPerDay:      86400,
	domain.LimitSpendPerMonth:    86400,
}

// writeServiceError maps service and domain errors to HTTP responses.
// Sentinels are checked before the typed errors so that a sentinel wrapped
// inside a provisioning failure keeps its own status.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrAgentNotFound),
		errors.Is(err, service.ErrOrganizationNotFound),
		errors.Is(err, service.ErrDNCNotFound),
		errors.Is(err, service.ErrCallNotFound),
		errors.Is(err, service.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, service.ErrAgentExists),
		errors.Is(err, service.ErrAgentDeprovisioned),
		errors.Is(err, service.ErrOrganizationExists),
		errors.Is(err, service.ErrDNCExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, service.ErrAgentInactive),
		errors.Is(err, service.ErrChannelNotProvisioned):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, service.ErrChannelBlocked):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, service.ErrPoolExhausted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	var (
		authErr  *domain.AuthError
		sanErr   *domain.SanitizationError
		rateErr  *domain.RateLimitError
		compErr  *domain.ComplianceError
		provErr  *domain.ProvisioningError
		provider *domain.ProviderError
	)
	switch {
	case errors.As(err, &authErr):
		writeError(w, http.StatusForbidden, authErr.Error())
	case errors.As(err, &sanErr):
		body := map[string]any{
			"error": sanErr.Error(),
			"field": sanErr.Field,
		}
		if sanErr.Example != "" {
			body["example"] = sanErr.Example
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &rateErr):
		if secs, ok := retryAfter[rateErr.Limit]; ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":   rateErr.Error(),
			"limit":   rateErr.Limit,
			"current": rateErr.Current,
			"max":     rateErr.Max,
		})
	case errors.As(err, &compErr):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":  compErr.Error(),
			"check":  compErr.Check,
			"reason": compErr.Reason,
		})
	case errors.As(err, &provErr):
		if provErr.CompensationErr != nil {
			logger.Error("provisioning rollback incomplete",
				zap.String("agent_id", provErr.AgentID),
				zap.String("step", provErr.Step),
				zap.Error(provErr.CompensationErr))
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   provErr.Error(),
			"step":    provErr.Step,
			"agentId": provErr.AgentID,
		})
	case errors.As(err, &provider):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":        provider.Error(),
			"capability":   provider.Capability,
			"deadLetterId": provider.DeadLetterID,
		})
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched so that required-field checks report the missing field.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &domain.SanitizationError{
		Field:   "body",
		Message: fmt.Sprintf("invalid JSON body: %v", err),
	}
}

// authFrom returns the resolved caller. Routes behind Authenticate always
// carry one.
func authFrom(r *http.Request) *domain.AuthInfo {
	return middleware.AuthFromContext(r.Context())
}

// agentParam reads the agentId query parameter used by GET endpoints.
func agentParam(r *http.Request) string {
	return r.URL.Query().Get("agentId")
}
