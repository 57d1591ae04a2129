package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/switchboard-labs/switchboard/internal/domain"
)

type contextKey string

const (
	authContextKey contextKey = "auth"
	authSlotKey    contextKey = "auth_slot"
)

// Resolver turns a raw bearer credential into the caller's tier and scope.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (*domain.AuthInfo, error)
}

// AuthFromContext returns the resolved caller, or nil on public routes.
func AuthFromContext(ctx context.Context) *domain.AuthInfo {
	a, _ := ctx.Value(authContextKey).(*domain.AuthInfo)
	return a
}

// WithAuth stores the resolved caller in ctx. Outer middleware that opened an
// auth slot (request logging) sees the caller too.
func WithAuth(ctx context.Context, a *domain.AuthInfo) context.Context {
	if slot, ok := ctx.Value(authSlotKey).(*authSlot); ok {
		slot.info = a
	}
	return context.WithValue(ctx, authContextKey, a)
}

type authSlot struct {
	info *domain.AuthInfo
}

// Authenticate resolves the Authorization header on every request. Whether a
// missing header is fatal is the resolver's call: in demo mode it resolves to
// the orchestrator.
func Authenticate(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format: expected 'Bearer <token>'")
				return
			}

			info, err := resolver.Resolve(r.Context(), raw)
			if err != nil {
				var ae *domain.AuthError
				if errors.As(err, &ae) {
					writeError(w, http.StatusForbidden, ae.Error())
					return
				}
				writeError(w, http.StatusInternalServerError, "failed to resolve credential")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), info)))
		})
	}
}

// WebhookSecret guards provider callbacks with a shared secret, sent either as
// the X-Webhook-Secret header or as the token query parameter of the
// configured webhook URL. An empty secret leaves the routes open.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Secret")
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid webhook secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential. An absent header yields "" and ok.
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", true
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
