package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type resolverFunc func(ctx context.Context, raw string) (*domain.AuthInfo, error)

func (f resolverFunc) Resolve(ctx context.Context, raw string) (*domain.AuthInfo, error) {
	return f(ctx, raw)
}

func testResolver() Resolver {
	return resolverFunc(func(_ context.Context, raw string) (*domain.AuthInfo, error) {
		switch raw {
		case "agent-token":
			return &domain.AuthInfo{Tier: domain.TierAgent, OrgID: "default", AgentID: "bot-1"}, nil
		case "broken":
			return nil, errors.New("database unavailable")
		default:
			return nil, &domain.AuthError{Credential: domain.MaskCredential(raw), Reason: "invalid or revoked token"}
		}
	})
}

func TestAuthenticate(t *testing.T) {
	var seen *domain.AuthInfo
	h := Authenticate(testResolver())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid bearer", "Bearer agent-token", http.StatusNoContent},
		{"lowercase scheme", "bearer agent-token", http.StatusNoContent},
		{"wrong scheme", "Token agent-token", http.StatusUnauthorized},
		{"no credential after scheme", "Bearer", http.StatusUnauthorized},
		{"rejected credential", "Bearer sbk_unknown", http.StatusForbidden},
		{"missing header left to resolver", "", http.StatusForbidden},
		{"resolver failure", "Bearer broken", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "bot-1", seen.AgentID)
			} else {
				assert.Nil(t, seen)
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestWebhookSecret(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		secret string
		target string
		header string
		want   int
	}{
		{"open without secret", "", "/", "", http.StatusNoContent},
		{"header", "s3cret", "/", "s3cret", http.StatusNoContent},
		{"query token", "s3cret", "/?token=s3cret", "", http.StatusNoContent},
		{"missing", "s3cret", "/", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "/?token=nope", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("X-Webhook-Secret", tt.header)
			}
			rec := httptest.NewRecorder()
			WebhookSecret(tt.secret)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestLogging_IncludesCaller(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	inner := Authenticate(testResolver())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h := RequestID(Logging(logger)(inner))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.Header.Set("Authorization", "Bearer agent-token")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "bot-1", fields["agent_id"])
	assert.Equal(t, "agent", fields["tier"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestLogging_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusBadGateway} {
		h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFromContext(r.Context())
	}))

	t.Run("reuses caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "trace-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "trace-123", got)
		assert.Equal(t, "trace-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, got, 36)
		assert.Equal(t, got, rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		long := strings.Repeat("x", maxRequestIDLength+1)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, long)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, long, got)
		assert.Len(t, got, 36)
	})
}

func TestRateLimiter_PerAddress(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	rec := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, 10)
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(5 * time.Minute)
	rl.Allow("busy")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.Cleanup(limiterIdleTTL))
	rl.mu.Lock()
	_, idle := rl.limiters["idle"]
	_, busy := rl.limiters["busy"]
	rl.mu.Unlock()
	assert.False(t, idle)
	assert.True(t, busy)
}
