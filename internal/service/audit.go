package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/events"
	"go.uber.org/zap"
)

const (
	defaultAuditListLimit = 100
	auditPublishTimeout   = 3 * time.Second
)

// AuditLogger appends to the audit log and mirrors each entry to the event
// bus. Bus failures never fail the operation being audited.
type AuditLogger struct {
	store          domain.AuditStore
	publisher      events.Publisher
	publishTimeout time.Duration
	auth           *AuthResolver
	logger         *zap.Logger
}

func NewAuditLogger(s domain.AuditStore, pub events.Publisher, auth *AuthResolver, logger *zap.Logger) *AuditLogger {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &AuditLogger{store: s, publisher: pub, publishTimeout: auditPublishTimeout, auth: auth, logger: logger}
}

// SetPublishTimeout bounds how long Log waits on the event bus.
func (a *AuditLogger) SetPublishTimeout(d time.Duration) {
	a.publishTimeout = d
}

func (a *AuditLogger) Log(ctx context.Context, eventType, actor, target string, details any) (*domain.AuditLogEntry, error) {
	var raw json.RawMessage
	switch d := details.(type) {
	case nil:
		raw = json.RawMessage(`{}`)
	case json.RawMessage:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("marshal audit details: %w", err)
		}
		raw = b
	}

	e := &domain.AuditLogEntry{EventType: eventType, Actor: actor, Target: target, Details: raw}
	if err := a.store.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("write audit entry: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, a.publishTimeout)
	defer cancel()
	if err := a.publisher.Publish(pubCtx, eventType, events.AuditEnvelope(e)); err != nil {
		a.logger.Warn("failed to publish audit event",
			zap.String("event_type", eventType),
			zap.String("audit_id", e.ID),
			zap.Error(err))
	}
	return e, nil
}

// LogBestEffort records an event after the audited change has already been
// committed, logging rather than returning failures.
func (a *AuditLogger) LogBestEffort(ctx context.Context, eventType, actor, target string, details any) {
	if _, err := a.Log(ctx, eventType, actor, target, details); err != nil {
		a.logger.Error("audit write failed",
			zap.String("event_type", eventType),
			zap.String("target", target),
			zap.Error(err))
	}
}

// List returns audit entries visible to the caller. Organization tokens only
// see events about their own agents.
func (a *AuditLogger) List(ctx context.Context, auth *domain.AuthInfo, f domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	if err := a.auth.RequireAdmin(auth); err != nil {
		return nil, err
	}
	if auth.Tier == domain.TierOrganization {
		f.OrgID = auth.OrgID
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = defaultAuditListLimit
	}
	entries, err := a.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.AuditLogEntry{}
	}
	return entries, nil
}
