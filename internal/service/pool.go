package service

import (
	"context"
	"fmt"
	"time"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"go.uber.org/zap"
)

// PoolManager leases phone numbers and WhatsApp senders and tracks agent
// capacity. Every allocation is a single conditional write so concurrent
// provisioning never double-assigns.
type PoolManager struct {
	pool        domain.PoolStore
	telephony   domain.Telephony
	webhookBase string
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewPoolManager(pool domain.PoolStore, telephony domain.Telephony, webhookBase string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *PoolManager {
	return &PoolManager{
		pool:        pool,
		telephony:   telephony,
		webhookBase: webhookBase,
		timeout:     timeout,
		metrics:     m,
		logger:      logger,
	}
}

func (p *PoolManager) SearchAndBuy(ctx context.Context, country string, caps domain.NumberCapabilities) (string, error) {
	number, err := callProvider(ctx, p.timeout, p.metrics, "telephony", func(ctx context.Context) (string, error) {
		return p.telephony.SearchAndBuy(ctx, country, caps)
	})
	if err != nil {
		return "", fmt.Errorf("lease phone number: %w", err)
	}
	p.logger.Info("leased phone number", zap.String("number", number), zap.String("country", country))
	return number, nil
}

func (p *PoolManager) Release(ctx context.Context, number string) error {
	_, err := callProvider(ctx, p.timeout, p.metrics, "telephony", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.telephony.ReleaseNumber(ctx, number)
	})
	if err != nil {
		return fmt.Errorf("release phone number %s: %w", number, err)
	}
	p.logger.Info("released phone number", zap.String("number", number))
	return nil
}

// ConfigureWebhook points the number's inbound voice and SMS traffic at the
// agent's webhook endpoints.
func (p *PoolManager) ConfigureWebhook(ctx context.Context, number, agentID string) error {
	base := fmt.Sprintf("%s/api/v1/webhooks/%s", p.webhookBase, agentID)
	_, err := callProvider(ctx, p.timeout, p.metrics, "telephony", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.telephony.ConfigureWebhook(ctx, domain.WebhookConfig{
			Number:   number,
			VoiceURL: base + "/voice",
			SMSURL:   base + "/sms",
		})
	})
	if err != nil {
		return fmt.Errorf("configure webhook for %s: %w", number, err)
	}
	return nil
}

// AssignFromPool returns nil, nil when no sender is available.
func (p *PoolManager) AssignFromPool(ctx context.Context, agentID string) (*domain.WhatsAppSender, error) {
	sender, err := p.pool.AssignSender(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("assign whatsapp sender: %w", err)
	}
	if sender == nil {
		p.logger.Warn("whatsapp sender pool exhausted", zap.String("agent_id", agentID))
	}
	return sender, nil
}

// ReturnToPool frees the agent's sender. Returning when nothing is assigned
// is a no-op and reports false.
func (p *PoolManager) ReturnToPool(ctx context.Context, agentID string) (bool, error) {
	n, err := p.pool.ReleaseSender(ctx, agentID)
	if err != nil {
		return false, fmt.Errorf("return whatsapp sender: %w", err)
	}
	return n > 0, nil
}

func (p *PoolManager) CheckCapacity(ctx context.Context) error {
	ap, err := p.pool.GetAgentPool(ctx)
	if err != nil {
		return fmt.Errorf("load agent pool: %w", err)
	}
	if !ap.HasCapacity() {
		return ErrPoolExhausted
	}
	return nil
}

func (p *PoolManager) IncrementActive(ctx context.Context) error {
	ok, err := p.pool.IncrementActive(ctx)
	if err != nil {
		return fmt.Errorf("increment active agents: %w", err)
	}
	if !ok {
		return ErrPoolExhausted
	}
	return nil
}

func (p *PoolManager) DecrementActive(ctx context.Context) error {
	if err := p.pool.DecrementActive(ctx); err != nil {
		return fmt.Errorf("decrement active agents: %w", err)
	}
	return nil
}

func (p *PoolManager) Status(ctx context.Context) (*domain.PoolStatus, error) {
	ap, err := p.pool.GetAgentPool(ctx)
	if err != nil {
		return nil, err
	}
	available, assigned, err := p.pool.CountSenders(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.PoolStatus{Agents: *ap, SendersAvailable: available, SendersAssigned: assigned}, nil
}
