package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/switchboard-labs/switchboard/internal/config"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"github.com/switchboard-labs/switchboard/internal/store"
	"go.uber.org/zap"
)

// Limiter enforces per-agent action and spend ceilings. Usage is
// re-aggregated from the usage log on every check; there are no counters to
// drift.
type Limiter struct {
	usage   domain.UsageStore
	limits  domain.LimitsStore
	locker  AgentLocker
	policy  *config.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     Clock
}

func NewLimiter(usage domain.UsageStore, limits domain.LimitsStore, locker AgentLocker, policy *config.Policy, m *metrics.Metrics, logger *zap.Logger) *Limiter {
	return &Limiter{
		usage:   usage,
		limits:  limits,
		locker:  locker,
		policy:  policy,
		metrics: m,
		logger:  logger,
		now:     utcNow,
	}
}

func (l *Limiter) SetClock(c Clock) {
	l.now = c
}

// Lock serializes gated actions for one agent. Hold it from Check until the
// action's usage is logged.
func (l *Limiter) Lock(ctx context.Context, agentID string) (func(), error) {
	return l.locker.Lock(ctx, agentID)
}

// Check returns a *domain.RateLimitError naming the first ceiling the next
// action would breach, or nil. Checks never write.
func (l *Limiter) Check(ctx context.Context, agentID string, action domain.ActionType) error {
	lim, err := l.GetLimits(ctx, agentID)
	if err != nil {
		return err
	}

	now := l.now()
	totals, err := l.usage.Totals(ctx, agentID,
		domain.Trailing(now, time.Minute),
		domain.Trailing(now, time.Hour),
		domain.Trailing(now, 24*time.Hour),
		domain.CalendarDay(now),
		domain.CalendarMonth(now),
	)
	if err != nil {
		return fmt.Errorf("aggregate usage: %w", err)
	}

	checks := []struct {
		name    string
		current float64
		max     float64
	}{
		{domain.LimitActionsPerMinute, float64(totals[0].Actions), float64(lim.MaxActionsPerMinute)},
		{domain.LimitActionsPerHour, float64(totals[1].Actions), float64(lim.MaxActionsPerHour)},
		{domain.LimitActionsPerDay, float64(totals[2].Actions), float64(lim.MaxActionsPerDay)},
		{domain.LimitSpendPerDay, totals[3].Cost, lim.MaxSpendPerDay},
		{domain.LimitSpendPerMonth, totals[4].Cost, lim.MaxSpendPerMonth},
	}
	for _, c := range checks {
		if c.current >= c.max {
			l.metrics.ActionDenied("rate_limit", c.name)
			l.logger.Info("rate limit reached",
				zap.String("agent_id", agentID),
				zap.String("action", string(action)),
				zap.String("limit", c.name),
				zap.Float64("current", c.current),
				zap.Float64("max", c.max))
			return &domain.RateLimitError{Limit: c.name, Current: c.current, Max: c.max}
		}
	}
	return nil
}

// GetLimits returns the agent's ceilings, or the defaults when none are stored.
func (l *Limiter) GetLimits(ctx context.Context, agentID string) (*domain.SpendingLimits, error) {
	lim, err := l.limits.Get(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d := domain.DefaultSpendingLimits()
			d.AgentID = agentID
			return &d, nil
		}
		return nil, err
	}
	return lim, nil
}

// SetLimits layers patch over the agent's current ceilings.
func (l *Limiter) SetLimits(ctx context.Context, agentID string, patch domain.LimitsPatch) (*domain.SpendingLimits, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	current, err := l.GetLimits(ctx, agentID)
	if err != nil {
		return nil, err
	}
	next := patch.Apply(*current)
	next.AgentID = agentID
	if err := l.limits.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// ApplyTier resets the agent's ceilings to the tier preset, then layers patch
// on top.
func (l *Limiter) ApplyTier(ctx context.Context, agentID string, tier domain.BillingTier, patch domain.LimitsPatch) (*domain.SpendingLimits, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	preset, ok := l.policy.Preset(tier)
	if !ok {
		return nil, &domain.SanitizationError{Field: "tier", Message: fmt.Sprintf("unknown billing tier %q", tier)}
	}
	next := patch.Apply(preset)
	next.AgentID = agentID
	if err := l.limits.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// InitDefaults stores the default ceilings for a newly provisioned agent.
func (l *Limiter) InitDefaults(ctx context.Context, agentID string) error {
	d := domain.DefaultSpendingLimits()
	d.AgentID = agentID
	return l.limits.Upsert(ctx, &d)
}

func (l *Limiter) DeleteLimits(ctx context.Context, agentID string) error {
	return l.limits.Delete(ctx, agentID)
}
