package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"go.uber.org/zap"
)

const billingPrecision = 4

var hundred = decimal.NewFromInt(100)

// ComputeBilling applies markup to a provider cost. billing is
// providerCost * (1 + markup/100) and revenue is billing - providerCost,
// both rounded to four decimal places.
func ComputeBilling(providerCost, markupPercent float64) (billing, revenue float64) {
	cost := decimal.NewFromFloat(providerCost)
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(markupPercent).Div(hundred))
	b := cost.Mul(factor)
	return b.Round(billingPrecision).InexactFloat64(), b.Sub(cost).Round(billingPrecision).InexactFloat64()
}

func roundCost(v float64) float64 {
	return decimal.NewFromFloat(v).Round(billingPrecision).InexactFloat64()
}

type BillingSummary struct {
	AgentID       string             `json:"agentId"`
	Period        domain.Period      `json:"period"`
	From          time.Time          `json:"from"`
	To            time.Time          `json:"to"`
	Tier          domain.BillingTier `json:"tier"`
	MarkupPercent float64            `json:"markupPercent"`
	TotalActions  int                `json:"totalActions"`
	ProviderCost  float64            `json:"providerCost"`
	BillingCost   float64            `json:"billingCost"`
	Revenue       float64            `json:"revenue"`
}

type UsageReport struct {
	AgentID string        `json:"agentId"`
	Period  domain.Period `json:"period"`
	From    time.Time     `json:"from"`
	To      time.Time     `json:"to"`
	domain.UsageSummary
}

// BillingConfig is a partial update of an agent's billing settings. Nil
// fields are left unchanged.
type BillingConfig struct {
	AgentID       string
	Tier          *string
	MarkupPercent *float64
	BillingEmail  *string
	Limits        domain.LimitsPatch
}

type BillingConfigResult struct {
	AgentID       string                 `json:"agentId"`
	Tier          domain.BillingTier     `json:"tier"`
	MarkupPercent float64                `json:"markupPercent"`
	BillingEmail  *string                `json:"billingEmail,omitempty"`
	Limits        *domain.SpendingLimits `json:"limits"`
}

// BillingService is the usage ledger and the billing view over it.
type BillingService struct {
	agents        domain.AgentStore
	usage         domain.UsageStore
	limiter       *Limiter
	auth          *AuthResolver
	audit         *AuditLogger
	defaultMarkup float64
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           Clock
}

func NewBillingService(agents domain.AgentStore, usage domain.UsageStore, limiter *Limiter, auth *AuthResolver, audit *AuditLogger, defaultMarkup float64, m *metrics.Metrics, logger *zap.Logger) *BillingService {
	return &BillingService{
		agents:        agents,
		usage:         usage,
		limiter:       limiter,
		auth:          auth,
		audit:         audit,
		defaultMarkup: defaultMarkup,
		metrics:       m,
		logger:        logger,
		now:           utcNow,
	}
}

func (s *BillingService) SetClock(c Clock) {
	s.now = c
}

// LogUsage appends one executed action to the ledger at full precision.
func (s *BillingService) LogUsage(ctx context.Context, e *domain.UsageLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.usage.Create(ctx, e); err != nil {
		return fmt.Errorf("log usage: %w", err)
	}
	s.metrics.ActionAdmitted(string(e.ActionType), string(e.Channel))
	return nil
}

func (s *BillingService) markupFor(a *domain.Agent) float64 {
	if a.MarkupPercent != nil {
		return *a.MarkupPercent
	}
	return s.defaultMarkup
}

func (s *BillingService) GetBillingSummary(ctx context.Context, auth *domain.AuthInfo, agentID string, period domain.Period) (*BillingSummary, error) {
	agent, err := s.auth.RequireAgent(ctx, auth, agentID, `{"agentId": "agt_0123456789ab"}`)
	if err != nil {
		return nil, err
	}
	w := period.Resolve(s.now())
	totals, err := s.usage.Totals(ctx, agent.ID, w)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	markup := s.markupFor(agent)
	billing, revenue := ComputeBilling(totals[0].Cost, markup)
	return &BillingSummary{
		AgentID:       agent.ID,
		Period:        period,
		From:          w.Start,
		To:            w.End,
		Tier:          agent.BillingTier,
		MarkupPercent: markup,
		TotalActions:  totals[0].Actions,
		ProviderCost:  roundCost(totals[0].Cost),
		BillingCost:   billing,
		Revenue:       revenue,
	}, nil
}

func (s *BillingService) GetUsageSummary(ctx context.Context, auth *domain.AuthInfo, agentID string, period domain.Period) (*UsageReport, error) {
	agent, err := s.auth.RequireAgent(ctx, auth, agentID, `{"agentId": "agt_0123456789ab"}`)
	if err != nil {
		return nil, err
	}
	w := period.Resolve(s.now())
	sum, err := s.usage.Summary(ctx, agent.ID, w)
	if err != nil {
		return nil, fmt.Errorf("summarize usage: %w", err)
	}
	sum.TotalCost = roundCost(sum.TotalCost)
	for ch, c := range sum.CostByChannel {
		sum.CostByChannel[ch] = roundCost(c)
	}
	return &UsageReport{AgentID: agent.ID, Period: period, From: w.Start, To: w.End, UsageSummary: *sum}, nil
}

// SetBillingConfig updates tier, markup and billing email. A tier change
// resets the agent's ceilings to the tier preset with any explicit limits in
// the same call layered on top.
func (s *BillingService) SetBillingConfig(ctx context.Context, auth *domain.AuthInfo, cfg BillingConfig) (*BillingConfigResult, error) {
	example := `{"agentId": "agt_0123456789ab", "tier": "pro", "markupPercent": 20}`
	agent, err := s.auth.RequireAgent(ctx, auth, cfg.AgentID, example)
	if err != nil {
		return nil, err
	}
	if cfg.Tier == nil && cfg.MarkupPercent == nil && cfg.BillingEmail == nil && cfg.Limits.Empty() {
		return nil, domain.MissingField("tier", example)
	}

	tier := agent.BillingTier
	if cfg.Tier != nil {
		if !domain.ValidBillingTier(*cfg.Tier) {
			return nil, &domain.SanitizationError{
				Field:   "tier",
				Message: fmt.Sprintf("invalid tier %q: expected one of free, starter, pro, enterprise", *cfg.Tier),
				Example: example,
			}
		}
		tier = domain.BillingTier(*cfg.Tier)
	}
	if cfg.MarkupPercent != nil && *cfg.MarkupPercent < 0 {
		return nil, &domain.SanitizationError{Field: "markupPercent", Message: "markupPercent must be >= 0", Example: example}
	}
	if cfg.BillingEmail != nil {
		email, err := NormalizeEmail("billingEmail", *cfg.BillingEmail)
		if err != nil {
			return nil, err
		}
		cfg.BillingEmail = &email
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}

	if err := s.agents.UpdateBilling(ctx, agent.ID, tier, cfg.MarkupPercent, cfg.BillingEmail); err != nil {
		return nil, fmt.Errorf("update billing: %w", err)
	}

	var limits *domain.SpendingLimits
	switch {
	case cfg.Tier != nil:
		limits, err = s.limiter.ApplyTier(ctx, agent.ID, tier, cfg.Limits)
	case !cfg.Limits.Empty():
		limits, err = s.limiter.SetLimits(ctx, agent.ID, cfg.Limits)
	default:
		limits, err = s.limiter.GetLimits(ctx, agent.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("apply limits: %w", err)
	}

	markup := s.defaultMarkup
	switch {
	case cfg.MarkupPercent != nil:
		markup = *cfg.MarkupPercent
	case agent.MarkupPercent != nil:
		markup = *agent.MarkupPercent
	}
	email := agent.BillingEmail
	if cfg.BillingEmail != nil {
		email = cfg.BillingEmail
	}

	s.audit.LogBestEffort(ctx, domain.AuditBillingConfigUpdated, auth.Actor(), agent.ID, map[string]any{
		"tier":          tier,
		"previousTier":  agent.BillingTier,
		"markupPercent": cfg.MarkupPercent,
		"billingEmail":  cfg.BillingEmail,
		"limits":        limits,
	})

	return &BillingConfigResult{
		AgentID:       agent.ID,
		Tier:          tier,
		MarkupPercent: markup,
		BillingEmail:  email,
		Limits:        limits,
	}, nil
}

// UpdateLimits overrides individual ceilings for an agent.
func (s *BillingService) UpdateLimits(ctx context.Context, auth *domain.AuthInfo, agentID string, patch domain.LimitsPatch) (*domain.SpendingLimits, error) {
	example := `{"limits": {"maxActionsPerMinute": 20, "maxSpendPerDay": 50}}`
	agent, err := s.auth.RequireAgent(ctx, auth, agentID, example)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, domain.MissingField("limits", example)
	}
	limits, err := s.limiter.SetLimits(ctx, agent.ID, patch)
	if err != nil {
		return nil, err
	}
	s.audit.LogBestEffort(ctx, domain.AuditLimitsUpdated, auth.Actor(), agent.ID, limits)
	return limits, nil
}
