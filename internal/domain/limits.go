package domain

import "time"

type BillingTier string

const (
	BillingTierFree       BillingTier = "free"
	BillingTierStarter    BillingTier = "starter"
	BillingTierPro        BillingTier = "pro"
	BillingTierEnterprise BillingTier = "enterprise"
)

func ValidBillingTier(t string) bool {
	switch BillingTier(t) {
	case BillingTierFree, BillingTierStarter, BillingTierPro, BillingTierEnterprise:
		return true
	}
	return false
}

func AllBillingTiers() []BillingTier {
	return []BillingTier{BillingTierFree, BillingTierStarter, BillingTierPro, BillingTierEnterprise}
}

// Ceiling names, as reported in rate-limit errors and accepted by agent-limits.
const (
	LimitActionsPerMinute = "maxActionsPerMinute"
	LimitActionsPerHour   = "maxActionsPerHour"
	LimitActionsPerDay    = "maxActionsPerDay"
	LimitSpendPerDay      = "maxSpendPerDay"
	LimitSpendPerMonth    = "maxSpendPerMonth"
)

type SpendingLimits struct {
	AgentID             string    `json:"agentId,omitempty"`
	MaxActionsPerMinute int       `json:"maxActionsPerMinute"`
	MaxActionsPerHour   int       `json:"maxActionsPerHour"`
	MaxActionsPerDay    int       `json:"maxActionsPerDay"`
	MaxSpendPerDay      float64   `json:"maxSpendPerDay"`
	MaxSpendPerMonth    float64   `json:"maxSpendPerMonth"`
	UpdatedAt           time.Time `json:"updatedAt,omitzero"`
}

// LimitsPatch overrides individual ceilings; nil fields keep their value.
type LimitsPatch struct {
	MaxActionsPerMinute *int
	MaxActionsPerHour   *int
	MaxActionsPerDay    *int
	MaxSpendPerDay      *float64
	MaxSpendPerMonth    *float64
}

func (p LimitsPatch) Empty() bool {
	return p.MaxActionsPerMinute == nil && p.MaxActionsPerHour == nil && p.MaxActionsPerDay == nil &&
		p.MaxSpendPerDay == nil && p.MaxSpendPerMonth == nil
}

// Apply returns a copy of l with the patch layered on top.
func (p LimitsPatch) Apply(l SpendingLimits) SpendingLimits {
	if p.MaxActionsPerMinute != nil {
		l.MaxActionsPerMinute = *p.MaxActionsPerMinute
	}
	if p.MaxActionsPerHour != nil {
		l.MaxActionsPerHour = *p.MaxActionsPerHour
	}
	if p.MaxActionsPerDay != nil {
		l.MaxActionsPerDay = *p.MaxActionsPerDay
	}
	if p.MaxSpendPerDay != nil {
		l.MaxSpendPerDay = *p.MaxSpendPerDay
	}
	if p.MaxSpendPerMonth != nil {
		l.MaxSpendPerMonth = *p.MaxSpendPerMonth
	}
	return l
}

// Validate rejects negative ceilings. Zero is a valid ceiling and blocks the action.
func (p LimitsPatch) Validate() error {
	for name, v := range map[string]*int{
		LimitActionsPerMinute: p.MaxActionsPerMinute,
		LimitActionsPerHour:   p.MaxActionsPerHour,
		LimitActionsPerDay:    p.MaxActionsPerDay,
	} {
		if v != nil && *v < 0 {
			return &SanitizationError{Field: name, Message: name + " must be >= 0"}
		}
	}
	for name, v := range map[string]*float64{
		LimitSpendPerDay:   p.MaxSpendPerDay,
		LimitSpendPerMonth: p.MaxSpendPerMonth,
	} {
		if v != nil && *v < 0 {
			return &SanitizationError{Field: name, Message: name + " must be >= 0"}
		}
	}
	return nil
}

// DefaultSpendingLimits are applied when an agent is provisioned.
func DefaultSpendingLimits() SpendingLimits {
	return SpendingLimits{
		MaxActionsPerMinute: 10,
		MaxActionsPerHour:   100,
		MaxActionsPerDay:    500,
		MaxSpendPerDay:      10,
		MaxSpendPerMonth:    100,
	}
}

// DefaultTierPresets are the compiled-in tier ceilings; the policy file may
// override any of them.
func DefaultTierPresets() map[BillingTier]SpendingLimits {
	return map[BillingTier]SpendingLimits{
		BillingTierFree: {
			MaxActionsPerMinute: 5,
			MaxActionsPerHour:   50,
			MaxActionsPerDay:    200,
			MaxSpendPerDay:      5,
			MaxSpendPerMonth:    50,
		},
		BillingTierStarter: {
			MaxActionsPerMinute: 10,
			MaxActionsPerHour:   200,
			MaxActionsPerDay:    1000,
			MaxSpendPerDay:      25,
			MaxSpendPerMonth:    250,
		},
		BillingTierPro: {
			MaxActionsPerMinute: 30,
			MaxActionsPerHour:   1000,
			MaxActionsPerDay:    5000,
			MaxSpendPerDay:      100,
			MaxSpendPerMonth:    2000,
		},
		BillingTierEnterprise: {
			MaxActionsPerMinute: 120,
			MaxActionsPerHour:   5000,
			MaxActionsPerDay:    50000,
			MaxSpendPerDay:      1000,
			MaxSpendPerMonth:    20000,
		},
	}
}
