package service

import (
	"context"
	"errors"
	"time"

	"github.com/switchboard-labs/switchboard/internal/metrics"
)

var (
	ErrAgentNotFound         = errors.New("agent not found")
	ErrAgentExists           = errors.New("agent with this agentId already exists")
	ErrAgentDeprovisioned    = errors.New("agent is already deprovisioned")
	ErrAgentInactive         = errors.New("agent is not active")
	ErrPoolExhausted         = errors.New("agent pool is at capacity")
	ErrTokenNotFound         = errors.New("token not found")
	ErrChannelNotProvisioned = errors.New("channel is not provisioned for this agent")
	ErrChannelBlocked        = errors.New("channel is blocked for this agent")
	ErrOrganizationNotFound  = errors.New("organization not found")
	ErrOrganizationExists    = errors.New("organization already exists")
	ErrDNCNotFound           = errors.New("do-not-contact entry not found")
	ErrDNCExists             = errors.New("do-not-contact entry already exists")
	ErrCallNotFound          = errors.New("call not found")
)

// Clock returns the current time. Services take one so tests can pin windows.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// callProvider bounds a provider call by timeout and records its outcome.
func callProvider[T any](ctx context.Context, timeout time.Duration, m *metrics.Metrics, capability string, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := fn(ctx)
	m.ProviderCall(capability, err, time.Since(start))
	return out, err
}
