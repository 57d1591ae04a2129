package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/store"
)

// UsageStore is append-only, like the usage_log table.
type UsageStore struct {
	mu      sync.Mutex
	entries []domain.UsageLogEntry
}

func (s *UsageStore) Create(ctx context.Context, e *domain.UsageLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, *e)
	return nil
}

func (s *UsageStore) Totals(ctx context.Context, agentID string, windows ...domain.Window) ([]domain.UsageTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UsageTotals, len(windows))
	for i, w := range windows {
		out[i].Window = w
		for _, e := range s.entries {
			if e.AgentID == agentID && w.Contains(e.CreatedAt) {
				out[i].Actions++
				out[i].Cost += e.ProviderCost
			}
		}
	}
	return out, nil
}

func (s *UsageStore) Summary(ctx context.Context, agentID string, w domain.Window) (*domain.UsageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := &domain.UsageSummary{
		ByActionType:  map[string]int{},
		ByChannel:     map[string]int{},
		CostByChannel: map[string]float64{},
	}
	for _, e := range s.entries {
		if e.AgentID != agentID || !w.Contains(e.CreatedAt) {
			continue
		}
		sum.TotalActions++
		sum.TotalCost += e.ProviderCost
		sum.ByActionType[string(e.ActionType)]++
		sum.ByChannel[string(e.Channel)]++
		sum.CostByChannel[string(e.Channel)] += e.ProviderCost
	}
	return sum, nil
}

type DeadLetterStore struct {
	mu      sync.Mutex
	letters []*domain.DeadLetter
}

func (s *DeadLetterStore) Create(ctx context.Context, d *domain.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = domain.DeadLetterPending
	}
	d.CreatedAt = time.Now().UTC()
	cp := *d
	s.letters = append(s.letters, &cp)
	return nil
}

func (s *DeadLetterStore) ClaimPending(ctx context.Context, agentID string, limit int, at time.Time) ([]domain.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DeadLetter
	for _, d := range s.letters {
		if len(out) == limit {
			break
		}
		if d.AgentID == agentID && d.Status == domain.DeadLetterPending {
			ts := at
			d.Status = domain.DeadLetterAcknowledged
			d.AcknowledgedAt = &ts
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *DeadLetterStore) PurgeAcknowledged(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.letters[:0]
	for _, d := range s.letters {
		if d.Status == domain.DeadLetterAcknowledged && d.AcknowledgedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	s.letters = kept
	return n, nil
}

type CallLogStore struct {
	mu    sync.Mutex
	calls []domain.CallLog
}

func (s *CallLogStore) Create(ctx context.Context, c *domain.CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.calls = append(s.calls, *c)
	return nil
}

func (s *CallLogStore) UpdateStatus(ctx context.Context, agentID, callSID, status string) (*domain.CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.calls {
		if s.calls[i].CallSID == callSID && s.calls[i].AgentID == agentID {
			s.calls[i].Status = status
			c := s.calls[i]
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// Calls returns a copy of every logged call, oldest first.
func (s *CallLogStore) Calls() []domain.CallLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// AuditStore resolves organization filters through the agent table, the same
// join the Postgres store runs.
type AuditStore struct {
	mu      sync.Mutex
	agents  *AgentStore
	entries []domain.AuditLogEntry
}

func (s *AuditStore) Create(ctx context.Context, e *domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *AuditStore) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditLogEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < f.Limit; i-- {
		e := s.entries[i]
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.Target != "" && e.Target != f.Target {
			continue
		}
		if f.Before != nil && !e.CreatedAt.Before(*f.Before) {
			continue
		}
		if f.OrgID != "" && e.Target != f.OrgID {
			a, err := s.agents.GetByID(ctx, e.Target)
			if err != nil || a.OrgID != f.OrgID {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}
