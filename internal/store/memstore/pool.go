package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/store"
)

type PoolStore struct {
	mu      sync.Mutex
	pool    domain.AgentPool
	senders []*domain.WhatsAppSender
}

func (s *PoolStore) GetAgentPool(ctx context.Context) (*domain.AgentPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool
	return &p, nil
}

func (s *PoolStore) IncrementActive(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pool.HasCapacity() {
		return false, nil
	}
	s.pool.ActiveAgents++
	return true, nil
}

func (s *PoolStore) DecrementActive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.ActiveAgents = max(s.pool.ActiveAgents-1, 0)
	return nil
}

func (s *PoolStore) AssignSender(ctx context.Context, agentID string) (*domain.WhatsAppSender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.senders {
		if w.Status != domain.SenderAvailable {
			continue
		}
		id, now := agentID, time.Now().UTC()
		w.Status = domain.SenderAssigned
		w.AssignedAgentID = &id
		w.AssignedAt = &now
		cp := *w
		return &cp, nil
	}
	return nil, nil
}

func (s *PoolStore) ReleaseSender(ctx context.Context, agentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, w := range s.senders {
		if w.AssignedAgentID != nil && *w.AssignedAgentID == agentID {
			w.Status = domain.SenderAvailable
			w.AssignedAgentID = nil
			w.AssignedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *PoolStore) CountSenders(ctx context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var available, assigned int
	for _, w := range s.senders {
		if w.Status == domain.SenderAvailable {
			available++
		} else {
			assigned++
		}
	}
	return available, assigned, nil
}

// AddSender registers an available WhatsApp sender.
func (s *PoolStore) AddSender(ctx context.Context, senderID, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.senders, func(w *domain.WhatsAppSender) bool { return w.SenderID == senderID }) {
		return store.ErrConflict
	}
	s.senders = append(s.senders, &domain.WhatsAppSender{
		SenderID:    senderID,
		PhoneNumber: phoneNumber,
		Status:      domain.SenderAvailable,
	})
	return nil
}

func (s *PoolStore) SetCapacity(ctx context.Context, maxAgents int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.MaxAgents = maxAgents
	return nil
}

type DNCStore struct {
	mu      sync.Mutex
	entries []domain.DNCEntry
}

func sameOrg(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Find prefers an organization entry over a platform-wide one.
func (s *DNCStore) Find(ctx context.Context, orgID string, target string, kind domain.ContactKind) (*domain.DNCEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var global *domain.DNCEntry
	for i := range s.entries {
		e := s.entries[i]
		if e.Target != target || e.Kind != kind {
			continue
		}
		if e.OrgID != nil && *e.OrgID == orgID {
			return &e, nil
		}
		if e.OrgID == nil {
			global = &e
		}
	}
	return global, nil
}

func (s *DNCStore) Add(ctx context.Context, e *domain.DNCEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.Target == e.Target && existing.Kind == e.Kind && sameOrg(existing.OrgID, e.OrgID) {
			return store.ErrConflict
		}
	}
	e.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *DNCStore) Remove(ctx context.Context, orgID *string, target string, kind domain.ContactKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.Target == target && e.Kind == kind && sameOrg(e.OrgID, orgID) {
			s.entries = slices.Delete(s.entries, i, i+1)
			return true, nil
		}
	}
	return false, nil
}
