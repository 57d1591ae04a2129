// Package memstore keeps every gateway table in process memory. It backs demo
// mode when no DATABASE_URL is configured and gives handler tests a complete
// store set. State is lost on restart.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/store"
)

// DB bundles one store per table over shared in-memory state.
type DB struct {
	Orgs        *OrganizationStore
	Agents      *AgentStore
	Tokens      *TokenStore
	Limits      *LimitsStore
	Usage       *UsageStore
	DeadLetters *DeadLetterStore
	Calls       *CallLogStore
	Pool        *PoolStore
	DNC         *DNCStore
	Audit       *AuditStore
}

// New returns empty stores with the default organization and an agent pool
// of maxAgents.
func New(maxAgents int) *DB {
	agents := &AgentStore{agents: map[string]*domain.Agent{}}
	return &DB{
		Orgs: &OrganizationStore{orgs: map[string]*domain.Organization{
			domain.DefaultOrgID: {ID: domain.DefaultOrgID, Name: "Default", CreatedAt: time.Now().UTC()},
		}},
		Agents:      agents,
		Tokens:      &TokenStore{tokens: map[string]*domain.Token{}},
		Limits:      &LimitsStore{limits: map[string]domain.SpendingLimits{}},
		Usage:       &UsageStore{},
		DeadLetters: &DeadLetterStore{},
		Calls:       &CallLogStore{},
		Pool:        &PoolStore{pool: domain.AgentPool{ID: domain.DefaultAgentPoolID, MaxAgents: maxAgents}},
		DNC:         &DNCStore{},
		Audit:       &AuditStore{agents: agents},
	}
}

type OrganizationStore struct {
	mu   sync.Mutex
	orgs map[string]*domain.Organization
}

func (s *OrganizationStore) Create(ctx context.Context, o *domain.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[o.ID]; ok {
		return store.ErrConflict
	}
	for _, existing := range s.orgs {
		if o.TokenHash != "" && existing.TokenHash == o.TokenHash {
			return store.ErrConflict
		}
	}
	o.CreatedAt = time.Now().UTC()
	cp := *o
	s.orgs[o.ID] = &cp
	return nil
}

func (s *OrganizationStore) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *OrganizationStore) GetByTokenHash(ctx context.Context, hash string) (*domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orgs {
		if o.TokenHash != "" && o.TokenHash == hash {
			cp := *o
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *OrganizationStore) SetDisclosure(ctx context.Context, id string, disabled bool, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return store.ErrNotFound
	}
	o.DisclosureDisabled = disabled
	if disabled {
		o.DisclosureDisabledAt = &at
		o.DisclosureDisabledBy = &actor
	} else {
		o.DisclosureDisabledAt = nil
		o.DisclosureDisabledBy = nil
	}
	return nil
}

type AgentStore struct {
	mu     sync.Mutex
	agents map[string]*domain.Agent
}

func cloneAgent(a *domain.Agent) *domain.Agent {
	cp := *a
	cp.BlockedChannels = slices.Clone(a.BlockedChannels)
	return &cp
}

func (s *AgentStore) Create(ctx context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; ok {
		return store.ErrConflict
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.agents[a.ID] = cloneAgent(a)
	return nil
}

func (s *AgentStore) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAgent(a), nil
}

func (s *AgentStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.agents[id]
	return ok, nil
}

func (s *AgentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

func (s *AgentStore) SetWhatsApp(ctx context.Context, id string, sender *domain.WhatsAppSender, status domain.WhatsAppStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.WhatsAppStatus = status
	if sender != nil {
		id, number := sender.SenderID, sender.PhoneNumber
		a.WhatsAppSenderID = &id
		a.WhatsAppNumber = &number
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *AgentStore) UpdateSettings(ctx context.Context, id string, st domain.AgentSettings) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if st.DisplayName != nil {
		a.DisplayName = *st.DisplayName
	}
	if st.Language != nil {
		a.Language = *st.Language
	}
	if st.Voice != nil {
		a.Voice = *st.Voice
	}
	if st.Greeting != nil {
		a.Greeting = *st.Greeting
	}
	if st.ReplaceBlocked {
		a.BlockedChannels = slices.Clone(st.BlockedChannels)
	} else {
		for _, c := range st.BlockedChannels {
			if !slices.Contains(a.BlockedChannels, c) {
				a.BlockedChannels = append(a.BlockedChannels, c)
			}
		}
	}
	a.UpdatedAt = time.Now().UTC()
	return cloneAgent(a), nil
}

func (s *AgentStore) UpdateBilling(ctx context.Context, id string, tier domain.BillingTier, markupPercent *float64, billingEmail *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.BillingTier = tier
	if markupPercent != nil {
		v := *markupPercent
		a.MarkupPercent = &v
	}
	if billingEmail != nil {
		v := *billingEmail
		a.BillingEmail = &v
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *AgentStore) MarkDeprovisioned(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok || !a.IsActive() {
		return store.ErrNotFound
	}
	a.Status = domain.AgentStatusDeprovisioned
	a.DeprovisionedAt = &at
	a.PhoneNumber = nil
	a.WhatsAppSenderID = nil
	a.WhatsAppNumber = nil
	a.WhatsAppStatus = domain.WhatsAppInactive
	a.UpdatedAt = at
	return nil
}

// TokenStore keys tokens by hash. Revoked rows are kept, so a revoked hash
// can never be stored again.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.Token
}

func (s *TokenStore) Create(ctx context.Context, t *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.Hash]; ok {
		return store.ErrConflict
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	cp := *t
	s.tokens[t.Hash] = &cp
	return nil
}

func (s *TokenStore) GetByHash(ctx context.Context, hash string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *TokenStore) ListByAgent(ctx context.Context, agentID string) ([]domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Token
	for _, t := range s.tokens {
		if t.AgentID == agentID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *TokenStore) RevokeAllForAgent(ctx context.Context, agentID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tokens {
		if t.AgentID == agentID && t.RevokedAt == nil {
			ts := at
			t.RevokedAt = &ts
			n++
		}
	}
	return n, nil
}

func (s *TokenStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.ID == id {
			ts := at
			t.LastUsedAt = &ts
			return nil
		}
	}
	return store.ErrNotFound
}

type LimitsStore struct {
	mu     sync.Mutex
	limits map[string]domain.SpendingLimits
}

func (s *LimitsStore) Get(ctx context.Context, agentID string) (*domain.SpendingLimits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limits[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (s *LimitsStore) Upsert(ctx context.Context, l *domain.SpendingLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.UpdatedAt = time.Now().UTC()
	s.limits[l.AgentID] = *l
	return nil
}

func (s *LimitsStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.limits[agentID]; !ok {
		return store.ErrNotFound
	}
	delete(s.limits, agentID)
	return nil
}
