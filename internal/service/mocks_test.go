package service

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/switchboard-labs/switchboard/internal/config"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/metrics"
	"github.com/switchboard-labs/switchboard/internal/provider/sandbox"
	"github.com/switchboard-labs/switchboard/internal/saga"
	"github.com/switchboard-labs/switchboard/internal/store"
	"go.uber.org/zap"
)

// faults makes individual store operations fail on demand.
type faults struct {
	mu   sync.Mutex
	errs map[string]error
}

func (f *faults) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = map[string]error{}
	}
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[op]
}

// fakeClock advances by step on every read so successive events are ordered.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t, step: time.Millisecond}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type mockOrgStore struct {
	faults
	mu   sync.Mutex
	orgs map[string]*domain.Organization
}

func newMockOrgStore() *mockOrgStore {
	return &mockOrgStore{orgs: map[string]*domain.Organization{
		domain.DefaultOrgID: {ID: domain.DefaultOrgID, Name: "Default"},
	}}
}

func (m *mockOrgStore) Create(ctx context.Context, o *domain.Organization) error {
	if err := m.check("orgs.Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[o.ID]; ok {
		return store.ErrConflict
	}
	for _, existing := range m.orgs {
		if o.TokenHash != "" && existing.TokenHash == o.TokenHash {
			return store.ErrConflict
		}
	}
	o.CreatedAt = time.Now().UTC()
	cp := *o
	m.orgs[o.ID] = &cp
	return nil
}

func (m *mockOrgStore) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrgStore) GetByTokenHash(ctx context.Context, hash string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.TokenHash != "" && o.TokenHash == hash {
			cp := *o
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockOrgStore) SetDisclosure(ctx context.Context, id string, disabled bool, actor string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
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

type mockAgentStore struct {
	faults
	mu     sync.Mutex
	agents map[string]*domain.Agent
}

func newMockAgentStore() *mockAgentStore {
	return &mockAgentStore{agents: map[string]*domain.Agent{}}
}

func copyAgent(a *domain.Agent) *domain.Agent {
	cp := *a
	cp.BlockedChannels = slices.Clone(a.BlockedChannels)
	return &cp
}

func (m *mockAgentStore) Create(ctx context.Context, a *domain.Agent) error {
	if err := m.check("agents.Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.ID]; ok {
		return store.ErrConflict
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	m.agents[a.ID] = copyAgent(a)
	return nil
}

func (m *mockAgentStore) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyAgent(a), nil
}

func (m *mockAgentStore) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.agents[id]
	return ok, nil
}

func (m *mockAgentStore) Delete(ctx context.Context, id string) error {
	if err := m.check("agents.Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.agents, id)
	return nil
}

func (m *mockAgentStore) SetWhatsApp(ctx context.Context, id string, sender *domain.WhatsAppSender, status domain.WhatsAppStatus) error {
	if err := m.check("agents.SetWhatsApp"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.WhatsAppStatus = status
	if sender != nil {
		a.WhatsAppSenderID = &sender.SenderID
		a.WhatsAppNumber = &sender.PhoneNumber
	}
	return nil
}

func (m *mockAgentStore) UpdateSettings(ctx context.Context, id string, s domain.AgentSettings) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.DisplayName != nil {
		a.DisplayName = *s.DisplayName
	}
	if s.Language != nil {
		a.Language = *s.Language
	}
	if s.Voice != nil {
		a.Voice = *s.Voice
	}
	if s.Greeting != nil {
		a.Greeting = *s.Greeting
	}
	if s.ReplaceBlocked {
		a.BlockedChannels = slices.Clone(s.BlockedChannels)
	} else {
		for _, c := range s.BlockedChannels {
			if !slices.Contains(a.BlockedChannels, c) {
				a.BlockedChannels = append(a.BlockedChannels, c)
			}
		}
	}
	return copyAgent(a), nil
}

func (m *mockAgentStore) UpdateBilling(ctx context.Context, id string, tier domain.BillingTier, markupPercent *float64, billingEmail *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
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
	return nil
}

func (m *mockAgentStore) MarkDeprovisioned(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok || a.Status != domain.AgentStatusActive {
		return store.ErrNotFound
	}
	a.Status = domain.AgentStatusDeprovisioned
	a.DeprovisionedAt = &at
	a.PhoneNumber = nil
	a.WhatsAppSenderID = nil
	a.WhatsAppNumber = nil
	a.WhatsAppStatus = domain.WhatsAppInactive
	return nil
}

func (m *mockAgentStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.agents)
}

type mockTokenStore struct {
	faults
	mu     sync.Mutex
	tokens map[string]*domain.Token
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: map[string]*domain.Token{}}
}

func (m *mockTokenStore) Create(ctx context.Context, t *domain.Token) error {
	if err := m.check("tokens.Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.Hash]; ok {
		return store.ErrConflict
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	cp := *t
	m.tokens[t.Hash] = &cp
	return nil
}

func (m *mockTokenStore) GetByHash(ctx context.Context, hash string) (*domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTokenStore) ListByAgent(ctx context.Context, agentID string) ([]domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Token
	for _, t := range m.tokens {
		if t.AgentID == agentID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockTokenStore) RevokeAllForAgent(ctx context.Context, agentID string, at time.Time) (int64, error) {
	if err := m.check("tokens.RevokeAllForAgent"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.AgentID == agentID && t.RevokedAt == nil {
			ts := at
			t.RevokedAt = &ts
			n++
		}
	}
	return n, nil
}

func (m *mockTokenStore) Touch(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			ts := at
			t.LastUsedAt = &ts
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockTokenStore) live(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.AgentID == agentID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

type mockLimitsStore struct {
	faults
	mu     sync.Mutex
	limits map[string]domain.SpendingLimits
}

func newMockLimitsStore() *mockLimitsStore {
	return &mockLimitsStore{limits: map[string]domain.SpendingLimits{}}
}

func (m *mockLimitsStore) Get(ctx context.Context, agentID string) (*domain.SpendingLimits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limits[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (m *mockLimitsStore) Upsert(ctx context.Context, l *domain.SpendingLimits) error {
	if err := m.check("limits.Upsert"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l.UpdatedAt = time.Now().UTC()
	m.limits[l.AgentID] = *l
	return nil
}

func (m *mockLimitsStore) Delete(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.limits[agentID]; !ok {
		return store.ErrNotFound
	}
	delete(m.limits, agentID)
	return nil
}

func (m *mockLimitsStore) has(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.limits[agentID]
	return ok
}

type mockUsageStore struct {
	faults
	mu      sync.Mutex
	entries []domain.UsageLogEntry
}

func (m *mockUsageStore) Create(ctx context.Context, e *domain.UsageLogEntry) error {
	if err := m.check("usage.Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockUsageStore) Totals(ctx context.Context, agentID string, windows ...domain.Window) ([]domain.UsageTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.UsageTotals, len(windows))
	for i, w := range windows {
		out[i].Window = w
		for _, e := range m.entries {
			if e.AgentID == agentID && w.Contains(e.CreatedAt) {
				out[i].Actions++
				out[i].Cost += e.ProviderCost
			}
		}
	}
	return out, nil
}

func (m *mockUsageStore) Summary(ctx context.Context, agentID string, w domain.Window) (*domain.UsageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.UsageSummary{
		ByActionType:  map[string]int{},
		ByChannel:     map[string]int{},
		CostByChannel: map[string]float64{},
	}
	for _, e := range m.entries {
		if e.AgentID != agentID || !w.Contains(e.CreatedAt) {
			continue
		}
		s.TotalActions++
		s.TotalCost += e.ProviderCost
		s.ByActionType[string(e.ActionType)]++
		s.ByChannel[string(e.Channel)]++
		s.CostByChannel[string(e.Channel)] += e.ProviderCost
	}
	return s, nil
}

func (m *mockUsageStore) add(e domain.UsageLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *mockUsageStore) count(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.AgentID == agentID {
			n++
		}
	}
	return n
}

type mockDeadLetterStore struct {
	faults
	mu      sync.Mutex
	letters []*domain.DeadLetter
}

func (m *mockDeadLetterStore) Create(ctx context.Context, d *domain.DeadLetter) error {
	if err := m.check("deadletters.Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = domain.DeadLetterPending
	}
	d.CreatedAt = time.Now().UTC()
	cp := *d
	m.letters = append(m.letters, &cp)
	return nil
}

func (m *mockDeadLetterStore) ClaimPending(ctx context.Context, agentID string, limit int, at time.Time) ([]domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeadLetter
	for _, d := range m.letters {
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

func (m *mockDeadLetterStore) PurgeAcknowledged(ctx context.Context, before time.Time) (int64, error) {
	if err := m.check("deadletters.PurgeAcknowledged"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.letters[:0]
	for _, d := range m.letters {
		if d.Status == domain.DeadLetterAcknowledged && d.AcknowledgedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	m.letters = kept
	return n, nil
}

func (m *mockDeadLetterStore) all() []domain.DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DeadLetter, len(m.letters))
	for i, d := range m.letters {
		out[i] = *d
	}
	return out
}

type mockCallLogStore struct {
	mu    sync.Mutex
	calls []domain.CallLog
}

func (m *mockCallLogStore) Create(ctx context.Context, c *domain.CallLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *c)
	return nil
}

func (m *mockCallLogStore) UpdateStatus(ctx context.Context, agentID, callSID, status string) (*domain.CallLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.calls {
		if m.calls[i].CallSID == callSID && m.calls[i].AgentID == agentID {
			m.calls[i].Status = status
			c := m.calls[i]
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

type mockPoolStore struct {
	faults
	mu      sync.Mutex
	pool    domain.AgentPool
	senders []*domain.WhatsAppSender
}

func newMockPoolStore(maxAgents, senders int) *mockPoolStore {
	m := &mockPoolStore{pool: domain.AgentPool{ID: domain.DefaultAgentPoolID, MaxAgents: maxAgents}}
	for i := range senders {
		m.senders = append(m.senders, &domain.WhatsAppSender{
			SenderID:    "ws_" + string(rune('a'+i)),
			PhoneNumber: "+1555900000" + string(rune('0'+i)),
			Status:      domain.SenderAvailable,
		})
	}
	return m
}

func (m *mockPoolStore) GetAgentPool(ctx context.Context) (*domain.AgentPool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pool
	return &p, nil
}

func (m *mockPoolStore) IncrementActive(ctx context.Context) (bool, error) {
	if err := m.check("pool.IncrementActive"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool.ActiveAgents >= m.pool.MaxAgents {
		return false, nil
	}
	m.pool.ActiveAgents++
	return true, nil
}

func (m *mockPoolStore) DecrementActive(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool.ActiveAgents = max(m.pool.ActiveAgents-1, 0)
	return nil
}

func (m *mockPoolStore) AssignSender(ctx context.Context, agentID string) (*domain.WhatsAppSender, error) {
	if err := m.check("pool.AssignSender"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.senders {
		if s.Status == domain.SenderAvailable {
			id := agentID
			now := time.Now().UTC()
			s.Status = domain.SenderAssigned
			s.AssignedAgentID = &id
			s.AssignedAt = &now
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockPoolStore) ReleaseSender(ctx context.Context, agentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.senders {
		if s.AssignedAgentID != nil && *s.AssignedAgentID == agentID {
			s.Status = domain.SenderAvailable
			s.AssignedAgentID = nil
			s.AssignedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *mockPoolStore) CountSenders(ctx context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var available, assigned int
	for _, s := range m.senders {
		if s.Status == domain.SenderAvailable {
			available++
		} else {
			assigned++
		}
	}
	return available, assigned, nil
}

func (m *mockPoolStore) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.ActiveAgents
}

type mockDNCStore struct {
	mu      sync.Mutex
	entries []domain.DNCEntry
}

func sameOrg(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *mockDNCStore) Find(ctx context.Context, orgID string, target string, kind domain.ContactKind) (*domain.DNCEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var global *domain.DNCEntry
	for i := range m.entries {
		e := m.entries[i]
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

func (m *mockDNCStore) Add(ctx context.Context, e *domain.DNCEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.Target == e.Target && existing.Kind == e.Kind && sameOrg(existing.OrgID, e.OrgID) {
			return store.ErrConflict
		}
	}
	e.CreatedAt = time.Now().UTC()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockDNCStore) Remove(ctx context.Context, orgID *string, target string, kind domain.ContactKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.Target == target && e.Kind == kind && sameOrg(e.OrgID, orgID) {
			m.entries = slices.Delete(m.entries, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

type mockAuditStore struct {
	faults
	mu      sync.Mutex
	agents  *mockAgentStore
	entries []domain.AuditLogEntry
}

func (m *mockAuditStore) Create(ctx context.Context, e *domain.AuditLogEntry) error {
	if err := m.check("audit.Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockAuditStore) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < f.Limit; i-- {
		e := m.entries[i]
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.Target != "" && e.Target != f.Target {
			continue
		}
		if f.OrgID != "" && e.Target != f.OrgID {
			a, err := m.agents.GetByID(ctx, e.Target)
			if err != nil || a.OrgID != f.OrgID {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockAuditStore) events(eventType string) []domain.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditLogEntry
	for _, e := range m.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// harness wires every service over in-memory stores and sandbox providers.
type harness struct {
	clock       *fakeClock
	orgs        *mockOrgStore
	agents      *mockAgentStore
	tokenStore  *mockTokenStore
	limitsStore *mockLimitsStore
	usage       *mockUsageStore
	deadLetters *mockDeadLetterStore
	calls       *mockCallLogStore
	pool        *mockPoolStore
	dnc         *mockDNCStore
	auditStore  *mockAuditStore
	sandbox     *sandbox.Set
	policy      *config.Policy

	auth         *AuthResolver
	tokens       *TokenManager
	locker       *LocalLocker
	limiter      *Limiter
	compliance   *ComplianceGate
	poolMgr      *PoolManager
	audit        *AuditLogger
	billing      *BillingService
	provisioning *ProvisioningService
	comms        *CommsService
	orgSvc       *OrganizationService
	creds        *CredentialService

	orchestrator *domain.AuthInfo
}

type harnessOptions struct {
	demo      bool
	maxAgents int
	senders   int
	now       time.Time
}

type harnessOption func(*harnessOptions)

func withDemo() harnessOption {
	return func(o *harnessOptions) { o.demo = true }
}

func withPool(maxAgents, senders int) harnessOption {
	return func(o *harnessOptions) { o.maxAgents, o.senders = maxAgents, senders }
}

func withNow(t time.Time) harnessOption {
	return func(o *harnessOptions) { o.now = t }
}

const testOrchestratorToken = "orchestrator-secret"

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	o := harnessOptions{
		maxAgents: 100,
		senders:   2,
		// 14:00 in New York, inside calling hours.
		now: time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := zap.NewNop()
	m := metrics.New(nil)
	h := &harness{
		clock:       newFakeClock(o.now),
		orgs:        newMockOrgStore(),
		agents:      newMockAgentStore(),
		tokenStore:  newMockTokenStore(),
		limitsStore: newMockLimitsStore(),
		usage:       &mockUsageStore{},
		deadLetters: &mockDeadLetterStore{},
		calls:       &mockCallLogStore{},
		pool:        newMockPoolStore(o.maxAgents, o.senders),
		dnc:         &mockDNCStore{},
		sandbox:     sandbox.NewSet(),
		policy:      config.DefaultPolicy(),
	}
	h.auditStore = &mockAuditStore{agents: h.agents}
	clock := Clock(h.clock.Now)

	h.tokens = NewTokenManager(h.tokenStore, logger)
	h.tokens.SetClock(clock)
	h.auth = NewAuthResolver(testOrchestratorToken, o.demo, h.orgs, h.agents, h.tokens, logger)
	h.audit = NewAuditLogger(h.auditStore, nil, h.auth, logger)
	h.locker = NewLocalLocker()
	h.limiter = NewLimiter(h.usage, h.limitsStore, h.locker, h.policy, m, logger)
	h.limiter.SetClock(clock)
	tz := NewTimezoneResolver("America/New_York", logger)
	h.compliance = NewComplianceGate(h.dnc, h.orgs, h.auth, h.audit, h.policy, tz, o.demo, m, logger)
	h.compliance.SetClock(clock)
	providers := h.sandbox.Providers()
	h.poolMgr = NewPoolManager(h.pool, providers.Telephony, "https://hooks.example.com", time.Second, m, logger)
	h.billing = NewBillingService(h.agents, h.usage, h.limiter, h.auth, h.audit, 20, m, logger)
	h.billing.SetClock(clock)
	h.provisioning = NewProvisioningService(h.agents, h.orgs, h.auth, h.tokens, h.poolMgr, h.limiter, h.audit, "agents.example.com", m, logger)
	h.provisioning.SetClock(clock)
	h.provisioning.SetSagaOptions(saga.WithRetries(0, 0), saga.WithTimeout(time.Second))
	h.comms = NewCommsService(h.agents, h.deadLetters, h.calls, h.auth, h.limiter, h.compliance, h.billing, h.audit,
		providers, CommsOptions{ProviderTimeout: time.Second, WebhookBaseURL: "https://hooks.example.com", Demo: o.demo}, m, logger)
	h.comms.SetClock(clock)
	h.orgSvc = NewOrganizationService(h.orgs, h.auth, h.audit, logger)
	h.creds = NewCredentialService(h.auth, h.tokens, h.audit, logger)

	h.orchestrator = &domain.AuthInfo{Tier: domain.TierOrchestrator, Credential: "orchestr…"}
	return h
}

// provision creates an agent as the orchestrator and returns its id and
// token-tier auth.
func (h *harness) provision(t *testing.T, req ProvisionRequest) (*ProvisionResult, *domain.AuthInfo) {
	t.Helper()
	if req.DisplayName == "" {
		req.DisplayName = "Test Bot"
	}
	if !req.CapabilitiesSet {
		req.CapabilitiesSet = true
		req.Capabilities = domain.Capabilities{Phone: true, Email: true}
	}
	res, err := h.provisioning.Provision(context.Background(), h.orchestrator, req)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	auth, err := h.auth.Resolve(context.Background(), res.SecurityToken)
	if err != nil {
		t.Fatalf("resolve provisioned token: %v", err)
	}
	return res, auth
}

func (h *harness) createOrg(t *testing.T, id string) (*domain.AuthInfo, string) {
	t.Helper()
	res, err := h.orgSvc.Create(context.Background(), h.orchestrator, id, strings.ToUpper(id))
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	auth, err := h.auth.Resolve(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("resolve org token: %v", err)
	}
	return auth, res.Token
}
