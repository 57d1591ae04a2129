package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type PoolStore struct {
	db *pgxpool.Pool
}

func NewPoolStore(db *pgxpool.Pool) *PoolStore {
	return &PoolStore{db: db}
}

func (s *PoolStore) GetAgentPool(ctx context.Context) (*domain.AgentPool, error) {
	p := &domain.AgentPool{}
	err := s.db.QueryRow(ctx,
		`SELECT id, active_agents, max_agents FROM agent_pool WHERE id = $1`,
		domain.DefaultAgentPoolID,
	).Scan(&p.ID, &p.ActiveAgents, &p.MaxAgents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *PoolStore) IncrementActive(ctx context.Context) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE agent_pool SET active_agents = active_agents + 1
		 WHERE id = $1 AND active_agents < max_agents`,
		domain.DefaultAgentPoolID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PoolStore) DecrementActive(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`UPDATE agent_pool SET active_agents = GREATEST(active_agents - 1, 0) WHERE id = $1`,
		domain.DefaultAgentPoolID,
	)
	return err
}

// AssignSender leases one available sender to the agent. Concurrent callers
// never receive the same sender.
func (s *PoolStore) AssignSender(ctx context.Context, agentID string) (*domain.WhatsAppSender, error) {
	w := &domain.WhatsAppSender{}
	err := s.db.QueryRow(ctx,
		`UPDATE whatsapp_senders SET status = 'assigned', assigned_agent_id = $1, assigned_at = now()
		 WHERE sender_id = (
		   SELECT sender_id FROM whatsapp_senders
		   WHERE status = 'available'
		   ORDER BY created_at
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING sender_id, phone_number, status, assigned_agent_id, assigned_at`,
		agentID,
	).Scan(&w.SenderID, &w.PhoneNumber, &w.Status, &w.AssignedAgentID, &w.AssignedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

func (s *PoolStore) ReleaseSender(ctx context.Context, agentID string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE whatsapp_senders SET status = 'available', assigned_agent_id = NULL, assigned_at = NULL
		 WHERE assigned_agent_id = $1`,
		agentID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PoolStore) CountSenders(ctx context.Context) (int, int, error) {
	var available, assigned int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE status = 'available'), COUNT(*) FILTER (WHERE status = 'assigned')
		 FROM whatsapp_senders`,
	).Scan(&available, &assigned)
	return available, assigned, err
}

// AddSender registers a sender identity. Used by the seed script.
func (s *PoolStore) AddSender(ctx context.Context, senderID, phoneNumber string) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO whatsapp_senders (sender_id, phone_number) VALUES ($1, $2)
		 ON CONFLICT (sender_id) DO NOTHING`,
		senderID, phoneNumber,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PoolStore) SetCapacity(ctx context.Context, maxAgents int) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO agent_pool (id, max_agents) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET max_agents = EXCLUDED.max_agents`,
		domain.DefaultAgentPoolID, maxAgents,
	)
	return err
}
