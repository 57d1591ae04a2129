package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type CallLogStore struct {
	db *pgxpool.Pool
}

func NewCallLogStore(db *pgxpool.Pool) *CallLogStore {
	return &CallLogStore{db: db}
}

func (s *CallLogStore) Create(ctx context.Context, c *domain.CallLog) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO call_logs (call_sid, agent_id, direction, kind, from_number, to_number, status, cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (call_sid) DO UPDATE SET status = EXCLUDED.status, cost = EXCLUDED.cost`,
		c.CallSID, c.AgentID, c.Direction, c.Kind, c.From, c.To, c.Status, c.Cost, c.CreatedAt,
	)
	return err
}

func (s *CallLogStore) UpdateStatus(ctx context.Context, agentID, callSID, status string) (*domain.CallLog, error) {
	var c domain.CallLog
	err := s.db.QueryRow(ctx,
		`UPDATE call_logs SET status = $3
		 WHERE call_sid = $1 AND agent_id = $2
		 RETURNING call_sid, agent_id, direction, kind, from_number, to_number, status, cost, created_at`,
		callSID, agentID, status,
	).Scan(&c.CallSID, &c.AgentID, &c.Direction, &c.Kind, &c.From, &c.To, &c.Status, &c.Cost, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
