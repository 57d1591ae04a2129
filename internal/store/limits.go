package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type LimitsStore struct {
	db *pgxpool.Pool
}

func NewLimitsStore(db *pgxpool.Pool) *LimitsStore {
	return &LimitsStore{db: db}
}

func (s *LimitsStore) Get(ctx context.Context, agentID string) (*domain.SpendingLimits, error) {
	l := &domain.SpendingLimits{}
	err := s.db.QueryRow(ctx,
		`SELECT agent_id, max_actions_per_minute, max_actions_per_hour, max_actions_per_day,
		        max_spend_per_day, max_spend_per_month, updated_at
		 FROM spending_limits WHERE agent_id = $1`,
		agentID,
	).Scan(&l.AgentID, &l.MaxActionsPerMinute, &l.MaxActionsPerHour, &l.MaxActionsPerDay,
		&l.MaxSpendPerDay, &l.MaxSpendPerMonth, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (s *LimitsStore) Upsert(ctx context.Context, l *domain.SpendingLimits) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO spending_limits (agent_id, max_actions_per_minute, max_actions_per_hour, max_actions_per_day,
		   max_spend_per_day, max_spend_per_month, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (agent_id) DO UPDATE SET
		   max_actions_per_minute = EXCLUDED.max_actions_per_minute,
		   max_actions_per_hour = EXCLUDED.max_actions_per_hour,
		   max_actions_per_day = EXCLUDED.max_actions_per_day,
		   max_spend_per_day = EXCLUDED.max_spend_per_day,
		   max_spend_per_month = EXCLUDED.max_spend_per_month,
		   updated_at = now()
		 RETURNING updated_at`,
		l.AgentID, l.MaxActionsPerMinute, l.MaxActionsPerHour, l.MaxActionsPerDay,
		l.MaxSpendPerDay, l.MaxSpendPerMonth,
	).Scan(&l.UpdatedAt)
}

func (s *LimitsStore) Delete(ctx context.Context, agentID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM spending_limits WHERE agent_id = $1`, agentID)
	return err
}
