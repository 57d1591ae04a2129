package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type TokenStore struct {
	db *pgxpool.Pool
}

func NewTokenStore(db *pgxpool.Pool) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Create(ctx context.Context, t *domain.Token) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO agent_tokens (id, agent_id, org_id, token_hash, label)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		t.ID, t.AgentID, t.OrgID, t.Hash, t.Label,
	).Scan(&t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *TokenStore) GetByHash(ctx context.Context, hash string) (*domain.Token, error) {
	t := &domain.Token{}
	err := s.db.QueryRow(ctx,
		`SELECT id, agent_id, org_id, token_hash, label, created_at, last_used_at, revoked_at
		 FROM agent_tokens WHERE token_hash = $1`,
		hash,
	).Scan(&t.ID, &t.AgentID, &t.OrgID, &t.Hash, &t.Label, &t.CreatedAt, &t.LastUsedAt, &t.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TokenStore) ListByAgent(ctx context.Context, agentID string) ([]domain.Token, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, org_id, token_hash, label, created_at, last_used_at, revoked_at
		 FROM agent_tokens WHERE agent_id = $1
		 ORDER BY created_at DESC`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		var t domain.Token
		if err := rows.Scan(&t.ID, &t.AgentID, &t.OrgID, &t.Hash, &t.Label, &t.CreatedAt, &t.LastUsedAt, &t.RevokedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *TokenStore) RevokeAllForAgent(ctx context.Context, agentID string, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE agent_tokens SET revoked_at = $2
		 WHERE agent_id = $1 AND revoked_at IS NULL`,
		agentID, at,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *TokenStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE agent_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}
