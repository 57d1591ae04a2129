package store

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type DeadLetterStore struct {
	db *pgxpool.Pool
}

func NewDeadLetterStore(db *pgxpool.Pool) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

func (s *DeadLetterStore) Create(ctx context.Context, d *domain.DeadLetter) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = domain.DeadLetterPending
	}
	payload := d.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	var detail *string
	if d.ErrorDetail != "" {
		detail = &d.ErrorDetail
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO dead_letters (id, agent_id, org_id, channel, direction, reason, payload, error_detail, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		d.ID, d.AgentID, d.OrgID, d.Channel, d.Direction, d.Reason, payload, detail, d.Status,
	).Scan(&d.CreatedAt)
}

func (s *DeadLetterStore) ClaimPending(ctx context.Context, agentID string, limit int, at time.Time) ([]domain.DeadLetter, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE dead_letters SET status = 'acknowledged', acknowledged_at = $3
		 WHERE id IN (
		     SELECT id FROM dead_letters
		     WHERE agent_id = $1 AND status = 'pending'
		     ORDER BY created_at ASC
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 ) AND status = 'pending'
		 RETURNING id, agent_id, org_id, channel, direction, reason, payload, COALESCE(error_detail, ''), status, created_at, acknowledged_at`,
		agentID, limit, at,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeadLetter
	for rows.Next() {
		var d domain.DeadLetter
		if err := rows.Scan(&d.ID, &d.AgentID, &d.OrgID, &d.Channel, &d.Direction, &d.Reason, &d.Payload,
			&d.ErrorDetail, &d.Status, &d.CreatedAt, &d.AcknowledgedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.DeadLetter) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// PurgeAcknowledged deletes entries acknowledged before the cutoff. Pending
// entries are never purged.
func (s *DeadLetterStore) PurgeAcknowledged(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM dead_letters WHERE status = 'acknowledged' AND acknowledged_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
