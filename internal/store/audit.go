package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type AuditStore struct {
	db *pgxpool.Pool
}

func NewAuditStore(db *pgxpool.Pool) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Create(ctx context.Context, e *domain.AuditLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	details := e.Details
	if len(details) == 0 {
		details = []byte(`{}`)
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO audit_log (id, event_type, actor, target, details)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		e.ID, e.EventType, e.Actor, e.Target, details,
	).Scan(&e.CreatedAt)
}

func (s *AuditStore) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.EventType != "" {
		add("a.event_type = $%d", f.EventType)
	}
	if f.Target != "" {
		add("a.target = $%d", f.Target)
	}
	if f.OrgID != "" {
		args = append(args, f.OrgID)
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(a.target = $%d OR a.target IN (SELECT agent_id FROM agent_channels WHERE org_id = $%d))", n, n))
	}
	if f.Before != nil {
		add("a.created_at < $%d", *f.Before)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := `SELECT a.id, a.event_type, a.actor, a.target, a.details, a.created_at FROM audit_log a`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.Actor, &e.Target, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
