package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type DNCStore struct {
	db *pgxpool.Pool
}

func NewDNCStore(db *pgxpool.Pool) *DNCStore {
	return &DNCStore{db: db}
}

// Find prefers an org-level entry over a global one.
func (s *DNCStore) Find(ctx context.Context, orgID string, target string, kind domain.ContactKind) (*domain.DNCEntry, error) {
	e := &domain.DNCEntry{}
	err := s.db.QueryRow(ctx,
		`SELECT target, kind, org_id, reason, created_at
		 FROM dnc_list
		 WHERE target = $1 AND kind = $2 AND (org_id IS NULL OR org_id = $3)
		 ORDER BY org_id NULLS LAST
		 LIMIT 1`,
		target, kind, orgID,
	).Scan(&e.Target, &e.Kind, &e.OrgID, &e.Reason, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (s *DNCStore) Add(ctx context.Context, e *domain.DNCEntry) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO dnc_list (target, kind, org_id, reason) VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		e.Target, e.Kind, e.OrgID, e.Reason,
	).Scan(&e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *DNCStore) Remove(ctx context.Context, orgID *string, target string, kind domain.ContactKind) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM dnc_list
		 WHERE target = $1 AND kind = $2 AND org_id IS NOT DISTINCT FROM $3`,
		target, kind, orgID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
