package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type OrganizationStore struct {
	db *pgxpool.Pool
}

func NewOrganizationStore(db *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{db: db}
}

func (s *OrganizationStore) Create(ctx context.Context, o *domain.Organization) error {
	var hash *string
	if o.TokenHash != "" {
		hash = &o.TokenHash
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO organizations (id, name, token_hash) VALUES ($1, $2, $3)
		 RETURNING created_at`,
		o.ID, o.Name, hash,
	).Scan(&o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *OrganizationStore) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return s.getOne(ctx, `WHERE id = $1`, id)
}

func (s *OrganizationStore) GetByTokenHash(ctx context.Context, hash string) (*domain.Organization, error) {
	return s.getOne(ctx, `WHERE token_hash = $1`, hash)
}

func (s *OrganizationStore) getOne(ctx context.Context, where string, arg string) (*domain.Organization, error) {
	o := &domain.Organization{}
	var hash *string
	err := s.db.QueryRow(ctx,
		`SELECT id, name, token_hash, disclosure_disabled, disclosure_disabled_at, disclosure_disabled_by, created_at
		 FROM organizations `+where,
		arg,
	).Scan(&o.ID, &o.Name, &hash, &o.DisclosureDisabled, &o.DisclosureDisabledAt, &o.DisclosureDisabledBy, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if hash != nil {
		o.TokenHash = *hash
	}
	return o, nil
}

// SetDisclosure records who turned the disclosure requirement off and when.
// Re-enabling clears both.
func (s *OrganizationStore) SetDisclosure(ctx context.Context, id string, disabled bool, actor string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE organizations SET
		   disclosure_disabled = $2,
		   disclosure_disabled_at = CASE WHEN $2 THEN $3::timestamptz END,
		   disclosure_disabled_by = CASE WHEN $2 THEN $4::text END
		 WHERE id = $1`,
		id, disabled, at, actor,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
