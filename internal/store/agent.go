package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type AgentStore struct {
	db *pgxpool.Pool
}

func NewAgentStore(db *pgxpool.Pool) *AgentStore {
	return &AgentStore{db: db}
}

const agentColumns = `agent_id, display_name, org_id, phone_number, whatsapp_sender_id, whatsapp_number,
	whatsapp_status, email_address, language, voice, greeting, voice_ai, status, blocked_channels,
	billing_tier, markup_percent, billing_email, created_at, updated_at, deprovisioned_at`

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	a := &domain.Agent{}
	err := row.Scan(&a.ID, &a.DisplayName, &a.OrgID, &a.PhoneNumber, &a.WhatsAppSenderID, &a.WhatsAppNumber,
		&a.WhatsAppStatus, &a.EmailAddress, &a.Language, &a.Voice, &a.Greeting, &a.VoiceAI, &a.Status, &a.BlockedChannels,
		&a.BillingTier, &a.MarkupPercent, &a.BillingEmail, &a.CreatedAt, &a.UpdatedAt, &a.DeprovisionedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AgentStore) Create(ctx context.Context, a *domain.Agent) error {
	if a.BlockedChannels == nil {
		a.BlockedChannels = []string{}
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO agent_channels (agent_id, display_name, org_id, phone_number, whatsapp_status, email_address,
		   language, voice, greeting, voice_ai, status, blocked_channels, billing_tier)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`,
		a.ID, a.DisplayName, a.OrgID, a.PhoneNumber, a.WhatsAppStatus, a.EmailAddress,
		a.Language, a.Voice, a.Greeting, a.VoiceAI, a.Status, a.BlockedChannels, a.BillingTier,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *AgentStore) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	return scanAgent(s.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agent_channels WHERE agent_id = $1`, id))
}

func (s *AgentStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agent_channels WHERE agent_id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

func (s *AgentStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM agent_channels WHERE agent_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *AgentStore) SetWhatsApp(ctx context.Context, id string, sender *domain.WhatsAppSender, status domain.WhatsAppStatus) error {
	var senderID, number *string
	if sender != nil {
		senderID, number = &sender.SenderID, &sender.PhoneNumber
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE agent_channels
		 SET whatsapp_sender_id = $2, whatsapp_number = $3, whatsapp_status = $4, updated_at = now()
		 WHERE agent_id = $1`,
		id, senderID, number, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSettings applies a partial update. Blocked channels are merged into
// the existing set unless ReplaceBlocked is set.
func (s *AgentStore) UpdateSettings(ctx context.Context, id string, st domain.AgentSettings) (*domain.Agent, error) {
	var blocked []string
	if st.BlockedChannels != nil {
		blocked = st.BlockedChannels
	}
	return scanAgent(s.db.QueryRow(ctx,
		`UPDATE agent_channels SET
		   display_name = COALESCE($2, display_name),
		   language = COALESCE($3, language),
		   voice = COALESCE($4, voice),
		   greeting = COALESCE($5, greeting),
		   blocked_channels = CASE
		     WHEN $6::text[] IS NULL THEN blocked_channels
		     WHEN $7 THEN $6::text[]
		     ELSE ARRAY(SELECT DISTINCT unnest(blocked_channels || $6::text[]))
		   END,
		   updated_at = now()
		 WHERE agent_id = $1
		 RETURNING `+agentColumns,
		id, st.DisplayName, st.Language, st.Voice, st.Greeting, blocked, st.ReplaceBlocked,
	))
}

func (s *AgentStore) UpdateBilling(ctx context.Context, id string, tier domain.BillingTier, markupPercent *float64, billingEmail *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE agent_channels SET
		   billing_tier = $2,
		   markup_percent = COALESCE($3, markup_percent),
		   billing_email = COALESCE($4, billing_email),
		   updated_at = now()
		 WHERE agent_id = $1`,
		id, tier, markupPercent, billingEmail,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeprovisioned flips the status and clears leased channel resources.
func (s *AgentStore) MarkDeprovisioned(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE agent_channels SET
		   status = 'deprovisioned',
		   phone_number = NULL,
		   whatsapp_sender_id = NULL,
		   whatsapp_number = NULL,
		   whatsapp_status = 'inactive',
		   deprovisioned_at = $2,
		   updated_at = $2
		 WHERE agent_id = $1 AND status = 'active'`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
