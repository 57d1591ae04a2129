package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/switchboard-labs/switchboard/internal/domain"
)

type UsageStore struct {
	db *pgxpool.Pool
}

func NewUsageStore(db *pgxpool.Pool) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) Create(ctx context.Context, e *domain.UsageLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var externalID *string
	if e.ExternalID != "" {
		externalID = &e.ExternalID
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO usage_logs (id, agent_id, action_type, channel, target, provider_cost, external_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AgentID, e.ActionType, e.Channel, e.Target, e.ProviderCost, externalID, e.CreatedAt,
	)
	return err
}

// Totals counts actions and sums cost for every window with one scan over the
// agent's rows from the earliest window start.
func (s *UsageStore) Totals(ctx context.Context, agentID string, windows ...domain.Window) ([]domain.UsageTotals, error) {
	if len(windows) == 0 {
		return nil, nil
	}

	args := []any{agentID}
	earliest := windows[0].Start
	var cols []string
	for _, w := range windows {
		if w.Start.Before(earliest) {
			earliest = w.Start
		}
		args = append(args, w.Start, w.End)
		lo, hi := len(args)-1, len(args)
		filter := fmt.Sprintf("FILTER (WHERE created_at >= $%d AND created_at < $%d)", lo, hi)
		cols = append(cols,
			"COUNT(*) "+filter,
			"COALESCE(SUM(provider_cost) "+filter+", 0)::float8",
		)
	}
	args = append(args, earliest)

	query := fmt.Sprintf(
		`SELECT %s FROM usage_logs WHERE agent_id = $1 AND created_at >= $%d`,
		strings.Join(cols, ", "), len(args),
	)

	counts := make([]int64, len(windows))
	costs := make([]float64, len(windows))
	dest := make([]any, 0, 2*len(windows))
	for i := range windows {
		dest = append(dest, &counts[i], &costs[i])
	}
	if err := s.db.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		return nil, err
	}

	totals := make([]domain.UsageTotals, len(windows))
	for i, w := range windows {
		totals[i] = domain.UsageTotals{Window: w, Actions: int(counts[i]), Cost: costs[i]}
	}
	return totals, nil
}

func (s *UsageStore) Summary(ctx context.Context, agentID string, w domain.Window) (*domain.UsageSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT action_type, channel, COUNT(*), COALESCE(SUM(provider_cost), 0)::float8
		 FROM usage_logs
		 WHERE agent_id = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY action_type, channel`,
		agentID, w.Start, w.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sum := &domain.UsageSummary{
		ByActionType:  map[string]int{},
		ByChannel:     map[string]int{},
		CostByChannel: map[string]float64{},
	}
	for rows.Next() {
		var action, channel string
		var count int64
		var cost float64
		if err := rows.Scan(&action, &channel, &count, &cost); err != nil {
			return nil, err
		}
		sum.TotalActions += int(count)
		sum.TotalCost += cost
		sum.ByActionType[action] += int(count)
		sum.ByChannel[channel] += int(count)
		sum.CostByChannel[channel] += cost
	}
	return sum, rows.Err()
}
