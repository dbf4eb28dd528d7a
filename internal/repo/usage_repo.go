package repo

import (
	"context"
	"database/sql"

	"github.com/flockhq/flock/internal/model"
)

type UsageRepo struct {
	db *sql.DB
}

func NewUsageRepo(db *sql.DB) *UsageRepo {
	return &UsageRepo{db: db}
}

// Increment adds to the daily aggregate, creating the row on first use of
// the day. Date is YYYY-MM-DD in UTC.
func (r *UsageRepo) Increment(ctx context.Context, orgID, date string, tokens, calls int64, cost float64) error {
	const query = `
		INSERT INTO embedding_usage (org_id, usage_date, tokens_used, api_calls, estimated_cost)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, usage_date) DO UPDATE SET
			tokens_used = embedding_usage.tokens_used + EXCLUDED.tokens_used,
			api_calls = embedding_usage.api_calls + EXCLUDED.api_calls,
			estimated_cost = embedding_usage.estimated_cost + EXCLUDED.estimated_cost
	`
	_, err := r.db.ExecContext(ctx, query, orgID, date, tokens, calls, cost)
	return err
}

// MonthTotals rolls up usage for the month identified by its YYYY-MM prefix.
func (r *UsageRepo) MonthTotals(ctx context.Context, orgID, monthPrefix string) (*model.UsageCounter, error) {
	const query = `
		SELECT COALESCE(SUM(tokens_used), 0), COALESCE(SUM(api_calls), 0), COALESCE(SUM(estimated_cost), 0)
		FROM embedding_usage
		WHERE org_id = $1 AND usage_date LIKE $2
	`
	total := &model.UsageCounter{OrgID: orgID, Date: monthPrefix}
	if err := r.db.QueryRowContext(ctx, query, orgID, monthPrefix+"%").Scan(
		&total.TokensUsed, &total.APICalls, &total.EstimatedCost,
	); err != nil {
		return nil, err
	}
	return total, nil
}
