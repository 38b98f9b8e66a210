// Package usage persists the append-only usage ledger.
package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ragline/ragline/internal/domain"
)

// Repo implements the usage ledger over database/sql.
type Repo struct {
	db *sql.DB
}

// New creates a usage repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Append inserts a ledger entry. Entries are never mutated.
func (r *Repo) Append(ctx context.Context, rec *domain.UsageRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, user_id, action, cost_cents, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(rec.Action), rec.CostCents, string(meta), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary aggregates a user's ledger into total cost and per-action counts.
func (r *Repo) Summary(ctx context.Context, userID string) (domain.UsageSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT action, COUNT(*), COALESCE(SUM(cost_cents), 0)
		FROM usage_records WHERE user_id = ?
		GROUP BY action`, userID)
	if err != nil {
		return domain.UsageSummary{}, fmt.Errorf("summarize usage: %w", err)
	}
	defer rows.Close()

	summary := domain.UsageSummary{CountsByType: make(map[domain.Action]int)}
	for rows.Next() {
		var (
			action string
			count  int
			cents  int
		)
		if err := rows.Scan(&action, &count, &cents); err != nil {
			return domain.UsageSummary{}, fmt.Errorf("scan usage row: %w", err)
		}
		summary.CountsByType[domain.Action(action)] = count
		summary.TotalCents += cents
	}
	if err := rows.Err(); err != nil {
		return domain.UsageSummary{}, fmt.Errorf("summarize usage: %w", err)
	}
	return summary, nil
}
