// Package usage records billable actions in the append-only ledger.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
)

// Service writes and aggregates usage records.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New creates a usage service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends one ledger entry for a billable action. Recording failures
// are logged and swallowed: usage tracking must never abort the primary
// operation it is attached to.
func (s *Service) Record(ctx context.Context, userID string, action domain.Action, metadata map[string]string) {
	rec := &domain.UsageRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		CostCents: domain.ActionCostCents[action],
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		s.logger.Warn("failed to record usage",
			zap.String("user_id", userID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

// Summary aggregates a user's ledger.
func (s *Service) Summary(ctx context.Context, userID string) (domain.UsageSummary, error) {
	return s.repo.Summary(ctx, userID)
}
