package usage

import (
	"context"

	"github.com/ragline/ragline/internal/domain"
)

// Repository defines the storage contract for the usage ledger.
type Repository interface {
	Append(ctx context.Context, rec *domain.UsageRecord) error
	Summary(ctx context.Context, userID string) (domain.UsageSummary, error)
}
