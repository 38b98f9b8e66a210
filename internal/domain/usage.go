package domain

import "time"

// Action names a billable operation.
type Action string

const (
	// ActionUpload is charged when a document is uploaded.
	ActionUpload Action = "upload"
	// ActionProcess is charged when a document is processed.
	ActionProcess Action = "process"
	// ActionQuery is charged per RAG query.
	ActionQuery Action = "query"
)

// ActionCostCents maps each billable action to its cost in integer cents.
var ActionCostCents = map[Action]int{
	ActionUpload:  1,
	ActionProcess: 5,
	ActionQuery:   2,
}

// UsageRecord is one append-only ledger entry. Never mutated after creation.
type UsageRecord struct {
	ID        string
	UserID    string
	Action    Action
	CostCents int
	Metadata  map[string]string
	CreatedAt time.Time
}

// UsageSummary aggregates ledger entries for one user.
type UsageSummary struct {
	TotalCents   int            `json:"total_cents"`
	CountsByType map[Action]int `json:"counts_by_type"`
}
