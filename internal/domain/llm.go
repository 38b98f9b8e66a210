package domain

import "context"

// Strategy selects the LLM provider ordering for a query.
type Strategy string

const (
	// StrategyFallback tries providers in the configured priority order.
	StrategyFallback Strategy = "fallback"
	// StrategyCost orders providers cheapest-first.
	StrategyCost Strategy = "cost"
	// StrategyPerformance orders providers fastest-first.
	StrategyPerformance Strategy = "performance"
)

// ParseStrategy validates a strategy string, defaulting to fallback.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategyCost, StrategyPerformance:
		return Strategy(s)
	default:
		return StrategyFallback
	}
}

// Completion is one LLM answer with token accounting.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// LLMProvider produces a completion for an assembled prompt.
type LLMProvider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, system, prompt string) (Completion, error)
}
