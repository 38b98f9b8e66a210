// Package llmrouter dispatches completions across the configured LLM
// providers with ordered fallback and per-provider circuit breaking.
package llmrouter

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
)

// Provider pairs an LLM adapter with its routing attributes.
type Provider struct {
	domain.LLMProvider
	CostPerMillionCents int
	TypicalLatency      time.Duration
	breaker             *Breaker
}

// Router tries providers in strategy order until one succeeds.
type Router struct {
	providers []*Provider
	logger    *zap.Logger
}

// New creates a router. The provider slice order is the default fallback
// priority. threshold/cooldown configure each provider's breaker.
func New(providers []*Provider, threshold int, cooldown time.Duration, logger *zap.Logger) *Router {
	for _, p := range providers {
		p.breaker = NewBreaker(p.Name(), threshold, cooldown)
	}
	return &Router{providers: providers, logger: logger}
}

// Complete tries each provider in order. The first successful completion
// wins; a provider failure moves immediately to the next provider with no
// backoff. When every provider fails, the returned error is a
// *domain.QueryError enumerating each provider's failure reason.
func (r *Router) Complete(
	ctx context.Context, strategy domain.Strategy, preferred, system, prompt string,
) (domain.Completion, string, error) {
	ordered := r.order(strategy, preferred)

	failures := make([]domain.ProviderFailure, 0, len(ordered))
	for _, p := range ordered {
		if !p.breaker.Allow() {
			failures = append(failures, domain.ProviderFailure{
				Provider: p.Name(), Reason: "circuit open",
			})
			continue
		}

		completion, err := p.Complete(ctx, system, prompt)
		if err != nil {
			p.breaker.Record(false)
			r.logger.Warn("provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			failures = append(failures, domain.ProviderFailure{
				Provider: p.Name(), Reason: err.Error(),
			})
			continue
		}

		p.breaker.Record(true)
		return completion, p.Model(), nil
	}

	return domain.Completion{}, "", &domain.QueryError{Failures: failures}
}

// order returns providers sorted by strategy, with the preferred provider
// (when named) moved to the front.
func (r *Router) order(strategy domain.Strategy, preferred string) []*Provider {
	ordered := make([]*Provider, len(r.providers))
	copy(ordered, r.providers)

	switch strategy {
	case domain.StrategyCost:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].CostPerMillionCents < ordered[j].CostPerMillionCents
		})
	case domain.StrategyPerformance:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].TypicalLatency < ordered[j].TypicalLatency
		})
	default:
		// fallback: configured order
	}

	if preferred != "" {
		for i, p := range ordered {
			if p.Name() == preferred {
				ordered = append([]*Provider{p}, append(ordered[:i], ordered[i+1:]...)...)
				break
			}
		}
	}
	return ordered
}
