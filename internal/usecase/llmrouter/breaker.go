package llmrouter

import (
	"sync"
	"time"

	"github.com/ragline/ragline/internal/metrics"
)

// breakerState is the circuit breaker state machine.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a per-provider circuit breaker: it opens after N consecutive
// failures and admits a single trial call after the cooldown, so a provider
// known to be down does not cost full timeout latency on every query.
type Breaker struct {
	mu        sync.Mutex
	provider  string
	threshold int
	cooldown  time.Duration

	state    breakerState
	failures int
	openedAt time.Time
	now      func() time.Time // injectable for tests
}

// NewBreaker creates a breaker for one provider.
func NewBreaker(provider string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		provider:  provider,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it admits one
// half-open trial once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateHalfOpen:
		// one trial already in flight
		return false
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = stateHalfOpen
			return true
		}
		return false
	}
	return true
}

// Record reports the outcome of a call admitted by Allow.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.state = stateClosed
		b.failures = 0
		metrics.BreakerState.WithLabelValues(b.provider).Set(0)
		return
	}

	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		b.state = stateOpen
		b.openedAt = b.now()
		metrics.BreakerState.WithLabelValues(b.provider).Set(1)
	}
}
