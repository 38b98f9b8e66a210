// Package lock provides per-document advisory locks over Redis SET NX.
// A lock is held for the duration of one processing run; a concurrent
// acquisition attempt observes "already held" and backs off. The TTL bounds
// how long a crashed run can block the document.
package lock

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// store is the consumer interface for locks (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// Locker acquires advisory locks keyed by document id.
type Locker struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a locker.
func New(s store, prefix string, ttl time.Duration) *Locker {
	return &Locker{store: s, prefix: prefix, ttl: ttl}
}

// Acquire takes the lock for id. Returns ok=false when another holder owns
// it. The returned release func is safe to call exactly once.
func (l *Locker) Acquire(ctx context.Context, id string) (release func(), ok bool, err error) {
	key := l.prefix + "lock:" + id
	token := uuid.NewString()

	ok, err = l.store.SetNX(ctx, key, []byte(token), l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// Release is best-effort and must only remove our own lock: if the
		// TTL expired mid-run, the key may now belong to a newer holder.
		rctx := context.WithoutCancel(ctx)
		current, err := l.store.Get(rctx, key)
		if err != nil || !bytes.Equal(current, []byte(token)) {
			return
		}
		_ = l.store.Del(rctx, key)
	}
	return release, true, nil
}
