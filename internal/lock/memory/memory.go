// Package memory provides an in-process Locker for tests. It honors the
// same contract as the Redis implementation: bounded wait, expiry after the
// hold duration, and release only by the current holder.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bidwire/auction/internal/lock"
)

const retryInterval = 2 * time.Millisecond

type entry struct {
	token     string
	expiresAt time.Time
}

// Locker implements lock.Locker with a mutex-guarded map.
type Locker struct {
	mu    sync.Mutex
	locks map[string]entry
}

var _ lock.Locker = (*Locker)(nil)

// New creates an empty in-memory locker.
func New() *Locker {
	return &Locker{locks: make(map[string]entry)}
}

func (l *Locker) Acquire(ctx context.Context, key string, wait, hold time.Duration) (lock.Handle, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		if l.tryAcquire(key, token, hold) {
			return &handle{locker: l, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, lock.ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (l *Locker) tryAcquire(key, token string, hold time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if cur, ok := l.locks[key]; ok && now.Before(cur.expiresAt) {
		return false
	}
	l.locks[key] = entry{token: token, expiresAt: now.Add(hold)}
	return true
}

type handle struct {
	locker *Locker
	key    string
	token  string
}

func (h *handle) Release(_ context.Context) error {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	if cur, ok := h.locker.locks[h.key]; ok && cur.token == h.token {
		delete(h.locker.locks, h.key)
	}
	return nil
}
