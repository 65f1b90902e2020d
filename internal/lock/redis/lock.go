// Package redis implements the distributed lock as a single Redis key
// written with SET NX PX. Acquisition polls until the wait deadline; the
// hold timeout becomes the key's TTL, giving crash-safe auto-release.
package redis

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bidwire/auction/internal/lock"
)

// retryBase is the pause between acquisition attempts; a jitter of up to the
// same amount is added so contending replicas do not retry in lockstep.
const retryBase = 25 * time.Millisecond

// releaseScript deletes the key only while this holder's token is still in
// place. Compare-and-delete must be atomic: between a GET and a DEL the key
// could expire and be re-acquired by someone else.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker implements lock.Locker on Redis.
type Locker struct {
	client goredis.UniversalClient
}

var _ lock.Locker = (*Locker)(nil)

// New wraps an existing Redis client.
func New(client goredis.UniversalClient) *Locker {
	return &Locker{client: client}
}

type handle struct {
	client goredis.UniversalClient
	key    string
	token  string
}

// Acquire tries to take the lock until wait elapses. The hold duration is
// the TTL written with the key.
func (l *Locker) Acquire(ctx context.Context, key string, wait, hold time.Duration) (lock.Handle, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, hold).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if ok {
			return &handle{client: l.client, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, lock.ErrNotAcquired
		}

		pause := retryBase + time.Duration(rand.Int63n(int64(retryBase)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
	}
}

func (h *handle) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", h.key, err)
	}
	return nil
}
