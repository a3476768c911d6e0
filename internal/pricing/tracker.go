package pricing

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const seqKeyPrefix = "pricing:seq:"

// Tracker hands out monotonically increasing tickets per cart so that only
// the most recently issued computation may publish its result. With a Redis
// client the counters are shared across instances; without one they live in
// process memory.
type Tracker struct {
	R   *redis.Client
	TTL time.Duration

	mu    sync.Mutex
	local map[string]uint64
}

// Begin issues the next ticket for key.
func (t *Tracker) Begin(ctx context.Context, key string) (uint64, error) {
	if t.R == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			t.local = make(map[string]uint64)
		}
		t.local[key]++
		return t.local[key], nil
	}
	pipe := t.R.TxPipeline()
	incr := pipe.Incr(ctx, seqKeyPrefix+key)
	pipe.Expire(ctx, seqKeyPrefix+key, t.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Latest reports whether seq is still the newest ticket for key. Lookup
// failures count as stale so an unverifiable result is never published.
func (t *Tracker) Latest(ctx context.Context, key string, seq uint64) bool {
	if t.R == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.local[key] == seq
	}
	raw, err := t.R.Get(ctx, seqKeyPrefix+key).Result()
	if err != nil {
		return errors.Is(err, redis.Nil) && seq == 0
	}
	current, err := strconv.ParseUint(raw, 10, 64)
	return err == nil && current == seq
}

// Forget drops the counter for key.
func (t *Tracker) Forget(ctx context.Context, key string) {
	if t.R == nil {
		t.mu.Lock()
		delete(t.local, key)
		t.mu.Unlock()
		return
	}
	_ = t.R.Del(ctx, seqKeyPrefix+key).Err()
}

func (t *Tracker) ttl() time.Duration {
	if t.TTL <= 0 {
		return 24 * time.Hour
	}
	return t.TTL
}
