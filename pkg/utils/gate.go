package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes KEYS[1] only while it still holds ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// LeaseGate allows one holder per key across processes. A lease expires after
// its TTL, so a crashed holder frees the key on its own.
type LeaseGate struct {
	rdb *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

func NewLeaseGate(rdb *redis.Client) *LeaseGate {
	return &LeaseGate{rdb: rdb, tokens: make(map[string]string)}
}

func (g *LeaseGate) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.rdb == nil {
		return false, errors.New("lease gate: redis client is nil")
	}
	if key == "" || ttl <= 0 {
		return false, errors.New("lease gate: key and positive ttl are required")
	}
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	return true, nil
}

// Release is a no-op for keys this gate does not hold.
func (g *LeaseGate) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	if g.rdb == nil {
		return errors.New("lease gate: redis client is nil")
	}
	return releaseIfOwner.Run(ctx, g.rdb, []string{key}, token).Err()
}
