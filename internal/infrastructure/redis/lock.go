package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Lua script for lock acquisition; the current owner refreshes its TTL
	acquireLockScript = redis.NewScript(`
		local owner = redis.call("get", KEYS[1])
		if owner == ARGV[1] then
			redis.call("pexpire", KEYS[1], ARGV[2])
			return 1
		end
		if owner then
			return 0
		end
		redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
		return 1
	`)

	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
)

// ErrLockNotHeld is returned when releasing a lock owned by someone else.
var ErrLockNotHeld = errors.New("lock not held or already released")

// Lock is a TTL-bounded Redis lock. The relay takes it for the length of one
// cycle so only one instance drains the outbox at a time.
type Lock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration

	mu       sync.Mutex
	acquired bool
}

// NewLock creates a lock on key. owner defaults to a random id.
func NewLock(client *redis.Client, key, owner string, ttl time.Duration) *Lock {
	if owner == "" {
		owner = uuid.NewString()
	} else {
		owner = owner + ":" + uuid.NewString()
	}
	return &Lock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		owner:  owner,
		ttl:    ttl,
	}
}

// Acquire takes the lock or refreshes it if this instance already holds it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	res, err := acquireLockScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.mu.Lock()
	l.acquired = res == 1
	l.mu.Unlock()
	return res == 1, nil
}

// Release releases the lock
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.acquired {
		return nil
	}

	res, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.owner).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.acquired = false
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// IsAcquired returns whether the lock is acquired
func (l *Lock) IsAcquired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}
