package exclusive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still holds our value.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker backed by SET NX PX. The lease expires after ttl
// so a crashed holder cannot wedge the project forever; a live holder
// renews it every ttl/3 until Unlock.
type RedisLocker struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	command string

	// renewEvery is ttl/3 unless a test shortens it.
	renewEvery time.Duration

	mu    sync.Mutex
	value string
	lease *lease
}

// lease tracks the renewal loop of one acquisition.
type lease struct {
	stop chan struct{}
	done chan struct{}
	lost chan struct{}
}

// NewRedisLocker returns a RedisLocker on "stagectl:lock:<key>".
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration, command string) *RedisLocker {
	return &RedisLocker{
		client:     client,
		key:        "stagectl:lock:" + key,
		ttl:        ttl,
		command:    command,
		renewEvery: ttl / 3,
	}
}

// TryLock attempts to acquire the lease with a fresh owner token and starts
// renewing it.
func (rl *RedisLocker) TryLock(ctx context.Context) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.value != "" {
		return false, fmt.Errorf("lock %s already held by this locker", rl.key)
	}
	data, err := json.Marshal(currentOwner(uuid.NewString(), rl.command))
	if err != nil {
		return false, fmt.Errorf("marshal lock owner: %w", err)
	}

	ok, err := rl.client.SetNX(ctx, rl.key, string(data), rl.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire redis lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	rl.value = string(data)
	rl.lease = &lease{
		stop: make(chan struct{}),
		done: make(chan struct{}),
		lost: make(chan struct{}),
	}
	go rl.renew(rl.lease, rl.value)
	return true, nil
}

// renew extends the lease until stopped. A renewal that finds the lease
// gone, or that fails outright, closes l.lost and ends the loop.
func (rl *RedisLocker) renew(l *lease, value string) {
	defer close(l.done)
	if rl.renewEvery <= 0 {
		return
	}
	ticker := time.NewTicker(rl.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), rl.renewEvery)
		n, err := renewScript.Run(ctx, rl.client, []string{rl.key}, value, rl.ttl.Milliseconds()).Int()
		cancel()
		if err != nil || n == 0 {
			close(l.lost)
			return
		}
	}
}

// Lost is closed when the current lease expired or could not be renewed.
// It returns nil while no lease is held.
func (rl *RedisLocker) Lost() <-chan struct{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.lease == nil {
		return nil
	}
	return rl.lease.lost
}

// Unlock stops renewal and releases the lease if this locker still owns it.
func (rl *RedisLocker) Unlock(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.value == "" {
		return nil
	}
	if rl.lease != nil {
		close(rl.lease.stop)
		<-rl.lease.done
		rl.lease = nil
	}
	value := rl.value
	rl.value = ""
	if err := releaseScript.Run(ctx, rl.client, []string{rl.key}, value).Err(); err != nil {
		return fmt.Errorf("release redis lock: %w", err)
	}
	return nil
}

// Holder describes the current lease owner.
func (rl *RedisLocker) Holder(ctx context.Context) (string, error) {
	data, err := rl.client.Get(ctx, rl.key).Bytes()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read redis lock: %w", err)
	}
	return parseOwner(data)
}
