package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release and extend only touch the key while it still holds our token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLocker implements Locker on a shared Redis instance so that batch jobs
// on different nodes exclude each other.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisLocker creates a locker on client. prefix namespaces every key.
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		tokens: make(map[string]string),
	}
}

func (l *RedisLocker) redisKey(key string) string {
	return l.prefix + key
}

func (l *RedisLocker) token(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tok, ok := l.tokens[key]
	return tok, ok
}

func (l *RedisLocker) forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tokens, key)
}

// Acquire sets key with NX and a PX expiry.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tok := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.redisKey(key), tok, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = tok
	l.mu.Unlock()
	return true, nil
}

// Release deletes key if this locker still owns it.
func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	tok, ok := l.token(key)
	if !ok {
		return false, nil
	}
	defer l.forget(key)

	n, err := releaseScript.Run(ctx, l.client, []string{l.redisKey(key)}, tok).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return n == 1, nil
}

// Extend resets the expiry of a lock this locker owns.
func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tok, ok := l.token(key)
	if !ok {
		return false, nil
	}

	n, err := extendScript.Run(ctx, l.client, []string{l.redisKey(key)}, tok, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", key, err)
	}
	if n != 1 {
		l.forget(key)
		return false, nil
	}
	return true, nil
}

// IsHeld reports whether anyone holds key.
func (l *RedisLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	_, err := l.client.Get(ctx, l.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	return true, nil
}

var _ Locker = (*RedisLocker)(nil)
