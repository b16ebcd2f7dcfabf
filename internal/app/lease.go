package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease гарантирует, что фоновую задачу выполняет только один экземпляр процесса
type Lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// удаляем ключ только если он всё ещё наш
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease аренда на SET NX PX с уникальным токеном владельца
type RedisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewRedisLease(addr, key string, ttl time.Duration) (*RedisLease, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("lease redis addr is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lease ttl must be positive")
	}
	if key == "" {
		key = "marketplace:lease"
	}
	return &RedisLease{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}, nil
}

func (l *RedisLease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return ok, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (l *RedisLease) Close() error {
	return l.client.Close()
}
