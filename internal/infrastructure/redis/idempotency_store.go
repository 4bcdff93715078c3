package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "trackstore:idem:"

// Store reserves idempotency keys with SET NX so a replayed request is
// rejected until the TTL expires.
type Store struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{Client: client, TTL: ttl, Prefix: DefaultPrefix}
}

func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (s *Store) TryReserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.Client.SetNX(ctx, s.Prefix+key, "1", s.TTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release drops a reservation so the request can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.Client.Del(ctx, s.Prefix+key).Err()
}
