package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNonceStore keeps hashed nonces in Redis; expiry is enforced by the server TTL.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisNonceStore(client redis.UniversalClient, prefix string) *RedisNonceStore {
	return &RedisNonceStore{client: client, prefix: prefix + "nonce:"}
}

func (s *RedisNonceStore) Save(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return mapRedisError(s.client.Set(ctx, s.prefix+tokenHash, 1, ttl).Err())
}

// Consume uses GETDEL so only one caller can observe the nonce.
func (s *RedisNonceStore) Consume(ctx context.Context, tokenHash string, _ time.Time) (bool, error) {
	err := s.client.GetDel(ctx, s.prefix+tokenHash).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, mapRedisError(err)
	}
	return true, nil
}
