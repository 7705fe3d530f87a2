package repositories

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/loginpopup/internal/models"
)

// incrementScript adds one failure and sets the window expiry only when the
// counter is created, so later failures never extend the window.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if n == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

var readScript = redis.NewScript(`
local n = redis.call('GET', KEYS[1])
if not n then
	return {0, -2}
end
return {tonumber(n), redis.call('PTTL', KEYS[1])}
`)

// RedisAttemptStore keeps failure counters in Redis with server-side expiry.
type RedisAttemptStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAttemptStore(client redis.UniversalClient, prefix string) *RedisAttemptStore {
	return &RedisAttemptStore{client: client, prefix: prefix + "attempt:"}
}

func (s *RedisAttemptStore) Get(ctx context.Context, key string, now time.Time) (*models.AttemptRecord, error) {
	vals, err := readScript.Run(ctx, s.client, []string{s.prefix + key}).Int64Slice()
	if err != nil {
		return nil, mapRedisError(err)
	}

	count, ttl := vals[0], vals[1]
	if count == 0 || ttl <= 0 {
		return nil, nil
	}

	return &models.AttemptRecord{
		Key:             key,
		Count:           int(count),
		WindowExpiresAt: now.Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}

func (s *RedisAttemptStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (models.AttemptRecord, error) {
	vals, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return models.AttemptRecord{}, mapRedisError(err)
	}

	return models.AttemptRecord{
		Key:             key,
		Count:           int(vals[0]),
		WindowExpiresAt: now.Add(time.Duration(vals[1]) * time.Millisecond),
	}, nil
}

func (s *RedisAttemptStore) Delete(ctx context.Context, key string) error {
	return mapRedisError(s.client.Del(ctx, s.prefix+key).Err())
}
