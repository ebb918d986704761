package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production C5 backend: one shared Redis instance keyed
// by `stream:{token}` with TTL-based expiry, so sessions never need
// explicit cleanup.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, session *StreamSession, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// Token collisions are effectively impossible (144 bits of entropy) but
	// retried anyway: SetNX only writes if the key is absent.
	for attempt := 0; attempt < 3; attempt++ {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		session.Token = token
		session.CreatedAt = time.Now().UTC()

		data, err := marshal(session)
		if err != nil {
			return "", err
		}
		ok, err := s.client.SetNX(ctx, key(token), data, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
	}
	return "", errors.New("exhausted retries generating a unique session token")
}

func (s *RedisStore) Get(ctx context.Context, token string) (*StreamSession, error) {
	data, err := s.client.Get(ctx, key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshal(data)
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, key(token)).Err()
}
