package checkpoint

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/whois-cat/ETL/pkg/models"
)

// HashClient is the part of the Redis client the store needs.
type HashClient interface {
	HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error)
	HSet(ctx context.Context, key string, values map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
}

// RedisStore keeps checkpoints as fields of one hash. A position is written with a
// single multi-field HSET, so its timestamp and id change together.
type RedisStore struct {
	client HashClient
	key    string
	logger ectologger.Logger
}

func NewRedisStore(client HashClient, key string, logger ectologger.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, kind models.Kind) (*models.Position, error) {
	fields, err := s.client.HMGet(ctx, s.key, Key(kind), IDKey(kind))
	if err != nil {
		return nil, unavailable("hmget "+Key(kind), err)
	}
	return decode(kind, fields)
}

func (s *RedisStore) Set(ctx context.Context, kind models.Kind, pos models.Position) error {
	if err := s.client.HSet(ctx, s.key, encode(kind, pos)); err != nil {
		return unavailable("hset "+Key(kind), err)
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":      kind,
		"watermark": formatTime(pos.Modified),
		"id":        pos.ID,
	}).Debug("Checkpoint saved")
	return nil
}

func (s *RedisStore) List(ctx context.Context) (map[models.Kind]models.Position, error) {
	values, err := s.client.HGetAll(ctx, s.key)
	if err != nil {
		return nil, unavailable("hgetall "+s.key, err)
	}
	return decodeAll(values)
}

func (s *RedisStore) Delete(ctx context.Context, kind models.Kind) error {
	if err := s.client.HDel(ctx, s.key, Key(kind), IDKey(kind)); err != nil {
		return unavailable("hdel "+Key(kind), err)
	}
	return nil
}
