package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/ChaseRain/slidegen/internal/infra/logger"
	"github.com/ChaseRain/slidegen/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "slidegen:session:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: log.Named("session.redis"),
	}
}

func (s *RedisStore) Save(ctx context.Context, id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode session record")
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to save session record")
	}
	s.logger.Debug("saved session record", "session_id", id, "size", len(data))
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, notFound()
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to load session record")
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("dropping unreadable session record", "session_id", id, "error", err)
		s.client.Del(ctx, redisKeyPrefix+id)
		return nil, notFound()
	}
	return &rec, nil
}

func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to clear session record")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
