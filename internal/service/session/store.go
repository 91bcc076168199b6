package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ChaseRain/slidegen/internal/infra/logger"
	"github.com/ChaseRain/slidegen/internal/service/generation"
	"github.com/ChaseRain/slidegen/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// Record is the hand-off between the submission flow and the preview view:
// the last successful result of one browser session.
type Record struct {
	Artifact  generation.Artifact `json:"artifact"`
	CreatedAt time.Time           `json:"createdAt"`
}

// Store keeps at most one Record per session id. Save overwrites wholesale.
type Store interface {
	Save(ctx context.Context, id string, rec Record) error
	// Load returns an ErrCodeNotFound AppError when nothing is stored.
	Load(ctx context.Context, id string) (*Record, error)
	Clear(ctx context.Context, id string) error
	Close() error
}

type Options struct {
	Type          string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func New(ctx context.Context, opts Options, log *logger.Logger) (Store, error) {
	switch opts.Type {
	case TypeMemory, "":
		return NewMemoryStore(opts.TTL, log), nil
	case TypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, errors.Wrap(err, errors.ErrCodeStorage, fmt.Sprintf("failed to connect to redis at %s", opts.RedisAddr))
		}
		log.Info("connected to redis session store", "addr", opts.RedisAddr, "db", opts.RedisDB)
		return NewRedisStore(client, opts.TTL, log), nil
	default:
		return nil, errors.New(errors.ErrCodeStorage, fmt.Sprintf("unknown session store type %q", opts.Type))
	}
}

func notFound() error {
	return errors.New(errors.ErrCodeNotFound, "no stored presentation for this session")
}
