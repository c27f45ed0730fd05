package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/GovIndexor/internal/common"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Notifier announces blocks that were fully applied and checkpointed.
// Notifications are best effort: callers log failures and carry on.
type Notifier interface {
	BlockIndexed(ctx context.Context, namespace string, height uint64, hash common.Hash) error
	Close() error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) BlockIndexed(context.Context, string, uint64, common.Hash) error { return nil }
func (Nop) Close() error                                                  { return nil }

// Redis appends one entry per indexed block to a Redis stream.
type Redis struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	log    *logger.Logger
}

// NewRedis returns a notifier writing to stream through client.
func NewRedis(client redis.UniversalClient, stream string, maxLen int64, log *logger.Logger) *Redis {
	return &Redis{
		client: client,
		stream: stream,
		maxLen: maxLen,
		log:    log.WithComponent(internalcommon.ComponentNotifier),
	}
}

// New builds the notifier described by cfg, or Nop when notifications are disabled.
func New(ctx context.Context, cfg *config.NotifierConfig, log *logger.Logger) (Notifier, error) {
	if cfg == nil || !cfg.Enabled {
		return Nop{}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return NewRedis(client, cfg.Stream, cfg.MaxLen, log), nil
}

// BlockIndexed appends {namespace, height, hash} to the stream.
func (r *Redis) BlockIndexed(ctx context.Context, namespace string, height uint64, hash common.Hash) error {
	start := time.Now()

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"namespace": namespace,
			"height":    strconv.FormatUint(height, 10),
			"hash":      hash.Hex(),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}

	r.log.Debugw("block notification published",
		"namespace", namespace,
		"height", height,
		"id", id,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Len returns the number of entries in the stream.
func (r *Redis) Len(ctx context.Context) (int64, error) {
	return r.client.XLen(ctx, r.stream).Result()
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
