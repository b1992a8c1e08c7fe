package auditlog

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yoockh/yoscribe/internal/models"
)

const DefaultStream = "audit:entries"

// RedisPublisher appends committed entries to a Redis stream so other
// services can follow the audit log with XREADGROUP.
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisPublisher(rdb *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, e models.AuditEntry) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"user":      e.User,
			"filename":  e.Filename,
			"format":    e.Format,
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
			"status":    e.Status,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.rdb.XAdd(ctx, args).Err()
}

var _ Publisher = (*RedisPublisher)(nil)
