package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "kpauth:audit"

// Connect initializes a Redis client from a redis:// URL or host:port.
func Connect(redisURL string) (*redis.Client, error) {
	redisURL = strings.TrimSpace(redisURL)
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisSink appends events to a capped Redis stream for downstream consumers.
type RedisSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisSink returns a sink writing to stream (DefaultStream when empty),
// trimmed to roughly maxLen entries (no trimming when maxLen <= 0).
func NewRedisSink(client redis.Cmdable, stream string, maxLen int64) *RedisSink {
	if strings.TrimSpace(stream) == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// Record implements Sink.
func (s *RedisSink) Record(ctx context.Context, ev Event) error {
	ev, ok := normalize(ev)
	if !ok {
		return nil
	}

	values := map[string]any{
		"event": ev.Name,
		"at":    ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.UserID != "" {
		values["user_id"] = ev.UserID
	}
	if ev.IP != "" {
		values["ip"] = ev.IP
	}
	if ev.UserAgent != "" {
		values["user_agent"] = ev.UserAgent
	}
	if len(ev.Payload) > 0 {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		values["payload"] = string(b)
	}

	args := &redis.XAddArgs{Stream: s.stream, Values: values}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}
