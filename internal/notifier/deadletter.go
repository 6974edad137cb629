package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeadLetterSink persists exhausted notifications to a Redis list so
// an operator can inspect or replay them; entries are never dropped
// silently.
type RedisDeadLetterSink struct {
	client *redis.Client
	key    string
}

// NewRedisDeadLetterSink builds a sink backed by the given Redis list key.
func NewRedisDeadLetterSink(client *redis.Client, key string) *RedisDeadLetterSink {
	if key == "" {
		key = "ticketflow:notifications:dead-letter"
	}
	return &RedisDeadLetterSink{client: client, key: key}
}

type deadLetterRecord struct {
	Notification Notification `json:"notification"`
	Reason       string       `json:"reason"`
	FailedAt     time.Time    `json:"failed_at"`
}

func (s *RedisDeadLetterSink) Push(ctx context.Context, n Notification, reason string) error {
	record := deadLetterRecord{Notification: n, Reason: reason, FailedAt: time.Now().UTC()}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("notifier: marshal dead-letter record: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("notifier: rpush dead-letter: %w", err)
	}
	return nil
}

// Drain pops up to n dead-lettered notifications, oldest first, for
// operator-triggered replay.
func (s *RedisDeadLetterSink) Drain(ctx context.Context, n int64) ([]Notification, error) {
	values, err := s.client.LPopCount(ctx, s.key, int(n)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("notifier: drain dead-letter: %w", err)
	}
	notifications := make([]Notification, 0, len(values))
	for _, raw := range values {
		var record deadLetterRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("notifier: unmarshal dead-letter record: %w", err)
		}
		notifications = append(notifications, record.Notification)
	}
	return notifications, nil
}
