package report

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisSentinels uses SETNX so several bot processes sharing one Redis
// still send each report once.
type RedisSentinels struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisSentinels(client *redis.Client, prefix string) *RedisSentinels {
	if prefix == "" {
		prefix = "slottrader"
	}
	return &RedisSentinels{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisSentinels) key(kind Kind, key string) string {
	return fmt.Sprintf("%s:sent:%s:%s", s.prefix, kind, key)
}

func (s *RedisSentinels) Sent(ctx context.Context, kind Kind, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(kind, key)).Result()
	if err != nil {
		return false, fmt.Errorf("sentinel %s %s: %w", kind, key, err)
	}
	return n > 0, nil
}

func (s *RedisSentinels) Claim(ctx context.Context, kind Kind, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(kind, key), sentValue(s.now()), 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s %s: %w", kind, key, err)
	}
	return ok, nil
}
