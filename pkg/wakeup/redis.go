package wakeup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultQueueKey = "recforge:wakeup"

// RedisQueue stores pending wakeups in a Redis sorted set scored by the
// wake-at unix timestamp, shared by every runner instance.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects to Redis at the given URL and returns a queue.
func NewRedisQueue(ctx context.Context, redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisQueue{client: client, key: defaultQueueKey}, nil
}

func (q *RedisQueue) Schedule(ctx context.Context, executionID string, wakeAt time.Time) error {
	err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(wakeAt.Unix()),
		Member: executionID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule wakeup for %s: %w", executionID, err)
	}

	return nil
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due wakeups: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	err = q.client.ZRem(ctx, q.key, members...).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to remove due wakeups: %w", err)
	}

	return ids, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
