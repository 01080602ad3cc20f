package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisQueueKey = "ops:task_queue"

// RedisQueue is a Redis-list-backed FIFO: LPUSH to enqueue, RPOP to
// dequeue. Unlike the in-memory queue, entries survive a process restart.
type RedisQueue struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisQueue(redisAddr string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{
		client: client,
		ctx:    ctx,
	}, nil
}

func (q *RedisQueue) Enqueue(item *Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return q.client.LPush(q.ctx, redisQueueKey, data).Err()
}

func (q *RedisQueue) Dequeue() (*Item, error) {
	data, err := q.client.RPop(q.ctx, redisQueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var item Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, err
	}

	return &item, nil
}

func (q *RedisQueue) Len() (int, error) {
	n, err := q.client.LLen(q.ctx, redisQueueKey).Result()

	return int(n), err
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
