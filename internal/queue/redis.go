package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps jobs in a list: LPUSH to enqueue, BRPOP to dequeue. Failed
// jobs go to "{key}:dead".
type Redis struct {
	Client      *redis.Client
	Key         string
	PollTimeout time.Duration

	stopped atomic.Bool
	closed  atomic.Bool
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int, key string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedis(client, key), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = "assistant:merge"
	}
	return &Redis{Client: client, Key: key, PollTimeout: time.Second}
}

// DeadKey is the list failed jobs are pushed to.
func (r *Redis) DeadKey() string { return r.Key + ":dead" }

func (r *Redis) Enqueue(ctx context.Context, j Job) error {
	if r.stopped.Load() {
		return ErrClosed
	}
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return r.Client.LPush(ctx, r.Key, b).Err()
}

// Dequeue polls with BRPOP so that Stop is noticed within PollTimeout.
// Jobs left in the list stay there for the next process.
func (r *Redis) Dequeue(ctx context.Context) (Job, error) {
	for {
		if r.stopped.Load() {
			return Job{}, ErrClosed
		}
		res, err := r.Client.BRPop(ctx, r.PollTimeout, r.Key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			if r.stopped.Load() {
				return Job{}, ErrClosed
			}
			return Job{}, err
		}
		// res is [key, value].
		var j Job
		if err := json.Unmarshal([]byte(res[1]), &j); err != nil {
			return Job{}, fmt.Errorf("redis: bad job payload: %w", err)
		}
		return j, nil
	}
}

func (r *Redis) Fail(ctx context.Context, j Job, cause error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	b, err := json.Marshal(newDeadLetter(j, cause))
	if err != nil {
		return err
	}
	return r.Client.LPush(ctx, r.DeadKey(), b).Err()
}

// Stop ends Enqueue and Dequeue; the client stays open for Fail.
func (r *Redis) Stop() { r.stopped.Store(true) }

// Close stops the queue and closes the client.
func (r *Redis) Close() error {
	r.Stop()
	if r.closed.Swap(true) {
		return nil
	}
	return r.Client.Close()
}
