// Package queue carries background merge jobs from the request path to the
// merge workers. Three backends share one interface: an in-process bounded
// channel, a Redis list and a RabbitMQ queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-voice-assistant/internal/config"
)

// ErrClosed is returned once a queue has been closed.
var ErrClosed = errors.New("queue closed")

// Job asks for one message's segments to be merged.
type Job struct {
	MessageID  string    `json:"message_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DeadLetter is what a failed job leaves behind.
type DeadLetter struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Queue is a FIFO of merge jobs.
//
// Dequeue blocks until a job is available, ctx is done, or the queue is
// stopped (ErrClosed). Fail records a job that exhausted its attempts.
//
// Stop ends intake: Enqueue fails with ErrClosed and Dequeue reports
// ErrClosed once nothing more will be handed out, while Fail keeps working
// so consumers can still dead-letter what they hold. Close releases the
// transport and implies Stop.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
	Dequeue(ctx context.Context) (Job, error)
	Fail(ctx context.Context, j Job, cause error) error
	Stop()
	Close() error
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.MergeConfig) (Queue, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.QueueSize), nil
	case "redis":
		return DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
	case "rabbitmq":
		return DialRabbit(cfg.RabbitURL, cfg.RabbitQueue, cfg.Workers)
	default:
		return nil, fmt.Errorf("queue: unknown backend %q", cfg.Backend)
	}
}

func newDeadLetter(j Job, cause error) DeadLetter {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return DeadLetter{Job: j, Error: msg, FailedAt: time.Now().UTC()}
}
