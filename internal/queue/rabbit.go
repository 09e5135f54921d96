package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Rabbit publishes jobs to a durable queue and consumes them with manual
// acks. A delivery is acked as soon as it is decoded: the worker owns
// retries, and startup reconciliation covers a crash mid-merge. Failed jobs
// and undecodable payloads end up in "{queue}.dlq".
type Rabbit struct {
	conn  *amqp.Connection
	pub   *amqp.Channel
	sub   *amqp.Channel
	queue string
	tag   string

	pubMu      sync.Mutex
	deliveries <-chan amqp.Delivery
	stopped    atomic.Bool
	closed     atomic.Bool
}

// DialRabbit connects, declares the main queue and its DLQ, and starts
// consuming with the given prefetch.
func DialRabbit(url, queue string, prefetch int) (*Rabbit, error) {
	if queue == "" {
		queue = "assistant.merge"
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	r := &Rabbit{conn: conn, queue: queue, tag: fmt.Sprintf("%s.worker.%d", queue, time.Now().UnixNano())}
	if err := r.setup(prefetch); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Rabbit) setup(prefetch int) error {
	var err error
	if r.pub, err = r.conn.Channel(); err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}
	if r.sub, err = r.conn.Channel(); err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}

	if _, err := r.pub.QueueDeclare(r.DeadQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", r.DeadQueue(), err)
	}
	// Main queue: rejected deliveries are dead-lettered to the DLQ.
	if _, err := r.pub.QueueDeclare(r.queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": r.DeadQueue(),
	}); err != nil {
		return fmt.Errorf("declare %s: %w", r.queue, err)
	}

	if err := r.sub.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbit qos: %w", err)
	}
	r.deliveries, err = r.sub.Consume(r.queue, r.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbit consume: %w", err)
	}
	return nil
}

// DeadQueue is the queue failed jobs are published to.
func (r *Rabbit) DeadQueue() string { return r.queue + ".dlq" }

func (r *Rabbit) Enqueue(ctx context.Context, j Job) error {
	if r.stopped.Load() {
		return ErrClosed
	}
	return r.publish(ctx, r.queue, j)
}

func (r *Rabbit) Dequeue(ctx context.Context) (Job, error) {
	for {
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case d, ok := <-r.deliveries:
			if !ok {
				return Job{}, ErrClosed
			}
			var j Job
			if err := json.Unmarshal(d.Body, &j); err != nil || j.MessageID == "" {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("rabbit: dropping malformed merge job")
				_ = d.Nack(false, false)
				continue
			}
			if err := d.Ack(false); err != nil {
				return Job{}, fmt.Errorf("rabbit ack: %w", err)
			}
			return j, nil
		}
	}
}

func (r *Rabbit) Fail(ctx context.Context, j Job, cause error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.publish(ctx, r.DeadQueue(), newDeadLetter(j, cause))
}

func (r *Rabbit) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	return r.pub.PublishWithContext(cctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Stop cancels the consumer. Deliveries already buffered are still handed
// out, then Dequeue reports ErrClosed. Publishing (Fail) keeps working.
func (r *Rabbit) Stop() {
	if r.stopped.Swap(true) || r.sub == nil || r.deliveries == nil {
		return
	}
	if err := r.sub.Cancel(r.tag, false); err != nil {
		// The channel is gone; Close below tears the rest down.
		_ = r.sub.Close()
	}
}

// Close stops consuming and closes both channels and the connection.
// Unacked deliveries return to the broker.
func (r *Rabbit) Close() error {
	r.Stop()
	if r.closed.Swap(true) {
		return nil
	}
	var errs []error
	if r.sub != nil {
		errs = append(errs, r.sub.Close())
	}
	if r.pub != nil {
		errs = append(errs, r.pub.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}
