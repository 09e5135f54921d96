package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-voice-assistant/internal/config"
)

func TestMemory_FIFOAndDrainAfterClose(t *testing.T) {
	q := NewMemory(4)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, Job{MessageID: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d", q.Len())
	}
	j, err := q.Dequeue(ctx)
	if err != nil || j.MessageID != "a" {
		t.Fatalf("first dequeue = %+v, %v", j, err)
	}

	_ = q.Close()
	_ = q.Close()
	if err := q.Enqueue(ctx, Job{MessageID: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("enqueue after close: %v", err)
	}
	for _, want := range []string{"b", "c"} {
		j, err := q.Dequeue(ctx)
		if err != nil || j.MessageID != want {
			t.Fatalf("drain: got %+v, %v; want %s", j, err, want)
		}
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed once drained, got %v", err)
	}
}

func TestMemory_StopKeepsFail(t *testing.T) {
	q := NewMemory(2)
	ctx := context.Background()
	_ = q.Enqueue(ctx, Job{MessageID: "a"})
	q.Stop()
	q.Stop()
	if err := q.Enqueue(ctx, Job{MessageID: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("enqueue after stop: %v", err)
	}
	if j, err := q.Dequeue(ctx); err != nil || j.MessageID != "a" {
		t.Fatalf("drain after stop = %+v, %v", j, err)
	}
	if err := q.Fail(ctx, Job{MessageID: "a"}, errors.New("boom")); err != nil {
		t.Fatalf("fail after stop: %v", err)
	}
	if len(q.Failed()) != 1 {
		t.Fatalf("dead letters = %+v", q.Failed())
	}
}

func TestMemory_EnqueueBlocksWhenFull(t *testing.T) {
	q := NewMemory(1)
	_ = q.Enqueue(context.Background(), Job{MessageID: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, Job{MessageID: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestMemory_DequeueHonorsContext(t *testing.T) {
	q := NewMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestMemory_Fail(t *testing.T) {
	q := NewMemory(1)
	_ = q.Fail(context.Background(), Job{MessageID: "x", Attempt: 3}, errors.New("disk full"))
	got := q.Failed()
	if len(got) != 1 || got[0].Job.MessageID != "x" || got[0].Error != "disk full" || got[0].FailedAt.IsZero() {
		t.Fatalf("unexpected dead letters: %+v", got)
	}
}

func TestOpen(t *testing.T) {
	q, err := Open(context.Background(), config.MergeConfig{Backend: "memory", QueueSize: 2})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := q.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", q)
	}
	if _, err := Open(context.Background(), config.MergeConfig{Backend: "kafka"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	key := "test:merge:" + t.Name()
	q, err := DialRedis(ctx, addr, "", 0, key)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer q.Close()
	q.Client.Del(ctx, key, q.DeadKey())

	for _, id := range []string{"m1", "m2"} {
		if err := q.Enqueue(ctx, Job{MessageID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for _, want := range []string{"m1", "m2"} {
		j, err := q.Dequeue(ctx)
		if err != nil || j.MessageID != want {
			t.Fatalf("dequeue = %+v, %v; want %s", j, err, want)
		}
	}
	if err := q.Fail(ctx, Job{MessageID: "m3"}, errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	n, err := q.Client.LLen(ctx, q.DeadKey()).Result()
	if err != nil || n != 1 {
		t.Fatalf("dead list length = %d, %v", n, err)
	}
	q.Client.Del(ctx, key, q.DeadKey())
}

func TestRedis_ClosedQueue(t *testing.T) {
	// No server needed: a closed queue never reaches the network.
	q := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "")
	if q.Key != "assistant:merge" || q.DeadKey() != "assistant:merge:dead" {
		t.Fatalf("unexpected keys %q %q", q.Key, q.DeadKey())
	}
	_ = q.Close()
	if err := q.Enqueue(context.Background(), Job{MessageID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("dequeue: %v", err)
	}
}

func TestRedis_StoppedQueueStillDeadLetters(t *testing.T) {
	// No server needed: Stop is decided locally, and Fail only reaches for
	// the network until Close.
	q := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "")
	q.Stop()
	if err := q.Enqueue(context.Background(), Job{MessageID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("enqueue after stop: %v", err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("dequeue after stop: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Fail(ctx, Job{MessageID: "x"}, errors.New("boom")); errors.Is(err, ErrClosed) {
		t.Fatalf("Fail must stay usable after Stop")
	}

	_ = q.Close()
	if err := q.Fail(context.Background(), Job{MessageID: "x"}, errors.New("boom")); !errors.Is(err, ErrClosed) {
		t.Fatalf("fail after close: %v", err)
	}
}

func TestRabbit_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_RABBIT_URL")
	if url == "" {
		t.Skip("TEST_RABBIT_URL not set")
	}
	q, err := DialRabbit(url, "test.merge", 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer q.Close()
	_, _ = q.pub.QueuePurge("test.merge", false)
	_, _ = q.pub.QueuePurge(q.DeadQueue(), false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Enqueue(ctx, Job{MessageID: "r1", Attempt: 2}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	j, err := q.Dequeue(ctx)
	if err != nil || j.MessageID != "r1" || j.Attempt != 2 {
		t.Fatalf("dequeue = %+v, %v", j, err)
	}
	if err := q.Fail(ctx, j, errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	info, err := q.pub.QueueDeclarePassive(q.DeadQueue(), true, false, false, false, nil)
	if err != nil || info.Messages < 1 {
		t.Fatalf("dlq = %+v, %v", info, err)
	}
}
