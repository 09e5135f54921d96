package queue

import (
	"context"
	"sync"
)

// Memory is an in-process bounded queue. Jobs do not survive a restart;
// startup reconciliation re-enqueues whatever was lost.
type Memory struct {
	ch   chan Job
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	failed []DeadLetter
}

// NewMemory returns a queue holding at most size pending jobs.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{ch: make(chan Job, size), done: make(chan struct{})}
}

// Enqueue blocks while the queue is full.
func (m *Memory) Enqueue(ctx context.Context, j Job) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// Dequeue keeps handing out pending jobs after Close until the buffer is
// empty, then reports ErrClosed.
func (m *Memory) Dequeue(ctx context.Context) (Job, error) {
	select {
	case j := <-m.ch:
		return j, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case <-m.done:
		select {
		case j := <-m.ch:
			return j, nil
		default:
			return Job{}, ErrClosed
		}
	}
}

// Fail keeps the job in an in-memory dead-letter list.
func (m *Memory) Fail(_ context.Context, j Job, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, newDeadLetter(j, cause))
	return nil
}

// Failed returns a copy of the dead-letter list.
func (m *Memory) Failed() []DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadLetter(nil), m.failed...)
}

// Len is the number of pending jobs.
func (m *Memory) Len() int { return len(m.ch) }

// Stop stops accepting jobs; pending ones can still be dequeued. It is safe
// to call more than once.
func (m *Memory) Stop() { m.once.Do(func() { close(m.done) }) }

// Close is Stop; there is no transport to release.
func (m *Memory) Close() error {
	m.Stop()
	return nil
}
