package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
	"github.com/tbourn/go-voice-assistant/internal/domain"
	"github.com/tbourn/go-voice-assistant/internal/observability"
	"github.com/tbourn/go-voice-assistant/internal/queue"
	"github.com/tbourn/go-voice-assistant/internal/repo"
)

// MergeWorker consumes merge jobs with a fixed pool of goroutines. A job
// that fails is re-enqueued after RetryDelay until MaxAttempts, then handed
// to the queue's dead-letter sink. Every job ends merged or dead-lettered,
// and both outcomes are logged.
type MergeWorker struct {
	DB          *gorm.DB
	Store       *artifact.Store
	Queue       queue.Queue
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Schedule enqueues the first attempt for messageID.
func (w *MergeWorker) Schedule(ctx context.Context, messageID string) error {
	err := w.Queue.Enqueue(ctx, queue.Job{MessageID: messageID, Attempt: 1, EnqueuedAt: time.Now().UTC()})
	w.publishDepth()
	return err
}

// Start launches the pool. Jobs run detached from ctx's cancellation but
// keep its values (logger).
func (w *MergeWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	n := w.Concurrency
	if n <= 0 {
		n = 1
	}
	w.wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer w.wg.Done()
			w.loop(ctx, id)
		}(i)
	}
}

// Shutdown stops intake, waits for the workers to drain the queue and only
// then closes the transport, so late retries can still be dead-lettered. If
// ctx expires first, in-flight merges are cancelled.
func (w *MergeWorker) Shutdown(ctx context.Context) error {
	w.Queue.Stop()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		if w.cancel != nil {
			w.cancel()
		}
		<-done
		err = ctx.Err()
	}
	if closeErr := w.Queue.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Reconcile re-enqueues assistant messages that own segments but no merged
// recording, typically left behind by a restart.
func (w *MergeWorker) Reconcile(ctx context.Context) (int, error) {
	ids, err := repo.ListUnmergedMessageIDs(ctx, w.DB)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := w.Schedule(ctx, id); err != nil {
			return i, fmt.Errorf("reconcile %s: %w", id, err)
		}
	}
	return len(ids), nil
}

func (w *MergeWorker) loop(ctx context.Context, id int) {
	lg := zerolog.Ctx(ctx).With().Int("worker", id).Logger()
	for {
		job, err := w.Queue.Dequeue(ctx)
		if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
			return
		}
		if err != nil {
			lg.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		w.publishDepth()
		w.handle(lg.WithContext(ctx), job)
	}
}

func (w *MergeWorker) handle(ctx context.Context, job queue.Job) {
	lg := zerolog.Ctx(ctx).With().
		Str("message_id", job.MessageID).
		Int("attempt", job.Attempt).
		Logger()
	ctx = lg.WithContext(ctx)

	_, res, err := w.MergeNow(ctx, job.MessageID)
	if err == nil {
		observability.MergeDone(observability.OutcomeOK)
		lg.Info().Int("segments", res.Used).Int("missing", len(res.Missing)).Msg("merge finished")
		return
	}

	permanent := errors.Is(err, ErrMessageNotFound) || errors.Is(err, ErrNoAudio)
	if !permanent && job.Attempt < w.maxAttempts() {
		observability.MergeDone(observability.OutcomeRetry)
		lg.Warn().Err(err).Msg("merge failed, will retry")
		select {
		case <-ctx.Done():
			w.deadLetter(ctx, job, fmt.Errorf("shutdown before retry: %w", err))
			return
		case <-time.After(w.RetryDelay):
		}
		next := job
		next.Attempt++
		next.EnqueuedAt = time.Now().UTC()
		if qerr := w.Queue.Enqueue(ctx, next); qerr != nil {
			w.deadLetter(ctx, job, fmt.Errorf("re-enqueue: %w (after %w)", qerr, err))
		}
		w.publishDepth()
		return
	}
	w.deadLetter(ctx, job, err)
}

func (w *MergeWorker) deadLetter(ctx context.Context, job queue.Job, cause error) {
	observability.MergeDone(observability.OutcomeDead)
	lg := zerolog.Ctx(ctx)
	lg.Error().Err(cause).Msg("merge abandoned")
	if err := w.Queue.Fail(context.WithoutCancel(ctx), job, cause); err != nil {
		lg.Error().Err(err).Msg("dead-letter write failed")
	}
}

// MergeNow merges a message's segments, writes the merged file and records
// it. Segment files missing from disk are skipped; segments_count is the
// number actually merged.
func (w *MergeWorker) MergeNow(ctx context.Context, messageID string) (*domain.MergedAudio, *artifact.Merged, error) {
	tr := otel.Tracer("services/MergeWorker")
	ctx, span := tr.Start(ctx, "MergeNow",
		trace.WithAttributes(attribute.String("message.id", messageID)),
	)
	defer span.End()

	msg, err := repo.GetMessage(ctx, w.DB, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	segs, err := repo.ListSegments(ctx, w.DB, msg.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(segs) == 0 {
		return nil, nil, ErrNoAudio
	}

	merged, err := w.Store.Merge(partsOf(segs))
	if errors.Is(err, artifact.ErrNothingToMerge) {
		return nil, nil, fmt.Errorf("%w: all %d segment files missing", ErrNoAudio, len(segs))
	}
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	for _, p := range merged.Missing {
		zerolog.Ctx(ctx).Warn().Str("path", p).Msg("segment file missing, skipped")
	}

	path, err := w.Store.WriteMerged(msg.MessageID, merged.WAV)
	if err != nil {
		return nil, nil, err
	}
	row, err := repo.FinalizeMerge(ctx, w.DB, msg.ID, path, merged.SampleRate, merged.Duration(), merged.Used)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.Int("segments", merged.Used))
	return row, merged, nil
}

func (w *MergeWorker) maxAttempts() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return 3
}

func (w *MergeWorker) publishDepth() {
	if m, ok := w.Queue.(*queue.Memory); ok {
		observability.SetMergeQueueDepth(m.Len())
	}
}

func partsOf(segs []domain.AudioSegment) []artifact.Part {
	parts := make([]artifact.Part, len(segs))
	for i, s := range segs {
		parts[i] = artifact.Part{Path: s.Path, SampleRate: s.SampleRate}
	}
	return parts
}
