package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	syncerrors "github.com/daybook-app/daybook/internal/errors"
	"github.com/daybook-app/daybook/internal/metrics"
	"github.com/daybook-app/daybook/internal/store"
)

// BatchService coalesces write operations issued within a rolling window
// into one atomic commit. The window resets on every enqueue and the batch
// is committed once it closes with no new arrivals. A rejected atomic commit
// falls back to per-operation commits with no atomicity guarantee; partial
// success is possible and callers must tolerate it.
type BatchService struct {
	remote  store.RemoteStore
	window  time.Duration
	maxSize int
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending []*pendingWrite
	timer   *time.Timer
	stopped bool
	flushWG sync.WaitGroup
}

// pendingWrite lives in the queue from enqueue until its commit settles.
type pendingWrite struct {
	op         store.WriteOp
	enqueuedAt time.Time
	done       chan error
}

// NewBatchService creates a new batch writer
func NewBatchService(remote store.RemoteStore, window time.Duration, maxSize int, logger *zap.Logger, m *metrics.Metrics) *BatchService {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	if maxSize <= 0 {
		maxSize = 500
	}
	return &BatchService{
		remote:  remote,
		window:  window,
		maxSize: maxSize,
		logger:  logger,
		metrics: m,
	}
}

// Enqueue queues one operation for the next commit. The returned channel
// receives that operation's outcome exactly once. Once enqueued, the
// operation runs to completion; it cannot be aborted.
func (s *BatchService) Enqueue(op store.WriteOp) <-chan error {
	done := make(chan error, 1)
	pw := &pendingWrite{op: op, enqueuedAt: time.Now(), done: done}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		done <- syncerrors.InternalError("batch writer is stopped", nil)
		return done
	}

	s.pending = append(s.pending, pw)

	if len(s.pending) >= s.maxSize {
		batch := s.takeLocked()
		s.mu.Unlock()
		s.flushWG.Add(1)
		go s.commit(batch)
		return done
	}

	// Rolling window: every arrival pushes the commit out again.
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.window, s.flush)
	s.mu.Unlock()

	return done
}

// Flush commits whatever is queued right now, bypassing the window. It
// returns once the commit has settled.
func (s *BatchService) Flush() {
	s.flush()
	s.flushWG.Wait()
}

// Stop flushes the queue and rejects all further enqueues.
func (s *BatchService) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.Flush()
}

func (s *BatchService) flush() {
	s.mu.Lock()
	batch := s.takeLocked()
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	s.flushWG.Add(1)
	s.commit(batch)
}

// takeLocked detaches the queue and disarms the window timer.
func (s *BatchService) takeLocked() []*pendingWrite {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	batch := s.pending
	s.pending = nil
	return batch
}

// commit settles every pending write in the batch.
func (s *BatchService) commit(batch []*pendingWrite) {
	defer s.flushWG.Done()

	if len(batch) == 0 {
		return
	}

	ctx := context.Background()

	// A lone operation skips the atomic round trip.
	if len(batch) == 1 {
		batch[0].done <- s.commitOne(ctx, batch[0].op)
		return
	}

	ops := make([]store.WriteOp, len(batch))
	for i, pw := range batch {
		ops[i] = pw.op
	}

	s.metrics.BatchCommitsTotal.Inc()
	s.metrics.BatchSizeOps.Observe(float64(len(ops)))

	err := s.remote.BatchCommit(ctx, ops)
	if err == nil {
		s.logger.Debug("Committed batch atomically", zap.Int("operations", len(ops)))
		for _, pw := range batch {
			pw.done <- nil
		}
		return
	}

	s.logger.Warn("Atomic batch commit rejected, retrying operations individually",
		zap.Error(syncerrors.BatchCommitFailed(len(ops), err)))
	s.metrics.BatchFallbacksTotal.Inc()

	for _, pw := range batch {
		pw.done <- s.commitOne(ctx, pw.op)
	}
}

// commitOne issues a single remote write. One attempt only; retry pressure
// on the write path comes from reconnect reconciliation, not from here.
func (s *BatchService) commitOne(ctx context.Context, op store.WriteOp) error {
	switch op.Type {
	case store.OpSet:
		return s.remote.SetDoc(ctx, op.Collection, op.DocumentID, op.Payload)
	case store.OpUpdate:
		return s.remote.UpdateDoc(ctx, op.Collection, op.DocumentID, op.Payload)
	case store.OpDelete:
		return s.remote.DeleteDoc(ctx, op.Collection, op.DocumentID)
	case store.OpCreate:
		_, err := s.remote.AddDoc(ctx, op.Collection, op.Payload)
		return err
	}
	return syncerrors.InvalidArgument("unknown operation type "+string(op.Type), nil)
}
