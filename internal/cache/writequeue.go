package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

type pendingWrite struct {
	seq      uint64
	key      string
	value    []byte
	expireAt time.Time
}

// removal records a delete that writes queued before seq must not undo.
type removal struct {
	seq    uint64
	key    string
	substr string
	all    bool
}

func (r removal) covers(w pendingWrite) bool {
	switch {
	case r.all:
		return true
	case r.key != "":
		return r.key == w.key
	default:
		return strings.Contains(w.key, r.substr)
	}
}

// writeQueue is the bounded fire-and-forget write path shared by the
// persisted stores. Writes are applied in enqueue order by one worker.
// A removal run through remove also discards every matching write that
// was queued before it, so a cleared key is never resurrected.
type writeQueue struct {
	ops    chan pendingWrite
	apply  func(pendingWrite)
	logger *slog.Logger

	enqueueMu sync.Mutex
	nextSeq   uint64

	// applyMu is held while a write or a removal touches the backend.
	applyMu  sync.Mutex
	removals []removal

	pending atomic.Int32
	dropped atomic.Int64
	skipped atomic.Int64

	beforeApply func()

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWriteQueue(size int, apply func(pendingWrite), logger *slog.Logger) *writeQueue {
	if size <= 0 {
		size = 1
	}
	q := &writeQueue{
		ops:    make(chan pendingWrite, size),
		apply:  apply,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// enqueue queues a write, or drops it with ErrWriteQueueFull.
func (q *writeQueue) enqueue(key string, value []byte, expireAt time.Time) error {
	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	q.pending.Add(1)
	select {
	case q.ops <- pendingWrite{seq: q.nextSeq, key: key, value: value, expireAt: expireAt}:
		q.nextSeq++
		return nil
	default:
		q.pending.Add(-1)
		q.dropped.Add(1)
		q.logger.Warn("Write queue full, dropping write", "key", key, "dropped_total", q.dropped.Load())
		return types.ErrWriteQueueFull
	}
}

// remove runs del against the backend and fences off queued writes that r covers.
func (q *writeQueue) remove(r removal, del func() error) error {
	q.enqueueMu.Lock()
	r.seq = q.nextSeq
	q.enqueueMu.Unlock()

	q.applyMu.Lock()
	defer q.applyMu.Unlock()
	if q.pending.Load() > 0 {
		q.removals = append(q.removals, r)
	} else {
		q.removals = q.removals[:0]
	}
	return del()
}

func (q *writeQueue) run() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			for {
				select {
				case op := <-q.ops:
					q.execute(op)
				default:
					return
				}
			}
		case op := <-q.ops:
			q.execute(op)
		}
	}
}

func (q *writeQueue) execute(op pendingWrite) {
	defer q.pending.Add(-1)
	if q.beforeApply != nil {
		q.beforeApply()
	}

	q.applyMu.Lock()
	defer q.applyMu.Unlock()

	superseded := false
	kept := q.removals[:0]
	for _, r := range q.removals {
		if r.seq <= op.seq {
			// every write older than r has now been seen
			continue
		}
		kept = append(kept, r)
		if r.covers(op) {
			superseded = true
		}
	}
	q.removals = kept

	if superseded {
		q.skipped.Add(1)
		q.logger.Debug("Skipped write superseded by removal", "key", op.key)
		return
	}
	q.apply(op)
}

// flush blocks until the queue is empty or ctx is done.
func (q *writeQueue) flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for q.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// stop drains queued writes and ends the worker.
func (q *writeQueue) stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
	})
}
