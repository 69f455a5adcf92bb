package framequeue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"go2tv.app/acapture/frame"
	"go2tv.app/acapture/internal/logging"
)

// DefaultSize keeps latency low: consumers see at most two stale frames.
const DefaultSize = 2

var (
	ErrClosed  = errors.New("frame queue closed")
	ErrTimeout = errors.New("timed out waiting for frame")
)

var log = logging.L("framequeue")

// Queue is a bounded frame buffer between a producer callback and a
// consumer. Push never blocks: when full, the oldest frame is dropped.
type Queue struct {
	name   string
	frames chan frame.RawFrame
	done   chan struct{}

	closeOnce sync.Once

	dropped     atomic.Uint64
	lastDropLog atomic.Int64
}

// New returns a queue holding up to size frames. Size < 1 selects DefaultSize.
func New(name string, size int) *Queue {
	if size < 1 {
		size = DefaultSize
	}
	return &Queue{
		name:   name,
		frames: make(chan frame.RawFrame, size),
		done:   make(chan struct{}),
	}
}

// Push enqueues f, dropping the oldest buffered frame if the queue is full.
func (q *Queue) Push(f frame.RawFrame) {
	select {
	case <-q.done:
		return
	default:
	}

	select {
	case q.frames <- f:
		return
	default:
	}

	// Queue full: drop oldest to keep the producer path non-blocking.
	select {
	case <-q.frames:
		q.noteDrop()
	default:
	}

	select {
	case q.frames <- f:
	default:
		q.noteDrop()
	}
}

func (q *Queue) noteDrop() {
	total := q.dropped.Add(1)
	if shouldLog(&q.lastDropLog, time.Second) {
		log.Debug("dropped frame",
			zap.String("queue", q.name),
			zap.Uint64("total", total),
			zap.Int("buffered", len(q.frames)),
		)
	}
}

// Pop blocks until a frame is available or the queue is closed. A positive
// timeout bounds the wait.
func (q *Queue) Pop(timeout time.Duration) (frame.RawFrame, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case f := <-q.frames:
		return f, nil
	case <-q.done:
		return frame.RawFrame{}, ErrClosed
	case <-deadline:
		return frame.RawFrame{}, ErrTimeout
	}
}

// Discard drops every buffered frame, so the next Pop sees only frames
// pushed afterwards.
func (q *Queue) Discard() {
	for {
		select {
		case <-q.frames:
		default:
			return
		}
	}
}

// Dropped reports how many frames were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close wakes blocked consumers and makes later Push calls no-ops.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

func shouldLog(last *atomic.Int64, period time.Duration) bool {
	now := time.Now().UnixNano()
	for {
		prev := last.Load()
		if prev != 0 && time.Duration(now-prev) < period {
			return false
		}
		if last.CompareAndSwap(prev, now) {
			return true
		}
	}
}
