package cache

import (
	"log/slog"
	"sync"
	"time"
)

type writeOp struct {
	store   Store
	key     string
	payload interface{}
	ttl     time.Duration
}

// writer applies cache writes on a detached task so a slow or failing store
// never sits on the caller's result path. The queue is bounded; when it is
// full the write is dropped and logged.
type writer struct {
	mu     sync.Mutex
	closed bool
	ops    chan writeOp
	done   chan struct{}
	log    *slog.Logger
}

func newWriter(buffer int, log *slog.Logger) *writer {
	w := &writer{
		ops:  make(chan writeOp, buffer),
		done: make(chan struct{}),
		log:  log,
	}
	go w.run()
	return w
}

func (w *writer) run() {
	defer close(w.done)
	for op := range w.ops {
		if err := op.store.Set(op.key, op.payload, op.ttl); err != nil {
			w.log.Warn("cache write failed", slog.String("key", op.key), slog.String("error", err.Error()))
		}
	}
}

// enqueue never blocks and never fails the caller.
func (w *writer) enqueue(op writeOp) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.log.Warn("cache writer closed, dropping write", slog.String("key", op.key))
		return
	}

	select {
	case w.ops <- op:
	default:
		w.log.Warn("cache write queue full, dropping write", slog.String("key", op.key))
	}
}

// close drains in-flight writes before returning.
func (w *writer) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ops)
	}
	w.mu.Unlock()
	<-w.done
}
