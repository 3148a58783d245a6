package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hotel_proxy/internal/adapters/observability"
	"hotel_proxy/internal/domain"
)

type writeTask struct {
	key string
	v   any
}

// WriteBehind performs cache writes off the request path. Callers enqueue and
// return immediately; a full queue drops the write, which only costs a later
// cache miss.
type WriteBehind struct {
	cache   domain.Cache
	tasks   chan writeTask
	timeout time.Duration
	onWrite func(key string, err error)
	log     zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup

	// pending counts accepted writes not yet attempted. It may go up while
	// Wait is blocked, which a WaitGroup does not allow.
	pendMu   sync.Mutex
	pendCond *sync.Cond
	pending  int
}

type WriteOption func(*WriteBehind)

// WithWriteHook registers fn to run after every attempted write.
func WithWriteHook(fn func(key string, err error)) WriteOption {
	return func(w *WriteBehind) { w.onWrite = fn }
}

func WithWriteTimeout(d time.Duration) WriteOption {
	return func(w *WriteBehind) { w.timeout = d }
}

func NewWriteBehind(c domain.Cache, queue, workers int, opts ...WriteOption) *WriteBehind {
	if queue <= 0 {
		queue = 256
	}
	if workers <= 0 {
		workers = 1
	}
	w := &WriteBehind{
		cache:   c,
		tasks:   make(chan writeTask, queue),
		timeout: 5 * time.Second,
		log:     observability.Component("write-behind"),
	}
	w.pendCond = sync.NewCond(&w.pendMu)
	for _, o := range opts {
		o(w)
	}
	for i := 0; i < workers; i++ {
		w.workers.Add(1)
		go w.run()
	}
	return w
}

// Enqueue schedules a write and reports whether it was accepted.
func (w *WriteBehind) Enqueue(key string, v any) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		observability.ObserveCacheWrite("dropped")
		return false
	}
	w.addPending(1)
	select {
	case w.tasks <- writeTask{key: key, v: v}:
		observability.ObserveCacheWrite("queued")
		return true
	default:
		w.addPending(-1)
		observability.ObserveCacheWrite("dropped")
		w.log.Warn().Str("key", key).Msg("cache write queue full, dropping write")
		return false
	}
}

// Wait blocks until every accepted write has been attempted, including writes
// enqueued while it waits.
func (w *WriteBehind) Wait() {
	w.pendMu.Lock()
	for w.pending > 0 {
		w.pendCond.Wait()
	}
	w.pendMu.Unlock()
}

func (w *WriteBehind) addPending(n int) {
	w.pendMu.Lock()
	w.pending += n
	if w.pending == 0 {
		w.pendCond.Broadcast()
	}
	w.pendMu.Unlock()
}

// Close stops accepting writes, drains the queue and stops the workers.
func (w *WriteBehind) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.tasks)
	w.mu.Unlock()
	w.workers.Wait()
}

func (w *WriteBehind) run() {
	defer w.workers.Done()
	for t := range w.tasks {
		w.write(t)
	}
}

func (w *WriteBehind) write(t writeTask) {
	defer w.addPending(-1)
	// Request contexts are gone by now; writes get their own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := w.cache.Set(ctx, t.key, t.v)
	if err != nil {
		observability.ObserveCacheWrite("failed")
		w.log.Error().Err(err).Str("key", t.key).Msg("cache write failed")
	} else {
		observability.ObserveCacheWrite("written")
	}
	if w.onWrite != nil {
		w.onWrite(t.key, err)
	}
}
