package partition

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SyncMirror writes every snapshot inline. Failures are logged and dropped.
type SyncMirror struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewSyncMirror(store Store, timeout time.Duration, logger *slog.Logger) *SyncMirror {
	return &SyncMirror{
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "partition_mirror"),
	}
}

func (m *SyncMirror) Write(key string, payload []byte) {
	save(m.store, m.timeout, m.logger, key, payload)
}

// AsyncMirror writes snapshots on a single background worker. Snapshots for a key that have not been written yet
// are replaced by newer ones, so the last write for a key is always the most recent snapshot.
type AsyncMirror struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string][]byte
	order   []string
	// idle is nil when nothing is queued or in flight, otherwise it is closed once that becomes true.
	idle    chan struct{}
	closed  bool
	stopped chan struct{}
}

// NewAsyncMirror starts the worker. Close must be called to stop it.
func NewAsyncMirror(store Store, timeout time.Duration, logger *slog.Logger) *AsyncMirror {
	m := &AsyncMirror{
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "partition_mirror"),
		pending: make(map[string][]byte),
		stopped: make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	go m.run()
	return m
}

// Write queues the snapshot and returns immediately.
func (m *AsyncMirror) Write(key string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.logger.Warn("mirror is closed, snapshot dropped", "key", key)
		return
	}
	if _, queued := m.pending[key]; !queued {
		m.order = append(m.order, key)
	}
	m.pending[key] = payload
	if m.idle == nil {
		m.idle = make(chan struct{})
	}
	m.cond.Signal()
}

// Flush blocks until every snapshot accepted so far has been written, or ctx is done.
func (m *AsyncMirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting snapshots, drains the queue and waits for the worker to exit.
func (m *AsyncMirror) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()

	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *AsyncMirror) run() {
	defer close(m.stopped)
	for {
		m.mu.Lock()
		for len(m.order) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.order) == 0 {
			m.mu.Unlock()
			return
		}
		key := m.order[0]
		m.order = m.order[1:]
		payload := m.pending[key]
		delete(m.pending, key)
		m.mu.Unlock()

		save(m.store, m.timeout, m.logger, key, payload)

		m.mu.Lock()
		if len(m.order) == 0 && m.idle != nil {
			close(m.idle)
			m.idle = nil
		}
		m.mu.Unlock()
	}
}

func save(store Store, timeout time.Duration, logger *slog.Logger, key string, payload []byte) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := store.Save(ctx, key, payload); err != nil {
		logger.Error("failed to write cart partition", "key", key, "error", err)
		return
	}
	logger.Debug("cart partition written", "key", key, "bytes", len(payload))
}
