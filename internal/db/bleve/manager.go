// Package bleve provides searcher handles over an on-disk bleve index.
package bleve

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	index "github.com/blevesearch/bleve_index_api"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/metrics"
)

// snapshot is a point-in-time reader shared by every handle leased from it.
type snapshot struct {
	reader   index.IndexReader
	openedAt time.Time
	gen      uint64
	refs     int
	retired  bool
}

// handle is the db.Handle issued by Manager.
type handle struct {
	owner    *Manager
	snap     *snapshot
	released atomic.Bool
}

func (h *handle) Reader() index.IndexReader     { return h.snap.reader }
func (h *handle) Mapping() mapping.IndexMapping { return h.owner.index.Mapping() }
func (h *handle) RefreshedAt() time.Time        { return h.snap.openedAt }

// Manager leases reader snapshots of a bleve index. Snapshots are reference
// counted; a retired snapshot is closed once its last handle comes back.
type Manager struct {
	index  bleve.Index
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	current    *snapshot
	writeGen   uint64
	dirtySince time.Time
	closed     bool

	refreshes singleflight.Group
}

var _ db.IndexAccess = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager wraps an open index. The manager owns idx and closes it in Close.
func NewManager(idx bleve.Index, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{index: idx, logger: logger, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Index returns the wrapped index.
func (m *Manager) Index() bleve.Index { return m.index }

// Acquire leases a handle whose view is at most maxStaleness behind the
// latest write. A zero maxStaleness demands a view covering every write
// completed before the call.
func (m *Manager) Acquire(ctx context.Context, maxStaleness time.Duration) (db.Handle, error) {
	m.mu.Lock()
	wantGen := m.writeGen
	m.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, db.ErrIndexClosed
		}
		if snap := m.current; snap != nil && m.acceptableLocked(snap, wantGen, maxStaleness) {
			snap.refs++
			m.mu.Unlock()
			metrics.IndexHandlesLeased.Inc()
			return &handle{owner: m, snap: snap}, nil
		}
		m.mu.Unlock()

		if _, err, _ := m.refreshes.Do("refresh", func() (interface{}, error) {
			return nil, m.refresh()
		}); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) acceptableLocked(snap *snapshot, wantGen uint64, maxStaleness time.Duration) bool {
	if snap.gen >= wantGen {
		return true
	}
	if maxStaleness <= 0 || m.dirtySince.IsZero() {
		return false
	}
	return m.now().Sub(m.dirtySince) <= maxStaleness
}

// refresh opens a new reader and installs it as the current snapshot.
func (m *Manager) refresh() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return db.ErrIndexClosed
	}
	gen := m.writeGen
	m.mu.Unlock()

	started := m.now()
	adv, err := m.index.Advanced()
	if err != nil {
		return &db.Error{Op: db.OpReader, Err: err}
	}
	reader, err := adv.Reader()
	if err != nil {
		return &db.Error{Op: db.OpReader, Err: err}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = m.closeReader(reader)
		return db.ErrIndexClosed
	}
	next := &snapshot{reader: reader, openedAt: started, gen: gen, refs: 1}
	prev := m.current
	m.current = next
	if gen == m.writeGen {
		m.dirtySince = time.Time{}
	} else {
		m.dirtySince = started
	}
	stale := prev != nil && m.retireLocked(prev)
	m.mu.Unlock()

	if stale {
		if err := m.closeReader(prev.reader); err != nil {
			m.logger.Warn("close retired index reader", zap.Error(err))
		}
	}
	metrics.IndexRefreshTotal.Inc()
	m.logger.Debug("index reader refreshed", zap.Uint64("generation", gen))
	return nil
}

// retireLocked drops the manager's own reference and reports whether the
// snapshot has no remaining holders.
func (m *Manager) retireLocked(snap *snapshot) bool {
	snap.retired = true
	snap.refs--
	return snap.refs == 0
}

// Release returns a handle obtained from Acquire. Releasing the same handle
// twice or a handle from another manager is an error.
func (m *Manager) Release(h db.Handle) error {
	hh, ok := h.(*handle)
	if !ok || hh.owner != m {
		return db.ErrForeignHandle
	}
	if !hh.released.CompareAndSwap(false, true) {
		return db.ErrHandleReleased
	}
	metrics.IndexHandlesLeased.Dec()

	m.mu.Lock()
	hh.snap.refs--
	done := hh.snap.retired && hh.snap.refs == 0
	m.mu.Unlock()

	if done {
		return m.closeReader(hh.snap.reader)
	}
	return nil
}

// Update applies a batch built by fn and marks existing snapshots stale.
func (m *Manager) Update(fn func(b *bleve.Batch) error) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return db.ErrIndexClosed
	}

	b := m.index.NewBatch()
	if err := fn(b); err != nil {
		return err
	}
	if err := m.index.Batch(b); err != nil {
		return &db.Error{Op: db.OpBatch, Err: err}
	}

	m.mu.Lock()
	m.writeGen++
	if m.dirtySince.IsZero() {
		m.dirtySince = m.now()
	}
	m.mu.Unlock()
	return nil
}

// Ping reports whether the index is open and readable.
func (m *Manager) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return db.ErrIndexClosed
	}
	if _, err := m.index.DocCount(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// DirtyAge reports how long the current snapshot has lagged behind writes.
// Zero means the snapshot is up to date.
func (m *Manager) DirtyAge() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirtySince.IsZero() {
		return 0
	}
	return m.now().Sub(m.dirtySince)
}

// Close retires the current snapshot and closes the index. Outstanding
// handles should be released first.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	prev := m.current
	m.current = nil
	stale := prev != nil && m.retireLocked(prev)
	m.mu.Unlock()

	if stale {
		if err := m.closeReader(prev.reader); err != nil {
			m.logger.Warn("close index reader", zap.Error(err))
		}
	}
	return m.index.Close()
}

func (m *Manager) closeReader(r index.IndexReader) error {
	if err := r.Close(); err != nil {
		return &db.Error{Op: db.OpReaderClose, Err: err}
	}
	return nil
}
