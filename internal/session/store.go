package session

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// Sentinel errors returned by the store.
var (
	// ErrNotFound covers unknown and evicted session IDs alike; an
	// evicted session is indistinguishable from one that never existed.
	ErrNotFound = errors.New("session not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session store closed")
)

// Config configures the store's eviction policy.
type Config struct {
	// TTL evicts sessions older than this, regardless of status
	// (default: 1h).
	TTL time.Duration

	// MaxSessions bounds the total session count; the least recently
	// created session is evicted first (default: 1000).
	MaxSessions int

	// SweepInterval is how often the TTL sweeper runs (default: 1m).
	SweepInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           time.Hour,
		MaxSessions:   1000,
		SweepInterval: time.Minute,
	}
}

// entry wraps a session with its own lock so pollers of one session never
// contend with writers of another.
type entry struct {
	mu sync.RWMutex
	s  Session

	// recent unit completions drive the throughput estimate
	unitDurations []time.Duration
	recentTokens  int
	recentElapsed time.Duration
	lastUnitAt    time.Time
}

// Store is the injectable session registry. It owns session lifetimes:
// construction, TTL sweep, and shutdown.
type Store struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	sessions *lru.Cache[string, *entry]
	closed   bool

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewStore creates a store and starts its TTL sweeper.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, *entry](cfg.MaxSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	s := &Store{
		cfg:       cfg,
		logger:    logger,
		sessions:  cache,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go s.sweep()
	return s, nil
}

// Close stops the sweeper and rejects further writes.
func (st *Store) Close() error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	st.closed = true
	st.mu.Unlock()

	close(st.stopSweep)
	<-st.sweepDone
	return nil
}

// sweep evicts sessions past their TTL. Count-based eviction is handled
// by the LRU cache itself on insert.
func (st *Store) sweep() {
	defer close(st.sweepDone)
	ticker := time.NewTicker(st.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stopSweep:
			return
		case <-ticker.C:
			st.evictExpired()
		}
	}
}

func (st *Store) evictExpired() {
	cutoff := time.Now().Add(-st.cfg.TTL)
	evicted := 0
	for _, id := range st.sessions.Keys() {
		e, ok := st.sessions.Peek(id)
		if !ok {
			continue
		}
		e.mu.RLock()
		expired := e.s.CreatedAt.Before(cutoff)
		e.mu.RUnlock()
		if expired {
			st.sessions.Remove(id)
			evicted++
		}
	}
	if evicted > 0 {
		st.logger.Debug("evicted expired sessions", zap.Int("count", evicted))
	}
}

// Create allocates a new session in the created state. Every call yields
// a fresh ID; callers cannot pre-specify one.
func (st *Store) Create(sourceRef string) (Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.closed {
		return Session{}, ErrClosed
	}

	e := &entry{
		s: Session{
			ID:        uuid.New().String(),
			SourceRef: sourceRef,
			Status:    StatusCreated,
			CreatedAt: time.Now(),
		},
	}
	st.sessions.Add(e.s.ID, e)

	st.logger.Debug("session created",
		zap.String("session_id", e.s.ID),
		zap.String("source_ref", sourceRef),
	)
	return e.s, nil
}

// Get returns a snapshot of the session. Reads have no side effects.
func (st *Store) Get(id string) (Session, error) {
	e, ok := st.sessions.Peek(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneSession(&e.s), nil
}

// All returns snapshots of every tracked session, for administrative
// listing.
func (st *Store) All() []Session {
	keys := st.sessions.Keys()
	out := make([]Session, 0, len(keys))
	for _, id := range keys {
		if s, err := st.Get(id); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Progress returns the derived progress percentage (0..100).
func (st *Store) Progress(id string) (float64, error) {
	s, err := st.Get(id)
	if err != nil {
		return 0, err
	}
	return s.Progress, nil
}

// update applies fn to the session under its write lock, then refreshes
// the derived progress. Progress never decreases.
func (st *Store) update(id string, fn func(*entry) error) error {
	e, ok := st.sessions.Peek(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e); err != nil {
		return err
	}

	if pct := rawProgress(&e.s); pct > e.s.Progress {
		e.s.Progress = pct
	}
	return nil
}

// Start moves the session from created to running.
func (st *Store) Start(id string) error {
	return st.update(id, func(e *entry) error {
		if e.s.Status != StatusCreated {
			return fmt.Errorf("cannot start session in state %s", e.s.Status)
		}
		e.s.Status = StatusRunning
		e.s.StartedAt = time.Now()
		e.lastUnitAt = e.s.StartedAt
		return nil
	})
}

// SetChunkTotal records the chunk count after chunking.
func (st *Store) SetChunkTotal(id string, total int) error {
	return st.update(id, func(e *entry) error {
		e.s.Chunks.Total = total
		return nil
	})
}

// ChunkDone marks one chunk processed.
func (st *Store) ChunkDone(id string, index int) error {
	return st.update(id, func(e *entry) error {
		if e.s.Chunks.Completed < e.s.Chunks.Total {
			e.s.Chunks.Completed++
		}
		e.s.Chunks.CurrentIndex = index
		e.recordUnit(0)
		return nil
	})
}

// SetTaskTotal records the task count after decomposition.
func (st *Store) SetTaskTotal(id string, total int) error {
	return st.update(id, func(e *entry) error {
		e.s.Tasks.Total = total
		return nil
	})
}

// TaskStarted records the label of a task entering execution. Labels from
// concurrent tasks may interleave; the field is informational only.
func (st *Store) TaskStarted(id, label string) error {
	return st.update(id, func(e *entry) error {
		e.s.Tasks.CurrentLabel = label
		return nil
	})
}

// TaskDone marks one task finished and folds its token usage into the
// throughput estimate. Safe against out-of-order completions: bookkeeping
// is counter-based.
func (st *Store) TaskDone(id string, tokens int) error {
	return st.update(id, func(e *entry) error {
		if e.s.Tasks.Completed < e.s.Tasks.Total {
			e.s.Tasks.Completed++
		}
		e.s.Tokens.TotalTokens += tokens
		e.recordUnit(tokens)
		e.refreshEstimate()
		return nil
	})
}

// Complete finishes the session with its result, exactly once.
func (st *Store) Complete(id string, result *Result) error {
	return st.update(id, func(e *entry) error {
		if e.s.Status != StatusRunning {
			return fmt.Errorf("cannot complete session in state %s", e.s.Status)
		}
		e.s.Status = StatusCompleted
		e.s.Result = result
		e.s.EndedAt = time.Now()
		e.s.EstimatedRemaining = 0
		return nil
	})
}

// UpdateResult applies fn to a completed session's result under the
// session lock. Used for post-completion conflict resolution.
func (st *Store) UpdateResult(id string, fn func(*Result) error) error {
	return st.update(id, func(e *entry) error {
		if e.s.Status != StatusCompleted || e.s.Result == nil {
			return fmt.Errorf("session %s has no result to update", id)
		}
		return fn(e.s.Result)
	})
}

// Fail marks the session failed with a human-readable error, exactly once.
func (st *Store) Fail(id string, msg string) error {
	return st.update(id, func(e *entry) error {
		if e.s.Status != StatusRunning {
			return fmt.Errorf("cannot fail session in state %s", e.s.Status)
		}
		e.s.Status = StatusFailed
		e.s.Error = msg
		e.s.EndedAt = time.Now()
		e.s.EstimatedRemaining = 0
		return nil
	})
}

// Len returns the number of tracked sessions.
func (st *Store) Len() int {
	return st.sessions.Len()
}

// recordUnit appends one completed work unit to the moving window.
// Called with the entry lock held.
func (e *entry) recordUnit(tokens int) {
	now := time.Now()
	if !e.lastUnitAt.IsZero() {
		d := now.Sub(e.lastUnitAt)
		e.unitDurations = append(e.unitDurations, d)
		if len(e.unitDurations) > 8 {
			e.unitDurations = e.unitDurations[1:]
		}
		e.recentElapsed += d
		e.recentTokens += tokens
	}
	e.lastUnitAt = now
}

// refreshEstimate recomputes token rates and remaining time from the
// moving window. Called with the entry lock held.
func (e *entry) refreshEstimate() {
	if e.recentElapsed > 0 {
		e.s.Tokens.CurrentRate = float64(e.recentTokens) / e.recentElapsed.Seconds()
	}
	if elapsed := time.Since(e.s.StartedAt); elapsed > 0 && !e.s.StartedAt.IsZero() {
		e.s.Tokens.AverageRate = float64(e.s.Tokens.TotalTokens) / elapsed.Seconds()
	}

	remaining := (e.s.Tasks.Total - e.s.Tasks.Completed) + (e.s.Chunks.Total - e.s.Chunks.Completed)
	if remaining <= 0 || len(e.unitDurations) == 0 {
		e.s.EstimatedRemaining = 0
		return
	}
	var sum time.Duration
	for _, d := range e.unitDurations {
		sum += d
	}
	avg := sum / time.Duration(len(e.unitDurations))
	e.s.EstimatedRemaining = avg * time.Duration(remaining)
}

// cloneSession deep-copies the poller-visible state. Manual conflict
// resolution mutates a completed session's field set, merged set, and
// conflict records, so every map a poller can range over is copied.
func cloneSession(s *Session) Session {
	out := *s
	if s.Result != nil {
		r := *s.Result
		r.Fields = maps.Clone(r.Fields)
		if r.Data != nil {
			data := make(map[fields.InformationType]fields.Set, len(r.Data))
			for t, set := range r.Data {
				data[t] = maps.Clone(set)
			}
			r.Data = data
		}
		if r.Multi != nil {
			m := *r.Multi
			m.Merged = maps.Clone(r.Multi.Merged)
			m.Conflicts = slices.Clone(r.Multi.Conflicts)
			r.Multi = &m
		}
		out.Result = &r
	}
	return out
}
