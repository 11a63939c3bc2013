// Package autosave persists dirty documents after a quiet period.
//
// Each document has two independent primitives: a debounce timer that is
// restarted by every edit, and a save lock with a retry bit. An edit that
// arrives while a save is in flight sets the retry bit; the save completion
// reschedules instead of the timer being resurrected. Writes for one
// document never overlap, and no edit is lost.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/logging"
	"github.com/dshills/inkwell/internal/metrics"
	"github.com/dshills/inkwell/internal/store"
)

// ErrSaveFailed indicates the store rejected a write.
var ErrSaveFailed = errors.New("save failed")

// Default timing.
const (
	DefaultDelay      = 3 * time.Second
	DefaultMaxBackoff = time.Minute
)

// Phase is the autosave state of one document.
type Phase int

const (
	// PhaseIdle means nothing is scheduled or running.
	PhaseIdle Phase = iota
	// PhasePending means a save is scheduled.
	PhasePending
	// PhaseSaving means a write is in flight.
	PhaseSaving
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a snapshot of a document's save state.
type State struct {
	Phase        Phase     `json:"phase"`
	Saving       bool      `json:"saving"`
	PendingRetry bool      `json:"pendingRetry"`
	LastSavedAt  time.Time `json:"lastSavedAt,omitzero"`
	LastError    string    `json:"lastError,omitempty"`
	Failures     int       `json:"failures"`
}

// docState is the per-document bookkeeping. Fields are guarded by
// Scheduler.mu.
type docState struct {
	id           string
	debounce     *Debouncer
	backoff      *backoff.ExponentialBackOff
	saving       bool
	pendingRetry bool
	lastSavedAt  time.Time
	lastError    error
	failures     int
}

// Scheduler saves dirty documents of a registry.
type Scheduler struct {
	reg   *document.Registry
	store store.Store

	delay      time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu     sync.Mutex
	states map[string]*docState
	closed bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDelay sets the quiet period before a background save.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithMaxBackoff caps the retry delay after repeated background failures.
func WithMaxBackoff(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxBackoff = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logging.Component(l, "autosave")
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a scheduler and subscribes it to edits in reg.
func New(reg *document.Registry, st store.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		reg:        reg,
		store:      st,
		delay:      DefaultDelay,
		maxBackoff: DefaultMaxBackoff,
		logger:     zap.NewNop(),
		now:        time.Now,
		states:     make(map[string]*docState),
	}
	for _, opt := range opts {
		opt(s)
	}

	reg.OnEdit(s.handleEdit)
	reg.OnChange(s.handleChange)
	return s
}

// Delay returns the debounce delay.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// handleEdit restarts the debounce for a dirty document and cancels it for
// a document that was edited back to its baseline.
func (s *Scheduler) handleEdit(doc document.Document) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	st := s.stateLocked(doc.ID)
	s.mu.Unlock()

	if doc.IsDirty {
		st.debounce.Call()
	} else {
		st.debounce.Cancel()
	}
}

// handleChange keeps per-document state in step with the registry.
func (s *Scheduler) handleChange(c document.Change) {
	switch c.Kind {
	case document.ChangeClosed:
		s.mu.Lock()
		st, ok := s.states[c.ID]
		delete(s.states, c.ID)
		s.mu.Unlock()
		if ok {
			st.debounce.Cancel()
		}

	case document.ChangeRenamed:
		s.mu.Lock()
		if st, ok := s.states[c.OldID]; ok {
			delete(s.states, c.OldID)
			st.id = c.ID
			s.states[c.ID] = st
		}
		s.mu.Unlock()

	case document.ChangeReplaced, document.ChangeDeleted:
		s.mu.Lock()
		st, ok := s.states[c.ID]
		if ok {
			st.pendingRetry = false
		}
		s.mu.Unlock()
		if ok {
			st.debounce.Cancel()
		}
	}
}

// stateLocked returns the state for id, creating it if needed.
// Caller must hold s.mu.
func (s *Scheduler) stateLocked(id string) *docState {
	if st, ok := s.states[id]; ok {
		return st
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.delay
	b.MaxInterval = s.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	st := &docState{id: id, backoff: b}
	st.debounce = NewDebouncer(s.delay, func() { s.fire(st) })
	s.states[id] = st
	return st
}

// fire runs when a document's debounce timer expires.
func (s *Scheduler) fire(st *docState) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if st.saving {
		st.pendingRetry = true
		s.mu.Unlock()
		return
	}
	id := st.id
	s.mu.Unlock()

	// Background failures are retried, never surfaced.
	_ = s.save(context.Background(), id, false)
}

// Save persists a document now. It is a no-op when the document is clean,
// and returns without writing when a save for it is already in flight; the
// in-flight save picks up newer content through the retry bit.
func (s *Scheduler) Save(ctx context.Context, id string) error {
	return s.save(ctx, document.NormalizeID(id), true)
}

// SaveAll saves every dirty document concurrently and returns the first
// error. Documents save independently; one failure does not cancel others.
func (s *Scheduler) SaveAll(ctx context.Context) error {
	var g errgroup.Group
	for _, doc := range s.reg.DirtyDocuments() {
		id := doc.ID
		g.Go(func() error {
			return s.save(ctx, id, true)
		})
	}
	return g.Wait()
}

func (s *Scheduler) save(ctx context.Context, id string, manual bool) error {
	doc, ok := s.reg.Get(id)
	if !ok {
		if manual {
			return &document.Error{Op: "save", ID: id, Err: document.ErrNotOpen}
		}
		return nil
	}
	if doc.IsDeleted {
		if manual {
			return &document.Error{Op: "save", ID: id, Err: document.ErrDeleted}
		}
		return nil
	}
	if !doc.IsDirty {
		return nil
	}

	s.mu.Lock()
	st := s.stateLocked(id)
	if st.saving {
		st.pendingRetry = true
		s.mu.Unlock()
		return nil
	}
	st.saving = true
	s.mu.Unlock()

	snapshot := doc.Content
	start := s.now()
	err := s.store.Write(ctx, id, snapshot)
	elapsed := s.now().Sub(start)
	s.metrics.RecordSave(manual, err, elapsed)

	if err != nil {
		s.mu.Lock()
		st.saving = false
		retry := st.pendingRetry
		st.pendingRetry = false
		st.failures++
		st.lastError = err
		next := st.backoff.NextBackOff()
		failures := st.failures
		closed := s.closed
		s.mu.Unlock()

		saveErr := &document.Error{Op: "save", ID: id, Err: fmt.Errorf("%w: %w", ErrSaveFailed, err)}
		if !closed {
			if manual && retry {
				st.debounce.Call()
			} else if !manual {
				st.debounce.CallAfter(next)
			}
		}
		s.logger.Warn("save failed",
			zap.String("id", id),
			zap.Bool("manual", manual),
			zap.Int("failures", failures),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
		return saveErr
	}

	// A rename while the write was in flight moves st.id; the snapshot then
	// landed at the old path and must be written again under the new one.
	s.mu.Lock()
	renamed := st.id != id
	s.mu.Unlock()

	// Record the baseline while still holding the save lock so a later save
	// cannot be overtaken by this one.
	var updated document.Document
	var markErr error
	if !renamed {
		updated, markErr = s.reg.MarkSaved(id, snapshot, doc.Baseline)
	}

	s.mu.Lock()
	st.saving = false
	retry := st.pendingRetry
	st.pendingRetry = false
	st.failures = 0
	st.lastError = nil
	st.lastSavedAt = s.now()
	st.backoff.Reset()
	current := st.id
	closed := s.closed
	s.mu.Unlock()

	switch {
	case errors.Is(markErr, document.ErrNotOpen):
		// Closed, or renamed before the state followed. The timer resolves
		// st.id when it fires and finds nothing to do for a closed document.
		retry = true
	case errors.Is(markErr, document.ErrBaselineChanged):
		// Replaced mid-save: the replace stands. Only edits made after it
		// are saved.
		s.logger.Info("document replaced during save", zap.String("id", id))
		retry = retry && s.dirty(current)
	case renamed:
		s.logger.Info("document renamed during save", zap.String("id", id), zap.String("new_id", current))
		retry = s.dirty(current)
	case markErr == nil && updated.IsDirty:
		// An edit arrived mid-save.
		retry = true
	}
	if retry && !closed {
		st.debounce.Call()
	}

	s.logger.Debug("saved",
		zap.String("id", id),
		zap.Bool("manual", manual),
		zap.Int("bytes", len(snapshot)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (s *Scheduler) dirty(id string) bool {
	doc, ok := s.reg.Get(id)
	return ok && doc.IsDirty
}

// State returns the save state of a document.
func (s *Scheduler) State(id string) (State, bool) {
	s.mu.Lock()
	st, ok := s.states[document.NormalizeID(id)]
	if !ok {
		s.mu.Unlock()
		return State{}, false
	}
	state := State{
		Saving:       st.saving,
		PendingRetry: st.pendingRetry,
		LastSavedAt:  st.lastSavedAt,
		Failures:     st.failures,
	}
	if st.lastError != nil {
		state.LastError = st.lastError.Error()
	}
	s.mu.Unlock()

	switch {
	case state.Saving:
		state.Phase = PhaseSaving
	case st.debounce.IsPending():
		state.Phase = PhasePending
	default:
		state.Phase = PhaseIdle
	}
	return state, true
}

// Close stops all timers. In-flight saves run to completion but schedule
// nothing further.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	states := make([]*docState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	s.mu.Unlock()

	for _, st := range states {
		st.debounce.Cancel()
	}
}
