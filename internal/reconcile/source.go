package reconcile

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/logging"
	"github.com/dshills/inkwell/internal/store"
)

// FSSource turns file system changes under a directory store into
// reconciler events for open documents.
//
// A write whose disk text equals the document baseline is the echo of a
// save and is ignored. Any other write replaces the document. A file that
// is gone after a remove or rename marks the document deleted.
type FSSource struct {
	rec     *Reconciler
	store   *store.DirStore
	watcher *Watcher
	logger  *zap.Logger
	applied func(Event, Outcome)
}

// SourceOption configures an FSSource.
type SourceOption func(*FSSource)

// WithSourceLogger sets the logger.
func WithSourceLogger(l *zap.Logger) SourceOption {
	return func(s *FSSource) {
		s.logger = logging.Component(l, "fswatch")
	}
}

// OnApplied registers a callback for every event the source applied.
func OnApplied(fn func(Event, Outcome)) SourceOption {
	return func(s *FSSource) {
		s.applied = fn
	}
}

// NewFSSource watches the root of ds. Changes are debounced per path by
// delay.
func NewFSSource(rec *Reconciler, ds *store.DirStore, delay time.Duration, opts ...SourceOption) (*FSSource, error) {
	w, err := NewWatcher(delay)
	if err != nil {
		return nil, err
	}
	if err := w.WatchRecursive(ds.Root()); err != nil {
		w.Close()
		return nil, err
	}

	s := &FSSource{
		rec:     rec,
		store:   ds,
		watcher: w,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run delivers changes until ctx is done, then closes the watcher.
func (s *FSSource) Run(ctx context.Context) error {
	defer s.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case change, ok := <-s.watcher.Changes():
			if !ok {
				return nil
			}
			s.Handle(ctx, change)

		case err, ok := <-s.watcher.Errors():
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops watching. Run returns once the watcher is closed.
func (s *FSSource) Close() error {
	return s.watcher.Close()
}

// Flush delivers pending changes without waiting for the quiet period.
func (s *FSSource) Flush() {
	s.watcher.Flush()
}

// Handle applies one file system change.
func (s *FSSource) Handle(ctx context.Context, change FileChange) {
	id, err := s.store.ID(change.Path)
	if err != nil {
		return
	}
	doc, ok := s.rec.Registry().Get(id)
	if !ok {
		// Only open documents are reconciled.
		return
	}

	if change.Op.Has(OpRemove) || change.Op.Has(OpRename) {
		if _, err := os.Stat(change.Path); errors.Is(err, os.ErrNotExist) {
			if !doc.IsDeleted {
				s.apply(Event{Kind: KindDelete, ID: id})
			}
			return
		}
	}

	text, err := s.store.Read(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			if !doc.IsDeleted {
				s.apply(Event{Kind: KindDelete, ID: id})
			}
			return
		}
		s.logger.Warn("read changed file", zap.String("id", id), zap.Error(err))
		return
	}

	if text == doc.OriginalContent && !doc.IsDeleted {
		return
	}
	s.apply(Event{Kind: KindReplace, ID: id, Text: text})
}

func (s *FSSource) apply(ev Event) {
	out, err := s.rec.Apply(ev)
	if err != nil {
		s.logger.Debug("change not applied", zap.Stringer("kind", ev.Kind), zap.String("id", ev.ID), zap.Error(err))
		return
	}
	s.logger.Info("external change applied", zap.Stringer("kind", ev.Kind), zap.String("id", ev.ID))
	if s.applied != nil {
		s.applied(ev, out)
	}
}
