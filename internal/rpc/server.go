// Package rpc exposes the core to a host process over JSON-RPC 2.0.
//
// The host drives documents, review and reconciliation through methods and
// receives registry changes, surface updates and flush results as server
// push notifications.
package rpc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/autosave"
	"github.com/dshills/inkwell/internal/diff"
	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/logging"
	"github.com/dshills/inkwell/internal/metrics"
	"github.com/dshills/inkwell/internal/reconcile"
	"github.com/dshills/inkwell/internal/review"
)

// Notification methods pushed to the host.
const (
	NotifyDocumentChanged   = "document.changed"
	NotifyFlushed           = "app.flushed"
	NotifyScrollTo          = "review.scrollTo"
	NotifySurfaceCreate     = "surface.create"
	NotifySurfaceSetContent = "surface.setContent"
	NotifySurfaceDestroy    = "surface.destroy"
)

// Server serves one host connection at a time.
type Server struct {
	reg        *document.Registry
	sched      *autosave.Scheduler
	rec        *reconcile.Reconciler
	flusher    *autosave.ExitFlusher
	logger     *zap.Logger
	metrics    *metrics.Metrics
	scrollLock time.Duration

	mu       sync.Mutex
	srv      *jrpc2.Server
	syncers  map[string]*review.Syncer
	surfaces map[string]*remoteSurface
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logging.Component(l, "rpc")
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithScrollLock sets the echo suppression window of review scrolling.
func WithScrollLock(d time.Duration) Option {
	return func(s *Server) {
		s.scrollLock = d
	}
}

// New creates a server over the given components.
func New(reg *document.Registry, sched *autosave.Scheduler, rec *reconcile.Reconciler, opts ...Option) *Server {
	s := &Server{
		reg:        reg,
		sched:      sched,
		rec:        rec,
		logger:     zap.NewNop(),
		scrollLock: review.DefaultScrollLock,
		syncers:    make(map[string]*review.Syncer),
		surfaces:   make(map[string]*remoteSurface),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.flusher = autosave.NewExitFlusher(sched, func(resp autosave.FlushResponse) {
		s.push(NotifyFlushed, resp)
	})
	reg.OnChange(s.handleChange)
	return s
}

// Handlers returns the method table.
func (s *Server) Handlers() handler.Map {
	methods := map[string]jrpc2.Handler{
		"document.open":      s.openDocument,
		"document.new":       s.newDocument,
		"document.update":    s.updateDocument,
		"document.close":     s.closeDocument,
		"document.setActive": s.setActive,
		"document.get":       s.getDocument,
		"document.list":      s.listDocuments,
		"document.stats":     s.stats,
		"document.save":      s.saveDocument,
		"document.saveAll":   s.saveAll,
		"document.state":     s.saveState,

		"review.start":  s.startReview,
		"review.view":   s.reviewView,
		"review.accept": s.acceptSuggestion,
		"review.reject": s.rejectSuggestion,
		"review.scroll": s.scroll,

		"diff.compute":    s.computeDiff,
		"reconcile.apply": s.applyEvent,
		"surface.changed": s.surfaceChanged,

		"app.flushBeforeExit": s.flushBeforeExit,
	}

	m := make(handler.Map, len(methods))
	for name, h := range methods {
		m[name] = s.instrument(name, h)
	}
	return m
}

// instrument maps domain errors to JSON-RPC errors and records the call.
func (s *Server) instrument(method string, h jrpc2.Handler) jrpc2.Handler {
	return func(ctx context.Context, req *jrpc2.Request) (any, error) {
		start := time.Now()
		result, err := h(ctx, req)
		err = rpcError(err)
		s.metrics.RecordRPC(method, err)
		if err != nil {
			s.logger.Debug("request failed", zap.String("method", method), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			return nil, err
		}
		s.logger.Debug("request", zap.String("method", method), zap.Duration("elapsed", time.Since(start)))
		return result, nil
	}
}

// Attach sets the server used for push notifications. Nil detaches.
func (s *Server) Attach(srv *jrpc2.Server) {
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()
}

// Serve answers requests read from r until the peer disconnects or ctx is
// done. Messages are newline delimited.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.WriteCloser) error {
	srv := jrpc2.NewServer(s.Handlers(), &jrpc2.ServerOptions{
		AllowPush: true,
		Logger:    func(text string) { s.logger.Debug(text) },
	})
	s.Attach(srv)
	defer s.Attach(nil)

	srv.Start(channel.Line(r, w))
	stop := context.AfterFunc(ctx, srv.Stop)
	defer stop()

	err := srv.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close stops scroll timers.
func (s *Server) Close() {
	s.mu.Lock()
	syncers := s.syncers
	s.syncers = make(map[string]*review.Syncer)
	s.mu.Unlock()

	for _, sy := range syncers {
		sy.Stop()
	}
}

// push sends a notification to the host if one is attached.
func (s *Server) push(method string, params any) {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Notify(context.Background(), method, params); err != nil {
		s.logger.Debug("push failed", zap.String("method", method), zap.Error(err))
	}
}

// handleChange forwards registry changes to the host.
func (s *Server) handleChange(c document.Change) {
	switch c.Kind {
	case document.ChangeClosed, document.ChangeAccepted, document.ChangeRejected,
		document.ChangeReplaced, document.ChangeDeleted:
		s.dropSyncer(c.ID)
	case document.ChangeRenamed:
		s.dropSyncer(c.OldID)
	}
	s.push(NotifyDocumentChanged, c)
}

func (s *Server) dropSyncer(id string) {
	s.mu.Lock()
	sy, ok := s.syncers[id]
	delete(s.syncers, id)
	s.mu.Unlock()
	if ok {
		sy.Stop()
	}
}

// syncer returns the scroll synchronizer of a document under review.
func (s *Server) syncer(id string) *review.Syncer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sy, ok := s.syncers[id]; ok {
		return sy
	}
	sy := review.NewSyncer(s.scrollLock, func(target diff.Side, ratio float64) {
		s.push(NotifyScrollTo, scrollNotice{ID: id, Side: target, Ratio: ratio})
	})
	s.syncers[id] = sy
	return sy
}
