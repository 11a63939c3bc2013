// Package app wires the core components together and manages their
// lifecycle.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/inkwell/internal/autosave"
	"github.com/dshills/inkwell/internal/config"
	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/metrics"
	"github.com/dshills/inkwell/internal/reconcile"
	"github.com/dshills/inkwell/internal/rpc"
	"github.com/dshills/inkwell/internal/store"
	"github.com/dshills/inkwell/internal/surface"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("application already running")
)

// shutdownTimeout bounds the final save on shutdown.
const shutdownTimeout = 5 * time.Second

// Application owns one editing session served to a host.
type Application struct {
	cfg    config.Config
	logger *zap.Logger

	promReg    *prometheus.Registry
	metrics    *metrics.Metrics
	store      *store.DirStore
	registry   *document.Registry
	autosave   *autosave.Scheduler
	reconciler *reconcile.Reconciler
	source     *reconcile.FSSource
	rpc        *rpc.Server
	binder     *surface.Binder

	running      atomic.Bool
	shutdownOnce sync.Once
}

// Options configures the application.
type Options struct {
	// Config holds validated settings.
	Config config.Config

	// Logger receives all component logs. Nil discards them.
	Logger *zap.Logger

	// Files are paths to open on startup.
	Files []string
}

// New creates an application with the given options.
func New(opts Options) (*Application, error) {
	app := &Application{
		cfg:    opts.Config,
		logger: opts.Logger,
	}
	if app.logger == nil {
		app.logger = zap.NewNop()
	}

	if err := app.bootstrap(); err != nil {
		return nil, err
	}
	app.openFiles(opts.Files)
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap() error {
	cfg := app.cfg

	// 1. Metrics
	app.promReg = prometheus.NewRegistry()
	app.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.promReg)

	// 2. Store
	ds, err := store.NewDirStore(cfg.Store.Root, store.WithMaxFileSize(cfg.Store.MaxFileSize))
	if err != nil {
		return &InitError{Component: "store", Err: err}
	}
	app.store = ds

	// 3. Registry
	app.registry = document.NewRegistry(ds, document.WithLogger(app.logger))
	app.metrics.TrackRegistry(app.registry)

	// 4. Autosave
	app.autosave = autosave.New(app.registry, ds,
		autosave.WithDelay(cfg.Autosave.Delay.Std()),
		autosave.WithMaxBackoff(cfg.Autosave.MaxBackoff.Std()),
		autosave.WithLogger(app.logger),
		autosave.WithMetrics(app.metrics),
	)

	// 5. Reconciler and file system source
	app.reconciler = reconcile.New(app.registry,
		reconcile.WithLogger(app.logger),
		reconcile.WithMetrics(app.metrics),
	)
	if cfg.Watch.Enabled {
		src, err := reconcile.NewFSSource(app.reconciler, ds, cfg.Watch.Debounce.Std(),
			reconcile.WithSourceLogger(app.logger),
		)
		if err != nil {
			// Watching is optional; the host can still report changes.
			app.logger.Warn("file watching disabled", zap.Error(err))
		} else {
			app.source = src
		}
	}

	// 6. Host bridge and surfaces
	app.rpc = rpc.New(app.registry, app.autosave, app.reconciler,
		rpc.WithLogger(app.logger),
		rpc.WithMetrics(app.metrics),
		rpc.WithScrollLock(cfg.Review.ScrollLock.Std()),
	)
	app.binder = surface.NewBinder(app.registry, app.rpc.SurfaceFactory(), surface.WithLogger(app.logger))

	app.logger.Info("initialized",
		zap.String("root", ds.Root()),
		zap.Duration("autosave_delay", cfg.Autosave.Delay.Std()),
		zap.Bool("watch", app.source != nil),
	)
	return nil
}

// openFiles opens startup files. Failures are logged and skipped.
func (app *Application) openFiles(files []string) {
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			app.logger.Warn("cannot open file", zap.String("path", f), zap.Error(err))
			continue
		}
		id, err := app.store.ID(abs)
		if err != nil {
			app.logger.Warn("file outside store root", zap.String("path", f), zap.Error(err))
			continue
		}
		if _, err := app.registry.Open(context.Background(), id); err != nil {
			app.logger.Warn("cannot open file", zap.String("path", f), zap.Error(err))
		}
	}
}

// Run serves the host over r and w until the host disconnects or ctx is
// done. The file watcher and the metrics endpoint run alongside.
func (app *Application) Run(ctx context.Context, r io.Reader, w io.WriteCloser) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return app.rpc.Serve(ctx, r, w)
	})

	if app.source != nil {
		g.Go(func() error {
			return app.source.Run(ctx)
		})
	}

	if addr := app.cfg.Metrics.Addr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           app.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			app.logger.Info("serving metrics", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return &InitError{Component: "metrics", Err: err}
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// Shutdown saves dirty documents and stops all components. It is safe to
// call more than once.
func (app *Application) Shutdown() {
	app.shutdownOnce.Do(app.shutdown)
}

// shutdown performs cleanup in reverse initialization order.
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 1. External inputs
	if app.source != nil {
		_ = app.source.Close()
	}
	app.binder.Close()
	app.rpc.Close()

	// 2. Persist what is left, then stop timers
	if err := app.autosave.SaveAll(ctx); err != nil {
		app.logger.Error("final save failed", zap.Error(err))
	}
	app.autosave.Close()

	stats := app.registry.Stats()
	app.logger.Info("shut down", zap.Int("open", stats.Open), zap.Int("dirty", stats.Dirty))
	_ = app.logger.Sync()
}

// IsRunning returns true if the application is serving a host.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the settings.
func (app *Application) Config() config.Config {
	return app.cfg
}

// Registry returns the document registry.
func (app *Application) Registry() *document.Registry {
	return app.registry
}

// Scheduler returns the autosave scheduler.
func (app *Application) Scheduler() *autosave.Scheduler {
	return app.autosave
}

// Reconciler returns the external change reconciler.
func (app *Application) Reconciler() *reconcile.Reconciler {
	return app.reconciler
}

// Store returns the document store.
func (app *Application) Store() *store.DirStore {
	return app.store
}

// Watching reports whether file system changes are reconciled.
func (app *Application) Watching() bool {
	return app.source != nil
}

// MetricsHandler returns the /metrics handler.
func (app *Application) MetricsHandler() http.Handler {
	return metrics.Handler(app.promReg)
}

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
