package reconcile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned by operations on a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file was created or moved into place.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file was removed.
	OpRemove
	// OpRename indicates a file was moved away.
	OpRename
)

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// FileChange is a debounced file system change.
type FileChange struct {
	// Path is the absolute path of the affected file.
	Path string

	// Op is the union of operations seen during the quiet period.
	Op Op
}

// pendingChange tracks a debounced change.
type pendingChange struct {
	change FileChange
	timer  *time.Timer
}

// Watcher watches a directory tree and delivers per-path debounced changes.
// Hidden files and directories are skipped, which also hides the temporary
// files of atomic writes.
type Watcher struct {
	fsw   *fsnotify.Watcher
	delay time.Duration

	mu      sync.Mutex
	dirs    map[string]bool
	pending map[string]*pendingChange
	closed  bool

	changes  chan FileChange
	errors   chan error
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewWatcher creates a watcher with the given debounce delay.
func NewWatcher(delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		delay:   delay,
		dirs:    make(map[string]bool),
		pending: make(map[string]*pendingChange),
		changes: make(chan FileChange, 100),
		errors:  make(chan error, 10),
		closeCh: make(chan struct{}),
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// WatchRecursive watches root and all its non-hidden subdirectories.
func (w *Watcher) WatchRecursive(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	return filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		if p != absRoot && isHidden(p) {
			return filepath.SkipDir
		}
		return w.watchDir(p)
	})
}

func (w *Watcher) watchDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.dirs[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

// Changes returns the debounced change channel.
// The channel is closed when the watcher is closed.
func (w *Watcher) Changes() <-chan FileChange {
	return w.changes
}

// Errors returns the error channel.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// WatchedDirs returns the number of watched directories.
func (w *Watcher) WatchedDirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)

	// Cancel all pending timers
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	// Wait for processLoop to finish
	w.closedWg.Wait()

	err := w.fsw.Close()
	close(w.changes)
	close(w.errors)
	return err
}

// processLoop handles incoming fsnotify events.
func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				// Channel full, drop error
			}
		}
	}
}

// handleEvent converts an fsnotify event and debounces it per path.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 || isHidden(ev.Name) {
		return
	}

	// Auto-watch new directories; they carry no document content.
	if op.Has(OpCreate) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.WatchRecursive(ev.Name)
			return
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	// Coalesce: combine operations and reset timer
	if p, exists := w.pending[ev.Name]; exists {
		p.change.Op |= op
		p.timer.Reset(w.delay)
		return
	}

	path := ev.Name
	p := &pendingChange{change: FileChange{Path: path, Op: op}}
	p.timer = time.AfterFunc(w.delay, func() {
		w.fire(path)
	})
	w.pending[path] = p
}

// fire delivers a pending change and removes it from the map.
func (w *Watcher) fire(path string) {
	w.mu.Lock()
	p, exists := w.pending[path]
	if !exists || w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	change := p.change
	// Send under the lock so Close cannot close the channel mid-send.
	select {
	case w.changes <- change:
	default:
		// Channel full, drop change
	}
	w.mu.Unlock()
}

// Flush immediately delivers all pending changes.
func (w *Watcher) Flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path, p := range w.pending {
		p.timer.Stop()
		paths = append(paths, path)
	}
	w.mu.Unlock()

	for _, path := range paths {
		w.fire(path)
	}
}

// convertOp converts fsnotify.Op to Op. Chmod is dropped.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}

func isHidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}
