// Package surface binds editing surfaces to open documents.
//
// A Binder owns exactly one live surface per open document in edit view.
// Surfaces are destroyed when their document enters suggestion review or is
// closed, and recreated when it returns to edit view.
package surface

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/codec"
	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/logging"
)

// Surface is a structured document editor driven by the core.
type Surface interface {
	// SetContent replaces the displayed document.
	SetContent(doc codec.Doc, preserveSelection bool)

	// Content returns the displayed document.
	Content() codec.Doc

	// Destroy releases the surface. It is not used afterwards.
	Destroy()
}

// Factory creates a surface for a document. onChange must be called with
// the new document whenever the user edits it.
type Factory func(id string, initial codec.Doc, onChange func(codec.Doc)) Surface

// binding ties a surface to the current id of its document.
type binding struct {
	id      string
	surface Surface
}

// Binder keeps surfaces in step with a registry.
type Binder struct {
	reg     *document.Registry
	factory Factory
	logger  *zap.Logger

	mu       sync.Mutex
	bindings map[string]*binding
	closed   bool
}

// Option configures a Binder.
type Option func(*Binder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Binder) {
		b.logger = logging.Component(l, "surface")
	}
}

// NewBinder creates a binder and attaches surfaces to documents already open
// in edit view.
func NewBinder(reg *document.Registry, factory Factory, opts ...Option) *Binder {
	b := &Binder{
		reg:      reg,
		factory:  factory,
		logger:   zap.NewNop(),
		bindings: make(map[string]*binding),
	}
	for _, opt := range opts {
		opt(b)
	}

	reg.OnChange(b.handleChange)
	for _, doc := range reg.List() {
		if !doc.InReview() {
			b.create(doc)
		}
	}
	return b
}

// Surface returns the live surface of a document.
func (b *Binder) Surface(id string) (Surface, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bd, ok := b.bindings[document.NormalizeID(id)]
	if !ok || bd.surface == nil {
		return nil, false
	}
	return bd.surface, true
}

// Count returns the number of live surfaces.
func (b *Binder) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bindings)
}

// Close destroys all surfaces and stops tracking the registry.
func (b *Binder) Close() {
	b.mu.Lock()
	b.closed = true
	bindings := b.bindings
	b.bindings = make(map[string]*binding)
	b.mu.Unlock()

	for _, bd := range bindings {
		// A surface still being created is torn down by create itself.
		if bd.surface != nil {
			bd.surface.Destroy()
		}
	}
}

func (b *Binder) handleChange(c document.Change) {
	switch c.Kind {
	case document.ChangeOpened, document.ChangeAccepted, document.ChangeRejected:
		b.create(c.Document)

	case document.ChangeClosed, document.ChangeReviewStarted:
		b.destroy(c.ID)

	case document.ChangeReplaced:
		if sf, ok := b.Surface(c.ID); ok {
			sf.SetContent(codec.ToStructured(c.Document.Content), true)
		} else {
			// A replace ends a review.
			b.create(c.Document)
		}

	case document.ChangeRenamed:
		b.mu.Lock()
		if bd, ok := b.bindings[c.OldID]; ok {
			delete(b.bindings, c.OldID)
			bd.id = c.ID
			b.bindings[c.ID] = bd
		}
		b.mu.Unlock()
	}
}

// create attaches a surface to doc unless it already has one.
func (b *Binder) create(doc document.Document) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if _, ok := b.bindings[doc.ID]; ok {
		b.mu.Unlock()
		return
	}
	bd := &binding{id: doc.ID}
	b.bindings[doc.ID] = bd
	b.mu.Unlock()

	// The factory may call back synchronously, so it runs unlocked.
	sf := b.factory(doc.ID, codec.ToStructured(doc.Content), func(d codec.Doc) {
		b.changed(bd, d)
	})

	b.mu.Lock()
	if b.bindings[bd.id] != bd {
		// Destroyed while being created.
		b.mu.Unlock()
		sf.Destroy()
		return
	}
	bd.surface = sf
	b.mu.Unlock()

	b.logger.Debug("surface created", zap.String("id", doc.ID))
}

func (b *Binder) destroy(id string) {
	b.mu.Lock()
	bd, ok := b.bindings[id]
	delete(b.bindings, id)
	b.mu.Unlock()

	if ok && bd.surface != nil {
		bd.surface.Destroy()
		b.logger.Debug("surface destroyed", zap.String("id", id))
	}
}

// changed pushes an edit from a surface into the registry. Content is
// compared after the text round trip, so echoes of SetContent are no-ops.
func (b *Binder) changed(bd *binding, d codec.Doc) {
	b.mu.Lock()
	id := bd.id
	live := b.bindings[id] == bd
	b.mu.Unlock()
	if !live {
		return
	}

	text := codec.ToText(d)
	doc, ok := b.reg.Get(id)
	if !ok || codec.Normalize(doc.Content) == text {
		return
	}
	if err := b.reg.UpdateContent(id, text); err != nil {
		b.logger.Debug("surface edit refused", zap.String("id", id), zap.Error(err))
	}
}
