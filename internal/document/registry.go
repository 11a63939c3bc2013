package document

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/logging"
	"github.com/dshills/inkwell/internal/store"
)

// Registry manages the set of open documents.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	store  store.Store
	docs   map[string]*Document
	order  []string // tab order
	active string

	baselines int64 // last Baseline handed out

	logger *zap.Logger
	now    func() time.Time

	// Event handlers
	onOpen   []func(doc Document)
	onClose  []func(id string)
	onEdit   []func(doc Document)
	onChange []func(c Change)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logging.Component(l, "document")
	}
}

// WithClock sets the time source used for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry backed by st.
func NewRegistry(st store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:  st,
		docs:   make(map[string]*Document),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the store backing the registry.
func (r *Registry) Store() store.Store {
	return r.store
}

// Open opens the document with id and makes it active.
// If the document is already open it is activated without reloading.
func (r *Registry) Open(ctx context.Context, id string) (Document, error) {
	id = NormalizeID(id)
	if id == "" {
		return Document{}, &Error{Op: "open", Err: ErrInvalidID}
	}

	if doc, ok := r.activateExisting(id); ok {
		return doc, nil
	}

	text, err := r.store.Read(ctx, id)
	if err != nil {
		r.logger.Debug("open failed", zap.String("id", id), zap.Error(err))
		return Document{}, &Error{Op: "open", ID: id, Err: fmt.Errorf("%w: %w", ErrOpenFailed, err)}
	}

	r.mu.Lock()
	// Double-check in case another goroutine opened it
	if _, ok := r.docs[id]; ok {
		r.mu.Unlock()
		doc, _ := r.activateExisting(id)
		return doc, nil
	}
	doc := r.insertLocked(id, text, false)
	snap := *doc
	r.mu.Unlock()

	r.logger.Debug("opened", zap.String("id", id), zap.Int("bytes", len(text)))
	r.notifyOpen(snap)
	return snap, nil
}

// NewUntitled creates an empty untitled document and makes it active.
func (r *Registry) NewUntitled() Document {
	suffix := uuid.NewString()[:8]
	id := "untitled-" + suffix

	r.mu.Lock()
	doc := r.insertLocked(id, "", true)
	doc.Title = "Untitled " + suffix
	snap := *doc
	r.mu.Unlock()

	r.notifyOpen(snap)
	return snap
}

// Adopt adds a clean document with the given text and makes it active.
// It is used when a document appears from outside the editor.
func (r *Registry) Adopt(id, text string) (Document, error) {
	id = NormalizeID(id)
	if id == "" {
		return Document{}, &Error{Op: "adopt", Err: ErrInvalidID}
	}

	r.mu.Lock()
	if _, ok := r.docs[id]; ok {
		r.mu.Unlock()
		return Document{}, &Error{Op: "adopt", ID: id, Err: ErrAlreadyOpen}
	}
	doc := r.insertLocked(id, text, false)
	snap := *doc
	r.mu.Unlock()

	r.notifyOpen(snap)
	return snap, nil
}

// insertLocked appends a new document and activates it.
// Caller must hold r.mu.
func (r *Registry) insertLocked(id, text string, untitled bool) *Document {
	now := r.now()
	doc := &Document{
		ID:              id,
		Title:           TitleFor(id),
		Content:         text,
		OriginalContent: text,
		ViewMode:        ViewEdit,
		Untitled:        untitled,
		OpenedAt:        now,
		ModifiedAt:      now,
	}
	r.baselines++
	doc.Baseline = r.baselines
	r.docs[id] = doc
	r.order = append(r.order, id)
	r.active = id
	return doc
}

// activateExisting activates id if it is open and reports the result.
func (r *Registry) activateExisting(id string) (Document, bool) {
	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return Document{}, false
	}
	changed := r.active != id
	r.active = id
	snap := *doc
	r.mu.Unlock()

	if changed {
		r.notifyChange(Change{Kind: ChangeActivated, ID: id, Document: snap})
	}
	return snap, true
}

// UpdateContent sets the content of a document from the editor and
// recomputes its dirty state against the baseline.
func (r *Registry) UpdateContent(id, text string) error {
	id = NormalizeID(id)

	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return &Error{Op: "update", ID: id, Err: ErrNotOpen}
	}
	if doc.IsDeleted {
		r.mu.Unlock()
		return &Error{Op: "update", ID: id, Err: ErrDeleted}
	}
	if doc.ViewMode == ViewDiff {
		r.mu.Unlock()
		return &Error{Op: "update", ID: id, Err: ErrInDiffMode}
	}
	if doc.Content == text {
		r.mu.Unlock()
		return nil
	}

	doc.Content = text
	doc.IsDirty = text != doc.OriginalContent
	doc.Version++
	doc.ModifiedAt = r.now()
	snap := *doc
	r.mu.Unlock()

	r.notifyEdit(snap)
	r.notifyChange(Change{Kind: ChangeEdited, ID: id, Document: snap})
	return nil
}

// Close removes a document. Unsaved content is discarded.
// If the document was active, the next document in tab order becomes
// active, else the previous one, else none.
func (r *Registry) Close(id string) error {
	id = NormalizeID(id)

	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return &Error{Op: "close", ID: id, Err: ErrNotOpen}
	}

	idx := slices.Index(r.order, id)
	r.order = slices.Delete(r.order, idx, idx+1)
	delete(r.docs, id)

	activated := false
	if r.active == id {
		r.active = ""
		switch {
		case idx < len(r.order):
			r.active = r.order[idx]
		case idx > 0:
			r.active = r.order[idx-1]
		}
		activated = true
	}
	snap := *doc
	next := r.activeSnapshotLocked()
	r.mu.Unlock()

	r.logger.Debug("closed", zap.String("id", id), zap.Bool("dirty", snap.IsDirty))

	r.mu.RLock()
	closeHandlers := make([]func(id string), len(r.onClose))
	copy(closeHandlers, r.onClose)
	r.mu.RUnlock()
	for _, handler := range closeHandlers {
		handler(id)
	}

	r.notifyChange(Change{Kind: ChangeClosed, ID: id, Document: snap})
	if activated {
		r.notifyChange(Change{Kind: ChangeActivated, ID: next.ID, Document: next})
	}
	return nil
}

// SetActive makes id the active document. It is a no-op if id is not open.
func (r *Registry) SetActive(id string) bool {
	_, ok := r.activateExisting(NormalizeID(id))
	return ok
}

// Active returns the active document, if any.
func (r *Registry) Active() (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == "" {
		return Document{}, false
	}
	return *r.docs[r.active], true
}

// ActiveID returns the id of the active document or "".
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// activeSnapshotLocked returns the active document or a zero Document.
// Caller must hold r.mu.
func (r *Registry) activeSnapshotLocked() Document {
	if r.active == "" {
		return Document{}
	}
	return *r.docs[r.active]
}

// Get returns a snapshot of the document with id.
func (r *Registry) Get(id string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[NormalizeID(id)]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// IsOpen returns true if a document with id is open.
func (r *Registry) IsOpen(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns all open documents in tab order.
func (r *Registry) List() []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]Document, 0, len(r.order))
	for _, id := range r.order {
		docs = append(docs, *r.docs[id])
	}
	return docs
}

// DirtyDocuments returns all documents with unsaved changes in tab order.
func (r *Registry) DirtyDocuments() []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var docs []Document
	for _, id := range r.order {
		if doc := r.docs[id]; doc.IsDirty {
			docs = append(docs, *doc)
		}
	}
	return docs
}

// Count returns the number of open documents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// StartDiffReview puts a document into suggestion review.
func (r *Registry) StartDiffReview(id, suggested string) error {
	id = NormalizeID(id)

	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return &Error{Op: "review", ID: id, Err: ErrNotOpen}
	}
	if doc.ViewMode == ViewDiff {
		r.mu.Unlock()
		return &Error{Op: "review", ID: id, Err: ErrInDiffMode}
	}
	if doc.IsDeleted {
		r.mu.Unlock()
		return &Error{Op: "review", ID: id, Err: ErrDeleted}
	}

	doc.SuggestedContent = suggested
	doc.ViewMode = ViewDiff
	snap := *doc
	r.mu.Unlock()

	r.notifyChange(Change{Kind: ChangeReviewStarted, ID: id, Document: snap})
	return nil
}

// AcceptSuggestion replaces the content with the suggestion and returns to
// edit mode. The document is always marked dirty so the accepted text is
// saved.
func (r *Registry) AcceptSuggestion(id string) error {
	id = NormalizeID(id)

	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return &Error{Op: "accept", ID: id, Err: ErrNotOpen}
	}
	if doc.ViewMode != ViewDiff {
		r.mu.Unlock()
		return &Error{Op: "accept", ID: id, Err: ErrNotInDiffMode}
	}

	doc.Content = doc.SuggestedContent
	doc.SuggestedContent = ""
	doc.ViewMode = ViewEdit
	doc.IsDirty = true
	doc.Version++
	doc.ModifiedAt = r.now()
	snap := *doc
	r.mu.Unlock()

	r.notifyEdit(snap)
	r.notifyChange(Change{Kind: ChangeAccepted, ID: id, Document: snap})
	return nil
}

// RejectSuggestion discards the suggestion and returns to edit mode.
func (r *Registry) RejectSuggestion(id string) error {
	id = NormalizeID(id)

	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return &Error{Op: "reject", ID: id, Err: ErrNotOpen}
	}
	if doc.ViewMode != ViewDiff {
		r.mu.Unlock()
		return &Error{Op: "reject", ID: id, Err: ErrNotInDiffMode}
	}

	doc.SuggestedContent = ""
	doc.ViewMode = ViewEdit
	snap := *doc
	r.mu.Unlock()

	r.notifyChange(Change{Kind: ChangeRejected, ID: id, Document: snap})
	return nil
}

// Replace overwrites content and baseline with text from outside the
// editor. Local unsaved edits and any pending review are discarded.
func (r *Registry) Replace(id, text string) (Document, error) {
	id = NormalizeID(id)

	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return Document{}, &Error{Op: "replace", ID: id, Err: ErrNotOpen}
	}

	if doc.IsDirty {
		r.logger.Info("discarding unsaved edits for external replace", zap.String("id", id))
	}
	doc.Content = text
	doc.OriginalContent = text
	doc.SuggestedContent = ""
	doc.ViewMode = ViewEdit
	doc.IsDirty = false
	doc.IsDeleted = false
	doc.Version++
	r.baselines++
	doc.Baseline = r.baselines
	doc.ModifiedAt = r.now()
	snap := *doc
	r.mu.Unlock()

	r.notifyChange(Change{Kind: ChangeReplaced, ID: id, Document: snap})
	return snap, nil
}

// MarkSaved records that saved was persisted for id. The baseline becomes
// saved and dirtiness is recomputed against the current content.
//
// baseline is the Baseline of the snapshot the save was taken from. If the
// document was replaced since, the save is stale and ErrBaselineChanged is
// returned without touching the document.
func (r *Registry) MarkSaved(id, saved string, baseline int64) (Document, error) {
	id = NormalizeID(id)

	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return Document{}, &Error{Op: "mark saved", ID: id, Err: ErrNotOpen}
	}
	if doc.Baseline != baseline {
		snap := *doc
		r.mu.Unlock()
		return snap, &Error{Op: "mark saved", ID: id, Err: ErrBaselineChanged}
	}

	doc.OriginalContent = saved
	doc.IsDirty = doc.Content != saved
	doc.Untitled = false
	snap := *doc
	r.mu.Unlock()

	r.notifyChange(Change{Kind: ChangeSaved, ID: id, Document: snap})
	return snap, nil
}

// MarkDeleted flags a document whose backing file is gone. If it was active,
// another non-deleted document becomes active, or none.
func (r *Registry) MarkDeleted(id string) (Document, error) {
	id = NormalizeID(id)

	r.mu.Lock()
	doc, ok := r.docs[id]
	if !ok {
		r.mu.Unlock()
		return Document{}, &Error{Op: "delete", ID: id, Err: ErrNotOpen}
	}

	doc.IsDeleted = true
	doc.IsDirty = false
	snap := *doc

	activated := false
	if r.active == id {
		r.active = r.nextLiveLocked(id)
		activated = true
	}
	next := r.activeSnapshotLocked()
	r.mu.Unlock()

	r.notifyChange(Change{Kind: ChangeDeleted, ID: id, Document: snap})
	if activated {
		r.notifyChange(Change{Kind: ChangeActivated, ID: next.ID, Document: next})
	}
	return snap, nil
}

// nextLiveLocked finds the nearest non-deleted document to id, preferring
// later tabs. Caller must hold r.mu.
func (r *Registry) nextLiveLocked(id string) string {
	idx := slices.Index(r.order, id)
	for i := idx + 1; i < len(r.order); i++ {
		if !r.docs[r.order[i]].IsDeleted {
			return r.order[i]
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if !r.docs[r.order[i]].IsDeleted {
			return r.order[i]
		}
	}
	return ""
}

// Rename changes a document's id and title in place. The active pointer
// follows the document.
func (r *Registry) Rename(oldID, newID string) (Document, error) {
	oldID = NormalizeID(oldID)
	newID = NormalizeID(newID)
	if newID == "" {
		return Document{}, &Error{Op: "rename", ID: oldID, Err: ErrInvalidID}
	}

	r.mu.Lock()
	doc, ok := r.docs[oldID]
	if !ok {
		r.mu.Unlock()
		return Document{}, &Error{Op: "rename", ID: oldID, Err: ErrNotOpen}
	}
	if oldID == newID {
		snap := *doc
		r.mu.Unlock()
		return snap, nil
	}
	if _, exists := r.docs[newID]; exists {
		r.mu.Unlock()
		return Document{}, &Error{Op: "rename", ID: newID, Err: ErrAlreadyOpen}
	}

	delete(r.docs, oldID)
	doc.ID = newID
	doc.Title = TitleFor(newID)
	doc.Untitled = false
	r.docs[newID] = doc
	r.order[slices.Index(r.order, oldID)] = newID
	if r.active == oldID {
		r.active = newID
	}
	snap := *doc
	r.mu.Unlock()

	r.notifyChange(Change{Kind: ChangeRenamed, ID: newID, OldID: oldID, Document: snap})
	return snap, nil
}

// Stats holds registry statistics.
type Stats struct {
	Open     int `json:"open"`
	Dirty    int `json:"dirty"`
	InReview int `json:"inReview"`
	Deleted  int `json:"deleted"`
}

// Stats returns statistics about open documents.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Open: len(r.docs)}
	for _, doc := range r.docs {
		if doc.IsDirty {
			s.Dirty++
		}
		if doc.ViewMode == ViewDiff {
			s.InReview++
		}
		if doc.IsDeleted {
			s.Deleted++
		}
	}
	return s
}

// OnOpen registers a handler called after a document is opened.
func (r *Registry) OnOpen(handler func(doc Document)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOpen = append(r.onOpen, handler)
}

// OnClose registers a handler called after a document is closed.
func (r *Registry) OnClose(handler func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = append(r.onClose, handler)
}

// OnEdit registers a handler called after the content of a document changes
// through the editor or an accepted suggestion.
func (r *Registry) OnEdit(handler func(doc Document)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEdit = append(r.onEdit, handler)
}

// OnChange registers a handler called after every registry mutation.
func (r *Registry) OnChange(handler func(c Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, handler)
}

func (r *Registry) notifyOpen(doc Document) {
	// Copy slice to avoid races during iteration
	r.mu.RLock()
	handlers := make([]func(doc Document), len(r.onOpen))
	copy(handlers, r.onOpen)
	r.mu.RUnlock()
	for _, handler := range handlers {
		handler(doc)
	}

	r.notifyChange(Change{Kind: ChangeOpened, ID: doc.ID, Document: doc})
}

func (r *Registry) notifyEdit(doc Document) {
	r.mu.RLock()
	handlers := make([]func(doc Document), len(r.onEdit))
	copy(handlers, r.onEdit)
	r.mu.RUnlock()
	for _, handler := range handlers {
		handler(doc)
	}
}

func (r *Registry) notifyChange(c Change) {
	r.mu.RLock()
	handlers := make([]func(c Change), len(r.onChange))
	copy(handlers, r.onChange)
	r.mu.RUnlock()
	for _, handler := range handlers {
		handler(c)
	}
}
