package surface

import (
	"context"
	"sync"
	"testing"

	"github.com/dshills/inkwell/internal/codec"
	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/store"
)

// fakeSurface records calls and lets tests type into it.
type fakeSurface struct {
	mu        sync.Mutex
	id        string
	doc       codec.Doc
	onChange  func(codec.Doc)
	sets      int
	destroyed bool
	echo      bool // call onChange from SetContent like some editors do
}

func (f *fakeSurface) SetContent(doc codec.Doc, preserveSelection bool) {
	f.mu.Lock()
	f.doc = doc
	f.sets++
	echo := f.echo
	f.mu.Unlock()
	if echo {
		f.onChange(doc)
	}
}

func (f *fakeSurface) Content() codec.Doc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc
}

func (f *fakeSurface) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}

func (f *fakeSurface) typeText(text string) {
	doc := codec.ToStructured(text)
	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
	f.onChange(doc)
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeSurface
	echo    bool
}

func (ff *fakeFactory) create(id string, initial codec.Doc, onChange func(codec.Doc)) Surface {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	sf := &fakeSurface{id: id, doc: initial, onChange: onChange, echo: ff.echo}
	ff.created = append(ff.created, sf)
	return sf
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.created)
}

func setupBinder(t *testing.T) (*Binder, *document.Registry, *store.MemStore, *fakeFactory) {
	t.Helper()
	mem := store.NewMemStore()
	reg := document.NewRegistry(mem)
	ff := &fakeFactory{}
	b := NewBinder(reg, ff.create)
	t.Cleanup(b.Close)
	return b, reg, mem, ff
}

func openDoc(t *testing.T, reg *document.Registry, mem *store.MemStore, id, text string) {
	t.Helper()
	mem.Put(id, text)
	if _, err := reg.Open(context.Background(), id); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
}

func TestBinder_CreatesSurfaceOnOpen(t *testing.T) {
	b, reg, mem, ff := setupBinder(t)
	openDoc(t, reg, mem, "a.txt", "hello\nworld")

	sf, ok := b.Surface("a.txt")
	if !ok {
		t.Fatal("no surface for open document")
	}
	if got := codec.ToText(sf.Content()); got != "hello\nworld" {
		t.Errorf("surface text = %q", got)
	}
	if n := len(sf.Content().Paragraphs); n != 2 {
		t.Errorf("paragraphs = %d, want 2", n)
	}

	// Reopening does not create a second surface.
	reg.Open(context.Background(), "a.txt")
	if ff.count() != 1 {
		t.Errorf("surfaces created = %d, want 1", ff.count())
	}
}

func TestBinder_EditFlowsToRegistry(t *testing.T) {
	b, reg, mem, _ := setupBinder(t)
	openDoc(t, reg, mem, "a.txt", "hello")

	sf, _ := b.Surface("a.txt")
	sf.(*fakeSurface).typeText("hello there")

	doc, _ := reg.Get("a.txt")
	if doc.Content != "hello there" || !doc.IsDirty {
		t.Errorf("doc = %+v", doc)
	}
}

func TestBinder_RoundTripEqualIsNoop(t *testing.T) {
	b, reg, mem, _ := setupBinder(t)
	openDoc(t, reg, mem, "a.txt", "trailing space   ")

	sf, _ := b.Surface("a.txt")
	sf.(*fakeSurface).typeText("trailing space")

	doc, _ := reg.Get("a.txt")
	if doc.Version != 0 || doc.IsDirty {
		t.Errorf("doc = %+v, round-trip equal content should not count as an edit", doc)
	}
}

func TestBinder_ReviewDestroysAndRecreates(t *testing.T) {
	b, reg, mem, ff := setupBinder(t)
	openDoc(t, reg, mem, "a.txt", "draft")
	first, _ := b.Surface("a.txt")

	reg.StartDiffReview("a.txt", "final")
	if !first.(*fakeSurface).destroyed {
		t.Error("surface should be destroyed in diff mode")
	}
	if _, ok := b.Surface("a.txt"); ok {
		t.Error("no surface should exist in diff mode")
	}

	reg.AcceptSuggestion("a.txt")
	second, ok := b.Surface("a.txt")
	if !ok {
		t.Fatal("surface should be recreated after accept")
	}
	if got := codec.ToText(second.Content()); got != "final" {
		t.Errorf("recreated surface text = %q, want final", got)
	}

	reg.StartDiffReview("a.txt", "other")
	reg.RejectSuggestion("a.txt")
	if _, ok := b.Surface("a.txt"); !ok {
		t.Error("surface should be recreated after reject")
	}
	if ff.count() != 3 {
		t.Errorf("surfaces created = %d, want 3", ff.count())
	}
}

func TestBinder_CloseDestroys(t *testing.T) {
	b, reg, mem, _ := setupBinder(t)
	openDoc(t, reg, mem, "a.txt", "x")
	sf, _ := b.Surface("a.txt")

	reg.Close("a.txt")
	if !sf.(*fakeSurface).destroyed {
		t.Error("surface should be destroyed on close")
	}
	if b.Count() != 0 {
		t.Errorf("Count() = %d, want 0", b.Count())
	}
}

func TestBinder_ReplaceUpdatesSurface(t *testing.T) {
	b, reg, mem, _ := setupBinder(t)
	openDoc(t, reg, mem, "a.txt", "v1")
	sf, _ := b.Surface("a.txt")
	sf.(*fakeSurface).echo = true

	reg.Replace("a.txt", "v2\nmore")

	if got := codec.ToText(sf.Content()); got != "v2\nmore" {
		t.Errorf("surface text = %q", got)
	}
	doc, _ := reg.Get("a.txt")
	if doc.IsDirty || doc.Version != 1 {
		t.Errorf("doc = %+v, echo of SetContent must not become an edit", doc)
	}
}

func TestBinder_ReplaceEndsReviewWithSurface(t *testing.T) {
	b, reg, mem, _ := setupBinder(t)
	openDoc(t, reg, mem, "a.txt", "v1")
	reg.StartDiffReview("a.txt", "s")

	reg.Replace("a.txt", "external")

	sf, ok := b.Surface("a.txt")
	if !ok {
		t.Fatal("surface should exist after replace ends the review")
	}
	if got := codec.ToText(sf.Content()); got != "external" {
		t.Errorf("surface text = %q", got)
	}
}

func TestBinder_RenameKeepsSurface(t *testing.T) {
	b, reg, mem, _ := setupBinder(t)
	openDoc(t, reg, mem, "a.txt", "x")
	sf, _ := b.Surface("a.txt")

	reg.Rename("a.txt", "b.txt")
	got, ok := b.Surface("b.txt")
	if !ok || got != sf {
		t.Fatal("surface should follow the rename")
	}

	sf.(*fakeSurface).typeText("typed after rename")
	doc, _ := reg.Get("b.txt")
	if doc.Content != "typed after rename" {
		t.Errorf("Content = %q", doc.Content)
	}
}

func TestBinder_AttachesToOpenDocuments(t *testing.T) {
	mem := store.NewMemStore()
	reg := document.NewRegistry(mem)
	openDoc(t, reg, mem, "a.txt", "a")
	openDoc(t, reg, mem, "b.txt", "b")
	reg.StartDiffReview("b.txt", "bb")

	ff := &fakeFactory{}
	b := NewBinder(reg, ff.create)
	defer b.Close()

	if b.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (b.txt is in review)", b.Count())
	}
}

func TestBinder_CloseWhileCreating(t *testing.T) {
	mem := store.NewMemStore()
	reg := document.NewRegistry(mem)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	sf := &fakeSurface{}
	b := NewBinder(reg, func(id string, initial codec.Doc, onChange func(codec.Doc)) Surface {
		close(entered)
		<-unblock
		return sf
	})

	mem.Put("a.txt", "text")
	opened := make(chan error, 1)
	go func() {
		_, err := reg.Open(context.Background(), "a.txt")
		opened <- err
	}()
	<-entered

	// The binding exists but has no surface yet.
	b.Close()
	close(unblock)
	if err := <-opened; err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sf.mu.Lock()
	destroyed := sf.destroyed
	sf.mu.Unlock()
	if !destroyed {
		t.Error("surface finished after Close should be destroyed")
	}
	if n := b.Count(); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}
