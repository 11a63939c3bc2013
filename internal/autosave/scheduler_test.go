package autosave

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/inkwell/internal/codec"
	"github.com/dshills/inkwell/internal/document"
	"github.com/dshills/inkwell/internal/store"
)

// testStore wraps a MemStore with write tracking, blocking and failures.
type testStore struct {
	*store.MemStore

	mu          sync.Mutex
	writes      []write
	inFlight    int
	maxInFlight int
	block       chan struct{}
	started     chan struct{}
	fail        error
	failIDs     map[string]bool
}

type write struct {
	id   string
	text string
	at   time.Time
}

func newTestStore() *testStore {
	return &testStore{MemStore: store.NewMemStore(), failIDs: make(map[string]bool)}
}

func (s *testStore) Write(ctx context.Context, id, text string) error {
	s.mu.Lock()
	s.writes = append(s.writes, write{id: id, text: text, at: time.Now()})
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	block, started := s.block, s.started
	fail := s.fail
	if s.failIDs[id] {
		fail = errors.New("permission denied")
	}
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if fail != nil {
		return fail
	}
	return s.MemStore.Write(ctx, id, text)
}

func (s *testStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *testStore) writeLog() []write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]write(nil), s.writes...)
}

func (s *testStore) maxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *testStore) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func setupScheduler(t *testing.T, delay time.Duration, opts ...Option) (*Scheduler, *document.Registry, *testStore) {
	t.Helper()
	st := newTestStore()
	reg := document.NewRegistry(st)
	opts = append([]Option{WithDelay(delay)}, opts...)
	s := New(reg, st, opts...)
	t.Cleanup(s.Close)
	return s, reg, st
}

func openDoc(t *testing.T, reg *document.Registry, st *testStore, id, text string) {
	t.Helper()
	st.Put(id, text)
	if _, err := reg.Open(context.Background(), id); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
}

func TestScheduler_OpenEditAutosave(t *testing.T) {
	_, reg, st := setupScheduler(t, 30*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "hello\nworld")

	doc, _ := reg.Get("a.txt")
	if n := len(codec.ToStructured(doc.Content).Paragraphs); n != 2 {
		t.Fatalf("paragraphs = %d, want 2", n)
	}

	if err := reg.UpdateContent("a.txt", "hello\nworld!"); err != nil {
		t.Fatalf("UpdateContent failed: %v", err)
	}
	if doc, _ := reg.Get("a.txt"); !doc.IsDirty {
		t.Fatal("document should be dirty after edit")
	}

	time.Sleep(150 * time.Millisecond)

	writes := st.writeLog()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	if writes[0].id != "a.txt" || writes[0].text != "hello\nworld!" {
		t.Errorf("write = %+v", writes[0])
	}

	doc, _ = reg.Get("a.txt")
	if doc.IsDirty {
		t.Error("document should be clean after save")
	}
	if doc.Content != doc.OriginalContent {
		t.Errorf("Content = %q, OriginalContent = %q", doc.Content, doc.OriginalContent)
	}
}

func TestScheduler_DebounceCoalescing(t *testing.T) {
	_, reg, st := setupScheduler(t, 60*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "")

	for i := 1; i <= 10; i++ {
		reg.UpdateContent("a.txt", strings.Repeat("x", i))
		time.Sleep(5 * time.Millisecond)
	}

	if st.writeCount() != 0 {
		t.Fatal("no write should happen inside the debounce window")
	}

	time.Sleep(200 * time.Millisecond)

	writes := st.writeLog()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	if writes[0].text != strings.Repeat("x", 10) {
		t.Errorf("saved %q, want latest content", writes[0].text)
	}
}

func TestScheduler_SaveMutualExclusion(t *testing.T) {
	s, reg, st := setupScheduler(t, 20*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "v1")
	reg.UpdateContent("a.txt", "v2")

	st.mu.Lock()
	st.block = make(chan struct{})
	st.started = make(chan struct{}, 1)
	st.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background(), "a.txt") }()
	<-st.started

	// Concurrent saves return at once without writing.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Save(context.Background(), "a.txt"); err != nil {
				t.Errorf("concurrent Save error = %v", err)
			}
		}()
	}
	wg.Wait()
	if st.writeCount() != 1 {
		t.Fatalf("writes during in-flight save = %d, want 1", st.writeCount())
	}

	// An edit mid-save lets its timer fire against the held lock.
	reg.UpdateContent("a.txt", "v3")
	time.Sleep(60 * time.Millisecond)
	if state, _ := s.State("a.txt"); !state.PendingRetry || state.Phase != PhaseSaving {
		t.Errorf("state = %+v, want saving with pending retry", state)
	}

	st.mu.Lock()
	close(st.block)
	st.block = nil
	st.mu.Unlock()

	if err := <-done; err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if n := st.maxConcurrent(); n != 1 {
		t.Errorf("maxInFlight = %d, want 1", n)
	}
	if got, _ := st.Get("a.txt"); got != "v3" {
		t.Errorf("stored = %q, want v3", got)
	}
	doc, _ := reg.Get("a.txt")
	if doc.IsDirty || doc.OriginalContent != "v3" {
		t.Errorf("doc = %+v, want clean at v3", doc)
	}
}

func TestScheduler_SaveCleanIsNoop(t *testing.T) {
	s, reg, st := setupScheduler(t, time.Hour)
	openDoc(t, reg, st, "a.txt", "clean")

	if err := s.Save(context.Background(), "a.txt"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if st.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", st.writeCount())
	}
}

func TestScheduler_SaveRefused(t *testing.T) {
	s, reg, st := setupScheduler(t, time.Hour)
	openDoc(t, reg, st, "a.txt", "x")

	if err := s.Save(context.Background(), "missing.txt"); !errors.Is(err, document.ErrNotOpen) {
		t.Errorf("Save missing error = %v", err)
	}

	reg.UpdateContent("a.txt", "y")
	reg.MarkDeleted("a.txt")
	if err := s.Save(context.Background(), "a.txt"); !errors.Is(err, document.ErrDeleted) {
		t.Errorf("Save deleted error = %v", err)
	}
	if st.writeCount() != 0 {
		t.Error("deleted document must not be written")
	}
}

func TestScheduler_ManualSaveFailure(t *testing.T) {
	s, reg, st := setupScheduler(t, time.Hour)
	openDoc(t, reg, st, "a.txt", "x")
	reg.UpdateContent("a.txt", "y")
	st.setFail(errors.New("disk full"))

	err := s.Save(context.Background(), "a.txt")
	if !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("Save error = %v, want ErrSaveFailed", err)
	}
	var docErr *document.Error
	if !errors.As(err, &docErr) || docErr.Op != "save" || docErr.ID != "a.txt" {
		t.Errorf("error = %#v", err)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error %q should carry the cause", err)
	}

	doc, _ := reg.Get("a.txt")
	if !doc.IsDirty {
		t.Error("document should stay dirty after failed save")
	}
	state, _ := s.State("a.txt")
	if state.Saving || state.Failures != 1 || state.LastError != "disk full" {
		t.Errorf("state = %+v", state)
	}

	// The lock was released: the next save goes through.
	st.setFail(nil)
	if err := s.Save(context.Background(), "a.txt"); err != nil {
		t.Fatalf("Save after recovery failed: %v", err)
	}
	if state, _ := s.State("a.txt"); state.Failures != 0 || state.LastError != "" || state.LastSavedAt.IsZero() {
		t.Errorf("state after recovery = %+v", state)
	}
}

func TestScheduler_BackgroundFailureBacksOff(t *testing.T) {
	s, reg, st := setupScheduler(t, 20*time.Millisecond, WithMaxBackoff(time.Second))
	openDoc(t, reg, st, "a.txt", "x")
	st.setFail(errors.New("offline"))

	reg.UpdateContent("a.txt", "y")
	time.Sleep(250 * time.Millisecond)

	// Attempts at roughly 20, 40, 80 and 160ms after the edit.
	writes := st.writeLog()
	if len(writes) < 3 || len(writes) > 6 {
		t.Fatalf("attempts = %d, want 3..6", len(writes))
	}
	first := writes[1].at.Sub(writes[0].at)
	last := writes[len(writes)-1].at.Sub(writes[len(writes)-2].at)
	if last <= first {
		t.Errorf("retry gap did not grow: first %v, last %v", first, last)
	}

	doc, _ := reg.Get("a.txt")
	if !doc.IsDirty {
		t.Error("document should stay dirty while saves fail")
	}
	if state, _ := s.State("a.txt"); state.Failures != len(writes) {
		t.Errorf("failures = %d, want %d", state.Failures, len(writes))
	}

	st.setFail(nil)
	reg.UpdateContent("a.txt", "z")
	time.Sleep(100 * time.Millisecond)

	if got, _ := st.Get("a.txt"); got != "z" {
		t.Errorf("stored = %q, want z", got)
	}
	if state, _ := s.State("a.txt"); state.Failures != 0 {
		t.Errorf("failures after success = %d", state.Failures)
	}
}

func TestScheduler_EditBackToBaselineCancels(t *testing.T) {
	s, reg, st := setupScheduler(t, 40*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "base")

	reg.UpdateContent("a.txt", "changed")
	if state, _ := s.State("a.txt"); state.Phase != PhasePending {
		t.Errorf("phase = %v, want pending", state.Phase)
	}
	reg.UpdateContent("a.txt", "base")
	if state, _ := s.State("a.txt"); state.Phase != PhaseIdle {
		t.Errorf("phase = %v, want idle", state.Phase)
	}

	time.Sleep(100 * time.Millisecond)
	if st.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", st.writeCount())
	}
}

func TestScheduler_CloseDocumentCancels(t *testing.T) {
	s, reg, st := setupScheduler(t, 30*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "x")

	reg.UpdateContent("a.txt", "y")
	reg.Close("a.txt")
	time.Sleep(100 * time.Millisecond)

	if st.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", st.writeCount())
	}
	if _, ok := s.State("a.txt"); ok {
		t.Error("closed document should have no save state")
	}
}

func TestScheduler_ReplaceCancels(t *testing.T) {
	_, reg, st := setupScheduler(t, 30*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "x")

	reg.UpdateContent("a.txt", "local")
	reg.Replace("a.txt", "external")
	time.Sleep(100 * time.Millisecond)

	if st.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", st.writeCount())
	}
}

func TestScheduler_RenameMovesTimer(t *testing.T) {
	_, reg, st := setupScheduler(t, 30*time.Millisecond)
	openDoc(t, reg, st, "old.txt", "x")

	reg.UpdateContent("old.txt", "y")
	reg.Rename("old.txt", "new.txt")
	time.Sleep(100 * time.Millisecond)

	writes := st.writeLog()
	if len(writes) != 1 || writes[0].id != "new.txt" {
		t.Errorf("writes = %+v, want one write to new.txt", writes)
	}
}

// blockWrites holds every write until the returned release is called.
func blockWrites(st *testStore) (started <-chan struct{}, release func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	block := make(chan struct{})
	ch := make(chan struct{}, 1)
	st.block = block
	st.started = ch
	return ch, func() {
		st.mu.Lock()
		close(block)
		st.block = nil
		st.mu.Unlock()
	}
}

func TestScheduler_ReplaceDuringSave(t *testing.T) {
	s, reg, st := setupScheduler(t, 20*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "v1")
	reg.UpdateContent("a.txt", "local")

	started, release := blockWrites(st)
	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background(), "a.txt") }()
	<-started

	if _, err := reg.Replace("a.txt", "remote"); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	doc, _ := reg.Get("a.txt")
	if doc.Content != "remote" || doc.OriginalContent != "remote" || doc.IsDirty {
		t.Errorf("doc = content %q original %q dirty %v, want the replace to stand",
			doc.Content, doc.OriginalContent, doc.IsDirty)
	}
	if n := st.writeCount(); n != 1 {
		t.Errorf("writes = %d, want only the in-flight write", n)
	}
	if state, _ := s.State("a.txt"); state.Phase != PhaseIdle || state.PendingRetry {
		t.Errorf("state = %+v, want idle", state)
	}
}

func TestScheduler_EditAfterReplaceDuringSave(t *testing.T) {
	s, reg, st := setupScheduler(t, 20*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "v1")
	reg.UpdateContent("a.txt", "local")

	started, release := blockWrites(st)
	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background(), "a.txt") }()
	<-started

	reg.Replace("a.txt", "remote")
	reg.UpdateContent("a.txt", "remote edited")
	time.Sleep(50 * time.Millisecond)

	release()
	if err := <-done; err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if got, _ := st.Get("a.txt"); got != "remote edited" {
		t.Errorf("stored = %q, want the edit made after the replace", got)
	}
	doc, _ := reg.Get("a.txt")
	if doc.IsDirty || doc.OriginalContent != "remote edited" {
		t.Errorf("doc = original %q dirty %v, want clean", doc.OriginalContent, doc.IsDirty)
	}
}

func TestScheduler_RenameDuringSave(t *testing.T) {
	s, reg, st := setupScheduler(t, 20*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "v1")
	reg.UpdateContent("a.txt", "local")

	started, release := blockWrites(st)
	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background(), "a.txt") }()
	<-started

	if _, err := reg.Rename("a.txt", "b.txt"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	writes := st.writeLog()
	if len(writes) != 2 || writes[1].id != "b.txt" || writes[1].text != "local" {
		t.Fatalf("writes = %+v, want the content rewritten to b.txt", writes)
	}
	doc, _ := reg.Get("b.txt")
	if doc.IsDirty || doc.OriginalContent != "local" {
		t.Errorf("doc = original %q dirty %v, want clean", doc.OriginalContent, doc.IsDirty)
	}
	if state, ok := s.State("b.txt"); !ok || state.Phase != PhaseIdle {
		t.Errorf("state = %+v, want idle under the new id", state)
	}
}

func TestScheduler_AcceptedSuggestionIsSaved(t *testing.T) {
	_, reg, st := setupScheduler(t, 30*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "draft")

	reg.StartDiffReview("a.txt", "polished")
	reg.AcceptSuggestion("a.txt")
	time.Sleep(100 * time.Millisecond)

	if got, _ := st.Get("a.txt"); got != "polished" {
		t.Errorf("stored = %q, want polished", got)
	}
}

func TestScheduler_SaveAll(t *testing.T) {
	s, reg, st := setupScheduler(t, time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		openDoc(t, reg, st, id, id)
		reg.UpdateContent(id, id+"!")
	}
	st.failIDs["b"] = true

	err := s.SaveAll(context.Background())
	if !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("SaveAll error = %v, want ErrSaveFailed", err)
	}

	for _, id := range []string{"a", "c"} {
		if got, _ := st.Get(id); got != id+"!" {
			t.Errorf("stored %s = %q", id, got)
		}
	}
	dirty := reg.DirtyDocuments()
	if len(dirty) != 1 || dirty[0].ID != "b" {
		t.Errorf("dirty = %v, want only b", dirty)
	}
}

func TestScheduler_Close(t *testing.T) {
	s, reg, st := setupScheduler(t, 30*time.Millisecond)
	openDoc(t, reg, st, "a.txt", "x")

	reg.UpdateContent("a.txt", "y")
	s.Close()
	time.Sleep(100 * time.Millisecond)

	if st.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", st.writeCount())
	}
}

func TestPhase_String(t *testing.T) {
	tests := map[Phase]string{
		PhaseIdle:    "idle",
		PhasePending: "pending",
		PhaseSaving:  "saving",
		Phase(9):     "unknown",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), got, want)
		}
	}
}
