package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupDirStore(t *testing.T) (*DirStore, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewDirStore(root)
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	return s, s.Root()
}

func TestMemStore_ReadWrite(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.Read(ctx, "a.txt"); !IsNotFound(err) {
		t.Fatalf("Read missing error = %v, want ErrNotFound", err)
	}

	if err := s.Write(ctx, "a.txt", "hello"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := s.Read(ctx, "a.txt")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("Read() = %q, want %q", got, "hello")
	}
	if s.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", s.Writes())
	}
	if s.Reads() != 2 {
		t.Errorf("Reads() = %d, want 2", s.Reads())
	}
}

func TestMemStore_CancelledContext(t *testing.T) {
	s := NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Write(ctx, "a.txt", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Write error = %v, want context.Canceled", err)
	}
	if _, ok := s.Get("a.txt"); ok {
		t.Error("cancelled write should not store text")
	}
}

func TestDirStore_ReadWrite(t *testing.T) {
	s, root := setupDirStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "notes/today.md", "line one\nline two"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "notes", "today.md"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "line one\nline two" {
		t.Errorf("file content = %q", data)
	}

	got, err := s.Read(ctx, "notes/today.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != "line one\nline two" {
		t.Errorf("Read() = %q", got)
	}
}

func TestDirStore_NotFound(t *testing.T) {
	s, _ := setupDirStore(t)

	_, err := s.Read(context.Background(), "missing.txt")
	if !IsNotFound(err) {
		t.Fatalf("Read error = %v, want ErrNotFound", err)
	}

	var pathErr *PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("expected PathError, got %T", err)
	}
	if pathErr.Op != "read" || pathErr.ID != "missing.txt" {
		t.Errorf("PathError = %+v", pathErr)
	}
}

func TestDirStore_OutsideRoot(t *testing.T) {
	s, _ := setupDirStore(t)

	for _, id := range []string{"", ".", "/"} {
		if _, err := s.Read(context.Background(), id); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Read(%q) error = %v, want ErrOutsideRoot", id, err)
		}
	}

	// Traversal is clamped to the root rather than escaping it.
	p, err := s.Path("../../etc/passwd")
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if p != filepath.Join(s.Root(), "etc", "passwd") {
		t.Errorf("Path() = %q, want it inside the root", p)
	}
}

func TestDirStore_PreservesCRLFAndBOM(t *testing.T) {
	s, root := setupDirStore(t)
	ctx := context.Background()

	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a\r\nb\r\n")...)
	if err := os.WriteFile(filepath.Join(root, "win.txt"), raw, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	text, err := s.Read(ctx, "win.txt")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if text != "a\nb\n" {
		t.Fatalf("Read() = %q, want LF text without BOM", text)
	}

	if err := s.Write(ctx, "win.txt", "a\nb\nc"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "win.txt"))
	want := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a\r\nb\r\nc")...)
	if string(data) != string(want) {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestDirStore_RejectsBinaryAndLarge(t *testing.T) {
	root := t.TempDir()
	s, err := NewDirStore(root, WithMaxFileSize(16))
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	ctx := context.Background()

	os.WriteFile(filepath.Join(root, "bin.dat"), []byte{0, 1, 2, 3}, 0o644)
	if _, err := s.Read(ctx, "bin.dat"); !errors.Is(err, ErrBinaryFile) {
		t.Errorf("Read binary error = %v, want ErrBinaryFile", err)
	}

	os.WriteFile(filepath.Join(root, "big.txt"), make([]byte, 64), 0o644)
	if _, err := s.Read(ctx, "big.txt"); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Read large error = %v, want ErrFileTooLarge", err)
	}

	os.Mkdir(filepath.Join(root, "dir"), 0o755)
	if _, err := s.Read(ctx, "dir"); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Read dir error = %v, want ErrIsDirectory", err)
	}
}

func TestDirStore_ID(t *testing.T) {
	s, root := setupDirStore(t)

	id, err := s.ID(filepath.Join(root, "a", "b.md"))
	if err != nil {
		t.Fatalf("ID failed: %v", err)
	}
	if id != "a/b.md" {
		t.Errorf("ID() = %q, want %q", id, "a/b.md")
	}

	if _, err := s.ID(filepath.Dir(root)); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("ID(parent) error = %v, want ErrOutsideRoot", err)
	}
}

func TestDirStore_MoveFormat(t *testing.T) {
	s, root := setupDirStore(t)
	ctx := context.Background()

	os.WriteFile(filepath.Join(root, "old.txt"), []byte("x\r\ny"), 0o644)
	if _, err := s.Read(ctx, "old.txt"); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	s.Move("old.txt", "new.txt")
	if err := s.Write(ctx, "new.txt", "x\ny"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "new.txt"))
	if string(data) != "x\r\ny" {
		t.Errorf("renamed file = %q, want CRLF preserved", data)
	}
}

func TestDetectLineEnding(t *testing.T) {
	tests := []struct {
		in   string
		want LineEnding
	}{
		{"", LineEndingLF},
		{"no newline", LineEndingLF},
		{"a\nb\n", LineEndingLF},
		{"a\r\nb\r\n", LineEndingCRLF},
		{"a\rb\r", LineEndingCR},
		{"a\r\nb\n", LineEndingMixed},
	}

	for _, tt := range tests {
		if got := DetectLineEnding([]byte(tt.in)); got != tt.want {
			t.Errorf("DetectLineEnding(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLineEndings(t *testing.T) {
	tests := []struct {
		in     string
		ending LineEnding
		want   string
	}{
		{"a\r\nb\rc\n", LineEndingLF, "a\nb\nc\n"},
		{"a\nb", LineEndingCRLF, "a\r\nb"},
		{"a\nb", LineEndingCR, "a\rb"},
		{"a\r\nb\n", LineEndingMixed, "a\r\nb\n"},
	}

	for _, tt := range tests {
		if got := string(NormalizeLineEndings([]byte(tt.in), tt.ending)); got != tt.want {
			t.Errorf("NormalizeLineEndings(%q, %v) = %q, want %q", tt.in, tt.ending, got, tt.want)
		}
	}
}

func TestIsBinary(t *testing.T) {
	if IsBinary([]byte("plain text\nwith lines\t")) {
		t.Error("text detected as binary")
	}
	if !IsBinary([]byte{'a', 0, 'b'}) {
		t.Error("NUL byte not detected as binary")
	}
	if IsBinary(nil) {
		t.Error("empty content detected as binary")
	}
}
