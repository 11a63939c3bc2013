package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// DirStore stores documents as files under a root directory.
//
// Ids are slash-separated paths relative to the root. Text is handed to
// callers with "\n" line endings and without a byte order mark; the original
// line ending style and BOM of each file are restored on write.
type DirStore struct {
	root        string
	maxFileSize int64

	mu     sync.Mutex
	format map[string]fileFormat
}

// fileFormat remembers how a file looked on disk.
type fileFormat struct {
	ending LineEnding
	bom    bool
}

// DirOption configures a DirStore.
type DirOption func(*DirStore)

// WithMaxFileSize sets the maximum file size to read. Zero means unlimited.
func WithMaxFileSize(size int64) DirOption {
	return func(s *DirStore) {
		s.maxFileSize = size
	}
}

// NewDirStore creates a store rooted at root.
func NewDirStore(root string, opts ...DirOption) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &PathError{Op: "open", ID: root, Err: errors.New("store root is not a directory")}
	}

	s := &DirStore{
		root:        abs,
		maxFileSize: 10 * 1024 * 1024, // 10MB default
		format:      make(map[string]fileFormat),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute store root.
func (s *DirStore) Root() string {
	return s.root
}

// Path returns the file system path for id.
func (s *DirStore) Path(id string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(id))
	if clean == "/" {
		return "", ErrOutsideRoot
	}
	p := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return p, nil
}

// ID returns the id for a file system path under the root.
func (s *DirStore) ID(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return filepath.ToSlash(rel), nil
}

// Read returns the text of the file for id.
func (s *DirStore) Read(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &PathError{Op: "read", ID: id, Err: err}
	}

	p, err := s.Path(id)
	if err != nil {
		return "", &PathError{Op: "read", ID: id, Err: err}
	}

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrNotFound
		}
		return "", &PathError{Op: "read", ID: id, Err: err}
	}
	if info.IsDir() {
		return "", &PathError{Op: "read", ID: id, Err: ErrIsDirectory}
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return "", &PathError{Op: "read", ID: id, Err: ErrFileTooLarge}
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrNotFound
		}
		return "", &PathError{Op: "read", ID: id, Err: err}
	}
	if IsBinary(data) {
		return "", &PathError{Op: "read", ID: id, Err: ErrBinaryFile}
	}

	data, bom := StripBOM(data)
	ending := DetectLineEnding(data)

	s.mu.Lock()
	s.format[id] = fileFormat{ending: ending, bom: bom}
	s.mu.Unlock()

	return string(NormalizeLineEndings(data, LineEndingLF)), nil
}

// Write atomically replaces the file for id, creating parent directories.
func (s *DirStore) Write(ctx context.Context, id, text string) error {
	if err := ctx.Err(); err != nil {
		return &PathError{Op: "write", ID: id, Err: err}
	}

	p, err := s.Path(id)
	if err != nil {
		return &PathError{Op: "write", ID: id, Err: err}
	}

	s.mu.Lock()
	format, known := s.format[id]
	s.mu.Unlock()

	data := []byte(text)
	if known {
		if format.ending == LineEndingCRLF || format.ending == LineEndingCR {
			data = NormalizeLineEndings(data, format.ending)
		}
		if format.bom {
			data = AddBOM(data)
		}
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &PathError{Op: "write", ID: id, Err: err}
	}
	if err := writeAtomic(p, data); err != nil {
		return &PathError{Op: "write", ID: id, Err: err}
	}
	return nil
}

// Forget drops the remembered on-disk format for id, typically after the
// file was renamed or deleted.
func (s *DirStore) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.format, id)
}

// Move transfers the remembered on-disk format from one id to another.
func (s *DirStore) Move(oldID, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.format[oldID]; ok {
		s.format[newID] = f
		delete(s.format, oldID)
	}
}

// writeAtomic writes data to a temporary file next to p and renames it
// into place so readers never observe a partial write.
func writeAtomic(p string, data []byte) error {
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(p); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Ensure DirStore implements Store.
var _ Store = (*DirStore)(nil)
