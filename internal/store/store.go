// Package store provides the persistent path-to-text stores that back open
// documents.
//
// A Store is deliberately small: documents are read whole and written whole.
// Both calls may block and may fail; callers treat a timeout like any other
// error.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Standard errors returned by stores.
var (
	// ErrNotFound indicates no text is stored under the id.
	ErrNotFound = errors.New("not found")

	// ErrOutsideRoot indicates the id escapes the store root.
	ErrOutsideRoot = errors.New("path outside store root")

	// ErrIsDirectory indicates the id names a directory.
	ErrIsDirectory = errors.New("path is a directory")

	// ErrFileTooLarge indicates the file exceeds the maximum size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrBinaryFile indicates the file appears to be binary.
	ErrBinaryFile = errors.New("binary file")
)

// Store reads and writes document text by id.
type Store interface {
	// Read returns the stored text. Returns an error wrapping ErrNotFound
	// if nothing is stored under id.
	Read(ctx context.Context, id string) (string, error)

	// Write replaces the stored text.
	Write(ctx context.Context, id, text string) error
}

// PathError records a store error with the operation and id that caused it.
type PathError struct {
	Op  string // read or write
	ID  string // Document id
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates missing text.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
