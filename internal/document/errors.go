package document

import (
	"errors"
	"fmt"
)

// Standard errors returned by the registry.
var (
	// ErrOpenFailed indicates the store could not supply a document's text.
	ErrOpenFailed = errors.New("open failed")

	// ErrNotOpen indicates no document with the id is open.
	ErrNotOpen = errors.New("document not open")

	// ErrAlreadyOpen indicates a document with the id is already open.
	ErrAlreadyOpen = errors.New("document already open")

	// ErrInDiffMode indicates the document is in suggestion review.
	ErrInDiffMode = errors.New("document in diff mode")

	// ErrNotInDiffMode indicates the document is not in suggestion review.
	ErrNotInDiffMode = errors.New("document not in diff mode")

	// ErrDeleted indicates the backing file is gone and the document is
	// read-only.
	ErrDeleted = errors.New("document deleted")

	// ErrBaselineChanged indicates the document was replaced while a save
	// of an older snapshot was in flight.
	ErrBaselineChanged = errors.New("baseline changed during save")

	// ErrInvalidID indicates an empty or malformed document id.
	ErrInvalidID = errors.New("invalid document id")
)

// Error records a registry error with the operation and document id.
type Error struct {
	Op  string // Operation that failed
	ID  string // Document id
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("document %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("document %s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
