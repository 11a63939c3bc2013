// Package document provides the registry of open documents.
//
// The Registry tracks every open document, the active pointer, dirty state
// and the suggestion review mode. Store calls happen outside the registry
// lock, so a slow store never blocks edits to other documents.
package document

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ViewMode is how a document is currently presented.
type ViewMode int

const (
	// ViewEdit shows the live editing surface.
	ViewEdit ViewMode = iota
	// ViewDiff shows the suggestion review.
	ViewDiff
)

// String returns the string representation of the view mode.
func (m ViewMode) String() string {
	switch m {
	case ViewEdit:
		return "edit"
	case ViewDiff:
		return "diff"
	default:
		return fmt.Sprintf("ViewMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m ViewMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Document is a snapshot of one open document.
// The registry hands out copies; mutating a Document has no effect on the
// registry.
type Document struct {
	// ID is the stable logical path of the document.
	ID string `json:"id"`

	// Title is the display name derived from ID.
	Title string `json:"title"`

	// Content is the current text.
	Content string `json:"content"`

	// OriginalContent is the last known persisted text.
	OriginalContent string `json:"originalContent"`

	// SuggestedContent is the proposed rewrite; only set in ViewDiff.
	SuggestedContent string `json:"suggestedContent,omitempty"`

	IsDirty   bool     `json:"isDirty"`
	ViewMode  ViewMode `json:"viewMode"`
	IsDeleted bool     `json:"isDeleted"`

	// Untitled is set for documents created with NewUntitled.
	Untitled bool `json:"untitled,omitempty"`

	// Version is incremented on every content mutation.
	Version int64 `json:"version"`

	// Baseline identifies the origin of OriginalContent. It changes when
	// the document is opened or replaced from outside the editor, never on
	// a save.
	Baseline int64 `json:"baseline"`

	OpenedAt   time.Time `json:"openedAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// InReview reports whether the document is in suggestion review.
func (d Document) InReview() bool {
	return d.ViewMode == ViewDiff
}

// TitleFor derives a display title from a document id.
func TitleFor(id string) string {
	if id == "" {
		return ""
	}
	return path.Base(id)
}

// NormalizeID converts a host or file system path into a document id:
// forward slashes, cleaned, no leading "./".
func NormalizeID(id string) string {
	id = strings.ReplaceAll(strings.TrimSpace(id), "\\", "/")
	if id == "" {
		return ""
	}
	id = path.Clean(id)
	for strings.HasPrefix(id, "./") {
		id = id[2:]
	}
	if id == "." {
		return ""
	}
	return id
}
