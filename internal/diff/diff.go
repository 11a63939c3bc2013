// Package diff computes character-level differences between two texts and
// projects them into per-side highlight ranges for a two-pane review view.
//
// The engine is pure: identical inputs always produce identical spans and
// ranges, which keeps re-renders of the review view flicker free.
package diff

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalidInput is returned when an input cannot be diffed.
// Callers pass "" for absent text; invalid UTF-8 is rejected.
var ErrInvalidInput = errors.New("invalid diff input")

// Kind classifies a span.
type Kind uint8

const (
	// Equal marks text present on both sides.
	Equal Kind = iota

	// Added marks text present only in the current text.
	Added

	// Removed marks text present only in the original text.
	Removed
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Equal:
		return "equal"
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "equal":
		*k = Equal
	case "added":
		*k = Added
	case "removed":
		*k = Removed
	default:
		return ErrInvalidInput
	}
	return nil
}

// Span is a contiguous run of text with a single classification.
type Span struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Len returns the span length in characters.
func (s Span) Len() int {
	return utf8.RuneCountInString(s.Text)
}

// Options configures diff computation.
type Options struct {
	// MaxEditCost bounds the number of edits a character search may
	// explore. Texts that need more are aligned line by line first and only
	// the changed lines are diffed by character. Zero uses
	// DefaultMaxEditCost; negative disables the bound.
	MaxEditCost int
}

// DefaultMaxEditCost is the default edit bound.
const DefaultMaxEditCost = 10000

// Result is the outcome of a diff.
type Result struct {
	Spans []Span `json:"spans"`
}

// Stats summarizes a diff.
type Stats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Equal   int `json:"equal"`
}

// HasChanges returns true if any span is not Equal.
func (r Result) HasChanges() bool {
	for _, s := range r.Spans {
		if s.Kind != Equal {
			return true
		}
	}
	return false
}

// Original reconstructs the original text from Equal and Removed spans.
func (r Result) Original() string {
	return r.join(Removed)
}

// Current reconstructs the current text from Equal and Added spans.
func (r Result) Current() string {
	return r.join(Added)
}

func (r Result) join(side Kind) string {
	var sb strings.Builder
	for _, s := range r.Spans {
		if s.Kind == Equal || s.Kind == side {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

// Stats returns character counts per kind.
func (r Result) Stats() Stats {
	var st Stats
	for _, s := range r.Spans {
		switch s.Kind {
		case Added:
			st.Added += s.Len()
		case Removed:
			st.Removed += s.Len()
		default:
			st.Equal += s.Len()
		}
	}
	return st
}

// Compute diffs original against current with default options.
func Compute(original, current string) (Result, error) {
	return ComputeWithOptions(original, current, Options{})
}

// ComputeWithOptions diffs original against current.
func ComputeWithOptions(original, current string, opts Options) (Result, error) {
	if !utf8.ValidString(original) || !utf8.ValidString(current) {
		return Result{}, ErrInvalidInput
	}

	a := []rune(original)
	b := []rune(current)

	// Trim the common prefix and suffix; Myers only sees the middle.
	prefix := commonPrefix(a, b)
	suffix := commonSuffix(a[prefix:], b[prefix:])
	midA := a[prefix : len(a)-suffix]
	midB := b[prefix : len(b)-suffix]

	maxCost := opts.MaxEditCost
	if maxCost == 0 {
		maxCost = DefaultMaxEditCost
	}

	var bld spanBuilder
	bld.add(Equal, a[:prefix])
	diffRunes(&bld, midA, midB, maxCost)
	bld.add(Equal, a[len(a)-suffix:])

	return Result{Spans: bld.finish()}, nil
}

// diffRunes diffs a and b by character, falling back to a line alignment
// when the character search is over budget.
func diffRunes(bld *spanBuilder, a, b []rune, maxCost int) {
	if ops, ok := myers(a, b, maxCost); ok {
		bld.addOps(ops, a, b)
		return
	}
	diffLines(bld, a, b, maxCost)
}

func commonPrefix(a, b []rune) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func commonSuffix(a, b []rune) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			return i
		}
	}
	return n
}

// spanBuilder merges runes into spans. The changes between two equal runs
// come out as one removed span followed by one added span.
type spanBuilder struct {
	spans   []Span
	equal   []rune
	removed []rune
	added   []rune
}

func (b *spanBuilder) addRune(kind Kind, r rune) {
	switch kind {
	case Equal:
		b.flushChanges()
		b.equal = append(b.equal, r)
	case Removed:
		b.flushEqual()
		b.removed = append(b.removed, r)
	case Added:
		b.flushEqual()
		b.added = append(b.added, r)
	}
}

func (b *spanBuilder) add(kind Kind, rs []rune) {
	for _, r := range rs {
		b.addRune(kind, r)
	}
}

// addOps appends an edit script whose indexes address a and c.
func (b *spanBuilder) addOps(ops []editOp, a, c []rune) {
	for _, op := range ops {
		switch op.op {
		case Equal, Removed:
			b.addRune(op.op, a[op.oldIndex])
		case Added:
			b.addRune(Added, c[op.newIndex])
		}
	}
}

func (b *spanBuilder) flushEqual() {
	if len(b.equal) > 0 {
		b.spans = append(b.spans, Span{Text: string(b.equal), Kind: Equal})
		b.equal = b.equal[:0]
	}
}

func (b *spanBuilder) flushChanges() {
	if len(b.removed) > 0 {
		b.spans = append(b.spans, Span{Text: string(b.removed), Kind: Removed})
		b.removed = b.removed[:0]
	}
	if len(b.added) > 0 {
		b.spans = append(b.spans, Span{Text: string(b.added), Kind: Added})
		b.added = b.added[:0]
	}
}

func (b *spanBuilder) finish() []Span {
	b.flushEqual()
	b.flushChanges()
	return b.spans
}
