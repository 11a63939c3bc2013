// Package codec converts between plain text and the paragraph document
// consumed by the editing surface.
//
// The conversion is lossless for paragraphs: every "\n" separated line maps
// to exactly one paragraph, and empty lines map to empty paragraphs so the
// number of blank lines survives a round trip. For any text that does not end
// in whitespace:
//
//	ToText(ToStructured(text)) == text
//
// Dirty checking relies on this law, so content coming back from the surface
// is compared after a round trip, never by identity.
package codec

import (
	"strings"
	"unicode"
)

// NodeType identifies a node in the surface JSON representation.
type NodeType string

// Node types understood by the codec.
const (
	TypeDoc       NodeType = "doc"
	TypeParagraph NodeType = "paragraph"
	TypeHeading   NodeType = "heading"
	TypeCodeBlock NodeType = "code_block"
	TypeText      NodeType = "text"
	TypeHardBreak NodeType = "hard_break"
)

// Doc is a structured document: an ordered list of paragraphs.
type Doc struct {
	Paragraphs []Paragraph
}

// Paragraph is a block of inline runs. An empty paragraph has no runs.
type Paragraph struct {
	Inline []Inline
}

// Inline is a run of text with optional mark names (bold, italic, ...).
// Marks are carried through but do not affect the text form.
type Inline struct {
	Text  string
	Marks []string
}

// Text returns the concatenated text of the paragraph.
func (p Paragraph) Text() string {
	switch len(p.Inline) {
	case 0:
		return ""
	case 1:
		return p.Inline[0].Text
	}

	var sb strings.Builder
	for _, in := range p.Inline {
		sb.WriteString(in.Text)
	}
	return sb.String()
}

// IsEmpty returns true if the paragraph has no inline children.
func (p Paragraph) IsEmpty() bool {
	return len(p.Inline) == 0
}

// Len returns the number of paragraphs.
func (d Doc) Len() int {
	return len(d.Paragraphs)
}

// ToStructured splits text on "\n" and builds one paragraph per line.
// An empty line becomes an empty paragraph rather than being dropped.
func ToStructured(text string) Doc {
	lines := strings.Split(text, "\n")
	doc := Doc{Paragraphs: make([]Paragraph, len(lines))}
	for i, line := range lines {
		if line == "" {
			continue
		}
		doc.Paragraphs[i] = Paragraph{Inline: []Inline{{Text: line}}}
	}
	return doc
}

// ToText joins paragraph text with "\n" and trims trailing whitespace from
// the final result. Interior blank lines are kept.
func ToText(doc Doc) string {
	var sb strings.Builder
	for i, p := range doc.Paragraphs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for _, in := range p.Inline {
			sb.WriteString(in.Text)
		}
	}
	return strings.TrimRightFunc(sb.String(), unicode.IsSpace)
}

// Normalize returns text as it would come back from the surface.
// Two texts that normalize to the same value are indistinguishable to the
// editing surface.
func Normalize(text string) string {
	return ToText(ToStructured(text))
}
