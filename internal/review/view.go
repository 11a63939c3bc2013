// Package review builds the two-pane suggestion review.
//
// The left pane shows the document content with removed text highlighted;
// the right pane shows the suggestion with added text highlighted. Ranges
// address each pane's own text, so the panes may differ in length.
package review

import (
	"github.com/dshills/inkwell/internal/codec"
	"github.com/dshills/inkwell/internal/diff"
	"github.com/dshills/inkwell/internal/document"
)

// Pane is one side of the review.
type Pane struct {
	Text       string       `json:"text"`
	Doc        codec.Doc    `json:"doc"`
	Highlights []diff.Range `json:"highlights"`
}

// View is the review model for one document.
type View struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Left  Pane        `json:"left"`
	Right Pane        `json:"right"`
	Spans []diff.Span `json:"spans"`
	Stats diff.Stats  `json:"stats"`
}

// Build computes the review view of a document in diff mode.
func Build(doc document.Document) (View, error) {
	if !doc.InReview() {
		return View{}, &document.Error{Op: "review", ID: doc.ID, Err: document.ErrNotInDiffMode}
	}
	return Compare(doc.ID, doc.Title, doc.Content, doc.SuggestedContent)
}

// Compare builds a view of any two texts.
func Compare(id, title, original, suggested string) (View, error) {
	res, err := diff.Compute(original, suggested)
	if err != nil {
		return View{}, err
	}

	dec := res.Decorations()
	left := Pane{Text: original, Doc: codec.ToStructured(original), Highlights: dec.Left}
	right := Pane{Text: suggested, Doc: codec.ToStructured(suggested), Highlights: dec.Right}
	if left.Highlights == nil {
		left.Highlights = []diff.Range{}
	}
	if right.Highlights == nil {
		right.Highlights = []diff.Range{}
	}

	return View{
		ID:    id,
		Title: title,
		Left:  left,
		Right: right,
		Spans: res.Spans,
		Stats: res.Stats(),
	}, nil
}
