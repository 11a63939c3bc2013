package codec

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a surface payload is not a JSON document.
var ErrInvalidJSON = errors.New("invalid structured document json")

// jsonNode mirrors the surface's node shape for encoding.
type jsonNode struct {
	Type    NodeType   `json:"type"`
	Text    string     `json:"text,omitempty"`
	Marks   []jsonMark `json:"marks,omitempty"`
	Content []jsonNode `json:"content,omitempty"`
}

type jsonMark struct {
	Type string `json:"type"`
}

// MarshalJSON encodes the document in the surface's node tree shape.
// Empty paragraphs are encoded without a content array.
func (d Doc) MarshalJSON() ([]byte, error) {
	root := jsonNode{Type: TypeDoc, Content: make([]jsonNode, 0, len(d.Paragraphs))}
	for _, p := range d.Paragraphs {
		para := jsonNode{Type: TypeParagraph}
		for _, in := range p.Inline {
			if in.Text == "" {
				continue
			}
			node := jsonNode{Type: TypeText, Text: in.Text}
			for _, m := range in.Marks {
				node.Marks = append(node.Marks, jsonMark{Type: m})
			}
			para.Content = append(para.Content, node)
		}
		root.Content = append(root.Content, para)
	}
	return json.Marshal(root)
}

// UnmarshalJSON decodes a surface payload. See ParseJSON.
func (d *Doc) UnmarshalJSON(data []byte) error {
	doc, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// ParseJSON reads a surface document tolerantly.
//
// Top-level paragraphs keep their boundaries. Any other block node (heading,
// blockquote, list item, ...) contributes one paragraph per descendant
// textblock. Inline nodes other than text are flattened: hard breaks become
// "\n" inside the run, unknown atoms are skipped.
func ParseJSON(data []byte) (Doc, error) {
	if !gjson.ValidBytes(data) {
		return Doc{}, ErrInvalidJSON
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Doc{}, ErrInvalidJSON
	}

	var doc Doc
	root.Get("content").ForEach(func(_, block gjson.Result) bool {
		collectBlocks(block, &doc)
		return true
	})
	return doc, nil
}

// collectBlocks appends the paragraphs found under block.
func collectBlocks(block gjson.Result, doc *Doc) {
	content := block.Get("content")
	if isTextblock(block) {
		doc.Paragraphs = append(doc.Paragraphs, parseInline(content))
		return
	}
	if !content.Exists() {
		// Leaf blocks (horizontal rules, images) carry no text.
		return
	}
	content.ForEach(func(_, child gjson.Result) bool {
		collectBlocks(child, doc)
		return true
	})
}

// isTextblock reports whether the node holds inline content directly.
// Known textblocks count even when empty, so a blank heading keeps its line.
func isTextblock(node gjson.Result) bool {
	switch NodeType(node.Get("type").String()) {
	case TypeParagraph, TypeHeading, TypeCodeBlock:
		return true
	}
	first := node.Get("content.0.type")
	if !first.Exists() {
		return false
	}
	switch NodeType(first.String()) {
	case TypeText, TypeHardBreak:
		return true
	}
	return false
}

func parseInline(content gjson.Result) Paragraph {
	var p Paragraph
	content.ForEach(func(_, node gjson.Result) bool {
		switch NodeType(node.Get("type").String()) {
		case TypeText:
			in := Inline{Text: node.Get("text").String()}
			node.Get("marks.#.type").ForEach(func(_, m gjson.Result) bool {
				in.Marks = append(in.Marks, m.String())
				return true
			})
			if in.Text != "" {
				p.Inline = append(p.Inline, in)
			}
		case TypeHardBreak:
			p.Inline = append(p.Inline, Inline{Text: "\n"})
		}
		return true
	})
	return p
}

// String returns the text form of the document, for debugging.
func (d Doc) String() string {
	return strings.ReplaceAll(ToText(d), "\n", `\n`)
}
