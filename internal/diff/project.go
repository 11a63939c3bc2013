package diff

import "fmt"

// Side identifies one pane of the two-pane comparison.
type Side uint8

const (
	// Left is the original text pane.
	Left Side = iota

	// Right is the current (suggested) text pane.
	Right
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left":
		*s = Left
	case "right":
		*s = Right
	default:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidInput, text)
	}
	return nil
}

// Range is a half-open highlight range [Start, End) in 1-based character
// positions of a single side.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of characters covered.
func (r Range) Len() int {
	return r.End - r.Start
}

// Decorations holds independent highlight lists for the two panes.
// Each list addresses positions in its own side's text, so ranges on the
// left and right generally diverge after the first change.
type Decorations struct {
	Left  []Range `json:"left"`
	Right []Range `json:"right"`
}

// Project walks spans in order keeping one cursor per side.
// Removed spans highlight the left side and advance only the left cursor,
// Added spans do the same for the right, Equal spans advance both.
func Project(spans []Span) Decorations {
	var dec Decorations
	leftPos, rightPos := 1, 1

	for _, s := range spans {
		n := s.Len()
		switch s.Kind {
		case Removed:
			dec.Left = append(dec.Left, Range{Start: leftPos, End: leftPos + n})
			leftPos += n
		case Added:
			dec.Right = append(dec.Right, Range{Start: rightPos, End: rightPos + n})
			rightPos += n
		default:
			leftPos += n
			rightPos += n
		}
	}

	return dec
}

// Decorations projects the result's spans.
func (r Result) Decorations() Decorations {
	return Project(r.Spans)
}
