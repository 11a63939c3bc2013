package store

import "bytes"

// LineEnding represents the line ending style.
type LineEnding string

const (
	// LineEndingLF is Unix-style line ending (\n).
	LineEndingLF LineEnding = "lf"

	// LineEndingCRLF is Windows-style line ending (\r\n).
	LineEndingCRLF LineEnding = "crlf"

	// LineEndingCR is old Mac-style line ending (\r).
	LineEndingCR LineEnding = "cr"

	// LineEndingMixed indicates mixed line endings.
	LineEndingMixed LineEnding = "mixed"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// DetectLineEnding returns the dominant line ending of content.
// Content without line breaks reports LF.
func DetectLineEnding(content []byte) LineEnding {
	var lf, crlf, cr int
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '\r':
			if i+1 < len(content) && content[i+1] == '\n' {
				crlf++
				i++
			} else {
				cr++
			}
		case '\n':
			lf++
		}
	}

	kinds := 0
	for _, n := range []int{lf, crlf, cr} {
		if n > 0 {
			kinds++
		}
	}
	switch {
	case kinds > 1:
		return LineEndingMixed
	case crlf > 0:
		return LineEndingCRLF
	case cr > 0:
		return LineEndingCR
	}
	return LineEndingLF
}

// StripBOM removes a UTF-8 byte order mark if present.
func StripBOM(content []byte) ([]byte, bool) {
	if bytes.HasPrefix(content, bomUTF8) {
		return content[len(bomUTF8):], true
	}
	return content, false
}

// AddBOM prepends a UTF-8 byte order mark unless one is present.
func AddBOM(content []byte) []byte {
	if bytes.HasPrefix(content, bomUTF8) {
		return content
	}
	out := make([]byte, 0, len(content)+len(bomUTF8))
	out = append(out, bomUTF8...)
	return append(out, content...)
}

// NormalizeLineEndings converts all line endings to the specified style.
// Mixed is not a valid target and returns content unchanged.
func NormalizeLineEndings(content []byte, ending LineEnding) []byte {
	if len(content) == 0 {
		return content
	}

	var newline []byte
	switch ending {
	case LineEndingLF:
		newline = []byte{'\n'}
	case LineEndingCRLF:
		newline = []byte{'\r', '\n'}
	case LineEndingCR:
		newline = []byte{'\r'}
	default:
		return content
	}

	result := make([]byte, 0, len(content))
	for i := 0; i < len(content); i++ {
		if content[i] == '\r' {
			if i+1 < len(content) && content[i+1] == '\n' {
				i++
			}
			result = append(result, '\n')
		} else {
			result = append(result, content[i])
		}
	}

	if ending == LineEndingLF {
		return result
	}
	return bytes.ReplaceAll(result, []byte{'\n'}, newline)
}

// IsBinary reports whether content looks like binary data: a NUL byte in
// the first 8KB, or more than 10% control characters.
func IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	sample := content[:min(len(content), 8192)]
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}

	nonText := 0
	for _, b := range sample {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonText++
		}
	}
	return float64(nonText)/float64(len(sample)) > 0.1
}
