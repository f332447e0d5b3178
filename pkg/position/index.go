package position

import (
	"bytes"
	"unicode/utf16"
	"unicode/utf8"
)

// line is one logical line of a file, without its terminator.
type line struct {
	start int // byte offset of the first byte
	end   int // byte offset one past the last byte, excluding the terminator
	units int // length in UTF-16 code units
}

// LineIndex splits file content into logical lines. CR, LF and CRLF each
// terminate one line; a trailing unterminated line still counts, and content
// that ends with a terminator has a final empty line. A leading UTF-8 byte
// order mark is not part of the first line, but byte offsets still count it.
type LineIndex struct {
	content []byte
	lines   []line
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Index builds the line index for content. The slice is retained, not copied.
func Index(content []byte) *LineIndex {
	idx := &LineIndex{content: content, lines: make([]line, 0, len(content)/32+1)}
	start := 0
	if bytes.HasPrefix(content, utf8BOM) {
		start = len(utf8BOM)
	}
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '\n':
			idx.lines = append(idx.lines, idx.newLine(start, i))
			start = i + 1
		case '\r':
			idx.lines = append(idx.lines, idx.newLine(start, i))
			if i+1 < len(content) && content[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	idx.lines = append(idx.lines, idx.newLine(start, len(content)))
	return idx
}

func (idx *LineIndex) newLine(start, end int) line {
	return line{start: start, end: end, units: utf16Len(idx.content[start:end])}
}

// LineCount returns the number of logical lines (at least 1).
func (idx *LineIndex) LineCount() int {
	return len(idx.lines)
}

// LineLength returns the UTF-16 length of the zero-based line n, or -1.
func (idx *LineIndex) LineLength(n int) int {
	if n < 0 || n >= len(idx.lines) {
		return -1
	}
	return idx.lines[n].units
}

// LineText returns the text of the zero-based line n without its terminator.
func (idx *LineIndex) LineText(n int) string {
	if n < 0 || n >= len(idx.lines) {
		return ""
	}
	l := idx.lines[n]
	return string(idx.content[l.start:l.end])
}

// Empty reports whether the indexed content has no text. A lone byte order
// mark is empty.
func (idx *LineIndex) Empty() bool {
	return idx.lines[0].start == len(idx.content)
}

// byteOffset converts a UTF-16 column on line n into an absolute byte offset.
// ok is false when col is past the end of the line or splits a surrogate pair.
func (idx *LineIndex) byteOffset(n, col int) (int, bool) {
	l := idx.lines[n]
	if col < 0 || col > l.units {
		return 0, false
	}
	units := 0
	for off := l.start; off < l.end; {
		if units == col {
			return off, true
		}
		r, size := utf8.DecodeRune(idx.content[off:l.end])
		units += runeUnits(r)
		if units > col {
			return 0, false
		}
		off += size
	}
	return l.end, units == col
}

func utf16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		n += runeUnits(r)
		b = b[size:]
	}
	return n
}

func runeUnits(r rune) int {
	if r == utf8.RuneError {
		return 1
	}
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}
