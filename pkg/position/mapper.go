// Package position translates engine diagnostic ranges into host text ranges.
package position

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/bslbridge/bslbridge/pkg/models"
)

// ErrRangeOutOfBounds is returned when a range does not fit the file content.
var ErrRangeOutOfBounds = errors.New("range out of bounds")

// Convention describes how a side numbers lines and columns.
type Convention struct {
	LineBase   int `json:"line_base"`
	ColumnBase int `json:"column_base"`
}

var (
	// EngineLSP is the engine's convention: zero-based lines and UTF-16 characters.
	EngineLSP = Convention{LineBase: 0, ColumnBase: 0}
	// HostDefault is the host's convention: one-based lines, zero-based offsets.
	HostDefault = Convention{LineBase: 1, ColumnBase: 0}
)

// Mapper converts engine ranges to host ranges. The shift between the two
// conventions is fixed at construction.
type Mapper struct {
	engine Convention
	host   Convention
}

// NewMapper creates a mapper between the engine and host conventions.
func NewMapper(engine, host Convention) *Mapper {
	return &Mapper{engine: engine, host: host}
}

// Default returns a mapper for the engine's LSP convention and the default host convention.
func Default() *Mapper {
	return NewMapper(EngineLSP, HostDefault)
}

// LineDelta is the value added to an engine line to get a host line.
func (m *Mapper) LineDelta() int { return m.host.LineBase - m.engine.LineBase }

// ColumnDelta is the value added to an engine column to get a host offset.
func (m *Mapper) ColumnDelta() int { return m.host.ColumnBase - m.engine.ColumnBase }

type point struct {
	line, col int // zero-based
}

func (m *Mapper) toPoint(p models.EnginePosition) point {
	return point{line: p.Line - m.engine.LineBase, col: p.Character - m.engine.ColumnBase}
}

// ToHostRange maps r onto the file described by idx. A point range is widened
// according to span. Multi-line ranges are kept as reported.
func (m *Mapper) ToHostRange(idx *LineIndex, r models.EngineRange, span models.PointSpan) (models.TextRange, error) {
	start := m.toPoint(r.Start)
	if err := checkPoint(idx, start, "start"); err != nil {
		return models.TextRange{}, err
	}

	if r.IsPoint() {
		if !addressable(idx, start) {
			return models.TextRange{}, fmt.Errorf("%w: position %d:%d is past the end of the file", ErrRangeOutOfBounds, r.Start.Line, r.Start.Character)
		}
		return m.widen(idx, start, span)
	}

	end := m.toPoint(*r.End)
	if err := checkPoint(idx, end, "end"); err != nil {
		return models.TextRange{}, err
	}
	if end.line < start.line || (end.line == start.line && end.col < start.col) {
		return models.TextRange{}, fmt.Errorf("%w: start %d:%d is after end %d:%d",
			ErrRangeOutOfBounds, r.Start.Line, r.Start.Character, r.End.Line, r.End.Character)
	}
	return m.build(idx, start, end)
}

// LineRange returns the host range covering the whole engine line n.
func (m *Mapper) LineRange(idx *LineIndex, n int) (models.TextRange, error) {
	p := point{line: n - m.engine.LineBase}
	if err := checkPoint(idx, p, "line"); err != nil {
		return models.TextRange{}, err
	}
	return m.build(idx, p, point{line: p.line, col: idx.lines[p.line].units})
}

// InsertionPoint maps p to an empty host range. Unlike diagnostics, an
// insertion may sit at the end of the file.
func (m *Mapper) InsertionPoint(idx *LineIndex, p models.EnginePosition) (models.TextRange, error) {
	pt := m.toPoint(p)
	if err := checkPoint(idx, pt, "insertion"); err != nil {
		return models.TextRange{}, err
	}
	return m.build(idx, pt, pt)
}

// HostLine converts a zero-based line number into the host's numbering.
func (m *Mapper) HostLine(zeroBased int) int {
	return zeroBased + m.host.LineBase
}

func checkPoint(idx *LineIndex, p point, what string) error {
	if p.line < 0 || p.line >= idx.LineCount() {
		return fmt.Errorf("%w: %s line %d outside 0..%d", ErrRangeOutOfBounds, what, p.line, idx.LineCount()-1)
	}
	if _, ok := idx.byteOffset(p.line, p.col); !ok {
		return fmt.Errorf("%w: %s column %d invalid for line %d of length %d",
			ErrRangeOutOfBounds, what, p.col, p.line, idx.lines[p.line].units)
	}
	return nil
}

// addressable reports whether p designates a character: either one inside its
// line or the line terminator. The end of the file is only addressable when
// the file is empty.
func addressable(idx *LineIndex, p point) bool {
	if p.col < idx.lines[p.line].units {
		return true
	}
	if p.line < idx.LineCount()-1 {
		return true
	}
	return idx.Empty()
}

func (m *Mapper) widen(idx *LineIndex, start point, span models.PointSpan) (models.TextRange, error) {
	l := idx.lines[start.line]
	if span == models.SpanLine || start.col >= l.units {
		return m.build(idx, point{line: start.line}, point{line: start.line, col: l.units})
	}

	off, _ := idx.byteOffset(start.line, start.col)
	text := idx.content[off:l.end]
	first, size := utf8.DecodeRune(text)
	units := runeUnits(first)
	if isIdentRune(first) {
		for rest := text[size:]; len(rest) > 0; {
			r, n := utf8.DecodeRune(rest)
			if !isIdentRune(r) {
				break
			}
			units += runeUnits(r)
			rest = rest[n:]
		}
	}
	return m.build(idx, start, point{line: start.line, col: start.col + units})
}

func (m *Mapper) build(idx *LineIndex, start, end point) (models.TextRange, error) {
	sb, ok := idx.byteOffset(start.line, start.col)
	if !ok {
		return models.TextRange{}, fmt.Errorf("%w: start %d:%d", ErrRangeOutOfBounds, start.line, start.col)
	}
	eb, ok := idx.byteOffset(end.line, end.col)
	if !ok {
		return models.TextRange{}, fmt.Errorf("%w: end %d:%d", ErrRangeOutOfBounds, end.line, end.col)
	}
	return models.TextRange{
		Start:     models.TextPointer{Line: start.line + m.host.LineBase, LineOffset: start.col + m.host.ColumnBase},
		End:       models.TextPointer{Line: end.line + m.host.LineBase, LineOffset: end.col + m.host.ColumnBase},
		StartByte: sb,
		EndByte:   eb,
	}, nil
}

// isIdentRune matches identifier characters of the source language, which
// allows Cyrillic and other letters.
func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
