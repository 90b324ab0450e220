package pattern

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPattern = errors.New("pattern has no rows or no tracks")
	ErrRagged       = errors.New("pattern rows have unequal track counts")
)

type CellKind int

const (
	CellEmpty CellKind = iota
	CellNote
	CellSustain
	CellOff
)

// Cell is one slot of the pattern grid. Pitch and Velocity are meaningful
// only when Kind is CellNote.
type Cell struct {
	Kind     CellKind
	Pitch    int // MIDI note number
	Velocity int // 0-127; 0 means "unspecified", treated as full
}

func Note(pitch, velocity int) Cell { return Cell{Kind: CellNote, Pitch: pitch, Velocity: velocity} }
func Sustain() Cell                 { return Cell{Kind: CellSustain} }
func Off() Cell                     { return Cell{Kind: CellOff} }
func Empty() Cell                   { return Cell{Kind: CellEmpty} }

// Pattern is a rectangular grid of cells addressed by (row, track).
type Pattern struct {
	cells  [][]Cell // cells[row][track]
	tracks int
}

// New builds a pattern from row-major cells. Every row must have the same
// track count; the grid shape is fixed from here on.
func New(cells [][]Cell) (*Pattern, error) {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, ErrEmptyPattern
	}
	tracks := len(cells[0])
	rows := make([][]Cell, len(cells))
	for r, row := range cells {
		if len(row) != tracks {
			return nil, fmt.Errorf("row %d has %d cells, want %d: %w", r, len(row), tracks, ErrRagged)
		}
		rows[r] = append([]Cell(nil), row...)
	}
	return &Pattern{cells: rows, tracks: tracks}, nil
}

func (p *Pattern) Rows() int   { return len(p.cells) }
func (p *Pattern) Tracks() int { return p.tracks }

func (p *Pattern) Cell(row, track int) Cell { return p.cells[row][track] }

// WithContext returns a padded copy: the last context rows, then the whole
// pattern, then the first context rows. Used by the context-aware loop
// exporter so the sliced segment starts from genuinely-played chip state.
// context is clamped to the row count.
func (p *Pattern) WithContext(context int) *Pattern {
	n := len(p.cells)
	if context > n {
		context = n
	}
	if context < 0 {
		context = 0
	}
	rows := make([][]Cell, 0, n+2*context)
	rows = append(rows, p.cells[n-context:]...)
	rows = append(rows, p.cells...)
	rows = append(rows, p.cells[:context]...)
	return &Pattern{cells: rows, tracks: p.tracks}
}

// Extended returns the pattern followed by its own first extra rows,
// giving the extended-render exporter an overlap region to cut in.
func (p *Pattern) Extended(extra int) *Pattern {
	n := len(p.cells)
	if extra > n {
		extra = n
	}
	if extra < 0 {
		extra = 0
	}
	rows := make([][]Cell, 0, n+extra)
	rows = append(rows, p.cells...)
	rows = append(rows, p.cells[:extra]...)
	return &Pattern{cells: rows, tracks: p.tracks}
}
