// Package webopl is a pattern sequencer and renderer for an emulated
// OPL3 chip. Patterns are rectangular grids of note cells; the package
// schedules them onto the chip's 18 hardware channels, plays the result
// live, or renders it offline to WAV with optional seamless-loop
// treatment. Online and offline rendering produce identical audio.
package webopl

import (
	"github.com/CaptainCoderOrg/webopl-go/internal/patch"
	"github.com/CaptainCoderOrg/webopl-go/internal/pattern"
)

// Re-exported pattern types. A Pattern is built from a grid of cells,
// rows outermost, one column per track.
type (
	Pattern  = pattern.Pattern
	Cell     = pattern.Cell
	CellKind = pattern.CellKind
	Tempo    = pattern.Tempo
)

const (
	CellEmpty   = pattern.CellEmpty
	CellNote    = pattern.CellNote
	CellSustain = pattern.CellSustain
	CellOff     = pattern.CellOff
)

// Re-exported instrument types. Build custom patches with NewInstrument
// or NewDualInstrument, or pick from DefaultBank.
type (
	Instrument = patch.Instrument
	Voice      = patch.Voice
	Operator   = patch.Operator
	Connection = patch.Connection
)

const (
	ConnectionFM       = patch.ConnectionFM
	ConnectionAdditive = patch.ConnectionAdditive
)

func NewPattern(cells [][]Cell) (*Pattern, error) { return pattern.New(cells) }

func Note(pitch, velocity int) Cell { return pattern.Note(pitch, velocity) }
func Sustain() Cell                 { return pattern.Sustain() }
func Off() Cell                     { return pattern.Off() }
func Empty() Cell                   { return pattern.Empty() }

// NewInstrument builds a single-voice patch.
func NewInstrument(name string, v Voice, feedback uint8, conn Connection) Instrument {
	return patch.NewSingle(name, v, feedback, conn)
}

// NewDualInstrument builds a patch that always claims two channels.
func NewDualInstrument(name string, v1, v2 Voice, feedback uint8, conn Connection) Instrument {
	return patch.NewDual(name, v1, v2, feedback, conn)
}

// DualIfDistinct builds a patch from two voices, collapsing to a single
// channel when the voices are close enough that layering them is waste.
func DualIfDistinct(name string, v1, v2 Voice, feedback uint8, conn Connection) Instrument {
	return patch.DualIfDistinct(name, v1, v2, feedback, conn)
}

// DefaultBank returns the built-in general-purpose patch set.
func DefaultBank() []Instrument { return patch.DefaultBank() }
