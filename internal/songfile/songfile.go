// Package songfile reads the JSON song document the command line tools
// consume: a tempo, per-track instrument indices, and a tracker-style cell
// grid. It is an input collaborator; the core packages never depend on it.
//
// Cell tokens: "C4" or "C#4:100" start a note (optional :velocity),
// "." or "" sustain, "-" empty, "off" stops the track.
package songfile

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/CaptainCoderOrg/webopl-go/internal/patch"
	"github.com/CaptainCoderOrg/webopl-go/internal/pattern"
)

type document struct {
	Tempo struct {
		BPM         int `json:"bpm"`
		RowsPerBeat int `json:"rowsPerBeat"`
	} `json:"tempo"`
	Instruments []int      `json:"instruments"`
	Rows        [][]string `json:"rows"`
}

// Song is a fully resolved document, ready to schedule and render.
type Song struct {
	Pattern     *pattern.Pattern
	Tempo       pattern.Tempo
	Instruments []patch.Instrument
}

// Load parses a song document and resolves its instrument indices against
// bank. Any unresolvable index is fatal: every track must have an
// instrument before render time.
func Load(r io.Reader, bank []patch.Instrument) (*Song, error) {
	var doc document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("songfile: parse: %w", err)
	}

	tempo := pattern.Tempo{BPM: doc.Tempo.BPM, RowsPerBeat: doc.Tempo.RowsPerBeat}
	if err := tempo.Validate(); err != nil {
		return nil, fmt.Errorf("songfile: %w", err)
	}

	insts := make([]patch.Instrument, len(doc.Instruments))
	for i, idx := range doc.Instruments {
		if idx < 0 || idx >= len(bank) {
			return nil, fmt.Errorf("songfile: track %d: no instrument at bank index %d", i, idx)
		}
		insts[i] = bank[idx]
	}

	cells := make([][]pattern.Cell, len(doc.Rows))
	for r, row := range doc.Rows {
		if len(row) != len(insts) {
			return nil, fmt.Errorf("songfile: row %d has %d cells for %d tracks", r, len(row), len(insts))
		}
		cells[r] = make([]pattern.Cell, len(row))
		for t, tok := range row {
			cell, err := parseCell(tok)
			if err != nil {
				return nil, fmt.Errorf("songfile: row %d track %d: %w", r, t, err)
			}
			cells[r][t] = cell
		}
	}
	p, err := pattern.New(cells)
	if err != nil {
		return nil, fmt.Errorf("songfile: %w", err)
	}
	return &Song{Pattern: p, Tempo: tempo, Instruments: insts}, nil
}

func parseCell(tok string) (pattern.Cell, error) {
	switch strings.ToLower(strings.TrimSpace(tok)) {
	case "", ".":
		return pattern.Sustain(), nil
	case "-":
		return pattern.Empty(), nil
	case "off":
		return pattern.Off(), nil
	}
	note := tok
	velocity := 127
	if i := strings.IndexByte(tok, ':'); i >= 0 {
		note = tok[:i]
		v, err := strconv.Atoi(tok[i+1:])
		if err != nil || v < 1 || v > 127 {
			return pattern.Cell{}, fmt.Errorf("bad velocity %q", tok[i+1:])
		}
		velocity = v
	}
	pitch, err := parsePitch(note)
	if err != nil {
		return pattern.Cell{}, err
	}
	return pattern.Note(pitch, velocity), nil
}

var noteOffsets = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// parsePitch accepts note names like C4, F#3, Bb2, or a bare MIDI number.
func parsePitch(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 127 {
			return 0, fmt.Errorf("midi number %d out of range", n)
		}
		return n, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("bad note %q", s)
	}
	off, ok := noteOffsets[s[0]&^0x20] // uppercase
	if !ok {
		return 0, fmt.Errorf("bad note %q", s)
	}
	rest := s[1:]
	switch rest[0] {
	case '#':
		off++
		rest = rest[1:]
	case 'b':
		off--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("bad note %q", s)
	}
	pitch := (octave+1)*12 + off
	if pitch < 0 || pitch > 127 {
		return 0, fmt.Errorf("note %q out of MIDI range", s)
	}
	return pitch, nil
}
