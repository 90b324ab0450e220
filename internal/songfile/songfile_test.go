package songfile

import (
	"strings"
	"testing"

	"github.com/CaptainCoderOrg/webopl-go/internal/patch"
	"github.com/CaptainCoderOrg/webopl-go/internal/pattern"
)

const twoTrackDoc = `{
	"tempo": {"bpm": 120, "rowsPerBeat": 4},
	"instruments": [0, 2],
	"rows": [
		["C4:100", "C2"],
		[".", "."],
		["E4", "off"],
		["off", "-"]
	]
}`

func TestLoadResolvesDocument(t *testing.T) {
	song, err := Load(strings.NewReader(twoTrackDoc), patch.DefaultBank())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if song.Pattern.Rows() != 4 || song.Pattern.Tracks() != 2 {
		t.Fatalf("got %dx%d grid", song.Pattern.Rows(), song.Pattern.Tracks())
	}
	if song.Tempo.BPM != 120 || song.Tempo.RowsPerBeat != 4 {
		t.Fatalf("tempo = %+v", song.Tempo)
	}
	if len(song.Instruments) != 2 {
		t.Fatalf("got %d instruments", len(song.Instruments))
	}

	c := song.Pattern.Cell(0, 0)
	if c.Kind != pattern.CellNote || c.Pitch != 60 || c.Velocity != 100 {
		t.Fatalf("cell(0,0) = %+v", c)
	}
	if song.Pattern.Cell(0, 1).Pitch != 36 {
		t.Fatalf("cell(0,1) pitch = %d, want 36", song.Pattern.Cell(0, 1).Pitch)
	}
	if song.Pattern.Cell(1, 0).Kind != pattern.CellSustain {
		t.Fatal("expected sustain at row 1")
	}
	if song.Pattern.Cell(2, 1).Kind != pattern.CellOff {
		t.Fatal("expected off at row 2 track 1")
	}
	if song.Pattern.Cell(3, 1).Kind != pattern.CellEmpty {
		t.Fatal("expected empty at row 3 track 1")
	}
	if c := song.Pattern.Cell(2, 0); c.Velocity != 127 {
		t.Fatalf("default velocity = %d, want 127", c.Velocity)
	}
}

func TestParsePitch(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"C4", 60},
		{"A4", 69},
		{"C#4", 61},
		{"Bb3", 58},
		{"c2", 36},
		{"60", 60},
		{"0", 0},
		{"G9", 127},
	}
	for _, c := range cases {
		got, err := parsePitch(c.in)
		if err != nil {
			t.Errorf("parsePitch(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parsePitch(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParsePitchRejectsGarbage(t *testing.T) {
	for _, in := range []string{"H4", "C", "C#", "128", "-1", "Cx4", "C99"} {
		if _, err := parsePitch(in); err == nil {
			t.Errorf("parsePitch(%q) accepted", in)
		}
	}
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	bank := patch.DefaultBank()
	cases := map[string]string{
		"bad json":         `{"tempo"`,
		"unknown field":    `{"tempo": {"bpm": 120, "rowsPerBeat": 4}, "author": "x", "instruments": [0], "rows": [["C4"]]}`,
		"tempo range":      `{"tempo": {"bpm": 400, "rowsPerBeat": 4}, "instruments": [0], "rows": [["C4"]]}`,
		"bank index":       `{"tempo": {"bpm": 120, "rowsPerBeat": 4}, "instruments": [99], "rows": [["C4"]]}`,
		"ragged row":       `{"tempo": {"bpm": 120, "rowsPerBeat": 4}, "instruments": [0, 1], "rows": [["C4"]]}`,
		"bad token":        `{"tempo": {"bpm": 120, "rowsPerBeat": 4}, "instruments": [0], "rows": [["Q4"]]}`,
		"bad velocity":     `{"tempo": {"bpm": 120, "rowsPerBeat": 4}, "instruments": [0], "rows": [["C4:999"]]}`,
		"no rows":          `{"tempo": {"bpm": 120, "rowsPerBeat": 4}, "instruments": [0], "rows": []}`,
		"negative instidx": `{"tempo": {"bpm": 120, "rowsPerBeat": 4}, "instruments": [-1], "rows": [["C4"]]}`,
	}
	for name, doc := range cases {
		if _, err := Load(strings.NewReader(doc), bank); err == nil {
			t.Errorf("%s: Load accepted", name)
		}
	}
}
