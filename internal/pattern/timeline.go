package pattern

type Action int

const (
	NoteOn Action = iota
	NoteOff
)

// NoteEvent is one timestamped on/off produced by BuildTimeline.
type NoteEvent struct {
	Time     float64 // seconds from pattern start
	Row      int
	Track    int
	Action   Action
	Pitch    int
	Velocity int
}

// Timeline is the ordered event list for one render pass. Events are sorted
// by time; ties keep pattern row order, and within a row each track emits its
// off before its on (retrigger order).
type Timeline struct {
	Events   []NoteEvent
	Duration float64 // seconds; last row time plus one row
	Tracks   int
}

// BuildTimeline walks the pattern grid row by row and produces the event
// stream. It is a pure function: no device or allocator interaction, and the
// same inputs always yield the same timeline.
//
// Per track: a Note cell closes any live note and opens a new one (even at
// the identical pitch - re-asserting key-on does not restart the attack, so
// a retrigger must be an explicit off-then-on pair). Sustain and Empty emit
// nothing. Off closes the live note if there is one and is otherwise a no-op.
// Any note still live after the last row gets an implicit off at Duration.
func BuildTimeline(p *Pattern, tempo Tempo) (*Timeline, error) {
	if err := tempo.Validate(); err != nil {
		return nil, err
	}
	spr := tempo.SecondsPerRow()
	rows, tracks := p.Rows(), p.Tracks()

	tl := &Timeline{Tracks: tracks, Duration: float64(rows) * spr}
	live := make([]int, tracks) // live pitch per track, -1 = none
	liveVel := make([]int, tracks)
	for t := range live {
		live[t] = -1
	}

	// Rows outer, tracks inner: the appended stream is already globally
	// time-ordered with ties in pattern row order, so no sort is needed.
	for r := 0; r < rows; r++ {
		at := float64(r) * spr
		for t := 0; t < tracks; t++ {
			c := p.Cell(r, t)
			switch c.Kind {
			case CellNote:
				if live[t] >= 0 {
					tl.Events = append(tl.Events, NoteEvent{Time: at, Row: r, Track: t, Action: NoteOff, Pitch: live[t], Velocity: liveVel[t]})
				}
				vel := c.Velocity
				if vel <= 0 || vel > 127 {
					vel = 127
				}
				tl.Events = append(tl.Events, NoteEvent{Time: at, Row: r, Track: t, Action: NoteOn, Pitch: c.Pitch, Velocity: vel})
				live[t] = c.Pitch
				liveVel[t] = vel
			case CellOff:
				if live[t] >= 0 {
					tl.Events = append(tl.Events, NoteEvent{Time: at, Row: r, Track: t, Action: NoteOff, Pitch: live[t], Velocity: liveVel[t]})
					live[t] = -1
				}
			case CellSustain, CellEmpty:
				// Nothing. An Empty cell on a never-triggered track is
				// indistinguishable from Sustain here.
			}
		}
	}
	for t := 0; t < tracks; t++ {
		if live[t] >= 0 {
			tl.Events = append(tl.Events, NoteEvent{Time: tl.Duration, Row: rows, Track: t, Action: NoteOff, Pitch: live[t], Velocity: liveVel[t]})
		}
	}
	return tl, nil
}
