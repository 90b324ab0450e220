package pattern

import "fmt"

const (
	MinBPM = 60
	MaxBPM = 240
)

// Tempo converts row indices to seconds. SecondsPerRow is the single timing
// source for both scheduling and rendering; nothing else derives row times.
type Tempo struct {
	BPM         int
	RowsPerBeat int // subdivision, e.g. 4 = sixteenth notes
}

func (t Tempo) Validate() error {
	if t.BPM < MinBPM || t.BPM > MaxBPM {
		return fmt.Errorf("bpm %d out of range %d-%d", t.BPM, MinBPM, MaxBPM)
	}
	if t.RowsPerBeat <= 0 {
		return fmt.Errorf("rowsPerBeat must be positive, got %d", t.RowsPerBeat)
	}
	return nil
}

func (t Tempo) SecondsPerRow() float64 {
	return 60.0 / (float64(t.BPM) * float64(t.RowsPerBeat))
}
