package opl

import "math"

// chipClock is the nominal OPL3 master clock rate used for F-number math.
// The device itself runs at whatever sample rate it is constructed with;
// only the register encoding uses this constant.
const chipClock = 49716.0

// MidiToHz converts a MIDI note number to frequency (A4 = 440 Hz).
func MidiToHz(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// FreqFor encodes a MIDI pitch as (block, fnum) register values. The block
// is the smallest octave value whose 10-bit F-number can represent the
// frequency; pitches beyond the register range clamp to it.
func FreqFor(pitch int) (block uint8, fnum uint16) {
	hz := MidiToHz(pitch)
	for b := 0; b < 8; b++ {
		f := math.Round(hz * math.Pow(2, float64(20-b)) / chipClock)
		if f <= 1023 {
			return uint8(b), uint16(f)
		}
	}
	return 7, 1023
}

// hzFromRegs is the inverse used by the device when a frequency register is
// written: F = fnum * clock / 2^(20-block).
func hzFromRegs(block uint8, fnum uint16) float64 {
	return float64(fnum) * chipClock / math.Pow(2, float64(20-int(block)))
}
