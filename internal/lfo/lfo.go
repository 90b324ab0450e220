package lfo

// Oscillator is a low-frequency triangle oscillator shared across all
// channels of the chip (global tremolo/vibrato source). Phase advances once
// per generated sample, so renders at the same rate are reproducible.
type Oscillator struct {
	rateHz float64
	phase  float64 // [0, 1)
}

func New(rateHz float64) Oscillator {
	return Oscillator{rateHz: rateHz}
}

// Sample advances the oscillator by one sample and returns a triangle value
// in [-1, 1].
func (o *Oscillator) Sample(sampleRate float64) float64 {
	if o.rateHz == 0 || sampleRate == 0 {
		return 0
	}
	var v float64
	if o.phase < 0.5 {
		v = 4.0*o.phase - 1.0
	} else {
		v = 3.0 - 4.0*o.phase
	}
	o.phase += o.rateHz / sampleRate
	for o.phase >= 1.0 {
		o.phase -= 1.0
	}
	return v
}

// Reset zeros the phase, returning the oscillator to its initial state.
func (o *Oscillator) Reset() {
	o.phase = 0
}
