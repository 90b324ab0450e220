package patch

// DefaultBank returns a small built-in instrument set used by the command
// line tools and tests. Resolving arbitrary catalog indices to instruments
// is the caller's job; this bank only has to exercise both instrument
// shapes.
func DefaultBank() []Instrument {
	piano := Voice{
		Modulator: Operator{Attack: 15, Decay: 4, Sustain: 5, Release: 6, Mult: 1, Level: 18},
		Carrier:   Operator{Attack: 15, Decay: 3, Sustain: 4, Release: 7, Mult: 1, Level: 0},
	}
	pianoWide := Voice{
		Modulator: Operator{Attack: 14, Decay: 5, Sustain: 6, Release: 6, Mult: 2, Level: 22, Vibrato: true},
		Carrier:   Operator{Attack: 15, Decay: 4, Sustain: 5, Release: 7, Mult: 1, Level: 4},
	}
	organ := Voice{
		Modulator: Operator{Attack: 15, Decay: 0, Sustain: 0, Release: 7, Mult: 1, Level: 24, Sustaining: true},
		Carrier:   Operator{Attack: 15, Decay: 0, Sustain: 0, Release: 7, Mult: 1, Level: 0, Sustaining: true},
	}
	bass := Voice{
		Modulator: Operator{Attack: 13, Decay: 6, Sustain: 7, Release: 8, Mult: 0, Level: 14},
		Carrier:   Operator{Attack: 14, Decay: 5, Sustain: 6, Release: 8, Mult: 1, Level: 2},
	}
	lead := Voice{
		Modulator: Operator{Attack: 15, Decay: 2, Sustain: 3, Release: 5, Mult: 3, Level: 20, Vibrato: true, Sustaining: true},
		Carrier:   Operator{Attack: 15, Decay: 2, Sustain: 2, Release: 6, Mult: 1, Level: 0, Vibrato: true, Sustaining: true},
	}
	strings := Voice{
		Modulator: Operator{Attack: 9, Decay: 2, Sustain: 2, Release: 9, Mult: 1, Level: 26, Tremolo: true, Sustaining: true},
		Carrier:   Operator{Attack: 10, Decay: 2, Sustain: 2, Release: 9, Mult: 1, Level: 3, Tremolo: true, Sustaining: true},
	}
	stringsDetuned := Voice{
		Modulator: Operator{Attack: 8, Decay: 3, Sustain: 3, Release: 9, Mult: 2, Level: 28, Tremolo: true, Sustaining: true},
		Carrier:   Operator{Attack: 9, Decay: 3, Sustain: 3, Release: 10, Mult: 2, Level: 5, Sustaining: true},
	}
	return []Instrument{
		NewDual("grand piano", piano, pianoWide, 3, ConnectionFM),
		NewSingle("organ", organ, 0, ConnectionAdditive),
		NewSingle("bass", bass, 5, ConnectionFM),
		NewSingle("lead", lead, 2, ConnectionFM),
		DualIfDistinct("strings", strings, stringsDetuned, 1, ConnectionFM),
	}
}
