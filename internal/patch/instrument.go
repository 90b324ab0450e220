// Package patch models instruments (operator parameter sets for one or two
// voices) and translates them into the register writes that configure a
// chip channel.
package patch

type Connection int

const (
	ConnectionFM Connection = iota
	ConnectionAdditive
)

// Operator holds the register-shaped parameters of one FM operator.
type Operator struct {
	Attack  uint8 // 0-15
	Decay   uint8 // 0-15
	Sustain uint8 // 0-15, sustain level (0 = loudest)
	Release uint8 // 0-15
	Mult    uint8 // 0-15 frequency multiplier
	Level   uint8 // 0-63 output attenuation (0 = loudest)

	KeyScaleLevel uint8 // 0-3
	Waveform      uint8 // 0-7

	Tremolo      bool
	Vibrato      bool
	Sustaining   bool // envelope holds at sustain level while keyed
	KeyScaleRate bool
}

// Voice pairs a modulator and a carrier.
type Voice struct {
	Modulator Operator
	Carrier   Operator
}

// Instrument is a tagged single/dual-voice variant. Instruments are
// immutable; the renderer treats a track's instrument as fixed for the
// duration of a render.
type Instrument struct {
	name     string
	voices   [2]Voice
	dual     bool
	feedback uint8 // 0-7, modulator self-feedback
	conn     Connection
}

func NewSingle(name string, v Voice, feedback uint8, conn Connection) Instrument {
	return Instrument{name: name, voices: [2]Voice{v, v}, feedback: feedback & 7, conn: conn}
}

func NewDual(name string, v1, v2 Voice, feedback uint8, conn Connection) Instrument {
	return Instrument{name: name, voices: [2]Voice{v1, v2}, dual: true, feedback: feedback & 7, conn: conn}
}

func (i Instrument) Name() string           { return i.name }
func (i Instrument) IsDual() bool           { return i.dual }
func (i Instrument) Voice1() Voice          { return i.voices[0] }
func (i Instrument) Feedback() uint8        { return i.feedback }
func (i Instrument) Connection() Connection { return i.conn }

// Voice2 returns the second voice and whether it exists.
func (i Instrument) Voice2() (Voice, bool) {
	if !i.dual {
		return Voice{}, false
	}
	return i.voices[1], true
}

// dualVoiceThreshold is the minimum parameter distance at which a second
// voice is considered worth a dedicated channel. Below it the pair sounds
// close enough to a chorus of itself that the extra channel is wasted.
// Tunable; revisit if instrument fidelity regresses.
const dualVoiceThreshold = 6

// DualIfDistinct builds a dual-voice instrument only when the two voices
// differ enough to justify the second channel, otherwise a single-voice one.
// Authored instruments that must stay dual should use NewDual directly.
func DualIfDistinct(name string, v1, v2 Voice, feedback uint8, conn Connection) Instrument {
	if voiceDistance(v1, v2) >= dualVoiceThreshold {
		return NewDual(name, v1, v2, feedback, conn)
	}
	return NewSingle(name, v1, feedback, conn)
}

func voiceDistance(a, b Voice) int {
	return operatorDistance(a.Modulator, b.Modulator) + operatorDistance(a.Carrier, b.Carrier)
}

func operatorDistance(a, b Operator) int {
	d := absDiff(a.Attack, b.Attack) +
		absDiff(a.Decay, b.Decay) +
		absDiff(a.Sustain, b.Sustain) +
		absDiff(a.Release, b.Release) +
		absDiff(a.Mult, b.Mult) +
		absDiff(a.Level, b.Level)/4 +
		absDiff(a.Waveform, b.Waveform)*2
	if a.Tremolo != b.Tremolo {
		d += 2
	}
	if a.Vibrato != b.Vibrato {
		d += 2
	}
	if a.Sustaining != b.Sustaining {
		d += 2
	}
	return d
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
