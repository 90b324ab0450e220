package patch

import "github.com/CaptainCoderOrg/webopl-go/internal/opl"

// RegisterWriter is the slice of the chip contract the programmer needs.
type RegisterWriter interface {
	Write(reg uint16, val uint8)
}

// Program configures one chip channel for one voice: operator parameters,
// feedback/connection, and velocity-scaled output level. It is a pure
// translation with no state of its own; programming the same channel twice
// with the same arguments produces the same writes.
//
// Dual-voice instruments call this once per allocated channel, voice 1 on
// the primary and voice 2 on the secondary.
func Program(w RegisterWriter, ch int, v Voice, feedback uint8, conn Connection, velocity int) {
	carrierLevel := scaleLevel(v.Carrier.Level, velocity)
	modLevel := v.Modulator.Level
	if conn == ConnectionAdditive {
		// Both operators reach the output, so both track velocity.
		modLevel = scaleLevel(v.Modulator.Level, velocity)
	}
	programOperator(w, ch, 0, v.Modulator, modLevel)
	programOperator(w, ch, 1, v.Carrier, carrierLevel)

	val := uint8(0x30) // both output channels on
	val |= (feedback & 7) << 1
	if conn == ConnectionAdditive {
		val |= 0x01
	}
	w.Write(opl.ChannelReg(opl.ChFeedConn, ch), val)
}

func programOperator(w RegisterWriter, ch, op int, o Operator, level uint8) {
	var flags uint8
	if o.Tremolo {
		flags |= 0x80
	}
	if o.Vibrato {
		flags |= 0x40
	}
	if o.Sustaining {
		flags |= 0x20
	}
	if o.KeyScaleRate {
		flags |= 0x10
	}
	flags |= o.Mult & 0x0F
	w.Write(opl.OperatorReg(opl.OpFlags, ch, op), flags)
	w.Write(opl.OperatorReg(opl.OpLevel, ch, op), o.KeyScaleLevel<<6|level&0x3F)
	w.Write(opl.OperatorReg(opl.OpAttackDecay, ch, op), o.Attack<<4|o.Decay&0x0F)
	w.Write(opl.OperatorReg(opl.OpSustainRelease, ch, op), o.Sustain<<4|o.Release&0x0F)
	w.Write(opl.OperatorReg(opl.OpWaveform, ch, op), o.Waveform&0x07)
}

// scaleLevel adds velocity attenuation to an operator's base level. Velocity
// 127 leaves the authored level untouched; lower velocities attenuate up to
// 16 additional level steps (12 dB).
func scaleLevel(base uint8, velocity int) uint8 {
	if velocity < 0 {
		velocity = 0
	}
	if velocity > 127 {
		velocity = 127
	}
	level := int(base) + (127-velocity)*16/127
	if level > 63 {
		level = 63
	}
	return uint8(level)
}
