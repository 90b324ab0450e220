package opl

// Register map for the two-operator FM device. Channels 0-8 live in bank 0,
// channels 9-17 in bank 1; bank 1 addresses carry bit 8.
const (
	RegOPL3Mode = 0x105 // write 1 to unlock the second bank

	regOpFlags          = 0x20 // AM | VIB | EGT | KSR | MULT
	regOpLevel          = 0x40 // KSL | total level
	regOpAttackDecay    = 0x60 // AR | DR
	regOpSustainRelease = 0x80 // SL | RR
	regOpWaveform       = 0xE0

	regChFreqLow  = 0xA0 // F-number low 8 bits
	regChKeyBlock = 0xB0 // key-on | block | F-number high bits
	regChFeedConn = 0xC0 // output routing | feedback | connection

	regVibratoDepth = 0xBD // DAM/DVB depth bits

	// regChKeyBlock bit layout
	KeyOnBit = 0x20
)

// NumChannels is the full two-bank pool used for rendering. A single-bank
// device exposes the first BankChannels of them.
const (
	NumChannels  = 18
	BankChannels = 9
)

// slot offsets within one bank: three operators, a gap, three more, repeated.
// For channel c in 0-8 the first operator sits at (c/3)*8 + c%3 and the
// second three slots above it.
func operatorBase(channel, op int) uint16 {
	c := channel % BankChannels
	off := uint16((c/3)*8 + c%3)
	if op != 0 {
		off += 3
	}
	if channel >= BankChannels {
		off |= 0x100
	}
	return off
}

// OperatorReg returns the address of one of the five per-operator registers
// for (channel, op). base must be one of the regOp* constants.
func OperatorReg(base uint16, channel, op int) uint16 {
	return base + operatorBase(channel, op)
}

// ChannelReg returns the address of a per-channel register. base must be one
// of the regCh* constants.
func ChannelReg(base uint16, channel int) uint16 {
	reg := base + uint16(channel%BankChannels)
	if channel >= BankChannels {
		reg |= 0x100
	}
	return reg
}

// Exported bases for callers that assemble writes (the instrument programmer
// and the renderer).
const (
	OpFlags          = regOpFlags
	OpLevel          = regOpLevel
	OpAttackDecay    = regOpAttackDecay
	OpSustainRelease = regOpSustainRelease
	OpWaveform       = regOpWaveform
	ChFreqLow        = regChFreqLow
	ChKeyBlock       = regChKeyBlock
	ChFeedConn       = regChFeedConn
)
