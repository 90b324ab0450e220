package opl

import (
	"math"

	"github.com/CaptainCoderOrg/webopl-go/internal/lfo"
)

const twoPi = math.Pi * 2

// Fixed global modulation rates, one oscillator each shared by every channel.
const (
	tremoloRateHz = 3.7
	vibratoRateHz = 6.1
)

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type op struct {
	// decoded register fields
	mult    float64
	ksr     bool
	egt     bool // envelope type: true = hold at sustain level while keyed
	vib     bool
	am      bool
	level   float64 // linear gain from the 6-bit total level
	ksl     uint8
	arRate  uint8
	drRate  uint8
	slLevel float64 // sustain level 0-1 (1 = full)
	rrRate  uint8
	wave    uint8

	// runtime
	phase float64
	env   float64
	state envState
}

type channel struct {
	fnum     uint16
	block    uint8
	keyed    bool
	feedback float64
	additive bool
	left     bool
	right    bool
	fbPrev   float64
	ops      [2]op
}

// Chip is a register-driven two-operator FM synthesis device. It is a single
// sequential state machine: all register writes and sample reads for one
// render must come from one logical thread of control, and its internal
// envelope/phase state advances by exactly one step per GenerateSample call.
type Chip struct {
	sampleRate float64
	opl3       bool
	ch         [NumChannels]channel
	tremDepth  float64
	vibDepth   float64
	tremolo    lfo.Oscillator
	vibrato    lfo.Oscillator
	master     float64
}

func New(sampleRate int) *Chip {
	c := &Chip{
		sampleRate: float64(sampleRate),
		tremolo:    lfo.New(tremoloRateHz),
		vibrato:    lfo.New(vibratoRateHz),
		tremDepth:  0.1,
		vibDepth:   0.07, // semitones
		master:     0.25,
	}
	for i := range c.ch {
		c.ch[i].left = true
		c.ch[i].right = true
		for o := range c.ch[i].ops {
			c.ch[i].ops[o].state = envOff
			c.ch[i].ops[o].mult = 1
		}
	}
	return c
}

// Write decodes a register write. Unknown addresses are ignored, matching
// hardware behavior.
func (c *Chip) Write(reg uint16, val uint8) {
	if reg == RegOPL3Mode {
		c.opl3 = val&1 != 0
		return
	}
	bank := 0
	if reg&0x100 != 0 {
		if !c.opl3 {
			return
		}
		bank = 1
	}
	base := reg & 0xFF
	switch {
	case base >= regOpFlags && base < regOpFlags+0x16:
		if o := c.operatorAt(bank, base-regOpFlags); o != nil {
			o.am = val&0x80 != 0
			o.vib = val&0x40 != 0
			o.egt = val&0x20 != 0
			o.ksr = val&0x10 != 0
			m := float64(val & 0x0F)
			if m == 0 {
				m = 0.5
			}
			o.mult = m
		}
	case base >= regOpLevel && base < regOpLevel+0x16:
		if o := c.operatorAt(bank, base-regOpLevel); o != nil {
			o.ksl = val >> 6
			tl := float64(val & 0x3F)
			o.level = math.Pow(10, -0.75*tl/20)
		}
	case base >= regOpAttackDecay && base < regOpAttackDecay+0x16:
		if o := c.operatorAt(bank, base-regOpAttackDecay); o != nil {
			o.arRate = val >> 4
			o.drRate = val & 0x0F
		}
	case base >= regOpSustainRelease && base < regOpSustainRelease+0x16:
		if o := c.operatorAt(bank, base-regOpSustainRelease); o != nil {
			sl := float64(val >> 4)
			o.slLevel = 1 - sl/15
			o.rrRate = val & 0x0F
		}
	case base >= regOpWaveform && base < regOpWaveform+0x16:
		if o := c.operatorAt(bank, base-regOpWaveform); o != nil {
			o.wave = val & 0x07
		}
	case base >= regChFreqLow && base < regChFreqLow+BankChannels:
		ch := &c.ch[bank*BankChannels+int(base-regChFreqLow)]
		ch.fnum = ch.fnum&0x300 | uint16(val)
	case base >= regChKeyBlock && base < regChKeyBlock+BankChannels:
		ch := &c.ch[bank*BankChannels+int(base-regChKeyBlock)]
		ch.fnum = ch.fnum&0xFF | uint16(val&0x03)<<8
		ch.block = (val >> 2) & 0x07
		keyed := val&KeyOnBit != 0
		if keyed && !ch.keyed {
			ch.keyOn()
		} else if !keyed && ch.keyed {
			ch.keyOff()
		}
		ch.keyed = keyed
	case base >= regChFeedConn && base < regChFeedConn+BankChannels:
		ch := &c.ch[bank*BankChannels+int(base-regChFeedConn)]
		ch.left = val&0x10 != 0
		ch.right = val&0x20 != 0
		fb := (val >> 1) & 0x07
		if fb == 0 {
			ch.feedback = 0
		} else {
			ch.feedback = math.Pow(2, float64(fb)-1) / 16 * math.Pi
		}
		ch.additive = val&0x01 != 0
	case base == regVibratoDepth:
		if val&0x80 != 0 {
			c.tremDepth = 0.2
		} else {
			c.tremDepth = 0.1
		}
		if val&0x40 != 0 {
			c.vibDepth = 0.14
		} else {
			c.vibDepth = 0.07
		}
	}
}

func (c *Chip) operatorAt(bank int, off uint16) *op {
	group := int(off / 8)
	idx := int(off % 8)
	if group > 2 {
		return nil
	}
	var chIdx, opIdx int
	switch {
	case idx < 3:
		chIdx, opIdx = group*3+idx, 0
	case idx < 6:
		chIdx, opIdx = group*3+idx-3, 1
	default:
		return nil
	}
	return &c.ch[bank*BankChannels+chIdx].ops[opIdx]
}

func (ch *channel) keyOn() {
	for i := range ch.ops {
		ch.ops[i].state = envAttack
		// Phase is not reset on key-on; only the envelope restarts. This is
		// why re-asserting key-on without a key-off cannot retrigger.
	}
}

func (ch *channel) keyOff() {
	for i := range ch.ops {
		if ch.ops[i].state != envOff {
			ch.ops[i].state = envRelease
		}
	}
}

// GenerateSample produces exactly one stereo frame, advancing every
// envelope and phase accumulator by one step.
func (c *Chip) GenerateSample() (left, right float32) {
	trem := 1 + c.tremolo.Sample(c.sampleRate)*c.tremDepth
	vib := c.vibrato.Sample(c.sampleRate) * c.vibDepth

	var l, r float64
	for i := range c.ch {
		ch := &c.ch[i]
		car := &ch.ops[1]
		mod := &ch.ops[0]
		if car.state == envOff && mod.state == envOff {
			continue
		}
		c.advanceEnv(mod)
		c.advanceEnv(car)

		hz := hzFromRegs(ch.block, ch.fnum)

		fb := ch.fbPrev * ch.feedback
		modOut := waveSample(mod.phase+fb, mod.wave) * mod.env * mod.level
		ch.fbPrev = modOut

		var out float64
		if ch.additive {
			out = modOut + waveSample(car.phase, car.wave)*car.env*car.level
		} else {
			out = waveSample(car.phase+modOut*math.Pi*2, car.wave) * car.env * car.level
		}
		if car.am {
			out *= trem
		}
		out *= c.master

		if ch.left {
			l += out
		}
		if ch.right {
			r += out
		}

		for _, o := range [2]*op{mod, car} {
			f := hz * o.mult
			if o.vib && vib != 0 {
				f *= math.Pow(2, vib/12)
			}
			o.phase += twoPi * f / c.sampleRate
			if o.phase > twoPi {
				o.phase -= twoPi
			}
		}
	}
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

// Rate mapping: the 4-bit register rates become segment durations in
// seconds, then per-sample envelope steps.
func (c *Chip) advanceEnv(o *op) {
	switch o.state {
	case envAttack:
		sec := 0.002 + float64(15-o.arRate)/15*1.5
		o.env += 1 / (sec * c.sampleRate)
		if o.env >= 1 {
			o.env = 1
			o.state = envDecay
		}
	case envDecay:
		sec := 0.01 + float64(15-o.drRate)/15*3
		o.env -= (1 - o.slLevel) / (sec * c.sampleRate)
		if o.env <= o.slLevel {
			o.env = o.slLevel
			if o.egt {
				o.state = envSustain
			} else {
				// Percussive envelope: keep decaying at the release rate
				// while still keyed.
				o.state = envRelease
			}
		}
	case envSustain:
	case envRelease:
		sec := 0.005 + float64(15-o.rrRate)/15*3
		o.env -= 1 / (sec * c.sampleRate)
		if o.env <= 0.0001 {
			o.env = 0
			o.state = envOff
		}
	case envOff:
		o.env = 0
	}
}

// ActiveChannels reports how many channels still have a sounding carrier
// envelope. Used to detect the end of the release tail.
func (c *Chip) ActiveChannels() int {
	n := 0
	for i := range c.ch {
		if c.ch[i].ops[1].state != envOff {
			n++
		}
	}
	return n
}

func waveSample(phase float64, wave uint8) float64 {
	p := math.Mod(phase, twoPi)
	if p < 0 {
		p += twoPi
	}
	s := math.Sin(p)
	switch wave {
	case 1: // half sine
		if s > 0 {
			return s
		}
		return 0
	case 2: // absolute sine
		return math.Abs(s)
	case 3: // quarter sine
		if math.Mod(p, math.Pi) < math.Pi/2 {
			return math.Abs(s)
		}
		return 0
	default: // 0 = sine (higher OPL3 waves collapse to it)
		return s
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
