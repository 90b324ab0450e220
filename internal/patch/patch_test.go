package patch

import (
	"testing"

	"github.com/CaptainCoderOrg/webopl-go/internal/opl"
)

type write struct {
	reg uint16
	val uint8
}

type captureWriter struct {
	writes []write
}

func (c *captureWriter) Write(reg uint16, val uint8) {
	c.writes = append(c.writes, write{reg, val})
}

func (c *captureWriter) valueOf(reg uint16) (uint8, bool) {
	for i := len(c.writes) - 1; i >= 0; i-- {
		if c.writes[i].reg == reg {
			return c.writes[i].val, true
		}
	}
	return 0, false
}

func testVoice() Voice {
	return Voice{
		Modulator: Operator{Attack: 15, Decay: 4, Sustain: 5, Release: 6, Mult: 2, Level: 20, Vibrato: true},
		Carrier:   Operator{Attack: 14, Decay: 3, Sustain: 4, Release: 7, Mult: 1, Level: 4, Sustaining: true},
	}
}

func TestProgramWritesAllOperatorRegisters(t *testing.T) {
	w := &captureWriter{}
	Program(w, 3, testVoice(), 5, ConnectionFM, 127)
	// 5 registers per operator plus the channel feedback/connection register.
	if len(w.writes) != 11 {
		t.Fatalf("expected 11 writes, got %d: %#v", len(w.writes), w.writes)
	}
	flags, ok := w.valueOf(opl.OperatorReg(opl.OpFlags, 3, 0))
	if !ok || flags != 0x42 { // vibrato + mult 2
		t.Fatalf("modulator flags = %#x, want 0x42", flags)
	}
	ad, _ := w.valueOf(opl.OperatorReg(opl.OpAttackDecay, 3, 1))
	if ad != 0xE3 {
		t.Fatalf("carrier attack/decay = %#x, want 0xE3", ad)
	}
	fc, _ := w.valueOf(opl.ChannelReg(opl.ChFeedConn, 3))
	if fc != 0x3A { // outputs on, feedback 5, FM connection
		t.Fatalf("feedback/connection = %#x, want 0x3A", fc)
	}
}

func TestProgramIsIdempotent(t *testing.T) {
	a, b := &captureWriter{}, &captureWriter{}
	Program(a, 0, testVoice(), 3, ConnectionFM, 100)
	Program(b, 0, testVoice(), 3, ConnectionFM, 100)
	if len(a.writes) != len(b.writes) {
		t.Fatalf("write counts differ: %d vs %d", len(a.writes), len(b.writes))
	}
	for i := range a.writes {
		if a.writes[i] != b.writes[i] {
			t.Fatalf("write %d differs: %#v vs %#v", i, a.writes[i], b.writes[i])
		}
	}
}

func TestProgramVelocityScalesCarrierOnly(t *testing.T) {
	full, quiet := &captureWriter{}, &captureWriter{}
	Program(full, 0, testVoice(), 0, ConnectionFM, 127)
	Program(quiet, 0, testVoice(), 0, ConnectionFM, 1)
	carReg := opl.OperatorReg(opl.OpLevel, 0, 1)
	modReg := opl.OperatorReg(opl.OpLevel, 0, 0)
	fullCar, _ := full.valueOf(carReg)
	quietCar, _ := quiet.valueOf(carReg)
	if quietCar <= fullCar {
		t.Fatalf("quiet carrier level %#x should attenuate more than %#x", quietCar, fullCar)
	}
	fullMod, _ := full.valueOf(modReg)
	quietMod, _ := quiet.valueOf(modReg)
	if fullMod != quietMod {
		t.Fatalf("FM modulator level should ignore velocity: %#x vs %#x", fullMod, quietMod)
	}
}

func TestProgramAdditiveScalesBothOperators(t *testing.T) {
	full, quiet := &captureWriter{}, &captureWriter{}
	Program(full, 0, testVoice(), 0, ConnectionAdditive, 127)
	Program(quiet, 0, testVoice(), 0, ConnectionAdditive, 1)
	modReg := opl.OperatorReg(opl.OpLevel, 0, 0)
	fullMod, _ := full.valueOf(modReg)
	quietMod, _ := quiet.valueOf(modReg)
	if quietMod <= fullMod {
		t.Fatalf("additive modulator should track velocity: %#x vs %#x", quietMod, fullMod)
	}
}

func TestDualIfDistinctHeuristic(t *testing.T) {
	v := testVoice()
	if inst := DualIfDistinct("same", v, v, 0, ConnectionFM); inst.IsDual() {
		t.Fatal("identical voices should collapse to single")
	}
	almost := v
	almost.Carrier.Level++
	if inst := DualIfDistinct("near", v, almost, 0, ConnectionFM); inst.IsDual() {
		t.Fatal("near-identical voices should collapse to single")
	}
	other := v
	other.Carrier.Mult = 4
	other.Modulator.Waveform = 2
	other.Modulator.Attack = 6
	if inst := DualIfDistinct("far", v, other, 0, ConnectionFM); !inst.IsDual() {
		t.Fatal("clearly different voices should stay dual")
	}
}

func TestNewDualBypassesHeuristic(t *testing.T) {
	v := testVoice()
	inst := NewDual("authored", v, v, 0, ConnectionFM)
	if !inst.IsDual() {
		t.Fatal("NewDual must trust the author")
	}
	if _, ok := inst.Voice2(); !ok {
		t.Fatal("dual instrument should expose its second voice")
	}
}

func TestDefaultBankShapes(t *testing.T) {
	bank := DefaultBank()
	if len(bank) == 0 {
		t.Fatal("empty bank")
	}
	hasDual, hasSingle := false, false
	for _, inst := range bank {
		if inst.Name() == "" {
			t.Fatal("unnamed instrument in bank")
		}
		if inst.IsDual() {
			hasDual = true
		} else {
			hasSingle = true
		}
	}
	if !hasDual || !hasSingle {
		t.Fatalf("bank should contain both shapes (dual=%v single=%v)", hasDual, hasSingle)
	}
}
