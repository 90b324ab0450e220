package render

import (
	"context"
	"testing"

	"github.com/CaptainCoderOrg/webopl-go/internal/opl"
	"github.com/CaptainCoderOrg/webopl-go/internal/patch"
	"github.com/CaptainCoderOrg/webopl-go/internal/pattern"
	"github.com/CaptainCoderOrg/webopl-go/internal/voice"
)

const testRate = 48000

type regWrite struct {
	reg uint16
	val uint8
}

// captureDevice wraps a real chip and records every register write, for
// comparing the online and offline event-application paths.
type captureDevice struct {
	chip   *opl.Chip
	writes []regWrite
}

func newCaptureDevice() *captureDevice {
	return &captureDevice{chip: opl.New(testRate)}
}

func (d *captureDevice) Write(reg uint16, val uint8) {
	d.writes = append(d.writes, regWrite{reg, val})
	d.chip.Write(reg, val)
}

func (d *captureDevice) GenerateSample() (float32, float32) { return d.chip.GenerateSample() }
func (d *captureDevice) ActiveChannels() int                { return d.chip.ActiveChannels() }

func mustPattern(t *testing.T, cells [][]pattern.Cell) *pattern.Pattern {
	t.Helper()
	p, err := pattern.New(cells)
	if err != nil {
		t.Fatalf("new pattern: %v", err)
	}
	return p
}

func mustTimeline(t *testing.T, p *pattern.Pattern) *pattern.Timeline {
	t.Helper()
	tl, err := pattern.BuildTimeline(p, pattern.Tempo{BPM: 120, RowsPerBeat: 4})
	if err != nil {
		t.Fatalf("build timeline: %v", err)
	}
	return tl
}

func testInstruments(n int) []patch.Instrument {
	bank := patch.DefaultBank()
	insts := make([]patch.Instrument, n)
	for i := range insts {
		insts[i] = bank[i%len(bank)]
	}
	return insts
}

func twoTrackPhrase(t *testing.T) *pattern.Timeline {
	return mustTimeline(t, mustPattern(t, [][]pattern.Cell{
		{pattern.Note(60, 100), pattern.Note(48, 110)},
		{pattern.Sustain(), pattern.Sustain()},
		{pattern.Note(64, 90), pattern.Off()},
		{pattern.Off(), pattern.Note(50, 110)},
		{pattern.Note(67, 100), pattern.Sustain()},
		{pattern.Sustain(), pattern.Sustain()},
		{pattern.Off(), pattern.Off()},
		{pattern.Sustain(), pattern.Sustain()},
	}))
}

func TestOfflineRenderIsDeterministic(t *testing.T) {
	render := func() []float32 {
		tl := twoTrackPhrase(t)
		r, err := New(tl, Config{Device: opl.New(testRate), SampleRate: testRate, Instruments: testInstruments(2)})
		if err != nil {
			t.Fatalf("new renderer: %v", err)
		}
		out, err := r.Render(context.Background(), nil)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		return out
	}
	a, b := render(), render()
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestOnlineOfflineWriteEquivalence(t *testing.T) {
	offline := newCaptureDevice()
	tl := twoTrackPhrase(t)
	r1, err := New(tl, Config{Device: offline, SampleRate: testRate, Instruments: testInstruments(2)})
	if err != nil {
		t.Fatalf("new offline renderer: %v", err)
	}
	offOut, err := r1.Render(context.Background(), nil)
	if err != nil {
		t.Fatalf("offline render: %v", err)
	}

	online := newCaptureDevice()
	r2, err := New(tl, Config{Device: online, SampleRate: testRate, Instruments: testInstruments(2)})
	if err != nil {
		t.Fatalf("new online renderer: %v", err)
	}
	onOut := make([]float32, 0, len(offOut))
	buf := make([]float32, 512*2) // odd-sized host buffers relative to events
	for len(onOut) < len(offOut) {
		r2.Process(buf)
		onOut = append(onOut, buf...)
	}
	onOut = onOut[:len(offOut)]

	for i := range offOut {
		if offOut[i] != onOut[i] {
			t.Fatalf("PCM diverges at sample %d: %v vs %v", i, offOut[i], onOut[i])
		}
	}
	// The offline pass additionally flushes the trailing offs stamped at the
	// exact duration; ignore that suffix when comparing write logs.
	if len(online.writes) < len(offline.writes)-8 {
		t.Fatalf("write counts diverge: offline %d, online %d", len(offline.writes), len(online.writes))
	}
	for i := range online.writes {
		if i >= len(offline.writes) {
			break
		}
		if online.writes[i] != offline.writes[i] {
			t.Fatalf("register write %d differs: %#v vs %#v", i, offline.writes[i], online.writes[i])
		}
	}
}

func TestRenderProgressIsMonotonic(t *testing.T) {
	tl := twoTrackPhrase(t)
	r, err := New(tl, Config{Device: opl.New(testRate), SampleRate: testRate, Instruments: testInstruments(2)})
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	var reports []float64
	if _, err := r.Render(context.Background(), func(p float64) { reports = append(reports, p) }); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(reports) == 0 {
		t.Fatal("no progress reports")
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] < reports[i-1] {
			t.Fatalf("progress went backwards at %d: %v", i, reports)
		}
	}
	if last := reports[len(reports)-1]; last != 1 {
		t.Fatalf("final progress = %v, want 1", last)
	}
}

func TestRenderCancellationDiscardsOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tl := twoTrackPhrase(t)
	r, err := New(tl, Config{Device: opl.New(testRate), SampleRate: testRate, Instruments: testInstruments(2)})
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := r.Render(ctx, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if out != nil {
		t.Fatalf("cancelled render returned %d samples, want none", len(out))
	}
}

func TestNewRejectsInstrumentMismatch(t *testing.T) {
	tl := twoTrackPhrase(t)
	if _, err := New(tl, Config{Device: opl.New(testRate), SampleRate: testRate, Instruments: testInstruments(1)}); err == nil {
		t.Fatal("expected error for missing track instrument")
	}
	if _, err := New(tl, Config{SampleRate: testRate, Instruments: testInstruments(2)}); err != ErrNilDevice {
		t.Fatal("expected ErrNilDevice")
	}
}

func TestSilentPatternRendersSilence(t *testing.T) {
	tl := mustTimeline(t, mustPattern(t, [][]pattern.Cell{
		{pattern.Empty()},
		{pattern.Sustain()},
	}))
	r, err := New(tl, Config{Device: opl.New(testRate), SampleRate: testRate, Instruments: testInstruments(1)})
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := r.Render(context.Background(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != r.TotalSamples()*2 {
		t.Fatalf("output length %d, want %d", len(out), r.TotalSamples()*2)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("expected silence, sample %d = %v", i, s)
		}
	}
}

func TestDegradedDualAllocationSurfacesEvent(t *testing.T) {
	bank := patch.DefaultBank()
	var dual patch.Instrument
	for _, inst := range bank {
		if inst.IsDual() {
			dual = inst
			break
		}
	}
	// Three tracks of the dual instrument against a 5-channel pool: the
	// third simultaneous note finds one free channel and degrades.
	tl := mustTimeline(t, mustPattern(t, [][]pattern.Cell{
		{pattern.Note(60, 100), pattern.Note(64, 100), pattern.Note(67, 100)},
		{pattern.Off(), pattern.Off(), pattern.Off()},
	}))
	var events []voice.Event
	r, err := New(tl, Config{
		Device:      opl.New(testRate),
		SampleRate:  testRate,
		Instruments: []patch.Instrument{dual, dual, dual},
		PoolSize:    5,
		OnAllocEvent: func(ev voice.Event) {
			events = append(events, ev)
		},
	})
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	if _, err := r.Render(context.Background(), nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	found := false
	for _, ev := range events {
		if ev.Kind == voice.EventDegraded {
			found = true
		}
		if ev.Kind == voice.EventStolen {
			t.Fatalf("degradation case must not steal: %#v", events)
		}
	}
	if !found {
		t.Fatalf("expected a degradation event, got %#v", events)
	}
}

func TestOversizedPoolClampsToChipChannels(t *testing.T) {
	bank := patch.DefaultBank()
	var single patch.Instrument
	for _, inst := range bank {
		if !inst.IsDual() {
			single = inst
			break
		}
	}
	// One more simultaneous note than the chip has channels. A pool larger
	// than the chip would hand out aliasing channel indices instead of
	// stealing; the clamp makes the 19th note steal.
	tracks := opl.NumChannels + 1
	row := make([]pattern.Cell, tracks)
	off := make([]pattern.Cell, tracks)
	insts := make([]patch.Instrument, tracks)
	for i := 0; i < tracks; i++ {
		row[i] = pattern.Note(40+i, 100)
		off[i] = pattern.Off()
		insts[i] = single
	}
	tl := mustTimeline(t, mustPattern(t, [][]pattern.Cell{row, off}))
	var stolen []voice.Event
	r, err := New(tl, Config{
		Device:      opl.New(testRate),
		SampleRate:  testRate,
		Instruments: insts,
		PoolSize:    99,
		OnAllocEvent: func(ev voice.Event) {
			if ev.Kind == voice.EventStolen {
				stolen = append(stolen, ev)
			}
		},
	})
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	if _, err := r.Render(context.Background(), nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(stolen) != 1 {
		t.Fatalf("expected exactly one steal with %d notes on %d channels, got %#v",
			tracks, opl.NumChannels, stolen)
	}
	if stolen[0].Channel != 0 {
		t.Fatalf("stole channel %d, want the oldest (0)", stolen[0].Channel)
	}
}

func TestLoopedProcessWrapsAndKeepsPlaying(t *testing.T) {
	tl := mustTimeline(t, mustPattern(t, [][]pattern.Cell{
		{pattern.Note(60, 100)},
		{pattern.Off()},
	}))
	loops := 0
	r, err := New(tl, Config{
		Device:      opl.New(testRate),
		SampleRate:  testRate,
		Instruments: testInstruments(1),
		Loop:        true,
		OnLoop:      func() { loops++ },
	})
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	// Three full passes worth of audio.
	buf := make([]float32, r.TotalSamples()*2*3)
	r.Process(buf)
	if loops < 2 {
		t.Fatalf("expected at least 2 loop wraps, got %d", loops)
	}
	if r.Finished() {
		t.Fatal("looping playback must never report finished")
	}
}

func TestNonLoopProcessEndsAfterReleaseTail(t *testing.T) {
	tl := mustTimeline(t, mustPattern(t, [][]pattern.Cell{
		{pattern.Note(60, 100)},
		{pattern.Off()},
	}))
	ended := 0
	r, err := New(tl, Config{
		Device:      opl.New(testRate),
		SampleRate:  testRate,
		Instruments: testInstruments(1),
		OnEnded:     func() { ended++ },
	})
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	buf := make([]float32, testRate*2) // 1s chunks
	for i := 0; i < 8 && !r.Finished(); i++ {
		r.Process(buf)
	}
	if !r.Finished() {
		t.Fatal("renderer never finished")
	}
	if ended != 1 {
		t.Fatalf("OnEnded fired %d times, want 1", ended)
	}
}

func BenchmarkOfflineRender(b *testing.B) {
	p, err := pattern.New([][]pattern.Cell{
		{pattern.Note(60, 100), pattern.Note(48, 110)},
		{pattern.Sustain(), pattern.Sustain()},
		{pattern.Note(64, 90), pattern.Sustain()},
		{pattern.Off(), pattern.Off()},
	})
	if err != nil {
		b.Fatal(err)
	}
	tl, err := pattern.BuildTimeline(p, pattern.Tempo{BPM: 120, RowsPerBeat: 4})
	if err != nil {
		b.Fatal(err)
	}
	insts := testInstruments(2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, err := New(tl, Config{Device: opl.New(testRate), SampleRate: testRate, Instruments: insts})
		if err != nil {
			b.Fatal(err)
		}
		if _, err := r.Render(context.Background(), nil); err != nil {
			b.Fatal(err)
		}
	}
}
