// Package render drives a synthesis device through a timeline. One per-step
// rule holds everywhere: apply every event due at the current sample, then
// generate exactly one stereo frame. The offline Render loop and the online
// Process path share that step, which is what makes exported audio
// bit-identical to live playback.
package render

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/CaptainCoderOrg/webopl-go/internal/opl"
	"github.com/CaptainCoderOrg/webopl-go/internal/patch"
	"github.com/CaptainCoderOrg/webopl-go/internal/pattern"
	"github.com/CaptainCoderOrg/webopl-go/internal/voice"
)

// Device is the synthesis chip contract the renderer drives. Exactly one
// renderer owns a device for the lifetime of one render; devices are never
// shared between a live session and a concurrent export.
type Device interface {
	Write(reg uint16, val uint8)
	GenerateSample() (left, right float32)
	ActiveChannels() int
}

var ErrNilDevice = errors.New("render: nil device")

// chunkFrames is how many frames the offline loop processes between
// cancellation checks and progress reports.
const chunkFrames = 4096

type Config struct {
	Device      Device
	SampleRate  int
	Instruments []patch.Instrument // one per timeline track
	PoolSize    int                // 0 = the device's full channel pool
	Loop        bool               // online only: wrap at the pattern end

	OnAllocEvent func(voice.Event)
	OnLoop       func() // online: fired at each wrap
	OnEnded      func() // online, non-loop: fired once the release tail dies
}

type Renderer struct {
	dev   Device
	alloc *voice.Allocator
	tl    *pattern.Timeline
	insts []patch.Instrument
	rate  int

	due          []int // due sample index per event
	totalSamples int

	cursor   int
	pos      int
	live     []int // per-track live note id, -1 = none
	nextNote int

	keyBlock []uint8 // last key/block register value per channel

	loop    bool
	onLoop  func()
	onEnded func()
	ended   bool
}

func New(tl *pattern.Timeline, cfg Config) (*Renderer, error) {
	if cfg.Device == nil {
		return nil, ErrNilDevice
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("render: sample rate %d must be positive", cfg.SampleRate)
	}
	if len(cfg.Instruments) != tl.Tracks {
		return nil, fmt.Errorf("render: timeline has %d tracks but %d instruments assigned",
			tl.Tracks, len(cfg.Instruments))
	}
	pool := cfg.PoolSize
	if pool <= 0 || pool > opl.NumChannels {
		// Channel indices past the pool would alias real registers.
		pool = opl.NumChannels
	}
	r := &Renderer{
		dev:      cfg.Device,
		tl:       tl,
		insts:    cfg.Instruments,
		rate:     cfg.SampleRate,
		live:     make([]int, tl.Tracks),
		keyBlock: make([]uint8, pool),
		loop:     cfg.Loop,
		onLoop:   cfg.OnLoop,
		onEnded:  cfg.OnEnded,
	}
	for t := range r.live {
		r.live[t] = -1
	}
	r.alloc = voice.New(pool,
		voice.WithKeyOff(r.forceKeyOff),
		voice.WithObserver(cfg.OnAllocEvent))

	r.due = make([]int, len(tl.Events))
	for i, ev := range tl.Events {
		r.due[i] = int(math.Ceil(ev.Time * float64(cfg.SampleRate)))
	}
	r.totalSamples = int(math.Ceil(tl.Duration * float64(cfg.SampleRate)))

	// Unlock the full two-bank pool before any channel is touched.
	r.dev.Write(opl.RegOPL3Mode, 1)
	return r, nil
}

// TotalSamples is the frame count of one full pass.
func (r *Renderer) TotalSamples() int { return r.totalSamples }

// Render produces one complete offline pass. It yields between chunks: the
// context is checked and progress reported once per chunkFrames, never
// inside the per-sample loop. On cancellation the partial buffer is
// discarded.
func (r *Renderer) Render(ctx context.Context, progress func(float64)) ([]float32, error) {
	out := make([]float32, 0, r.totalSamples*2)
	for r.pos < r.totalSamples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := r.pos + chunkFrames
		if end > r.totalSamples {
			end = r.totalSamples
		}
		for r.pos < end {
			l, rr := r.step()
			out = append(out, l, rr)
		}
		if progress != nil {
			progress(float64(r.pos) / float64(r.totalSamples))
		}
	}
	// Events stamped exactly at the duration (the implicit trailing offs)
	// close the allocator without generating further samples.
	r.applyDue()
	if progress != nil {
		progress(1)
	}
	return out, nil
}

// Process fills one interleaved stereo buffer for the host audio pipeline.
// It performs no allocation or I/O: only register writes and sample reads,
// through the same step the offline path uses.
func (r *Renderer) Process(dst []float32) {
	frames := len(dst) / 2
	for f := 0; f < frames; f++ {
		if r.loop && r.pos >= r.totalSamples {
			// Wrap without applying the trailing offs: sustained notes ring
			// across the boundary exactly as they do in steady-state
			// playback.
			r.cursor = 0
			r.pos = 0
			if r.onLoop != nil {
				r.onLoop()
			}
		}
		l, rr := r.step()
		dst[f*2] = l
		dst[f*2+1] = rr
		if !r.loop && !r.ended && r.pos >= r.totalSamples && r.dev.ActiveChannels() == 0 {
			r.ended = true
			if r.onEnded != nil {
				r.onEnded()
			}
		}
	}
}

// Finished reports whether a non-looping render has played out its release
// tail.
func (r *Renderer) Finished() bool { return r.ended }

// step applies all due events, then generates exactly one frame. Register
// mutations never happen mid-sample: the device's envelope and phase state
// advances only in the GenerateSample call that follows them.
func (r *Renderer) step() (float32, float32) {
	r.applyDue()
	l, rr := r.dev.GenerateSample()
	r.pos++
	return l, rr
}

func (r *Renderer) applyDue() {
	for r.cursor < len(r.tl.Events) && r.due[r.cursor] <= r.pos {
		ev := r.tl.Events[r.cursor]
		if ev.Action == pattern.NoteOn {
			r.noteOn(ev)
		} else {
			r.noteOff(ev)
		}
		r.cursor++
	}
}

func (r *Renderer) noteOn(ev pattern.NoteEvent) {
	// A retrigger always releases the old note first; re-asserting key-on
	// while set would not restart the attack.
	if id := r.live[ev.Track]; id >= 0 {
		r.alloc.Release(id)
	}
	id := r.nextNote
	r.nextNote++

	inst := r.insts[ev.Track]
	res := r.alloc.Allocate(id, inst.IsDual())
	block, fnum := opl.FreqFor(ev.Pitch)

	r.programAndKey(res.Channels.Primary, inst.Voice1(), inst, ev.Velocity, block, fnum)
	if res.Channels.Secondary >= 0 {
		v2, _ := inst.Voice2()
		r.programAndKey(res.Channels.Secondary, v2, inst, ev.Velocity, block, fnum)
	}
	r.live[ev.Track] = id
}

func (r *Renderer) noteOff(ev pattern.NoteEvent) {
	if id := r.live[ev.Track]; id >= 0 {
		r.alloc.Release(id)
		r.live[ev.Track] = -1
	}
}

func (r *Renderer) programAndKey(ch int, v patch.Voice, inst patch.Instrument, velocity int, block uint8, fnum uint16) {
	patch.Program(r.dev, ch, v, inst.Feedback(), inst.Connection(), velocity)
	r.dev.Write(opl.ChannelReg(opl.ChFreqLow, ch), uint8(fnum&0xFF))
	kb := opl.KeyOnBit | block<<2 | uint8(fnum>>8)
	r.keyBlock[ch] = kb
	r.dev.Write(opl.ChannelReg(opl.ChKeyBlock, ch), kb)
}

// forceKeyOff is the allocator's release hook: clear the key-on bit while
// keeping the last block/fnum so the release tail stays at pitch.
func (r *Renderer) forceKeyOff(ch int) {
	r.dev.Write(opl.ChannelReg(opl.ChKeyBlock, ch), r.keyBlock[ch]&^uint8(opl.KeyOnBit))
}
