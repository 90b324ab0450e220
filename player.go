package webopl

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	intaudio "github.com/CaptainCoderOrg/webopl-go/internal/audio"
	"github.com/CaptainCoderOrg/webopl-go/internal/opl"
	"github.com/CaptainCoderOrg/webopl-go/internal/pattern"
	"github.com/CaptainCoderOrg/webopl-go/internal/render"
	"github.com/CaptainCoderOrg/webopl-go/internal/voice"
)

// PlaybackEvent carries playback and channel-pool events from Watch().
type PlaybackEvent struct {
	Kind     int
	NoteID   int // EventVoiceStolen, EventVoiceDegraded
	Channel  int // the channel taken (stolen) or the one granted (degraded)
	FromNote int // EventVoiceStolen: the note that lost the channel
}

const (
	EventLoopCompleted int = iota
	EventPlaybackEnded
	EventVoiceStolen
	EventVoiceDegraded
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	loopPlayback bool
	poolSize     int
	sampleTap    func([]float32)
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{loopPlayback: true}
}

func WithLoopPlayback(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.loopPlayback = enabled
	}
}

// WithPoolSize caps the number of hardware channels the player hands out.
// Zero or negative means the chip's full pool.
func WithPoolSize(n int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.poolSize = n
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

type Player struct {
	mu           sync.Mutex
	sampleRate   int
	loopPlayback bool
	poolSize     int
	sampleTap    func([]float32)
	volume       float64
	gain         *atomicGain
	audio        *intaudio.Output
	done         chan struct{}
	eventCh      chan PlaybackEvent
	eventChMu    sync.Mutex
}

type atomicGain struct {
	bits atomic.Uint64
}

func (g *atomicGain) load() float32 { return float32(math.Float64frombits(g.bits.Load())) }

func (g *atomicGain) store(v float64) { g.bits.Store(math.Float64bits(v)) }

// sourceWrapper adapts a renderer to the audio backend, applying master
// volume and the sample tap on the audio thread.
type sourceWrapper struct {
	renderer *render.Renderer
	gain     *atomicGain
	tap      func([]float32)
	finished atomic.Bool
}

func (w *sourceWrapper) Process(dst []float32) {
	w.renderer.Process(dst)
	if g := w.gain.load(); g != 1 {
		for i := range dst {
			dst[i] *= g
		}
	}
	if w.tap != nil {
		w.tap(dst)
	}
}

func (w *sourceWrapper) Finished() bool {
	return w.finished.Load()
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &Player{
		sampleRate:   sampleRate,
		loopPlayback: cfg.loopPlayback,
		poolSize:     cfg.poolSize,
		sampleTap:    cfg.sampleTap,
		volume:       1,
		gain:         &atomicGain{},
	}
	p.gain.store(1)
	return p, nil
}

// Play schedules the pattern and starts live playback. Each call runs on a
// fresh chip; channel and envelope state never leaks between songs.
// instruments assigns one patch per pattern track.
func (p *Player) Play(pat *Pattern, tempo Tempo, instruments []Instrument) error {
	tl, err := pattern.BuildTimeline(pat, tempo)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Signal any existing Wait() that the previous playback was replaced
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})

	wrapper := &sourceWrapper{gain: p.gain, tap: p.sampleTap}
	renderer, err := render.New(tl, render.Config{
		Device:      opl.New(p.sampleRate),
		SampleRate:  p.sampleRate,
		Instruments: instruments,
		PoolSize:    p.poolSize,
		Loop:        p.loopPlayback,
		OnAllocEvent: func(ev voice.Event) {
			p.sendEvent(allocEvent(ev))
		},
		OnLoop: func() {
			p.sendEvent(PlaybackEvent{Kind: EventLoopCompleted})
		},
		OnEnded: func() {
			wrapper.finished.Store(true)
			p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
			p.signalDone()
		},
	})
	if err != nil {
		return err
	}
	wrapper.renderer = renderer

	backend, err := intaudio.NewOutput(p.sampleRate, wrapper)
	if err != nil {
		return err
	}
	if p.audio != nil {
		_ = p.audio.Stop()
	}
	p.audio = backend
	p.audio.Play()
	return nil
}

func allocEvent(ev voice.Event) PlaybackEvent {
	kind := EventVoiceStolen
	if ev.Kind == voice.EventDegraded {
		kind = EventVoiceDegraded
	}
	return PlaybackEvent{Kind: kind, NoteID: ev.NoteID, Channel: ev.Channel, FromNote: ev.FromNote}
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (p *Player) signalDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
	}
}

func (p *Player) Stop() error {
	p.mu.Lock()
	if p.audio == nil {
		p.mu.Unlock()
		return nil
	}
	err := p.audio.Stop()
	p.audio = nil
	done := p.done
	p.done = nil
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	if done != nil {
		close(done)
	}
	return err
}

// Wait blocks until the current playback ends. When loop playback is enabled,
// Wait blocks indefinitely (use Watch for loop-counting instead).
// Wait returns immediately if no playback is active or if it was stopped.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events:
//   - EventLoopCompleted: a whole-pattern loop iteration finished (when looping)
//   - EventPlaybackEnded: playback finished or was stopped
//   - EventVoiceStolen: the pool was exhausted and a channel was taken from
//     the oldest sounding note (NoteID, Channel, FromNote set)
//   - EventVoiceDegraded: a dual-voice note was granted only one channel
//
// The channel is buffered (cap 8); receive in a goroutine to avoid blocking
// the audio thread. Only the most recent Watch() channel receives events;
// call Watch before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets the runtime volume scalar. 1.0 is default. Takes
// effect immediately on the audio thread.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.gain.store(volume)
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// PlaybackPosition returns the current output position of the audio driver,
// i.e. what the listener actually hears right now. Returns 0 if not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	pos := a.Position()
	return int64(pos.Seconds() * float64(p.sampleRate))
}
