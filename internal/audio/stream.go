// Package audio bridges a pull-based sample source to the host audio
// pipeline. The renderer never blocks inside the pipeline callback; the
// stream reader only moves float32 frames.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource fills interleaved stereo float32 buffers. Process is called
// from the audio thread and must only perform register writes and sample
// reads - no allocation, no I/O.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource additionally signals end of playback; the stream returns
// io.EOF on the read after Finished reports true.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// StreamReader adapts a SampleSource to the io.Reader the audio context
// consumes (float32 little-endian frames).
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

// frameBytes is one stereo frame on the wire: two little-endian float32s.
const frameBytes = 8

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if len(r.buf) < frames*2 {
		r.buf = make([]float32, frames*2)
	}
	buf := r.buf[:frames*2]
	r.source.Process(buf)

	out := p[:frames*frameBytes]
	for i, s := range buf {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return len(out), io.EOF
	}
	return len(out), nil
}

func (r *StreamReader) Close() error { return nil }

// Output owns one playing stream on the shared audio context.
type Output struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

// The host audio context is process-global and fixed to its first sample
// rate; later outputs must match it.
var (
	contextOnce sync.Once
	context     *ebitaudio.Context
	contextRate int
)

func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		contextRate = sampleRate
		context = ebitaudio.NewContext(sampleRate)
	})
	if contextRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", contextRate, sampleRate)
	}
	return context, nil
}

func NewOutput(sampleRate int, source SampleSource) (*Output, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Output{player: pl, reader: reader}, nil
}

func (o *Output) Play()           { o.player.Play() }
func (o *Output) Pause()          { o.player.Pause() }
func (o *Output) IsPlaying() bool { return o.player.IsPlaying() }

// Position returns the driver-side playback position: what the listener
// actually hears right now.
func (o *Output) Position() time.Duration {
	return o.player.Position()
}

func (o *Output) Stop() error {
	o.player.Pause()
	o.player.Close()
	return o.reader.Close()
}
