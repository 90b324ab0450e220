package webopl

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/CaptainCoderOrg/webopl-go/internal/loop"
	"github.com/CaptainCoderOrg/webopl-go/internal/opl"
	"github.com/CaptainCoderOrg/webopl-go/internal/pattern"
	"github.com/CaptainCoderOrg/webopl-go/internal/render"
	"github.com/CaptainCoderOrg/webopl-go/internal/wav"
)

// LoopStrategy selects how ExportWAV treats the pattern boundary so the
// exported file can repeat without a click.
type LoopStrategy int

const (
	// LoopNone exports exactly one pass, no boundary treatment.
	LoopNone LoopStrategy = iota
	// LoopCrossfade overlap-adds the pattern's tail onto its head with a
	// short equal-power fade and trims the tail, shortening the file by one
	// fade window.
	LoopCrossfade
	// LoopContextAware renders with wrapped context rows before and after
	// the pattern and keeps only the middle, so envelopes at both edges are
	// already in their looped steady state.
	LoopContextAware
	// LoopExtended renders past the pattern end and marks loop points in
	// the file's smpl chunk at a quiet frame near the boundary. Playback
	// software that honors the chunk loops seamlessly; everything else
	// plays the file straight through.
	LoopExtended
)

type ExportOption func(*exportConfig)

type exportConfig struct {
	strategy    LoopStrategy
	fade        time.Duration
	contextRows int
	progress    func(float64)
}

func defaultExportConfig() exportConfig {
	return exportConfig{
		strategy:    LoopNone,
		fade:        loop.DefaultCrossfade,
		contextRows: loop.DefaultContextRows,
	}
}

func WithLoopStrategy(s LoopStrategy) ExportOption {
	return func(cfg *exportConfig) {
		cfg.strategy = s
	}
}

// WithCrossfadeDuration sets the LoopCrossfade blend length.
func WithCrossfadeDuration(d time.Duration) ExportOption {
	return func(cfg *exportConfig) {
		cfg.fade = d
	}
}

// WithContextRows sets how many wrapped rows LoopContextAware renders on
// each side of the pattern.
func WithContextRows(rows int) ExportOption {
	return func(cfg *exportConfig) {
		cfg.contextRows = rows
	}
}

// WithRenderProgress installs a per-render-pass progress callback
// (monotonic, 0 to 1). Multi-pass strategies report each pass separately.
func WithRenderProgress(fn func(float64)) ExportOption {
	return func(cfg *exportConfig) {
		cfg.progress = fn
	}
}

// RenderPattern renders one complete pass of the pattern offline and
// returns interleaved stereo float32 frames. The output is bit-identical
// to what live playback of the same inputs produces.
func RenderPattern(ctx context.Context, pat *Pattern, tempo Tempo, instruments []Instrument, sampleRate int) ([]float32, error) {
	return renderPass(ctx, pat, tempo, instruments, sampleRate, nil)
}

func renderPass(ctx context.Context, pat *Pattern, tempo Tempo, instruments []Instrument, sampleRate int, progress func(float64)) ([]float32, error) {
	tl, err := pattern.BuildTimeline(pat, tempo)
	if err != nil {
		return nil, err
	}
	r, err := render.New(tl, render.Config{
		Device:      opl.New(sampleRate),
		SampleRate:  sampleRate,
		Instruments: instruments,
	})
	if err != nil {
		return nil, err
	}
	return r.Render(ctx, progress)
}

// ExportWAV renders the pattern and writes a 16-bit stereo PCM WAV to w.
// The container is written only after the whole render succeeds; a
// cancelled export leaves w untouched.
func ExportWAV(ctx context.Context, w io.Writer, pat *Pattern, tempo Tempo, instruments []Instrument, sampleRate int, opts ...ExportOption) error {
	cfg := defaultExportConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	renderFn := func(ctx context.Context, p *pattern.Pattern) ([]float32, error) {
		return renderPass(ctx, p, tempo, instruments, sampleRate, cfg.progress)
	}

	var (
		samples []float32
		points  *wav.LoopPoints
		err     error
	)
	switch cfg.strategy {
	case LoopNone:
		samples, err = renderFn(ctx, pat)
	case LoopCrossfade:
		samples, err = renderFn(ctx, pat)
		if err == nil {
			samples = loop.Crossfade(samples, sampleRate, cfg.fade)
		}
	case LoopContextAware:
		samples, err = loop.ContextAware(ctx, pat, tempo, sampleRate, cfg.contextRows, renderFn)
	case LoopExtended:
		var lp wav.LoopPoints
		samples, lp, err = loop.ExtendedWithLoop(ctx, pat, tempo, sampleRate, renderFn)
		points = &lp
	default:
		return fmt.Errorf("unknown loop strategy %d", cfg.strategy)
	}
	if err != nil {
		return err
	}

	pcm := wav.FromFloat32(samples)
	var encoded []byte
	if points != nil {
		encoded = wav.EncodeWithLoop(pcm, sampleRate, *points)
	} else {
		encoded = wav.Encode(pcm, sampleRate)
	}
	_, err = w.Write(encoded)
	return err
}
