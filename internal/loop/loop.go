// Package loop builds seamlessly repeatable exports on top of the renderer.
// A naive single-pass slice clicks at the boundary: the chip's decay and
// phase state at the end of a pass does not match a steady-state loop's
// start. Each strategy fixes that differently; none of them change the
// renderer's event-application or sample-generation contract.
package loop

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/CaptainCoderOrg/webopl-go/internal/pattern"
	"github.com/CaptainCoderOrg/webopl-go/internal/wav"
)

// RenderFunc renders one pattern with a fresh device and allocator. The
// strategies re-render through it and never reach into renderer internals.
type RenderFunc func(ctx context.Context, p *pattern.Pattern) ([]float32, error)

// DefaultContextRows is the warm-up row count for the context-aware
// strategy.
const DefaultContextRows = 8

// DefaultCrossfade is the boundary window for the crossfade strategy.
const DefaultCrossfade = 200 * time.Millisecond

// Crossfade overlap-adds the final window of a rendered pass onto its
// opening window with an equal-power curve and drops the tail window, so
// the output is one window shorter than the input. The blended opening
// starts as pure tail: on a loop wrap the last retained frame flows
// directly into the frame that followed it in the original render, and the
// boundary cannot click on any player. The input is not modified.
func Crossfade(samples []float32, sampleRate int, fade time.Duration) []float32 {
	frames := len(samples) / 2
	fadeFrames := int(fade.Seconds() * float64(sampleRate))
	if fadeFrames > frames/2 {
		fadeFrames = frames / 2
	}
	if fadeFrames <= 0 {
		return append([]float32(nil), samples...)
	}
	keep := frames - fadeFrames
	out := append([]float32(nil), samples[:keep*2]...)
	tail := samples[keep*2:]
	for i := 0; i < fadeFrames; i++ {
		p := float64(i) / float64(fadeFrames)
		tailGain := float32(math.Sqrt(1 - p))
		headGain := float32(math.Sqrt(p))
		out[i*2] = samples[i*2]*headGain + tail[i*2]*tailGain
		out[i*2+1] = samples[i*2+1]*headGain + tail[i*2+1]*tailGain
	}
	return out
}

// ContextAware renders [last K rows][all rows][first K rows] as one
// continuous pass and slices out the middle. The chip state entering the
// slice was produced by genuinely playing the preceding K rows, so the
// extracted segment starts exactly as it would in steady-state looped
// playback: seamless, with zero sample alteration.
func ContextAware(ctx context.Context, p *pattern.Pattern, tempo pattern.Tempo, sampleRate int, contextRows int, render RenderFunc) ([]float32, error) {
	if contextRows <= 0 {
		contextRows = DefaultContextRows
	}
	if contextRows > p.Rows() {
		contextRows = p.Rows()
	}
	rendered, err := render(ctx, p.WithContext(contextRows))
	if err != nil {
		return nil, err
	}
	spr := tempo.SecondsPerRow()
	start := int(math.Ceil(float64(contextRows) * spr * float64(sampleRate)))
	frames := int(math.Ceil(float64(p.Rows()) * spr * float64(sampleRate)))
	if (start+frames)*2 > len(rendered) {
		return nil, fmt.Errorf("loop: context render too short: have %d frames, need %d", len(rendered)/2, start+frames)
	}
	return rendered[start*2 : (start+frames)*2 : (start+frames)*2], nil
}

// ExtendedWithLoop renders roughly one and a half passes and, instead of
// cutting, locates the near-zero-crossing frame closest to the musical
// boundary and reports it as loop metadata. Compliant players loop the
// marked region losslessly; everything else plays the extended audio once.
func ExtendedWithLoop(ctx context.Context, p *pattern.Pattern, tempo pattern.Tempo, sampleRate int, render RenderFunc) ([]float32, wav.LoopPoints, error) {
	extra := (p.Rows() + 1) / 2
	rendered, err := render(ctx, p.Extended(extra))
	if err != nil {
		return nil, wav.LoopPoints{}, err
	}
	spr := tempo.SecondsPerRow()
	patternFrames := int(math.Ceil(float64(p.Rows()) * spr * float64(sampleRate)))
	window := int(spr * float64(sampleRate)) // one row either side
	boundary := patternFrames

	idx := nearestQuietFrame(rendered, boundary, window)
	start := idx - patternFrames
	if start < 0 {
		start = 0
	}
	return rendered, wav.LoopPoints{Start: uint32(start), End: uint32(idx - 1)}, nil
}

// nearestQuietFrame scans ±window around the boundary frame for the
// lowest-amplitude frame, preferring the one closest to the boundary on
// ties.
func nearestQuietFrame(samples []float32, boundary, window int) int {
	frames := len(samples) / 2
	lo, hi := boundary-window, boundary+window
	if lo < 1 {
		lo = 1
	}
	if hi >= frames {
		hi = frames - 1
	}
	best, bestAmp := boundary, math.Inf(1)
	for f := lo; f <= hi; f++ {
		amp := math.Abs(float64(samples[f*2])) + math.Abs(float64(samples[f*2+1]))
		dist := f - boundary
		if dist < 0 {
			dist = -dist
		}
		bestDist := best - boundary
		if bestDist < 0 {
			bestDist = -bestDist
		}
		if amp < bestAmp || (amp == bestAmp && dist < bestDist) {
			best, bestAmp = f, amp
		}
	}
	return best
}
