// Command webopl-render renders a JSON song file to a 16-bit stereo WAV,
// optionally with seamless-loop treatment at the pattern boundary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	webopl "github.com/CaptainCoderOrg/webopl-go"
	"github.com/CaptainCoderOrg/webopl-go/internal/songfile"
)

func main() {
	var (
		out         = flag.String("out", "out.wav", "output WAV path")
		sampleRate  = flag.Int("sample-rate", 48000, "render sample rate")
		strategy    = flag.String("loop", "none", "loop treatment: none|crossfade|context|extended")
		fadeMs      = flag.Int("fade-ms", 200, "crossfade length in milliseconds")
		contextRows = flag.Int("context-rows", 8, "wrapped rows rendered around the pattern (context strategy)")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] song.json\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	song, err := loadSong(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	opts, err := exportOptions(*strategy, *fadeMs, *contextRows)
	if err != nil {
		log.Fatal(err)
	}
	opts = append(opts, webopl.WithRenderProgress(progressPrinter()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	if err := webopl.ExportWAV(ctx, f, song.Pattern, song.Tempo, song.Instruments, *sampleRate, opts...); err != nil {
		f.Close()
		os.Remove(*out)
		log.Fatal(err)
	}
	if err := f.Close(); err != nil {
		log.Fatal(err)
	}
	logger.Info("rendered", "out", *out, "strategy", *strategy, "elapsed", time.Since(start))
}

// progressPrinter reports render progress to stderr in 10% steps.
// Multi-pass strategies restart the count per pass.
func progressPrinter() func(float64) {
	last := -1
	return func(p float64) {
		step := int(p * 10)
		if step < last {
			last = -1 // a new pass started
		}
		if step == last {
			return
		}
		last = step
		fmt.Fprintf(os.Stderr, "\rrendering %3d%%", step*10)
		if step == 10 {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func exportOptions(strategy string, fadeMs, contextRows int) ([]webopl.ExportOption, error) {
	switch strategy {
	case "none":
		return nil, nil
	case "crossfade":
		return []webopl.ExportOption{
			webopl.WithLoopStrategy(webopl.LoopCrossfade),
			webopl.WithCrossfadeDuration(time.Duration(fadeMs) * time.Millisecond),
		}, nil
	case "context":
		return []webopl.ExportOption{
			webopl.WithLoopStrategy(webopl.LoopContextAware),
			webopl.WithContextRows(contextRows),
		}, nil
	case "extended":
		return []webopl.ExportOption{
			webopl.WithLoopStrategy(webopl.LoopExtended),
		}, nil
	default:
		return nil, fmt.Errorf("invalid -loop %q (expected none|crossfade|context|extended)", strategy)
	}
}

func loadSong(path string) (*songfile.Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return songfile.Load(f, webopl.DefaultBank())
}
