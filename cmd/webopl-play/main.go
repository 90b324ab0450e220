// Command webopl-play plays a JSON song file through the system audio
// output. Voice pool events (stealing, dual-voice degradation) are logged
// as they happen, which makes the tool handy for auditioning how a song
// behaves under channel pressure.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	webopl "github.com/CaptainCoderOrg/webopl-go"
	"github.com/CaptainCoderOrg/webopl-go/internal/songfile"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		loop       = flag.Bool("loop", true, "loop playback; use with -loops to count then stop")
		loops      = flag.Int("loops", 0, "when -loop, stop after N loops (0 = loop forever)")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		pool       = flag.Int("pool", 0, "cap the hardware channel pool (0 = all 18)")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] song.json\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	song, err := loadSong(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	pl, err := webopl.NewPlayer(*sampleRate,
		webopl.WithLoopPlayback(*loop),
		webopl.WithPoolSize(*pool))
	if err != nil {
		log.Fatal(err)
	}
	pl.SetMasterVolume(*volume)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ch := pl.Watch()
	if err := pl.Play(song.Pattern, song.Tempo, song.Instruments); err != nil {
		log.Fatal(err)
	}

	loopCount := 0
	for event := range ch {
		switch event.Kind {
		case webopl.EventPlaybackEnded:
			fmt.Println("playback completed")
			pl.Wait()
			return
		case webopl.EventLoopCompleted:
			loopCount++
			fmt.Printf("loop %d completed\n", loopCount)
			if *loop && *loops > 0 && loopCount >= *loops {
				pl.Stop()
			}
		case webopl.EventVoiceStolen:
			logger.Warn("voice stolen",
				"channel", event.Channel,
				"note", event.NoteID,
				"from", event.FromNote)
		case webopl.EventVoiceDegraded:
			logger.Info("dual voice degraded",
				"channel", event.Channel,
				"note", event.NoteID)
		}
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
