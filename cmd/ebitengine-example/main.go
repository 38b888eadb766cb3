package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/quasilyte/tracker"
	"github.com/quasilyte/tracker/resample"
	"github.com/quasilyte/tracker/xmfile"
)

/*
note indexes
C  = 0
C# = 1
D  = 2
D# = 3
E  = 4
F  = 5
F# = 6
G  = 7
G# = 8
A  = 9
A# = 10
B  = 11

D#5 = 63
(octave × 12) + note_index = 63
*/

// This simple CLI tool plays the specified XM track using Ebitengine audio player.

func main() {
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Usage = func() {
		fmt.Printf("usage: go run ./cmd/ebitengine-example path/to/music.xm\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if len(flag.Args()) < 1 {
		panic("expected at least 1 command-line argument")
	}
	filename := flag.Args()[0]

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Create a playable song.
	data, err := os.ReadFile(filename)
	if err != nil {
		panic(fmt.Errorf("read XM file: %v", err))
	}
	xmParser := xmfile.NewParser(xmfile.ParserConfig{})
	xmModule, err := xmParser.ParseFromBytes(data)
	if err != nil {
		panic(fmt.Errorf("parsing XM file: %v", err))
	}
	song, err := tracker.LoadXM(xmModule)
	if err != nil {
		panic(fmt.Sprintf("loading XM module: %v", err))
	}

	// Create a sound player using the Ebitengine audio context.
	// You can have multiple players, but only one audio context.
	// See Ebitengine docs to learn more.
	sampleRate := 44100
	streamConfig := tracker.StreamConfig{
		SampleRate: sampleRate,
		Quality:    resample.QualityCubic,
		Logger:     logger,
	}
	stream, err := tracker.NewStream(song, streamConfig)
	if err != nil {
		panic(fmt.Sprintf("creating a stream: %v", err))
	}
	stream.SetLooping(true)
	stream.SetEventHandler(func(e tracker.StreamEvent) {
		if e.Kind == tracker.EventLoop {
			logger.Debug("song loop", "time", e.Time)
		}
	})
	logger.Info("song loaded",
		"name", song.Name,
		"memory", stream.GetInfo().MemoryUsage)

	audioContext := audio.NewContext(sampleRate)
	player, err := audioContext.NewPlayer(stream)
	if err != nil {
		panic(err)
	}

	g := &game{
		player:   player,
		filename: filename,
		paused:   true,
	}

	g.synth = tracker.NewSynthesizer(tracker.SynthesizerConfig{
		NumChannels: 2,
		Stream:      streamConfig,
	})
	if err := g.synth.LoadInstruments(song); err != nil {
		panic(err)
	}
	{
		player, err := audioContext.NewPlayer(g.synth)
		if err != nil {
			panic(err)
		}
		g.synthPlayer = player
	}

	if err := ebiten.RunGame(g); err != nil {
		panic(err)
	}
}

type game struct {
	player *audio.Player

	synth       *tracker.Synthesizer
	synthPlayer *audio.Player

	filename string
	paused   bool
}

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
		if g.player.IsPlaying() {
			g.player.Pause()
		} else {
			g.player.Play()
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.Key1) {
		g.playNote(1)
	}
	if inpututil.IsKeyJustPressed(ebiten.Key2) {
		g.playNote(2)
	}

	return nil
}

func (g *game) playNote(instrument uint8) {
	err := g.synth.PlayNote(0, tracker.Entry{
		Mask:       tracker.EntryNote | tracker.EntryInstrument,
		Note:       63,
		Instrument: instrument,
	})
	if err != nil {
		panic(err)
	}
	g.synthPlayer.Rewind()
	g.synthPlayer.Play()
}

func (g *game) Draw(screen *ebiten.Image) {
	if g.paused {
		ebitenutil.DebugPrint(screen, "Paused... press SPACE")
	} else {
		ebitenutil.DebugPrint(screen, fmt.Sprintf("Playing %s...", g.filename))
	}
}

func (g *game) Layout(_, _ int) (int, int) {
	return 640, 480
}
