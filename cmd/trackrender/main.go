package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/quasilyte/tracker"
	"github.com/quasilyte/tracker/resample"
	"github.com/quasilyte/tracker/sampleio"
	"github.com/quasilyte/tracker/xmfile"
	"golang.org/x/term"
)

// This CLI tool renders a song into a WAV file or plays it through oto.
//
// An XM file is played as is; an audio file (WAV, AIFF, Ogg, MP3)
// is played as a single middle C note.

type options struct {
	output     string
	sampleRate int
	quality    resample.Quality
	seconds    float64
	startOrder int
	mono       bool
	play       bool
}

func main() {
	var opts options
	var qualityName string
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.StringVar(&opts.output, "o", "out.wav", "output WAV file path")
	flag.IntVar(&opts.sampleRate, "rate", 44100, "output sample rate")
	flag.StringVar(&qualityName, "quality", "cubic", "resampling quality: nearest, linear or cubic")
	flag.Float64Var(&opts.seconds, "seconds", 0, "render at most that many seconds (0 means until the song loops)")
	flag.IntVar(&opts.startOrder, "order", 0, "order to start the playback from")
	flag.BoolVar(&opts.mono, "mono", false, "render a mono file")
	flag.BoolVar(&opts.play, "play", false, "play the song instead of writing a file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: trackrender [flags] path/to/music.xm\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := initLogger(*verbose)

	if len(flag.Args()) != 1 {
		flag.Usage()
		os.Exit(2)
	}

	quality, err := parseQuality(qualityName)
	if err != nil {
		logger.Error("bad flags", "err", err)
		os.Exit(2)
	}
	opts.quality = quality

	if err := run(logger, flag.Args()[0], opts); err != nil {
		logger.Error("failed", "err", err)
		os.Exit(1)
	}
}

func initLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseQuality(s string) (resample.Quality, error) {
	switch strings.ToLower(s) {
	case "nearest":
		return resample.QualityNearest, nil
	case "linear":
		return resample.QualityLinear, nil
	case "cubic":
		return resample.QualityCubic, nil
	default:
		return 0, fmt.Errorf("unknown quality %q", s)
	}
}

func run(logger *slog.Logger, filename string, opts options) error {
	song, err := loadSong(filename)
	if err != nil {
		return err
	}
	logger.Info("song loaded",
		"name", song.Name,
		"dialect", song.Dialect,
		"orders", len(song.Orders),
		"memory", tracker.SongSize(song))

	if opts.play {
		return play(logger, song, opts)
	}
	return render(logger, song, opts)
}

func loadSong(filename string) (*tracker.Song, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if format := sampleio.FormatFromPath(filename); format != sampleio.FormatUnknown {
		s, err := sampleio.Decode(f, format)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
		s.Name = filepath.Base(filename)
		return sampleSong(s), nil
	}

	m, err := xmfile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return tracker.LoadXM(m)
}

// sampleSong returns a song that plays s once on the middle C.
func sampleSong(s *tracker.Sample) *tracker.Song {
	song := &tracker.Song{
		Name:         s.Name,
		Dialect:      tracker.DialectIT,
		Flags:        tracker.SongStereo | tracker.SongLinearSlides,
		GlobalVolume: 128,
		MixingVolume: 128,
		Speed:        6,
		Tempo:        125,
		Orders:       []uint8{0},
		Samples:      []tracker.Sample{*s},
	}
	for i := range song.ChannelPan {
		song.ChannelPan[i] = 32
		song.ChannelVolume[i] = 64
	}

	// Enough rows to let the whole sample play.
	seconds := float64(s.Length) / float64(s.C5Speed)
	numRows := min(200, 1+int(seconds*125*2/5/6))
	rows := make([][]tracker.Entry, numRows)
	rows[0] = []tracker.Entry{{
		Mask:       tracker.EntryNote | tracker.EntryInstrument,
		Note:       60,
		Instrument: 1,
	}}
	song.Patterns = []tracker.Pattern{{Rows: rows}}
	return song
}

func render(logger *slog.Logger, song *tracker.Song, opts options) error {
	numChannels := 2
	if opts.mono {
		numChannels = 1
	}
	r, err := tracker.NewRenderer(song, tracker.Config{
		Quality:    opts.quality,
		Channels:   numChannels,
		StartOrder: opts.startOrder,
		Logger:     logger,
	}, tracker.Callbacks{
		Loop:        tracker.Terminate,
		XMSpeedZero: tracker.Terminate,
	})
	if err != nil {
		return err
	}

	maxFrames := -1
	if opts.seconds > 0 {
		maxFrames = int(opts.seconds * float64(opts.sampleRate))
	}
	progress := newProgressLine()
	delta := 65536.0 / float64(opts.sampleRate)

	const chunkSize = 4096
	out := make([][]int32, numChannels)
	chunk := make([][]int32, numChannels)
	for i := range chunk {
		chunk[i] = make([]int32, chunkSize)
	}
	numFrames := 0
	for maxFrames < 0 || numFrames < maxFrames {
		size := chunkSize
		if maxFrames >= 0 {
			size = min(size, maxFrames-numFrames)
		}
		for i := range chunk {
			clear(chunk[i])
		}
		n := r.GetSamples(1.0, delta, size, chunk)
		for i := range out {
			out[i] = append(out[i], chunk[i][:n]...)
		}
		numFrames += n
		order, row := r.Position()
		progress.update("%6.1fs  order %3d  row %3d  tempo %3d  speed %2d ",
			float64(r.Time())/65536, order, row, r.Tempo(), r.Speed())
		if n < size {
			break
		}
	}
	progress.finish()

	f, err := os.Create(opts.output)
	if err != nil {
		return err
	}
	if err := sampleio.WriteWAV(f, opts.sampleRate, out); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info("song rendered",
		"file", opts.output,
		"duration", time.Duration(numFrames)*time.Second/time.Duration(opts.sampleRate))
	return nil
}

func play(logger *slog.Logger, song *tracker.Song, opts options) error {
	stream, err := tracker.NewStream(song, tracker.StreamConfig{
		SampleRate: opts.sampleRate,
		Quality:    opts.quality,
		StartOrder: opts.startOrder,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	stream.SetVolume(1)

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   opts.sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return err
	}
	<-ready

	var reader io.Reader = stream
	if opts.seconds > 0 {
		reader = io.LimitReader(stream, int64(opts.seconds*float64(opts.sampleRate))*4)
	}
	player := ctx.NewPlayer(reader)
	defer player.Close()
	player.Play()

	// The stream belongs to the player goroutine now,
	// so only the wall clock time is reported.
	progress := newProgressLine()
	start := time.Now()
	for player.IsPlaying() {
		time.Sleep(100 * time.Millisecond)
		progress.update("%6.1fs ", time.Since(start).Seconds())
	}
	progress.finish()

	if err := player.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// progressLine prints the playback position on stderr
// when it's a terminal.
type progressLine struct {
	enabled bool
	last    time.Time
}

func newProgressLine() *progressLine {
	return &progressLine{enabled: term.IsTerminal(int(os.Stderr.Fd()))}
}

func (p *progressLine) update(format string, args ...any) {
	if !p.enabled || time.Since(p.last) < 100*time.Millisecond {
		return
	}
	p.last = time.Now()
	fmt.Fprintf(os.Stderr, "\r"+format, args...)
}

func (p *progressLine) finish() {
	if p.enabled {
		fmt.Fprintln(os.Stderr)
	}
}
