package tracker

import (
	"errors"
	"io"
	"log/slog"
	"math"

	"github.com/quasilyte/tracker/resample"
)

// Stream wraps a song playback, making it possible to Read() its PCM bytes.
//
// The Read() method produces 16-bit little endian stereo PCM bytes; this is what ebiten/audio
// package extects. Use Stream as an io.Reader argument for audio.NewPlayer().
type Stream struct {
	song     *Song
	config   Config
	renderer *Renderer
	timeline *Timeline

	sampleRate int
	delta      float64

	settings streamSettings

	bytePos int64 // Used to report the current pos via Seek()
	buffers [2][]int32
}

type streamSettings struct {
	volumeScaling float64
	loop          bool
	eventHandler  func(e StreamEvent)
}

// StreamInfo contains a stream information like bytes per tick, etc.
type StreamInfo struct {
	// BytesPerTick tell how much bytes the current tempo needs to fit a single tick.
	// Unlike the older stream implementations, Read() is not limited to whole ticks,
	// but this value is still useful to pick a reasonable buffer size.
	BytesPerTick uint

	// MemoryUsage approximates the song size in bytes.
	MemoryUsage uint
}

// StreamConfig configures the stream playback.
//
// These settings can't be changed after a stream is created.
//
// Some extra configurations are available via Stream methods:
//   - Stream.SetVolume()
//   - Stream.SetLooping()
//
// These extra configuration methods can be used at any time.
type StreamConfig struct {
	// The sound device sample rate.
	// If you're using Ebitengine, it's the same value that
	// was used to create an audio context.
	//
	// A zero value will assume a sample rate of 44100.
	SampleRate int

	// Quality selects the resampling interpolation.
	// A zero value means "nearest neighbour"; cubic sounds the best.
	Quality resample.Quality

	// MaxToMix limits the number of voices mixed at once.
	// A zero value means 64.
	MaxToMix int

	// StartOrder is the order to start the playback from.
	StartOrder int

	// Logger receives the playback diagnostics.
	// A nil logger discards everything.
	Logger *slog.Logger
}

const (
	streamFrameSize = 4 // 2 channels * 16 bits
	streamChunkSize = 1024
)

// NewStream creates a stream that is ready to play the song.
//
// A stream always produces a stereo output.
func NewStream(song *Song, config StreamConfig) (*Stream, error) {
	if config.SampleRate == 0 {
		config.SampleRate = 44100
	}
	if config.SampleRate < 0 {
		return nil, errors.New("invalid sample rate")
	}

	s := &Stream{
		song: song,
		config: Config{
			MaxToMix:   config.MaxToMix,
			Quality:    config.Quality,
			Channels:   2,
			StartOrder: config.StartOrder,
			Logger:     config.Logger,
		},
		sampleRate: config.SampleRate,
		delta:      65536.0 / float64(config.SampleRate),
		settings: streamSettings{
			volumeScaling: 0.8,
		},
	}
	s.config.applyDefaults()

	r, err := NewRenderer(song, s.config, s.callbacks())
	if err != nil {
		return nil, err
	}
	s.renderer = r

	return s, nil
}

// SetEventHandler installs an event listener to the stream.
//
// f is called on every stream event.
//
// Events are produced when the song is being played.
// Therefore, calling Read() may produce multiple events.
//
// Experimental: the events handling API may change significantly in the future.
func (s *Stream) SetEventHandler(f func(e StreamEvent)) {
	s.settings.eventHandler = f
}

// SetVolume adjusts the global volume scaling for the stream.
// The default value is 0.8; a value of 0 disables the sound.
// The value is clamped in [0, 1].
func (s *Stream) SetVolume(v float64) {
	s.settings.volumeScaling = clamp(v, 0, 1)
}

// SetLooping makes the stream follow the song loops forever.
// When looping is enabled, Read will never return EOF:
// the song follows its own loops, and if it stops for any
// other reason (like an XM speed 0 command), the stream is rewound.
//
// Without looping, the playback ends when the song goes back
// to an order it already played.
func (s *Stream) SetLooping(loop bool) {
	s.settings.loop = loop
}

// Renderer returns the underlying playback session.
// It can be used to query the playback state (like the channel states).
func (s *Stream) Renderer() *Renderer { return s.renderer }

func (s *Stream) callbacks() Callbacks {
	return Callbacks{
		Loop: func() Action {
			s.emit(StreamEvent{Kind: EventLoop})
			if s.settings.loop {
				return Continue
			}
			return Stop
		},
		XMSpeedZero: Terminate,
		MIDI: func(channel int, b byte) Action {
			s.emit(StreamEvent{Kind: EventMIDI, Channel: channel, value: uint64(b)})
			return Continue
		},
		Note: func(channel int, note, instrument uint8, volume int) {
			if s.settings.eventHandler == nil {
				return
			}
			s.emit(newNoteEvent(0, channel, note, instrument, float32(volume)/64))
		},
	}
}

func (s *Stream) emit(e StreamEvent) {
	if s.settings.eventHandler == nil {
		return
	}
	if s.renderer != nil {
		e.Time = float64(s.renderer.Time()) / 65536
	}
	s.settings.eventHandler(e)
}

// Seek partially implements io.Seeker.
//
// You can use it for these things:
//  1. (0, SeekStart) for rewind
//  2. (offset, SeekStart) to jump to the specified byte offset
//  3. (0, SeekCurrent) to get the byte pos inside the stream
//
// The first jump to a non-zero offset plays the whole song silently
// to build a timeline; later jumps are fast.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		if offset == 0 {
			s.Rewind()
			return 0, nil
		}
		if offset < 0 {
			return 0, errors.New("negative stream position")
		}
		if err := s.seek(offset); err != nil {
			return 0, err
		}
		return s.bytePos, nil

	case io.SeekCurrent:
		if offset == 0 {
			return s.bytePos, nil
		}
	}

	return 0, errors.New("unsupported Seek call")
}

func (s *Stream) seek(offset int64) error {
	if s.timeline == nil {
		tl, err := BuildTimeline(s.song, s.config)
		if err != nil {
			return err
		}
		s.timeline = tl
	}

	frame := offset / streamFrameSize
	pos := frame * 65536 / int64(s.sampleRate)
	s.emit(StreamEvent{
		Kind:  EventSync,
		value: math.Float64bits(float64(pos) / 65536),
	})
	s.renderer = s.startAt(pos)
	s.bytePos = frame * streamFrameSize
	return nil
}

// Read puts next PCM bytes into provided slice.
//
// The stream only supports stereo output (numChannels=2)
// and it produces 16-bit (2 bytes per sample) LE PCM data.
// A tail of b that can't fit a whole frame is not written to.
//
// When stream has no bytes to produce, io.EOF error is returned.
func (s *Stream) Read(b []byte) (int, error) {
	written := 0
	eof := false

	for len(b)-written >= streamFrameSize {
		n := min((len(b)-written)/streamFrameSize, streamChunkSize)
		bufs := s.chunkBuffers(n)
		rendered := s.renderer.GetSamples(s.settings.volumeScaling, s.delta, n, bufs)
		dst := b[written:]
		for i := range rendered {
			putPCM(dst[i*streamFrameSize:], toPCM16(bufs[0][i]), toPCM16(bufs[1][i]))
		}
		written += rendered * streamFrameSize
		if rendered < n {
			eof = true
			break
		}
	}

	s.bytePos += int64(written)

	if eof {
		if s.settings.loop && written != 0 {
			s.Rewind()
			return written, nil
		}
		return written, io.EOF
	}
	return written, nil
}

func (s *Stream) chunkBuffers(n int) [][]int32 {
	bufs := s.buffers[:]
	for i, buf := range bufs {
		if cap(buf) < n {
			buf = make([]int32, streamChunkSize)
		}
		buf = buf[:n]
		clear(buf)
		bufs[i] = buf
	}
	return bufs
}

// Rewind prepares the stream to play the song right from the start.
// Doing rewind is relatively cheap.
func (s *Stream) Rewind() {
	s.emit(StreamEvent{
		Kind:  EventSync,
		value: math.Float64bits(0),
	})
	s.rewind()
}

func (s *Stream) rewind() {
	s.bytePos = 0
	s.renderer = nil
	if s.timeline != nil {
		s.renderer = s.startAt(0)
		return
	}
	r, err := NewRenderer(s.song, s.config, s.callbacks())
	if err != nil {
		// The song was accepted by NewStream already.
		panic(err)
	}
	s.renderer = r
}

// startAt seeks without reporting the skipped notes and MIDI bytes.
func (s *Stream) startAt(pos int64) *Renderer {
	quiet := s.callbacks()
	quiet.Note = nil
	quiet.MIDI = nil
	r := s.timeline.Start(pos, quiet)
	r.SetCallbacks(s.callbacks())
	return r
}

// GetInfo returns stream-related info.
// See StreamInfo for more details.
func (s *Stream) GetInfo() StreamInfo {
	// A tick lasts 2.5/tempo seconds.
	framesPerTick := float64(s.sampleRate) * 2.5 / float64(s.renderer.Tempo())
	return StreamInfo{
		BytesPerTick: uint(math.Ceil(framesPerTick)) * streamFrameSize,
		MemoryUsage:  SongSize(s.song),
	}
}

// toPCM16 converts a 24-bit mix sample to a clipped 16-bit one.
func toPCM16(v int32) uint16 {
	return uint16(int16(clamp(int(v>>8), math.MinInt16, math.MaxInt16)))
}

func putPCM(b []byte, left, right uint16) {
	_ = b[3] // Early bound check
	b[0] = byte(left)
	b[1] = byte(left >> 8)
	b[2] = byte(right)
	b[3] = byte(right >> 8)
}
