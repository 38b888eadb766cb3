package tracker

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/quasilyte/tracker/clickrem"
	"github.com/quasilyte/tracker/resample"
)

// tickTimeDividend divided by the tempo gives the tick duration
// in 1/65536 of a second (a tempo of 125 means 50 ticks per second).
const tickTimeDividend = 163840

var (
	// ErrNoPlayableOrder is returned for songs without a single
	// order that refers to an existing pattern.
	ErrNoPlayableOrder = errors.New("no playable order")

	// ErrBadStartOrder is returned when Config.StartOrder is out of range.
	ErrBadStartOrder = errors.New("start order is out of range")
)

// Config configures a renderer.
//
// These settings can't be changed after a renderer is created.
type Config struct {
	// MaxToMix is the maximum number of voices mixed audibly.
	// The loudest voices win; the rest are advanced silently.
	//
	// A zero value means 64.
	MaxToMix int

	// Quality selects the sample interpolation.
	// The zero value is resample.QualityNearest;
	// resample.QualityCubic gives the best results.
	Quality resample.Quality

	// Channels is the number of output channels, 1 or 2.
	//
	// A zero value means 2 (stereo).
	Channels int

	// StartOrder is an index of the order to start the playback from.
	StartOrder int

	// Logger receives the rare debug-level playback events.
	// A nil logger disables logging.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxToMix == 0 {
		c.MaxToMix = 64
	}
	if c.Channels == 0 {
		c.Channels = 2
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Renderer is a song playback session.
//
// A renderer is not safe for concurrent use;
// use Clone to get an independent session.
type Renderer struct {
	song      *Song
	config    Config
	callbacks Callbacks
	dialect   dialect

	globalVolume   int
	globalVolslide int
	tempo          int
	tempoSlide     int

	channels  [NumChannels]channel
	nnaVoices [NumNNAVoices]*voice

	tick     int
	speed    int
	rowCount int

	// order and row describe the row being played.
	// An order of -1 means that the playback is over.
	order int
	row   int

	// processOrder and processRow are the sequencer cursors;
	// effects like Bxx and Cxx modify them.
	processOrder int
	processRow   int
	breakRow     int
	patLoopRow   int

	pattern *Pattern
	numRows int

	// timeLeft (and its fractional part subTimeLeft)
	// is the time until the next tick.
	timeLeft    int64
	subTimeLeft int64

	// elapsed is a playback position in 1/(65536*65536) of a second.
	elapsed int64

	clickRemovers []*clickrem.Remover

	// Scratch buffers reused between the render calls.
	mixList      []mixEntry
	filterBuffer [][]int32
}

// NewRenderer starts a song playback.
//
// The song is validated first; ErrInvalidSong is returned for broken songs.
// If a callback stops the playback on the very first row,
// the returned renderer is already finished.
func NewRenderer(song *Song, config Config, callbacks Callbacks) (*Renderer, error) {
	config.applyDefaults()
	if config.Channels != 1 && config.Channels != 2 {
		return nil, fmt.Errorf("unsupported number of channels: %d", config.Channels)
	}
	if err := song.validate(); err != nil {
		return nil, err
	}
	if len(song.Orders) == 0 {
		return nil, ErrNoPlayableOrder
	}
	if config.StartOrder < 0 || config.StartOrder >= len(song.Orders) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrBadStartOrder, config.StartOrder, len(song.Orders))
	}

	r := &Renderer{
		song:          song,
		config:        config,
		callbacks:     callbacks,
		dialect:       dialectOf(song),
		clickRemovers: clickrem.NewArray(config.Channels),
	}
	r.globalVolume = song.GlobalVolume
	r.tempo = song.Tempo
	if r.tempo == 0 {
		r.tempo = 125
	}
	r.speed = song.Speed
	if r.speed == 0 {
		r.speed = 6
	}
	for i := range r.channels {
		r.channels[i].init(song, i)
	}

	r.processRow = 0
	r.breakRow = 0
	r.patLoopRow = -1
	r.rowCount = 1
	r.resetTickCounts()
	r.tick = r.speed

	patternIndex, ok := r.firstPlayableOrder(config.StartOrder)
	if !ok {
		config.Logger.Debug("no playable order", "start", config.StartOrder)
		return nil, ErrNoPlayableOrder
	}
	r.selectPattern(patternIndex)
	r.order = r.processOrder
	r.row = 0

	if r.playRow() {
		config.Logger.Debug("playback stopped on the first row")
		r.finish()
		return r, nil
	}
	r.processAllVoices()

	r.timeLeft = tickTimeDividend / int64(r.tempo)
	r.subTimeLeft = 0
	return r, nil
}

// firstPlayableOrder finds the first order (starting from start)
// that refers to an existing pattern.
func (r *Renderer) firstPlayableOrder(start int) (int, bool) {
	song := r.song
	r.processOrder = start
	for {
		n := int(song.Orders[r.processOrder])
		if n < len(song.Patterns) {
			return n, true
		}
		if uint8(n) == OrderEnd {
			return 0, false
		}
		r.processOrder++
		if r.processOrder >= len(song.Orders) {
			r.processOrder = 0
		}
		if r.processOrder == start {
			return 0, false
		}
	}
}

func (r *Renderer) selectPattern(i int) {
	r.pattern = &r.song.Patterns[i]
	r.numRows = len(r.pattern.Rows)
}

// rowEntries returns the entries of the row being played.
func (r *Renderer) rowEntries() []Entry {
	if r.pattern == nil || r.row < 0 || r.row >= len(r.pattern.Rows) {
		return nil
	}
	return r.pattern.Rows[r.row]
}

func (r *Renderer) finish() {
	r.order = -1
	r.row = -1
}

// Ended reports whether the playback is over.
func (r *Renderer) Ended() bool { return r.order < 0 }

// GetSamples renders up to size samples into out.
//
// out must hold one buffer per output channel, each at least size samples long;
// the rendered samples are added to the existing buffer contents.
// A nil out renders nothing but advances the playback (a fast seek).
//
// delta is the time step per output sample in 1/65536 of a second
// (65536/44100 for a 44100 Hz output). volume scales the output;
// 1.0 maps a full-scale sample to the 24-bit range.
//
// The number of rendered samples is returned; it's less than size
// only if a callback stopped the playback.
func (r *Renderer) GetSamples(volume, delta float64, size int, out [][]int32) int {
	if r.order < 0 || size <= 0 {
		return 0
	}
	dt := int64(delta*65536.0 + 0.5)
	if dt <= 0 {
		return 0
	}
	if out == nil {
		volume = 0
	}

	pos := 0
	for {
		todo := int((r.timeLeft<<16 | r.subTimeLeft) / dt)
		if todo >= size {
			break
		}

		r.render(volume, delta, pos, todo, out)
		pos += todo
		size -= todo
		r.advanceTime(todo, dt)

		if r.processTick() {
			r.finish()
			r.removeClicks(delta, pos, out)
			return pos
		}
	}

	r.render(volume, delta, pos, size, out)
	pos += size
	r.advanceTime(size, dt)
	r.removeClicks(delta, pos, out)
	return pos
}

func (r *Renderer) removeClicks(delta float64, n int, out [][]int32) {
	if out == nil {
		return
	}
	for i, rem := range r.clickRemovers {
		rem.RemoveClicks(out[i][:n], 512.0/delta)
	}
}

func (r *Renderer) advanceTime(n int, dt int64) {
	t := r.subTimeLeft - int64(n)*dt
	r.subTimeLeft = t & 65535
	r.timeLeft += t >> 16
	r.elapsed += int64(n) * dt
}

// CurrentSample adds the click remover offsets to dst (one value per channel).
// Adding them to the last rendered samples lets a caller stop
// the playback without a click.
func (r *Renderer) CurrentSample(volume float64, dst []int32) {
	clickrem.Offsets(r.clickRemovers, dst)
}

// Clone returns an independent copy of the session.
// The clone shares the song but nothing else:
// it renders exactly what the original would.
func (r *Renderer) Clone() *Renderer {
	cloned := r.cloneWith(r.config.Channels, r.callbacks)
	for i, rem := range r.clickRemovers {
		cloned.clickRemovers[i] = rem.Clone()
	}
	return cloned
}

func (r *Renderer) cloneWith(numChannels int, callbacks Callbacks) *Renderer {
	cloned := &Renderer{
		song:           r.song,
		config:         r.config,
		callbacks:      callbacks,
		dialect:        r.dialect,
		globalVolume:   r.globalVolume,
		globalVolslide: r.globalVolslide,
		tempo:          r.tempo,
		tempoSlide:     r.tempoSlide,
		tick:           r.tick,
		speed:          r.speed,
		rowCount:       r.rowCount,
		order:          r.order,
		row:            r.row,
		processOrder:   r.processOrder,
		processRow:     r.processRow,
		breakRow:       r.breakRow,
		patLoopRow:     r.patLoopRow,
		pattern:        r.pattern,
		numRows:        r.numRows,
		timeLeft:       r.timeLeft,
		subTimeLeft:    r.subTimeLeft,
		elapsed:        r.elapsed,
	}
	cloned.config.Channels = numChannels
	cloned.clickRemovers = clickrem.NewArray(numChannels)
	for i := range r.channels {
		cloned.channels[i] = r.channels[i].clone()
	}
	for i, v := range r.nnaVoices {
		cloned.nnaVoices[i] = v.clone()
	}
	return cloned
}

// SetCallbacks replaces the session callbacks.
func (r *Renderer) SetCallbacks(callbacks Callbacks) { r.callbacks = callbacks }

// Position returns the order and row being played.
// Both are -1 after the playback is over.
func (r *Renderer) Position() (order, row int) { return r.order, r.row }

// Speed returns the current number of ticks per row.
func (r *Renderer) Speed() int { return r.speed }

// Tempo returns the current tempo.
func (r *Renderer) Tempo() int { return r.tempo }

// GlobalVolume returns the current global volume in [0, 128].
func (r *Renderer) GlobalVolume() int { return r.globalVolume }

// Time returns the playback position in 1/65536 of a second.
func (r *Renderer) Time() int64 { return r.elapsed >> 16 }

// NumChannels returns the number of output channels.
func (r *Renderer) NumChannels() int { return r.config.Channels }

// Song returns the song being played.
func (r *Renderer) Song() *Song { return r.song }
