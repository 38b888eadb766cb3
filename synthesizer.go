package tracker

import (
	"errors"
	"io"
)

// Synthesizer can be used to play individual notes
// with the instruments of a loaded song.
//
// It is more convenient to use for this use case than
// a stream with a hand-made song.
//
// Experimental: synthesizer API may change in the near future.
type Synthesizer struct {
	config      StreamConfig
	numChannels int
	volume      float64

	song   *Song
	stream *Stream
}

type SynthesizerConfig struct {
	// NumChannels limits the number of notes played at once.
	// A zero value means 8.
	NumChannels int

	// Stream is used for every played note.
	Stream StreamConfig
}

// synthRowsPerSecond is a row rate of the synthesizer songs:
// a speed of 1 with the tempo of 125 (50 ticks per second).
const synthRowsPerSecond = 50

func NewSynthesizer(config SynthesizerConfig) *Synthesizer {
	if config.NumChannels == 0 {
		config.NumChannels = 8
	}
	return &Synthesizer{
		config:      config.Stream,
		numChannels: clamp(config.NumChannels, 1, NumChannels),
		volume:      0.8,
	}
}

// SetVolume adjusts the global volume scaling for the underlying stream.
func (s *Synthesizer) SetVolume(v float64) {
	s.volume = clamp(v, 0, 1)
	if s.stream != nil {
		s.stream.SetVolume(s.volume)
	}
}

// LoadInstruments prepares the instruments (and samples) of the song
// for further use.
//
// The patterns don't really matter as this method
// is only interested in instruments.
func (s *Synthesizer) LoadInstruments(song *Song) error {
	instOnly := *song
	instOnly.Patterns = nil
	instOnly.Orders = nil
	instOnly.RestartPosition = 0
	instOnly.Speed = 1
	instOnly.Tempo = 125
	if err := instOnly.validate(); err != nil {
		return err
	}
	s.song = &instOnly
	s.stream = nil
	return nil
}

// PlayNote plays one or more notes up to the specified duration (in seconds).
// Using 0 for the duration will play it for several seconds.
//
// Every note is assigned to its own channel in the order of appearance,
// so the Channel field of the entries is ignored.
// The notes that don't fit the configured number of channels are dropped.
func (s *Synthesizer) PlayNote(duration float64, notes ...Entry) error {
	if s.song == nil {
		return errors.New("no instruments loaded")
	}

	numRows := 240
	if duration > 0 {
		numRows = 1 + int(duration*synthRowsPerSecond)
	}

	row := make([]Entry, 0, min(len(notes), s.numChannels))
	for i, e := range notes {
		if i >= s.numChannels {
			break
		}
		e.Channel = uint8(i)
		row = append(row, e)
	}

	song := *s.song
	song.Patterns = []Pattern{{Rows: make([][]Entry, numRows)}}
	song.Patterns[0].Rows[0] = row
	song.Orders = []uint8{0}

	stream, err := NewStream(&song, s.config)
	if err != nil {
		return err
	}
	stream.SetVolume(s.volume)
	s.stream = stream
	return nil
}

func (s *Synthesizer) Read(b []byte) (int, error) {
	if s.stream == nil {
		return 0, io.EOF
	}
	return s.stream.Read(b)
}

func (s *Synthesizer) Rewind() {
	if s.stream != nil {
		s.stream.Rewind()
	}
}

func (s *Synthesizer) Seek(offset int64, whence int) (int64, error) {
	if s.stream == nil {
		if offset == 0 && (whence == io.SeekStart || whence == io.SeekCurrent) {
			return 0, nil
		}
		return 0, errors.New("unsupported Seek call")
	}
	return s.stream.Seek(offset, whence)
}
