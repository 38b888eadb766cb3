package tracker

import (
	"errors"
	"fmt"
)

const (
	// NumChannels is the number of pattern channels a song can address.
	NumChannels = 64

	// NumNNAVoices is the capacity of the background voice pool.
	NumNNAVoices = 192

	// NumVoices is the maximum number of voices alive at the same time.
	NumVoices = NumChannels + NumNNAVoices
)

// Special note values.
const (
	NoteCut uint8 = 254
	NoteOff uint8 = 255
)

// Special order values.
const (
	OrderSkip uint8 = 254
	OrderEnd  uint8 = 255
)

// PanSurround is a channel pan value that enables the surround mode.
const PanSurround = 100

// Pitch conversion constants.
const (
	// SemitoneBase is the frequency ratio of a single semitone.
	SemitoneBase = 1.059463094359295309843105314939748495817

	// PitchBase is the frequency ratio of 1/256 of a semitone.
	PitchBase = 1.000225659305069791926712241547647863626

	// AmigaDivisor converts period slides into frequency deltas.
	AmigaDivisor = 4.0 * 3546895.0
)

// ErrInvalidSong is returned for songs that can't be played safely.
var ErrInvalidSong = errors.New("invalid song")

// Dialect selects the format-specific rules the renderer follows.
//
// S3M songs are played as IT songs with the SongOldEffects flag.
type Dialect uint8

const (
	DialectIT Dialect = iota
	DialectXM
	DialectMOD
)

func (d Dialect) String() string {
	switch d {
	case DialectIT:
		return "IT"
	case DialectXM:
		return "XM"
	case DialectMOD:
		return "MOD"
	default:
		return "Unknown"
	}
}

type SongFlags uint8

const (
	SongStereo SongFlags = 1 << iota
	SongUseInstruments
	SongLinearSlides
	SongOldEffects
	SongCompatibleGxx
)

func (f SongFlags) Contains(v SongFlags) bool { return f&v != 0 }

// Song is a fully loaded tracker module.
//
// A song is never modified by the renderer, so it can be shared
// by any number of renderers (even concurrently).
type Song struct {
	Name string

	Dialect Dialect
	Flags   SongFlags

	// GlobalVolume is an initial global volume in [0, 128].
	GlobalVolume int

	// MixingVolume is a master volume in [0, 128].
	MixingVolume int

	// Speed is an initial number of ticks per row.
	// A zero value is treated as 6.
	Speed int

	// Tempo is an initial tempo (tick rate is tempo*2/5 Hz).
	// A zero value is treated as 125.
	Tempo int

	PanSeparation int

	// ChannelPan holds initial channel pans in [0, 64].
	// PanSurround enables the surround mode.
	// When the bit 7 is set, the channel is muted.
	ChannelPan [NumChannels]uint8

	// ChannelVolume holds initial channel volumes in [0, 64].
	ChannelVolume [NumChannels]uint8

	// Orders is a play list of pattern indexes.
	// OrderSkip entries are ignored; OrderEnd restarts the song.
	Orders []uint8

	RestartPosition int

	Patterns    []Pattern
	Instruments []Instrument
	Samples     []Sample

	// MIDI holds the song MIDI macros.
	// A nil value means "use DefaultMIDIMacros".
	MIDI *MIDIMacros
}

func (s *Song) wasXM() bool { return s.Dialect != DialectIT }

func (s *Song) wasMOD() bool { return s.Dialect == DialectMOD }

type Pattern struct {
	Rows [][]Entry
}

type EntryMask uint8

const (
	EntryNote EntryMask = 1 << iota
	EntryInstrument
	EntryVolPan
	EntryEffect
)

func (m EntryMask) Contains(v EntryMask) bool { return m&v != 0 }

// Entry is a single pattern cell.
// Only the fields selected by the Mask are meaningful.
type Entry struct {
	Channel uint8
	Mask    EntryMask

	// Note is in [0, 119]; NoteCut and NoteOff are special.
	Note uint8

	// Instrument is a 1-based instrument (or sample) index.
	Instrument uint8

	// VolPan is a volume column byte; its encoding depends on the dialect.
	VolPan uint8

	Effect      Effect
	EffectValue uint8
}

type NewNoteAction uint8

const (
	NNACut NewNoteAction = iota
	NNAContinue
	NNANoteOff
	NNAFade
)

type Instrument struct {
	Name string

	VolumeEnvelope Envelope
	PanEnvelope    Envelope
	PitchEnvelope  Envelope

	// Fadeout is subtracted from the 1024 fadeout counter every tick.
	Fadeout int

	NNA NewNoteAction

	// GlobalVolume is in [0, 128].
	GlobalVolume int

	// DefaultPan is applied when it's <= 64.
	DefaultPan int

	PitchPanCenter     int
	PitchPanSeparation int

	// FilterCutoff and FilterResonance are applied when the bit 7 is set.
	FilterCutoff    int
	FilterResonance int

	MapNote   [120]uint8
	MapSample [120]uint8
}

type EnvelopeFlags uint8

const (
	EnvelopeOn EnvelopeFlags = 1 << iota
	EnvelopeLoop
	EnvelopeSustainLoop
	EnvelopePitchIsFilter
)

func (f EnvelopeFlags) Contains(v EnvelopeFlags) bool { return f&v != 0 }

// Envelope is a list of nodes with optional loop and sustain loop.
// Loop fields are node indexes.
type Envelope struct {
	Flags EnvelopeFlags

	Nodes []EnvelopeNode

	LoopStart    int
	LoopEnd      int
	SustainStart int
	SustainEnd   int
}

type EnvelopeNode struct {
	Tick int

	// Value is in [0, 64] for volume envelopes
	// and in [-32, 32] for pan and pitch envelopes.
	Value int
}

type SampleFlags uint8

const (
	SampleExists SampleFlags = 1 << iota
	SampleStereo
	SampleLoop
	SampleSustainLoop
	SamplePingPongLoop
	SamplePingPongSustainLoop
)

func (f SampleFlags) Contains(v SampleFlags) bool { return f&v != 0 }

type Sample struct {
	Name string

	Flags SampleFlags

	Length int

	LoopStart int
	LoopEnd   int

	SustainLoopStart int
	SustainLoopEnd   int

	// C5Speed is a sample rate that plays the middle C.
	C5Speed int

	// DefaultVolume is in [0, 64].
	DefaultVolume int

	// DefaultPan in [128, 192] sets the channel pan to DefaultPan-128.
	DefaultPan int

	// GlobalVolume is in [0, 64].
	GlobalVolume int

	VibratoSpeed    int
	VibratoDepth    int
	VibratoRate     int
	VibratoWaveform int

	// Left and Right hold the PCM data in a 24-bit range.
	// Right is only used for stereo samples.
	Left  []int32
	Right []int32
}

// MIDIMacros holds the macros sent by the Zxx and SFx effects.
type MIDIMacros struct {
	SF [16]MIDIMacro
	Z  [128]MIDIMacro
}

type MIDIMacro struct {
	Bytes []byte

	// ZMask has a bit i set if Bytes[i] should be replaced
	// with the effect parameter.
	ZMask uint16
}

func (s *Song) midi() *MIDIMacros {
	if s.MIDI != nil {
		return s.MIDI
	}
	return &defaultMIDI
}

func (s *Song) validate() error {
	for i := range s.Patterns {
		for _, row := range s.Patterns[i].Rows {
			for _, e := range row {
				if int(e.Channel) >= NumChannels {
					return fmt.Errorf("%w: pattern %d: channel %d is out of range", ErrInvalidSong, i, e.Channel)
				}
			}
		}
	}

	for i := range s.Instruments {
		inst := &s.Instruments[i]
		envelopes := [...]*Envelope{&inst.VolumeEnvelope, &inst.PanEnvelope, &inst.PitchEnvelope}
		for _, env := range envelopes {
			if err := env.validate(); err != nil {
				return fmt.Errorf("%w: instrument %d: %v", ErrInvalidSong, i+1, err)
			}
		}
	}

	for i := range s.Samples {
		smp := &s.Samples[i]
		if !smp.Flags.Contains(SampleExists) {
			continue
		}
		if smp.Length > len(smp.Left) || (smp.Flags.Contains(SampleStereo) && smp.Length > len(smp.Right)) {
			return fmt.Errorf("%w: sample %d: length %d exceeds the data", ErrInvalidSong, i+1, smp.Length)
		}
		if smp.Flags.Contains(SampleLoop) && !(0 <= smp.LoopStart && smp.LoopStart < smp.LoopEnd && smp.LoopEnd <= smp.Length) {
			return fmt.Errorf("%w: sample %d: bad loop [%d, %d)", ErrInvalidSong, i+1, smp.LoopStart, smp.LoopEnd)
		}
		if smp.Flags.Contains(SampleSustainLoop) && !(0 <= smp.SustainLoopStart && smp.SustainLoopStart < smp.SustainLoopEnd && smp.SustainLoopEnd <= smp.Length) {
			return fmt.Errorf("%w: sample %d: bad sustain loop [%d, %d)", ErrInvalidSong, i+1, smp.SustainLoopStart, smp.SustainLoopEnd)
		}
	}

	return nil
}

func (e *Envelope) validate() error {
	if !e.Flags.Contains(EnvelopeOn) {
		return nil
	}
	n := len(e.Nodes)
	if n == 0 {
		return errors.New("enabled envelope has no nodes")
	}
	if e.Flags.Contains(EnvelopeLoop) && !(0 <= e.LoopStart && e.LoopStart <= e.LoopEnd && e.LoopEnd < n) {
		return fmt.Errorf("bad envelope loop [%d, %d]", e.LoopStart, e.LoopEnd)
	}
	if e.Flags.Contains(EnvelopeSustainLoop) && !(0 <= e.SustainStart && e.SustainStart <= e.SustainEnd && e.SustainEnd < n) {
		return fmt.Errorf("bad envelope sustain loop [%d, %d]", e.SustainStart, e.SustainEnd)
	}
	return nil
}
