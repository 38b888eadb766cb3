// Package xmfile reads FastTracker II extended module (XM) files.
//
// The parser produces a raw module representation that mirrors the file layout.
// Use tracker.LoadXM to turn it into a playable song.
package xmfile

import (
	"fmt"
	"io"
)

// Module is a parsed XM file contents.
// This is a raw module format that is not optimized for anything.
type Module struct {
	Name string

	TrackerName string

	// Major and minor version numbers.
	// Version[0] is a major version.
	// Version[1] is a minor version.
	Version [2]byte

	SongLength      int
	RestartPosition int

	NumChannels    int
	NumPatterns    int
	NumInstruments int

	// 0 - Amiga
	// 1 - Linear
	Flags uint16

	DefaultTempo int
	DefaultBPM   int

	PatternOrder []uint8

	Patterns []Pattern

	// EmptyPattern is shared by all patterns that have no packed data.
	EmptyPattern Pattern

	// Notes is a table of unique pattern notes.
	// Pattern rows refer to the notes by their IDs.
	// Notes[0] is always an empty note.
	Notes []PatternNote

	Instruments []Instrument
}

// LinearSlides reports whether the module uses linear frequency slides.
func (m *Module) LinearSlides() bool { return m.Flags&1 != 0 }

type Pattern struct {
	Rows []PatternRow

	// IsEmpty is set for the patterns without packed data.
	IsEmpty bool
}

type PatternRow struct {
	// Notes holds one note ID per channel.
	Notes []uint16
}

type PatternNote struct {
	ID uint16

	// Note is 0 for "no note", 1-96 for C-0..B-7 and 97 for a key off.
	Note            uint8
	Instrument      uint8
	Volume          uint8
	EffectType      uint8
	EffectParameter uint8
}

func (n *PatternNote) IsEmpty() bool {
	return n.Note == 0 && n.Instrument == 0 && n.Volume == 0 && n.EffectType == 0 && n.EffectParameter == 0
}

type Instrument struct {
	Name string

	KeymapAssignments []byte
	EnvelopeVolume    []EnvelopePoint
	EnvelopePanning   []EnvelopePoint

	VolumeSustainPoint    uint8
	VolumeLoopStartPoint  uint8
	VolumeLoopEndPoint    uint8
	PanningSustainPoint   uint8
	PanningLoopStartPoint uint8
	PanningLoopEndPoint   uint8

	VolumeFlags  EnvelopeFlags
	PanningFlags EnvelopeFlags

	VibratoType  uint8
	VibratoSweep uint8
	VibratoDepth uint8
	VibratoRate  uint8

	VolumeFadeout int

	Samples []InstrumentSample
}

type EnvelopePoint struct {
	X uint16
	Y uint16
}

type InstrumentSample struct {
	Name string

	// Length, LoopStart and LoopLength are in bytes.
	Length     int
	LoopStart  int
	LoopLength int

	Volume int

	// Finetune is in 1/128 of a semitone units, [-128, 127].
	Finetune int

	TypeFlags uint8
	Panning   uint8

	// RelativeNote is a signed semitone offset.
	RelativeNote int

	Format SampleFormat

	// Data holds the delta-encoded sample bytes.
	Data []uint8
}

type SampleLoopType int

const (
	SampleLoopNone SampleLoopType = iota
	SampleLoopForward
	SampleLoopPingPong
	SampleLoopUnknown
)

func (s *InstrumentSample) LoopType() SampleLoopType {
	bits := s.TypeFlags & 0b11
	return SampleLoopType(bits)
}

func (s *InstrumentSample) Is16bits() bool {
	return (s.TypeFlags & (1 << 4)) != 0
}

type EnvelopeFlags int

func (f EnvelopeFlags) IsOn() bool {
	return f&(1<<0) != 0
}

func (f EnvelopeFlags) SustainEnabled() bool {
	return f&(1<<1) != 0
}

func (f EnvelopeFlags) LoopEnabled() bool {
	return f&(1<<2) != 0
}

type SampleFormat int

const (
	SampleFormatDeltaPacked SampleFormat = iota
	SampleFormatADPCM
)

type ParserConfig struct {
	// NeedStrings makes the parser keep the instrument and sample names.
	// The module name is always kept.
	NeedStrings bool
}

// Parser decodes XM files.
//
// A parser reuses its internal buffers between the runs,
// so a module returned by ParseFromBytes is only valid until
// the next ParseFromBytes call.
type Parser struct {
	impl *parser
}

func NewParser(config ParserConfig) *Parser {
	return &Parser{impl: newParser(config)}
}

// ParseFromBytes decodes the XM data.
// The returned module refers to the data memory (sample bytes, order table).
//
// A non-nil error is usually a *ParseError object.
func (p *Parser) ParseFromBytes(data []byte) (*Module, error) {
	if err := p.impl.Parse(data); err != nil {
		return nil, err
	}
	m := p.impl.module
	return &m, nil
}

// Parse reads XM file data and decodes it into a module.
//
// A non-nil error is usually a *ParseError object.
func Parse(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	p := NewParser(ParserConfig{NeedStrings: true})
	return p.ParseFromBytes(data)
}
