package tracker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/quasilyte/tracker/xmfile"
)

// xmC5Speed is a C-5 rate of an XM sample with no relative note and finetune.
// XM notes are an octave lower than the IT ones, so the 8363 Hz C-4 rate is doubled.
const xmC5Speed = 2 * 8363

// LoadXM converts a parsed XM module into a playable song.
//
// The XM effects are translated into the IT command set;
// the volume column is kept as is (the renderer decodes it
// using the XM rules).
func LoadXM(m *xmfile.Module) (*Song, error) {
	c := &xmImporter{module: m}
	if err := c.importSong(); err != nil {
		return nil, err
	}
	return c.result, nil
}

type xmImporter struct {
	module *xmfile.Module
	result *Song

	// sampleBase maps an instrument index to the index
	// of its first sample in the flat song samples list.
	sampleBase []int
}

func (c *xmImporter) importSong() error {
	m := c.module
	if m.NumChannels > NumChannels {
		return fmt.Errorf("too many channels: %d", m.NumChannels)
	}

	song := &Song{
		Name:            m.Name,
		Dialect:         DialectXM,
		Flags:           SongStereo | SongUseInstruments,
		GlobalVolume:    128,
		MixingVolume:    48,
		Speed:           m.DefaultTempo,
		Tempo:           m.DefaultBPM,
		PanSeparation:   128,
		RestartPosition: m.RestartPosition,
	}
	if m.LinearSlides() {
		song.Flags |= SongLinearSlides
	}
	for i := range song.ChannelPan {
		song.ChannelPan[i] = 32
		song.ChannelVolume[i] = 64
	}
	songLength := min(m.SongLength, len(m.PatternOrder))
	song.Orders = append([]uint8(nil), m.PatternOrder[:songLength]...)
	c.result = song

	if err := c.importInstruments(); err != nil {
		return err
	}
	c.importPatterns()

	return nil
}

func (c *xmImporter) importInstruments() error {
	m := c.module
	song := c.result

	c.sampleBase = make([]int, len(m.Instruments))
	song.Instruments = make([]Instrument, len(m.Instruments))
	for i := range m.Instruments {
		inst := &m.Instruments[i]
		c.sampleBase[i] = len(song.Samples)
		for j := range inst.Samples {
			s, err := c.importSample(inst, &inst.Samples[j])
			if err != nil {
				return fmt.Errorf("instrument %d sample %d: %w", i+1, j, err)
			}
			song.Samples = append(song.Samples, s)
		}
		song.Instruments[i] = c.importInstrument(i, inst)
	}

	return nil
}

func (c *xmImporter) importInstrument(index int, inst *xmfile.Instrument) Instrument {
	dst := Instrument{
		Name:         inst.Name,
		GlobalVolume: 128,
		DefaultPan:   128, // Use the sample pan
		NNA:          NNACut,
		Fadeout:      xmFadeout(inst.VolumeFadeout),
	}

	dst.VolumeEnvelope = xmEnvelope(inst.EnvelopeVolume, inst.VolumeFlags, 0,
		inst.VolumeSustainPoint, inst.VolumeLoopStartPoint, inst.VolumeLoopEndPoint)
	dst.PanEnvelope = xmEnvelope(inst.EnvelopePanning, inst.PanningFlags, -32,
		inst.PanningSustainPoint, inst.PanningLoopStartPoint, inst.PanningLoopEndPoint)

	base := c.sampleBase[index]
	for n := range dst.MapNote {
		dst.MapNote[n] = uint8(n)
		if n >= len(inst.KeymapAssignments) {
			continue
		}
		k := int(inst.KeymapAssignments[n])
		if k < len(inst.Samples) {
			dst.MapSample[n] = uint8(base + k + 1)
		}
	}

	return dst
}

// xmFadeout converts a fadeout step of a 65536 counter into a 1024 counter step.
func xmFadeout(v int) int {
	if v == 0 {
		return 0
	}
	return max(1, (v+32)>>6)
}

func xmEnvelope(points []xmfile.EnvelopePoint, flags xmfile.EnvelopeFlags, bias int, sustain, loopStart, loopEnd uint8) Envelope {
	var env Envelope
	if len(points) == 0 {
		return env
	}

	env.Nodes = make([]EnvelopeNode, len(points))
	for i, p := range points {
		env.Nodes[i] = EnvelopeNode{
			Tick:  int(p.X),
			Value: clamp(int(p.Y), 0, 64) + bias,
		}
	}

	if flags.IsOn() {
		env.Flags |= EnvelopeOn
	}
	last := len(points) - 1
	if flags.SustainEnabled() && int(sustain) <= last {
		env.Flags |= EnvelopeSustainLoop
		env.SustainStart = int(sustain)
		env.SustainEnd = int(sustain)
	}
	if flags.LoopEnabled() && loopStart <= loopEnd && int(loopEnd) <= last {
		env.Flags |= EnvelopeLoop
		env.LoopStart = int(loopStart)
		env.LoopEnd = int(loopEnd)
	}

	return env
}

func (c *xmImporter) importSample(inst *xmfile.Instrument, s *xmfile.InstrumentSample) (Sample, error) {
	dst := Sample{
		Name:          s.Name,
		DefaultVolume: clamp(s.Volume, 0, 64),
		DefaultPan:    128 + min(64, (int(s.Panning)+2)>>2),
		GlobalVolume:  64,

		// The XM auto-vibrato is an instrument property.
		VibratoSpeed:    int(inst.VibratoRate),
		VibratoDepth:    int(inst.VibratoDepth),
		VibratoRate:     int(inst.VibratoSweep),
		VibratoWaveform: int(inst.VibratoType),
	}

	pitch := float64(s.RelativeNote)*256 + float64(s.Finetune)*2
	dst.C5Speed = int(math.Round(xmC5Speed * math.Pow(PitchBase, pitch)))

	var err error
	switch {
	case s.Format == xmfile.SampleFormatADPCM:
		dst.Left, err = decodeXMADPCM(s.Data, s.Length)
	case s.Is16bits():
		dst.Left = decodeXMDelta16(s.Data)
	default:
		dst.Left = decodeXMDelta8(s.Data)
	}
	if err != nil {
		return dst, err
	}

	dst.Length = len(dst.Left)
	if dst.Length == 0 {
		return dst, nil
	}
	dst.Flags |= SampleExists

	loopStart := s.LoopStart
	loopEnd := s.LoopStart + s.LoopLength
	if s.Is16bits() && s.Format != xmfile.SampleFormatADPCM {
		loopStart /= 2
		loopEnd /= 2
	}
	loopEnd = min(loopEnd, dst.Length)
	if loopEnd <= loopStart {
		return dst, nil
	}
	switch s.LoopType() {
	case xmfile.SampleLoopForward:
		dst.Flags |= SampleLoop
	case xmfile.SampleLoopPingPong:
		dst.Flags |= SampleLoop | SamplePingPongLoop
	default:
		return dst, nil
	}
	dst.LoopStart = loopStart
	dst.LoopEnd = loopEnd

	return dst, nil
}

// Convert 8-bit and 16-bit samples into the 24-bit range.
// Also note that the sample data stores deltas while
// the result stores the absolute values.

func decodeXMDelta8(data []byte) []int32 {
	samples := make([]int32, len(data))
	v := int8(0)
	for i, delta := range data {
		v += int8(delta)
		samples[i] = int32(v) << 16
	}
	return samples
}

func decodeXMDelta16(data []byte) []int32 {
	samples := make([]int32, len(data)/2)
	v := int16(0)
	for i := range samples {
		v += int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = int32(v) << 8
	}
	return samples
}

// decodeXMADPCM decodes the 4-bit ModPlug ADPCM samples:
// a 16-byte delta table followed by the packed table indexes,
// low nibble first.
func decodeXMADPCM(data []byte, length int) ([]int32, error) {
	if len(data) < 16+(length+1)/2 {
		return nil, errors.New("truncated ADPCM data")
	}
	table := data[:16]
	packed := data[16:]
	samples := make([]int32, length)
	v := int8(0)
	for i := range samples {
		b := packed[i/2]
		if i%2 != 0 {
			b >>= 4
		}
		v += int8(table[b&0x0F])
		samples[i] = int32(v) << 16
	}
	return samples, nil
}

func (c *xmImporter) importPatterns() {
	m := c.module
	song := c.result

	song.Patterns = make([]Pattern, len(m.Patterns))
	for i := range m.Patterns {
		rawPat := &m.Patterns[i]
		pat := &song.Patterns[i]
		pat.Rows = make([][]Entry, len(rawPat.Rows))
		for j, row := range rawPat.Rows {
			var entries []Entry
			for ch, id := range row.Notes {
				if ch >= NumChannels || int(id) >= len(m.Notes) {
					continue
				}
				n := &m.Notes[id]
				if n.IsEmpty() {
					continue
				}
				e, ok := xmEntry(uint8(ch), n)
				if ok {
					entries = append(entries, e)
				}
			}
			pat.Rows[j] = entries
		}
	}
}

// xmEntry converts a single XM pattern note.
// It returns false if nothing is left after the conversion.
func xmEntry(ch uint8, n *xmfile.PatternNote) (Entry, bool) {
	e := Entry{Channel: ch}

	switch {
	case n.Note >= 1 && n.Note <= 96:
		e.Mask |= EntryNote
		e.Note = n.Note - 1
	case n.Note == 97:
		e.Mask |= EntryNote
		e.Note = NoteOff
	}

	if n.Instrument != 0 {
		e.Mask |= EntryInstrument
		e.Instrument = n.Instrument
	}

	if n.Volume >= 0x10 {
		e.Mask |= EntryVolPan
		e.VolPan = n.Volume
	}

	xmEffect(&e, n.EffectType, n.EffectParameter)

	return e, e.Mask != 0
}

// XM effect types; letters continue the hex digits.
const (
	xmEffectArpeggio = iota
	xmEffectPortamentoUp
	xmEffectPortamentoDown
	xmEffectTonePortamento
	xmEffectVibrato
	xmEffectVolslideTonePortamento
	xmEffectVolslideVibrato
	xmEffectTremolo
	xmEffectSetPanning
	xmEffectSampleOffset
	xmEffectVolumeSlide
	xmEffectJump
	xmEffectSetVolume
	xmEffectBreak
	xmEffectExtended
	xmEffectSetSpeed
	xmEffectSetGlobalVolume
	xmEffectGlobalVolumeSlide
	xmEffectKeyOff            = 'K' - 'A' + 10
	xmEffectSetEnvelopePos    = 'L' - 'A' + 10
	xmEffectPanningSlide      = 'P' - 'A' + 10
	xmEffectRetrigger         = 'R' - 'A' + 10
	xmEffectTremor            = 'T' - 'A' + 10
	xmEffectExtraFinePorta    = 'X' - 'A' + 10
)

func xmEffect(e *Entry, typ, v uint8) {
	set := func(effect Effect, value uint8) {
		e.Mask |= EntryEffect
		e.Effect = effect
		e.EffectValue = value
	}
	setS := func(cmd SCommand, x uint8) {
		set(EffectS, uint8(cmd)<<4|x&0x0F)
	}

	switch typ {
	case xmEffectArpeggio:
		if v != 0 {
			set(EffectArpeggio, v)
		}
	case xmEffectPortamentoUp:
		set(EffectXMPortamentoUp, v)
	case xmEffectPortamentoDown:
		set(EffectXMPortamentoDown, v)
	case xmEffectTonePortamento:
		set(EffectTonePortamento, v)
	case xmEffectVibrato:
		set(EffectVibrato, v)
	case xmEffectVolslideTonePortamento:
		set(EffectVolslideTonePortamento, xmVolslide(v))
	case xmEffectVolslideVibrato:
		set(EffectVolslideVibrato, xmVolslide(v))
	case xmEffectTremolo:
		set(EffectTremolo, v)
	case xmEffectSetPanning:
		set(EffectSetPanning, v)
	case xmEffectSampleOffset:
		set(EffectSetSampleOffset, v)
	case xmEffectVolumeSlide:
		set(EffectVolumeSlide, xmVolslide(v))
	case xmEffectJump:
		set(EffectJumpToOrder, v)
	case xmEffectSetVolume:
		set(EffectSetChannelVolume, v)
	case xmEffectBreak:
		// The row is stored as a BCD number.
		set(EffectBreakToRow, (v>>4)*10+v&0x0F)
	case xmEffectSetSpeed:
		switch {
		case v == 0:
			set(EffectSetSpeed, 0)
		case v < 0x20:
			set(EffectSetSpeed, v)
		default:
			set(EffectSetTempo, v)
		}
	case xmEffectSetGlobalVolume:
		set(EffectSetGlobalVolume, min(v, 64)*2)
	case xmEffectGlobalVolumeSlide:
		set(EffectGlobalVolumeSlide, xmVolslide(v))
	case xmEffectKeyOff:
		// Kxx is a delayed note off.
		e.Mask |= EntryNote
		e.Note = NoteOff
		if v != 0 {
			setS(SNoteDelay, v)
		}
	case xmEffectPanningSlide:
		set(EffectPanningSlide, v)
	case xmEffectRetrigger:
		set(EffectRetriggerNote, v)
	case xmEffectTremor:
		set(EffectTremor, v)
	case xmEffectExtraFinePorta:
		switch v >> 4 {
		case 1:
			set(EffectPortamentoUp, 0xE0|v&0x0F)
		case 2:
			set(EffectPortamentoDown, 0xE0|v&0x0F)
		}
	case xmEffectExtended:
		xmExtendedEffect(e, v, set, setS)
	}
}

func xmExtendedEffect(e *Entry, v uint8, set func(Effect, uint8), setS func(SCommand, uint8)) {
	x := v & 0x0F
	switch v >> 4 {
	case 0x1:
		set(EffectPortamentoUp, 0xF0|x)
	case 0x2:
		set(EffectPortamentoDown, 0xF0|x)
	case 0x3:
		setS(SSetGlissandoControl, x)
	case 0x4:
		setS(SVibratoWaveform, x)
	case 0x5:
		setS(SFinetune, x)
	case 0x6:
		setS(SPatternLoop, x)
	case 0x7:
		setS(STremoloWaveform, x)
	case 0x8:
		setS(SSetPan, x)
	case 0x9:
		set(EffectXMRetriggerNote, x)
	case 0xA:
		set(EffectXMFineVolslideUp, x)
	case 0xB:
		set(EffectXMFineVolslideDown, x)
	case 0xC:
		setS(SDelayedNoteCut, x)
	case 0xD:
		setS(SNoteDelay, x)
	case 0xE:
		setS(SPatternDelay, x)
	}
}

// xmVolslide drops the down part of a slide that has both nibbles set:
// XM gives the up part a priority.
func xmVolslide(v uint8) uint8 {
	if v&0xF0 != 0 {
		return v & 0xF0
	}
	return v
}
