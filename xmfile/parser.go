package xmfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

type parser struct {
	// Data holds the XM file input data bytes.
	data []byte

	// Offset is our current position inside the data.
	offset int

	// Module holds the results of XM parsing.
	module Module

	noteIDs slab[uint16]
	rows    slab[PatternRow]

	noteSet map[uint64]uint16

	scratchEnvelopePoints [24]EnvelopePoint

	config ParserConfig

	needsReset bool

	// These fields below are needed for better error reporting.
	stage         string
	stageIndex    int
	subStage      string
	subStageIndex int
}

func newParser(config ParserConfig) *parser {
	p := &parser{
		noteSet: make(map[uint64]uint16, 512),
		config:  config,
	}
	p.module.Notes = make([]PatternNote, 0, 512)
	p.noteIDs = newSlab[uint16](2048 * 8)
	p.rows = newSlab[PatternRow](64 * 20)
	return p
}

func (p *parser) Parse(data []byte) error {
	p.data = data
	p.reset()
	p.needsReset = true
	return p.parse()
}

func (p *parser) reset() {
	if !p.needsReset {
		// This will only happen during the first run of the parser.
		return
	}

	p.offset = 0
	for k := range p.noteSet {
		delete(p.noteSet, k)
	}
	p.noteIDs.Reset()
	p.rows.Reset()

	// Now reset the module.
	{
		notes := p.module.Notes[:0]
		patterns := p.module.Patterns[:0]
		instruments := p.module.Instruments[:0]
		patternOrder := p.module.PatternOrder[:0]
		p.module = Module{
			Notes:        notes,
			Patterns:     patterns,
			Instruments:  instruments,
			PatternOrder: patternOrder,
		}
	}
}

func (p *parser) startStage(name string) {
	p.stage = name
	p.stageIndex = -1
	p.subStage = ""
	p.subStageIndex = -1
}

func (p *parser) startSubStage(name string) {
	p.subStage = name
	p.subStageIndex = -1
}

func (p *parser) formatStage() string {
	var b strings.Builder
	b.Grow(len(p.stage) + len(p.subStage) + 16)
	b.WriteString(p.stage)
	if p.stageIndex >= 0 {
		fmt.Fprintf(&b, "[%d]", p.stageIndex)
	}
	if p.subStage != "" {
		b.WriteByte('.')
		b.WriteString(p.subStage)
		if p.subStageIndex >= 0 {
			fmt.Fprintf(&b, "[%d]", p.subStageIndex)
		}
	}
	return b.String()
}

func (p *parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{
		Stage:   p.formatStage(),
		Message: fmt.Sprintf(format, args...),
		Offset:  p.offset,
	}
}

func (p *parser) dataBytesRemaining() int {
	return len(p.data) - p.offset
}

func (p *parser) sliceData(l int) []byte {
	return p.data[p.offset : p.offset+l]
}

func (p *parser) skip(l int, what string) {
	if p.dataBytesRemaining() < l {
		panic(p.errorf("unexpected EOF while reading %s", what))
	}
	p.offset += l
}

func (p *parser) read(l int, what string) []byte {
	if p.dataBytesRemaining() < l {
		panic(p.errorf("unexpected EOF while reading %s", what))
	}
	b := p.sliceData(l)
	p.offset += l
	return b
}

func (p *parser) readOptionalString(l int, what string) string {
	if !p.config.NeedStrings {
		p.skip(l, what)
		return ""
	}
	return p.readString(l, what)
}

func (p *parser) readString(l int, what string) string {
	if p.dataBytesRemaining() < l {
		panic(p.errorf("unexpected EOF while reading %s", what))
	}
	b := p.sliceData(l)
	p.offset += l
	// The strings are NUL-padded.
	if i := bytes.IndexByte(b, 0); i != -1 {
		b = b[:i]
	}
	return string(b)
}

func (p *parser) readDword(what string) int32 {
	if p.dataBytesRemaining() < 4 {
		panic(p.errorf("unexpected EOF while reading %s", what))
	}
	v := binary.LittleEndian.Uint32(p.sliceData(4))
	p.offset += 4
	return int32(v)
}

func (p *parser) readWord(what string) int16 {
	if p.dataBytesRemaining() < 2 {
		panic(p.errorf("unexpected EOF while reading %s", what))
	}
	v := binary.LittleEndian.Uint16(p.sliceData(2))
	p.offset += 2
	return int16(v)
}

func (p *parser) readByte(what string) uint8 {
	if p.dataBytesRemaining() < 1 {
		panic(p.errorf("unexpected EOF while reading %s", what))
	}
	b := p.data[p.offset]
	p.offset++
	return b
}

func (p *parser) parse() (err error) {
	defer func() {
		rv := recover()
		if rv != nil {
			if panicErr, ok := rv.(*ParseError); ok {
				err = panicErr
			} else {
				panic(rv)
			}
		}
	}()

	p.parseModule()

	return err // See the deferred call aboves
}

func (p *parser) parseModule() {
	// Add an empty note (ID=0).
	p.module.Notes = append(p.module.Notes, PatternNote{})
	p.noteSet[p.noteHash(PatternNote{})] = 0

	p.startStage("header")
	p.parseHeader()

	p.startStage("pattern")
	for i := 0; i < p.module.NumPatterns; i++ {
		p.stageIndex = i
		pat := p.parsePattern()
		p.module.Patterns = append(p.module.Patterns, pat)
	}

	p.startStage("instrument")
	for i := 0; i < p.module.NumInstruments; i++ {
		p.stageIndex = i
		inst := p.parseInstrument()
		p.module.Instruments = append(p.module.Instruments, inst)
	}
}

func (p *parser) parseHeader() {
	idText := p.readString(17, "id text")
	if !strings.EqualFold(idText, "extended module: ") {
		panic(p.errorf("unexpected ID text: %q", idText))
	}

	p.module.Name = strings.TrimSpace(p.readString(20, "module name"))

	if b := p.readByte("magic byte"); b != 0x1a {
		panic(p.errorf("expected 0x1a, found 0x%0x", b))
	}

	p.module.TrackerName = strings.TrimSpace(p.readString(20, "tracker name"))

	version := p.readWord("version")
	p.module.Version[0] = uint8(version >> 8)
	p.module.Version[1] = uint8(version & 0xff)

	headerSize := p.readDword("header size") - 4
	if headerSize < 16 || p.dataBytesRemaining() < int(headerSize) {
		panic(p.errorf("invalid header size: %d", headerSize))
	}
	offset := p.offset + int(headerSize)

	p.module.SongLength = int(p.readWord("song length"))
	if p.module.SongLength <= 0 || p.module.SongLength > 256 {
		panic(p.errorf("invalid song length value: %d", p.module.SongLength))
	}

	p.module.RestartPosition = int(p.readWord("restart position"))
	if p.module.RestartPosition > p.module.SongLength {
		p.module.RestartPosition = 0
	}

	p.module.NumChannels = int(p.readWord("number of channels"))
	if p.module.NumChannels <= 0 || p.module.NumChannels > 64 {
		panic(p.errorf("invalid number of channels: %d", p.module.NumChannels))
	}
	p.module.NumPatterns = int(p.readWord("number of patterns"))
	if p.module.NumPatterns < 0 || p.module.NumPatterns > 256 {
		panic(p.errorf("invalid number of patterns: %d", p.module.NumPatterns))
	}
	p.module.NumInstruments = int(p.readWord("number of instruments"))
	if p.module.NumInstruments < 0 || p.module.NumInstruments > 128 {
		panic(p.errorf("invalid number of instruments: %d", p.module.NumInstruments))
	}

	p.module.Flags = uint16(p.readWord("flags"))
	p.module.DefaultTempo = int(p.readWord("default tempo"))
	p.module.DefaultBPM = int(p.readWord("default bpm"))

	p.module.PatternOrder = p.read(p.module.SongLength, "pattern order table")
	if p.offset > offset {
		panic(p.errorf("pattern order table exceeds the header size"))
	}

	p.offset = offset
}

func (p *parser) parsePattern() Pattern {
	var pat Pattern
	patternHeaderLength := int(p.readDword("pattern header length"))
	if patternHeaderLength < 9 {
		panic(p.errorf("invalid pattern header length: %d", patternHeaderLength))
	}
	if packingType := p.readByte("packing type"); packingType != 0 {
		panic(p.errorf("unexpected packing type: %d", packingType))
	}
	numRows := int(uint16(p.readWord("number of rows")))
	if numRows <= 0 || numRows > 256 {
		panic(p.errorf("invalid number of rows: %d", numRows))
	}
	packedPatternDataSize := int(uint16(p.readWord("packed pattern data size")))

	// Skip is usually 0, but the specs says we should respect the stated header size.
	p.skip(patternHeaderLength-9, "skip pattern metadata")

	if p.dataBytesRemaining() < packedPatternDataSize {
		panic(p.errorf("incomplete packed pattern data"))
	}
	offset := p.offset + packedPatternDataSize

	if packedPatternDataSize == 0 {
		// Every note of an empty pattern is a zero value (ID=0),
		// so all empty patterns of the same size can share their rows.
		if numRows == len(p.module.EmptyPattern.Rows) {
			return p.module.EmptyPattern
		}
		pat.IsEmpty = true
		pat.Rows = p.rows.Alloc(numRows)
		for i := range pat.Rows {
			// Slab memory may hold the IDs of a previous run.
			pat.Rows[i].Notes = p.noteIDs.Alloc(p.module.NumChannels)
			clear(pat.Rows[i].Notes)
		}
		if p.module.EmptyPattern.Rows == nil {
			p.module.EmptyPattern = pat
		}
		return pat
	}

	pat.Rows = p.rows.Alloc(numRows)
	for i := range pat.Rows {
		pat.Rows[i].Notes = p.noteIDs.Alloc(p.module.NumChannels)
		p.subStage = "row"
		p.subStageIndex = i
		for j := 0; j < p.module.NumChannels; j++ {
			var note PatternNote
			b := p.readByte("first note byte")
			readNote := true
			readInstrument := true
			readVolume := true
			readEffectType := true
			readEffectParameter := true
			if b&0b10000000 != 0 {
				// When MSB is set, an alternative (compact) scheme is used for this note.
				// Some bytes may be missing (they default to 0).
				readNote = b&(1<<0) != 0
				readInstrument = b&(1<<1) != 0
				readVolume = b&(1<<2) != 0
				readEffectType = b&(1<<3) != 0
				readEffectParameter = b&(1<<4) != 0
			} else {
				// The first byte was a note.
				readNote = false
				note.Note = b
			}
			if readNote {
				note.Note = p.readByte("pattern note")
			}
			if readInstrument {
				note.Instrument = p.readByte("pattern instrument")
			}
			if readVolume {
				note.Volume = p.readByte("pattern volume")
			}
			if readEffectType {
				note.EffectType = p.readByte("effect type")
			}
			if readEffectParameter {
				note.EffectParameter = p.readByte("effect type parameter")
			}

			pat.Rows[i].Notes[j] = p.internNote(note)
		}
	}
	p.subStage = ""
	p.subStageIndex = -1

	if p.offset < offset {
		panic(p.errorf("found %d redundant bytes in the pattern data", offset-p.offset))
	}
	if p.offset > offset {
		panic(p.errorf("consumed %d extra bytes of the pattern data", p.offset-offset))
	}

	return pat
}

func (p *parser) parseInstrument() Instrument {
	var inst Instrument
	instrumentHeaderSize := p.readDword("instrument header size") - 4
	if instrumentHeaderSize < 0 || p.dataBytesRemaining() < int(instrumentHeaderSize) {
		panic(p.errorf("incomplete instrument header data"))
	}
	offset := p.offset + int(instrumentHeaderSize)

	inst.Name = p.readOptionalString(22, "instrument name")

	p.skip(1, "instrument type")

	numSamples := int(p.readWord("number of samples"))
	if numSamples < 0 || numSamples > 16 {
		panic(p.errorf("invalid number of samples: %d", numSamples))
	}
	if numSamples == 0 {
		if p.offset > offset {
			panic(p.errorf("consumed %d extra bytes", p.offset-offset))
		}
		p.offset = offset
		return inst
	}

	p.skip(4, "instrument sample header size")
	inst.KeymapAssignments = p.read(96, "instrument samples keymap assignments")

	inst.EnvelopeVolume = p.scratchEnvelopePoints[:12]
	for i := range inst.EnvelopeVolume {
		x := uint16(p.readWord("envelope volume point x"))
		y := uint16(p.readWord("envelope volume point y"))
		inst.EnvelopeVolume[i] = EnvelopePoint{X: x, Y: y}
	}
	inst.EnvelopePanning = p.scratchEnvelopePoints[12:]
	for i := range inst.EnvelopePanning {
		x := uint16(p.readWord("envelope panning point x"))
		y := uint16(p.readWord("envelope panning point y"))
		inst.EnvelopePanning[i] = EnvelopePoint{X: x, Y: y}
	}

	numVolumePoints := p.readByte("number of volume points")
	if numVolumePoints > 12 {
		numVolumePoints = 12
	}
	if numVolumePoints != 0 {
		allocated := make([]EnvelopePoint, numVolumePoints)
		copy(allocated, inst.EnvelopeVolume)
		inst.EnvelopeVolume = allocated
	} else {
		inst.EnvelopeVolume = nil
	}

	numPanningPoints := p.readByte("number of panning points")
	if numPanningPoints > 12 {
		numPanningPoints = 12
	}
	if numPanningPoints != 0 {
		allocated := make([]EnvelopePoint, numPanningPoints)
		copy(allocated, inst.EnvelopePanning)
		inst.EnvelopePanning = allocated
	} else {
		inst.EnvelopePanning = nil
	}

	inst.VolumeSustainPoint = p.readByte("volume sustain point")
	inst.VolumeLoopStartPoint = p.readByte("volume loop start point")
	inst.VolumeLoopEndPoint = p.readByte("volume loop end point")
	inst.PanningSustainPoint = p.readByte("panning sustain point")
	inst.PanningLoopStartPoint = p.readByte("panning loop start point")
	inst.PanningLoopEndPoint = p.readByte("panning loop end point")

	inst.VolumeFlags = EnvelopeFlags(p.readByte("volume type"))
	inst.PanningFlags = EnvelopeFlags(p.readByte("panning type"))

	inst.VibratoType = p.readByte("vibrato type")
	inst.VibratoSweep = p.readByte("vibrato sweep")
	inst.VibratoDepth = p.readByte("vibrato depth")
	inst.VibratoRate = p.readByte("vibrato rate")

	inst.VolumeFadeout = int(p.readWord("volume fadeout"))

	if p.offset > offset {
		panic(p.errorf("consumed %d extra bytes", p.offset-offset))
	}
	p.offset = offset

	inst.Samples = make([]InstrumentSample, numSamples)
	p.startSubStage("sample")
	for i := range inst.Samples {
		p.subStageIndex = i
		sample := &inst.Samples[i]
		p.parseInstrumentSampleHeader(sample)
	}

	p.startSubStage("sampledata")
	for i := range inst.Samples {
		p.subStageIndex = i
		sample := &inst.Samples[i]
		if sample.Length == 0 {
			continue
		}
		n := sample.Length
		if sample.Format == SampleFormatADPCM {
			// A 16-byte delta table followed by 4-bit indexes.
			n = 16 + (sample.Length+1)/2
		}
		sample.Data = p.read(n, "sample data")
	}

	return inst
}

func (p *parser) parseInstrumentSampleHeader(sample *InstrumentSample) {
	sampleLength := int(p.readDword("sample length"))
	if sampleLength < 0 {
		panic(p.errorf("invalid sample length: %d", sampleLength))
	}

	sample.Length = sampleLength
	sample.LoopStart = int(p.readDword("sample loop start"))
	sample.LoopLength = int(p.readDword("sample loop length"))
	sample.Volume = int(p.readByte("sample volume"))
	sample.Finetune = int(int8(p.readByte("sample finetune")))
	sample.TypeFlags = p.readByte("sample type")
	sample.Panning = p.readByte("sample panning")
	sample.RelativeNote = int(int8(p.readByte("sample relative note number")))

	format := p.readByte("sample encoding")
	switch format {
	case 0:
		sample.Format = SampleFormatDeltaPacked
	case 0xAD:
		sample.Format = SampleFormatADPCM
	default:
		panic(p.errorf("unknown sample encoding scheme (%#02x)", format))
	}

	sample.Name = p.readOptionalString(22, "sample name")
}

func (p *parser) noteHash(n PatternNote) uint64 {
	return (uint64(n.Note) << 0) |
		(uint64(n.Instrument) << 8) |
		(uint64(n.Volume) << 16) |
		(uint64(n.EffectType) << 24) |
		(uint64(n.EffectParameter) << 32)
}

func (p *parser) internNote(n PatternNote) uint16 {
	hash := p.noteHash(n)
	if id, ok := p.noteSet[hash]; ok {
		return id
	}

	id := uint16(len(p.module.Notes))
	n.ID = id
	p.module.Notes = append(p.module.Notes, n)
	p.noteSet[hash] = id

	return id
}
