package xmfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"slices"
	"strings"
	"testing"
)

// xmWriter assembles XM files for the tests.
// Marks remember the offsets of the fields that tests corrupt.
type xmWriter struct {
	data  []byte
	marks map[string]int
}

func (w *xmWriter) mark(name string) { w.marks[name] = len(w.data) }

func (w *xmWriter) bytes(b ...byte) { w.data = append(w.data, b...) }

func (w *xmWriter) zeros(n int) { w.data = append(w.data, make([]byte, n)...) }

func (w *xmWriter) str(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	w.data = append(w.data, b...)
}

func (w *xmWriter) word(v int) {
	w.data = binary.LittleEndian.AppendUint16(w.data, uint16(v))
}

func (w *xmWriter) dword(v int) {
	w.data = binary.LittleEndian.AppendUint32(w.data, uint32(v))
}

type testSampleHeader struct {
	name      string
	length    int
	loopStart int
	loopLen   int
	volume    int
	finetune  int8
	typeFlags uint8
	panning   uint8
	relNote   int8
	encoding  uint8
}

func (w *xmWriter) sampleHeader(s testSampleHeader) {
	w.dword(s.length)
	w.dword(s.loopStart)
	w.dword(s.loopLen)
	w.bytes(uint8(s.volume), uint8(s.finetune), s.typeFlags, s.panning, uint8(s.relNote))
	w.mark("encoding " + s.name)
	w.bytes(s.encoding)
	w.str(s.name, 22)
}

// packedPattern is two rows of two channels:
//
//	C-4 01 v40 F06 | ...
//	=== 01 ... ... | C-4 01 v40 F06
var packedPattern = []byte{
	49, 1, 0x40, 0x0F, 0x06,
	0x80,
	0x83, 97, 1,
	49, 1, 0x40, 0x0F, 0x06,
}

func buildTestXM() *xmWriter {
	w := &xmWriter{marks: map[string]int{}}

	w.str("Extended Module: ", 17)
	w.str("test song   ", 20)
	w.mark("magic")
	w.bytes(0x1a)
	w.str("builder", 20)
	w.word(0x0104)
	w.dword(276)
	w.mark("song length")
	w.word(3)
	w.word(1) // restart position
	w.mark("channels")
	w.word(2)
	w.word(3) // patterns
	w.word(3) // instruments
	w.word(1) // linear slides
	w.word(6)
	w.word(125)
	orders := make([]byte, 256)
	copy(orders, []byte{0, 1, 2})
	w.bytes(orders...)

	w.mark("pattern 0")
	w.dword(9)
	w.mark("packing type")
	w.bytes(0)
	w.word(2)
	w.mark("packed size")
	w.word(len(packedPattern))
	w.bytes(packedPattern...)
	for range 2 {
		w.dword(9)
		w.bytes(0)
		w.word(2)
		w.word(0)
	}

	// Instrument 1: an envelope and two samples.
	w.dword(263)
	w.str("lead", 22)
	w.bytes(0)
	w.word(2)
	w.dword(40)
	keymap := make([]byte, 96)
	for i := 48; i < 96; i++ {
		keymap[i] = 1
	}
	w.bytes(keymap...)
	volumePoints := [][2]int{{0, 64}, {10, 32}, {20, 0}}
	for i := range 12 {
		if i < len(volumePoints) {
			w.word(volumePoints[i][0])
			w.word(volumePoints[i][1])
		} else {
			w.dword(0)
		}
	}
	w.zeros(12 * 4) // panning points
	w.bytes(3, 0)   // number of points
	w.bytes(1, 0, 2, 0, 0, 0)
	w.bytes(0b011, 0) // volume type, panning type
	w.bytes(1, 2, 3, 4)
	w.word(0x100)
	w.zeros(22)

	w.sampleHeader(testSampleHeader{
		name:      "kick",
		length:    4,
		loopStart: 1,
		loopLen:   2,
		volume:    48,
		finetune:  -16,
		typeFlags: 0x01,
		panning:   0x80,
		relNote:   12,
	})
	w.sampleHeader(testSampleHeader{
		name:      "pad",
		length:    8,
		loopStart: 2,
		loopLen:   4,
		volume:    64,
		typeFlags: 0x12,
		panning:   0x40,
	})
	w.bytes(0x10, 0x10, 0xF0, 0x00)
	for _, v := range []int16{100, 100, -50, 0} {
		w.word(int(uint16(v)))
	}

	// Instrument 2: no samples.
	w.dword(29)
	w.str("empty", 22)
	w.bytes(0)
	w.word(0)

	// Instrument 3: a single ADPCM sample.
	w.dword(263)
	w.str("adpcm", 22)
	w.bytes(0)
	w.word(1)
	w.dword(40)
	w.zeros(96 + 48 + 48)
	w.bytes(0, 0)
	w.zeros(6)
	w.bytes(0, 0)
	w.zeros(4)
	w.word(0)
	w.zeros(22)
	w.sampleHeader(testSampleHeader{
		name:     "crunch",
		length:   5,
		volume:   32,
		encoding: 0xAD,
	})
	w.mark("adpcm data")
	w.zeros(16 + 3)

	return w
}

func TestParse(t *testing.T) {
	w := buildTestXM()
	m, err := Parse(bytes.NewReader(w.data))
	if err != nil {
		t.Fatal(err)
	}

	if m.Name != "test song" {
		t.Errorf("name: have %q, want %q", m.Name, "test song")
	}
	if m.TrackerName != "builder" {
		t.Errorf("tracker name: have %q, want %q", m.TrackerName, "builder")
	}
	if m.Version != [2]byte{1, 4} {
		t.Errorf("version: have %v, want [1 4]", m.Version)
	}
	if m.SongLength != 3 || m.RestartPosition != 1 || m.NumChannels != 2 {
		t.Errorf("header: length=%d restart=%d channels=%d", m.SongLength, m.RestartPosition, m.NumChannels)
	}
	if !m.LinearSlides() || m.DefaultTempo != 6 || m.DefaultBPM != 125 {
		t.Errorf("header: flags=%d tempo=%d bpm=%d", m.Flags, m.DefaultTempo, m.DefaultBPM)
	}
	if !slices.Equal(m.PatternOrder, []uint8{0, 1, 2}) {
		t.Errorf("orders: have %v", m.PatternOrder)
	}

	wantNotes := []PatternNote{
		{},
		{ID: 1, Note: 49, Instrument: 1, Volume: 0x40, EffectType: 0x0F, EffectParameter: 0x06},
		{ID: 2, Note: 97, Instrument: 1},
	}
	if !slices.Equal(m.Notes, wantNotes) {
		t.Fatalf("notes:\nhave: %v\nwant: %v", m.Notes, wantNotes)
	}
	if !m.Notes[0].IsEmpty() || m.Notes[1].IsEmpty() {
		t.Error("IsEmpty mismatch")
	}

	if len(m.Patterns) != 3 {
		t.Fatalf("have %d patterns, want 3", len(m.Patterns))
	}
	pat := m.Patterns[0]
	if pat.IsEmpty || len(pat.Rows) != 2 {
		t.Fatalf("pattern 0: empty=%v rows=%d", pat.IsEmpty, len(pat.Rows))
	}
	if !slices.Equal(pat.Rows[0].Notes, []uint16{1, 0}) || !slices.Equal(pat.Rows[1].Notes, []uint16{2, 1}) {
		t.Fatalf("pattern 0 rows: %v %v", pat.Rows[0].Notes, pat.Rows[1].Notes)
	}
	for i := 1; i < 3; i++ {
		p := m.Patterns[i]
		if !p.IsEmpty || len(p.Rows) != 2 {
			t.Fatalf("pattern %d: empty=%v rows=%d", i, p.IsEmpty, len(p.Rows))
		}
		if &p.Rows[0] != &m.EmptyPattern.Rows[0] {
			t.Fatalf("pattern %d doesn't share the empty pattern rows", i)
		}
		if !slices.Equal(p.Rows[1].Notes, []uint16{0, 0}) {
			t.Fatalf("pattern %d has non-empty notes: %v", i, p.Rows[1].Notes)
		}
	}

	if len(m.Instruments) != 3 {
		t.Fatalf("have %d instruments, want 3", len(m.Instruments))
	}
	inst := &m.Instruments[0]
	if inst.Name != "lead" {
		t.Errorf("instrument name: have %q", inst.Name)
	}
	if inst.KeymapAssignments[0] != 0 || inst.KeymapAssignments[60] != 1 {
		t.Errorf("keymap: %v", inst.KeymapAssignments)
	}
	wantPoints := []EnvelopePoint{{0, 64}, {10, 32}, {20, 0}}
	if !slices.Equal(inst.EnvelopeVolume, wantPoints) {
		t.Errorf("volume envelope: have %v, want %v", inst.EnvelopeVolume, wantPoints)
	}
	if inst.EnvelopePanning != nil {
		t.Errorf("panning envelope: have %v, want nil", inst.EnvelopePanning)
	}
	if !inst.VolumeFlags.IsOn() || !inst.VolumeFlags.SustainEnabled() || inst.VolumeFlags.LoopEnabled() {
		t.Errorf("volume flags: %b", inst.VolumeFlags)
	}
	if inst.VolumeSustainPoint != 1 || inst.VolumeLoopEndPoint != 2 {
		t.Errorf("sustain=%d loop end=%d", inst.VolumeSustainPoint, inst.VolumeLoopEndPoint)
	}
	if inst.VibratoType != 1 || inst.VibratoSweep != 2 || inst.VibratoDepth != 3 || inst.VibratoRate != 4 {
		t.Errorf("vibrato: %d %d %d %d", inst.VibratoType, inst.VibratoSweep, inst.VibratoDepth, inst.VibratoRate)
	}
	if inst.VolumeFadeout != 0x100 {
		t.Errorf("fadeout: have %d", inst.VolumeFadeout)
	}

	if len(inst.Samples) != 2 {
		t.Fatalf("have %d samples, want 2", len(inst.Samples))
	}
	kick := &inst.Samples[0]
	if kick.Name != "kick" || kick.Length != 4 || kick.LoopStart != 1 || kick.LoopLength != 2 {
		t.Errorf("kick: %+v", kick)
	}
	if kick.Finetune != -16 || kick.RelativeNote != 12 || kick.Volume != 48 || kick.Panning != 0x80 {
		t.Errorf("kick: %+v", kick)
	}
	if kick.LoopType() != SampleLoopForward || kick.Is16bits() {
		t.Errorf("kick type: %#x", kick.TypeFlags)
	}
	if !bytes.Equal(kick.Data, []byte{0x10, 0x10, 0xF0, 0x00}) {
		t.Errorf("kick data: %v", kick.Data)
	}
	pad := &inst.Samples[1]
	if pad.LoopType() != SampleLoopPingPong || !pad.Is16bits() || len(pad.Data) != 8 {
		t.Errorf("pad: type=%#x data=%v", pad.TypeFlags, pad.Data)
	}

	if len(m.Instruments[1].Samples) != 0 || m.Instruments[1].Name != "empty" {
		t.Errorf("instrument 2: %+v", m.Instruments[1])
	}

	crunch := &m.Instruments[2].Samples[0]
	if crunch.Format != SampleFormatADPCM || len(crunch.Data) != 16+3 {
		t.Errorf("ADPCM sample: format=%d data=%d bytes", crunch.Format, len(crunch.Data))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(w *xmWriter) []byte
		want   string
	}{
		{
			name: "bad id",
			modify: func(w *xmWriter) []byte {
				w.data[0] = 'X'
				return w.data
			},
			want: "unexpected ID text",
		},
		{
			name: "no magic byte",
			modify: func(w *xmWriter) []byte {
				w.data[w.marks["magic"]] = 0
				return w.data
			},
			want: "expected 0x1a",
		},
		{
			name: "zero song length",
			modify: func(w *xmWriter) []byte {
				binary.LittleEndian.PutUint16(w.data[w.marks["song length"]:], 0)
				return w.data
			},
			want: "invalid song length",
		},
		{
			name: "too many channels",
			modify: func(w *xmWriter) []byte {
				binary.LittleEndian.PutUint16(w.data[w.marks["channels"]:], 65)
				return w.data
			},
			want: "invalid number of channels",
		},
		{
			name: "truncated header",
			modify: func(w *xmWriter) []byte {
				return w.data[:100]
			},
			want: "invalid header size",
		},
		{
			name: "packed pattern",
			modify: func(w *xmWriter) []byte {
				w.data[w.marks["packing type"]] = 1
				return w.data
			},
			want: "pattern[0]: unexpected packing type",
		},
		{
			name: "redundant pattern bytes",
			modify: func(w *xmWriter) []byte {
				binary.LittleEndian.PutUint16(w.data[w.marks["packed size"]:], uint16(len(packedPattern)+1))
				return w.data
			},
			want: "redundant bytes",
		},
		{
			name: "unknown encoding",
			modify: func(w *xmWriter) []byte {
				w.data[w.marks["encoding pad"]] = 0x55
				return w.data
			},
			want: "instrument[0].sample[1]: unknown sample encoding",
		},
		{
			name: "truncated sample data",
			modify: func(w *xmWriter) []byte {
				return w.data[:len(w.data)-1]
			},
			want: "instrument[2].sampledata[0]: unexpected EOF",
		},
	}

	for _, test := range tests {
		data := test.modify(buildTestXM())
		_, err := NewParser(ParserConfig{}).ParseFromBytes(data)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("%s: expected a ParseError, got %v", test.name, err)
			continue
		}
		if !strings.Contains(parseErr.Error(), test.want) {
			t.Errorf("%s: error %q doesn't contain %q", test.name, parseErr.Error(), test.want)
		}
	}
}

func TestParserReuse(t *testing.T) {
	data := buildTestXM().data
	p := NewParser(ParserConfig{})

	for i := range 3 {
		m, err := p.ParseFromBytes(data)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(m.Notes) != 3 || len(m.Patterns) != 3 || len(m.Instruments) != 3 {
			t.Fatalf("run %d: notes=%d patterns=%d instruments=%d",
				i, len(m.Notes), len(m.Patterns), len(m.Instruments))
		}
		if !slices.Equal(m.Patterns[0].Rows[1].Notes, []uint16{2, 1}) {
			t.Fatalf("run %d: row notes %v", i, m.Patterns[0].Rows[1].Notes)
		}
		if !slices.Equal(m.Patterns[2].Rows[0].Notes, []uint16{0, 0}) {
			t.Fatalf("run %d: empty row notes %v", i, m.Patterns[2].Rows[0].Notes)
		}
		// Only the module name is kept without NeedStrings.
		if m.Name != "test song" || m.Instruments[0].Name != "" {
			t.Fatalf("run %d: names %q and %q", i, m.Name, m.Instruments[0].Name)
		}
	}
}
