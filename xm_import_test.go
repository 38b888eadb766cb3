package tracker

import (
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/quasilyte/tracker/xmfile"
)

func TestXMEntry(t *testing.T) {
	tests := []struct {
		name string
		note xmfile.PatternNote
		want Entry
		ok   bool
	}{
		{
			name: "full note",
			note: xmfile.PatternNote{Note: 49, Instrument: 1, Volume: 0x40, EffectType: 0xF, EffectParameter: 6},
			want: Entry{
				Mask:        EntryNote | EntryInstrument | EntryVolPan | EntryEffect,
				Note:        48,
				Instrument:  1,
				VolPan:      0x40,
				Effect:      EffectSetSpeed,
				EffectValue: 6,
			},
			ok: true,
		},
		{
			name: "key off",
			note: xmfile.PatternNote{Note: 97},
			want: Entry{Mask: EntryNote, Note: NoteOff},
			ok:   true,
		},
		{
			name: "empty volume column",
			note: xmfile.PatternNote{Volume: 0x05},
			ok:   false,
		},
		{
			name: "no arpeggio",
			note: xmfile.PatternNote{EffectType: 0, EffectParameter: 0},
			ok:   false,
		},
	}

	for _, test := range tests {
		have, ok := xmEntry(3, &test.note)
		if ok != test.ok {
			t.Errorf("%s: ok mismatch: have %v, want %v", test.name, ok, test.ok)
			continue
		}
		if !ok {
			continue
		}
		test.want.Channel = 3
		if have != test.want {
			t.Errorf("%s:\nhave: %+v\nwant: %+v", test.name, have, test.want)
		}
	}
}

func TestXMEffect(t *testing.T) {
	tests := []struct {
		typ    uint8
		param  uint8
		effect Effect
		value  uint8
	}{
		{0x0, 0x37, EffectArpeggio, 0x37},
		{0x1, 0x10, EffectXMPortamentoUp, 0x10},
		{0x2, 0x08, EffectXMPortamentoDown, 0x08},
		{0x3, 0x20, EffectTonePortamento, 0x20},
		{0x4, 0x48, EffectVibrato, 0x48},
		{0x5, 0x0F, EffectVolslideTonePortamento, 0x0F},
		{0x6, 0x42, EffectVolslideVibrato, 0x40},
		{0x9, 0x10, EffectSetSampleOffset, 0x10},
		{0xA, 0x21, EffectVolumeSlide, 0x20},
		{0xA, 0x03, EffectVolumeSlide, 0x03},
		{0xB, 0x02, EffectJumpToOrder, 0x02},
		{0xD, 0x15, EffectBreakToRow, 15},
		{0xE, 0x12, EffectPortamentoUp, 0xF2},
		{0xE, 0x25, EffectPortamentoDown, 0xF5},
		{0xE, 0x61, EffectS, 0xB1},
		{0xE, 0x93, EffectXMRetriggerNote, 3},
		{0xE, 0xA2, EffectXMFineVolslideUp, 2},
		{0xE, 0xC4, EffectS, 0xC4},
		{0xE, 0xD3, EffectS, 0xD3},
		{0xF, 0x00, EffectSetSpeed, 0},
		{0xF, 0x1F, EffectSetSpeed, 0x1F},
		{0xF, 0x20, EffectSetTempo, 0x20},
		{0x10, 0x20, EffectSetGlobalVolume, 0x40},
		{0x10, 0x50, EffectSetGlobalVolume, 0x80},
		{0x11, 0x0A, EffectGlobalVolumeSlide, 0x0A},
		{'P' - 'A' + 10, 0x30, EffectPanningSlide, 0x30},
		{'R' - 'A' + 10, 0x35, EffectRetriggerNote, 0x35},
		{'T' - 'A' + 10, 0x21, EffectTremor, 0x21},
		{'X' - 'A' + 10, 0x15, EffectPortamentoUp, 0xE5},
		{'X' - 'A' + 10, 0x23, EffectPortamentoDown, 0xE3},
	}

	for _, test := range tests {
		var e Entry
		xmEffect(&e, test.typ, test.param)
		if e.Effect != test.effect || e.EffectValue != test.value {
			t.Errorf("xmEffect(%#x, %#02x): have (%d, %#02x), want (%d, %#02x)",
				test.typ, test.param, e.Effect, e.EffectValue, test.effect, test.value)
		}
		if !e.Mask.Contains(EntryEffect) {
			t.Errorf("xmEffect(%#x, %#02x): no effect mask", test.typ, test.param)
		}
	}
}

func TestXMKeyOffEffect(t *testing.T) {
	var e Entry
	xmEffect(&e, 'K'-'A'+10, 4)
	if !e.Mask.Contains(EntryNote) || e.Note != NoteOff {
		t.Fatalf("expected a note off, got %+v", e)
	}
	if e.Effect != EffectS || e.EffectValue != 0xD4 {
		t.Fatalf("expected a note delay, got (%d, %#02x)", e.Effect, e.EffectValue)
	}

	e = Entry{}
	xmEffect(&e, 'K'-'A'+10, 0)
	if e.Note != NoteOff || e.Mask.Contains(EntryEffect) {
		t.Fatalf("K00 must be an immediate note off, got %+v", e)
	}
}

func TestDecodeXMDeltas(t *testing.T) {
	have8 := decodeXMDelta8([]byte{0x10, 0x10, 0xF0, 0x00, 0x6F, 0x02})
	want8 := []int32{16 << 16, 32 << 16, 16 << 16, 16 << 16, 127 << 16, -127 << 16}
	if !slices.Equal(have8, want8) {
		t.Errorf("8-bit:\nhave: %v\nwant: %v", have8, want8)
	}

	var data16 []byte
	for _, v := range []int16{100, 100, -50, 0} {
		data16 = append(data16, byte(v), byte(uint16(v)>>8))
	}
	have16 := decodeXMDelta16(data16)
	want16 := []int32{100 << 8, 200 << 8, 150 << 8, 150 << 8}
	if !slices.Equal(have16, want16) {
		t.Errorf("16-bit:\nhave: %v\nwant: %v", have16, want16)
	}
}

func TestDecodeXMADPCM(t *testing.T) {
	data := make([]byte, 16, 19)
	for i := range data {
		data[i] = byte(i)
	}
	data = append(data, 0x21, 0x03, 0x0F)

	have, err := decodeXMADPCM(data, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []int32{1 << 16, 3 << 16, 6 << 16, 6 << 16, 21 << 16}
	if !slices.Equal(have, want) {
		t.Fatalf("have: %v\nwant: %v", have, want)
	}

	if _, err := decodeXMADPCM(data[:18], 5); err == nil {
		t.Fatal("expected an error for truncated data")
	}
}

func TestXMFadeout(t *testing.T) {
	tests := []struct {
		v    int
		want int
	}{
		{0, 0},
		{1, 1},
		{0x100, 4},
		{0xFFF, 64},
	}
	for _, test := range tests {
		if have := xmFadeout(test.v); have != test.want {
			t.Errorf("xmFadeout(%d): have %d, want %d", test.v, have, test.want)
		}
	}
}

func newTestXMModule() *xmfile.Module {
	keymap := make([]byte, 96)
	for i := 48; i < len(keymap); i++ {
		keymap[i] = 1
	}
	var data16 []byte
	for _, v := range []int16{100, 100, -50, 0} {
		data16 = append(data16, byte(v), byte(uint16(v)>>8))
	}

	return &xmfile.Module{
		Name:            "imported",
		SongLength:      1,
		RestartPosition: 0,
		NumChannels:     2,
		Flags:           1,
		DefaultTempo:    6,
		DefaultBPM:      125,
		PatternOrder:    []uint8{0},
		Notes: []xmfile.PatternNote{
			{},
			{ID: 1, Note: 49, Instrument: 1, Volume: 0x40},
			{ID: 2, Note: 97},
		},
		Patterns: []xmfile.Pattern{{
			Rows: []xmfile.PatternRow{
				{Notes: []uint16{1, 0}},
				{Notes: []uint16{0, 2}},
			},
		}},
		Instruments: []xmfile.Instrument{
			{
				Name:              "lead",
				KeymapAssignments: keymap,
				EnvelopeVolume: []xmfile.EnvelopePoint{
					{X: 0, Y: 64}, {X: 10, Y: 32}, {X: 20, Y: 0},
				},
				VolumeFlags:        0b011,
				VolumeSustainPoint: 1,
				VibratoType:        1,
				VibratoSweep:       2,
				VibratoDepth:       3,
				VibratoRate:        4,
				VolumeFadeout:      0x100,
				Samples: []xmfile.InstrumentSample{
					{
						Name:         "kick",
						Length:       4,
						LoopStart:    1,
						LoopLength:   2,
						Volume:       48,
						TypeFlags:    0x01,
						Panning:      0x80,
						RelativeNote: 12,
						Data:         []byte{0x10, 0x10, 0xF0, 0x00},
					},
					{
						Name:       "pad",
						Length:     8,
						LoopStart:  2,
						LoopLength: 4,
						Volume:     64,
						TypeFlags:  0x12,
						Panning:    0x40,
						Data:       data16,
					},
				},
			},
			{Name: "empty"},
		},
	}
}

func TestLoadXM(t *testing.T) {
	song, err := LoadXM(newTestXMModule())
	if err != nil {
		t.Fatal(err)
	}

	if song.Dialect != DialectXM || song.Name != "imported" {
		t.Fatalf("dialect %v, name %q", song.Dialect, song.Name)
	}
	wantFlags := SongStereo | SongUseInstruments | SongLinearSlides
	if song.Flags != wantFlags {
		t.Fatalf("flags: have %v, want %v", song.Flags, wantFlags)
	}
	if song.Speed != 6 || song.Tempo != 125 || song.MixingVolume != 48 {
		t.Fatalf("speed=%d tempo=%d mixing volume=%d", song.Speed, song.Tempo, song.MixingVolume)
	}
	if !slices.Equal(song.Orders, []uint8{0}) {
		t.Fatalf("orders: %v", song.Orders)
	}

	if len(song.Samples) != 2 {
		t.Fatalf("have %d samples, want 2", len(song.Samples))
	}
	kick := &song.Samples[0]
	if kick.Length != 4 || kick.LoopStart != 1 || kick.LoopEnd != 3 {
		t.Errorf("kick: length=%d loop=[%d, %d)", kick.Length, kick.LoopStart, kick.LoopEnd)
	}
	if !kick.Flags.Contains(SampleExists) || !kick.Flags.Contains(SampleLoop) || kick.Flags.Contains(SamplePingPongLoop) {
		t.Errorf("kick flags: %v", kick.Flags)
	}
	// A relative note of 12 is an octave up.
	if math.Abs(float64(kick.C5Speed-2*xmC5Speed)) > 1 {
		t.Errorf("kick C5Speed: have %d, want %d", kick.C5Speed, 2*xmC5Speed)
	}
	if kick.DefaultVolume != 48 || kick.DefaultPan != 160 {
		t.Errorf("kick: volume=%d pan=%d", kick.DefaultVolume, kick.DefaultPan)
	}
	if kick.VibratoSpeed != 4 || kick.VibratoDepth != 3 || kick.VibratoRate != 2 || kick.VibratoWaveform != 1 {
		t.Errorf("kick vibrato: %d %d %d %d", kick.VibratoSpeed, kick.VibratoDepth, kick.VibratoRate, kick.VibratoWaveform)
	}

	pad := &song.Samples[1]
	// The 16-bit loop points are in bytes.
	if pad.Length != 4 || pad.LoopStart != 1 || pad.LoopEnd != 3 {
		t.Errorf("pad: length=%d loop=[%d, %d)", pad.Length, pad.LoopStart, pad.LoopEnd)
	}
	if !pad.Flags.Contains(SampleLoop) || !pad.Flags.Contains(SamplePingPongLoop) {
		t.Errorf("pad flags: %v", pad.Flags)
	}
	if pad.C5Speed != xmC5Speed {
		t.Errorf("pad C5Speed: have %d, want %d", pad.C5Speed, xmC5Speed)
	}

	inst := &song.Instruments[0]
	if inst.MapSample[0] != 1 || inst.MapSample[47] != 1 || inst.MapSample[48] != 2 || inst.MapSample[95] != 2 {
		t.Errorf("sample map: %v", inst.MapSample)
	}
	if inst.MapSample[100] != 0 || inst.MapNote[60] != 60 {
		t.Errorf("note map: %d %d", inst.MapSample[100], inst.MapNote[60])
	}
	if inst.Fadeout != 4 || inst.NNA != NNACut {
		t.Errorf("fadeout=%d nna=%d", inst.Fadeout, inst.NNA)
	}
	env := &inst.VolumeEnvelope
	if !env.Flags.Contains(EnvelopeOn) || !env.Flags.Contains(EnvelopeSustainLoop) || env.Flags.Contains(EnvelopeLoop) {
		t.Errorf("envelope flags: %v", env.Flags)
	}
	if env.SustainStart != 1 || env.SustainEnd != 1 || len(env.Nodes) != 3 || env.Nodes[1] != (EnvelopeNode{Tick: 10, Value: 32}) {
		t.Errorf("envelope: %+v", env)
	}
	if song.Instruments[1].MapSample[60] != 0 {
		t.Error("an instrument without samples maps to a sample")
	}

	rows := song.Patterns[0].Rows
	wantRow0 := []Entry{{
		Channel:    0,
		Mask:       EntryNote | EntryInstrument | EntryVolPan,
		Note:       48,
		Instrument: 1,
		VolPan:     0x40,
	}}
	wantRow1 := []Entry{{Channel: 1, Mask: EntryNote, Note: NoteOff}}
	if !slices.Equal(rows[0], wantRow0) || !slices.Equal(rows[1], wantRow1) {
		t.Fatalf("rows:\nhave: %+v\nwant: %+v %+v", rows, wantRow0, wantRow1)
	}

	r := mustRenderer(t, song, Config{}, Callbacks{Loop: Terminate})
	out := [][]int32{make([]int32, 4096), make([]int32, 4096)}
	r.GetSamples(1.0, 65536.0/44100, 4096, out)
	silent := true
	for _, v := range out[0] {
		if v != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Fatal("the imported song is silent")
	}
}

func TestLoadXMErrors(t *testing.T) {
	m := newTestXMModule()
	m.Instruments[0].Samples[0].Format = xmfile.SampleFormatADPCM
	_, err := LoadXM(m)
	if err == nil || !strings.Contains(err.Error(), "ADPCM") {
		t.Fatalf("expected an ADPCM error, got %v", err)
	}

	m = newTestXMModule()
	m.NumChannels = NumChannels + 1
	if _, err := LoadXM(m); err == nil {
		t.Fatal("expected an error for too many channels")
	}
}
