package tracker

import (
	"errors"
	"math"
	"testing"

	"github.com/quasilyte/tracker/resample"
)

// testTickSize is a tick length in samples for the tempo 160 at delta 1.0.
const testTickSize = 1024

func newTestSample(n int, f func(i int) int32) Sample {
	data := make([]int32, n)
	for i := range data {
		data[i] = f(i)
	}
	return Sample{
		Flags:         SampleExists,
		Length:        n,
		C5Speed:       65536,
		DefaultVolume: 64,
		GlobalVolume:  64,
		Left:          data,
	}
}

// newLoopedSample returns a looped sample that starts from a zero value.
func newLoopedSample(n int) Sample {
	s := newTestSample(n, func(i int) int32 {
		return int32(i%100) * 1000
	})
	s.Flags |= SampleLoop
	s.LoopEnd = n
	return s
}

func newTestSong(rows [][]Entry, samples ...Sample) *Song {
	song := &Song{
		Dialect:      DialectIT,
		Flags:        SongStereo | SongLinearSlides,
		GlobalVolume: 128,
		MixingVolume: 128,
		Speed:        1,
		Tempo:        160,
		Orders:       []uint8{0},
		Patterns:     []Pattern{{Rows: rows}},
		Samples:      samples,
	}
	for i := range song.ChannelPan {
		song.ChannelPan[i] = 32
		song.ChannelVolume[i] = 64
	}
	return song
}

func newTestInstrument(nna NewNoteAction) Instrument {
	inst := Instrument{
		GlobalVolume: 128,
		DefaultPan:   128,
		NNA:          nna,
	}
	for i := range inst.MapNote {
		inst.MapNote[i] = uint8(i)
		inst.MapSample[i] = 1
	}
	return inst
}

func noteEntry(ch, note, instrument uint8) Entry {
	return Entry{
		Channel:    ch,
		Mask:       EntryNote | EntryInstrument,
		Note:       note,
		Instrument: instrument,
	}
}

func withEffect(e Entry, effect Effect, v uint8) Entry {
	e.Mask |= EntryEffect
	e.Effect = effect
	e.EffectValue = v
	return e
}

func effectEntry(ch uint8, effect Effect, v uint8) Entry {
	return withEffect(Entry{Channel: ch}, effect, v)
}

func mustRenderer(t *testing.T, song *Song, config Config, callbacks Callbacks) *Renderer {
	t.Helper()
	r, err := NewRenderer(song, config, callbacks)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

// nextTick silently plays r right past its next tick.
func nextTick(r *Renderer) {
	r.GetSamples(0, 1.0, int(r.timeLeft)+1, nil)
}

func TestRenderPlainSample(t *testing.T) {
	smp := newTestSample(3000, func(i int) int32 {
		return int32(i) * 100
	})
	rows := [][]Entry{{noteEntry(0, 60, 1)}, nil, nil, nil}
	song := newTestSong(rows, smp)
	r := mustRenderer(t, song, Config{Channels: 1}, Callbacks{Loop: Terminate})

	out := [][]int32{make([]int32, 5000)}
	n := r.GetSamples(1.0, 1.0, len(out[0]), out)
	if n != 4*testTickSize {
		t.Fatalf("rendered %d samples, want %d", n, 4*testTickSize)
	}
	for i := 0; i < n; i++ {
		want := int32(0)
		if i < smp.Length {
			want = smp.Left[i]
		}
		if out[0][i] != want {
			t.Fatalf("out[%d]: have %d, want %d", i, out[0][i], want)
		}
	}
	if !r.Ended() {
		t.Fatal("expected the playback to end")
	}
	if r.Time() != int64(n) {
		t.Fatalf("time: have %d, want %d", r.Time(), n)
	}
	if r.GetSamples(1.0, 1.0, 100, out) != 0 {
		t.Fatal("an ended renderer must not produce samples")
	}
}

func TestVolumeSlide(t *testing.T) {
	tests := []struct {
		param   uint8
		initial int
		want    []int
	}{
		{0x20, 60, []int{60, 62, 64, 64}},
		{0x04, 10, []int{10, 6, 2, 0}},
		{0x3F, 60, []int{63, 63, 63, 63}},
		{0xF2, 10, []int{8, 8, 8, 8}},
		{0xF0, 10, []int{25, 40, 55, 64}},
	}

	for _, test := range tests {
		smp := newLoopedSample(1000)
		smp.DefaultVolume = test.initial
		rows := [][]Entry{{withEffect(noteEntry(0, 60, 1), EffectVolumeSlide, test.param)}}
		song := newTestSong(rows, smp)
		song.Speed = 4
		r := mustRenderer(t, song, Config{}, Callbacks{})

		for tick, want := range test.want {
			if tick != 0 {
				nextTick(r)
			}
			if have := r.channels[0].volume; have != want {
				t.Errorf("D%02X from %d: tick %d: have %d, want %d",
					test.param, test.initial, tick, have, want)
			}
		}
	}
}

func TestNewNoteAction(t *testing.T) {
	tests := []struct {
		nna       NewNoteAction
		wantVoice bool
		wantFlags voiceFlags
	}{
		{NNACut, false, 0},
		{NNAContinue, true, 0},
		{NNANoteOff, true, voiceBackground | voiceSustainOff | voiceFading},
		{NNAFade, true, voiceBackground | voiceFading},
	}

	for _, test := range tests {
		rows := [][]Entry{
			{noteEntry(0, 60, 1)},
			{noteEntry(0, 64, 1)},
		}
		song := newTestSong(rows, newLoopedSample(1000))
		song.Flags |= SongUseInstruments
		song.Instruments = []Instrument{newTestInstrument(test.nna)}
		r := mustRenderer(t, song, Config{}, Callbacks{})
		nextTick(r)

		if have := r.channels[0].voice.note; have != 64 {
			t.Fatalf("NNA %d: channel note: have %d, want 64", test.nna, have)
		}
		v := r.nnaVoices[0]
		if (v != nil) != test.wantVoice {
			t.Fatalf("NNA %d: background voice presence mismatch", test.nna)
		}
		if v == nil {
			continue
		}
		if v.note != 60 {
			t.Errorf("NNA %d: background note: have %d, want 60", test.nna, v.note)
		}
		if v.flags != test.wantFlags {
			t.Errorf("NNA %d: flags: have %04b, want %04b", test.nna, v.flags, test.wantFlags)
		}
		if state := r.ChannelState(NumChannels); state.Sample != 1 {
			t.Errorf("NNA %d: background voice state: have sample %d, want 1", test.nna, state.Sample)
		}
	}
}

func TestVoicePoolOverflow(t *testing.T) {
	const numNotes = NumNNAVoices + 8
	rows := make([][]Entry, numNotes)
	for i := range rows {
		rows[i] = []Entry{noteEntry(0, 60, 1)}
	}
	song := newTestSong(rows, newLoopedSample(100))
	song.Flags |= SongUseInstruments
	song.Instruments = []Instrument{newTestInstrument(NNAContinue)}
	r := mustRenderer(t, song, Config{}, Callbacks{})

	for i := 1; i < numNotes; i++ {
		nextTick(r)
	}

	numVoices := 0
	for _, v := range r.nnaVoices {
		if v != nil {
			numVoices++
		}
	}
	if numVoices != NumNNAVoices {
		t.Fatalf("background voices: have %d, want %d", numVoices, NumNNAVoices)
	}
	if r.channels[0].voice == nil {
		t.Fatal("the channel voice is missing")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rows := [][]Entry{
		{withEffect(noteEntry(0, 60, 1), EffectVibrato, 0x44)},
		{effectEntry(0, EffectVibrato, 0)},
		{withEffect(noteEntry(1, 67, 1), EffectArpeggio, 0x37)},
		{effectEntry(1, EffectArpeggio, 0)},
	}
	song := newTestSong(rows, newLoopedSample(1000))
	song.Speed = 3
	r := mustRenderer(t, song, Config{Quality: resample.QualityCubic}, Callbacks{})

	warmup := [][]int32{make([]int32, 3000), make([]int32, 3000)}
	r.GetSamples(1.0, 1.0, 3000, warmup)

	cloned := r.Clone()
	out1 := [][]int32{make([]int32, 5000), make([]int32, 5000)}
	out2 := [][]int32{make([]int32, 5000), make([]int32, 5000)}
	n1 := r.GetSamples(1.0, 1.0, 5000, out1)
	n2 := cloned.GetSamples(1.0, 1.0, 5000, out2)
	if n1 != n2 {
		t.Fatalf("rendered counts differ: %d vs %d", n1, n2)
	}
	for ch := range out1 {
		for i := range out1[ch] {
			if out1[ch][i] != out2[ch][i] {
				t.Fatalf("channel %d sample %d: original %d, clone %d", ch, i, out1[ch][i], out2[ch][i])
			}
		}
	}

	order1, row1 := r.Position()
	order2, row2 := cloned.Position()
	if order1 != order2 || row1 != row2 {
		t.Fatalf("positions differ: (%d, %d) vs (%d, %d)", order1, row1, order2, row2)
	}

	// Advancing the clone must not affect the original.
	cloned.GetSamples(0, 1.0, 10000, nil)
	if order, row := r.Position(); order != order1 || row != row1 {
		t.Fatalf("the original moved to (%d, %d)", order, row)
	}
}

func TestLoopCallback(t *testing.T) {
	const songLength = 4 * testTickSize
	rows := [][]Entry{{noteEntry(0, 60, 1)}, nil, nil, nil}

	t.Run("continue", func(t *testing.T) {
		song := newTestSong(rows, newLoopedSample(1000))
		loops := 0
		r := mustRenderer(t, song, Config{}, Callbacks{
			Loop: func() Action {
				loops++
				return Continue
			},
		})
		n := r.GetSamples(0, 1.0, 3*songLength+1, nil)
		if n != 3*songLength+1 {
			t.Fatalf("rendered %d samples, want %d", n, 3*songLength+1)
		}
		if loops != 3 {
			t.Fatalf("loop callback calls: have %d, want 3", loops)
		}
	})

	t.Run("stop", func(t *testing.T) {
		song := newTestSong(rows, newLoopedSample(1000))
		r := mustRenderer(t, song, Config{}, Callbacks{Loop: Terminate})
		n := r.GetSamples(0, 1.0, 3*songLength, nil)
		if n != songLength {
			t.Fatalf("rendered %d samples, want %d", n, songLength)
		}
		if order, row := r.Position(); order != -1 || row != -1 {
			t.Fatalf("position after the end: (%d, %d)", order, row)
		}
	})
}

func TestXMSpeedZero(t *testing.T) {
	rows := [][]Entry{{effectEntry(0, EffectSetSpeed, 0)}, nil}

	t.Run("terminate", func(t *testing.T) {
		song := newTestSong(rows, newLoopedSample(100))
		song.Dialect = DialectXM
		r := mustRenderer(t, song, Config{}, Callbacks{XMSpeedZero: Terminate})
		if !r.Ended() {
			t.Fatal("expected the playback to end on the first row")
		}
		if n := r.GetSamples(0, 1.0, 100, nil); n != 0 {
			t.Fatalf("rendered %d samples, want 0", n)
		}
	})

	t.Run("continue", func(t *testing.T) {
		song := newTestSong(rows, newLoopedSample(100))
		song.Dialect = DialectXM
		r := mustRenderer(t, song, Config{}, Callbacks{})
		if r.Speed() != 0 {
			t.Fatalf("speed: have %d, want 0", r.Speed())
		}
		if n := r.GetSamples(0, 1.0, 20*testTickSize, nil); n != 20*testTickSize {
			t.Fatalf("rendered %d samples, want %d", n, 20*testTickSize)
		}
		if order, row := r.Position(); order != 0 || row != 0 {
			t.Fatalf("a frozen song moved to (%d, %d)", order, row)
		}
	})

	t.Run("it", func(t *testing.T) {
		// IT songs ignore A00.
		song := newTestSong(rows, newLoopedSample(100))
		r := mustRenderer(t, song, Config{}, Callbacks{XMSpeedZero: Terminate})
		if r.Ended() || r.Speed() != 1 {
			t.Fatalf("ended=%v speed=%d", r.Ended(), r.Speed())
		}
	})
}

func TestNewRendererErrors(t *testing.T) {
	valid := func() *Song {
		return newTestSong([][]Entry{{noteEntry(0, 60, 1)}}, newLoopedSample(100))
	}

	tests := []struct {
		name    string
		song    func() *Song
		config  Config
		wantErr error
	}{
		{
			name: "no orders",
			song: func() *Song {
				s := valid()
				s.Orders = nil
				return s
			},
			wantErr: ErrNoPlayableOrder,
		},
		{
			name: "end marker only",
			song: func() *Song {
				s := valid()
				s.Orders = []uint8{OrderSkip, OrderEnd}
				return s
			},
			wantErr: ErrNoPlayableOrder,
		},
		{
			name: "missing patterns",
			song: func() *Song {
				s := valid()
				s.Orders = []uint8{5, 7}
				return s
			},
			wantErr: ErrNoPlayableOrder,
		},
		{
			name:    "start order",
			song:    valid,
			config:  Config{StartOrder: 1},
			wantErr: ErrBadStartOrder,
		},
		{
			name: "channel out of range",
			song: func() *Song {
				s := valid()
				s.Patterns[0].Rows[0][0].Channel = NumChannels
				return s
			},
			wantErr: ErrInvalidSong,
		},
		{
			name: "bad sample loop",
			song: func() *Song {
				s := valid()
				s.Samples[0].LoopEnd = s.Samples[0].Length + 1
				return s
			},
			wantErr: ErrInvalidSong,
		},
		{
			name: "sample data is too short",
			song: func() *Song {
				s := valid()
				s.Samples[0].Length++
				return s
			},
			wantErr: ErrInvalidSong,
		},
		{
			name: "empty envelope",
			song: func() *Song {
				s := valid()
				s.Flags |= SongUseInstruments
				inst := newTestInstrument(NNACut)
				inst.VolumeEnvelope.Flags = EnvelopeOn
				s.Instruments = []Instrument{inst}
				return s
			},
			wantErr: ErrInvalidSong,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewRenderer(test.song(), test.config, Callbacks{})
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("have %v, want %v", err, test.wantErr)
			}
		})
	}

	if _, err := NewRenderer(valid(), Config{Channels: 3}, Callbacks{}); err == nil {
		t.Fatal("expected an error for 3 output channels")
	}
}

func TestSkipOrders(t *testing.T) {
	song := newTestSong([][]Entry{{noteEntry(0, 60, 1)}}, newLoopedSample(100))
	song.Orders = []uint8{OrderSkip, 9, 0}
	r := mustRenderer(t, song, Config{}, Callbacks{})
	if order, row := r.Position(); order != 2 || row != 0 {
		t.Fatalf("position: have (%d, %d), want (2, 0)", order, row)
	}
}

func TestRetrigVolume(t *testing.T) {
	tests := []struct {
		retrig int
		volume int
		want   int
	}{
		{0x01, 7, 7},
		{0x11, 32, 31},
		{0x31, 2, 0},
		{0x51, 10, 0},
		{0x61, 30, 20},
		{0x71, 31, 15},
		{0x81, 40, 40},
		{0x91, 64, 64},
		{0xB1, 50, 54},
		{0xD1, 50, 64},
		{0xE1, 40, 60},
		{0xF1, 40, 64},
	}

	for _, test := range tests {
		have := retrigVolume(test.retrig, test.volume)
		if have != test.want {
			t.Errorf("retrigVolume(%#x, %d):\nhave: %d\nwant: %d", test.retrig, test.volume, have, test.want)
		}
	}
}

func TestTremor(t *testing.T) {
	rows := [][]Entry{{withEffect(noteEntry(0, 60, 1), EffectTremor, 0x21)}}
	song := newTestSong(rows, newLoopedSample(1000))
	song.Speed = 8
	r := mustRenderer(t, song, Config{}, Callbacks{})

	want := []bool{true, true, false, true, true, false, true, true}
	for tick, audible := range want {
		if tick != 0 {
			nextTick(r)
		}
		volume := r.ChannelState(0).Volume
		if (volume != 0) != audible {
			t.Errorf("tick %d: volume %v, want audible=%v", tick, volume, audible)
		}
	}
}

func TestArpeggio(t *testing.T) {
	smp := newLoopedSample(1000)
	smp.C5Speed = 8363
	rows := [][]Entry{{withEffect(noteEntry(0, 60, 1), EffectArpeggio, 0x47)}}
	song := newTestSong(rows, smp)
	song.Speed = 6
	r := mustRenderer(t, song, Config{}, Callbacks{})

	for tick, semitones := range []int{0, 4, 7, 0, 4, 7} {
		if tick != 0 {
			nextTick(r)
		}
		want := 8363 * math.Pow(SemitoneBase, float64(semitones))
		have := r.ChannelState(0).Freq
		if math.Abs(float64(have)-want) > 1 {
			t.Errorf("tick %d: freq %d, want %.1f", tick, have, want)
		}
	}
}

func TestTempoSlide(t *testing.T) {
	tests := []struct {
		tempo int
		param uint8
		want  []int
	}{
		{40, 0x05, []int{35, 32, 32}},
		{250, 0x1F, []int{255, 255, 255}},
		{100, 0x12, []int{102, 104, 106}},
		{100, 0x80, []int{128, 128, 128}},
	}

	for _, test := range tests {
		rows := [][]Entry{{effectEntry(0, EffectSetTempo, test.param)}}
		song := newTestSong(rows, newLoopedSample(100))
		song.Speed = 4
		song.Tempo = test.tempo
		r := mustRenderer(t, song, Config{}, Callbacks{})
		for i, want := range test.want {
			nextTick(r)
			if r.Tempo() != want {
				t.Errorf("T%02X from %d: tick %d: have %d, want %d", test.param, test.tempo, i+1, r.Tempo(), want)
			}
		}
	}
}

func TestSampleOffset(t *testing.T) {
	tests := []struct {
		param      uint8
		oldEffects bool
		wantPos    int
	}{
		{0x02, false, 0x200},
		{0x10, false, 0},
		{0x10, true, 3000},
	}

	for _, test := range tests {
		rows := [][]Entry{{withEffect(noteEntry(0, 60, 1), EffectSetSampleOffset, test.param)}}
		song := newTestSong(rows, newLoopedSample(3000))
		song.Samples[0].Flags &^= SampleLoop
		if test.oldEffects {
			song.Flags |= SongOldEffects
		}
		r := mustRenderer(t, song, Config{}, Callbacks{})
		pos := r.channels[0].voice.resamplers[0].Pos()
		if pos != int64(test.wantPos)<<16 {
			t.Errorf("O%02X (old=%v): pos %d, want %d", test.param, test.oldEffects, pos>>16, test.wantPos)
		}
	}
}

func TestPatternFlow(t *testing.T) {
	tests := []struct {
		name     string
		orders   []uint8
		patterns [][][]Entry
		want     [][2]int
	}{
		{
			name:   "break",
			orders: []uint8{0, 1},
			patterns: [][][]Entry{
				{{effectEntry(0, EffectBreakToRow, 2)}, nil},
				{nil, nil, nil, nil},
			},
			want: [][2]int{{0, 0}, {1, 2}, {1, 3}},
		},
		{
			name:   "jump",
			orders: []uint8{0, 1, 2},
			patterns: [][][]Entry{
				{nil, {effectEntry(0, EffectJumpToOrder, 2)}},
				{nil},
				{nil, nil},
			},
			want: [][2]int{{0, 0}, {0, 1}, {2, 0}, {2, 1}},
		},
		{
			name:   "pattern loop",
			orders: []uint8{0},
			patterns: [][][]Entry{
				{
					{effectEntry(0, EffectS, 0xB0)},
					{effectEntry(0, EffectS, 0xB2)},
					nil,
					nil,
				},
			},
			want: [][2]int{{0, 0}, {0, 1}, {0, 0}, {0, 1}, {0, 0}, {0, 1}, {0, 2}, {0, 3}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			song := newTestSong(nil, newLoopedSample(100))
			song.Orders = test.orders
			song.Patterns = make([]Pattern, len(test.patterns))
			for i, rows := range test.patterns {
				song.Patterns[i].Rows = rows
			}
			r := mustRenderer(t, song, Config{}, Callbacks{Loop: Terminate})
			for i, want := range test.want {
				if i != 0 {
					nextTick(r)
				}
				order, row := r.Position()
				if order != want[0] || row != want[1] {
					t.Fatalf("step %d: have (%d, %d), want (%d, %d)", i, order, row, want[0], want[1])
				}
			}
		})
	}
}

func TestNoteCallback(t *testing.T) {
	type noteEvent struct {
		tick       int
		channel    int
		note       uint8
		instrument uint8
	}

	delayed := withEffect(Entry{Channel: 1, Mask: EntryNote, Note: 64}, EffectS, 0xD2)
	rows := [][]Entry{
		{noteEntry(0, 60, 1)},
		{noteEntry(1, 62, 1)},
		{{Channel: 0, Mask: EntryNote, Note: NoteOff}},
		{delayed},
	}
	song := newTestSong(rows, newLoopedSample(1000))
	song.Speed = 3

	var events []noteEvent
	tick := 0
	r := mustRenderer(t, song, Config{}, Callbacks{
		Loop: Terminate,
		Note: func(channel int, note, instrument uint8, volume int) {
			events = append(events, noteEvent{tick, channel, note, instrument})
		},
	})
	for !r.Ended() {
		tick++
		nextTick(r)
	}

	want := []noteEvent{
		{0, 0, 60, 1},
		{3, 1, 62, 1},
		{6, 0, NoteOff, 0},
		{11, 1, 64, 0},
	}
	if len(events) != len(want) {
		t.Fatalf("events: have %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: have %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestMIDIMacros(t *testing.T) {
	tests := []struct {
		name       string
		param      uint8
		block      bool
		wantBytes  []byte
		wantCutoff uint8
	}{
		{"cutoff", 0x40, false, []byte{0xF0, 0xF0, 0x00, 0x40}, 0x40},
		{"resonance", 0x81, false, []byte{0xF0, 0xF0, 0x01, 0x08}, 127},
		{"blocked", 0x40, true, []byte{0xF0, 0xF0, 0x00, 0x40}, 127},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rows := [][]Entry{{withEffect(noteEntry(0, 60, 1), EffectMIDIMacro, test.param)}}
			song := newTestSong(rows, newLoopedSample(1000))
			var sent []byte
			r := mustRenderer(t, song, Config{}, Callbacks{
				MIDI: func(channel int, b byte) Action {
					sent = append(sent, b)
					if test.block {
						return Stop
					}
					return Continue
				},
			})

			if string(sent) != string(test.wantBytes) {
				t.Fatalf("sent bytes: have % x, want % x", sent, test.wantBytes)
			}
			if have := r.ChannelState(0).FilterCutoff; have != test.wantCutoff {
				t.Fatalf("cutoff: have %d, want %d", have, test.wantCutoff)
			}
		})
	}
}

func TestCurrentSample(t *testing.T) {
	rows := [][]Entry{{noteEntry(0, 60, 1)}, nil}
	song := newTestSong(rows, newLoopedSample(1000))
	r := mustRenderer(t, song, Config{Channels: 1}, Callbacks{})

	out := [][]int32{make([]int32, 150)}
	r.GetSamples(1.0, 1.0, len(out[0]), out)

	// Cutting the playback here leaves a step of the next sample value.
	dst := make([]int32, 1)
	r.CurrentSample(1.0, dst)
	want := song.Samples[0].Left[len(out[0])]
	if dst[0] != want {
		t.Fatalf("offset: have %d, want %d", dst[0], want)
	}

	// The next span picks up the step, so the offset is back to zero.
	clear(out[0])
	r.GetSamples(1.0, 1.0, len(out[0]), out)
	dst[0] = 0
	r.CurrentSample(1.0, dst)
	want = song.Samples[0].Left[2*len(out[0])%100]
	if dst[0] != want {
		t.Fatalf("offset after the second span: have %d, want %d", dst[0], want)
	}
}
