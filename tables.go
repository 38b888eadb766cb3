package tracker

import (
	"math"
)

// sineTable is a 256-step sine wave with a peak of 64.
// It drives vibrato, tremolo and the sample auto-vibrato.
var sineTable = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = int8(math.Round(64 * math.Sin(2*math.Pi*float64(i)/256)))
	}
	return t
}()

// Tone portamento speeds of the IT volume column (values 193-202).
var volPanTonePorta = [10]uint8{0, 1, 4, 8, 16, 32, 64, 96, 128, 255}

var defaultMIDI = func() MIDIMacros {
	var m MIDIMacros
	// SF0 sets the filter cutoff to the effect parameter.
	m.SF[0] = MIDIMacro{Bytes: []byte{0xF0, 0xF0, 0x00, 0x00}, ZMask: 1 << 3}
	// Z80-Z8F set the filter resonance.
	for i := 0; i < 16; i++ {
		m.Z[i] = MIDIMacro{Bytes: []byte{0xF0, 0xF0, 0x01, byte(i * 8)}}
	}
	return m
}()

// DefaultMIDIMacros returns a copy of the macros used by songs without their own table.
func DefaultMIDIMacros() *MIDIMacros {
	m := defaultMIDI
	for i := range m.SF {
		m.SF[i].Bytes = append([]byte(nil), m.SF[i].Bytes...)
	}
	for i := range m.Z {
		m.Z[i].Bytes = append([]byte(nil), m.Z[i].Bytes...)
	}
	return &m
}
