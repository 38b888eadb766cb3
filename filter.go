package tracker

import (
	"math"

	"github.com/quasilyte/tracker/clickrem"
)

// filterState is a resonant low-pass filter history.
// The filter runs in 28-bit fixed point, so the history is kept as integers.
type filterState struct {
	curr int32
	prev int32
}

func (s *filterState) reset() {
	s.curr = 0
	s.prev = 0
}

// filterCoefficients computes the IIR coefficients for the cutoff
// (in 1/256 of the 0..127 range) and resonance (0..127).
func filterCoefficients(sampleRate int, cutoff, resonance int) (a, b, c float32) {
	const log10 = 2.30258509299

	invAngle := float32(float64(sampleRate) *
		math.Pow(0.5, 0.25+float64(cutoff)*(1.0/float64(24<<envelopeShift))) *
		(1.0 / (2 * math.Pi * 110.0)))
	loss := float32(math.Exp(float64(resonance) * (-log10 * 1.2 / 128.0)))

	d := (1.0 - loss) / invAngle
	if d > 2.0 {
		d = 2.0
	}
	d = (loss - d) * invAngle
	e := invAngle * invAngle
	a = 1.0 / (1.0 + d + e)
	c = -e * a
	b = 1.0 - a - c
	return a, b, c
}

// mulsca multiplies a sample by a 4.28 fixed-point coefficient.
func mulsca(x, k int32) int32 {
	return int32((int64(x<<4) * int64(k)) >> 32)
}

// apply filters size samples of src and adds the result to dst[pos:].
//
// src must hold size+1 samples: the extra one is used to measure
// the step at the end of the span. The start and end steps are
// recorded into cr (which can be nil).
func (s *filterState) apply(cr *clickrem.Remover, dst []int32, pos int, src []int32, size int, sampleRate int, cutoff, resonance int) {
	a, b, c := filterCoefficients(sampleRate, cutoff, resonance)

	if cr != nil {
		startStep := float32(src[0])*a + float32(s.curr)*b + float32(s.prev)*c
		cr.RecordClick(pos, int32(startStep))
	}

	const scale = 1 << (16 + 12)
	ai := int32(a * scale)
	bi := int32(b * scale)
	ci := int32(c * scale)

	curr := s.curr
	prev := s.prev
	out := dst[pos : pos+size]
	for i := range out {
		next := mulsca(src[i], ai) + mulsca(curr, bi) + mulsca(prev, ci)
		prev = curr
		curr = next
		out[i] += curr
	}
	s.curr = curr
	s.prev = prev

	if cr != nil {
		endStep := float32(src[size])*a + float32(curr)*b + float32(prev)*c
		cr.RecordClick(pos+size, -int32(endStep))
	}
}
