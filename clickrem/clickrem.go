// Package clickrem removes clicks caused by step discontinuities
// in a rendered PCM stream.
//
// A renderer records the steps it is about to introduce and the remover
// cancels them with an exponentially decaying offset.
// A nil *Remover is valid and ignores everything.
package clickrem

import (
	"cmp"
	"math"
	"slices"
)

type click struct {
	pos  int
	step int32
}

// Remover tracks the pending clicks of a single output channel.
type Remover struct {
	offset int32
	clicks []click
}

// New returns an empty remover.
func New() *Remover {
	return &Remover{clicks: make([]click, 0, 64)}
}

// RecordClick registers a step of the given size at pos
// of the buffer that is going to be passed to RemoveClicks.
//
// A click at position 0 is applied to the running offset right away.
func (r *Remover) RecordClick(pos int, step int32) {
	if r == nil || step == 0 {
		return
	}
	if pos == 0 {
		r.offset -= step
		return
	}
	r.clicks = append(r.clicks, click{pos: pos, step: step})
}

// RemoveClicks adds the decaying correction to buf and consumes
// all recorded clicks. The offset halves every halflife samples.
//
// The offset left after the last sample is kept for the next call.
// Clicks recorded past the end of buf are applied after its last sample.
func (r *Remover) RemoveClicks(buf []int32, halflife float64) {
	if r == nil {
		return
	}

	factor := decayFactor(halflife)

	slices.SortStableFunc(r.clicks, func(a, b click) int {
		return cmp.Compare(a.pos, b.pos)
	})

	pos := 0
	offset := r.offset
	for _, c := range r.clicks {
		end := min(c.pos, len(buf))
		pos, offset = applyOffset(buf, pos, end, offset, factor)
		offset -= c.step
	}
	r.clicks = r.clicks[:0]
	_, offset = applyOffset(buf, pos, len(buf), offset, factor)
	r.offset = offset
}

// Offset returns the current running correction.
func (r *Remover) Offset() int32 {
	if r == nil {
		return 0
	}
	return r.offset
}

// Clone returns an independent copy of r.
func (r *Remover) Clone() *Remover {
	if r == nil {
		return nil
	}
	return &Remover{
		offset: r.offset,
		clicks: slices.Clone(r.clicks),
	}
}

// NewArray returns n empty removers.
func NewArray(n int) []*Remover {
	rs := make([]*Remover, n)
	for i := range rs {
		rs[i] = New()
	}
	return rs
}

// RemoveClicksArray runs RemoveClicks for every remover with its own buffer.
func RemoveClicksArray(rs []*Remover, bufs [][]int32, halflife float64) {
	for i, r := range rs {
		if i < len(bufs) {
			r.RemoveClicks(bufs[i], halflife)
		}
	}
}

// Offsets adds the running corrections of rs to dst.
func Offsets(rs []*Remover, dst []int32) {
	for i, r := range rs {
		if i < len(dst) {
			dst[i] += r.Offset()
		}
	}
}

// decayFactor returns 0.5^(1/halflife) as a 1.31 fixed-point number.
func decayFactor(halflife float64) int64 {
	if halflife <= 0 {
		return 0
	}
	return int64(math.Floor(math.Pow(0.5, 1.0/halflife) * (1 << 31)))
}

func applyOffset(buf []int32, pos, end int, offset int32, factor int64) (int, int32) {
	// The decay is computed on the magnitude so that
	// positive and negative offsets round the same way.
	neg := offset < 0
	v := int64(offset)
	if neg {
		v = -v
	}
	for ; pos < end; pos++ {
		if neg {
			buf[pos] -= int32(v)
		} else {
			buf[pos] += int32(v)
		}
		v = (v << 1) * factor >> 32
	}
	if neg {
		v = -v
	}
	return pos, int32(v)
}
