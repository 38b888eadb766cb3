// Package resample implements a 16.16 fixed-point sample resampler
// with loop pickups and selectable interpolation quality.
package resample

import (
	"math"
)

// Quality selects the interpolation kernel used by Resample.
// Any value above QualityCubic is treated as QualityCubic.
type Quality int

const (
	QualityNearest Quality = iota
	QualityLinear
	QualityCubic
)

// Pickup decides what happens when the playback position crosses a loop bound.
type Pickup uint8

const (
	// PickupStop stops the resampler at the end bound.
	// A resampler that moves backwards bounces off the start bound once.
	PickupStop Pickup = iota

	// PickupLoop wraps the position back by the loop length.
	PickupLoop

	// PickupPingPong reverses the direction and mirrors the position.
	PickupPingPong
)

// Resampler reads a source buffer at an arbitrary rate and direction.
//
// The zero value is a stopped resampler; use Reset to bind a source.
// Copying a Resampler by value produces an independent resampler
// that shares the (read-only) source buffer.
type Resampler struct {
	src []int32

	// pos is a 16.16 fixed-point position inside src.
	pos   int64
	start int64
	end   int64

	dir    int8
	pickup Pickup

	// looped is set after the first pickup; from then on
	// the samples before start are taken from the loop.
	looped bool

	timeLost int64

	Quality    Quality
	MinQuality Quality
	MaxQuality Quality
}

// Reset binds the resampler to src and moves it to pos (in whole samples).
// The direction becomes forward, the pickup history is cleared
// and the quality bounds are reset to the full range.
func (r *Resampler) Reset(src []int32, pos, start, end int, pickup Pickup) {
	r.src = src
	r.pos = int64(pos) << 16
	r.start = int64(start)
	r.end = int64(end)
	r.pickup = pickup
	r.dir = 1
	r.looped = false
	r.timeLost = 0
	r.MinQuality = QualityNearest
	r.MaxQuality = QualityCubic
}

// SetLoop changes the loop bounds and the pickup without touching the position.
func (r *Resampler) SetLoop(start, end int, pickup Pickup) {
	r.start = int64(start)
	r.end = int64(end)
	r.pickup = pickup
}

// Dir reports the playback direction: 1, -1 or 0 for a stopped resampler.
func (r *Resampler) Dir() int { return int(r.dir) }

// Stopped reports whether the resampler reached the end of a non-looped source.
func (r *Resampler) Stopped() bool { return r.dir == 0 }

// Stop makes every further call a no-op.
func (r *Resampler) Stop() { r.dir = 0 }

// Pos returns the 16.16 fixed-point position.
func (r *Resampler) Pos() int64 { return r.pos }

// Bounds returns the current loop bounds.
func (r *Resampler) Bounds() (start, end int) { return int(r.start), int(r.end) }

// TimeLost returns the number of samples skipped by loop pickups
// since the last Reset.
func (r *Resampler) TimeLost() int64 { return r.timeLost }

// Mirror turns a backwards moving resampler around the edge sample bound.
// It does nothing when the resampler moves forward.
func (r *Resampler) Mirror(edge int) {
	if r.dir >= 0 {
		return
	}
	r.pos = int64(edge)<<17 - 1 - r.pos
	r.dir = 1
}

// Skip moves the position by n whole samples.
func (r *Resampler) Skip(n int64) {
	r.pos += n << 16
}

func (r *Resampler) quality() Quality {
	q := r.Quality
	if q > r.MaxQuality {
		q = r.MaxQuality
	} else if q < r.MinQuality {
		q = r.MinQuality
	}
	return q
}

// Resample advances the resampler by delta source samples per output sample
// for up to n output samples.
//
// Interpolated samples multiplied by volume are added to dst.
// A nil dst (or a zero volume) only advances the position.
// The number of produced samples is returned; it is less than n
// only if the resampler stopped.
func (r *Resampler) Resample(dst []int32, n int, volume, delta float64) int {
	if r.dir == 0 {
		return 0
	}

	dt := int64(delta*65536.0 + 0.5)
	if dt < 0 {
		dt = -dt
	}
	vol := int64(math.Floor(volume*65536.0 + 0.5))
	if vol == 0 {
		dst = nil
	}
	if dst != nil && len(dst) < n {
		n = len(dst)
	}

	q := r.quality()
	for i := 0; i < n; i++ {
		if !r.settle() {
			return i
		}
		if dst != nil {
			dst[i] += int32((int64(r.interpolate(q)) * vol) >> 16)
		}
		r.pos += dt * int64(r.dir)
	}
	r.settle()
	return n
}

// CurrentSample returns the sample that the next Resample call would produce
// at the given volume. The resampler state is not changed.
func (r *Resampler) CurrentSample(volume float64) int32 {
	if r.dir == 0 {
		return 0
	}
	c := *r
	if !c.settle() {
		return 0
	}
	vol := int64(math.Floor(volume*65536.0 + 0.5))
	return int32((int64(c.interpolate(c.quality())) * vol) >> 16)
}

// settle applies the pickups until the position is inside the playable range.
// It returns false if the resampler stopped.
func (r *Resampler) settle() bool {
	for r.dir != 0 {
		if r.dir > 0 {
			if r.pos < r.end<<16 {
				return true
			}
		} else if r.pos >= r.start<<16 {
			return true
		}
		r.pickUp()
	}
	return false
}

func (r *Resampler) pickUp() {
	length := r.end - r.start
	if length <= 0 {
		r.dir = 0
		return
	}

	switch r.pickup {
	case PickupLoop:
		if r.dir > 0 {
			r.pos -= length << 16
		} else {
			r.pos += length << 16
		}
		r.timeLost += length

	case PickupPingPong:
		if r.dir < 0 {
			r.pos = r.start<<17 - 1 - r.pos
			r.timeLost += length << 1
		} else {
			r.pos = r.end<<17 - 1 - r.pos
		}
		r.dir = -r.dir

	default:
		if r.dir > 0 {
			r.dir = 0
			return
		}
		r.pos = r.start<<17 - 1 - r.pos
		r.dir = 1
	}

	r.looped = true
}

// fetch returns the source sample k, resolving the indexes
// outside of the loop bounds the same way the pickups would.
func (r *Resampler) fetch(k int64) int32 {
	switch {
	case k >= r.end:
		length := r.end - r.start
		if length <= 0 {
			return 0
		}
		switch r.pickup {
		case PickupLoop:
			k = r.start + (k-r.end)%length
		case PickupPingPong:
			k = r.end<<1 - 1 - k
			if k < r.start {
				k = r.start
			}
		default:
			return 0
		}

	case k < r.start && r.looped:
		length := r.end - r.start
		if length <= 0 {
			return 0
		}
		if r.pickup == PickupLoop {
			k = r.end - 1 - (r.start-1-k)%length
		} else {
			k = r.start<<1 - 1 - k
			if k >= r.end {
				k = r.end - 1
			}
		}
	}

	if k < 0 || k >= int64(len(r.src)) {
		return 0
	}
	return r.src[k]
}

func (r *Resampler) interpolate(q Quality) int32 {
	i := r.pos >> 16
	t := r.pos & 0xffff

	switch q {
	case QualityNearest:
		return r.fetch(i)

	case QualityLinear:
		x0 := int64(r.fetch(i))
		x1 := int64(r.fetch(i + 1))
		return int32(x0 + ((x1 - x0) * t >> 16))

	default:
		// Catmull-Rom spline over 4 taps.
		xm := int64(r.fetch(i - 1))
		x0 := int64(r.fetch(i))
		x1 := int64(r.fetch(i + 1))
		x2 := int64(r.fetch(i + 2))
		a := 3*(x0-x1) + x2 - xm
		b := 2*xm - 5*x0 + 4*x1 - x2
		c := x1 - xm
		v := ((a*t>>16+b)*t>>16 + c) * t >> 17
		return int32(x0 + v)
	}
}
