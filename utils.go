package tracker

type numeric interface {
	uint8 | int | int64 | float64
}

func clampMax[T numeric](v, max T) T {
	if v > max {
		return max
	}
	return v
}

func clamp[T numeric](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// slideClamp applies a slide of delta to v.
// A value that leaves [0, max] sticks to the bound the slide was moving to.
func slideClamp(v, delta, max int) int {
	v += delta
	if v > max || v < 0 {
		if delta >= 0 {
			return max
		}
		return 0
	}
	return v
}

// volumeUp raises v by d, capping the result at max.
func volumeUp(v, d, max int) int {
	return clampMax(v+d, max)
}

// volumeDown lowers v by d.
// A result outside of [0, max] becomes 0, even if v was above max already.
func volumeDown(v, d, max int) int {
	v -= d
	if v < 0 || v > max {
		return 0
	}
	return v
}
