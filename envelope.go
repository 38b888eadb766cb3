package tracker

// envelopeShift is the fixed-point precision of the envelope values.
const envelopeShift = 8

// envelopeCursor is a voice playback position inside an envelope.
type envelopeCursor struct {
	nextNode int
	tick     int
}

func (c *envelopeCursor) reset() {
	c.nextNode = 0
	c.tick = -1
}

// value returns the envelope value at the cursor position,
// scaled by 1<<envelopeShift.
func (e *Envelope) value(c *envelopeCursor) int {
	if c.nextNode <= 0 {
		return e.Nodes[0].Value << envelopeShift
	}
	if c.nextNode >= len(e.Nodes) {
		return e.Nodes[len(e.Nodes)-1].Value << envelopeShift
	}

	prev := e.Nodes[c.nextNode-1]
	next := e.Nodes[c.nextNode]
	ys := prev.Value << envelopeShift
	if prev.Tick == next.Tick {
		return ys
	}
	ye := next.Value << envelopeShift
	return ys + (ye-ys)*(c.tick-prev.Tick)/(next.Tick-prev.Tick)
}

// itEnded reports whether an IT envelope cursor has nothing left to play.
func (e *Envelope) itEnded(c *envelopeCursor, sustainOff bool) bool {
	n := len(e.Nodes)
	if c.nextNode >= n {
		return true
	}
	if c.tick < e.Nodes[c.nextNode].Tick {
		return false
	}
	if e.Flags.Contains(EnvelopeLoop) && e.LoopEnd >= c.nextNode && e.Nodes[e.LoopEnd].Tick <= c.tick {
		return false
	}
	if e.Flags.Contains(EnvelopeSustainLoop) && !sustainOff &&
		e.SustainEnd >= c.nextNode && e.Nodes[e.SustainEnd].Tick <= c.tick {
		return false
	}
	return e.Nodes[n-1].Tick <= c.tick
}

// itAdvance moves the cursor by one tick using the IT rules:
// the loop is always active, the sustain loop is active until the key is released.
// It returns true if the envelope is finished.
func (e *Envelope) itAdvance(c *envelopeCursor, sustainOff bool) bool {
	if !e.Flags.Contains(EnvelopeOn) {
		return false
	}
	if c.nextNode >= len(e.Nodes) {
		return true
	}

	for c.tick >= e.Nodes[c.nextNode].Tick {
		if e.Flags.Contains(EnvelopeLoop) && c.nextNode == e.LoopEnd {
			c.nextNode = e.LoopStart
			c.tick = e.Nodes[e.LoopStart].Tick
			return e.itEnded(c, sustainOff)
		}
		if e.Flags.Contains(EnvelopeSustainLoop) && !sustainOff && c.nextNode == e.SustainEnd {
			c.nextNode = e.SustainStart
			c.tick = e.Nodes[e.SustainStart].Tick
			return e.itEnded(c, sustainOff)
		}
		c.nextNode++
		if c.nextNode >= len(e.Nodes) {
			return true
		}
	}

	c.tick++
	return e.itEnded(c, sustainOff)
}

// xmSustaining reports whether an XM envelope holds at its sustain point.
func (e *Envelope) xmSustaining(c *envelopeCursor, sustainOff bool) bool {
	return e.Flags.Contains(EnvelopeSustainLoop) && !sustainOff &&
		e.SustainStart < len(e.Nodes) && c.tick == e.Nodes[e.SustainStart].Tick
}

// xmAdvance moves the cursor by one tick using the XM rules:
// the sustain point freezes the envelope while the key is held
// and reaching the loop end jumps back to the loop start.
func (e *Envelope) xmAdvance(c *envelopeCursor, sustainOff bool) {
	if !e.Flags.Contains(EnvelopeOn) {
		return
	}
	if e.xmSustaining(c, sustainOff) {
		return
	}
	last := len(e.Nodes) - 1
	if c.tick >= e.Nodes[last].Tick {
		return
	}

	c.tick++
	for c.tick > e.Nodes[c.nextNode].Tick {
		c.nextNode++
	}

	if e.Flags.Contains(EnvelopeLoop) && e.LoopEnd <= last && c.tick == e.Nodes[e.LoopEnd].Tick {
		c.nextNode = clamp(e.LoopStart, 0, last)
		c.tick = e.Nodes[c.nextNode].Tick
	}
}
