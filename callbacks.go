package tracker

// Action is a callback verdict.
type Action uint8

const (
	// Continue lets the playback go on.
	Continue Action = iota

	// Stop ends the playback; GetSamples returns a short count.
	Stop
)

// Callbacks are the host hooks invoked synchronously by a renderer.
//
// A nil callback behaves as if it returned Continue.
// Callbacks must not call back into the renderer.
type Callbacks struct {
	// Loop is called when the playback goes back to an order
	// that was already played (including the song restart).
	Loop func() Action

	// XMSpeedZero is called when an XM song sets its speed to 0.
	// If Continue is returned, the song stays frozen on the current row
	// with only the tick effects running.
	XMSpeedZero func() Action

	// MIDI receives every byte sent by the Zxx effects.
	// Stop means "the byte is consumed"; the built-in filter
	// macro interpreter won't see it.
	MIDI func(channel int, b byte) Action

	// Note observes every pattern note (including note offs and cuts)
	// right after it was processed; delayed notes are reported when
	// they fire. instrument is 0 if the entry has none.
	// volume is the channel volume in [0, 64].
	Note func(channel int, note, instrument uint8, volume int)
}

// Terminate is a callback that always stops the playback.
// It can be used for both Loop and XMSpeedZero.
func Terminate() Action { return Stop }

// BlockMIDI is a MIDI callback that consumes every byte.
// Installing it disables the filter macros.
func BlockMIDI(channel int, b byte) Action { return Stop }

func (c *Callbacks) loop() bool {
	return c.Loop != nil && c.Loop() == Stop
}

func (c *Callbacks) xmSpeedZero() bool {
	return c.XMSpeedZero != nil && c.XMSpeedZero() == Stop
}

func (c *Callbacks) midi(channel int, b byte) bool {
	return c.MIDI != nil && c.MIDI(channel, b) == Stop
}

func (c *Callbacks) note(channel int, e *Entry, volume int) {
	if c.Note == nil {
		return
	}
	var instrument uint8
	if e.Mask.Contains(EntryInstrument) {
		instrument = e.Instrument
	}
	c.Note(channel, e.Note, instrument, volume)
}
