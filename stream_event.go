package tracker

import (
	"math"
)

// StreamEventKind is an event tag that should be used to differentiate between different event types.
// See StreamEvent docs for more info.
type StreamEventKind int

const (
	// EventUnknown is a sentinel value.
	// You should never receive an event of this kind.
	EventUnknown StreamEventKind = iota

	// EventNote is emitted every time a channel gets a note.
	// It's also triggered for note offs and notes that don't sound
	// (like a tone portamento target), so it's up to the application
	// to decide whether they need to handle that note or not.
	//
	// Use StreamEvent.NoteEventData to get the event data.
	EventNote

	// EventSync tells the application to update their time counter to the specified value.
	//
	// As any other event, the sync event has a Time field that you should use as a
	// description of when the counter should be updated.
	// Therefore, a sync event with Time=2.0 and data argument of 2.5 should
	// force the application to set its time counter to 2.5, but only if
	// it already reached a time counter value of 2.0.
	//
	// Use StreamEvent.SyncEventData to get the event data.
	EventSync

	// EventLoop is emitted when the song goes back to an already played order.
	// If the stream is not looping, the playback ends right after this event.
	EventLoop

	// EventMIDI is emitted for every MIDI macro byte.
	//
	// Use StreamEvent.MIDIEventData to get the event data.
	EventMIDI
)

// StreamEvent holds a single Stream event data.
// This object is an argument to the Stream.SetEventHandler function.
//
// To handle the event correctly, you must first check its kind.
// For an event of kind EventNote there is a NoteEventData method that
// will return the associated data. For EventSync there is a SyncEventData.
//
// Every event has a Time value. This is a moment when this event happened in
// relation to the song start (in seconds). The events are reported when
// the samples are rendered, so the application needs to handle them
// in the right moment on its own.
type StreamEvent struct {
	Kind StreamEventKind

	// Channel is an event pattern channel.
	// Some events may be channel-independent.
	Channel int

	// Time represents the playback offset in seconds.
	// Time=2.5 means that this event happened somewhere around 2.5 seconds.
	Time float64

	value uint64
}

func newNoteEvent(t float64, channel int, note, instrument uint8, vol float32) StreamEvent {
	return StreamEvent{
		Kind:    EventNote,
		Channel: channel,
		Time:    t,
		value:   uint64(note) | uint64(instrument)<<8 | uint64(math.Float32bits(vol))<<16,
	}
}

// NoteEventData returns the event data if e.Kind=EventNote.
// The return values are: note, instrument (1-based), channel volume in [0, 1].
// If there is no instrument in the pattern entry, 0 is returned.
// Notes >= 120 are the note offs and note cuts.
func (e StreamEvent) NoteEventData() (note, instrument int, vol float32) {
	noteBits := e.value & 0xff
	instrumentBits := (e.value >> 8) & 0xff
	volBits := e.value >> 16
	return int(noteBits), int(instrumentBits), math.Float32frombits(uint32(volBits))
}

// SyncEventData returns the event data if e.Kind=EventSync.
// The return values are: a time to synchronize to.
func (e StreamEvent) SyncEventData() (t float64) {
	return math.Float64frombits(e.value)
}

// MIDIEventData returns the event data if e.Kind=EventMIDI.
func (e StreamEvent) MIDIEventData() byte {
	return byte(e.value)
}
