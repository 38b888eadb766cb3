package tracker

import (
	"github.com/quasilyte/tracker/resample"
)

type voiceFlags uint8

const (
	// voiceBackground is set for the voices that lost their channel
	// to a newer note (the new note action kept them ringing).
	voiceBackground voiceFlags = 1 << iota

	// voiceSustainOff is set after the key is released.
	voiceSustainOff

	voiceFading

	// voiceDead voices are skipped by the mixer and freed
	// as soon as nothing owns them.
	voiceDead
)

func (f voiceFlags) Contains(v voiceFlags) bool { return f&v != 0 }

// voice is a single sounding sample instance.
type voice struct {
	flags voiceFlags

	// channel is an index of the channel that started this voice.
	channel int

	sample     *Sample
	instrument *Instrument

	// envInstrument provides the envelopes; it can differ from
	// the instrument after a Gxx instrument change.
	envInstrument *Instrument

	sampleNum     int
	instrumentNum int

	channelVolume int
	volume        int
	pan           int
	note          int

	filterCutoff        int
	filterResonance     int
	trueFilterCutoff    int
	trueFilterResonance int

	vibratoSpeed int
	vibratoDepth int
	vibratoN     int
	vibratoTime  uint8

	tremoloSpeed int
	tremoloDepth int
	tremoloTime  uint8

	sampleVibratoTime  uint8
	sampleVibratoDepth int

	slide int

	// delta is a sample step per 1/65536 of a second.
	delta float64

	volumeEnvelope envelopeCursor
	panEnvelope    envelopeCursor
	pitchEnvelope  envelopeCursor

	fadeoutCount int

	filters    [2]filterState
	resamplers [2]resample.Resampler
}

func (v *voice) clone() *voice {
	if v == nil {
		return nil
	}
	cloned := *v
	return &cloned
}

// lost reports whether a background voice is dead and can be freed.
func (v *voice) lost() bool {
	return v.flags&(voiceBackground|voiceDead) == voiceBackground|voiceDead
}

// start prepares a voice for a freshly triggered note.
// Envelope cursors and fadeout are left to the caller since
// the IT and XM rules differ there.
func (v *voice) start(r *Renderer, ch *channel) {
	song := r.song
	v.flags = 0
	v.channel = ch.index
	v.sample = &song.Samples[ch.sample-1]
	v.instrument = nil
	if song.Flags.Contains(SongUseInstruments) {
		v.instrument = &song.Instruments[ch.instrument-1]
	}
	v.envInstrument = v.instrument
	v.sampleNum = ch.sample
	v.instrumentNum = ch.instrument
	v.channelVolume = ch.channelVolume
	v.note = ch.trueNote
	v.filterCutoff = 127
	v.filterResonance = 0
	v.trueFilterCutoff = 127 << envelopeShift
	v.trueFilterResonance = 0
	v.vibratoSpeed = 0
	v.vibratoDepth = 0
	v.vibratoN = 0
	v.vibratoTime = 0
	v.tremoloSpeed = 0
	v.tremoloDepth = 0
	v.tremoloTime = 0
	v.sampleVibratoTime = 0
	v.sampleVibratoDepth = 0
	v.slide = 0
	v.filters[0].reset()
	v.filters[1].reset()
	v.resetResamplers(0, r.config.Quality)
}

func (v *voice) resetEnvelopes() {
	v.volumeEnvelope.reset()
	v.panEnvelope.reset()
	v.pitchEnvelope.reset()
	v.fadeoutCount = 1024
}

// resetResamplers must be called whenever the sample or the sample position changes.
func (v *voice) resetResamplers(pos int, quality resample.Quality) {
	v.resamplers[0].Reset(v.sample.Left, pos, 0, 0, resample.PickupStop)
	v.resamplers[1].Reset(v.sample.Right, pos, 0, 0, resample.PickupStop)
	v.resamplers[0].Quality = quality
	v.resamplers[1].Quality = quality
	v.flags &^= voiceDead
	v.updateResamplers()
}

// updateResamplers makes the resampler bounds follow the loop
// that is active for the current key state.
func (v *voice) updateResamplers() {
	s := v.sample
	var start, end int
	var pickup resample.Pickup
	switch {
	case s.Flags.Contains(SampleSustainLoop) && !v.flags.Contains(voiceSustainOff):
		start, end = s.SustainLoopStart, s.SustainLoopEnd
		pickup = resample.PickupLoop
		if s.Flags.Contains(SamplePingPongSustainLoop) {
			pickup = resample.PickupPingPong
		}
	case s.Flags.Contains(SampleLoop):
		start, end = s.LoopStart, s.LoopEnd
		pickup = resample.PickupLoop
		if s.Flags.Contains(SamplePingPongLoop) {
			pickup = resample.PickupPingPong
		}
	default:
		if s.Flags.Contains(SampleSustainLoop) {
			start = s.SustainLoopStart
		}
		end = s.Length
		pickup = resample.PickupStop
	}
	v.resamplers[0].SetLoop(start, end, pickup)
	v.resamplers[1].SetLoop(start, end, pickup)
}

// fixSampleLooping moves a voice that leaves its sustain loop
// to the position it would have without the sustain loop repetitions.
func (v *voice) fixSampleLooping() {
	if !v.sample.Flags.Contains(SampleLoop) || !v.sample.Flags.Contains(SampleSustainLoop) {
		return
	}
	lost := v.resamplers[0].TimeLost()
	for i := range v.resamplers {
		rs := &v.resamplers[i]
		rs.Mirror(v.sample.SustainLoopEnd)
		rs.Skip(lost)
	}
}

// sampleEnd returns the end of the playable sample region
// for the current key state.
func (v *voice) sampleEnd() int {
	s := v.sample
	switch {
	case s.Flags.Contains(SampleSustainLoop) && !v.flags.Contains(voiceSustainOff):
		return s.SustainLoopEnd
	case s.Flags.Contains(SampleLoop):
		return s.LoopEnd
	default:
		return s.Length
	}
}
