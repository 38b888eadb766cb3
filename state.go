package tracker

// ChannelState is a snapshot of a voice for visualizers.
type ChannelState struct {
	// Channel is the pattern channel that started the voice.
	Channel int

	// Sample is a 1-based sample index; 0 means "nothing is playing".
	Sample int

	// Volume is the linear voice volume in [0, 1].
	Volume float64

	// Pan is in [0, 64] (PanSurround for the surround mode);
	// SubPan holds the fractional part in 1/256 units.
	Pan    uint8
	SubPan int8

	// Freq is the playback rate in samples per second.
	Freq int

	// FilterCutoff is in [0, 127] with FilterSubCutoff as the fractional part.
	FilterCutoff    uint8
	FilterSubCutoff uint8

	FilterResonance uint8
}

// ChannelState returns the state of a voice.
//
// Indexes below NumChannels address the pattern channels,
// the next NumNNAVoices indexes address the background voices.
// A zero state is returned for the out of range indexes and for silent voices.
func (r *Renderer) ChannelState(i int) ChannelState {
	var v *voice
	switch {
	case i >= 0 && i < NumChannels:
		v = r.channels[i].voice
	case i >= NumChannels && i < NumVoices:
		v = r.nnaVoices[i-NumChannels]
	}
	if v == nil || v.flags.Contains(voiceDead) {
		return ChannelState{}
	}

	state := ChannelState{
		Channel: v.channel,
		Sample:  v.sampleNum,
		Volume:  r.calculateVolume(v, 1.0),
	}

	t := v.envelopePan()
	state.Pan = uint8((t + 128) >> envelopeShift)
	state.SubPan = int8(t)

	delta, t := r.pitchModifications(v, v.delta*65536.0, v.filterCutoff<<envelopeShift)
	state.Freq = int(delta)
	if t == 127<<envelopeShift && v.filterResonance == 0 {
		state.FilterResonance = uint8(v.trueFilterResonance)
		t = v.trueFilterCutoff
	} else {
		state.FilterResonance = uint8(v.filterResonance)
	}
	state.FilterCutoff = uint8(t >> 8)
	state.FilterSubCutoff = uint8(t)

	return state
}
