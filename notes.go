package tracker

// dialect implements the format-specific parts of the playback.
//
// IT songs (and S3M songs converted to IT) use itDialect;
// XM and MOD songs use xmDialect.
type dialect interface {
	// noteData applies the note, instrument and volume columns of e.
	// It returns false if the effect column must be skipped.
	noteData(r *Renderer, ch *channel, e *Entry) bool

	// postEffects handles the volume column commands
	// that have to run after the effect column.
	postEffects(ch *channel, e *Entry)

	// cutNote is called when a delayed note cut expires.
	cutNote(ch *channel)

	// advanceVoice updates the voice envelopes and fadeout once per tick.
	advanceVoice(v *voice)
}

func dialectOf(song *Song) dialect {
	if song.wasXM() {
		return xmDialect{}
	}
	return itDialect{}
}

// instrumentToSample resolves the channel sample and true note.
// After the call ch.sample is either 0 or a valid sample index.
func (r *Renderer) instrumentToSample(ch *channel) {
	song := r.song
	if song.Flags.Contains(SongUseInstruments) {
		ch.sample = 0
		if inst := r.channelInstrument(ch); inst != nil && ch.note < 120 {
			ch.sample = int(inst.MapSample[ch.note])
			ch.trueNote = int(inst.MapNote[ch.note])
		}
	} else {
		ch.sample = ch.instrument
		ch.trueNote = ch.note
	}

	valid := ch.sample >= 1 && ch.sample <= len(song.Samples) &&
		song.Samples[ch.sample-1].Flags.Contains(SampleExists)
	if !valid {
		ch.sample = 0
	}
}

// channelInstrument returns nil if the channel instrument index is not valid.
func (r *Renderer) channelInstrument(ch *channel) *Instrument {
	if ch.instrument < 1 || ch.instrument > len(r.song.Instruments) {
		return nil
	}
	return &r.song.Instruments[ch.instrument-1]
}

// applyDefaultVolPan applies the sample (or instrument) defaults to the channel.
func (r *Renderer) applyDefaultVolPan(ch *channel) {
	if ch.sample == 0 {
		return
	}
	s := &r.song.Samples[ch.sample-1]
	ch.volume = s.DefaultVolume
	if s.DefaultPan >= 128 && s.DefaultPan <= 192 {
		ch.pan = s.DefaultPan - 128
		return
	}

	if !r.song.Flags.Contains(SongUseInstruments) {
		return
	}
	inst := r.channelInstrument(ch)
	if inst == nil {
		return
	}
	if inst.DefaultPan <= 64 {
		ch.pan = inst.DefaultPan
	}
	if inst.FilterCutoff >= 128 {
		ch.filterCutoff = inst.FilterCutoff - 128
	}
	if inst.FilterResonance >= 128 {
		ch.filterResonance = inst.FilterResonance - 128
	}
}

// updateTruePan applies the instrument pitch-pan separation.
func (r *Renderer) updateTruePan(ch *channel) {
	ch.truePan = ch.pan << envelopeShift
	if isSurround(ch.truePan) || !r.song.Flags.Contains(SongUseInstruments) {
		return
	}
	inst := r.channelInstrument(ch)
	if inst == nil {
		return
	}
	pan := ch.truePan + (ch.note-inst.PitchPanCenter)*inst.PitchPanSeparation<<(envelopeShift-3)
	ch.truePan = clamp(pan, 0, 64<<envelopeShift)
}

// isSurround reports whether a shifted pan is the surround mode.
func isSurround(pan int) bool {
	return pan >= PanSurround<<envelopeShift
}

// itRetriggerNote applies the new note action to the current voice
// and starts a new voice for the channel note.
func (r *Renderer) itRetriggerNote(ch *channel) {
	if v := ch.voice; v != nil {
		var nna NewNoteAction
		switch {
		// A note cut is handled as a note off: every note >= 120 is one.
		case ch.note >= 120:
			nna = NNANoteOff
		case v.instrument == nil || v.flags.Contains(voiceDead):
			nna = NNACut
		default:
			nna = v.instrument.NNA
		}

		switch nna {
		case NNACut:
			ch.voice = nil
		case NNANoteOff:
			v.flags |= voiceBackground | voiceSustainOff
			v.fixSampleLooping()
			v.updateResamplers()
			if v.instrument != nil {
				envFlags := v.instrument.VolumeEnvelope.Flags & (EnvelopeOn | EnvelopeLoop)
				if envFlags != EnvelopeOn {
					v.flags |= voiceFading
				}
			}
		case NNAFade:
			v.flags |= voiceBackground | voiceFading
		}
	}

	if ch.sample == 0 || ch.note >= 120 {
		return
	}

	ch.destNote = int(NoteOff)

	if ch.voice != nil {
		if !r.moveToBackground(ch.voice) {
			r.config.Logger.Debug("voice pool is full, cutting the note", "channel", ch.index)
		}
		ch.voice = nil
	}

	v := &voice{}
	v.resetEnvelopes()
	v.start(r, ch)
	ch.voice = v
}

// moveToBackground puts a voice into the first free background slot.
func (r *Renderer) moveToBackground(v *voice) bool {
	for i, slot := range r.nnaVoices {
		if slot == nil {
			r.nnaVoices[i] = v
			return true
		}
	}
	return false
}

func (r *Renderer) retriggerItEnvelopes(ch *channel) {
	v := ch.voice
	v.resetEnvelopes()
	v.flags &^= voiceBackground | voiceSustainOff | voiceFading | voiceDead
	v.updateResamplers()

	if ch.sample != 0 && r.song.Flags.Contains(SongUseInstruments) {
		if inst := r.channelInstrument(ch); inst != nil {
			v.envInstrument = inst
		}
	}
}

// retriggerXMEnvelopes restarts the volume and pan envelopes.
// XM has no pitch envelope, so its cursor is left alone.
func retriggerXMEnvelopes(v *voice) {
	v.volumeEnvelope.reset()
	v.panEnvelope.reset()
	v.fadeoutCount = 1024
}

// restartVoice moves the channel voice back to the sample start (note retrigger).
func (r *Renderer) restartVoice(ch *channel) {
	if ch.voice != nil {
		ch.voice.resetResamplers(0, r.config.Quality)
	}
}

type itDialect struct{}

func (itDialect) noteData(r *Renderer, ch *channel, e *Entry) bool {
	song := r.song

	if e.Mask.Contains(EntryNote) || e.Mask.Contains(EntryInstrument) {
		if e.Mask.Contains(EntryInstrument) {
			ch.instrument = int(e.Instrument)
		}
		r.instrumentToSample(ch)
		if ch.note < 120 {
			if song.Flags.Contains(SongUseInstruments) && ch.sample == 0 {
				return false
			}
			if e.Mask.Contains(EntryInstrument) {
				r.applyDefaultVolPan(ch)
			}
		} else {
			r.itRetriggerNote(ch)
		}
	}

	volPanPorta := e.Mask.Contains(EntryVolPan) && e.VolPan >= 193 && e.VolPan <= 202
	if ch.voice != nil && (volPanPorta || e.effectTonePorta()) {
		if e.Mask.Contains(EntryInstrument) {
			if song.Flags.Contains(SongCompatibleGxx) {
				r.retriggerItEnvelopes(ch)
			} else {
				instrumentOK := !song.Flags.Contains(SongUseInstruments) || r.channelInstrument(ch) != nil
				if instrumentOK && ch.sample != ch.voice.sampleNum {
					// The sample changes but the pitch continues to slide.
					note := ch.voice.note
					slide := ch.voice.slide
					r.itRetriggerNote(ch)
					if ch.voice != nil {
						ch.voice.note = note
						ch.voice.slide = slide
					}
				}
			}
		}

		var v uint8
		if volPanPorta {
			v = volPanTonePorta[e.VolPan-193]
		} else if e.Effect == EffectTonePortamento {
			v = e.EffectValue
		}
		memory := &ch.lastEF
		if song.Flags.Contains(SongCompatibleGxx) {
			memory = &ch.lastG
		}
		if v == 0 {
			v = *memory
		}
		*memory = v
		if e.Mask.Contains(EntryNote) && ch.sample != 0 {
			ch.destNote = ch.trueNote
		}
		ch.tonePorta = int(v) << 4
	} else if e.Mask.Contains(EntryNote) ||
		(e.Mask.Contains(EntryInstrument) && (ch.voice == nil || int(e.Instrument) != ch.voice.instrumentNum)) {
		if ch.note < 120 {
			r.updateTruePan(ch)
			r.itRetriggerNote(ch)
		}
	}

	if e.Mask.Contains(EntryVolPan) {
		vp := e.VolPan
		switch {
		case vp <= 64:
			ch.volume = int(vp)
		case vp <= 74:
			v := vp - 65
			if v == 0 {
				v = ch.lastVolslide
			}
			ch.lastVolslide = v
			ch.volumeUp(int(v))
		case vp <= 84:
			v := vp - 75
			if v == 0 {
				v = ch.lastVolslide
			}
			ch.lastVolslide = v
			ch.volumeDown(int(v))
		case vp >= 128 && vp <= 192:
			ch.setPan(int(vp) - 128)
		}
	}

	return true
}

func (itDialect) postEffects(ch *channel, e *Entry) {
	if !e.Mask.Contains(EntryVolPan) {
		return
	}
	vp := e.VolPan
	switch {
	case vp <= 84:
		// Handled together with the note.
	case vp <= 94:
		v := vp - 85
		if v == 0 {
			v = ch.lastVolslide
		}
		ch.lastVolslide = v
		ch.volslide = int(v)
	case vp <= 104:
		v := vp - 95
		if v == 0 {
			v = ch.lastVolslide
		}
		ch.lastVolslide = v
		ch.volslide = -int(v)
	case vp <= 114:
		v := (vp - 105) << 2
		if v == 0 {
			v = ch.lastEF
		}
		ch.lastEF = v
		ch.portamento -= int(v) << 4
	case vp <= 124:
		v := (vp - 115) << 2
		if v == 0 {
			v = ch.lastEF
		}
		ch.lastEF = v
		ch.portamento += int(v) << 4
	case vp <= 202:
		// Pan and tone portamento are handled together with the note.
	case vp <= 212:
		v := vp - 203
		if v == 0 {
			v = ch.lastHDepth
		} else {
			v <<= 2
			ch.lastHDepth = v
		}
		if ch.voice != nil {
			ch.voice.vibratoSpeed = int(ch.lastHSpeed)
			ch.voice.vibratoDepth = int(v)
			ch.voice.vibratoN++
		}
	}
}

func (itDialect) cutNote(ch *channel) {
	ch.voice = nil
}

func (itDialect) advanceVoice(v *voice) {
	inst := v.envInstrument
	sustainOff := v.flags.Contains(voiceSustainOff)
	if inst.VolumeEnvelope.itAdvance(&v.volumeEnvelope, sustainOff) {
		v.flags |= voiceFading
		nodes := inst.VolumeEnvelope.Nodes
		if nodes[len(nodes)-1].Value == 0 {
			v.flags |= voiceDead
		}
	}
	inst.PanEnvelope.itAdvance(&v.panEnvelope, sustainOff)
	inst.PitchEnvelope.itAdvance(&v.pitchEnvelope, sustainOff)

	if v.flags.Contains(voiceFading) {
		v.fadeoutCount -= inst.Fadeout
		if v.fadeoutCount <= 0 {
			v.fadeoutCount = 0
			v.flags |= voiceDead
		}
	}
}

type xmDialect struct{}

func (xmDialect) noteData(r *Renderer, ch *channel, e *Entry) bool {
	if e.Mask.Contains(EntryInstrument) {
		ch.instrument = int(e.Instrument)
		r.instrumentToSample(ch)
		if v := ch.voice; v != nil {
			// An instrument alone retriggers the envelopes and cancels the fadeout.
			v.flags &^= voiceSustainOff | voiceFading
			v.updateResamplers()
			ch.volume = v.sample.DefaultVolume
			retriggerXMEnvelopes(v)
		}
	}

	if e.Mask.Contains(EntryNote) {
		if !e.Mask.Contains(EntryInstrument) {
			r.instrumentToSample(ch)
		}

		switch {
		case ch.note >= 120:
			if v := ch.voice; v != nil {
				inst := r.channelInstrument(ch)
				if inst != nil && !inst.VolumeEnvelope.Flags.Contains(EnvelopeOn) && !e.Mask.Contains(EntryInstrument) {
					ch.volume = 0
				}
				v.flags |= voiceSustainOff | voiceFading
				v.updateResamplers()
			}
		case ch.sample == 0:
			// Any playing note stops until a valid instrument is set.
			ch.voice = nil
			return true
		case ch.voice != nil && e.Mask.Contains(EntryVolPan) && e.VolPan>>4 == 0xF:
			// Volume column tone portamento: keep the note going.
		case ch.voice != nil && e.effectTonePorta():
			// Same for the effect column tone portamento.
		default:
			ch.destNote = int(NoteOff)
			if ch.voice == nil {
				ch.voice = &voice{}
				ch.voice.resetEnvelopes()
			}
			ch.voice.start(r, ch)
		}
	}

	if e.Mask.Contains(EntryNote) && e.Mask.Contains(EntryInstrument) {
		if ch.voice != nil {
			retriggerXMEnvelopes(ch.voice)
		}
		r.applyDefaultVolPan(ch)
		ch.truePan = ch.pan << envelopeShift
	}

	switch {
	case e.Mask.Contains(EntryVolPan) && e.VolPan>>4 == 0xF:
		v := (e.VolPan & 15) << 4
		if v == 0 {
			v = ch.lastG
		}
		ch.lastG = v
		if e.Mask.Contains(EntryNote) && ch.sample != 0 {
			ch.destNote = ch.trueNote
		}
		ch.tonePorta = int(v) << 4
	case e.effectTonePorta():
		var v uint8
		if e.Effect == EffectTonePortamento {
			v = e.EffectValue
		}
		if v == 0 {
			v = ch.lastG
		}
		ch.lastG = v
		if e.Mask.Contains(EntryNote) && ch.sample != 0 {
			ch.destNote = ch.trueNote
		}
		ch.tonePorta = int(v) << 4
	}

	if e.Mask.Contains(EntryVolPan) {
		value := int(e.VolPan & 15)
		switch e.VolPan >> 4 {
		case 0x6:
			ch.xmVolslide = -value
		case 0x7:
			ch.xmVolslide = value
		case 0x8:
			ch.volumeDown(value)
		case 0x9:
			ch.volumeUp(value)
		case 0xA:
			if value != 0 {
				ch.lastHSpeed = uint8(value)
			}
			if ch.voice != nil {
				ch.voice.vibratoSpeed = int(ch.lastHSpeed)
			}
		case 0xB:
			if value != 0 {
				ch.lastHDepth = uint8(value << 2)
			}
			if ch.voice != nil {
				ch.voice.vibratoDepth = int(ch.lastHDepth)
				ch.voice.vibratoSpeed = int(ch.lastHSpeed)
				ch.voice.vibratoN++
			}
		case 0xC:
			ch.setPan(value * 64 / 15)
		case 0xD, 0xE, 0xF:
			// Pan slides are not supported; 0xF is the tone portamento.
		default:
			ch.volume = int(e.VolPan) - 0x10
		}
	}

	return true
}

func (xmDialect) postEffects(ch *channel, e *Entry) {}

func (xmDialect) cutNote(ch *channel) {
	ch.volume = 0
}

func (xmDialect) advanceVoice(v *voice) {
	inst := v.envInstrument
	sustainOff := v.flags.Contains(voiceSustainOff)
	inst.VolumeEnvelope.xmAdvance(&v.volumeEnvelope, sustainOff)
	inst.PanEnvelope.xmAdvance(&v.panEnvelope, sustainOff)

	if v.flags.Contains(voiceFading) {
		v.fadeoutCount -= inst.Fadeout
		if v.fadeoutCount <= 0 {
			v.fadeoutCount = 0
		}
	}
}
