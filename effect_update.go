package tracker

import (
	"math"
)

// updateEffects runs the continuous effects on every tick but the first one of a row.
func (r *Renderer) updateEffects() {
	if r.globalVolslide != 0 {
		r.globalVolume = slideClamp(r.globalVolume, r.globalVolslide, 128)
	}

	if r.tempoSlide != 0 {
		r.tempo += r.tempoSlide
		switch {
		case r.tempo > 255:
			r.tempo = 255
		case r.tempo < 32:
			r.tempo = 32
		}
	}

	linear := r.song.Flags.Contains(SongLinearSlides)
	for i := range r.channels {
		ch := &r.channels[i]

		if ch.xmVolslide != 0 {
			ch.volume = slideClamp(ch.volume, ch.xmVolslide, 64)
		}
		if ch.volslide != 0 {
			ch.volume = slideClamp(ch.volume, ch.volslide, 64)
		}
		if ch.channelSlide != 0 {
			ch.setChannelVolume(slideClamp(ch.channelVolume, ch.channelSlide, 64))
		}

		ch.updateTremor()

		ch.arpeggio = ((ch.arpeggio << 4) | (ch.arpeggio >> 8)) & 0xFFF

		ch.updateRetrig(r)

		v := ch.voice
		if v == nil {
			continue
		}
		v.slide += ch.portamento
		if ch.tonePorta == 0 || ch.destNote >= 120 {
			continue
		}
		if linear {
			linearTonePorta(ch, v)
		} else {
			amigaTonePorta(ch, v)
		}
	}

	r.updateSmoothEffects()
}

// linearTonePorta slides the pitch toward the destination note
// in 1/256 semitone units.
func linearTonePorta(ch *channel, v *voice) {
	base := (v.note - 60) << 8
	pitch := base + v.slide
	dest := (ch.destNote - 60) << 8
	switch {
	case pitch > dest:
		pitch -= ch.tonePorta
		if pitch < dest {
			pitch = dest
			ch.destNote = int(NoteOff)
		}
	case pitch < dest:
		pitch += ch.tonePorta
		if pitch > dest {
			pitch = dest
			ch.destNote = int(NoteOff)
		}
	}
	v.slide = pitch - base
}

// amigaTonePorta slides the period toward the destination note.
// The note is replaced once the destination is passed.
func amigaTonePorta(ch *channel, v *voice) {
	multiplier := float64(v.sample.C5Speed) / AmigaDivisor
	deltaNote := math.Pow(SemitoneBase, float64(60-v.note))
	deltaSlid := deltaNote - float64(v.slide)*multiplier
	destDelta := math.Pow(SemitoneBase, float64(60-ch.destNote))

	arrive := func() {
		v.note = ch.destNote
		v.slide = 0
		ch.destNote = int(NoteOff)
	}

	if deltaSlid < destDelta {
		v.slide -= ch.tonePorta
		deltaSlid = deltaNote - float64(v.slide)*multiplier
		if deltaSlid > destDelta {
			arrive()
		}
	} else {
		v.slide += ch.tonePorta
		deltaSlid = deltaNote - float64(v.slide)*multiplier
		if deltaSlid < destDelta {
			arrive()
		}
	}
}

func (r *Renderer) updateSmoothEffects() {
	for i := range r.channels {
		v := r.channels[i].voice
		if v == nil {
			continue
		}
		v.vibratoTime += uint8(v.vibratoN * (v.vibratoSpeed << 2))
		v.tremoloTime += uint8(v.tremoloSpeed << 2)
	}
}

// processAllVoices computes the voice pitch, volume and pan from
// their channels, then advances the envelopes of every voice.
func (r *Renderer) processAllVoices() {
	song := r.song
	linear := song.Flags.Contains(SongLinearSlides)

	for i := range r.channels {
		ch := &r.channels[i]
		v := ch.voice
		if v == nil {
			continue
		}

		vibrato := int(sineTable[v.vibratoTime]) * v.vibratoN * v.vibratoDepth >> 4
		if song.Flags.Contains(SongOldEffects) {
			vibrato = -vibrato
		}

		v.volume = ch.volume
		v.pan = ch.truePan

		if linear {
			pitch := clamp(((v.note-60)<<8)+v.slide+vibrato, -32768, 32767)
			v.delta = math.Pow(PitchBase, float64(pitch)) * float64(v.sample.C5Speed) / 65536.0
		} else {
			slide := v.slide + vibrato
			delta := math.Pow(SemitoneBase, float64(60-v.note)) / float64(v.sample.C5Speed)
			delta -= float64(slide) / AmigaDivisor
			if delta < (1.0/65536.0)/32768.0 {
				// The period went out of range.
				v.flags |= voiceDead
				continue
			}
			v.delta = (1.0 / 65536.0) / delta
		}

		v.delta *= math.Pow(SemitoneBase, float64(ch.arpeggio>>8))
		v.filterCutoff = ch.filterCutoff
		v.filterResonance = ch.filterResonance
	}

	for i := range r.channels {
		ch := &r.channels[i]
		if ch.voice == nil {
			continue
		}
		r.processVoice(ch.voice)
		if !song.wasXM() && ch.voice.lost() {
			ch.voice = nil
		}
	}

	for i, v := range r.nnaVoices {
		if v == nil {
			continue
		}
		r.processVoice(v)
		if v.flags.Contains(voiceDead) {
			r.nnaVoices[i] = nil
		}
	}
}

// processVoice advances the voice envelopes, fadeout and auto-vibrato by a tick.
func (r *Renderer) processVoice(v *voice) {
	if v.instrument != nil {
		r.dialect.advanceVoice(v)
	}

	s := v.sample
	if r.song.wasXM() {
		// For XM the depth counts the auto-vibrato sweep ticks.
		if v.sampleVibratoDepth < s.VibratoRate {
			v.sampleVibratoDepth++
		}
	} else {
		v.sampleVibratoDepth += s.VibratoRate
		if v.sampleVibratoDepth > s.VibratoDepth<<8 {
			v.sampleVibratoDepth = s.VibratoDepth << 8
		}
	}
	v.sampleVibratoTime += uint8(s.VibratoSpeed)
}
