package tracker

import (
	"cmp"
	"math"
	"slices"

	"github.com/quasilyte/tracker/clickrem"
	"github.com/quasilyte/tracker/resample"
)

type mixEntry struct {
	voice  *voice
	volume float64
}

// calculateVolume returns the linear voice volume scaled by volume.
func (r *Renderer) calculateVolume(v *voice, volume float64) float64 {
	if volume == 0 {
		return 0
	}
	ch := &r.channels[v.channel]
	if ch.flags.Contains(channelMuted) || ch.tremorMuted() {
		return 0
	}

	vol := int(sineTable[v.tremoloTime])*v.tremoloDepth + v.volume<<5
	if vol <= 0 {
		return 0
	}
	vol = clampMax(vol, 64<<5)

	volume *= float64(vol)
	volume *= float64(v.sample.GlobalVolume)
	volume *= float64(v.channelVolume)
	volume *= float64(r.globalVolume)
	volume *= float64(r.song.MixingVolume)
	volume *= 1.0 / ((64 << 5) * 64.0 * 64.0 * 128.0 * 128.0)

	if volume != 0 && v.instrument != nil {
		env := &v.envInstrument.VolumeEnvelope
		if env.Flags.Contains(EnvelopeOn) {
			volume *= float64(env.value(&v.volumeEnvelope))
			volume *= 1.0 / (64 << envelopeShift)
		}
		volume *= float64(v.instrument.GlobalVolume)
		volume *= float64(v.fadeoutCount)
		volume *= 1.0 / (128.0 * 1024.0)
	}

	return volume
}

// envelopePan returns the voice pan adjusted by the pan envelope.
// The envelope moves the pan toward the nearest edge proportionally
// to the distance left, so it never leaves [0, 64].
func (v *voice) envelopePan() int {
	pan := v.pan
	if pan > 64<<envelopeShift || v.envInstrument == nil {
		return pan
	}
	env := &v.envInstrument.PanEnvelope
	if !env.Flags.Contains(EnvelopeOn) {
		return pan
	}
	p := env.value(&v.panEnvelope)
	if pan > 32<<envelopeShift {
		p *= (64 << envelopeShift) - pan
	} else {
		p *= pan
	}
	return pan + p>>(5+envelopeShift)
}

// pitchModifications applies the sample auto-vibrato and the pitch
// envelope. A pitch envelope in the filter mode modulates the cutoff instead.
func (r *Renderer) pitchModifications(v *voice, delta float64, cutoff int) (float64, int) {
	s := v.sample
	shift := int(sineTable[v.sampleVibratoTime])
	if r.song.wasXM() {
		depth := s.VibratoDepth
		if s.VibratoRate != 0 {
			depth = depth * v.sampleVibratoDepth / s.VibratoRate
		}
		shift *= depth
	} else {
		shift *= v.sampleVibratoDepth >> 8
	}
	shift >>= 4
	delta *= math.Pow(PitchBase, float64(shift))

	if v.envInstrument != nil {
		env := &v.envInstrument.PitchEnvelope
		if env.Flags.Contains(EnvelopeOn) {
			p := env.value(&v.pitchEnvelope)
			if env.Flags.Contains(EnvelopePitchIsFilter) {
				cutoff = (cutoff * (p + (32 << envelopeShift))) >> (6 + envelopeShift)
			} else {
				delta *= math.Pow(PitchBase, float64(p>>(envelopeShift-7)))
			}
		}
	}

	return delta, cutoff
}

// render mixes every live voice into out[*][pos:pos+size].
// A nil out (or a zero volume) only advances the voices.
func (r *Renderer) render(volume, delta float64, pos, size int, out [][]int32) {
	list := r.mixList[:0]
	for i := range r.channels {
		v := r.channels[i].voice
		if v != nil && !v.flags.Contains(voiceDead) {
			list = append(list, mixEntry{voice: v, volume: r.calculateVolume(v, volume)})
		}
	}
	for _, v := range r.nnaVoices {
		if v != nil {
			list = append(list, mixEntry{voice: v, volume: r.calculateVolume(v, volume)})
		}
	}

	if volume != 0 {
		slices.SortStableFunc(list, func(a, b mixEntry) int {
			return cmp.Compare(b.volume, a.volume)
		})
	}

	leftToMix := r.config.MaxToMix
	for _, m := range list {
		v := m.voice
		noteDelta := delta * v.delta
		cutoff := v.filterCutoff << envelopeShift
		noteDelta, cutoff = r.pitchModifications(v, noteDelta, cutoff)

		if cutoff != 127<<envelopeShift || v.filterResonance != 0 {
			v.trueFilterCutoff = cutoff
			v.trueFilterResonance = v.filterResonance
		}

		filtered := v.trueFilterCutoff != 127<<envelopeShift || v.trueFilterResonance != 0
		if m.volume == 0 || !filtered {
			v.filters[0].reset()
			v.filters[1].reset()
			r.renderVoice(v, m.volume, noteDelta, pos, size, out, false, r.clickRemovers, &leftToMix)
			continue
		}

		scratch := r.scratchBuffers(size + 1)
		rendered := r.renderVoice(v, m.volume, noteDelta, 0, size, scratch, true, nil, &leftToMix)
		sampleRate := int(65536.0 / delta)
		for i := range out {
			v.filters[i].apply(removerAt(r.clickRemovers, i), out[i], pos, scratch[i], rendered,
				sampleRate, v.trueFilterCutoff, v.trueFilterResonance)
		}
	}

	clear(list)
	r.mixList = list[:0]

	for i := range r.channels {
		ch := &r.channels[i]
		if ch.voice != nil && ch.voice.lost() {
			ch.voice = nil
		}
	}
	for i, v := range r.nnaVoices {
		if v != nil && v.flags.Contains(voiceDead) {
			r.nnaVoices[i] = nil
		}
	}
}

// scratchBuffers returns zeroed per-channel buffers of the given size.
func (r *Renderer) scratchBuffers(size int) [][]int32 {
	if len(r.filterBuffer) != r.config.Channels {
		r.filterBuffer = make([][]int32, r.config.Channels)
	}
	for i, buf := range r.filterBuffer {
		if cap(buf) < size {
			buf = make([]int32, size)
		} else {
			buf = buf[:size]
			clear(buf)
		}
		r.filterBuffer[i] = buf
	}
	return r.filterBuffer
}

func removerAt(removers []*clickrem.Remover, i int) *clickrem.Remover {
	if i < len(removers) {
		return removers[i]
	}
	return nil
}

// renderVoice resamples a single voice into out[*][pos:] and returns
// the number of samples produced.
//
// With storeEnd, the sample that would follow the rendered span
// is written right after it (the filter needs it).
func (r *Renderer) renderVoice(v *voice, volume, delta float64, pos, size int, out [][]int32, storeEnd bool, removers []*clickrem.Remover, leftToMix *int) int {
	if v.flags.Contains(voiceDead) {
		return 0
	}
	if *leftToMix <= 0 {
		volume = 0
	}
	pan := v.envelopePan()
	surround := isSurround(pan)
	stereoSample := v.sample.Flags.Contains(SampleStereo)

	var rendered int
	switch {
	case volume == 0 || out == nil:
		rendered = v.resamplers[0].Resample(nil, size, 0, delta)
		if stereoSample {
			v.resamplers[1].Resample(nil, size, 0, delta)
		}
		volume = 0

	case len(out) == 2 && !stereoSample:
		left := volume
		right := -volume
		if !surround {
			left *= 2.0 - float64(pan)/float64(32<<envelopeShift)
			right = 2.0*volume - left
		}
		start := v.resamplers[0]
		rendered = resampleSpan(&v.resamplers[0], removerAt(removers, 0), out[0], pos, size, left, delta, storeEnd)
		v.resamplers[0] = start
		resampleSpan(&v.resamplers[0], removerAt(removers, 1), out[1], pos, size, right, delta, storeEnd)

	case len(out) == 2:
		left, right := volume, -volume
		if !surround {
			theta := float64(clamp(pan, 0, 64<<envelopeShift)) / float64(64<<envelopeShift) * (math.Pi / 2)
			left = volume * math.Sqrt2 * math.Cos(theta)
			right = volume * math.Sqrt2 * math.Sin(theta)
		}
		rendered = resampleSpan(&v.resamplers[0], removerAt(removers, 0), out[0], pos, size, left, delta, storeEnd)
		resampleSpan(&v.resamplers[1], removerAt(removers, 1), out[1], pos, size, right, delta, storeEnd)

	case stereoSample:
		left := 0.5 * volume
		if !surround {
			left *= 2.0 - float64(pan)/float64(32<<envelopeShift)
		}
		right := volume - left
		rendered = resampleMixedSpan(&v.resamplers[0], &v.resamplers[1], removerAt(removers, 0), out[0], pos, size, left, right, delta, storeEnd)

	default:
		rendered = resampleSpan(&v.resamplers[0], removerAt(removers, 0), out[0], pos, size, volume, delta, storeEnd)
	}

	if volume != 0 {
		*leftToMix--
	}
	if v.resamplers[0].Stopped() {
		v.flags |= voiceDead
	}
	return rendered
}

// resampleSpan renders a resampler into dst[pos:pos+size] and records
// the steps at both ends of the span.
func resampleSpan(rs *resample.Resampler, cr *clickrem.Remover, dst []int32, pos, size int, volume, delta float64, storeEnd bool) int {
	cr.RecordClick(pos, rs.CurrentSample(volume))
	n := rs.Resample(dst[pos:], size, volume, delta)
	end := rs.CurrentSample(volume)
	if storeEnd {
		dst[pos+n] = end
	}
	cr.RecordClick(pos+n, -end)
	return n
}

// resampleMixedSpan renders both sides of a stereo sample into a single buffer.
func resampleMixedSpan(left, right *resample.Resampler, cr *clickrem.Remover, dst []int32, pos, size int, leftVolume, rightVolume, delta float64, storeEnd bool) int {
	startStep := left.CurrentSample(leftVolume) + right.CurrentSample(rightVolume)
	left.Resample(dst[pos:], size, leftVolume, delta)
	n := right.Resample(dst[pos:], size, rightVolume, delta)
	endStep := left.CurrentSample(leftVolume) + right.CurrentSample(rightVolume)
	if storeEnd {
		dst[pos+n] = endStep
	}
	cr.RecordClick(pos, startStep)
	cr.RecordClick(pos+n, -endStep)
	return n
}
