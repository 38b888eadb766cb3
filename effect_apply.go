package tracker

// processEffects applies the effect column of e on the first tick of a row.
// It returns true if a callback stopped the playback.
func (r *Renderer) processEffects(e *Entry) bool {
	song := r.song
	ch := &r.channels[e.Channel]

	if e.Mask.Contains(EntryEffect) {
		v := e.EffectValue
		switch e.Effect {
		case EffectSetSpeed:
			if v != 0 {
				r.speed = int(v)
				r.tick = r.speed
			} else if song.wasXM() {
				r.speed = 0
				if r.callbacks.xmSpeedZero() {
					r.config.Logger.Debug("playback stopped by the speed zero callback", "order", r.order, "row", r.row)
					return true
				}
			}

		case EffectJumpToOrder:
			r.processOrder = int(v) - 1
			r.processRow = 0xFFFE

		case EffectBreakToRow:
			r.breakRow = int(v)
			r.processRow = 0xFFFE

		case EffectVolslideVibrato:
			if ch.voice != nil {
				ch.voice.vibratoSpeed = int(ch.lastHSpeed)
				ch.voice.vibratoDepth = int(ch.lastHDepth)
				ch.voice.vibratoN++
			}
			r.volumeSlide(ch, v)

		case EffectVolumeSlide, EffectVolslideTonePortamento:
			// The tone portamento part is handled with the note.
			r.volumeSlide(ch, v)

		case EffectXMFineVolslideDown:
			if v == 0 {
				v = ch.xmLastEB
			}
			ch.xmLastEB = v
			ch.volumeDown(int(v))

		case EffectXMFineVolslideUp:
			if v == 0 {
				v = ch.xmLastEA
			}
			ch.xmLastEA = v
			ch.volumeUp(int(v))

		case EffectPortamentoDown:
			v = r.portamentoMemory(ch, v, &ch.xmLastE2, &ch.xmLastX2)
			slidePitch(ch, v, -1)

		case EffectPortamentoUp:
			v = r.portamentoMemory(ch, v, &ch.xmLastE1, &ch.xmLastX1)
			slidePitch(ch, v, 1)

		case EffectXMPortamentoDown:
			if !song.wasMOD() {
				if v == 0 {
					v = ch.lastJ
				}
				ch.lastJ = v
			}
			if ch.voice != nil {
				ch.portamento -= int(v) << 4
			}

		case EffectXMPortamentoUp:
			if !song.wasMOD() {
				if v == 0 {
					v = ch.lastEF
				}
				ch.lastEF = v
			}
			if ch.voice != nil {
				ch.portamento += int(v) << 4
			}

		case EffectVibrato:
			shift := 2
			if song.Flags.Contains(SongOldEffects) {
				shift = 3
			}
			ch.vibrato(v, shift)

		case EffectFineVibrato:
			shift := 0
			if song.Flags.Contains(SongOldEffects) {
				shift = 1
			}
			ch.vibrato(v, shift)

		case EffectTremor:
			if v == 0 {
				v = ch.lastI
			} else if !song.Flags.Contains(SongOldEffects) {
				// The on and off times are 1-based in the new effects mode.
				if v&0xF0 != 0 {
					v -= 0x10
				}
				if v&0x0F != 0 {
					v -= 0x01
				}
			}
			ch.lastI = v
			ch.tremorTime |= 128
			ch.updateTremor()

		case EffectArpeggio:
			// XM has no arpeggio memory; lastJ serves the XM portamento down there.
			if !song.wasXM() {
				if v == 0 {
					v = ch.lastJ
				}
				ch.lastJ = v
			}
			ch.arpeggio = int(v)

		case EffectSetChannelVolume:
			if song.wasXM() {
				ch.volume = min(int(v), 64)
			} else if v <= 64 {
				ch.channelVolume = int(v)
			}
			ch.setChannelVolume(ch.channelVolume)

		case EffectChannelVolumeSlide:
			r.channelVolumeSlide(ch, v)

		case EffectSetSampleOffset:
			r.sampleOffset(ch, e, v)

		case EffectRetriggerNote:
			if song.wasXM() {
				if v&0x0F == 0 {
					v |= ch.lastQ & 0x0F
				}
				if v&0xF0 == 0 {
					v |= ch.lastQ & 0xF0
				}
			} else if v == 0 {
				v = ch.lastQ
			}
			ch.lastQ = v
			if v&0x0F == 0 {
				v |= 0x01
			}
			ch.retrig = int(v)
			if e.Mask.Contains(EntryNote) {
				ch.retrigTick = int(v & 0x0F)
				// XM retriggers one tick early when a note is given.
				if song.wasXM() {
					ch.updateRetrig(r)
				}
			} else {
				ch.updateRetrig(r)
			}

		case EffectXMRetriggerNote:
			ch.xmRetrig = int(v)
			ch.retrigTick = ch.xmRetrig
			if v == 0 {
				r.restartVoice(ch)
			}

		case EffectTremolo:
			speed := v >> 4
			depth := v & 15
			if speed == 0 {
				speed = ch.lastRSpeed
			}
			ch.lastRSpeed = speed
			if depth == 0 {
				depth = ch.lastRDepth
			}
			ch.lastRDepth = depth
			if ch.voice != nil {
				ch.voice.tremoloSpeed = int(speed)
				ch.voice.tremoloDepth = int(depth)
			}

		case EffectS:
			r.processSCommand(ch)

		case EffectSetTempo:
			if v == 0 {
				v = ch.lastW
			}
			ch.lastW = v
			switch {
			case v < 0x10:
				r.tempoSlide = -int(v)
			case v < 0x20:
				r.tempoSlide = int(v & 15)
			default:
				r.tempo = int(v)
			}

		case EffectSetGlobalVolume:
			if v <= 128 {
				r.globalVolume = int(v)
			}

		case EffectGlobalVolumeSlide:
			r.globalVolumeSlide(ch, v)

		case EffectSetPanning:
			ch.setPan((int(v) + 2) >> 2)

		case EffectMIDIMacro:
			r.sendMacro(ch, v)
		}
	}

	r.dialect.postEffects(ch, e)
	return false
}

// volumeSlide handles Dxy (and the volume part of Kxy and Lxy).
func (r *Renderer) volumeSlide(ch *channel, v uint8) {
	song := r.song
	if !song.wasMOD() {
		if v == 0 {
			v = ch.lastDKL
		}
		ch.lastDKL = v
	}
	switch {
	case v&0x0F == 0:
		ch.volslide = int(v >> 4)
		if ch.volslide == 15 && !song.wasXM() {
			ch.volumeUp(15)
		}
	case v&0xF0 == 0:
		ch.volslide = -int(v)
		if ch.volslide == -15 && !song.wasXM() {
			ch.volumeDown(15)
		}
	case v&0x0F == 0x0F:
		ch.volumeUp(int(v >> 4))
	case v&0xF0 == 0xF0:
		ch.volumeDown(int(v & 15))
	}
}

// portamentoMemory resolves the Exx/Fxx parameter memory.
//
// IT shares a single memory between E, F and G.
// XM keeps separate memories for the fine (lastE) and
// extra fine (lastX) variants and none for the regular slides.
func (r *Renderer) portamentoMemory(ch *channel, v uint8, lastE, lastX *uint8) uint8 {
	song := r.song
	if !song.wasXM() {
		if v == 0 {
			v = ch.lastEF
		}
		ch.lastEF = v
		return v
	}
	if song.wasMOD() {
		return v
	}
	switch {
	case v == 0xF0:
		v |= *lastE
	case v > 0xF0:
		*lastE = v & 15
	case v == 0xE0:
		v |= *lastX
	default:
		*lastX = v & 15
	}
	return v
}

// slidePitch applies a portamento of the given direction.
// EFx and EEx are the fine and extra fine one-shot slides;
// anything else slides on every tick.
func slidePitch(ch *channel, v uint8, dir int) {
	if ch.voice == nil {
		return
	}
	switch v & 0xF0 {
	case 0xF0:
		ch.voice.slide += dir * (int(v&15) << 4)
	case 0xE0:
		ch.voice.slide += dir * (int(v&15) << 2)
	default:
		ch.portamento += dir * (int(v) << 4)
	}
}

// vibrato handles Hxy and Uxy; depthShift scales the depth nibble.
func (ch *channel) vibrato(v uint8, depthShift int) {
	speed := v >> 4
	depth := v & 15
	if speed == 0 {
		speed = ch.lastHSpeed
	}
	ch.lastHSpeed = speed
	if depth == 0 {
		depth = ch.lastHDepth
	} else {
		depth <<= depthShift
		ch.lastHDepth = depth
	}
	if ch.voice != nil {
		ch.voice.vibratoSpeed = int(speed)
		ch.voice.vibratoDepth = int(depth)
		ch.voice.vibratoN++
	}
}

func (r *Renderer) channelVolumeSlide(ch *channel, v uint8) {
	if v == 0 {
		v = ch.lastN
	}
	ch.lastN = v
	switch {
	case v&0x0F == 0:
		ch.channelSlide = int(v >> 4)
	case v&0xF0 == 0:
		ch.channelSlide = -int(v)
	case v&0x0F == 0x0F:
		ch.setChannelVolume(volumeUp(ch.channelVolume, int(v>>4), 64))
	case v&0xF0 == 0xF0:
		ch.setChannelVolume(volumeDown(ch.channelVolume, int(v&15), 64))
	}
}

func (r *Renderer) globalVolumeSlide(ch *channel, v uint8) {
	if v == 0 {
		v = ch.lastW
	}
	ch.lastW = v
	xm := r.song.wasXM()
	switch {
	case v&0x0F == 0:
		r.globalVolslide = int(v >> 4)
		if xm {
			r.globalVolslide *= 2
		}
	case v&0xF0 == 0:
		r.globalVolslide = -int(v)
		if xm {
			r.globalVolslide *= 2
		}
	case v&0x0F == 0x0F:
		r.globalVolume = volumeUp(r.globalVolume, int(v>>4), 128)
	case v&0xF0 == 0xF0:
		r.globalVolume = volumeDown(r.globalVolume, int(v&15), 128)
	}
}

// sampleOffset handles Oxx. The offset applies even together
// with a tone portamento.
func (r *Renderer) sampleOffset(ch *channel, e *Entry, v uint8) {
	song := r.song
	if song.wasMOD() {
		if v == 0 {
			return
		}
	} else {
		if v == 0 {
			v = ch.lastO
		}
		ch.lastO = v
	}
	if !e.Mask.Contains(EntryNote) || ch.voice == nil {
		return
	}

	offset := int(ch.highOffset)<<16 | int(v)<<8
	end := ch.voice.sampleEnd()
	switch {
	case offset < end:
		ch.voice.resetResamplers(offset, r.config.Quality)
	case song.Flags.Contains(SongOldEffects):
		ch.voice.resetResamplers(end, r.config.Quality)
	}
}

func (r *Renderer) processSCommand(ch *channel) {
	// lastS is already resolved by updatePatternVariables.
	cmd, x := SCommand(ch.lastS>>4), int(ch.lastS&15)
	switch cmd {
	case SFinePatternDelay:
		r.tick += x
	case SSetPan:
		ch.setPan((x << 2) | (x >> 2))
	case SSurround:
		if x == 1 {
			ch.pan = PanSurround
		}
		ch.truePan = ch.pan << envelopeShift
	case SHighOffset:
		ch.highOffset = uint8(x)
	case SDelayedNoteCut:
		ch.noteCutCount = x
		if x == 0 {
			if r.song.wasXM() {
				ch.volume = 0
			} else {
				ch.noteCutCount = 1
			}
		}
	case SSetMIDIMacro:
		ch.sfMacro = x
	}
}

// sendMacro handles Zxx: values below 0x80 send the active SFx macro
// with the parameter substituted; the rest send fixed Z macros.
func (r *Renderer) sendMacro(ch *channel, v uint8) {
	macros := r.song.midi()
	if v >= 0x80 {
		for _, b := range macros.Z[v-0x80].Bytes {
			ch.sendMIDI(r, b)
		}
		return
	}
	m := &macros.SF[ch.sfMacro]
	for i, b := range m.Bytes {
		if i < 16 && m.ZMask&(1<<i) != 0 {
			b = v
		}
		ch.sendMIDI(r, b)
	}
}
