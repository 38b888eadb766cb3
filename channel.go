package tracker

type channelFlags uint8

const (
	channelMuted channelFlags = 1 << iota
)

func (f channelFlags) Contains(v channelFlags) bool { return f&v != 0 }

// channel is a pattern channel state that persists between the rows.
//
// Most of the last* fields are the effect memories:
// a zero effect parameter reuses the last non-zero one.
type channel struct {
	index int
	flags channelFlags

	// Volume and pan in [0, 64]; truePan is pan<<envelopeShift
	// adjusted by the pitch-pan separation.
	volume        int
	volslide      int
	xmVolslide    int
	pan           int
	truePan       int
	channelVolume int
	channelSlide  int

	instrument int
	note       int
	sample     int
	trueNote   int

	sfMacro         int
	midiState       int
	filterCutoff    int
	filterResonance int

	noteCutCount   int
	noteDelayCount int
	noteDelayEntry *Entry

	// arpeggio is a 3-nibble rotating table of semitone offsets.
	arpeggio int

	retrig     int
	xmRetrig   int
	retrigTick int

	// tremorTime bit 7 enables the tremor, bit 6 selects the "on" phase
	// and the low bits count the ticks left in the phase.
	tremorTime int

	portamento int
	tonePorta  int
	destNote   int

	patLoopRow   int
	patLoopCount int

	lastVolslide uint8
	lastDKL      uint8
	lastEF       uint8
	lastG        uint8
	lastHSpeed   uint8
	lastHDepth   uint8
	lastRSpeed   uint8
	lastRDepth   uint8
	lastI        uint8
	lastJ        uint8
	lastN        uint8
	lastO        uint8
	highOffset   uint8
	lastQ        uint8
	lastS        uint8
	lastW        uint8

	xmLastE1 uint8
	xmLastE2 uint8
	xmLastEA uint8
	xmLastEB uint8
	xmLastX1 uint8
	xmLastX2 uint8

	voice *voice
}

func (ch *channel) init(song *Song, index int) {
	*ch = channel{index: index}
	pan := song.ChannelPan[index]
	if pan&0x80 != 0 {
		ch.flags |= channelMuted
	}
	ch.volume = 64
	if song.wasXM() {
		ch.volume = 0
	}
	ch.pan = int(pan & 0x7F)
	ch.truePan = ch.pan << envelopeShift
	ch.channelVolume = int(song.ChannelVolume[index])
	ch.filterCutoff = 127
}

func (ch *channel) clone() channel {
	cloned := *ch
	cloned.voice = ch.voice.clone()
	return cloned
}

// setChannelVolume keeps the voice copy of the channel volume in sync.
func (ch *channel) setChannelVolume(v int) {
	ch.channelVolume = v
	if ch.voice != nil {
		ch.voice.channelVolume = v
	}
}

func (ch *channel) setPan(pan int) {
	ch.pan = pan
	ch.truePan = pan << envelopeShift
}

func (ch *channel) volumeUp(d int) {
	ch.volume = volumeUp(ch.volume, d, 64)
}

func (ch *channel) volumeDown(d int) {
	ch.volume = volumeDown(ch.volume, d, 64)
}

func (ch *channel) resetEffects() {
	ch.volslide = 0
	ch.xmVolslide = 0
	ch.channelSlide = 0
	ch.arpeggio = 0
	ch.retrig = 0
	if ch.xmRetrig != 0 {
		ch.xmRetrig = 0
		ch.retrigTick = 0
	}
	ch.tremorTime &= 127
	ch.portamento = 0
	ch.tonePorta = 0
	if ch.voice != nil {
		ch.voice.vibratoN = 0
		ch.voice.tremoloSpeed = 0
		ch.voice.tremoloDepth = 0
	}
}

func (ch *channel) updateTremor() {
	if ch.tremorTime&128 == 0 || ch.voice == nil {
		return
	}
	switch ch.tremorTime {
	case 128:
		ch.tremorTime = int(ch.lastI>>4) | 192
	case 192:
		ch.tremorTime = int(ch.lastI&15) | 128
	default:
		ch.tremorTime--
	}
}

// tremorMuted reports whether the tremor is in its "off" phase.
func (ch *channel) tremorMuted() bool {
	return ch.tremorTime&192 == 128
}

func (ch *channel) updateRetrig(r *Renderer) {
	if ch.xmRetrig != 0 {
		ch.retrigTick--
		if ch.retrigTick <= 0 {
			r.restartVoice(ch)
			ch.retrigTick = ch.xmRetrig
		}
		return
	}

	if ch.retrig&0x0F == 0 {
		return
	}
	ch.retrigTick--
	if ch.retrigTick > 0 {
		return
	}

	ch.volume = retrigVolume(ch.retrig, ch.volume)
	r.restartVoice(ch)
	ch.retrigTick = ch.retrig & 0x0F
}

// retrigVolume applies the Qxy volume transformation selected by x.
func retrigVolume(retrig, volume int) int {
	switch retrig >> 4 {
	case 0x1:
		return volumeDown(volume, 1, 64)
	case 0x2:
		return volumeDown(volume, 2, 64)
	case 0x3:
		return volumeDown(volume, 4, 64)
	case 0x4:
		return volumeDown(volume, 8, 64)
	case 0x5:
		return volumeDown(volume, 16, 64)
	case 0x6:
		return (volume << 1) / 3
	case 0x7:
		return volume >> 1
	case 0x9:
		return volumeUp(volume, 1, 64)
	case 0xA:
		return volumeUp(volume, 2, 64)
	case 0xB:
		return volumeUp(volume, 4, 64)
	case 0xC:
		return volumeUp(volume, 8, 64)
	case 0xD:
		return volumeUp(volume, 16, 64)
	case 0xE:
		return clampMax((volume*3)>>1, 64)
	case 0xF:
		return clampMax(volume<<1, 64)
	default:
		return volume
	}
}

// sendMIDI feeds a macro byte to the channel filter macro interpreter.
func (ch *channel) sendMIDI(r *Renderer, b byte) {
	if r.callbacks.midi(ch.index, b) {
		return
	}

	switch ch.midiState {
	case 4:
		if b < 0x80 {
			ch.filterResonance = int(b)
		}
		ch.midiState = 0
	case 3:
		if b < 0x80 {
			ch.filterCutoff = int(b)
		}
		ch.midiState = 0
	case 2:
		switch b {
		case 0:
			ch.midiState = 3
		case 1:
			ch.midiState = 4
		default:
			ch.midiState = 0
		}
	default:
		switch b {
		case 0xF0:
			ch.midiState++
		case 0xFA, 0xFC, 0xFF:
			for i := range r.channels {
				r.channels[i].filterCutoff = 127
				r.channels[i].filterResonance = 0
			}
			ch.midiState = 0
		default:
			ch.midiState = 0
		}
	}
}
