package tracker

// Effect is a pattern effect command.
//
// The command set is the IT one; XM and MOD songs are converted
// into it with a few XM-specific extras.
type Effect uint8

const (
	EffectNone Effect = iota

	EffectSetSpeed               // Axx
	EffectJumpToOrder            // Bxx
	EffectBreakToRow             // Cxx
	EffectVolumeSlide            // Dxy
	EffectPortamentoDown         // Exx
	EffectPortamentoUp           // Fxx
	EffectTonePortamento         // Gxx
	EffectVibrato                // Hxy
	EffectTremor                 // Ixy
	EffectArpeggio               // Jxy
	EffectVolslideVibrato        // Kxy
	EffectVolslideTonePortamento // Lxy
	EffectSetChannelVolume       // Mxx
	EffectChannelVolumeSlide     // Nxy
	EffectSetSampleOffset        // Oxx
	EffectPanningSlide           // Pxy
	EffectRetriggerNote          // Qxy
	EffectTremolo                // Rxy
	EffectS                      // Sxy
	EffectSetTempo               // Txx
	EffectFineVibrato            // Uxy
	EffectSetGlobalVolume        // Vxx
	EffectGlobalVolumeSlide      // Wxy
	EffectSetPanning             // Xxx
	EffectPanbrello              // Yxy
	EffectMIDIMacro              // Zxx

	EffectXMPortamentoDown   // XM 2xx
	EffectXMPortamentoUp     // XM 1xx
	EffectXMFineVolslideDown // XM EBx
	EffectXMFineVolslideUp   // XM EAx
	EffectXMRetriggerNote    // XM E9x

	numEffects
)

// SCommand is the high nibble of an EffectS parameter.
type SCommand uint8

const (
	SSetFilter           SCommand = 0x0
	SSetGlissandoControl SCommand = 0x1
	SFinetune            SCommand = 0x2
	SVibratoWaveform     SCommand = 0x3
	STremoloWaveform     SCommand = 0x4
	SPanbrelloWaveform   SCommand = 0x5
	SFinePatternDelay    SCommand = 0x6
	SInstrumentControl   SCommand = 0x7
	SSetPan              SCommand = 0x8
	SSurround            SCommand = 0x9
	SHighOffset          SCommand = 0xA
	SPatternLoop         SCommand = 0xB
	SDelayedNoteCut      SCommand = 0xC
	SNoteDelay           SCommand = 0xD
	SPatternDelay        SCommand = 0xE
	SSetMIDIMacro        SCommand = 0xF
)

// effectTonePorta reports whether e starts a tone portamento.
func (e *Entry) effectTonePorta() bool {
	return e.Mask.Contains(EntryEffect) &&
		(e.Effect == EffectTonePortamento || e.Effect == EffectVolslideTonePortamento)
}
