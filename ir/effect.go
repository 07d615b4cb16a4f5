package ir

// EffectKind enumerates every legacy tracker effect the IR can carry,
// spanning MOD/S3M/XM/IT dialects. The scheduler and channel controller are
// oblivious to which tracker format an effect came from; format parsers are
// responsible for translating their dialect's effect numbering into this
// set (spec.md §6).
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectArpeggio
	EffectPortaUp
	EffectPortaDown
	EffectTonePorta
	EffectVibrato
	EffectTonePortaVolSlide
	EffectVibratoVolSlide
	EffectTremolo
	EffectSetPan
	EffectSampleOffset
	EffectVolumeSlide
	EffectPositionJump
	EffectSetVolume
	EffectPatternBreak
	EffectFinePortaUp
	EffectFinePortaDown
	EffectSetVibratoWaveform
	EffectSetFinetune
	EffectPatternLoop
	EffectSetTremoloWaveform
	EffectSetPanPosition
	EffectRetriggerNote
	EffectFineVolumeSlideUp
	EffectFineVolumeSlideDown
	EffectNoteCut
	EffectNoteDelay
	EffectPatternDelay
	EffectSetSpeed
	EffectSetTempo
	EffectSetGlobalVolume
	EffectGlobalVolumeSlide
	EffectSetEnvelopePosition
	EffectPanningSlide
	EffectRetrigger
	EffectTremor
	EffectSetFilterCutoff
	EffectSetFilterResonance
	EffectExtraFinePortaUp
	EffectExtraFinePortaDown
)

// Effect is a tagged tracker effect command with up to two byte-sized
// parameters, matching the shapes of every effect in EffectKind.
type Effect struct {
	Kind EffectKind
	X    int16 // primary parameter (speed, depth, target row/order, ...)
	Y    int16 // secondary parameter (Arpeggio's y, Retrigger's volume_change, ...)
}

// IsRowEffect reports whether an effect is resolved once at tick 0 of its
// row (flow control, immediate sets) as opposed to continuously across
// ticks via a modulator.
func (e Effect) IsRowEffect() bool {
	switch e.Kind {
	case EffectPositionJump, EffectPatternBreak, EffectSetSpeed, EffectSetTempo,
		EffectSetVolume, EffectSetPan, EffectSampleOffset, EffectFinePortaUp,
		EffectFinePortaDown, EffectSetVibratoWaveform, EffectSetFinetune,
		EffectPatternLoop, EffectSetTremoloWaveform, EffectSetPanPosition,
		EffectFineVolumeSlideUp, EffectFineVolumeSlideDown, EffectNoteCut,
		EffectNoteDelay, EffectPatternDelay, EffectSetGlobalVolume,
		EffectSetEnvelopePosition, EffectSetFilterCutoff, EffectSetFilterResonance,
		EffectExtraFinePortaUp, EffectExtraFinePortaDown, EffectNone:
		return true
	default:
		return false
	}
}

// VolumeCmdKind enumerates the volume-column commands (XM/IT style).
type VolumeCmdKind int

const (
	VolNone VolumeCmdKind = iota
	VolVolume
	VolSlideDown
	VolSlideUp
	VolFineSlideDown
	VolFineSlideUp
	VolPanning
	VolPortaDown
	VolPortaUp
	VolTonePorta
	VolVibrato
)

// VolumeCommand is the (optional) volume-column command on a Cell.
type VolumeCommand struct {
	Kind  VolumeCmdKind
	Value uint8
}

// NoteKind selects a Cell's note action.
type NoteKind int

const (
	NoteNone NoteKind = iota
	NoteOn
	NoteOff
	NoteFade
)

// Note is a Cell's note field: none, a MIDI on, a release, or a fade-release.
type Note struct {
	Kind  NoteKind
	Value uint8 // MIDI note number, valid when Kind == NoteOn
}

// Cell is one row/column intersection in a Tracker-shaped Pattern.
type Cell struct {
	Note Note
	// Instrument: 0 = keep current, 1-255 = index+1.
	Instrument uint8
	Volume     VolumeCommand
	Effect     Effect
}
