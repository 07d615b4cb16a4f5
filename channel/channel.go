// Package channel implements per-tracker-channel mixing and effect state:
// the note/period/volume/panning a voice renders with, and how the legacy
// tracker effect set mutates it row by row and tick by tick.
package channel

import (
	"github.com/oxbowlabs/beatforge/ir"
	"github.com/oxbowlabs/beatforge/period"
)

// State is one tracker channel's playback and effect state.
type State struct {
	SampleIndex uint8
	Position    uint32 // 16.16 fixed-point
	Increment   uint32 // 16.16 fixed-point
	Volume      uint8  // 0-64
	Panning     int8   // -64..+64
	Instrument  uint8
	Note        uint8
	Playing     bool
	LoopForward bool

	C4Speed uint32
	Period  uint16 // base Amiga period, set by note-on/tone-porta target
	// PeriodOffset is a transient modulator contribution (vibrato/arpeggio),
	// added to Period before computing Increment; it never mutates Period.
	PeriodOffset int16

	TargetPeriod    uint16
	PortaSpeed      uint8
	pendingPortaUp  uint8
	pendingPortaDown uint8
	tonePortaActive bool

	VibratoPhase    uint8
	VibratoSpeed    uint8
	VibratoDepth    uint8
	VibratoWaveform uint8
	vibratoActive   bool

	TremoloPhase  uint8
	TremoloSpeed  uint8
	TremoloDepth  uint8
	VolumeOffset  int8
	tremoloActive bool

	volumeSlideActive bool
	volumeSlideAmount int16 // per-tick delta, positive or negative

	arpeggioActive bool
	arpeggioX      uint8
	arpeggioY      uint8
	arpeggioTick   uint8

	noteCutActive bool
	noteCutAt     uint8
	noteCutTick   uint8

	retriggerActive bool
	retriggerEvery  uint8
	retriggerTick   uint8
}

// New returns a freshly reset channel state.
func New() *State {
	return &State{Volume: 64, LoopForward: true}
}

// Reset restores the channel to its initial state.
func (c *State) Reset() { *c = *New() }

// Trigger starts a new note: resets position and clears every transient
// modulator (matches legacy tracker "new note action" semantics for the
// channel itself, distinct from voice-pool NNA).
func (c *State) Trigger(note, instrument, sampleIndex uint8) {
	c.Note = note
	c.Instrument = instrument
	c.SampleIndex = sampleIndex
	c.Position = 0
	c.Playing = true
	c.LoopForward = true
	c.clearModulators()
}

// clearModulators drops every active per-note effect modulator. Trigger
// calls it on every note-on; the waveform's "don't retrigger" bit is not
// consulted.
func (c *State) clearModulators() {
	c.vibratoActive = false
	c.tremoloActive = false
	c.volumeSlideActive = false
	c.arpeggioActive = false
	c.noteCutActive = false
	c.retriggerActive = false
	c.pendingPortaUp = 0
	c.pendingPortaDown = 0
	c.tonePortaActive = false
	c.PeriodOffset = 0
	c.VolumeOffset = 0
}

// Stop halts playback without resetting effect state.
func (c *State) Stop() { c.Playing = false }

// UpdateIncrement recomputes Increment from Period+PeriodOffset, C4Speed,
// and the engine's output sample rate.
func (c *State) UpdateIncrement(sampleRate uint32) {
	p := int32(c.Period) + int32(c.PeriodOffset)
	p = clampI32(p, int32(period.PeriodMin), int32(period.PeriodMax))
	c.Increment = period.PeriodToIncrement(uint16(p), c.C4Speed, sampleRate)
}

// ApplyRowEffect resolves a row-scoped effect immediately at tick 0.
func (c *State) ApplyRowEffect(e ir.Effect) {
	switch e.Kind {
	case ir.EffectSetVolume:
		c.Volume = clampU8(uint8(e.X), 0, 64)
	case ir.EffectFineVolumeSlideUp:
		c.Volume = clampU8(addI16(c.Volume, e.X), 0, 64)
	case ir.EffectFineVolumeSlideDown:
		c.Volume = clampU8(addI16(c.Volume, -e.X), 0, 64)
	case ir.EffectFinePortaUp:
		c.Period = clampPeriod(int32(c.Period) - int32(e.X))
	case ir.EffectFinePortaDown:
		c.Period = clampPeriod(int32(c.Period) + int32(e.X))
	case ir.EffectSetVibratoWaveform:
		c.VibratoWaveform = uint8(e.X)
	case ir.EffectNoteCut:
		if e.X == 0 {
			c.Volume = 0
		} else {
			c.noteCutActive = true
			c.noteCutAt = uint8(e.X)
			c.noteCutTick = 0
		}
	case ir.EffectRetriggerNote:
		if e.X > 0 {
			c.retriggerActive = true
			c.retriggerEvery = uint8(e.X)
			c.retriggerTick = 0
		}
	}
}

// SetupModulator arms a continuous (tick-driven) effect for the current row.
func (c *State) SetupModulator(e ir.Effect) {
	switch e.Kind {
	case ir.EffectVolumeSlide:
		c.volumeSlideActive = true
		c.volumeSlideAmount = e.X - e.Y // convention: X = up, Y = down
	case ir.EffectPortaUp:
		c.pendingPortaUp = uint8(e.X)
	case ir.EffectPortaDown:
		c.pendingPortaDown = uint8(e.X)
	case ir.EffectTonePorta:
		if e.X > 0 {
			c.PortaSpeed = uint8(e.X)
		}
		c.tonePortaActive = true
	case ir.EffectTonePortaVolSlide:
		c.tonePortaActive = true
		c.volumeSlideActive = true
		c.volumeSlideAmount = e.X - e.Y
	case ir.EffectVibrato:
		if e.X > 0 {
			c.VibratoSpeed = uint8(e.X)
		}
		if e.Y > 0 {
			c.VibratoDepth = uint8(e.Y)
		}
		c.vibratoActive = true
	case ir.EffectVibratoVolSlide:
		c.vibratoActive = true
		c.volumeSlideActive = true
		c.volumeSlideAmount = e.X - e.Y
	case ir.EffectTremolo:
		if e.X > 0 {
			c.TremoloSpeed = uint8(e.X)
		}
		if e.Y > 0 {
			c.TremoloDepth = uint8(e.Y)
		}
		c.tremoloActive = true
	case ir.EffectArpeggio:
		c.arpeggioActive = true
		c.arpeggioX = uint8(e.X)
		c.arpeggioY = uint8(e.Y)
		c.arpeggioTick = 0
	}
}

// ApplyTickEffect advances every continuous modulator by one tick. Called
// once per tick, after the row's ApplyRowEffect/SetupModulator calls (tick
// 0 effects are already resolved by the row pass).
func (c *State) ApplyTickEffect() {
	c.PeriodOffset = 0
	c.VolumeOffset = 0

	if c.volumeSlideActive {
		c.Volume = clampU8(addI16(c.Volume, c.volumeSlideAmount), 0, 64)
	}
	if c.pendingPortaUp > 0 {
		c.Period = clampPeriod(int32(c.Period) - int32(c.pendingPortaUp))
	}
	if c.pendingPortaDown > 0 {
		c.Period = clampPeriod(int32(c.Period) + int32(c.pendingPortaDown))
	}
	if c.tonePortaActive && c.TargetPeriod > 0 {
		c.tonePortaStep()
	}
	if c.vibratoActive {
		c.PeriodOffset = vibratoOffset(c.VibratoWaveform, c.VibratoPhase, c.VibratoDepth)
		c.VibratoPhase += c.VibratoSpeed
	}
	if c.tremoloActive {
		c.VolumeOffset = tremoloOffset(c.TremoloPhase, c.TremoloDepth)
		c.TremoloPhase += c.TremoloSpeed
	}
	if c.arpeggioActive {
		c.PeriodOffset = c.arpeggioOffset()
		c.arpeggioTick++
	}
	if c.noteCutActive {
		c.noteCutTick++
		if c.noteCutTick >= c.noteCutAt {
			c.Volume = 0
			c.noteCutActive = false
		}
	}
	if c.retriggerActive {
		c.retriggerTick++
		if c.retriggerTick >= c.retriggerEvery {
			c.Position = 0
			c.retriggerTick = 0
		}
	}
}

func (c *State) tonePortaStep() {
	if c.Period == c.TargetPeriod {
		return
	}
	if c.Period > c.TargetPeriod {
		next := int32(c.Period) - int32(c.PortaSpeed)
		if next < int32(c.TargetPeriod) {
			next = int32(c.TargetPeriod)
		}
		c.Period = uint16(next)
	} else {
		next := int32(c.Period) + int32(c.PortaSpeed)
		if next > int32(c.TargetPeriod) {
			next = int32(c.TargetPeriod)
		}
		c.Period = uint16(next)
	}
}

// arpeggioOffset cycles through base/+X/+Y semitone period offsets across
// three ticks, computed via period.NoteToPeriod against the channel's
// current note.
func (c *State) arpeggioOffset() int16 {
	switch c.arpeggioTick % 3 {
	case 0:
		return 0
	case 1:
		return int16(period.NoteToPeriod(c.Note+c.arpeggioX)) - int16(c.Period)
	default:
		return int16(period.NoteToPeriod(c.Note+c.arpeggioY)) - int16(c.Period)
	}
}

func vibratoOffset(waveform, phase, depth uint8) int16 {
	return sineTable(waveform, phase) * int16(depth) / 32
}

func tremoloOffset(phase, depth uint8) int8 {
	v := sineTable(0, phase) * int16(depth) / 64
	return int8(clampI32(int32(v), -64, 64))
}

// sineTable returns a -64..+64 waveform sample for phase (0-255): waveform 0
// is a sine, 1 a ramp-down sawtooth, 2 a square, matching the classic
// tracker vibrato/tremolo waveform selector.
func sineTable(waveform, phase uint8) int16 {
	switch waveform & 0x3 {
	case 1: // ramp down
		return 64 - int16(phase)/2
	case 2: // square
		if phase < 128 {
			return 64
		}
		return -64
	default: // sine, quarter-wave approximation via the phase's high bits
		quarter := phase % 64
		var base int16
		if quarter < 16 {
			base = int16(quarter) * 4
		} else if quarter < 48 {
			base = 64 - (int16(quarter)-16)*2
		} else {
			base = -64 + (int16(quarter)-48)*4
		}
		if phase >= 128 {
			return -base
		}
		return base
	}
}

func clampU8(v uint8, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func addI16(v uint8, delta int16) uint8 {
	r := int16(v) + delta
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampPeriod(p int32) uint16 {
	return period.ClampPeriod(uint16(clampI32(p, int32(period.PeriodMin), int32(period.PeriodMax))))
}
