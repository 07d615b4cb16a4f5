// Package voicepool implements per-note audio generation (Voice) and
// centralized voice allocation with priority-ordered stealing (VoicePool).
package voicepool

import (
	"math"

	"github.com/oxbowlabs/beatforge/envelope"
	"github.com/oxbowlabs/beatforge/ir"
)

// State is a Voice's lifecycle stage.
type State int

const (
	// Active is a voice actively owned by a channel.
	Active State = iota
	// Released means note-off was received; the envelope is releasing.
	Released
	// Fading is a voice fading out under NNA Fade.
	Fading
	// Background is a voice detached from its channel under NNA
	// Continue/Off, still audible until it stops.
	Background
)

// Voice produces audio by stepping through one sample.
type Voice struct {
	SampleKey ir.SampleKey
	// Position is the current read position in the sample, 16.16 fixed-point.
	Position uint32
	// Increment is the per-frame position step, 16.16 fixed-point.
	Increment uint32
	Playing   bool
	Volume    uint8 // 0-64
	Panning   int8  // -64..+64
	// VolumeOffset is a transient offset applied on top of Volume (tremolo).
	VolumeOffset int8
	LoopForward  bool
	State        State
	Channel      uint8

	// FadeLevel counts down from 65535 to 0 at FadeSpeed per tick, scaling
	// output as it goes; FadeSpeed 0 means no decay is armed. Drives both
	// NNA Fade (fade(id, speed), spec.md §4.5) and a released voice's
	// post-note-off Instrument.Fadeout decay -- mechanically the same
	// countdown, armed by different callers.
	FadeLevel uint32
	FadeSpeed uint16

	// VolumeEnvelope/PanningEnvelope/PitchEnvelope reference the triggering
	// Instrument's envelopes (nil if it has none for that target); the
	// matching eval state is ticked forward once per engine tick.
	VolumeEnvelope  *ir.ModEnvelope
	PanningEnvelope *ir.ModEnvelope
	PitchEnvelope   *ir.ModEnvelope
	volumeEnvState  envelope.State
	panningEnvState envelope.State
	pitchEnvState   envelope.State
}

// New creates a voice for sampleKey, owned by channel ch, with no envelopes
// armed. Call SetEnvelopes afterward for instruments that carry them.
func New(sampleKey ir.SampleKey, ch uint8) Voice {
	return Voice{
		SampleKey:   sampleKey,
		Playing:     true,
		Volume:      64,
		LoopForward: true,
		State:       Active,
		Channel:     ch,
		FadeLevel:   65535,
	}
}

// SetEnvelopes arms the voice's per-voice volume/panning/pitch envelopes
// from an instrument, resetting each eval state to its first breakpoint. A
// nil argument leaves that envelope unset (rendered as a no-op multiplier).
func (v *Voice) SetEnvelopes(volume, panning, pitch *ir.ModEnvelope) {
	v.VolumeEnvelope = volume
	v.PanningEnvelope = panning
	v.PitchEnvelope = pitch
	envelope.Reset(&v.volumeEnvState, volume)
	envelope.Reset(&v.panningEnvState, panning)
	envelope.Reset(&v.pitchEnvState, pitch)
}

// tick advances the voice's envelopes and fade countdown by one engine
// tick; delta is the tick's length in sub-beat units, the same unit
// ModEnvelope breakpoints use.
func (v *Voice) tick(delta uint32) {
	if v.VolumeEnvelope != nil {
		v.volumeEnvState.Advance(v.VolumeEnvelope, delta)
	}
	if v.PanningEnvelope != nil {
		v.panningEnvState.Advance(v.PanningEnvelope, delta)
	}
	if v.PitchEnvelope != nil {
		v.pitchEnvState.Advance(v.PitchEnvelope, delta)
	}
	if v.FadeSpeed > 0 {
		if uint32(v.FadeSpeed) >= v.FadeLevel {
			v.FadeLevel = 0
		} else {
			v.FadeLevel -= uint32(v.FadeSpeed)
		}
	}
}

// RenderWithSource renders one frame into output (frame 0 of channels 0/1),
// summing into whatever is already there for multi-voice mixing.
func (v *Voice) RenderWithSource(sample *ir.Sample, output *ir.AudioBuffer) {
	if !v.Playing {
		return
	}
	sampleValue := sample.Data.GetMonoInterpolated(v.Position)
	left, right := applyVolumeAndPan(sampleValue, v.Volume, v.VolumeOffset, v.effectivePanning())

	scale := v.envelopeVolumeScale() * v.fadeScale()
	left *= scale
	right *= scale

	out0 := output.Channel(0)
	out1 := output.Channel(1)
	out0[0] += left
	out1[0] += right

	v.Position += v.effectiveIncrement()
	v.advanceLoop(sample)
}

// envelopeVolumeScale returns the instrument volume envelope's current
// value as a 0..1 multiplier, or 1 (no attenuation) if the voice has none.
func (v *Voice) envelopeVolumeScale() float32 {
	if v.VolumeEnvelope == nil {
		return 1
	}
	return v.volumeEnvState.Value()
}

// fadeScale returns FadeLevel/65535, the NNA-fade/post-release multiplier.
func (v *Voice) fadeScale() float32 {
	return float32(v.FadeLevel) / 65535
}

// effectivePanning adds the instrument panning envelope's value, if any, as
// an offset onto the voice's base Panning.
func (v *Voice) effectivePanning() int8 {
	if v.PanningEnvelope == nil {
		return v.Panning
	}
	offset := int32(v.panningEnvState.Value())
	return int8(clampInt32(int32(v.Panning)+offset, -64, 64))
}

// effectiveIncrement scales Increment by the instrument pitch envelope's
// value, if any, treated as a semitone offset.
func (v *Voice) effectiveIncrement() uint32 {
	if v.PitchEnvelope == nil {
		return v.Increment
	}
	semitones := float64(v.pitchEnvState.Value())
	return uint32(float64(v.Increment) * math.Pow(2, semitones/12))
}

// advanceLoop applies loop-wrap or end-of-sample stop after a position
// advance.
func (v *Voice) advanceLoop(sample *ir.Sample) {
	posSamples := v.Position >> 16
	if sample.HasLoop() && posSamples >= sample.LoopEnd {
		loopLen := sample.LoopEnd - sample.LoopStart
		v.Position -= loopLen << 16
	} else if posSamples >= uint32(sample.Len()) {
		v.Playing = false
	}
}

// applyVolumeAndPan computes stereo float32 output from a raw sample value,
// volume, a transient volume offset, and panning.
func applyVolumeAndPan(sampleValue int16, volume uint8, volumeOffset int8, panning int8) (left, right float32) {
	vol := int32(volume) + int32(volumeOffset)
	if vol < 0 {
		vol = 0
	}
	if vol > 64 {
		vol = 64
	}
	panRight := int32(panning) + 64 // 0..128
	leftVol := ((128 - panRight) * vol) >> 7
	rightVol := (panRight * vol) >> 7

	l := (int32(sampleValue) * leftVol) >> 6
	r := (int32(sampleValue) * rightVol) >> 6

	l = clampInt32(l, -32768, 32767)
	r = clampInt32(r, -32768, 32767)

	return float32(l) / 32768.0, float32(r) / 32768.0
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
