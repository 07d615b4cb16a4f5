// Package envelope evaluates an ir.ModEnvelope over time, producing the
// piecewise value used to drive volume, pitch, and panning modulators.
package envelope

import "github.com/oxbowlabs/beatforge/ir"

// State is the runtime cursor over a playing ModEnvelope.
type State struct {
	segment       uint16
	timeInSegment uint32
	value         float32
	finished      bool
	gateHeld      bool
	looped        bool
}

// New starts a State at the envelope's first breakpoint (0 if the envelope
// has no points).
func New(env *ir.ModEnvelope) *State {
	s := &State{}
	Reset(s, env)
	return s
}

// Reset reinitializes s in place to env's first breakpoint, without
// allocating. Used by voicepool to (re)arm a voice's envelope state from a
// fixed-capacity slot rather than constructing a new State per note.
func Reset(s *State, env *ir.ModEnvelope) {
	*s = State{}
	if env != nil && len(env.Points) > 0 {
		s.value = env.Points[0].Value
	}
}

// Value returns the envelope's current output value.
func (s *State) Value() float32 { return s.value }

// Finished reports whether a one-shot envelope has reached its end.
func (s *State) Finished() bool { return s.finished }

// Looped reports whether a loop point was crossed on the last Advance call
// (used by Trigger-mode modulators).
func (s *State) Looped() bool { return s.looped }

// GateOff releases a sustain hold, letting the envelope continue toward its
// release segment on the next Advance.
func (s *State) GateOff() { s.gateHeld = false }

// Advance steps the envelope forward by delta sub-beat units.
func (s *State) Advance(env *ir.ModEnvelope, delta uint32) {
	s.looped = false
	if s.finished || s.gateHeld || len(env.Points) < 2 {
		return
	}
	s.timeInSegment += delta
	s.resolve(env)
}

// resolve walks forward through breakpoints until time_in_segment lands
// within the current segment, handling loop and sustain points along the
// way.
func (s *State) resolve(env *ir.ModEnvelope) {
	for {
		segIdx := int(s.segment)
		nextIdx := segIdx + 1
		if nextIdx >= len(env.Points) {
			s.finished = true
			s.value = env.Points[segIdx].Value
			return
		}

		next := env.Points[nextIdx]
		if next.Dt == 0 || s.timeInSegment >= next.Dt {
			var overshoot uint32
			if next.Dt > 0 {
				overshoot = s.timeInSegment - next.Dt
			} else {
				overshoot = s.timeInSegment
			}
			s.segment++
			s.timeInSegment = overshoot
			s.value = next.Value

			if env.SustainPoint != nil && *env.SustainPoint == s.segment {
				s.gateHeld = true
				s.timeInSegment = 0
				return
			}

			if lr := env.LoopRange; lr != nil {
				if s.segment >= lr.End {
					s.segment = lr.Start
					s.looped = true
					s.value = env.Points[lr.Start].Value
					if s.timeInSegment == 0 {
						return
					}
					continue
				}
			}

			if int(s.segment)+1 >= len(env.Points) {
				s.finished = true
				return
			}

			if s.timeInSegment > 0 {
				continue
			}
			return
		}

		seg := env.Points[segIdx]
		t := float32(s.timeInSegment) / float32(next.Dt)
		s.value = ir.Interpolate(seg.Curve, seg.K, seg.Value, next.Value, t)
		return
	}
}
