package voicepool

import "github.com/oxbowlabs/beatforge/ir"

// VoiceID identifies a voice slot within a Pool.
type VoiceID int

// MaxVoices bounds the number of simultaneous voices a Pool holds.
const MaxVoices = 128

// Pool centrally owns every live Voice plus the sample bank they read from.
// Voices live in a fixed-capacity value array rather than behind individual
// pointers, so allocating, stealing, and freeing a slot never touch the
// heap.
type Pool struct {
	slots      [MaxVoices]Voice
	occupied   [MaxVoices]bool
	SampleBank *ir.SlotMap[ir.Sample]
}

// NewPool returns an empty voice pool with an empty sample bank.
func NewPool() *Pool {
	return &Pool{SampleBank: ir.NewSlotMap[ir.Sample]()}
}

// Allocate copies voice into a free slot, or steals one if the pool is
// full. Steal priority: Fading > Released > Background > Active.
func (p *Pool) Allocate(voice Voice) VoiceID {
	for i, occ := range p.occupied {
		if !occ {
			p.slots[i] = voice
			p.occupied[i] = true
			return VoiceID(i)
		}
	}
	id := p.findStealCandidate()
	p.slots[id] = voice
	p.occupied[id] = true
	return id
}

func (p *Pool) findStealCandidate() VoiceID {
	priority := func(s State) int {
		switch s {
		case Fading:
			return 0
		case Released:
			return 1
		case Background:
			return 2
		default:
			return 3
		}
	}
	best := VoiceID(0)
	bestPriority := -1
	for i := range p.slots {
		if !p.occupied[i] {
			continue
		}
		pr := priority(p.slots[i].State)
		if bestPriority == -1 || pr < bestPriority {
			bestPriority = pr
			best = VoiceID(i)
		}
	}
	return best
}

// Get returns a pointer to the voice at id, or nil if the slot is free.
func (p *Pool) Get(id VoiceID) *Voice {
	if id < 0 || int(id) >= len(p.slots) || !p.occupied[id] {
		return nil
	}
	return &p.slots[id]
}

// Slot returns the voice at index i and whether it is occupied, letting
// callers walk every live voice by index without a per-call closure.
func (p *Pool) Slot(i int) (*Voice, bool) {
	if i < 0 || i >= len(p.slots) || !p.occupied[i] {
		return nil, false
	}
	return &p.slots[i], true
}

// Kill removes a voice immediately, freeing its slot.
func (p *Pool) Kill(id VoiceID) {
	if id >= 0 && int(id) < len(p.slots) {
		p.occupied[id] = false
	}
}

// Release transitions a voice to Released state, gates off its volume
// envelope, and if fadeout is nonzero arms the post-release decay that
// instrument's Fadeout drives (spec.md §3 Instrument.fadeout).
func (p *Pool) Release(id VoiceID, fadeout uint16) {
	v := p.Get(id)
	if v == nil {
		return
	}
	v.State = Released
	v.volumeEnvState.GateOff()
	if fadeout > 0 {
		v.FadeSpeed = fadeout
	}
}

// Fade transitions a voice to Fading state, arming a decay from level 65535
// by speed each tick (spec.md §4.5 fade(id, speed)); at zero the voice is
// reaped by ReapFinished.
func (p *Pool) Fade(id VoiceID, speed uint16) {
	v := p.Get(id)
	if v == nil {
		return
	}
	v.State = Fading
	v.FadeLevel = 65535
	v.FadeSpeed = speed
}

// TickAll advances every occupied voice's envelopes and fade countdown by
// one engine tick; delta is the tick length in sub-beat units.
func (p *Pool) TickAll(delta uint32) {
	for i := range p.slots {
		if p.occupied[i] {
			p.slots[i].tick(delta)
		}
	}
}

// ReapFinished removes every voice that stopped playing, whose Fading/
// released decay reached zero, or whose volume envelope ran to completion
// after release.
func (p *Pool) ReapFinished() {
	for i := range p.slots {
		if !p.occupied[i] {
			continue
		}
		v := &p.slots[i]
		switch {
		case !v.Playing:
			p.occupied[i] = false
		case v.FadeSpeed > 0 && v.FadeLevel == 0:
			p.occupied[i] = false
		case v.State == Released && v.VolumeEnvelope != nil && v.volumeEnvState.Finished():
			p.occupied[i] = false
		}
	}
}

// ActiveCount returns the number of occupied voice slots.
func (p *Pool) ActiveCount() int {
	n := 0
	for _, occ := range p.occupied {
		if occ {
			n++
		}
	}
	return n
}

// RenderVoice renders a single voice by ID into output.
func (p *Pool) RenderVoice(id VoiceID, output *ir.AudioBuffer) {
	v := p.Get(id)
	if v == nil {
		return
	}
	sample := p.SampleBank.GetPtr(v.SampleKey)
	if sample == nil {
		v.Playing = false
		return
	}
	v.RenderWithSource(sample, output)
}

// RenderAll renders every active voice into output, summing their output.
func (p *Pool) RenderAll(output *ir.AudioBuffer) {
	for i := range p.slots {
		if !p.occupied[i] {
			continue
		}
		v := &p.slots[i]
		sample := p.SampleBank.GetPtr(v.SampleKey)
		if sample == nil {
			v.Playing = false
			continue
		}
		v.RenderWithSource(sample, output)
	}
}
