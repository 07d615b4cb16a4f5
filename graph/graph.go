// Package graph holds the per-render runtime state for an ir.AudioGraph:
// one output buffer per node, a precomputed topological order, and the
// machine.Machine instance backing every node's DSP work.
package graph

import (
	"fmt"
	"strconv"

	"github.com/oxbowlabs/beatforge/ir"
	"github.com/oxbowlabs/beatforge/machine"
	"github.com/viterin/vek/vek32"
)

// applyInitialParams resolves a node's string-keyed initial parameter map
// (as parsed from the song's wire format) against a Machine's numeric param
// IDs. Keys that don't parse as an ID are skipped.
func applyInitialParams(m machine.Machine, params map[string]int32) {
	for key, v := range params {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		m.SetParam(id, v)
	}
}

// State is the live rendering state for one song's audio graph: node
// outputs, machine instances, and the topological order they render in.
type State struct {
	graph      *ir.AudioGraph
	sampleRate uint32

	nodeKeys    []ir.NodeKey
	nodeOutputs map[ir.NodeKey]*ir.AudioBuffer
	machines    map[ir.NodeKey]machine.Machine
	scratch     *ir.AudioBuffer
}

// NewState builds graph render state from graph, constructing a Machine for
// every Machine/Passthrough node and precomputing the render order. Every
// node's Machine is initialized at sampleRate before use.
func NewState(g *ir.AudioGraph, sampleRate uint32) (*State, error) {
	order, err := ir.TopoOrder(g)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	s := &State{
		graph:       g,
		sampleRate:  sampleRate,
		nodeKeys:    order,
		nodeOutputs: make(map[ir.NodeKey]*ir.AudioBuffer, len(order)),
		machines:    make(map[ir.NodeKey]machine.Machine, len(order)),
		scratch:     ir.NewAudioBuffer(2, ir.BlockSize),
	}
	for _, k := range order {
		s.nodeOutputs[k] = ir.NewAudioBuffer(2, ir.BlockSize)
		n := g.Node(k)
		if n == nil {
			continue
		}
		if n.Type == ir.NodeMachine || n.Type == ir.NodePassthrough {
			m := machine.New(n.MachineName)
			m.Init(sampleRate)
			applyInitialParams(m, n.Params)
			s.machines[k] = m
		}
	}
	return s, nil
}

// TopoOrder returns the precomputed render order, sources first, Master last.
func (s *State) TopoOrder() []ir.NodeKey { return s.nodeKeys }

// Output returns node k's output buffer as left by the last frame rendered.
func (s *State) Output(k ir.NodeKey) *ir.AudioBuffer { return s.nodeOutputs[k] }

// Machine returns the Machine instance backing node k, or nil if k has none
// (Master and TrackerChannel nodes are driven directly by the engine).
func (s *State) Machine(k ir.NodeKey) machine.Machine { return s.machines[k] }

// ClearOutputs silences every node's output buffer, called by the engine
// once per frame before voices/machines render into them.
func (s *State) ClearOutputs() {
	for _, buf := range s.nodeOutputs {
		buf.Clear()
	}
}

// Tick advances every node's Machine by one tracker tick.
func (s *State) Tick() {
	for _, k := range s.nodeKeys {
		if m := s.machines[k]; m != nil {
			m.Tick()
		}
	}
}

// gainLinear converts a fixed-point 16.16 connection gain to a linear
// float32 multiplier.
func gainLinear(gain int32) float32 {
	return float32(gain) / float32(ir.GainUnity)
}

// GatherInputs sums every connection feeding into node k, scaled by its
// gain, into dst (silenced first).
func (s *State) GatherInputs(k ir.NodeKey, dst *ir.AudioBuffer) {
	dst.Clear()
	for _, c := range s.graph.Connections {
		if c.To != k {
			continue
		}
		src, ok := s.nodeOutputs[c.From]
		if !ok {
			continue
		}
		g := gainLinear(c.Gain)
		for ch := 0; ch < dst.Channels() && ch < src.Channels(); ch++ {
			mixScaled(dst.Channel(ch), src.Channel(ch), g)
		}
	}
}

// mixScaled adds src*gain into dst in place, vectorized via vek32.
func mixScaled(dst, src []float32, gain float32) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	if n == 0 {
		return
	}
	if gain == 1 {
		vek32.Add_Inplace(dst[:n], src[:n])
		return
	}
	for i := 0; i < n; i++ {
		dst[i] += src[i] * gain
	}
}

// RenderNode gathers node k's inputs (for Machine/Effect nodes) and runs its
// Machine over its own output buffer in place. NodeMaster has no Machine;
// RenderNode only gathers its inputs. NodeTrackerChannel buffers are written
// by the engine before the walk, and RenderNode leaves them unchanged.
func (s *State) RenderNode(k ir.NodeKey) {
	n := s.graph.Node(k)
	if n == nil {
		return
	}
	switch n.Type {
	case ir.NodeMachine, ir.NodePassthrough:
		out := s.nodeOutputs[k]
		s.GatherInputs(k, out)
		if n.Bypass {
			return
		}
		if m := s.machines[k]; m != nil {
			interleaved := interleave(out)
			m.Render(interleaved)
			deinterleave(out, interleaved)
		}
	case ir.NodeMaster:
		s.GatherInputs(k, s.nodeOutputs[k])
	}
}

// RenderAll gathers and renders every node in topological order and returns
// the Master node's resulting buffer.
func (s *State) RenderAll() *ir.AudioBuffer {
	for _, k := range s.nodeKeys {
		s.RenderNode(k)
	}
	return s.nodeOutputs[s.graph.Master]
}

func interleave(buf *ir.AudioBuffer) []float32 {
	frames := buf.Frames()
	out := make([]float32, frames*2)
	l, r := buf.Channel(0), buf.Channel(1)
	for i := 0; i < frames; i++ {
		out[2*i] = l[i]
		out[2*i+1] = r[i]
	}
	return out
}

func deinterleave(buf *ir.AudioBuffer, interleaved []float32) {
	frames := buf.Frames()
	l, r := buf.Channel(0), buf.Channel(1)
	for i := 0; i < frames; i++ {
		l[i] = interleaved[2*i]
		r[i] = interleaved[2*i+1]
	}
}
