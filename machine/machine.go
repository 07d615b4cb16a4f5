// Package machine defines the DSP unit interface graph nodes render
// through, plus a small built-in library (passthrough, one-pole low-pass).
package machine

// Kind distinguishes whether a Machine generates audio or processes it.
type Kind int

const (
	Generator Kind = iota
	Effect
)

// ParamInfo describes one of a Machine's parameters for UI/automation.
type ParamInfo struct {
	ID      int
	Name    string
	Min     int32
	Max     int32
	Default int32
}

// Info is a Machine's static metadata.
type Info struct {
	Name      string
	ShortName string
	Kind      Kind
	Params    []ParamInfo
}

// Machine is the interface every graph DSP node implements: init once at
// the sample rate, tick once per row/effect-tick, render a block, stop.
type Machine interface {
	Info() Info
	Init(sampleRate uint32)
	Tick()
	// Render processes buffer in place (Effect) or writes into it
	// (Generator). Returns true if it produced/passed audio, false if
	// silent; graph.State.RenderNode ignores the result.
	Render(buffer []float32) bool
	Stop()
	SetParam(id int, value int32)
}

// New constructs a Machine by name, as referenced from ir.Node.MachineName.
// Unrecognized names fall back to Passthrough, matching the load-time
// behavior documented on ir.Node.
func New(name string) Machine {
	switch name {
	case "amiga_filter":
		return NewAmigaFilter()
	case "passthrough", "":
		return NewPassthrough()
	default:
		return NewPassthrough()
	}
}
