package machine

// Passthrough leaves its buffer unchanged. It fills graph node slots whose
// generator/effect has no implementation yet, so a song's graph shape can
// still be built and rendered in full.
type Passthrough struct{}

// NewPassthrough returns a Passthrough machine.
func NewPassthrough() *Passthrough { return &Passthrough{} }

func (p *Passthrough) Info() Info {
	return Info{Name: "Passthrough", ShortName: "Pass", Kind: Effect}
}

func (p *Passthrough) Init(sampleRate uint32)          {}
func (p *Passthrough) Tick()                           {}
func (p *Passthrough) Render(buffer []float32) bool    { return true }
func (p *Passthrough) Stop()                           {}
func (p *Passthrough) SetParam(id int, value int32)    {}
