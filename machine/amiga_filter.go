package machine

import "math"

const amigaFilterDefaultCutoff int32 = 4410

// AmigaFilter is a one-pole RC low-pass filter modeled on the ~4.4 kHz
// output filter the Amiga's audio hardware applied, giving its playback a
// characteristically warm sound: y = y_prev + alpha*(x - y_prev).
type AmigaFilter struct {
	prevLeft, prevRight float32
	alpha               float32
	cutoffHz            float32
	sampleRate          uint32
}

// NewAmigaFilter returns a filter at its default 4410 Hz cutoff.
func NewAmigaFilter() *AmigaFilter {
	return &AmigaFilter{cutoffHz: float32(amigaFilterDefaultCutoff), sampleRate: 44100}
}

func (f *AmigaFilter) Info() Info {
	return Info{
		Name:      "Amiga Filter",
		ShortName: "AFilter",
		Kind:      Effect,
		Params: []ParamInfo{
			{ID: 0, Name: "Cutoff", Min: 1000, Max: 22050, Default: amigaFilterDefaultCutoff},
		},
	}
}

func (f *AmigaFilter) Init(sampleRate uint32) {
	f.sampleRate = sampleRate
	f.recomputeAlpha()
}

func (f *AmigaFilter) Tick() {}

// Render filters buffer in place, treating it as interleaved stereo pairs.
func (f *AmigaFilter) Render(buffer []float32) bool {
	alpha := f.alpha
	prevL, prevR := f.prevLeft, f.prevRight
	for i := 0; i+1 < len(buffer); i += 2 {
		prevL += alpha * (buffer[i] - prevL)
		prevR += alpha * (buffer[i+1] - prevR)
		buffer[i] = prevL
		buffer[i+1] = prevR
	}
	f.prevLeft, f.prevRight = prevL, prevR
	return true
}

func (f *AmigaFilter) Stop() {
	f.prevLeft = 0
	f.prevRight = 0
}

func (f *AmigaFilter) SetParam(id int, value int32) {
	if id != 0 {
		return
	}
	v := float32(value)
	if v < 1000 {
		v = 1000
	}
	if v > 22050 {
		v = 22050
	}
	f.cutoffHz = v
	f.recomputeAlpha()
}

func (f *AmigaFilter) recomputeAlpha() {
	f.alpha = float32(2*math.Pi) * f.cutoffHz / float32(f.sampleRate)
}
