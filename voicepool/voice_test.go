package voicepool

import (
	"testing"

	"github.com/oxbowlabs/beatforge/ir"
	"github.com/oxbowlabs/beatforge/period"
)

func testSample(data []int8, volume uint8) ir.Sample {
	return ir.Sample{
		Name:          "test",
		Data:          ir.SampleData{Format: ir.FormatMono8, Mono8: data},
		DefaultVolume: volume,
		C4Speed:       8363,
	}
}

func loopingSample(data []int8, loopStart, loopEnd uint32) ir.Sample {
	s := testSample(data, 64)
	s.LoopStart = loopStart
	s.LoopEnd = loopEnd
	s.LoopType = ir.LoopForward
	return s
}

func voiceWithIncrement(key ir.SampleKey, increment uint32, volume uint8, panning int8) *Voice {
	v := New(key, 0)
	v.Increment = increment
	v.Volume = volume
	v.Panning = panning
	return &v
}

func renderOne(v *Voice, sample *ir.Sample) *ir.AudioBuffer {
	buf := ir.NewAudioBuffer(2, 1)
	v.RenderWithSource(sample, buf)
	return buf
}

func repeatBytes(pattern []int8, n int) []int8 {
	out := make([]int8, 0, n)
	for len(out) < n {
		out = append(out, pattern...)
	}
	return out[:n]
}

func TestVoiceRenderProducesNonsilentOutput(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	inc := period.PeriodToIncrement(428, 8363, 44100)
	v := voiceWithIncrement(ir.SampleKey{}, inc, 64, 0)
	buf := renderOne(v, &sample)
	if buf.Channel(0)[0] == 0 && buf.Channel(1)[0] == 0 {
		t.Fatal("expected nonsilent output")
	}
}

func TestVoiceRenderSilentWhenNotPlaying(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, 0)
	v.Playing = false
	buf := renderOne(v, &sample)
	if buf.Channel(0)[0] != 0 || buf.Channel(1)[0] != 0 {
		t.Fatal("expected silence")
	}
}

func TestVoiceRenderVolumeZeroIsSilent(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 0, 0)
	buf := renderOne(v, &sample)
	if buf.Channel(0)[0] != 0 || buf.Channel(1)[0] != 0 {
		t.Fatal("expected silence at zero volume")
	}
}

func TestVoiceRenderPanningCenterEqualLR(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, 0)
	buf := renderOne(v, &sample)
	if buf.Channel(0)[0] != buf.Channel(1)[0] {
		t.Fatal("expected equal L/R at center pan")
	}
}

func TestVoiceRenderPanningHardLeft(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, -64)
	buf := renderOne(v, &sample)
	if buf.Channel(1)[0] != 0 {
		t.Fatal("expected silent right channel")
	}
	if buf.Channel(0)[0] == 0 {
		t.Fatal("expected nonsilent left channel")
	}
}

func TestVoiceRenderPanningHardRight(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, 64)
	buf := renderOne(v, &sample)
	if buf.Channel(0)[0] != 0 {
		t.Fatal("expected silent left channel")
	}
	if buf.Channel(1)[0] == 0 {
		t.Fatal("expected nonsilent right channel")
	}
}

func TestVoiceRenderAdvancesPosition(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	inc := uint32(1 << 16)
	v := voiceWithIncrement(ir.SampleKey{}, inc, 64, 0)
	before := v.Position
	renderOne(v, &sample)
	if v.Position != before+inc {
		t.Fatalf("got %d, want %d", v.Position, before+inc)
	}
}

func TestVoiceRenderStopsAtSampleEnd(t *testing.T) {
	sample := testSample([]int8{127, 127}, 64)
	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, 0)
	for i := 0; i < 10; i++ {
		renderOne(v, &sample)
	}
	if v.Playing {
		t.Fatal("expected voice to stop")
	}
}

func TestVoiceRenderLoopsForward(t *testing.T) {
	sample := loopingSample([]int8{100, 50, 25, 10}, 1, 3)
	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, 0)
	for i := 0; i < 10; i++ {
		renderOne(v, &sample)
	}
	if !v.Playing {
		t.Fatal("expected voice to keep playing while looping")
	}
	posSamples := v.Position >> 16
	if posSamples < 1 || posSamples >= 3 {
		t.Fatalf("expected position within loop, got %d", posSamples)
	}
}

func TestVoiceVolumeEnvelopeAttenuatesOutput(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	env := ir.OneShot(ir.ModBreakPoint{Dt: 0, Value: 0.5, Curve: ir.CurveStep})

	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, 0)
	full := renderOne(v, &sample)

	v2 := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, 0)
	v2.SetEnvelopes(&env, nil, nil)
	half := renderOne(v2, &sample)

	if half.Channel(0)[0] >= full.Channel(0)[0] {
		t.Fatalf("expected the 0.5 volume envelope to attenuate output, got %v vs unscaled %v", half.Channel(0)[0], full.Channel(0)[0])
	}
}

func TestVoiceFadeLevelAttenuatesAndSilencesOutput(t *testing.T) {
	sample := testSample(repeatBytes([]int8{127}, 100), 64)
	v := voiceWithIncrement(ir.SampleKey{}, 1<<16, 64, 0)
	v.FadeLevel = 0
	buf := renderOne(v, &sample)
	if buf.Channel(0)[0] != 0 || buf.Channel(1)[0] != 0 {
		t.Fatal("expected a fully faded voice to render silence")
	}
}
