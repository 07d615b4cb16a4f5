package channel

import (
	"testing"

	"github.com/oxbowlabs/beatforge/ir"
	"github.com/oxbowlabs/beatforge/period"
)

const sampleRate = 44100

func TestTriggerSetsPeriodAndIncrement(t *testing.T) {
	c := New()
	c.C4Speed = 8363
	c.Trigger(48, 1, 0)
	c.Period = period.NoteToPeriod(48)
	c.UpdateIncrement(sampleRate)
	if c.Period != 428 {
		t.Fatalf("expected period 428, got %d", c.Period)
	}
	want := period.PeriodToIncrement(428, 8363, sampleRate)
	if c.Increment != want {
		t.Fatalf("got %d, want %d", c.Increment, want)
	}
}

func TestHigherNoteGivesDoubleIncrement(t *testing.T) {
	c := New()
	c.C4Speed = 8363
	c.Trigger(48, 1, 0)
	c.Period = period.NoteToPeriod(48)
	c.UpdateIncrement(sampleRate)
	inc48 := c.Increment

	c.Trigger(60, 1, 0)
	c.Period = period.NoteToPeriod(60)
	c.UpdateIncrement(sampleRate)
	inc60 := c.Increment

	if inc60 != inc48*2 {
		t.Fatalf("got %d, want %d", inc60, inc48*2)
	}
}

func TestSetVolumeClampsTo64(t *testing.T) {
	c := New()
	c.ApplyRowEffect(ir.Effect{Kind: ir.EffectSetVolume, X: 100})
	if c.Volume != 64 {
		t.Fatalf("expected clamp to 64, got %d", c.Volume)
	}
}

func TestFineVolumeSlide(t *testing.T) {
	c := New()
	c.Volume = 32
	c.ApplyRowEffect(ir.Effect{Kind: ir.EffectFineVolumeSlideUp, X: 4})
	if c.Volume != 36 {
		t.Fatalf("got %d", c.Volume)
	}
	c.ApplyRowEffect(ir.Effect{Kind: ir.EffectFineVolumeSlideDown, X: 10})
	if c.Volume != 26 {
		t.Fatalf("got %d", c.Volume)
	}
}

func TestVolumeSlideModulatorAdvances(t *testing.T) {
	c := New()
	c.Volume = 32
	c.SetupModulator(ir.Effect{Kind: ir.EffectVolumeSlide, X: 4, Y: 0})
	before := c.Volume
	c.ApplyTickEffect()
	if c.Volume <= before {
		t.Fatalf("expected volume to increase, got %d from %d", c.Volume, before)
	}
}

func TestPortaUpDecreasesPeriod(t *testing.T) {
	c := New()
	c.Period = 428
	c.SetupModulator(ir.Effect{Kind: ir.EffectPortaUp, X: 4})
	c.ApplyTickEffect()
	if c.Period >= 428 {
		t.Fatalf("expected period to decrease, got %d", c.Period)
	}
}

func TestPortaUpClampsAtPeriodMin(t *testing.T) {
	c := New()
	c.Period = period.NoteToPeriod(71) // B-3 = PeriodMin
	c.SetupModulator(ir.Effect{Kind: ir.EffectPortaUp, X: 20})
	c.ApplyTickEffect()
	if c.Period != period.PeriodMin {
		t.Fatalf("got %d, want %d", c.Period, period.PeriodMin)
	}
}

func TestTonePortaSlidesTowardTargetWithoutOvershoot(t *testing.T) {
	c := New()
	c.Period = 428
	c.TargetPeriod = 214
	c.SetupModulator(ir.Effect{Kind: ir.EffectTonePorta, X: 255})
	c.ApplyTickEffect()
	if c.Period != 214 {
		t.Fatalf("expected clamp to target 214, got %d", c.Period)
	}
}

func TestTonePortaApproachesGradually(t *testing.T) {
	c := New()
	c.Period = 428
	c.TargetPeriod = 214
	c.SetupModulator(ir.Effect{Kind: ir.EffectTonePorta, X: 8})
	for i := 0; i < 5; i++ {
		c.ApplyTickEffect()
	}
	if c.Period >= 428 || c.Period <= 214 {
		t.Fatalf("expected period between target and start, got %d", c.Period)
	}
}

func TestVibratoDoesNotChangeBasePeriod(t *testing.T) {
	c := New()
	c.Period = 428
	base := c.Period
	c.SetupModulator(ir.Effect{Kind: ir.EffectVibrato, X: 8, Y: 8})
	for i := 0; i < 10; i++ {
		c.ApplyTickEffect()
	}
	if c.Period != base {
		t.Fatalf("expected base period unchanged, got %d want %d", c.Period, base)
	}
}

func TestArpeggioCyclesThroughThreeOffsets(t *testing.T) {
	c := New()
	c.Note = 48
	c.Period = period.NoteToPeriod(48)
	c.SetupModulator(ir.Effect{Kind: ir.EffectArpeggio, X: 4, Y: 7})
	offsets := make([]int16, 6)
	for i := 0; i < 6; i++ {
		c.ApplyTickEffect()
		offsets[i] = c.PeriodOffset
	}
	if offsets[0] != offsets[3] || offsets[1] != offsets[4] || offsets[2] != offsets[5] {
		t.Fatalf("expected period offsets to cycle every 3 ticks: %v", offsets)
	}
}

func TestNoteCutImmediate(t *testing.T) {
	c := New()
	c.Volume = 64
	c.ApplyRowEffect(ir.Effect{Kind: ir.EffectNoteCut, X: 0})
	if c.Volume != 0 {
		t.Fatalf("expected immediate cut, got %d", c.Volume)
	}
}

func TestNoteCutAfterNTicks(t *testing.T) {
	c := New()
	c.Volume = 64
	c.ApplyRowEffect(ir.Effect{Kind: ir.EffectNoteCut, X: 3})
	c.ApplyTickEffect()
	if c.Volume != 64 {
		t.Fatalf("expected no cut yet, got %d", c.Volume)
	}
	c.ApplyTickEffect()
	if c.Volume != 64 {
		t.Fatalf("expected no cut yet, got %d", c.Volume)
	}
	c.ApplyTickEffect()
	if c.Volume != 0 {
		t.Fatalf("expected cut at tick 3, got %d", c.Volume)
	}
}

func TestRetriggerResetsPosition(t *testing.T) {
	c := New()
	c.Position = 1 << 20
	c.ApplyRowEffect(ir.Effect{Kind: ir.EffectRetriggerNote, X: 2})
	c.ApplyTickEffect()
	if c.Position == 0 {
		t.Fatal("should not have retriggered yet")
	}
	c.ApplyTickEffect()
	if c.Position != 0 {
		t.Fatalf("expected retrigger to reset position, got %d", c.Position)
	}
}
