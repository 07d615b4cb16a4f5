package envelope

import (
	"testing"

	"github.com/oxbowlabs/beatforge/ir"
)

func bp(dt uint32, value float32, curve ir.CurveKind) ir.ModBreakPoint {
	return ir.ModBreakPoint{Dt: dt, Value: value, Curve: curve}
}

func approxEqual(a, b, tol float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < tol
}

func TestSingleLinearSegment(t *testing.T) {
	env := ir.OneShot(bp(0, 0, ir.CurveLinear), bp(100, 10, ir.CurveStep))
	s := New(&env)
	if s.Value() != 0 {
		t.Fatalf("expected 0, got %v", s.Value())
	}
	s.Advance(&env, 50)
	if !approxEqual(s.Value(), 5, 0.01) {
		t.Fatalf("expected ~5, got %v", s.Value())
	}
	s.Advance(&env, 50)
	if !approxEqual(s.Value(), 10, 0.01) {
		t.Fatalf("expected ~10, got %v", s.Value())
	}
	if !s.Finished() {
		t.Fatal("expected finished")
	}
}

func TestStepInterpolationHolds(t *testing.T) {
	env := ir.OneShot(bp(0, 5, ir.CurveStep), bp(100, 10, ir.CurveStep))
	s := New(&env)
	s.Advance(&env, 50)
	if s.Value() != 5 {
		t.Fatalf("expected 5, got %v", s.Value())
	}
	s.Advance(&env, 50)
	if s.Value() != 10 {
		t.Fatalf("expected 10, got %v", s.Value())
	}
}

func TestLoopingEnvelopeCycles(t *testing.T) {
	env := ir.Looping(0, 2, bp(0, 0, ir.CurveStep), bp(10, 1, ir.CurveStep), bp(10, 2, ir.CurveStep))
	s := New(&env)

	s.Advance(&env, 10)
	if s.Value() != 1 {
		t.Fatalf("expected 1, got %v", s.Value())
	}

	s.Advance(&env, 10)
	if s.Value() != 0 {
		t.Fatalf("expected 0 after loop, got %v", s.Value())
	}
	if !s.Looped() {
		t.Fatal("expected looped")
	}

	s.Advance(&env, 10)
	if s.Value() != 1 {
		t.Fatalf("expected 1, got %v", s.Value())
	}
	if s.Looped() {
		t.Fatal("expected not looped this step")
	}
	if s.Finished() {
		t.Fatal("looping envelope should never finish")
	}
}

func TestSustainHoldsUntilGateOff(t *testing.T) {
	env := ir.OneShot(
		bp(0, 0, ir.CurveLinear),
		bp(10, 1, ir.CurveLinear),
		bp(0, 1, ir.CurveLinear),
		bp(10, 0, ir.CurveLinear),
	).WithSustain(2)
	s := New(&env)

	s.Advance(&env, 10)
	if !approxEqual(s.Value(), 1, 0.01) {
		t.Fatalf("expected ~1, got %v", s.Value())
	}

	s.Advance(&env, 100)
	if !approxEqual(s.Value(), 1, 0.01) {
		t.Fatalf("expected sustain hold ~1, got %v", s.Value())
	}
	if s.Finished() {
		t.Fatal("should not be finished while sustaining")
	}

	s.GateOff()
	s.Advance(&env, 5)
	if s.Value() >= 1 || s.Value() <= 0 {
		t.Fatalf("expected value releasing between 0 and 1, got %v", s.Value())
	}
}

func TestTriggerModeDetectsLoop(t *testing.T) {
	env := ir.Looping(0, 1, bp(0, 0, ir.CurveStep), bp(30, 0, ir.CurveStep))
	s := New(&env)

	s.Advance(&env, 10)
	if s.Looped() {
		t.Fatal("should not have looped yet")
	}
	s.Advance(&env, 10)
	if s.Looped() {
		t.Fatal("should not have looped yet")
	}
	s.Advance(&env, 10)
	if !s.Looped() {
		t.Fatal("expected loop at total 30")
	}
	s.Advance(&env, 10)
	if s.Looped() {
		t.Fatal("should not report looped again immediately")
	}
}

func TestEmptyEnvelopeStaysAtZero(t *testing.T) {
	env := ir.OneShot()
	s := New(&env)
	if s.Value() != 0 {
		t.Fatal("expected 0")
	}
	s.Advance(&env, 100)
	if s.Value() != 0 {
		t.Fatal("expected 0")
	}
}

func TestOnePointEnvelopeHoldsValue(t *testing.T) {
	env := ir.OneShot(bp(0, 42, ir.CurveLinear))
	s := New(&env)
	if s.Value() != 42 {
		t.Fatal("expected 42")
	}
	s.Advance(&env, 100)
	if s.Value() != 42 {
		t.Fatal("expected still 42")
	}
}

func TestMultiSegmentWalksThrough(t *testing.T) {
	env := ir.OneShot(bp(0, 0, ir.CurveLinear), bp(10, 10, ir.CurveLinear), bp(10, 20, ir.CurveStep))
	s := New(&env)

	s.Advance(&env, 10)
	if !approxEqual(s.Value(), 10, 0.01) {
		t.Fatalf("got %v", s.Value())
	}
	s.Advance(&env, 5)
	if !approxEqual(s.Value(), 15, 0.01) {
		t.Fatalf("got %v", s.Value())
	}
	s.Advance(&env, 5)
	if !approxEqual(s.Value(), 20, 0.01) {
		t.Fatalf("got %v", s.Value())
	}
	if !s.Finished() {
		t.Fatal("expected finished")
	}
}

func TestLargeOvershootSkipsSegments(t *testing.T) {
	env := ir.OneShot(bp(0, 0, ir.CurveLinear), bp(10, 10, ir.CurveLinear), bp(10, 20, ir.CurveStep))
	s := New(&env)
	s.Advance(&env, 25)
	if !approxEqual(s.Value(), 20, 0.01) {
		t.Fatalf("got %v", s.Value())
	}
	if !s.Finished() {
		t.Fatal("expected finished")
	}
}
