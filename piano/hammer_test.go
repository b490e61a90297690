package piano

import (
	"errors"
	"math"
	"testing"
)

func newTestHammer(t *testing.T) *Hammer {
	t.Helper()
	h, err := NewHammer(44100)
	if err != nil {
		t.Fatalf("NewHammer: %v", err)
	}
	return h
}

func TestHammerPeakForceIncreasesWithVelocity(t *testing.T) {
	h := newTestHammer(t)
	prev := 0.0
	for _, v := range []float64{0.1, 0.5, 1, 2, 3, 4, 6, 8, 9, 9.5, 10} {
		h.Strike(v, 0.12)
		hammerPeak(h)
		peak := h.PeakForce()
		if peak <= prev {
			t.Fatalf("velocity %.1f: peak force %f not above %f", v, peak, prev)
		}
		prev = peak
	}
}

// The soft limit must leave headroom at the top of the strike range so the
// hardest felt still distinguishes the fastest strikes.
func TestHammerTopVelocitiesStayDistinct(t *testing.T) {
	for _, hard := range []float64{0.5, 1} {
		h := newTestHammer(t)
		h.SetFeltHardness(hard)
		h.Strike(9.5, 0.12)
		hammerPeak(h)
		lower := h.PeakForce()
		h.Strike(maxStrikeVelocity, 0.12)
		hammerPeak(h)
		upper := h.PeakForce()
		if upper-lower < 1 {
			t.Fatalf("hardness %.1f: peak %f at 9.5 m/s vs %f at %g m/s", hard, lower, upper, maxStrikeVelocity)
		}
		if upper > maxContactForce {
			t.Fatalf("hardness %.1f: peak %f above limit", hard, upper)
		}
	}
}

func TestHammerPeakForceNonDecreasingWithHardness(t *testing.T) {
	h := newTestHammer(t)
	prev := 0.0
	for _, hard := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1} {
		h.SetFeltHardness(hard)
		h.Strike(3, 0.12)
		hammerPeak(h)
		peak := h.PeakForce()
		if peak < prev {
			t.Fatalf("hardness %.1f: peak force %f below %f", hard, peak, prev)
		}
		prev = peak
	}
}

func TestHammerHarderStrikeShortensContact(t *testing.T) {
	h := newTestHammer(t)
	h.Strike(0.8, 0.12)
	_, soft := hammerPeak(h)
	h.Strike(6, 0.12)
	_, hard := hammerPeak(h)
	if soft == 0 || hard == 0 {
		t.Fatalf("expected contact: soft=%d hard=%d", soft, hard)
	}
	if hard >= soft {
		t.Fatalf("expected faster strike to leave the string sooner: hard=%d soft=%d", hard, soft)
	}
}

func TestHammerSettersClamp(t *testing.T) {
	h := newTestHammer(t)
	for _, m := range []float64{0, -1, math.NaN(), 1e-9} {
		h.SetMass(m)
		if !(h.Mass() > 0) {
			t.Fatalf("SetMass(%v) left mass %v", m, h.Mass())
		}
	}
	h.SetMass(10)
	if h.Mass() != maxHammerMass {
		t.Fatalf("mass = %v, want %v", h.Mass(), maxHammerMass)
	}
	h.SetFeltHardness(3)
	if h.FeltHardness() != 1 {
		t.Fatalf("hardness = %v, want 1", h.FeltHardness())
	}
	h.SetFeltHardness(-1)
	if h.FeltHardness() != 0 {
		t.Fatalf("hardness = %v, want 0", h.FeltHardness())
	}

	h.SetMass(0)
	h.Strike(100, 2)
	for i := 0; i < 2000; i++ {
		f := h.Step(0)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maxContactForce+1e-9 {
			t.Fatalf("step %d: force %v out of range", i, f)
		}
	}
	if h.StrikePosition() != 1 {
		t.Fatalf("strike position = %v, want 1", h.StrikePosition())
	}
}

func TestHammerContactHysteresis(t *testing.T) {
	h := newTestHammer(t)
	h.Strike(2, 0.12)
	entered, left := false, false
	for i := 0; i < 2000 && h.Active(); i++ {
		h.Step(0)
		if h.InContact() {
			entered = true
		} else if entered {
			left = true
			break
		}
	}
	if !entered || !left {
		t.Fatalf("expected contact then release: entered=%v left=%v", entered, left)
	}
	if c := h.Compression(); c >= contactEnter {
		t.Fatalf("compression after release = %g, expected below enter threshold", c)
	}
}

func TestHammerGoesIdle(t *testing.T) {
	h := newTestHammer(t)
	h.Strike(0.1, 0.12)
	limit := int(hammerLifetime*44100) + 2
	for i := 0; i < limit; i++ {
		h.Step(0)
	}
	if h.Active() {
		t.Fatal("expected hammer to go idle after its lifetime")
	}
	if f := h.Step(0); f != 0 {
		t.Fatalf("idle hammer produced %g", f)
	}
}

func TestHammerResetReturnsToRest(t *testing.T) {
	h := newTestHammer(t)
	h.Strike(4, 0.12)
	for i := 0; i < 10; i++ {
		h.Step(0)
	}
	h.Reset()
	if h.Active() || h.InContact() || h.PeakForce() != 0 || h.Compression() != 0 {
		t.Fatal("expected hammer at rest after Reset")
	}
	if f := h.Step(0.001); f != 0 {
		t.Fatalf("force after reset = %g", f)
	}
}

func TestNewHammerRejectsInvalidSampleRate(t *testing.T) {
	if _, err := NewHammer(0); !errors.Is(err, ErrInvalidSampleRate) {
		t.Fatalf("err = %v", err)
	}
}
