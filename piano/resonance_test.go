package piano

import (
	"math"
	"testing"
)

func TestCouplingMatrixSymmetricZeroDiagonal(t *testing.T) {
	r := NewResonanceModel(0.7)
	for i := 0; i < NumStrings; i++ {
		if c := r.CouplingStrength(i, i); c != 0 {
			t.Fatalf("diagonal %d = %g", i, c)
		}
		for j := i + 1; j < NumStrings; j++ {
			if a, b := r.CouplingStrength(i, j), r.CouplingStrength(j, i); a != b {
				t.Fatalf("asymmetric coupling (%d,%d): %g vs %g", i, j, a, b)
			}
		}
	}
	octave := r.CouplingStrength(stringIndex(48), stringIndex(60))
	tritone := r.CouplingStrength(stringIndex(60), stringIndex(66))
	if octave <= tritone {
		t.Fatalf("expected octave coupling above tritone: octave=%g tritone=%g", octave, tritone)
	}
}

func TestSympatheticForceOctaveExceedsFarRatio(t *testing.T) {
	const f0 = 200.0
	run := func(otherFreq float64) float64 {
		r := NewResonanceModel(0.5)
		r.UpdateStringCoupling(0, 0, f0)
		r.UpdateStringCoupling(1, 0, otherFreq)
		r.UpdateStringCoupling(0, 1e-3, f0)
		return math.Abs(r.GetSympatheticResonance(1))
	}
	octave := run(2 * f0)
	far := run(math.E * f0)
	if octave <= far {
		t.Fatalf("expected 2:1 pair to couple more: octave=%g far=%g", octave, far)
	}
}

func TestResonanceStrengthScalesAndClamps(t *testing.T) {
	r := NewResonanceModel(2)
	if r.Strength() != 1 {
		t.Fatalf("strength = %v, want 1", r.Strength())
	}
	r.SetStrength(0)
	r.UpdateStringCoupling(stringIndex(48), 1e-3, MidiToFrequency(48))
	if f := r.GetSympatheticResonance(stringIndex(60)); f != 0 {
		t.Fatalf("zero strength produced %g", f)
	}
	r.SetStrength(1)
	r.UpdateStringCoupling(stringIndex(48), 10, MidiToFrequency(48))
	if f := r.GetSympatheticResonance(stringIndex(60)); math.Abs(f) > maxSympatheticPull {
		t.Fatalf("force %g exceeds clamp", f)
	}
	r.Reset()
	if f := r.GetSympatheticResonance(stringIndex(60)); f != 0 {
		t.Fatalf("force after reset = %g", f)
	}
}

func TestResonanceIgnoresBadInput(t *testing.T) {
	r := NewResonanceModel(0.5)
	r.UpdateStringCoupling(-1, 1, 100)
	r.UpdateStringCoupling(NumStrings, 1, 100)
	r.UpdateStringCoupling(3, math.NaN(), math.Inf(1))
	if f := r.GetSympatheticResonance(4); f != 0 {
		t.Fatalf("expected no force from invalid updates, got %g", f)
	}
	if c := r.CouplingStrength(-1, 2); c != 0 {
		t.Fatalf("out-of-range coupling = %g", c)
	}
}

func TestSoundboardRespondsAtModes(t *testing.T) {
	const sampleRate = 44100
	response := func(freq float64) float64 {
		sb := NewSoundboard(sampleRate)
		sum := 0.0
		for i := 0; i < sampleRate/2; i++ {
			x := math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
			y := sb.ProcessSoundboard([]float64{0.5 * x, 0.5 * x})
			if i > sampleRate/4 {
				sum += y * y
			}
		}
		return sum
	}
	onMode := response(440)
	offBand := response(8000)
	if onMode <= offBand*10 {
		t.Fatalf("expected board mode to dominate: on=%g off=%g", onMode, offBand)
	}
}

func TestRoomAddsDelayedTail(t *testing.T) {
	const sampleRate = 44100
	room := NewRoom(sampleRate, 0.8, 0.2, 0)
	if y := room.ProcessRoomAcoustics(1); math.Abs(y-(1-roomWet)) > 1e-12 {
		t.Fatalf("dry path = %g, want %g", y, 1-roomWet)
	}
	tail := 0.0
	for i := 0; i < sampleRate/5; i++ {
		tail += math.Abs(room.ProcessRoomAcoustics(0))
	}
	if tail == 0 {
		t.Fatal("expected room tail after impulse")
	}
	room.Reset()
	for i := 0; i < sampleRate/10; i++ {
		if y := room.ProcessRoomAcoustics(0); y != 0 {
			t.Fatalf("output after reset = %g", y)
		}
	}
}
