package piano

import (
	"errors"
	"math"
	"testing"
)

func newTestString(t *testing.T, note int, mutate func(*StringConfig)) *StringModel {
	t.Helper()
	s, err := NewStringModel(44100)
	if err != nil {
		t.Fatalf("NewStringModel: %v", err)
	}
	cfg := DefaultStringConfig(note, NewDefaultParams())
	if mutate != nil {
		mutate(&cfg)
	}
	s.SetNote(cfg)
	return s
}

func TestNewStringModelRejectsInvalidSampleRate(t *testing.T) {
	for _, sr := range []int{0, -44100} {
		if _, err := NewStringModel(sr); !errors.Is(err, ErrInvalidSampleRate) {
			t.Fatalf("NewStringModel(%d) err = %v, want ErrInvalidSampleRate", sr, err)
		}
	}
}

func TestStringGridRespectsCourantLimit(t *testing.T) {
	for _, note := range []int{21, 40, 60, 84, 108} {
		s := newTestString(t, note, nil)
		if s.points < minStringPoints || s.points > maxStringPoints {
			t.Fatalf("note %d: points=%d outside [%d,%d]", note, s.points, minStringPoints, maxStringPoints)
		}
		if r := math.Sqrt(s.courant2); r > maxCourant+1e-12 {
			t.Fatalf("note %d: courant=%f > %f", note, r, maxCourant)
		}
		if s.substeps < 1 || s.substeps > maxSubsteps {
			t.Fatalf("note %d: substeps=%d", note, s.substeps)
		}
	}
}

func TestStringStableOverTenSecondsAtBounds(t *testing.T) {
	if testing.Short() {
		t.Skip("long simulation")
	}
	cases := []struct {
		name     string
		note     int
		position float64
		force    float64
		duration float64
		mutate   func(*StringConfig)
	}{
		{"low-max-force", 21, 0.9, 10, 1e-2, nil},
		{"low-stiff-undamped", 21, 0.1, 10, 1e-4, func(c *StringConfig) { c.Inharmonicity = 0.05; c.Damping = 0.01 }},
		{"high-max-force", 108, 0.1, 10, 1e-2, nil},
		{"high-stiff-undamped", 108, 0.9, 10, 1e-4, func(c *StringConfig) { c.Inharmonicity = 0.05; c.Damping = 0.01 }},
		{"clamped-garbage", 60, -3, 1e6, 5, nil},
	}
	const sampleRate = 44100
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestString(t, tc.note, tc.mutate)
			s.Excite(tc.position, tc.force, tc.duration)
			peak := 0.0
			for i := 0; i < 10*sampleRate; i++ {
				y := s.Step()
				if math.IsNaN(y) || math.IsInf(y, 0) {
					t.Fatalf("non-finite output at sample %d", i)
				}
				peak = math.Max(peak, math.Abs(y))
			}
			if peak == 0 {
				t.Fatal("expected excitation to produce output")
			}
			if peak > 1 {
				t.Fatalf("output grew unbounded: peak=%f", peak)
			}
		})
	}
}

func TestStringResetReturnsSilence(t *testing.T) {
	s := newTestString(t, 60, nil)
	s.Excite(0.3, 5, 2e-3)
	for i := 0; i < 2000; i++ {
		s.Step()
	}
	if s.Energy() == 0 {
		t.Fatal("expected energy after excitation")
	}
	s.Reset()
	if e := s.Energy(); e != 0 {
		t.Fatalf("energy after reset = %g", e)
	}
	for i := 0; i < 1000; i++ {
		if y := s.Step(); y != 0 {
			t.Fatalf("sample %d after reset = %g, want 0", i, y)
		}
	}
	s.Excite(0.3, 5, 2e-3)
	nonZero := false
	for i := 0; i < 100; i++ {
		if s.Step() != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Fatal("expected re-excited string to sound")
	}
}

func TestStringDamperIncreasesDecay(t *testing.T) {
	energyAfter := func(damper float64) float64 {
		s := newTestString(t, 48, nil)
		s.SetDamperPosition(damper)
		s.Excite(0.2, 5, 2e-3)
		for i := 0; i < 22050; i++ {
			s.Step()
		}
		return s.Energy()
	}
	lifted := energyAfter(1)
	resting := energyAfter(0)
	if resting >= lifted*0.1 {
		t.Fatalf("expected damper down to kill the string: lifted=%g resting=%g", lifted, resting)
	}
}

func TestStringUnboundIsSilent(t *testing.T) {
	s, err := NewStringModel(48000)
	if err != nil {
		t.Fatal(err)
	}
	s.Excite(0.5, 5, 1e-3)
	s.ApplyForce(3)
	if y := s.Step(); y != 0 {
		t.Fatalf("unbound string produced %g", y)
	}
}

func TestStringHarmonicBankStaysBelowQuarterRate(t *testing.T) {
	for _, note := range []int{21, 60, 96, 108} {
		s := newTestString(t, note, nil)
		for h := 1; h <= s.partials; h++ {
			hf := float64(h)
			f := s.f0 * hf * math.Sqrt(1+s.inharmonicity*hf*hf)
			if f >= s.sampleRate/4 {
				t.Fatalf("note %d partial %d at %f Hz >= fs/4", note, h, f)
			}
		}
		if note <= 96 && s.partials == 0 {
			t.Fatalf("note %d has no partials", note)
		}
	}
}

func TestStringRetuneKeepsGrid(t *testing.T) {
	s := newTestString(t, 60, nil)
	points := s.points
	s.Retune(s.Frequency() * math.Exp2(2.0/12))
	if s.points != points {
		t.Fatalf("retune changed grid: %d -> %d", points, s.points)
	}
	if want := MidiToFrequency(62); math.Abs(s.Frequency()-want) > 0.01 {
		t.Fatalf("retuned frequency = %f, want %f", s.Frequency(), want)
	}
}

func TestSmoothOutputResponse(t *testing.T) {
	y := smoothOutput(1, 0)
	if math.Abs(y-0.98) > 1e-12 {
		t.Fatalf("first step sample = %g, want 0.98", y)
	}
	y = smoothOutput(1, y)
	if math.Abs(y-0.9996) > 1e-12 {
		t.Fatalf("second step sample = %g, want 0.9996", y)
	}
	for i := 0; i < 100; i++ {
		y = smoothOutput(1, y)
	}
	if math.Abs(y-1) > 1e-12 {
		t.Fatalf("dc gain = %g, want 1", y)
	}

	// Nyquist gain is outputSmoothing/(2-outputSmoothing), about 0.96.
	y = 0
	x := 1.0
	for i := 0; i < 200; i++ {
		y = smoothOutput(x, y)
		x = -x
	}
	if want := 0.98 / 1.02; math.Abs(math.Abs(y)-want) > 1e-9 {
		t.Fatalf("nyquist amplitude = %g, want %g", math.Abs(y), want)
	}
}

func TestStringBridgeForceExcitesString(t *testing.T) {
	s := newTestString(t, 60, nil)
	s.ApplyBridgeForce(math.NaN())
	s.ApplyBridgeForce(math.Inf(1))
	for i := 0; i < 500; i++ {
		if y := s.Step(); y != 0 {
			t.Fatalf("non-finite bridge force reached the string: sample %d = %g", i, y)
		}
	}
	for i := 0; i < 200; i++ {
		s.ApplyBridgeForce(0.5)
		s.Step()
	}
	if s.Energy() == 0 {
		t.Fatal("expected energy from the bridge force")
	}
}
