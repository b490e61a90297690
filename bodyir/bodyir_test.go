package bodyir

import (
	"math"
	"sort"
	"testing"
)

func TestGenerateBasic(t *testing.T) {
	cfg := DefaultConfig(48000)
	cfg.Duration = 0.1
	cfg.Modes = 32
	cfg.Seed = 42
	cfg.NormalizePeak = 0.8

	l, r, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(l) != 4800 || len(r) != len(l) {
		t.Fatalf("unexpected output lengths: L=%d R=%d", len(l), len(r))
	}

	maxAbs := 0.0
	energy := 0.0
	for i := range l {
		lv, rv := float64(l[i]), float64(r[i])
		if math.IsNaN(lv) || math.IsInf(lv, 0) || math.IsNaN(rv) || math.IsInf(rv, 0) {
			t.Fatalf("non-finite sample at %d", i)
		}
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(lv), math.Abs(rv)))
		energy += lv*lv + rv*rv
	}
	if energy <= 1e-8 {
		t.Fatal("expected non-zero energy")
	}
	if math.Abs(maxAbs-0.8) > 1e-3 {
		t.Fatalf("peak = %.6f, want 0.8", maxAbs)
	}
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	cfg := DefaultConfig(32000)
	cfg.Seed = 99

	l1, r1, err := Generate(cfg)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	l2, r2, err := Generate(cfg)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	for i := range l1 {
		if l1[i] != l2[i] || r1[i] != r2[i] {
			t.Fatalf("non-deterministic output at index %d", i)
		}
	}

	cfg.Seed = 100
	l3, _, err := Generate(cfg)
	if err != nil {
		t.Fatalf("third Generate: %v", err)
	}
	same := true
	for i := range l1 {
		if l1[i] != l3[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical IRs")
	}
}

func TestStereoWidthDecorrelates(t *testing.T) {
	cfg := DefaultConfig(48000)
	cfg.StereoWidth = 0
	l, r, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := range l {
		if l[i] != r[i] {
			t.Fatalf("zero width: L != R at %d", i)
		}
	}

	cfg.StereoWidth = 1
	l, r, err = Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if corr := correlation(l, r); corr > 0.98 {
		t.Fatalf("full width correlation = %.4f, want < 0.98", corr)
	}
}

func TestTailDecaysAndFades(t *testing.T) {
	cfg := DefaultConfig(48000)
	cfg.Duration = 0.5
	l, _, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	head := energyOf(l[:2400])
	tail := energyOf(l[len(l)-4800:])
	if tail >= 0.1*head {
		t.Fatalf("tail energy %.3g not well below head energy %.3g", tail, head)
	}
	if l[len(l)-1] != 0 {
		t.Fatalf("last sample = %g, want 0 after fade-out", l[len(l)-1])
	}
}

func TestPlateModes(t *testing.T) {
	modes := PlateModes(45, 20000, 64, 1.6, 12)
	if len(modes) != 64 {
		t.Fatalf("got %d modes, want 64", len(modes))
	}
	if math.Abs(modes[0]-45) > 1e-9 {
		t.Fatalf("lowest mode = %g, want f11 = 45", modes[0])
	}
	if !sort.Float64sAreSorted(modes) {
		t.Fatal("modes are not sorted")
	}

	// Isotropic square plate: f_mn/f_11 = (m^2+n^2)/2.
	sq := PlateModes(100, 1000, 8, 1, 1)
	want := []float64{100, 250, 250, 400, 500, 500, 650, 650}
	for i, w := range want {
		if math.Abs(sq[i]-w) > 1e-6 {
			t.Fatalf("square plate mode %d = %g, want %g", i, sq[i], w)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"sample rate", func(c *Config) { c.SampleRate = 100 }},
		{"duration", func(c *Config) { c.Duration = 0 }},
		{"modes", func(c *Config) { c.Modes = 0 }},
		{"decay", func(c *Config) { c.HighDecay = -1 }},
		{"width", func(c *Config) { c.StereoWidth = 1.5 }},
		{"nan fundamental", func(c *Config) { c.FundamentalHz = math.NaN() }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig(48000)
			tc.mut(&cfg)
			if _, _, err := Generate(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func correlation(a, b []float32) float64 {
	var ab, aa, bb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		ab += x * y
		aa += x * x
		bb += y * y
	}
	return ab / math.Sqrt(aa*bb)
}

func energyOf(x []float32) float64 {
	var e float64
	for _, v := range x {
		e += float64(v) * float64(v)
	}
	return e
}
