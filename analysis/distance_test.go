package analysis

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
)

func TestCompareIdenticalSignalsHasLowDistance(t *testing.T) {
	sr := 48000
	x := makeDecaySine(sr, 440.0, 1.5, 0.7)
	m := Compare(x, x, sr)
	if m.Score > 0.05 {
		t.Fatalf("expected very low score for identical signals, got %f", m.Score)
	}
	if m.Similarity < 0.85 {
		t.Fatalf("expected high similarity for identical signals, got %f", m.Similarity)
	}
	if m.LagSamples != 0 {
		t.Fatalf("lag = %d, want 0", m.LagSamples)
	}
}

func TestCompareDifferentSignalsHasHigherDistance(t *testing.T) {
	sr := 48000
	a := makeDecaySine(sr, 261.63, 1.8, 0.8)
	b := makeDecaySine(sr, 330.0, 0.8, 0.25)
	m := Compare(a, b, sr)
	if m.Score < 0.25 {
		t.Fatalf("expected higher score for different signals, got %f", m.Score)
	}
	if m.PitchDiffCents < 350 || m.PitchDiffCents > 450 {
		t.Fatalf("pitch difference = %.1f cents, want about 400", m.PitchDiffCents)
	}
}

func TestCompareDegenerateInputs(t *testing.T) {
	x := makeDecaySine(48000, 440, 0.5, 0.2)
	tests := []struct {
		name      string
		ref, cand []float64
		sr        int
	}{
		{"empty reference", nil, x, 48000},
		{"silent candidate", x, make([]float64, 1000), 48000},
		{"bad sample rate", x, x, 0},
		{"too short", x[:100], x[:100], 48000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := Compare(tc.ref, tc.cand, tc.sr)
			if m.Score != 1 {
				t.Fatalf("score = %f, want 1", m.Score)
			}
			if m.Similarity != 0 {
				t.Fatalf("similarity = %f, want 0", m.Similarity)
			}
		})
	}
}

func TestEstimateLagFindsPositiveShift(t *testing.T) {
	const (
		n      = 8192
		shift  = 237
		maxLag = 600
	)
	ref := randomSignal(n, 7)
	cand := make([]float64, n)
	copy(cand, ref[shift:])

	if got := estimateLag(ref, cand, maxLag); got != shift {
		t.Fatalf("estimateLag() = %d, want %d", got, shift)
	}
}

func TestEstimateLagFindsNegativeShift(t *testing.T) {
	const (
		n      = 8192
		shift  = -191
		maxLag = 600
	)
	ref := randomSignal(n, 11)
	cand := make([]float64, n)
	copy(cand[-shift:], ref)

	if got := estimateLag(ref, cand, maxLag); got != shift {
		t.Fatalf("estimateLag() = %d, want %d", got, shift)
	}
}

func TestDecayRateMatchesExponential(t *testing.T) {
	sr := 48000
	// Amplitude e-folding time tau gives -20*log10(e)/tau dB/s.
	const tau = 0.4
	x := makeDecaySine(sr, 440, 2.0, tau)
	want := -20 * math.Log10(math.E) / tau
	got := DecayRate(x, sr)
	if math.Abs(got-want) > 0.05*math.Abs(want) {
		t.Fatalf("DecayRate = %.2f dB/s, want %.2f", got, want)
	}
	t60 := T60(x, sr)
	if wantT60 := -60 / want; math.Abs(t60-wantT60) > 0.05*wantT60 {
		t.Fatalf("T60 = %.3f s, want %.3f", t60, wantT60)
	}
}

func TestDecayRateUndefinedForSteadyTone(t *testing.T) {
	sr := 48000
	// 375 Hz puts a whole number of cycles in every envelope frame.
	x := makeDecaySine(sr, 375, 1.0, 1e9)
	if got := T60(x, sr); !math.IsNaN(got) && got < 100 {
		t.Fatalf("steady tone T60 = %f, want NaN or very long", got)
	}
	if !math.IsNaN(T60FromRate(0)) || !math.IsNaN(T60FromRate(math.NaN())) {
		t.Fatal("T60FromRate must reject non-decaying slopes")
	}
}

func TestSpectralPeakFindsFundamental(t *testing.T) {
	sr := 44100
	for _, f := range []float64{110, 261.63, 440, 1760} {
		x := makeDecaySine(sr, f, 1.0, 2.0)
		hz, mag, err := SpectralPeak(x, sr)
		if err != nil {
			t.Fatalf("SpectralPeak(%g): %v", f, err)
		}
		if mag <= 0 {
			t.Fatalf("SpectralPeak(%g) magnitude = %g", f, mag)
		}
		if cents := 1200 * math.Abs(math.Log2(hz/f)); cents > 10 {
			t.Fatalf("SpectralPeak(%g) = %.2f Hz (%.1f cents off)", f, hz, cents)
		}
	}
}

func TestSpectralPeakRejectsShortInput(t *testing.T) {
	if _, _, err := SpectralPeak(make([]float64, 100), 44100); err == nil {
		t.Fatal("expected error for short input")
	}
	if _, _, err := SpectralPeak(make([]float64, 4096), 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestLevelsAndMono(t *testing.T) {
	stereo := []float32{0.5, -0.5, 1, 0, -0.25, -0.25}
	mono := Mono(stereo)
	want := []float64{0, 0.5, -0.25}
	for i := range want {
		if mono[i] != want[i] {
			t.Fatalf("Mono[%d] = %g, want %g", i, mono[i], want[i])
		}
	}
	if got := Peak(mono); got != 0.5 {
		t.Fatalf("Peak = %g, want 0.5", got)
	}
	wantRMS := math.Sqrt((0.25 + 0.0625) / 3)
	if got := RMS(mono); math.Abs(got-wantRMS) > 1e-12 {
		t.Fatalf("RMS = %g, want %g", got, wantRMS)
	}
}

func TestAnalyzeReport(t *testing.T) {
	sr := 44100
	x := makeDecaySine(sr, 220, 1.5, 0.3)
	r := Analyze(x, sr)
	if r.Frames != len(x) || r.Peak <= 0 || r.RMS <= 0 {
		t.Fatalf("unexpected report %+v", r)
	}
	if math.Abs(r.PeakHz-220) > 2 {
		t.Fatalf("PeakHz = %g, want ~220", r.PeakHz)
	}
	if !(r.T60 > 0) {
		t.Fatalf("T60 = %g, want positive", r.T60)
	}
}

func TestReportJSONWritesUndefinedAsNull(t *testing.T) {
	r := Report{Frames: 10, RMS: 0.5, T60: math.NaN(), DecayDBPerS: math.Inf(-1)}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"frames":10,"rms":0.5,"peak":0,"decay_db_per_s":null,"t60_s":null,"peak_hz":0}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}
}

func makeDecaySine(sr int, freq float64, durationSec float64, decaySec float64) []float64 {
	n := int(float64(sr) * durationSec)
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sr)
		env := math.Exp(-t / decaySec)
		out[i] = env * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

func randomSignal(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}
