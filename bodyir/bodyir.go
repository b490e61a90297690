// Package bodyir synthesizes stereo soundboard impulse responses for the
// body convolver when no recorded IR is available.
package bodyir

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/cwbudde/algo-piano-fd/dsp"
)

// Config controls IR generation.
//
// Modes are the eigenfrequencies of a simply supported orthotropic plate,
//
//	f_mn / f_11 = sqrt(S m^4 + 2 sqrt(S) m^2 n^2 R^2 + n^4 R^4) / sqrt(S + 2 sqrt(S) R^2 + R^4)
//
// with R = PlateRatio (Lx/Ly) and S = StiffnessRatio (Dx/Dy). Modes below
// CrossoverHz ring for LowDecay seconds, modes above it for HighDecay.
type Config struct {
	SampleRate     int
	Duration       float64 // s
	Modes          int
	Seed           int64
	FundamentalHz  float64 // f_11
	Brightness     float64
	PlateRatio     float64
	StiffnessRatio float64
	DirectLevel    float64
	LowDecay       float64 // s
	HighDecay      float64 // s
	CrossoverHz    float64
	StereoWidth    float64 // [0,1]
	FadeOut        float64 // s, cosine fade at the end

	NormalizePeak float64
}

// DefaultConfig returns a short grand-piano-like body response.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:     sampleRate,
		Duration:       0.08,
		Modes:          48,
		Seed:           1,
		FundamentalHz:  45,
		Brightness:     1.0,
		PlateRatio:     1.6,
		StiffnessRatio: 12.0,
		DirectLevel:    0.6,
		LowDecay:       0.15,
		HighDecay:      0.03,
		CrossoverHz:    800,
		StereoWidth:    0.5,
		FadeOut:        0.005,
		NormalizePeak:  0.9,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.SampleRate < 8000:
		return fmt.Errorf("sample rate too low: %d", c.SampleRate)
	case !(c.Duration > 0):
		return fmt.Errorf("duration must be > 0")
	case c.Modes < 1:
		return fmt.Errorf("modes must be >= 1")
	case !(c.FundamentalHz > 0):
		return fmt.Errorf("fundamental must be > 0")
	case !(c.Brightness > 0):
		return fmt.Errorf("brightness must be > 0")
	case !(c.PlateRatio > 0) || !(c.StiffnessRatio > 0):
		return fmt.Errorf("plate and stiffness ratios must be > 0")
	case c.DirectLevel < 0:
		return fmt.Errorf("direct level must be >= 0")
	case !(c.LowDecay > 0) || !(c.HighDecay > 0):
		return fmt.Errorf("decay times must be > 0")
	case !(c.CrossoverHz > 0):
		return fmt.Errorf("crossover must be > 0")
	case c.StereoWidth < 0 || c.StereoWidth > 1:
		return fmt.Errorf("stereo width must be in [0,1]")
	case !(c.NormalizePeak > 0):
		return fmt.Errorf("normalize peak must be > 0")
	}
	return nil
}

// Generate synthesizes a stereo IR. Left and right share mode frequencies
// but differ in per-mode gain and a small detune set by StereoWidth.
func Generate(cfg Config) (left, right []float32, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	n := max(1, int(math.Round(cfg.Duration*float64(cfg.SampleRate))))
	l := make([]float64, n)
	r := make([]float64, n)
	l[0] = cfg.DirectLevel
	r[0] = cfg.DirectLevel

	rng := rand.New(rand.NewSource(cfg.Seed))
	maxF := 0.45 * float64(cfg.SampleRate)
	logCross := math.Log(cfg.CrossoverHz)
	tilt := 0.7 + 0.9*cfg.Brightness
	for _, f := range PlateModes(cfg.FundamentalHz, maxF, cfg.Modes, cfg.PlateRatio, cfg.StiffnessRatio) {
		amp := 0.9 / math.Pow(1+f/120, tilt)
		amp *= 0.7 + 0.6*rng.Float64()

		// Logistic blend in log frequency between the two decay regimes.
		blend := 1 / (1 + math.Exp(-3*(math.Log(f)-logCross)))
		tau := cfg.LowDecay*(1-blend) + cfg.HighDecay*blend
		decay := math.Exp(-1 / (tau * float64(cfg.SampleRate)))

		pan := (2*rng.Float64() - 1) * cfg.StereoWidth
		phase := 2 * math.Pi * rng.Float64()
		addMode(l, amp*(1-0.45*pan), f*(1-0.004*pan), phase, decay, cfg.SampleRate)
		addMode(r, amp*(1+0.45*pan), f*(1+0.004*pan), phase, decay, cfg.SampleRate)
	}

	removeDC(l)
	removeDC(r)
	fadeOut(l, cfg.FadeOut, cfg.SampleRate)
	fadeOut(r, cfg.FadeOut, cfg.SampleRate)

	scale := cfg.NormalizePeak / math.Max(1e-12, math.Max(peak(l), peak(r)))
	left = make([]float32, n)
	right = make([]float32, n)
	for i := range l {
		left[i] = float32(l[i] * scale)
		right[i] = float32(r[i] * scale)
	}
	return left, right, nil
}

// PlateModes returns up to maxModes plate eigenfrequencies in [f11, maxF],
// sorted ascending.
func PlateModes(f11, maxF float64, maxModes int, ratio, stiffness float64) []float64 {
	sqrtS := math.Sqrt(stiffness)
	r2 := ratio * ratio
	r4 := r2 * r2
	denom := math.Sqrt(stiffness + 2*sqrtS*r2 + r4)

	// f_m1 grows like sqrt(S) m^2 / denom, f_1n like n^2 R^2 / denom.
	mMax := int(math.Sqrt(maxF/f11*denom/sqrtS)) + 2
	nMax := int(math.Sqrt(maxF/f11*denom/r2)) + 2

	var freqs []float64
	for m := 1; m <= mMax; m++ {
		m2 := float64(m * m)
		for k := 1; k <= nMax; k++ {
			k2 := float64(k * k)
			f := f11 * math.Sqrt(stiffness*m2*m2+2*sqrtS*m2*k2*r2+k2*k2*r4) / denom
			if f > maxF {
				break
			}
			freqs = append(freqs, f)
		}
	}
	sort.Float64s(freqs)
	if len(freqs) > maxModes {
		freqs = freqs[:maxModes]
	}
	return freqs
}

// addMode adds amp*decay^i*cos(w*i + phase) to out using the Chebyshev
// recurrence x[i] = 2cos(w)x[i-1] - x[i-2].
func addMode(out []float64, amp, freq, phase, decay float64, sampleRate int) {
	w := 2 * math.Pi * freq / float64(sampleRate)
	c := 2 * math.Cos(w)
	x0, x1 := math.Cos(phase-w), math.Cos(phase)
	env := amp
	for i := range out {
		out[i] += env * x1
		x0, x1 = x1, c*x1-x0
		env *= decay
	}
}

func removeDC(x []float64) {
	dc := dsp.NewDCBlocker(0.995)
	for i, v := range x {
		x[i] = dc.Process(v)
	}
}

func fadeOut(x []float64, seconds float64, sampleRate int) {
	n := min(len(x), int(math.Round(seconds*float64(sampleRate))))
	if n <= 0 {
		return
	}
	start := len(x) - n
	for i := 0; i < n; i++ {
		x[start+i] *= 0.5 * (1 + math.Cos(math.Pi*float64(i+1)/float64(n)))
	}
}

func peak(x []float64) float64 {
	var p float64
	for _, v := range x {
		p = math.Max(p, math.Abs(v))
	}
	return p
}
