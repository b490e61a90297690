// Package analysis measures rendered piano audio: level, decay and pitch
// metrics plus a combined distance between a candidate and a reference.
package analysis

import (
	"encoding/json"
	"errors"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

const (
	envelopeFrame = 256
	envelopeHop   = 128
)

// Report summarizes one rendered signal.
type Report struct {
	Frames      int     `json:"frames"`
	RMS         float64 `json:"rms"`
	Peak        float64 `json:"peak"`
	DecayDBPerS float64 `json:"decay_db_per_s"`
	T60         float64 `json:"t60_s"`
	PeakHz      float64 `json:"peak_hz"`
}

// Analyze computes a Report for mono signal x.
func Analyze(x []float64, sampleRate int) Report {
	r := Report{
		Frames:      len(x),
		RMS:         RMS(x),
		Peak:        Peak(x),
		DecayDBPerS: DecayRate(x, sampleRate),
		T60:         T60(x, sampleRate),
	}
	if hz, _, err := SpectralPeak(x, sampleRate); err == nil {
		r.PeakHz = hz
	}
	return r
}

// MarshalJSON writes undefined measurements (NaN, Inf) as null.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Frames      int      `json:"frames"`
		RMS         *float64 `json:"rms"`
		Peak        *float64 `json:"peak"`
		DecayDBPerS *float64 `json:"decay_db_per_s"`
		T60         *float64 `json:"t60_s"`
		PeakHz      *float64 `json:"peak_hz"`
	}{
		Frames:      r.Frames,
		RMS:         finiteOrNil(r.RMS),
		Peak:        finiteOrNil(r.Peak),
		DecayDBPerS: finiteOrNil(r.DecayDBPerS),
		T60:         finiteOrNil(r.T60),
		PeakHz:      finiteOrNil(r.PeakHz),
	})
}

func finiteOrNil(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}

// Mono folds an interleaved stereo buffer into a mono float64 signal.
func Mono(interleaved []float32) []float64 {
	out := make([]float64, len(interleaved)/2)
	for i := range out {
		out[i] = 0.5 * (float64(interleaved[2*i]) + float64(interleaved[2*i+1]))
	}
	return out
}

// RMS returns the root-mean-square level of x.
func RMS(x []float64) float64 {
	return rms1(x)
}

// Peak returns the largest absolute sample of x.
func Peak(x []float64) float64 {
	var p float64
	for _, v := range x {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}

// DecayRate returns the slope of the RMS envelope in dB per second, fitted
// from the envelope peak down to 60 dB below it. It returns NaN when the
// signal is too short or does not decay.
func DecayRate(x []float64, sampleRate int) float64 {
	if sampleRate <= 0 {
		return math.NaN()
	}
	env := rmsEnvelope(x, envelopeFrame, envelopeHop)
	return decaySlopeDBPerS(env, float64(envelopeHop)/float64(sampleRate))
}

// T60 returns the time in seconds for a 60 dB decay implied by DecayRate,
// or NaN when no decay could be measured.
func T60(x []float64, sampleRate int) float64 {
	return T60FromRate(DecayRate(x, sampleRate))
}

// T60FromRate converts a decay slope in dB/s to a 60 dB decay time.
func T60FromRate(dbPerS float64) float64 {
	if !isFinite(dbPerS) || dbPerS >= 0 {
		return math.NaN()
	}
	return -60.0 / dbPerS
}

const (
	minSpectrumSize = 1024
	maxSpectrumSize = 1 << 15
)

// SpectralPeak returns the frequency and magnitude of the strongest bin of
// a Hann-windowed spectrum of x, refined by parabolic interpolation. The
// analysis length is the largest power of two that fits, up to 32768.
func SpectralPeak(x []float64, sampleRate int) (hz float64, mag float64, err error) {
	if sampleRate <= 0 {
		return 0, 0, errors.New("analysis: invalid sample rate")
	}
	n := maxSpectrumSize
	for n > len(x) {
		n >>= 1
	}
	if n < minSpectrumSize {
		return 0, 0, errors.New("analysis: signal too short for spectrum")
	}
	mags, err := magnitudeSpectrum(x[:n])
	if err != nil {
		return 0, 0, err
	}
	best := 1
	for k := 2; k < len(mags)-1; k++ {
		if mags[k] > mags[best] {
			best = k
		}
	}
	offset := 0.0
	if best > 0 && best < len(mags)-1 {
		a := linToDB(mags[best-1])
		b := linToDB(mags[best])
		c := linToDB(mags[best+1])
		if den := a - 2*b + c; den != 0 {
			offset = 0.5 * (a - c) / den
		}
	}
	binHz := float64(sampleRate) / float64(n)
	return (float64(best) + offset) * binHz, mags[best], nil
}

// magnitudeSpectrum returns |X[k]| for k in [0, n/2] of the Hann-windowed x.
func magnitudeSpectrum(x []float64) ([]float64, error) {
	n := len(x)
	plan, err := algofft.NewPlanReal64(n)
	if err != nil {
		return nil, err
	}
	buf := make([]float64, n)
	for i := range x {
		buf[i] = x[i] * hann(i, n)
	}
	spec := make([]complex128, n/2+1)
	plan.Forward(spec, buf)
	mags := make([]float64, len(spec))
	for k, c := range spec {
		mags[k] = cmplx.Abs(c)
	}
	return mags, nil
}

func hann(i, n int) float64 {
	return 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}
