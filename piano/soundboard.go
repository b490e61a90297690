package piano

import (
	"math"

	"github.com/cwbudde/algo-piano-fd/dsp"
)

// soundboardModes are the characteristic board resonances in Hz.
var soundboardModes = [...]float64{100, 130, 170, 220, 280, 350, 440, 550, 700, 900, 1200, 1600}

const soundboardQ = 12.0

// Soundboard filters the summed string output through a fixed bank of
// two-pole resonators and averages them.
type Soundboard struct {
	modes [len(soundboardModes)]dsp.Resonator
}

// NewSoundboard creates the resonator bank. Each mode is normalized to
// unity peak gain.
func NewSoundboard(sampleRate int) *Soundboard {
	fs := float64(sampleRate)
	sb := &Soundboard{}
	for i, f := range soundboardModes {
		bw := f / soundboardQ
		sb.modes[i] = dsp.NewResonator(fs, f, bw, resonatorPeakNorm(fs, f, bw))
	}
	return sb
}

func resonatorPeakNorm(fs, f, bw float64) float64 {
	r := math.Exp(-math.Pi * bw / fs)
	w2 := 4.0 * math.Pi * math.Min(f, 0.49*fs) / fs
	re := 1.0 - r*math.Cos(w2)
	im := r * math.Sin(w2)
	return math.Hypot(re, im)
}

// ProcessSoundboard sums stringOutputs and returns the averaged resonator
// response for one sample.
func (s *Soundboard) ProcessSoundboard(stringOutputs []float64) float64 {
	in := 0.0
	for _, v := range stringOutputs {
		in += v
	}
	return s.ProcessSample(in)
}

// ProcessSample runs one already summed sample through the bank.
func (s *Soundboard) ProcessSample(x float64) float64 {
	sum := 0.0
	for i := range s.modes {
		sum += s.modes[i].Process(x)
	}
	return sum / float64(len(s.modes))
}

func (s *Soundboard) Reset() {
	for i := range s.modes {
		s.modes[i].Reset()
	}
}
