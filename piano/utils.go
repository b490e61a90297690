package piano

import (
	"math"

	"github.com/cwbudde/algo-approx"
	"golang.org/x/exp/constraints"
)

const (
	// LowestNote and HighestNote bound the 88-key piano range.
	LowestNote  = 21
	HighestNote = 108
	// NumStrings is the number of keys modelled by the resonance matrix.
	NumStrings = HighestNote - LowestNote + 1
)

// MidiToFrequency converts a MIDI note number to its equal-tempered
// frequency in Hz (A4 = note 69 = 440 Hz).
func MidiToFrequency(note int) float64 {
	return 440.0 * math.Exp2(float64(note-69)/12.0)
}

// FrequencyToMidi returns the MIDI note number closest to freq.
// Non-positive frequencies map to note 0.
func FrequencyToMidi(freq float64) int {
	if !(freq > 0) || math.IsInf(freq, 0) {
		return 0
	}
	n := int(math.Round(69.0 + 12.0*math.Log2(freq/440.0)))
	return clamp(n, 0, 127)
}

func pow2Approx(x float32) float32 {
	const ln2 = 0.69314718055994530942
	return approx.FastExp(x * ln2)
}

func centsToRatio(cents float64) float64 {
	return float64(pow2Approx(float32(cents / 1200.0)))
}

// decayPerSample returns the per-sample multiplier of an exponential decay
// with the given time constant in seconds.
func decayPerSample(tau float64, sampleRate float64) float64 {
	if tau <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (tau * sampleRate))
}

func clamp[T constraints.Integer | constraints.Float](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// clampFinite behaves like clamp but maps NaN to lo.
func clampFinite(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return clamp(x, lo, hi)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func stringIndex(note int) int {
	return note - LowestNote
}
