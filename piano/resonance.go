package piano

import "math"

const (
	harmonicTolerance  = 0.02
	unisonWindowHz     = 50.0
	unisonFalloffHz    = 10.0
	retuneThreshold    = 1e-3 // relative frequency drift before a row is rebuilt
	sympatheticScale   = 100.0
	maxSympatheticPull = 5.0 // N
)

var couplingRatios = [...]float64{2, 3, 4, 5, 6, 1.5, 2.5, 3.5}

// ResonanceModel couples the 88 strings sympathetically. The coupling
// matrix is symmetric with a zero diagonal and is scaled by the global
// strength at query time.
type ResonanceModel struct {
	strength float64

	coupling *[NumStrings][NumStrings]float64
	disp     [NumStrings]float64
	freq     [NumStrings]float64
}

// NewResonanceModel builds the coupling matrix for the equal-tempered
// keyboard.
func NewResonanceModel(strength float64) *ResonanceModel {
	r := &ResonanceModel{coupling: new([NumStrings][NumStrings]float64)}
	r.SetStrength(strength)
	for i := range r.freq {
		r.freq[i] = MidiToFrequency(LowestNote + i)
	}
	for i := 0; i < NumStrings; i++ {
		for j := i + 1; j < NumStrings; j++ {
			c := pairCoupling(r.freq[i], r.freq[j])
			r.coupling[i][j] = c
			r.coupling[j][i] = c
		}
	}
	return r
}

// pairCoupling returns the unscaled coupling of two strings from their
// frequency ratio and absolute distance.
func pairCoupling(fa, fb float64) float64 {
	if !(fa > 0) || !(fb > 0) {
		return 0
	}
	lo, hi := math.Min(fa, fb), math.Max(fa, fb)
	ratio := hi / lo
	c := 0.0
	for _, h := range couplingRatios {
		dev := math.Abs(ratio-h) / h
		if dev < harmonicTolerance {
			c += (1.0 - dev/harmonicTolerance) / h
		}
	}
	if diff := hi - lo; diff < unisonWindowHz {
		c += math.Exp(-diff / unisonFalloffHz)
	}
	return c
}

// SetStrength sets the global coupling scale in [0,1].
func (r *ResonanceModel) SetStrength(strength float64) {
	r.strength = clampFinite(strength, 0, 1)
}

// Strength returns the global coupling scale.
func (r *ResonanceModel) Strength() float64 { return r.strength }

// UpdateStringCoupling records the current displacement and frequency of
// string index. A frequency change rebuilds that string's row and column.
func (r *ResonanceModel) UpdateStringCoupling(index int, displacement, frequency float64) {
	if index < 0 || index >= NumStrings {
		return
	}
	if !isFinite(displacement) {
		displacement = 0
	}
	r.disp[index] = displacement
	if !(frequency > 0) || math.IsInf(frequency, 0) {
		return
	}
	if math.Abs(frequency-r.freq[index]) <= retuneThreshold*r.freq[index] {
		return
	}
	r.freq[index] = frequency
	for j := 0; j < NumStrings; j++ {
		if j == index {
			continue
		}
		c := pairCoupling(frequency, r.freq[j])
		r.coupling[index][j] = c
		r.coupling[j][index] = c
	}
}

// GetSympatheticResonance returns the force (N) induced on string index
// by the displacement of all other strings.
func (r *ResonanceModel) GetSympatheticResonance(index int) float64 {
	if index < 0 || index >= NumStrings || r.strength == 0 {
		return 0
	}
	row := &r.coupling[index]
	sum := 0.0
	for j := 0; j < NumStrings; j++ {
		if d := r.disp[j]; d != 0 {
			sum += row[j] * d
		}
	}
	f := r.strength * sympatheticScale * sum
	return clamp(f, -maxSympatheticPull, maxSympatheticPull)
}

// CouplingStrength returns the scaled coupling between strings i and j.
func (r *ResonanceModel) CouplingStrength(i, j int) float64 {
	if i < 0 || j < 0 || i >= NumStrings || j >= NumStrings {
		return 0
	}
	return r.strength * r.coupling[i][j]
}

// ClearString zeroes the cached displacement of a silent string.
func (r *ResonanceModel) ClearString(index int) {
	if index >= 0 && index < NumStrings {
		r.disp[index] = 0
	}
}

// Reset clears all cached displacements.
func (r *ResonanceModel) Reset() {
	r.disp = [NumStrings]float64{}
}
