package piano

import (
	"fmt"
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	pdefd "github.com/cwbudde/algo-pde/fd"
	pdepoisson "github.com/cwbudde/algo-pde/poisson"
)

const (
	minStringPoints = 32
	maxStringPoints = 128
	maxSubsteps     = 16
	maxPartials     = 32
	maxCourant      = 0.5

	pickupFraction    = 0.125
	harmonicWeight    = 0.3
	waveWeight        = 1.0
	outputSmoothing   = 0.98
	harmonicRolloff   = 0.6
	damperDecayScale  = 20.0
	bridgeYield       = 0.05
	stiffnessHeadroom = 3.8

	minExcitePosition = 0.1
	maxExcitePosition = 0.9
	maxExciteForce    = 10.0
	minExciteDuration = 1e-4
	maxExciteDuration = 1e-2
)

// StringConfig is the physical binding of a string to a note.
type StringConfig struct {
	Frequency     float64 // Hz
	Length        float64 // m
	Tension       float64 // N
	Damping       float64 // 1/s
	Inharmonicity float64 // B
}

// DefaultStringConfig returns the register-dependent string for note with
// global and per-note overrides from params applied.
func DefaultStringConfig(note int, params *Params) StringConfig {
	n := float64(clamp(note, LowestNote, HighestNote) - LowestNote)
	cfg := StringConfig{
		Frequency:     MidiToFrequency(note),
		Length:        2.0 * math.Pow(0.05/2.0, n/float64(NumStrings-1)),
		Tension:       750.0,
		Damping:       0.4 * math.Exp2(n/30.0),
		Inharmonicity: clamp(1.5e-4*math.Exp2((n-19.0)/14.0), 5e-5, 2e-2),
	}
	if params == nil {
		return cfg
	}
	cfg.Tension = params.StringTension
	cfg.Damping *= params.StringDamping
	cfg.Inharmonicity *= params.StringStiffness
	if np, ok := params.PerNote[note]; ok && np != nil {
		if np.Tension > 0 {
			cfg.Tension = np.Tension
		}
		if np.Damping > 0 {
			cfg.Damping = np.Damping
		}
		if np.Inharmonicity > 0 {
			cfg.Inharmonicity = np.Inharmonicity
		}
		if np.Length > 0 {
			cfg.Length = np.Length
		}
	}
	return cfg
}

// StringModel simulates one stiff, damped string with an explicit
// finite-difference scheme blended with an additive harmonic bank.
// All arrays are sized by Initialize and only reset afterwards.
type StringModel struct {
	sampleRate float64
	dt         float64
	ready      bool
	bound      bool

	// lambdaUnit[n] is the largest eigenvalue of the discrete Dirichlet
	// Laplacian on n points with unit spacing.
	lambdaUnit [maxStringPoints + 1]float64

	f0            float64
	length        float64
	tension       float64
	density       float64
	waveSpeed     float64
	damping       float64
	kappa         float64
	inharmonicity float64

	points   int
	dx       float64
	substeps int
	dtSub    float64
	courant2 float64
	stiff    float64
	forceK   float64
	pickup   int
	exciteAt int

	cur   []float64
	prev  []float64
	prev2 []float64

	damperPosition float64
	decay          float64
	stepGain       float64
	boundaryGain   float64

	excForce    float64
	excDuration float64
	excTime     float64
	excActive   bool

	pendingForce float64
	bridgeForce  float64

	partials     int
	bankGain     float64
	hCos         [maxPartials]float64
	hSin         [maxPartials]float64
	hRe          [maxPartials]float64
	hIm          [maxPartials]float64
	hAmp         [maxPartials]float64
	hDecay       [maxPartials]float64
	hLevel       [maxPartials]float64
	hRenormCount int

	lpState float64
}

// NewStringModel creates an initialized string model.
func NewStringModel(sampleRate int) (*StringModel, error) {
	s := &StringModel{}
	if err := s.Initialize(sampleRate); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize sizes all arrays for sampleRate and precomputes the grid
// stability table.
func (s *StringModel) Initialize(sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	s.sampleRate = float64(sampleRate)
	s.dt = 1.0 / s.sampleRate
	s.cur = make([]float64, maxStringPoints)
	s.prev = make([]float64, maxStringPoints)
	s.prev2 = make([]float64, maxStringPoints)
	for n := minStringPoints; n <= maxStringPoints; n++ {
		s.lambdaUnit[n] = maxDirichletEigenvalue(n - 2)
	}
	s.damperPosition = 1
	s.ready = true
	s.bound = false
	return nil
}

func maxDirichletEigenvalue(interior int) float64 {
	const bound = 4.0
	ev := pdefd.Eigenvalues(interior, 1.0, pdepoisson.Dirichlet)
	max := 0.0
	for _, v := range ev {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	if !isFinite(max) || max <= 0 || max > bound {
		return bound
	}
	return max
}

// SetNote binds the string to a physical configuration. The displacement
// state is kept so that a ringing string can be restruck.
func (s *StringModel) SetNote(cfg StringConfig) {
	if !s.ready {
		return
	}
	nyquist := 0.5 * s.sampleRate
	s.f0 = clampFinite(cfg.Frequency, 8.0, nyquist*0.45)
	s.length = clampFinite(cfg.Length, 0.02, 3.0)
	s.tension = clampFinite(cfg.Tension, 50, 3000)
	s.damping = clampFinite(cfg.Damping, 0.01, 200)
	s.inharmonicity = clampFinite(cfg.Inharmonicity, 0, 0.05)

	s.points = clamp(int(s.sampleRate/(4.0*s.f0))+1, minStringPoints, maxStringPoints)
	s.dx = s.length / float64(s.points-1)
	s.pickup = clamp(int(math.Round(pickupFraction*float64(s.points-1))), 1, s.points-2)
	if s.exciteAt < 1 || s.exciteAt > s.points-2 {
		s.exciteAt = s.pickup
	}
	c := 2.0 * s.length * s.f0
	s.density = s.tension / (c * c)
	s.retune(s.f0)
	s.bound = true
}

// Retune changes the fundamental while keeping length, density and the
// grid. Used for pitch bend and master tuning.
func (s *StringModel) Retune(freq float64) {
	if !s.bound {
		return
	}
	s.retune(clampFinite(freq, 8.0, 0.45*0.5*s.sampleRate))
}

func (s *StringModel) retune(freq float64) {
	s.f0 = freq
	s.waveSpeed = 2.0 * s.length * s.f0
	s.tension = s.density * s.waveSpeed * s.waveSpeed

	r := s.waveSpeed * s.dt / s.dx
	s.substeps = clamp(int(math.Ceil(r/maxCourant)), 1, maxSubsteps)
	s.dtSub = s.dt / float64(s.substeps)
	rSub := math.Min(r/float64(s.substeps), maxCourant)
	s.courant2 = rSub * rSub

	s.kappa = math.Sqrt(s.inharmonicity) * s.waveSpeed * s.length / math.Pi
	lu := s.lambdaUnit[s.points]
	dx2 := s.dx * s.dx
	s.stiff = s.kappa * s.kappa * s.dtSub * s.dtSub / (dx2 * dx2)
	if limit := (stiffnessHeadroom - s.courant2*lu) / (lu * lu); s.stiff > limit {
		s.stiff = math.Max(limit, 0)
	}
	s.forceK = s.dtSub * s.dtSub / (s.density * s.dx)
	s.bankGain = 1.0 / (2.0 * math.Sqrt(s.tension*s.density))

	s.setupPartials()
	s.updateDamping()
}

func (s *StringModel) setupPartials() {
	limit := 0.25 * s.sampleRate
	s.partials = 0
	amp := 1.0
	for h := 1; h <= maxPartials; h++ {
		hf := float64(h)
		f := s.f0 * hf * math.Sqrt(1.0+s.inharmonicity*hf*hf)
		if f >= limit {
			break
		}
		i := h - 1
		w := 2.0 * math.Pi * f * s.dt
		s.hCos[i] = math.Cos(w)
		s.hSin[i] = math.Sin(w)
		if s.hRe[i] == 0 && s.hIm[i] == 0 {
			s.hRe[i] = 1
		}
		s.hAmp[i] = amp
		s.hDecay[i] = math.Exp(-s.damping * 0.01 * hf * hf * s.dt)
		amp *= harmonicRolloff
		s.partials++
	}
	for i := s.partials; i < maxPartials; i++ {
		s.hLevel[i] = 0
	}
}

// SetDamperPosition sets the damper lift in [0,1]; 0 rests the damper on
// the string.
func (s *StringModel) SetDamperPosition(pos float64) {
	s.damperPosition = clampFinite(pos, 0, 1)
	s.updateDamping()
}

func (s *StringModel) updateDamping() {
	scale := 1.0 + (1.0-s.damperPosition)*damperDecayScale
	s.decay = math.Exp(-s.damping * scale * s.dt)
	// The recurrence scaled by g decays by sqrt(g) per substep.
	s.stepGain = math.Pow(s.decay, 2.0/float64(max(s.substeps, 1)))
	s.boundaryGain = bridgeYield * (1.0 - 0.5*(1.0-s.damperPosition))
}

// Excite injects a half-sine force pulse. Arguments are clamped to
// position [0.1,0.9], force [0,10] N and duration [1e-4,1e-2] s.
func (s *StringModel) Excite(position, force, duration float64) {
	if !s.bound {
		return
	}
	s.SetExcitePosition(position)
	s.excForce = clampFinite(force, 0, maxExciteForce)
	s.excDuration = clampFinite(duration, minExciteDuration, maxExciteDuration)
	s.excTime = 0
	s.excActive = s.excForce > 0
}

// SetExcitePosition moves the force injection point.
func (s *StringModel) SetExcitePosition(position float64) {
	if !s.bound {
		return
	}
	p := clampFinite(position, minExcitePosition, maxExcitePosition)
	s.exciteAt = clamp(int(math.Round(p*float64(s.points-1))), 1, s.points-2)
}

// ApplyForce adds a force (N) at the excitation point for the next Step.
func (s *StringModel) ApplyForce(f float64) {
	if isFinite(f) {
		s.pendingForce += f
	}
}

// ApplyBridgeForce adds a force (N) near the bridge for the next Step.
func (s *StringModel) ApplyBridgeForce(f float64) {
	if isFinite(f) {
		s.bridgeForce += f
	}
}

// DisplacementAt returns the displacement at the excitation point.
func (s *StringModel) DisplacementAt() float64 {
	if !s.bound {
		return 0
	}
	return s.cur[s.exciteAt]
}

// Frequency returns the bound fundamental.
func (s *StringModel) Frequency() float64 {
	return s.f0
}

// Step advances one sample and returns the smoothed pickup signal.
func (s *StringModel) Step() float64 {
	if !s.bound {
		return 0
	}
	force := s.pendingForce
	if s.excActive {
		force += s.excForce * math.Sin(math.Pi*s.excTime/s.excDuration)
		s.excTime += s.dt
		if s.excTime > s.excDuration {
			s.excActive = false
		}
	}
	bridge := s.bridgeForce
	s.pendingForce = 0
	s.bridgeForce = 0

	for k := 0; k < s.substeps; k++ {
		s.advance(force, bridge)
	}
	wave := s.cur[s.pickup]
	harm := s.stepBank(math.Abs(force) * s.dt * s.bankGain)

	y := waveWeight*wave + harmonicWeight*harm
	y = smoothOutput(y, s.lpState)
	y = dspcore.FlushDenormals(y)
	if !isFinite(y) {
		s.Reset()
		return 0
	}
	s.lpState = y
	return y
}

func (s *StringModel) advance(force, bridge float64) {
	s.prev2, s.prev, s.cur = s.prev, s.cur, s.prev2
	n := s.points
	u, u1, u2 := s.cur, s.prev, s.prev2
	r2 := s.courant2
	m := s.stiff
	g := s.stepGain

	for i := 1; i < n-1; i++ {
		l1 := u1[i-1]
		r1 := u1[i+1]
		var l2, rr2 float64
		if i >= 2 {
			l2 = u1[i-2]
		} else {
			l2 = -u1[i]
		}
		if i+2 <= n-1 {
			rr2 = u1[i+2]
		} else {
			rr2 = -u1[i]
		}
		c := u1[i]
		d2 := r1 - 2*c + l1
		d4 := rr2 - 4*r1 + 6*c - 4*l1 + l2
		u[i] = g * (2*c - u2[i] + r2*d2 - m*d4)
	}
	u[s.exciteAt] += s.forceK * force
	u[n-2] += s.forceK * bridge
	u[0] = 0
	u[n-1] = s.boundaryGain * u[n-2]
}

// smoothOutput is the pickup low-pass. The current sample carries weight
// outputSmoothing so the corner sits well above the top of the keyboard.
func smoothOutput(x, prev float64) float64 {
	return outputSmoothing*x + (1.0-outputSmoothing)*prev
}

func (s *StringModel) stepBank(impulse float64) float64 {
	decay := s.decay
	sum := 0.0
	for i := 0; i < s.partials; i++ {
		re := s.hRe[i]*s.hCos[i] - s.hIm[i]*s.hSin[i]
		im := s.hRe[i]*s.hSin[i] + s.hIm[i]*s.hCos[i]
		s.hRe[i] = re
		s.hIm[i] = im
		lvl := s.hLevel[i]*decay*s.hDecay[i] + impulse*s.hAmp[i]
		lvl = dspcore.FlushDenormals(lvl)
		s.hLevel[i] = lvl
		sum += lvl * im
	}
	s.hRenormCount++
	if s.hRenormCount >= 4096 {
		s.hRenormCount = 0
		for i := 0; i < s.partials; i++ {
			mag := math.Hypot(s.hRe[i], s.hIm[i])
			if mag > 0 {
				s.hRe[i] /= mag
				s.hIm[i] /= mag
			}
		}
	}
	return sum
}

// Reset zeroes all displacement, excitation and bank state. The string
// stays bound to its note.
func (s *StringModel) Reset() {
	for i := range s.cur {
		s.cur[i] = 0
		s.prev[i] = 0
		s.prev2[i] = 0
	}
	for i := range s.hLevel {
		s.hLevel[i] = 0
		s.hRe[i] = 1
		s.hIm[i] = 0
	}
	s.hRenormCount = 0
	s.excActive = false
	s.excTime = 0
	s.excForce = 0
	s.pendingForce = 0
	s.bridgeForce = 0
	s.lpState = 0
}

// Energy returns the sum of squared displacements, a cheap activity proxy.
func (s *StringModel) Energy() float64 {
	e := 0.0
	for i := 0; i < s.points; i++ {
		e += s.cur[i] * s.cur[i]
	}
	for i := 0; i < s.partials; i++ {
		e += s.hLevel[i] * s.hLevel[i]
	}
	return e
}
