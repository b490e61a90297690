package piano

import (
	"fmt"
	"math"
)

const (
	minHammerMass     = 0.001
	maxHammerMass     = 0.05
	defaultHammerMass = 0.008

	minStrikeVelocity = 0.1
	maxStrikeVelocity = 10.0

	// Contact hysteresis on compression (m).
	contactEnter = 2e-6
	contactExit  = 5e-7

	maxContactForce = 1000.0 // N
	hammerDamping   = 1.0   // N·s/m
	hammerAirDrag   = 1e-4  // kg/m
	gravity         = 9.81

	maxHammerPos = 0.02 // m
	maxHammerVel = 20.0 // m/s
	maxHammerAcc = 1e6  // m/s²

	hammerSubsteps    = 8
	hammerLifetime    = 0.020 // s
	hammerFarBelow    = -0.005
	forceSmoothing    = 0.7
	compressionWindow = 16
)

// Hammer is a nonlinear felt-hammer contact model. Position is measured
// along the strike direction with 0 at the string rest position.
type Hammer struct {
	sampleRate float64
	dt         float64

	mass         float64
	feltHardness float64
	stiffness    float64 // N at 1 mm compression
	exponent     float64

	pos float64
	vel float64
	acc float64

	strikePos  float64
	elapsed    float64
	active     bool
	inContact  bool
	lastDisp   float64
	prevForce  float64
	peakForce  float64
	history    [compressionWindow]float64
	historyPos int
}

// NewHammer creates an idle hammer with default mass and medium felt.
func NewHammer(sampleRate int) (*Hammer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	h := &Hammer{
		sampleRate: float64(sampleRate),
		dt:         1.0 / float64(sampleRate),
	}
	h.SetMass(defaultHammerMass)
	h.SetFeltHardness(0.5)
	return h, nil
}

// SetMass sets the hammer mass in kg, clamped to [0.001,0.05].
func (h *Hammer) SetMass(m float64) {
	if math.IsNaN(m) {
		m = defaultHammerMass
	}
	h.mass = clamp(m, minHammerMass, maxHammerMass)
}

// SetFeltHardness sets felt hardness in [0,1]. Harder felt is both stiffer
// and more nonlinear.
func (h *Hammer) SetFeltHardness(hardness float64) {
	h.feltHardness = clampFinite(hardness, 0, 1)
	h.stiffness = 40.0 * math.Pow(10, 2.0*h.feltHardness)
	h.exponent = 2.2 + 1.3*h.feltHardness
}

// Mass returns the clamped hammer mass.
func (h *Hammer) Mass() float64 { return h.mass }

// FeltHardness returns the clamped felt hardness.
func (h *Hammer) FeltHardness() float64 { return h.feltHardness }

// Strike launches the hammer towards the string. velocity is in m/s and
// clamped to [0.1,10]; position is the strike point as a fraction of the
// string length.
func (h *Hammer) Strike(velocity, position float64) {
	h.Reset()
	h.vel = clampFinite(velocity, minStrikeVelocity, maxStrikeVelocity)
	h.strikePos = clampFinite(position, 0, 1)
	h.active = true
}

// StrikePosition returns the position given to the last Strike.
func (h *Hammer) StrikePosition() float64 { return h.strikePos }

// Active reports whether the hammer is still in flight.
func (h *Hammer) Active() bool { return h.active }

// InContact reports whether the felt is currently compressed against the
// string.
func (h *Hammer) InContact() bool { return h.inContact }

// PeakForce returns the largest raw contact force seen since Strike.
func (h *Hammer) PeakForce() float64 { return h.peakForce }

// Compression returns the most recent compression sample (m).
func (h *Hammer) Compression() float64 {
	return h.history[(h.historyPos+compressionWindow-1)%compressionWindow]
}

// Step advances one sample against the given string displacement at the
// strike point and returns the smoothed contact force on the string.
func (h *Hammer) Step(stringDisp float64) float64 {
	if !h.active {
		h.prevForce = 0
		return 0
	}
	if !isFinite(stringDisp) {
		stringDisp = 0
	}
	stringVel := (stringDisp - h.lastDisp) * h.sampleRate
	h.lastDisp = stringDisp

	dt := h.dt / hammerSubsteps
	sum := 0.0
	for k := 0; k < hammerSubsteps; k++ {
		f := h.contactForce(stringDisp, stringVel)
		sum += f

		drag := hammerAirDrag * h.vel * math.Abs(h.vel)
		h.acc = clamp((-f-drag)/h.mass-gravity, -maxHammerAcc, maxHammerAcc)
		h.vel = clamp(h.vel+h.acc*dt, -maxHammerVel, maxHammerVel)
		h.pos = clamp(h.pos+h.vel*dt, -maxHammerPos, maxHammerPos)
	}
	force := sum / hammerSubsteps

	h.history[h.historyPos] = h.pos - stringDisp
	h.historyPos = (h.historyPos + 1) % compressionWindow

	h.elapsed += h.dt
	if h.elapsed >= hammerLifetime || (h.pos < hammerFarBelow && h.vel < 0) {
		h.active = false
		h.inContact = false
	}

	out := forceSmoothing*force + (1.0-forceSmoothing)*h.prevForce
	if !isFinite(out) {
		h.Reset()
		return 0
	}
	h.prevForce = out
	return out
}

func (h *Hammer) contactForce(stringDisp, stringVel float64) float64 {
	compression := h.pos - stringDisp
	if h.inContact {
		if compression < contactExit {
			h.inContact = false
		}
	} else if compression > contactEnter {
		h.inContact = true
	}
	if !h.inContact || compression <= 0 {
		return 0
	}

	f := h.stiffness*math.Pow(compression*1000.0, h.exponent) + hammerDamping*(h.vel-stringVel)
	if f <= 0 {
		return 0
	}
	f = maxContactForce * math.Tanh(f/maxContactForce)
	f = clamp(f, 0, maxContactForce)
	if f > h.peakForce {
		h.peakForce = f
	}
	return f
}

// Reset returns the hammer to rest. Mass and hardness are kept.
func (h *Hammer) Reset() {
	h.pos = 0
	h.vel = 0
	h.acc = 0
	h.elapsed = 0
	h.active = false
	h.inContact = false
	h.lastDisp = 0
	h.prevForce = 0
	h.peakForce = 0
	h.history = [compressionWindow]float64{}
	h.historyPos = 0
}
