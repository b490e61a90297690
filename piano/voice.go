package piano

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-piano-fd/dsp"
)

// VoiceState is the lifecycle state of a Voice.
type VoiceState int

const (
	VoiceIdle VoiceState = iota
	VoiceSounding
	VoiceReleasing
)

func (s VoiceState) String() string {
	switch s {
	case VoiceIdle:
		return "idle"
	case VoiceSounding:
		return "sounding"
	case VoiceReleasing:
		return "releasing"
	default:
		return "unknown"
	}
}

const (
	silenceThreshold = 0.0005
	reclaimThreshold = 1e-3
	quietRMS         = 1e-5
	quietBuffers     = 8

	stringOutputGain   = 40.0
	airDecayTau        = 30.0 // s
	minReleaseTau      = 0.02 // s
	defaultStrikePos   = 0.12
	softStrikeShift    = 0.08
	maxSoftStrikePos   = 0.95
	softHardnessScale  = 0.78
	minHammerVelocity  = 0.5 // m/s at velocity 0
	hammerVelocitySpan = 5.5
	maxExcitation      = 10.0
	voiceLowpassBase   = 2000.0
	voiceLowpassSpan   = 10000.0
	dcBlockerRadius    = 0.995
	panSpanSemitones   = 48.0
	panCenterNote      = 60
)

// Voice pairs one sounding note with its string and hammer. Voices live in
// a fixed pool and are rebound to new notes instead of being reallocated.
type Voice struct {
	sampleRate float64
	dt         float64

	str *StringModel
	ham *Hammer

	note      int
	active    bool
	amplitude float64
	age       float64 // s since note-on

	sustainActive   bool
	sostenutoHeld   bool
	noteOffReceived bool
	noteOffTime     float64
	releasing       bool
	releaseTau      float64
	releaseCoef     float64
	airCoef         float64

	baseFreq   float64 // tuned frequency before pitch bend
	excitation float64
	panL, panR float64

	lp dsp.OnePole
	dc dsp.DCBlocker

	bufEnergy  float64
	bufSamples int
	quietCount int
}

// NewVoice creates an idle voice with its own string and hammer.
func NewVoice(sampleRate int) (*Voice, error) {
	v := &Voice{}
	if err := v.init(sampleRate); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Voice) init(sampleRate int) error {
	str, err := NewStringModel(sampleRate)
	if err != nil {
		return fmt.Errorf("voice string: %w", err)
	}
	ham, err := NewHammer(sampleRate)
	if err != nil {
		return fmt.Errorf("voice hammer: %w", err)
	}
	v.sampleRate = float64(sampleRate)
	v.dt = 1.0 / v.sampleRate
	v.str = str
	v.ham = ham
	v.note = -1
	v.airCoef = decayPerSample(airDecayTau, v.sampleRate)
	v.dc = dsp.NewDCBlocker(dcBlockerRadius)
	return nil
}

// Note returns the bound MIDI note, or -1 when the voice was never bound.
func (v *Voice) Note() int { return v.note }

// Active reports whether the voice is sounding or releasing.
func (v *Voice) Active() bool { return v.active }

// Amplitude returns the current envelope amplitude (>= 0).
func (v *Voice) Amplitude() float64 { return v.amplitude }

// Age returns seconds since the last note-on.
func (v *Voice) Age() float64 { return v.age }

// State returns the voice lifecycle state.
func (v *Voice) State() VoiceState {
	switch {
	case !v.active:
		return VoiceIdle
	case v.releasing:
		return VoiceReleasing
	default:
		return VoiceSounding
	}
}

// StringModel exposes the voice's string.
func (v *Voice) StringModel() *StringModel { return v.str }

// Hammer exposes the voice's hammer.
func (v *Voice) Hammer() *Hammer { return v.ham }

// strikeConfig carries the per-note-on settings computed by the synthesizer.
type strikeConfig struct {
	velocity       float64
	hammerVelocity float64
	excitation     float64
	sensitivity    float64
	tuningRatio    float64
	bendRatio      float64
	soft           bool
	sustain        bool
}

// start binds the voice to note and strikes it. A voice retriggered on
// the same note keeps its ringing string.
func (v *Voice) start(note int, params *Params, sc strikeConfig) {
	retrigger := v.active && v.note == note
	if !retrigger {
		v.str.Reset()
		v.lp.Reset()
		v.dc.Reset()
	}
	v.note = note

	cfg := DefaultStringConfig(note, params)
	cfg.Frequency *= sc.tuningRatio
	v.baseFreq = cfg.Frequency
	v.str.SetNote(cfg)
	v.str.Retune(v.baseFreq * sc.bendRatio)
	v.str.SetDamperPosition(1)

	strikePos := defaultStrikePos
	if np, ok := params.PerNote[note]; ok && np != nil && np.StrikePosition > 0 {
		strikePos = np.StrikePosition
	}
	hardness := params.HammerFeltHardness
	if sc.soft {
		hardness *= softHardnessScale
		strikePos = math.Min(strikePos+softStrikeShift, maxSoftStrikePos)
	}
	vel := clampFinite(sc.velocity, 0, 1)
	hv := sc.hammerVelocity
	if !(hv > 0) {
		hv = minHammerVelocity + hammerVelocitySpan*vel
	}
	v.str.SetExcitePosition(strikePos)
	v.ham.SetMass(params.HammerMass)
	v.ham.SetFeltHardness(hardness)
	v.ham.Strike(hv, strikePos)

	v.excitation = 1
	if sc.excitation > 0 {
		v.excitation = min(sc.excitation, maxExcitation)
	}
	v.amplitude = math.Pow(vel, sc.sensitivity)
	v.age = 0
	v.active = true
	v.releasing = false
	v.noteOffReceived = false
	v.noteOffTime = 0
	v.sostenutoHeld = false
	v.sustainActive = sc.sustain
	v.lp.SetCutoff(voiceLowpassBase+voiceLowpassSpan*vel, v.sampleRate)
	v.setPan(note)
	v.quietCount = 0
	v.bufEnergy = 0
	v.bufSamples = 0
}

func (v *Voice) setPan(note int) {
	pan := clamp(float64(note-panCenterNote)/panSpanSemitones, -1, 1)
	theta := (pan + 1) * math.Pi / 4
	v.panL = math.Cos(theta)
	v.panR = math.Sin(theta)
}

// noteOff records the key release. The release envelope only starts once
// neither sustain nor sostenuto holds the voice.
func (v *Voice) noteOff(releaseVelocity float64) {
	if !v.active || v.noteOffReceived {
		return
	}
	v.noteOffReceived = true
	v.noteOffTime = v.age
	v.releaseTau = math.Max(0.3-0.25*clampFinite(releaseVelocity, 0, 1), minReleaseTau)
	v.maybeRelease()
}

func (v *Voice) maybeRelease() {
	if v.releasing || !v.noteOffReceived || v.sustainActive || v.sostenutoHeld {
		return
	}
	v.releasing = true
	v.releaseCoef = decayPerSample(v.releaseTau, v.sampleRate)
	v.str.SetDamperPosition(0)
}

func (v *Voice) setSustain(on bool, damper float64) {
	if !v.active {
		return
	}
	v.sustainActive = on
	if on && v.noteOffReceived && !v.releasing {
		v.str.SetDamperPosition(damper)
	}
	v.maybeRelease()
}

func (v *Voice) setSostenuto(on bool) {
	if !v.active {
		return
	}
	if on {
		// Only keys still held when the pedal goes down are latched.
		if !v.noteOffReceived && !v.sostenutoHeld {
			v.sostenutoHeld = true
		}
		return
	}
	v.sostenutoHeld = false
	v.maybeRelease()
}

func (v *Voice) retune(bendRatio float64) {
	if v.active {
		v.str.Retune(v.baseFreq * bendRatio)
	}
}

// step renders one sample. sympathetic is the force from the resonance
// model applied to the string together with the hammer force.
func (v *Voice) step(sympathetic float64) float64 {
	if !v.active {
		return 0
	}
	f := v.ham.Step(v.str.DisplacementAt()) * v.excitation
	v.str.ApplyForce(f + sympathetic)
	y := v.str.Step()

	if v.releasing {
		v.amplitude *= v.releaseCoef
	} else {
		v.amplitude *= v.airCoef
	}
	if v.amplitude < silenceThreshold {
		v.amplitude = 0
		v.active = false
	}

	out := v.lp.Process(y * stringOutputGain * v.amplitude)
	out = v.dc.Process(out)
	if !isFinite(out) {
		v.str.Reset()
		v.lp.Reset()
		v.dc.Reset()
		out = 0
	}
	v.age += v.dt
	v.bufEnergy += out * out
	v.bufSamples++
	return out
}

// endBuffer updates the quiet-buffer counter and reports whether the voice
// should be returned to the pool.
func (v *Voice) endBuffer() bool {
	if v.bufSamples > 0 {
		rms := math.Sqrt(v.bufEnergy / float64(v.bufSamples))
		if rms < quietRMS {
			v.quietCount++
		} else {
			v.quietCount = 0
		}
	}
	v.bufEnergy = 0
	v.bufSamples = 0
	if v.quietCount >= quietBuffers {
		v.active = false
	}
	return v.shouldRelease()
}

func (v *Voice) shouldRelease() bool {
	return !v.active || v.amplitude < reclaimThreshold
}

// reset returns the voice to idle and zeroes all physics state.
func (v *Voice) reset() {
	v.str.Reset()
	v.ham.Reset()
	v.lp.Reset()
	v.dc.Reset()
	v.active = false
	v.amplitude = 0
	v.age = 0
	v.releasing = false
	v.noteOffReceived = false
	v.sustainActive = false
	v.sostenutoHeld = false
	v.bufEnergy = 0
	v.bufSamples = 0
	v.quietCount = 0
}
