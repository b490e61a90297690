package piano

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-piano-fd/dsp"
)

const (
	soundboardGain    = 2.0
	mixDelayMs        = 13.0
	mixDelayFeedback  = 0.25
	mixDelayDamping   = 0.3
	mixDelaySend      = 0.15
	normalizeCeiling  = 0.9
	bridgeFeedback    = 0.01
	maxBridgeForce    = 0.5 // N
	roomSpreadRight   = 1.0
	bendSemitoneScale = 12.0
)

// Stats reports synthesizer counters.
type Stats struct {
	ActiveVoices     int
	VoicesStolen     uint64
	VoicesReclaimed  uint64
	NonFiniteSamples uint64
	IgnoredEvents    uint64
	FramesRendered   uint64
}

// Synthesizer is a polyphonic physical-model piano. It is not safe for
// concurrent use; one goroutine owns it.
type Synthesizer struct {
	params     *Params
	sampleRate int

	pool       *VoicePool
	resonance  *ResonanceModel
	soundboard *Soundboard
	roomL      *Room
	roomR      *Room
	delayL     *dsp.FeedbackDelay
	delayR     *dsp.FeedbackDelay
	body       *BodyConvolver

	tuningRatio float64
	bendRatio   float64
	sustain     bool
	damper      float64
	soft        bool
	sostenuto   bool

	mixL     []float64
	mixR     []float64
	voiceOut []float64
	bridge   float64

	releaseFn func(note int)
	stats     Stats
}

// NewSynthesizer validates params, allocates the voice pool and all mix
// buffers. It is the only place the core reports errors.
func NewSynthesizer(params *Params) (*Synthesizer, error) {
	if params == nil {
		params = NewDefaultParams()
	}
	p := params.Clone()
	if p.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, p.SampleRate)
	}
	if p.MaxVoices < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVoiceCount, p.MaxVoices)
	}
	p.sanitize()

	pool, err := NewVoicePool(p.MaxVoices, p.SampleRate)
	if err != nil {
		return nil, err
	}
	fs := float64(p.SampleRate)
	delay := int(mixDelayMs * 0.001 * fs)
	s := &Synthesizer{
		params:      p,
		sampleRate:  p.SampleRate,
		pool:        pool,
		resonance:   NewResonanceModel(p.ResonanceStrength),
		soundboard:  NewSoundboard(p.SampleRate),
		roomL:       NewRoom(p.SampleRate, p.RoomSize, p.RoomDamping, 0),
		roomR:       NewRoom(p.SampleRate, p.RoomSize, p.RoomDamping, roomSpreadRight),
		delayL:      dsp.NewFeedbackDelay(delay, mixDelayFeedback, mixDelayDamping),
		delayR:      dsp.NewFeedbackDelay(delay+int(0.0011*fs), mixDelayFeedback, mixDelayDamping),
		tuningRatio: centsToRatio(p.MasterTuningCents),
		bendRatio:   1,
		damper:      1,
		mixL:        make([]float64, p.MaxBlockFrames),
		mixR:        make([]float64, p.MaxBlockFrames),
		voiceOut:    make([]float64, p.MaxVoices),
	}
	s.releaseFn = s.onVoiceReleased

	if p.BodyIRWavPath != "" {
		body := NewBodyConvolver(p.SampleRate)
		if err := body.SetIRFromWAV(p.BodyIRWavPath); err != nil {
			return nil, fmt.Errorf("load body ir %s: %w", p.BodyIRWavPath, err)
		}
		body.SetGain(p.BodyIRGain)
		s.body = body
	}
	return s, nil
}

// SampleRate returns the engine rate.
func (s *Synthesizer) SampleRate() int { return s.sampleRate }

// Params returns a copy of the sanitized parameters in use.
func (s *Synthesizer) Params() *Params { return s.params.Clone() }

// Pool exposes the voice pool for inspection.
func (s *Synthesizer) Pool() *VoicePool { return s.pool }

// Resonance exposes the sympathetic coupling model.
func (s *Synthesizer) Resonance() *ResonanceModel { return s.resonance }

// SetBodyIR installs an in-memory body impulse response. A nil or empty
// left IR disables the convolver.
func (s *Synthesizer) SetBodyIR(left, right []float32) error {
	if len(left) == 0 {
		s.body = nil
		return nil
	}
	body := NewBodyConvolver(s.sampleRate)
	if err := body.SetIR(left, right); err != nil {
		return err
	}
	body.SetGain(s.params.BodyIRGain)
	s.body = body
	return nil
}

// ProcessEvent applies one performance event. It never blocks or
// allocates.
func (s *Synthesizer) ProcessEvent(ev NoteEvent) {
	switch ev.Kind {
	case NoteOn:
		if ev.Velocity <= 0 {
			s.noteOff(ev.Note, ev.ReleaseVelocity)
			return
		}
		s.noteOn(ev)
	case NoteOff:
		s.noteOff(ev.Note, ev.ReleaseVelocity)
	case PedalChange:
		s.pedals(ev)
	case PitchBend:
		s.pitchBend(ev.PitchBend)
	case Aftertouch:
		// A struck string has no key-pressure path.
	default:
		s.stats.IgnoredEvents++
	}
}

func (s *Synthesizer) noteOn(ev NoteEvent) {
	if ev.Note < LowestNote || ev.Note > HighestNote {
		s.stats.IgnoredEvents++
		return
	}
	v, stolen := s.pool.AllocateVoice(ev.Note)
	if v == nil {
		s.stats.IgnoredEvents++
		return
	}
	if stolen != noSlot {
		s.resonance.ClearString(stringIndex(stolen))
	}
	v.start(ev.Note, s.params, strikeConfig{
		velocity:       ev.Velocity,
		hammerVelocity: ev.HammerVelocity,
		excitation:     ev.StringExcitation,
		sensitivity:    s.params.VelocitySensitivity,
		tuningRatio:    s.tuningRatio,
		bendRatio:      s.bendRatio,
		soft:           s.soft,
		sustain:        s.sustain,
	})
}

func (s *Synthesizer) noteOff(note int, releaseVelocity float64) {
	v := s.pool.Lookup(note)
	if v == nil {
		return
	}
	v.noteOff(releaseVelocity)
}

func (s *Synthesizer) pedals(ev NoteEvent) {
	damper := clampFinite(ev.DamperPosition, 0, 1)
	sustain := ev.Sustain || damper >= 0.5
	if sustain && damper == 0 {
		damper = 1
	}
	s.damper = damper
	s.soft = ev.Soft

	for i := range s.pool.voices {
		v := &s.pool.voices[i]
		if !v.active {
			continue
		}
		if ev.Sostenuto != s.sostenuto {
			v.setSostenuto(ev.Sostenuto)
		}
		v.setSustain(sustain, damper)
	}
	s.sustain = sustain
	s.sostenuto = ev.Sostenuto
}

func (s *Synthesizer) pitchBend(bend float64) {
	bend = clampFinite(bend, -1, 1)
	s.bendRatio = math.Exp2(bend * s.params.PitchBendRange / bendSemitoneScale)
	for i := range s.pool.voices {
		s.pool.voices[i].retune(s.bendRatio)
	}
}

// GenerateAudioBuffer renders len(dst)/2 interleaved stereo frames into
// dst and returns the frame count. Requests longer than MaxBlockFrames are
// rendered in chunks, but normalization and voice reclaim see dst as one
// buffer. It does not allocate.
func (s *Synthesizer) GenerateAudioBuffer(dst []float32) int {
	frames := len(dst) / 2
	dst = dst[:2*frames]
	peak := 0.0
	done := 0
	for done < frames {
		n := min(frames-done, len(s.mixL))
		peak = max(peak, s.renderBlock(dst[2*done:2*(done+n)], n))
		done += n
	}
	if peak > normalizeCeiling {
		scale := normalizeCeiling / peak
		for i := range dst {
			dst[i] = float32(float64(dst[i]) * scale)
		}
	}
	s.stats.VoicesReclaimed += uint64(s.pool.Reclaim(s.releaseFn))
	s.stats.FramesRendered += uint64(frames)
	return frames
}

// Process renders n frames into a newly allocated interleaved buffer.
func (s *Synthesizer) Process(n int) []float32 {
	if n <= 0 {
		return nil
	}
	out := make([]float32, 2*n)
	s.GenerateAudioBuffer(out)
	return out
}

// renderBlock renders n soft-clipped frames into dst and returns their
// peak magnitude.
func (s *Synthesizer) renderBlock(dst []float32, n int) float64 {
	voices := s.pool.voices
	sbMix := s.params.SoundboardMix
	gain := s.params.OutputGain

	for i := 0; i < n; i++ {
		for k := range voices {
			v := &voices[k]
			if v.active {
				s.resonance.UpdateStringCoupling(stringIndex(v.note), v.str.DisplacementAt(), v.str.Frequency())
				v.str.ApplyBridgeForce(s.bridge)
			}
		}

		var l, r float64
		active := 0
		for k := range voices {
			v := &voices[k]
			if !v.active {
				continue
			}
			out := v.step(s.resonance.GetSympatheticResonance(stringIndex(v.note)))
			l += out * v.panL
			r += out * v.panR
			s.voiceOut[active] = out
			active++
		}

		sb := s.soundboard.ProcessSoundboard(s.voiceOut[:active]) * soundboardGain
		s.bridge = clampFinite(sb*bridgeFeedback, -maxBridgeForce, maxBridgeForce)
		l += sbMix * sb
		r += sbMix * sb

		l += mixDelaySend * s.delayL.Process(l)
		r += mixDelaySend * s.delayR.Process(r)

		l = s.roomL.ProcessRoomAcoustics(l)
		r = s.roomR.ProcessRoomAcoustics(r)

		if s.body != nil {
			l, r = s.body.Process(l, r)
		}

		l *= gain
		r *= gain
		if !isFinite(l) || !isFinite(r) {
			s.stats.NonFiniteSamples++
			s.resetEffects()
			s.bridge = 0
			l, r = 0, 0
		}
		s.mixL[i] = l
		s.mixR[i] = r
	}

	peak := 0.0
	for i := 0; i < n; i++ {
		l := math.Tanh(s.mixL[i])
		r := math.Tanh(s.mixR[i])
		peak = max(peak, math.Abs(l), math.Abs(r))
		dst[2*i] = float32(l)
		dst[2*i+1] = float32(r)
	}
	return peak
}

func (s *Synthesizer) onVoiceReleased(note int) {
	s.resonance.ClearString(stringIndex(note))
}

func (s *Synthesizer) resetEffects() {
	s.soundboard.Reset()
	s.delayL.Reset()
	s.delayR.Reset()
	s.roomL.Reset()
	s.roomR.Reset()
	if s.body != nil {
		s.body.Reset()
	}
}

// Reset silences every voice and clears all filter and pedal state.
func (s *Synthesizer) Reset() {
	s.pool.Reset()
	s.resonance.Reset()
	s.resetEffects()
	s.bridge = 0
	s.sustain = false
	s.soft = false
	s.sostenuto = false
	s.damper = 1
	s.bendRatio = 1
}

// Stats returns a snapshot of the counters.
func (s *Synthesizer) Stats() Stats {
	st := s.stats
	st.ActiveVoices = s.pool.ActiveCount()
	st.VoicesStolen = s.pool.Steals()
	return st
}
