package piano

import "strconv"

// Params holds all synthesizer parameters. They are read once when a
// Synthesizer is constructed.
type Params struct {
	SampleRate int
	MaxVoices  int
	// MaxBlockFrames sizes the internal mix buffers. Larger requests to
	// GenerateAudioBuffer are rendered in chunks.
	MaxBlockFrames int

	VelocitySensitivity float64 // velocity curve exponent, [0.1,3]
	MasterTuningCents   float64 // [-100,100]
	PitchBendRange      float64 // semitones, [0,12]
	OutputGain          float64

	// Global string defaults; per-note entries in PerNote override them.
	StringTension   float64 // N
	StringDamping   float64 // scale on the per-register damping curve
	StringStiffness float64 // scale on the per-register inharmonicity curve

	HammerMass         float64 // kg
	HammerFeltHardness float64 // [0,1]

	ResonanceStrength float64 // global coupling scale, [0,1]
	SoundboardMix     float64
	RoomSize          float64 // [0,1]
	RoomDamping       float64 // [0,1]

	BodyIRWavPath string
	BodyIRGain    float64

	PerNote map[int]*NoteParams
}

// NoteParams holds overrides for a specific note. Zero values keep the
// register defaults.
type NoteParams struct {
	Tension        float64
	Damping        float64 // 1/s
	Inharmonicity  float64 // B coefficient
	StrikePosition float64 // fraction of string length
	Length         float64 // m
}

// ParamSource is an abstract key→value lookup with typed defaults.
type ParamSource interface {
	Float(key string, def float64) float64
	Int(key string, def int) int
	Bool(key string, def bool) bool
	String(key string, def string) string
}

// NewDefaultParams creates default parameters.
func NewDefaultParams() *Params {
	return &Params{
		SampleRate:          44100,
		MaxVoices:           64,
		MaxBlockFrames:      4096,
		VelocitySensitivity: 1.0,
		MasterTuningCents:   0,
		PitchBendRange:      2.0,
		OutputGain:          1.0,
		StringTension:       750.0,
		StringDamping:       1.0,
		StringStiffness:     1.0,
		HammerMass:          0.008,
		HammerFeltHardness:  0.5,
		ResonanceStrength:   0.5,
		SoundboardMix:       0.25,
		RoomSize:            0.5,
		RoomDamping:         0.4,
		BodyIRGain:          1.0,
		PerNote:             make(map[int]*NoteParams),
	}
}

// ParamsFromSource reads the named scalar parameters from src on top of
// the defaults.
func ParamsFromSource(src ParamSource) *Params {
	p := NewDefaultParams()
	ApplySource(p, src)
	return p
}

// ApplySource overwrites the fields of p named in src. Keys absent from src
// keep their current value.
func ApplySource(p *Params, src ParamSource) {
	if p == nil || src == nil {
		return
	}
	p.SampleRate = src.Int("sample_rate", p.SampleRate)
	p.MaxVoices = src.Int("max_voices", p.MaxVoices)
	p.MaxBlockFrames = src.Int("max_block_frames", p.MaxBlockFrames)
	p.VelocitySensitivity = src.Float("velocity_sensitivity", p.VelocitySensitivity)
	p.MasterTuningCents = src.Float("master_tuning_cents", p.MasterTuningCents)
	p.PitchBendRange = src.Float("pitch_bend_range", p.PitchBendRange)
	p.OutputGain = src.Float("output_gain", p.OutputGain)
	p.StringTension = src.Float("string_tension", p.StringTension)
	p.StringDamping = src.Float("string_damping", p.StringDamping)
	p.StringStiffness = src.Float("string_stiffness", p.StringStiffness)
	p.HammerMass = src.Float("hammer_mass", p.HammerMass)
	p.HammerFeltHardness = src.Float("hammer_felt_hardness", p.HammerFeltHardness)
	p.ResonanceStrength = src.Float("resonance_strength", p.ResonanceStrength)
	p.SoundboardMix = src.Float("soundboard_mix", p.SoundboardMix)
	p.RoomSize = src.Float("room_size", p.RoomSize)
	p.RoomDamping = src.Float("room_damping", p.RoomDamping)
	p.BodyIRWavPath = src.String("body_ir_wav_path", p.BodyIRWavPath)
	p.BodyIRGain = src.Float("body_ir_gain", p.BodyIRGain)

	// Per-string overrides: note_<n>_tension, note_<n>_damping,
	// note_<n>_stiffness.
	for n := LowestNote; n <= HighestNote; n++ {
		prefix := "note_" + strconv.Itoa(n) + "_"
		tension := src.Float(prefix+"tension", 0)
		damping := src.Float(prefix+"damping", 0)
		stiffness := src.Float(prefix+"stiffness", 0)
		if tension <= 0 && damping <= 0 && stiffness <= 0 {
			continue
		}
		if p.PerNote == nil {
			p.PerNote = make(map[int]*NoteParams)
		}
		np := p.PerNote[n]
		if np == nil {
			np = &NoteParams{}
			p.PerNote[n] = np
		}
		if tension > 0 {
			np.Tension = tension
		}
		if damping > 0 {
			np.Damping = damping
		}
		if stiffness > 0 {
			np.Inharmonicity = stiffness
		}
	}
}

// sanitize clamps every field into its documented range.
func (p *Params) sanitize() {
	if p.MaxBlockFrames <= 0 {
		p.MaxBlockFrames = 4096
	}
	p.MaxBlockFrames = clamp(p.MaxBlockFrames, 16, 1<<16)
	p.VelocitySensitivity = clampFinite(p.VelocitySensitivity, 0.1, 3.0)
	p.MasterTuningCents = clampFinite(p.MasterTuningCents, -100, 100)
	p.PitchBendRange = clampFinite(p.PitchBendRange, 0, 12)
	if !(p.OutputGain > 0) {
		p.OutputGain = 1.0
	}
	p.OutputGain = clamp(p.OutputGain, 0, 16)
	p.StringTension = clampFinite(p.StringTension, 50, 3000)
	p.StringDamping = clampFinite(p.StringDamping, 0.01, 100)
	p.StringStiffness = clampFinite(p.StringStiffness, 0, 10)
	p.HammerMass = clampFinite(p.HammerMass, minHammerMass, maxHammerMass)
	p.HammerFeltHardness = clampFinite(p.HammerFeltHardness, 0, 1)
	p.ResonanceStrength = clampFinite(p.ResonanceStrength, 0, 1)
	p.SoundboardMix = clampFinite(p.SoundboardMix, 0, 1)
	p.RoomSize = clampFinite(p.RoomSize, 0, 1)
	p.RoomDamping = clampFinite(p.RoomDamping, 0, 1)
	p.BodyIRGain = clampFinite(p.BodyIRGain, 0, 16)
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	c := *p
	c.PerNote = make(map[int]*NoteParams, len(p.PerNote))
	for k, v := range p.PerNote {
		if v == nil {
			continue
		}
		np := *v
		c.PerNote[k] = &np
	}
	return &c
}
