// Package preset loads and saves piano parameter presets.
package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-piano-fd/piano"
)

// File is the JSON schema for piano presets. Absent fields keep the
// defaults.
type File struct {
	SampleRate          *int                   `json:"sample_rate,omitempty"`
	MaxVoices           *int                   `json:"max_voices,omitempty"`
	VelocitySensitivity *float64               `json:"velocity_sensitivity,omitempty"`
	MasterTuningCents   *float64               `json:"master_tuning_cents,omitempty"`
	PitchBendRange      *float64               `json:"pitch_bend_range,omitempty"`
	OutputGain          *float64               `json:"output_gain,omitempty"`
	StringTension       *float64               `json:"string_tension,omitempty"`
	StringDamping       *float64               `json:"string_damping,omitempty"`
	StringStiffness     *float64               `json:"string_stiffness,omitempty"`
	HammerMass          *float64               `json:"hammer_mass,omitempty"`
	HammerFeltHardness  *float64               `json:"hammer_felt_hardness,omitempty"`
	ResonanceStrength   *float64               `json:"resonance_strength,omitempty"`
	SoundboardMix       *float64               `json:"soundboard_mix,omitempty"`
	RoomSize            *float64               `json:"room_size,omitempty"`
	RoomDamping         *float64               `json:"room_damping,omitempty"`
	BodyIRWavPath       string                 `json:"body_ir_wav_path,omitempty"`
	BodyIRGain          *float64               `json:"body_ir_gain,omitempty"`
	PerNote             map[string]NoteSetting `json:"per_note,omitempty"`
}

// NoteSetting is a partial note override entry in a preset file.
type NoteSetting struct {
	Tension        *float64 `json:"tension,omitempty"`
	Damping        *float64 `json:"damping,omitempty"`
	Inharmonicity  *float64 `json:"inharmonicity,omitempty"`
	StrikePosition *float64 `json:"strike_position,omitempty"`
	Length         *float64 `json:"length,omitempty"`
}

// LoadJSON loads a preset JSON file and applies it on top of default params.
// A relative body IR path is resolved against the preset's directory.
func LoadJSON(path string) (*piano.Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	p := piano.NewDefaultParams()
	if err := ApplyFile(p, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if p.BodyIRWavPath != "" && !filepath.IsAbs(p.BodyIRWavPath) {
		base := filepath.Dir(path)
		p.BodyIRWavPath = filepath.Clean(filepath.Join(base, p.BodyIRWavPath))
	}
	return p, nil
}

type rangeCheck struct {
	name   string
	src    *float64
	dst    *float64
	lo, hi float64
	loOpen bool
}

// ApplyFile applies a parsed preset file onto an existing params object.
func ApplyFile(dst *piano.Params, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if f == nil {
		return nil
	}

	if f.SampleRate != nil {
		if *f.SampleRate <= 0 {
			return fmt.Errorf("sample_rate must be > 0")
		}
		dst.SampleRate = *f.SampleRate
	}
	if f.MaxVoices != nil {
		if *f.MaxVoices < 1 {
			return fmt.Errorf("max_voices must be >= 1")
		}
		dst.MaxVoices = *f.MaxVoices
	}

	checks := []rangeCheck{
		{"velocity_sensitivity", f.VelocitySensitivity, &dst.VelocitySensitivity, 0.1, 3, false},
		{"master_tuning_cents", f.MasterTuningCents, &dst.MasterTuningCents, -100, 100, false},
		{"pitch_bend_range", f.PitchBendRange, &dst.PitchBendRange, 0, 12, false},
		{"output_gain", f.OutputGain, &dst.OutputGain, 0, 16, true},
		{"string_tension", f.StringTension, &dst.StringTension, 50, 3000, false},
		{"string_damping", f.StringDamping, &dst.StringDamping, 0.01, 100, false},
		{"string_stiffness", f.StringStiffness, &dst.StringStiffness, 0, 10, false},
		{"hammer_mass", f.HammerMass, &dst.HammerMass, 0.001, 0.05, false},
		{"hammer_felt_hardness", f.HammerFeltHardness, &dst.HammerFeltHardness, 0, 1, false},
		{"resonance_strength", f.ResonanceStrength, &dst.ResonanceStrength, 0, 1, false},
		{"soundboard_mix", f.SoundboardMix, &dst.SoundboardMix, 0, 1, false},
		{"room_size", f.RoomSize, &dst.RoomSize, 0, 1, false},
		{"room_damping", f.RoomDamping, &dst.RoomDamping, 0, 1, false},
		{"body_ir_gain", f.BodyIRGain, &dst.BodyIRGain, 0, 16, false},
	}
	for _, c := range checks {
		if c.src == nil {
			continue
		}
		v := *c.src
		if c.loOpen && v <= c.lo || !c.loOpen && v < c.lo || v > c.hi {
			open := "["
			if c.loOpen {
				open = "("
			}
			return fmt.Errorf("%s must be in %s%g,%g]", c.name, open, c.lo, c.hi)
		}
		*c.dst = v
	}
	if f.BodyIRWavPath != "" {
		dst.BodyIRWavPath = strings.TrimSpace(f.BodyIRWavPath)
	}

	if len(f.PerNote) == 0 {
		return nil
	}
	if dst.PerNote == nil {
		dst.PerNote = make(map[int]*piano.NoteParams)
	}

	keys := make([]string, 0, len(f.PerNote))
	for k := range f.PerNote {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		note, err := strconv.Atoi(k)
		if err != nil || note < piano.LowestNote || note > piano.HighestNote {
			return fmt.Errorf("invalid per_note key %q (expected %d..%d)", k, piano.LowestNote, piano.HighestNote)
		}
		override := f.PerNote[k]
		np, ok := dst.PerNote[note]
		if !ok || np == nil {
			np = &piano.NoteParams{}
			dst.PerNote[note] = np
		}
		if override.Tension != nil {
			if *override.Tension <= 0 {
				return fmt.Errorf("per_note[%d].tension must be > 0", note)
			}
			np.Tension = *override.Tension
		}
		if override.Damping != nil {
			if *override.Damping <= 0 {
				return fmt.Errorf("per_note[%d].damping must be > 0", note)
			}
			np.Damping = *override.Damping
		}
		if override.Inharmonicity != nil {
			if *override.Inharmonicity < 0 {
				return fmt.Errorf("per_note[%d].inharmonicity must be >= 0", note)
			}
			np.Inharmonicity = *override.Inharmonicity
		}
		if override.StrikePosition != nil {
			if *override.StrikePosition <= 0 || *override.StrikePosition >= 1 {
				return fmt.Errorf("per_note[%d].strike_position must be in (0,1)", note)
			}
			np.StrikePosition = *override.StrikePosition
		}
		if override.Length != nil {
			if *override.Length <= 0 {
				return fmt.Errorf("per_note[%d].length must be > 0", note)
			}
			np.Length = *override.Length
		}
	}
	return nil
}

// FromParams converts params into a fully populated preset file.
func FromParams(p *piano.Params) *File {
	f := &File{
		SampleRate:          ptr(p.SampleRate),
		MaxVoices:           ptr(p.MaxVoices),
		VelocitySensitivity: ptr(p.VelocitySensitivity),
		MasterTuningCents:   ptr(p.MasterTuningCents),
		PitchBendRange:      ptr(p.PitchBendRange),
		OutputGain:          ptr(p.OutputGain),
		StringTension:       ptr(p.StringTension),
		StringDamping:       ptr(p.StringDamping),
		StringStiffness:     ptr(p.StringStiffness),
		HammerMass:          ptr(p.HammerMass),
		HammerFeltHardness:  ptr(p.HammerFeltHardness),
		ResonanceStrength:   ptr(p.ResonanceStrength),
		SoundboardMix:       ptr(p.SoundboardMix),
		RoomSize:            ptr(p.RoomSize),
		RoomDamping:         ptr(p.RoomDamping),
		BodyIRWavPath:       p.BodyIRWavPath,
		BodyIRGain:          ptr(p.BodyIRGain),
	}
	if len(p.PerNote) > 0 {
		f.PerNote = make(map[string]NoteSetting, len(p.PerNote))
		for note, np := range p.PerNote {
			if np == nil {
				continue
			}
			f.PerNote[strconv.Itoa(note)] = NoteSetting{
				Tension:        nonZero(np.Tension),
				Damping:        nonZero(np.Damping),
				Inharmonicity:  nonZero(np.Inharmonicity),
				StrikePosition: nonZero(np.StrikePosition),
				Length:         nonZero(np.Length),
			}
		}
	}
	return f
}

// SaveJSON writes p as an indented preset file.
func SaveJSON(path string, p *piano.Params) error {
	b, err := json.MarshalIndent(FromParams(p), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func ptr[T any](v T) *T { return &v }

func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
