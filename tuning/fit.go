// Package tuning fits per-note string parameters so that rendered notes
// match a target decay time or a reference recording.
package tuning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/algo-piano-fd/analysis"
	"github.com/cwbudde/algo-piano-fd/piano"
)

// Knob maps one optimizer dimension onto a parameter of a note.
type Knob struct {
	Name string
	Min  float64
	Max  float64
	// Log interpolates between Min and Max geometrically.
	Log   bool
	Apply func(p *piano.Params, note int, v float64)
	// Initial returns the starting value for note, or NaN to start from the
	// centre of the range.
	Initial func(p *piano.Params, note int, t Target) float64
}

// DampingKnob fits the per-note string damping in 1/s.
func DampingKnob() Knob {
	return Knob{
		Name: "damping",
		Min:  0.05,
		Max:  60,
		Log:  true,
		Apply: func(p *piano.Params, note int, v float64) {
			noteParams(p, note).Damping = v
		},
		Initial: func(p *piano.Params, note int, t Target) float64 {
			if t.T60 > 0 {
				// Amplitude decay exp(-d*t) falls 60 dB after ln(1000)/d.
				return math.Log(1000) / t.T60
			}
			return piano.DefaultStringConfig(note, p).Damping
		},
	}
}

// StiffnessKnob fits the per-note inharmonicity coefficient.
func StiffnessKnob() Knob {
	return Knob{
		Name: "inharmonicity",
		Min:  1e-5,
		Max:  2e-2,
		Log:  true,
		Apply: func(p *piano.Params, note int, v float64) {
			noteParams(p, note).Inharmonicity = v
		},
		Initial: func(p *piano.Params, note int, _ Target) float64 {
			return piano.DefaultStringConfig(note, p).Inharmonicity
		},
	}
}

func noteParams(p *piano.Params, note int) *piano.NoteParams {
	if p.PerNote == nil {
		p.PerNote = make(map[int]*piano.NoteParams)
	}
	np := p.PerNote[note]
	if np == nil {
		np = &piano.NoteParams{}
		p.PerNote[note] = np
	}
	return np
}

func (k Knob) value(x float64) float64 {
	x = math.Max(0, math.Min(1, x))
	if k.Log && k.Min > 0 {
		return k.Min * math.Pow(k.Max/k.Min, x)
	}
	return k.Min + x*(k.Max-k.Min)
}

func (k Knob) normalized(v float64) float64 {
	if math.IsNaN(v) || (k.Log && v <= 0) {
		return 0.5
	}
	var x float64
	if k.Log && k.Min > 0 {
		x = math.Log(v/k.Min) / math.Log(k.Max/k.Min)
	} else {
		x = (v - k.Min) / (k.Max - k.Min)
	}
	return math.Max(0, math.Min(1, x))
}

// Target describes what a fitted note should sound like. T60 takes
// precedence when both fields are set.
type Target struct {
	// T60 is the desired 60 dB decay time in seconds.
	T60 float64
	// Reference is a mono recording of the note at the synthesizer rate.
	Reference []float64
}

// Config controls a fit.
type Config struct {
	Base     *piano.Params
	Note     int
	Velocity float64
	Target   Target
	Knobs    []Knob

	// RenderSeconds is the length of each candidate render.
	RenderSeconds float64
	MaxEvals      int
	Population    int
	Seed          int64

	Logger *slog.Logger
}

// Result is the best candidate found.
type Result struct {
	Params *piano.Params
	Values map[string]float64
	Score  float64
	Evals  int
	// T60 is the decay time measured on the best render.
	T60 float64
}

// ErrNoTarget is returned when neither T60 nor Reference is set.
var ErrNoTarget = errors.New("tuning: no target decay time or reference")

const defaultRenderFrames = 512

// FitDamping fits the string damping of note to the target decay time.
func FitDamping(ctx context.Context, base *piano.Params, note int, t60 float64, maxEvals int) (*Result, error) {
	return Fit(ctx, Config{
		Base:     base,
		Note:     note,
		Velocity: 0.8,
		Target:   Target{T60: t60},
		Knobs:    []Knob{DampingKnob()},
		MaxEvals: maxEvals,
	})
}

// Fit runs Mayfly rounds until the evaluation budget is spent or ctx is
// cancelled, and returns the best parameters seen. On cancellation the best
// result so far is returned together with ctx.Err().
func Fit(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	log := cfg.Logger

	var (
		mu    sync.Mutex
		best  []float64
		score = math.Inf(1)
		bestT = math.NaN()
		evals int
	)
	evaluate := func(pos []float64) float64 {
		if ctx.Err() != nil || evals >= cfg.MaxEvals {
			return score + 1
		}
		evals++
		s, t60, err := cfg.score(pos)
		if err != nil {
			log.Debug("candidate failed", "err", err)
			return score + 0.8
		}
		if s < score {
			score = s
			bestT = t60
			best = append(best[:0], pos...)
			log.Debug("improved", "eval", evals, "score", s, "t60", t60)
		}
		return s
	}

	start := make([]float64, len(cfg.Knobs))
	for i, k := range cfg.Knobs {
		v := math.NaN()
		if k.Initial != nil {
			v = k.Initial(cfg.Base, cfg.Note, cfg.Target)
		}
		start[i] = k.normalized(v)
	}
	evaluate(start)
	log.Info("fit started", "note", cfg.Note, "knobs", len(cfg.Knobs), "score", score, "max_evals", cfg.MaxEvals)

	for round := 1; evals < cfg.MaxEvals && ctx.Err() == nil; round++ {
		remaining := cfg.MaxEvals - evals
		mcfg := newMayflyConfig(cfg.Population, len(cfg.Knobs), max(1, remaining/(2*cfg.Population)))
		mcfg.Rand = rand.New(rand.NewSource(cfg.Seed + int64(round)*7919))
		mcfg.ObjectiveFunc = func(pos []float64) float64 {
			mu.Lock()
			defer mu.Unlock()
			return evaluate(pos)
		}
		before := evals
		if _, err := runMayfly(mcfg); err != nil {
			log.Warn("mayfly round failed", "round", round, "err", err)
		}
		if evals == before {
			break
		}
	}

	if best == nil {
		return nil, errors.New("tuning: no candidate could be evaluated")
	}
	res := &Result{
		Params: cfg.Base.Clone(),
		Values: make(map[string]float64, len(cfg.Knobs)),
		Score:  score,
		Evals:  evals,
		T60:    bestT,
	}
	for i, k := range cfg.Knobs {
		v := k.value(best[i])
		k.Apply(res.Params, cfg.Note, v)
		res.Values[k.Name] = v
	}
	log.Info("fit finished", "note", cfg.Note, "evals", evals, "score", score, "t60", bestT)
	return res, ctx.Err()
}

func (cfg *Config) normalize() error {
	if cfg.Base == nil {
		cfg.Base = piano.NewDefaultParams()
	}
	if cfg.Base.SampleRate <= 0 {
		return piano.ErrInvalidSampleRate
	}
	if cfg.Note < piano.LowestNote || cfg.Note > piano.HighestNote {
		return fmt.Errorf("tuning: note %d outside %d..%d", cfg.Note, piano.LowestNote, piano.HighestNote)
	}
	if !(cfg.Target.T60 > 0) && len(cfg.Target.Reference) == 0 {
		return ErrNoTarget
	}
	if len(cfg.Knobs) == 0 {
		cfg.Knobs = []Knob{DampingKnob()}
	}
	if cfg.Velocity <= 0 || cfg.Velocity > 1 {
		cfg.Velocity = 0.8
	}
	if cfg.RenderSeconds <= 0 {
		cfg.RenderSeconds = 1.5
		if cfg.Target.T60 > 0 {
			// Long enough to see about 40 dB of decay, short enough to stay
			// above the noise floor.
			cfg.RenderSeconds = math.Max(0.5, math.Min(4, 0.7*cfg.Target.T60))
		}
		if n := len(cfg.Target.Reference); cfg.Target.T60 <= 0 && n > 0 {
			cfg.RenderSeconds = float64(n) / float64(cfg.Base.SampleRate)
		}
	}
	if cfg.MaxEvals <= 0 {
		cfg.MaxEvals = 200
	}
	if cfg.Population < 2 {
		cfg.Population = 6
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return nil
}

// score renders the candidate at pos and returns its distance to the
// target together with the measured T60.
func (cfg *Config) score(pos []float64) (float64, float64, error) {
	p := cfg.Base.Clone()
	for i, k := range cfg.Knobs {
		k.Apply(p, cfg.Note, k.value(pos[i]))
	}
	mono, err := Render(p, cfg.Note, cfg.Velocity, cfg.RenderSeconds)
	if err != nil {
		return 0, 0, err
	}
	t60 := analysis.T60(mono, p.SampleRate)
	if cfg.Target.T60 > 0 {
		if math.IsNaN(t60) {
			// No measurable decay: worse than any finite miss.
			return 10, t60, nil
		}
		return math.Abs(math.Log(t60 / cfg.Target.T60)), t60, nil
	}
	return analysis.Compare(cfg.Target.Reference, mono, p.SampleRate).Score, t60, nil
}

// Render plays note at velocity on a fresh synthesizer built from p and
// returns seconds of mono output with the key held.
func Render(p *piano.Params, note int, velocity, seconds float64) ([]float64, error) {
	synth, err := piano.NewSynthesizer(p)
	if err != nil {
		return nil, err
	}
	synth.ProcessEvent(piano.NoteEvent{Kind: piano.NoteOn, Note: note, Velocity: velocity})
	frames := int(seconds * float64(synth.SampleRate()))
	out := make([]float64, 0, frames)
	buf := make([]float32, 2*defaultRenderFrames)
	for len(out) < frames {
		synth.GenerateAudioBuffer(buf)
		out = append(out, analysis.Mono(buf)...)
	}
	return out[:frames], nil
}

func newMayflyConfig(pop int, dims int, iters int) *mayfly.Config {
	cfg := mayfly.NewDefaultConfig()
	cfg.ProblemSize = dims
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	// Optimize draws NC/2 parent pairs from both populations.
	cfg.NC = 2 * pop
	cfg.NM = max(1, int(math.Round(0.05*float64(pop))))
	return cfg
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}
