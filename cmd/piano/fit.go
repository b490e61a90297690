package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-piano-fd/internal/wavio"
	"github.com/cwbudde/algo-piano-fd/piano"
	"github.com/cwbudde/algo-piano-fd/preset"
	"github.com/cwbudde/algo-piano-fd/tuning"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit per-note string parameters to a decay time or a recording",
	Long: `Fit string damping (and optionally inharmonicity) of one or more notes
and write the result as a preset.

With --t60 every note is fitted to the same decay time. With --reference a
single note is fitted against a recorded WAV.

Examples:
  piano fit --notes A4 --t60 6 -o fitted.json
  piano fit --notes C2,C3,C4,C5 --t60 8 --workers 4 -o fitted.json
  piano fit --notes A4 --reference a4.wav --knobs damping,inharmonicity -o a4.json`,
	RunE: runFit,
}

var (
	fitNotes      string
	fitT60        float64
	fitReference  string
	fitKnobs      string
	fitVelocity   int
	fitMaxEvals   int
	fitPopulation int
	fitSeed       int64
	fitSeconds    float64
	fitWorkers    string
	fitOutput     string
)

func init() {
	f := fitCmd.Flags()
	f.StringVarP(&fitNotes, "notes", "n", "", "Comma separated notes to fit")
	f.Float64Var(&fitT60, "t60", 0, "Target 60 dB decay time in seconds")
	f.StringVar(&fitReference, "reference", "", "Reference WAV of the note")
	f.StringVar(&fitKnobs, "knobs", "damping", "Parameters to fit: damping, inharmonicity")
	f.IntVarP(&fitVelocity, "velocity", "v", 100, "MIDI velocity (1-127)")
	f.IntVar(&fitMaxEvals, "max-evals", 200, "Evaluation budget per note")
	f.IntVar(&fitPopulation, "population", 6, "Mayfly population size")
	f.Int64Var(&fitSeed, "seed", 1, "Random seed")
	f.Float64Var(&fitSeconds, "seconds", 0, "Render length per candidate (default: derived from the target)")
	f.StringVar(&fitWorkers, "workers", "auto", "Notes fitted in parallel (integer or 'auto')")
	f.StringVarP(&fitOutput, "output", "o", "", "Output preset JSON path")
	_ = fitCmd.MarkFlagRequired("notes")
	_ = fitCmd.MarkFlagRequired("output")
}

func runFit(cmd *cobra.Command, args []string) error {
	notes, err := parseNotes(fitNotes)
	if err != nil {
		return err
	}
	vel, err := midiVelocity(fitVelocity)
	if err != nil {
		return err
	}
	knobs, err := parseKnobs(fitKnobs)
	if err != nil {
		return err
	}
	workers, err := parseWorkers(fitWorkers)
	if err != nil {
		return fmt.Errorf("--workers: %w", err)
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	base, err := loadParams()
	if err != nil {
		return err
	}

	target := tuning.Target{T60: fitT60}
	if fitReference != "" {
		if len(notes) != 1 {
			return fmt.Errorf("--reference fits exactly one note, got %d", len(notes))
		}
		ref, sr, err := wavio.ReadWAVMono(fitReference)
		if err != nil {
			return err
		}
		if target.Reference, err = wavio.ResampleIfNeeded(ref, sr, base.SampleRate); err != nil {
			return err
		}
	}
	if target.T60 <= 0 && len(target.Reference) == 0 {
		return errors.New("one of --t60 or --reference is required")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[int]*tuning.Result, len(notes))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, note := range notes {
		g.Go(func() error {
			res, err := tuning.Fit(gctx, tuning.Config{
				Base:          base,
				Note:          note,
				Velocity:      vel,
				Target:        target,
				Knobs:         knobs,
				RenderSeconds: fitSeconds,
				MaxEvals:      fitMaxEvals,
				Population:    fitPopulation,
				Seed:          fitSeed + int64(note),
				Logger:        logger.With("note", note),
			})
			if res != nil {
				mu.Lock()
				results[note] = res
				mu.Unlock()
			}
			return err
		})
	}
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("fit interrupted before any result: %w", err)
	}
	if err != nil {
		logger.Warn("fit interrupted, saving best results so far", "notes", len(results))
	}

	fitted := mergeResults(base, results)
	if err := preset.SaveJSON(fitOutput, fitted); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, note := range notes {
		res, ok := results[note]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "note %3d  score %.4f  t60 %.3f s  evals %d  %s\n",
			note, res.Score, res.T60, res.Evals, formatValues(res.Values))
	}
	fmt.Fprintf(out, "wrote %s\n", fitOutput)
	return nil
}

func parseKnobs(raw string) ([]tuning.Knob, error) {
	var knobs []tuning.Knob
	seen := map[string]bool{}
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "damping":
			knobs = append(knobs, tuning.DampingKnob())
		case "inharmonicity", "stiffness":
			knobs = append(knobs, tuning.StiffnessKnob())
		default:
			return nil, fmt.Errorf("unknown knob %q (use damping, inharmonicity)", name)
		}
	}
	if len(knobs) == 0 {
		return nil, errors.New("no knobs given")
	}
	return knobs, nil
}

// mergeResults copies the per-note overrides of every result onto a clone
// of base.
func mergeResults(base *piano.Params, results map[int]*tuning.Result) *piano.Params {
	out := base.Clone()
	if out.PerNote == nil {
		out.PerNote = make(map[int]*piano.NoteParams)
	}
	for note, res := range results {
		if np := res.Params.PerNote[note]; np != nil {
			cp := *np
			out.PerNote[note] = &cp
		}
	}
	return out
}

func formatValues(v map[string]float64) string {
	var b strings.Builder
	for _, k := range []string{"damping", "inharmonicity"} {
		if x, ok := v[k]; ok {
			fmt.Fprintf(&b, "%s=%.6g ", k, x)
		}
	}
	return strings.TrimSpace(b.String())
}
