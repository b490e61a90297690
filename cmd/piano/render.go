package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-piano-fd/analysis"
	"github.com/cwbudde/algo-piano-fd/bodyir"
	"github.com/cwbudde/algo-piano-fd/internal/wavio"
	"github.com/cwbudde/algo-piano-fd/piano"
	"github.com/cwbudde/algo-piano-fd/pipeline"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render notes offline to a WAV file",
	Long: `Render a note or chord through the full engine and write a stereo WAV.

The keys are held for --hold seconds and then released; rendering continues
for --tail seconds, or until the output falls below --stop-below dBFS.

Examples:
  piano render --notes A4 -o a4.wav
  piano render --notes C3,E3,G3 --velocity 90 --hold 2 --sustain
  piano render --notes 21 --synth-ir --stop-below -80 --report report.json`,
	RunE: runRender,
}

var (
	renderNotes     string
	renderVelocity  int
	renderHold      float64
	renderTail      float64
	renderSustain   bool
	renderIR        string
	renderSynthIR   bool
	renderOutput    string
	renderReport    string
	renderBlock     int
	renderStopBelow float64
	renderMaxLength float64
)

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderNotes, "notes", "n", "A4", "Comma separated notes (MIDI numbers or names like C4, F#3)")
	f.IntVarP(&renderVelocity, "velocity", "v", 100, "MIDI velocity (1-127)")
	f.Float64Var(&renderHold, "hold", 1.0, "Seconds before the keys are released")
	f.Float64Var(&renderTail, "tail", 2.0, "Seconds rendered after release")
	f.BoolVar(&renderSustain, "sustain", false, "Hold the sustain pedal for the whole render")
	f.StringVar(&renderIR, "ir", "", "Body IR WAV path (overrides the preset)")
	f.BoolVar(&renderSynthIR, "synth-ir", false, "Use a generated soundboard IR instead of a WAV")
	f.StringVarP(&renderOutput, "output", "o", "output.wav", "Output WAV path")
	f.StringVar(&renderReport, "report", "", "Write the analysis report as JSON to this path")
	f.IntVar(&renderBlock, "block", 512, "Frames per engine tick")
	f.Float64Var(&renderStopBelow, "stop-below", math.Inf(-1), "Stop once a block after release is below this dBFS (e.g. -90)")
	f.Float64Var(&renderMaxLength, "max-length", 30, "Upper bound on the render length in seconds")
}

func runRender(cmd *cobra.Command, args []string) error {
	notes, err := parseNotes(renderNotes)
	if err != nil {
		return err
	}
	vel, err := midiVelocity(renderVelocity)
	if err != nil {
		return err
	}
	if renderHold < 0 || renderTail < 0 {
		return fmt.Errorf("--hold and --tail must be >= 0")
	}
	params, err := loadParams()
	if err != nil {
		return err
	}
	if renderIR != "" {
		params.BodyIRWavPath = renderIR
	}
	synth, err := newSynth(params, renderSynthIR)
	if err != nil {
		return err
	}
	sr := synth.SampleRate()

	eng, err := pipeline.NewEngine(synth, nil,
		pipeline.WithBufferFrames(renderBlock),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	rec, err := wavio.NewRecorder(renderOutput, sr, 2)
	if err != nil {
		return err
	}

	if renderSustain {
		eng.Enqueue(piano.NoteEvent{Kind: piano.PedalChange, DamperPosition: 1, Sustain: true})
	}
	for _, n := range notes {
		eng.Enqueue(piano.NoteEvent{Kind: piano.NoteOn, Note: n, Velocity: vel})
	}

	holdFrames := int(renderHold * float64(sr))
	total := holdFrames + int(renderTail*float64(sr))
	maxFrames := int(renderMaxLength * float64(sr))
	autoStop := !math.IsInf(renderStopBelow, -1)
	if autoStop {
		total = maxFrames
	}
	total = min(max(total, 1), maxFrames)
	threshold := math.Pow(10, renderStopBelow/20)

	logger.Info("rendering",
		"notes", notes,
		"velocity", renderVelocity,
		"sample_rate", sr,
		"seconds", float64(total)/float64(sr),
		"output", renderOutput,
	)

	mono := make([]float64, 0, total)
	released := false
	frames := 0
	for frames < total {
		if !released && frames >= holdFrames {
			for _, n := range notes {
				eng.Enqueue(piano.NoteEvent{Kind: piano.NoteOff, Note: n, ReleaseVelocity: 0.5})
			}
			released = true
		}
		buf, _ := eng.Tick()
		n := min(len(buf)/2, total-frames)
		if err := rec.Record(buf[:2*n]); err != nil {
			rec.Close()
			return err
		}
		block := analysis.Mono(buf[:2*n])
		mono = append(mono, block...)
		frames += n
		if autoStop && released && analysis.RMS(block) < threshold {
			logger.Info("output below threshold", "dbfs", renderStopBelow, "seconds", float64(frames)/float64(sr))
			break
		}
	}
	if err := rec.Close(); err != nil {
		return fmt.Errorf("write %s: %w", renderOutput, err)
	}

	st := synth.Stats()
	logger.Debug("render finished", "ticks", eng.Stats().Ticks, "active_voices", st.ActiveVoices)

	report := analysis.Analyze(mono, sr)
	printReport(cmd, renderOutput, report)
	if renderReport != "" {
		return writeReport(renderReport, report)
	}
	return nil
}

// newSynth creates the synthesizer and optionally installs a generated body
// IR in place of the preset's WAV.
func newSynth(params *piano.Params, synthIR bool) (*piano.Synthesizer, error) {
	if synthIR {
		params.BodyIRWavPath = ""
	}
	synth, err := piano.NewSynthesizer(params)
	if err != nil {
		return nil, err
	}
	if synthIR {
		l, r, err := bodyir.Generate(bodyir.DefaultConfig(synth.SampleRate()))
		if err != nil {
			return nil, fmt.Errorf("generate body ir: %w", err)
		}
		if err := synth.SetBodyIR(l, r); err != nil {
			return nil, err
		}
	}
	return synth, nil
}

func printReport(cmd *cobra.Command, path string, r analysis.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wrote %s (%d frames)\n", path, r.Frames)
	fmt.Fprintf(out, "  rms       %.2f dBFS\n", 20*math.Log10(math.Max(r.RMS, 1e-12)))
	fmt.Fprintf(out, "  peak      %.2f dBFS\n", 20*math.Log10(math.Max(r.Peak, 1e-12)))
	fmt.Fprintf(out, "  decay     %.2f dB/s\n", r.DecayDBPerS)
	if math.IsNaN(r.T60) {
		fmt.Fprintf(out, "  t60       n/a\n")
	} else {
		fmt.Fprintf(out, "  t60       %.3f s\n", r.T60)
	}
	fmt.Fprintf(out, "  peak freq %.2f Hz\n", r.PeakHz)
}

func writeReport(path string, r analysis.Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
