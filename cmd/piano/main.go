package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-piano-fd/piano"
	"github.com/cwbudde/algo-piano-fd/preset"
)

var version = "0.1.0"

// logger is replaced by initLogger before any subcommand runs.
var logger = slog.Default()

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "piano",
	Short: "Physical-modeling piano synthesizer",
	Long: `piano renders, plays and tunes a finite-difference piano model.

Strings are stiff damped strings struck by nonlinear felt hammers, coupled
through a shared soundboard and mixed through an optional body impulse
response and a small room.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(debug)
	},
}

var (
	// global flags
	debug      bool
	presetPath string
	overrides  []string
	sampleRate int
)

func init() {
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(irCmd)

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&debug, "debug", false, "Debug logging with source locations")
	pf.StringVarP(&presetPath, "preset", "p", "", "Preset JSON file (default: built-in parameters)")
	pf.StringArrayVar(&overrides, "set", nil, "Override a parameter, e.g. --set room_size=0.7 (repeatable)")
	pf.IntVar(&sampleRate, "sample-rate", 0, "Engine sample rate in Hz (default: preset value)")
}

// initLogger configures the shared slog logger and makes it the default.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// loadParams builds the engine parameters from --preset, --set and
// --sample-rate, in that order.
func loadParams() (*piano.Params, error) {
	params := piano.NewDefaultParams()
	if presetPath != "" {
		p, err := preset.LoadJSON(presetPath)
		if err != nil {
			return nil, fmt.Errorf("load preset: %w", err)
		}
		params = p
	}
	if len(overrides) > 0 {
		values, err := preset.ParseValues(overrides)
		if err != nil {
			return nil, fmt.Errorf("--set: %w", err)
		}
		piano.ApplySource(params, values)
	}
	if sampleRate > 0 {
		params.SampleRate = sampleRate
	}
	logger.Debug("parameters loaded",
		"preset", presetPath,
		"overrides", len(overrides),
		"sample_rate", params.SampleRate,
		"max_voices", params.MaxVoices,
	)
	return params, nil
}
