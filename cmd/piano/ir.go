package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-piano-fd/bodyir"
	"github.com/cwbudde/algo-piano-fd/internal/wavio"
)

var irCmd = &cobra.Command{
	Use:   "ir",
	Short: "Generate a stereo soundboard impulse response",
	Long: `Synthesize a body IR from orthotropic plate modes and write it as a
stereo WAV usable as body_ir_wav_path.

Examples:
  piano ir -o soundboard.wav
  piano ir -o bright.wav --brightness 1.6 --duration 0.12 --seed 7`,
	RunE: runIR,
}

var (
	irOutput string
	irConfig = bodyir.DefaultConfig(0)
)

func init() {
	f := irCmd.Flags()
	f.StringVarP(&irOutput, "output", "o", "", "Output WAV path")
	f.Float64Var(&irConfig.Duration, "duration", irConfig.Duration, "IR length in seconds")
	f.IntVar(&irConfig.Modes, "modes", irConfig.Modes, "Number of plate modes")
	f.Int64Var(&irConfig.Seed, "seed", irConfig.Seed, "Random seed for gains, pans and phases")
	f.Float64Var(&irConfig.FundamentalHz, "fundamental", irConfig.FundamentalHz, "Lowest plate mode in Hz")
	f.Float64Var(&irConfig.Brightness, "brightness", irConfig.Brightness, "Spectral tilt (higher = darker)")
	f.Float64Var(&irConfig.PlateRatio, "plate-ratio", irConfig.PlateRatio, "Plate aspect ratio Lx/Ly")
	f.Float64Var(&irConfig.StiffnessRatio, "stiffness-ratio", irConfig.StiffnessRatio, "Orthotropic stiffness ratio Dx/Dy")
	f.Float64Var(&irConfig.DirectLevel, "direct", irConfig.DirectLevel, "Level of the direct impulse")
	f.Float64Var(&irConfig.LowDecay, "low-decay", irConfig.LowDecay, "Decay time constant below the crossover in seconds")
	f.Float64Var(&irConfig.HighDecay, "high-decay", irConfig.HighDecay, "Decay time constant above the crossover in seconds")
	f.Float64Var(&irConfig.CrossoverHz, "crossover", irConfig.CrossoverHz, "Decay crossover frequency in Hz")
	f.Float64Var(&irConfig.StereoWidth, "width", irConfig.StereoWidth, "Stereo decorrelation in [0,1]")
	f.Float64Var(&irConfig.NormalizePeak, "peak", irConfig.NormalizePeak, "Output peak level")
	_ = irCmd.MarkFlagRequired("output")
}

func runIR(cmd *cobra.Command, args []string) error {
	params, err := loadParams()
	if err != nil {
		return err
	}
	cfg := irConfig
	cfg.SampleRate = params.SampleRate
	left, right, err := bodyir.Generate(cfg)
	if err != nil {
		return err
	}
	inter := make([]float32, 2*len(left))
	for i := range left {
		inter[2*i] = left[i]
		inter[2*i+1] = right[i]
	}
	if err := wavio.WriteWAV(irOutput, inter, cfg.SampleRate, 2); err != nil {
		return err
	}
	logger.Info("ir written", "path", irOutput, "frames", len(left), "sample_rate", cfg.SampleRate, "modes", cfg.Modes)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d frames at %d Hz)\n", irOutput, len(left), cfg.SampleRate)
	return nil
}
