package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cwbudde/algo-piano-fd/internal/device"
	"github.com/cwbudde/algo-piano-fd/internal/midiin"
	"github.com/cwbudde/algo-piano-fd/internal/wavio"
	"github.com/cwbudde/algo-piano-fd/pipeline"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the piano live from a MIDI keyboard",
	Long: `Open a MIDI input and the default audio output and play in real time
until interrupted.

Examples:
  piano play --list-ports
  piano play --port "Digital Piano" --record session.wav
  piano play --channel 1 --buffer 256 --synth-ir`,
	RunE: runPlay,
}

var (
	playPort      string
	playChannel   int
	playBuffer    int
	playRecord    string
	playListPorts bool
	playSynthIR   bool
)

func init() {
	f := playCmd.Flags()
	f.StringVar(&playPort, "port", "", "MIDI input port name or substring (default: first port)")
	f.IntVar(&playChannel, "channel", 0, "MIDI channel 1-16 (0 = all channels)")
	f.IntVar(&playBuffer, "buffer", 256, "Frames per audio tick")
	f.StringVar(&playRecord, "record", "", "Also record the output to this WAV file")
	f.BoolVar(&playListPorts, "list-ports", false, "List MIDI input ports and exit")
	f.BoolVar(&playSynthIR, "synth-ir", false, "Use a generated soundboard IR instead of a WAV")
}

func runPlay(cmd *cobra.Command, args []string) error {
	defer midi.CloseDriver()

	if playListPorts {
		for i, name := range midiin.InputPorts() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, name)
		}
		return nil
	}
	if playChannel < 0 || playChannel > 16 {
		return fmt.Errorf("--channel must be 0..16")
	}
	channel := midiin.Omni
	if playChannel > 0 {
		channel = playChannel - 1
	}

	params, err := loadParams()
	if err != nil {
		return err
	}
	synth, err := newSynth(params, playSynthIR)
	if err != nil {
		return err
	}

	out, err := device.OpenPlayback(device.Config{
		SampleRate:   synth.SampleRate(),
		PeriodFrames: playBuffer,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer out.Close()

	listener := midiin.NewListener(channel, 0)
	stopInput, err := listener.Open(playPort, logger)
	if err != nil {
		return err
	}
	defer stopInput()

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithBufferFrames(playBuffer),
		pipeline.WithSource(listener),
	}
	if playRecord != "" {
		rec, err := wavio.NewRecorder(playRecord, synth.SampleRate(), 2)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Error("closing recording", "path", playRecord, "err", err)
			}
		}()
		opts = append(opts, pipeline.WithRecorder(rec))
	}

	eng, err := pipeline.NewEngine(synth, out, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("playing, press Ctrl+C to stop", "latency", eng.Period())
	err = eng.Run(ctx)

	ds := out.Stats()
	es := eng.Stats()
	logger.Info("session finished",
		"events", es.Events,
		"midi_dropped", listener.Dropped(),
		"underrun_frames", ds.Underrun,
		"overrun_frames", ds.Overrun,
		"voices_stolen", synth.Stats().VoicesStolen,
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
