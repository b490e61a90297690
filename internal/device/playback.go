// Package device plays interleaved stereo float buffers on the default
// output device through miniaudio.
package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

const channels = 2

// Stats reports sample counts lost at the ring boundary.
type Stats struct {
	Buffered int
	Overrun  uint64
	Underrun uint64
}

// Playback is an output sink backed by a miniaudio playback device.
// OutputBuffer never blocks: samples that do not fit in the ring are
// dropped and counted.
type Playback struct {
	logger  *slog.Logger
	ring    *ring
	scratch []float32

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	closed bool
}

// Config describes the device stream.
type Config struct {
	SampleRate int
	// PeriodFrames is the device callback size in frames.
	PeriodFrames int
	// RingFrames is the FIFO capacity between the audio tick and the
	// device, in frames.
	RingFrames int
	Logger     *slog.Logger
}

// OpenPlayback starts a stereo float32 stream on the default output device.
func OpenPlayback(cfg Config) (*Playback, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("device: invalid sample rate")
	}
	if cfg.PeriodFrames <= 0 {
		cfg.PeriodFrames = 256
	}
	if cfg.RingFrames < 2*cfg.PeriodFrames {
		cfg.RingFrames = 8 * cfg.PeriodFrames
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := newPlayback(cfg)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		cfg.Logger.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	dcfg := malgo.DefaultDeviceConfig(malgo.Playback)
	dcfg.Playback.Format = malgo.FormatF32
	dcfg.Playback.Channels = channels
	dcfg.SampleRate = uint32(cfg.SampleRate)
	dcfg.PeriodSizeInFrames = uint32(cfg.PeriodFrames)

	dev, err := malgo.InitDevice(mctx.Context, dcfg, malgo.DeviceCallbacks{
		Data: p.onData,
	})
	if err != nil {
		freeContext(mctx)
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		freeContext(mctx)
		return nil, fmt.Errorf("start playback device: %w", err)
	}
	p.ctx = mctx
	p.device = dev
	cfg.Logger.Info("playback started",
		"sample_rate", cfg.SampleRate,
		"period_frames", cfg.PeriodFrames,
		"ring_frames", cfg.RingFrames,
	)
	return p, nil
}

func newPlayback(cfg Config) *Playback {
	return &Playback{
		logger:  cfg.Logger,
		ring:    newRing(channels * cfg.RingFrames),
		scratch: make([]float32, channels*cfg.RingFrames),
	}
}

// OutputBuffer queues an interleaved stereo buffer for playback.
func (p *Playback) OutputBuffer(buf []float32) error {
	p.ring.write(buf)
	return nil
}

// onData is the device callback: it converts queued float32 samples to the
// little-endian byte layout miniaudio expects.
func (p *Playback) onData(out, _ []byte, frames uint32) {
	n := int(frames) * channels
	if n > len(p.scratch) {
		n = len(p.scratch)
	}
	samples := p.scratch[:n]
	p.ring.read(samples)
	encodeF32(out, samples)
}

func encodeF32(dst []byte, src []float32) {
	for i, v := range src {
		if 4*i+4 > len(dst) {
			return
		}
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
}

// Stats returns ring occupancy and loss counters.
func (p *Playback) Stats() Stats {
	buffered, over, under := p.ring.stats()
	return Stats{Buffered: buffered / channels, Overrun: over / channels, Underrun: under / channels}
}

// Close stops the device and releases the audio context. It is safe to
// call more than once.
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	if p.device != nil {
		err = p.device.Stop()
		p.device.Uninit()
	}
	if p.ctx != nil {
		freeContext(p.ctx)
	}
	st := p.Stats()
	p.logger.Info("playback stopped", "overrun_frames", st.Overrun, "underrun_frames", st.Underrun)
	return err
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
