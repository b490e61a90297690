// Package pipeline runs a Synthesizer in real time: an audio tick renders
// fixed-size buffers for an output sink while an input loop polls event
// sources and an optional recorder drains copies of the output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-piano-fd/piano"
)

// ErrAlreadyRunning is returned by Run when the engine is already running.
var ErrAlreadyRunning = errors.New("pipeline: engine already running")

const (
	defaultBufferFrames = 512
	defaultPollInterval = time.Millisecond
	recorderSlots       = 8
)

// Source delivers input events. PollEvents appends any events that arrived
// since the previous call to dst and returns it.
type Source interface {
	PollEvents(dst []piano.NoteEvent) []piano.NoteEvent
}

// Sink accepts interleaved stereo buffers. OutputBuffer is called from the
// audio tick and must not block.
type Sink interface {
	OutputBuffer(buf []float32) error
}

// Recorder consumes copies of the output buffers off the audio tick.
type Recorder interface {
	Record(buf []float32) error
}

// EngineStats counts pipeline activity.
type EngineStats struct {
	Ticks          uint64
	Events         uint64
	DroppedEvents  uint64
	RecorderDrops  uint64
	RecorderErrors uint64
	SinkErrors     uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder attaches a recorder fed from its own goroutine.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithBufferFrames sets the number of stereo frames rendered per tick.
func WithBufferFrames(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bufferFrames = n
		}
	}
}

// WithPollInterval sets the sleep between input polls.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithQueueLimit bounds the event queue between input and audio loops.
func WithQueueLimit(n int) Option {
	return func(e *Engine) { e.queueLimit = n }
}

// WithSource adds an input source polled by the input loop.
func WithSource(s Source) Option {
	return func(e *Engine) {
		if s != nil {
			e.sources = append(e.sources, s)
		}
	}
}

// Engine owns a Synthesizer and drives it from the audio tick. Only the
// audio tick touches the Synthesizer while the engine is running.
type Engine struct {
	synth    *piano.Synthesizer
	sink     Sink
	recorder Recorder
	sources  []Source
	logger   *slog.Logger
	queue    *EventQueue

	bufferFrames int
	pollInterval time.Duration
	queueLimit   int

	buf    []float32
	events []piano.NoteEvent
	polled []piano.NoteEvent

	recFree chan []float32
	recFull chan []float32

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc

	ticks          atomic.Uint64
	processed      atomic.Uint64
	recorderDrops  atomic.Uint64
	recorderErrors atomic.Uint64
	sinkErrors     atomic.Uint64
}

// NewEngine wires synth to sink. sink may be nil for offline use.
func NewEngine(synth *piano.Synthesizer, sink Sink, opts ...Option) (*Engine, error) {
	if synth == nil {
		return nil, errors.New("pipeline: nil synthesizer")
	}
	e := &Engine{
		synth:        synth,
		sink:         sink,
		logger:       slog.Default(),
		bufferFrames: defaultBufferFrames,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = NewEventQueue(e.queueLimit)
	e.buf = make([]float32, 2*e.bufferFrames)
	e.events = make([]piano.NoteEvent, 0, e.queue.limit)
	e.polled = make([]piano.NoteEvent, 0, 64)
	if e.recorder != nil {
		e.recFree = make(chan []float32, recorderSlots)
		e.recFull = make(chan []float32, recorderSlots)
		for range recorderSlots {
			e.recFree <- make([]float32, len(e.buf))
		}
	}
	return e, nil
}

// BufferFrames returns the number of frames rendered per tick.
func (e *Engine) BufferFrames() int { return e.bufferFrames }

// Period returns the wall-clock duration of one buffer.
func (e *Engine) Period() time.Duration {
	return time.Duration(float64(e.bufferFrames) / float64(e.synth.SampleRate()) * float64(time.Second))
}

// Running reports whether Run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Enqueue schedules ev for the next audio tick. It is safe for concurrent
// use and returns false when the queue is full.
func (e *Engine) Enqueue(ev piano.NoteEvent) bool {
	return e.queue.Push(ev)
}

// Tick runs one audio period: pending events are applied, one buffer is
// rendered and handed to the sink and recorder. The returned slice is owned
// by the engine and overwritten by the next Tick.
func (e *Engine) Tick() ([]float32, error) {
	e.events = e.queue.Drain(e.events[:0])
	for _, ev := range e.events {
		e.synth.ProcessEvent(ev)
	}
	e.processed.Add(uint64(len(e.events)))

	e.synth.GenerateAudioBuffer(e.buf)
	e.ticks.Add(1)

	var err error
	if e.sink != nil {
		if err = e.sink.OutputBuffer(e.buf); err != nil {
			e.sinkErrors.Add(1)
		}
	}
	e.handoff()
	return e.buf, err
}

// handoff passes a copy of the current buffer to the recorder goroutine
// without blocking. A full recorder counts as a drop.
func (e *Engine) handoff() {
	if e.recorder == nil {
		return
	}
	select {
	case b := <-e.recFree:
		copy(b, e.buf)
		select {
		case e.recFull <- b:
		default:
			e.recFree <- b
			e.recorderDrops.Add(1)
		}
	default:
		e.recorderDrops.Add(1)
	}
}

// Run starts the audio tick, the input loop and the recorder loop and
// blocks until ctx is cancelled, Stop is called or a sink fails.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	e.logger.Info("engine started",
		"sample_rate", e.synth.SampleRate(),
		"buffer_frames", e.bufferFrames,
		"period", e.Period(),
		"sources", len(e.sources),
		"recorder", e.recorder != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.audioLoop(ctx) })
	if len(e.sources) > 0 {
		g.Go(func() error { return e.inputLoop(ctx) })
	}
	if e.recorder != nil {
		g.Go(func() error { return e.recordLoop(ctx) })
	}
	err := g.Wait()

	st := e.Stats()
	e.logger.Info("engine stopped",
		"ticks", st.Ticks,
		"events", st.Events,
		"dropped_events", st.DroppedEvents,
		"recorder_drops", st.RecorderDrops,
	)
	return err
}

// Stop cancels a running engine. It is a no-op when the engine is idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) audioLoop(ctx context.Context) error {
	t := time.NewTicker(e.Period())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := e.Tick(); err != nil {
				return fmt.Errorf("output sink: %w", err)
			}
		}
	}
}

func (e *Engine) inputLoop(ctx context.Context) error {
	t := time.NewTicker(e.pollInterval)
	defer t.Stop()
	var dropped uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			e.polled = e.polled[:0]
			for _, s := range e.sources {
				e.polled = s.PollEvents(e.polled)
			}
			for _, ev := range e.polled {
				e.queue.Push(ev)
			}
			if d := e.queue.Dropped(); d != dropped {
				e.logger.Warn("event queue full", "dropped", d-dropped)
				dropped = d
			}
		}
	}
}

func (e *Engine) recordLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Flush what the audio tick already handed over.
			for {
				select {
				case b := <-e.recFull:
					e.record(b)
				default:
					return nil
				}
			}
		case b := <-e.recFull:
			e.record(b)
		}
	}
}

func (e *Engine) record(b []float32) {
	if err := e.recorder.Record(b); err != nil {
		if e.recorderErrors.Add(1) == 1 {
			e.logger.Error("recorder failed", "err", err)
		}
	}
	e.recFree <- b
}

// Stats returns a snapshot of the pipeline counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Ticks:          e.ticks.Load(),
		Events:         e.processed.Load(),
		DroppedEvents:  e.queue.Dropped(),
		RecorderDrops:  e.recorderDrops.Load(),
		RecorderErrors: e.recorderErrors.Load(),
		SinkErrors:     e.sinkErrors.Load(),
	}
}
