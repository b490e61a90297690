package midiin

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cwbudde/algo-piano-fd/piano"
)

// Listener buffers events pushed from a MIDI driver callback until the
// input loop polls them.
type Listener struct {
	mu      sync.Mutex
	conv    *Converter
	pending []piano.NoteEvent
	limit   int
	dropped uint64
}

// NewListener creates a listener that buffers at most limit events between
// polls (limit <= 0 means 1024).
func NewListener(channel int, limit int) *Listener {
	if limit <= 0 {
		limit = 1024
	}
	return &Listener{
		conv:    NewConverter(channel),
		pending: make([]piano.NoteEvent, 0, 64),
		limit:   limit,
	}
}

// Handle converts and buffers one message. Its signature matches the
// callback of midi.ListenTo.
func (l *Listener) Handle(msg midi.Message, timestampms int32) {
	at := time.Duration(timestampms) * time.Millisecond
	l.mu.Lock()
	defer l.mu.Unlock()
	before := len(l.pending)
	l.pending = l.conv.Convert(msg, at, l.pending)
	if over := len(l.pending) - l.limit; over > 0 {
		l.dropped += uint64(min(over, len(l.pending)-before))
		l.pending = l.pending[:max(before, l.limit)]
	}
}

// PollEvents appends buffered events to dst and clears the buffer.
func (l *Listener) PollEvents(dst []piano.NoteEvent) []piano.NoteEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	dst = append(dst, l.pending...)
	l.pending = l.pending[:0]
	return dst
}

// Dropped returns how many events were discarded because nobody polled.
func (l *Listener) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Pedals reports the pedal state seen so far.
func (l *Listener) Pedals() (damper float64, sostenuto, soft bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conv.Pedals()
}

// Open finds the input port whose name contains name (the first port when
// name is empty) and starts feeding l from it. The returned function stops
// listening and closes the port.
func (l *Listener) Open(name string, logger *slog.Logger) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var in drivers.In
	if name == "" {
		in, err = midi.InPort(0)
	} else {
		in, err = midi.FindInPort(name)
	}
	if err != nil {
		return nil, fmt.Errorf("midi input %q: %w", name, err)
	}
	stopListen, err := midi.ListenTo(in, l.Handle, midi.HandleError(func(err error) {
		logger.Warn("midi listener error", "port", in.String(), "err", err)
	}))
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", in.String(), err)
	}
	logger.Info("midi input connected", "port", in.String())
	return func() {
		stopListen()
		if err := in.Close(); err != nil {
			logger.Warn("closing midi input", "port", in.String(), "err", err)
		}
	}, nil
}

// InputPorts lists the names of the available MIDI inputs.
func InputPorts() []string {
	ins := midi.GetInPorts()
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}
