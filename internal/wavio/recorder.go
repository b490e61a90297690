package wavio

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cwbudde/wav"
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("wavio: recorder closed")

// Recorder streams interleaved float buffers into a 16-bit WAV file. The
// header is finalized on Close.
type Recorder struct {
	mu         sync.Mutex
	f          *os.File
	enc        *wav.Encoder
	sampleRate int
	channels   int
	frames     int64
	closed     bool
}

// NewRecorder creates path and prepares a WAV encoder.
func NewRecorder(path string, sampleRate, channels int) (*Recorder, error) {
	if sampleRate <= 0 || channels < 1 {
		return nil, fmt.Errorf("wavio: invalid format %d Hz x %d ch", sampleRate, channels)
	}
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		f:          f,
		enc:        wav.NewEncoder(f, sampleRate, 16, channels, 1),
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Record appends one interleaved buffer.
func (r *Recorder) Record(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}
	if err := r.enc.Write(float32Buffer(samples, r.sampleRate, r.channels)); err != nil {
		return fmt.Errorf("wavio: write: %w", err)
	}
	r.frames += int64(len(samples) / r.channels)
	return nil
}

// Frames returns the number of frames written so far.
func (r *Recorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalizes the header and closes the file. It is safe to call
// more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	errEnc := r.enc.Close()
	errFile := r.f.Close()
	return errors.Join(errEnc, errFile)
}
