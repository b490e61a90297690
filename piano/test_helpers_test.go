package piano

import (
	"math"
	"os"
	"testing"

	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

func newTestSynth(t *testing.T, mutate func(p *Params)) *Synthesizer {
	t.Helper()
	params := NewDefaultParams()
	if mutate != nil {
		mutate(params)
	}
	s, err := NewSynthesizer(params)
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}
	return s
}

func noteOn(note int, velocity float64) NoteEvent {
	return NoteEvent{Kind: NoteOn, Note: note, Velocity: velocity}
}

func noteOff(note int) NoteEvent {
	return NoteEvent{Kind: NoteOff, Note: note, ReleaseVelocity: 0.5}
}

func sustainPedal(down bool) NoteEvent {
	return NoteEvent{Kind: PedalChange, Sustain: down}
}

// renderBuffers renders count buffers of frames and returns them
// concatenated.
func renderBuffers(s *Synthesizer, count, frames int) []float32 {
	out := make([]float32, 0, count*frames*2)
	buf := make([]float32, frames*2)
	for i := 0; i < count; i++ {
		s.GenerateAudioBuffer(buf)
		out = append(out, buf...)
	}
	return out
}

func hammerPeak(h *Hammer) (peakOut float64, contactSamples int) {
	for i := 0; h.Active() && i < int(h.sampleRate); i++ {
		f := h.Step(0)
		if f > peakOut {
			peakOut = f
		}
		if h.InContact() {
			contactSamples++
		}
	}
	return peakOut, contactSamples
}

func stereoRMS(interleaved []float32) float64 {
	if len(interleaved) == 0 {
		return 0
	}
	var sum float64
	for _, s := range interleaved {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(interleaved)))
}

func peakAbs(samples []float32) float64 {
	peak := 0.0
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	return peak
}

func firstNonFinite(samples []float32) int {
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return i
		}
	}
	return -1
}

func directConvolve(x []float32, h []float32) []float32 {
	y := make([]float32, len(x)+len(h)-1)
	for i := 0; i < len(x); i++ {
		for j := 0; j < len(h); j++ {
			y[i+j] += x[i] * h[j]
		}
	}
	return y
}

func maxAbsDiff(a []float32, b []float32) float64 {
	n := min(len(a), len(b))
	worst := 0.0
	for i := 0; i < n; i++ {
		worst = math.Max(worst, math.Abs(float64(a[i]-b[i])))
	}
	return worst
}

func writeTempIRWav(t *testing.T, left []float32, right []float32, sampleRate int) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "ir-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	numCh := 1
	data := make([]float32, len(left))
	copy(data, left)
	if right != nil {
		numCh = 2
		if len(right) != len(left) {
			t.Fatalf("left/right length mismatch")
		}
		data = make([]float32, len(left)*2)
		for i := range left {
			data[i*2] = left[i]
			data[i*2+1] = right[i]
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, numCh, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numCh,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("wav write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("wav close: %v", err)
	}
	return f.Name()
}
