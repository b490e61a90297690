// Package dsp holds the small allocation-free filters used by the piano
// core. All Process methods run in constant time and never allocate.
package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Biquad implements a second-order IIR filter.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64
}

// NewBiquad creates a new biquad filter with normalized coefficients.
func NewBiquad(b0, b1, b2, a1, a2 float64) *Biquad {
	return &Biquad{b0: b0, b1: b1, b2: b2, a1: a1, a2: a2}
}

// Process processes one sample (Direct Form I).
func (b *Biquad) Process(input float64) float64 {
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	output = dspcore.FlushDenormals(output)
	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output
	return output
}

// Reset clears the filter state.
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// NewLowpass creates an RBJ lowpass biquad.
func NewLowpass(cutoff, sampleRate, q float64) *Biquad {
	cutoff = math.Min(math.Max(cutoff, 1), 0.49*sampleRate)
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	w0 := 2.0 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	a0 := 1.0 + alpha
	return NewBiquad(
		(1.0-cosw0)/2.0/a0,
		(1.0-cosw0)/a0,
		(1.0-cosw0)/2.0/a0,
		-2.0*cosw0/a0,
		(1.0-alpha)/a0,
	)
}

// Resonator is a two-pole resonant filter with unity-ish peak gain.
type Resonator struct {
	a1, a2, b0 float64
	y1, y2     float64
	gain       float64
}

// NewResonator creates a resonator at centerHz with the given -3 dB
// bandwidth. The center is clamped below Nyquist.
func NewResonator(sampleRate, centerHz, bandwidthHz, gain float64) Resonator {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	centerHz = math.Min(math.Max(centerHz, 5), 0.49*sampleRate)
	bandwidthHz = math.Max(bandwidthHz, 1)
	r := math.Exp(-math.Pi * bandwidthHz / sampleRate)
	w0 := 2.0 * math.Pi * centerHz / sampleRate
	return Resonator{
		a1:   2.0 * r * math.Cos(w0),
		a2:   -(r * r),
		b0:   1.0 - r,
		gain: gain,
	}
}

// Process filters one sample.
func (r *Resonator) Process(x float64) float64 {
	y := r.b0*x + r.a1*r.y1 + r.a2*r.y2
	y = dspcore.FlushDenormals(y)
	r.y2 = r.y1
	r.y1 = y
	return y * r.gain
}

// Reset clears the resonator state.
func (r *Resonator) Reset() {
	r.y1, r.y2 = 0, 0
}

// OnePole is a one-pole lowpass y = (1-a)x + a·y₁.
type OnePole struct {
	a float64
	y float64
}

// NewOnePole creates a lowpass with the given cutoff.
func NewOnePole(cutoff, sampleRate float64) OnePole {
	var p OnePole
	p.SetCutoff(cutoff, sampleRate)
	return p
}

// SetCutoff recomputes the pole for cutoff Hz.
func (p *OnePole) SetCutoff(cutoff, sampleRate float64) {
	if sampleRate <= 0 || cutoff <= 0 {
		p.a = 0
		return
	}
	p.a = math.Exp(-2.0 * math.Pi * math.Min(cutoff, 0.49*sampleRate) / sampleRate)
}

func (p *OnePole) Process(x float64) float64 {
	p.y = dspcore.FlushDenormals((1.0-p.a)*x + p.a*p.y)
	return p.y
}

func (p *OnePole) Reset() { p.y = 0 }

// DCBlocker is the usual first-order highpass y = x - x₁ + R·y₁.
type DCBlocker struct {
	r      float64
	x1, y1 float64
}

// NewDCBlocker creates a DC blocker with pole radius r (0.995 typical).
func NewDCBlocker(r float64) DCBlocker {
	return DCBlocker{r: r}
}

func (d *DCBlocker) Process(x float64) float64 {
	y := dspcore.FlushDenormals(x - d.x1 + d.r*d.y1)
	d.x1 = x
	d.y1 = y
	return y
}

func (d *DCBlocker) Reset() { d.x1, d.y1 = 0, 0 }

// DelayLine implements a circular buffer for delay.
type DelayLine struct {
	buffer   []float64
	writePos int
	size     int
}

// NewDelayLine creates a new delay line with the given size.
func NewDelayLine(size int) *DelayLine {
	if size < 1 {
		size = 1
	}
	return &DelayLine{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Len returns the capacity in samples.
func (d *DelayLine) Len() int { return d.size }

// Write writes a sample to the delay line.
func (d *DelayLine) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos == d.size {
		d.writePos = 0
	}
}

// Read reads the sample written delay samples ago; delay 1 is the most
// recent write. Delays are clamped to [1,size].
func (d *DelayLine) Read(delay int) float64 {
	if delay < 1 {
		delay = 1
	} else if delay > d.size {
		delay = d.size
	}
	readPos := d.writePos - delay
	if readPos < 0 {
		readPos += d.size
	}
	return d.buffer[readPos]
}

// ReadFractional reads with fractional delay using linear interpolation.
func (d *DelayLine) ReadFractional(delay float64) float64 {
	intDelay := int(delay)
	frac := delay - float64(intDelay)
	s1 := d.Read(intDelay)
	s2 := d.Read(intDelay + 1)
	return s1 + frac*(s2-s1)
}

// Reset clears the delay line.
func (d *DelayLine) Reset() {
	clear(d.buffer)
	d.writePos = 0
}

// FeedbackDelay is a comb filter whose feedback path is lowpass damped:
// y = x + g·lp(y[n-D]).
type FeedbackDelay struct {
	line     *DelayLine
	delay    int
	feedback float64
	damp     float64
	lp       float64
}

// NewFeedbackDelay creates a comb with delay samples, feedback gain
// clamped to [0,0.98] and damping in [0,1].
func NewFeedbackDelay(delay int, feedback, damping float64) *FeedbackDelay {
	if delay < 1 {
		delay = 1
	}
	f := &FeedbackDelay{line: NewDelayLine(delay), delay: delay}
	f.SetFeedback(feedback, damping)
	return f
}

// SetFeedback updates the loop gain and damping.
func (f *FeedbackDelay) SetFeedback(feedback, damping float64) {
	f.feedback = math.Min(math.Max(feedback, 0), 0.98)
	f.damp = math.Min(math.Max(damping, 0), 1)
}

// Process runs one sample and returns the delayed, damped output.
func (f *FeedbackDelay) Process(x float64) float64 {
	out := f.line.Read(f.delay)
	f.lp = dspcore.FlushDenormals((1.0-f.damp)*out + f.damp*f.lp)
	f.line.Write(x + f.feedback*f.lp)
	return out
}

func (f *FeedbackDelay) Reset() {
	f.line.Reset()
	f.lp = 0
}
