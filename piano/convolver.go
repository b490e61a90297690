package piano

import (
	"fmt"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/cwbudde/algo-piano-fd/internal/wavio"
)

// bodyPartition is the convolver block size and therefore its latency.
const bodyPartition = 128

// BodyConvolver convolves the stereo master bus with a body impulse
// response. Input is collected in a block FIFO, so output lags input by
// exactly bodyPartition frames.
type BodyConvolver struct {
	sampleRate int
	gain       float64

	leftOLA  *dspconv.StreamingOverlapAddT[float32, complex64]
	rightOLA *dspconv.StreamingOverlapAddT[float32, complex64]

	inL, inR   []float32
	outL, outR []float32
	pos        int
	failed     bool
}

// NewBodyConvolver creates a convolver with an identity IR.
func NewBodyConvolver(sampleRate int) *BodyConvolver {
	c := &BodyConvolver{
		sampleRate: sampleRate,
		gain:       1.0,
		inL:        make([]float32, bodyPartition),
		inR:        make([]float32, bodyPartition),
		outL:       make([]float32, bodyPartition),
		outR:       make([]float32, bodyPartition),
	}
	_ = c.SetIR([]float32{1.0}, []float32{1.0})
	return c
}

// SetGain sets the wet gain applied to the convolved signal.
func (c *BodyConvolver) SetGain(g float64) {
	c.gain = clampFinite(g, 0, 16)
}

// Latency returns the fixed output delay in frames.
func (c *BodyConvolver) Latency() int { return bodyPartition }

// SetIR configures left/right impulse responses.
func (c *BodyConvolver) SetIR(leftIR, rightIR []float32) error {
	if len(leftIR) == 0 {
		leftIR = []float32{1.0}
	}
	if len(rightIR) == 0 {
		rightIR = leftIR
	}
	leftOLA, err := dspconv.NewStreamingOverlapAdd32(leftIR, bodyPartition)
	if err != nil {
		return fmt.Errorf("body ir left: %w", err)
	}
	rightOLA, err := dspconv.NewStreamingOverlapAdd32(rightIR, bodyPartition)
	if err != nil {
		return fmt.Errorf("body ir right: %w", err)
	}
	c.leftOLA = leftOLA
	c.rightOLA = rightOLA
	c.failed = false
	c.Reset()
	return nil
}

// SetIRFromWAV loads a mono or stereo IR and resamples it to the engine
// rate.
func (c *BodyConvolver) SetIRFromWAV(path string) error {
	chans, srcRate, err := wavio.ReadWAV(path)
	if err != nil {
		return err
	}
	left, err := wavio.Resample32(chans[0], srcRate, c.sampleRate)
	if err != nil {
		return err
	}
	right := left
	if len(chans) > 1 {
		right, err = wavio.Resample32(chans[1], srcRate, c.sampleRate)
		if err != nil {
			return err
		}
	}
	return c.SetIR(left, right)
}

// Process pushes one stereo frame and returns the frame convolved
// bodyPartition frames ago.
func (c *BodyConvolver) Process(l, r float64) (float64, float64) {
	outL := float64(c.outL[c.pos]) * c.gain
	outR := float64(c.outR[c.pos]) * c.gain
	c.inL[c.pos] = float32(l)
	c.inR[c.pos] = float32(r)
	c.pos++
	if c.pos == bodyPartition {
		c.pos = 0
		c.flush()
	}
	return outL, outR
}

func (c *BodyConvolver) flush() {
	if !c.failed {
		errL := c.leftOLA.ProcessBlockTo(c.outL, c.inL)
		errR := c.rightOLA.ProcessBlockTo(c.outR, c.inR)
		if errL == nil && errR == nil {
			return
		}
		c.failed = true
	}
	// Pass through once the convolver has failed.
	copy(c.outL, c.inL)
	copy(c.outR, c.inR)
}

// Reset clears the FIFO and the overlap state.
func (c *BodyConvolver) Reset() {
	if c.leftOLA != nil {
		c.leftOLA.Reset()
	}
	if c.rightOLA != nil {
		c.rightOLA.Reset()
	}
	clear(c.inL)
	clear(c.inR)
	clear(c.outL)
	clear(c.outR)
	c.pos = 0
}
