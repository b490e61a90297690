package piano

import "github.com/cwbudde/algo-piano-fd/dsp"

// roomDelaysMs are the comb lengths of the room network.
var roomDelaysMs = [...]float64{20, 23, 29, 31, 37, 51}

const (
	roomWet = 0.3
	// roomSpread offsets the right channel's combs to decorrelate it.
	roomSpreadMs = 0.7
)

// Room is a parallel comb network with damped feedback.
type Room struct {
	lines [len(roomDelaysMs)]*dsp.FeedbackDelay
}

// NewRoom creates a room for one channel. size and damping are in [0,1];
// spread shifts every comb by spread·0.7 ms.
func NewRoom(sampleRate int, size, damping float64, spread float64) *Room {
	r := &Room{}
	fs := float64(sampleRate)
	for i, ms := range roomDelaysMs {
		d := int((ms + spread*roomSpreadMs) * 0.001 * fs)
		r.lines[i] = dsp.NewFeedbackDelay(d, 0, 0)
	}
	r.SetParams(size, damping)
	return r
}

// SetParams maps room size to comb feedback and damping to the loop lowpass.
func (r *Room) SetParams(size, damping float64) {
	size = clampFinite(size, 0, 1)
	damping = clampFinite(damping, 0, 1)
	fb := 0.3 + 0.55*size
	for _, l := range r.lines {
		l.SetFeedback(fb, 0.05+0.85*damping)
	}
}

// ProcessRoomAcoustics returns x mixed with the room response at 30% wet.
func (r *Room) ProcessRoomAcoustics(x float64) float64 {
	wet := 0.0
	for _, l := range r.lines {
		wet += l.Process(x)
	}
	wet /= float64(len(r.lines))
	return (1.0-roomWet)*x + roomWet*wet
}

func (r *Room) Reset() {
	for _, l := range r.lines {
		l.Reset()
	}
}
