package piano

import "time"

// EventKind identifies the type of a NoteEvent.
type EventKind int

const (
	NoteOn EventKind = iota
	NoteOff
	PedalChange
	PitchBend
	Aftertouch
)

func (k EventKind) String() string {
	switch k {
	case NoteOn:
		return "note-on"
	case NoteOff:
		return "note-off"
	case PedalChange:
		return "pedal"
	case PitchBend:
		return "pitch-bend"
	case Aftertouch:
		return "aftertouch"
	default:
		return "unknown"
	}
}

// NoteEvent is an abstracted performance event. Events are produced by the
// input layer and consumed read-only by the Synthesizer.
type NoteEvent struct {
	Kind EventKind
	Note int // MIDI note number, piano range 21..108

	Velocity        float64 // [0,1]
	ReleaseVelocity float64 // [0,1]

	// HammerVelocity overrides the velocity→hammer speed mapping when > 0 (m/s).
	HammerVelocity float64
	// StringExcitation scales the hammer→string force when > 0 (default 1,
	// at most 10).
	StringExcitation float64

	DamperPosition float64 // [0,1], 1 = damper fully lifted
	Sustain        bool
	Soft           bool
	Sostenuto      bool

	PitchBend float64 // [-1,1]
	Pressure  float64 // aftertouch pressure [0,1]

	PressTime   time.Duration
	ReleaseTime time.Duration
}
