// Package midiin turns MIDI channel messages into piano events.
package midiin

import (
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cwbudde/algo-piano-fd/piano"
)

// Controller numbers handled by the converter.
const (
	ccSustain   = 64
	ccSostenuto = 66
	ccSoft      = 67
	ccAllNotes  = 123
)

// Omni makes a Converter accept every channel.
const Omni = -1

// Converter tracks pedal state across messages so every PedalChange event
// carries the full pedal set.
type Converter struct {
	// Channel filters messages to one MIDI channel (0..15), or Omni.
	Channel int

	damper    float64
	sostenuto bool
	soft      bool
	held      [128]bool
}

// NewConverter returns a converter listening on channel.
func NewConverter(channel int) *Converter {
	return &Converter{Channel: channel}
}

// Convert appends the events described by msg to dst. Messages that carry
// nothing for the piano append nothing.
func (c *Converter) Convert(msg midi.Message, at time.Duration, dst []piano.NoteEvent) []piano.NoteEvent {
	var ch, key, vel, cc, val, pressure uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		if !c.accepts(ch) {
			return dst
		}
		c.held[key] = true
		return append(dst, piano.NoteEvent{
			Kind:      piano.NoteOn,
			Note:      int(key),
			Velocity:  float64(vel) / 127.0,
			PressTime: at,
		})

	case msg.GetNoteOff(&ch, &key, &vel):
		if !c.accepts(ch) {
			return dst
		}
		return c.release(dst, key, vel, at)

	case msg.GetNoteEnd(&ch, &key):
		// Note-on with zero velocity.
		if !c.accepts(ch) {
			return dst
		}
		return c.release(dst, key, 64, at)

	case msg.GetControlChange(&ch, &cc, &val):
		if !c.accepts(ch) {
			return dst
		}
		switch cc {
		case ccSustain:
			c.damper = float64(val) / 127.0
		case ccSostenuto:
			c.sostenuto = val >= 64
		case ccSoft:
			c.soft = val >= 64
		case ccAllNotes:
			for k := range c.held {
				if c.held[k] {
					dst = c.release(dst, uint8(k), 64, at)
				}
			}
			return dst
		default:
			return dst
		}
		return append(dst, c.pedalEvent())

	case msg.GetPitchBend(&ch, &rel, &abs):
		if !c.accepts(ch) {
			return dst
		}
		bend := float64(rel) / 8192.0
		if rel > 0 {
			bend = float64(rel) / 8191.0
		}
		return append(dst, piano.NoteEvent{Kind: piano.PitchBend, PitchBend: bend})

	case msg.GetAfterTouch(&ch, &pressure):
		if !c.accepts(ch) {
			return dst
		}
		return append(dst, piano.NoteEvent{Kind: piano.Aftertouch, Pressure: float64(pressure) / 127.0})

	case msg.GetPolyAfterTouch(&ch, &key, &pressure):
		if !c.accepts(ch) {
			return dst
		}
		return append(dst, piano.NoteEvent{
			Kind:     piano.Aftertouch,
			Note:     int(key),
			Pressure: float64(pressure) / 127.0,
		})
	}
	return dst
}

// Pedals returns the current damper position and sostenuto and soft pedal
// states.
func (c *Converter) Pedals() (damper float64, sostenuto, soft bool) {
	return c.damper, c.sostenuto, c.soft
}

// Reset forgets held notes and pedal state.
func (c *Converter) Reset() {
	ch := c.Channel
	*c = Converter{Channel: ch}
}

func (c *Converter) accepts(ch uint8) bool {
	return c.Channel == Omni || int(ch) == c.Channel
}

func (c *Converter) release(dst []piano.NoteEvent, key, vel uint8, at time.Duration) []piano.NoteEvent {
	c.held[key] = false
	return append(dst, piano.NoteEvent{
		Kind:            piano.NoteOff,
		Note:            int(key),
		ReleaseVelocity: float64(vel) / 127.0,
		ReleaseTime:     at,
	})
}

func (c *Converter) pedalEvent() piano.NoteEvent {
	return piano.NoteEvent{
		Kind:           piano.PedalChange,
		DamperPosition: c.damper,
		Sustain:        c.damper >= 0.5,
		Sostenuto:      c.sostenuto,
		Soft:           c.soft,
	}
}
