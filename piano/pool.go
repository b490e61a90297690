package piano

import "fmt"

const noSlot = -1

// VoicePool is a fixed arena of voices with a note→slot index. It never
// grows: when every slot is busy the oldest voice is stolen.
type VoicePool struct {
	voices   []Voice
	noteSlot [128]int
	steals   uint64
}

// NewVoicePool allocates maxVoices voices up front.
func NewVoicePool(maxVoices, sampleRate int) (*VoicePool, error) {
	if maxVoices < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVoiceCount, maxVoices)
	}
	p := &VoicePool{voices: make([]Voice, maxVoices)}
	for i := range p.voices {
		if err := p.voices[i].init(sampleRate); err != nil {
			return nil, err
		}
	}
	for i := range p.noteSlot {
		p.noteSlot[i] = noSlot
	}
	return p, nil
}

// Cap returns the fixed pool size.
func (p *VoicePool) Cap() int { return len(p.voices) }

// Voice returns the voice in slot i.
func (p *VoicePool) Voice(i int) *Voice { return &p.voices[i] }

// Steals returns how many voices have been stolen since creation.
func (p *VoicePool) Steals() uint64 { return p.steals }

// ActiveCount returns the number of bound voices.
func (p *VoicePool) ActiveCount() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].active {
			n++
		}
	}
	return n
}

// AllocateVoice returns the voice for note: the voice already bound to it,
// else an idle voice, else the active voice with the greatest age. When a
// voice is taken from another note, stolen holds that note; otherwise it is
// -1. The returned voice is bound to note but not yet started.
func (p *VoicePool) AllocateVoice(note int) (v *Voice, stolen int) {
	if note < 0 || note > 127 {
		return nil, noSlot
	}
	if slot := p.noteSlot[note]; slot != noSlot {
		return &p.voices[slot], noSlot
	}

	slot := noSlot
	for i := range p.voices {
		if !p.voices[i].active {
			slot = i
			break
		}
	}
	stolen = noSlot
	if slot == noSlot {
		oldest := -1.0
		for i := range p.voices {
			if a := p.voices[i].age; a > oldest {
				oldest = a
				slot = i
			}
		}
		stolen = p.voices[slot].note
		p.steals++
	}

	v = &p.voices[slot]
	if old := v.note; old >= 0 && old < len(p.noteSlot) && p.noteSlot[old] == slot {
		p.noteSlot[old] = noSlot
	}
	if stolen != noSlot {
		v.reset()
	}
	v.note = note
	p.noteSlot[note] = slot
	return v, stolen
}

// Lookup returns the voice bound to note, or nil.
func (p *VoicePool) Lookup(note int) *Voice {
	if note < 0 || note > 127 {
		return nil
	}
	if slot := p.noteSlot[note]; slot != noSlot {
		return &p.voices[slot]
	}
	return nil
}

// Release unbinds v from its note and returns it to idle.
func (p *VoicePool) Release(v *Voice) {
	if v == nil {
		return
	}
	if n := v.note; n >= 0 && n < len(p.noteSlot) {
		if slot := p.noteSlot[n]; slot != noSlot && &p.voices[slot] == v {
			p.noteSlot[n] = noSlot
		}
	}
	v.reset()
}

// Reclaim ends the buffer for every bound voice and releases those that
// fell silent. onRelease, if non-nil, is called with each released note.
func (p *VoicePool) Reclaim(onRelease func(note int)) int {
	n := 0
	for i := range p.voices {
		v := &p.voices[i]
		if v.note < 0 || p.noteSlot[v.note] != i {
			continue
		}
		if !v.endBuffer() {
			continue
		}
		note := v.note
		p.Release(v)
		if onRelease != nil {
			onRelease(note)
		}
		n++
	}
	return n
}

// Reset returns every voice to idle.
func (p *VoicePool) Reset() {
	for i := range p.voices {
		p.voices[i].reset()
	}
	for i := range p.noteSlot {
		p.noteSlot[i] = noSlot
	}
}
