package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-piano-fd/piano"
)

var pitchClass = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// parseNote accepts a MIDI number ("60") or a scientific pitch name
// ("C4", "F#3", "Bb0"). C4 is MIDI 60.
func parseNote(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty note")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		n, err = parseNoteName(s)
		if err != nil {
			return 0, err
		}
	}
	if n < piano.LowestNote || n > piano.HighestNote {
		return 0, fmt.Errorf("note %q outside piano range %d..%d", s, piano.LowestNote, piano.HighestNote)
	}
	return n, nil
}

func parseNoteName(s string) (int, error) {
	pc, ok := pitchClass[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note %q", s)
	}
	rest := s[1:]
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			pc++
		} else {
			pc--
		}
		rest = rest[1:]
	}
	oct, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in note %q", s)
	}
	return 12*(oct+1) + pc, nil
}

// parseNotes splits a comma separated note list.
func parseNotes(s string) ([]int, error) {
	var notes []int
	for _, f := range strings.Split(s, ",") {
		if strings.TrimSpace(f) == "" {
			continue
		}
		n, err := parseNote(f)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("no notes given")
	}
	return notes, nil
}

// parseWorkers accepts a positive integer or "auto" (returned as 0).
func parseWorkers(raw string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return 0, fmt.Errorf("empty value (use integer >= 1 or 'auto')")
	}
	if v == "auto" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q (use integer >= 1 or 'auto')", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%d (must be >= 1 or 'auto')", n)
	}
	return n, nil
}

// midiVelocity maps 1..127 onto (0,1].
func midiVelocity(v int) (float64, error) {
	if v < 1 || v > 127 {
		return 0, fmt.Errorf("velocity %d outside 1..127", v)
	}
	return float64(v) / 127, nil
}
