package piano

import (
	"fmt"
	"testing"
)

func BenchmarkGenerateAudioBuffer(b *testing.B) {
	cases := []struct {
		name  string
		notes []int
	}{
		{"single", []int{60}},
		{"triad", []int{60, 64, 67}},
		{"low8", []int{21, 24, 27, 30, 33, 36, 39, 42}},
		{"wide16", []int{28, 33, 40, 45, 48, 52, 55, 60, 64, 67, 72, 76, 79, 84, 88, 96}},
	}
	for _, tc := range cases {
		b.Run(fmt.Sprintf("%s_%d", tc.name, len(tc.notes)), func(b *testing.B) {
			s, err := NewSynthesizer(NewDefaultParams())
			if err != nil {
				b.Fatal(err)
			}
			s.ProcessEvent(NoteEvent{Kind: PedalChange, Sustain: true})
			for _, n := range tc.notes {
				s.ProcessEvent(NoteEvent{Kind: NoteOn, Note: n, Velocity: 0.8})
			}
			buf := make([]float32, 2*512)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s.GenerateAudioBuffer(buf)
			}
		})
	}
}
