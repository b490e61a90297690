package wavio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rec.wav")
	rec, err := NewRecorder(path, 22050, 2)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	const frames = 1000
	buf := make([]float32, 2*100)
	for block := 0; block < frames/100; block++ {
		for i := 0; i < 100; i++ {
			n := block*100 + i
			v := float32(0.5 * math.Sin(2*math.Pi*440*float64(n)/22050))
			buf[2*i] = v
			buf[2*i+1] = -v
		}
		if err := rec.Record(buf); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if got := rec.Frames(); got != frames {
		t.Fatalf("Frames() = %d, want %d", got, frames)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := rec.Record(buf); err != ErrClosed {
		t.Fatalf("Record after Close = %v, want ErrClosed", err)
	}

	chans, sr, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if sr != 22050 || len(chans) != 2 || len(chans[0]) != frames {
		t.Fatalf("unexpected format: sr=%d ch=%d frames=%d", sr, len(chans), len(chans[0]))
	}
	mono, _, err := ReadWAVMono(path)
	if err != nil {
		t.Fatalf("ReadWAVMono: %v", err)
	}
	for i, v := range mono {
		if math.Abs(v) > 1e-3 {
			t.Fatalf("mono[%d] = %f, want ~0 for opposite-phase channels", i, v)
		}
	}
}

func TestReadWAVMissingFile(t *testing.T) {
	if _, _, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResampleIfNeededIdentity(t *testing.T) {
	in := []float64{1, 2, 3}
	out, err := ResampleIfNeeded(in, 48000, 48000)
	if err != nil {
		t.Fatal(err)
	}
	if &out[0] != &in[0] {
		t.Fatal("expected identity resample to return input slice")
	}
}
