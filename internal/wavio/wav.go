// Package wavio reads and writes the WAV files used for impulse responses,
// reference recordings and rendered output.
package wavio

import (
	"fmt"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// ReadWAV decodes path into per-channel float32 slices.
func ReadWAV(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("invalid wav buffer: %s", path)
	}
	if buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("invalid wav sample-rate: %d", buf.Format.SampleRate)
	}
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	if frames == 0 {
		return nil, 0, fmt.Errorf("empty wav data: %s", path)
	}
	out := make([][]float32, ch)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			out[c][i] = buf.Data[i*ch+c]
		}
	}
	return out, buf.Format.SampleRate, nil
}

// ReadWAVMono decodes path and averages all channels.
func ReadWAVMono(path string) ([]float64, int, error) {
	chans, sr, err := ReadWAV(path)
	if err != nil {
		return nil, 0, err
	}
	frames := len(chans[0])
	out := make([]float64, frames)
	for _, ch := range chans {
		for i, v := range ch {
			out[i] += float64(v)
		}
	}
	inv := 1.0 / float64(len(chans))
	for i := range out {
		out[i] *= inv
	}
	return out, sr, nil
}

// ResampleIfNeeded converts in from fromRate to toRate.
func ResampleIfNeeded(in []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, fmt.Errorf("resample %d->%d: %w", fromRate, toRate, err)
	}
	return r.Process(in), nil
}

// Resample32 is ResampleIfNeeded for float32 data.
func Resample32(in []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return in, nil
	}
	in64 := make([]float64, len(in))
	for i, v := range in {
		in64[i] = float64(v)
	}
	out64, err := ResampleIfNeeded(in64, fromRate, toRate)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(out64))
	for i, v := range out64 {
		out[i] = float32(v)
	}
	return out, nil
}

// WriteWAV writes interleaved float samples as 16-bit PCM.
func WriteWAV(path string, samples []float32, sampleRate, channels int) error {
	rec, err := NewRecorder(path, sampleRate, channels)
	if err != nil {
		return err
	}
	if err := rec.Record(samples); err != nil {
		_ = rec.Close()
		return err
	}
	return rec.Close()
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

func float32Buffer(data []float32, sampleRate, channels int) *audio.Float32Buffer {
	return &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}
