package preset

import (
	"testing"

	"github.com/cwbudde/algo-piano-fd/piano"
)

var _ piano.ParamSource = Values(nil)

func TestParseValuesFeedsParams(t *testing.T) {
	v, err := ParseValues([]string{"Sample_Rate=48000", " room_size = 0.8", "resonance_strength=oops", "body_ir_wav_path=ir/body.wav"})
	if err != nil {
		t.Fatalf("ParseValues: %v", err)
	}
	p := piano.ParamsFromSource(v)
	if p.SampleRate != 48000 {
		t.Fatalf("sample_rate = %d", p.SampleRate)
	}
	if p.RoomSize != 0.8 {
		t.Fatalf("room_size = %f", p.RoomSize)
	}
	if p.ResonanceStrength != piano.NewDefaultParams().ResonanceStrength {
		t.Fatalf("unparsable value should keep default, got %f", p.ResonanceStrength)
	}
	if p.BodyIRWavPath != "ir/body.wav" {
		t.Fatalf("body_ir_wav_path = %q", p.BodyIRWavPath)
	}
}

func TestParseValuesRejectsMalformedPairs(t *testing.T) {
	for _, bad := range []string{"novalue", "=1", "  =x"} {
		if _, err := ParseValues([]string{bad}); err == nil {
			t.Errorf("ParseValues(%q) expected error", bad)
		}
	}
}

func TestValuesTypedDefaults(t *testing.T) {
	v := Values{"flag": "true", "n": "7", "bad": "x"}
	if !v.Bool("flag", false) || v.Bool("bad", false) || !v.Bool("missing", true) {
		t.Fatal("Bool lookup mismatch")
	}
	if v.Int("n", 0) != 7 || v.Int("bad", 3) != 3 {
		t.Fatal("Int lookup mismatch")
	}
	if v.String("missing", "d") != "d" {
		t.Fatal("String default mismatch")
	}
}
