package tuning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/cwbudde/algo-piano-fd/analysis"
	"github.com/cwbudde/algo-piano-fd/piano"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKnobNormalizationRoundTrip(t *testing.T) {
	for _, k := range []Knob{DampingKnob(), StiffnessKnob()} {
		for _, v := range []float64{k.Min, k.Max, math.Sqrt(k.Min * k.Max)} {
			got := k.value(k.normalized(v))
			if math.Abs(got-v) > 1e-9*math.Max(1, v) {
				t.Fatalf("%s: value(normalized(%g)) = %g", k.Name, v, got)
			}
		}
		if x := k.normalized(math.NaN()); x != 0.5 {
			t.Fatalf("%s: normalized(NaN) = %g, want 0.5", k.Name, x)
		}
		if x := k.normalized(k.Max * 10); x != 1 {
			t.Fatalf("%s: normalized above range = %g, want 1", k.Name, x)
		}
	}
}

func TestRenderLengthAndLevel(t *testing.T) {
	p := piano.NewDefaultParams()
	mono, err := Render(p, 69, 0.8, 0.25)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := int(0.25 * float64(p.SampleRate)); len(mono) != want {
		t.Fatalf("len = %d, want %d", len(mono), want)
	}
	if analysis.Peak(mono) == 0 {
		t.Fatal("render is silent")
	}
}

func TestHigherDampingShortensDecay(t *testing.T) {
	measure := func(damping float64) float64 {
		p := piano.NewDefaultParams()
		p.PerNote[72] = &piano.NoteParams{Damping: damping}
		mono, err := Render(p, 72, 0.8, 1.0)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		return analysis.T60(mono, p.SampleRate)
	}
	slow := measure(2)
	fast := measure(10)
	if !(fast < slow) {
		t.Fatalf("T60 with damping 10 = %g, with damping 2 = %g; want shorter", fast, slow)
	}
}

func TestFitDampingReachesTargetDecay(t *testing.T) {
	if testing.Short() {
		t.Skip("renders dozens of candidates")
	}
	const target = 1.0
	res, err := Fit(context.Background(), Config{
		Note:     72,
		Target:   Target{T60: target},
		MaxEvals: 16,
		Seed:     3,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Evals > 16 {
		t.Fatalf("evals = %d, budget 16", res.Evals)
	}
	if miss := math.Abs(math.Log(res.T60 / target)); miss > math.Log(1.35) {
		t.Fatalf("fitted T60 = %.3f s, target %.3f s", res.T60, target)
	}
	np := res.Params.PerNote[72]
	if np == nil || np.Damping <= 0 {
		t.Fatalf("fitted params carry no damping for note 72: %+v", np)
	}
	if np.Damping != res.Values["damping"] {
		t.Fatalf("Values[damping] = %g, params damping = %g", res.Values["damping"], np.Damping)
	}
}

func TestFitAgainstReference(t *testing.T) {
	if testing.Short() {
		t.Skip("renders candidates")
	}
	p := piano.NewDefaultParams()
	p.PerNote[67] = &piano.NoteParams{Damping: 4}
	ref, err := Render(p, 67, 0.8, 0.6)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	res, err := Fit(context.Background(), Config{
		Note:     67,
		Target:   Target{Reference: ref},
		MaxEvals: 8,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Score < 0 || res.Score > 1 {
		t.Fatalf("score = %g, want in [0,1]", res.Score)
	}
}

func TestFitValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"no target", Config{Note: 60}, ErrNoTarget},
		{"bad sample rate", Config{Note: 60, Target: Target{T60: 1}, Base: &piano.Params{}}, piano.ErrInvalidSampleRate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Fit(context.Background(), tc.cfg); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if _, err := Fit(context.Background(), Config{Note: 12, Target: Target{T60: 1}}); err == nil {
		t.Fatal("expected error for note below the keyboard")
	}
}

func TestFitCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FitDamping(ctx, nil, 60, 2.0, 10); err == nil {
		t.Fatal("expected error from cancelled fit")
	}
}
