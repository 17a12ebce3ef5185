package rhythm

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRRIntervals(t *testing.T) {
	tests := []struct {
		name string
		bpm  []float64
		want []float64
	}{
		{name: "empty", bpm: nil, want: nil},
		{name: "single", bpm: []float64{70}, want: nil},
		{name: "two values", bpm: []float64{60, 120}, want: []float64{500}},
		{name: "constant", bpm: []float64{75, 75, 75}, want: []float64{0, 0}},
		{name: "non-positive pair skipped", bpm: []float64{60, 0, 120, 60}, want: []float64{500}},
		{name: "negative skipped", bpm: []float64{-60, 60, 120}, want: []float64{500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RRIntervals(tt.bpm)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d intervals, got %d (%v)", len(tt.want), len(got), got)
			}
			for i := range got {
				if !almostEqual(got[i], tt.want[i]) {
					t.Errorf("rr[%d]: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestMetrics_Constant(t *testing.T) {
	rr := RRIntervals([]float64{70, 70, 70, 70, 70, 70})

	if got := RMSSD(rr); got != 0 {
		t.Errorf("Expected RMSSD 0, got %v", got)
	}
	if got := SDNN(rr); got != 0 {
		t.Errorf("Expected SDNN 0, got %v", got)
	}
	if got := PNN50(rr); got != 0 {
		t.Errorf("Expected pNN50 0, got %v", got)
	}
}

func TestMetrics_KnownValues(t *testing.T) {
	rr := []float64{100, 160, 100, 130}

	// diffs: 60, 60, 30 -> sqrt((3600+3600+900)/3)
	if got, want := RMSSD(rr), math.Sqrt(2700); !almostEqual(got, want) {
		t.Errorf("RMSSD: expected %v, got %v", want, got)
	}
	// 2 из 3 разностей больше 50 мс
	if got, want := PNN50(rr), 200.0/3; !almostEqual(got, want) {
		t.Errorf("pNN50: expected %v, got %v", want, got)
	}
	// mean 122.5, ss = 506.25*2 + 1406.25 + 56.25
	if got, want := SDNN(rr), math.Sqrt(2475.0/3); !almostEqual(got, want) {
		t.Errorf("SDNN: expected %v, got %v", want, got)
	}
}

func TestMetrics_Degenerate(t *testing.T) {
	for _, rr := range [][]float64{nil, {42}} {
		if RMSSD(rr) != 0 || SDNN(rr) != 0 || PNN50(rr) != 0 {
			t.Errorf("Expected zero metrics for %v", rr)
		}
		sd1, sd2 := Poincare(rr)
		if sd1 != 0 || sd2 != 0 {
			t.Errorf("Expected zero Poincare for %v, got %v/%v", rr, sd1, sd2)
		}
	}
}

func TestMetrics_Bounds(t *testing.T) {
	series := [][]float64{
		{60, 62, 140, 61, 59, 90},
		{45, 180, 47, 175, 50, 170, 52},
		{72.5, 73.1, 71.8, 72.2},
		{100, 100, 0, 100, 101},
	}

	for _, bpm := range series {
		rr := RRIntervals(bpm)
		if len(rr) < 2 {
			continue
		}
		if got := RMSSD(rr); got < 0 {
			t.Errorf("RMSSD must be >= 0, got %v for %v", got, bpm)
		}
		if got := SDNN(rr); got < 0 {
			t.Errorf("SDNN must be >= 0, got %v for %v", got, bpm)
		}
		if got := PNN50(rr); got < 0 || got > 100 {
			t.Errorf("pNN50 must be within [0,100], got %v for %v", got, bpm)
		}
	}
}

func TestPoincare(t *testing.T) {
	rr := []float64{10, 20, 10, 20}

	// y-x: 10,-10,10 -> var 133.33; y+x: 30,30,30 -> var 0
	sd1, sd2 := Poincare(rr)
	if want := math.Sqrt(400.0 / 3 / 2); !almostEqual(sd1, want) {
		t.Errorf("SD1: expected %v, got %v", want, sd1)
	}
	if sd2 != 0 {
		t.Errorf("SD2: expected 0, got %v", sd2)
	}
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{
		2.675:   2.67, // двоичное 2.67499999...
		1.005:   1,
		14.2449: 14.24,
		0.125:   0.12,
		-3.456:  -3.46,
	}

	for in, want := range tests {
		if got := round2(in); got != want {
			t.Errorf("round2(%v): expected %v, got %v", in, want, got)
		}
	}
}

func TestComputeMetrics_Gates(t *testing.T) {
	if m := computeMetrics([]float64{1, 2}); m.computed {
		t.Error("Expected no metrics for 2 RR intervals")
	}

	rr := make([]float64, 20)
	for i := range rr {
		rr[i] = float64(i % 3 * 40)
	}
	m := computeMetrics(rr)
	if !m.computed {
		t.Fatal("Expected metrics for 20 RR intervals")
	}
	if m.poincare {
		t.Error("Expected no Poincare metrics for exactly 20 RR intervals")
	}

	m = computeMetrics(append(rr, 10))
	if !m.poincare {
		t.Error("Expected Poincare metrics for 21 RR intervals")
	}
}
