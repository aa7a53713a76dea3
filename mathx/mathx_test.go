package mathx_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/amcc/golab/mathx"
)

func ExampleRoundUp125() {
	fmt.Println(mathx.RoundUp125(1.2e-6), mathx.RoundUp125(4.7), mathx.RoundUp125(0.02), mathx.RoundUp125(7))
	// Output: 2e-06 5 0.02 10
}

func TestRoundUp125IsIdempotent(t *testing.T) {
	for exp := -9; exp <= 3; exp++ {
		for _, m := range []float64{1, 2, 5} {
			x := m * math.Pow(10, float64(exp))
			if got := mathx.RoundUp125(x); math.Abs(got-x) > x*1e-12 {
				t.Errorf("%g rounded to %g", x, got)
			}
		}
	}
}

func TestRound(t *testing.T) {
	if got := mathx.Round(1550.04, 0.1); math.Abs(got-1550.0) > 1e-9 {
		t.Errorf("got %v", got)
	}
}

func TestLinspace(t *testing.T) {
	got := mathx.Linspace(0, 1, 5)
	want := []float64{0, .25, .5, .75, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v wanted %v", got, want)
			break
		}
	}
}

func TestInterp(t *testing.T) {
	xs := []float64{0, 1, 2}
	ys := []float64{0, 10, 0}
	cases := map[float64]float64{-1: 0, 0.5: 5, 1: 10, 1.25: 7.5, 3: 0}
	for x, want := range cases {
		if got := mathx.Interp(x, xs, ys); math.Abs(got-want) > 1e-12 {
			t.Errorf("Interp(%v) = %v, wanted %v", x, got, want)
		}
	}
}
