// Package mathx holds the small numerical helpers the drivers share
package mathx

import (
	"math"
	"strconv"
	"strings"
)

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
func Round(x, unit float64) float64 {
	return math.Round(x/unit) * unit
}

// RoundUp125 rounds x up to the nearest 1, 2 or 5 times a power of ten,
// e.g. 1.2e-6 => 2e-6 and 4.7 => 5.  Zero and negative numbers are returned unchanged.
func RoundUp125(x float64) float64 {
	if x <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	// the decimal rendering gives an exact mantissa and exponent, where
	// log10 and pow would leave float noise in the result
	str := strconv.FormatFloat(x, 'e', 9, 64)
	idx := strings.IndexByte(str, 'e')
	m, _ := strconv.ParseFloat(str[:idx], 64)
	exp, _ := strconv.Atoi(str[idx+1:])
	digit := 1
	switch {
	case m <= 1:
	case m <= 2:
		digit = 2
	case m <= 5:
		digit = 5
	default:
		exp++
	}
	out, _ := strconv.ParseFloat(strconv.Itoa(digit)+"e"+strconv.Itoa(exp), 64)
	return out
}

// Linspace returns n evenly spaced points from start to stop, inclusive
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Interp linearly interpolates the samples ys, taken at the ascending
// positions xs, at x.  x outside of xs is clamped to the end values.
func Interp(x float64, xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if xs[mid] <= x {
			lo = mid
		} else {
			hi = mid
		}
	}
	frac := (x - xs[lo]) / (xs[hi] - xs[lo])
	return ys[lo] + frac*(ys[hi]-ys[lo])
}

// MaxAbs returns the largest magnitude in s
func MaxAbs(s []float64) float64 {
	var m float64
	for _, v := range s {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}
