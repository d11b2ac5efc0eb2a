package features

import (
	"math"
	"sort"
)

// FlatEpsilon treats a standard deviation this small as zero. Constant
// returns leave float rounding noise that would otherwise blow up ratios.
const FlatEpsilon = 1e-12

// Mean of xs; ok is false for an empty slice.
func Mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// SampleVariance uses the n-1 denominator and needs two observations.
func SampleVariance(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	m, _ := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1), true
}

// SampleStdDev is the square root of SampleVariance.
func SampleStdDev(xs []float64) (float64, bool) {
	v, ok := SampleVariance(xs)
	if !ok {
		return 0, false
	}
	return math.Sqrt(v), true
}

// Covariance is the sample covariance of equal-length series.
func Covariance(xs, ys []float64) (float64, bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	mx, _ := Mean(xs)
	my, _ := Mean(ys)
	s := 0.0
	for i := range xs {
		s += (xs[i] - mx) * (ys[i] - my)
	}
	return s / float64(len(xs)-1), true
}

// Correlation is Pearson's r; undefined when either side is flat.
func Correlation(xs, ys []float64) (float64, bool) {
	cov, ok := Covariance(xs, ys)
	if !ok {
		return 0, false
	}
	sx, _ := SampleStdDev(xs)
	sy, _ := SampleStdDev(ys)
	if sx <= FlatEpsilon || sy <= FlatEpsilon {
		return 0, false
	}
	r := cov / (sx * sy)
	// clamp rounding noise
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, true
}

// Percentile returns the p-th percentile (0..100) with linear interpolation
// between closest ranks.
func Percentile(xs []float64, p float64) (float64, bool) {
	if len(xs) == 0 || p < 0 || p > 100 {
		return 0, false
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if len(s) == 1 {
		return s[0], true
	}
	rank := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return s[lo], true
	}
	frac := rank - float64(lo)
	return s[lo] + (s[hi]-s[lo])*frac, true
}

// RealizedVolatility annualizes the sample standard deviation of returns.
func RealizedVolatility(returns []float64, periodsPerYear float64) (float64, bool) {
	sd, ok := SampleStdDev(returns)
	if !ok {
		return 0, false
	}
	return sd * math.Sqrt(periodsPerYear), true
}
