package services

import (
	"errors"
	"math"
	"slices"
)

// Trendline parameters used by the dashboard.
const (
	TrendFraction   = 0.3
	TrendIterations = 3
)

var errLowessInput = errors.New("lowess: x and y differ in length")

// Lowess fits a locally weighted linear regression (Cleveland's LOWESS)
// to points sorted by x and returns the fitted y for every point.
//
// frac is the share of points in each local window, iters the number of
// robustifying passes that down-weight outliers.
func Lowess(xs, ys []float64, frac float64, iters int) ([]float64, error) {
	n := len(xs)
	if n != len(ys) {
		return nil, errLowessInput
	}
	if n < 3 {
		return slices.Clone(ys), nil
	}

	k := int(frac*float64(n) + 1e-10)
	k = max(2, min(k, n))

	robust := make([]float64, n)
	for i := range robust {
		robust[i] = 1
	}
	fitted := make([]float64, n)
	weights := make([]float64, n)
	residuals := make([]float64, n)

	for pass := 0; pass <= iters; pass++ {
		left, right := 0, k-1
		for i := 0; i < n; i++ {
			for right < n-1 && xs[i]-xs[left] > xs[right+1]-xs[i] {
				left++
				right++
			}
			fitted[i] = localFit(xs, ys, robust, weights, i, left, right)
		}

		if pass == iters {
			break
		}
		for i := range residuals {
			residuals[i] = math.Abs(ys[i] - fitted[i])
		}
		s := median(residuals)
		if s == 0 {
			break
		}
		for i := range robust {
			robust[i] = bisquare(residuals[i] / (6 * s))
		}
	}
	return fitted, nil
}

func localFit(xs, ys, robust, w []float64, i, left, right int) float64 {
	x := xs[i]
	h := math.Max(x-xs[left], xs[right]-x)

	var sw float64
	for j := left; j <= right; j++ {
		wj := robust[j]
		if h > 0 {
			wj *= tricube(math.Abs(xs[j]-x) / h)
		}
		w[j] = wj
		sw += wj
	}
	if sw == 0 {
		return ys[i]
	}

	var xbar, ybar float64
	for j := left; j <= right; j++ {
		xbar += w[j] * xs[j]
		ybar += w[j] * ys[j]
	}
	xbar /= sw
	ybar /= sw

	var sxy, sxx float64
	for j := left; j <= right; j++ {
		dx := xs[j] - xbar
		sxy += w[j] * dx * (ys[j] - ybar)
		sxx += w[j] * dx * dx
	}
	if sxx < 1e-12*math.Max(1, xbar*xbar) {
		return ybar
	}
	return ybar + sxy/sxx*(x-xbar)
}

func tricube(u float64) float64 {
	if u >= 1 {
		return 0
	}
	t := 1 - u*u*u
	return t * t * t
}

func bisquare(u float64) float64 {
	if math.Abs(u) >= 1 {
		return 0
	}
	t := 1 - u*u
	return t * t
}

func median(v []float64) float64 {
	s := slices.Clone(v)
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}
