// Package sampling implements the three pure sampling primitives the
// request planner is built on: weighted-discrete choice, CDF inversion, and
// Poisson inter-arrival draws.
package sampling

import (
	"math"
	"math/rand/v2"

	"incastgen/internal/cdfio"
)

// WeightedChoice returns one of values[i] with probability weights[i]/total,
// where total is the sum of weights. It is an O(n) inverse-transform draw:
// the lowest index whose prefix sum exceeds the uniform draw wins ties.
// total must equal the sum of weights; callers validate this once at
// config-load time rather than on every call.
func WeightedChoice(values, weights []int, total int, rng *rand.Rand) int {
	if total <= 0 || len(values) == 0 {
		return 0
	}
	draw := rng.IntN(total)
	running := 0
	for i, w := range weights {
		running += w
		if draw < running {
			return values[i]
		}
	}
	// Defensive fallback for a caller-supplied total that doesn't match the
	// true weight sum; return the last value rather than panic.
	return values[len(values)-1]
}

// Mean returns the CDF table's mean value, estimated as the trapezoidal
// average of each segment's midpoint weighted by its probability mass.
func Mean(t cdfio.Table) float64 {
	if len(t.Points) == 0 {
		return 0
	}
	prevValue, prevProb := 0.0, 0.0
	mean := 0.0
	for _, p := range t.Points {
		mass := p.Prob - prevProb
		mean += mass * (p.Value + prevValue) / 2
		prevValue, prevProb = p.Value, p.Prob
	}
	return mean
}

// CDFSample draws one value from the piecewise-linear CDF table via
// inverse-transform sampling.
func CDFSample(t cdfio.Table, rng *rand.Rand) float64 {
	if len(t.Points) == 0 {
		return 0
	}
	u := rng.Float64()
	prevValue, prevProb := 0.0, 0.0
	for _, p := range t.Points {
		if u <= p.Prob {
			if p.Prob == prevProb {
				return p.Value
			}
			frac := (u - prevProb) / (p.Prob - prevProb)
			return prevValue + frac*(p.Value-prevValue)
		}
		prevValue, prevProb = p.Value, p.Prob
	}
	return t.Points[len(t.Points)-1].Value
}

// PoissonIntervalUS returns an exponential inter-arrival sample in whole
// microseconds: -ln(U)/rate, U drawn uniformly from (0,1], rounded to the
// nearest positive integer microsecond (minimum 1).
func PoissonIntervalUS(ratePerUS float64, rng *rand.Rand) int64 {
	// 1-Float64() maps the half-open [0,1) draw to the half-open (0,1]
	// range the formula requires, so ln never sees 0.
	u := 1 - rng.Float64()
	us := -math.Log(u) / ratePerUS
	rounded := int64(math.Round(us))
	if rounded < 1 {
		return 1
	}
	return rounded
}
