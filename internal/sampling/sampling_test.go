package sampling

import (
	"math"
	"math/rand/v2"
	"testing"

	"incastgen/internal/cdfio"
)

func TestWeightedChoice_Distribution(t *testing.T) {
	values := []int{1, 4, 8}
	weights := []int{50, 30, 20}
	total := 100
	rng := rand.New(rand.NewPCG(1, 2))

	counts := map[int]int{}
	const n = 20000
	for i := 0; i < n; i++ {
		counts[WeightedChoice(values, weights, total, rng)]++
	}

	for i, v := range values {
		want := float64(weights[i]) / float64(total)
		got := float64(counts[v]) / float64(n)
		if math.Abs(got-want) > 0.03 {
			t.Errorf("value %d: empirical fraction %.3f, want ~%.3f", v, got, want)
		}
	}
}

func TestWeightedChoice_TieBreakLowestIndex(t *testing.T) {
	// With a total of 1 the draw is always 0, and every prefix sum (1, 1, 1)
	// exceeds it, so the first value (lowest such index) must always win.
	values := []int{10, 20, 30}
	weights := []int{1, 0, 0}
	rng := rand.New(rand.NewPCG(0, 0))
	// Draw many times; every draw less than the first weight must return
	// values[0].
	for i := 0; i < 100; i++ {
		if got := WeightedChoice(values, weights, 1, rng); got != 10 {
			t.Fatalf("draw %d: got %d, want 10 (lowest index)", i, got)
		}
	}
}

func TestWeightedChoice_SingleValue(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 100; i++ {
		if got := WeightedChoice([]int{7}, []int{100}, 100, rng); got != 7 {
			t.Fatalf("expected 7, got %d", got)
		}
	}
}

func TestMean_Uniform(t *testing.T) {
	tbl := cdfio.Table{Points: []cdfio.Point{{Value: 1000, Prob: 1.0}}}
	if got := Mean(tbl); got != 500 {
		t.Errorf("Mean = %v, want 500 (trapezoid from 0 to 1000)", got)
	}
}

func TestMean_Constant(t *testing.T) {
	// A table with a single point at (value, prob=1) starting effectively
	// at value itself approximates a constant distribution only when the
	// segment has zero width; test the documented trapezoidal behavior
	// instead via two coincident-value points.
	tbl := cdfio.Table{Points: []cdfio.Point{
		{Value: 10000, Prob: 0.0001},
		{Value: 10000, Prob: 1.0},
	}}
	got := Mean(tbl)
	if math.Abs(got-10000) > 1 {
		t.Errorf("Mean = %v, want ~10000", got)
	}
}

func TestCDFSample_Bounds(t *testing.T) {
	tbl := cdfio.Table{Points: []cdfio.Point{
		{Value: 500, Prob: 0.1},
		{Value: 1500, Prob: 0.4},
		{Value: 10000, Prob: 1.0},
	}}
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 1000; i++ {
		v := CDFSample(tbl, rng)
		if v < 0 || v > 10000 {
			t.Fatalf("sample %v out of range [0, 10000]", v)
		}
	}
}

func TestCDFSample_ConvergesToMean(t *testing.T) {
	tbl := cdfio.Table{Points: []cdfio.Point{
		{Value: 1000, Prob: 1.0},
	}}
	rng := rand.New(rand.NewPCG(5, 6))
	sum := 0.0
	const n = 20000
	for i := 0; i < n; i++ {
		sum += CDFSample(tbl, rng)
	}
	got := sum / n
	want := Mean(tbl)
	if math.Abs(got-want) > 25 {
		t.Errorf("empirical mean %.1f too far from Mean() %.1f", got, want)
	}
}

func TestPoissonIntervalUS_PositiveAndConverges(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	const rate = 1.0 / 800.0 // mean interval 800us
	sum := int64(0)
	const n = 50000
	for i := 0; i < n; i++ {
		v := PoissonIntervalUS(rate, rng)
		if v < 1 {
			t.Fatalf("interval must be >= 1us, got %d", v)
		}
		sum += v
	}
	mean := float64(sum) / n
	if math.Abs(mean-800) > 40 {
		t.Errorf("empirical mean interval %.1fus, want ~800us", mean)
	}
}
