package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// EstimateBaseline returns a baseline under data: the running minimum over
// ±width points, smoothed by a running mean of the same width
func EstimateBaseline(data []float64, width int) []float64 {
	n := len(data)
	low := make([]float64, n)
	for i := range data {
		lo, hi := max(0, i-width), min(n, i+width+1)
		low[i] = floats.Min(data[lo:hi])
	}
	out := make([]float64, n)
	meanFilter(out, low, width)
	return out
}

// meanFilter sets dst[i] to the mean of src over ±width points
func meanFilter(dst, src []float64, width int) {
	n := len(src)
	for i := range src {
		lo, hi := max(0, i-width), min(n, i+width+1)
		dst[i] = floats.Sum(src[lo:hi]) / float64(hi-lo)
	}
}

// subtractBaseline estimates the baseline when enabled. In aggressive mode
// the baseline becomes part of the model, otherwise it is subtracted from
// the working data.
func (s *Solver) subtractBaseline() {
	if !s.cfg.Baseline {
		return
	}
	copy(s.baseline, EstimateBaseline(s.g.Data, s.cfg.BaselineWidth))
	if s.cfg.BaselineAggressive {
		return
	}
	for i, d := range s.g.Data {
		s.data[i] = math.Max(d-s.baseline[i], 0)
	}
}

// updateBaseline applies the current data/model ratio to the baseline
// and smooths it again
func (s *Solver) updateBaseline() {
	for i := range s.baseline {
		s.baseline[i] *= s.ratio[i]
	}
	copy(s.conv, s.baseline)
	meanFilter(s.baseline, s.conv, s.cfg.BaselineWidth)
}
