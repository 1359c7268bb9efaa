package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzdecon/internal/kernel"
	"github.com/524D/mzdecon/internal/smooth"
)

// column returns the first flat cell and the stride of charge column j,
// or of all cells when j < 0
func (s *Solver) column(j int) (int, int) {
	if j < 0 {
		return 0, 1
	}
	return j, s.g.NumZ
}

// spread adds the isotope envelopes of the cells of charge column j (all
// columns when j < 0) into delta, which is cleared first
func (s *Solver) spread(delta, blur []float64, j int) {
	clear(delta)
	first, step := s.column(j)
	for c := first; c < len(blur); c += step {
		v := blur[c]
		if v == 0 {
			continue
		}
		pos, val := s.env.Cell(c)
		for k, p := range pos {
			if p >= 0 {
				delta[p] += v * val[k]
			}
		}
	}
}

// simulate writes the spectrum generated by blur through peak shape ps
// into dst
func (s *Solver) simulate(dst, blur []float64, ps kernel.PeakShape) {
	if !ps.ChargeAware() {
		s.spread(s.delta, blur, -1)
		ps.Convolve(dst, s.delta, 0)
		return
	}
	clear(dst)
	for j := range s.g.NumZ {
		s.spread(s.delta, blur, j)
		ps.Convolve(s.conv, s.delta, j)
		for k, v := range s.conv {
			dst[k] += v
		}
	}
}

// correct multiplies every cell of charge column j (all columns when
// j < 0) by the correlated ratio at its isotope peaks
func (s *Solver) correct(j int) {
	first, step := s.column(j)
	for c := first; c < len(s.blur); c += step {
		v := s.blur[c]
		if v == 0 {
			continue
		}
		pos, val := s.env.Cell(c)
		f := 0.0
		for k, p := range pos {
			if p >= 0 {
				f += val[k] * s.back[p]
			}
		}
		s.blur[c] = v * f
	}
}

// iterate runs one round: Richardson-Lucy update followed by the
// smoothing priors
func (s *Solver) iterate() (*Iteration, error) {
	copy(s.prev, s.blur)
	s.simulate(s.sim, s.blur, s.shape)
	aggressive := s.cfg.Baseline && s.cfg.BaselineAggressive

	var residual float64
	for k, d := range s.data {
		model := s.sim[k]
		if aggressive {
			model += s.baseline[k]
		}
		s.noise[k] = d - model
		residual += s.noise[k] * s.noise[k]
		s.ratio[k] = 0
		if model > 0 {
			s.ratio[k] = d / model
		}
		if math.IsNaN(s.ratio[k]) || math.IsInf(s.ratio[k], 0) {
			return nil, fmt.Errorf("%w: ratio %v at m/z index %d in iteration %d",
				ErrNumericInstability, s.ratio[k], k, s.it)
		}
	}

	if s.shape.ChargeAware() {
		for j := range s.g.NumZ {
			s.shape.Correlate(s.back, s.ratio, j)
			s.correct(j)
		}
	} else {
		s.shape.Correlate(s.back, s.ratio, 0)
		s.correct(-1)
	}
	for c, v := range s.blur {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: amplitude %v in cell %d in iteration %d",
				ErrNumericInstability, v, c, s.it)
		}
	}

	smooth.SoftArgMax(s.blur, s.g.NumZ, s.cfg.Beta)
	smooth.PointSmooth(s.blur, s.active, s.g.NumZ, int(s.cfg.PSig))
	s.op.Apply(s.tmp, s.blur)
	s.blur, s.tmp = s.tmp, s.blur

	if aggressive {
		s.updateBaseline()
	}

	var diff, norm float64
	for c, v := range s.blur {
		d := v - s.prev[c]
		diff += d * d
		norm += v * v
	}
	change := 0.0
	if norm > 0 {
		change = diff / norm
	}
	if s.cfg.ConvergenceTol > 0 && change < s.cfg.ConvergenceTol {
		s.calm++
		s.converged = s.calm >= calmRounds
	} else {
		s.calm = 0
	}

	it := &Iteration{
		Index:    s.it,
		Blur:     s.blur,
		Sim:      s.sim,
		Baseline: s.baseline,
		Noise:    s.noise,
		NoiseStd: stat.StdDev(s.noise, nil),
		Residual: residual,
		Change:   change,
	}
	s.it++
	return it, nil
}
