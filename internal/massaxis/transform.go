package massaxis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/grid"
	"github.com/524D/mzdecon/internal/nearest"
)

// Fewest points of a charge column for an Akima spline; shorter columns
// are interpolated piecewise linearly
const minAkimaPoints = 5

// columnMode resolves the transform of charge column j. In smart mode a
// column is interpolated when its median mass spacing is larger than the
// mass bin width.
func columnMode(cfg *config.Config, g *grid.Grid, j int) config.TransformMode {
	if cfg.Transform != config.Smart {
		return cfg.Transform
	}
	var steps []float64
	prev := math.NaN()
	for i := range g.MZ {
		c := g.Index(i, j)
		if !g.Valid[c] {
			continue
		}
		if !math.IsNaN(prev) {
			steps = append(steps, g.Mass[c]-prev)
		}
		prev = g.Mass[c]
	}
	if len(steps) == 0 {
		return config.Integrate
	}
	sort.Float64s(steps)
	if steps[len(steps)/2] > cfg.MassBins {
		return config.Interpolate
	}
	return config.Integrate
}

// integrate adds every valid cell of column j to the two mass bins around
// its mass, split linearly. Cells outside the axis are dropped.
func (a *Axis) integrate(g *grid.Grid, newBlur []float64, j int) {
	n := a.Len()
	first, last := a.Mass[0], a.Mass[n-1]
	for i := range g.MZ {
		c := g.Index(i, j)
		v := newBlur[c]
		if !g.Valid[c] || v == 0 {
			continue
		}
		m := g.Mass[c]
		if m < first || m > last {
			continue
		}
		k := nearest.Index(a.Mass, m)
		if m < a.Mass[k] {
			k--
		}
		if k == n-1 {
			a.Grid[k*a.NumZ+j] += v
			continue
		}
		f := (m - a.Mass[k]) / a.Bin
		a.Grid[k*a.NumZ+j] += v * (1 - f)
		a.Grid[(k+1)*a.NumZ+j] += v * f
	}
}

type fitPredictor interface {
	Fit(xs, ys []float64) error
	Predict(x float64) float64
}

// interpolate samples charge column j at the axis masses within the
// mass range of the column
func (a *Axis) interpolate(g *grid.Grid, newBlur []float64, j int) error {
	var xs, ys []float64
	for i := range g.MZ {
		c := g.Index(i, j)
		if g.Valid[c] {
			xs = append(xs, g.Mass[c])
			ys = append(ys, newBlur[c])
		}
	}
	if len(xs) < 2 {
		a.integrate(g, newBlur, j)
		return nil
	}
	var p fitPredictor = &interp.PiecewiseLinear{}
	if len(xs) >= minAkimaPoints {
		p = &interp.AkimaSpline{}
	}
	if err := p.Fit(xs, ys); err != nil {
		return fmt.Errorf("massaxis: interpolating charge %d: %w", a.Charges[j], err)
	}
	lo, hi := nearest.Window(a.Mass, xs[0], xs[len(xs)-1])
	for k := lo; k <= hi; k++ {
		m := a.Mass[k]
		if m < xs[0] || m > xs[len(xs)-1] {
			continue
		}
		// splines may overshoot below zero next to steep peaks
		a.Grid[k*a.NumZ+j] += math.Max(p.Predict(m), 0)
	}
	return nil
}
