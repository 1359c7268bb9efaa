// Package massaxis projects the deconvolved (m/z x charge) grid onto an
// evenly spaced neutral mass axis.
package massaxis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/grid"
)

// Cells below this fraction of the largest amplitude don't extend the
// mass axis
const boundsCutoff = 1e-5

// Largest number of mass bins that Project allocates
const maxAxisLen = 50000000

// Axis is a mass spectrum. Grid holds the contribution of every charge
// state, mass bin k and charge column j at k*NumZ+j.
type Axis struct {
	Mass      []float64
	Intensity []float64
	Grid      []float64
	Charges   []int
	NumZ      int
	Bin       float64
}

// Len returns the number of mass bins
func (a *Axis) Len() int {
	return len(a.Mass)
}

// Total returns the summed intensity
func (a *Axis) Total() float64 {
	return floats.Sum(a.Intensity)
}

// ChargeProfile returns the intensity of every charge state in mass bins
// lo to hi inclusive
func (a *Axis) ChargeProfile(lo, hi int) []float64 {
	p := make([]float64, a.NumZ)
	for k := max(lo, 0); k <= min(hi, a.Len()-1); k++ {
		for j := range p {
			p[j] += a.Grid[k*a.NumZ+j]
		}
	}
	return p
}

// Bounds returns the mass range that covers all cells of newBlur with a
// significant amplitude, extended by the peak shape width threshold (in
// m/z) at the cell's charge, rounded outward to MassBins and clamped to
// [MassLB, MassUB]. The configured bounds are returned for a fixed axis
// and when the range would be less than one bin.
func Bounds(cfg *config.Config, g *grid.Grid, newBlur []float64, threshold float64) (float64, float64) {
	if cfg.FixedMassAxis || len(newBlur) == 0 {
		return cfg.MassLB, cfg.MassUB
	}
	limit := floats.Max(newBlur) * boundsCutoff
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range g.MZ {
		for j, z := range g.Charges {
			c := g.Index(i, j)
			if !g.Valid[c] || newBlur[c] <= limit {
				continue
			}
			m := g.Mass[c]
			lo = math.Min(lo, m-threshold*float64(z))
			hi = math.Max(hi, m+threshold*float64(z)+cfg.MassBins)
		}
	}
	if math.IsInf(lo, 0) {
		return cfg.MassLB, cfg.MassUB
	}
	lo = math.Max(math.Floor(lo/cfg.MassBins)*cfg.MassBins, cfg.MassLB)
	hi = math.Min(math.Ceil(hi/cfg.MassBins)*cfg.MassBins, cfg.MassUB)
	if (hi-lo)/cfg.MassBins < 1 {
		return cfg.MassLB, cfg.MassUB
	}
	return lo, hi
}

// binSteps returns the number of whole bins in width. A quotient within
// rounding error of an integer counts as that integer.
func binSteps(width, bin float64) int {
	q := width / bin
	if r := math.Round(q); math.Abs(q-r) < 1e-6 {
		return int(r)
	}
	return int(q)
}

// newAxis allocates an axis from lo to hi with the configured bin width
func newAxis(cfg *config.Config, charges []int, lo, hi float64) (*Axis, error) {
	n := 1 + binSteps(hi-lo, cfg.MassBins)
	if n > maxAxisLen {
		return nil, fmt.Errorf("%w: mass axis %g:%g with bin %g needs %d bins",
			config.ErrConfiguration, lo, hi, cfg.MassBins, n)
	}
	a := &Axis{
		Mass:      make([]float64, n),
		Intensity: make([]float64, n),
		Grid:      make([]float64, n*len(charges)),
		Charges:   charges,
		NumZ:      len(charges),
		Bin:       cfg.MassBins,
	}
	for k := range a.Mass {
		a.Mass[k] = lo + float64(k)*cfg.MassBins
	}
	return a, nil
}

// Project builds the mass axis from lo to hi and transfers the valid cells
// of newBlur to it with the configured transform
func Project(cfg *config.Config, g *grid.Grid, newBlur []float64, lo, hi float64) (*Axis, error) {
	a, err := newAxis(cfg, g.Charges, lo, hi)
	if err != nil {
		return nil, err
	}
	for j := range g.Charges {
		if columnMode(cfg, g, j) == config.Interpolate {
			if err := a.interpolate(g, newBlur, j); err != nil {
				return nil, err
			}
			continue
		}
		a.integrate(g, newBlur, j)
	}
	for k := range a.Intensity {
		a.Intensity[k] = floats.Sum(a.Grid[k*a.NumZ : (k+1)*a.NumZ])
	}
	return a, nil
}
