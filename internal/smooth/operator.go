// Package smooth implements the priors that the solver applies to the
// amplitude grid after every Richardson-Lucy update: smoothing along
// charge and mass ladders, soft arg-max over charge and point smoothing
// along m/z.
package smooth

import (
	"math"
	"sort"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/grid"
	"github.com/524D/mzdecon/internal/kernel"
	"github.com/524D/mzdecon/internal/nearest"
)

// Operator smooths the amplitude grid over the neighbours of every active
// cell. The neighbours of active cell n are nbr[start[n]:start[n+1]], with
// weights that sum to one. A cell is always its own neighbour, so a cell
// without other active neighbours is left unchanged.
type Operator struct {
	mode    config.SmoothMode
	zeroLog float64
	cells   []int
	start   []int
	nbr     []int
	zoff    []int
	moff    []int
	w       []float64
}

// Build constructs the smoothing operator for grid g. Only cells with
// active set are smoothed or used as neighbours.
func Build(cfg *config.Config, g *grid.Grid, active []bool, close kernel.Closeness) *Operator {
	op := &Operator{
		mode:    cfg.ResolveSmoothing(),
		zeroLog: cfg.ZeroLog,
		start:   []int{0},
	}
	tol := 2 * math.Abs(cfg.MzSig)
	for i := range g.MZ {
		for j := range g.Charges {
			c := g.Index(i, j)
			if !active[c] {
				continue
			}
			first := len(op.nbr)
			for k, wk := range close.Weights {
				jj := j + close.ChargeOffsets[k]
				if jj < 0 || jj >= g.NumZ {
					continue
				}
				dz, dm := close.ChargeOffsets[k], close.MassOffsets[k]
				nb, s := c, 1.0
				if dz != 0 || dm != 0 {
					m := g.Mass[c] + float64(dm)*cfg.MassStep
					target := grid.MzOf(m, g.Charges[jj], g.Adduct)
					ii := nearest.Index(g.MZ, target)
					d := target - g.MZ[ii]
					if math.Abs(d) > tol || !active[g.Index(ii, jj)] {
						continue
					}
					nb = g.Index(ii, jj)
					s = kernel.Eval(cfg.Shape, d, cfg.MzSig)
				}
				if wk*s <= 0 {
					continue
				}
				op.nbr = append(op.nbr, nb)
				op.zoff = append(op.zoff, dz)
				op.moff = append(op.moff, dm)
				op.w = append(op.w, wk*s)
			}
			if len(op.nbr) == first {
				// The closeness kernel always has a centre element, but
				// guard against a kernel without one.
				op.nbr = append(op.nbr, c)
				op.zoff = append(op.zoff, 0)
				op.moff = append(op.moff, 0)
				op.w = append(op.w, 1)
			}
			sum := 0.0
			for _, w := range op.w[first:] {
				sum += w
			}
			for k := first; k < len(op.w); k++ {
				op.w[k] /= sum
			}
			op.cells = append(op.cells, c)
			op.start = append(op.start, len(op.nbr))
		}
	}
	return op
}

// Mode returns the resolved smoothing mode
func (op *Operator) Mode() config.SmoothMode {
	return op.mode
}

// Neighbours returns the neighbour cells and weights of active cell c, or
// nil if c is not active
func (op *Operator) Neighbours(c int) ([]int, []float64) {
	n := sort.SearchInts(op.cells, c)
	if n == len(op.cells) || op.cells[n] != c {
		return nil, nil
	}
	return op.nbr[op.start[n]:op.start[n+1]], op.w[op.start[n]:op.start[n+1]]
}

// Apply writes the smoothed version of src into dst. Inactive cells are
// copied unchanged.
func (op *Operator) Apply(dst, src []float64) {
	copy(dst, src)
	for n, c := range op.cells {
		lo, hi := op.start[n], op.start[n+1]
		switch op.mode {
		case config.SmoothSum:
			dst[c] = op.arithmetic(src, lo, hi)
		case config.SmoothHybrid1:
			dst[c] = op.hybrid(src, lo, hi, op.zoff)
		case config.SmoothHybrid2:
			dst[c] = op.hybrid(src, lo, hi, op.moff)
		default:
			dst[c] = op.geometric(src, lo, hi)
		}
	}
}

// logOf returns log(v), or the configured floor for v <= 0
func (op *Operator) logOf(v float64) float64 {
	if v <= 0 {
		return op.zeroLog
	}
	return math.Log(v)
}

func (op *Operator) arithmetic(src []float64, lo, hi int) float64 {
	sum := 0.0
	for k := lo; k < hi; k++ {
		sum += op.w[k] * src[op.nbr[k]]
	}
	return sum
}

// geometric returns the weighted geometric mean, or 0 if no neighbour is
// positive
func (op *Operator) geometric(src []float64, lo, hi int) float64 {
	sum := 0.0
	positive := false
	for k := lo; k < hi; k++ {
		v := src[op.nbr[k]]
		positive = positive || v > 0
		sum += op.w[k] * op.logOf(v)
	}
	if !positive {
		return 0
	}
	return math.Exp(sum)
}

// hybrid takes the arithmetic mean within groups of neighbours with the
// same offset in group, and the geometric mean over the groups
func (op *Operator) hybrid(src []float64, lo, hi int, group []int) float64 {
	logSum := 0.0
	positive := false
	for k := lo; k < hi; k++ {
		seen := false
		for p := lo; p < k; p++ {
			if group[p] == group[k] {
				seen = true
				break
			}
		}
		if seen {
			continue
		}
		w, s := 0.0, 0.0
		for p := k; p < hi; p++ {
			if group[p] == group[k] {
				w += op.w[p]
				s += op.w[p] * src[op.nbr[p]]
			}
		}
		mean := s / w
		positive = positive || mean > 0
		logSum += w * op.logOf(mean)
	}
	if !positive {
		return 0
	}
	return math.Exp(logSum)
}
