package isotope

import (
	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/grid"
	"github.com/524D/mzdecon/internal/nearest"
)

// Envelopes holds, for every grid cell, the m/z indices and relative
// intensities of its isotope cluster. Element k of cell (i, j) is at
// grid.Index3D(NumZ, Length, i, j, k). Unused elements have Pos -1 and
// Val 0.
type Envelopes struct {
	Length int
	NumZ   int
	Pos    []int
	Val    []float64
}

// Cell returns the positions and values of flat cell c
func (e *Envelopes) Cell(c int) ([]int, []float64) {
	k := c * e.Length
	return e.Pos[k : k+e.Length], e.Val[k : k+e.Length]
}

func newEnvelopes(g *grid.Grid, length int) *Envelopes {
	e := &Envelopes{
		Length: length,
		NumZ:   g.NumZ,
		Pos:    make([]int, g.Cells()*length),
		Val:    make([]float64, g.Cells()*length),
	}
	for k := range e.Pos {
		e.Pos[k] = -1
	}
	return e
}

// Identity returns single-peak envelopes: every cell maps onto its own
// m/z index with weight one
func Identity(g *grid.Grid) *Envelopes {
	e := newEnvelopes(g, 1)
	for i := 0; i < g.Len(); i++ {
		for j := 0; j < g.NumZ; j++ {
			c := g.Index(i, j)
			if g.Valid[c] {
				e.Pos[c] = i
				e.Val[c] = 1
			}
		}
	}
	return e
}

// Build maps the isotope distributions of all valid cells of g onto the
// m/z axis. With mode IsotopeMono the cell mass is the monoisotopic mass,
// with IsotopeAverage it is the average mass. IsotopeOff gives Identity.
func Build(g *grid.Grid, svc Service, mode config.IsotopeMode) *Envelopes {
	if mode == config.IsotopeOff {
		return Identity(g)
	}
	length := 1
	for c, ok := range g.Valid {
		if ok {
			length = max(length, svc.Distribution(g.Mass[c]).Len())
		}
	}
	e := newEnvelopes(g, length)
	mzLo, mzHi := g.MZ[0], g.MZ[g.Len()-1]
	for i, mz := range g.MZ {
		for j, z := range g.Charges {
			c := g.Index(i, j)
			if !g.Valid[c] {
				continue
			}
			d := svc.Distribution(g.Mass[c])
			shift := 0.0
			if mode == config.IsotopeAverage {
				shift = d.Mean()
			}
			pos, val := e.Cell(c)
			tot := 0.0
			n := 0
			for k, off := range d.Offsets {
				x := mz + (off-shift)/float64(z)
				if x < mzLo || x > mzHi || d.Abundances[k] <= 0 {
					continue
				}
				pos[n] = nearest.Index(g.MZ, x)
				val[n] = d.Abundances[k]
				tot += val[n]
				n++
			}
			if tot == 0 {
				pos[0], val[0] = i, 1
				continue
			}
			for k := 0; k < n; k++ {
				val[k] /= tot
			}
		}
	}
	return e
}
