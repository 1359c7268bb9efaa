// Package grid builds the (m/z x charge) search space of a deconvolution.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/nearest"
)

var (
	// ErrEmptySearchSpace means no (m/z, charge) cell is left to deconvolve
	ErrEmptySearchSpace = errors.New("grid: empty search space")
	// ErrInvalidSpectrum means the input arrays can't be used
	ErrInvalidSpectrum = errors.New("grid: invalid spectrum")
)

// Grid is the (m/z x charge) search space. Per-cell slices are flattened
// row-major, cell (i, j) is at i*NumZ+j.
type Grid struct {
	MZ        []float64 // m/z axis, strictly increasing
	Data      []float64 // measured intensity at each m/z
	Charges   []int
	Mass      []float64 // neutral mass implied by each cell
	Valid     []bool    // mass and charge within the configured limits
	NumZ      int
	NumValid  int
	Adduct    float64
	massRange [2]float64
}

// Index returns the flat index of cell (i, j)
func (g *Grid) Index(i, j int) int {
	return i*g.NumZ + j
}

// Index3D returns the flat index of element d of cell (r, c) in a buffer
// with ncols columns and nrows elements per cell
func Index3D(ncols, nrows, r, c, d int) int {
	return r*ncols*nrows + c*nrows + d
}

// Len is the number of m/z points
func (g *Grid) Len() int {
	return len(g.MZ)
}

// Cells is the number of cells
func (g *Grid) Cells() int {
	return len(g.MZ) * g.NumZ
}

// MassOf returns the neutral mass of an ion with m/z mz and charge z
func MassOf(mz float64, z int, adduct float64) float64 {
	return (mz - adduct) * float64(z)
}

// MzOf returns the m/z of neutral mass m at charge z
func MzOf(m float64, z int, adduct float64) float64 {
	return m/float64(z) + adduct
}

// MassRange returns the lowest and highest mass of the valid cells
func (g *Grid) MassRange() (float64, float64) {
	return g.massRange[0], g.massRange[1]
}

// CheckSpectrum verifies that mz and intensity form a usable spectrum
func CheckSpectrum(mz, intensity []float64) error {
	if len(mz) == 0 {
		return fmt.Errorf("%w: no data points", ErrInvalidSpectrum)
	}
	if len(mz) != len(intensity) {
		return fmt.Errorf("%w: %d m/z values but %d intensities",
			ErrInvalidSpectrum, len(mz), len(intensity))
	}
	for i := range mz {
		if math.IsNaN(mz[i]) || math.IsInf(mz[i], 0) || mz[i] <= 0 {
			return fmt.Errorf("%w: invalid m/z %v at index %d", ErrInvalidSpectrum, mz[i], i)
		}
		if i > 0 && mz[i] <= mz[i-1] {
			return fmt.Errorf("%w: m/z not increasing at index %d", ErrInvalidSpectrum, i)
		}
		if math.IsNaN(intensity[i]) || math.IsInf(intensity[i], 0) || intensity[i] < 0 {
			return fmt.Errorf("%w: invalid intensity %v at index %d",
				ErrInvalidSpectrum, intensity[i], i)
		}
	}
	return nil
}

// Crop returns the part of the spectrum with lo <= m/z <= hi.
// hi <= 0 means no upper limit. The returned slices share memory with
// the input.
func Crop(mz, intensity []float64, lo, hi float64) ([]float64, []float64) {
	start := 0
	for start < len(mz) && mz[start] < lo {
		start++
	}
	end := len(mz)
	if hi > 0 {
		for end > start && mz[end-1] > hi {
			end--
		}
	}
	return mz[start:end], intensity[start:end]
}

// NativeCharge is the typical charge of a natively sprayed ion of the
// given mass
func NativeCharge(mass float64) float64 {
	return 0.0467 * math.Pow(mass, 0.533)
}

// allowed reports whether a cell with mass m and charge z passes the mass
// bounds and the native charge limits
func allowed(cfg *config.Config, m float64, z int) bool {
	if m < cfg.MassLB || m > cfg.MassUB {
		return false
	}
	nc := NativeCharge(m)
	return float64(z) > nc+cfg.NativeZLB && float64(z) < nc+cfg.NativeZUB
}

// nearTestMass reports whether m lies within window of one of masses
func nearTestMass(m float64, masses []float64, window float64) bool {
	for _, t := range masses {
		if math.Abs(m-t) < window {
			return true
		}
	}
	return false
}

// testMassPoints returns, per charge index, the m/z indices nearest to
// the test masses
func testMassPoints(cfg *config.Config, mz []float64, charges []int) []map[int]bool {
	pts := make([]map[int]bool, len(charges))
	for j, z := range charges {
		pts[j] = map[int]bool{}
		for _, t := range cfg.TestMasses {
			pts[j][nearest.Index(mz, MzOf(t, z, cfg.AdductMass))] = true
		}
	}
	return pts
}

// New builds the grid for the given spectrum and charges. The input
// slices are not copied and must not be modified while the grid is in
// use. A cell is valid when its mass lies within [MassLB, MassUB], its
// charge within the native charge limits and, with a test mass list, it
// matches one of the test masses. ErrEmptySearchSpace is returned if no
// cell is valid.
func New(cfg *config.Config, mz, intensity []float64, charges []int) (*Grid, error) {
	if err := CheckSpectrum(mz, intensity); err != nil {
		return nil, err
	}
	if len(charges) == 0 {
		return nil, fmt.Errorf("%w: no charge states", config.ErrConfiguration)
	}
	g := &Grid{
		MZ:      mz,
		Data:    intensity,
		Charges: charges,
		NumZ:    len(charges),
		Adduct:  cfg.AdductMass,
	}
	n := g.Cells()
	g.Mass = make([]float64, n)
	g.Valid = make([]bool, n)
	g.massRange = [2]float64{math.Inf(1), math.Inf(-1)}
	var points []map[int]bool
	if len(cfg.TestMasses) > 0 && cfg.MassWindow == 0 {
		points = testMassPoints(cfg, mz, charges)
	}
	for i, x := range mz {
		for j, z := range charges {
			k := g.Index(i, j)
			m := MassOf(x, z, cfg.AdductMass)
			g.Mass[k] = m
			ok := allowed(cfg, m, z)
			switch {
			case !ok || len(cfg.TestMasses) == 0:
			case points != nil:
				ok = points[j][i]
			default:
				ok = nearTestMass(m, cfg.TestMasses, cfg.MassWindow)
			}
			if ok {
				g.Valid[k] = true
				g.NumValid++
				g.massRange[0] = math.Min(g.massRange[0], m)
				g.massRange[1] = math.Max(g.massRange[1], m)
			}
		}
	}
	if g.NumValid == 0 {
		return nil, fmt.Errorf("%w: no m/z and charge combination within mass range %g:%g and charge limits",
			ErrEmptySearchSpace, cfg.MassLB, cfg.MassUB)
	}
	return g, nil
}
