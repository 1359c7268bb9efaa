package kernel

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Closeness is the kernel that couples a grid cell to the cells of
// neighbouring charge states and masses. Element k couples to the cell
// ChargeOffsets[k] charge columns away whose mass differs by
// MassOffsets[k] mass steps. The weights sum to one.
type Closeness struct {
	MassOffsets   []int
	ChargeOffsets []int
	Weights       []float64
}

// Len returns the number of elements
func (c Closeness) Len() int {
	return len(c.Weights)
}

// profileLength returns the length of a closeness profile. Non-negative
// widths are used as a half length; when any width is negative both
// profiles extend to three standard deviations.
func profileLength(sig float64, anyNegative bool) int {
	if anyNegative {
		return 1 + 2*int(3*math.Abs(sig)+0.5)
	}
	return 1 + 2*int(sig)
}

// profile returns a normalized Gaussian profile of n points with standard
// deviation sig, flat when sig is zero
func profile(n int, sig float64) []float64 {
	p := make([]float64, n)
	mid := float64(n-1) / 2
	for i := range p {
		if sig == 0 {
			p[i] = 1
			continue
		}
		d := float64(i) - mid
		p[i] = math.Exp(-d * d / (2 * sig * sig))
	}
	floats.Scale(1/floats.Sum(p), p)
	return p
}

// NewCloseness builds the closeness kernel for charge width zsig and mass
// width msig. A negative width selects sum smoothing in the automatic
// smoothing mode; only its magnitude is used here. Without a mass step
// (massStep == 0) there are no mass neighbours.
func NewCloseness(zsig, msig, massStep float64) Closeness {
	neg := zsig < 0 || msig < 0
	zlen := profileLength(zsig, neg)
	mlen := profileLength(msig, neg)
	if massStep == 0 {
		mlen = 1
	}
	zp := profile(zlen, math.Abs(zsig))
	mp := profile(mlen, math.Abs(msig))

	c := Closeness{
		MassOffsets:   make([]int, 0, zlen*mlen),
		ChargeOffsets: make([]int, 0, zlen*mlen),
		Weights:       make([]float64, 0, zlen*mlen),
	}
	for zi := range zlen {
		for mi := range mlen {
			c.ChargeOffsets = append(c.ChargeOffsets, zi-(zlen-1)/2)
			c.MassOffsets = append(c.MassOffsets, mi-(mlen-1)/2)
			c.Weights = append(c.Weights, zp[zi]*mp[mi])
		}
	}
	floats.Scale(1/floats.Sum(c.Weights), c.Weights)
	return c
}
