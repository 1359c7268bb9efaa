// Package isotope computes isotope distributions and maps them onto the
// (m/z x charge) grid as isotope envelopes.
package isotope

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Spacing is the mass difference between neighbouring aggregated
// isotope peaks
const Spacing = 1.0026

// Peaks below this fraction of the most abundant peak are dropped
const defaultPrune = 1e-6

// Distribution is an aggregated isotope distribution. Offsets are masses
// relative to the monoisotopic mass, Abundances sum to one.
type Distribution struct {
	Offsets    []float64
	Abundances []float64
}

// Len returns the number of isotope peaks
func (d Distribution) Len() int {
	return len(d.Offsets)
}

// Mean returns the abundance weighted mean offset
func (d Distribution) Mean() float64 {
	return floats.Dot(d.Offsets, d.Abundances)
}

// Service supplies the isotope distribution of a molecule with a given
// monoisotopic mass. Implementations must be safe for concurrent use.
type Service interface {
	Distribution(mass float64) Distribution
}

// poly is a distribution over nominal mass offsets start, start+1, ...
type poly struct {
	start int
	p     []float64
}

func convolve(a, b poly) poly {
	out := make([]float64, len(a.p)+len(b.p)-1)
	for i, x := range a.p {
		if x == 0 {
			continue
		}
		for j, y := range b.p {
			out[i+j] += x * y
		}
	}
	return poly{start: a.start + b.start, p: out}
}

// trim removes leading and trailing entries below prune times the maximum
func trim(a poly, prune float64) poly {
	limit := floats.Max(a.p) * prune
	lo, hi := 0, len(a.p)
	for lo < hi-1 && a.p[lo] < limit {
		lo++
	}
	for hi > lo+1 && a.p[hi-1] < limit {
		hi--
	}
	return poly{start: a.start + lo, p: a.p[lo:hi]}
}

// power returns a^n by repeated squaring
func power(a poly, n int, prune float64) poly {
	result := poly{p: []float64{1}}
	base := a
	for n > 0 {
		if n&1 == 1 {
			result = trim(convolve(result, base), prune)
		}
		n >>= 1
		if n > 0 {
			base = trim(convolve(base, base), prune)
		}
	}
	return result
}

// nominal bins the isotopes of an element by their nominal mass offset
// from the lightest isotope
func nominal(isotopes []Isotope) poly {
	var p []float64
	for _, iso := range isotopes {
		k := int(math.Round(iso.Mass - isotopes[0].Mass))
		for len(p) <= k {
			p = append(p, 0)
		}
		p[k] += iso.Abundance
	}
	floats.Scale(1/floats.Sum(p), p)
	return poly{p: p}
}

// Averagine computes distributions of averagine molecules from an isotope
// table. Results are cached per 1 Da mass bucket.
type Averagine struct {
	elements []poly
	counts   []float64
	prune    float64

	mu    sync.RWMutex
	cache map[int]Distribution
}

// NewAveragine returns an averagine Service using the abundances in t
func NewAveragine(t Table) (*Averagine, error) {
	a := &Averagine{
		prune: defaultPrune,
		cache: make(map[int]Distribution),
	}
	for _, el := range averagine {
		isotopes, ok := t[el.symbol]
		if !ok || len(isotopes) == 0 {
			return nil, fmt.Errorf("isotope: element %s missing from table", el.symbol)
		}
		a.elements = append(a.elements, nominal(isotopes))
		a.counts = append(a.counts, el.count)
	}
	return a, nil
}

// Distribution implements Service
func (a *Averagine) Distribution(mass float64) Distribution {
	key := int(math.Round(mass))
	a.mu.RLock()
	d, ok := a.cache[key]
	a.mu.RUnlock()
	if ok {
		return d
	}
	d = a.compute(float64(key))
	a.mu.Lock()
	a.cache[key] = d
	a.mu.Unlock()
	return d
}

func (a *Averagine) compute(mass float64) Distribution {
	units := math.Max(mass, 0) / averagineMass
	total := poly{p: []float64{1}}
	for k, el := range a.elements {
		n := int(math.Round(a.counts[k] * units))
		if n > 0 {
			total = trim(convolve(total, power(el, n, a.prune)), a.prune)
		}
	}
	d := Distribution{
		Offsets:    make([]float64, len(total.p)),
		Abundances: make([]float64, len(total.p)),
	}
	copy(d.Abundances, total.p)
	floats.Scale(1/floats.Sum(d.Abundances), d.Abundances)
	for i := range d.Offsets {
		d.Offsets[i] = float64(total.start+i) * Spacing
	}
	return d
}

// MonoToAverage converts a monoisotopic mass into the average mass of
// the molecule according to svc
func MonoToAverage(svc Service, mass float64) float64 {
	return mass + svc.Distribution(mass).Mean()
}
