// Package peaks finds and scores peaks in a mass spectrum.
package peaks

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Peak is a peak of a mass spectrum
type Peak struct {
	Index     int     `json:"-"`
	Mass      float64 `json:"mass"`
	Intensity float64 `json:"intensity"`
	FWHMLow   float64 `json:"fwhm_low"`
	FWHMHigh  float64 `json:"fwhm_high"`
	Bad       bool    `json:"bad"`
	Score     float64 `json:"score"`
	Area      float64 `json:"area"`
	Centroid  float64 `json:"centroid"`
	// Centre of a Gaussian fitted to the apex, 0 when not fitted
	FitCenter float64 `json:"fit_center,omitempty"`
	// Average mass of a monoisotopic peak, 0 for other isotope modes
	AverageMass float64 `json:"average_mass,omitempty"`
	// Relative intensity of each charge state, in the order of the
	// searched charges
	Charges []float64 `json:"charges,omitempty"`
}

// FWHM returns the full width at half maximum
func (p *Peak) FWHM() float64 {
	return p.FWHMHigh - p.FWHMLow
}

// Detect returns the local maxima of y that are at least thresh times the
// largest value of y. A point is a local maximum when no point within
// ±window (in units of x) is higher; of equal values within the window
// the one with the lowest index is taken. x must be increasing.
func Detect(x, y []float64, window, thresh float64) []Peak {
	if len(y) == 0 {
		return nil
	}
	limit := floats.Max(y) * thresh
	var peaks []Peak
	for i, v := range y {
		if v <= 0 || v < limit {
			continue
		}
		lo := sort.SearchFloat64s(x, x[i]-window)
		hi := sort.Search(len(x), func(k int) bool { return x[k] > x[i]+window })
		apex := true
		for k := lo; k < hi && apex; k++ {
			if (k < i && y[k] >= v) || (k > i && y[k] > v) {
				apex = false
			}
		}
		if apex {
			peaks = append(peaks, Peak{Index: i, Mass: x[i], Intensity: v})
		}
	}
	return peaks
}
