package peaks

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/nearest"
)

// ErrFit means the peak could not be fitted
var ErrFit = errors.New("peaks: fit failed")

// Area returns the trapezoid integral of y over [center-window,
// center+window]
func Area(x, y []float64, center, window float64) float64 {
	lo, hi := nearest.Window(x, center-window, center+window)
	area := 0.0
	for k := lo; k < hi; k++ {
		area += (y[k] + y[k+1]) / 2 * (x[k+1] - x[k])
	}
	return area
}

// Centroid returns the intensity weighted mean of x over [lo, hi], or
// the middle of the range when y is zero there
func Centroid(x, y []float64, lo, hi float64) float64 {
	a, b := nearest.Window(x, lo, hi)
	sum := floats.Sum(y[a : b+1])
	if sum <= 0 {
		return (lo + hi) / 2
	}
	return floats.Dot(x[a:b+1], y[a:b+1]) / sum
}

// FitGaussian fits a Gaussian to the points of y within [lo, hi] and
// returns its centre and FWHM
func FitGaussian(x, y []float64, lo, hi float64) (float64, float64, error) {
	a, b := nearest.Window(x, lo, hi)
	if b-a < 2 {
		return 0, 0, ErrFit
	}
	xs, ys := x[a:b+1], y[a:b+1]
	top := floats.MaxIdx(ys)
	width := math.Max((hi-lo)/2.35482, xs[1]-xs[0])

	// p[2] is the log of the standard deviation to keep it positive
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			s := math.Exp(p[2])
			sum := 0.0
			for k, xv := range xs {
				d := (xv - p[1]) / s
				r := ys[k] - p[0]*math.Exp(-d*d/2)
				sum += r * r
			}
			return sum
		},
	}
	res, err := optimize.Minimize(problem, []float64{ys[top], xs[top], math.Log(width)}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, errors.Join(ErrFit, err)
	}
	center, fwhm := res.X[1], math.Exp(res.X[2])*2.35482
	if math.IsNaN(center) || center < xs[0] || center > xs[len(xs)-1] {
		return 0, 0, ErrFit
	}
	return center, fwhm, nil
}

// Extract sets the area and centroid of every peak, and the fitted centre
// when fit is set. Peaks that can't be fitted keep a zero FitCenter.
func Extract(x, y []float64, peaks []Peak, window float64, fit bool) {
	for n := range peaks {
		p := &peaks[n]
		p.Area = Area(x, y, p.Mass, window)
		p.Centroid = Centroid(x, y, p.FWHMLow, p.FWHMHigh)
		if fit {
			if c, _, err := FitGaussian(x, y, p.FWHMLow-p.FWHM()/2, p.FWHMHigh+p.FWHM()/2); err == nil {
				p.FitCenter = c
			}
		}
	}
}

// Normalize scales the intensities and areas of peaks: with NormMax the
// most intense peak becomes 100, with NormSum the intensities add up to
// 100
func Normalize(peaks []Peak, mode config.PeakNorm) {
	var ref float64
	for _, p := range peaks {
		switch mode {
		case config.NormMax:
			ref = math.Max(ref, p.Intensity)
		case config.NormSum:
			ref += p.Intensity
		}
	}
	if ref <= 0 {
		return
	}
	f := 100 / ref
	for n := range peaks {
		peaks[n].Intensity *= f
		peaks[n].Area *= f
	}
}
