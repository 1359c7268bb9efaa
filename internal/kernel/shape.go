// Package kernel builds the peak shape convolution kernels and the
// closeness kernel that couples neighbouring charge states and masses.
package kernel

import (
	"math"

	"github.com/524D/mzdecon/internal/config"
)

// Ratio between the FWHM and the standard deviation of a Gaussian
const fwhmSigma = 2.35482

// Eval returns the value of peak shape f with full width at half maximum
// fwhm, at distance d from its centre. The height at the centre is one.
func Eval(f config.ShapeFunc, d, fwhm float64) float64 {
	switch f {
	case config.Lorentzian:
		return lorentzian(d, fwhm)
	case config.SplitGL:
		if d < 0 {
			return gaussian(d, fwhm)
		}
		return lorentzian(d, fwhm)
	default:
		return gaussian(d, fwhm)
	}
}

func gaussian(d, fwhm float64) float64 {
	s := fwhm / fwhmSigma
	return math.Exp(-d * d / (2 * s * s))
}

func lorentzian(d, fwhm float64) float64 {
	h := fwhm / 2
	return h * h / (d*d + h*h)
}
