package peaks

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzdecon/internal/config"
)

// ScoreInput holds the quantities a peak score is computed from
type ScoreInput struct {
	FWHM float64
	// Sum of squared fit residuals and sum of squared data of the
	// deconvolution the peak came from
	Residual  float64
	DataPower float64
	// Intensity of the peak per charge state, in charge order
	ChargeProfile []float64
}

// Score combines width, fit residual and charge ladder consistency into a
// value between 0 and 1. widthRef is the FWHM at which the width quality
// is one half. The score never decreases when the FWHM or the residual
// decreases.
func Score(in ScoreInput, w config.ScoreWeights, widthRef float64) float64 {
	width := 0.0
	if in.FWHM >= 0 && !math.IsNaN(in.FWHM) {
		width = 1 / (1 + in.FWHM/widthRef)
	}
	residual := 1.0
	if in.Residual > 0 {
		residual = 0
		if in.DataPower > 0 {
			residual = 1 / (1 + in.Residual/in.DataPower)
		}
	}
	ladder := LadderConsistency(in.ChargeProfile)
	return (w.Width*width + w.Residual*residual + w.Ladder*ladder) /
		(w.Width + w.Residual + w.Ladder)
}

// LadderConsistency returns the fraction of the intensity of profile that
// lies in the unbroken run of charge states around the most intense one
func LadderConsistency(profile []float64) float64 {
	if len(profile) == 0 {
		return 0
	}
	total := floats.Sum(profile)
	if total <= 0 {
		return 0
	}
	top := floats.MaxIdx(profile)
	run := profile[top]
	for k := top - 1; k >= 0 && profile[k] > 0; k-- {
		run += profile[k]
	}
	for k := top + 1; k < len(profile) && profile[k] > 0; k++ {
		run += profile[k]
	}
	return run / total
}
