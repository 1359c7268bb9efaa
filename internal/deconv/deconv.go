// Package deconv runs the complete charge deconvolution of a spectrum:
// grid construction, isotope envelopes, the iterative solver, projection
// onto the mass axis and peak detection.
package deconv

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/grid"
	"github.com/524D/mzdecon/internal/isotope"
	"github.com/524D/mzdecon/internal/massaxis"
	"github.com/524D/mzdecon/internal/nearest"
	"github.com/524D/mzdecon/internal/peaks"
	"github.com/524D/mzdecon/internal/solver"
)

// Errors returned by Run. Test with errors.Is.
var (
	ErrConfiguration      = config.ErrConfiguration
	ErrEmptySearchSpace   = grid.ErrEmptySearchSpace
	ErrInvalidSpectrum    = grid.ErrInvalidSpectrum
	ErrNumericInstability = solver.ErrNumericInstability
)

// Spectrum is the input of a deconvolution
type Spectrum struct {
	ID          string
	MZ          []float64
	Intensity   []float64
	PrecursorMZ float64 // 0 when unknown
}

// Result is the outcome of a deconvolution
type Result struct {
	ID         string
	Axis       *massaxis.Axis
	Peaks      []peaks.Peak
	Charges    []int
	MZ         []float64 // m/z values used, after cropping
	Data       []float64
	Fit        []float64 // simulated spectrum
	Error      float64   // sum of squared fit residuals
	RSquared   float64
	Iterations int
	Converged  bool
	// Sharpening rounds on the mass axis, 0 when disabled
	SharpenIterations int
}

// Engine deconvolves spectra with a fixed configuration. It holds no
// per-spectrum state and can be used from multiple goroutines.
type Engine struct {
	cfg *config.Config
	iso isotope.Service

	// Trace, when set, receives every solver iteration. It is called from
	// the goroutine that runs the deconvolution.
	Trace func(id string, it solver.Iteration)
}

// NewEngine validates cfg and returns an engine. iso supplies isotope
// distributions; when nil and isotopes are enabled, the averagine model
// with the default isotope table is used.
func NewEngine(cfg *config.Config, iso isotope.Service) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if iso == nil && cfg.Isotope != config.IsotopeOff {
		a, err := isotope.NewAveragine(isotope.DefaultTable())
		if err != nil {
			return nil, err
		}
		iso = a
	}
	return &Engine{cfg: cfg, iso: iso}, nil
}

// Config returns the configuration of the engine
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Run deconvolves one spectrum with the default isotope model
func Run(cfg *config.Config, s Spectrum) (*Result, error) {
	e, err := NewEngine(cfg, nil)
	if err != nil {
		return nil, err
	}
	return e.Run(s)
}

// crop restricts the spectrum to the configured m/z range and the
// precursor isolation window
func (e *Engine) crop(s Spectrum) ([]float64, []float64) {
	lo, hi := e.cfg.MzMin, e.cfg.MzMax
	if e.cfg.PrecursorWindow > 0 && s.PrecursorMZ > 0 {
		lo = math.Max(lo, s.PrecursorMZ-e.cfg.PrecursorWindow/2)
		top := s.PrecursorMZ + e.cfg.PrecursorWindow/2
		if hi <= 0 || top < hi {
			hi = top
		}
	}
	return grid.Crop(s.MZ, s.Intensity, lo, hi)
}

// Run deconvolves spectrum s
func (e *Engine) Run(s Spectrum) (*Result, error) {
	cfg := e.cfg
	if err := grid.CheckSpectrum(s.MZ, s.Intensity); err != nil {
		return nil, err
	}
	mz, intensity := e.crop(s)
	if len(mz) < 2 {
		return nil, fmt.Errorf("%w: %d data points in m/z range", ErrInvalidSpectrum, len(mz))
	}
	charges, err := cfg.Charges(s.PrecursorMZ)
	if err != nil {
		return nil, err
	}
	g, err := grid.New(cfg, mz, intensity, charges)
	if err != nil {
		return nil, err
	}
	env := isotope.Build(g, e.iso, cfg.Isotope)

	sv, err := solver.New(cfg, g, env)
	if err != nil {
		return nil, err
	}
	if e.Trace != nil {
		sv.Trace = func(it solver.Iteration) { e.Trace(s.ID, it) }
	}
	sr, err := sv.Run()
	if err != nil {
		return nil, err
	}

	lo, hi := massaxis.Bounds(cfg, g, sr.NewBlur, cfg.PeakShapeThreshold(cfg.PeakShapeInflate))
	axis, err := massaxis.Project(cfg, g, sr.NewBlur, lo, hi)
	if err != nil {
		return nil, err
	}
	r := &Result{
		ID:         s.ID,
		Axis:       axis,
		Charges:    charges,
		MZ:         mz,
		Data:       intensity,
		Fit:        sr.Fit,
		Error:      sr.Error,
		RSquared:   sr.RSquared,
		Iterations: sr.Iterations,
		Converged:  sr.Converged,
	}
	if cfg.SharpenFWHM > 0 {
		r.SharpenIterations = axis.Sharpen(cfg.SharpenFWHM, massaxis.SharpenIterations)
	}
	r.Peaks = e.findPeaks(axis, sr.Error, floats.Dot(intensity, intensity))
	return r, nil
}

// findPeaks detects, measures and scores the peaks of the mass axis
func (e *Engine) findPeaks(axis *massaxis.Axis, residual, power float64) []peaks.Peak {
	cfg := e.cfg
	pk := peaks.Detect(axis.Mass, axis.Intensity, cfg.PeakWindow, cfg.PeakThresh)
	peaks.FWHM(axis.Mass, axis.Intensity, pk)
	peaks.Extract(axis.Mass, axis.Intensity, pk, cfg.ExtractWindow, cfg.FitPeaks)
	for n := range pk {
		p := &pk[n]
		lo, hi := nearest.Window(axis.Mass, p.FWHMLow, p.FWHMHigh)
		prof := axis.ChargeProfile(lo, hi)
		p.Score = peaks.Score(peaks.ScoreInput{
			FWHM:          p.FWHM(),
			Residual:      residual,
			DataPower:     power,
			ChargeProfile: prof,
		}, cfg.ScoreWeights, cfg.ScoreWidthRef)
		if sum := floats.Sum(prof); sum > 0 {
			floats.Scale(1/sum, prof)
		}
		p.Charges = prof
		if cfg.Isotope == config.IsotopeMono {
			p.AverageMass = isotope.MonoToAverage(e.iso, p.Mass)
		}
	}
	peaks.Normalize(pk, cfg.PeakNorm)
	return pk
}
