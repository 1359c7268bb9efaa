// Package config holds the parameters of the charge deconvolution engine.
// A Config is filled once (defaults, configuration file, command line),
// validated, and from then on shared read-only by every component.
package config

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfiguration means a parameter is out of range. It is never
// recovered from: the call that received the configuration fails.
var ErrConfiguration = errors.New("config: invalid configuration")

// ProtonMass is the default adduct mass
const ProtonMass = float64(1.007276467)

// Highest charge considered when the charge range is derived from the
// precursor
const maxAutoCharge = 100

// Config contains all tunable parameters of a deconvolution run
type Config struct {
	// Input m/z range; MzMax == 0 means no upper limit
	MzMin float64 `yaml:"mzmin"`
	MzMax float64 `yaml:"mzmax"`
	// Width of the isolation window around the precursor, 0 keeps all data
	PrecursorWindow float64 `yaml:"precursor_window"`

	ChargeMin int `yaml:"startz"`
	// ChargeMax == 0 derives the highest charge from the precursor m/z
	ChargeMax  int     `yaml:"endz"`
	AdductMass float64 `yaml:"adductmass"`

	MassLB        float64 `yaml:"masslb"`
	MassUB        float64 `yaml:"massub"`
	MassBins      float64 `yaml:"massbins"`
	FixedMassAxis bool    `yaml:"fixedmassaxis"`
	// Allowed charges relative to the native charge of a mass
	NativeZLB float64 `yaml:"nativezlb"`
	NativeZUB float64 `yaml:"nativezub"`
	// When set, only masses close to one of TestMasses are searched:
	// within MassWindow Da, or with MassWindow 0 only the m/z point
	// nearest to each test mass at every charge
	TestMasses []float64 `yaml:"testmasses,omitempty"`
	MassWindow float64   `yaml:"mtabsig"`

	NumIt int `yaml:"numit"`
	// Early exit when the change metric stays below this value twice
	// in a row; 0 always runs NumIt iterations
	ConvergenceTol float64    `yaml:"convergence"`
	ZSig           float64    `yaml:"zsig"`
	MSig           float64    `yaml:"msig"`
	PSig           float64    `yaml:"psig"`
	Beta           float64    `yaml:"beta"`
	MassStep       float64    `yaml:"molig"` // mass difference between smoothed neighbours
	Smoothing      SmoothMode `yaml:"smoothing"`
	ZeroLog        float64    `yaml:"zerolog"`

	MzSig            float64   `yaml:"mzsig"` // peak FWHM in m/z
	PeakShapeInflate float64   `yaml:"psinflate"`
	Shape            ShapeFunc `yaml:"psfun"`
	Speedy           bool      `yaml:"linflag"` // 1-D peak shape, needs evenly spaced data
	// Peak width at charge z is MzSig*z^-ChargeShapeExponent (2-D shape only)
	ChargeShapeExponent float64 `yaml:"zexponent"`
	PSThresh            float64 `yaml:"psthresh"`
	IntThresh           float64 `yaml:"intthresh"`

	Isotope            IsotopeMode `yaml:"isotopemode"`
	Baseline           bool        `yaml:"baselineflag"`
	BaselineAggressive bool        `yaml:"aggressive"`
	BaselineWidth      int         `yaml:"filterwidth"`

	Transform   TransformMode `yaml:"poolflag"`
	SharpenFWHM float64       `yaml:"doubledec"` // 0 disables mass spectrum sharpening

	PeakWindow    float64      `yaml:"peakwindow"`
	PeakThresh    float64      `yaml:"peakthresh"`
	PeakNorm      PeakNorm     `yaml:"peaknorm"`
	ExtractWindow float64      `yaml:"exwindow"`
	FitPeaks      bool         `yaml:"fitpeaks"`
	ScoreWeights  ScoreWeights `yaml:"score_weights"`
	ScoreWidthRef float64      `yaml:"score_width"`
}

// ScoreWeights are the relative weights of the peak score components
type ScoreWeights struct {
	Width    float64 `yaml:"width"`
	Residual float64 `yaml:"residual"`
	Ladder   float64 `yaml:"ladder"`
}

// Defaults returns a configuration with the default parameter values
func Defaults() *Config {
	return &Config{
		ChargeMin:        1,
		ChargeMax:        50,
		AdductMass:       ProtonMass,
		MassLB:           100,
		MassUB:           5000000,
		MassBins:         1,
		NativeZLB:        -200,
		NativeZUB:        100,
		NumIt:            50,
		ConvergenceTol:   1e-6,
		ZSig:             1,
		MSig:             0,
		PSig:             1,
		Beta:             0,
		Smoothing:        SmoothAuto,
		ZeroLog:          -12,
		MzSig:            0.85,
		PeakShapeInflate: 1,
		Shape:            Gaussian,
		PSThresh:         6,
		IntThresh:        0,
		Isotope:          IsotopeOff,
		BaselineWidth:    20,
		Transform:        Integrate,
		PeakWindow:       10,
		PeakThresh:       0.1,
		PeakNorm:         NormNone,
		ExtractWindow:    10,
		ScoreWeights:     ScoreWeights{Width: 1, Residual: 1, Ladder: 1},
		ScoreWidthRef:    1,
	}
}

// Clone returns a copy that can be modified without affecting c
func (c *Config) Clone() *Config {
	n := *c
	n.TestMasses = append([]float64(nil), c.TestMasses...)
	return &n
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, a...))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks all parameters, returning an error wrapping
// ErrConfiguration for the first parameter that is out of range
func (c *Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"mzmin", c.MzMin}, {"mzmax", c.MzMax}, {"precursor_window", c.PrecursorWindow},
		{"adductmass", c.AdductMass}, {"masslb", c.MassLB}, {"massub", c.MassUB},
		{"massbins", c.MassBins}, {"nativezlb", c.NativeZLB}, {"nativezub", c.NativeZUB},
		{"mtabsig", c.MassWindow}, {"convergence", c.ConvergenceTol}, {"zsig", c.ZSig},
		{"msig", c.MSig}, {"psig", c.PSig}, {"beta", c.Beta}, {"molig", c.MassStep},
		{"zerolog", c.ZeroLog}, {"mzsig", c.MzSig}, {"psinflate", c.PeakShapeInflate},
		{"zexponent", c.ChargeShapeExponent}, {"psthresh", c.PSThresh},
		{"intthresh", c.IntThresh}, {"doubledec", c.SharpenFWHM},
		{"peakwindow", c.PeakWindow}, {"peakthresh", c.PeakThresh},
		{"exwindow", c.ExtractWindow}, {"score_width", c.ScoreWidthRef},
	} {
		if !finite(f.v) {
			return invalid("%s must be finite, got %v", f.name, f.v)
		}
	}
	switch {
	case c.NumIt <= 0:
		return invalid("numit must be positive, got %d", c.NumIt)
	case c.ChargeMin < 1:
		return invalid("startz must be at least 1, got %d", c.ChargeMin)
	case c.ChargeMax != 0 && c.ChargeMax < c.ChargeMin:
		return invalid("charge range %d:%d is empty", c.ChargeMin, c.ChargeMax)
	case c.MassBins <= 0:
		return invalid("massbins must be positive, got %g", c.MassBins)
	case c.MassLB <= 0 || c.MassUB <= 0:
		return invalid("mass bounds must be positive, got %g:%g", c.MassLB, c.MassUB)
	case c.MassLB > c.MassUB:
		return invalid("masslb %g is larger than massub %g", c.MassLB, c.MassUB)
	case c.NativeZLB >= c.NativeZUB:
		return invalid("nativezlb %g must be below nativezub %g", c.NativeZLB, c.NativeZUB)
	case c.MassWindow < 0:
		return invalid("mtabsig must not be negative, got %g", c.MassWindow)
	case c.MzMin < 0 || c.MzMax < 0:
		return invalid("m/z range must not be negative")
	case c.MzMax > 0 && c.MzMin > c.MzMax:
		return invalid("mzmin %g is larger than mzmax %g", c.MzMin, c.MzMax)
	case c.PrecursorWindow < 0:
		return invalid("precursor_window must not be negative, got %g", c.PrecursorWindow)
	case c.MzSig <= 0:
		return invalid("mzsig must be positive, got %g", c.MzSig)
	case c.PeakShapeInflate <= 0:
		return invalid("psinflate must be positive, got %g", c.PeakShapeInflate)
	case c.PSThresh <= 0:
		return invalid("psthresh must be positive, got %g", c.PSThresh)
	case c.IntThresh < 0:
		return invalid("intthresh must not be negative, got %g", c.IntThresh)
	case c.PSig < 0 || c.Beta < 0:
		return invalid("psig and beta must not be negative")
	case c.MassStep < 0:
		return invalid("molig must not be negative, got %g", c.MassStep)
	case c.ConvergenceTol < 0:
		return invalid("convergence must not be negative, got %g", c.ConvergenceTol)
	case c.Baseline && c.BaselineWidth < 1:
		return invalid("filterwidth must be positive, got %d", c.BaselineWidth)
	case c.PeakWindow <= 0:
		return invalid("peakwindow must be positive, got %g", c.PeakWindow)
	case c.PeakThresh < 0:
		return invalid("peakthresh must not be negative, got %g", c.PeakThresh)
	case c.ExtractWindow < 0:
		return invalid("exwindow must not be negative, got %g", c.ExtractWindow)
	case c.SharpenFWHM < 0:
		return invalid("doubledec must not be negative, got %g", c.SharpenFWHM)
	case c.ScoreWidthRef <= 0:
		return invalid("score_width must be positive, got %g", c.ScoreWidthRef)
	}
	for _, m := range c.TestMasses {
		if !finite(m) || m <= 0 {
			return invalid("test masses must be positive, got %v", m)
		}
	}
	w := c.ScoreWeights
	if w.Width < 0 || w.Residual < 0 || w.Ladder < 0 || w.Width+w.Residual+w.Ladder <= 0 {
		return invalid("score weights must be non-negative with a positive sum, got %+v", w)
	}
	return nil
}

// PeakShapeThreshold is the half width (in m/z) of the peak shape support
func (c *Config) PeakShapeThreshold(inflate float64) float64 {
	return c.PSThresh * math.Abs(c.MzSig) * inflate
}

// Charges returns the charge states that are searched. When the charge
// range is automatic, the highest charge is derived from precursorMz: it
// is the largest charge for which the implied mass stays below MassUB.
func (c *Config) Charges(precursorMz float64) ([]int, error) {
	zmax := c.ChargeMax
	if zmax == 0 {
		if precursorMz <= c.AdductMass {
			return nil, invalid("automatic charge range needs a precursor m/z, got %g", precursorMz)
		}
		zmax = c.ChargeMin
		for z := c.ChargeMin; z <= maxAutoCharge; z++ {
			if (precursorMz-c.AdductMass)*float64(z) > c.MassUB {
				break
			}
			zmax = z
		}
	}
	charges := make([]int, 0, zmax-c.ChargeMin+1)
	for z := c.ChargeMin; z <= zmax; z++ {
		charges = append(charges, z)
	}
	return charges, nil
}
