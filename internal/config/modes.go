package config

import (
	"fmt"
	"strings"
)

// ShapeFunc selects the peak shape function
type ShapeFunc int

const (
	Gaussian ShapeFunc = iota
	Lorentzian
	SplitGL // Gaussian on the low m/z side, Lorentzian on the high side
)

// SmoothMode selects how the smoothing operator averages neighbours
type SmoothMode int

const (
	SmoothAuto    SmoothMode = iota // Mean, or Sum when a smoothing width is negative
	SmoothMean                      // weighted geometric mean
	SmoothSum                       // weighted arithmetic mean
	SmoothHybrid1                   // geometric over charge, arithmetic over mass
	SmoothHybrid2                   // arithmetic over charge, geometric over mass
)

// TransformMode selects how the m/z by charge grid is put on the mass axis
type TransformMode int

const (
	Integrate TransformMode = iota
	Interpolate
	Smart
)

// IsotopeMode selects whether isotope clusters are modelled
type IsotopeMode int

const (
	IsotopeOff IsotopeMode = iota
	IsotopeMono
	IsotopeAverage
)

// PeakNorm selects how peak intensities are normalized
type PeakNorm int

const (
	NormNone PeakNorm = iota
	NormMax
	NormSum
)

var (
	shapeNames     = []string{"gaussian", "lorentzian", "split"}
	smoothNames    = []string{"auto", "mean", "sum", "hybrid1", "hybrid2"}
	transformNames = []string{"integrate", "interpolate", "smart"}
	isotopeNames   = []string{"off", "mono", "average"}
	normNames      = []string{"none", "max", "sum"}
)

func enumString(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("unknown(%d)", v)
}

func enumParse(kind string, names []string, text []byte) (int, error) {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range names {
		if s == n {
			return i, nil
		}
	}
	return 0, invalid("unknown %s %q, valid values: %s", kind, s, strings.Join(names, ", "))
}

func (s ShapeFunc) String() string { return enumString(shapeNames, int(s)) }

// MarshalText implements encoding.TextMarshaler
func (s ShapeFunc) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (s *ShapeFunc) UnmarshalText(text []byte) error {
	v, err := enumParse("peak shape", shapeNames, text)
	*s = ShapeFunc(v)
	return err
}

func (m SmoothMode) String() string { return enumString(smoothNames, int(m)) }

// MarshalText implements encoding.TextMarshaler
func (m SmoothMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (m *SmoothMode) UnmarshalText(text []byte) error {
	v, err := enumParse("smoothing mode", smoothNames, text)
	*m = SmoothMode(v)
	return err
}

func (m TransformMode) String() string { return enumString(transformNames, int(m)) }

// MarshalText implements encoding.TextMarshaler
func (m TransformMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (m *TransformMode) UnmarshalText(text []byte) error {
	v, err := enumParse("transform", transformNames, text)
	*m = TransformMode(v)
	return err
}

func (m IsotopeMode) String() string { return enumString(isotopeNames, int(m)) }

// MarshalText implements encoding.TextMarshaler
func (m IsotopeMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (m *IsotopeMode) UnmarshalText(text []byte) error {
	v, err := enumParse("isotope mode", isotopeNames, text)
	*m = IsotopeMode(v)
	return err
}

func (n PeakNorm) String() string { return enumString(normNames, int(n)) }

// MarshalText implements encoding.TextMarshaler
func (n PeakNorm) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (n *PeakNorm) UnmarshalText(text []byte) error {
	v, err := enumParse("peak normalization", normNames, text)
	*n = PeakNorm(v)
	return err
}

// ResolveSmoothing returns the smoothing mode to use, resolving SmoothAuto
func (c *Config) ResolveSmoothing() SmoothMode {
	if c.Smoothing != SmoothAuto {
		return c.Smoothing
	}
	if c.ZSig < 0 || c.MSig < 0 {
		return SmoothSum
	}
	return SmoothMean
}
