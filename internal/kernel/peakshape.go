package kernel

import (
	"fmt"
	"math"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/nearest"
)

// Largest relative deviation from the mean m/z spacing that the 1-D peak
// shape accepts
const maxSpacingDeviation = 1e-6

// Largest ratio of the peak shape window to the width of the spectrum
const maxWindowSpans = 100

// Window holds, for every m/z index i, the first and last index that the
// peak shape centred at i reaches
type Window struct {
	Start     []int
	End       []int
	MaxLength int // largest End-Start+1
}

// Windows computes the support of a peak shape with half width threshold
// (in m/z) for every point of mz
func Windows(mz []float64, threshold float64) Window {
	w := Window{
		Start: make([]int, len(mz)),
		End:   make([]int, len(mz)),
	}
	for i, x := range mz {
		w.Start[i], w.End[i] = nearest.Window(mz, x-threshold, x+threshold)
		w.MaxLength = max(w.MaxLength, w.End[i]-w.Start[i]+1)
	}
	return w
}

// PeakShape convolves a spectrum on the m/z axis with the instrument peak
// shape. The weights of every source point are normalized to sum to one
// over its window, so convolution preserves total intensity.
type PeakShape interface {
	// Convolve sets dst[k] to the sum over i of src[i] times the weight
	// of source i at k. j is the charge column of src.
	Convolve(dst, src []float64, j int)
	// Correlate is the transpose of Convolve: dst[i] is the sum over k
	// of src[k] times the weight of source i at k
	Correlate(dst, src []float64, j int)
	// ChargeAware reports whether the weights depend on the charge column
	ChargeAware() bool
	Window() Window
}

// New returns the peak shape selected by cfg for the m/z axis mz, with the
// peak width multiplied by inflate. The 1-D shape is returned when
// cfg.Speedy is set; it requires evenly spaced m/z values.
func New(cfg *config.Config, mz []float64, charges []int, inflate float64) (PeakShape, error) {
	fwhm := math.Abs(cfg.MzSig) * inflate
	factors := make([]float64, len(charges))
	maxFactor := 0.0
	for j, z := range charges {
		factors[j] = math.Pow(float64(z), -cfg.ChargeShapeExponent)
		maxFactor = math.Max(maxFactor, factors[j])
	}
	threshold := cfg.PeakShapeThreshold(inflate) * maxFactor
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: peak shape window %g m/z", config.ErrConfiguration, threshold)
	}
	// Windows are clamped to the data, a window wider than the spectrum
	// is fine up to a limit
	if span := mz[len(mz)-1] - mz[0]; span > 0 && 2*threshold > maxWindowSpans*span {
		return nil, fmt.Errorf("%w: peak shape window %g m/z is more than %d times the spectrum width (%g m/z), lower psthresh or mzsig",
			config.ErrConfiguration, 2*threshold, maxWindowSpans, span)
	}
	win := Windows(mz, threshold)
	if cfg.Speedy {
		if cfg.ChargeShapeExponent != 0 {
			return nil, fmt.Errorf("%w: charge dependent peak width needs the 2-D peak shape",
				config.ErrConfiguration)
		}
		bin, err := evenSpacing(mz)
		if err != nil {
			return nil, err
		}
		return newShape1D(cfg.Shape, fwhm, bin, win), nil
	}
	return newShape2D(cfg.Shape, fwhm, mz, factors, win), nil
}

// evenSpacing returns the spacing of mz, or an error if mz is not evenly
// spaced
func evenSpacing(mz []float64) (float64, error) {
	n := len(mz)
	if n < 2 {
		return 1, nil
	}
	bin := (mz[n-1] - mz[0]) / float64(n-1)
	for i := 1; i < n; i++ {
		if math.Abs(mz[i]-mz[i-1]-bin) > maxSpacingDeviation*bin*float64(n) {
			return 0, fmt.Errorf("%w: 1-D peak shape needs evenly spaced m/z values (index %d)",
				config.ErrConfiguration, i)
		}
	}
	return bin, nil
}

// Shape1D is the peak shape of evenly spaced data: one weight table indexed
// by the offset from the centre, shared by all points
type Shape1D struct {
	win  Window
	half int
	fwd  []float64 // weight of offset d at fwd[d+half]
	inv  []float64 // per source point: 1/(sum of weights in its window)
}

func newShape1D(f config.ShapeFunc, fwhm, bin float64, win Window) *Shape1D {
	s := &Shape1D{win: win, inv: make([]float64, len(win.Start))}
	for i := range win.Start {
		s.half = max(s.half, i-win.Start[i], win.End[i]-i)
	}
	s.fwd = make([]float64, 2*s.half+1)
	for d := -s.half; d <= s.half; d++ {
		s.fwd[d+s.half] = Eval(f, float64(d)*bin, fwhm)
	}
	for i := range win.Start {
		sum := 0.0
		for k := win.Start[i]; k <= win.End[i]; k++ {
			sum += s.fwd[k-i+s.half]
		}
		s.inv[i] = 1 / sum
	}
	return s
}

func (s *Shape1D) Convolve(dst, src []float64, _ int) {
	clear(dst)
	for i, v := range src {
		if v == 0 {
			continue
		}
		off := s.half - i
		for k := s.win.Start[i]; k <= s.win.End[i]; k++ {
			dst[k] += v * (s.fwd[k+off] * s.inv[i])
		}
	}
}

func (s *Shape1D) Correlate(dst, src []float64, _ int) {
	for i := range dst {
		off := s.half - i
		sum := 0.0
		for k := s.win.Start[i]; k <= s.win.End[i]; k++ {
			sum += src[k] * (s.fwd[k+off] * s.inv[i])
		}
		dst[i] = sum
	}
}

func (s *Shape1D) ChargeAware() bool { return false }

func (s *Shape1D) Window() Window { return s.win }

// Shape2D stores the weights of every source point separately, so the
// m/z axis does not need to be evenly spaced. With a charge dependent
// width there is one weight table per charge column.
type Shape2D struct {
	win   Window
	group []int       // charge column -> weight table
	w     [][]float64 // row i of a table starts at i*win.MaxLength
}

func newShape2D(f config.ShapeFunc, fwhm float64, mz []float64, factors []float64, win Window) *Shape2D {
	s := &Shape2D{win: win, group: make([]int, len(factors))}
	widths := map[float64]int{}
	for j, fac := range factors {
		g, ok := widths[fac]
		if !ok {
			g = len(s.w)
			widths[fac] = g
			s.w = append(s.w, s.table(f, fwhm*fac, mz))
		}
		s.group[j] = g
	}
	return s
}

func (s *Shape2D) table(f config.ShapeFunc, fwhm float64, mz []float64) []float64 {
	ml := s.win.MaxLength
	t := make([]float64, len(mz)*ml)
	for i := range mz {
		row := t[i*ml : i*ml+s.win.End[i]-s.win.Start[i]+1]
		sum := 0.0
		for k := s.win.Start[i]; k <= s.win.End[i]; k++ {
			row[k-s.win.Start[i]] = Eval(f, mz[k]-mz[i], fwhm)
			sum += row[k-s.win.Start[i]]
		}
		inv := 1 / sum
		for k := range row {
			row[k] *= inv
		}
	}
	return t
}

func (s *Shape2D) weights(j int) []float64 {
	if j < 0 || j >= len(s.group) {
		j = 0
	}
	return s.w[s.group[j]]
}

func (s *Shape2D) Convolve(dst, src []float64, j int) {
	t := s.weights(j)
	ml := s.win.MaxLength
	clear(dst)
	for i, v := range src {
		if v == 0 {
			continue
		}
		row := t[i*ml:]
		start := s.win.Start[i]
		for k := start; k <= s.win.End[i]; k++ {
			dst[k] += v * row[k-start]
		}
	}
}

func (s *Shape2D) Correlate(dst, src []float64, j int) {
	t := s.weights(j)
	ml := s.win.MaxLength
	for i := range dst {
		row := t[i*ml:]
		start := s.win.Start[i]
		sum := 0.0
		for k := start; k <= s.win.End[i]; k++ {
			sum += src[k] * row[k-start]
		}
		dst[i] = sum
	}
}

func (s *Shape2D) ChargeAware() bool { return len(s.w) > 1 }

func (s *Shape2D) Window() Window { return s.win }
