package massaxis

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

const (
	// SharpenIterations is the default iteration cap of Sharpen
	SharpenIterations = 50
	sharpenTolerance  = 1e-4
	// Gaussian kernel half width in standard deviations
	sharpenSpan = 4
)

// gaussConvolver convolves sequences of a fixed length with a normalized
// Gaussian through the FFT. The sequences are zero padded so that the
// circular convolution does not wrap around.
type gaussConvolver struct {
	n, m   int
	fft    *fourier.FFT
	kernel []complex128
	buf    []float64
	coeff  []complex128
}

func newGaussConvolver(n int, sigmaBins float64) *gaussConvolver {
	half := int(math.Ceil(sharpenSpan * sigmaBins))
	m := n + 2*half
	k := make([]float64, m)
	for d := -half; d <= half; d++ {
		x := float64(d) / sigmaBins
		k[(d+m)%m] += math.Exp(-x * x / 2)
	}
	floats.Scale(1/floats.Sum(k), k)
	fft := fourier.NewFFT(m)
	return &gaussConvolver{
		n:      n,
		m:      m,
		fft:    fft,
		kernel: fft.Coefficients(nil, k),
		buf:    make([]float64, m),
	}
}

// convolve writes the convolution of src with the kernel into dst
func (gc *gaussConvolver) convolve(dst, src []float64) {
	clear(gc.buf)
	copy(gc.buf, src)
	gc.coeff = gc.fft.Coefficients(gc.coeff, gc.buf)
	for i := range gc.coeff {
		gc.coeff[i] *= gc.kernel[i]
	}
	gc.buf = gc.fft.Sequence(gc.buf, gc.coeff)
	// Sequence does not normalize
	scale := 1 / float64(gc.m)
	for i := range dst {
		dst[i] = gc.buf[i] * scale
	}
}

// Sharpen deconvolves intensity with a Gaussian of FWHM fwhm (in mass
// units, bin is the mass bin width) by Richardson-Lucy iteration. It stops
// after maxIter rounds or when the relative change drops below 1e-4, and
// returns the sharpened spectrum and the number of rounds. The total
// intensity is preserved.
func Sharpen(intensity []float64, bin, fwhm float64, maxIter int) ([]float64, int) {
	est := make([]float64, len(intensity))
	for i, v := range intensity {
		est[i] = math.Max(v, 0)
	}
	total := floats.Sum(est)
	if fwhm <= 0 || total == 0 || len(est) < 2 {
		return est, 0
	}
	gc := newGaussConvolver(len(est), fwhm/2.35482/bin)
	sim := make([]float64, len(est))
	ratio := make([]float64, len(est))
	back := make([]float64, len(est))
	it := 0
	for it < maxIter {
		it++
		gc.convolve(sim, est)
		for i := range est {
			ratio[i] = 0
			if sim[i] > 1e-12*total {
				ratio[i] = math.Max(intensity[i], 0) / sim[i]
			}
		}
		// the kernel is symmetric, so the correlation is a convolution
		gc.convolve(back, ratio)
		change := 0.0
		for i := range est {
			v := math.Max(est[i]*back[i], 0)
			change += math.Abs(v - est[i])
			est[i] = v
		}
		if change/total < sharpenTolerance {
			break
		}
	}
	if sum := floats.Sum(est); sum > 0 {
		floats.Scale(total/sum, est)
	}
	return est, it
}

// Sharpen applies Sharpen to the intensities of the axis
func (a *Axis) Sharpen(fwhm float64, maxIter int) int {
	sharp, it := Sharpen(a.Intensity, a.Bin, fwhm, maxIter)
	a.Intensity = sharp
	return it
}
