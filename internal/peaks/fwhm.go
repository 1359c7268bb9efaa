package peaks

// FWHM sets the half maximum bounds of every peak by walking outward from
// its apex until y drops below half the apex value. The crossing is
// interpolated linearly. A peak is marked bad when the walk reaches the
// apex of another peak or the end of the axis first; the bound is then
// the point where the walk stopped.
func FWHM(x, y []float64, peaks []Peak) {
	apex := make(map[int]bool, len(peaks))
	for _, p := range peaks {
		apex[p.Index] = true
	}
	for n := range peaks {
		p := &peaks[n]
		half := y[p.Index] / 2
		var okLow, okHigh bool
		p.FWHMLow, okLow = walk(x, y, apex, p.Index, -1, half)
		p.FWHMHigh, okHigh = walk(x, y, apex, p.Index, 1, half)
		p.Bad = !okLow || !okHigh
	}
}

// walk moves from index i in direction dir until y < half and returns the
// interpolated crossing. ok is false when another apex or the end of the
// axis was reached first.
func walk(x, y []float64, apex map[int]bool, i, dir int, half float64) (float64, bool) {
	for k := i + dir; k >= 0 && k < len(y); k += dir {
		if apex[k] {
			return x[k-dir], false
		}
		if y[k] < half {
			prev := k - dir
			f := (y[prev] - half) / (y[prev] - y[k])
			return x[prev] + f*(x[k]-x[prev]), true
		}
	}
	if dir < 0 {
		return x[0], false
	}
	return x[len(x)-1], false
}
