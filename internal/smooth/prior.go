package smooth

import "math"

// SoftArgMax sharpens the charge distribution of every m/z row of blur
// (numz cells per row). Each positive cell is weighted by
// exp(beta*(v-max)/max), where max is the largest value in the row, and
// the row is rescaled to keep its total. beta <= 0 leaves blur unchanged.
func SoftArgMax(blur []float64, numz int, beta float64) {
	if beta <= 0 || numz < 2 {
		return
	}
	w := make([]float64, numz)
	for r := 0; r+numz <= len(blur); r += numz {
		row := blur[r : r+numz]
		maxV, total := 0.0, 0.0
		for _, v := range row {
			maxV = math.Max(maxV, v)
			total += v
		}
		if maxV <= 0 {
			continue
		}
		sum := 0.0
		for j, v := range row {
			w[j] = 0
			if v > 0 {
				w[j] = v * math.Exp(beta*(v-maxV)/maxV)
			}
			sum += w[j]
		}
		for j := range row {
			row[j] = total * w[j] / sum
		}
	}
}

// PointSmooth replaces every active cell of blur by the mean of the active
// cells within width m/z points in the same charge column. Inactive cells
// are not changed. width <= 0 leaves blur unchanged.
func PointSmooth(blur []float64, active []bool, numz, width int) {
	if width <= 0 {
		return
	}
	n := len(blur) / numz
	col := make([]float64, n)
	for j := range numz {
		for i := range n {
			col[i] = blur[i*numz+j]
		}
		for i := range n {
			c := i*numz + j
			if !active[c] {
				continue
			}
			sum, cnt := 0.0, 0
			for k := max(0, i-width); k <= min(n-1, i+width); k++ {
				if active[k*numz+j] {
					sum += col[k]
					cnt++
				}
			}
			blur[c] = sum / float64(cnt)
		}
	}
}
