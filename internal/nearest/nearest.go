// Package nearest finds the element of a sorted slice that is closest to a
// query value.
package nearest

import "sort"

// Index returns the index of the element of sorted that is closest to v.
// On an exact tie the lower index is returned. sorted must be in
// increasing order; -1 is returned for an empty slice.
func Index(sorted []float64, v float64) int {
	return search(sorted, v, nil)
}

// search does the work for Index. probe, when not nil, is called once for
// every element that is inspected.
func search(sorted []float64, v float64, probe func()) int {
	n := len(sorted)
	if n == 0 {
		return -1
	}
	// First element that is >= v
	k := sort.Search(n, func(i int) bool {
		if probe != nil {
			probe()
		}
		return sorted[i] >= v
	})
	if k == 0 {
		return 0
	}
	if k == n {
		return n - 1
	}
	if v-sorted[k-1] <= sorted[k]-v {
		return k - 1
	}
	return k
}

// Window returns the index range [start, end] of the elements of sorted
// closest to lo and hi. The range always contains at least one element
// when sorted is not empty.
func Window(sorted []float64, lo, hi float64) (int, int) {
	start := Index(sorted, lo)
	end := Index(sorted, hi)
	if end < start {
		start, end = end, start
	}
	return start, end
}
