// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"flag"
	"fmt"
	"sync"

	"github.com/524D/mzdecon/internal/deconv"
	"github.com/524D/mzdecon/internal/mzml"
	"github.com/524D/mzdecon/internal/solver"
)

var debugSpecs *string // Print debug output for given spectrum range

// Workers trace concurrently, keep their lines apart
var debugMux sync.Mutex

func init() {
	debugSpecs = flag.String("debug", "",
		"Print debug output for given spectrum `range` e.g. 3:6")
}

func debugScan(i int, numSpecs int) bool {
	if *debugSpecs == `` {
		return false
	}
	debugMin, debugMax, _ := parseIntRange(*debugSpecs, 0, numSpecs)
	return i >= debugMin && i <= debugMax
}

// debugTrace makes e print every solver iteration of the scans in the
// debug range
func debugTrace(e *deconv.Engine, mzML *mzml.MzML) {
	if *debugSpecs == `` {
		return
	}
	numSpecs := mzML.NumSpecs()
	e.Trace = func(id string, it solver.Iteration) {
		i, err := mzML.ScanIndex(id)
		if err != nil || !debugScan(i, numSpecs) {
			return
		}
		debugMux.Lock()
		fmt.Printf("Spectrum:%d iteration:%d change:%g residual:%g noise:%g\n",
			i, it.Index, it.Change, it.Residual, it.NoiseStd)
		debugMux.Unlock()
	}
}

// debugLogScan prints the outcome of a deconvolved scan in the debug range
func debugLogScan(o scanOutcome, numSpecs int) {
	if !debugScan(o.index, numSpecs) {
		return
	}
	r := o.result
	fmt.Printf("Spectrum:%d id:%s rt:%0.1f precursor:%f charges:%d..%d points:%d\n",
		o.index, o.id, o.retentionTime, o.precursorMZ, r.Charges[0], r.Charges[len(r.Charges)-1], len(r.MZ))
	fmt.Printf("iterations:%d converged:%t error:%g R²:%f mass:%f..%f bins:%d\n",
		r.Iterations, r.Converged, r.Error, r.RSquared,
		r.Axis.Mass[0], r.Axis.Mass[r.Axis.Len()-1], r.Axis.Len())
	for j, p := range r.Peaks {
		bad := ``
		if p.Bad {
			bad = ` bad`
		}
		fmt.Printf("%d mass:%f intens:%f fwhm:%f score:%0.3f%s charges:",
			j, p.Mass, p.Intensity, p.FWHM(), p.Score, bad)
		for k, c := range p.Charges {
			if c >= 0.01 {
				fmt.Printf(" %d(%0.2f)", r.Charges[k], c)
			}
		}
		fmt.Printf("\n")
	}
}
