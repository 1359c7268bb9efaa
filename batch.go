package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/deconv"
	"github.com/524D/mzdecon/internal/mzml"
	"github.com/524D/mzdecon/internal/plot"
	"github.com/524D/mzdecon/internal/store"
)

var (
	// errAllFailed means not a single selected spectrum could be deconvolved
	errAllFailed = errors.New("no spectrum could be deconvolved")
	// errCentroid means a scan holds centroid peaks instead of profile data
	errCentroid = errors.New("centroid spectrum, deconvolution needs profile data")
)

// scanOutcome is the result of deconvolving one scan
type scanOutcome struct {
	index         int
	id            string
	retentionTime float64 // seconds, -1 when unknown
	precursorMZ   float64
	result      *deconv.Result
	err         error
}

// selectScans returns the indices of the scans within the spectrum and
// MS level ranges
func selectScans(mzML *mzml.MzML, par params) ([]int, error) {
	var scans []int
	for i := max(par.minSpecIdx, 0); i < mzML.NumSpecs() && i <= par.maxSpecIdx; i++ {
		msLevel, err := mzML.MSLevel(i)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", i, err)
		}
		if msLevel >= par.minMSLevel && msLevel <= par.maxMSLevel {
			scans = append(scans, i)
		}
	}
	return scans, nil
}

func deconvolveScan(mzML *mzml.MzML, e *deconv.Engine, i int) scanOutcome {
	o := scanOutcome{index: i}
	if o.id, o.err = mzML.ScanID(i); o.err != nil {
		return o
	}
	if o.retentionTime, o.err = mzML.RetentionTime(i); o.err != nil {
		return o
	}
	centroid, err := mzML.Centroid(i)
	if err != nil {
		o.err = err
		return o
	}
	if centroid {
		o.err = errCentroid
		return o
	}
	mz, intensity, err := mzML.ReadSpectrum(i)
	if err != nil {
		o.err = err
		return o
	}
	if o.precursorMZ, o.err = mzML.PrecursorMZ(i); o.err != nil {
		return o
	}
	o.result, o.err = e.Run(deconv.Spectrum{
		ID:          o.id,
		MZ:          mz,
		Intensity:   intensity,
		PrecursorMZ: o.precursorMZ,
	})
	return o
}

// deconvolveScans deconvolves scans on a pool of workers. The outcomes
// are returned in the order of scans.
func deconvolveScans(mzML *mzml.MzML, e *deconv.Engine, scans []int,
	workers int, verbosity int) []scanOutcome {
	type job struct {
		pos int
		o   scanOutcome
	}
	jobs := make(chan int)
	done := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(scans)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				done <- job{pos, deconvolveScan(mzML, e, scans[pos])}
			}
		}()
	}
	go func() {
		for pos := range scans {
			jobs <- pos
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	outcomes := make([]scanOutcome, len(scans))
	n := 0
	for j := range done {
		outcomes[j.pos] = j.o
		n++
		if verbosity == infoVerbose {
			fmt.Fprintf(os.Stderr, "\rDeconvolved %d/%d", n, len(scans))
		}
	}
	if verbosity == infoVerbose && n > 0 {
		fmt.Fprintln(os.Stderr)
	}
	return outcomes
}

// run deconvolves the selected scans of the input file and writes all
// requested outputs. Scans that fail are logged and skipped.
func run(par params, cfg *config.Config) error {
	t := time.Now()
	f, err := os.Open(par.mzMLFilename)
	if err != nil {
		return err
	}
	mzML, err := mzml.Read(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", par.mzMLFilename, err)
	}
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Reading MS data: %s\n", time.Since(t))
		t = time.Now()
	}

	e, err := deconv.NewEngine(cfg, nil)
	if err != nil {
		return err
	}
	debugTrace(e, &mzML)

	scans, err := selectScans(&mzML, par)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		return errors.New("no spectra selected")
	}
	outcomes := deconvolveScans(&mzML, e, scans, *par.workers, par.verbosity)
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Deconvolution: %s\n", time.Since(t))
	}

	out := newDeconOutput(par.mzMLFilename, cfg)
	var db *store.Store
	if *par.dbFilename != "" {
		if db, err = store.Open(*par.dbFilename); err != nil {
			return err
		}
		defer db.Close()
		if out.RunID, err = db.NewRun(par.mzMLFilename, cfg); err != nil {
			return err
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			log.Printf("scan %s: %v", o.id, o.err)
			out.addFailure(o)
			continue
		}
		debugLogScan(o, mzML.NumSpecs())
		out.add(o)
		if db != nil {
			if err := db.SaveResult(out.RunID, o.result); err != nil {
				return err
			}
		}
		if *par.plotDir != "" {
			if _, err := plot.Save(*par.plotDir, o.result); err != nil {
				log.Printf("scan %s: %v", o.id, err)
			}
		}
		if *par.mzMLOutFilename != "" {
			a := o.result.Axis
			if err := mzML.UpdateScan(o.index, a.Mass, a.Intensity); err != nil {
				return err
			}
		}
	}

	if err := writeJSON(out, *par.jsonFilename); err != nil {
		return err
	}
	if *par.mzMLOutFilename != "" {
		mzML.AppendSoftwareInfo(progName, progVersion)
		mzML.AppendDataProcessing(deconProcessing)
		if err := writeMzML(&mzML, *par.mzMLOutFilename); err != nil {
			return err
		}
	}
	if par.verbosity != infoSilent {
		fmt.Fprintf(os.Stderr, "Deconvolved %d of %d spectra\n", len(outcomes)-failed, len(outcomes))
	}
	if failed == len(outcomes) {
		return errAllFailed
	}
	return nil
}
