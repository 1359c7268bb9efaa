// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/mzml"
)

// Program name and version, appended to software list in mzML output
const progName = "mzDecon"

var progVersion = `Unknown`

// Format of the JSON output, if it ever changes we should still be able
// to parse output from old versions
const outputFormatVersion = "1.0"

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	mzMLFilename    string
	mzMLOutFilename *string // mzML with the mass spectra, empty: don't write
	jsonFilename    *string // JSON result file
	confFilename    *string // YAML configuration
	dbFilename      *string // SQLite result database, empty: don't store
	plotDir         *string // directory for PNG plots, empty: no plots
	workers         *int    // number of scans deconvolved in parallel
	specFilter      *string // range of spectrum indices to deconvolve
	minSpecIdx      int
	maxSpecIdx      int
	msLevel         *string // range of MS levels to deconvolve
	minMSLevel      int
	maxMSLevel      int
	charge          *string // overrides the configured charge range
	mass            *string // overrides the configured mass range
	mzSig           *float64
	numIt           *int
	verbosity       int      // Verbosity of progress messages (infoDefault...)
	args            []string // Additional values passed on the command line
}

// ErrRangeSpec means a range parameter could not be used
var ErrRangeSpec = errors.New("invalid range specified")

// Data processing step added to the mzML file
var deconProcessing = mzml.DataProcessing{
	ID: progName,
	ProcessingMeth: []mzml.ProcessingMethod{
		{
			Order:       0,
			SoftwareRef: progName,
			CvPar:       []mzml.CVParam{mzml.ChargeDeconvolution},
		},
	},
}

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// sanatizeParams checks the parameters and fills in the output file names
// that were not given
func sanatizeParams(par *params) error {
	if len(par.args) != 1 {
		return errors.New("last argument must be name of mzML file")
	}
	par.mzMLFilename = par.args[0]
	var extension = filepath.Ext(par.mzMLFilename)
	var startName = par.mzMLFilename[0 : len(par.mzMLFilename)-len(extension)]
	if *par.jsonFilename == "" {
		*par.jsonFilename = startName + "-decon.json"
	}
	if *par.workers < 1 {
		*par.workers = 1
	}

	var err error
	par.minSpecIdx, par.maxSpecIdx, err = parseIntRange(*par.specFilter, 0, math.MaxInt32)
	if err != nil {
		return fmt.Errorf("invalid value for parameter 'specfilter': %w", err)
	}
	par.minMSLevel, par.maxMSLevel, err = parseIntRange(*par.msLevel, 1, math.MaxInt32)
	if err != nil {
		return fmt.Errorf("invalid value for parameter 'mslevel': %w", err)
	}
	return nil
}

// loadConfig reads the configuration file, if any, and applies the
// command line overrides
func loadConfig(par params) (*config.Config, error) {
	cfg := config.Defaults()
	if *par.confFilename != "" {
		var err error
		if cfg, err = config.LoadFile(*par.confFilename); err != nil {
			return nil, err
		}
	}
	if *par.charge != "" {
		zMin, zMax, err := parseIntRange(*par.charge, 1, math.MaxInt32)
		if err != nil {
			return nil, fmt.Errorf("invalid charge range: %w", err)
		}
		cfg.ChargeMin = zMin
		cfg.ChargeMax = zMax
		if zMax == math.MaxInt32 {
			// open ended range: derive from the precursor
			cfg.ChargeMax = 0
		}
	}
	if *par.mass != "" {
		lo, hi, err := parseFloat64Range(*par.mass, 0, math.MaxFloat64)
		if err != nil {
			return nil, fmt.Errorf("invalid mass range: %w", err)
		}
		// An empty bound keeps the configured value
		bounds := strings.SplitN(*par.mass, ":", 2)
		if strings.TrimSpace(bounds[0]) != "" {
			cfg.MassLB = lo
		}
		if len(bounds) == 2 && strings.TrimSpace(bounds[1]) != "" {
			cfg.MassUB = hi
		}
	}
	if *par.mzSig != 0 {
		cfg.MzSig = *par.mzSig
	}
	if *par.numIt > 0 {
		cfg.NumIt = *par.numIt
	}
	return cfg, cfg.Validate()
}

func usage() {
	exeName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr,
		`USAGE:
  %s [options] <mzMLfile>

  This program deconvolves the spectra in an mzML file into neutral mass
  spectra, and reports the peaks found in each of them.

OPTIONS:
`, exeName)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr,
		`
CONFIGURATION:
  All deconvolution parameters can be set in a YAML file passed with -conf.
  Parameters not in the file keep their default. To get a file with all
  defaults, run
    %s -writeconf defaults.yaml

USAGE EXAMPLES:
  %s sample.mzML
    Deconvolve all spectra in sample.mzML with default parameters and write
    the peaks to sample-decon.json.

  %s -charge 5:30 -mass 5000:50000 -db results.db -plot plots sample.mzML
    Idem, searching charges 5 to 30 and masses 5-50 kDa, storing the mass
    spectra in results.db and writing PNG plots of every spectrum to plots/.

  %s -o sample-mass.mzML sample.mzML
    Also write an mzML file in which every deconvolved spectrum is replaced
    by its mass spectrum.
`, exeName, exeName, exeName, exeName)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	var par params

	par.mzMLOutFilename = flag.String("o", "",
		"`filename` of mzML output with the deconvolved mass spectra")
	par.jsonFilename = flag.String("json", "",
		"`filename` of the JSON result file (default <mzMLfile>-decon.json)")
	par.confFilename = flag.String("conf", "",
		"YAML configuration `filename`")
	par.dbFilename = flag.String("db", "",
		"SQLite `filename` to store the mass spectra and peaks in")
	par.plotDir = flag.String("plot", "",
		"`directory` for PNG plots of every deconvolved spectrum")
	par.workers = flag.Int("workers", runtime.NumCPU(),
		"number of spectra deconvolved in parallel")
	par.specFilter = flag.String("specfilter", "",
		"`range`"+` of spectrum indices to deconvolve (e.g. 1000:2000).
Default is all spectra`)
	par.msLevel = flag.String("mslevel", "1:",
		"`range` of MS levels to deconvolve")
	par.charge = flag.String("charge", "",
		"charge `range`"+` to search, overrides the configuration.
An open upper end (e.g. "1:") derives the highest charge from the precursor.`)
	par.mass = flag.String("mass", "",
		"neutral mass `range` (Da), overrides the configuration")
	par.mzSig = flag.Float64("mzsig", 0,
		"peak FWHM in m/z, overrides the configuration when not 0")
	par.numIt = flag.Int("numit", 0,
		"number of iterations, overrides the configuration when > 0")
	writeConf := flag.String("writeconf", "",
		"write the effective configuration to `filename` and exit")
	version := flag.Bool("version", false,
		`Show software version`)
	verbose := flag.Bool("verbose", false,
		`Print more verbose progress information`)
	quiet := flag.Bool("quiet", false,
		`Don't print any output except for errors`)
	flag.Usage = usage
	flag.Parse()
	if *version {
		fmt.Fprintf(os.Stderr, "%s version %s\n", progName, progVersion)
		return
	}
	if *verbose {
		par.verbosity = infoVerbose
	}
	if *quiet {
		par.verbosity = infoSilent
	}
	par.args = flag.Args()
	exeName := filepath.Base(os.Args[0])

	cfg, err := loadConfig(par)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nType %s --help for usage\n", err, exeName)
		os.Exit(2)
	}
	if *writeConf != "" {
		if err := writeConfig(cfg, *writeConf); err != nil {
			log.Fatalf("writeConfig: %v", err)
		}
		return
	}
	if err := sanatizeParams(&par); err != nil {
		fmt.Fprintf(os.Stderr, "%v\nType %s --help for usage\n", err, exeName)
		os.Exit(2)
	}
	if err := run(par, cfg); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}
