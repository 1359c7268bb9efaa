package main

import (
	"encoding/json"
	"math"
	"os"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/mzml"
	"github.com/524D/mzdecon/internal/peaks"
)

// deconOutput is the content of the JSON result file
type deconOutput struct {
	FormatVersion string         `json:"format_version"`
	Program       string         `json:"program"`
	Version       string         `json:"version"`
	Source        string         `json:"source"`
	RunID         string         `json:"run_id,omitempty"` // id in the result database
	Config        *config.Config `json:"config"`
	Scans         []scanOutput   `json:"scans"`
	Failed        []scanFailure  `json:"failed,omitempty"`
}

type scanOutput struct {
	Index         int          `json:"index"`
	ID            string       `json:"id"`
	RetentionTime float64      `json:"retention_time"` // seconds, -1 when unknown
	PrecursorMZ   float64      `json:"precursor_mz,omitempty"`
	Charges       []int        `json:"charges"`
	Iterations    int          `json:"iterations"`
	Converged     bool         `json:"converged"`
	FitError      float64      `json:"fit_error"`
	RSquared      float64      `json:"r_squared"`
	MassMin       float64      `json:"mass_min"`
	MassMax       float64      `json:"mass_max"`
	Peaks         []peaks.Peak `json:"peaks"`
}

type scanFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

func newDeconOutput(source string, cfg *config.Config) *deconOutput {
	return &deconOutput{
		FormatVersion: outputFormatVersion,
		Program:       progName,
		Version:       progVersion,
		Source:        source,
		Config:        cfg,
		Scans:         []scanOutput{},
	}
}

// finite replaces NaN and infinities, which JSON can't hold, by 0
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (d *deconOutput) add(o scanOutcome) {
	r := o.result
	s := scanOutput{
		Index:         o.index,
		ID:            o.id,
		RetentionTime: finite(o.retentionTime),
		PrecursorMZ:   o.precursorMZ,
		Charges:       r.Charges,
		Iterations:    r.Iterations,
		Converged:     r.Converged,
		FitError:      finite(r.Error),
		RSquared:      finite(r.RSquared),
		Peaks:         r.Peaks,
	}
	if n := r.Axis.Len(); n > 0 {
		s.MassMin, s.MassMax = r.Axis.Mass[0], r.Axis.Mass[n-1]
	}
	if s.Peaks == nil {
		s.Peaks = []peaks.Peak{}
	}
	d.Scans = append(d.Scans, s)
}

func (d *deconOutput) addFailure(o scanOutcome) {
	d.Failed = append(d.Failed, scanFailure{Index: o.index, ID: o.id, Error: o.err.Error()})
}

func writeJSON(out *deconOutput, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	e := json.NewEncoder(f)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	if err := e.Encode(out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeMzML(mzML *mzml.MzML, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := mzML.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeConfig(cfg *config.Config, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := cfg.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
