package main

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/mzml"
	"github.com/524D/mzdecon/internal/store"
)

func TestParseIntRange(t *testing.T) {
	tests := []struct {
		r        string
		min, max int
		wantMin  int
		wantMax  int
		wantErr  bool
	}{
		{"3:6", 0, 10, 3, 6, false},
		{"", 0, 10, 0, 10, false},
		{":4", 0, 10, 0, 4, false},
		{"4:", 0, 10, 4, 10, false},
		{"-12:6", -5, 10, -5, 6, false},
		{"7:3", 0, 10, 3, 3, true},
		{"1:99", 1, 50, 1, 50, false},
	}
	for i, tc := range tests {
		min, max, err := parseIntRange(tc.r, tc.min, tc.max)
		if min != tc.wantMin || max != tc.wantMax {
			t.Errorf("%d. parseIntRange(%q): %d:%d, want %d:%d", i+1, tc.r, min, max, tc.wantMin, tc.wantMax)
		}
		if (err != nil) != tc.wantErr || (err != nil && !errors.Is(err, ErrRangeSpec)) {
			t.Errorf("%d. parseIntRange(%q): error %v", i+1, tc.r, err)
		}
	}
}

func TestParseFloat64Range(t *testing.T) {
	tests := []struct {
		r        string
		min, max float64
		wantMin  float64
		wantMax  float64
		wantErr  bool
	}{
		{"0.5:1.5", 0, 2, 0.5, 1.5, false},
		{"", 0, 2, 0, 2, false},
		{"2.5:1.5", 0, 2, 1.5, 1.5, true},
		{":1.5", 0, 2, 0, 1.5, false},
		{"0.5:", 0, 2, 0.5, 2, false},
		{":", 0, 2, 0, 2, false},
		{"-2.0e10:3.0e10", -1e12, 1e12, -2e10, 3e10, false},
		{"-2.0:2.0", -1, 1, -1, 1, false},
	}
	for i, tc := range tests {
		min, max, err := parseFloat64Range(tc.r, tc.min, tc.max)
		if min != tc.wantMin || max != tc.wantMax {
			t.Errorf("%d. parseFloat64Range(%q): %g:%g, want %g:%g", i+1, tc.r, min, max, tc.wantMin, tc.wantMax)
		}
		if (err != nil) != tc.wantErr || (err != nil && !errors.Is(err, ErrRangeSpec)) {
			t.Errorf("%d. parseFloat64Range(%q): error %v", i+1, tc.r, err)
		}
	}
}

// JSONCompare compares two JSON documents, floats with a relative
// tolerance of 1e-5
func JSONCompare(t testing.TB, expected, actual io.Reader) {
	t.Helper()
	alwaysEqual := cmp.Comparer(func(_, _ interface{}) bool { return true })

	opts := cmp.Options{
		// This option declares that a float64 comparison is equal only if
		// both inputs are NaN.
		cmp.FilterValues(func(x, y float64) bool {
			return math.IsNaN(x) && math.IsNaN(y)
		}, alwaysEqual),

		// This option declares approximate equality on float64s only if
		// both inputs are not NaN.
		cmp.FilterValues(func(x, y float64) bool {
			return !math.IsNaN(x) && !math.IsNaN(y)
		}, cmp.Comparer(func(x, y float64) bool {
			delta := math.Abs(x - y)
			if delta == 0 {
				return true
			}
			mean := math.Abs(x+y) / 2.0
			return delta/mean < 0.00001
		})),
	}

	var in1 map[string]any
	var in2 map[string]any

	if err := json.NewDecoder(expected).Decode(&in1); err != nil {
		t.Fatalf("Error decoding expected JSON: %v", err)
	}
	if err := json.NewDecoder(actual).Decode(&in2); err != nil {
		t.Fatalf("Error decoding actual JSON: %v", err)
	}
	if diff := cmp.Diff(in1, in2, opts); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

// JSONCompareFile compares the contents of two JSON files
func JSONCompareFile(t testing.TB, expectedFile, actualFile string) {
	t.Helper()
	expected, err := os.Open(expectedFile)
	if err != nil {
		t.Fatalf("Error opening expected file: %v", err)
	}
	defer expected.Close()
	actual, err := os.Open(actualFile)
	if err != nil {
		t.Fatalf("Error opening actual file: %v", err)
	}
	defer actual.Close()
	JSONCompare(t, expected, actual)
}

// encode64 returns the base64 text of an uncompressed 64-bit binary array
func encode64(v []float64) string {
	raw := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// twoPeaks samples two charge 1 Gaussian peaks at m/z 500 and 500.5
func twoPeaks() ([]float64, []float64) {
	const step = 1.0 / 64
	var mz, intensity []float64
	sig := 0.1 / 2.35482
	for x := 490.0; x <= 510; x += step {
		d1, d2 := (x-500)/sig, (x-500.5)/sig
		mz = append(mz, x)
		intensity = append(intensity, 100*math.Exp(-d1*d1/2)+20*math.Exp(-d2*d2/2))
	}
	return mz, intensity
}

// writeTestMzML writes an mzML file with a good MS1 scan, an MS1 scan
// with an unsupported array compression, an MS2 scan and a centroid MS1
// scan
func writeTestMzML(t *testing.T, dir string) string {
	t.Helper()
	mz, intensity := twoPeaks()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
<cvList count="1"><cv id="MS" fullName="PSI-MS"/></cvList>
<fileDescription><fileContent/></fileDescription>
<softwareList count="0"/>
<instrumentConfigurationList count="1"><instrumentConfiguration id="IC1"/></instrumentConfigurationList>
<dataProcessingList count="0"/>
<run id="run1"><spectrumList count="4">
`)
	arrays := func(extra string) string {
		return fmt.Sprintf(`<binaryDataArrayList count="2">
<binaryDataArray><cvParam accession="MS:1000523" value=""/><cvParam accession="MS:1000514" value=""/>%s<binary>%s</binary></binaryDataArray>
<binaryDataArray><cvParam accession="MS:1000523" value=""/><cvParam accession="MS:1000515" value=""/>%s<binary>%s</binary></binaryDataArray>
</binaryDataArrayList>
`, extra, encode64(mz), extra, encode64(intensity))
	}
	for i, s := range []struct {
		msLevel   int
		extra     string
		precursor string
		cv        string // extra spectrum cvParams
		scan      string
	}{
		{1, "", "", "", `<scan><cvParam accession="MS:1000016" value="1.5" unitAccession="UO:0000031"/></scan>`},
		{1, `<cvParam accession="MS:1002312" value=""/>`, "", "", "<scan/>"},
		{2, "", `<precursorList count="1"><precursor><selectedIonList count="1"><selectedIon><cvParam accession="MS:1000744" value="500"/></selectedIon></selectedIonList><activation/></precursor></precursorList>`, "", "<scan/>"},
		{1, "", "", `<cvParam accession="MS:1000127" value=""/>`, "<scan/>"},
	} {
		fmt.Fprintf(&b, `<spectrum index="%d" id="scan=%d" defaultArrayLength="%d">
<cvParam accession="MS:1000511" value="%d"/>%s
<scanList count="1">%s</scanList>
%s
%s</spectrum>
`, i, i+1, len(mz), s.msLevel, s.cv, s.scan, s.precursor, arrays(s.extra))
	}
	b.WriteString("</spectrumList></run>\n</mzML>\n")
	path := filepath.Join(dir, "sample.mzML")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(strings.NewReader("startz: 1\nendz: 1\nmzsig: 0.1\nmassbins: 0.05\n"))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func testParams(input string, jsonFile string) params {
	str := func(s string) *string { return &s }
	workers := 2
	par := params{
		mzMLOutFilename: str(""),
		jsonFilename:    str(jsonFile),
		confFilename:    str(""),
		dbFilename:      str(""),
		plotDir:         str(""),
		workers:         &workers,
		specFilter:      str(""),
		msLevel:         str("1:1"),
		charge:          str(""),
		mass:            str(""),
		mzSig:           new(float64),
		numIt:           new(int),
		verbosity:       infoSilent,
		args:            []string{input},
	}
	return par
}

func readOutput(t *testing.T, path string) deconOutput {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var out deconOutput
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := writeTestMzML(t, dir)
	par := testParams(input, "")
	*par.mzMLOutFilename = filepath.Join(dir, "mass.mzML")
	*par.dbFilename = filepath.Join(dir, "results.db")
	*par.plotDir = filepath.Join(dir, "plots")
	if err := sanatizeParams(&par); err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "sample-decon.json"); *par.jsonFilename != want {
		t.Errorf("JSON file name %s, want %s", *par.jsonFilename, want)
	}
	if err := run(par, testConfig(t)); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := readOutput(t, *par.jsonFilename)
	if len(out.Scans) != 1 || out.Scans[0].ID != "scan=1" {
		t.Fatalf("deconvolved scans %+v, want scan=1 only", out.Scans)
	}
	if len(out.Scans[0].Peaks) != 1 || math.Abs(out.Scans[0].Peaks[0].Mass-(500-config.ProtonMass)) > 0.1 {
		t.Errorf("peaks %+v", out.Scans[0].Peaks)
	}
	if out.Scans[0].RetentionTime != 90 {
		t.Errorf("retention time %v s, want 90", out.Scans[0].RetentionTime)
	}
	if len(out.Failed) != 2 || out.Failed[0].ID != "scan=2" ||
		!strings.Contains(out.Failed[0].Error, mzml.ErrUnsupportedCompression.Error()) {
		t.Errorf("failed scans %+v", out.Failed)
	}
	if len(out.Failed) == 2 && (out.Failed[1].ID != "scan=4" || out.Failed[1].Error != errCentroid.Error()) {
		t.Errorf("centroid scan %+v, want it listed as failed", out.Failed[1])
	}
	if out.RunID == "" {
		t.Errorf("no run id with a result database")
	}

	db, err := store.Open(*par.dbFilename)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	pk, err := db.Peaks(out.RunID, "scan=1")
	if err != nil || len(pk) != 1 {
		t.Errorf("stored peaks %+v, %v", pk, err)
	}

	for _, suffix := range []string{"mz", "mass"} {
		if _, err := os.Stat(filepath.Join(*par.plotDir, "scan_1-"+suffix+".png")); err != nil {
			t.Errorf("plot: %v", err)
		}
	}

	f, err := os.Open(*par.mzMLOutFilename)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	mzML, err := mzml.Read(f)
	if err != nil {
		t.Fatalf("reading mzML output: %v", err)
	}
	mass, _, err := mzML.ReadSpectrum(0)
	if err != nil {
		t.Fatal(err)
	}
	if mass[0] > 500-config.ProtonMass || mass[len(mass)-1] < 500-config.ProtonMass {
		t.Errorf("scan 0 holds %v..%v, not the mass spectrum", mass[0], mass[len(mass)-1])
	}
	// the MS2 scan was not selected and keeps its data
	mz, _, err := mzML.ReadSpectrum(2)
	if err != nil || mz[0] != 490 {
		t.Errorf("MS2 scan changed: %v, %v", mz[:1], err)
	}
}

func TestRunIsReproducible(t *testing.T) {
	dir := t.TempDir()
	input := writeTestMzML(t, dir)
	var files []string
	for _, workers := range []int{1, 3} {
		jsonFile := filepath.Join(dir, fmt.Sprintf("out-%d.json", workers))
		par := testParams(input, jsonFile)
		*par.workers = workers
		*par.msLevel = "1:2"
		if err := sanatizeParams(&par); err != nil {
			t.Fatal(err)
		}
		if err := run(par, testConfig(t)); err != nil {
			t.Fatalf("run: %v", err)
		}
		files = append(files, jsonFile)
	}
	JSONCompareFile(t, files[0], files[1])

	out := readOutput(t, files[0])
	if len(out.Scans) != 2 || out.Scans[1].PrecursorMZ != 500 {
		t.Errorf("scans %+v, want scan=1 and the MS2 scan with precursor 500", out.Scans)
	}
	if len(out.Scans) == 2 && out.Scans[1].RetentionTime != -1 {
		t.Errorf("MS2 retention time %v, want -1 for a scan without one", out.Scans[1].RetentionTime)
	}
}

func TestRunAllFailed(t *testing.T) {
	dir := t.TempDir()
	input := writeTestMzML(t, dir)
	par := testParams(input, filepath.Join(dir, "out.json"))
	*par.specFilter = "1:1"
	if err := sanatizeParams(&par); err != nil {
		t.Fatal(err)
	}
	if err := run(par, testConfig(t)); !errors.Is(err, errAllFailed) {
		t.Errorf("run: %v, want errAllFailed", err)
	}

	*par.specFilter = "5:9"
	if err := sanatizeParams(&par); err != nil {
		t.Fatal(err)
	}
	if err := run(par, testConfig(t)); err == nil {
		t.Errorf("run without selected spectra succeeded")
	}
}

func TestLoadConfig(t *testing.T) {
	par := testParams("x.mzML", "")
	*par.charge = "5:30"
	*par.mass = "1000:20000"
	*par.mzSig = 0.5
	cfg, err := loadConfig(par)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChargeMin != 5 || cfg.ChargeMax != 30 || cfg.MassLB != 1000 || cfg.MassUB != 20000 || cfg.MzSig != 0.5 {
		t.Errorf("overrides not applied: %+v", cfg)
	}

	*par.charge = "2:"
	cfg, err = loadConfig(par)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChargeMax != 0 {
		t.Errorf("open charge range: ChargeMax %d, want 0", cfg.ChargeMax)
	}

	*par.charge = ""
	*par.mass = ":5000"
	if cfg, err = loadConfig(par); err != nil {
		t.Fatal(err)
	}
	if cfg.MassLB != config.Defaults().MassLB || cfg.MassUB != 5000 {
		t.Errorf("mass range :5000 gives %v:%v", cfg.MassLB, cfg.MassUB)
	}
	*par.mass = "2000:"
	if cfg, err = loadConfig(par); err != nil {
		t.Fatal(err)
	}
	if cfg.MassLB != 2000 || cfg.MassUB != config.Defaults().MassUB {
		t.Errorf("mass range 2000: gives %v:%v", cfg.MassLB, cfg.MassUB)
	}

	*par.numIt = 7
	*par.mass = "30:20"
	if _, err := loadConfig(par); !errors.Is(err, ErrRangeSpec) {
		t.Errorf("reversed mass range: %v", err)
	}

	dir := t.TempDir()
	*par.mass = ""
	*par.confFilename = filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(*par.confFilename, []byte("massbins: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(par); !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("invalid configuration file: %v", err)
	}
}
