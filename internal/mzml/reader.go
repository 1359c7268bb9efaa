package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// Only the mzML element is of interest, indexedmzML and the index
	// that follows the run are skipped
	for {
		t, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return mzML, err
		}
		if se, ok := t.(xml.StartElement); ok && se.Name.Local == "mzML" {
			if err := d.DecodeElement(&mzML.content, &se); err != nil {
				return mzML, err
			}
		}
	}
	return mzML, mzML.traverseScan()
}

// arrayInfo is the content of the CV terms of a binaryDataArray
type arrayInfo struct {
	zlib      bool
	bits64    bool
	mz        bool
	intensity bool
}

// arrayPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func arrayPars(a *binaryDataArray) (arrayInfo, error) {
	var info arrayInfo // defaults: no compression, 32 bits
	for _, cvParam := range a.CvPar {
		switch cvParam.Accession {
		case `MS:1000574`:
			info.zlib = true
		case `MS:1000514`:
			info.mz = true
		case `MS:1000515`:
			info.intensity = true
		case `MS:1000523`:
			info.bits64 = true
		case `MS:1002312`, `MS:1002313`, `MS:1002314`,
			`MS:1002746`, `MS:1002747`, `MS:1002748`:
			return info, fmt.Errorf("%w: CV term %s", ErrUnsupportedCompression, cvParam.Accession)
		}
	}
	return info, nil
}

// decodeArray converts the base64 text of a binary array to floats
func decodeArray(text string, info arrayInfo) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, err
	}
	if info.zlib {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		if data, err = io.ReadAll(z); err != nil {
			return nil, err
		}
	}
	var v []float64
	if info.bits64 {
		v = make([]float64, len(data)/8)
		for i := range v {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	} else {
		v = make([]float64, len(data)/4)
		for i := range v {
			v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	}
	return v, nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

func (f *MzML) validIndex(scanIndex int) bool {
	return scanIndex >= 0 && scanIndex < f.NumSpecs()
}

// ReadSpectrum returns the m/z and intensity arrays of a spectrum.
// scanIndex is the sequence number of the spectrum in the file, use
// ScanIndex to convert a scan id.
func (f *MzML) ReadSpectrum(scanIndex int) ([]float64, []float64, error) {
	if !f.validIndex(scanIndex) {
		return nil, nil, ErrInvalidScanIndex
	}
	var mz, intensity []float64
	for i := range f.content.Run.SpectrumList.Spectrum[scanIndex].BinaryDataArrayList.BinaryDataArray {
		a := &f.content.Run.SpectrumList.Spectrum[scanIndex].BinaryDataArrayList.BinaryDataArray[i]
		info, err := arrayPars(a)
		if err != nil {
			return nil, nil, err
		}
		if !info.mz && !info.intensity {
			continue
		}
		v, err := decodeArray(a.Binary, info)
		if err != nil {
			return nil, nil, fmt.Errorf("scan %d: %w", scanIndex, err)
		}
		if info.mz {
			mz = v
		} else {
			intensity = v
		}
	}
	if len(mz) != len(intensity) {
		return nil, nil, fmt.Errorf("%w: scan %d has %d m/z and %d intensity values",
			ErrArrayLength, scanIndex, len(mz), len(intensity))
	}
	return mz, intensity, nil
}

// RetentionTime returns the retention time of a spectrum in seconds, or
// -1 if the spectrum has none
func (f *MzML) RetentionTime(scanIndex int) (float64, error) {
	if !f.validIndex(scanIndex) {
		return 0.0, ErrInvalidScanIndex
	}
	for _, scan := range f.content.Run.SpectrumList.Spectrum[scanIndex].ScanList.Scan {
		for _, cvParam := range scan.CvPar {
			if cvParam.Accession == "MS:1000016" {
				retentionTime, err := strconv.ParseFloat(cvParam.Value, 64)
				// Minutes are converted, anything else is taken as seconds
				if cvParam.UnitAccession == "UO:0000031" ||
					cvParam.UnitAccession == "MS:1000038" {
					retentionTime *= 60
				}
				return retentionTime, err
			}
		}
	}
	return -1.0, nil
}

// Centroid returns true is the spectrum contains centroid peaks
func (f *MzML) Centroid(scanIndex int) (bool, error) {
	if !f.validIndex(scanIndex) {
		return false, ErrInvalidScanIndex
	}
	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == "MS:1000127" { // centroid spectrum
			return true, nil
		}
	}
	return false, nil
}

// MSLevel returns the MS level of a scan
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	if !f.validIndex(scanIndex) {
		return 0, ErrInvalidScanIndex
	}
	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == "MS:1000511" { // ms level
			msLevel, err := strconv.ParseInt(cvParam.Value, 10, 64)
			return int(msLevel), err
		}
	}
	return 1, nil // If nothing else, guess it's MS1
}

// PrecursorMZ returns the m/z of the first precursor of a scan: the
// selected ion m/z (MS:1000744), or else the isolation window target
// (MS:1000827). It returns 0 when the scan has no precursor.
func (f *MzML) PrecursorMZ(scanIndex int) (float64, error) {
	if !f.validIndex(scanIndex) {
		return 0, ErrInvalidScanIndex
	}
	pl := f.content.Run.SpectrumList.Spectrum[scanIndex].PrecursorList
	if len(pl) == 0 || len(pl[0].Precursor) == 0 {
		return 0, nil
	}
	p := pl[0].Precursor[0]
	for _, ion := range p.SelectedIonList.SelectedIon {
		if v, ok := cvValue(ion.CvPar, "MS:1000744"); ok {
			return strconv.ParseFloat(v, 64)
		}
	}
	if v, ok := cvValue(p.IsolationWindow.CvPar, "MS:1000827"); ok {
		return strconv.ParseFloat(v, 64)
	}
	return 0, nil
}

func cvValue(params []CVParam, accession string) (string, bool) {
	for _, p := range params {
		if p.Accession == accession {
			return p.Value, true
		}
	}
	return "", false
}

// traverseScan fills f.index2id and f.id2Index to make scans accessible
// by id
func (f *MzML) traverseScan() error {
	f.index2id = make([]string, f.NumSpecs())
	f.id2Index = make(map[string]int, f.NumSpecs())
	for i, s := range f.content.Run.SpectrumList.Spectrum {
		if i != s.Index {
			return fmt.Errorf("%w: spectrum %q has index %d at position %d",
				ErrInvalidScanIndex, s.ID, s.Index, i)
		}
		f.index2id[i] = s.ID
		f.id2Index[s.ID] = i
	}
	return nil
}

// ScanIndex converts a scan identifier (the string used in the mzML file)
// into an index that is used to access the scans
func (f *MzML) ScanIndex(scanID string) (int, error) {
	if index, ok := f.id2Index[scanID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// ScanID converts a scan index (used to access the scan data) into a scan id
// (used in the mzML file)
func (f *MzML) ScanID(scanIndex int) (string, error) {
	if f.validIndex(scanIndex) {
		return f.index2id[scanIndex], nil
	}
	return "", ErrInvalidScanIndex
}
