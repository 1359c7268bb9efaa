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
)

// ChargeDeconvolution is the CV term of the charge deconvolution
// processing step
var ChargeDeconvolution = CVParam{
	CvRef:     "MS",
	Accession: "MS:1000034",
	Name:      "charge deconvolution",
}

// Write writes the (possibly updated) mzML content
func (f *MzML) Write(writer io.Writer) error {
	if _, err := io.WriteString(writer, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(writer)
	// Encode only breaks lines when indenting, and an empty indent string
	// disables that, hence the single space
	enc.Indent(` `, `  `)
	var content mzMLContentWrite

	content.XMLName = f.content.XMLName
	content.SchemaLocation = "http://psi.hupo.org/ms/mzml http://psidev.info/files/ms/mzML/xsd/mzML1.1.0.xsd"
	content.Version = "1.1.0"
	content.XSI = "http://www.w3.org/2001/XMLSchema-instance"
	content.CvList = f.content.CvList
	content.FileDescription = f.content.FileDescription
	content.ReferenceableParamGroupList = f.content.ReferenceableParamGroupList
	content.SoftwareList = f.content.SoftwareList
	content.InstrumentConfigurationList = f.content.InstrumentConfigurationList
	content.DataProcessingList = f.content.DataProcessingList
	content.Run = f.content.Run

	if err := enc.Encode(&content); err != nil {
		return err
	}
	return enc.Flush()
}

// AppendSoftwareInfo adds info to the SoftwareList tag of the mzML file
func (f *MzML) AppendSoftwareInfo(id string, version string) {
	if f.content.SoftwareList == nil {
		f.content.SoftwareList = &softwareList{}
	}
	f.content.SoftwareList.Count++
	f.content.SoftwareList.Software = append(f.content.SoftwareList.Software,
		software{ID: id, Version: version})
}

// AppendDataProcessing adds info to the DataProcessingList tag of the mzML file
func (f *MzML) AppendDataProcessing(proc DataProcessing) {
	if f.content.DataProcessingList == nil {
		f.content.DataProcessingList = &dataProcessingList{}
	}
	f.content.DataProcessingList.Count++
	f.content.DataProcessingList.DataProcessing = append(f.content.DataProcessingList.DataProcessing, proc)
}

// UpdateScan replaces the m/z and intensity arrays of a scan. The arrays
// keep the compression and precision they had in the input file.
func (f *MzML) UpdateScan(scanIndex int, mz, intensity []float64) error {
	if !f.validIndex(scanIndex) {
		return ErrInvalidScanIndex
	}
	if len(mz) != len(intensity) {
		return fmt.Errorf("%w: %d m/z and %d intensity values", ErrArrayLength, len(mz), len(intensity))
	}
	// msConvert refuses spectra without peaks, so write a single zero
	if len(mz) == 0 {
		mz, intensity = []float64{0}, []float64{0}
	}

	s := &f.content.Run.SpectrumList.Spectrum[scanIndex]
	s.DefaultArrayLength = int64(len(mz))
	for i := range s.BinaryDataArrayList.BinaryDataArray {
		a := &s.BinaryDataArrayList.BinaryDataArray[i]
		info, err := arrayPars(a)
		if err != nil {
			return err
		}
		var v []float64
		switch {
		case info.mz:
			v = mz
		case info.intensity:
			v = intensity
		default:
			continue
		}
		b64, err := encodeArray(v, info)
		if err != nil {
			return err
		}
		a.Binary = b64
		a.ArrayLength = len(v)
		a.EncodedLength = len(b64)
	}
	return nil
}

func encodeArray(v []float64, info arrayInfo) (string, error) {
	var raw []byte
	if info.bits64 {
		raw = make([]byte, len(v)*8)
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
		}
	} else {
		raw = make([]byte, len(v)*4)
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(x)))
		}
	}
	if info.zlib {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(raw); err != nil {
			return "", err
		}
		// the stream is only complete after Close
		if err := z.Close(); err != nil {
			return "", err
		}
		raw = b.Bytes()
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
