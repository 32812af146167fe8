package asl

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/nnet"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Raw is a labeled image set as read from disk, one image of Pixels values per row.
type Raw struct {
	Images *mat.Dense
	Labels []int32
}

// Len returns the number of records.
func (r *Raw) Len() int {
	return len(r.Labels)
}

// LoadFile reads a labeled image CSV file.
func LoadFile(path string) (*Raw, error) {
	images, labels, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return &Raw{Images: images, Labels: labels}, nil
}

// LoadCSV reads a CSV file with a header row containing a "label" column and Pixels pixel
// intensity columns in row major order. The label column is split from the pixel data.
func LoadCSV(path string) (*mat.Dense, []int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open data file")
	}
	defer f.Close()
	images, labels, err := ReadCSV(f)
	if err != nil {
		return nil, nil, errors.Wrap(err, path)
	}
	return images, labels, nil
}

// ReadCSV parses labeled image records from r.
func ReadCSV(r io.Reader) (*mat.Dense, []int32, error) {
	rd := csv.NewReader(r)
	rd.ReuseRecord = true
	header, err := rd.Read()
	if err == io.EOF {
		return nil, nil, errors.Wrap(ErrInsufficientData, "no header row")
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "read header")
	}
	labelCol := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "label" {
			labelCol = i
			break
		}
	}
	if labelCol < 0 {
		return nil, nil, errors.Wrap(ErrShape, "missing label column")
	}
	if n := len(header) - 1; n != Pixels {
		return nil, nil, errors.Wrapf(ErrShape, "have %d pixel columns, expect %d", n, Pixels)
	}
	var pixels []float64
	var labels []int32
	for line := 2; ; line++ {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(ErrShape, "line %d: %v", line, err)
		}
		for i, field := range rec {
			field = strings.TrimSpace(field)
			if i == labelCol {
				label, err := strconv.ParseInt(field, 10, 32)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "line %d: invalid label", line)
				}
				labels = append(labels, int32(label))
				continue
			}
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "line %d: invalid pixel value", line)
			}
			if math.IsNaN(val) || math.IsInf(val, 0) {
				return nil, nil, errors.Wrapf(ErrNotFinite, "line %d column %d", line, i+1)
			}
			if val != math.Trunc(val) || val < 0 || val > 255 {
				return nil, nil, errors.Wrapf(ErrShape, "line %d column %d: pixel value %s not an integer in 0-255", line, i+1, field)
			}
			pixels = append(pixels, val)
		}
	}
	if len(labels) == 0 {
		return nil, nil, errors.Wrap(ErrInsufficientData, "no records")
	}
	return mat.NewDense(len(labels), Pixels, pixels), labels, nil
}

// LoadCached reads the CSV file at path, or the gob encoded copy under nnet.DataDir if it was
// saved by a previous run. A new cache file is written after parsing the CSV.
func LoadCached(path string) (*Raw, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if nnet.FileExists(name + ".dat") {
		d, err := nnet.LoadDataFile(name)
		if err != nil {
			return nil, errors.Wrap(err, "load cache")
		}
		return FromData(d)
	}
	raw, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err = nnet.SaveDataFile(raw.Data(), name); err != nil {
		return nil, errors.Wrap(err, "save cache")
	}
	return raw, nil
}

// Data converts to the in memory data set format with one [1, Height, Width] sample per record.
func (r *Raw) Data() nnet.SliceData {
	return nnet.SliceData{
		Class:  Letters,
		Dims:   []int{1, Height, Width},
		Labels: append([]int32{}, r.Labels...),
		Inputs: inputs(r.Images),
	}
}

// FromData converts a data set back to the raw format.
func FromData(d nnet.SliceData) (*Raw, error) {
	if d.Len() == 0 {
		return nil, ErrInsufficientData
	}
	if len(d.Inputs) != d.Len()*Pixels {
		return nil, errors.Wrapf(ErrShape, "have %d values for %d images", len(d.Inputs), d.Len())
	}
	pixels := make([]float64, len(d.Inputs))
	for i, v := range d.Inputs {
		pixels[i] = float64(v)
	}
	return &Raw{
		Images: mat.NewDense(d.Len(), Pixels, pixels),
		Labels: append([]int32{}, d.Labels...),
	}, nil
}
