package asl

import (
	"math"
	"math/rand"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/img"
	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/nnet"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NormPolicy selects how pixel intensities are scaled.
type NormPolicy int

const (
	// UnitNorm scales each image vector to unit Euclidean length. Blank images are left as zeros.
	UnitNorm NormPolicy = iota
	// Range255 divides each intensity by 255.
	Range255
)

func (p NormPolicy) String() string {
	switch p {
	case UnitNorm:
		return "unit"
	case Range255:
		return "range"
	default:
		return "invalid"
	}
}

// ParseNorm converts the name of a normalisation policy.
func ParseNorm(s string) (NormPolicy, error) {
	switch s {
	case "unit":
		return UnitNorm, nil
	case "range":
		return Range255, nil
	}
	return 0, errors.Errorf("invalid normalisation %q: expect unit or range", s)
}

// PrepareOptions controls the train / validation split.
type PrepareOptions struct {
	ValidFrac float64
	Seed      int64
	Norm      NormPolicy
}

// DefaultPrepareOptions holds out 30% of the records for validation with a fixed seed.
func DefaultPrepareOptions() PrepareOptions {
	return PrepareOptions{ValidFrac: 0.3, Seed: 1, Norm: UnitNorm}
}

// Split is one labeled partition of the data. It implements nnet.Data with one
// [1, Height, Width] sample per record.
type Split struct {
	nnet.SliceData
	// Normalised images, one row per record
	Images *mat.Dense
	// One hot encoded labels with Classes columns
	OneHot *mat.Dense
}

// TensorShape returns the image tensor shape as [records, height, width, channels].
func (s *Split) TensorShape() []int {
	return []int{s.Len(), Height, Width, 1}
}

// PixelStats returns the mean and standard deviation of the normalised pixel values.
func (s *Split) PixelStats() (mean, std float32) {
	images := make([]*img.GrayImage, s.Len())
	for i := range images {
		images[i] = img.NewGrayFrom(Width, Height, s.Inputs[i*Pixels:(i+1)*Pixels])
	}
	return img.GetStats(images)
}

// Data is the output of Prepare.
type Data struct {
	Train *Split
	Valid *Split
	Norm  NormPolicy
}

// Prepare normalises the images, one hot encodes the labels and partitions the records into
// disjoint training and validation splits. The returned splits never share memory with the input.
func Prepare(images *mat.Dense, labels []int32, opts PrepareOptions) (*Data, error) {
	if images == nil || images.IsEmpty() || len(labels) == 0 {
		return nil, errors.Wrap(ErrInsufficientData, "prepare")
	}
	if err := checkImages(images); err != nil {
		return nil, err
	}
	rows, _ := images.Dims()
	if rows != len(labels) {
		return nil, errors.Wrapf(ErrShape, "have %d images and %d labels", rows, len(labels))
	}
	oneHot, err := OneHot(labels, Classes)
	if err != nil {
		return nil, err
	}
	if opts.ValidFrac == 0 {
		opts.ValidFrac = 0.3
	}
	train, valid, err := SplitIndex(rows, opts.ValidFrac, opts.Seed)
	if err != nil {
		return nil, err
	}
	norm := Normalize(images, opts.Norm)
	return &Data{
		Train: newSplit(norm, oneHot, labels, train),
		Valid: newSplit(norm, oneHot, labels, valid),
		Norm:  opts.Norm,
	}, nil
}

func checkImages(images *mat.Dense) error {
	rows, cols := images.Dims()
	if cols != Pixels {
		return errors.Wrapf(ErrShape, "have %d pixels per image, expect %d", cols, Pixels)
	}
	for i := 0; i < rows; i++ {
		for j, v := range images.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrNotFinite, "image %d pixel %d", i, j)
			}
		}
	}
	return nil
}

// Normalize returns a scaled copy of the images.
func Normalize(images *mat.Dense, policy NormPolicy) *mat.Dense {
	norm := mat.DenseCopyOf(images)
	rows, _ := norm.Dims()
	for i := 0; i < rows; i++ {
		row := norm.RawRowView(i)
		switch policy {
		case Range255:
			floats.Scale(1.0/255, row)
		default:
			if l := floats.Norm(row, 2); l > 0 {
				floats.Scale(1/l, row)
			}
		}
	}
	return norm
}

// OneHot encodes each label as a row with a single one in the label column.
func OneHot(labels []int32, classes int) (*mat.Dense, error) {
	if len(labels) == 0 {
		return nil, errors.Wrap(ErrInsufficientData, "one hot")
	}
	m := mat.NewDense(len(labels), classes, nil)
	for i, label := range labels {
		if label < 0 || int(label) >= classes {
			return nil, errors.Wrapf(ErrLabelRange, "record %d: label %d not in [0, %d]", i, label, classes-1)
		}
		m.Set(i, int(label), 1)
	}
	return m, nil
}

// Unhot returns the index of the largest value in each row.
func Unhot(m mat.Matrix) []int32 {
	rows, cols := m.Dims()
	labels := make([]int32, rows)
	row := make([]float64, cols)
	for i := range labels {
		mat.Row(row, i, m)
		labels[i] = int32(floats.MaxIdx(row))
	}
	return labels
}

// SplitIndex randomly partitions n record indexes with ceil(validFrac*n) held out for validation.
// The same seed always gives the same partition.
func SplitIndex(n int, validFrac float64, seed int64) (train, valid []int, err error) {
	if validFrac <= 0 || validFrac >= 1 {
		return nil, nil, errors.Errorf("validation fraction %g must be between 0 and 1", validFrac)
	}
	nValid := int(math.Ceil(validFrac*float64(n) - 1e-9))
	if nValid < 1 || nValid >= n {
		return nil, nil, errors.Wrapf(ErrInsufficientData, "cannot split %d records", n)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nValid:], perm[:nValid], nil
}

func newSplit(images, oneHot *mat.Dense, labels []int32, index []int) *Split {
	s := &Split{
		SliceData: nnet.SliceData{
			Class:  Letters,
			Dims:   []int{1, Height, Width},
			Labels: make([]int32, len(index)),
		},
		Images: mat.NewDense(len(index), Pixels, nil),
		OneHot: mat.NewDense(len(index), Classes, nil),
	}
	for i, ix := range index {
		s.Images.SetRow(i, images.RawRowView(ix))
		s.OneHot.SetRow(i, oneHot.RawRowView(ix))
		s.Labels[i] = labels[ix]
	}
	s.Inputs = inputs(s.Images)
	return s
}

// flatten image matrix to float32 network inputs
func inputs(images *mat.Dense) []float32 {
	rows, cols := images.Dims()
	buf := make([]float32, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for _, v := range images.RawRowView(i) {
			buf = append(buf, float32(v))
		}
	}
	return buf
}
