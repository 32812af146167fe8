package nnet

import (
	"encoding/gob"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path"
	"strconv"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/img"
	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/num"
)

var (
	DataDir   = "data"
	DataTypes = []string{"train", "test", "valid"}
)

// Data interface type represents the raw data for a training or test set.
// Shape is the per sample input shape in [channels, height, width] order.
type Data interface {
	Len() int
	Classes() []string
	Shape() []int
	Label(index []int, label []int32)
	Input(index []int, buf []float32)
	Image(i int) image.Image
}

// Dataset type encapsulates a set of training, test or validation data.
type Dataset struct {
	Data
	Samples   int
	BatchSize int
	Batches   int
	queue     num.Queue
	xBuffer   []float32
	yBuffer   []int32
	x, y, y1H *num.Array
	indexes   []int
	batch     int
	rng       *rand.Rand
}

// Create a new Dataset struct, allocate array buffers and set the batch size and maxSamples.
// If the batch size is zero or larger than the number of samples then a single batch is used.
func NewDataset(q num.Queue, data Data, batchSize, maxSamples int, rng *rand.Rand) *Dataset {
	d := &Dataset{Data: data, Samples: data.Len(), queue: q, rng: rng}
	if maxSamples > 0 && d.Samples > maxSamples {
		d.Samples = maxSamples
	}
	d.indexes = make([]int, d.Samples)
	for i := range d.indexes {
		d.indexes[i] = i
	}
	if d.Samples == 0 {
		return d
	}
	if batchSize <= 0 || batchSize > d.Samples {
		d.BatchSize = d.Samples
	} else {
		d.BatchSize = batchSize
	}
	d.Batches = d.Samples / d.BatchSize
	if d.Samples%d.BatchSize != 0 {
		d.Batches++
	}
	shape := data.Shape()
	d.xBuffer = make([]float32, num.Prod(shape)*d.BatchSize)
	d.yBuffer = make([]int32, d.BatchSize)
	d.x = q.NewArray(num.Float32, append([]int{d.BatchSize}, shape...)...)
	d.y = q.NewArray(num.Int32, d.BatchSize)
	d.y1H = q.NewArray(num.Float32, d.BatchSize, len(data.Classes()))
	return d
}

// GetBatch loads the given batch of data. The final batch may be smaller than BatchSize,
// in which case the returned arrays are views on the first rows of the buffers.
func (d *Dataset) GetBatch(batch int) (x, y, yOneHot *num.Array) {
	if batch < 0 || batch >= d.Batches {
		panic(fmt.Sprintf("GetBatch: batch %d out of range", batch))
	}
	// previous batch must be consumed before the host buffers are overwritten
	d.queue.Finish()
	start := batch * d.BatchSize
	end := start + d.BatchSize
	if end > d.Samples {
		end = d.Samples
	}
	n := end - start
	d.Input(d.indexes[start:end], d.xBuffer)
	d.Label(d.indexes[start:end], d.yBuffer)
	x, y, yOneHot = d.x.Rows(n), d.y.Rows(n), d.y1H.Rows(n)
	nfeat := num.Prod(d.Shape())
	d.queue.Call(
		num.Write(x, d.xBuffer[:n*nfeat]),
		num.Write(y, d.yBuffer[:n]),
		num.Onehot(y, yOneHot, len(d.Classes())),
	)
	return
}

// Get next batch of data
func (d *Dataset) NextBatch() (x, y, yOneHot *num.Array) {
	x, y, yOneHot = d.GetBatch(d.batch)
	d.batch = (d.batch + 1) % d.Batches
	return
}

// Called at start of each epoch
func (d *Dataset) NextEpoch() {
	d.batch = 0
}

// Shuffle the data set. If Samples is less than the full size then a new random subset is selected.
func (d *Dataset) Shuffle() {
	d.indexes = d.rng.Perm(d.Len())[:d.Samples]
}

// Decode data from file in gob format under DataDir
func LoadDataFile(name string) (SliceData, error) {
	var d SliceData
	filePath := path.Join(DataDir, name+".dat")
	f, err := os.Open(filePath)
	if err != nil {
		return d, err
	}
	defer f.Close()
	fmt.Printf("loading data from %s.dat:\t", name)
	if err = gob.NewDecoder(f).Decode(&d); err != nil {
		return d, err
	}
	fmt.Println(append(d.Shape(), d.Len()))
	return d, nil
}

// Encode in gob format and save to file under DataDir
func SaveDataFile(d SliceData, name string) error {
	if err := os.MkdirAll(DataDir, 0755); err != nil {
		return err
	}
	f, err := os.Create(path.Join(DataDir, name+".dat"))
	if err != nil {
		return err
	}
	fmt.Println("saving data to", name+".dat")
	if err = gob.NewEncoder(f).Encode(d); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Check if file exists under DataDir
func FileExists(name string) bool {
	filePath := path.Join(DataDir, name)
	_, err := os.Stat(filePath)
	return err == nil
}

// SliceData is an in memory data set which implements the Data interface.
// Inputs holds Len() samples each of size Prod(Dims) stored contiguously.
type SliceData struct {
	Class  []string
	Dims   []int
	Labels []int32
	Inputs []float32
}

// NewData function creates a new data set with numbered classes.
func NewData(nclasses int, shape []int, labels []int32, inputs []float32) SliceData {
	classes := make([]string, nclasses)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return SliceData{Class: classes, Dims: shape, Labels: labels, Inputs: inputs}
}

func (d SliceData) Len() int { return len(d.Labels) }

func (d SliceData) Classes() []string { return d.Class }

func (d SliceData) Shape() []int { return d.Dims }

func (d SliceData) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

func (d SliceData) Input(index []int, buf []float32) {
	nfeat := num.Prod(d.Dims)
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Inputs[ix*nfeat:(ix+1)*nfeat])
	}
}

// Image returns sample i as a grayscale image rescaled for display, or nil if the input is not a single channel image.
func (d SliceData) Image(i int) image.Image {
	if len(d.Dims) != 3 || d.Dims[0] != 1 {
		return nil
	}
	h, w := d.Dims[1], d.Dims[2]
	pix := d.Inputs[i*h*w : (i+1)*h*w]
	return img.NewGrayFrom(w, h, pix).Scaled()
}
