package asl

import (
	"fmt"
	"math/rand"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/nnet"
	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/num"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultConfig returns the network definition: two convolution and max pooling blocks, dropout
// and a dense softmax output layer trained with the Adam optimizer.
func DefaultConfig() nnet.Config {
	conf := nnet.Config{
		DataSet:    "asl",
		Optimizer:  "adam",
		Eta:        nnet.DefaultEta,
		Beta1:      nnet.DefaultBeta1,
		Beta2:      nnet.DefaultBeta2,
		Epsilon:    nnet.DefaultEpsilon,
		Shuffle:    true,
		TrainBatch: 128,
		TestBatch:  128,
		MaxEpoch:   50,
		LogEvery:   1,
		RandSeed:   1,
	}
	return conf.AddLayers(
		nnet.Conv{Nfeats: 64, Size: 3},
		nnet.Activation{Atype: "relu"},
		nnet.MaxPool{Size: 2},
		nnet.Conv{Nfeats: 32, Size: 3},
		nnet.Activation{Atype: "relu"},
		nnet.MaxPool{Size: 2},
		nnet.Dropout{Ratio: 0.25},
		nnet.Flatten{},
		nnet.Linear{Nout: Classes},
		nnet.Softmax{},
	)
}

// Model wraps the network with the normalisation applied to images before prediction.
type Model struct {
	Net  *nnet.Network
	Norm NormPolicy
	// Predicted class for each validation record after the last epoch, if requested in TrainOptions.
	ValidPred []int32
	queue     num.Queue
	rng       *rand.Rand
}

// NewModel builds the network from the config with freshly initialised weights and prints a summary.
// norm is used by Predict until Train replaces it with the policy of the training data.
func NewModel(q num.Queue, conf nnet.Config, norm NormPolicy, rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewSource(conf.RandSeed))
	}
	m := &Model{Norm: norm, queue: q, rng: rng}
	m.Net = nnet.New(q, conf, []int{1, Height, Width}, rng)
	m.Net.InitWeights()
	if conf.Profile {
		q.Profiling(true)
	}
	if conf.LogEvery >= 0 {
		fmt.Println(m.Net)
	}
	return m
}

// TrainOptions sets the mini-batch size, number of epochs and logging. Verbose 0 disables the
// per epoch log, 1 logs every epoch and n > 1 logs every n epochs. If Predictions is set the
// validation predictions from the final epoch are saved in Model.ValidPred.
type TrainOptions struct {
	BatchSize   int
	Epochs      int
	Verbose     int
	Predictions bool
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{BatchSize: 128, Epochs: 50, Verbose: 1}
}

// Train fits the model weights to the training split, evaluating loss and accuracy on both
// splits after each epoch. It returns one entry per epoch run.
func Train(m *Model, d *Data, opts TrainOptions) nnet.History {
	net := m.Net
	m.Norm = d.Norm
	net.TrainBatch = opts.BatchSize
	net.TestBatch = opts.BatchSize
	net.MaxEpoch = opts.Epochs
	if opts.Verbose > 0 {
		net.LogEvery = opts.Verbose
	} else {
		net.LogEvery = -1
	}
	if opts.Epochs <= 0 {
		return nnet.History{}
	}
	data := map[string]nnet.Data{"train": d.Train, "valid": d.Valid}
	tester := nnet.NewTestLogger(m.queue, net.Config, data, m.rng)
	if opts.Predictions {
		tester.Predict()
	}
	dset := nnet.NewDataset(m.queue, d.Train, net.TrainBatch, net.MaxSamples, m.rng)
	nnet.Train(net, dset, tester)
	if opts.Predictions {
		m.ValidPred = tester.Pred["valid"]
	}
	return tester.Stats
}

// Predict normalises the images in the same way as the training data and returns the most
// probable label for each row.
func Predict(m *Model, images *mat.Dense) ([]int32, error) {
	if images == nil || images.IsEmpty() {
		return []int32{}, nil
	}
	if err := checkImages(images); err != nil {
		return nil, err
	}
	rows, _ := images.Dims()
	data := nnet.SliceData{
		Class:  Letters,
		Dims:   []int{1, Height, Width},
		Labels: make([]int32, rows),
		Inputs: inputs(Normalize(images, m.Norm)),
	}
	return m.Net.Classify(data, m.Net.TestBatch), nil
}

// Accuracy returns the fraction of predictions which match the true labels.
func Accuracy(truth, pred []int32) (float64, error) {
	if len(truth) != len(pred) {
		return 0, errors.Wrapf(ErrShape, "have %d labels and %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return 0, errors.Wrap(ErrInsufficientData, "accuracy")
	}
	correct := 0
	for i, p := range pred {
		if p == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth)), nil
}
