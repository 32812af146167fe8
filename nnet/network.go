// Package nnet contains routines for constructing, training and testing neural networks.
package nnet

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/num"
)

// Network type represents a multilayer neural network model.
type Network struct {
	Config
	Layers    []Layer
	queue     num.Queue
	optimizer Optimizer
	rng       *rand.Rand
	inShape   []int
	classes   buffer
	diffs     buffer
	total     *num.Array
	totalLoss *num.Array
	batchErr  *num.Array
	batchLoss *num.Array
}

// New function creates a new network with the given layers. inShape is the shape of a single input sample.
func New(q num.Queue, conf Config, inShape []int, rng *rand.Rand) *Network {
	conf = conf.WithDefaults()
	n := &Network{
		Config:    conf,
		queue:     q,
		rng:       rng,
		inShape:   append([]int{}, inShape...),
		classes:   buffer{dtype: num.Int32},
		diffs:     buffer{dtype: num.Int32},
		total:     q.NewArray(num.Float32),
		totalLoss: q.NewArray(num.Float32),
		batchErr:  q.NewArray(num.Float32),
		batchLoss: q.NewArray(num.Float32),
	}
	shape := n.inShape
	for _, l := range conf.Layers {
		layer := l.Unmarshal().Init(q, shape, rng)
		n.Layers = append(n.Layers, layer)
		shape = layer.OutShape(shape)
	}
	if len(n.Layers) == 0 {
		panic("New: no layers defined")
	}
	if _, ok := n.Layers[len(n.Layers)-1].(OutputLayer); !ok {
		panic("New: final layer must be an output layer")
	}
	n.optimizer = NewOptimizer(conf)
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			dW, dB := l.ParamGrads()
			n.optimizer.Add(W, dW, true)
			n.optimizer.Add(B, dB, false)
		}
	}
	return n
}

// Initialise network weights using Glorot uniform or normal distribution. Biases are set to zero.
func (n *Network) InitWeights() {
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			l.InitParams(n.queue, n.NormalWeights, n.rng)
		}
	}
	if n.DebugLevel >= 2 {
		n.PrintWeights()
	}
}

// Accessor for output layer
func (n *Network) OutLayer() OutputLayer {
	return n.Layers[len(n.Layers)-1].(OutputLayer)
}

// Queue used for network operations
func (n *Network) Queue() num.Queue {
	return n.queue
}

// Feed forward the input to get the predicted output. Dropout is only applied if trainMode is set.
func (n *Network) Fprop(input *num.Array, trainMode bool) *num.Array {
	pred := input
	for i, layer := range n.Layers {
		if n.DebugLevel >= 3 {
			fmt.Printf("layer %d input\n%s", i, pred.String(n.queue))
		}
		pred = layer.Fprop(n.queue, pred, trainMode)
	}
	return pred
}

// Back propagate through each layer in reverse order. The output layer is passed the one hot
// target labels and returns the gradient of the mean loss over the batch.
func (n *Network) Bprop(yOneHot *num.Array) {
	grad := yOneHot
	for i := len(n.Layers) - 1; i >= 0; i-- {
		grad = n.Layers[i].Bprop(n.queue, grad)
		if n.DebugLevel >= 3 {
			fmt.Printf("layer %d bprop output:\n%s", i, grad.String(n.queue))
		}
	}
}

// Update the weights using the optimizer after Bprop has been called.
func (n *Network) Update() {
	n.queue.Call(n.optimizer.Update()...)
}

// Predict output given input data, classes is set to the index of the most probable class for each sample.
func (n *Network) Predict(input, classes *num.Array) *num.Array {
	yPred := n.Fprop(input, false)
	if n.DebugLevel >= 2 {
		fmt.Printf("yPred\n%s", yPred.String(n.queue))
	}
	n.queue.Call(num.Unhot(yPred, classes))
	return yPred
}

// Calculate the mean loss and accuracy from the predicted versus actual values.
// If pred slice is not nil then it is set to the predicted output classes.
func (n *Network) Evaluate(dset *Dataset, pred []int32) (loss, accuracy float64) {
	if dset.Samples == 0 {
		return 0, 0
	}
	q := n.queue
	q.Call(num.Fill(n.total, 0), num.Fill(n.totalLoss, 0))
	for batch := 0; batch < dset.Batches; batch++ {
		x, y, yOneHot := dset.GetBatch(batch)
		size := batchSize(y)
		classes := n.classes.get(q, size, nil)
		diffs := n.diffs.get(q, size, nil)
		yPred := n.Predict(x, classes)
		q.Call(
			num.Neq(classes, y, diffs),
			num.Sum(diffs, n.batchErr, 1),
			num.Axpy(1, n.batchErr, n.total),
			num.Sum(n.OutLayer().Loss(q, yOneHot, yPred), n.batchLoss, 1),
			num.Axpy(1, n.batchLoss, n.totalLoss),
		)
		if pred != nil {
			start := batch * dset.BatchSize
			q.Call(num.Read(classes, pred[start:start+size]))
		}
		if n.DebugLevel >= 2 || (n.DebugLevel >= 1 && batch == 0) {
			fmt.Printf("batch %d error =%s", batch, n.batchErr.String(q))
		}
	}
	res := make([]float32, 2)
	q.Call(num.Read(n.total, res[:1]), num.Read(n.totalLoss, res[1:])).Finish()
	samples := float64(dset.Samples)
	return float64(res[1]) / samples, 1 - float64(res[0])/samples
}

// Classify returns the predicted class for each sample in data, which need not have valid labels.
func (n *Network) Classify(data Data, size int) []int32 {
	pred := make([]int32, data.Len())
	if data.Len() == 0 {
		return pred
	}
	q := n.queue
	dset := NewDataset(q, unlabeled{data}, size, 0, n.rng)
	for batch := 0; batch < dset.Batches; batch++ {
		x, y, _ := dset.GetBatch(batch)
		start := batch * dset.BatchSize
		end := start + batchSize(y)
		classes := n.classes.get(q, batchSize(y), nil)
		n.Predict(x, classes)
		q.Call(num.Read(classes, pred[start:end]))
	}
	q.Finish()
	return pred
}

// wrapper to zero the labels so that they are always in range
type unlabeled struct {
	Data
}

func (d unlabeled) Label(index []int, label []int32) {
	for i := range index {
		label[i] = 0
	}
}

// ParamCount returns the total number of trainable parameters.
func (n *Network) ParamCount() int {
	total := 0
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			total += l.NumParams()
		}
	}
	return total
}

// Print network description with the output shape and number of parameters for each layer
func (n *Network) String() string {
	s := []string{fmt.Sprintf("    %-40s %-14s %8s", "layer", "output shape", "params")}
	shape := n.inShape
	for i, layer := range n.Layers {
		shape = layer.OutShape(shape)
		params := 0
		if l, ok := layer.(ParamLayer); ok {
			params = l.NumParams()
		}
		s = append(s, fmt.Sprintf("%2d: %-40s %-14s %8d", i, layer.ToString(), fmt.Sprint(shape), params))
	}
	s = append(s, fmt.Sprintf("total params: %d", n.ParamCount()))
	return fmt.Sprintf("== Network ==\n%s", strings.Join(s, "\n"))
}

// Print network weights
func (n *Network) PrintWeights() {
	for i, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			fmt.Printf("== Layer %d weights ==\n%s %s\n", i, W.String(n.queue), B.String(n.queue))
		}
	}
}

// Exit in case of error
func CheckErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
