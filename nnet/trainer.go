package nnet

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/num"
	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/stats"
)

// number of epochs for the moving average of the validation loss
const emaN = 10

// Loss and accuracy for one data set
type Metric struct {
	Name     string
	Loss     float64
	Accuracy float64
}

// Training statistics
type Stats struct {
	Epoch     int
	Loss      float64
	Metrics   []Metric
	AvgLoss   float64
	BestSince int
	Elapsed   time.Duration
}

// Get metrics for the named data set
func (s Stats) Get(name string) (Metric, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

func (s Stats) Format() string {
	str := []string{fmt.Sprintf("loss =%7.4f", s.Loss)}
	for _, m := range s.Metrics {
		str = append(str, fmt.Sprintf("%s loss =%7.4f  %s acc =%6.2f%%", m.Name, m.Loss, m.Name, m.Accuracy*100))
	}
	return strings.Join(str, "  ")
}

// History is the list of stats with one entry per epoch.
type History []Stats

// Accuracy returns the accuracy for the named data set for each epoch.
func (h History) Accuracy(name string) []float64 {
	acc := make([]float64, 0, len(h))
	for _, s := range h {
		if m, ok := s.Get(name); ok {
			acc = append(acc, m.Accuracy)
		}
	}
	return acc
}

// Last returns the final entry, or ok=false if empty.
func (h History) Last() (s Stats, ok bool) {
	if len(h) == 0 {
		return s, false
	}
	return h[len(h)-1], true
}

// Tester interface to evaluate the performance after each epoch, Test method returns true if training should stop.
type Tester interface {
	Test(net *Network, epoch int, loss float64, start time.Time) bool
}

// Tester which evaluates the loss and accuracy for each of the data sets and updates the stats.
type TestBase struct {
	Data  map[string]*Dataset
	Pred  map[string][]int32
	Stats History
	best  float64
}

// Create a new base class which implements the Tester interface.
func NewTestBase() *TestBase {
	return &TestBase{Stats: History{}}
}

// Initialise the test datasets.
func (t *TestBase) Init(queue num.Queue, conf Config, data map[string]Data, rng *rand.Rand) *TestBase {
	conf = conf.WithDefaults()
	t.Data = make(map[string]*Dataset)
	t.Pred = nil
	for key, d := range data {
		if conf.DebugLevel >= 1 {
			fmt.Printf("init tester: %s samples=%d batch size=%d\n", key, d.Len(), conf.TestBatch)
		}
		t.Data[key] = NewDataset(queue, d, conf.TestBatch, conf.MaxSamples, rng)
	}
	return t
}

// Generate the predicted results when test is next run.
func (t *TestBase) Predict() *TestBase {
	t.Pred = make(map[string][]int32)
	for key, dset := range t.Data {
		t.Pred[key] = make([]int32, dset.Samples)
	}
	return t
}

// Test performance of the network, called from the Train function on completion of each epoch.
func (t *TestBase) Test(net *Network, epoch int, loss float64, start time.Time) bool {
	if net.DebugLevel >= 1 {
		fmt.Printf("== TEST EPOCH %d ==\n", epoch)
	}
	s := Stats{Epoch: epoch, Loss: loss, BestSince: -1}
	for _, key := range DataTypes {
		dset, ok := t.Data[key]
		if !ok {
			continue
		}
		if dset.Samples < dset.Len() {
			dset.Shuffle()
		}
		var pred []int32
		if t.Pred != nil {
			pred = t.Pred[key]
		}
		m := Metric{Name: key}
		m.Loss, m.Accuracy = net.Evaluate(dset, pred)
		s.Metrics = append(s.Metrics, m)
		if key == "valid" {
			s.AvgLoss, s.BestSince = t.bestSince(m.Loss)
		}
	}
	s.Elapsed = time.Since(start)
	t.Stats = append(t.Stats, s)
	return epoch >= net.MaxEpoch || (net.StopAfter > 0 && s.BestSince >= net.StopAfter)
}

// moving average of the validation loss and number of epochs since it was lowest
func (t *TestBase) bestSince(loss float64) (avg float64, since int) {
	prev := 0.0
	if n := len(t.Stats); n > 0 {
		prev = t.Stats[n-1].AvgLoss
	}
	avg = stats.EMA(prev).Add(loss, emaN)
	if len(t.Stats) == 0 || avg < t.best {
		t.best = avg
		return avg, 0
	}
	return avg, t.Stats[len(t.Stats)-1].BestSince + 1
}

// TestLogger is a tester which also logs stats to stdout.
type TestLogger struct {
	*TestBase
}

// Create a new tester which logs stats to stdout. Set LogEvery in the config to log every n epochs
// or to a negative value to disable logging.
func NewTestLogger(queue num.Queue, conf Config, data map[string]Data, rng *rand.Rand) TestLogger {
	return TestLogger{TestBase: NewTestBase().Init(queue, conf, data, rng)}
}

func (t TestLogger) Test(net *Network, epoch int, loss float64, start time.Time) bool {
	done := t.TestBase.Test(net, epoch, loss, start)
	if net.LogEvery < 0 {
		return done
	}
	s := t.Stats[len(t.Stats)-1]
	if done || net.LogEvery == 0 || epoch%net.LogEvery == 0 {
		msg := fmt.Sprintf("epoch %3d:  %s", epoch, s.Format())
		if s.BestSince >= 0 {
			msg += fmt.Sprintf(" [%d]", s.BestSince)
		}
		fmt.Println(msg)
	}
	if done {
		fmt.Printf("run time: %s\n", s.Elapsed.Round(10*time.Millisecond))
	}
	return done
}

// Train the network on the given training set by updating the weights
func Train(net *Network, dset *Dataset, test Tester) {
	if dset.Samples == 0 {
		return
	}
	acc := net.queue.NewArray(num.Float32)
	done := false
	start := time.Now()
	for epoch := 1; epoch <= net.MaxEpoch && !done; epoch++ {
		loss := TrainEpoch(net, dset, acc)
		done = test.Test(net, epoch, loss, start)
	}
}

// Perform one training epoch on dataset, returns the mean loss over the batches prior to each weight update.
func TrainEpoch(net *Network, dset *Dataset, acc *num.Array) float64 {
	q := net.queue
	if net.Shuffle {
		dset.Shuffle()
	}
	q.Call(num.Fill(acc, 0))
	dset.NextEpoch()
	for batch := 0; batch < dset.Batches; batch++ {
		if net.DebugLevel >= 2 || (net.DebugLevel == 1 && batch == 0) {
			fmt.Printf("== train batch %d ==\n", batch)
		}
		x, _, yOneHot := dset.NextBatch()
		yPred := net.Fprop(x, true)
		if net.DebugLevel >= 2 {
			fmt.Printf("yOneHot:\n%s", yOneHot.String(q))
			fmt.Printf("yPred:\n%s", yPred.String(q))
		}
		// sum loss over batches
		losses := net.OutLayer().Loss(q, yOneHot, yPred)
		q.Call(
			num.Sum(losses, net.batchLoss, 1),
			num.Axpy(1, net.batchLoss, acc),
		)
		net.Bprop(yOneHot)
		net.Update()
		if net.DebugLevel >= 3 || (batch == dset.Batches-1 && net.DebugLevel >= 2) {
			net.PrintWeights()
		}
	}
	lossVal := make([]float32, 1)
	q.Call(num.Read(acc, lossVal)).Finish()
	return float64(lossVal[0]) / float64(dset.Samples)
}
