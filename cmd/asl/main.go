package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/asl"
	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/nnet"
	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/num"
	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/plots"
)

func load(path string, cache bool) *asl.Raw {
	var raw *asl.Raw
	var err error
	if cache {
		raw, err = asl.LoadCached(path)
	} else {
		raw, err = asl.LoadFile(path)
	}
	nnet.CheckErr(err)
	rows, cols := raw.Images.Dims()
	fmt.Printf("loaded %s: images [%d %d] labels [%d]\n", path, rows, cols, raw.Len())
	return raw
}

func letter(label int32) string {
	if label < 0 || int(label) >= len(asl.Letters) {
		return "?"
	}
	return asl.Letters[label]
}

// settings holds the -set flag values in key=val form
type settings []string

func (s *settings) String() string { return strings.Join(*s, " ") }

func (s *settings) Set(val string) error {
	if !strings.Contains(val, "=") {
		return fmt.Errorf("expecting key=val: %q", val)
	}
	*s = append(*s, val)
	return nil
}

// apply each setting to the named config field
func (s settings) apply(conf nnet.Config) (nnet.Config, error) {
	var err error
	for _, kv := range s {
		pair := strings.SplitN(kv, "=", 2)
		if conf, err = conf.SetString(pair[0], pair[1]); err != nil {
			return conf, err
		}
	}
	return conf, nil
}

func showPredictions(title string, pred, labels []int32, n int) {
	if n > len(pred) {
		n = len(pred)
	}
	fmt.Println(title)
	fmt.Print("predict:")
	for _, p := range pred[:n] {
		fmt.Print(" ", letter(p))
	}
	fmt.Print("\nlabels: ")
	for _, l := range labels[:n] {
		fmt.Print(" ", letter(l))
	}
	fmt.Println()
}

func main() {
	var (
		trainFile, testFile, outDir, model, norm string
		show, cache                              bool
		set                                      settings
	)
	conf := asl.DefaultConfig()
	conf.MaxEpoch = 30
	validFrac := 0.3

	flag.StringVar(&nnet.DataDir, "data", nnet.DataDir, "directory for config and cache files")
	flag.StringVar(&trainFile, "train", "train.csv", "training data csv file")
	flag.StringVar(&testFile, "test", "test.csv", "test data csv file")
	flag.StringVar(&outDir, "out", ".", "directory for output plots")
	flag.StringVar(&model, "config", "", "load network config <name>.net from data directory")
	flag.StringVar(&norm, "norm", "unit", "pixel normalisation: unit or range")
	flag.Float64Var(&validFrac, "valid", validFrac, "fraction of training records held out for validation")
	flag.BoolVar(&show, "show", false, "save grid of sample training images")
	flag.BoolVar(&cache, "cache", false, "cache parsed data files under data directory")
	flag.Float64Var(&conf.Eta, "eta", conf.Eta, "learning rate")
	flag.Int64Var(&conf.RandSeed, "seed", conf.RandSeed, "random number seed")
	flag.IntVar(&conf.MaxEpoch, "epochs", conf.MaxEpoch, "max epochs")
	flag.IntVar(&conf.TrainBatch, "batch", conf.TrainBatch, "train batch size")
	flag.IntVar(&conf.LogEvery, "verbose", conf.LogEvery, "log stats every n epochs, 0 for none")
	flag.IntVar(&conf.StopAfter, "stop", conf.StopAfter, "stop if no improvement in validation loss after n epochs")
	flag.IntVar(&conf.DebugLevel, "debug", conf.DebugLevel, "debug logging level")
	flag.BoolVar(&conf.Profile, "profile", conf.Profile, "print profiling info")
	flag.Var(&set, "set", "set config field as key=val, may be repeated")
	flag.Parse()

	if model != "" {
		loaded, err := nnet.LoadConfig(model + ".net")
		nnet.CheckErr(err)
		// command line flags take precedence over the saved settings
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "eta":
				loaded.Eta = conf.Eta
			case "seed":
				loaded.RandSeed = conf.RandSeed
			case "epochs":
				loaded.MaxEpoch = conf.MaxEpoch
			case "batch":
				loaded.TrainBatch = conf.TrainBatch
			case "verbose":
				loaded.LogEvery = conf.LogEvery
			case "stop":
				loaded.StopAfter = conf.StopAfter
			case "debug":
				loaded.DebugLevel = conf.DebugLevel
			case "profile":
				loaded.Profile = conf.Profile
			}
		})
		conf = loaded
	}
	conf, err := set.apply(conf)
	nnet.CheckErr(err)
	policy, err := asl.ParseNorm(norm)
	nnet.CheckErr(err)
	nnet.CheckErr(os.MkdirAll(outDir, 0755))

	// load and prepare the data
	train := load(trainFile, cache)
	test := load(testFile, cache)
	data, err := asl.Prepare(train.Images, train.Labels, asl.PrepareOptions{
		ValidFrac: validFrac,
		Seed:      conf.RandSeed,
		Norm:      policy,
	})
	nnet.CheckErr(err)
	fmt.Printf("train: %v valid: %v norm: %s\n", data.Train.TensorShape(), data.Valid.TensorShape(), data.Norm)
	if conf.DebugLevel >= 1 {
		mean, std := data.Train.PixelStats()
		fmt.Printf("train pixels: mean=%.4f std=%.4f\n", mean, std)
	}
	if show {
		file := filepath.Join(outDir, "samples.png")
		nnet.CheckErr(plots.Images(data.Train, file))
		fmt.Println("saved sample images to", file)
	}

	// build and train the model
	q := num.NewCPUDevice().NewQueue()
	m := asl.NewModel(q, conf, policy, nil)
	history := asl.Train(m, data, asl.TrainOptions{
		BatchSize:   conf.TrainBatch,
		Epochs:      conf.MaxEpoch,
		Verbose:     conf.LogEvery,
		Predictions: conf.DebugLevel >= 1,
	})
	if m.ValidPred != nil {
		showPredictions("validation set", m.ValidPred, data.Valid.Labels, 20)
	}
	file := filepath.Join(outDir, "accuracy.png")
	nnet.CheckErr(plots.Accuracy(history, file))
	if len(history) > 0 {
		fmt.Println("saved accuracy plot to", file)
	}

	// score on the test set
	pred, err := asl.Predict(m, test.Images)
	nnet.CheckErr(err)
	if conf.DebugLevel >= 1 {
		showPredictions("test set", pred, test.Labels, 20)
	}
	acc, err := asl.Accuracy(test.Labels, pred)
	nnet.CheckErr(err)
	fmt.Println(acc)
	q.Shutdown()
}
