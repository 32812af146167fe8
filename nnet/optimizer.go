package nnet

import (
	"fmt"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/num"
)

// Optimizer updates the network parameters from their gradients after each batch.
type Optimizer interface {
	// Add registers parameter x with gradient dx. weights is false for bias arrays.
	Add(x, dx *num.Array, weights bool)
	// Update returns the operations to apply one step to all of the registered parameters.
	Update() []num.Function
}

// NewOptimizer returns the optimizer named in the config, either "adam" or "sgd".
func NewOptimizer(c Config) Optimizer {
	c = c.WithDefaults()
	switch c.Optimizer {
	case "adam":
		return &adam{num.NewAdamSolver(c.Eta, c.Beta1, c.Beta2, c.Epsilon)}
	case "sgd":
		return &sgd{
			weights: num.NewSGDSolver(c.Eta, c.Lambda),
			biases:  num.NewSGDSolver(c.Eta, 0),
		}
	default:
		panic(fmt.Sprintf("optimizer %q invalid", c.Optimizer))
	}
}

// adaptive moment estimation with bias correction
type adam struct {
	solver *num.Solver
}

func (o *adam) Add(x, dx *num.Array, weights bool) {
	o.solver.Add(x, dx)
}

func (o *adam) Update() []num.Function {
	return []num.Function{num.SolverStep(o.solver)}
}

// stochastic gradient descent, L2 weight decay is not applied to the biases
type sgd struct {
	weights, biases *num.Solver
}

func (o *sgd) Add(x, dx *num.Array, weights bool) {
	if weights {
		o.weights.Add(x, dx)
	} else {
		o.biases.Add(x, dx)
	}
}

func (o *sgd) Update() (fn []num.Function) {
	for _, s := range []*num.Solver{o.weights, o.biases} {
		if s.Params() > 0 {
			fn = append(fn, num.SolverStep(s))
		}
	}
	return fn
}
