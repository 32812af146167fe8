package num

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	T "gorgonia.org/tensor"
)

// Solver updates a set of parameter arrays in place from their gradients using a gorgonia solver.
type Solver struct {
	solver G.Solver
	model  []G.ValueGrad
}

// NewAdamSolver returns a solver using the adaptive moment estimation update.
func NewAdamSolver(eta, beta1, beta2, epsilon float64) *Solver {
	return &Solver{solver: G.NewAdamSolver(G.WithLearnRate(eta), G.WithBeta1(beta1), G.WithBeta2(beta2), G.WithEps(epsilon))}
}

// NewSGDSolver returns a plain gradient descent solver. If l2 is non-zero weight decay is applied.
func NewSGDSolver(eta, l2 float64) *Solver {
	opts := []G.SolverOpt{G.WithLearnRate(eta)}
	if l2 != 0 {
		opts = append(opts, G.WithL2Reg(l2))
	}
	return &Solver{solver: G.NewVanillaSolver(opts...)}
}

// Add registers the parameter array x with gradient dx. Both tensors share the array storage
// so that updates are visible through x.
func (s *Solver) Add(x, dx *Array) {
	if x.Size() != dx.Size() {
		panic(fmt.Sprintf("Solver: arrays must be same size: %v %v", x.Dims(), dx.Dims()))
	}
	checkFloat32("Solver", x, dx)
	s.model = append(s.model, paramGrad{value: dense(x), grad: dense(dx)})
}

// Params returns the number of registered arrays.
func (s *Solver) Params() int { return len(s.model) }

// SolverStep applies one update to each of the registered parameters.
func SolverStep(s *Solver) Function {
	return args("solver_step", func() {
		if err := s.solver.Step(s.model); err != nil {
			panic(err)
		}
	})
}

type paramGrad struct {
	value, grad *T.Dense
}

func (p paramGrad) Value() G.Value { return p.value }

func (p paramGrad) Grad() (G.Value, error) { return p.grad, nil }
