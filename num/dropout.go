package num

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// DropoutLayer zeros each input with probability Ratio and scales the rest by 1/(1-Ratio).
// The random mask is drawn by gorgonia on each forward pass.
type DropoutLayer struct {
	Ratio float64
	Shape []int
	fwd   graphs
	ones  map[int]*Array
}

// NewDropoutLayer sets up dropout for per sample inputs of the given shape.
func NewDropoutLayer(ratio float64, shape []int) *DropoutLayer {
	if ratio < 0 || ratio >= 1 {
		panic(fmt.Sprintf("DropoutLayer: ratio %g must be in range [0, 1)", ratio))
	}
	return &DropoutLayer{Ratio: ratio, Shape: append([]int{}, shape...), fwd: graphs{}, ones: map[int]*Array{}}
}

// mask = dropout(ones), y = x * mask
func (l *DropoutLayer) build(g *G.ExprGraph, in []*G.Node) ([]*G.Node, error) {
	mask, err := G.Dropout(in[1], l.Ratio)
	if err != nil {
		return nil, err
	}
	y, err := G.HadamardProd(in[0], mask)
	if err != nil {
		return nil, err
	}
	return []*G.Node{y, mask}, nil
}

// DropoutFprop applies a new random mask to x. The scale factor applied to each element is saved in mask.
func DropoutFprop(l *DropoutLayer, x, y, mask *Array) Function {
	dims := x.Dims()
	if len(dims) == 0 || !SameShape(dims[1:], l.Shape) {
		panic(fmt.Sprintf("DropoutFprop: input shape %v invalid - expecting [n %v]", dims, l.Shape))
	}
	if y.Size() != x.Size() || mask.Size() != x.Size() {
		panic("DropoutFprop: arrays must be same size")
	}
	checkFloat32("DropoutFprop", x, y, mask)
	n := dims[0]
	return args("dropout_fprop", func() {
		ones, ok := l.ones[n]
		if !ok {
			ones = newArray(Float32, batchShape(n, l.Shape))
			for i := range ones.f32 {
				ones.f32[i] = 1
			}
			l.ones[n] = ones
		}
		gr := l.fwd.get(n, func() *graph {
			shape := batchShape(n, l.Shape)
			return newGraph("dropout_fprop", [][]int{shape, shape}, l.build)
		})
		gr.run([]*Array{x, ones}, []*Array{y, mask})
	})
}

// DropoutBprop applies the saved mask to the output gradient.
func DropoutBprop(dy, mask, dx *Array) Function {
	return Mul(dy, mask, dx)
}
