package num

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// SoftmaxLayer applies softmax over the last axis of a [n, classes] matrix and computes
// the categorical cross entropy loss against one hot labels.
type SoftmaxLayer struct {
	Classes   int
	fwd, loss graphs
}

func NewSoftmaxLayer(classes int) *SoftmaxLayer {
	return &SoftmaxLayer{Classes: classes, fwd: graphs{}, loss: graphs{}}
}

func (l *SoftmaxLayer) check(name string, arr ...*Array) int {
	n := -1
	for _, a := range arr {
		dims := a.Dims()
		if len(dims) != 2 || dims[1] != l.Classes || (n >= 0 && dims[0] != n) {
			panic(fmt.Sprintf("%s: invalid shape %v - expecting [n %d]", name, dims, l.Classes))
		}
		n = dims[0]
	}
	checkFloat32(name, arr...)
	return n
}

// SoftmaxFprop sets each row of y to the softmax of the corresponding row of x.
func SoftmaxFprop(l *SoftmaxLayer, x, y *Array) Function {
	n := l.check("SoftmaxFprop", x, y)
	return args("softmax", func() {
		gr := l.fwd.get(n, func() *graph {
			return newGraph("softmax", [][]int{{n, l.Classes}}, func(g *G.ExprGraph, in []*G.Node) ([]*G.Node, error) {
				y, err := G.SoftMax(in[0], 1)
				return []*G.Node{y}, err
			})
		})
		gr.run([]*Array{x}, []*Array{y})
	})
}

// SoftmaxLoss takes the logits x and one hot labels y1h. It sets loss[i] to the cross entropy of row i
// and dx to the gradient of the mean loss over the batch with respect to x.
func SoftmaxLoss(l *SoftmaxLayer, x, y1h, loss, dx *Array) Function {
	n := l.check("SoftmaxLoss", x, y1h, dx)
	if ldim := loss.Dims(); len(ldim) != 1 || ldim[0] != n {
		panic(fmt.Sprintf("SoftmaxLoss: loss shape %v invalid - expecting [%d]", ldim, n))
	}
	checkFloat32("SoftmaxLoss", loss)
	return args("softmax_loss", func() {
		gr := l.loss.get(n, func() *graph {
			shape := []int{n, l.Classes}
			return newGraph("softmax_loss", [][]int{shape, shape}, crossEntropy)
		})
		gr.run([]*Array{x, y1h}, []*Array{loss, dx})
	})
}

// rows = -sum(y1h * log(softmax(x)), 1), outputs are rows and d(mean(rows))/dx
func crossEntropy(g *G.ExprGraph, in []*G.Node) ([]*G.Node, error) {
	logp, err := G.LogSoftMax(in[0], 1)
	if err != nil {
		return nil, err
	}
	prod, err := G.HadamardProd(in[1], logp)
	if err != nil {
		return nil, err
	}
	rows, err := G.Sum(G.Must(G.Neg(prod)), 1)
	if err != nil {
		return nil, err
	}
	cost, err := G.Mean(rows)
	if err != nil {
		return nil, err
	}
	grads, err := G.Grad(cost, in[0])
	if err != nil {
		return nil, err
	}
	return []*G.Node{rows, grads[0]}, nil
}
