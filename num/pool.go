package num

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	T "gorgonia.org/tensor"
)

// PoolLayer holds the geometry for a 2d max pooling operation without padding.
type PoolLayer struct {
	C, H, W      int
	Size, Stride int
	OutH, OutW   int
	fwd, bwd     graphs
}

// NewPoolLayer sets up max pooling over size x size windows. Stride defaults to the window size.
func NewPoolLayer(depth, h, w, size, stride int) *PoolLayer {
	if stride < 1 {
		stride = size
	}
	l := &PoolLayer{C: depth, H: h, W: w, Size: size, Stride: stride}
	l.OutH = (h-size)/stride + 1
	l.OutW = (w-size)/stride + 1
	if l.OutH < 1 || l.OutW < 1 {
		panic(fmt.Sprintf("PoolLayer: window size %d too large for %dx%d input", size, h, w))
	}
	l.fwd, l.bwd = graphs{}, graphs{}
	return l
}

func (l *PoolLayer) InShape() []int { return []int{l.C, l.H, l.W} }

func (l *PoolLayer) OutShape() []int { return []int{l.C, l.OutH, l.OutW} }

func (l *PoolLayer) check(name string, x, y *Array) int {
	xdim, ydim := x.Dims(), y.Dims()
	if len(xdim) != 4 || !SameShape(xdim[1:], l.InShape()) || len(ydim) != 4 || ydim[0] != xdim[0] || !SameShape(ydim[1:], l.OutShape()) {
		panic(fmt.Sprintf("%s: invalid shapes %v -> %v", name, xdim, ydim))
	}
	checkFloat32(name, x, y)
	return xdim[0]
}

func (l *PoolLayer) build(g *G.ExprGraph, in []*G.Node) ([]*G.Node, error) {
	y, err := G.MaxPool2D(in[0], T.Shape{l.Size, l.Size}, []int{0, 0}, []int{l.Stride, l.Stride})
	if err != nil {
		return nil, err
	}
	return []*G.Node{y}, nil
}

// MaxPoolFprop takes the maximum over each window.
func MaxPoolFprop(l *PoolLayer, x, y *Array) Function {
	n := l.check("MaxPoolFprop", x, y)
	return args("maxpool_fprop", func() {
		gr := l.fwd.get(n, func() *graph {
			return newGraph("maxpool_fprop", [][]int{batchShape(n, l.InShape())}, l.build)
		})
		gr.run([]*Array{x}, []*Array{y})
	})
}

// MaxPoolBprop routes the output gradient back to the input positions selected in the forward pass on x.
func MaxPoolBprop(l *PoolLayer, x, dy, dx *Array) Function {
	n := l.check("MaxPoolBprop", x, dy)
	l.check("MaxPoolBprop", dx, dy)
	return args("maxpool_bprop", func() {
		gr := l.bwd.get(n, func() *graph {
			return gradGraph("maxpool_bprop", [][]int{batchShape(n, l.InShape())}, batchShape(n, l.OutShape()), l.build)
		})
		gr.run([]*Array{x, dy}, []*Array{dx})
	})
}
