package num

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	T "gorgonia.org/tensor"
)

// ConvLayer holds the geometry for a 2d convolution and the compiled gorgonia graphs for each batch size.
// Input has shape [n, C, H, W], filter [Nfeats, C, Size, Size] and output [n, Nfeats, OutH, OutW].
type ConvLayer struct {
	C, H, W      int
	Nfeats, Size int
	Stride, Pad  int
	OutH, OutW   int
	fwd, bwd     graphs
}

// NewConvLayer sets up a new convolution with the given input shape, number of features, kernel size, stride and padding.
func NewConvLayer(depth, h, w, nFeats, size, stride, pad int) *ConvLayer {
	if stride < 1 {
		stride = 1
	}
	l := &ConvLayer{C: depth, H: h, W: w, Nfeats: nFeats, Size: size, Stride: stride, Pad: pad}
	l.OutH = (h+2*pad-size)/stride + 1
	l.OutW = (w+2*pad-size)/stride + 1
	if l.OutH < 1 || l.OutW < 1 {
		panic(fmt.Sprintf("ConvLayer: kernel size %d too large for %dx%d input", size, h, w))
	}
	l.fwd, l.bwd = graphs{}, graphs{}
	return l
}

func (l *ConvLayer) InShape() []int { return []int{l.C, l.H, l.W} }

func (l *ConvLayer) OutShape() []int { return []int{l.Nfeats, l.OutH, l.OutW} }

func (l *ConvLayer) FilterShape() []int { return []int{l.Nfeats, l.C, l.Size, l.Size} }

func (l *ConvLayer) BiasShape() []int { return []int{l.Nfeats} }

func (l *ConvLayer) check(name string, in, out *Array) int {
	idim, odim := in.Dims(), out.Dims()
	if len(idim) != 4 || !SameShape(idim[1:], l.InShape()) {
		panic(fmt.Sprintf("%s: input shape %v invalid - expecting [n %v]", name, idim, l.InShape()))
	}
	if len(odim) != 4 || odim[0] != idim[0] || !SameShape(odim[1:], l.OutShape()) {
		panic(fmt.Sprintf("%s: output shape %v invalid - expecting [%d %v]", name, odim, idim[0], l.OutShape()))
	}
	return idim[0]
}

// y = conv(x, w) + b with the bias broadcast over the batch and spatial axes
func (l *ConvLayer) build(g *G.ExprGraph, in []*G.Node) ([]*G.Node, error) {
	conv, err := G.Conv2d(in[0], in[1], T.Shape{l.Size, l.Size},
		[]int{l.Pad, l.Pad}, []int{l.Stride, l.Stride}, []int{1, 1})
	if err != nil {
		return nil, err
	}
	y, err := G.BroadcastAdd(conv, in[2], nil, []byte{0, 2, 3})
	if err != nil {
		return nil, err
	}
	return []*G.Node{y}, nil
}

func (l *ConvLayer) shapes(n int) [][]int {
	return [][]int{batchShape(n, l.InShape()), l.FilterShape(), l.BiasShape()}
}

// ConvFprop computes the forward convolution: y <- w * x + b
func ConvFprop(l *ConvLayer, x, w, b, y *Array) Function {
	n := l.check("ConvFprop", x, y)
	checkParams("ConvFprop", l, w, b)
	checkFloat32("ConvFprop", x, w, b, y)
	return args("conv_fprop", func() {
		gr := l.fwd.get(n, func() *graph {
			return newGraph("conv_fprop", l.shapes(n), l.build)
		})
		gr.run([]*Array{x, w, b}, []*Array{y})
	})
}

// ConvBprop computes the gradients with respect to the input, filter weights and bias given the
// output gradient dy. Weight and bias gradients are summed over the batch.
func ConvBprop(l *ConvLayer, x, w, b, dy, dx, dw, db *Array) Function {
	n := l.check("ConvBprop", x, dy)
	l.check("ConvBprop", dx, dy)
	checkParams("ConvBprop", l, w, b)
	checkParams("ConvBprop", l, dw, db)
	checkFloat32("ConvBprop", x, w, b, dy, dx, dw, db)
	return args("conv_bprop", func() {
		gr := l.bwd.get(n, func() *graph {
			return gradGraph("conv_bprop", l.shapes(n), batchShape(n, l.OutShape()), l.build)
		})
		gr.run([]*Array{x, w, b, dy}, []*Array{dx, dw, db})
	})
}

func checkParams(name string, l *ConvLayer, w, b *Array) {
	if !SameShape(w.Dims(), l.FilterShape()) || !SameShape(b.Dims(), l.BiasShape()) {
		panic(fmt.Sprintf("%s: invalid parameter shapes %v %v", name, w.Dims(), b.Dims()))
	}
}
