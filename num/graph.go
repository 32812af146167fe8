package num

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	T "gorgonia.org/tensor"
)

// graph is a compiled gorgonia expression with float32 input and output nodes.
// Array contents are copied into the input tensors before each run and the outputs copied back after.
type graph struct {
	vm      G.VM
	inputs  []*G.Node
	values  []*T.Dense
	outputs []*G.Node
}

// builder adds the operations to the graph given the input nodes and returns the output nodes.
type builder func(g *G.ExprGraph, in []*G.Node) ([]*G.Node, error)

func newGraph(name string, shapes [][]int, build builder) *graph {
	g := G.NewGraph()
	gr := &graph{}
	for i, shape := range shapes {
		n := G.NewTensor(g, T.Float32, len(shape), G.WithShape(shape...), G.WithName(fmt.Sprintf("%s_in%d", name, i)))
		gr.inputs = append(gr.inputs, n)
		gr.values = append(gr.values, T.New(T.Of(T.Float32), T.WithShape(shape...)))
	}
	var err error
	if gr.outputs, err = build(g, gr.inputs); err != nil {
		panic(fmt.Sprintf("%s: error building graph: %v", name, err))
	}
	gr.vm = G.NewTapeMachine(g)
	return gr
}

// gradGraph builds the forward expression and the gradient of sum(y*dy) with respect to each input,
// where dy is an extra input node of the same shape as the single forward output y.
// The outputs of the graph are the gradients in the order of the inputs.
func gradGraph(name string, shapes [][]int, outShape []int, fwd builder) *graph {
	n := len(shapes)
	return newGraph(name, append(shapes, outShape), func(g *G.ExprGraph, in []*G.Node) ([]*G.Node, error) {
		out, err := fwd(g, in[:n])
		if err != nil {
			return nil, err
		}
		prod, err := G.HadamardProd(out[0], in[n])
		if err != nil {
			return nil, err
		}
		cost, err := G.Sum(prod)
		if err != nil {
			return nil, err
		}
		return G.Grad(cost, in[:n]...)
	})
}

func (gr *graph) run(in []*Array, out []*Array) {
	for i, a := range in {
		copy(gr.values[i].Data().([]float32), a.f32)
		if err := G.Let(gr.inputs[i], gr.values[i]); err != nil {
			panic(err)
		}
	}
	if err := gr.vm.RunAll(); err != nil {
		panic(err)
	}
	for i, n := range gr.outputs {
		switch d := n.Value().Data().(type) {
		case []float32:
			copy(out[i].f32, d)
		case float32:
			out[i].f32[0] = d
		default:
			panic(fmt.Sprintf("graph: unexpected output type %T", d))
		}
	}
	gr.vm.Reset()
}

// graphs caches one compiled graph per batch size
type graphs map[int]*graph

func (c graphs) get(n int, build func() *graph) *graph {
	gr, ok := c[n]
	if !ok {
		gr = build()
		c[n] = gr
	}
	return gr
}

func batchShape(n int, shape []int) []int {
	return append([]int{n}, shape...)
}

func checkFloat32(name string, arr ...*Array) {
	for _, a := range arr {
		if a.Dtype() != Float32 {
			panic(name + ": dtype must by Float32")
		}
	}
}

// dense returns a tensor which shares the array data
func dense(a *Array) *T.Dense {
	return T.New(T.WithShape(a.Size()), T.WithBacking(a.f32))
}
