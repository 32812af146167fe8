package nnet

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/num"
)

// Layer interface type represents one layer of the neural net.
// Shapes passed to Init and OutShape are per sample and exclude the leading batch dimension.
type Layer interface {
	Init(q num.Queue, inShape []int, rng *rand.Rand) Layer
	OutShape(inShape []int) []int
	Fprop(q num.Queue, in *num.Array, trainMode bool) *num.Array
	Bprop(q num.Queue, grad *num.Array) *num.Array
	Type() string
	ToString() string
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	Layer
	InitParams(q num.Queue, normal bool, rng *rand.Rand)
	Params() (W, B *num.Array)
	ParamGrads() (dW, dB *num.Array)
	NumParams() int
}

// OutputLayer is the final layer in the stack. Its Bprop method is passed the one hot target labels
// in place of the output gradient and returns the gradient of the mean loss with respect to its input.
type OutputLayer interface {
	Layer
	Loss(q num.Queue, yOneHot, yPred *num.Array) *num.Array
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage `json:",omitempty"`
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() Layer {
	switch l.Type {
	case "conv":
		cfg := new(Conv)
		return cfg.unmarshal(l.Data)
	case "maxPool":
		cfg := new(MaxPool)
		return cfg.unmarshal(l.Data)
	case "dropout":
		cfg := new(Dropout)
		return cfg.unmarshal(l.Data)
	case "linear":
		cfg := new(Linear)
		return cfg.unmarshal(l.Data)
	case "activation":
		cfg := new(Activation)
		return cfg.unmarshal(l.Data)
	case "softmax":
		return &softmax{}
	case "flatten":
		return &flatten{}
	default:
		panic("invalid layer type: " + l.Type)
	}
}

func (l LayerConfig) String() string {
	return l.Unmarshal().ToString()
}

// Convolutional layer, implements ParamLayer interface.
type Conv struct {
	Nfeats, Size, Stride, Pad int
}

func (c Conv) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	return LayerConfig{Type: "conv", Data: marshal(c)}
}

func (c Conv) Type() string { return "conv" }

func (c Conv) ToString() string {
	return fmt.Sprintf("conv %+v", c)
}

func (c *Conv) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &conv{Conv: *c}
}

// Max pooling layer, should follow conv layer.
type MaxPool struct {
	Size, Stride int
}

func (c MaxPool) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = c.Size
	}
	return LayerConfig{Type: "maxPool", Data: marshal(c)}
}

func (c MaxPool) Type() string { return "maxPool" }

func (c MaxPool) ToString() string {
	return fmt.Sprintf("maxPool %+v", c)
}

func (c *MaxPool) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &maxPool{MaxPool: *c}
}

// Dropout layer zeros a random fraction of its inputs during training only.
type Dropout struct {
	Ratio float64
}

func (c Dropout) Marshal() LayerConfig {
	return LayerConfig{Type: "dropout", Data: marshal(c)}
}

func (c Dropout) Type() string { return "dropout" }

func (c Dropout) ToString() string {
	return fmt.Sprintf("dropout %+v", c)
}

func (c *Dropout) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &dropout{Dropout: *c}
}

// Linear fully connected layer, implements ParamLayer interface.
type Linear struct {
	Nout int
}

func (c Linear) Marshal() LayerConfig {
	return LayerConfig{Type: "linear", Data: marshal(c)}
}

func (c Linear) Type() string { return "linear" }

func (c Linear) ToString() string {
	return fmt.Sprintf("linear %+v", c)
}

func (c *Linear) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &linear{Linear: *c}
}

// Sigmoid, tanh or relu activation layer.
type Activation struct {
	Atype string
}

func (c Activation) Marshal() LayerConfig {
	return LayerConfig{Type: "activation", Data: marshal(c)}
}

func (c Activation) Type() string { return c.Atype }

func (c Activation) ToString() string {
	return fmt.Sprintf("activation %+v", c)
}

func (c *Activation) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	layer := &activation{Activation: *c}
	switch c.Atype {
	case "sigmoid":
		layer.activ = num.Sigmoid
		layer.deriv = num.SigmoidD
	case "tanh":
		layer.activ = num.Tanh
		layer.deriv = num.TanhD
	case "relu":
		layer.activ = num.Relu
		layer.deriv = num.ReluD
	default:
		panic(fmt.Sprintf("activation type %s invalid", c.Atype))
	}
	return layer
}

// Softmax output layer, implements OutputLayer interface with categorical cross entropy loss.
type Softmax struct{}

func (c Softmax) Marshal() LayerConfig {
	return LayerConfig{Type: "softmax"}
}

// Flatten layer reshapes from [depth, height, width] to a vector per sample.
type Flatten struct{}

func (c Flatten) Marshal() LayerConfig {
	return LayerConfig{Type: "flatten"}
}

// convolutional layer implementation
type conv struct {
	Conv
	layerBase
	paramBase
	layer *num.ConvLayer
}

func (l *conv) OutShape(inShape []int) []int {
	stride := l.Stride
	if stride < 1 {
		stride = 1
	}
	return []int{
		l.Nfeats,
		(inShape[1]+2*l.Pad-l.Size)/stride + 1,
		(inShape[2]+2*l.Pad-l.Size)/stride + 1,
	}
}

func (l *conv) Init(q num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 3 {
		panic("Conv: expect 3 dimensional input")
	}
	l.layer = num.NewConvLayer(inShape[0], inShape[1], inShape[2], l.Nfeats, l.Size, l.Stride, l.Pad)
	l.layerBase = newLayerBase(inShape, l.layer.OutShape())
	fan := l.Size * l.Size
	l.paramBase = newParams(q, l.layer.FilterShape(), l.layer.BiasShape(), inShape[0]*fan, l.Nfeats*fan)
	return l
}

func (l *conv) Fprop(q num.Queue, in *num.Array, trainMode bool) *num.Array {
	l.src = in
	y := l.dst.get(q, batchSize(in), l.outShape)
	q.Call(num.ConvFprop(l.layer, in, l.w, l.b, y))
	return y
}

func (l *conv) Bprop(q num.Queue, grad *num.Array) *num.Array {
	dx := l.dsrc.get(q, batchSize(grad), l.inShape)
	q.Call(num.ConvBprop(l.layer, l.src, l.w, l.b, grad, dx, l.dw, l.db))
	return dx
}

// pool layer implentation
type maxPool struct {
	MaxPool
	layerBase
	layer *num.PoolLayer
}

func (l *maxPool) OutShape(inShape []int) []int {
	stride := l.Stride
	if stride < 1 {
		stride = l.Size
	}
	return []int{inShape[0], (inShape[1]-l.Size)/stride + 1, (inShape[2]-l.Size)/stride + 1}
}

func (l *maxPool) Init(q num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 3 {
		panic("MaxPool: expect 3 dimensional input")
	}
	l.layer = num.NewPoolLayer(inShape[0], inShape[1], inShape[2], l.Size, l.Stride)
	l.layerBase = newLayerBase(inShape, l.layer.OutShape())
	return l
}

func (l *maxPool) Fprop(q num.Queue, in *num.Array, trainMode bool) *num.Array {
	l.src = in
	y := l.dst.get(q, batchSize(in), l.outShape)
	q.Call(num.MaxPoolFprop(l.layer, in, y))
	return y
}

func (l *maxPool) Bprop(q num.Queue, grad *num.Array) *num.Array {
	dx := l.dsrc.get(q, batchSize(grad), l.inShape)
	q.Call(num.MaxPoolBprop(l.layer, l.src, grad, dx))
	return dx
}

// dropout layer implementation, a no-op when not in training mode
type dropout struct {
	Dropout
	layerBase
	mask  buffer
	layer *num.DropoutLayer
}

func (l *dropout) Init(q num.Queue, inShape []int, rng *rand.Rand) Layer {
	if l.Ratio < 0 || l.Ratio >= 1 {
		panic(fmt.Sprintf("Dropout: ratio %g must be in range [0, 1)", l.Ratio))
	}
	l.layerBase = newLayerBase(inShape, inShape)
	l.mask = buffer{dtype: num.Float32}
	l.layer = num.NewDropoutLayer(l.Ratio, inShape)
	return l
}

func (l *dropout) Fprop(q num.Queue, in *num.Array, trainMode bool) *num.Array {
	if !trainMode || l.Ratio == 0 {
		return in
	}
	n := batchSize(in)
	y := l.dst.get(q, n, l.outShape)
	q.Call(num.DropoutFprop(l.layer, in, y, l.mask.get(q, n, l.outShape)))
	return y
}

func (l *dropout) Bprop(q num.Queue, grad *num.Array) *num.Array {
	if l.Ratio == 0 {
		return grad
	}
	n := batchSize(grad)
	dx := l.dsrc.get(q, n, l.inShape)
	q.Call(num.DropoutBprop(grad, l.mask.get(q, n, l.outShape), dx))
	return dx
}

// linear layer implementation
type linear struct {
	Linear
	layerBase
	paramBase
	ones buffer
}

func (l *linear) OutShape(inShape []int) []int {
	return []int{l.Nout}
}

func (l *linear) Init(q num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 1 {
		panic("Linear: expect 1 dimensional input - add a flatten layer")
	}
	nIn := inShape[0]
	l.layerBase = newLayerBase(inShape, l.OutShape(inShape))
	l.paramBase = newParams(q, []int{l.Nout, nIn}, []int{l.Nout}, nIn, l.Nout)
	l.ones = buffer{dtype: num.Float32}
	return l
}

func (l *linear) Fprop(q num.Queue, in *num.Array, trainMode bool) *num.Array {
	n := batchSize(in)
	l.src = in.Reshape(n, -1)
	y := l.dst.get(q, n, l.outShape)
	q.Call(
		num.Copy(y, l.b),
		num.Gemm(1, 1, l.src, l.w, y, num.NoTrans, num.Trans),
	)
	return y
}

func (l *linear) Bprop(q num.Queue, grad *num.Array) *num.Array {
	n := batchSize(grad)
	ones := l.ones.get(q, n, nil)
	dx := l.dsrc.get(q, n, l.inShape)
	q.Call(
		num.Fill(ones, 1),
		num.Gemv(1, 0, grad, ones, l.db, num.Trans),
		num.Gemm(1, 0, grad, l.src, l.dw, num.Trans, num.NoTrans),
		num.Gemm(1, 0, grad, l.w, dx, num.NoTrans, num.NoTrans),
	)
	return dx
}

// activation layers
type activation struct {
	Activation
	layerBase
	activ func(x, y *num.Array) num.Function
	deriv func(x, y, z *num.Array) num.Function
}

func (l *activation) Init(q num.Queue, inShape []int, rng *rand.Rand) Layer {
	l.layerBase = newLayerBase(inShape, inShape)
	return l
}

func (l *activation) Fprop(q num.Queue, in *num.Array, trainMode bool) *num.Array {
	l.src = in
	y := l.dst.get(q, batchSize(in), l.outShape)
	q.Call(l.activ(l.src, y))
	return y
}

func (l *activation) Bprop(q num.Queue, grad *num.Array) *num.Array {
	dx := l.dsrc.get(q, batchSize(grad), l.inShape)
	q.Call(l.deriv(l.src, grad, dx))
	return dx
}

// softmax output layer
type softmax struct {
	layerBase
	loss   buffer
	layer  *num.SoftmaxLayer
	target *num.Array
}

func (l *softmax) Type() string { return "softmax" }

func (l *softmax) ToString() string { return "softmax" }

func (l *softmax) Init(q num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 1 {
		panic("Softmax: expect 1 dimensional input")
	}
	l.layerBase = newLayerBase(inShape, inShape)
	l.loss = buffer{dtype: num.Float32}
	l.layer = num.NewSoftmaxLayer(inShape[0])
	return l
}

func (l *softmax) Fprop(q num.Queue, in *num.Array, trainMode bool) *num.Array {
	l.src = in
	l.target = nil
	y := l.dst.get(q, batchSize(in), l.outShape)
	q.Call(num.SoftmaxFprop(l.layer, l.src, y))
	return y
}

// Loss is computed from the logits saved by the last Fprop call, yPred is its output.
// The input gradient is calculated at the same time and kept for the following Bprop.
func (l *softmax) Loss(q num.Queue, yOneHot, yPred *num.Array) *num.Array {
	n := batchSize(yPred)
	loss := l.loss.get(q, n, nil)
	q.Call(num.SoftmaxLoss(l.layer, l.src, yOneHot, loss, l.dsrc.get(q, n, l.inShape)))
	l.target = yOneHot
	return loss
}

func (l *softmax) Bprop(q num.Queue, yOneHot *num.Array) *num.Array {
	if yOneHot != l.target {
		l.Loss(q, yOneHot, l.src)
	}
	return l.dsrc.get(q, batchSize(yOneHot), l.inShape)
}

type flatten struct {
	layerBase
}

func (l *flatten) Type() string { return "flatten" }

func (l *flatten) ToString() string { return "flatten" }

func (l *flatten) OutShape(inShape []int) []int {
	return []int{num.Prod(inShape)}
}

func (l *flatten) Init(q num.Queue, inShape []int, rng *rand.Rand) Layer {
	l.layerBase = newLayerBase(inShape, l.OutShape(inShape))
	return l
}

func (l *flatten) Fprop(q num.Queue, in *num.Array, trainMode bool) *num.Array {
	l.src = in
	return in.Reshape(batchSize(in), -1)
}

func (l *flatten) Bprop(q num.Queue, grad *num.Array) *num.Array {
	return grad.Reshape(l.src.Dims()...)
}

// base layer type with output and input gradient buffers
type layerBase struct {
	inShape  []int
	outShape []int
	src      *num.Array
	dst      buffer
	dsrc     buffer
}

func newLayerBase(inShape, outShape []int) layerBase {
	return layerBase{
		inShape:  inShape,
		outShape: outShape,
		dst:      buffer{dtype: num.Float32},
		dsrc:     buffer{dtype: num.Float32},
	}
}

func (l layerBase) OutShape(inShape []int) []int { return inShape }

// buffer is an array which is reallocated if the batch size increases
type buffer struct {
	arr   *num.Array
	dtype num.DataType
}

func (b *buffer) get(q num.Queue, n int, shape []int) *num.Array {
	if b.arr == nil || b.arr.Dims()[0] < n || !num.SameShape(b.arr.Dims()[1:], shape) {
		b.arr = q.NewArray(b.dtype, append([]int{n}, shape...)...)
	}
	return b.arr.Rows(n)
}

func batchSize(a *num.Array) int {
	return a.Dims()[0]
}

// weight and bias parameters
type paramBase struct {
	w, b    *num.Array
	dw, db  *num.Array
	fanIn   int
	fanOut  int
	nParams int
}

func newParams(q num.Queue, wShape, bShape []int, fanIn, fanOut int) paramBase {
	return paramBase{
		w:       q.NewArray(num.Float32, wShape...),
		b:       q.NewArray(num.Float32, bShape...),
		dw:      q.NewArray(num.Float32, wShape...),
		db:      q.NewArray(num.Float32, bShape...),
		fanIn:   fanIn,
		fanOut:  fanOut,
		nParams: num.Prod(wShape) + num.Prod(bShape),
	}
}

func (p paramBase) Params() (W, B *num.Array) {
	return p.w, p.b
}

func (p paramBase) ParamGrads() (dW, dB *num.Array) {
	return p.dw, p.db
}

func (p paramBase) NumParams() int {
	return p.nParams
}

// InitParams sets the weights using Glorot uniform initialisation, or a scaled normal distribution if normal is set.
// Biases are set to zero.
func (p paramBase) InitParams(q num.Queue, normal bool, rng *rand.Rand) {
	weights := make([]float32, p.w.Size())
	limit := math.Sqrt(6 / float64(p.fanIn+p.fanOut))
	stddev := math.Sqrt(2 / float64(p.fanIn+p.fanOut))
	for i := range weights {
		if normal {
			weights[i] = float32(rng.NormFloat64() * stddev)
		} else {
			weights[i] = float32((2*rng.Float64() - 1) * limit)
		}
	}
	q.Call(
		num.Write(p.w, weights),
		num.Fill(p.b, 0),
	)
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data json.RawMessage, v interface{}) {
	if len(data) == 0 {
		return
	}
	err := json.Unmarshal(data, v)
	if err != nil {
		panic(err)
	}
}
