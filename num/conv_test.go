package num

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

const eps = 1e-3

var dev = NewCPUDevice()

func randArray(rng *rand.Rand, size int, min, max float32) []float32 {
	v := make([]float32, size)
	for i := range v {
		v[i] = min + rng.Float32()*(max-min)
	}
	return v
}

// direct convolution used to check the graph version
func convNaive(l *ConvLayer, n int, x, w, b []float32) []float32 {
	out := make([]float32, n*Prod(l.OutShape()))
	for i := 0; i < n; i++ {
		for f := 0; f < l.Nfeats; f++ {
			for oy := 0; oy < l.OutH; oy++ {
				for ox := 0; ox < l.OutW; ox++ {
					sum := b[f]
					for c := 0; c < l.C; c++ {
						for ky := 0; ky < l.Size; ky++ {
							for kx := 0; kx < l.Size; kx++ {
								y, x0 := oy*l.Stride-l.Pad+ky, ox*l.Stride-l.Pad+kx
								if y < 0 || y >= l.H || x0 < 0 || x0 >= l.W {
									continue
								}
								sum += w[((f*l.C+c)*l.Size+ky)*l.Size+kx] * x[((i*l.C+c)*l.H+y)*l.W+x0]
							}
						}
					}
					out[((i*l.Nfeats+f)*l.OutH+oy)*l.OutW+ox] = sum
				}
			}
		}
	}
	return out
}

func setupConv(q Queue, pad int) (l *ConvLayer, x, w, b, y *Array) {
	rng := rand.New(rand.NewSource(42))
	l = NewConvLayer(2, 6, 5, 3, 3, 1, pad)
	n := 2
	x = dev.NewArray(Float32, append([]int{n}, l.InShape()...)...)
	w = dev.NewArray(Float32, l.FilterShape()...)
	b = dev.NewArray(Float32, l.BiasShape()...)
	y = dev.NewArray(Float32, append([]int{n}, l.OutShape()...)...)
	q.Call(
		Write(x, randArray(rng, x.Size(), 0, 1)),
		Write(w, randArray(rng, w.Size(), -0.5, 0.5)),
		Write(b, randArray(rng, b.Size(), 0.1, 0.2)),
	)
	return
}

func TestConvFprop(t *testing.T) {
	for _, pad := range []int{0, 1} {
		q := dev.NewQueue()
		l, x, w, b, y := setupConv(q, pad)
		q.Call(ConvFprop(l, x, w, b, y)).Finish()
		expect := convNaive(l, 2, x.f32, w.f32, b.f32)
		for i := range expect {
			if math.Abs(float64(y.f32[i]-expect[i])) > 1e-5 {
				t.Fatalf("pad=%d: output %d got %g expect %g", pad, i, y.f32[i], expect[i])
			}
		}
	}
}

// loss is sum(y * r) so that dL/dy = r
func convLoss(q Queue, l *ConvLayer, x, w, b, y, r *Array) float64 {
	q.Call(ConvFprop(l, x, w, b, y)).Finish()
	var sum float64
	for i, v := range y.f32 {
		sum += float64(v * r.f32[i])
	}
	return sum
}

func checkGrad(t *testing.T, name string, param, grad *Array, loss func() float64) {
	const delta = 0.1
	for _, i := range []int{0, param.Size() / 3, param.Size() / 2, param.Size() - 1} {
		orig := param.f32[i]
		param.f32[i] = orig + delta
		lp := loss()
		param.f32[i] = orig - delta
		lm := loss()
		param.f32[i] = orig
		numeric := (lp - lm) / (2 * delta)
		if math.Abs(numeric-float64(grad.f32[i])) > eps*math.Max(1, math.Abs(numeric)) {
			t.Errorf("%s[%d]: got %g numeric %g", name, i, grad.f32[i], numeric)
		}
	}
}

func TestConvBprop(t *testing.T) {
	q := dev.NewQueue()
	l, x, w, b, y := setupConv(q, 1)
	rng := rand.New(rand.NewSource(1))
	r := dev.NewArrayLike(y)
	dx := dev.NewArrayLike(x)
	dw := dev.NewArrayLike(w)
	db := dev.NewArrayLike(b)
	q.Call(
		Write(r, randArray(rng, r.Size(), -1, 1)),
		ConvBprop(l, x, w, b, r, dx, dw, db),
	).Finish()
	loss := func() float64 { return convLoss(q, l, x, w, b, y, r) }
	checkGrad(t, "dx", x, dx, loss)
	checkGrad(t, "dw", w, dw, loss)
	checkGrad(t, "db", b, db, loss)
}

func TestMaxPool(t *testing.T) {
	q := dev.NewQueue()
	l := NewPoolLayer(1, 5, 5, 2, 0)
	if shape := l.OutShape(); !reflect.DeepEqual(shape, []int{1, 2, 2}) {
		t.Fatal("got shape", shape, "expect [1 2 2]")
	}
	x := dev.NewArray(Float32, 1, 1, 5, 5)
	y := dev.NewArray(Float32, 1, 1, 2, 2)
	in := make([]float32, 25)
	for i := range in {
		in[i] = float32(i)
	}
	res := make([]float32, 4)
	q.Call(
		Write(x, in),
		MaxPoolFprop(l, x, y),
		Read(y, res),
	).Finish()
	expect := []float32{6, 8, 16, 18}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
	dy := dev.NewArray(Float32, 1, 1, 2, 2)
	dx := dev.NewArrayLike(x)
	grad := make([]float32, 25)
	q.Call(
		Write(dy, []float32{1, 2, 3, 4}),
		MaxPoolBprop(l, x, dy, dx),
		Read(dx, grad),
	).Finish()
	expGrad := make([]float32, 25)
	expGrad[6], expGrad[8], expGrad[16], expGrad[18] = 1, 2, 3, 4
	if !reflect.DeepEqual(grad, expGrad) {
		t.Error("got", grad, "expect", expGrad)
	}
}

func TestMaxPoolBatch(t *testing.T) {
	q := dev.NewQueue()
	rng := rand.New(rand.NewSource(3))
	l := NewPoolLayer(2, 4, 4, 2, 0)
	x := dev.NewArray(Float32, 3, 2, 4, 4)
	y := dev.NewArray(Float32, 3, 2, 2, 2)
	q.Call(Write(x, randArray(rng, x.Size(), -1, 1)), MaxPoolFprop(l, x, y)).Finish()
	for i, v := range y.f32 {
		plane, oy, ox := i/4, (i%4)/2, i%2
		max := float32(math.Inf(-1))
		for ky := 0; ky < 2; ky++ {
			for kx := 0; kx < 2; kx++ {
				if p := x.f32[plane*16+(2*oy+ky)*4+2*ox+kx]; p > max {
					max = p
				}
			}
		}
		if v != max {
			t.Fatalf("output %d got %g expect %g", i, v, max)
		}
	}
}
