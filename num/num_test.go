package num

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestArray(t *testing.T) {
	xd := []float32{1, 1, 2, 2, 3, 3}
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, 6)
	if typ := x.Dtype(); typ != Float32 {
		t.Error("dtype invalid: got", typ)
	}
	x = x.Reshape(2, -1)
	if dim := x.Dims(); !reflect.DeepEqual(dim, []int{2, 3}) {
		t.Error("dims invalid: got", dim)
	}
	res := make([]float32, 6)
	q.Call(
		Write(x, xd),
		Read(x, res),
	).Finish()
	if !reflect.DeepEqual(res, xd) {
		t.Error("got", res, "expect", xd)
	}
	expect := []float32{9, 8, 7, 6, 5, 4}
	q.Call(
		Fill(x, 0),
		Write(x, expect),
		Read(x, res),
	).Finish()
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
	row := x.Rows(1)
	if dim := row.Dims(); !reflect.DeepEqual(dim, []int{1, 3}) {
		t.Error("rows dims invalid: got", dim)
	}
	res = make([]float32, 3)
	q.Call(Read(row, res)).Finish()
	if !reflect.DeepEqual(res, expect[:3]) {
		t.Error("got", res, "expect", expect[:3])
	}
	t.Logf("x\n%s", x.String(q))
}

func TestQueueBuffer(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	q.Profiling(true)
	x := dev.NewArray(Float32, 1)
	one := dev.NewArray(Float32, 1)
	q.Call(Fill(one, 1), Fill(x, 0))
	for i := 0; i < 3*QueueSize; i++ {
		q.Call(Axpy(1, one, x))
	}
	res := make([]float32, 1)
	q.Call(Read(x, res)).Finish()
	if res[0] != 3*QueueSize {
		t.Error("got", res[0], "expect", 3*QueueSize)
	}
	t.Logf("profile\n%s", q.Profile())
}

func TestCopy(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, 2, 3)
	y := dev.NewArray(Float32, 3)
	res := make([]float32, 6)
	q.Call(
		Write(y, []float32{3, 2, 1}),
		Copy(x, y),
		Read(x, res),
	).Finish()
	expect := []float32{3, 2, 1, 3, 2, 1}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
}

func TestOnehot(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	y := dev.NewArray(Int32, 4)
	y1h := dev.NewArray(Float32, 4, 3)
	res := make([]float32, 12)
	vec := []int32{2, 1, 0, 2}
	q.Call(
		Write(y, vec),
		Onehot(y, y1h, 3),
		Read(y1h, res),
	).Finish()
	t.Logf("y1hot %s\n%s", y.String(q), y1h.String(q))
	expect := []float32{0, 0, 1, 0, 1, 0, 1, 0, 0, 0, 0, 1}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
	res2 := make([]int32, 4)
	q.Call(
		Fill(y, 0),
		Unhot(y1h, y),
		Read(y, res2),
	).Finish()
	if !reflect.DeepEqual(res2, vec) {
		t.Error("got", res2, "expect", vec)
	}
}

func TestOnehotRange(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	y := dev.NewArray(Int32, 2)
	y1h := dev.NewArray(Float32, 2, 3)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out of range label")
		}
	}()
	q.Call(Write(y, []int32{0, 3}), Onehot(y, y1h, 3)).Finish()
}

func TestAxpy(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, 2, 3)
	y := dev.NewArray(Float32, 2, 3)
	res := make([]float32, 6)
	q.Call(
		Write(x, []float32{1, 1, 2, 2, 3, 3}),
		Write(y, []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}),
		Axpy(2, x, y),
		Scale(2, y),
		Read(y, res),
	).Finish()
	expect := []float32{5, 5, 9, 9, 13, 13}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
}

func TestSum(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, 2, 3)
	sum := dev.NewArray(Float32)
	res := make([]float32, 1)
	// scalar sum
	q.Call(
		Write(x, []float32{1, 2, 3, 4, 5, 6}),
		Sum(x, sum, 1.0/6.0),
		Read(sum, res),
	).Finish()
	if res[0] != 3.5 {
		t.Error("got", res[0], "expect", 3.5)
	}
	// sum for each column
	sum = dev.NewArray(Float32, 3)
	res = make([]float32, 3)
	ones := dev.NewArray(Float32, 2)
	q.Call(
		Fill(ones, 1),
		Gemv(1, 0, x, ones, sum, Trans),
		Read(sum, res),
	).Finish()
	expect := []float32{5, 7, 9}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
}

func TestGemm(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, 2, 3)
	y := dev.NewArray(Float32, 3, 2)
	z := dev.NewArray(Float32, 2, 2)
	q.Call(Write(x, []float32{1, 2, 3, 4, 5, 6}))
	res := make([]float32, 4)
	for _, trans := range []TransType{NoTrans, Trans} {
		if trans == Trans {
			y = y.Reshape(2, 3)
			q.Call(Write(y, []float32{7, 9, 11, 8, 10, 12}))
		} else {
			q.Call(Write(y, []float32{7, 8, 9, 10, 11, 12}))
		}
		q.Call(
			Gemm(1, 0, x, y, z, NoTrans, trans),
			Read(z, res),
		).Finish()
		expect := []float32{58, 64, 139, 154}
		if !reflect.DeepEqual(res, expect) {
			t.Error("got", res, "expect", expect)
		}
	}
}

func TestSoftmax(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	l := NewSoftmaxLayer(3)
	x := dev.NewArray(Float32, 2, 3)
	y := dev.NewArray(Float32, 2, 3)
	y1h := dev.NewArray(Float32, 2, 3)
	dx := dev.NewArray(Float32, 2, 3)
	loss := dev.NewArray(Float32, 2)
	q.Call(
		Write(x, []float32{1, 2, 3, 0, 0, 0}),
		Write(y1h, []float32{0, 0, 1, 1, 0, 0}),
		SoftmaxFprop(l, x, y),
		SoftmaxLoss(l, x, y1h, loss, dx),
	)
	res := make([]float32, 6)
	lres := make([]float32, 2)
	grad := make([]float32, 6)
	q.Call(Read(y, res), Read(loss, lres), Read(dx, grad)).Finish()
	for row := 0; row < 2; row++ {
		sum := float32(0)
		for _, v := range res[row*3 : row*3+3] {
			sum += v
		}
		if math.Abs(float64(sum-1)) > 1e-6 {
			t.Error("row", row, "sum", sum, "expect 1")
		}
	}
	expect := []float64{-math.Log(float64(res[2])), math.Log(3)}
	for i := range expect {
		if math.Abs(float64(lres[i])-expect[i]) > 1e-5 {
			t.Error("loss got", lres[i], "expect", expect[i])
		}
	}
	// gradient of the mean loss is (softmax - onehot) / rows
	onehot := []float32{0, 0, 1, 1, 0, 0}
	for i, g := range grad {
		if exp := (res[i] - onehot[i]) / 2; math.Abs(float64(g-exp)) > 1e-5 {
			t.Error("grad", i, "got", g, "expect", exp)
		}
	}
}

func TestSoftmaxBatchSizes(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	l := NewSoftmaxLayer(4)
	for _, n := range []int{1, 5, 1} {
		x := dev.NewArray(Float32, n, 4)
		y := dev.NewArray(Float32, n, 4)
		res := make([]float32, 4*n)
		q.Call(Fill(x, 2), SoftmaxFprop(l, x, y), Read(y, res)).Finish()
		for _, v := range res {
			if math.Abs(float64(v)-0.25) > 1e-6 {
				t.Fatal("batch", n, "got", res, "expect 0.25")
			}
		}
	}
	if len(l.fwd) != 2 {
		t.Error("expect one cached graph per batch size: got", len(l.fwd))
	}
}

func TestAdam(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, 2)
	dx := dev.NewArray(Float32, 2)
	s := NewAdamSolver(0.1, 0.9, 0.999, 1e-7)
	s.Add(x, dx)
	q.Call(
		Write(x, []float32{1, 1}),
		Write(dx, []float32{0.5, -2}),
		SolverStep(s),
	)
	res := make([]float32, 2)
	q.Call(Read(x, res)).Finish()
	// first step moves each parameter by approx eta against the gradient sign
	expect := []float32{0.9, 1.1}
	for i := range expect {
		if math.Abs(float64(res[i]-expect[i])) > 1e-3 {
			t.Error("got", res, "expect", expect)
			break
		}
	}
}

func TestSGD(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, 3)
	dx := dev.NewArray(Float32, 3)
	s := NewSGDSolver(0.5, 0)
	s.Add(x, dx)
	if s.Params() != 1 {
		t.Fatal("got", s.Params(), "params")
	}
	q.Call(
		Write(x, []float32{1, 2, 3}),
		Write(dx, []float32{1, -1, 0}),
		SolverStep(s),
		Write(dx, []float32{1, -1, 0}),
		SolverStep(s),
	)
	res := make([]float32, 3)
	q.Call(Read(x, res)).Finish()
	expect := []float32{0, 3, 3}
	for i := range expect {
		if math.Abs(float64(res[i]-expect[i])) > 1e-6 {
			t.Error("got", res, "expect", expect)
			break
		}
	}
}

func TestDropout(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	n := 1000
	l := NewDropoutLayer(0.25, []int{n})
	x := dev.NewArray(Float32, 1, n)
	y := dev.NewArray(Float32, 1, n)
	mask := dev.NewArray(Float32, 1, n)
	dy := dev.NewArray(Float32, 1, n)
	dx := dev.NewArray(Float32, 1, n)
	q.Call(Fill(x, 1), DropoutFprop(l, x, y, mask))
	res := make([]float32, n)
	q.Call(Read(y, res)).Finish()
	zeros := 0
	for _, v := range res {
		if v == 0 {
			zeros++
		} else if math.Abs(float64(v)-4.0/3.0) > 1e-5 {
			t.Fatal("got", v, "expect", 4.0/3.0)
		}
	}
	if zeros < 200 || zeros > 300 {
		t.Error("dropped", zeros, "of", n, "expect around 250")
	}
	grad := make([]float32, n)
	q.Call(Fill(dy, 2), DropoutBprop(dy, mask, dx), Read(dx, grad)).Finish()
	for i, g := range grad {
		if (res[i] == 0) != (g == 0) {
			t.Fatal("gradient mask differs from forward mask at", i)
		}
	}
}

func TestMul(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, 2, 2)
	y := dev.NewArray(Float32, 2, 2)
	z := dev.NewArray(Float32, 2, 2)
	res := make([]float32, 4)
	q.Call(
		Write(x, []float32{1, 2, 3, 4}),
		Write(y, []float32{2, 0, -1, 0.5}),
		Mul(x, y, z),
		Read(z, res),
	).Finish()
	expect := []float32{2, 0, -3, 2}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
}

func randSlice(n int) []float32 {
	res := make([]float32, n)
	for i := range res {
		res[i] = float32(rand.Intn(20))
	}
	return res
}

func BenchmarkGemm(b *testing.B) {
	size := 100
	dev := NewCPUDevice()
	q := dev.NewQueue()
	x := dev.NewArray(Float32, size, size)
	y := dev.NewArray(Float32, size, size)
	z := dev.NewArray(Float32, size, size)
	q.Call(
		Write(x, randSlice(size*size)),
		Write(y, randSlice(size*size)),
	).Finish()
	for i := 0; i < b.N; i++ {
		q.Call(Gemm(1, 0, x, y, z, NoTrans, NoTrans)).Finish()
	}
}
