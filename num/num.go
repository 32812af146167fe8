// Package num contains numeric Array processing routines such as optimised matix multiplication.
package num

import (
	"fmt"
	"math"
	"reflect"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	T "gorgonia.org/tensor"
)

// Data type of an element of the array
type DataType int

const (
	Int32 DataType = iota
	Float32
)

func (t DataType) String() string {
	if t == Int32 {
		return "int32"
	}
	return "float32"
}

// TransType flag indicates if matrix is transposed
type TransType blas.Transpose

const (
	NoTrans = TransType(blas.NoTrans)
	Trans   = TransType(blas.Trans)
)

// Function which may be called via the queue
type Function struct {
	desc string
	call func()
}

func args(desc string, call func()) Function {
	return Function{desc: desc, call: call}
}

// Read data from array into a slice.
func Read(a *Array, data interface{}) Function {
	checkSlice("Read", a, data)
	return args("copy", func() {
		switch d := data.(type) {
		case []float32:
			copy(d, a.f32)
		case []int32:
			copy(d, a.i32)
		}
	})
}

// Write data from a slice into the given array.
func Write(a *Array, data interface{}) Function {
	checkSlice("Write", a, data)
	return args("copy", func() {
		switch d := data.(type) {
		case []float32:
			copy(a.f32, d)
		case []int32:
			copy(a.i32, d)
		}
	})
}

func checkSlice(name string, a *Array, data interface{}) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		panic(name + ": data must be a slice")
	}
	switch data.(type) {
	case []float32:
		if a.Dtype() != Float32 {
			panic(name + ": expecting []int32 slice")
		}
	case []int32:
		if a.Dtype() != Int32 {
			panic(name + ": expecting []float32 slice")
		}
	default:
		panic(fmt.Sprintf("%s: invalid slice type %T", name, data))
	}
	if v.Len() < a.Size() {
		panic(fmt.Sprintf("%s: slice length %d less than array size %d", name, v.Len(), a.Size()))
	}
}

// Fill array with a scalar value
func Fill(a *Array, scalar float32) Function {
	return args("fill", func() {
		if a.Dtype() == Int32 {
			for i := range a.i32 {
				a.i32[i] = int32(scalar)
			}
			return
		}
		for i := range a.f32 {
			a.f32[i] = scalar
		}
	})
}

// Copy from src to dst, broadcast vector to matrix if needed, vector is tiled row wise
func Copy(dst, src *Array) Function {
	if src.Dtype() != dst.Dtype() {
		panic("Copy: arguments must be same type")
	}
	ddim, sdim := dst.Dims(), src.Dims()
	if SameShape(ddim, sdim) || (Prod(ddim) == Prod(sdim) && len(ddim) > 0 && len(sdim) > 0 && ddim[0] == sdim[0]) {
		return args("copy", func() {
			if dst.f32 != nil {
				copy(dst.f32, src.f32)
			} else {
				copy(dst.i32, src.i32)
			}
		})
	}
	if src.Dtype() == Float32 && len(ddim) == 2 && Prod(sdim) == ddim[1] {
		return args("tile", func() {
			cols := ddim[1]
			for row := 0; row < ddim[0]; row++ {
				copy(dst.f32[row*cols:(row+1)*cols], src.f32)
			}
		})
	}
	panic(fmt.Sprintf("Copy: cannot copy from %v to %v shape", sdim, ddim))
}

// Element wise != comparison
func Neq(x, y, res *Array) Function {
	if x.Dtype() != Int32 || y.Dtype() != Int32 || res.Dtype() != Int32 {
		panic("Neq: incorrect datatype")
	}
	if !SameShape(x.Dims(), res.Dims()) || !SameShape(y.Dims(), res.Dims()) {
		panic("Neq: arrays must be same shape")
	}
	return args("neq", func() {
		for i := range res.i32 {
			if x.i32[i] != y.i32[i] {
				res.i32[i] = 1
			} else {
				res.i32[i] = 0
			}
		}
	})
}

// Convert labels x with shape [n] to one hot representation y with shape [n, classes].
// Panics on execution if a label is outside the range 0 to classes-1.
func Onehot(x, y *Array, classes int) Function {
	if x.Dtype() != Int32 || y.Dtype() != Float32 {
		panic("Onehot: incorrect datatype")
	}
	xdim, ydim := x.Dims(), y.Dims()
	if len(xdim) != 1 || len(ydim) != 2 || xdim[0] != ydim[0] || ydim[1] != classes {
		panic("Onehot: invalid array shape")
	}
	return args("onehot", func() {
		for i := range y.f32 {
			y.f32[i] = 0
		}
		for i, label := range x.i32 {
			if label < 0 || int(label) >= classes {
				panic(fmt.Sprintf("Onehot: label %d out of range [0, %d)", label, classes))
			}
			y.f32[i*classes+int(label)] = 1
		}
	})
}

// Convert from OneHot format back to labels by taking the index of the maximum value in each row.
func Unhot(x, y *Array) Function {
	if x.Dtype() != Float32 || y.Dtype() != Int32 {
		panic("Unhot: incorrect datatype")
	}
	xdim, ydim := x.Dims(), y.Dims()
	if len(xdim) != 2 || len(ydim) != 1 || xdim[0] != ydim[0] {
		panic("Unhot: invalid array shape")
	}
	return args("unhot", func() {
		cols := xdim[1]
		for row := range y.i32 {
			vals := x.f32[row*cols : (row+1)*cols]
			best := 0
			for j, v := range vals {
				if v > vals[best] {
					best = j
				}
			}
			y.i32[row] = int32(best)
		}
	})
}

// Scale array: x <- alpha*x
func Scale(alpha float32, x *Array) Function {
	if x.Dtype() != Float32 {
		panic("Scale: dtype must by Float32")
	}
	return args("scale", func() {
		blas32.Scal(alpha, vector(x.f32))
	})
}

// Array addition and scaling: y <- alpha*x + y
func Axpy(alpha float32, x, y *Array) Function {
	if x.Dtype() != Float32 || y.Dtype() != Float32 {
		panic("Axpy: dtype must by Float32")
	}
	if x.Size() != y.Size() {
		panic(fmt.Sprintf("Axpy: arrays must be same size: %v %v", x.Dims(), y.Dims()))
	}
	return args("axpy", func() {
		blas32.Axpy(alpha, vector(x.f32), vector(y.f32))
	})
}

// Element wise multiply: z <- x*y
func Mul(x, y, z *Array) Function {
	checkFloat32("Mul", x, y, z)
	if x.Size() != z.Size() || y.Size() != z.Size() {
		panic("Mul: arrays must be same size")
	}
	return args("mul", func() {
		if _, err := T.Mul(dense(x), dense(y), T.WithReuse(dense(z))); err != nil {
			panic(err)
		}
	})
}

// Calculate the scalar sum of the values in the array. Multiplies each result by scale.
func Sum(a, total *Array, scale float32) Function {
	if len(total.Dims()) != 0 || total.Dtype() != Float32 {
		panic("Sum: result type should be float32 scalar")
	}
	return args("sum", func() {
		var sum float64
		if a.Dtype() == Int32 {
			for _, v := range a.i32 {
				sum += float64(v)
			}
		} else {
			for _, v := range a.f32 {
				sum += float64(v)
			}
		}
		total.f32[0] = scale * float32(sum)
	})
}

// Matrix vector multiplication: y <- alpha*dot(mA,x) + beta*y
func Gemv(alpha, beta float32, mA, x, y *Array, aTrans TransType) Function {
	if mA.Dtype() != Float32 || x.Dtype() != Float32 || y.Dtype() != Float32 {
		panic("Gemv: dtype must by Float32")
	}
	adim, xdim, ydim := mA.Dims(), x.Dims(), y.Dims()
	if len(adim) != 2 || len(xdim) != 1 || len(ydim) != 1 {
		panic("Gemv: must have matrix and vector inputs")
	}
	m, n := adim[0], adim[1]
	if aTrans == Trans {
		if xdim[0] != m || ydim[0] != n {
			panic("Gemv: incorrect vector size")
		}
	} else {
		if xdim[0] != n || ydim[0] != m {
			panic("Gemv: incorrect vector size")
		}
	}
	return args("gemv", func() {
		blas32.Gemv(blas.Transpose(aTrans), alpha, general(m, n, mA.f32), vector(x.f32), beta, vector(y.f32))
	})
}

// Matrix matrix multiplication: mC <- alpha*dot(mA, mB) + beta*mC
func Gemm(alpha, beta float32, mA, mB, mC *Array, aTrans, bTrans TransType) Function {
	if mA.Dtype() != Float32 || mB.Dtype() != Float32 || mC.Dtype() != Float32 {
		panic("Gemm: dtype must by Float32")
	}
	adim, bdim, cdim := mA.Dims(), mB.Dims(), mC.Dims()
	if len(adim) != 2 || len(bdim) != 2 || len(cdim) != 2 {
		panic("Gemm: must have 2 dimensional arrays")
	}
	m, k := adim[0], adim[1]
	k2, n := bdim[0], bdim[1]
	if aTrans == Trans {
		m, k = k, m
	}
	if bTrans == Trans {
		k2, n = n, k2
	}
	if k2 != k {
		panic(fmt.Sprintf("Gemm: invalid input shape %v x %v", adim, bdim))
	}
	if cdim[0] != m || cdim[1] != n {
		panic(fmt.Sprintf("Gemm: invalid output shape %v expecting [%d %d]", cdim, m, n))
	}
	return args("gemm", func() {
		blas32.Gemm(blas.Transpose(aTrans), blas.Transpose(bTrans), alpha,
			general(adim[0], adim[1], mA.f32),
			general(bdim[0], bdim[1], mB.f32),
			beta, general(m, n, mC.f32))
	})
}

// Sigmoid activation function: y = 1/(1+e**(-x))
func Sigmoid(x, y *Array) Function {
	return unaryFunc("sigmoid", x, y, func(v float32) float32 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	})
}

func SigmoidD(x, grad, y *Array) Function {
	return binaryFunc("sigmoid_d", x, grad, y, func(v, g float32) float32 {
		s := float32(1 / (1 + math.Exp(-float64(v))))
		return g * s * (1 - s)
	})
}

// Tanh activation function: y = tanh(x)
func Tanh(x, y *Array) Function {
	return unaryFunc("tanh", x, y, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

func TanhD(x, grad, y *Array) Function {
	return binaryFunc("tanh_d", x, grad, y, func(v, g float32) float32 {
		t := float32(math.Tanh(float64(v)))
		return g * (1 - t*t)
	})
}

// Relu rectified linear activation function: y = max(x, 0)
func Relu(x, y *Array) Function {
	return unaryFunc("relu", x, y, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

func ReluD(x, grad, y *Array) Function {
	return binaryFunc("relu_d", x, grad, y, func(v, g float32) float32 {
		if v > 0 {
			return g
		}
		return 0
	})
}

func unaryFunc(name string, x, y *Array, fn func(float32) float32) Function {
	if x.Dtype() != Float32 || y.Dtype() != Float32 {
		panic("UnaryFunc: dtype must by Float32")
	}
	if x.Size() != y.Size() {
		panic("UnaryFunc: arrays must be same size")
	}
	return args(name, func() {
		for i, v := range x.f32 {
			y.f32[i] = fn(v)
		}
	})
}

func binaryFunc(name string, x, y, z *Array, fn func(a, b float32) float32) Function {
	if x.Dtype() != Float32 || y.Dtype() != Float32 || z.Dtype() != Float32 {
		panic("BinaryFunc: dtype must by Float32")
	}
	if x.Size() != z.Size() || y.Size() != z.Size() {
		panic("BinaryFunc: arrays must be same size")
	}
	return args(name, func() {
		for i := range z.f32 {
			z.f32[i] = fn(x.f32[i], y.f32[i])
		}
	})
}

func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

func vector(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Inc: 1, Data: data}
}
