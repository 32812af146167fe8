package num

import (
	"fmt"
)

// Parameters for array printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Array is a general n dimensional tensor similar to a numpy ndarray.
// Data is stored in row major order with the batch dimension first.
type Array struct {
	dims  []int
	dtype DataType
	f32   []float32
	i32   []int32
}

func newArray(dtype DataType, dims []int) *Array {
	a := &Array{dims: append([]int{}, dims...), dtype: dtype}
	switch dtype {
	case Float32:
		a.f32 = make([]float32, Prod(dims))
	case Int32:
		a.i32 = make([]int32, Prod(dims))
	default:
		panic(fmt.Sprintf("newArray: invalid data type %d", dtype))
	}
	return a
}

// Dims returns the shape of the array.
func (a *Array) Dims() []int { return a.dims }

// Size is total number of elements
func (a *Array) Size() int { return Prod(a.dims) }

// Dtype returns the data type of the elements in the array
func (a *Array) Dtype() DataType { return a.dtype }

// Reshape returns a new array of the same size with a view on the same data but with a different shape.
// A single dimension may be given as -1 in which case it is inferred from the others.
func (a *Array) Reshape(dims ...int) *Array {
	n := a.Size()
	dims = append([]int{}, dims...)
	for i := range dims {
		if dims[i] == -1 {
			other := 1
			for j, dim := range dims {
				if i != j {
					if dim == -1 {
						panic("Reshape: can only have single -1 value")
					}
					other *= dim
				}
			}
			dims[i] = n / other
		}
	}
	if Prod(dims) != n {
		panic(fmt.Sprintf("Reshape: cannot reshape %v to %v", a.dims, dims))
	}
	return &Array{dims: dims, dtype: a.dtype, f32: a.f32, i32: a.i32}
}

// Rows returns a view on the first n entries along the leading dimension.
func (a *Array) Rows(n int) *Array {
	if len(a.dims) == 0 || n < 0 || n > a.dims[0] {
		panic(fmt.Sprintf("Rows: cannot take %d rows from shape %v", n, a.dims))
	}
	if n == a.dims[0] {
		return a
	}
	dims := append([]int{n}, a.dims[1:]...)
	size := Prod(dims)
	b := &Array{dims: dims, dtype: a.dtype}
	if a.f32 != nil {
		b.f32 = a.f32[:size]
	} else {
		b.i32 = a.i32[:size]
	}
	return b
}

// String formats the array contents after completing any pending operations on the queue.
func (a *Array) String(q Queue) string {
	if q != nil {
		q.Finish()
	}
	var data interface{}
	if a.dtype == Int32 {
		data = a.i32
	} else {
		data = a.f32
	}
	if len(a.dims) == 0 {
		return format(nil, data, 0, "", false) + "\n"
	}
	return format(a.dims, data, 0, "", false)
}

func format(dims []int, data interface{}, at int, indent string, dots bool) string {
	var s string
	switch len(dims) {
	case 0:
		if dots {
			s = "    ... "
		} else {
			switch d := data.(type) {
			case []int32:
				s = fmt.Sprintf("%5d ", d[at])
			case []float32:
				val := d[at]
				if abs(val) < 1 {
					val = float32(int(10000*val+0.5)) / 10000
				}
				s = fmt.Sprintf("%7.5g ", val)
			}
		}
	case 1:
		s = indent + "["
		for i := 0; i < dims[0]; i++ {
			skip := dims[0] > PrintThreshold+1 && i == PrintEdgeitems
			s += format(nil, data, at+i, "", dots || skip)
			if skip {
				i = dims[0] - PrintEdgeitems - 1
			}
		}
		s += "]\n"
	default:
		stride := Prod(dims[1:])
		s = indent + "[\n"
		for i := 0; i < dims[0]; i++ {
			if dims[0] > PrintThreshold+1 && i == PrintEdgeitems {
				s += indent + "   ...  ...   \n"
				i = dims[0] - PrintEdgeitems - 1
			} else {
				s += format(dims[1:], data, at+i*stride, indent+" ", false)
			}
		}
		s += indent + "]\n"
	}
	return s
}

func abs(x float32) float32 {
	if x >= 0 {
		return x
	}
	return -x
}

// Product of elements of an integer array. Zero dimension array (scalar) has size 1.
func Prod(arr []int) int {
	prod := 1
	for _, v := range arr {
		prod *= v
	}
	return prod
}

// Check if two arrays are the same shape
func SameShape(xd, yd []int) bool {
	if len(xd) != len(yd) {
		return false
	}
	for i := range xd {
		if xd[i] != yd[i] {
			return false
		}
	}
	return true
}
