package img

import (
	"image/color"
	"math"
	"reflect"
	"testing"
)

func TestGray(t *testing.T) {
	m := NewGray(3, 2)
	m.Set(2, 1, color.Gray{Y: 255})
	m.Set(5, 5, color.Gray{Y: 255})
	if v := m.GrayAt(2, 1).Y; math.Abs(float64(v)-1) > 1e-6 {
		t.Error("got", v, "expect", 1)
	}
	if m.Pix[5] == 0 {
		t.Error("pixel (2,1) should be stored at index 5")
	}
	r, _, _, a := m.At(2, 1).RGBA()
	if r != 0xffff || a != 0xffff {
		t.Error("got", r, a, "expect", 0xffff)
	}
	if b := m.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Error("invalid bounds", b)
	}
}

func TestScaled(t *testing.T) {
	m := NewGrayFrom(2, 2, []float32{0.02, 0.04, 0.06, 0.1})
	s := m.Scaled()
	expect := []float32{0, 0.25, 0.5, 1}
	for i := range expect {
		if math.Abs(float64(s.Pix[i]-expect[i])) > 1e-6 {
			t.Fatal("got", s.Pix, "expect", expect)
		}
	}
	flat := NewGrayFrom(2, 1, []float32{3, 3}).Scaled()
	if !reflect.DeepEqual(flat.Pix, []float32{0, 0}) {
		t.Error("got", flat.Pix, "expect all zeros")
	}
}

func TestGetStats(t *testing.T) {
	a := NewGrayFrom(2, 1, []float32{1, 3})
	b := NewGrayFrom(2, 1, []float32{5, 7})
	mean, std := GetStats([]*GrayImage{a}, []*GrayImage{b})
	if mean != 4 {
		t.Error("mean got", mean, "expect", 4)
	}
	expect := math.Sqrt(20.0 / 3.0)
	if math.Abs(float64(std)-expect) > 1e-5 {
		t.Error("std got", std, "expect", expect)
	}
}
