// Package img contains routines for manipulating sets of images.
package img

import (
	"fmt"
	"image"
	"image/color"

	"github.com/CostanzaSiniscalchi/ASL-alphabet-CNN/stats"
)

var GrayModel = color.ModelFunc(grayModel)

// Gray color stored a float in range 0-1
type Gray struct {
	Y float32
}

func (c Gray) RGBA() (r, g, b, a uint32) {
	y := clampu(c.Y, 0, 1)
	return y, y, y, 0xffff
}

func grayModel(c color.Color) color.Color {
	if _, ok := c.(Gray); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return Gray{Y: 0.299*float32(r)/0xffff + 0.587*float32(g)/0xffff + 0.114*float32(b)/0xffff}
}

// GrayImage type stores the image data as float32 values in row major order.
type GrayImage struct {
	Pix    []float32
	Height int
	Width  int
}

func NewGray(width, height int) *GrayImage {
	return &GrayImage{Pix: make([]float32, height*width), Height: height, Width: width}
}

// NewGrayFrom creates an image with a copy of the given pixel values.
func NewGrayFrom(width, height int, pix []float32) *GrayImage {
	if len(pix) != width*height {
		panic(fmt.Sprintf("NewGrayFrom: have %d pixels, expect %dx%d", len(pix), width, height))
	}
	m := NewGray(width, height)
	copy(m.Pix, pix)
	return m
}

func (m *GrayImage) ColorModel() color.Model {
	return GrayModel
}

func (m *GrayImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m *GrayImage) GrayAt(x, y int) Gray {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return Gray{}
	}
	return Gray{Y: m.Pix[y*m.Width+x]}
}

func (m *GrayImage) At(x, y int) color.Color {
	return m.GrayAt(x, y)
}

func (m *GrayImage) Set(x, y int, c color.Color) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	m.Pix[y*m.Width+x] = grayModel(c).(Gray).Y
}

// Scaled returns a copy of the image with the pixel values stretched linearly to cover the range 0-1.
// An image with constant pixel values is mapped to all zeros.
func (m *GrayImage) Scaled() *GrayImage {
	dst := NewGray(m.Width, m.Height)
	if len(m.Pix) == 0 {
		return dst
	}
	min, max := m.Pix[0], m.Pix[0]
	for _, v := range m.Pix {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max > min {
		for i, v := range m.Pix {
			dst.Pix[i] = (v - min) / (max - min)
		}
	}
	return dst
}

// Calculate mean and stddev of pixel values from set of images
func GetStats(imgList ...[]*GrayImage) (mean, std float32) {
	var s stats.Average
	for _, images := range imgList {
		for _, img := range images {
			for _, val := range img.Pix {
				s.Add(float64(val))
			}
		}
	}
	return float32(s.Mean), float32(s.StdDev)
}

func clampu(x, x0, x1 float32) uint32 {
	if x < x0 {
		x = x0
	}
	if x > x1 {
		x = x1
	}
	return uint32(x*0xffff + 0.5)
}
