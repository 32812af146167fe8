// Package asl implements the sign language alphabet classifier: loading the labeled image
// data, preprocessing, building and training the convolutional network and predicting letters.
package asl

import (
	"github.com/pkg/errors"
)

// Image geometry and number of letter classes.
const (
	Height  = 28
	Width   = 28
	Pixels  = Height * Width
	Classes = 26
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrLabelRange       = errors.New("label out of range")
	ErrShape            = errors.New("invalid data shape")
	ErrNotFinite        = errors.New("pixel value not finite")
)

// Letters are the class names indexed by label.
var Letters = func() []string {
	s := make([]string, Classes)
	for i := range s {
		s[i] = string(rune('A' + i))
	}
	return s
}()
