// Package tensor holds the dense float32 tensors passed between the image
// normalizer and the classifiers.
package tensor

import (
	"fmt"
	"strings"
)

// Shape lists tensor dimensions, outermost first. Image tensors are laid out
// as (batch, height, width, channels).
type Shape []int

// ImageShape returns the (1, height, width, 3) shape of a single normalized image.
func ImageShape(width, height int) Shape {
	return Shape{1, height, width, 3}
}

// Size is the number of elements a tensor of this shape holds.
func (s Shape) Size() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same rank and dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Tensor is a row-major float32 tensor.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// New allocates a zero tensor of the given shape.
func New(shape Shape) *Tensor {
	return &Tensor{Shape: append(Shape(nil), shape...), Data: make([]float32, shape.Size())}
}

// FromData wraps data with shape, failing when the element counts disagree.
func FromData(shape Shape, data []float32) (*Tensor, error) {
	if shape.Size() != len(data) {
		return nil, fmt.Errorf("tensor: shape %s needs %d values, got %d", shape, shape.Size(), len(data))
	}
	return &Tensor{Shape: append(Shape(nil), shape...), Data: data}, nil
}

// NCHW returns the data of a (1, H, W, C) tensor rearranged channel-planar,
// the layout most exported vision models expect.
func (t *Tensor) NCHW() ([]float32, error) {
	if len(t.Shape) != 4 {
		return nil, fmt.Errorf("tensor: NCHW needs rank 4, got %s", t.Shape)
	}
	h, w, c := t.Shape[1], t.Shape[2], t.Shape[3]
	out := make([]float32, len(t.Data))
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pixel := y*w + x
			for ch := 0; ch < c; ch++ {
				out[ch*plane+pixel] = t.Data[pixel*c+ch]
			}
		}
	}
	return out, nil
}
