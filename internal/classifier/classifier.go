// Package classifier defines the scoring capability the pipeline relies on and
// its implementations: an untrained placeholder network, a pretrained ONNX
// artifact and a remote gRPC scorer.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/traffic-sign/internal/tensor"
)

// ErrShapeMismatch is returned when a tensor does not have the shape a
// classifier was built for.
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// Classifier maps a normalized image tensor to one raw score per label.
type Classifier interface {
	// InputShape is the exact tensor shape Score accepts.
	InputShape() tensor.Shape
	// NumLabels is the length of every score vector Score returns.
	NumLabels() int
	Score(ctx context.Context, in *tensor.Tensor) ([]float32, error)
	Close() error
}

// CheckShape fails with ErrShapeMismatch unless got equals want.
func CheckShape(want, got tensor.Shape) error {
	if !want.Equal(got) {
		return fmt.Errorf("%w: classifier expects %s, got %s", ErrShapeMismatch, want, got)
	}
	return nil
}

// checkInput validates a Score call before any work is done.
func checkInput(ctx context.Context, c Classifier, in *tensor.Tensor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in == nil {
		return errors.New("classifier: nil tensor")
	}
	if err := CheckShape(c.InputShape(), in.Shape); err != nil {
		return err
	}
	if len(in.Data) != in.Shape.Size() {
		return fmt.Errorf("%w: shape %s with %d values", ErrShapeMismatch, in.Shape, len(in.Data))
	}
	return nil
}
