package classifier

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/example/traffic-sign/internal/tensor"
)

// DefaultHiddenUnits is the width of the placeholder network's hidden layer.
const DefaultHiddenUnits = 128

// Untrained is a Flatten → Dense(hidden, ReLU) → Dense(labels) network whose
// weights are Glorot-uniform random values that are never trained. Its scores
// carry no meaning but have the right shape, which is all the page needs to
// run end to end before a real model exists.
type Untrained struct {
	shape     tensor.Shape
	hidden    int
	numLabels int

	w1 []float32 // inputs × hidden
	b1 []float32
	w2 []float32 // hidden × labels
	b2 []float32
}

// NewUntrained initialises the placeholder network. The same seed always
// yields the same weights.
func NewUntrained(shape tensor.Shape, hidden, numLabels int, seed int64) (*Untrained, error) {
	inputs := shape.Size()
	if inputs <= 0 {
		return nil, fmt.Errorf("classifier: invalid input shape %s", shape)
	}
	if hidden <= 0 {
		hidden = DefaultHiddenUnits
	}
	if numLabels <= 0 {
		return nil, fmt.Errorf("classifier: need at least one label, got %d", numLabels)
	}

	rng := rand.New(rand.NewSource(seed))
	return &Untrained{
		shape:     append(tensor.Shape(nil), shape...),
		hidden:    hidden,
		numLabels: numLabels,
		w1:        glorotUniform(rng, inputs, hidden),
		b1:        make([]float32, hidden),
		w2:        glorotUniform(rng, hidden, numLabels),
		b2:        make([]float32, numLabels),
	}, nil
}

func glorotUniform(rng *rand.Rand, fanIn, fanOut int) []float32 {
	limit := float32(math.Sqrt(6 / float64(fanIn+fanOut)))
	w := make([]float32, fanIn*fanOut)
	for i := range w {
		w[i] = (rng.Float32()*2 - 1) * limit
	}
	return w
}

func (u *Untrained) InputShape() tensor.Shape { return u.shape }

func (u *Untrained) NumLabels() int { return u.numLabels }

// Score runs the forward pass.
func (u *Untrained) Score(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	if err := checkInput(ctx, u, in); err != nil {
		return nil, err
	}

	h := append([]float32(nil), u.b1...)
	for i, x := range in.Data {
		if x == 0 {
			continue
		}
		row := u.w1[i*u.hidden : (i+1)*u.hidden]
		for j, w := range row {
			h[j] += x * w
		}
	}

	logits := append([]float32(nil), u.b2...)
	for j, v := range h {
		if v <= 0 {
			continue
		}
		row := u.w2[j*u.numLabels : (j+1)*u.numLabels]
		for k, w := range row {
			logits[k] += v * w
		}
	}
	return logits, nil
}

func (u *Untrained) Close() error { return nil }
