// Package result turns raw classifier scores into the ranked probabilities
// shown to the user.
package result

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/traffic-sign/internal/labels"
)

// DefaultThreshold hides classes with a probability of 1% or less.
const DefaultThreshold = 0.01

// NoThreshold lists every class regardless of probability.
const NoThreshold = -1.0

// ErrNonFiniteScore is returned when a score vector holds NaN or ±Inf.
var ErrNonFiniteScore = errors.New("non-finite score")

// Entry is one displayed class.
type Entry struct {
	Index       int     `json:"index"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Percent     string  `json:"percent"`
}

// RankedResult is the classification shown for one image.
type RankedResult struct {
	TopIndex      int     `json:"top_index"`
	TopLabel      string  `json:"top_label"`
	TopConfidence float64 `json:"top_confidence"`
	TopPercent    string  `json:"top_percent"`
	Entries       []Entry `json:"entries"`
}

// Softmax converts logits into a probability distribution. The maximum is
// subtracted first so large logits do not overflow. Entries more than about
// 745 below the maximum underflow to exactly 0.
func Softmax(scores []float32) ([]float64, error) {
	if len(scores) == 0 {
		return nil, errors.New("result: empty score vector")
	}
	maxScore := math.Inf(-1)
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w at index %d", ErrNonFiniteScore, i)
		}
		if v > maxScore {
			maxScore = v
		}
	}

	probs := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(float64(s) - maxScore)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax[T float32 | float64](values []T) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Percent renders p as a percentage with one decimal place, e.g. "87.3%".
func Percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

// Format applies softmax to scores, picks the top class and lists, in label
// order, every class whose probability is strictly above threshold.
func Format(scores []float32, set *labels.Set, threshold float64) (*RankedResult, error) {
	if set == nil || len(scores) != set.Len() {
		size := 0
		if set != nil {
			size = set.Len()
		}
		return nil, fmt.Errorf("%w: %d scores for %d labels", labels.ErrLabelIndexOutOfRange, len(scores), size)
	}

	probs, err := Softmax(scores)
	if err != nil {
		return nil, err
	}

	// Ranked on the logits: probabilities of nearly equal logits can round to
	// the same value and lose the ordering.
	top := Argmax(scores)
	topLabel, err := set.Label(top)
	if err != nil {
		return nil, err
	}

	res := &RankedResult{
		TopIndex:      top,
		TopLabel:      topLabel,
		TopConfidence: probs[top],
		TopPercent:    Percent(probs[top]),
		Entries:       make([]Entry, 0, len(probs)),
	}
	for i, p := range probs {
		if p <= threshold {
			continue
		}
		name, err := set.Label(i)
		if err != nil {
			return nil, err
		}
		res.Entries = append(res.Entries, Entry{Index: i, Label: name, Probability: p, Percent: Percent(p)})
	}
	return res, nil
}
