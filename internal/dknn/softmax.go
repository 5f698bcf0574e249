package dknn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// softmax writes the normalized exponential of logits into dst, allocating
// dst when nil. The maximum logit is subtracted first so exp never overflows.
func softmax(dst, logits []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(logits))
	}
	peak := floats.Max(logits)
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - peak)
		dst[i] = e
		sum += e
	}
	floats.Scale(1/sum, dst)
	mustNotContainNaN("softmax", dst)
	return dst
}

// softmaxBackward writes the vector-Jacobian product of softmax at output p
// with upstream gradient grad into dst.
func softmaxBackward(dst, p, grad []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(p))
	}
	dot := floats.Dot(p, grad)
	for i := range p {
		dst[i] = p[i] * (grad[i] - dot)
	}
	return dst
}

// mustNotContainNaN panics on NaN. A NaN here means an internal invariant was
// broken, not that the caller passed bad input.
func mustNotContainNaN(stage string, v []float64) {
	for i, x := range v {
		if math.IsNaN(x) {
			panic(fmt.Sprintf("dknn: NaN produced by %s at index %d", stage, i))
		}
	}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
