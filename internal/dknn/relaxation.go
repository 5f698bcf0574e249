package dknn

import (
	"fmt"
	"sort"
)

// Relaxation turns one score row (larger = closer) into a continuous
// membership vector approximating "candidate is among the k highest scores".
// Implementations keep whatever the backward pass needs inside the Trace.
type Relaxation interface {
	Algorithm() Algorithm
	Relax(scores []float64) *Trace
}

// Trace is the result of one relaxation draw.
type Trace struct {
	// Membership has one entry per candidate. Entries sum to k.
	Membership []float64

	backward func(grad []float64) []float64
}

// Backward returns the gradient with respect to the scores passed to Relax,
// given the gradient with respect to Membership. In hard mode the gradient is
// that of the underlying continuous relaxation.
func (t *Trace) Backward(grad []float64) []float64 {
	if len(grad) != len(t.Membership) {
		panic(fmt.Sprintf("dknn: gradient length %d does not match membership length %d", len(grad), len(t.Membership)))
	}
	return t.backward(grad)
}

// NewRelaxation builds the relaxation selected by cfg.
func NewRelaxation(cfg Config) (Relaxation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case NeuralSort:
		return &RelaxedRanker{K: cfg.K, Tau: cfg.Tau, Hard: cfg.Hard}, nil
	case Subsets:
		return &SubsetSampler{K: cfg.K, Tau: cfg.Tau, Hard: cfg.Hard}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
}

// topKIndicator returns the k-hot vector of the k largest entries of v.
// Equal values keep their index order.
func topKIndicator(v []float64, k int) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return v[idx[a]] > v[idx[b]]
	})
	out := make([]float64, len(v))
	for _, i := range idx[:k] {
		out[i] = 1
	}
	return out
}
