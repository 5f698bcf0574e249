package dknn

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RelaxedRanker is the NeuralSort relaxation. Row r of its relaxed
// permutation matrix is a softmax over candidates approximating the one-hot
// of the candidate with the r-th largest score. Membership in the top k is the
// column-wise sum of rows 0..k-1.
//
// Building the rows costs O(n²) per score row because of the pairwise
// absolute differences.
type RelaxedRanker struct {
	K    int
	Tau  float64
	Hard bool
}

func (r *RelaxedRanker) Algorithm() Algorithm { return NeuralSort }

// Permutation returns the full n×n relaxed permutation matrix of scores.
// Every row sums to one.
func Permutation(scores []float64, tau float64) *mat.Dense {
	n := len(scores)
	b := absDiffSums(scores)
	p := mat.NewDense(n, n, nil)
	logits := make([]float64, n)
	for r := range n {
		rankLogits(logits, scores, b, r, tau)
		softmax(p.RawRowView(r), logits)
	}
	return p
}

func (r *RelaxedRanker) Relax(scores []float64) *Trace {
	s := slices.Clone(scores)
	n := len(s)
	b := absDiffSums(s)

	rows := make([][]float64, r.K)
	soft := make([]float64, n)
	logits := make([]float64, n)
	for rank := range r.K {
		rankLogits(logits, s, b, rank, r.Tau)
		rows[rank] = softmax(nil, logits)
		floats.Add(soft, rows[rank])
	}

	membership := soft
	if r.Hard {
		membership = topKIndicator(soft, r.K)
	}

	return &Trace{
		Membership: membership,
		backward: func(grad []float64) []float64 {
			return r.backward(s, rows, grad)
		},
	}
}

// backward differentiates membership = Σ_r softmax((c_r·s - B)/τ) with
// B_i = Σ_j |s_i - s_j| and c_r = n + 1 - 2(r+1).
func (r *RelaxedRanker) backward(s []float64, rows [][]float64, grad []float64) []float64 {
	n := len(s)
	gs := make([]float64, n)
	gb := make([]float64, n)
	gl := make([]float64, n)
	for rank, row := range rows {
		softmaxBackward(gl, row, grad)
		c := float64(n + 1 - 2*(rank+1))
		for i, g := range gl {
			gs[i] += c * g / r.Tau
			gb[i] -= g / r.Tau
		}
	}
	for m := range s {
		for j := range s {
			gs[m] += sign(s[m]-s[j]) * (gb[m] + gb[j])
		}
	}
	return gs
}

// absDiffSums returns B with B_i = Σ_j |s_i - s_j|.
func absDiffSums(s []float64) []float64 {
	b := make([]float64, len(s))
	for i := range s {
		for j := range s {
			b[i] += math.Abs(s[i] - s[j])
		}
	}
	return b
}

func rankLogits(dst, s, b []float64, rank int, tau float64) {
	c := float64(len(s) + 1 - 2*(rank+1))
	for i := range s {
		dst[i] = (c*s[i] - b[i]) / tau
	}
}
