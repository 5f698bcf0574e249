package dknn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LabelAgreement returns the queries × candidates matrix with a one where the
// query and candidate labels are equal.
func LabelAgreement(queryLabels, candidateLabels []int) *mat.Dense {
	a := mat.NewDense(len(queryLabels), len(candidateLabels), nil)
	for i, ql := range queryLabels {
		for j, cl := range candidateLabels {
			if ql == cl {
				a.Set(i, j, 1)
			}
		}
	}
	return a
}

// AgreementFromOneHot computes the same matrix from one-hot label rows.
func AgreementFromOneHot(queryOneHot, candidateOneHot mat.Matrix) *mat.Dense {
	var a mat.Dense
	a.Mul(queryOneHot, candidateOneHot.T())
	return &a
}

// LossResult is the surrogate loss of one forward pass.
type LossResult struct {
	// Loss is the negated expected correct mass in the top k, averaged over
	// draws and queries.
	Loss float64

	// PerQuery is the per-query loss averaged over draws.
	PerQuery []float64

	// Correctness is -Loss/k, the average fraction of the top k that shares
	// the query's label.
	Correctness float64

	grads []*mat.Dense
}

// MembershipGrads returns ∂Loss/∂membership for every draw.
func (r *LossResult) MembershipGrads() []*mat.Dense { return r.grads }

// SurrogateLoss weights each draw's membership by label agreement, sums over
// candidates and negates, so that minimizing the loss maximizes the mass of
// correctly labeled candidates in the relaxed top k.
func SurrogateLoss(set *SampleSet, agreement *mat.Dense, k int) (*LossResult, error) {
	q, n := set.Dims()
	if aq, an := agreement.Dims(); aq != q || an != n {
		return nil, fmt.Errorf("%w: agreement is %dx%d, memberships are %dx%d", ErrDimensionMismatch, aq, an, q, n)
	}

	draws := set.Len()
	scale := 1 / float64(draws*q)
	res := &LossResult{
		PerQuery: make([]float64, q),
		grads:    make([]*mat.Dense, draws),
	}

	var g mat.Dense
	g.Scale(-scale, agreement)
	for s := range draws {
		m := set.Sample(s)
		for i := range q {
			correct := mat.Dot(m.RowView(i), agreement.RowView(i))
			res.PerQuery[i] -= correct / float64(draws)
		}
		res.grads[s] = &g
	}
	for _, l := range res.PerQuery {
		res.Loss += l / float64(q)
	}
	res.Correctness = -res.Loss / float64(k)
	return res, nil
}
