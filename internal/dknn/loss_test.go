package dknn

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLabelAgreement(t *testing.T) {
	a := LabelAgreement([]int{0, 2}, []int{2, 0, 0, 1})
	assert.Equal(t, []float64{0, 1, 1, 0, 1, 0, 0, 0}, a.RawMatrix().Data)

	oneHot := func(labels []int) *mat.Dense {
		m := mat.NewDense(len(labels), 3, nil)
		for i, l := range labels {
			m.Set(i, l, 1)
		}
		return m
	}
	b := AgreementFromOneHot(oneHot([]int{0, 2}), oneHot([]int{2, 0, 0, 1}))
	assert.True(t, mat.Equal(a, b))
}

func TestSurrogateLossOnSharpMembership(t *testing.T) {
	queries := mat.NewDense(2, 2, []float64{
		0, 0,
		3.2, 3.1,
	})
	candidates := mat.NewDense(5, 2, []float64{
		0.1, 0,
		0, 0.2,
		3, 3,
		4, 3,
		3, 4,
	})
	// the second query's two nearest are candidates 2 and 3 and only 2
	// shares its label
	agreement := LabelAgreement([]int{0, 1}, []int{0, 0, 1, 2, 2})

	cfg, err := NewConfig(WithK(2), WithTau(1e-3), WithDeterministic(true))
	require.NoError(t, err)
	layer, err := NewLayer(cfg, nil)
	require.NoError(t, err)

	res, err := layer.Forward(queries, candidates, agreement)
	require.NoError(t, err)
	assert.InDelta(t, -2.0, res.Loss.PerQuery[0], 1e-6)
	assert.InDelta(t, -1.0, res.Loss.PerQuery[1], 1e-6)
	assert.InDelta(t, -1.5, res.Loss.Loss, 1e-6)
	assert.InDelta(t, 0.75, res.Loss.Correctness, 1e-6)
}

func TestSurrogateLossDimensionMismatch(t *testing.T) {
	set, err := mustAggregator(t, 1, WithK(1)).Sample(mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))
	require.NoError(t, err)
	_, err = SurrogateLoss(set, mat.NewDense(2, 2, nil), 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSurrogateLossGradient(t *testing.T) {
	set, err := mustAggregator(t, 1, WithK(1), WithNumSamples(4)).Sample(mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))
	require.NoError(t, err)
	agreement := LabelAgreement([]int{0, 1}, []int{1, 0, 1})
	res, err := SurrogateLoss(set, agreement, 1)
	require.NoError(t, err)

	require.Len(t, res.MembershipGrads(), 4)
	for _, g := range res.MembershipGrads() {
		want := mat.NewDense(2, 3, nil)
		want.Scale(-1.0/8, agreement)
		assert.True(t, mat.EqualApprox(want, g, 1e-12))
	}
}

func TestLayerGradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewPCG(31, 32))
	queryLabels := []int{0, 1}
	candidateLabels := []int{0, 1, 1, 0, 2, 0}
	agreement := LabelAgreement(queryLabels, candidateLabels)

	cases := []struct {
		name string
		opts []Option
	}{
		{"deterministic neuralsort", []Option{WithK(2), WithTau(4), WithDeterministic(true)}},
		{"stochastic neuralsort", []Option{WithK(3), WithTau(8), WithNumSamples(3)}},
		{"stochastic subsets", []Option{WithK(2), WithTau(4), WithNumSamples(3), WithAlgorithm(Subsets)}},
		{"negdot subsets", []Option{WithK(2), WithTau(2), WithNumSamples(2), WithAlgorithm(Subsets), WithScoreFunc(NegativeDot)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.opts...)
			require.NoError(t, err)
			newLayer := func() *Layer {
				l, err := NewLayer(cfg, NewNoiseSource(99))
				require.NoError(t, err)
				return l
			}

			queries := randomMatrix(rng, 2, 3)
			candidates := randomMatrix(rng, 6, 3)

			loss := func(q, c *mat.Dense) float64 {
				res, err := newLayer().Forward(q, c, agreement)
				require.NoError(t, err)
				return res.Loss.Loss
			}

			res, err := newLayer().Forward(queries, candidates, agreement)
			require.NoError(t, err)
			gq, gc := res.Backward()

			wantQ := numericGradient(func(raw []float64) float64 {
				return loss(mat.NewDense(2, 3, raw), candidates)
			}, append([]float64(nil), queries.RawMatrix().Data...))
			wantC := numericGradient(func(raw []float64) float64 {
				return loss(queries, mat.NewDense(6, 3, raw))
			}, append([]float64(nil), candidates.RawMatrix().Data...))

			assert.InDeltaSlice(t, wantQ, gq.RawMatrix().Data, 1e-5)
			assert.InDeltaSlice(t, wantC, gc.RawMatrix().Data, 1e-5)
		})
	}
}
