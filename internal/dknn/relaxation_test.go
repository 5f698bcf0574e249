package dknn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var algorithms = []Algorithm{NeuralSort, Subsets}

func TestPermutationRowsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, tau := range []float64{1e-3, 0.1, 1, 16, 1e4} {
		t.Run(fmt.Sprintf("tau=%g", tau), func(t *testing.T) {
			scores := randomVector(rng, 7)
			p := Permutation(scores, tau)
			r, c := p.Dims()
			require.Equal(t, 7, r)
			require.Equal(t, 7, c)
			for i := range r {
				assert.InDelta(t, 1.0, floats.Sum(p.RawRowView(i)), 1e-9)
			}
		})
	}
}

func TestPermutationLimits(t *testing.T) {
	scores := []float64{0.3, -1.2, 2.5, 0.9}

	hard := Permutation(scores, 1e-4)
	// descending order of scores: 2, 3, 0, 1
	want := mat.NewDense(4, 4, []float64{
		0, 0, 1, 0,
		0, 0, 0, 1,
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
	assert.True(t, mat.EqualApprox(hard, want, 1e-9), "expected a hard permutation, got %v", mat.Formatted(hard))

	uniform := Permutation(scores, 1e9)
	for i := range 4 {
		for j := range 4 {
			assert.InDelta(t, 0.25, uniform.At(i, j), 1e-6)
		}
	}
}

func TestMembershipMassEqualsK(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for _, alg := range algorithms {
		for _, tau := range []float64{0.01, 0.1, 1, 16, 1000} {
			for _, k := range []int{1, 3, 9} {
				t.Run(fmt.Sprintf("%s/tau=%g/k=%d", alg, tau, k), func(t *testing.T) {
					r := mustRelaxation(t, WithK(k), WithTau(tau), WithAlgorithm(alg))
					tr := r.Relax(randomVector(rng, 10))
					assert.Len(t, tr.Membership, 10)
					assert.InDelta(t, float64(k), floats.Sum(tr.Membership), 1e-9)
				})
			}
		}
	}
}

func TestRelaxDoesNotModifyScores(t *testing.T) {
	for _, alg := range algorithms {
		scores := []float64{3, 1, 2, 0}
		orig := append([]float64(nil), scores...)
		mustRelaxation(t, WithK(2), WithAlgorithm(alg)).Relax(scores)
		assert.Equal(t, orig, scores, alg)
	}
}

func TestConvergesToExactTopK(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	c, err := NewClassifier(3, SquaredEuclidean)
	require.NoError(t, err)

	for _, alg := range algorithms {
		t.Run(string(alg), func(t *testing.T) {
			for trial := range 5 {
				dist := make([]float64, 8)
				for i, p := range rng.Perm(8) {
					dist[i] = float64(p)
				}
				nearest, err := c.Nearest(dist, -1)
				require.NoError(t, err)
				want := make([]float64, 8)
				for _, j := range nearest {
					want[j] = 1
				}

				tr := mustRelaxation(t, WithK(3), WithTau(0.01), WithAlgorithm(alg)).Relax(negate(dist))
				assert.InDeltaSlice(t, want, tr.Membership, 1e-6, "trial %d distances %v", trial, dist)
			}
		})
	}
}

func TestFourCandidatesTopTwo(t *testing.T) {
	dist := []float64{1, 2, 3, 4}
	for _, alg := range algorithms {
		tr := mustRelaxation(t, WithK(2), WithTau(1e-3), WithAlgorithm(alg)).Relax(negate(dist))
		assert.InDeltaSlice(t, []float64{1, 1, 0, 0}, tr.Membership, 1e-9, alg)
	}
}

func TestTiedBoundaryIsSymmetric(t *testing.T) {
	// three candidates tie for the second slot
	dist := []float64{1, 2, 2, 2, 5}
	for _, alg := range algorithms {
		for _, tau := range []float64{1e-3, 1, 16} {
			t.Run(fmt.Sprintf("%s/tau=%g", alg, tau), func(t *testing.T) {
				var tr *Trace
				require.NotPanics(t, func() {
					tr = mustRelaxation(t, WithK(2), WithTau(tau), WithAlgorithm(alg)).Relax(negate(dist))
				})
				m := tr.Membership
				assert.InDelta(t, m[1], m[2], 1e-12)
				assert.InDelta(t, m[2], m[3], 1e-12)
				assert.InDelta(t, 2.0, floats.Sum(m), 1e-9)
				for _, v := range m {
					assert.False(t, math.IsNaN(v))
				}

				g := tr.Backward([]float64{1, 0, 0, 0, -1})
				for _, v := range g {
					assert.False(t, math.IsNaN(v))
				}
			})
		}
	}
}

func TestLargeScoresStayFinite(t *testing.T) {
	scores := []float64{1e6, -3e6, 2.5e6, 7e5, -1e6}
	for _, alg := range algorithms {
		tr := mustRelaxation(t, WithK(2), WithTau(0.01), WithAlgorithm(alg)).Relax(scores)
		assert.InDelta(t, 2.0, floats.Sum(tr.Membership), 1e-9, alg)
		for _, v := range tr.Membership {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), alg)
		}
	}

	for _, alg := range algorithms {
		tr := mustRelaxation(t, WithK(2), WithTau(0.01), WithAlgorithm(alg)).Relax(scores)
		assert.InDeltaSlice(t, []float64{1, 0, 1, 0, 0}, tr.Membership, 1e-9, alg)
	}
}

func TestSubsetsWideScoreGaps(t *testing.T) {
	scores := []float64{0, -100, -200, -300}
	for _, tau := range []float64{0.01, 1, 16} {
		t.Run(fmt.Sprintf("tau=%g", tau), func(t *testing.T) {
			tr := mustRelaxation(t, WithK(2), WithTau(tau), WithAlgorithm(Subsets)).Relax(scores)
			assert.InDeltaSlice(t, []float64{1, 1, 0, 0}, tr.Membership, 1e-2)
			assert.InDelta(t, 2.0, floats.Sum(tr.Membership), 1e-9)
		})
	}
}

func TestSubsetsMembershipWithinUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	for _, tau := range []float64{0.01, 1, 16, 1000} {
		for _, k := range []int{1, 3, 6} {
			t.Run(fmt.Sprintf("tau=%g/k=%d", tau, k), func(t *testing.T) {
				scores := randomVector(rng, 8)
				floats.Scale(100, scores)
				tr := mustRelaxation(t, WithK(k), WithTau(tau), WithAlgorithm(Subsets)).Relax(scores)
				for _, v := range tr.Membership {
					assert.GreaterOrEqual(t, v, 0.0)
					assert.LessOrEqual(t, v, 1.0)
				}
				assert.InDelta(t, float64(k), floats.Sum(tr.Membership), 1e-9)
			})
		}
	}
}

func TestSubsetsCappedGradientMatchesFiniteDifference(t *testing.T) {
	// the leader's summed picks pass one, so the capped path is exercised
	scores := []float64{0, -40, -90, -150, -160}
	upstream := []float64{0.5, -1, 0.3, 2, -0.7}
	r := mustRelaxation(t, WithK(2), WithTau(16), WithAlgorithm(Subsets))
	require.InDelta(t, 1.0, r.Relax(scores).Membership[0], 1e-12)

	f := func(s []float64) float64 {
		return floats.Dot(upstream, r.Relax(s).Membership)
	}
	want := numericGradient(f, scores)
	got := r.Relax(scores).Backward(upstream)
	assert.InDeltaSlice(t, want, got, 1e-8)
}

func TestRelaxationGradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	cases := []struct {
		alg Algorithm
		k   int
		tau float64
	}{
		{NeuralSort, 1, 1},
		{NeuralSort, 2, 0.5},
		{NeuralSort, 4, 2},
		{Subsets, 1, 1},
		{Subsets, 3, 1},
		{Subsets, 2, 0.5},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/k=%d/tau=%g", tc.alg, tc.k, tc.tau), func(t *testing.T) {
			r := mustRelaxation(t, WithK(tc.k), WithTau(tc.tau), WithAlgorithm(tc.alg))
			scores := randomVector(rng, 6)
			upstream := randomVector(rng, 6)

			f := func(s []float64) float64 {
				return floats.Dot(upstream, r.Relax(s).Membership)
			}
			want := numericGradient(f, scores)
			got := r.Relax(scores).Backward(upstream)
			assert.InDeltaSlice(t, want, got, 1e-5)
		})
	}
}

func TestHardIsStraightThrough(t *testing.T) {
	scores := []float64{0.4, -0.3, 1.7, 0.1, -2.2, 0.9}
	upstream := []float64{0.5, -1, 0.25, 2, -0.75, 1}
	for _, alg := range algorithms {
		t.Run(string(alg), func(t *testing.T) {
			hard := mustRelaxation(t, WithK(3), WithTau(1), WithAlgorithm(alg), WithHard(true)).Relax(scores)
			soft := mustRelaxation(t, WithK(3), WithTau(1), WithAlgorithm(alg)).Relax(scores)

			assert.Equal(t, []float64{1, 0, 1, 0, 0, 1}, hard.Membership)
			assert.InDeltaSlice(t, soft.Backward(upstream), hard.Backward(upstream), 1e-12)
		})
	}
}

func TestHardTiesStayKHot(t *testing.T) {
	for _, alg := range algorithms {
		tr := mustRelaxation(t, WithK(2), WithTau(1), WithAlgorithm(alg), WithHard(true)).Relax([]float64{5, 5, 1})
		assert.Equal(t, []float64{1, 1, 0}, tr.Membership, alg)
	}

	// tied for the second slot: exactly one of them gets it
	tr := mustRelaxation(t, WithK(2), WithTau(1), WithHard(true)).Relax(negate([]float64{1, 2, 2, 2, 5}))
	assert.Equal(t, 2.0, floats.Sum(tr.Membership))
	assert.Equal(t, 1.0, tr.Membership[0])
}

func TestBackwardRejectsWrongLength(t *testing.T) {
	tr := mustRelaxation(t, WithK(1)).Relax([]float64{1, 2, 3})
	assert.Panics(t, func() { tr.Backward([]float64{1}) })
}

func TestSoftmaxPanicsOnNaN(t *testing.T) {
	assert.Panics(t, func() { softmax(nil, []float64{math.NaN(), 1}) })
}
