package dknn

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const fdStep = 1e-6

// numericGradient estimates ∇f at x by central differences.
func numericGradient(f func([]float64) float64, x []float64) []float64 {
	g := make([]float64, len(x))
	for i := range x {
		orig := x[i]
		x[i] = orig + fdStep
		up := f(x)
		x[i] = orig - fdStep
		down := f(x)
		x[i] = orig
		g[i] = (up - down) / (2 * fdStep)
	}
	return g
}

func randomVector(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

func randomMatrix(rng *rand.Rand, r, c int) *mat.Dense {
	return mat.NewDense(r, c, randomVector(rng, r*c))
}

func mustRelaxation(t *testing.T, opts ...Option) Relaxation {
	t.Helper()
	cfg, err := NewConfig(opts...)
	require.NoError(t, err)
	r, err := NewRelaxation(cfg)
	require.NoError(t, err)
	return r
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}
