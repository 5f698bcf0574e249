package embedding

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLinearEmbedAndBackward(t *testing.T) {
	l := &Linear{W: mat.NewDense(2, 3, []float64{
		1, 0, 2,
		0, 1, -1,
	})}
	x := mat.NewDense(2, 2, []float64{
		1, 2,
		3, 4,
	})

	out := l.Embed(x)
	assert.Equal(t, []float64{1, 2, 0, 3, 4, 2}, out.RawMatrix().Data)

	gradOut := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 0, 1,
	})
	grads := l.Backward(x, gradOut)
	require.Len(t, grads, 1)
	// xᵀ·g
	assert.Equal(t, []float64{1, 0, 3, 2, 0, 4}, grads[0].RawMatrix().Data)
}

func TestNewLinear(t *testing.T) {
	a, err := NewLinear(8, 4, 1)
	require.NoError(t, err)
	b, err := NewLinear(8, 4, 1)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a.W, b.W))

	_, err = NewLinear(0, 4, 1)
	assert.Error(t, err)
}

func TestSnapshotRestore(t *testing.T) {
	l, err := NewLinear(3, 2, 5)
	require.NoError(t, err)
	snap := Snapshot(l)

	l.W.Scale(2, l.W)
	assert.False(t, mat.Equal(l.W, snap[0]))

	Restore(l, snap)
	assert.True(t, mat.Equal(l.W, snap[0]))
}

func TestSGDStep(t *testing.T) {
	p := mat.NewDense(1, 2, []float64{1, -1})
	g := mat.NewDense(1, 2, []float64{0.5, 0.5})
	opt := NewSGD(0.1, 0.9, 0.01)

	require.NoError(t, opt.Step([]*mat.Dense{p}, []*mat.Dense{g}))
	// v = g + 0.01·p = [0.51, 0.49]
	assert.InDeltaSlice(t, []float64{1 - 0.051, -1 - 0.049}, p.RawMatrix().Data, 1e-12)

	prev := mat.DenseCopyOf(p)
	require.NoError(t, opt.Step([]*mat.Dense{p}, []*mat.Dense{g}))
	// v = 0.9·[0.51, 0.49] + g + 0.01·p
	v0 := 0.9*0.51 + 0.5 + 0.01*prev.At(0, 0)
	v1 := 0.9*0.49 + 0.5 + 0.01*prev.At(0, 1)
	assert.InDeltaSlice(t, []float64{prev.At(0, 0) - 0.1*v0, prev.At(0, 1) - 0.1*v1}, p.RawMatrix().Data, 1e-12)

	assert.Error(t, opt.Step([]*mat.Dense{p}, nil))
}

func TestSGDMinimizesQuadratic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	target := mat.NewDense(2, 2, []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()})
	p := mat.NewDense(2, 2, nil)
	opt := NewSGD(0.05, 0.9, 0)

	for range 500 {
		var g mat.Dense
		g.Sub(p, target)
		require.NoError(t, opt.Step([]*mat.Dense{p}, []*mat.Dense{&g}))
	}
	assert.True(t, mat.EqualApprox(p, target, 1e-6))
}
