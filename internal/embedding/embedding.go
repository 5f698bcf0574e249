// Package embedding provides a trainable embedding model and its optimizer.
// The dknn layer only needs batches of embedded vectors and the gradient path
// back into the parameters; any model satisfying Model can be swapped in.
package embedding

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Model maps raw feature rows to embedding rows.
type Model interface {
	// Embed returns one embedding row per input row.
	Embed(x *mat.Dense) *mat.Dense
	// Backward returns the parameter gradients given the inputs of an Embed
	// call and the gradient with respect to its output. The returned slice is
	// ordered like Params.
	Backward(x, gradOut *mat.Dense) []*mat.Dense
	Params() []*mat.Dense
}

// Linear is a bias-free linear projection, embed(x) = x·W.
type Linear struct {
	W *mat.Dense
}

// NewLinear initializes W with N(0, 1/in) entries from a seeded generator.
func NewLinear(in, out int, seed uint64) (*Linear, error) {
	if in < 1 || out < 1 {
		return nil, fmt.Errorf("invalid linear shape %dx%d", in, out)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))
	scale := 1 / math.Sqrt(float64(in))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = scale * rng.NormFloat64()
	}
	return &Linear{W: mat.NewDense(in, out, data)}, nil
}

func (l *Linear) Embed(x *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(x, l.W)
	return &out
}

func (l *Linear) Backward(x, gradOut *mat.Dense) []*mat.Dense {
	var gw mat.Dense
	gw.Mul(x.T(), gradOut)
	return []*mat.Dense{&gw}
}

func (l *Linear) Params() []*mat.Dense { return []*mat.Dense{l.W} }

// Snapshot copies every parameter so a model state can be restored later.
func Snapshot(m Model) []*mat.Dense {
	params := m.Params()
	out := make([]*mat.Dense, len(params))
	for i, p := range params {
		out[i] = mat.DenseCopyOf(p)
	}
	return out
}

// Restore copies a Snapshot back into m's parameters.
func Restore(m Model, snapshot []*mat.Dense) {
	for i, p := range m.Params() {
		p.Copy(snapshot[i])
	}
}
