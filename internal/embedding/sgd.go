package embedding

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SGD is stochastic gradient descent with momentum and L2 weight decay:
//
//	v ← μ·v + (g + λ·p)
//	p ← p - η·v
type SGD struct {
	LR          float64
	Momentum    float64
	WeightDecay float64

	velocity []*mat.Dense
}

func NewSGD(lr, momentum, weightDecay float64) *SGD {
	return &SGD{LR: lr, Momentum: momentum, WeightDecay: weightDecay}
}

// Step updates params in place from grads, which must align with params.
func (o *SGD) Step(params, grads []*mat.Dense) error {
	if len(params) != len(grads) {
		return fmt.Errorf("sgd: %d params but %d grads", len(params), len(grads))
	}
	if o.velocity == nil {
		o.velocity = make([]*mat.Dense, len(params))
		for i, p := range params {
			r, c := p.Dims()
			o.velocity[i] = mat.NewDense(r, c, nil)
		}
	}

	for i, p := range params {
		var g mat.Dense
		g.Scale(o.WeightDecay, p)
		g.Add(&g, grads[i])

		v := o.velocity[i]
		v.Scale(o.Momentum, v)
		v.Add(v, &g)

		var delta mat.Dense
		delta.Scale(o.LR, v)
		p.Sub(p, &delta)
	}
	return nil
}
