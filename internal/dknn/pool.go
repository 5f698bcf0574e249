package dknn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Pool is a candidate set embedded once per step. Distances among the pool's
// own members are computed on first use and reused for the rest of the step.
// A Pool is not safe for concurrent use.
type Pool struct {
	vectors *mat.Dense
	labels  []int
	score   ScoreFunc
	self    *mat.Dense
}

func NewPool(vectors *mat.Dense, labels []int, score ScoreFunc) (*Pool, error) {
	n, _ := vectors.Dims()
	if n == 0 {
		return nil, ErrEmptyCandidateSet
	}
	if len(labels) != n {
		return nil, fmt.Errorf("%w: %d labels for %d vectors", ErrLabelCount, len(labels), n)
	}
	return &Pool{vectors: vectors, labels: labels, score: score}, nil
}

func (p *Pool) Size() int {
	n, _ := p.vectors.Dims()
	return n
}

func (p *Pool) Vectors() *mat.Dense { return p.vectors }

func (p *Pool) Labels() []int { return p.labels }

// Distances returns distances from queries to every pool member.
func (p *Pool) Distances(queries *mat.Dense) (*mat.Dense, error) {
	return Distances(queries, p.vectors, p.score)
}

// SelfDistances returns the pool × pool distance matrix, computing it once.
func (p *Pool) SelfDistances() *mat.Dense {
	if p.self == nil {
		// The pool is compared with itself, so dimensions always agree.
		p.self, _ = Distances(p.vectors, p.vectors, p.score)
	}
	return p.self
}

// LeaveOneOutAccuracy classifies every pool member against the rest of the
// pool using the cached self distances.
func (p *Pool) LeaveOneOutAccuracy(c *Classifier) (float64, error) {
	self := p.SelfDistances()
	n := p.Size()
	preds := make([]int, n)
	row := make([]float64, n)
	for i := range n {
		pred, err := c.PredictFromDistances(mat.Row(row, i, self), p.labels, i)
		if err != nil {
			return 0, err
		}
		preds[i] = pred
	}
	return Accuracy(preds, p.labels), nil
}
