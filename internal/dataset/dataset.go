// Package dataset provides labeled feature vectors for the trainer: loading
// from disk, synthetic generation, splitting, and shuffled batch iteration.
package dataset

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmpty         = errors.New("dataset is empty")
	ErrRaggedRows    = errors.New("examples have different feature counts")
	ErrLabelCount    = errors.New("label count does not match row count")
	ErrBadFraction   = errors.New("split fractions must be in [0, 1) and sum below 1")
	ErrBadBatchSize  = errors.New("batch size must be positive and no larger than the dataset")
	ErrNegativeLabel = errors.New("labels must be non-negative")
)

// Dataset is a matrix of feature rows with one integer class label per row.
type Dataset struct {
	Name string
	X    *mat.Dense
	Y    []int
}

func New(name string, x *mat.Dense, y []int) (*Dataset, error) {
	r, _ := x.Dims()
	if r == 0 {
		return nil, ErrEmpty
	}
	if len(y) != r {
		return nil, errors.Wrapf(ErrLabelCount, "%d labels for %d rows", len(y), r)
	}
	for _, l := range y {
		if l < 0 {
			return nil, errors.Wrapf(ErrNegativeLabel, "got %d", l)
		}
	}
	return &Dataset{Name: name, X: x, Y: y}, nil
}

func (d *Dataset) Len() int { return len(d.Y) }

func (d *Dataset) Features() int {
	_, c := d.X.Dims()
	return c
}

// NumClasses is one more than the largest label.
func (d *Dataset) NumClasses() int {
	var hi int
	for _, l := range d.Y {
		hi = max(hi, l)
	}
	return hi + 1
}

// Subset copies the rows at idx into a new dataset.
func (d *Dataset) Subset(idx []int) *Dataset {
	if len(idx) == 0 {
		return &Dataset{Name: d.Name, X: &mat.Dense{}}
	}
	x := mat.NewDense(len(idx), d.Features(), nil)
	y := make([]int, len(idx))
	for i, j := range idx {
		x.SetRow(i, d.X.RawRowView(j))
		y[i] = d.Y[j]
	}
	return &Dataset{Name: d.Name, X: x, Y: y}
}

// Split shuffles with seed and partitions into train, valid and test sets.
func (d *Dataset) Split(validFrac, testFrac float64, seed uint64) (train, valid, test *Dataset, err error) {
	if validFrac < 0 || testFrac < 0 || validFrac+testFrac >= 1 {
		return nil, nil, nil, errors.Wrapf(ErrBadFraction, "valid=%g test=%g", validFrac, testFrac)
	}
	rng := rand.New(rand.NewPCG(seed, seed+1))
	perm := rng.Perm(d.Len())

	nValid := int(validFrac * float64(d.Len()))
	nTest := int(testFrac * float64(d.Len()))
	valid = d.Subset(perm[:nValid])
	test = d.Subset(perm[nValid : nValid+nTest])
	train = d.Subset(perm[nValid+nTest:])
	return train, valid, test, nil
}

// OneHot encodes labels as rows of a len(labels) × numClasses matrix.
func OneHot(labels []int, numClasses int) *mat.Dense {
	m := mat.NewDense(len(labels), numClasses, nil)
	for i, l := range labels {
		m.Set(i, l, 1)
	}
	return m
}
