package dataset

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// Batch is a block of consecutive rows from a loader pass.
type Batch struct {
	Dataset
}

// Loader yields fixed-size batches. Shuffled passes drop the trailing
// partial batch so every batch has exactly BatchSize rows.
type Loader struct {
	ds        *Dataset
	batchSize int
	rng       *rand.Rand
}

func NewLoader(ds *Dataset, batchSize int, seed uint64) (*Loader, error) {
	if batchSize < 1 || batchSize > ds.Len() {
		return nil, errors.Wrapf(ErrBadBatchSize, "batch size %d for %d rows", batchSize, ds.Len())
	}
	return &Loader{
		ds:        ds,
		batchSize: batchSize,
		rng:       rand.New(rand.NewPCG(seed, seed^0x5bd1e995)),
	}, nil
}

func (l *Loader) BatchSize() int { return l.batchSize }

// Shuffled returns one epoch of randomly ordered full batches.
func (l *Loader) Shuffled() []Batch {
	return l.batches(l.rng.Perm(l.ds.Len()), false)
}

// Sequential returns every row in order; the last batch may be short.
func (l *Loader) Sequential() []Batch {
	idx := make([]int, l.ds.Len())
	for i := range idx {
		idx[i] = i
	}
	return l.batches(idx, true)
}

func (l *Loader) batches(order []int, keepPartial bool) []Batch {
	out := make([]Batch, 0, len(order)/l.batchSize+1)
	for start := 0; start < len(order); start += l.batchSize {
		end := start + l.batchSize
		if end > len(order) {
			if !keepPartial {
				break
			}
			end = len(order)
		}
		out = append(out, Batch{Dataset: *l.ds.Subset(order[start:end])})
	}
	return out
}
