package dknn

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Aggregator draws independent relaxations of a score matrix and averages
// them into a lower variance membership estimate. All randomness comes from
// the NoiseSource it was built with.
type Aggregator struct {
	cfg   Config
	relax Relaxation
	noise *NoiseSource
}

// NewAggregator builds an aggregator for cfg. noise may be nil only when
// cfg.Deterministic is set.
func NewAggregator(cfg Config, noise *NoiseSource) (*Aggregator, error) {
	relax, err := NewRelaxation(cfg)
	if err != nil {
		return nil, err
	}
	if noise == nil && !cfg.Deterministic {
		return nil, ErrMissingNoiseSource
	}
	return &Aggregator{cfg: cfg, relax: relax, noise: noise}, nil
}

func (a *Aggregator) Config() Config { return a.cfg }

// SampleSet holds every draw of one Sample call. Draws are indexed by sample
// then query.
type SampleSet struct {
	draws      [][]*Trace
	queries    int
	candidates int
}

// Sample relaxes every row of scores (queries × candidates, larger = closer)
// once per draw, with fresh Gumbel noise for each draw and row.
func (a *Aggregator) Sample(scores *mat.Dense) (*SampleSet, error) {
	q, n := scores.Dims()
	if err := a.cfg.ValidateCandidates(n); err != nil {
		return nil, err
	}

	samples := a.cfg.Samples()
	set := &SampleSet{
		draws:      make([][]*Trace, samples),
		queries:    q,
		candidates: n,
	}
	row := make([]float64, n)
	for s := range samples {
		set.draws[s] = make([]*Trace, q)
		for i := range q {
			mat.Row(row, i, scores)
			if !a.cfg.Deterministic {
				a.noise.Perturb(row)
			}
			set.draws[s][i] = a.relax.Relax(row)
		}
	}

	log.Trace().
		Str("algorithm", string(a.relax.Algorithm())).
		Int("samples", samples).
		Int("queries", q).
		Int("candidates", n).
		Msg("sampled relaxed top-k memberships")
	return set, nil
}

func (s *SampleSet) Len() int { return len(s.draws) }

func (s *SampleSet) Dims() (queries, candidates int) { return s.queries, s.candidates }

// Sample returns the membership matrix of draw idx.
func (s *SampleSet) Sample(idx int) *mat.Dense {
	m := mat.NewDense(s.queries, s.candidates, nil)
	for i, tr := range s.draws[idx] {
		m.SetRow(i, tr.Membership)
	}
	return m
}

// Mean returns the elementwise average membership over all draws.
func (s *SampleSet) Mean() *mat.Dense {
	mean := mat.NewDense(s.queries, s.candidates, nil)
	for idx := range s.draws {
		mean.Add(mean, s.Sample(idx))
	}
	mean.Scale(1/float64(len(s.draws)), mean)
	return mean
}

// Backward maps per-draw membership gradients to the gradient with respect to
// the unperturbed scores. The noise is additive, so each draw contributes its
// score gradient unchanged.
func (s *SampleSet) Backward(grads []*mat.Dense) *mat.Dense {
	if len(grads) != len(s.draws) {
		panic(fmt.Sprintf("dknn: got %d gradients for %d draws", len(grads), len(s.draws)))
	}
	out := mat.NewDense(s.queries, s.candidates, nil)
	row := make([]float64, s.candidates)
	for idx, draw := range s.draws {
		for i, tr := range draw {
			mat.Row(row, i, grads[idx])
			g := tr.Backward(row)
			dst := out.RawRowView(i)
			for j := range dst {
				dst[j] += g[j]
			}
		}
	}
	return out
}
