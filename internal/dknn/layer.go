package dknn

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Layer is the differentiable k-NN layer: distances, relaxed top-k membership
// averaged over draws, and the surrogate loss, with a backward pass to both
// embedding batches.
type Layer struct {
	cfg Config
	agg *Aggregator
}

func NewLayer(cfg Config, noise *NoiseSource) (*Layer, error) {
	agg, err := NewAggregator(cfg, noise)
	if err != nil {
		return nil, err
	}
	return &Layer{cfg: cfg, agg: agg}, nil
}

func (l *Layer) Config() Config { return l.cfg }

// TopK returns the averaged relaxed membership of every candidate in every
// query's top k.
func (l *Layer) TopK(queries, candidates *mat.Dense) (*mat.Dense, error) {
	dist, err := Distances(queries, candidates, l.cfg.Score)
	if err != nil {
		return nil, err
	}
	set, err := l.agg.Sample(Scores(dist))
	if err != nil {
		return nil, err
	}
	return set.Mean(), nil
}

// LayerResult keeps what the backward pass needs from one forward pass.
type LayerResult struct {
	Distances *mat.Dense
	Samples   *SampleSet
	Loss      *LossResult

	queries    *mat.Dense
	candidates *mat.Dense
	score      ScoreFunc
}

// Forward runs the layer on embedded queries and candidates. agreement is the
// queries × candidates label agreement matrix.
func (l *Layer) Forward(queries, candidates, agreement *mat.Dense) (*LayerResult, error) {
	dist, err := Distances(queries, candidates, l.cfg.Score)
	if err != nil {
		return nil, err
	}
	return l.forward(queries, candidates, dist, agreement)
}

// ForwardPool runs the layer against a pool whose members were embedded once
// for the step.
func (l *Layer) ForwardPool(queries *mat.Dense, queryLabels []int, pool *Pool) (*LayerResult, error) {
	dist, err := pool.Distances(queries)
	if err != nil {
		return nil, err
	}
	return l.forward(queries, pool.Vectors(), dist, LabelAgreement(queryLabels, pool.Labels()))
}

func (l *Layer) forward(queries, candidates, dist, agreement *mat.Dense) (*LayerResult, error) {
	set, err := l.agg.Sample(Scores(dist))
	if err != nil {
		return nil, err
	}
	loss, err := SurrogateLoss(set, agreement, l.cfg.K)
	if err != nil {
		return nil, fmt.Errorf("surrogate loss: %w", err)
	}
	log.Trace().Float64("loss", loss.Loss).Float64("correctness", loss.Correctness).Msg("dknn forward")
	return &LayerResult{
		Distances:  dist,
		Samples:    set,
		Loss:       loss,
		queries:    queries,
		candidates: candidates,
		score:      l.cfg.Score,
	}, nil
}

// Backward returns ∂Loss/∂queries and ∂Loss/∂candidates.
func (r *LayerResult) Backward() (gQueries, gCandidates *mat.Dense) {
	gScores := r.Samples.Backward(r.Loss.MembershipGrads())
	// scores = -distances
	gScores.Scale(-1, gScores)
	return DistancesBackward(r.queries, r.candidates, gScores, r.score)
}
