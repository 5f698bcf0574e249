package dknn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// NoiseSource draws standard Gumbel noise from an explicit, seedable
// generator. Two sources built from the same seed produce the same stream.
// A NoiseSource is not safe for concurrent use.
type NoiseSource struct {
	rng  *rand.Rand
	dist distuv.GumbelRight
}

func NewNoiseSource(seed uint64) *NoiseSource {
	return NewNoiseSourceFrom(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func NewNoiseSourceFrom(src rand.Source) *NoiseSource {
	return &NoiseSource{
		rng:  rand.New(src),
		dist: distuv.GumbelRight{Mu: 0, Beta: 1},
	}
}

// Gumbel returns a single standard Gumbel variate by inverse transform.
func (s *NoiseSource) Gumbel() float64 {
	u := s.rng.Float64()
	for u == 0 {
		u = s.rng.Float64()
	}
	return s.dist.Quantile(u)
}

// Fill overwrites dst with independent Gumbel variates.
func (s *NoiseSource) Fill(dst []float64) {
	for i := range dst {
		dst[i] = s.Gumbel()
	}
}

// Perturb adds independent Gumbel variates to scores in place.
func (s *NoiseSource) Perturb(scores []float64) {
	for i := range scores {
		scores[i] += s.Gumbel()
	}
}
