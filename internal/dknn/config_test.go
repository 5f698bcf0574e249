package dknn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{"defaults with k", []Option{WithK(3)}, nil},
		{"missing k", nil, ErrInvalidK},
		{"negative k", []Option{WithK(-1)}, ErrInvalidK},
		{"zero tau", []Option{WithK(1), WithTau(0)}, ErrInvalidTau},
		{"negative tau", []Option{WithK(1), WithTau(-2)}, ErrInvalidTau},
		{"nan tau", []Option{WithK(1), WithTau(math.NaN())}, ErrInvalidTau},
		{"inf tau", []Option{WithK(1), WithTau(math.Inf(1))}, ErrInvalidTau},
		{"zero samples", []Option{WithK(1), WithNumSamples(0)}, ErrInvalidSamples},
		{"unknown algorithm", []Option{WithK(1), WithAlgorithm("bubble")}, ErrUnknownAlgorithm},
		{"unknown score", []Option{WithK(1), WithScoreFunc("cosine")}, ErrUnknownScoreFunc},
		{"subsets", []Option{WithK(2), WithAlgorithm(Subsets), WithHard(true)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opts...)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := NewConfig(WithK(4))
	require.NoError(t, err)
	assert.Equal(t, DefaultTau, cfg.Tau)
	assert.Equal(t, DefaultNumSamples, cfg.NumSamples)
	assert.Equal(t, NeuralSort, cfg.Algorithm)
	assert.Equal(t, SquaredEuclidean, cfg.Score)
	assert.Equal(t, DefaultNumSamples, cfg.Samples())

	cfg.Deterministic = true
	assert.Equal(t, 1, cfg.Samples())
}

func TestValidateCandidates(t *testing.T) {
	cfg, err := NewConfig(WithK(3))
	require.NoError(t, err)

	assert.NoError(t, cfg.ValidateCandidates(4))
	assert.ErrorIs(t, cfg.ValidateCandidates(3), ErrInvalidK)
	assert.ErrorIs(t, cfg.ValidateCandidates(2), ErrInvalidK)
	assert.ErrorIs(t, cfg.ValidateCandidates(0), ErrEmptyCandidateSet)
}

func TestParse(t *testing.T) {
	a, err := ParseAlgorithm(" NeuralSort ")
	require.NoError(t, err)
	assert.Equal(t, NeuralSort, a)

	a, err = ParseAlgorithm("subsets")
	require.NoError(t, err)
	assert.Equal(t, Subsets, a)

	_, err = ParseAlgorithm("stochastic")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	s, err := ParseScoreFunc("")
	require.NoError(t, err)
	assert.Equal(t, SquaredEuclidean, s)

	s, err = ParseScoreFunc("negdot")
	require.NoError(t, err)
	assert.Equal(t, NegativeDot, s)
}
