// Package dknn implements a differentiable k-nearest-neighbor layer: pairwise
// distances, continuous relaxations of top-k membership, Monte Carlo averaging
// over Gumbel perturbations, an exact k-NN reference classifier, and the
// surrogate loss whose gradient trains an embedding network.
package dknn

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidK           = errors.New("k must be a positive integer smaller than the candidate set")
	ErrInvalidTau         = errors.New("tau must be a positive finite number")
	ErrInvalidSamples     = errors.New("num_samples must be a positive integer")
	ErrUnknownAlgorithm   = errors.New("unknown relaxation algorithm")
	ErrUnknownScoreFunc   = errors.New("unknown score function")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrLabelCount         = errors.New("label count does not match candidate count")
	ErrEmptyCandidateSet  = errors.New("candidate set is empty")
	ErrMissingNoiseSource = errors.New("stochastic relaxation requires a noise source")
)

// Algorithm selects the relaxation used to turn a score row into a
// membership vector.
type Algorithm string

const (
	NeuralSort Algorithm = "neuralsort"
	Subsets    Algorithm = "subsets"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case NeuralSort:
		return NeuralSort, nil
	case Subsets:
		return Subsets, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// ScoreFunc selects the dissimilarity between a query and a candidate.
// Both variants follow "smaller = closer".
type ScoreFunc string

const (
	SquaredEuclidean ScoreFunc = "sqeuclidean"
	NegativeDot      ScoreFunc = "negdot"
)

func ParseScoreFunc(s string) (ScoreFunc, error) {
	switch ScoreFunc(strings.ToLower(strings.TrimSpace(s))) {
	case SquaredEuclidean, "":
		return SquaredEuclidean, nil
	case NegativeDot:
		return NegativeDot, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScoreFunc, s)
}
