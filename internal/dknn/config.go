package dknn

import (
	"fmt"
	"math"
)

const (
	DefaultTau        = 16.0
	DefaultNumSamples = 5
)

// Config holds the recognized layer options.
type Config struct {
	K          int
	Tau        float64
	NumSamples int
	Algorithm  Algorithm
	Score      ScoreFunc

	// Hard switches to the straight-through estimator: the forward value is a
	// discrete k-hot vector while gradients follow the continuous relaxation.
	Hard bool

	// Deterministic disables Gumbel perturbation and draws a single sample.
	Deterministic bool
}

type Option func(*Config)

func WithK(k int) Option {
	return func(c *Config) {
		c.K = k
	}
}

func WithTau(tau float64) Option {
	return func(c *Config) {
		c.Tau = tau
	}
}

func WithNumSamples(n int) Option {
	return func(c *Config) {
		c.NumSamples = n
	}
}

func WithAlgorithm(a Algorithm) Option {
	return func(c *Config) {
		c.Algorithm = a
	}
}

func WithScoreFunc(s ScoreFunc) Option {
	return func(c *Config) {
		c.Score = s
	}
}

func WithHard(hard bool) Option {
	return func(c *Config) {
		c.Hard = hard
	}
}

func WithDeterministic(deterministic bool) Option {
	return func(c *Config) {
		c.Deterministic = deterministic
	}
}

// DefaultConfig returns the defaults for every option except K, which has no
// sensible default and must be supplied.
func DefaultConfig() Config {
	return Config{
		Tau:        DefaultTau,
		NumSamples: DefaultNumSamples,
		Algorithm:  NeuralSort,
		Score:      SquaredEuclidean,
	}
}

// NewConfig applies opts over DefaultConfig and validates the result.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, c.K)
	}
	if !(c.Tau > 0) || math.IsInf(c.Tau, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidTau, c.Tau)
	}
	if c.NumSamples < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidSamples, c.NumSamples)
	}
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	if _, err := ParseScoreFunc(string(c.Score)); err != nil {
		return err
	}
	return nil
}

// ValidateCandidates rejects candidate sets too small to rank k of them.
func (c Config) ValidateCandidates(n int) error {
	if n == 0 {
		return ErrEmptyCandidateSet
	}
	if c.K >= n {
		return fmt.Errorf("%w: k=%d with %d candidates", ErrInvalidK, c.K, n)
	}
	return nil
}

// Samples is the number of draws the aggregator takes per forward pass.
func (c Config) Samples() int {
	if c.Deterministic {
		return 1
	}
	return c.NumSamples
}
