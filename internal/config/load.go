// Package config defines environment configuration structs and loaders.
package config

import (
	"math"

	"github.com/caarlos0/env/v11"

	"github.com/tensorplex-labs/dknn/internal/dknn"
)

// AppConfig is everything the trainer reads from the environment.
type AppConfig struct {
	DKNNEnvConfig
	TrainEnvConfig
	SyntheticEnvConfig
}

// ServingConfig is everything the inference server reads.
type ServingConfig struct {
	ServerEnvConfig
}

func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadServingConfig() (*ServingConfig, error) {
	cfg := &ServingConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DKNNEnvConfig holds the relaxation layer options.
type DKNNEnvConfig struct {
	K             int     `env:"DKNN_K,required,notEmpty"`
	Tau           float64 `env:"DKNN_TAU" envDefault:"16"`
	NumSamples    int     `env:"DKNN_NUM_SAMPLES" envDefault:"5"`
	Method        string  `env:"DKNN_METHOD" envDefault:"neuralsort"`
	Score         string  `env:"DKNN_SCORE" envDefault:"sqeuclidean"`
	Hard          bool    `env:"DKNN_HARD" envDefault:"false"`
	Deterministic bool    `env:"DKNN_DETERMINISTIC" envDefault:"false"`
}

// LayerConfig converts the environment values into a validated layer config.
func (c DKNNEnvConfig) LayerConfig() (dknn.Config, error) {
	alg, err := dknn.ParseAlgorithm(c.Method)
	if err != nil {
		return dknn.Config{}, err
	}
	score, err := dknn.ParseScoreFunc(c.Score)
	if err != nil {
		return dknn.Config{}, err
	}
	return dknn.NewConfig(
		dknn.WithK(c.K),
		dknn.WithTau(c.Tau),
		dknn.WithNumSamples(c.NumSamples),
		dknn.WithAlgorithm(alg),
		dknn.WithScoreFunc(score),
		dknn.WithHard(c.Hard),
		dknn.WithDeterministic(c.Deterministic),
	)
}

// TrainEnvConfig configures the training harness.
type TrainEnvConfig struct {
	Dataset           string  `env:"DATASET" envDefault:"blobs"`
	DatasetPath       string  `env:"DATASET_PATH"`
	NumTrainQueries   int     `env:"NUM_TRAIN_QUERIES" envDefault:"100"`
	NumTestQueries    int     `env:"NUM_TEST_QUERIES" envDefault:"10"`
	NumTrainNeighbors int     `env:"NUM_TRAIN_NEIGHBORS" envDefault:"100"`
	NumEpochs         int     `env:"NUM_EPOCHS" envDefault:"200"`
	NLogLR            float64 `env:"NLOGLR" envDefault:"3"`
	Momentum          float64 `env:"MOMENTUM" envDefault:"0.9"`
	WeightDecay       float64 `env:"WEIGHT_DECAY" envDefault:"5e-4"`
	EmbeddingSize     int     `env:"EMBEDDING_SIZE" envDefault:"16"`
	ValidFraction     float64 `env:"VALID_FRACTION" envDefault:"0.1"`
	TestFraction      float64 `env:"TEST_FRACTION" envDefault:"0.1"`
	Seed              uint64  `env:"SEED" envDefault:"94305"`
	LogDir            string  `env:"LOG_DIR" envDefault:"logs"`
}

// LearningRate is 10^-NLogLR.
func (c TrainEnvConfig) LearningRate() float64 {
	return math.Pow(10, -c.NLogLR)
}

// SyntheticEnvConfig shapes the Gaussian blob dataset used when no dataset
// file is given.
type SyntheticEnvConfig struct {
	BlobClasses  int     `env:"BLOB_CLASSES" envDefault:"10"`
	BlobFeatures int     `env:"BLOB_FEATURES" envDefault:"32"`
	BlobPerClass int     `env:"BLOB_PER_CLASS" envDefault:"200"`
	BlobSpread   float64 `env:"BLOB_SPREAD" envDefault:"1.5"`
}

// ServerEnvConfig configures the inference server.
type ServerEnvConfig struct {
	Address       string `env:"SERVER_HOST" envDefault:"127.0.0.1"`
	Port          int    `env:"SERVER_PORT" envDefault:"8888"`
	BodySizeLimit int    `env:"SERVER_BODY_LIMIT" envDefault:"4194304"`
	MaxSamples    int    `env:"SERVER_MAX_SAMPLES" envDefault:"256"`
}
