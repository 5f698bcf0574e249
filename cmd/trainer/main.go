package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/dknn/internal/config"
	"github.com/tensorplex-labs/dknn/internal/dataset"
	"github.com/tensorplex-labs/dknn/internal/embedding"
	"github.com/tensorplex-labs/dknn/internal/trainer"
	"github.com/tensorplex-labs/dknn/internal/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting dknn trainer...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}
	layerCfg, err := cfg.LayerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid dknn configuration")
	}
	log.Info().
		Int("k", layerCfg.K).
		Float64("tau", layerCfg.Tau).
		Str("method", string(layerCfg.Algorithm)).
		Float64("learning_rate", cfg.LearningRate()).
		Msg("configuration loaded")

	ds, err := loadDataset(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load dataset")
	}
	train, valid, test, err := ds.Split(cfg.ValidFraction, cfg.TestFraction, cfg.Seed)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to split dataset")
	}

	model, err := embedding.NewLinear(ds.Features(), cfg.EmbeddingSize, cfg.Seed)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init embedding")
	}

	tr, err := trainer.New(trainer.Options{
		Dataset:           ds.Name,
		NumTrainQueries:   cfg.NumTrainQueries,
		NumTestQueries:    cfg.NumTestQueries,
		NumTrainNeighbors: cfg.NumTrainNeighbors,
		NumEpochs:         cfg.NumEpochs,
		NLogLR:            cfg.NLogLR,
		Momentum:          cfg.Momentum,
		WeightDecay:       cfg.WeightDecay,
		Seed:              cfg.Seed,
		LogDir:            cfg.LogDir,
	}, layerCfg, model, train, valid, test)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init trainer")
	}
	defer tr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := tr.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("training stopped")
		return
	}
	log.Info().
		Str("experiment_id", summary.ExperimentID).
		Int("best_epoch", summary.BestEpoch).
		Float64("val_accuracy", summary.ValAccuracy).
		Float64("test_accuracy", summary.TestAccuracy).
		Msg("training finished")
}

func loadDataset(cfg *config.AppConfig) (*dataset.Dataset, error) {
	if cfg.DatasetPath != "" {
		log.Info().Str("path", cfg.DatasetPath).Msg("loading dataset")
		return dataset.Load(cfg.DatasetPath)
	}
	log.Info().
		Int("classes", cfg.BlobClasses).
		Int("features", cfg.BlobFeatures).
		Int("per_class", cfg.BlobPerClass).
		Msg("no DATASET_PATH set, generating synthetic blobs")
	ds := dataset.Blobs(dataset.BlobConfig{
		Classes:  cfg.BlobClasses,
		Features: cfg.BlobFeatures,
		PerClass: cfg.BlobPerClass,
		Spread:   cfg.BlobSpread,
	}, cfg.Seed)
	ds.Name = cfg.Dataset
	return ds, nil
}
