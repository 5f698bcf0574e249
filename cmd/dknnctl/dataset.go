package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tensorplex-labs/dknn/internal/dataset"
	"github.com/tensorplex-labs/dknn/internal/dknn"
)

var (
	blobsOpts struct {
		out  string
		seed uint64
		cfg  dataset.BlobConfig
	}
	evalOpts struct {
		path  string
		k     int
		score string
	}
)

var blobsCmd = &cobra.Command{
	Use:   "blobs",
	Short: "Write a synthetic Gaussian blob dataset",
	Long: `Write a reproducible Gaussian blob dataset as JSON. Paths ending in .zst
are zstd-compressed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds := dataset.Blobs(blobsOpts.cfg, blobsOpts.seed)
		if err := dataset.Save(blobsOpts.out, ds); err != nil {
			return err
		}
		log.Info().Str("path", blobsOpts.out).Int("rows", ds.Len()).Int("features", ds.Features()).Msg("dataset written")
		return nil
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Leave-one-out exact k-NN accuracy of a dataset on its raw features",
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := dataset.Load(evalOpts.path)
		if err != nil {
			return err
		}
		score, err := dknn.ParseScoreFunc(evalOpts.score)
		if err != nil {
			return err
		}
		clf, err := dknn.NewClassifier(evalOpts.k, score)
		if err != nil {
			return err
		}
		pool, err := dknn.NewPool(ds.X, ds.Y, score)
		if err != nil {
			return err
		}
		acc, err := pool.LeaveOneOutAccuracy(clf)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s k=%d %s leave-one-out accuracy: %.4f\n", ds.Name, evalOpts.k, score, acc)
		return nil
	},
}

func init() {
	f := blobsCmd.Flags()
	f.StringVarP(&blobsOpts.out, "out", "o", "blobs.json.zst", "output path")
	f.Uint64Var(&blobsOpts.seed, "seed", 94305, "generator seed")
	f.IntVar(&blobsOpts.cfg.Classes, "classes", 10, "number of classes")
	f.IntVar(&blobsOpts.cfg.Features, "features", 32, "feature dimension")
	f.IntVar(&blobsOpts.cfg.PerClass, "per-class", 200, "rows per class")
	f.Float64Var(&blobsOpts.cfg.Spread, "spread", 1.5, "per-feature standard deviation around each center")

	f = evalCmd.Flags()
	f.StringVarP(&evalOpts.path, "data", "d", "", "dataset path")
	f.IntVar(&evalOpts.k, "k", 9, "neighbors")
	f.StringVar(&evalOpts.score, "score", string(dknn.SquaredEuclidean), "sqeuclidean or negdot")
	_ = evalCmd.MarkFlagRequired("data")
}
