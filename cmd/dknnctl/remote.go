package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/dknn/internal/dataset"
	"github.com/tensorplex-labs/dknn/pkg/api"
	"github.com/tensorplex-labs/dknn/pkg/client"
)

var relaxReq api.RelaxRequest

var relaxCmd = &cobra.Command{
	Use:   "relax SCORES...",
	Short: "Relaxed top-k membership of score rows from a dknn server",
	Long: `Each argument is one comma-separated score row, larger = closer.

  dknnctl relax --k 2 --tau 0.5 2,-1,0.5,3,0 0,0,1,1,2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scores, err := parseRows(args)
		if err != nil {
			return err
		}
		relaxReq.Scores = scores

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		resp, err := c.Relax(cmd.Context(), relaxReq)
		if err != nil {
			return err
		}
		for _, row := range resp.Membership {
			fmt.Fprintln(cmd.OutOrStdout(), formatRow(row))
		}
		return nil
	},
}

var classifyOpts struct {
	dataPath string
	k        int
}

var classifyCmd = &cobra.Command{
	Use:   "classify QUERIES...",
	Short: "Exact k-NN labels for query rows against a dataset, computed by a dknn server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queries, err := parseRows(args)
		if err != nil {
			return err
		}
		ds, err := dataset.Load(classifyOpts.dataPath)
		if err != nil {
			return err
		}
		candidates := make([][]float64, ds.Len())
		for i := range candidates {
			candidates[i] = mat.Row(nil, i, ds.X)
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		preds, err := c.Classify(cmd.Context(), api.ClassifyRequest{
			Queries:    queries,
			Candidates: candidates,
			Labels:     ds.Y,
			K:          classifyOpts.k,
		})
		if err != nil {
			return err
		}
		for i, p := range preds {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", args[i], p)
		}
		return nil
	},
}

func init() {
	f := relaxCmd.Flags()
	f.IntVar(&relaxReq.K, "k", 1, "top-k size")
	f.Float64Var(&relaxReq.Tau, "tau", 0, "temperature (0 = server default)")
	f.IntVar(&relaxReq.NumSamples, "samples", 0, "Monte Carlo draws (0 = server default)")
	f.StringVar(&relaxReq.Method, "method", "", "neuralsort or subsets")
	f.BoolVar(&relaxReq.Hard, "hard", false, "straight-through hard membership")
	f.BoolVar(&relaxReq.Deterministic, "deterministic", false, "single noise-free draw")
	f.Uint64Var(&relaxReq.Seed, "seed", 0, "noise seed")

	f = classifyCmd.Flags()
	f.StringVarP(&classifyOpts.dataPath, "data", "d", "", "labeled candidate dataset path")
	f.IntVar(&classifyOpts.k, "k", 9, "neighbors")
	_ = classifyCmd.MarkFlagRequired("data")
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := client.ConfigFromEnv(cmd.Context())
	if err != nil {
		return nil, err
	}
	return client.New(cfg)
}

func parseRows(args []string) ([][]float64, error) {
	rows := make([][]float64, len(args))
	for i, arg := range args {
		fields := strings.Split(arg, ",")
		rows[i] = make([]float64, len(fields))
		for j, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d value %d: %w", i, j, err)
			}
			rows[i][j] = v
		}
	}
	return rows, nil
}

func formatRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	return strings.Join(parts, ",")
}
