package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dknnctl",
	Short: "dknnctl: datasets and inference for the differentiable k-NN layer",
	Long: `dknnctl generates and inspects labeled vector datasets and talks to a
running dknn server.

Server commands read DKNN_SERVER_URL and CLIENT_TIMEOUT from the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(blobsCmd, evalCmd, relaxCmd, classifyCmd)
}
