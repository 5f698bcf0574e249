package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tensorplex-labs/dknn/internal/utils/logger"
)

func main() {
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
