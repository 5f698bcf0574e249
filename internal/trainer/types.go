// Package trainer runs the differentiable k-NN training loop: embed query and
// neighbor batches, minimize the surrogate loss, and track exact k-NN accuracy
// on held-out queries against the embedded training pool.
package trainer

import (
	"fmt"
	"math"
	"time"
)

// Options configures a training run.
type Options struct {
	Dataset           string
	NumTrainQueries   int
	NumTestQueries    int
	NumTrainNeighbors int
	NumEpochs         int
	NLogLR            float64
	Momentum          float64
	WeightDecay       float64
	Seed              uint64
	LogDir            string
}

// EpochStats is the per-epoch record written to the report.
type EpochStats struct {
	Kind             string        `json:"kind"`
	ExperimentID     string        `json:"experiment_id"`
	Epoch            int           `json:"epoch"`
	Steps            int           `json:"steps"`
	TrainCorrectness float64       `json:"train_correctness"`
	AvgStepTime      time.Duration `json:"avg_step_time_ns"`
	ValAccuracy      float64       `json:"val_accuracy"`
	BestValAccuracy  float64       `json:"best_val_accuracy"`
	Improved         bool          `json:"improved"`
}

// Summary is the final record of a run, evaluated with the best parameters.
type Summary struct {
	Kind                  string  `json:"kind"`
	ExperimentID          string  `json:"experiment_id"`
	Epochs                int     `json:"epochs"`
	BestEpoch             int     `json:"best_epoch"`
	ValAccuracy           float64 `json:"val_accuracy"`
	TestAccuracy          float64 `json:"test_accuracy"`
	PoolLeaveOneOut       float64 `json:"pool_leave_one_out_accuracy"`
	FinalTrainCorrectness float64 `json:"final_train_correctness"`
}

const (
	recordEpoch   = "epoch"
	recordSummary = "summary"
)

// ExperimentID names a run after the settings that distinguish it.
func ExperimentID(dataset, method string, k int, tau, nloglr float64, neighbors int) string {
	return fmt.Sprintf("dknn-%s-%s-k%d-t%d-b%d-n%d", dataset, method, k, int(tau*100), int(nloglr), neighbors)
}

func learningRate(nloglr float64) float64 {
	return math.Pow(10, -nloglr)
}
