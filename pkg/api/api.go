// Package api holds the request and response bodies shared by the dknn
// server and its clients.
package api

const (
	RouteHealth   = "/health"
	RouteRelax    = "/relax"
	RouteClassify = "/classify"
	RouteMetrics  = "/metrics"
)

// StdResponse wraps every response body; Error is set only on failure.
type StdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error,omitempty"`
}

// RelaxRequest asks for the Monte Carlo mean membership of each score row.
// Zero Tau and NumSamples take the library defaults.
type RelaxRequest struct {
	Scores        [][]float64 `json:"scores" validate:"required,min=1,dive,min=2"`
	K             int         `json:"k" validate:"min=1"`
	Tau           float64     `json:"tau,omitempty" validate:"gte=0"`
	NumSamples    int         `json:"num_samples,omitempty" validate:"gte=0"`
	Method        string      `json:"method,omitempty" validate:"omitempty,oneof=neuralsort subsets"`
	Hard          bool        `json:"hard,omitempty"`
	Deterministic bool        `json:"deterministic,omitempty"`
	Seed          uint64      `json:"seed,omitempty"`
}

type RelaxResponse struct {
	Membership [][]float64 `json:"membership"`
	Method     string      `json:"method"`
	Samples    int         `json:"samples"`
}

// ClassifyRequest asks for exact k-NN predictions of queries against labeled
// candidates.
type ClassifyRequest struct {
	Queries    [][]float64 `json:"queries" validate:"required,min=1"`
	Candidates [][]float64 `json:"candidates" validate:"required,min=1"`
	Labels     []int       `json:"labels" validate:"required,dive,gte=0"`
	K          int         `json:"k" validate:"min=1"`
	Score      string      `json:"score,omitempty" validate:"omitempty,oneof=sqeuclidean negdot"`
}

type ClassifyResponse struct {
	Predictions []int `json:"predictions"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
