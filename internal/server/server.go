// Package server exposes the differentiable k-NN layer over HTTP: relaxed
// top-k membership for score matrices and exact k-NN classification.
package server

import (
	"context"
	"fmt"
	"math"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/dknn/internal/config"
	"github.com/tensorplex-labs/dknn/internal/dknn"
	"github.com/tensorplex-labs/dknn/pkg/api"
)

var (
	errBadMatrix = errors.New("matrix must be non-empty, rectangular and finite")
	validate     = validator.New()
)

type Server struct {
	App     *fiber.App
	Metrics *Metrics
	cfg     config.ServerEnvConfig
}

func New(cfg config.ServerEnvConfig) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler:          errHandler,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		BodyLimit:             cfg.BodySizeLimit,
		DisableStartupMessage: true,
	})

	s := &Server{App: app, Metrics: NewMetrics(), cfg: cfg}

	app.Use(recover.New())
	app.Use(s.Metrics.Middleware())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(ZstdMiddleware([]string{api.RouteHealth, api.RouteMetrics}))

	app.Get(api.RouteMetrics, s.Metrics.Handler())
	app.Get(api.RouteHealth, func(c *fiber.Ctx) error {
		return c.JSON(createResponse(api.HealthResponse{Status: "ok"}, nil))
	})
	route(s, api.RouteRelax, s.relax)
	route(s, api.RouteClassify, s.classify)

	log.Info().Any("serverConfig", cfg).Msg("Server configuration loaded")
	return s
}

func errHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	log.Error().Err(err).Int("status_code", code).Str("path", c.Path()).Str("method", c.Method()).Msg("request failed")
	return c.Status(code).JSON(createResponse(map[string]any{}, err))
}

// route registers a POST handler that decodes Req and wraps Resp in a
// StdResponse.
func route[Req, Resp any](s *Server, path string, h Handler[Req, Resp]) {
	s.App.Post(path, func(c *fiber.Ctx) error {
		var req Req
		if err := c.BodyParser(&req); err != nil {
			log.Error().Err(err).Str("route", path).Msg("failed to parse request body")
			return badRequest(c, err)
		}
		if err := validate.Struct(req); err != nil {
			log.Debug().Err(err).Str("route", path).Msg("request failed validation")
			return badRequest(c, err)
		}

		resp, err := h(c, req)
		if err != nil {
			return err
		}
		return c.JSON(createResponse(resp, nil))
	})
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	log.Info().Str("addr", addr).Msg("dknn server listening")
	return s.App.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}

func (s *Server) relax(_ *fiber.Ctx, req api.RelaxRequest) (api.RelaxResponse, error) {
	scores, err := toDense(req.Scores)
	if err != nil {
		return api.RelaxResponse{}, fiber.NewError(fiber.StatusBadRequest, "scores: "+err.Error())
	}

	method := dknn.DefaultConfig().Algorithm
	if req.Method != "" {
		if method, err = dknn.ParseAlgorithm(req.Method); err != nil {
			return api.RelaxResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	opts := []dknn.Option{
		dknn.WithK(req.K),
		dknn.WithAlgorithm(method),
		dknn.WithHard(req.Hard),
		dknn.WithDeterministic(req.Deterministic),
	}
	if req.Tau != 0 {
		opts = append(opts, dknn.WithTau(req.Tau))
	}
	if req.NumSamples != 0 {
		if req.NumSamples > s.cfg.MaxSamples {
			return api.RelaxResponse{}, fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("num_samples %d exceeds limit %d", req.NumSamples, s.cfg.MaxSamples))
		}
		opts = append(opts, dknn.WithNumSamples(req.NumSamples))
	}
	cfg, err := dknn.NewConfig(opts...)
	if err != nil {
		return api.RelaxResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	agg, err := dknn.NewAggregator(cfg, dknn.NewNoiseSource(req.Seed))
	if err != nil {
		return api.RelaxResponse{}, err
	}
	set, err := agg.Sample(scores)
	if err != nil {
		return api.RelaxResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	s.Metrics.relaxedDraws.Add(float64(set.Len() * len(req.Scores)))
	return api.RelaxResponse{
		Membership: fromDense(set.Mean()),
		Method:     string(cfg.Algorithm),
		Samples:    set.Len(),
	}, nil
}

func (s *Server) classify(_ *fiber.Ctx, req api.ClassifyRequest) (api.ClassifyResponse, error) {
	queries, err := toDense(req.Queries)
	if err != nil {
		return api.ClassifyResponse{}, fiber.NewError(fiber.StatusBadRequest, "queries: "+err.Error())
	}
	candidates, err := toDense(req.Candidates)
	if err != nil {
		return api.ClassifyResponse{}, fiber.NewError(fiber.StatusBadRequest, "candidates: "+err.Error())
	}
	score, err := dknn.ParseScoreFunc(req.Score)
	if err != nil {
		return api.ClassifyResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	clf, err := dknn.NewClassifier(req.K, score)
	if err != nil {
		return api.ClassifyResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	preds, err := clf.PredictBatch(queries, candidates, req.Labels)
	if err != nil {
		return api.ClassifyResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return api.ClassifyResponse{Predictions: preds}, nil
}

func toDense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errBadMatrix
	}
	cols := len(rows[0])
	m := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errBadMatrix
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errBadMatrix
			}
		}
		m.SetRow(i, row)
	}
	return m, nil
}

func fromDense(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
