// Package client provides a typed HTTP client for the dknn inference server.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	"github.com/tensorplex-labs/dknn/pkg/api"
)

// Config locates the server. Zero values take the env defaults when loaded
// through ConfigFromEnv.
type Config struct {
	ServerURL string        `env:"DKNN_SERVER_URL, default=http://127.0.0.1:8888"`
	Timeout   time.Duration `env:"CLIENT_TIMEOUT, default=30s"`
}

// ConfigFromEnv reads Config from the process environment.
func ConfigFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process client env: %w", err)
	}
	return &cfg, nil
}

// Client talks to a dknn server.
type Client struct {
	client  *resty.Client
	BaseURL string
}

func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server url cannot be empty")
	}

	client := resty.New().
		SetBaseURL(cfg.ServerURL).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2)

	return &Client{client: client, BaseURL: cfg.ServerURL}, nil
}

func postJSON[T any](ctx context.Context, client *resty.Client, path string, body any) (T, error) {
	var result api.StdResponse[T]
	resp, err := client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("post request failed")
		return result.Body, fmt.Errorf("post %s: %w", path, err)
	}
	if result.Error != nil {
		log.Error().Int("status", resp.StatusCode()).Str("error", *result.Error).Str("path", path).Msg("response contains error")
		return result.Body, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode(), *result.Error)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Str("path", path).Msg("post non-2xx")
		return result.Body, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return result.Body, nil
}

// Health reports whether the server answers its health route.
func (c *Client) Health(ctx context.Context) error {
	var result api.StdResponse[api.HealthResponse]
	resp, err := c.client.R().SetContext(ctx).SetResult(&result).Get(api.RouteHealth)
	if err != nil {
		return fmt.Errorf("get %s: %w", api.RouteHealth, err)
	}
	if resp.IsError() || result.Body.Status != "ok" {
		return fmt.Errorf("server unhealthy: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Relax returns the mean relaxed top-k membership of each score row.
func (c *Client) Relax(ctx context.Context, req api.RelaxRequest) (api.RelaxResponse, error) {
	return postJSON[api.RelaxResponse](ctx, c.client, api.RouteRelax, req)
}

// Classify returns exact k-NN predictions for each query.
func (c *Client) Classify(ctx context.Context, req api.ClassifyRequest) ([]int, error) {
	resp, err := postJSON[api.ClassifyResponse](ctx, c.client, api.RouteClassify, req)
	if err != nil {
		return nil, err
	}
	return resp.Predictions, nil
}
