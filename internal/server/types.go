package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tensorplex-labs/dknn/pkg/api"
)

// Handler serves one JSON route.
type Handler[Req, Resp any] func(*fiber.Ctx, Req) (Resp, error)

func createResponse[T any](body T, err error) api.StdResponse[T] {
	if err != nil {
		msg := err.Error()
		return api.StdResponse[T]{Body: body, Error: &msg}
	}
	return api.StdResponse[T]{Body: body}
}
