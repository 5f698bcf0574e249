package server

import (
	"bytes"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ZstdMiddleware decodes zstd request bodies and zstd-encodes responses for
// clients that accept it. Routes in skip pass through untouched.
func ZstdMiddleware(skip []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if slices.Contains(skip, c.Path()) {
			return c.Next()
		}

		if strings.EqualFold(c.Get(fiber.HeaderContentEncoding), "zstd") && len(c.Request().Body()) > 0 {
			decoder, err := zstd.NewReader(bytes.NewReader(c.Request().Body()))
			if err != nil {
				return badRequest(c, errors.Wrap(err, "failed to decompress zstd data"))
			}
			defer decoder.Close()

			raw, err := io.ReadAll(decoder)
			if err != nil {
				return badRequest(c, errors.Wrap(err, "failed to decompress zstd data"))
			}
			c.Request().SetBody(raw)
			c.Request().Header.Del(fiber.HeaderContentEncoding)
			log.Trace().Int("size", len(raw)).Msg("request body decompressed")
		}

		if err := c.Next(); err != nil {
			return err
		}

		if !strings.Contains(strings.ToLower(c.Get(fiber.HeaderAcceptEncoding)), "zstd") {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			log.Err(err).Msg("failed to create zstd encoder")
			return nil
		}
		defer encoder.Close()

		compressed := encoder.EncodeAll(body, nil)
		c.Response().SetBody(compressed)
		c.Set(fiber.HeaderContentEncoding, "zstd")
		c.Set(fiber.HeaderContentLength, strconv.Itoa(len(compressed)))
		log.Trace().Int("original_size", len(body)).Int("compressed_size", len(compressed)).Msg("response body compressed")
		return nil
	}
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(createResponse(map[string]any{}, err))
}
