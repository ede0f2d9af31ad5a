package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxQueryLogLength = 2048

// AccessLog emits one structured line per request. Place it after the
// requestid middleware so the correlation id is present. The level follows
// the outcome: error for 5xx, warn for 4xx, info otherwise.
func AccessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		fields := []zap.Field{
			zap.String("request_id", asString(c.Locals("requestid"))),
			zap.String("user_id", asString(c.Locals("userID"))),
			zap.String("method", c.Method()),
			zap.String("path", routePath(c)),
			zap.String("query", truncate(string(c.Request().URI().QueryString()), maxQueryLogLength)),
			zap.String("remote_ip", c.IP()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("bytes_out", len(c.Response().Body())),
		}

		switch {
		case status >= 500:
			if chainErr != nil {
				fields = append(fields, zap.Error(chainErr))
			}
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
		return nil
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
