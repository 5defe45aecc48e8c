package middleware

import (
	"time"

	"alumnichat/server/internal/config"
	"alumnichat/server/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimiter creates a rate limiting middleware
func RateLimiter(max int, expiration time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			// Use user ID if authenticated, otherwise use IP
			if userID := GetUserID(c); userID != "" {
				return "user:" + userID
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			metrics.RateLimited.WithLabelValues(c.Route().Path).Inc()
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many requests, please try again later",
			})
		},
	})
}

// RateLimits hands out the configured tiers. Every call returns a limiter
// with its own counters, so each route is limited separately.
type RateLimits struct {
	cfg config.RateLimitConfig
}

func NewRateLimits(cfg config.RateLimitConfig) RateLimits {
	return RateLimits{cfg: cfg}
}

func orDefault[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// Strict is for login and register.
func (r RateLimits) Strict() fiber.Handler {
	return RateLimiter(orDefault(r.cfg.AuthMax, 5), orDefault(r.cfg.AuthWindow, 15*time.Minute))
}

// Moderate is for chat and connection writes.
func (r RateLimits) Moderate() fiber.Handler {
	return RateLimiter(orDefault(r.cfg.WriteMax, 30), orDefault(r.cfg.Window, time.Minute))
}

// Relaxed is for reads.
func (r RateLimits) Relaxed() fiber.Handler {
	return RateLimiter(orDefault(r.cfg.ReadMax, 100), orDefault(r.cfg.Window, time.Minute))
}

// Upload is for chat attachments.
func (r RateLimits) Upload() fiber.Handler {
	return RateLimiter(orDefault(r.cfg.UploadMax, 10), orDefault(r.cfg.UploadWindow, 5*time.Minute))
}
