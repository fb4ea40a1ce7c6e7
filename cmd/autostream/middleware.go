package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// Per-IP rate limit: a full burst of 100 requests, refilled over 60s
	rateLimitBurst  = 100
	rateLimitWindow = 60 * time.Second

	// Global bound on in-flight listing computations
	maxConcurrentListings = 15
	// How long an excess listing request may wait for a slot
	listingQueueDwell = 2 * time.Second
)

// createRateLimitMiddleware limits each client IP to 100 requests per 60
// seconds with a token bucket. Limiters are kept in a TTL cache so idle
// clients don't accumulate.
func createRateLimitMiddleware(logger *zap.Logger) fiber.Handler {
	limiters := gocache.New(10*time.Minute, 15*time.Minute)
	limit := rate.Every(rateLimitWindow / rateLimitBurst)

	return func(c *fiber.Ctx) error {
		ip := c.IP()
		var limiter *rate.Limiter
		if limiterIface, found := limiters.Get(ip); found {
			limiter = limiterIface.(*rate.Limiter)
		} else {
			limiter = rate.NewLimiter(limit, rateLimitBurst)
			limiters.Set(ip, limiter, 0)
		}
		if !limiter.Allow() {
			logger.Debug("Rate limit exceeded", zap.String("ip", ip))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate_limited",
			})
		}
		return c.Next()
	}
}

// createGateMiddleware bounds simultaneously in-flight listing computations
// with a global semaphore. Excess requests queue briefly and get a 503 when
// the queue dwell exceeds the threshold.
func createGateMiddleware(logger *zap.Logger) fiber.Handler {
	sem := semaphore.NewWeighted(maxConcurrentListings)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), listingQueueDwell)
		defer cancel()
		if err := sem.Acquire(ctx, 1); err != nil {
			logger.Warn("Listing gate saturated", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "overloaded",
			})
		}
		defer sem.Release(1)
		return c.Next()
	}
}

// createLoggingMiddleware logs method, path, status and duration of each
// request. The query string is deliberately left out: it may carry API keys.
func createLoggingMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("Handled request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)))
		return err
	}
}
