package http

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/auth"
	"github.com/spec-kit/it-helpdesk/internal/observability"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

// RateLimit bounds requests per client IP. A zero Max falls back to
// defaultRateLimit.
type RateLimit struct {
	Max    int
	Window time.Duration
}

var defaultRateLimit = RateLimit{Max: 10, Window: 5 * time.Minute}

// RegisterMiddlewares attaches the request timeout, the request logger and the
// error envelope.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// rateLimiter shares one counter per client IP across every route it guards.
func rateLimiter(limit RateLimit) fiber.Handler {
	if limit.Max <= 0 {
		limit.Max = defaultRateLimit.Max
	}
	if limit.Window <= 0 {
		limit.Window = defaultRateLimit.Window
	}
	return limiter.New(limiter.Config{
		Max:        limit.Max,
		Expiration: limit.Window,
		LimitReached: func(*fiber.Ctx) error {
			return apperrors.NewTooManyRequests("too many attempts, try again later")
		},
	})
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := apperrors.ToDomainError(err)
				metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
				describe(c, domainErr, logger)

				body := fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}
				if len(domainErr.Details) > 0 {
					body["details"] = domainErr.Details
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(fiber.Map{"error": body})
				err = nil
			}
		}()
		return c.Next()
	}
}

// describe adds the headers and log lines specific to an error code.
func describe(c *fiber.Ctx, domainErr *apperrors.DomainError, logger *zap.Logger) {
	switch domainErr.Code {
	case apperrors.CodeSessionExpired:
		// The marker is gone; drop whatever the browser still holds.
		c.ClearCookie(auth.SessionMarkerCookie)
		c.Set(fiber.HeaderWWWAuthenticate, `Bearer error="invalid_token", error_description="session expired"`)
	case apperrors.CodeUnauthorized:
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	case apperrors.CodeUpstreamFailed:
		logger.Warn("provider call failed",
			zap.String("path", c.Path()),
			zap.String("message", domainErr.Message),
			zap.Error(domainErr.Err))
		return
	case apperrors.CodeTooManyRequests:
		logger.Warn("rate limit reached", zap.String("path", c.Path()), zap.String("ip", c.IP()))
		return
	}
	if domainErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(domainErr))
	}
}
