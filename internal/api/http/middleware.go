package http

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/engify/obo-gateway/internal/api/dto"
	"github.com/engify/obo-gateway/internal/observability"
	"github.com/engify/obo-gateway/internal/ratelimit"
	apperrors "github.com/engify/obo-gateway/pkg/util"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// errorHandlingMiddleware renders OAuthError denials as {error,
// error_description} bodies and recovers panics into server_error.
func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewServerError(nil)
			}
			if err != nil {
				oauthErr := apperrors.ToOAuthError(err)
				if metrics != nil {
					metrics.RecordError(c.Path(), c.Method(), oauthErr.Code)
				}
				if oauthErr.HTTPStatus >= 500 {
					logger.Error("request failed", zap.Error(oauthErr))
				}
				setRateLimitDenyHeaders(c, oauthErr)
				c.Status(oauthErr.HTTPStatus)
				_ = c.JSON(dto.ErrorResponse{
					Error:            oauthErr.Code,
					ErrorDescription: oauthErr.Description,
				})
				err = nil
			}
		}()
		return c.Next()
	}
}

func setRateLimitDenyHeaders(c *fiber.Ctx, oauthErr *apperrors.OAuthError) {
	if oauthErr.Code != apperrors.CodeRateLimitExceeded || oauthErr.ResetAt.IsZero() {
		return
	}
	retryAfter := int(time.Until(oauthErr.ResetAt).Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Set("Retry-After", strconv.Itoa(retryAfter))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(oauthErr.ResetAt.Unix(), 10))
}

// RateLimitByEndpoint gates a route on the named limiter bucket, keyed by
// client IP. Used for routes whose handler does not run the limiter itself.
func RateLimitByEndpoint(limiter *ratelimit.Limiter, endpoint string, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := limiter.Check(c.UserContext(), endpoint, c.IP())
		if !res.Allowed {
			metrics.RecordRateLimitDeny(endpoint)
			return apperrors.NewRateLimitExceeded(res.ResetAt)
		}
		if res.Remaining >= 0 {
			c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		return c.Next()
	}
}
