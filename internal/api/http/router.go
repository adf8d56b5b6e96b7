package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/engify/obo-gateway/internal/api/http/handlers"
	"github.com/engify/obo-gateway/internal/observability"
	"github.com/engify/obo-gateway/internal/ratelimit"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Exchange *handlers.ExchangeHandler
	JWKS     *handlers.JWKSHandler
	Limiter  *ratelimit.Limiter
	Metrics  *observability.Metrics
}

// RegisterRoutes wires HTTP routes. The exchange handler runs the limiter
// inside its gate sequence; JWKS is gated here by middleware.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	oauthGroup := app.Group("/oauth")
	oauthGroup.Post("/token/exchange", cfg.Exchange.Exchange)

	app.Get("/.well-known/jwks.json",
		RateLimitByEndpoint(cfg.Limiter, ratelimit.EndpointJWKS, cfg.Metrics),
		cfg.JWKS.Get)
}
