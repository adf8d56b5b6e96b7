package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/engify/obo-gateway/internal/persistence"
)

// HealthHandler exposes liveness and readiness probes.
type HealthHandler struct {
	redis    *persistence.Redis
	postgres *persistence.Postgres
}

// NewHealthHandler constructs handler.
func NewHealthHandler(redis *persistence.Redis, postgres *persistence.Postgres) *HealthHandler {
	return &HealthHandler{redis: redis, postgres: postgres}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /health/ready. Redis matters for readiness; Postgres is
// optional because audit persistence is best-effort.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	checks := fiber.Map{"redis": "ok", "postgres": "ok"}
	status := http.StatusOK

	if err := h.redis.Ping(c.UserContext()); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.postgres.Ping(c.UserContext()); err != nil {
		checks["postgres"] = err.Error()
	}

	return c.Status(status).JSON(fiber.Map{"checks": checks})
}
