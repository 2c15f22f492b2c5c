package handler

import (
	"context"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the primary store and the journal store are reachable.
type HealthHandler struct {
	stores map[string]Pinger
	names  []string
}

// NewHealthHandler creates a new HealthHandler. Each pinger is reported under
// its name and stores are checked in name order.
func NewHealthHandler(stores map[string]Pinger) *HealthHandler {
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return &HealthHandler{stores: stores, names: names}
}

// Check pings every store. Returns 200 with {"status": "healthy"} when all
// respond and 503 naming the first failing store otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	for _, name := range h.names {
		if err := h.stores[name].Ping(c.Context()); err != nil {
			log.Error().Err(err).Str("store", name).Msg("health check failed: store unreachable")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  name + " connection failed",
			})
		}
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
