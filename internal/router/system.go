package router

import (
	"github.com/constructhq/construct/internal/handler"
	"github.com/labstack/echo/v4"
)

// registerSystemRoutes registers endpoints that are not constructs.
//
// Routes:
//  1. Health endpoint (used by Kubernetes/monitors)
//  2. Construct registry (introspection over mounted constructs)
func registerSystemRoutes(e *echo.Echo, h *handler.Handlers) {
	e.GET("/status", h.Health.CheckHealth)
	e.GET("/constructs", h.Registry.ListConstructs)
}
