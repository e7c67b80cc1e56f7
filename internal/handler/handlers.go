package handler

import (
	"github.com/constructhq/construct/internal/server"
)

// Handlers groups all system HTTP handlers so router setup passes one
// object around instead of many.
type Handlers struct {
	Health   *HealthHandler   // liveness/readiness with dependency checks
	Registry *RegistryHandler // introspection over mounted constructs
}

// NewHandlers constructs the handler container.
func NewHandlers(s *server.Server) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(s),
		Registry: NewRegistryHandler(s),
	}
}
