package handler

import (
	"net/http"
	"sync"

	"github.com/constructhq/construct/internal/construct"
	"github.com/constructhq/construct/internal/server"
	"github.com/labstack/echo/v4"
)

// RegistryHandler exposes introspection over the mounted constructs: their
// routes, kinds, feature vectors, and optimization tiers. Useful for
// debugging declarations and for tooling that consumes tier assignments.
type RegistryHandler struct {
	Handler

	mu         sync.RWMutex
	constructs []*construct.Construct
}

// NewRegistryHandler constructs a RegistryHandler. Constructs are added by
// the router as it mounts them.
func NewRegistryHandler(s *server.Server) *RegistryHandler {
	return &RegistryHandler{
		Handler: NewHandler(s),
	}
}

// Add records a mounted construct.
func (h *RegistryHandler) Add(c *construct.Construct) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.constructs = append(h.constructs, c)
}

// constructInfo is the JSON shape for one registry entry.
type constructInfo struct {
	Kind     construct.Kind          `json:"kind"`
	Method   string                  `json:"method,omitempty"`
	Route    string                  `json:"route,omitempty"`
	Topic    string                  `json:"topic,omitempty"`
	Schedule string                  `json:"schedule,omitempty"`
	Tier     construct.Tier          `json:"tier"`
	Features construct.FeatureVector `json:"features"`
}

// ListConstructs returns all mounted constructs in mount order.
func (h *RegistryHandler) ListConstructs(c echo.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]constructInfo, 0, len(h.constructs))
	for _, mounted := range h.constructs {
		infos = append(infos, constructInfo{
			Kind:     mounted.Kind(),
			Method:   mounted.Method(),
			Route:    mounted.Route(),
			Topic:    mounted.Topic(),
			Schedule: mounted.Schedule(),
			Tier:     mounted.Tier(),
			Features: mounted.Features(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":      len(infos),
		"constructs": infos,
	})
}
