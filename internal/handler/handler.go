// Package handler holds the system HTTP handlers.
//
// Construct invocations don't pass through here; they go straight from the
// router adapter into the pipeline. This package covers the endpoints the
// runtime itself exposes: health and the construct registry.
package handler

import (
	"github.com/constructhq/construct/internal/server"
)

// Handler is the base handler type that holds shared application
// dependencies. Concrete handlers embed it to access *server.Server.
type Handler struct {
	server *server.Server
}

// NewHandler constructs a base Handler. Returned by value: the struct only
// contains a pointer, copying is cheap.
func NewHandler(s *server.Server) Handler {
	return Handler{server: s}
}
