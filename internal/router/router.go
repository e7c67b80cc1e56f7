// Package router initializes the HTTP router (using Echo) and mounts
// sealed constructs onto their transports.
//
// HTTP and function constructs become Echo routes that adapt the request
// into the pipeline; schedule and topic constructs are registered with the
// event service. System routes (health, registry) live in a separate file.
package router

import (
	"fmt"

	"github.com/constructhq/construct/internal/construct"
	"github.com/constructhq/construct/internal/handler"
	"github.com/constructhq/construct/internal/middleware"
	"github.com/constructhq/construct/internal/server"
	"github.com/labstack/echo/v4"
)

// Router owns the Echo instance and the pieces needed to mount constructs.
type Router struct {
	Echo     *echo.Echo
	server   *server.Server
	mw       *middleware.Middlewares
	handlers *handler.Handlers
}

// Setup builds the Echo instance with the global middleware stack and the
// system routes, and returns a Router ready to mount constructs.
//
// Middleware order matters:
//   - Recover first so panics anywhere below become 500s
//   - RequestID before the context enhancer that logs it
//   - New Relic before EnhanceTracing and the enhancer that reads the txn
func Setup(s *server.Server) *Router {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	mw := middleware.NewMiddlewares(s)
	handlers := handler.NewHandlers(s)

	e.HTTPErrorHandler = mw.Global.GlobalErrorHandler

	e.Use(mw.Global.Recover())
	e.Use(middleware.RequestID())
	e.Use(mw.Tracing.NewRelicMiddleware())
	e.Use(mw.ContextEnhancer.EnhanceContext())
	e.Use(mw.Tracing.EnhanceTracing())
	e.Use(mw.Global.RequestLogger())
	e.Use(mw.Global.CORS())
	e.Use(mw.Global.Secure())

	registerSystemRoutes(e, handlers)

	return &Router{
		Echo:     e,
		server:   s,
		mw:       mw,
		handlers: handlers,
	}
}

// Mount registers a sealed construct on its transport.
//
// HTTP constructs bind to their declared method and path. Function
// constructs are invoked via POST /functions/:name. Schedule constructs
// register a cron entry and topic constructs a subscriber, both executed
// through the same pipeline as HTTP invocations.
func (r *Router) Mount(c *construct.Construct) error {
	switch c.Kind() {
	case construct.KindHTTP:
		r.Echo.Add(c.Method(), c.Route(), r.invoke(c),
			r.mw.RateLimit.Enforce(c.Route(), c.RateLimit()))

	case construct.KindFunction:
		route := "/functions/" + c.Route()
		r.Echo.POST(route, r.invoke(c),
			r.mw.RateLimit.Enforce(route, c.RateLimit()))

	case construct.KindSchedule:
		if err := r.server.Events.Schedule(c.Route(), c.Schedule(), r.tick(c)); err != nil {
			return fmt.Errorf("mounting schedule construct %q: %w", c.Route(), err)
		}

	case construct.KindTopic:
		r.server.Events.Subscribe(c.Topic(), r.consume(c))

	default:
		return fmt.Errorf("mounting construct: unknown kind %q", c.Kind())
	}

	r.handlers.Registry.Add(c)
	return nil
}

// MustMount panics on a mount failure. Mounting happens at startup where
// a bad declaration should stop the process.
func (r *Router) MustMount(c *construct.Construct) {
	if err := r.Mount(c); err != nil {
		panic(err)
	}
}
