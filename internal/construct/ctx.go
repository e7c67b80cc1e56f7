package construct

import (
	"context"

	"github.com/constructhq/construct/internal/audit"
	"github.com/rs/zerolog"
)

// Ctx is the per-invocation context handed to a handler. It embeds the
// request's context.Context so it can be passed directly to anything that
// expects one.
type Ctx struct {
	context.Context

	// Body, Query, and Params hold the validated inputs. An input without a
	// configured schema is nil (typed as absent), never raw bytes.
	Body   any
	Query  any
	Params any

	// Session is whatever the authorizer derived, or nil without one.
	Session any

	// Actor is the identity used for audit attribution.
	Actor string

	// Services maps resolved service names to instances.
	Services map[string]any

	// DB is the shared transaction handle when the construct's database
	// service and audit storage share one transactional resource, nil
	// otherwise. Handlers recover the driver transaction via Underlying.
	DB audit.Tx

	// Auditor queues audit records for this invocation. Records are flushed
	// at commit and discarded on rollback.
	Auditor audit.Auditor

	// Logger is the request-scoped logger.
	Logger zerolog.Logger
}

// Service returns a resolved service instance by name, or nil.
func (c *Ctx) Service(name string) any {
	return c.Services[name]
}
