package construct

import (
	"time"

	"github.com/constructhq/construct/internal/audit"
	"github.com/constructhq/construct/internal/errs"
	"github.com/constructhq/construct/internal/events"
	"github.com/constructhq/construct/internal/schema"
	"github.com/rs/zerolog"
)

// Builder accumulates a construct declaration and seals it into an
// immutable Construct.
//
// Seal deep-copies every accumulated slice, so a builder can be reused (or
// mutated) after sealing without leaking state into already-sealed
// constructs.
type Builder struct {
	c Construct
}

// New starts a construct declaration.
func New() *Builder {
	return &Builder{
		c: Construct{logger: zerolog.Nop()},
	}
}

// Route declares an HTTP construct for the given method and path.
func (b *Builder) Route(method, path string) *Builder {
	b.c.kind = KindHTTP
	b.c.method = method
	b.c.route = path
	return b
}

// Function declares a directly-invocable function construct.
func (b *Builder) Function(name string) *Builder {
	b.c.kind = KindFunction
	b.c.route = name
	return b
}

// Schedule declares a timer-driven construct with a cron expression.
func (b *Builder) Schedule(name, cron string) *Builder {
	b.c.kind = KindSchedule
	b.c.route = name
	b.c.schedule = cron
	return b
}

// Topic declares an event-driven construct subscribed to a topic.
func (b *Builder) Topic(topic string) *Builder {
	b.c.kind = KindTopic
	b.c.topic = topic
	b.c.route = topic
	return b
}

// Body sets the request body schema.
func (b *Builder) Body(s schema.Schema) *Builder {
	b.c.body = s
	return b
}

// Query sets the query-string schema.
func (b *Builder) Query(s schema.Schema) *Builder {
	b.c.query = s
	return b
}

// Params sets the path-parameter schema.
func (b *Builder) Params(s schema.Schema) *Builder {
	b.c.params = s
	return b
}

// Output sets the handler output schema.
func (b *Builder) Output(s schema.Schema) *Builder {
	b.c.output = s
	return b
}

// Use appends required service descriptors, in order.
func (b *Builder) Use(services ...Service) *Builder {
	b.c.services = append(b.c.services, services...)
	return b
}

// Database declares the construct's database service. The descriptor is
// appended to the required services and its name recorded so the runtime
// can detect when it shares a transactional resource with audit storage.
func (b *Builder) Database(svc Service) *Builder {
	b.c.services = append(b.c.services, svc)
	b.c.database = svc.Name
	return b
}

// AuditStorage declares the construct's audit-storage service.
func (b *Builder) AuditStorage(svc Service) *Builder {
	b.c.services = append(b.c.services, svc)
	b.c.auditStorage = svc.Name
	return b
}

// Authorize attaches an authorizer.
func (b *Builder) Authorize(a Authorizer) *Builder {
	b.c.authorizer = &a
	return b
}

// Actor attaches an actor extractor for audit attribution.
func (b *Builder) Actor(fn ActorFunc) *Builder {
	b.c.actor = fn
	return b
}

// Audit appends a declarative audit rule.
func (b *Builder) Audit(rule audit.Rule) *Builder {
	b.c.audits = append(b.c.audits, rule)
	return b
}

// Publish appends an event-publication rule.
func (b *Builder) Publish(rule events.Rule) *Builder {
	b.c.events = append(b.c.events, rule)
	return b
}

// RateLimit attaches a rate-limit policy.
func (b *Builder) RateLimit(p RateLimitPolicy) *Builder {
	b.c.rateLimit = &p
	return b
}

// RLS attaches a row-level-security policy.
func (b *Builder) RLS(p RLSPolicy) *Builder {
	b.c.rls = &p
	return b
}

// BypassRLS marks the construct as bypassing its RLS policy.
func (b *Builder) BypassRLS() *Builder {
	b.c.bypassRLS = true
	return b
}

// Timeout records an advisory timeout. It is consumed by the surrounding
// invocation runtime, not enforced by the pipeline.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.c.timeout = d
	return b
}

// Memory records an advisory memory hint in megabytes.
func (b *Builder) Memory(mb int) *Builder {
	b.c.memoryMB = mb
	return b
}

// Status sets the default success status.
func (b *Builder) Status(code int) *Builder {
	b.c.defaultStatus = code
	return b
}

// Logger sets the construct's logger.
func (b *Builder) Logger(log zerolog.Logger) *Builder {
	b.c.logger = log
	return b
}

// Handle sets the handler.
func (b *Builder) Handle(h Handler) *Builder {
	b.c.handler = h
	return b
}

// Seal freezes the declaration into an immutable Construct.
//
// All accumulated slices are copied, so further use of the builder cannot
// leak into the sealed value. Sealing without a handler is a configuration
// error.
func (b *Builder) Seal() (*Construct, error) {
	if b.c.handler == nil {
		return nil, &errs.ConfigurationError{Reason: "construct sealed without a handler"}
	}
	if b.c.kind == "" {
		return nil, &errs.ConfigurationError{Reason: "construct sealed without a route, function, schedule, or topic"}
	}

	sealed := b.c

	sealed.services = append([]Service(nil), b.c.services...)
	sealed.audits = append([]audit.Rule(nil), b.c.audits...)
	sealed.events = append([]events.Rule(nil), b.c.events...)

	if b.c.rateLimit != nil {
		p := *b.c.rateLimit
		sealed.rateLimit = &p
	}
	if b.c.rls != nil {
		p := *b.c.rls
		sealed.rls = &p
	}
	if b.c.authorizer != nil {
		a := *b.c.authorizer
		sealed.authorizer = &a
	}

	return &sealed, nil
}

// MustSeal is Seal for declarations known to be complete at compile time.
// It panics on a configuration error.
func (b *Builder) MustSeal() *Construct {
	c, err := b.Seal()
	if err != nil {
		panic(err)
	}
	return c
}
