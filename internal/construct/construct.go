// Package construct defines the immutable declarative description of one
// unit of work: its route or trigger, input/output schemas, required
// collaborators, authorization rule, audit rules, published events, and
// resource hints.
//
// A construct is built once via the Builder, sealed, and then lives for the
// process. The runtime executes the declaration uniformly regardless of
// which transport eventually invokes it.
package construct

import (
	"context"
	"net/http"
	"time"

	"github.com/constructhq/construct/internal/audit"
	"github.com/constructhq/construct/internal/events"
	"github.com/constructhq/construct/internal/schema"
	"github.com/rs/zerolog"
)

// Kind identifies how a construct is invoked.
type Kind string

const (
	KindHTTP     Kind = "http"
	KindFunction Kind = "function"
	KindSchedule Kind = "schedule"
	KindTopic    Kind = "topic"
)

// Service is a named factory for a collaborator instance (database, event
// publisher, audit store, ...). For a given resolver and process lifetime a
// name resolves to exactly one instance, reused across calls.
type Service struct {
	Name     string
	Register func(ctx context.Context) (any, error)
}

// AuthInput is what an authorizer may derive a session from.
type AuthInput struct {
	Headers  http.Header
	Cookies  []*http.Cookie
	Services map[string]any
}

// Authorizer derives a session and computes a boolean authorization
// decision from it. A negative decision short-circuits the invocation with
// an unauthorized failure before the handler runs.
type Authorizer struct {
	// Session derives the caller's session from headers/cookies/services.
	Session func(ctx context.Context, in AuthInput) (any, error)

	// Authorize decides whether the session may invoke the construct.
	Authorize func(ctx context.Context, session any) (bool, error)
}

// ActorFunc derives an "actor" identity from the session and headers for
// audit attribution.
type ActorFunc func(ctx context.Context, session any, headers http.Header) string

// RateLimitPolicy declares throttling for a construct. Enforcement lives in
// the transport adapter; the policy itself is declarative metadata.
type RateLimitPolicy struct {
	RPS   float64
	Burst int
}

// RLSPolicy declares a row-level-security policy restricting data
// visibility. Tracked as a feature flag for tiering; the policy text is
// consumed by the surrounding platform.
type RLSPolicy struct {
	Table  string
	Policy string
}

// Handler is the construct's unit of business logic.
type Handler func(c *Ctx) (any, error)

// Construct is the sealed, immutable declaration. Two invocations of the
// same construct never observe each other's in-flight state.
type Construct struct {
	kind     Kind
	method   string
	route    string
	topic    string
	schedule string

	body   schema.Schema
	query  schema.Schema
	params schema.Schema
	output schema.Schema

	services     []Service
	database     string
	auditStorage string

	authorizer *Authorizer
	actor      ActorFunc

	audits []audit.Rule
	events []events.Rule

	rateLimit *RateLimitPolicy
	rls       *RLSPolicy
	bypassRLS bool

	timeout       time.Duration
	memoryMB      int
	defaultStatus int

	logger  zerolog.Logger
	handler Handler
}

func (c *Construct) Kind() Kind               { return c.kind }
func (c *Construct) Method() string           { return c.method }
func (c *Construct) Route() string            { return c.route }
func (c *Construct) Topic() string            { return c.topic }
func (c *Construct) Schedule() string         { return c.schedule }
func (c *Construct) BodySchema() schema.Schema   { return c.body }
func (c *Construct) QuerySchema() schema.Schema  { return c.query }
func (c *Construct) ParamsSchema() schema.Schema { return c.params }
func (c *Construct) OutputSchema() schema.Schema { return c.output }
func (c *Construct) Authorizer() *Authorizer  { return c.authorizer }
func (c *Construct) Actor() ActorFunc         { return c.actor }
func (c *Construct) DatabaseService() string  { return c.database }
func (c *Construct) AuditStorageService() string { return c.auditStorage }
func (c *Construct) AuditRules() []audit.Rule { return c.audits }
func (c *Construct) EventRules() []events.Rule { return c.events }
func (c *Construct) BypassRLS() bool          { return c.bypassRLS }
func (c *Construct) Timeout() time.Duration   { return c.timeout }
func (c *Construct) MemoryMB() int            { return c.memoryMB }
func (c *Construct) Logger() zerolog.Logger   { return c.logger }
func (c *Construct) Handler() Handler         { return c.handler }

// Services returns a copy of the ordered service descriptors so callers
// cannot mutate the sealed declaration.
func (c *Construct) Services() []Service {
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

// RateLimit returns a copy of the rate-limit policy, or nil.
func (c *Construct) RateLimit() *RateLimitPolicy {
	if c.rateLimit == nil {
		return nil
	}
	p := *c.rateLimit
	return &p
}

// RLS returns a copy of the row-level-security policy, or nil.
func (c *Construct) RLS() *RLSPolicy {
	if c.rls == nil {
		return nil
	}
	p := *c.rls
	return &p
}

// DefaultStatus is the success status used when the handler returns a plain
// payload without metadata.
func (c *Construct) DefaultStatus() int {
	if c.defaultStatus == 0 {
		return http.StatusOK
	}
	return c.defaultStatus
}
