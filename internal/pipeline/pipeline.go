// Package pipeline orchestrates one invocation of a construct:
// validation, authorization, transactional execution, event publication,
// and response assembly.
//
// One Pipeline serves all constructs; every Execute call runs the sequence
// on its own stack with no shared mutable state beyond the resolver cache.
package pipeline

import (
	"context"
	"time"

	"github.com/constructhq/construct/internal/audit"
	"github.com/constructhq/construct/internal/construct"
	"github.com/constructhq/construct/internal/errs"
	"github.com/constructhq/construct/internal/events"
	"github.com/constructhq/construct/internal/resolver"
	"github.com/constructhq/construct/internal/schema"
	"github.com/constructhq/construct/internal/sqlerr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Pipeline executes construct declarations. The resolver and publisher are
// injected at construction time; tests substitute fresh instances per case.
type Pipeline struct {
	resolver    *resolver.Resolver
	coordinator *audit.Coordinator
	publisher   events.Publisher
	logger      zerolog.Logger
}

// New constructs a Pipeline. publisher may be nil when the deployment has
// no event bus; publication rules then log and skip.
func New(res *resolver.Resolver, publisher events.Publisher, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		resolver:    res,
		coordinator: audit.NewCoordinator(logger),
		publisher:   publisher,
		logger:      logger,
	}
}

// Execute runs one invocation through the full sequence and always returns
// a response; failures are mapped to their external status here so the
// transport adaptor only has to encode the result.
func (p *Pipeline) Execute(ctx context.Context, c *construct.Construct, req *Request) *Response {
	start := time.Now()

	log := c.Logger().With().
		Str("route", c.Route()).
		Str("kind", string(c.Kind())).
		Logger()

	log.Info().Msg("handling invocation")

	// ---------------- Validation phase -----------------------------------
	validationStart := time.Now()

	body, failure := p.validateChannel(errs.ChannelBody, c.BodySchema(), rawBody(req))
	if failure == nil {
		var query any
		query, failure = p.validateChannel(errs.ChannelQuery, c.QuerySchema(), rawMap(req.Query))
		if failure == nil {
			var params any
			params, failure = p.validateChannel(errs.ChannelParams, c.ParamsSchema(), rawMap(req.Params))
			if failure == nil {
				return p.run(ctx, c, req, log, start, validationStart, body, query, params)
			}
		}
	}

	log.Info().
		Str("channel", string(failure.Channel)).
		Dur("validation_duration", time.Since(validationStart)).
		Msg("invocation validation failed")
	return p.fail(log, failure)
}

// run continues past validation; split out so the short-circuiting above
// stays readable.
func (p *Pipeline) run(
	ctx context.Context,
	c *construct.Construct,
	req *Request,
	log zerolog.Logger,
	start, validationStart time.Time,
	body, query, params any,
) *Response {
	log.Debug().
		Dur("validation_duration", time.Since(validationStart)).
		Msg("invocation validation successful")

	// ---------------- Service resolution ----------------------------------
	services, err := p.resolver.Resolve(ctx, c.Services())
	if err != nil {
		log.Error().Err(err).Msg("service resolution failed")
		return p.fail(log, errs.NewHandlerError(err))
	}

	// ---------------- Authorization phase ---------------------------------
	var session any
	if authorizer := c.Authorizer(); authorizer != nil {
		session, err = authorizer.Session(ctx, construct.AuthInput{
			Headers:  req.Headers,
			Cookies:  req.Cookies,
			Services: services,
		})
		if err != nil {
			log.Info().Err(err).Msg("session derivation failed")
			return p.fail(log, errs.NewUnauthorizedError())
		}

		allowed, err := authorizer.Authorize(ctx, session)
		if err != nil {
			log.Info().Err(err).Msg("authorization decision failed")
			return p.fail(log, errs.NewUnauthorizedError())
		}
		if !allowed {
			log.Info().Msg("invocation not authorized")
			return p.fail(log, errs.NewUnauthorizedError())
		}
	}

	var actor string
	if fn := c.Actor(); fn != nil {
		actor = fn(ctx, session, req.Headers)
	}

	// ---------------- Transactional execution -----------------------------
	plan, err := p.buildPlan(c, services, log, session, actor, body, query, params)
	if err != nil {
		log.Error().Err(err).Msg("invocation plan invalid")
		return p.fail(log, errs.NewHandlerError(err))
	}

	handlerStart := time.Now()
	outcome, err := p.coordinator.Run(ctx, *plan)
	handlerDuration := time.Since(handlerStart)

	if err != nil {
		log.Error().
			Err(err).
			Dur("handler_duration", handlerDuration).
			Dur("total_duration", time.Since(start)).
			Msg("invocation execution failed")
		return p.fail(log, err)
	}

	// ---------------- Event publication -----------------------------------
	// Success only, after commit, outside the transaction. Failures are
	// logged and swallowed: they cannot invalidate the committed response.
	p.publish(ctx, c, log, outcome.Payload)

	log.Info().
		Dur("handler_duration", handlerDuration).
		Dur("validation_duration", handlerStart.Sub(validationStart)).
		Dur("total_duration", time.Since(start)).
		Int("audited", outcome.Audited).
		Msg("invocation completed successfully")

	// ---------------- Response assembly ------------------------------------
	return assemble(c, outcome)
}

// validateChannel validates one input channel. An unconfigured channel
// passes through as absent; the raw value is never exposed unvalidated.
func (p *Pipeline) validateChannel(channel errs.Channel, s schema.Schema, raw any) (any, *errs.HTTPError) {
	if s == nil {
		return nil, nil
	}
	value, issues := s.Validate(raw)
	if len(issues) > 0 {
		return nil, errs.NewValidationError(channel, issues)
	}
	return value, nil
}

func (p *Pipeline) buildPlan(
	c *construct.Construct,
	services map[string]any,
	log zerolog.Logger,
	session any,
	actor string,
	body, query, params any,
) (*audit.Plan, error) {
	plan := &audit.Plan{
		Rules:  c.AuditRules(),
		Actor:  actor,
		Output: c.OutputSchema(),
		Logger: log,
	}

	shared := false

	if name := c.AuditStorageService(); name != "" {
		store, ok := services[name].(audit.Store)
		if !ok {
			return nil, errors.Errorf("service %q does not implement audit storage", name)
		}
		database, ok := store.(audit.Database)
		if !ok {
			return nil, errors.Errorf("audit storage %q has no transactional resource", name)
		}
		plan.Store = store
		plan.Database = database

		// When the store's backing resource matches the construct's declared
		// database service, the handler's db capability is the transaction
		// handle itself: handler writes and audit writes are physically one
		// atomic unit. Different resources stay best-effort coordinated.
		shared = c.DatabaseService() != "" && c.DatabaseService() == store.ServiceName()
	}

	handler := c.Handler()
	plan.Exec = func(ctx context.Context, a audit.Auditor, tx audit.Tx) (any, error) {
		hctx := &construct.Ctx{
			Context:  ctx,
			Body:     body,
			Query:    query,
			Params:   params,
			Session:  session,
			Actor:    actor,
			Services: services,
			Auditor:  a,
			Logger:   log,
		}
		if shared {
			hctx.DB = tx
		}
		return handler(hctx)
	}

	return plan, nil
}

func (p *Pipeline) publish(ctx context.Context, c *construct.Construct, log zerolog.Logger, payload any) {
	rules := c.EventRules()
	if len(rules) == 0 {
		return
	}
	if p.publisher == nil {
		log.Warn().Int("rules", len(rules)).Msg("event rules configured without a publisher; skipping")
		return
	}

	for _, rule := range rules {
		event := rule.Eval(payload)
		if err := p.publisher.Publish(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("topic", event.Topic).
				Msg("event publication failed; response already committed")
		}
	}
}

// assemble merges handler-returned metadata over the construct's defaults:
// an explicit status wins, headers and cookies are unioned.
func assemble(c *construct.Construct, outcome *audit.Outcome) *Response {
	resp := &Response{
		Status:  c.DefaultStatus(),
		Headers: map[string]string{},
		Body:    outcome.Payload,
	}

	if wrapped, ok := outcome.Output.(*construct.Response); ok {
		meta := wrapped.Meta
		if meta.Status != 0 {
			resp.Status = meta.Status
		}
		for k, v := range meta.Headers {
			resp.Headers[k] = v
		}
		resp.SetCookies = append(resp.SetCookies, meta.SetCookies...)
		resp.DeleteCookies = append(resp.DeleteCookies, meta.DeleteCookies...)
	}

	return resp
}

// fail maps any failure to its externally observable response. Validation
// errors keep their issue lists; handler and audit failures stay opaque to
// the caller, with full detail in the logs only.
func (p *Pipeline) fail(log zerolog.Logger, err error) *Response {
	originalErr := err

	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) {
		// Likely a driver/database/unknown error from the handler;
		// sqlerr.HandleError converts pgx/pgconn errors into friendly
		// application errors (e.g. unique violation -> 400).
		mapped := sqlerr.HandleError(err)
		if !errors.As(mapped, &httpErr) {
			httpErr = errs.NewHandlerError(err)
		}
	}

	log.Error().
		Err(originalErr).
		Int("status", httpErr.Status).
		Str("error_code", httpErr.Code).
		Msg(httpErr.Message)

	return &Response{
		Status:  httpErr.Status,
		Headers: map[string]string{},
		Body:    httpErr,
	}
}

func rawBody(req *Request) any {
	if len(req.Body) == 0 {
		return nil
	}
	return req.Body
}

func rawMap(m map[string]string) any {
	if len(m) == 0 {
		return map[string]string{}
	}
	return m
}
