package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/constructhq/construct/internal/construct"
	"github.com/constructhq/construct/internal/errs"
	"github.com/constructhq/construct/internal/events"
	"github.com/constructhq/construct/internal/pipeline"
	"github.com/labstack/echo/v4"
)

// invoke adapts an Echo request into a pipeline invocation and writes the
// pipeline's response back out.
func (r *Router) invoke(c *construct.Construct) echo.HandlerFunc {
	return func(ec echo.Context) error {
		req, err := toPipelineRequest(ec)
		if err != nil {
			return errs.NewBadRequestError("failed to read request body", nil, nil)
		}

		resp := r.server.Pipeline.Execute(ec.Request().Context(), c, req)
		return writeResponse(ec, resp)
	}
}

// tick produces the function the scheduler runs per cron tick. Schedule
// invocations carry no input; a failed run surfaces as an error so asynq
// records it.
func (r *Router) tick(c *construct.Construct) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		resp := r.server.Pipeline.Execute(ctx, c, &pipeline.Request{})
		return invocationError(resp)
	}
}

// consume produces the subscriber for a topic construct. The delivered
// event payload becomes the invocation body so the construct's body schema
// validates it like any other input. Returning an error makes asynq retry
// the delivery.
func (r *Router) consume(c *construct.Construct) events.Subscriber {
	return func(ctx context.Context, e events.Event) error {
		body, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}

		resp := r.server.Pipeline.Execute(ctx, c, &pipeline.Request{Body: body})
		return invocationError(resp)
	}
}

// toPipelineRequest flattens the Echo request into the transport-agnostic
// shape the pipeline consumes.
func toPipelineRequest(ec echo.Context) (*pipeline.Request, error) {
	httpReq := ec.Request()

	var body []byte
	if httpReq.Body != nil {
		b, err := io.ReadAll(httpReq.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}

	query := make(map[string]string)
	for key, values := range ec.QueryParams() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	params := make(map[string]string)
	for _, name := range ec.ParamNames() {
		params[name] = ec.Param(name)
	}

	return &pipeline.Request{
		Headers: httpReq.Header,
		Cookies: httpReq.Cookies(),
		Body:    body,
		Query:   query,
		Params:  params,
	}, nil
}

// writeResponse applies the pipeline response to the Echo context.
//
// Failures are returned as errors instead of written directly, so the
// request logger derives the right status and the global error handler
// produces the JSON shape in one place.
func writeResponse(ec echo.Context, resp *pipeline.Response) error {
	if httpErr, ok := resp.Body.(*errs.HTTPError); ok {
		return httpErr
	}

	for key, value := range resp.Headers {
		ec.Response().Header().Set(key, value)
	}
	for _, cookie := range resp.SetCookies {
		ec.SetCookie(cookie)
	}
	for _, name := range resp.DeleteCookies {
		ec.SetCookie(&http.Cookie{
			Name:    name,
			Value:   "",
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Unix(0, 0),
		})
	}

	if resp.Body == nil {
		return ec.NoContent(resp.Status)
	}
	return ec.JSON(resp.Status, resp.Body)
}

// invocationError converts a failed non-HTTP invocation into an error for
// the event/scheduler machinery.
func invocationError(resp *pipeline.Response) error {
	if httpErr, ok := resp.Body.(*errs.HTTPError); ok {
		return httpErr
	}
	return nil
}
