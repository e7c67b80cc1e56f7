// Package middleware stores global and route-specific middleware.
//
// These intercept requests to handle cross-cutting concerns such as
// request logging, CORS, rate limiting, tracing, and panic recovery.
// Authorization is not handled here: it is declared per construct and
// enforced by the request pipeline.
package middleware
