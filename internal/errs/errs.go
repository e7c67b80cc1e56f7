// Package errs defines the error taxonomy for the construct runtime.
//
// Its purpose is to create specific error structures..
// (e.g. Issue lists for validation failures or HTTPError for API responses)..
// to ensure callers receive meaningful, actionable, and consistent..
// error messages while internal detail stays in the logs.
package errs
