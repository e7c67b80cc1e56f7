package errs

import "strings"

// Issue represents a single validation problem at a specific path.
// Example:
//
//	{ "path": "name", "message": "is required" }
type Issue struct {
	// Path is the field path the issue relates to (e.g. "name", "items.0.id").
	Path string `json:"path"`

	// Message is the human-readable issue description.
	Message string `json:"message"`
}

// Channel identifies which input channel a validation failure belongs to.
type Channel string

const (
	ChannelBody   Channel = "body"
	ChannelQuery  Channel = "query"
	ChannelParams Channel = "params"
	ChannelOutput Channel = "output"
)

// HTTPError is the main error type exposed at the runtime boundary.
//
// It implements the `error` interface via Error().
// It is designed to be serialized directly to JSON.
// Fields:
//   - Code: machine-friendly error code (e.g. "VALIDATION_FAILED").
//   - Message: human-friendly message.
//   - Status: HTTP status code.
//   - Channel: which input channel failed, for validation errors.
//   - Issues: structured issue list, only for validation errors.
//
// Internal is never serialized. It carries the underlying cause so the
// global error handler can log the real failure while the client only sees
// the sanitized shape.
type HTTPError struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Status  int     `json:"status"`
	Channel Channel `json:"channel,omitempty"`
	Issues  []Issue `json:"issues,omitempty"`

	// Internal is the wrapped cause, for logs only.
	Internal error `json:"-"`
}

// Error makes *HTTPError satisfy the built-in `error` interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// Unwrap exposes the internal cause to errors.Is/errors.As chains.
func (e *HTTPError) Unwrap() error {
	return e.Internal
}

// Is reports whether target is also a *HTTPError.
//
// It only checks whether the other thing is the same *type*, not whether
// Code/Status match; use CodeOf for exact comparisons.
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)
	return ok
}

// WithMessage returns a *copy* of this HTTPError with Message replaced.
func (e *HTTPError) WithMessage(message string) *HTTPError {
	clone := *e
	clone.Message = message
	return &clone
}

// ConfigurationError reports an invalid construct declaration, detected at
// build time (e.g. Seal called without a handler). It never reaches a
// client; it fails the program before any route is mounted.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid construct configuration: " + e.Reason
}

// MakeUpperCaseWithUnderscores converts a string into an
// UPPER_CASE_WITH_UNDERSCORES format.
//
// Example:
//
//	"Bad Request" -> "BAD_REQUEST"
//
// Used to create stable machine-readable error codes from HTTP status text.
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}
