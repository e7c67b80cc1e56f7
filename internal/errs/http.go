package errs

import (
	"net/http"
)

// NewValidationError creates a 422 error carrying the structured issue list
// for one input channel. Issue lists are deliberately leaked to the client:
// they are actionable by the caller.
func NewValidationError(channel Channel, issues []Issue) *HTTPError {
	return &HTTPError{
		Code:    "VALIDATION_FAILED",
		Message: "Validation failed for " + string(channel),
		Status:  http.StatusUnprocessableEntity,
		Channel: channel,
		Issues:  issues,
	}
}

// NewOutputValidationError creates a 422 error for handler output that does
// not match the construct's output schema.
//
// This is a developer/contract bug rather than a client mistake, but it is
// reported with the same status as input validation for symmetry.
func NewOutputValidationError(issues []Issue) *HTTPError {
	return &HTTPError{
		Code:    "OUTPUT_VALIDATION_FAILED",
		Message: "Handler output failed validation",
		Status:  http.StatusUnprocessableEntity,
		Channel: ChannelOutput,
		Issues:  issues,
	}
}

// NewUnauthorizedError creates a 401 Unauthorized HTTPError.
//
// The message is intentionally generic: authorization failures carry no
// detail beyond "Unauthorized".
func NewUnauthorizedError() *HTTPError {
	return &HTTPError{
		Code:    MakeUpperCaseWithUnderscores(http.StatusText(http.StatusUnauthorized)),
		Message: http.StatusText(http.StatusUnauthorized),
		Status:  http.StatusUnauthorized,
	}
}

// NewHandlerError creates a 500 error for a failed handler execution.
//
// Note:
//   - message is the generic status text, not the real internal error message.
//   - the cause goes into Internal so logs keep the full detail while the
//     client never sees stack traces or driver messages.
func NewHandlerError(cause error) *HTTPError {
	return &HTTPError{
		Code:     MakeUpperCaseWithUnderscores(http.StatusText(http.StatusInternalServerError)),
		Message:  http.StatusText(http.StatusInternalServerError),
		Status:   http.StatusInternalServerError,
		Internal: cause,
	}
}

// NewAuditPersistenceError creates a 500 error for a failed audit flush.
// It always implies the surrounding transaction rolled back.
func NewAuditPersistenceError(cause error) *HTTPError {
	return &HTTPError{
		Code:     "AUDIT_PERSISTENCE_FAILED",
		Message:  http.StatusText(http.StatusInternalServerError),
		Status:   http.StatusInternalServerError,
		Internal: cause,
	}
}

// NewNotFoundError creates a 404 Not Found HTTPError.
func NewNotFoundError(message string) *HTTPError {
	return &HTTPError{
		Code:    MakeUpperCaseWithUnderscores(http.StatusText(http.StatusNotFound)),
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// NewBadRequestError creates a 400 Bad Request HTTPError with an optional
// custom code and issue list. Used by the database error mapper for
// constraint violations raised by handler writes.
func NewBadRequestError(message string, code *string, issues []Issue) *HTTPError {
	formattedCode := MakeUpperCaseWithUnderscores(http.StatusText(http.StatusBadRequest))
	if code != nil {
		formattedCode = *code
	}

	return &HTTPError{
		Code:    formattedCode,
		Message: message,
		Status:  http.StatusBadRequest,
		Issues:  issues,
	}
}

// NewRateLimitError creates a 429 Too Many Requests HTTPError.
func NewRateLimitError() *HTTPError {
	return &HTTPError{
		Code:    MakeUpperCaseWithUnderscores(http.StatusText(http.StatusTooManyRequests)),
		Message: http.StatusText(http.StatusTooManyRequests),
		Status:  http.StatusTooManyRequests,
	}
}

// NewInternalServerError creates a generic 500 with no attached cause.
func NewInternalServerError() *HTTPError {
	return &HTTPError{
		Code:    MakeUpperCaseWithUnderscores(http.StatusText(http.StatusInternalServerError)),
		Message: http.StatusText(http.StatusInternalServerError),
		Status:  http.StatusInternalServerError,
	}
}
