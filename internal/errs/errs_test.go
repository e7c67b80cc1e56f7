package errs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeUpperCaseWithUnderscores(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", MakeUpperCaseWithUnderscores("Not Found"))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", MakeUpperCaseWithUnderscores("Internal Server Error"))
}

func TestHandlerErrorKeepsCauseInternal(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	err := NewHandlerError(cause)

	// Client-facing fields carry no detail.
	assert.Equal(t, "Internal Server Error", err.Message)
	assert.Equal(t, 500, err.Status)

	// The cause stays reachable for logging.
	assert.ErrorIs(t, err, cause)
}

func TestValidationErrorShape(t *testing.T) {
	err := NewValidationError(ChannelBody, []Issue{{Path: "name", Message: "is required"}})

	assert.Equal(t, 422, err.Status)
	assert.Equal(t, "VALIDATION_FAILED", err.Code)
	assert.Equal(t, ChannelBody, err.Channel)
	require.Len(t, err.Issues, 1)
}

func TestWithMessageReturnsCopy(t *testing.T) {
	base := NewNotFoundError("User not found")
	changed := base.WithMessage("Order not found")

	assert.Equal(t, "User not found", base.Message)
	assert.Equal(t, "Order not found", changed.Message)
	assert.Equal(t, base.Status, changed.Status)
}

func TestConfigurationError(t *testing.T) {
	err := &ConfigurationError{Reason: "construct sealed without a handler"}
	assert.Contains(t, err.Error(), "handler")
}
