package schema

import (
	"testing"

	"github.com/constructhq/construct/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createUserInput struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
}

func TestStructValidatesFromBytes(t *testing.T) {
	s := Struct[createUserInput]()

	out, issues := s.Validate([]byte(`{"name":"Ada","email":"ada@example.com"}`))
	require.Empty(t, issues)

	decoded, ok := out.(*createUserInput)
	require.True(t, ok)
	assert.Equal(t, "Ada", decoded.Name)
	assert.Equal(t, "ada@example.com", decoded.Email)
}

func TestStructValidatesFromMap(t *testing.T) {
	s := Struct[createUserInput]()

	out, issues := s.Validate(map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	})
	require.Empty(t, issues)
	require.IsType(t, &createUserInput{}, out)
}

func TestStructReportsMissingFieldByPath(t *testing.T) {
	s := Struct[createUserInput]()

	out, issues := s.Validate([]byte(`{"email":"ada@example.com"}`))
	assert.Nil(t, out)
	require.Len(t, issues, 1)
	assert.Equal(t, "name", issues[0].Path)
	assert.Equal(t, "is required", issues[0].Message)
}

func TestStructReportsBadEmail(t *testing.T) {
	s := Struct[createUserInput]()

	_, issues := s.Validate([]byte(`{"name":"Ada","email":"not-an-email"}`))
	require.Len(t, issues, 1)
	assert.Equal(t, "email", issues[0].Path)
	assert.Equal(t, "must be a valid email address", issues[0].Message)
}

func TestStructNilInputFailsRequired(t *testing.T) {
	s := Struct[createUserInput]()

	_, issues := s.Validate(nil)
	require.NotEmpty(t, issues)
}

func TestStructRejectsMalformedJSON(t *testing.T) {
	s := Struct[createUserInput]()

	out, issues := s.Validate([]byte(`{not json`))
	assert.Nil(t, out)
	require.NotEmpty(t, issues)
}

func TestFuncSchemaAdaptsPlainFunction(t *testing.T) {
	called := false
	s := Func(func(value any) (any, []errs.Issue) {
		called = true
		return value, nil
	})

	out, issues := s.Validate("hello")
	assert.True(t, called)
	assert.Equal(t, "hello", out)
	assert.Empty(t, issues)
}
