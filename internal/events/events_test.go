package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleEvalStaticPayload(t *testing.T) {
	r := Rule{Topic: "cache.invalidate", Static: map[string]string{"scope": "users"}}

	e := r.Eval(map[string]string{"id": "42"})

	assert.Equal(t, "cache.invalidate", e.Topic)
	assert.Equal(t, map[string]string{"scope": "users"}, e.Payload)
}

func TestRuleEvalDerivedPayloadWins(t *testing.T) {
	r := Rule{
		Topic:  "user.created",
		Static: "ignored",
		Payload: func(out any) any {
			return map[string]any{"userId": out.(map[string]string)["id"]}
		},
	}

	e := r.Eval(map[string]string{"id": "42"})

	assert.Equal(t, map[string]any{"userId": "42"}, e.Payload)
}

func TestRuleEvalNilPayloadFunctionFallsBackToStatic(t *testing.T) {
	r := Rule{Topic: "ping"}

	e := r.Eval("whatever")

	assert.Equal(t, "ping", e.Topic)
	assert.Nil(t, e.Payload)
}
