package construct

import (
	"context"
	"net/http"
	"testing"

	"github.com/constructhq/construct/internal/audit"
	"github.com/constructhq/construct/internal/errs"
	"github.com/constructhq/construct/internal/events"
	"github.com/constructhq/construct/internal/schema"
	"github.com/stretchr/testify/assert"
)

func TestClassifyMinimal(t *testing.T) {
	assert.Equal(t, TierMinimal, Classify(FeatureVector{}))
}

func TestClassifyValidationAloneStaysMinimal(t *testing.T) {
	v := FeatureVector{
		HasBodyValidation:   true,
		HasQueryValidation:  true,
		HasParamValidation:  true,
		HasOutputValidation: true,
	}
	assert.Equal(t, TierMinimal, Classify(v))
}

func TestClassifyFullTakesPrecedence(t *testing.T) {
	for name, v := range map[string]FeatureVector{
		"audits":    {HasAudits: true},
		"rateLimit": {HasRateLimit: true},
		"rls":       {HasRls: true},
		"audits plus everything": {
			HasAuth: true, HasServices: true, HasDatabase: true,
			HasBodyValidation: true, HasEvents: true, HasAudits: true,
		},
	} {
		assert.Equal(t, TierFull, Classify(v), name)
	}
}

func TestClassifyStandard(t *testing.T) {
	for name, v := range map[string]FeatureVector{
		"auth only":     {HasAuth: true},
		"services only": {HasServices: true},
		"database only": {HasDatabase: true},
		"events only":   {HasEvents: true},
		"auth plus validation": {
			HasAuth: true, HasBodyValidation: true, HasOutputValidation: true,
		},
	} {
		assert.Equal(t, TierStandard, Classify(v), name)
	}
}

func TestClassifyIsPure(t *testing.T) {
	v := FeatureVector{HasAuth: true, HasAudits: true}
	first := Classify(v)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(v))
	}
}

func TestFeaturesRLSCountsOnlyWhenNotBypassed(t *testing.T) {
	withRLS := New().
		Route(http.MethodGet, "/x").
		RLS(RLSPolicy{Table: "users", Policy: "tenant_id = current_tenant()"}).
		Handle(noopHandler).
		MustSeal()
	assert.True(t, withRLS.Features().HasRls)
	assert.Equal(t, TierFull, withRLS.Tier())

	bypassed := New().
		Route(http.MethodGet, "/x").
		RLS(RLSPolicy{Table: "users", Policy: "tenant_id = current_tenant()"}).
		BypassRLS().
		Handle(noopHandler).
		MustSeal()
	assert.False(t, bypassed.Features().HasRls)
	assert.Equal(t, TierMinimal, bypassed.Tier())
}

func TestFeaturesReflectDeclaration(t *testing.T) {
	pg := Service{Name: "postgres", Register: func(ctx context.Context) (any, error) { return nil, nil }}

	c := New().
		Route(http.MethodPost, "/users").
		Body(schema.Func(func(v any) (any, []errs.Issue) { return v, nil })).
		Output(schema.Func(func(v any) (any, []errs.Issue) { return v, nil })).
		Database(pg).
		AuditStorage(pg).
		Audit(audit.Rule{Type: "user.created"}).
		Publish(events.Rule{Topic: "user.created"}).
		Handle(noopHandler).
		MustSeal()

	v := c.Features()
	assert.True(t, v.HasServices)
	assert.True(t, v.HasDatabase)
	assert.True(t, v.HasBodyValidation)
	assert.True(t, v.HasOutputValidation)
	assert.True(t, v.HasAudits)
	assert.True(t, v.HasEvents)
	assert.False(t, v.HasAuth)
	assert.False(t, v.HasQueryValidation)
	assert.Equal(t, TierFull, c.Tier())
}
