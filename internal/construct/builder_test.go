package construct

import (
	"context"
	"net/http"
	"testing"

	"github.com/constructhq/construct/internal/audit"
	"github.com/constructhq/construct/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(c *Ctx) (any, error) {
	return nil, nil
}

func TestSealWithoutHandlerIsConfigurationError(t *testing.T) {
	_, err := New().Route(http.MethodGet, "/ping").Seal()

	var cfgErr *errs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "handler")
}

func TestSealWithoutKindIsConfigurationError(t *testing.T) {
	_, err := New().Handle(noopHandler).Seal()

	var cfgErr *errs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestSealedConstructUnaffectedByLaterBuilderMutation(t *testing.T) {
	b := New().
		Route(http.MethodPost, "/users").
		Audit(audit.Rule{Type: "user.created"}).
		Handle(noopHandler)

	first, err := b.Seal()
	require.NoError(t, err)

	// Keep mutating the builder after sealing.
	b.Audit(audit.Rule{Type: "user.deleted"})
	b.RateLimit(RateLimitPolicy{RPS: 1, Burst: 1})
	second, err := b.Seal()
	require.NoError(t, err)

	assert.Len(t, first.AuditRules(), 1)
	assert.Nil(t, first.RateLimit())

	assert.Len(t, second.AuditRules(), 2)
	require.NotNil(t, second.RateLimit())
}

func TestGettersReturnCopies(t *testing.T) {
	svc := Service{Name: "db", Register: func(ctx context.Context) (any, error) { return nil, nil }}

	c := New().
		Route(http.MethodGet, "/x").
		Use(svc).
		RateLimit(RateLimitPolicy{RPS: 5, Burst: 10}).
		Handle(noopHandler).
		MustSeal()

	services := c.Services()
	services[0].Name = "mutated"
	assert.Equal(t, "db", c.Services()[0].Name)

	policy := c.RateLimit()
	policy.RPS = 99
	assert.Equal(t, float64(5), c.RateLimit().RPS)
}

func TestDefaultStatusIs200(t *testing.T) {
	c := New().Route(http.MethodGet, "/x").Handle(noopHandler).MustSeal()
	assert.Equal(t, http.StatusOK, c.DefaultStatus())
}

func TestStatusOverride(t *testing.T) {
	c := New().
		Route(http.MethodPost, "/x").
		Status(http.StatusCreated).
		Handle(noopHandler).
		MustSeal()
	assert.Equal(t, http.StatusCreated, c.DefaultStatus())
}

func TestKindDeclarations(t *testing.T) {
	fn := New().Function("report").Handle(noopHandler).MustSeal()
	assert.Equal(t, KindFunction, fn.Kind())
	assert.Equal(t, "report", fn.Route())

	sched := New().Schedule("digest", "0 * * * *").Handle(noopHandler).MustSeal()
	assert.Equal(t, KindSchedule, sched.Kind())
	assert.Equal(t, "0 * * * *", sched.Schedule())

	topic := New().Topic("user.created").Handle(noopHandler).MustSeal()
	assert.Equal(t, KindTopic, topic.Kind())
	assert.Equal(t, "user.created", topic.Topic())
}

func TestDatabaseAndAuditStorageRecordServiceNames(t *testing.T) {
	pg := Service{Name: "postgres", Register: func(ctx context.Context) (any, error) { return nil, nil }}

	c := New().
		Route(http.MethodPost, "/x").
		Database(pg).
		AuditStorage(pg).
		Handle(noopHandler).
		MustSeal()

	assert.Equal(t, "postgres", c.DatabaseService())
	assert.Equal(t, "postgres", c.AuditStorageService())
	assert.Len(t, c.Services(), 2)
}
