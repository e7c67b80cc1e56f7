package pipeline

import (
	"context"
	"net/http"
	"testing"

	"github.com/constructhq/construct/internal/audit"
	"github.com/constructhq/construct/internal/construct"
	"github.com/constructhq/construct/internal/errs"
	"github.com/constructhq/construct/internal/events"
	"github.com/constructhq/construct/internal/resolver"
	"github.com/constructhq/construct/internal/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory audit.Store plus audit.Database, the pair the
// pipeline expects an audit storage service to implement.
type fakeStore struct {
	name       string
	flushes    [][]audit.Record
	committed  int
	rolledBack int
}

type fakeTx struct{}

func (f *fakeTx) Underlying() any { return f }

func (f *fakeStore) ServiceName() string { return f.name }

func (f *fakeStore) Transaction(ctx context.Context, fn func(ctx context.Context, tx audit.Tx) error) error {
	if err := fn(ctx, &fakeTx{}); err != nil {
		f.rolledBack++
		return err
	}
	f.committed++
	return nil
}

func (f *fakeStore) Write(ctx context.Context, records []audit.Record, tx audit.Tx) error {
	f.flushes = append(f.flushes, records)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	return nil, nil
}

// capturingPublisher records published events; fail makes every publish
// error to exercise best-effort semantics.
type capturingPublisher struct {
	published []events.Event
	fail      bool
}

func (p *capturingPublisher) Publish(ctx context.Context, e events.Event) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, e)
	return nil
}

func storeService(store *fakeStore) construct.Service {
	return construct.Service{
		Name: store.name,
		Register: func(ctx context.Context) (any, error) {
			return store, nil
		},
	}
}

func newTestPipeline(pub events.Publisher) *Pipeline {
	return New(resolver.New(), pub, zerolog.Nop())
}

type userBody struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func TestBodyValidationFailureShortCircuits(t *testing.T) {
	handlerRan := false
	c := construct.New().
		Route(http.MethodPost, "/users").
		Body(schema.Struct[userBody]()).
		Handle(func(ctx *construct.Ctx) (any, error) {
			handlerRan = true
			return nil, nil
		}).
		MustSeal()

	p := newTestPipeline(nil)
	resp := p.Execute(context.Background(), c, &Request{
		Body: []byte(`{"email":"ada@example.com"}`),
	})

	assert.False(t, handlerRan)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)

	httpErr, ok := resp.Body.(*errs.HTTPError)
	require.True(t, ok)
	assert.Equal(t, errs.ChannelBody, httpErr.Channel)
	require.Len(t, httpErr.Issues, 1)
	assert.Equal(t, "name", httpErr.Issues[0].Path)
}

func TestUnauthorizedIsGeneric(t *testing.T) {
	for name, authorizer := range map[string]construct.Authorizer{
		"session derivation fails": {
			Session: func(ctx context.Context, in construct.AuthInput) (any, error) {
				return nil, errors.New("token expired at 2026-08-01, issuer acme")
			},
			Authorize: func(ctx context.Context, session any) (bool, error) { return true, nil },
		},
		"decision is negative": {
			Session: func(ctx context.Context, in construct.AuthInput) (any, error) {
				return "session", nil
			},
			Authorize: func(ctx context.Context, session any) (bool, error) { return false, nil },
		},
	} {
		c := construct.New().
			Route(http.MethodGet, "/private").
			Authorize(authorizer).
			Handle(func(ctx *construct.Ctx) (any, error) { return "secret", nil }).
			MustSeal()

		resp := newTestPipeline(nil).Execute(context.Background(), c, &Request{})

		assert.Equal(t, http.StatusUnauthorized, resp.Status, name)
		httpErr := resp.Body.(*errs.HTTPError)
		// No internal detail may leak out.
		assert.Equal(t, "Unauthorized", httpErr.Message, name)
		assert.Empty(t, httpErr.Issues, name)
	}
}

func TestHandlerFailureIsOpaque(t *testing.T) {
	c := construct.New().
		Route(http.MethodGet, "/boom").
		Handle(func(ctx *construct.Ctx) (any, error) {
			return nil, errors.New("pg: relation users_tmp does not exist")
		}).
		MustSeal()

	resp := newTestPipeline(nil).Execute(context.Background(), c, &Request{})

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	httpErr := resp.Body.(*errs.HTTPError)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), httpErr.Message)
	assert.NotContains(t, httpErr.Message, "users_tmp")
}

type userOut struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func TestAuditedInvocationSharesOneTransaction(t *testing.T) {
	store := &fakeStore{name: "postgres"}
	pg := storeService(store)

	var sawTx bool
	c := construct.New().
		Route(http.MethodPost, "/users").
		Output(schema.Struct[userOut]()).
		Database(pg).
		AuditStorage(pg).
		Actor(func(ctx context.Context, session any, h http.Header) string { return "user_123" }).
		Audit(audit.Rule{
			Type: "user.created",
			Payload: func(out any) any {
				u := out.(*userOut)
				return map[string]string{"userId": u.ID, "email": u.Email}
			},
		}).
		Handle(func(ctx *construct.Ctx) (any, error) {
			sawTx = ctx.DB != nil
			return userOut{ID: "42", Email: "ada@example.com"}, nil
		}).
		MustSeal()

	resp := newTestPipeline(nil).Execute(context.Background(), c, &Request{})

	require.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, sawTx, "database and audit storage share a resource, handler must get the tx")
	assert.Equal(t, 1, store.committed)

	require.Len(t, store.flushes, 1)
	records := store.flushes[0]
	require.Len(t, records, 1)
	assert.Equal(t, "user.created", records[0].Type)
	assert.Equal(t, "user_123", records[0].Actor)
	assert.Equal(t, map[string]string{"userId": "42", "email": "ada@example.com"}, records[0].Payload)
}

func TestOutputValidationFailureRollsBack(t *testing.T) {
	store := &fakeStore{name: "postgres"}
	pg := storeService(store)

	c := construct.New().
		Route(http.MethodPost, "/users").
		Output(schema.Struct[userOut]()).
		Database(pg).
		AuditStorage(pg).
		Audit(audit.Rule{Type: "user.created"}).
		Handle(func(ctx *construct.Ctx) (any, error) {
			// Missing email: output contract violated.
			return userOut{ID: "42"}, nil
		}).
		MustSeal()

	resp := newTestPipeline(nil).Execute(context.Background(), c, &Request{})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	httpErr := resp.Body.(*errs.HTTPError)
	assert.Equal(t, errs.ChannelOutput, httpErr.Channel)
	assert.Equal(t, 1, store.rolledBack)
	assert.Empty(t, store.flushes)
}

func TestResponseMetaMergesOverDefaults(t *testing.T) {
	c := construct.New().
		Route(http.MethodPost, "/sessions").
		Status(http.StatusOK).
		Handle(func(ctx *construct.Ctx) (any, error) {
			return construct.WithMeta(map[string]string{"ok": "yes"}, construct.Meta{
				Status:        http.StatusCreated,
				Headers:       map[string]string{"X-Session": "abc"},
				SetCookies:    []*http.Cookie{{Name: "sid", Value: "abc"}},
				DeleteCookies: []string{"legacy_sid"},
			}), nil
		}).
		MustSeal()

	resp := newTestPipeline(nil).Execute(context.Background(), c, &Request{})

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "abc", resp.Headers["X-Session"])
	require.Len(t, resp.SetCookies, 1)
	assert.Equal(t, "sid", resp.SetCookies[0].Name)
	assert.Equal(t, []string{"legacy_sid"}, resp.DeleteCookies)
	// The body is the payload, never the wrapper.
	assert.Equal(t, map[string]string{"ok": "yes"}, resp.Body)
}

func TestEventsPublishedOnSuccessOnly(t *testing.T) {
	pub := &capturingPublisher{}

	c := construct.New().
		Route(http.MethodPost, "/users").
		Publish(events.Rule{
			Topic:   "user.created",
			Payload: func(out any) any { return out },
		}).
		Handle(func(ctx *construct.Ctx) (any, error) {
			return map[string]string{"id": "42"}, nil
		}).
		MustSeal()

	resp := newTestPipeline(pub).Execute(context.Background(), c, &Request{})

	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "user.created", pub.published[0].Topic)
	assert.Equal(t, map[string]string{"id": "42"}, pub.published[0].Payload)
}

func TestEventsNotPublishedOnFailure(t *testing.T) {
	pub := &capturingPublisher{}

	c := construct.New().
		Route(http.MethodPost, "/users").
		Publish(events.Rule{Topic: "user.created", Static: "x"}).
		Handle(func(ctx *construct.Ctx) (any, error) {
			return nil, errors.New("boom")
		}).
		MustSeal()

	resp := newTestPipeline(pub).Execute(context.Background(), c, &Request{})

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Empty(t, pub.published)
}

func TestPublicationFailureDoesNotInvalidateResponse(t *testing.T) {
	pub := &capturingPublisher{fail: true}

	c := construct.New().
		Route(http.MethodPost, "/users").
		Publish(events.Rule{Topic: "user.created", Static: "x"}).
		Handle(func(ctx *construct.Ctx) (any, error) {
			return map[string]string{"id": "42"}, nil
		}).
		MustSeal()

	resp := newTestPipeline(pub).Execute(context.Background(), c, &Request{})

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]string{"id": "42"}, resp.Body)
}

func TestQueryAndParamsValidation(t *testing.T) {
	type listQuery struct {
		Limit string `json:"limit" validate:"required"`
	}

	c := construct.New().
		Route(http.MethodGet, "/users").
		Query(schema.Struct[listQuery]()).
		Handle(func(ctx *construct.Ctx) (any, error) {
			q := ctx.Query.(*listQuery)
			return q.Limit, nil
		}).
		MustSeal()

	p := newTestPipeline(nil)

	resp := p.Execute(context.Background(), c, &Request{Query: map[string]string{"limit": "10"}})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "10", resp.Body)

	resp = p.Execute(context.Background(), c, &Request{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Equal(t, errs.ChannelQuery, resp.Body.(*errs.HTTPError).Channel)
}
