package audit

import (
	"context"
	"testing"
	"time"

	"github.com/constructhq/construct/internal/errs"
	"github.com/constructhq/construct/internal/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTx struct{}

func (m *memTx) Underlying() any { return m }

type memDB struct {
	name       string
	committed  int
	rolledBack int
}

func (m *memDB) ServiceName() string { return m.name }

func (m *memDB) Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{}
	if err := fn(ctx, tx); err != nil {
		m.rolledBack++
		return err
	}
	m.committed++
	return nil
}

type memStore struct {
	*memDB

	flushes  [][]Record
	lastTx   Tx
	writeErr error
}

func newMemStore(name string) *memStore {
	return &memStore{memDB: &memDB{name: name}}
}

func (m *memStore) Write(ctx context.Context, records []Record, tx Tx) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.flushes = append(m.flushes, records)
	m.lastTx = tx
	return nil
}

func (m *memStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	var out []Record
	for _, flush := range m.flushes {
		out = append(out, flush...)
	}
	return out, nil
}

func testCoordinator() *Coordinator {
	c := NewCoordinator(zerolog.Nop())
	c.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	ids := 0
	c.newID = func() string {
		ids++
		return string(rune('a' + ids - 1))
	}
	return c
}

func TestRunDirectWithoutStore(t *testing.T) {
	coord := testCoordinator()

	plan := Plan{
		Rules:  []Rule{{Type: "user.created"}},
		Logger: zerolog.Nop(),
		Exec: func(ctx context.Context, a Auditor, tx Tx) (any, error) {
			// Manual audits without storage are discarded, not fatal.
			a.Audit("manual.event", map[string]string{"k": "v"})
			assert.Nil(t, tx)
			return map[string]string{"id": "42"}, nil
		},
	}

	outcome, err := coord.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Audited)
	assert.Equal(t, map[string]string{"id": "42"}, outcome.Payload)
}

func TestRunDirectValidatesOutput(t *testing.T) {
	coord := testCoordinator()

	plan := Plan{
		Logger: zerolog.Nop(),
		Output: schema.Func(func(v any) (any, []errs.Issue) {
			return nil, []errs.Issue{{Path: "id", Message: "is required"}}
		}),
		Exec: func(ctx context.Context, a Auditor, tx Tx) (any, error) {
			return map[string]string{}, nil
		},
	}

	_, err := coord.Run(context.Background(), plan)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "OUTPUT_VALIDATION_FAILED", httpErr.Code)
	assert.Equal(t, errs.ChannelOutput, httpErr.Channel)
}

func TestTransactionalFlushStampsRecords(t *testing.T) {
	coord := testCoordinator()
	store := newMemStore("postgres")

	plan := Plan{
		Store:    store,
		Database: store,
		Actor:    "user_123",
		Logger:   zerolog.Nop(),
		Rules: []Rule{{
			Type: "user.created",
			Payload: func(out any) any {
				u := out.(map[string]string)
				return map[string]string{"userId": u["id"], "email": u["email"]}
			},
			EntityID: func(out any) string { return out.(map[string]string)["id"] },
		}},
		Exec: func(ctx context.Context, a Auditor, tx Tx) (any, error) {
			require.NotNil(t, tx)
			a.Audit("manual.note", "first", WithTable("notes"))
			return map[string]string{"id": "42", "email": "ada@example.com"}, nil
		},
	}

	outcome, err := coord.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Audited)
	assert.Equal(t, 1, store.committed)

	// One flush, through the live transaction, manual records first.
	require.Len(t, store.flushes, 1)
	records := store.flushes[0]
	require.Len(t, records, 2)
	assert.NotNil(t, store.lastTx)

	assert.Equal(t, "manual.note", records[0].Type)
	assert.Equal(t, "notes", records[0].Table)

	assert.Equal(t, "user.created", records[1].Type)
	assert.Equal(t, map[string]string{"userId": "42", "email": "ada@example.com"}, records[1].Payload)
	assert.Equal(t, "42", records[1].EntityID)

	for _, rec := range records {
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "user_123", rec.Actor)
		assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), rec.CreatedAt)
	}
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestHandlerErrorRollsBackWithoutFlushing(t *testing.T) {
	coord := testCoordinator()
	store := newMemStore("postgres")

	boom := errs.NewHandlerError(assert.AnError)
	plan := Plan{
		Store:    store,
		Database: store,
		Logger:   zerolog.Nop(),
		Rules:    []Rule{{Type: "user.created"}},
		Exec: func(ctx context.Context, a Auditor, tx Tx) (any, error) {
			a.Audit("manual.note", "queued before failure")
			return nil, boom
		},
	}

	_, err := coord.Run(context.Background(), plan)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.rolledBack)
	assert.Equal(t, 0, store.committed)
	assert.Empty(t, store.flushes)
}

func TestOutputValidationFailureRollsBackManualAudits(t *testing.T) {
	coord := testCoordinator()
	store := newMemStore("postgres")

	plan := Plan{
		Store:    store,
		Database: store,
		Logger:   zerolog.Nop(),
		Output: schema.Func(func(v any) (any, []errs.Issue) {
			return nil, []errs.Issue{{Path: "email", Message: "is required"}}
		}),
		Exec: func(ctx context.Context, a Auditor, tx Tx) (any, error) {
			a.Audit("manual.note", "must not persist")
			return map[string]string{"id": "42"}, nil
		},
	}

	_, err := coord.Run(context.Background(), plan)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "OUTPUT_VALIDATION_FAILED", httpErr.Code)
	assert.Equal(t, 1, store.rolledBack)
	assert.Empty(t, store.flushes)
}

func TestFlushFailureRollsBackHandlerWrites(t *testing.T) {
	coord := testCoordinator()
	store := newMemStore("postgres")
	store.writeErr = assert.AnError

	plan := Plan{
		Store:    store,
		Database: store,
		Logger:   zerolog.Nop(),
		Rules:    []Rule{{Type: "user.created"}},
		Exec: func(ctx context.Context, a Auditor, tx Tx) (any, error) {
			return map[string]string{"id": "42"}, nil
		},
	}

	_, err := coord.Run(context.Background(), plan)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "AUDIT_PERSISTENCE_FAILED", httpErr.Code)
	assert.Equal(t, 1, store.rolledBack)
	assert.Equal(t, 0, store.committed)
}

func TestRuleGuardSkipsNonFiringRules(t *testing.T) {
	coord := testCoordinator()
	store := newMemStore("postgres")

	plan := Plan{
		Store:    store,
		Database: store,
		Logger:   zerolog.Nop(),
		Rules: []Rule{
			{Type: "always"},
			{Type: "never", When: func(out any) bool { return false }},
		},
		Exec: func(ctx context.Context, a Auditor, tx Tx) (any, error) {
			return "out", nil
		},
	}

	outcome, err := coord.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Audited)
	require.Len(t, store.flushes, 1)
	assert.Equal(t, "always", store.flushes[0][0].Type)
}

type wrapped struct {
	inner any
}

func (w wrapped) ResponsePayload() any { return w.inner }

func TestMetaCarrierStrippedBeforeValidationAndRules(t *testing.T) {
	coord := testCoordinator()
	store := newMemStore("postgres")

	var seenByRule any
	plan := Plan{
		Store:    store,
		Database: store,
		Logger:   zerolog.Nop(),
		Output: schema.Func(func(v any) (any, []errs.Issue) {
			// Validation must see the inner payload, not the wrapper.
			assert.Equal(t, map[string]string{"id": "42"}, v)
			return v, nil
		}),
		Rules: []Rule{{
			Type: "user.created",
			Payload: func(out any) any {
				seenByRule = out
				return out
			},
		}},
		Exec: func(ctx context.Context, a Auditor, tx Tx) (any, error) {
			return wrapped{inner: map[string]string{"id": "42"}}, nil
		},
	}

	outcome, err := coord.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"id": "42"}, seenByRule)
	assert.Equal(t, map[string]string{"id": "42"}, outcome.Payload)
	assert.IsType(t, wrapped{}, outcome.Output)
}
