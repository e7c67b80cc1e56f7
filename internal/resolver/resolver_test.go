package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/constructhq/construct/internal/construct"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dbStub struct{ id int }

func TestResolveIsIdempotent(t *testing.T) {
	r := New()

	var registrations int32
	svc := construct.Service{
		Name: "db",
		Register: func(ctx context.Context) (any, error) {
			n := atomic.AddInt32(&registrations, 1)
			return &dbStub{id: int(n)}, nil
		},
	}

	first, err := r.Resolve(context.Background(), []construct.Service{svc})
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), []construct.Service{svc})
	require.NoError(t, err)

	assert.Same(t, first["db"], second["db"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&registrations))
}

func TestResolveOverlappingSetsShareInstances(t *testing.T) {
	r := New()

	desc := func(name string) construct.Service {
		return construct.Service{
			Name: name,
			Register: func(ctx context.Context) (any, error) {
				return &dbStub{}, nil
			},
		}
	}

	a, err := r.Resolve(context.Background(), []construct.Service{desc("db"), desc("cache")})
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), []construct.Service{desc("cache"), desc("mail")})
	require.NoError(t, err)

	assert.Same(t, a["cache"], b["cache"])
}

func TestConcurrentFirstAccessRegistersOnce(t *testing.T) {
	r := New()

	var registrations int32
	release := make(chan struct{})
	svc := construct.Service{
		Name: "db",
		Register: func(ctx context.Context) (any, error) {
			atomic.AddInt32(&registrations, 1)
			<-release
			return &dbStub{}, nil
		},
	}

	const workers = 16
	results := make([]any, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := r.Resolve(context.Background(), []construct.Service{svc})
			if assert.NoError(t, err) {
				results[i] = out["db"]
			}
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&registrations))
	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestFailedRegistrationIsNotCached(t *testing.T) {
	r := New()

	var calls int32
	svc := construct.Service{
		Name: "db",
		Register: func(ctx context.Context) (any, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, errors.New("connection refused")
			}
			return &dbStub{}, nil
		},
	}

	_, err := r.Resolve(context.Background(), []construct.Service{svc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `registering service "db"`)

	_, cached := r.Lookup("db")
	assert.False(t, cached)

	out, err := r.Resolve(context.Background(), []construct.Service{svc})
	require.NoError(t, err)
	assert.NotNil(t, out["db"])
}

func TestNilRegistrationFunctionFails(t *testing.T) {
	r := New()

	_, err := r.Resolve(context.Background(), []construct.Service{{Name: "broken"}})
	require.Error(t, err)
}
