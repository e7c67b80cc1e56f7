// Package resolver memoizes collaborator instances declared by constructs.
//
// A resolver is an explicit instance injected into the pipeline at
// construction time, not a process-wide singleton, so tests can substitute
// a fresh resolver per case.
package resolver

import (
	"context"
	"sync"

	"github.com/constructhq/construct/internal/construct"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Resolver registers and caches service instances exactly once per name.
// The cache is read-mostly after warm-up and safe for concurrent reads.
type Resolver struct {
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]any
}

// New constructs an empty Resolver.
func New() *Resolver {
	return &Resolver{
		cache: make(map[string]any),
	}
}

// Resolve returns an instance for each requested descriptor, registering
// each service at most once.
//
// Concurrent first requests for the same name share one in-flight
// registration instead of triggering duplicates; every waiter observes the
// same result. A failed registration caches nothing, so a later call may
// retry.
func (r *Resolver) Resolve(ctx context.Context, descs []construct.Service) (map[string]any, error) {
	out := make(map[string]any, len(descs))

	for _, desc := range descs {
		inst, err := r.resolveOne(ctx, desc)
		if err != nil {
			return nil, errors.Wrapf(err, "registering service %q", desc.Name)
		}
		out[desc.Name] = inst
	}

	return out, nil
}

// Lookup returns an already-registered instance without triggering
// registration.
func (r *Resolver) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.cache[name]
	return inst, ok
}

func (r *Resolver) resolveOne(ctx context.Context, desc construct.Service) (any, error) {
	r.mu.RLock()
	inst, ok := r.cache[desc.Name]
	r.mu.RUnlock()
	if ok {
		return inst, nil
	}

	// singleflight collapses concurrent first requests into one
	// registration; the loser goroutines block on the winner's result.
	inst, err, _ := r.group.Do(desc.Name, func() (any, error) {
		// Re-check under the group: a previous winner may have populated
		// the cache between our read and the Do call.
		r.mu.RLock()
		cached, ok := r.cache[desc.Name]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		if desc.Register == nil {
			return nil, errors.Errorf("service %q has no registration function", desc.Name)
		}

		created, err := desc.Register(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[desc.Name] = created
		r.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	return inst, nil
}
