package substmodel

import (
	"sync"
	"sync/atomic"
	"time"

	"bitbucket.org/Davydov/ctmc/eigen"
)

// Status tells whether a cached decomposition matches the parameters.
type Status int

const (
	// Dirty means a parameter has changed since the last decomposition.
	Dirty Status = iota
	// Clean means the decomposition is up to date.
	Clean
)

func (s Status) String() string {
	if s == Clean {
		return "clean"
	}
	return "dirty"
}

// CacheState is the derived state of a model. A published CacheState
// and its decomposition are never modified.
type CacheState struct {
	Status        Status
	Decomposition *eigen.Decomposition
}

// Snapshot is a stored cache state handed out by Store. Restoring it
// is a pointer swap.
type Snapshot struct {
	state *CacheState
}

// Status returns the stored status.
func (s Snapshot) Status() Status {
	if s.state == nil {
		return Dirty
	}
	return s.state.Status
}

var dirtyState = &CacheState{Status: Dirty}

// cache implements lazy recomputation of the decomposition. Only the
// transition from dirty to clean is done under the mutex, readers of a
// clean state do not lock.
type cache struct {
	name  string
	mu    sync.Mutex
	state atomic.Pointer[CacheState]
}

func newCache(name string) *cache {
	c := &cache{name: name}
	c.state.Store(dirtyState)
	return c
}

// invalidate marks the cache dirty.
func (c *cache) invalidate() {
	c.mu.Lock()
	c.state.Store(dirtyState)
	c.mu.Unlock()
}

// get returns the current decomposition, calling compute if the cache
// is dirty. On error the cache stays dirty.
func (c *cache) get(compute func() (*eigen.Decomposition, error)) (*eigen.Decomposition, error) {
	if s := c.state.Load(); s.Status == Clean {
		cacheRequests.WithLabelValues(c.name, "hit").Inc()
		return s.Decomposition, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// another goroutine might have finished while we were waiting
	if s := c.state.Load(); s.Status == Clean {
		cacheRequests.WithLabelValues(c.name, "hit").Inc()
		return s.Decomposition, nil
	}
	cacheRequests.WithLabelValues(c.name, "miss").Inc()

	start := time.Now()
	d, err := compute()
	if err != nil {
		decompositions.WithLabelValues(c.name, "error").Inc()
		return nil, err
	}
	decompositionSeconds.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	decompositions.WithLabelValues(c.name, "ok").Inc()
	c.state.Store(&CacheState{Status: Clean, Decomposition: d})
	return d, nil
}

// current returns a copy of the current state.
func (c *cache) current() CacheState {
	return *c.state.Load()
}

func (c *cache) store() Snapshot {
	return Snapshot{state: c.state.Load()}
}

func (c *cache) restore(s Snapshot) {
	if s.state == nil {
		s.state = dirtyState
	}
	c.mu.Lock()
	c.state.Store(s.state)
	c.mu.Unlock()
	restores.WithLabelValues(c.name).Inc()
}
