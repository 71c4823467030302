package phenotype

import (
	"context"
	"sync"

	"fieldtrial/domain/core"
)

// Loader fetches a measured variable from its backing store
type Loader interface {
	GetByID(ctx context.Context, id core.ID) (*MeasuredVariable, error)
}

// Cache shares measured variables between the observations of a study tree.
// Entries are reference counted and evicted when the last Handle is released.
type Cache struct {
	mu      sync.Mutex
	loader  Loader
	entries map[core.ID]*cacheEntry
}

type cacheEntry struct {
	variable *MeasuredVariable
	refs     int
}

// NewCache creates an empty cache in front of loader
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[core.ID]*cacheEntry),
	}
}

// Acquire returns a handle to the variable, loading it on a miss
func (c *Cache) Acquire(ctx context.Context, id core.ID) (*Handle, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		e.refs++
		c.mu.Unlock()
		return &Handle{cache: c, id: id, variable: e.variable}, nil
	}
	c.mu.Unlock()

	mv, err := c.loader.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &cacheEntry{variable: mv}
		c.entries[id] = e
	}
	e.refs++
	return &Handle{cache: c, id: id, variable: e.variable}, nil
}

// Refs returns the number of live handles for id
func (c *Cache) Refs(id core.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of cached variables
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) release(id core.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(c.entries, id)
	}
}

// Handle is a counted reference to a cached variable
type Handle struct {
	cache    *Cache
	id       core.ID
	variable *MeasuredVariable
	once     sync.Once
}

// Variable returns the shared variable; callers must not modify it
func (h *Handle) Variable() *MeasuredVariable {
	return h.variable
}

// Release drops the reference. Repeated calls are no-ops.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.cache.release(h.id)
	})
}
