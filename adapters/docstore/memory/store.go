// Package memory is an in-process DocumentStore. Documents are kept as encoded JSON so
// callers never share maps with the store.
package memory

import (
	"context"
	"sort"
	"sync"

	"fieldtrial/adapters/docstore"
	"fieldtrial/domain/core"
	"fieldtrial/ports"
)

type collection struct {
	order []core.ID
	docs  map[core.ID][]byte
}

// Store keeps collections in memory
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var _ ports.DocumentStore = (*Store)(nil)

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[core.ID][]byte)}
		s.collections[name] = c
	}
	return c
}

func (s *Store) matching(name string, filter core.Filter) [][]byte {
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	var out [][]byte
	for _, id := range c.order {
		if p := c.docs[id]; docstore.Matches(p, filter) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) FindDistinct(ctx context.Context, coll, fieldPath string, filter core.Filter) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return docstore.Distinct(s.matching(coll, filter), fieldPath), nil
}

func (s *Store) FindByID(ctx context.Context, coll string, id core.ID) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[coll]
	if !ok {
		return nil, core.NewNotFoundError(coll, id)
	}
	p, ok := c.docs[id]
	if !ok {
		return nil, core.NewNotFoundError(coll, id)
	}
	return docstore.Decode(p)
}

func (s *Store) Find(ctx context.Context, coll string, filter core.Filter) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	payloads := s.matching(coll, filter)
	out := make([]core.Document, 0, len(payloads))
	for _, p := range payloads {
		doc, err := docstore.Decode(p)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, coll string, doc core.Document, upsert core.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(coll)

	if len(upsert) > 0 {
		for _, id := range c.order {
			if docstore.Matches(c.docs[id], upsert) {
				doc = docstore.WithID(doc, id)
				break
			}
		}
	}
	id, payload, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = payload
	return nil
}

// Collections lists collection names, for diagnostics
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Close() error { return nil }
