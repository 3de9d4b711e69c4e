package wildcard

import (
	"path"
	"sort"
	"strings"
	"sync"
)

// Store maps a wildcard name to its ordered candidate values. Unknown
// names yield an empty slice, never an error.
type Store interface {
	GetAllValues(name string) []string
}

// Lister is implemented by stores that can enumerate their names.
type Lister interface {
	Names() []string
}

// snapshot is an immutable name -> values table shared by the stores.
type snapshot map[string][]string

// values returns a copy of the values for name. A name containing glob
// metacharacters matches every stored name it covers, in sorted order.
func (s snapshot) values(name string) []string {
	name = BareName(strings.TrimSpace(name))
	if vals, ok := s[name]; ok {
		return append([]string(nil), vals...)
	}
	if !strings.ContainsAny(name, "*?[") {
		return []string{}
	}

	out := []string{}
	for _, n := range s.names() {
		if ok, err := path.Match(name, n); err == nil && ok {
			out = append(out, s[n]...)
		}
	}
	return out
}

func (s snapshot) names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MemoryStore is a Store backed by a map. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data snapshot
}

// NewMemoryStore copies data into a new store.
func NewMemoryStore(data map[string][]string) *MemoryStore {
	s := &MemoryStore{data: make(snapshot, len(data))}
	for name, vals := range data {
		s.data[name] = append([]string(nil), vals...)
	}
	return s
}

func (s *MemoryStore) GetAllValues(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.values(name)
}

// Names lists the stored names in sorted order.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.names()
}

// Set replaces the values of name.
func (s *MemoryStore) Set(name string, values ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]string(nil), values...)
}

// Chain serves each name from the first store that has values for it.
type Chain []Store

func (c Chain) GetAllValues(name string) []string {
	for _, s := range c {
		if vals := s.GetAllValues(name); len(vals) > 0 {
			return vals
		}
	}
	return []string{}
}

// Names merges the names of every store that is a Lister.
func (c Chain) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range c {
		lister, ok := s.(Lister)
		if !ok {
			continue
		}
		for _, n := range lister.Names() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}
