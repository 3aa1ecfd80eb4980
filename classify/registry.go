package classify

import (
	"sort"
	"strings"
	"sync"
)

// Registry is a thread-safe name → ConditionSet map of named profiles.
type Registry struct {
	mu sync.RWMutex
	m  map[string]ConditionSet
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]ConditionSet)}
}

// Register associates name with set. Empty names are ignored.
func (r *Registry) Register(name string, set ConditionSet) {
	if r == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	r.mu.Lock()
	if r.m == nil {
		r.m = make(map[string]ConditionSet)
	}
	r.m[name] = set
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (ConditionSet, bool) {
	if r == nil {
		return ConditionSet{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ConditionSet{}, false
	}

	r.mu.RLock()
	set, ok := r.m[name]
	r.mu.RUnlock()
	return set, ok
}

// Names returns the registered profile names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
