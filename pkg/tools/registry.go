package tools

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/chat"
)

// Registry holds available tools. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Definition),
	}
}

func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if def.Run == nil {
		return errors.Errorf("tool %s has no run function", def.Name)
	}

	r.tools[def.Name] = def
	return nil
}

func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.tools[name]
	if !exists {
		return nil, errors.Errorf("tool not found: %s", name)
	}

	defCopy := def
	return &defCopy, nil
}

func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		ret = append(ret, def)
	}
	return ret
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return errors.Errorf("tool not found: %s", name)
	}

	delete(r.tools, name)
	return nil
}

func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := NewRegistry()
	for name, def := range r.tools {
		clone.tools[name] = def
	}
	return clone
}

// Merge returns a new registry with other's tools layered over r's.
func (r *Registry) Merge(other *Registry) *Registry {
	merged := r.Clone()

	other.mu.RLock()
	defer other.mu.RUnlock()
	for name, def := range other.tools {
		merged.tools[name] = def
	}
	return merged
}

// Specs renders the enabled tools for a backend request. With enabled nil,
// every registered tool is included.
func (r *Registry) Specs(enabled []string) ([]chat.ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	include := func(string) bool { return true }
	if enabled != nil {
		set := map[string]struct{}{}
		for _, name := range enabled {
			set[name] = struct{}{}
		}
		include = func(name string) bool {
			_, ok := set[name]
			return ok
		}
	}

	var ret []chat.ToolSpec
	for name, def := range r.tools {
		if !include(name) {
			continue
		}
		spec, err := def.Spec()
		if err != nil {
			return nil, err
		}
		ret = append(ret, spec)
	}
	return ret, nil
}
