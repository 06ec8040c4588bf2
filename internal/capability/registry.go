package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// ErrNotFound is returned by [Registry.Resolve] for unknown names.
var ErrNotFound = errors.New("capability not found")

// DuplicateError reports a name or alias collision during registration.
type DuplicateError struct {
	// Name is the colliding name or alias.
	Name string
}

// Error implements error.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("capability: duplicate name or alias %q", e.Name)
}

// Registry holds all registered capabilities. Registration happens at startup;
// call [Registry.Freeze] before serving, after which Register fails and reads
// are lock-free.
type Registry struct {
	mu      sync.RWMutex
	frozen  bool
	ordered []*Descriptor
	index   map[string]*Descriptor
	tools   []llm.ToolDefinition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]*Descriptor)}
}

// Register adds desc to the registry. Any collision of the name or an alias
// with an already-registered name or alias returns a [*DuplicateError] and
// leaves the registry unchanged — a failed registration is atomic. Register
// fails after [Registry.Freeze].
func (r *Registry) Register(desc *Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("capability: registry is frozen, cannot register %q", desc.Name)
	}

	// Collect every key the descriptor would claim, then check all of them
	// before touching the index, so a collision changes nothing.
	keys := make([]string, 0, 1+len(desc.Aliases))
	keys = append(keys, normalizeKey(desc.Name))
	for _, a := range desc.Aliases {
		keys = append(keys, normalizeKey(a))
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			return &DuplicateError{Name: k}
		}
		seen[k] = struct{}{}
		if _, taken := r.index[k]; taken {
			return &DuplicateError{Name: k}
		}
	}

	for _, k := range keys {
		r.index[k] = desc
	}
	r.ordered = append(r.ordered, desc)
	r.tools = append(r.tools, toolDefinition(desc))
	return nil
}

// Freeze marks the end of the registration phase. Subsequent Register calls
// fail; Resolve, List, and Tools no longer take the write lock into account.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve returns the descriptor registered under nameOrAlias
// (case-insensitive). Returns an error wrapping [ErrNotFound] when nothing
// matches.
func (r *Registry) Resolve(nameOrAlias string) (*Descriptor, error) {
	r.mu.RLock()
	desc, ok := r.index[normalizeKey(nameOrAlias)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("capability: %q: %w", nameOrAlias, ErrNotFound)
	}
	return desc, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Tools returns the serialized tool-schema block offered to the model. The
// slice is rebuilt on every registration and shared afterwards; callers must
// not modify it.
func (r *Registry) Tools() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools
}

// toolDefinition renders a descriptor as an OpenAI-style function definition
// with a JSON-Schema parameters object.
func toolDefinition(desc *Descriptor) llm.ToolDefinition {
	properties := make(map[string]any, len(desc.Params))
	var required []string
	for _, p := range desc.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}

	return llm.ToolDefinition{
		Name:        desc.Name,
		Description: desc.Description,
		Parameters:  params,
	}
}
