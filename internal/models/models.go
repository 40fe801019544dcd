// Package models holds the static table of upstream model identifiers and
// the capability flags that gate what each model is allowed to do.
//
// The table is read-only after construction. Handlers and the dispatcher ask
// it two questions: "does this model exist and may it be used?" and "which
// optional features (streaming thinking, tools) can be switched on for it?"
package models

import "fmt"

// Definition describes one upstream model and what it supports.
type Definition struct {
	ID                        string `json:"id" koanf:"id"`
	Label                     string `json:"label" koanf:"label"`
	Helper                    string `json:"helper,omitempty" koanf:"helper"`
	Supported                 bool   `json:"supported" koanf:"supported"`
	SupportsStreamingThinking bool   `json:"supportsThinking" koanf:"supports_thinking"`
	SupportsTools             bool   `json:"supportsTools" koanf:"supports_tools"`
	UnsupportedReason         string `json:"reason,omitempty" koanf:"reason"`
}

// Registry is an immutable lookup table of model definitions keyed by ID.
// The zero value is an empty registry. It is safe for concurrent use
// because nothing mutates it after New returns.
type Registry struct {
	order []string
	byID  map[string]Definition
}

// New builds a Registry from defs. IDs must be unique and non-empty.
func New(defs []Definition) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(defs)),
		byID:  make(map[string]Definition, len(defs)),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("model definition with empty id")
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", d.ID)
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Default returns a Registry over the built-in model table.
func Default() *Registry {
	r, err := New(BuiltinDefinitions)
	if err != nil {
		// The built-in table is a literal in this package; a failure here
		// is a programming error.
		panic(err)
	}
	return r
}

// Lookup returns the definition for id, if present.
func (r *Registry) Lookup(id string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	d, ok := r.byID[id]
	return d, ok
}

// IsSupported reports whether id is present and not explicitly disabled.
func (r *Registry) IsSupported(id string) bool {
	d, ok := r.Lookup(id)
	return ok && d.Supported
}

// All returns every definition in table order.
func (r *Registry) All() []Definition {
	if r == nil {
		return nil
	}
	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Capabilities is the set of optional upstream features enabled for a call.
type Capabilities struct {
	Thinking bool // extended ("high") reasoning while streaming
	Search   bool // search-augmentation tool
}

// Gate returns the features that may be switched on for id. Unknown models
// get nothing.
func (r *Registry) Gate(id string) Capabilities {
	d, ok := r.Lookup(id)
	if !ok || !d.Supported {
		return Capabilities{}
	}
	return Capabilities{
		Thinking: d.SupportsStreamingThinking,
		Search:   d.SupportsTools,
	}
}
