// Package registry implements name → capability resolution for drivers and
// executors.
//
// A registry is constructed from a name → registration map plus a default
// name. Resolution failures carry the requested name and the sorted catalog
// so CLI surfaces can print actionable errors.
package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Registry kinds.
const (
	KindDriver   = "driver"
	KindExecutor = "executor"
)

// NotFoundError indicates a name that resolves to no registration.
type NotFoundError struct {
	Kind      string
	Requested string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s %q (available: %s)",
		e.Kind, e.Requested, strings.Join(e.Available, ", "))
}

// RuntimeUnavailableError indicates a registration that is declared but
// carries no runtime: configured, but unexecutable.
type RuntimeUnavailableError struct {
	Kind string
	Name string
}

func (e *RuntimeUnavailableError) Error() string {
	return fmt.Sprintf("%s %q has no runtime", e.Kind, e.Name)
}

// Registration pairs a capability's metadata with its runtime.
// T is an interface type; a nil Runtime means declarative-only.
type Registration[T any] struct {
	// Description is a short human-readable summary for catalogs.
	Description string
	// Runtime is the executable capability, or nil.
	Runtime T
}

// Resolved is a successful resolution.
type Resolved[T any] struct {
	Name         string
	Registration Registration[T]
	Runtime      T
}

// Registry resolves names to registrations of one kind.
type Registry[T any] struct {
	kind        string
	defaultName string
	entries     map[string]Registration[T]
}

// New creates a registry from a registration map and a default name.
func New[T any](kind, defaultName string, entries map[string]Registration[T]) *Registry[T] {
	return &Registry[T]{kind: kind, defaultName: defaultName, entries: entries}
}

// DefaultName returns the registry's default name.
func (r *Registry[T]) DefaultName() string {
	return r.defaultName
}

// Names returns the sorted catalog of registered names.
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up name, falling back to the default when name is empty.
// Fails with NotFoundError for unknown names and RuntimeUnavailableError for
// registrations without a runtime.
func (r *Registry[T]) Resolve(name string) (*Resolved[T], error) {
	if name == "" {
		name = r.defaultName
	}
	reg, ok := r.entries[name]
	if !ok {
		return nil, &NotFoundError{Kind: r.kind, Requested: name, Available: r.Names()}
	}
	if any(reg.Runtime) == nil {
		return nil, &RuntimeUnavailableError{Kind: r.kind, Name: name}
	}
	return &Resolved[T]{Name: name, Registration: reg, Runtime: reg.Runtime}, nil
}
