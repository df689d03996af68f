package login

import "sort"

// Metadata describes a registered method. API marks methods a caller may
// select explicitly by name.
type Metadata struct {
	Name string
	API  bool
}

type registryEntry struct {
	meta   Metadata
	method Method
}

// Registry is the table of login methods built at startup.
type Registry struct {
	entries map[string]registryEntry
}

func (r *Registry) Register(meta Metadata, method Method) error {
	if _, ok := r.entries[meta.Name]; ok {
		return ErrMethodRegistered
	}
	r.entries[meta.Name] = registryEntry{meta: meta, method: method}
	return nil
}

func (r *Registry) Get(name string) (Method, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, ErrMethodNotFound
	}
	return entry.method, nil
}

// IsAllowed reports whether name may be requested explicitly by a caller.
func (r *Registry) IsAllowed(name string) bool {
	entry, ok := r.entries[name]
	return ok && entry.meta.API
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
	}
}
