package store

import "fmt"

// Registry holds the table definitions a Store serves.
type Registry struct {
	tables []Schema
	byName map[string]Schema
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tables: []Schema{},
		byName: make(map[string]Schema),
	}
}

// Register adds a table definition. Table names must be unique.
func (r *Registry) Register(s Schema) error {
	if _, ok := r.byName[s.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTable, s.Name())
	}
	r.tables = append(r.tables, s)
	r.byName[s.Name()] = s
	return nil
}

// MustRegister is like Register but panics on error. It returns r for
// chaining.
func (r *Registry) MustRegister(schemas ...Schema) *Registry {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Table returns the definition registered under name.
func (r *Registry) Table(name string) (Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Tables returns all definitions in registration order.
func (r *Registry) Tables() []Schema {
	return r.tables
}
