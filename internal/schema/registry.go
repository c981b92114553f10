// Package schema is the single source of truth for which Omega tables the
// observer may read and which of their columns are safe to return.
//
// A Registry is built once at process start and never mutated. Every other
// safety property of the gateway (no raw-text leaks, no cross-user reads)
// reduces to trusting this table, so it is kept static and auditable.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrUnknownTable is returned when a table name is not registered.
var ErrUnknownTable = errors.New("unknown table")

// TableDescriptor describes one queryable table or view.
type TableDescriptor struct {
	Name        Table    `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	AllColumns  []string `json:"all_columns" yaml:"all_columns"`
	SafeColumns []string `json:"safe_columns" yaml:"safe_columns"`
	// Global tables hold system-wide rows and are never filtered by user.
	Global bool `json:"global" yaml:"global"`
}

// Validate checks the descriptor's internal consistency: a name, at
// least one safe column, no duplicates, and SafeColumns ⊆ AllColumns.
func (d TableDescriptor) Validate() error {
	if d.Name == "" {
		return errors.New("descriptor has empty name")
	}
	if len(d.SafeColumns) == 0 {
		return fmt.Errorf("table %s: no safe columns", d.Name)
	}
	all := make(map[string]bool, len(d.AllColumns))
	for _, c := range d.AllColumns {
		if all[c] {
			return fmt.Errorf("table %s: duplicate column %q", d.Name, c)
		}
		all[c] = true
	}
	seen := make(map[string]bool, len(d.SafeColumns))
	for _, c := range d.SafeColumns {
		if !all[c] {
			return fmt.Errorf("table %s: safe column %q is not in all columns", d.Name, c)
		}
		if seen[c] {
			return fmt.Errorf("table %s: duplicate safe column %q", d.Name, c)
		}
		seen[c] = true
	}
	return nil
}

// HasSafeColumn reports whether col is in the safe set. Exact match.
func (d TableDescriptor) HasSafeColumn(col string) bool {
	return slices.Contains(d.SafeColumns, col)
}

// clone returns a deep copy so callers cannot mutate registry state.
func (d TableDescriptor) clone() TableDescriptor {
	d.AllColumns = slices.Clone(d.AllColumns)
	d.SafeColumns = slices.Clone(d.SafeColumns)
	return d
}

// Registry maps table names to descriptors.
type Registry struct {
	tables map[Table]TableDescriptor
}

// NewRegistry builds a registry from descriptors. It fails if any
// descriptor is invalid or registered twice.
func NewRegistry(descriptors ...TableDescriptor) (*Registry, error) {
	r := &Registry{tables: make(map[Table]TableDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		if _, dup := r.tables[d.Name]; dup {
			return nil, fmt.Errorf("schema: table %s registered twice", d.Name)
		}
		r.tables[d.Name] = d.clone()
	}
	return r, nil
}

// Default returns the registry of Omega tables.
func Default() *Registry {
	r, err := NewRegistry(omegaDescriptors()...)
	if err != nil {
		// The Omega table list is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// Descriptor returns the descriptor for name, or ErrUnknownTable.
func (r *Registry) Descriptor(name string) (TableDescriptor, error) {
	t, ok := ParseTable(name)
	if !ok {
		return TableDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	d, ok := r.tables[t]
	if !ok {
		return TableDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return d.clone(), nil
}

// SafeColumns returns the safe column list for name.
func (r *Registry) SafeColumns(name string) ([]string, error) {
	d, err := r.Descriptor(name)
	if err != nil {
		return nil, err
	}
	return d.SafeColumns, nil
}

// IsGlobal reports whether name is a registered global table. Unknown
// names are never global.
func (r *Registry) IsGlobal(name string) bool {
	t, ok := ParseTable(name)
	if !ok {
		return false
	}
	d, ok := r.tables[t]
	if !ok {
		return false
	}
	return d.Global
}

// Tables returns every descriptor sorted by name.
func (r *Registry) Tables() []TableDescriptor {
	out := make([]TableDescriptor, 0, len(r.tables))
	for _, d := range r.tables {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllowedTables returns the sorted names of every registered table.
func (r *Registry) AllowedTables() []string {
	names := make([]string, 0, len(r.tables))
	for t := range r.tables {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// GlobalTables returns the sorted names of registered global tables.
func (r *Registry) GlobalTables() []string {
	var names []string
	for t, d := range r.tables {
		if d.Global {
			names = append(names, string(t))
		}
	}
	sort.Strings(names)
	return names
}
