package store

import (
	"sort"
	"strings"

	"github.com/exocortex/exoql/pkg/rdf"
)

// Variable represents a SPARQL variable
type Variable struct {
	Name string
}

// NewVariable creates a new variable
func NewVariable(name string) *Variable {
	return &Variable{Name: name}
}

func (v *Variable) String() string {
	return "?" + v.Name
}

// Binding is a solution mapping. An unbound variable is absent from Vars.
type Binding struct {
	Vars map[string]rdf.Term
}

// NewBinding creates a new empty binding
func NewBinding() *Binding {
	return &Binding{Vars: make(map[string]rdf.Term)}
}

// Clone creates a copy of the binding
func (b *Binding) Clone() *Binding {
	nb := &Binding{Vars: make(map[string]rdf.Term, len(b.Vars))}
	for k, v := range b.Vars {
		nb.Vars[k] = v
	}
	return nb
}

// Get returns the term bound to name, or nil.
func (b *Binding) Get(name string) rdf.Term {
	if b == nil {
		return nil
	}
	return b.Vars[name]
}

// Set binds name to term.
func (b *Binding) Set(name string, term rdf.Term) {
	b.Vars[name] = term
}

// Compatible reports whether every variable bound in both bindings has the
// same term.
func (b *Binding) Compatible(other *Binding) bool {
	small, large := b, other
	if len(small.Vars) > len(large.Vars) {
		small, large = large, small
	}
	for k, v := range small.Vars {
		if ov, ok := large.Vars[k]; ok && !v.Equals(ov) {
			return false
		}
	}
	return true
}

// SharesVariable reports whether both bindings bind at least one common variable.
func (b *Binding) SharesVariable(other *Binding) bool {
	for k := range b.Vars {
		if _, ok := other.Vars[k]; ok {
			return true
		}
	}
	return false
}

// Merge returns a new binding holding the union of both. The caller checks
// compatibility first.
func (b *Binding) Merge(other *Binding) *Binding {
	merged := b.Clone()
	for k, v := range other.Vars {
		if _, ok := merged.Vars[k]; !ok {
			merged.Vars[k] = v
		}
	}
	return merged
}

// Key is a deterministic structural signature of the binding over vars, or
// over all bound variables when vars is empty.
func (b *Binding) Key(vars ...string) string {
	if len(vars) == 0 {
		vars = make([]string, 0, len(b.Vars))
		for k := range b.Vars {
			vars = append(vars, k)
		}
		sort.Strings(vars)
	}
	var sb strings.Builder
	for _, name := range vars {
		sb.WriteString(name)
		sb.WriteByte('=')
		if term, ok := b.Vars[name]; ok {
			sb.WriteString(term.Key())
		}
		sb.WriteByte(0)
	}
	return sb.String()
}

// BindingIterator iterates over variable bindings
type BindingIterator interface {
	Next() bool
	Binding() *Binding
	Close() error
}
