package pgward

import (
	"fmt"
	"strings"

	"github.com/jfelczak/pgward/internal/bind"
)

// ParamType is the declared type of an operation parameter. It fixes how a
// caller-supplied value is coerced before binding.
type ParamType string

const (
	ParamText         ParamType = "text"
	ParamInteger      ParamType = "integer"
	ParamDouble       ParamType = "double"
	ParamBoolean      ParamType = "boolean"
	ParamTimestamp    ParamType = "timestamp"
	ParamTextArray    ParamType = "text_array"
	ParamIntegerArray ParamType = "integer_array"
)

// ParamSpec declares one named value parameter of an operation. Position
// in the Params slice is wire position: Params[0] binds $1.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
}

// IdentSpec declares one {{slot}} identifier of an operation. Identifiers
// are always required; a template with an unfilled slot is not valid SQL.
type IdentSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Operation is one named entry in the gateway's catalog: a SQL template,
// its declared class, and its parameter schema. Operations are plain data.
// Adding one is a registry change, not an engine change; the execution
// pipeline treats every operation identically.
type Operation struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Class       Class       `json:"class"`
	SQL         string      `json:"sql"`
	Params      []ParamSpec `json:"params,omitempty"`
	Identifiers []IdentSpec `json:"identifiers,omitempty"`
}

// Registry is the immutable set of operations a gateway serves. It is
// built once at startup and only read afterwards, so lookups need no
// locking.
type Registry struct {
	ops   map[string]Operation
	order []string
}

// NewRegistry validates ops and builds the lookup. It rejects duplicate
// operation names, unknown classes, unknown parameter types, empty SQL,
// and names shared between a parameter and an identifier, which would make
// argument routing ambiguous.
func NewRegistry(ops []Operation) (*Registry, error) {
	r := &Registry{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if op.Name == "" {
			return nil, fmt.Errorf("operation with empty name")
		}
		if _, dup := r.ops[op.Name]; dup {
			return nil, fmt.Errorf("duplicate operation %q", op.Name)
		}
		if !op.Class.Valid() {
			return nil, fmt.Errorf("operation %q: unknown class %q", op.Name, op.Class)
		}
		if strings.TrimSpace(op.SQL) == "" {
			return nil, fmt.Errorf("operation %q: empty SQL", op.Name)
		}
		names := make(map[string]bool, len(op.Params)+len(op.Identifiers))
		for _, p := range op.Params {
			if p.Name == "" {
				return nil, fmt.Errorf("operation %q: parameter with empty name", op.Name)
			}
			if names[p.Name] {
				return nil, fmt.Errorf("operation %q: duplicate parameter name %q", op.Name, p.Name)
			}
			names[p.Name] = true
			if !bind.ValidType(bind.Type(p.Type)) {
				return nil, fmt.Errorf("operation %q: parameter %q has unknown type %q", op.Name, p.Name, p.Type)
			}
		}
		for _, id := range op.Identifiers {
			if id.Name == "" {
				return nil, fmt.Errorf("operation %q: identifier with empty name", op.Name)
			}
			if names[id.Name] {
				return nil, fmt.Errorf("operation %q: name %q used by both a parameter and an identifier", op.Name, id.Name)
			}
			names[id.Name] = true
		}
		r.ops[op.Name] = op
		r.order = append(r.order, op.Name)
	}
	return r, nil
}

// Get returns the operation registered under name.
func (r *Registry) Get(name string) (Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Operations returns all operations in registration order.
func (r *Registry) Operations() []Operation {
	out := make([]Operation, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.ops[name])
	}
	return out
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	return len(r.order)
}
