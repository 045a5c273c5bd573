// env.go: lexical environments and closure cells.
//
// Env models the module/global scope a function was defined in; Cell models a
// single closure storage slot shared between a defining scope and the
// functions that capture it. Both are read by the capture aggregator
// (capture.go) and are otherwise plain containers: the frontend never
// executes code against them.
package kernelscript

import (
	"errors"
	"fmt"
)

// Env is a lexical environment frame with a parent link. Lookups walk
// parent-ward. Use Define to bind in the current frame, Set to update an
// existing visible binding (nearest frame), and Get to retrieve.
type Env struct {
	parent *Env
	table  map[string]Value
}

// NewEnv creates a new lexical frame with the given parent (which may be nil).
func NewEnv(parent *Env) *Env { return &Env{parent: parent, table: make(map[string]Value)} }

// Define binds name to v in the current frame, shadowing any outer binding.
func (e *Env) Define(name string, v Value) {
	e.table[name] = v
}

// Set updates the nearest existing binding of name to v. If no binding exists
// in any visible frame, Set returns an error (it does not implicitly define).
func (e *Env) Set(name string, v Value) error {
	if _, ok := e.table[name]; ok {
		e.table[name] = v
		return nil
	}
	if e.parent != nil {
		return e.parent.Set(name, v)
	}
	return fmt.Errorf("undefined variable: %s", name)
}

// Get retrieves the nearest visible binding for name or returns an error.
func (e *Env) Get(name string) (Value, error) {
	if v, ok := e.table[name]; ok {
		return v, nil
	}
	if e.parent != nil {
		return e.parent.Get(name)
	}
	return Value{}, fmt.Errorf("undefined variable: %s", name)
}

// Flatten collapses the frame chain into a single map, outermost frame first,
// so that inner bindings shadow outer ones. The result is a fresh map; the
// chain itself is not modified.
func (e *Env) Flatten() map[string]Value {
	if e == nil {
		return map[string]Value{}
	}
	out := e.parent.Flatten()
	for k, v := range e.table {
		out[k] = v
	}
	return out
}

// ErrEmptyCell reports a closure cell that has not been filled yet. The
// closure extractor treats it as "not yet resolvable this way" and skips the
// variable rather than failing.
var ErrEmptyCell = errors.New("empty closure cell")

// Cell is one closure storage slot. A defining scope allocates a cell per
// captured variable; nested functions that capture the variable share the
// same cell. A cell may exist before its variable has been assigned (e.g. a
// recursive function captured by its own body), in which case it is unfilled.
type Cell struct {
	value  Value
	filled bool
}

// NewCell returns a filled cell holding v.
func NewCell(v Value) *Cell { return &Cell{value: v, filled: true} }

// EmptyCell returns an allocated but unfilled cell.
func EmptyCell() *Cell { return &Cell{} }

// Fill stores v into the cell, marking it filled.
func (c *Cell) Fill(v Value) {
	c.value = v
	c.filled = true
}

// Contents returns the held value, or ErrEmptyCell when the cell has not been
// filled yet.
func (c *Cell) Contents() (Value, error) {
	if !c.filled {
		return Value{}, ErrEmptyCell
	}
	return c.value, nil
}
