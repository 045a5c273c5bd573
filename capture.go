// capture.go: the capture core: given a function or class definition whose
// annotations may have been stored as unevaluated text, reconstruct the
// name→value environment the definition must be compiled against.
//
// The pipeline, leaves first:
//
//	NonlocalVars        read a function's already-bound closure cells
//	FunctionCapture     module globals + nonlocals (nonlocals win)
//	ClassCapture        union of FunctionCapture over function members
//	HasDeferredAnnotations
//	                    gate: does any annotation hold text instead of a value
//	AnnotationNames     static scan of the definition's source for identifiers
//	                    appearing inside annotations
//	EnclosingScopes     named scopes from the qualified name
//	ResolveDeferred     scope-gated lookup of missing names in a stack snapshot
//	CaptureEnv          the boundary: overrides > aggregated > frame-resolved,
//	                    first writer wins
//
// The detector gates the expensive half: when no annotation is deferred, the
// scanner, scope-path extraction, and frame walk are skipped entirely and the
// environment is exactly the aggregator's output (plus overrides).
//
// Resolution is strictly additive and best-effort: missing or unparseable
// source degrades to "no extra names", an unresolved name is left for the
// downstream compiler to diagnose, and only genuine misuse of direct inputs
// (wrong value kind, inconsistent free-variable metadata) is an error.
//
// Dependencies: value.go, env.go, definition.go, frames.go, parser.go.
package kernelscript

import (
	"errors"
	"fmt"
	"strings"
)

// NonlocalVars reads the free variables a function has already bound through
// its closure cells, as a name→value map.
//
// A cell that exists but holds no value yet is not an error: the name is
// silently omitted ("not yet resolvable this way"). Any other cell failure
// propagates. Inputs that are not plain functions are rejected with a
// *KindError.
func NonlocalVars(fv Value) (map[string]Value, error) {
	if fv.Tag != VTFun {
		return nil, &KindError{Op: "nonlocals", Want: "function", Got: fv.Tag}
	}
	fn := fv.Data.(*Function)
	if len(fn.FreeVars) != len(fn.Cells) {
		return nil, fmt.Errorf("nonlocals: function %q records %d free variables but %d cells",
			fn.Name, len(fn.FreeVars), len(fn.Cells))
	}
	out := make(map[string]Value, len(fn.FreeVars))
	for i, name := range fn.FreeVars {
		cell := fn.Cells[i]
		if cell == nil {
			continue
		}
		v, err := cell.Contents()
		if err != nil {
			if errors.Is(err, ErrEmptyCell) {
				continue
			}
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// FunctionCapture aggregates the bindings a function can already see: its
// defining module's globals, overwritten by its closure bindings (closure
// bindings are lexically closer, so they win on collision).
func FunctionCapture(fn *Function) (map[string]Value, error) {
	captured := fn.Globals.Flatten()
	nonlocals, err := NonlocalVars(FunVal(fn))
	if err != nil {
		return nil, err
	}
	for k, v := range nonlocals {
		captured[k] = v
	}
	return captured, nil
}

// ClassCapture aggregates captures across a class: the union of
// FunctionCapture over every function-valued member, visited in member
// insertion order. When two members bind the same name to different values,
// which one ends up in the union is unspecified; callers must not rely on it.
func ClassCapture(cls *Class) (map[string]Value, error) {
	result := map[string]Value{}
	if cls.Members == nil {
		return result, nil
	}
	for _, key := range cls.Members.Keys {
		member, _ := cls.Members.Get(key)
		if member.Tag != VTFun {
			continue
		}
		sub, err := FunctionCapture(member.Data.(*Function))
		if err != nil {
			return nil, err
		}
		for k, v := range sub {
			result[k] = v
		}
	}
	return result, nil
}

// HasDeferredAnnotations reports whether a definition carries at least one
// annotation stored as unevaluated text: for a function, among its own
// annotations; for a class, among the annotations of any function-valued
// member. A pure predicate; it never evaluates anything. Non-definition
// values report false.
func HasDeferredAnnotations(def Value) bool {
	switch def.Tag {
	case VTFun:
		return funcHasDeferred(def.Data.(*Function))
	case VTClass:
		cls := def.Data.(*Class)
		if cls.Members == nil {
			return false
		}
		for _, key := range cls.Members.Keys {
			member, _ := cls.Members.Get(key)
			if member.Tag == VTFun && funcHasDeferred(member.Data.(*Function)) {
				return true
			}
		}
	}
	return false
}

func funcHasDeferred(fn *Function) bool {
	for _, a := range fn.Annotations {
		if a.IsDeferred() {
			return true
		}
	}
	return false
}

// AnnotationNames statically extracts the set of identifier names referenced
// inside parameter and return annotations of a definition's source: the
// definition's own signature plus any definition nested anywhere in it.
// Attribute accesses contribute only their base identifier.
//
// Missing or unparseable source yields the empty set: annotation-driven
// resolution is a best-effort convenience, so this is a normal degraded
// case, never an error.
func AnnotationNames(def Value) map[string]bool {
	names := map[string]bool{}
	src := definitionSrc(def)
	if src == nil || src.Text == "" {
		return names
	}
	tree, err := ParseSource(Dedent(src.Text))
	if err != nil {
		return names
	}
	collectAnnotationIDs(tree, names)
	return names
}

func definitionSrc(def Value) *SourceRef {
	switch def.Tag {
	case VTFun:
		return def.Data.(*Function).Src
	case VTClass:
		return def.Data.(*Class).Src
	}
	return nil
}

// collectAnnotationIDs walks the tree; at every def node it gathers the
// identifiers of that signature's parameter and return annotations, then
// keeps descending so nested definitions are covered too.
func collectAnnotationIDs(n S, names map[string]bool) {
	if nodeTag(n) == "def" && len(n) >= 5 {
		if params, ok := n[3].(S); ok {
			for i := 1; i < len(params); i++ {
				p, ok := params[i].(S)
				if ok && len(p) >= 3 {
					if annot, ok := p[2].(S); ok {
						collectIdents(annot, names)
					}
				}
			}
		}
		if ret, ok := n[4].(S); ok {
			collectIdents(ret, names)
		}
	}
	for i := 1; i < len(n); i++ {
		if sub, ok := n[i].(S); ok {
			collectAnnotationIDs(sub, names)
		}
	}
}

// collectIdents records every ("id", name) in an expression tree. Attribute
// member names live in ("str", ...) payloads, so only base identifiers land
// here.
func collectIdents(n S, names map[string]bool) {
	if nodeTag(n) == "id" {
		if name, ok := n[1].(string); ok {
			names[name] = true
		}
		return
	}
	for i := 1; i < len(n); i++ {
		if sub, ok := n[i].(S); ok {
			collectIdents(sub, names)
		}
	}
}

// EnclosingScopes derives the named scopes that lexically enclose a
// definition from its qualified name, ordered outermost first. The final
// segment (the definition's own name) and LocalsMarker segments are
// dropped: "outer.<locals>.inner.<locals>.f" yields ["outer", "inner"].
// An empty qualified name (definition with unknown nesting) yields nil.
func EnclosingScopes(qualName string) []string {
	if qualName == "" {
		return nil
	}
	parts := strings.Split(qualName, ".")
	parts = parts[:len(parts)-1]
	var out []string
	for _, p := range parts {
		if p == LocalsMarker {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ResolveDeferred binds still-missing annotation identifiers out of a scope
// snapshot, mutating env in place.
//
// For each name in names not already present in env, frames are scanned
// starting just past stack[0] (the capture call site itself). Only frames
// whose scope name is in scopes are considered; the first such frame whose
// locals contain the name wins, and scanning for that name stops. A name no
// enclosing frame can supply is left unresolved; later stages may report
// it, or it may be a legitimate external reference.
//
// The scope gate is the safety property: a name is only ever pulled from a
// frame whose code identity textually encloses the definition, and only if
// the static scan declared it eligible.
func ResolveDeferred(env map[string]Value, names map[string]bool, scopes []string, stack Snapshot) {
	if len(stack) == 0 || len(names) == 0 {
		return
	}
	outer := stack[1:]
	scopeSet := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = true
	}
	for name := range names {
		if _, ok := env[name]; ok {
			continue
		}
		for _, frame := range outer {
			if !scopeSet[frame.Scope] {
				continue
			}
			if v, ok := frame.Locals[name]; ok {
				env[name] = v
				break
			}
		}
	}
}

// CaptureEnv is the boundary toward the consuming compiler frontend: it
// builds the full capture environment for a definition.
//
// Precedence is first-writer-wins: caller-supplied overrides are bound
// first, then the aggregator's output for names still free, then (only if
// the definition carries deferred annotations) frame-resolved bindings for
// eligible names still free. When nothing is deferred the stack is never
// walked and the result is exactly overrides + aggregate.
//
// The returned map is freshly allocated and owned by the caller.
func CaptureEnv(def Value, overrides map[string]Value, stack Snapshot) (map[string]Value, error) {
	aggregated, qual, err := aggregate(def)
	if err != nil {
		return nil, err
	}
	env := make(map[string]Value, len(aggregated)+len(overrides))
	for k, v := range overrides {
		env[k] = v
	}
	for k, v := range aggregated {
		if _, ok := env[k]; !ok {
			env[k] = v
		}
	}
	if HasDeferredAnnotations(def) {
		ResolveDeferred(env, AnnotationNames(def), EnclosingScopes(qual), stack)
	}
	return env, nil
}

func aggregate(def Value) (map[string]Value, string, error) {
	switch def.Tag {
	case VTFun:
		fn := def.Data.(*Function)
		m, err := FunctionCapture(fn)
		return m, fn.QualName, err
	case VTClass:
		cls := def.Data.(*Class)
		m, err := ClassCapture(cls)
		return m, cls.QualName, err
	}
	return nil, "", &KindError{Op: "capture", Want: "function or class", Got: def.Tag}
}
