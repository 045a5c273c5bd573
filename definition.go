// definition.go: the definition model: functions and classes as an embedding
// runtime hands them to the capture core.
//
// A Definition is owned by the caller; this package only reads it. The
// annotation duality (already-evaluated value vs. unevaluated source text) is
// modeled as the two-case Annotation variant, so "does this definition carry
// deferred annotations" is a plain variant check (capture.go).
//
// Dependencies: value.go (Value, MapObject), env.go (Env, Cell),
// source.go (SourceRef).
package kernelscript

// LocalsMarker is the synthetic qualified-name segment a function body
// introduces for the definitions nested in it ("outer.<locals>.inner").
// Marker segments are structural noise for scope lookup and are stripped by
// EnclosingScopes (capture.go).
const LocalsMarker = "<locals>"

// RetKey is the annotation-map key reserved for the return annotation.
const RetKey = "return"

// Annotation is one parameter or return annotation as captured at definition
// time: either evaluated to a live value, or deferred as unevaluated text.
type Annotation struct {
	deferred bool
	text     string
	value    Value
}

// Evaluated builds an annotation holding an already-evaluated value.
func Evaluated(v Value) Annotation { return Annotation{value: v} }

// Deferred builds an annotation holding unevaluated source text.
func Deferred(text string) Annotation { return Annotation{deferred: true, text: text} }

// IsDeferred reports whether the annotation is stored as unevaluated text.
func (a Annotation) IsDeferred() bool { return a.deferred }

// Value returns the evaluated value; ok is false for a deferred annotation.
func (a Annotation) Value() (Value, bool) {
	if a.deferred {
		return Null, false
	}
	return a.value, true
}

// Text returns the deferred source text; ok is false for an evaluated
// annotation.
func (a Annotation) Text() (string, bool) {
	if !a.deferred {
		return "", false
	}
	return a.text, true
}

// Function is a script function as materialized by an embedding runtime.
//
// Fields:
//   - Name, QualName: bare name and dot-separated nesting path (QualName
//     uses LocalsMarker segments for function-body nesting; "" when unknown).
//   - Params: declared parameter names, in order.
//   - Annotations: parameter annotations keyed by parameter name, plus the
//     return annotation under RetKey. Unannotated slots are simply absent.
//   - Globals: the defining module scope (an Env chain; may be nil).
//   - FreeVars, Cells: the compiled representation's record of closure
//     captures. Parallel slices: Cells[i] is the storage slot for
//     FreeVars[i].
//   - Src: where the definition came from; nil when the function was
//     synthesized without retrievable source.
type Function struct {
	Name        string
	QualName    string
	Params      []string
	Annotations map[string]Annotation
	Globals     *Env
	FreeVars    []string
	Cells       []*Cell
	Src         *SourceRef
}

// Class is a script class value: an insertion-ordered member table plus
// naming and source metadata. Function-valued members (VTFun) are what the
// class capture aggregator walks.
type Class struct {
	Name     string
	QualName string
	Members  *MapObject
	Src      *SourceRef
}

// NestedQual derives the qualified name of a definition named name appearing
// directly in the body of the function whose qualified name is fnQual.
func NestedQual(fnQual, name string) string {
	if fnQual == "" {
		return name
	}
	return fnQual + "." + LocalsMarker + "." + name
}

// MemberQual derives the qualified name of a member named name defined
// directly in the body of the class whose qualified name is clsQual.
func MemberQual(clsQual, name string) string {
	if clsQual == "" {
		return name
	}
	return clsQual + "." + name
}
