// capture_test.go: behavioral suite for the capture core: aggregation,
// deferred-annotation gating, static annotation scanning, and scope-gated
// frame resolution.
package kernelscript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fixtures ----------------------------------------------------------------

func moduleEnv(bindings map[string]Value) *Env {
	env := NewEnv(nil)
	for k, v := range bindings {
		env.Define(k, v)
	}
	return env
}

// kernelSrc is the snippet of a definition nested two functions deep,
// extracted with its original indentation (Dedent has to handle it). M, N
// and dtype appear only inside annotations; the body never mentions them.
const kernelSrc = `        def kernel(a: T.Buffer((M, N), dtype), b: T.Buffer((M, N), dtype)) -> T.Buffer((M, N), dtype):
            scale = 2
            c = combine(a, b, scale)
            return c
`

// kernelFn builds the function a runtime executing
// outer(M) -> middle(N) -> def kernel would hand to the capture core.
func kernelFn(globals *Env) *Function {
	return &Function{
		Name:     "kernel",
		QualName: "outer.<locals>.middle.<locals>.kernel",
		Params:   []string{"a", "b"},
		Annotations: map[string]Annotation{
			"a":    Deferred(`T.Buffer((M, N), dtype)`),
			"b":    Deferred(`T.Buffer((M, N), dtype)`),
			RetKey: Deferred(`T.Buffer((M, N), dtype)`),
		},
		Globals: globals,
		Src:     &SourceRef{Line: 3, Text: kernelSrc},
	}
}

// nestedStack is the snapshot a runtime would take at the capture call site
// inside middle: frame 0 is the call site itself and is always skipped.
func nestedStack(m, n int64) Snapshot {
	return Snapshot{
		{Scope: "capture", Locals: map[string]Value{}},
		{Scope: "middle", Locals: map[string]Value{"N": Int(n)}},
		{Scope: "outer", Locals: map[string]Value{"M": Int(m)}},
		{Scope: "<module>", Locals: map[string]Value{}},
	}
}

// --- closure extractor -------------------------------------------------------

func Test_NonlocalVars_ReadsFilledCells(t *testing.T) {
	fn := &Function{
		Name:     "f",
		FreeVars: []string{"x", "y"},
		Cells:    []*Cell{NewCell(Int(1)), NewCell(Str("two"))},
	}
	got, err := NonlocalVars(FunVal(fn))
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"x": Int(1), "y": Str("two")}, got)
}

func Test_NonlocalVars_SkipsEmptyCells(t *testing.T) {
	// A recursive function captured by its own body: the cell exists before
	// the binding does. Must be omitted, not an error.
	fn := &Function{
		Name:     "f",
		FreeVars: []string{"ready", "pending"},
		Cells:    []*Cell{NewCell(Bool(true)), EmptyCell()},
	}
	got, err := NonlocalVars(FunVal(fn))
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"ready": Bool(true)}, got)
}

func Test_NonlocalVars_RejectsNonFunction(t *testing.T) {
	_, err := NonlocalVars(Str("not a function"))
	var kerr *KindError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "nonlocals", kerr.Op)
	assert.Contains(t, kerr.Error(), "expected function value, got str")
}

func Test_NonlocalVars_FreeVarCellMismatch(t *testing.T) {
	fn := &Function{Name: "f", FreeVars: []string{"x"}, Cells: nil}
	_, err := NonlocalVars(FunVal(fn))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 free variables but 0 cells")
}

// --- aggregator ---------------------------------------------------------------

func Test_FunctionCapture_ClosureShadowsGlobals(t *testing.T) {
	globals := moduleEnv(map[string]Value{"x": Int(1), "g": Str("global")})
	fn := &Function{
		Name:     "f",
		Globals:  globals,
		FreeVars: []string{"x"},
		Cells:    []*Cell{NewCell(Int(99))},
	}
	got, err := FunctionCapture(fn)
	require.NoError(t, err)
	assert.Equal(t, Int(99), got["x"], "closure binding is lexically closer")
	assert.Equal(t, Str("global"), got["g"])
}

func Test_FunctionCapture_FlattensEnvChain(t *testing.T) {
	outer := moduleEnv(map[string]Value{"a": Int(1), "b": Int(2)})
	inner := NewEnv(outer)
	inner.Define("b", Int(20))
	fn := &Function{Name: "f", Globals: inner}
	got, err := FunctionCapture(fn)
	require.NoError(t, err)
	assert.Equal(t, Int(1), got["a"])
	assert.Equal(t, Int(20), got["b"], "inner frame shadows outer")
}

func Test_ClassCapture_UnionsFunctionMembers(t *testing.T) {
	globals := moduleEnv(map[string]Value{"shared": Int(7)})
	members := NewMapObject()
	members.Set("doc", Str("not a function"))
	members.Set("m1", FunVal(&Function{
		Name: "m1", Globals: globals,
		FreeVars: []string{"u"}, Cells: []*Cell{NewCell(Int(1))},
	}))
	members.Set("m2", FunVal(&Function{
		Name: "m2", Globals: globals,
		FreeVars: []string{"v"}, Cells: []*Cell{NewCell(Int(2))},
	}))
	cls := &Class{Name: "C", QualName: "C", Members: members}

	got, err := ClassCapture(cls)
	require.NoError(t, err)
	assert.Equal(t, Int(7), got["shared"])
	assert.Equal(t, Int(1), got["u"])
	assert.Equal(t, Int(2), got["v"])
}

func Test_ClassCapture_EmptyClass(t *testing.T) {
	got, err := ClassCapture(&Class{Name: "C"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- deferred-annotation detector ---------------------------------------------

func Test_HasDeferredAnnotations(t *testing.T) {
	evaluated := &Function{Name: "f", Annotations: map[string]Annotation{
		"x": Evaluated(Int(1)), RetKey: Evaluated(Null),
	}}
	deferred := &Function{Name: "g", Annotations: map[string]Annotation{
		"x": Evaluated(Int(1)), RetKey: Deferred("Buffer(M)"),
	}}
	bare := &Function{Name: "h"}

	assert.False(t, HasDeferredAnnotations(FunVal(evaluated)))
	assert.True(t, HasDeferredAnnotations(FunVal(deferred)))
	assert.False(t, HasDeferredAnnotations(FunVal(bare)))
	assert.False(t, HasDeferredAnnotations(Int(3)), "non-definitions report false")

	members := NewMapObject()
	members.Set("f", FunVal(evaluated))
	assert.False(t, HasDeferredAnnotations(ClassVal(&Class{Members: members})))
	members.Set("g", FunVal(deferred))
	assert.True(t, HasDeferredAnnotations(ClassVal(&Class{Members: members})))
	assert.False(t, HasDeferredAnnotations(ClassVal(&Class{})))
}

// --- annotation identifier scanner ----------------------------------------------

func Test_AnnotationNames_CollectsSignatureIdentifiers(t *testing.T) {
	fn := kernelFn(nil)
	names := AnnotationNames(FunVal(fn))
	assert.Equal(t, map[string]bool{"T": true, "M": true, "N": true, "dtype": true}, names)
}

func Test_AnnotationNames_IgnoresBodyOnlyNames(t *testing.T) {
	// combine and scale appear only in the body; they must never be eligible
	// for frame resolution.
	names := AnnotationNames(FunVal(kernelFn(nil)))
	assert.NotContains(t, names, "combine")
	assert.NotContains(t, names, "scale")
	assert.NotContains(t, names, "c")
}

func Test_AnnotationNames_AttributeBaseOnly(t *testing.T) {
	fn := &Function{
		Name: "f",
		Src: &SourceRef{Text: "def f(x: ir.tensor.Buffer(shape)) -> ir.Void:\n    pass\n"},
	}
	names := AnnotationNames(FunVal(fn))
	assert.Equal(t, map[string]bool{"ir": true, "shape": true}, names,
		"attribute accesses contribute only their base identifier")
}

func Test_AnnotationNames_NestedDefinitions(t *testing.T) {
	src := `def outer(a: Outer) -> None:
    def inner(b: Inner(K)) -> Ret:
        return b
    return inner
`
	fn := &Function{Name: "outer", Src: &SourceRef{Text: src}}
	names := AnnotationNames(FunVal(fn))
	for _, want := range []string{"Outer", "Inner", "K", "Ret"} {
		assert.Contains(t, names, want)
	}
}

func Test_AnnotationNames_ClassSource(t *testing.T) {
	src := `class Pipeline:
    def stage(x: Buffer((M,), dtype)) -> Buffer((M,), dtype):
        return x
`
	cls := &Class{Name: "Pipeline", Src: &SourceRef{Text: src}}
	names := AnnotationNames(ClassVal(cls))
	assert.Equal(t, map[string]bool{"Buffer": true, "M": true, "dtype": true}, names)
}

func Test_AnnotationNames_MissingSource(t *testing.T) {
	fn := &Function{Name: "synth"} // no Src: dynamically synthesized
	assert.Empty(t, AnnotationNames(FunVal(fn)))
}

func Test_AnnotationNames_UnparseableSource(t *testing.T) {
	fn := &Function{Name: "f", Src: &SourceRef{Text: "def f(x: ((:\n"}}
	assert.Empty(t, AnnotationNames(FunVal(fn)), "degrades to empty, never errors")
}

// --- scope-path extractor -------------------------------------------------------

func Test_EnclosingScopes(t *testing.T) {
	cases := []struct {
		qual string
		want []string
	}{
		{"outer.<locals>.inner.<locals>.func", []string{"outer", "inner"}},
		{"outer.<locals>.middle.<locals>.kernel", []string{"outer", "middle"}},
		{"Cls.method", []string{"Cls"}},
		{"top", nil},
		{"", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EnclosingScopes(tc.qual), "qualname %q", tc.qual)
	}
}

// --- frame-stack resolver --------------------------------------------------------

func Test_ResolveDeferred_SkipsCallSiteFrame(t *testing.T) {
	env := map[string]Value{}
	stack := Snapshot{
		{Scope: "outer", Locals: map[string]Value{"M": Int(0)}}, // call site: never scanned
		{Scope: "outer", Locals: map[string]Value{"M": Int(16)}},
	}
	ResolveDeferred(env, map[string]bool{"M": true}, []string{"outer"}, stack)
	assert.Equal(t, Int(16), env["M"])
}

func Test_ResolveDeferred_ScopeGate(t *testing.T) {
	// The value exists on the stack, but in a frame whose scope does not
	// enclose the definition: it must not leak in.
	env := map[string]Value{}
	stack := Snapshot{
		{Scope: "capture"},
		{Scope: "unrelated", Locals: map[string]Value{"M": Int(16)}},
	}
	ResolveDeferred(env, map[string]bool{"M": true}, []string{"outer"}, stack)
	assert.NotContains(t, env, "M")
}

func Test_ResolveDeferred_FirstMatchWins(t *testing.T) {
	env := map[string]Value{}
	stack := Snapshot{
		{Scope: "capture"},
		{Scope: "inner", Locals: map[string]Value{"x": Int(1)}},
		{Scope: "outer", Locals: map[string]Value{"x": Int(2)}},
	}
	ResolveDeferred(env, map[string]bool{"x": true}, []string{"outer", "inner"}, stack)
	assert.Equal(t, Int(1), env["x"], "innermost enclosing frame wins")
}

func Test_ResolveDeferred_PresentNamesUntouched(t *testing.T) {
	env := map[string]Value{"M": Str("keep")}
	ResolveDeferred(env, map[string]bool{"M": true}, []string{"outer"}, nestedStack(16, 8))
	assert.Equal(t, Str("keep"), env["M"])
}

func Test_ResolveDeferred_UnresolvedNameLeftAlone(t *testing.T) {
	env := map[string]Value{}
	ResolveDeferred(env, map[string]bool{"ghost": true}, []string{"outer", "middle"}, nestedStack(16, 8))
	assert.NotContains(t, env, "ghost")
}

func Test_ResolveDeferred_EmptySnapshot(t *testing.T) {
	env := map[string]Value{}
	ResolveDeferred(env, map[string]bool{"M": true}, []string{"outer"}, nil)
	assert.Empty(t, env)
}

// --- boundary: CaptureEnv ----------------------------------------------------------

func Test_CaptureEnv_NoDeferred_EqualsAggregate(t *testing.T) {
	// No deferred annotations: the stack is never walked, even when it could
	// supply names the annotations mention.
	globals := moduleEnv(map[string]Value{"g": Int(1)})
	fn := &Function{
		Name:     "f",
		QualName: "outer.<locals>.f",
		Annotations: map[string]Annotation{
			"x": Evaluated(Str("already a value")),
		},
		Globals: globals,
		Src:     &SourceRef{Text: "def f(x: M) -> M:\n    return x\n"},
	}
	stack := Snapshot{
		{Scope: "capture"},
		{Scope: "outer", Locals: map[string]Value{"M": Int(16)}},
	}
	env, err := CaptureEnv(FunVal(fn), nil, stack)
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"g": Int(1)}, env)
}

func Test_CaptureEnv_TwoLevelNesting(t *testing.T) {
	fn := kernelFn(moduleEnv(map[string]Value{"T": HandleVal("namespace", nil)}))

	env, err := CaptureEnv(FunVal(fn), nil, nestedStack(16, 8))
	require.NoError(t, err)
	assert.Equal(t, Int(16), env["M"])
	assert.Equal(t, Int(8), env["N"])

	// outer re-invoked with M=32: a fresh snapshot resolves the new value,
	// N is unaffected.
	env2, err := CaptureEnv(FunVal(fn), nil, nestedStack(32, 8))
	require.NoError(t, err)
	assert.Equal(t, Int(32), env2["M"])
	assert.Equal(t, Int(8), env2["N"])
	assert.Equal(t, Int(16), env["M"], "earlier environment is unaffected")
}

func Test_CaptureEnv_NoStaleCachingAcrossSnapshots(t *testing.T) {
	fn := kernelFn(nil)
	envA, err := CaptureEnv(FunVal(fn), nil, nestedStack(16, 8))
	require.NoError(t, err)
	envB, err := CaptureEnv(FunVal(fn), nil, nestedStack(32, 8))
	require.NoError(t, err)

	assert.NotEqual(t, envA["M"], envB["M"])
	delete(envA, "M")
	delete(envB, "M")
	assert.Equal(t, envA, envB, "the two environments differ exactly in M")
}

func Test_CaptureEnv_OverridePrecedence(t *testing.T) {
	fn := kernelFn(nil)
	overrides := map[string]Value{"M": Int(1024)}
	env, err := CaptureEnv(FunVal(fn), overrides, nestedStack(16, 8))
	require.NoError(t, err)
	assert.Equal(t, Int(1024), env["M"], "explicit override outranks the frame value")
	assert.Equal(t, Int(8), env["N"])
}

func Test_CaptureEnv_OverrideOutranksAggregate(t *testing.T) {
	globals := moduleEnv(map[string]Value{"g": Int(1)})
	fn := &Function{Name: "f", Globals: globals}
	env, err := CaptureEnv(FunVal(fn), map[string]Value{"g": Int(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, Int(2), env["g"])
}

func Test_CaptureEnv_DtypeFromCallArgument(t *testing.T) {
	// dtype has a default of "float32" but the enclosing scope was invoked
	// with dtype="float16"; the frame holds the call argument.
	src := `    def kern(a: T.Buffer((n,), dtype)) -> T.Buffer((n,), dtype):
        return a
`
	fn := &Function{
		Name:     "kern",
		QualName: "make_kern.<locals>.kern",
		Annotations: map[string]Annotation{
			"a":    Deferred(`T.Buffer((n,), dtype)`),
			RetKey: Deferred(`T.Buffer((n,), dtype)`),
		},
		Globals: moduleEnv(map[string]Value{"T": HandleVal("namespace", nil)}),
		Src:     &SourceRef{Text: src},
	}
	stack := Snapshot{
		{Scope: "capture"},
		{Scope: "make_kern", Locals: map[string]Value{
			"n": Int(128), "dtype": Str("float16"),
		}},
	}
	env, err := CaptureEnv(FunVal(fn), nil, stack)
	require.NoError(t, err)
	assert.Equal(t, Str("float16"), env["dtype"])
	assert.Equal(t, Int(128), env["n"])
}

func Test_CaptureEnv_SourceUnavailable(t *testing.T) {
	// Deferred annotations but no retrievable source: the scanner yields
	// nothing, no frame walk contributes, result equals the plain aggregate.
	globals := moduleEnv(map[string]Value{"g": Int(1)})
	fn := &Function{
		Name:     "synth",
		QualName: "outer.<locals>.synth",
		Annotations: map[string]Annotation{
			"a": Deferred(`Buffer((M,), dtype)`),
		},
		Globals: globals,
	}
	env, err := CaptureEnv(FunVal(fn), nil, nestedStack(16, 8))
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"g": Int(1)}, env)
}

func Test_CaptureEnv_ClassDefinition(t *testing.T) {
	src := `class Pipeline:
    def stage(x: Buffer((M,), dtype)) -> Buffer((M,), dtype):
        return x
`
	globals := moduleEnv(map[string]Value{"Buffer": HandleVal("ctor", nil)})
	members := NewMapObject()
	members.Set("stage", FunVal(&Function{
		Name:     "stage",
		QualName: "builder.<locals>.Pipeline.stage",
		Annotations: map[string]Annotation{
			"x":    Deferred(`Buffer((M,), dtype)`),
			RetKey: Deferred(`Buffer((M,), dtype)`),
		},
		Globals: globals,
	}))
	cls := &Class{
		Name:     "Pipeline",
		QualName: "builder.<locals>.Pipeline",
		Members:  members,
		Src:      &SourceRef{Text: src},
	}
	stack := Snapshot{
		{Scope: "capture"},
		{Scope: "builder", Locals: map[string]Value{
			"M": Int(64), "dtype": Str("int8"),
		}},
	}
	env, err := CaptureEnv(ClassVal(cls), nil, stack)
	require.NoError(t, err)
	assert.Equal(t, Int(64), env["M"])
	assert.Equal(t, Str("int8"), env["dtype"])
	assert.Equal(t, globals.Flatten()["Buffer"], env["Buffer"])
}

func Test_CaptureEnv_RejectsNonDefinition(t *testing.T) {
	_, err := CaptureEnv(Str("nope"), nil, nil)
	var kerr *KindError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "capture", kerr.Op)
}
