package kernelscript

import "testing"

func Test_Annotation_Variant(t *testing.T) {
	ev := Evaluated(Int(42))
	if ev.IsDeferred() {
		t.Fatal("Evaluated reported deferred")
	}
	if v, ok := ev.Value(); !ok || v != Int(42) {
		t.Fatalf("Evaluated.Value() = %v, %v", v, ok)
	}
	if _, ok := ev.Text(); ok {
		t.Fatal("Evaluated.Text() reported ok")
	}

	df := Deferred(`Buffer((M, N), dtype)`)
	if !df.IsDeferred() {
		t.Fatal("Deferred reported evaluated")
	}
	if txt, ok := df.Text(); !ok || txt != `Buffer((M, N), dtype)` {
		t.Fatalf("Deferred.Text() = %q, %v", txt, ok)
	}
	if _, ok := df.Value(); ok {
		t.Fatal("Deferred.Value() reported ok")
	}
}

func Test_QualifiedNameSynthesis(t *testing.T) {
	cases := []struct{ got, want string }{
		{NestedQual("", "outer"), "outer"},
		{NestedQual("outer", "inner"), "outer.<locals>.inner"},
		{NestedQual("outer.<locals>.inner", "kern"), "outer.<locals>.inner.<locals>.kern"},
		{MemberQual("", "Net"), "Net"},
		{MemberQual("Net", "forward"), "Net.forward"},
		{MemberQual("builder.<locals>.Net", "forward"), "builder.<locals>.Net.forward"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}

func Test_QualifiedNames_RoundTripThroughScopes(t *testing.T) {
	qual := NestedQual(NestedQual("outer", "middle"), "kern")
	want := []string{"outer", "middle"}
	got := EnclosingScopes(qual)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("EnclosingScopes(%q) = %v, want %v", qual, got, want)
	}
}
