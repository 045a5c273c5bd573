package kernelscript

import "testing"

func Test_Dedent(t *testing.T) {
	cases := []struct{ name, in, want string }{
		{
			"uniform spaces",
			"    def f():\n        pass\n",
			"def f():\n    pass\n",
		},
		{
			"margin is the common prefix",
			"        def f():\n    x = 1\n",
			"    def f():\nx = 1\n",
		},
		{
			"blank lines ignored for the margin and emptied",
			"    a\n\n      \n    b\n",
			"a\n\n\nb\n",
		},
		{
			"no common margin",
			"a\n    b\n",
			"a\n    b\n",
		},
		{
			"tabs are literal",
			"\tdef f():\n\t\tpass\n",
			"def f():\n\tpass\n",
		},
		{
			"mixed tab and space share no prefix",
			"\ta\n    b\n",
			"\ta\n    b\n",
		},
	}
	for _, tc := range cases {
		if got := Dedent(tc.in); got != tc.want {
			t.Errorf("%s: Dedent(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func Test_Dedent_ThenParses(t *testing.T) {
	snippet := "        def kernel(a: Buffer(M)) -> Buffer(M):\n            return a\n"
	if _, err := ParseSource(Dedent(snippet)); err != nil {
		t.Fatalf("dedented snippet must parse standalone: %v", err)
	}
	if _, err := ParseSource(snippet); err == nil {
		t.Fatal("indented snippet parsing without Dedent should fail")
	}
}

func Test_ScriptFile_Lines(t *testing.T) {
	f := NewScriptFile("net.ks", "M = 128\nclass Net:\n    pass\n")
	if len(f.Lines) != 3 {
		t.Fatalf("trailing newline produced a phantom line: %v", f.Lines)
	}
	if ln, ok := f.Line(2); !ok || ln != "class Net:" {
		t.Fatalf("Line(2) = %q, %v", ln, ok)
	}
	for _, n := range []int{0, 4, -1} {
		if _, ok := f.Line(n); ok {
			t.Errorf("Line(%d) reported ok out of range", n)
		}
	}
	var nilFile *ScriptFile
	if _, ok := nilFile.Line(1); ok {
		t.Fatal("nil file Line reported ok")
	}
	if f.Text() != "M = 128\nclass Net:\n    pass\n" {
		t.Fatalf("Text round trip: %q", f.Text())
	}
}
