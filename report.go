// report.go: static capture plans.
//
// A capture plan is the whole-file, static counterpart of CaptureEnv: parse
// a script file, walk every definition (top level and nested), synthesize
// qualified names the way a runtime would, and record per definition what
// the capture core would be working with: annotation texts, the annotation
// identifier set, and which of those identifiers are external (not supplied
// by the definition itself, the dialect, or any enclosing scope). This is
// what `ksc scan` prints and what an embedding can log next to its builds.
//
// Classification here is a static convenience, not a resolver: it never
// evaluates anything and it can't see runtime frames.
//
// Dependencies: parser.go, capture.go (identifier collection, scope paths),
// definition.go (qualified-name synthesis), config.go,
// pmezard/go-difflib (plan diffs).
package kernelscript

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
)

// DefInfo describes one definition discovered in a script file.
type DefInfo struct {
	Kind        string            `json:"kind"` // "def" or "class"
	Name        string            `json:"name"`
	QualName    string            `json:"qualname"`
	Decorators  []string          `json:"decorators,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Params      []string          `json:"params,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Names       []string          `json:"names,omitempty"`    // sorted annotation identifiers
	External    []string          `json:"external,omitempty"` // sorted subset of Names
}

// Report is the capture plan of one script file. Definitions appear in
// source order.
type Report struct {
	File string     `json:"file"`
	Defs []*DefInfo `json:"defs"`
}

// BuildReport parses file and builds its capture plan. A lex/parse failure
// comes back as a caret-annotated error. A nil cfg means DefaultConfig.
func BuildReport(file *ScriptFile, cfg *Config) (*Report, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	src := file.Text()
	tree, err := ParseSource(src)
	if err != nil {
		return nil, WrapErrorWithName(err, file.Name, src)
	}
	w := &reportWalker{builtins: map[string]bool{}}
	for _, b := range cfg.Builtins {
		w.builtins[b] = true
	}
	w.walkBlock(tree, "", nil, false)
	return &Report{File: file.Name, Defs: w.defs}, nil
}

// Format renders the plan as stable, diff-friendly text.
func (r *Report) Format() string {
	var b strings.Builder
	b.WriteString("capture plan: " + r.File + "\n")
	b.WriteString("definitions: " + strconv.Itoa(len(r.Defs)) + "\n")
	for _, d := range r.Defs {
		b.WriteString("\n" + d.Kind + " " + d.QualName + "\n")
		if len(d.Decorators) > 0 {
			b.WriteString("  decorators: " + strings.Join(d.Decorators, ", ") + "\n")
		}
		if len(d.Scopes) > 0 {
			b.WriteString("  scopes: " + strings.Join(d.Scopes, " > ") + "\n")
		}
		if len(d.Params) > 0 {
			b.WriteString("  params: " + strings.Join(d.Params, ", ") + "\n")
		}
		for _, key := range d.annotationKeys() {
			b.WriteString("  ann " + key + ": " + d.Annotations[key] + "\n")
		}
		if len(d.Names) > 0 {
			b.WriteString("  names: " + strings.Join(d.Names, ", ") + "\n")
		}
		if len(d.External) > 0 {
			b.WriteString("  external: " + strings.Join(d.External, ", ") + "\n")
		}
	}
	return b.String()
}

// JSON renders the plan as indented JSON.
func (r *Report) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode report")
	}
	return string(data) + "\n", nil
}

// Lookup finds a definition by qualified name, falling back to the bare
// name when it is unambiguous.
func (r *Report) Lookup(name string) *DefInfo {
	var byName *DefInfo
	n := 0
	for _, d := range r.Defs {
		if d.QualName == name {
			return d
		}
		if d.Name == name {
			byName = d
			n++
		}
	}
	if n == 1 {
		return byName
	}
	return nil
}

// DiffReports renders a unified diff between two capture plans.
func DiffReports(old, new *Report) (string, error) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old.Format()),
		B:        difflib.SplitLines(new.Format()),
		FromFile: old.File,
		ToFile:   new.File,
		Context:  3,
	})
	if err != nil {
		return "", errors.Wrap(err, "diff reports")
	}
	return text, nil
}

// DefTree parses file and returns the AST subtree of the definition with the
// given qualified name.
func DefTree(file *ScriptFile, qual string) (S, error) {
	src := file.Text()
	tree, err := ParseSource(src)
	if err != nil {
		return nil, WrapErrorWithName(err, file.Name, src)
	}
	if sub := findDef(tree, "", false, qual); sub != nil {
		return sub, nil
	}
	return nil, errors.Errorf("no definition %q in %s", qual, file.Name)
}

// annotationKeys returns annotated parameter names in declaration order,
// then the return key.
func (d *DefInfo) annotationKeys() []string {
	var keys []string
	for _, p := range d.Params {
		if _, ok := d.Annotations[p]; ok {
			keys = append(keys, p)
		}
	}
	if _, ok := d.Annotations[RetKey]; ok {
		keys = append(keys, RetKey)
	}
	return keys
}

//// END_OF_PUBLIC

// staticScope is one enclosing definition during the walk: its name and the
// names statically bound in it.
type staticScope struct {
	name  string
	bound map[string]bool
}

type reportWalker struct {
	builtins map[string]bool
	defs     []*DefInfo
}

// walkBlock visits a statement block. qual is the enclosing definition's
// qualified name ("" at top level); scopes are the enclosing definitions,
// outermost first; inClass marks a class body (member naming differs).
func (w *reportWalker) walkBlock(block S, qual string, scopes []staticScope, inClass bool) {
	for i := 1; i < len(block); i++ {
		stmt, ok := block[i].(S)
		if !ok {
			continue
		}
		switch nodeTag(stmt) {
		case "def":
			w.visitDef(stmt, qual, scopes, inClass)
		case "class":
			w.visitClass(stmt, qual, scopes, inClass)
		case "if":
			for j := 1; j < len(stmt); j++ {
				sub, ok := stmt[j].(S)
				if !ok {
					continue
				}
				if nodeTag(sub) == "pair" {
					w.walkBlock(sub[2].(S), qual, scopes, inClass)
				} else {
					w.walkBlock(sub, qual, scopes, inClass)
				}
			}
		case "while":
			w.walkBlock(stmt[2].(S), qual, scopes, inClass)
		case "for":
			w.walkBlock(stmt[3].(S), qual, scopes, inClass)
		}
	}
}

func (w *reportWalker) visitDef(stmt S, qual string, scopes []staticScope, inClass bool) {
	name := stmt[1].(string)
	qualName := NestedQual(qual, name)
	if inClass {
		qualName = MemberQual(qual, name)
	}
	params := stmt[3].(S)
	ret := stmt[4].(S)
	body := stmt[5].(S)

	info := &DefInfo{
		Kind:       "def",
		Name:       name,
		QualName:   qualName,
		Decorators: renderDecorators(stmt[2].(S)),
		Scopes:     EnclosingScopes(qualName),
	}

	ids := map[string]bool{}
	annots := map[string]string{}
	for i := 1; i < len(params); i++ {
		p := params[i].(S)
		pname := p[1].(string)
		info.Params = append(info.Params, pname)
		if annot, ok := p[2].(S); ok && !isEmptyNode(annot) {
			annots[pname] = renderExpr(annot)
			collectIdents(annot, ids)
		}
	}
	if !isEmptyNode(ret) {
		annots[RetKey] = renderExpr(ret)
		collectIdents(ret, ids)
	}
	if len(annots) > 0 {
		info.Annotations = annots
	}
	info.Names = sortedNames(ids)
	info.External = w.externalNames(ids, info.Params, scopes)
	w.defs = append(w.defs, info)

	inner := append(append([]staticScope(nil), scopes...),
		staticScope{name: name, bound: staticBindings(body, info.Params)})
	w.walkBlock(body, qualName, inner, false)
}

func (w *reportWalker) visitClass(stmt S, qual string, scopes []staticScope, inClass bool) {
	name := stmt[1].(string)
	qualName := NestedQual(qual, name)
	if inClass {
		qualName = MemberQual(qual, name)
	}
	body := stmt[3].(S)

	w.defs = append(w.defs, &DefInfo{
		Kind:       "class",
		Name:       name,
		QualName:   qualName,
		Decorators: renderDecorators(stmt[2].(S)),
		Scopes:     EnclosingScopes(qualName),
	})

	inner := append(append([]staticScope(nil), scopes...),
		staticScope{name: name, bound: staticBindings(body, nil)})
	w.walkBlock(body, qualName, inner, true)
}

// externalNames filters the annotation identifier set down to names the
// definition site cannot supply: not a parameter, not a builtin, not bound
// in any enclosing scope.
func (w *reportWalker) externalNames(ids map[string]bool, params []string, scopes []staticScope) []string {
	own := make(map[string]bool, len(params))
	for _, p := range params {
		own[p] = true
	}
	var out []string
	for name := range ids {
		if own[name] || w.builtins[name] {
			continue
		}
		enclosed := false
		for _, sc := range scopes {
			if sc.bound[name] {
				enclosed = true
				break
			}
		}
		if !enclosed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// staticBindings collects the names statically bound in a scope body:
// parameters, assignment targets, loop targets, and nested definition
// names. Nested def/class bodies are separate scopes and are not entered.
func staticBindings(body S, params []string) map[string]bool {
	bound := make(map[string]bool, len(params))
	for _, p := range params {
		bound[p] = true
	}
	addBindings(body, bound)
	return bound
}

func addBindings(n S, bound map[string]bool) {
	switch nodeTag(n) {
	case "assign":
		targetNames(n[1].(S), bound)
	case "for":
		targetNames(n[1].(S), bound)
		addBindings(n[3].(S), bound)
	case "def", "class":
		bound[n[1].(string)] = true
	case "while":
		addBindings(n[2].(S), bound)
	case "if":
		for i := 1; i < len(n); i++ {
			sub, ok := n[i].(S)
			if !ok {
				continue
			}
			if nodeTag(sub) == "pair" {
				addBindings(sub[2].(S), bound)
			} else {
				addBindings(sub, bound)
			}
		}
	case "block":
		for i := 1; i < len(n); i++ {
			if sub, ok := n[i].(S); ok {
				addBindings(sub, bound)
			}
		}
	}
}

// findDef mirrors walkBlock's qualified-name synthesis, returning the first
// def/class node whose name matches want.
func findDef(block S, qual string, inClass bool, want string) S {
	for i := 1; i < len(block); i++ {
		stmt, ok := block[i].(S)
		if !ok {
			continue
		}
		switch nodeTag(stmt) {
		case "def", "class":
			name := stmt[1].(string)
			qn := NestedQual(qual, name)
			if inClass {
				qn = MemberQual(qual, name)
			}
			if qn == want {
				return stmt
			}
			body := stmt[len(stmt)-1].(S)
			if sub := findDef(body, qn, nodeTag(stmt) == "class", want); sub != nil {
				return sub
			}
		case "if":
			for j := 1; j < len(stmt); j++ {
				sub, ok := stmt[j].(S)
				if !ok {
					continue
				}
				blk := sub
				if nodeTag(sub) == "pair" {
					blk = sub[2].(S)
				}
				if hit := findDef(blk, qual, inClass, want); hit != nil {
					return hit
				}
			}
		case "while":
			if hit := findDef(stmt[2].(S), qual, inClass, want); hit != nil {
				return hit
			}
		case "for":
			if hit := findDef(stmt[3].(S), qual, inClass, want); hit != nil {
				return hit
			}
		}
	}
	return nil
}

func targetNames(t S, bound map[string]bool) {
	switch nodeTag(t) {
	case "id":
		bound[t[1].(string)] = true
	case "tuple":
		for i := 1; i < len(t); i++ {
			if sub, ok := t[i].(S); ok {
				targetNames(sub, bound)
			}
		}
	}
}

func sortedNames(ids map[string]bool) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for name := range ids {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func renderDecorators(decs S) []string {
	var out []string
	for i := 1; i < len(decs); i++ {
		if d, ok := decs[i].(S); ok {
			out = append(out, "@"+renderExpr(d))
		}
	}
	return out
}

// renderExpr prints an expression node back as dialect source. Operands
// that are themselves operator nodes get parenthesized, so the output is
// unambiguous even where the original had none.
func renderExpr(n S) string {
	switch nodeTag(n) {
	case "id":
		return n[1].(string)
	case "int":
		return strconv.FormatInt(n[1].(int64), 10)
	case "num":
		return strconv.FormatFloat(n[1].(float64), 'g', -1, 64)
	case "str":
		return strconv.Quote(n[1].(string))
	case "bool":
		if n[1].(bool) {
			return "True"
		}
		return "False"
	case "null":
		return "None"
	case "array":
		return "[" + renderList(n[1:]) + "]"
	case "tuple":
		if len(n) == 2 {
			return "(" + renderExpr(n[1].(S)) + ",)"
		}
		return "(" + renderList(n[1:]) + ")"
	case "map":
		var parts []string
		for i := 1; i < len(n); i++ {
			pair := n[i].(S)
			parts = append(parts, renderExpr(pair[1].(S))+": "+renderExpr(pair[2].(S)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case "call":
		return renderOperand(n[1].(S)) + "(" + renderList(n[2:]) + ")"
	case "kw":
		return n[1].(string) + "=" + renderExpr(n[2].(S))
	case "get":
		return renderOperand(n[1].(S)) + "." + n[2].(S)[1].(string)
	case "idx":
		idx := n[2].(S)
		inner := renderExpr(idx)
		if nodeTag(idx) == "tuple" && len(idx) > 2 {
			inner = renderList(idx[1:])
		}
		return renderOperand(n[1].(S)) + "[" + inner + "]"
	case "binop":
		op := n[1].(string)
		return renderOperand(n[2].(S)) + " " + op + " " + renderOperand(n[3].(S))
	case "unop":
		op := n[1].(string)
		if op == "not" {
			return "not " + renderOperand(n[2].(S))
		}
		return op + renderOperand(n[2].(S))
	case "lambda":
		params := n[1].(S)
		var names []string
		for i := 1; i < len(params); i++ {
			names = append(names, params[i].(S)[1].(string))
		}
		head := "lambda"
		if len(names) > 0 {
			head += " " + strings.Join(names, ", ")
		}
		return head + ": " + renderExpr(n[2].(S))
	}
	return "?"
}

func renderOperand(n S) string {
	switch nodeTag(n) {
	case "binop", "unop", "lambda":
		return "(" + renderExpr(n) + ")"
	}
	return renderExpr(n)
}

func renderList(parts []any) string {
	var out []string
	for _, p := range parts {
		if e, ok := p.(S); ok {
			out = append(out, renderExpr(e))
		}
	}
	return strings.Join(out, ", ")
}
