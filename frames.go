// frames.go: explicit scope snapshots.
//
// Resolution never inspects an ambient call stack. The embedding runtime
// captures one at the moment it asks for capture, as a plain value: an
// ordered list of frames, innermost caller first. That keeps the resolver a
// pure function of (definition, snapshot, overrides) and keeps concurrent
// mutation of the real stack unobservable: the snapshot is point-in-time.
//
// StackRecorder is the convenience half: an embedding that executes scopes
// pushes/pops as it goes and takes Snapshot() right before capture.
package kernelscript

// Frame is one activation record in a scope snapshot.
//
// Fields:
//   - Scope: name of the code unit the frame is executing ("outer",
//     "<module>", ...). This is what scope-gated resolution matches against.
//   - Locals: point-in-time copy of the frame's local bindings.
//   - Line: 1-based source line the frame is currently executing.
//   - Context: source line(s) at that point, Context[0] being the line
//     itself; nil when no source is available.
type Frame struct {
	Scope   string
	Locals  map[string]Value
	Line    int
	Context []string
}

// Snapshot is an ordered scope capture: index 0 is the innermost caller (the
// capture call site), the last entry is the program root. Snapshots are
// immutable by convention; Clone gives callers that need to hold one past
// the resolution call an independent copy.
type Snapshot []Frame

// Clone deep-copies the snapshot's locals maps. Values are shared.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for i, f := range s {
		cp := f
		if f.Locals != nil {
			cp.Locals = make(map[string]Value, len(f.Locals))
			for k, v := range f.Locals {
				cp.Locals[k] = v
			}
		}
		if f.Context != nil {
			cp.Context = append([]string(nil), f.Context...)
		}
		out[i] = cp
	}
	return out
}

// StackRecorder tracks live scope activations for embeddings that want to
// hand the capture core real snapshots. Push on scope entry, Pop on exit,
// SetLocal as bindings appear; Snapshot() freezes the current state.
//
// Not goroutine-safe: the decorating thread owns its own stack.
type StackRecorder struct {
	frames []Frame // push order: outermost first
}

// NewStackRecorder returns an empty recorder.
func NewStackRecorder() *StackRecorder { return &StackRecorder{} }

// Push enters a scope. The locals map is adopted live: later mutations
// (including SetLocal) are seen by subsequent Snapshot calls. A nil map is
// replaced with an empty one.
func (r *StackRecorder) Push(scope string, locals map[string]Value) {
	if locals == nil {
		locals = map[string]Value{}
	}
	r.frames = append(r.frames, Frame{Scope: scope, Locals: locals})
}

// PushFrame enters a scope described by a full Frame (line/context included).
func (r *StackRecorder) PushFrame(f Frame) {
	if f.Locals == nil {
		f.Locals = map[string]Value{}
	}
	r.frames = append(r.frames, f)
}

// SetLocal binds name in the innermost open scope. No-op on an empty stack.
func (r *StackRecorder) SetLocal(name string, v Value) {
	if len(r.frames) == 0 {
		return
	}
	r.frames[len(r.frames)-1].Locals[name] = v
}

// Pop leaves the innermost scope. No-op on an empty stack.
func (r *StackRecorder) Pop() {
	if len(r.frames) == 0 {
		return
	}
	r.frames = r.frames[:len(r.frames)-1]
}

// Depth reports how many scopes are open.
func (r *StackRecorder) Depth() int { return len(r.frames) }

// Snapshot freezes the current stack, innermost scope first, with locals
// copied so the snapshot stays stable while execution continues.
func (r *StackRecorder) Snapshot() Snapshot {
	out := make(Snapshot, 0, len(r.frames))
	for i := len(r.frames) - 1; i >= 0; i-- {
		f := r.frames[i]
		cp := Frame{Scope: f.Scope, Line: f.Line}
		cp.Locals = make(map[string]Value, len(f.Locals))
		for k, v := range f.Locals {
			cp.Locals[k] = v
		}
		if f.Context != nil {
			cp.Context = append([]string(nil), f.Context...)
		}
		out = append(out, cp)
	}
	return out
}
