package vm

import (
	"github.com/wasminspect-go/wasminspect/internal/buildoptions"
	"github.com/wasminspect-go/wasminspect/value"
)

// LabelKind distinguishes the four structured-control label shapes.
type LabelKind byte

const (
	LabelBlock LabelKind = iota
	LabelLoop
	LabelIf
	LabelReturn
)

// Label is a structured-control marker pushed by block/loop/if/call and
// consumed by br/end. Grounded on original_source/crates/vm/src/stack.rs.
type Label struct {
	Kind LabelKind
	// Arity is the number of values this label yields on normal completion
	// (its matching end): the block type's result count.
	Arity int
	// BranchArity is the number of values a `br` targeting this label
	// carries: equal to Arity for Block/If/Return, but the block type's
	// *parameter* count for Loop (branching to a loop re-enters at the top,
	// re-consuming its parameters).
	BranchArity int
	// EndTarget is the instruction index immediately after this label's
	// matching `end` — where Block/If branches and normal fallthrough go.
	EndTarget int
	// LoopStart is the instruction index immediately after the `loop`
	// opcode itself — where a `br` to this label jumps, when Kind ==
	// LabelLoop.
	LoopStart int
}

// ProgramCounter locates the next instruction to execute.
type ProgramCounter struct {
	ModuleIndex ModuleIndex
	ExecAddr    FuncGlobalAddress
	InstIndex   int
}

// CallFrame is one function activation: its locals and where to resume the
// caller when it returns.
type CallFrame struct {
	ModuleIndex ModuleIndex
	ExecAddr    FuncGlobalAddress
	Locals      []value.Value
	RetPC       *ProgramCounter
}

// NewCallFrameFromFunc builds an activation for a freshly-called function:
// locals start as a copy of the callee's cached zero-init vector with the
// first len(args) slots overwritten by args, per spec.md §3 CallFrame.
func NewCallFrameFromFunc(moduleIdx ModuleIndex, execAddr FuncGlobalAddress, fn *DefinedFunctionInstance, args []value.Value, retPC *ProgramCounter) *CallFrame {
	locals := make([]value.Value, len(fn.CachedLocalInits))
	copy(locals, fn.CachedLocalInits)
	copy(locals, args)
	return &CallFrame{ModuleIndex: moduleIdx, ExecAddr: execAddr, Locals: locals, RetPC: retPC}
}

// Local reads local slot i.
func (f *CallFrame) Local(i int) value.Value { return f.Locals[i] }

// SetLocal overwrites local slot i.
func (f *CallFrame) SetLocal(i int, v value.Value) { f.Locals[i] = v }

type entryKind byte

const (
	entryValue entryKind = iota
	entryLabel
	entryActivation
)

type stackEntry struct {
	kind  entryKind
	value value.Value
	label Label
	frame *CallFrame
}

// Stack is the unified value/label/activation stack, with a parallel index
// of each activation's position for O(1) frame-depth queries. Grounded on
// original_source/crates/vm/src/stack.rs.
type Stack struct {
	entries    []stackEntry
	frameIndex []int
	// lastResults holds the result values of the most recent return from the
	// outermost (RetPC == nil) call frame, consumed once by Executor.Call or
	// Executor.Results.
	lastResults []value.Value
}

// NewStack returns an empty stack.
func NewStack() *Stack { return &Stack{} }

// PushValue pushes a value.
func (s *Stack) PushValue(v value.Value) { s.entries = append(s.entries, stackEntry{kind: entryValue, value: v}) }

// PopValue pops and returns the top value, or false if the top entry isn't
// a value (including an empty stack).
func (s *Stack) PopValue() (value.Value, bool) {
	if len(s.entries) == 0 {
		return value.Value{}, false
	}
	top := s.entries[len(s.entries)-1]
	if top.kind != entryValue {
		return value.Value{}, false
	}
	s.entries = s.entries[:len(s.entries)-1]
	return top.value, true
}

// PushLabel pushes a structured-control label.
func (s *Stack) PushLabel(l Label) { s.entries = append(s.entries, stackEntry{kind: entryLabel, label: l}) }

// PopLabel pops and returns the top label, or false if the top entry isn't
// a label.
func (s *Stack) PopLabel() (Label, bool) {
	if len(s.entries) == 0 {
		return Label{}, false
	}
	top := s.entries[len(s.entries)-1]
	if top.kind != entryLabel {
		return Label{}, false
	}
	s.entries = s.entries[:len(s.entries)-1]
	return top.label, true
}

// PushFrame pushes a new activation, enforcing the call-stack ceiling
// (data model invariant 2: exceeding it traps, never panics).
func (s *Stack) PushFrame(f *CallFrame) bool {
	if len(s.frameIndex) >= buildoptions.CallStackCeiling {
		return false
	}
	s.frameIndex = append(s.frameIndex, len(s.entries))
	s.entries = append(s.entries, stackEntry{kind: entryActivation, frame: f})
	return true
}

// PopFrame pops the current activation and returns it, but only when it is
// the top entry; if a value or label lies above it, PopFrame removes nothing
// and returns false. It removes only the Activation entry itself and its
// frameIndex bookkeeping (return handling uses PopFrameAt instead).
func (s *Stack) PopFrame() (*CallFrame, bool) {
	if len(s.entries) == 0 {
		return nil, false
	}
	top := s.entries[len(s.entries)-1]
	if top.kind != entryActivation {
		return nil, false
	}
	s.entries = s.entries[:len(s.entries)-1]
	s.frameIndex = s.frameIndex[:len(s.frameIndex)-1]
	return top.frame, true
}

// PopFrameAt removes the activation at entryIdx along with everything above
// it (any leftover labels/values from a function returning without every
// open label having been closed by its own end), in one step. Used by
// return handling, where truncating separately then calling PopFrame would
// double-remove the activation entry.
func (s *Stack) PopFrameAt(entryIdx int) (*CallFrame, bool) {
	if entryIdx < 0 || entryIdx >= len(s.entries) || s.entries[entryIdx].kind != entryActivation {
		return nil, false
	}
	frame := s.entries[entryIdx].frame
	s.entries = s.entries[:entryIdx]
	s.frameIndex = s.frameIndex[:len(s.frameIndex)-1]
	return frame, true
}

// CurrentFrameIndex returns the stack offset of the innermost activation.
func (s *Stack) CurrentFrameIndex() (int, bool) {
	if len(s.frameIndex) == 0 {
		return 0, false
	}
	return s.frameIndex[len(s.frameIndex)-1], true
}

// CurrentFrame returns the innermost activation.
func (s *Stack) CurrentFrame() (*CallFrame, bool) {
	idx, ok := s.CurrentFrameIndex()
	if !ok {
		return nil, false
	}
	return s.entries[idx].frame, true
}

// PeekFrames returns every activation, outermost first.
func (s *Stack) PeekFrames() []*CallFrame {
	out := make([]*CallFrame, len(s.frameIndex))
	for i, idx := range s.frameIndex {
		out[i] = s.entries[idx].frame
	}
	return out
}

// FrameDepth returns the number of live activations.
func (s *Stack) FrameDepth() int { return len(s.frameIndex) }

// IsOverTopLevel reports whether the stack holds no activation at all
// (data model invariant 6: is_over_top_level() <-> frame_index.is_empty()).
func (s *Stack) IsOverTopLevel() bool { return len(s.frameIndex) == 0 }

// CurrentFrameLabelCount returns how many labels are active above the
// current frame (used to know how many labels a function-level `end` must
// account for).
func (s *Stack) CurrentFrameLabelCount() int {
	base, ok := s.CurrentFrameIndex()
	if !ok {
		return 0
	}
	n := 0
	for i := base + 1; i < len(s.entries); i++ {
		if s.entries[i].kind == entryLabel {
			n++
		}
	}
	return n
}

// LabelAt returns the label `depth` levels up from the innermost label
// (depth 0 is the innermost), used by br d.
func (s *Stack) LabelAt(depth int) (Label, int, bool) {
	seen := -1
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].kind == entryLabel {
			seen++
			if seen == depth {
				return s.entries[i].label, i, true
			}
		}
	}
	return Label{}, -1, false
}

// TruncateTo discards every entry at index i and beyond.
func (s *Stack) TruncateTo(i int) { s.entries = s.entries[:i] }

// Len returns the total number of entries (values + labels + activations).
func (s *Stack) Len() int { return len(s.entries) }

// ValuesSince returns the values between the entry at entryIdx
// (exclusive) and the top of the stack, outermost first.
func (s *Stack) ValuesSince(entryIdx int) []value.Value {
	var out []value.Value
	for i := entryIdx + 1; i < len(s.entries); i++ {
		if s.entries[i].kind == entryValue {
			out = append(out, s.entries[i].value)
		}
	}
	return out
}
