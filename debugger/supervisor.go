// Package debugger drives a vm.Store/vm.Executor the way an interactive
// front-end does: start or restart a run, single-step it at three
// granularities, pause it at function or instruction breakpoints, and
// inspect its live frames/locals/memory between steps.
//
// Grounded on original_source/crates/debugger/src/debugger.rs (the
// MainDebugger type) and original_source/crates/debugger/src/commands/
// debugger.rs (the Debugger trait it implements). WASI instantiation from
// the Rust reference is intentionally not ported: this package only drives
// vm.Store/vm.Executor directly, and leaves host-module registration
// (vm.Store.RegisterHostModule) as the extension point a WASI or RPC
// front-end would use on top of it.
package debugger

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wasminspect-go/wasminspect/value"
	"github.com/wasminspect-go/wasminspect/vm"
	"github.com/wasminspect-go/wasminspect/wasm"
)

// BreakpointKind distinguishes the two ways a Breakpoint can match.
type BreakpointKind byte

const (
	// BreakpointFunction matches by substring against a callee's display
	// name, the same loose match original_source's invoke_func uses.
	BreakpointFunction BreakpointKind = iota
	// BreakpointInstruction matches the exact byte offset of an instruction
	// within the module that produced it.
	BreakpointInstruction
)

// Breakpoint is one registered pause point. Construct with FunctionBreakpoint
// or InstructionBreakpoint; ID is assigned by SetBreakpoint.
type Breakpoint struct {
	ID           int
	Kind         BreakpointKind
	FunctionName string
	InstOffset   uint64
}

// FunctionBreakpoint builds a Breakpoint that pauses right after a call to
// any callee whose name contains name: a defined callee has been entered but
// has run none of its instructions; a host callee has already returned.
func FunctionBreakpoint(name string) Breakpoint {
	return Breakpoint{Kind: BreakpointFunction, FunctionName: name}
}

// InstructionBreakpoint builds a Breakpoint that pauses right after the
// instruction at the given byte offset has executed.
func InstructionBreakpoint(offset uint64) Breakpoint {
	return Breakpoint{Kind: BreakpointInstruction, InstOffset: offset}
}

// StepStyle selects how far Step advances before yielding control back.
type StepStyle byte

const (
	// StepInstIn executes exactly one instruction, descending into any call
	// it makes.
	StepInstIn StepStyle = iota
	// StepInstOver executes instructions until control returns to the
	// current frame's depth, stepping over any call made along the way.
	StepInstOver
	// StepOut executes instructions until the current frame itself returns.
	StepOut
)

// RunResult is what Run/Process/Step settle on: at most one of Finished,
// Breakpoint is true, or Trap is non-nil. None is set when a Step ends
// without finishing, trapping or hitting a breakpoint.
type RunResult struct {
	Finished bool
	Values   []value.Value
	// Breakpoint is true when execution paused at a registered breakpoint
	// rather than running to completion.
	Breakpoint bool
	Trap       vm.Trap
}

// FunctionFrame describes one live activation for inspection.
type FunctionFrame struct {
	ModuleIndex   vm.ModuleIndex
	FunctionName  string
	ArgumentCount int
}

// Options configures a Supervisor.
type Options struct {
	Logger *zap.Logger
}

// Supervisor is the debugger's external API surface: load a module into its
// own store, run or step it, manage breakpoints, and inspect its state
// in between. It implements vm.Interceptor itself, consulting its own
// breakpoint tables exactly as original_source's MainDebugger does for
// Interceptor.
//
// Grounded on original_source/crates/debugger/src/debugger.rs's
// MainDebugger.
type Supervisor struct {
	store       *vm.Store
	executor    *vm.Executor
	moduleIndex vm.ModuleIndex
	hasModule   bool

	breakpoints      map[int]Breakpoint
	nextBreakpointID int
	selectedFrame    int // index into PeekFrames order (0 = outermost); -1 = innermost/current

	logger *zap.Logger
}

// NewSupervisor constructs a Supervisor over a fresh store.
func NewSupervisor(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		store:         vm.NewStore(logger),
		breakpoints:   map[int]Breakpoint{},
		selectedFrame: -1,
		logger:        logger,
	}
}

// Store exposes the underlying store, e.g. to register a host module before
// LoadModule links a binary's imports against it.
func (s *Supervisor) Store() *vm.Store { return s.store }

// LoadModule instantiates the already-decoded mod under name, replacing whatever
// module this Supervisor was previously driving. Any in-flight execution is
// torn down first, matching original_source's load_module always resetting
// the run state.
func (s *Supervisor) LoadModule(name string, mod *wasm.Module) error {
	idx, err := s.store.LoadModule(name, mod)
	if err != nil {
		return err
	}
	s.executor = nil
	s.moduleIndex = idx
	s.hasModule = true
	s.selectedFrame = -1
	return nil
}

// IsRunning reports whether a call is currently in flight (started but not
// yet finished, trapped, or torn down).
func (s *Supervisor) IsRunning() bool { return s.executor != nil }

// Run tears down any in-flight execution and starts a fresh one: at the
// export named name if given, else the module's start function, else its
// exported "_start", running until it finishes, traps, or hits a
// breakpoint. Grounded on original_source/crates/debugger/src/debugger.rs's
// run().
func (s *Supervisor) Run(name string) (RunResult, error) {
	s.executor = nil
	s.selectedFrame = -1
	if !s.hasModule {
		return RunResult{}, errors.New("debugger: no module loaded")
	}
	mi, ok := s.store.ModuleAt(s.moduleIndex)
	if !ok || mi.Defined == nil {
		return RunResult{}, errors.New("debugger: no module loaded")
	}

	addr, err := s.entryPoint(mi.Defined, name)
	if err != nil {
		return RunResult{}, err
	}

	ex := vm.NewExecutor(s.store, s)
	if trap := ex.Prepare(addr, nil); trap != nil {
		return RunResult{Trap: trap}, nil
	}
	s.executor = ex
	return s.process()
}

// entryPoint resolves the function Run should invoke: an explicit export
// name, else the module's start function, else its exported "_start".
func (s *Supervisor) entryPoint(mi *vm.DefinedModuleInstance, name string) (vm.FuncGlobalAddress, error) {
	var local vm.FuncAddress
	var err error
	switch {
	case name != "":
		local, err = mi.ExportedFunc(name)
		if err != nil {
			return vm.FuncGlobalAddress{}, errors.Wrapf(err, "debugger: export %q", name)
		}
	case mi.StartFunc != nil:
		local = *mi.StartFunc
	default:
		local, err = mi.ExportedFunc("_start")
		if err != nil {
			return vm.FuncGlobalAddress{}, errors.Wrap(err, "debugger: no entry point (no name given, no start function, no _start export)")
		}
	}
	global, ok := s.store.Funcs.Resolve(local)
	if !ok {
		return vm.FuncGlobalAddress{}, errors.New("debugger: entry point function is unresolved")
	}
	return global, nil
}

// Process drives the current execution to completion, a trap, or the next
// breakpoint — a bare continue. Grounded on original_source's process().
func (s *Supervisor) Process() (RunResult, error) {
	return s.process()
}

func (s *Supervisor) process() (RunResult, error) {
	if s.executor == nil {
		return RunResult{}, errors.New("debugger: no execution in progress")
	}
	for {
		if s.executor.Stack().IsOverTopLevel() {
			return s.finish(), nil
		}
		sig, trap := s.executor.Step()
		if trap != nil {
			return s.fail(trap), nil
		}
		switch sig {
		case vm.SignalBreakpoint:
			return RunResult{Breakpoint: true}, nil
		case vm.SignalEnd:
			return s.finish(), nil
		}
	}
}

func (s *Supervisor) finish() RunResult {
	values := s.executor.Results()
	s.executor = nil
	return RunResult{Finished: true, Values: values}
}

func (s *Supervisor) fail(trap vm.Trap) RunResult {
	s.executor = nil
	return RunResult{Trap: trap}
}

// Step advances the current execution by one unit of style, pausing early
// on a breakpoint, trap, or completion. Grounded on original_source's
// step(), whose StepInstOver/StepOut loop single-steps while comparing
// frame depth against the depth recorded before the first step.
func (s *Supervisor) Step(style StepStyle) (RunResult, error) {
	if s.executor == nil {
		return RunResult{}, errors.New("debugger: no execution in progress")
	}
	s.selectedFrame = -1

	switch style {
	case StepInstIn:
		return s.stepOnce()
	case StepInstOver:
		depth := s.executor.Stack().FrameDepth()
		res, err := s.stepOnce()
		if err != nil || res.Finished || res.Trap != nil || res.Breakpoint {
			return res, err
		}
		for s.executor != nil && s.executor.Stack().FrameDepth() > depth {
			res, err = s.stepOnce()
			if err != nil || res.Finished || res.Trap != nil || res.Breakpoint {
				return res, err
			}
		}
		return res, nil
	case StepOut:
		depth := s.executor.Stack().FrameDepth()
		var res RunResult
		var err error
		for s.executor != nil && s.executor.Stack().FrameDepth() >= depth {
			res, err = s.stepOnce()
			if err != nil || res.Finished || res.Trap != nil || res.Breakpoint {
				return res, err
			}
		}
		return res, nil
	default:
		return RunResult{}, errors.Errorf("debugger: unknown step style %v", style)
	}
}

func (s *Supervisor) stepOnce() (RunResult, error) {
	if s.executor.Stack().IsOverTopLevel() {
		return s.finish(), nil
	}
	sig, trap := s.executor.Step()
	if trap != nil {
		return s.fail(trap), nil
	}
	switch sig {
	case vm.SignalBreakpoint:
		return RunResult{Breakpoint: true}, nil
	case vm.SignalEnd:
		return s.finish(), nil
	}
	if s.executor.Stack().IsOverTopLevel() {
		return s.finish(), nil
	}
	return RunResult{}, nil
}

// SetBreakpoint registers bp and returns the ID to give UnsetBreakpoint.
func (s *Supervisor) SetBreakpoint(bp Breakpoint) int {
	id := s.nextBreakpointID
	s.nextBreakpointID++
	bp.ID = id
	s.breakpoints[id] = bp
	return id
}

// UnsetBreakpoint removes a previously registered breakpoint, reporting
// whether it existed.
func (s *Supervisor) UnsetBreakpoint(id int) bool {
	if _, ok := s.breakpoints[id]; !ok {
		return false
	}
	delete(s.breakpoints, id)
	return true
}

// ListBreakpoints returns every registered breakpoint, ordered by ID.
func (s *Supervisor) ListBreakpoints() []Breakpoint {
	out := make([]Breakpoint, 0, len(s.breakpoints))
	for _, bp := range s.breakpoints {
		out = append(out, bp)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// InvokeFunc implements vm.Interceptor: it signals a pause for any call whose
// callee name contains a registered function breakpoint's name; the call
// itself still goes ahead before the run pauses.
func (s *Supervisor) InvokeFunc(name string) (vm.Signal, error) {
	for _, bp := range s.breakpoints {
		if bp.Kind == BreakpointFunction && strings.Contains(name, bp.FunctionName) {
			s.logger.Debug("function breakpoint hit", zap.String("function", name))
			return vm.SignalBreakpoint, nil
		}
	}
	return vm.SignalNext, nil
}

// ExecuteInst implements vm.Interceptor: it signals a pause for the
// instruction at a registered instruction breakpoint's byte offset; that
// instruction still executes before the run pauses.
func (s *Supervisor) ExecuteInst(inst wasm.Instruction) vm.Signal {
	for _, bp := range s.breakpoints {
		if bp.Kind == BreakpointInstruction && uint64(inst.Offset) == bp.InstOffset {
			return vm.SignalBreakpoint
		}
	}
	return vm.SignalNext
}

// AfterStore implements vm.Interceptor. The Supervisor itself does not
// watch memory writes; a composing front-end can still observe them by
// wrapping Supervisor in a vm.MultiInterceptor alongside its own tracer.
func (s *Supervisor) AfterStore(uint64, []byte) (vm.Signal, error) { return vm.SignalNext, nil }

// SelectFrame changes which frame Locals/SelectedInstruction/CurrentFrame
// report on: index is 0-based from the outermost frame, the same order
// Frames returns. Passing -1 resets to the innermost (currently executing)
// frame.
func (s *Supervisor) SelectFrame(index int) error {
	if s.executor == nil {
		return errors.New("debugger: no execution in progress")
	}
	if index == -1 {
		s.selectedFrame = -1
		return nil
	}
	frames := s.executor.Stack().PeekFrames()
	if index < 0 || index >= len(frames) {
		return errors.Errorf("debugger: frame index %d out of range [0,%d)", index, len(frames))
	}
	s.selectedFrame = index
	return nil
}

// frameAt resolves the selected (or innermost, if none selected) frame.
func (s *Supervisor) frameAt() (*vm.CallFrame, bool) {
	if s.executor == nil {
		return nil, false
	}
	frames := s.executor.Stack().PeekFrames()
	if len(frames) == 0 {
		return nil, false
	}
	if s.selectedFrame < 0 {
		return frames[len(frames)-1], true
	}
	if s.selectedFrame >= len(frames) {
		return nil, false
	}
	return frames[s.selectedFrame], true
}

// Frames lists every live activation, outermost first.
func (s *Supervisor) Frames() []FunctionFrame {
	if s.executor == nil {
		return nil
	}
	frames := s.executor.Stack().PeekFrames()
	out := make([]FunctionFrame, len(frames))
	for i, f := range frames {
		out[i] = describeFrame(s.store, f)
	}
	return out
}

func describeFrame(store *vm.Store, f *vm.CallFrame) FunctionFrame {
	name := ""
	argCount := 0
	if fn, ok := store.Funcs.GetGlobal(f.ExecAddr); ok {
		name = fn.Name()
		argCount = len(fn.Type().Params)
	}
	return FunctionFrame{ModuleIndex: f.ModuleIndex, FunctionName: name, ArgumentCount: argCount}
}

// CurrentFrame describes the selected (or innermost) frame.
func (s *Supervisor) CurrentFrame() (FunctionFrame, bool) {
	f, ok := s.frameAt()
	if !ok {
		return FunctionFrame{}, false
	}
	return describeFrame(s.store, f), true
}

// Locals returns the selected frame's local variables (parameters followed
// by declared locals), in declaration order.
func (s *Supervisor) Locals() ([]value.Value, error) {
	f, ok := s.frameAt()
	if !ok {
		return nil, errors.New("debugger: no frame selected")
	}
	out := make([]value.Value, len(f.Locals))
	copy(out, f.Locals)
	return out, nil
}

// StackValues returns every value currently on the operand stack, oldest
// first, regardless of frame — the same flat view
// original_source/crates/debugger exposes for "stack_values".
func (s *Supervisor) StackValues() ([]value.Value, error) {
	if s.executor == nil {
		return nil, errors.New("debugger: no execution in progress")
	}
	return s.executor.Stack().ValuesSince(-1), nil
}

// Memory returns a copy of size bytes at offset in the loaded module's
// memory 0.
func (s *Supervisor) Memory(offset, size uint64) ([]byte, error) {
	if !s.hasModule {
		return nil, errors.New("debugger: no module loaded")
	}
	mems := s.store.Mems.Items(s.moduleIndex)
	if len(mems) == 0 {
		return nil, errors.New("debugger: module has no memory")
	}
	mem, ok := s.store.Mems.GetGlobal(mems[0])
	if !ok {
		return nil, errors.New("debugger: module has no memory")
	}
	buf, ok := (*mem).Load(offset, size)
	if !ok {
		return nil, errors.Errorf("debugger: memory read [%d,%d) out of bounds (size %d)", offset, offset+size, (*mem).DataLen())
	}
	return buf, nil
}

// SelectedInstruction returns the instruction the selected (or innermost)
// frame is about to execute, and the program-counter-relative index it sits
// at within its function's body.
func (s *Supervisor) SelectedInstruction() (wasm.Instruction, int, error) {
	if s.executor == nil {
		return wasm.Instruction{}, 0, errors.New("debugger: no execution in progress")
	}
	f, ok := s.frameAt()
	if !ok {
		return wasm.Instruction{}, 0, errors.New("debugger: no frame selected")
	}
	fn, ok := s.store.Funcs.GetGlobal(f.ExecAddr)
	if !ok || fn.Defined == nil {
		return wasm.Instruction{}, 0, errors.New("debugger: frame's function is not defined")
	}
	pc := s.executor.PC()
	if frames := s.executor.Stack().PeekFrames(); s.selectedFrame >= 0 && s.selectedFrame < len(frames)-1 {
		// A caller frame resumes at the return point its callee recorded.
		ret := frames[s.selectedFrame+1].RetPC
		if ret == nil {
			return wasm.Instruction{}, 0, errors.New("debugger: selected frame has no resume point")
		}
		pc = *ret
	}
	if f.ExecAddr != pc.ExecAddr {
		return wasm.Instruction{}, 0, errors.New("debugger: selected frame is not the currently executing one")
	}
	if pc.InstIndex < 0 || pc.InstIndex >= len(fn.Defined.Instructions) {
		return wasm.Instruction{}, 0, errors.New("debugger: program counter out of range")
	}
	return fn.Defined.Instructions[pc.InstIndex], pc.InstIndex, nil
}
