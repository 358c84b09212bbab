package vm

import "github.com/wasminspect-go/wasminspect/wasm"

// Signal is what an Interceptor hook tells the executor to do after it
// returns. Grounded on original_source/crates/vm/src/interceptor.rs.
type Signal byte

const (
	// SignalNext lets execution continue normally.
	SignalNext Signal = iota
	// SignalBreakpoint pauses execution once the step that raised it has
	// completed; that step still runs in full, and control flow is not
	// otherwise altered.
	SignalBreakpoint
	// SignalEnd terminates the run immediately.
	SignalEnd
)

// combine implements the blending rule "End wins over Breakpoint wins over
// Next" (spec.md §6): the executor ORs together every hook's signal for a
// step using this, so a single breakpoint or end request is never masked by
// an unrelated Next from another hook.
func combine(a, b Signal) Signal {
	if a == SignalEnd || b == SignalEnd {
		return SignalEnd
	}
	if a == SignalBreakpoint || b == SignalBreakpoint {
		return SignalBreakpoint
	}
	return SignalNext
}

// Interceptor observes the executor's progress and can request it pause or
// stop. All three hooks are optional; NopInterceptor implements all of them
// as no-ops returning SignalNext.
type Interceptor interface {
	// InvokeFunc is called before a call or call_indirect instruction
	// transfers control, and before any host function body runs, named by
	// the callee's display name. Entering a defined function through
	// Executor.Call or Executor.Prepare (as for a start function) does not
	// call it. A non-nil error aborts the call as TrapHostFunctionError.
	InvokeFunc(name string) (Signal, error)
	// ExecuteInst is called before each instruction executes.
	ExecuteInst(inst wasm.Instruction) Signal
	// AfterStore is called after a memory store instruction commits,
	// naming the byte address and the bytes written. A non-nil error
	// aborts as TrapHostFunctionError.
	AfterStore(addr uint64, bytes []byte) (Signal, error)
}

// NopInterceptor is the default Interceptor: it never pauses or aborts.
type NopInterceptor struct{}

func (NopInterceptor) InvokeFunc(string) (Signal, error)            { return SignalNext, nil }
func (NopInterceptor) ExecuteInst(wasm.Instruction) Signal          { return SignalNext }
func (NopInterceptor) AfterStore(uint64, []byte) (Signal, error)    { return SignalNext, nil }

// MultiInterceptor blends several interceptors into one using the
// End-over-Breakpoint-over-Next rule, so e.g. a debugger's breakpoint
// interceptor and a tracing interceptor can run side by side.
type MultiInterceptor []Interceptor

func (m MultiInterceptor) InvokeFunc(name string) (Signal, error) {
	sig := SignalNext
	for _, i := range m {
		s, err := i.InvokeFunc(name)
		if err != nil {
			return SignalEnd, err
		}
		sig = combine(sig, s)
	}
	return sig, nil
}

func (m MultiInterceptor) ExecuteInst(inst wasm.Instruction) Signal {
	sig := SignalNext
	for _, i := range m {
		sig = combine(sig, i.ExecuteInst(inst))
	}
	return sig
}

func (m MultiInterceptor) AfterStore(addr uint64, bytes []byte) (Signal, error) {
	sig := SignalNext
	for _, i := range m {
		s, err := i.AfterStore(addr, bytes)
		if err != nil {
			return SignalEnd, err
		}
		sig = combine(sig, s)
	}
	return sig, nil
}
