package vm

import "fmt"

// Trap is the closed taxonomy of runtime faults the executor can raise.
// Every concrete trap type below implements Trap; a type switch on the
// concrete type is how callers discriminate, matching spec.md §7's "closed
// trap taxonomy" requirement. Grounded on the Trap enum of
// original_source/crates/vm/src/executor.rs.
type Trap interface {
	error
	trap()
}

type trapBase struct{}

func (trapBase) trap() {}

// TrapUnreachable is raised by the unreachable instruction.
type TrapUnreachable struct{ trapBase }

func (TrapUnreachable) Error() string { return "unreachable executed" }

// TrapMemoryAccessOutOfBounds is raised by a load/store whose effective
// address range exceeds the memory's current size.
type TrapMemoryAccessOutOfBounds struct {
	trapBase
	Access     uint64
	MemorySize uint64
}

func (t TrapMemoryAccessOutOfBounds) Error() string {
	return fmt.Sprintf("out of bounds memory access: tried to access %d, memory size is %d", t.Access, t.MemorySize)
}

// TrapMemoryAddrOverflow is raised when base+offset overflows before any
// bounds check.
type TrapMemoryAddrOverflow struct {
	trapBase
	Base   uint64
	Offset uint64
}

func (t TrapMemoryAddrOverflow) Error() string {
	return fmt.Sprintf("memory address overflow: base %d + offset %d", t.Base, t.Offset)
}

// TrapTableAccessOutOfBounds is raised by a table op whose index range
// exceeds the table's current size.
type TrapTableAccessOutOfBounds struct {
	trapBase
	Access    uint64
	TableSize uint64
}

func (t TrapTableAccessOutOfBounds) Error() string {
	return fmt.Sprintf("out of bounds table access: tried to access %d, table size is %d", t.Access, t.TableSize)
}

// TrapUninitializedElement names a null table slot where a function
// reference is required. No executor path raises it: call_indirect on a null
// slot raises TrapUndefinedFunc, and table.get pushes the null reference.
type TrapUninitializedElement struct {
	trapBase
	Index uint64
}

func (t TrapUninitializedElement) Error() string {
	return fmt.Sprintf("uninitialized element at index %d", t.Index)
}

// TrapElementTypeMismatch is raised when a table element's reference type
// does not match what the operation expected.
type TrapElementTypeMismatch struct {
	trapBase
	Expected, Actual string
}

func (t TrapElementTypeMismatch) Error() string {
	return fmt.Sprintf("element type mismatch: expected %s, got %s", t.Expected, t.Actual)
}

// TrapStackError is raised on an empty pop, a pop type mismatch, or call
// stack overflow.
type TrapStackError struct {
	trapBase
	Reason string
}

func (t TrapStackError) Error() string { return "stack error: " + t.Reason }

// TrapIntegerDivisionByZero is raised by div_s/div_u/rem_s/rem_u with a
// zero divisor.
type TrapIntegerDivisionByZero struct{ trapBase }

func (TrapIntegerDivisionByZero) Error() string { return "integer divide by zero" }

// TrapIntegerOverflow is raised by signed division overflow
// (MIN / -1) or a trapping float-to-int conversion outside the target
// range.
type TrapIntegerOverflow struct{ trapBase }

func (TrapIntegerOverflow) Error() string { return "integer overflow" }

// TrapInvalidConversionToInt is raised by a trapping float-to-int
// conversion of NaN.
type TrapInvalidConversionToInt struct{ trapBase }

func (TrapInvalidConversionToInt) Error() string { return "invalid conversion to integer" }

// TrapIndirectCallTypeMismatch is raised by call_indirect when the callee's
// actual signature doesn't match the declared one.
type TrapIndirectCallTypeMismatch struct {
	trapBase
	CalleeName       string
	Expected, Actual string
}

func (t TrapIndirectCallTypeMismatch) Error() string {
	return fmt.Sprintf("indirect call type mismatch: %s expected %s, got %s", t.CalleeName, t.Expected, t.Actual)
}

// TrapDirectCallTypeMismatch is raised by call when the declared argument
// types don't match what the stack actually holds.
type TrapDirectCallTypeMismatch struct {
	trapBase
	CalleeName       string
	Expected, Actual string
}

func (t TrapDirectCallTypeMismatch) Error() string {
	return fmt.Sprintf("direct call type mismatch: %s expected %s, got %s", t.CalleeName, t.Expected, t.Actual)
}

// TrapUndefinedFunc is raised by call_indirect on a null table slot.
type TrapUndefinedFunc struct {
	trapBase
	Index uint64
}

func (t TrapUndefinedFunc) Error() string { return fmt.Sprintf("undefined function at index %d", t.Index) }

// TrapUnexpectedStackValueType is raised when a pop's static type
// expectation doesn't match the stack's actual value.
type TrapUnexpectedStackValueType struct {
	trapBase
	Expected, Actual string
}

func (t TrapUnexpectedStackValueType) Error() string {
	return fmt.Sprintf("unexpected stack value type: expected %s, got %s", t.Expected, t.Actual)
}

// TrapHostFunctionError wraps an error returned by a host function body.
// The structured cause is recoverable with errors.Unwrap/errors.As through
// the Unwrap method, resolving spec.md §9's open question in favor of a
// structured channel. github.com/pkg/errors' errors.Cause does not see
// through it, as the type has no Cause method.
type TrapHostFunctionError struct {
	trapBase
	Cause error
}

func (t TrapHostFunctionError) Error() string { return "host function error: " + t.Cause.Error() }
func (t TrapHostFunctionError) Unwrap() error { return t.Cause }

// TrapNoMoreInstruction is raised if the executor's program counter runs
// past the end of a function body without encountering the matching `end` —
// a decoding or stack-bookkeeping invariant violation, never expected in a
// well-formed module.
type TrapNoMoreInstruction struct{ trapBase }

func (TrapNoMoreInstruction) Error() string { return "no more instructions" }
