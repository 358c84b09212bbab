package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasminspect-go/wasminspect/value"
	"github.com/wasminspect-go/wasminspect/wasm"
)

func mustLoad(t *testing.T, store *Store, name string, mod *wasm.Module) ModuleIndex {
	t.Helper()
	idx, err := store.LoadModule(name, mod)
	require.NoError(t, err)
	return idx
}

func exportedGlobal(t *testing.T, store *Store, idx ModuleIndex, name string) FuncGlobalAddress {
	t.Helper()
	mi, ok := store.ModuleAt(idx)
	require.True(t, ok)
	addr, err := mi.Defined.ExportedFunc(name)
	require.NoError(t, err)
	global, ok := store.Funcs.Resolve(addr)
	require.True(t, ok)
	return global
}

func TestExecutorAdd(t *testing.T) {
	mod := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValTypeI32, wasm.ValTypeI32}, Results: []wasm.ValType{wasm.ValTypeI32}}},
		FunctionTypeIndices: []uint32{0},
		Codes: []wasm.Code{{Instructions: []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0},
			{Op: wasm.OpLocalGet, Index: 1},
			{Op: wasm.OpI32Add},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "add", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	store := NewStore(nil)
	idx := mustLoad(t, store, "m", mod)
	global := exportedGlobal(t, store, idx, "add")

	ex := NewExecutor(store, nil)
	results, trap := ex.Call(global, []value.Value{value.I32(3), value.I32(4)})
	require.Nil(t, trap)
	require.Len(t, results, 1)
	assert.Equal(t, int32(7), results[0].I32())
}

func TestExecutorIndirectCallTypeMismatch(t *testing.T) {
	mod := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValTypeI32}, Results: []wasm.ValType{wasm.ValTypeI32}}, // expected at the call site
			{}, // callee's actual (mismatched) type
		},
		FunctionTypeIndices: []uint32{1, 0},
		Codes: []wasm.Code{
			{Instructions: []wasm.Instruction{{Op: wasm.OpEnd}}}, // callee: takes/returns nothing
			{Instructions: []wasm.Instruction{ // main
				{Op: wasm.OpI32Const, I32: 0},
				{Op: wasm.OpCallIndirect, Index: 0, Index2: 0},
				{Op: wasm.OpEnd},
			}},
		},
		Tables: []wasm.TableType{{ElemType: wasm.ValTypeFuncref, Limits: wasm.Limits{Min: 1}}},
		Elements: []wasm.ElementSegment{{
			Mode: wasm.ElemModeActive, TableIndex: 0,
			Offset:  wasm.ConstExpr{Inst: wasm.Instruction{Op: wasm.OpI32Const, I32: 0}},
			RefType: wasm.ValTypeFuncref,
			Funcs:   []uint32{0},
		}},
		Exports: []wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 1}},
	}
	store := NewStore(nil)
	idx := mustLoad(t, store, "m", mod)
	global := exportedGlobal(t, store, idx, "main")

	ex := NewExecutor(store, nil)
	_, trap := ex.Call(global, nil)
	require.NotNil(t, trap)
	_, ok := trap.(TrapIndirectCallTypeMismatch)
	assert.True(t, ok, "expected TrapIndirectCallTypeMismatch, got %T: %v", trap, trap)
}

func TestExecutorDivideByZero(t *testing.T) {
	mod := &wasm.Module{
		Types:               []wasm.FuncType{{Results: []wasm.ValType{wasm.ValTypeI32}}},
		FunctionTypeIndices: []uint32{0},
		Codes: []wasm.Code{{Instructions: []wasm.Instruction{
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpI32Const, I32: 0},
			{Op: wasm.OpI32DivS},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "divzero", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	store := NewStore(nil)
	idx := mustLoad(t, store, "m", mod)
	global := exportedGlobal(t, store, idx, "divzero")

	ex := NewExecutor(store, nil)
	_, trap := ex.Call(global, nil)
	require.NotNil(t, trap)
	_, ok := trap.(TrapIntegerDivisionByZero)
	assert.True(t, ok, "expected TrapIntegerDivisionByZero, got %T: %v", trap, trap)
}

func TestExecutorMemoryOutOfBounds(t *testing.T) {
	mod := &wasm.Module{
		Types:               []wasm.FuncType{{Results: []wasm.ValType{wasm.ValTypeI32}}},
		FunctionTypeIndices: []uint32{0},
		Codes: []wasm.Code{{Instructions: []wasm.Instruction{
			{Op: wasm.OpI32Const, I32: int32(WasmPageSize)}, // exactly past the one allocated page
			{Op: wasm.OpI32Load, Mem: wasm.MemArg{Offset: 0}},
			{Op: wasm.OpEnd},
		}}},
		Memories: []wasm.MemType{{Limits: wasm.Limits{Min: 1}}},
		Exports:  []wasm.Export{{Name: "loadoob", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	store := NewStore(nil)
	idx := mustLoad(t, store, "m", mod)
	global := exportedGlobal(t, store, idx, "loadoob")

	ex := NewExecutor(store, nil)
	_, trap := ex.Call(global, nil)
	require.NotNil(t, trap)
	_, ok := trap.(TrapMemoryAccessOutOfBounds)
	assert.True(t, ok, "expected TrapMemoryAccessOutOfBounds, got %T: %v", trap, trap)
}

// nameBreakInterceptor pauses InvokeFunc when the callee's display name
// matches, leaving every other hook a no-op.
type nameBreakInterceptor struct{ name string }

func (n nameBreakInterceptor) InvokeFunc(name string) (Signal, error) {
	if name == n.name {
		return SignalBreakpoint, nil
	}
	return SignalNext, nil
}
func (nameBreakInterceptor) ExecuteInst(wasm.Instruction) Signal       { return SignalNext }
func (nameBreakInterceptor) AfterStore(uint64, []byte) (Signal, error) { return SignalNext, nil }

func TestExecutorBreakpointByFunctionName(t *testing.T) {
	mod := &wasm.Module{
		Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValTypeI32}}},
		FunctionTypeIndices: []uint32{0, 0},
		Codes: []wasm.Code{
			{Instructions: []wasm.Instruction{{Op: wasm.OpI32Const, I32: 1}, {Op: wasm.OpEnd}}}, // callee
			{Instructions: []wasm.Instruction{{Op: wasm.OpCall, Index: 0}, {Op: wasm.OpEnd}}},    // main
		},
		Exports:   []wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 1}},
		FuncNames: map[uint32]string{0: "callee"},
	}
	store := NewStore(nil)
	idx := mustLoad(t, store, "m", mod)
	global := exportedGlobal(t, store, idx, "main")

	ex := NewExecutor(store, nameBreakInterceptor{name: "callee"})
	mainFn, ok := store.Funcs.GetGlobal(global)
	require.True(t, ok)
	require.True(t, ex.pushDefinedCall(*mainFn.Defined, global, nil, nil))

	var sawBreakpoint bool
	for i := 0; i < 10 && !ex.stack.IsOverTopLevel(); i++ {
		sig, trap := ex.Step()
		require.Nil(t, trap)
		if sig == SignalBreakpoint {
			sawBreakpoint = true
		}
	}
	assert.True(t, sawBreakpoint, "expected a breakpoint signal when invoking %q", "callee")
}

func TestExecutorHostCallAdvancesPastCallInstruction(t *testing.T) {
	// Regression test: a call to a host function must not leave the
	// program counter stuck on the call instruction (host calls never
	// push a new activation, so the step loop has to advance pc itself).
	mod := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValTypeI32}, Results: []wasm.ValType{wasm.ValTypeI32}}},
		Imports: []wasm.Import{{Module: "env", Field: "inc", Kind: wasm.ExternKindFunc, FuncTypeIndex: 0}},
		FunctionTypeIndices: []uint32{0},
		Codes: []wasm.Code{{Instructions: []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0},
			{Op: wasm.OpCall, Index: 0},
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpI32Add},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 1}},
	}
	store := NewStore(nil)
	store.RegisterHostModule("env", map[string]HostValue{
		"inc": HostFunc("env", "inc", wasm.FuncType{Params: []wasm.ValType{wasm.ValTypeI32}, Results: []wasm.ValType{wasm.ValTypeI32}},
			func(args []value.Value, results *[]value.Value, ctx HostContext) error {
				*results = append(*results, value.I32(args[0].I32()+10))
				return nil
			}),
	})
	idx := mustLoad(t, store, "caller", mod)
	global := exportedGlobal(t, store, idx, "main")

	ex := NewExecutor(store, nil)
	results, trap := ex.Call(global, []value.Value{value.I32(5)})
	require.Nil(t, trap)
	require.Len(t, results, 1)
	assert.Equal(t, int32(16), results[0].I32(), "5 -> host inc -> 15 -> +1 -> 16")
}
