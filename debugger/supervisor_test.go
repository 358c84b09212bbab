package debugger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasminspect-go/wasminspect/wasm"
)

func addCalleeModule() *wasm.Module {
	return &wasm.Module{
		Types:               []wasm.FuncType{{}, {Results: []wasm.ValType{wasm.ValTypeI32}}},
		FunctionTypeIndices: []uint32{0, 1},
		Codes: []wasm.Code{
			{Instructions: []wasm.Instruction{ // callee: no-op
				{Op: wasm.OpNop, Offset: 100},
				{Op: wasm.OpEnd, Offset: 101},
			}},
			{Instructions: []wasm.Instruction{ // main: 1 + (callee) + 2
				{Op: wasm.OpI32Const, I32: 1, Offset: 10},
				{Op: wasm.OpCall, Index: 0, Offset: 11},
				{Op: wasm.OpI32Const, I32: 2, Offset: 12},
				{Op: wasm.OpI32Add, Offset: 13},
				{Op: wasm.OpEnd, Offset: 14},
			}},
		},
		Exports:   []wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 1}},
		FuncNames: map[uint32]string{0: "callee", 1: "main"},
	}
}

func TestSupervisorRunFinishes(t *testing.T) {
	sup := NewSupervisor(Options{})
	require.NoError(t, sup.LoadModule("m", addCalleeModule()))

	res, err := sup.Run("main")
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.False(t, sup.IsRunning())
	require.Len(t, res.Values, 1)
	assert.Equal(t, int32(3), res.Values[0].I32())
}

func TestSupervisorRunWithNoModuleLoaded(t *testing.T) {
	sup := NewSupervisor(Options{})
	_, err := sup.Run("main")
	assert.Error(t, err)
}

func TestSupervisorFunctionBreakpointThenProcess(t *testing.T) {
	sup := NewSupervisor(Options{})
	require.NoError(t, sup.LoadModule("m", addCalleeModule()))
	sup.SetBreakpoint(FunctionBreakpoint("callee"))

	res, err := sup.Run("main")
	require.NoError(t, err)
	assert.True(t, res.Breakpoint)
	assert.True(t, sup.IsRunning())

	res, err = sup.Process()
	require.NoError(t, err)
	assert.True(t, res.Finished)
	require.Len(t, res.Values, 1)
	assert.Equal(t, int32(3), res.Values[0].I32())
}

func TestSupervisorBreakpointManagement(t *testing.T) {
	sup := NewSupervisor(Options{})
	id1 := sup.SetBreakpoint(FunctionBreakpoint("callee"))
	id2 := sup.SetBreakpoint(InstructionBreakpoint(12))

	list := sup.ListBreakpoints()
	require.Len(t, list, 2)
	assert.Equal(t, id1, list[0].ID)
	assert.Equal(t, id2, list[1].ID)

	assert.True(t, sup.UnsetBreakpoint(id1))
	assert.False(t, sup.UnsetBreakpoint(id1), "removing twice must report false, not panic")
	assert.Len(t, sup.ListBreakpoints(), 1)
}

func TestSupervisorStepInstOverSkipsCallBody(t *testing.T) {
	sup := NewSupervisor(Options{})
	require.NoError(t, sup.LoadModule("m", addCalleeModule()))
	sup.SetBreakpoint(InstructionBreakpoint(10)) // main's first instruction

	res, err := sup.Run("main")
	require.NoError(t, err)
	require.True(t, res.Breakpoint)

	frame, ok := sup.CurrentFrame()
	require.True(t, ok)
	assert.Equal(t, "main", frame.FunctionName)

	// One StepInstOver must execute the call instruction and run callee to
	// completion without pausing inside it (no breakpoint in callee).
	res, err = sup.Step(StepInstOver)
	require.NoError(t, err)
	assert.False(t, res.Finished)
	assert.False(t, res.Breakpoint)
	assert.Nil(t, res.Trap)

	inst, _, err := sup.SelectedInstruction()
	require.NoError(t, err)
	assert.Equal(t, wasm.OpI32Const, inst.Op, "should have stepped back to main, not stopped inside callee")

	res, err = sup.Process()
	require.NoError(t, err)
	assert.True(t, res.Finished)
	require.Len(t, res.Values, 1)
	assert.Equal(t, int32(3), res.Values[0].I32())
}

func TestSupervisorLocalsAndFrames(t *testing.T) {
	mod := &wasm.Module{
		Types:               []wasm.FuncType{{Params: []wasm.ValType{wasm.ValTypeI32}}},
		FunctionTypeIndices: []uint32{0},
		Codes: []wasm.Code{{Instructions: []wasm.Instruction{
			{Op: wasm.OpNop, Offset: 0},
			{Op: wasm.OpEnd, Offset: 1},
		}}},
		Exports:   []wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 0}},
		FuncNames: map[uint32]string{0: "main"},
	}
	sup := NewSupervisor(Options{})
	require.NoError(t, sup.LoadModule("m", mod))
	sup.SetBreakpoint(InstructionBreakpoint(0))

	res, err := sup.Run("main")
	require.NoError(t, err)
	require.True(t, res.Breakpoint)

	frames := sup.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "main", frames[0].FunctionName)

	locals, err := sup.Locals()
	require.NoError(t, err)
	require.Len(t, locals, 1)

	vals, err := sup.StackValues()
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestSupervisorRunReportsTrap(t *testing.T) {
	mod := &wasm.Module{
		Types:               []wasm.FuncType{{}},
		FunctionTypeIndices: []uint32{0},
		Codes:               []wasm.Code{{Instructions: []wasm.Instruction{{Op: wasm.OpUnreachable}, {Op: wasm.OpEnd}}}},
		Exports:             []wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	sup := NewSupervisor(Options{})
	require.NoError(t, sup.LoadModule("m", mod))

	res, err := sup.Run("main")
	require.NoError(t, err)
	require.NotNil(t, res.Trap)
	assert.False(t, sup.IsRunning())
}

func TestSupervisorSelectFrame(t *testing.T) {
	sup := NewSupervisor(Options{})
	require.NoError(t, sup.LoadModule("m", addCalleeModule()))
	sup.SetBreakpoint(InstructionBreakpoint(100)) // callee's first instruction

	res, err := sup.Run("main")
	require.NoError(t, err)
	require.True(t, res.Breakpoint)

	frames := sup.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "main", frames[0].FunctionName)
	assert.Equal(t, "callee", frames[1].FunctionName)

	require.NoError(t, sup.SelectFrame(0))
	frame, ok := sup.CurrentFrame()
	require.True(t, ok)
	assert.Equal(t, "main", frame.FunctionName)

	require.Error(t, sup.SelectFrame(5))

	require.NoError(t, sup.SelectFrame(-1))
	frame, ok = sup.CurrentFrame()
	require.True(t, ok)
	assert.Equal(t, "callee", frame.FunctionName)
}
