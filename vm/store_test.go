package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasminspect-go/wasminspect/value"
	"github.com/wasminspect-go/wasminspect/wasm"
)

func TestLoadModuleRollsBackOnUnknownImport(t *testing.T) {
	mod := &wasm.Module{
		Imports: []wasm.Import{{Module: "nope", Field: "missing", Kind: wasm.ExternKindFunc, FuncTypeIndex: 0}},
		Types:   []wasm.FuncType{{}},
	}
	store := NewStore(nil)

	_, err := store.LoadModule("m", mod)
	require.Error(t, err)
	assert.Empty(t, store.Modules, "a failed load must not register a module")
	assert.True(t, store.Funcs.IsEmpty(0), "a failed load must leave no dangling local slots")
}

func TestLoadModuleLinksHostFunctionImport(t *testing.T) {
	store := NewStore(nil)
	store.RegisterHostModule("env", map[string]HostValue{
		"inc": HostFunc("env", "inc", wasm.FuncType{Params: []wasm.ValType{wasm.ValTypeI32}, Results: []wasm.ValType{wasm.ValTypeI32}},
			func(args []value.Value, results *[]value.Value, ctx HostContext) error {
				*results = append(*results, value.I32(args[0].I32()+1))
				return nil
			}),
	})

	mod := &wasm.Module{
		Types:               []wasm.FuncType{{Params: []wasm.ValType{wasm.ValTypeI32}, Results: []wasm.ValType{wasm.ValTypeI32}}},
		Imports:             []wasm.Import{{Module: "env", Field: "inc", Kind: wasm.ExternKindFunc, FuncTypeIndex: 0}},
		FunctionTypeIndices: []uint32{0},
		Codes: []wasm.Code{{Instructions: []wasm.Instruction{
			{Op: wasm.OpLocalGet, Index: 0},
			{Op: wasm.OpCall, Index: 0},
			{Op: wasm.OpEnd},
		}}},
		Exports: []wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 1}},
	}
	idx, err := store.LoadModule("caller", mod)
	require.NoError(t, err)

	mi, ok := store.ModuleAt(idx)
	require.True(t, ok)
	addr, err := mi.Defined.ExportedFunc("main")
	require.NoError(t, err)
	global, ok := store.Funcs.Resolve(addr)
	require.True(t, ok)

	ex := NewExecutor(store, nil)
	results, trap := ex.Call(global, []value.Value{value.I32(41)})
	require.Nil(t, trap)
	require.Len(t, results, 1)
	assert.Equal(t, int32(42), results[0].I32())
}

func TestLoadModuleRejectsImportTypeMismatch(t *testing.T) {
	store := NewStore(nil)
	store.RegisterHostModule("env", map[string]HostValue{
		"f": HostFunc("env", "f", wasm.FuncType{Results: []wasm.ValType{wasm.ValTypeI32}}, func(args []value.Value, results *[]value.Value, ctx HostContext) error {
			*results = append(*results, value.I32(0))
			return nil
		}),
	})
	mod := &wasm.Module{
		Types:   []wasm.FuncType{{Params: []wasm.ValType{wasm.ValTypeI32}}}, // wrong shape: host export takes no params, returns i32
		Imports: []wasm.Import{{Module: "env", Field: "f", Kind: wasm.ExternKindFunc, FuncTypeIndex: 0}},
	}
	_, err := store.LoadModule("caller", mod)
	assert.Error(t, err)
}

func TestLoadModuleStartFunctionTrap(t *testing.T) {
	start := uint32(0)
	mod := &wasm.Module{
		Types:               []wasm.FuncType{{}},
		FunctionTypeIndices: []uint32{0},
		Codes:               []wasm.Code{{Instructions: []wasm.Instruction{{Op: wasm.OpUnreachable}, {Op: wasm.OpEnd}}}},
		Start:               &start,
	}
	store := NewStore(nil)
	_, err := store.LoadModule("m", mod)
	require.Error(t, err, "a trapping start function must fail the load")

	var failed FailedEntryFunction
	require.ErrorAs(t, err, &failed)
	_, ok := failed.Trap.(TrapUnreachable)
	assert.True(t, ok, "expected TrapUnreachable, got %T: %v", failed.Trap, failed.Trap)

	assert.Empty(t, store.Modules, "a failed load must not register a module")
}

func TestRegisterHostModuleExposesMemory(t *testing.T) {
	store := NewStore(nil)
	mem := NewMemoryInstance(1, nil)
	store.RegisterHostModule("env", map[string]HostValue{
		"mem": {Kind: wasm.ExternKindMemory, Memory: mem},
	})
	idx, ok := store.ModuleByName("env")
	require.True(t, ok)
	mi, ok := store.ModuleAt(idx)
	require.True(t, ok)
	exp, ok := mi.Host.ExportedByName("mem")
	require.True(t, ok)
	global, ok := store.Mems.Resolve(exp.Memory)
	require.True(t, ok)
	got, ok := store.Mems.GetGlobal(global)
	require.True(t, ok)
	assert.Same(t, mem, *got)
}

func TestLoadModuleRejectsIncompatibleMemoryMax(t *testing.T) {
	store := NewStore(nil)
	declaredMax := uint32(2)
	store.RegisterHostModule("env", map[string]HostValue{
		"mem": {Kind: wasm.ExternKindMemory, Memory: NewMemoryInstance(1, nil)}, // no actual max
	})
	mod := &wasm.Module{
		Imports: []wasm.Import{{
			Module: "env", Field: "mem", Kind: wasm.ExternKindMemory,
			Memory: wasm.MemType{Limits: wasm.Limits{Min: 1, Max: &declaredMax}},
		}},
	}
	_, err := store.LoadModule("m", mod)
	var incompatible IncompatibleImportMemory
	require.ErrorAs(t, err, &incompatible)
}

func TestLoadModuleAcceptsCompatibleMemoryMax(t *testing.T) {
	store := NewStore(nil)
	declaredMax := uint32(4)
	actualMax := uint32(2)
	store.RegisterHostModule("env", map[string]HostValue{
		"mem": {Kind: wasm.ExternKindMemory, Memory: NewMemoryInstance(1, &actualMax)},
	})
	mod := &wasm.Module{
		Imports: []wasm.Import{{
			Module: "env", Field: "mem", Kind: wasm.ExternKindMemory,
			Memory: wasm.MemType{Limits: wasm.Limits{Min: 1, Max: &declaredMax}},
		}},
	}
	_, err := store.LoadModule("m", mod)
	require.NoError(t, err, "actual max %d is within declared max %d", actualMax, declaredMax)
}

func TestLoadModuleUndefinedImport(t *testing.T) {
	store := NewStore(nil)
	mod := &wasm.Module{
		Imports: []wasm.Import{{Module: "env", Field: "missing", Kind: wasm.ExternKindGlobal}},
	}
	_, err := store.LoadModule("m", mod)
	var undefined UndefinedImportGlobal
	require.ErrorAs(t, err, &undefined)
}

type fakeWasiContext struct{ exitCode uint32 }

func TestStoreEmbedContextRoundTrip(t *testing.T) {
	store := NewStore(nil)

	_, ok := GetEmbedContext[fakeWasiContext](store)
	assert.False(t, ok, "must report missing before any context is added")

	AddEmbedContext(store, fakeWasiContext{exitCode: 7})
	got, ok := GetEmbedContext[fakeWasiContext](store)
	require.True(t, ok)
	assert.Equal(t, uint32(7), got.exitCode)

	AddEmbedContext(store, fakeWasiContext{exitCode: 9})
	got, ok = GetEmbedContext[fakeWasiContext](store)
	require.True(t, ok)
	assert.Equal(t, uint32(9), got.exitCode, "a second Add for the same type replaces the first")
}
