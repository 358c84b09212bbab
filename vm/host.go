package vm

import "github.com/wasminspect-go/wasminspect/wasm"

// HostValue is one entry a caller supplies to Store.RegisterHostModule: the
// kind tag selects which of the four fields is populated. Grounded on
// original_source/crates/vm/src/host.rs.
type HostValue struct {
	Kind   wasm.ExternKind
	Func   *HostFunctionInstance
	Memory *MemoryInstance
	Table  *TableInstance
	Global *GlobalInstance
}

// HostFunc is a convenience constructor for a HostValue wrapping a Go
// function body under the given signature.
func HostFunc(moduleName, fieldName string, ty wasm.FuncType, body HostFuncBody) HostValue {
	return HostValue{Kind: wasm.ExternKindFunc, Func: &HostFunctionInstance{
		Type: ty, ModuleName: moduleName, FieldName: fieldName, Code: body,
	}}
}
