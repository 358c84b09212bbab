package vm

import "github.com/wasminspect-go/wasminspect/wasm"

// ExternalValue is whichever kind of address an export or import resolves
// to. Exactly one field is valid, selected by Kind.
type ExternalValue struct {
	Kind   wasm.ExternKind
	Func   FuncAddress
	Table  TableAddress
	Memory MemoryAddress
	Global GlobalAddr
}

// ExportInstance names one exported entity of a module instance.
type ExportInstance struct {
	Name  string
	Value ExternalValue
}
