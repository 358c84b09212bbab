package vm

import (
	"github.com/pkg/errors"
	"github.com/wasminspect-go/wasminspect/wasm"
)

// ModuleInstance is either a defined (loaded from a Wasm binary) or host
// (Go-registered) module. Exactly one of Defined/Host is non-nil.
//
// Grounded on original_source/crates/vm/src/module.rs.
type ModuleInstance struct {
	Defined *DefinedModuleInstance
	Host    *HostModuleInstance
}

// DefinedModuleInstance holds a loaded module's type section, its exports,
// and its optional start function.
type DefinedModuleInstance struct {
	Index     ModuleIndex
	Types     []wasm.FuncType
	Exports   []ExportInstance
	StartFunc *FuncAddress
}

// ErrExportKindMismatch is returned by the typed export lookups below when
// the named export exists but is not of the requested kind.
var ErrExportKindMismatch = errors.New("vm: export kind mismatch")

// ErrExportNotFound is returned by the typed export lookups below when no
// export with the requested name exists at all.
var ErrExportNotFound = errors.New("vm: export not found")

// ExportedByName finds an export by name, regardless of kind.
func (m *DefinedModuleInstance) ExportedByName(name string) (*ExportInstance, bool) {
	for i := range m.Exports {
		if m.Exports[i].Name == name {
			return &m.Exports[i], true
		}
	}
	return nil, false
}

// ExportedFunc resolves a function export by name.
func (m *DefinedModuleInstance) ExportedFunc(name string) (FuncAddress, error) {
	exp, ok := m.ExportedByName(name)
	if !ok {
		return FuncAddress{}, errors.Wrapf(ErrExportNotFound, "func %q", name)
	}
	if exp.Value.Kind != wasm.ExternKindFunc {
		return FuncAddress{}, ErrExportKindMismatch
	}
	return exp.Value.Func, nil
}

// ExportedGlobal resolves a global export by name.
func (m *DefinedModuleInstance) ExportedGlobal(name string) (GlobalAddr, error) {
	exp, ok := m.ExportedByName(name)
	if !ok {
		return GlobalAddr{}, errors.Wrapf(ErrExportNotFound, "global %q", name)
	}
	if exp.Value.Kind != wasm.ExternKindGlobal {
		return GlobalAddr{}, ErrExportKindMismatch
	}
	return exp.Value.Global, nil
}

// ExportedTable resolves a table export by name.
func (m *DefinedModuleInstance) ExportedTable(name string) (TableAddress, error) {
	exp, ok := m.ExportedByName(name)
	if !ok {
		return TableAddress{}, errors.Wrapf(ErrExportNotFound, "table %q", name)
	}
	if exp.Value.Kind != wasm.ExternKindTable {
		return TableAddress{}, ErrExportKindMismatch
	}
	return exp.Value.Table, nil
}

// ExportedMemory resolves a memory export by name.
func (m *DefinedModuleInstance) ExportedMemory(name string) (MemoryAddress, error) {
	exp, ok := m.ExportedByName(name)
	if !ok {
		return MemoryAddress{}, errors.Wrapf(ErrExportNotFound, "memory %q", name)
	}
	if exp.Value.Kind != wasm.ExternKindMemory {
		return MemoryAddress{}, ErrExportKindMismatch
	}
	return exp.Value.Memory, nil
}

// GetType returns the function type at index i in the module's type section.
func (m *DefinedModuleInstance) GetType(i uint32) (wasm.FuncType, bool) {
	if int(i) >= len(m.Types) {
		return wasm.FuncType{}, false
	}
	return m.Types[i], true
}

// HostModuleInstance is a Go-registered module: field name -> host export.
type HostModuleInstance struct {
	Index   ModuleIndex
	Name    string
	Exports map[string]ExternalValue
}

// ExportedByName finds a host export by field name.
func (h *HostModuleInstance) ExportedByName(name string) (ExternalValue, bool) {
	v, ok := h.Exports[name]
	return v, ok
}
