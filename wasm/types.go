// Package wasm decodes the Wasm binary module format into the structural
// types the store and executor consume: types, imports/exports, function
// bodies as flat decoded instruction sequences carrying their original byte
// offsets, tables/memories/globals, and the element/data/name sections.
//
// Section order and what each collects is grounded on
// original_source/crates/vm/src/store.rs's load_parity_module_internal, and
// instruction decoding on original_source/crates/vm/src/inst.rs.
package wasm

import (
	"strings"

	"github.com/wasminspect-go/wasminspect/value"
)

// ValType is a Wasm value type as it appears in the binary format.
type ValType byte

const (
	ValTypeI32       ValType = 0x7f
	ValTypeI64       ValType = 0x7e
	ValTypeF32       ValType = 0x7d
	ValTypeF64       ValType = 0x7c
	ValTypeFuncref   ValType = 0x70
	ValTypeExternref ValType = 0x6f
)

// ToValueType converts a binary value type into the runtime Type tag.
func (t ValType) ToValueType() value.Type {
	switch t {
	case ValTypeI32:
		return value.TypeI32
	case ValTypeI64:
		return value.TypeI64
	case ValTypeF32:
		return value.TypeF32
	case ValTypeF64:
		return value.TypeF64
	default:
		return value.TypeRef
	}
}

// IsRefType reports whether t is funcref or externref.
func (t ValType) IsRefType() bool { return t == ValTypeFuncref || t == ValTypeExternref }

// RefType converts a funcref/externref ValType to value.RefType.
func (t ValType) RefType() value.RefType {
	if t == ValTypeExternref {
		return value.RefTypeExtern
	}
	return value.RefTypeFunc
}

func (t ValType) String() string {
	switch t {
	case ValTypeI32:
		return "i32"
	case ValTypeI64:
		return "i64"
	case ValTypeF32:
		return "f32"
	case ValTypeF64:
		return "f64"
	case ValTypeFuncref:
		return "funcref"
	case ValTypeExternref:
		return "externref"
	default:
		return "unknown"
	}
}

// FuncType is a function signature: parameter and result value types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two function types have identical parameter and
// result lists, used for import and call_indirect type checks.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// String renders a function type in the conventional (params) -> (results)
// shorthand, used in import/call_indirect type-mismatch error messages.
func (f FuncType) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	results := make([]string, len(f.Results))
	for i, r := range f.Results {
		results[i] = r.String()
	}
	return "(" + strings.Join(params, ", ") + ") -> (" + strings.Join(results, ", ") + ")"
}

// Limits describes the min/max page (table or memory) bounds of a resizable
// instance.
type Limits struct {
	Min uint32
	Max *uint32 // nil means unbounded
}

// TableType is a table's element type plus its size limits.
type TableType struct {
	ElemType ValType // ValTypeFuncref or ValTypeExternref
	Limits   Limits
}

// MemType is a memory's size limits, in 64KiB pages.
type MemType struct {
	Limits Limits
}

// GlobalType is a global's value type plus its mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// ExternKind tags what kind of entity an import or export refers to.
type ExternKind byte

const (
	ExternKindFunc ExternKind = iota
	ExternKindTable
	ExternKindMemory
	ExternKindGlobal
)

func (k ExternKind) String() string {
	switch k {
	case ExternKindFunc:
		return "func"
	case ExternKindTable:
		return "table"
	case ExternKindMemory:
		return "memory"
	case ExternKindGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Import is a single entry of the import section.
type Import struct {
	Module string
	Field  string
	Kind   ExternKind
	// Exactly one of the following is populated, selected by Kind.
	FuncTypeIndex uint32
	Table         TableType
	Memory        MemType
	Global        GlobalType
}

// Export is a single entry of the export section.
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32 // index into the kind-specific space (own + imported)
}

// GlobalDecl is an own (non-imported) global: its type plus a one-instruction
// constant initializer expression.
type GlobalDecl struct {
	Type GlobalType
	Init ConstExpr
}

// ConstExpr is a decoded constant initializer expression: exactly one
// instruction, per the Wasm spec's restriction on init-expr shape.
type ConstExpr struct {
	Inst Instruction
}

// ElemMode distinguishes the three kinds of element segment.
type ElemMode byte

const (
	ElemModeActive ElemMode = iota
	ElemModePassive
	ElemModeDeclarative
)

// ElementSegment is a decoded entry of the element section.
type ElementSegment struct {
	Mode       ElemMode
	TableIndex uint32    // valid when Mode == ElemModeActive
	Offset     ConstExpr // valid when Mode == ElemModeActive
	RefType    ValType
	// Funcs holds a function index per element when every element is a bare
	// function index (the common encoding); Exprs holds a const-expr per
	// element otherwise (ref.func/ref.null element expressions).
	Funcs []uint32
	Exprs []ConstExpr
}

// DataMode distinguishes active and passive data segments.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// DataSegment is a decoded entry of the data section.
type DataSegment struct {
	Mode        DataMode
	MemoryIndex uint32
	Offset      ConstExpr
	Bytes       []byte
}

// Code is a decoded function body: its locals (by count and type) and its
// flat instruction sequence.
type Code struct {
	Locals       []ValType // one entry per local slot, expanded from the run-length encoding
	Instructions []Instruction
}

// Module is the fully decoded contents of one Wasm binary, prior to
// instantiation. The store turns this into a ModuleInstance.
type Module struct {
	Types   []FuncType
	Imports []Import

	// FunctionTypeIndices has one entry per own (non-imported) function, its
	// index into Types.
	FunctionTypeIndices []uint32
	Codes               []Code

	Tables  []TableType
	Memories []MemType
	Globals []GlobalDecl

	Exports []Export
	Start   *uint32

	Elements []ElementSegment
	Data     []DataSegment

	// FuncNames maps a function index in the combined (imported + own)
	// function index space to its custom-name-section name, when present.
	FuncNames map[uint32]string
}

// NumImportedFuncs reports how many of Imports are functions, i.e. the base
// offset own function indices start at in the combined function index space.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternKindFunc {
			n++
		}
	}
	return n
}

// NumImportedTables, NumImportedMemories, NumImportedGlobals mirror
// NumImportedFuncs for the other three index spaces.
func (m *Module) NumImportedTables() int  { return countKind(m.Imports, ExternKindTable) }
func (m *Module) NumImportedMemories() int { return countKind(m.Imports, ExternKindMemory) }
func (m *Module) NumImportedGlobals() int { return countKind(m.Imports, ExternKindGlobal) }

func countKind(imports []Import, kind ExternKind) int {
	n := 0
	for _, imp := range imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}
