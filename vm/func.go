package vm

import (
	"github.com/wasminspect-go/wasminspect/value"
	"github.com/wasminspect-go/wasminspect/wasm"
)

// FuncAddress names a function within its owning module; FuncGlobalAddress
// is its store-wide slot — the identity an exported entry, a table element,
// or a call_indirect resolves to. Grounded on
// original_source/crates/vm/src/address.rs (FuncAddr / ExecutableFuncAddr).
type FuncAddress = LinkableAddress[FunctionInstance]
type FuncGlobalAddress = GlobalAddress[FunctionInstance]

// FunctionInstance is either a defined (Wasm-bodied) or host (Go-bodied)
// function. Exactly one of Defined/Host is non-nil.
//
// Grounded on original_source/crates/vm/src/func.rs.
type FunctionInstance struct {
	Defined *DefinedFunctionInstance
	Host    *HostFunctionInstance
}

// Name returns the function's name for display and breakpoint matching.
func (f FunctionInstance) Name() string {
	if f.Defined != nil {
		return f.Defined.Name
	}
	return f.Host.ModuleName + "." + f.Host.FieldName
}

// Type returns the function's signature.
func (f FunctionInstance) Type() wasm.FuncType {
	if f.Defined != nil {
		return f.Defined.Type
	}
	return f.Host.Type
}

// DefinedFunctionInstance is a function with a decoded Wasm body.
type DefinedFunctionInstance struct {
	Name             string
	Type             wasm.FuncType
	ModuleIndex      ModuleIndex
	LocalTypes       []wasm.ValType
	Instructions     []wasm.Instruction
	offsets          instructionOffsets
	// CachedLocalInits is the zero-initialized [params..., locals...] vector,
	// copied into every new activation and then overwritten for the first
	// len(params) slots with the call's arguments.
	CachedLocalInits []value.Value

	// matchEnd maps a block/loop/if instruction index to its matching end
	// index; matchElse maps an if instruction index to its else index, when
	// present. Precomputed once so br/br_if/br_table never re-scan the body.
	matchEnd  map[int]int
	matchElse map[int]int
}

// NewDefinedFunctionInstance builds a DefinedFunctionInstance from a decoded
// function signature and body, precomputing the zeroed local vector and a
// compact offset index (instructionOffsets) over the instruction stream for
// source-mapping and instruction-offset breakpoint lookups.
func NewDefinedFunctionInstance(name string, ty wasm.FuncType, moduleIdx ModuleIndex, code wasm.Code) *DefinedFunctionInstance {
	inits := make([]value.Value, 0, len(ty.Params)+len(code.Locals))
	for _, p := range ty.Params {
		inits = append(inits, value.Zero(p.ToValueType()))
	}
	for _, l := range code.Locals {
		inits = append(inits, value.Zero(l.ToValueType()))
	}

	offsets := make([]uint64, len(code.Instructions))
	for i, inst := range code.Instructions {
		offsets[i] = uint64(inst.Offset)
	}

	matchEnd, matchElse := computeControlFlowMap(code.Instructions)

	return &DefinedFunctionInstance{
		Name:             name,
		Type:             ty,
		ModuleIndex:      moduleIdx,
		LocalTypes:       append(append([]wasm.ValType{}, paramTypes(ty)...), code.Locals...),
		Instructions:     code.Instructions,
		offsets:          newInstructionOffsets(offsets),
		CachedLocalInits: inits,
		matchEnd:         matchEnd,
		matchElse:        matchElse,
	}
}

// computeControlFlowMap pairs every block/loop/if with its end index (and
// every if with its else index, when present) by walking the flat
// instruction stream with a depth counter — the decoded form always nests
// correctly since the encoder/decoder round-trips well-formed binaries.
func computeControlFlowMap(insts []wasm.Instruction) (matchEnd, matchElse map[int]int) {
	matchEnd = map[int]int{}
	matchElse = map[int]int{}
	pendingElse := map[int]int{}
	var openStack []int
	for i, inst := range insts {
		switch inst.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			openStack = append(openStack, i)
		case wasm.OpElse:
			if len(openStack) > 0 {
				start := openStack[len(openStack)-1]
				matchElse[start] = i
				pendingElse[start] = i
			}
		case wasm.OpEnd:
			if len(openStack) > 0 {
				start := openStack[len(openStack)-1]
				openStack = openStack[:len(openStack)-1]
				matchEnd[start] = i
				if elseIdx, ok := pendingElse[start]; ok {
					matchEnd[elseIdx] = i
				}
			}
		}
	}
	return matchEnd, matchElse
}

func paramTypes(ty wasm.FuncType) []wasm.ValType { return ty.Params }

// OffsetAt returns the original byte offset of the instruction at instIndex,
// read from the compact offset array rather than re-reading the
// Instruction's own Offset field — this is what a disassemble/instruction-
// offset-breakpoint view should use, matching the instruction representation
// described in spec.md §2 and §4.4.
func (f *DefinedFunctionInstance) OffsetAt(instIndex int) uint64 {
	if instIndex < 0 || instIndex >= f.offsets.len() {
		return 0
	}
	return f.offsets.at(instIndex)
}

// HostContext exposes a host function's caller-module memory 0 as a byte
// slice view (nil when the calling module has no memory, or when the host
// function is itself the entry point of Call or Prepare). It is all a host
// body sees of its caller: HostFuncBody is not passed the store or the
// caller's module index. Grounded on
// original_source/crates/vm/src/host.rs.
type HostContext struct {
	Mem []byte
}

// HostFuncBody is a host function's implementation: given the popped
// argument values (in declared order) and a mutable output slice, it must
// append exactly len(Type.Results) values or return an error, which the
// executor wraps as HostFunctionError.
type HostFuncBody func(args []value.Value, results *[]value.Value, ctx HostContext) error

// HostFunctionInstance is a function implemented in Go, registered through
// Store.RegisterHostModule.
type HostFunctionInstance struct {
	Type      wasm.FuncType
	ModuleName string
	FieldName string
	Code      HostFuncBody
}
