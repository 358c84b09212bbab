package vm

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wasminspect-go/wasminspect/value"
	"github.com/wasminspect-go/wasminspect/wasm"
)

// Store owns every loaded module's instances and links them together.
// Grounded on original_source/crates/vm/src/store.rs.
type Store struct {
	Funcs   *LinkableCollection[FunctionInstance]
	Mems    *LinkableCollection[*MemoryInstance]
	Tables  *LinkableCollection[*TableInstance]
	Globals *LinkableCollection[*GlobalInstance]
	Elems   *LinkableCollection[*ElementInstance]
	Datas   *LinkableCollection[*DataInstance]

	Modules     []ModuleInstance
	indexOfName map[string]ModuleIndex

	embedContexts map[reflect.Type]interface{}

	logger *zap.Logger
}

// NewStore constructs an empty store. A nil logger defaults to zap.NewNop().
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		Funcs:         NewLinkableCollection[FunctionInstance](),
		Mems:          NewLinkableCollection[*MemoryInstance](),
		Tables:        NewLinkableCollection[*TableInstance](),
		Globals:       NewLinkableCollection[*GlobalInstance](),
		Elems:         NewLinkableCollection[*ElementInstance](),
		Datas:         NewLinkableCollection[*DataInstance](),
		indexOfName:   map[string]ModuleIndex{},
		embedContexts: map[reflect.Type]interface{}{},
		logger:        logger,
	}
}

// AddEmbedContext attaches ctx to the store, keyed by its own type, so a
// host surface built on top of Store (WASI, an RPC front-end) can stash
// state without the store knowing its shape. A second call with the same
// type replaces the previous value. Grounded on
// original_source/crates/vm/src/store.rs's add_embed_context.
func AddEmbedContext[T any](s *Store, ctx T) {
	s.embedContexts[reflect.TypeOf(ctx)] = ctx
}

// GetEmbedContext retrieves the value previously stored under type T, if
// any. Grounded on original_source/crates/vm/src/store.rs's
// get_embed_context.
func GetEmbedContext[T any](s *Store) (T, bool) {
	var zero T
	v, ok := s.embedContexts[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// ModuleByName resolves a previously loaded or registered module's index.
func (s *Store) ModuleByName(name string) (ModuleIndex, bool) {
	idx, ok := s.indexOfName[name]
	return idx, ok
}

// ModuleAt returns the module instance at idx.
func (s *Store) ModuleAt(idx ModuleIndex) (*ModuleInstance, bool) {
	if int(idx) >= len(s.Modules) {
		return nil, false
	}
	return &s.Modules[idx], true
}

// RegisterHostModule installs a Go-backed module under name, making its
// entries available to later LoadModule calls' imports. Grounded on
// original_source/crates/vm/src/store.rs's load_host_module.
func (s *Store) RegisterHostModule(name string, values map[string]HostValue) ModuleIndex {
	idx := ModuleIndex(len(s.Modules))
	exports := map[string]ExternalValue{}
	for field, v := range values {
		switch v.Kind {
		case wasm.ExternKindFunc:
			addr := s.Funcs.Push(idx, FunctionInstance{Host: v.Func})
			exports[field] = ExternalValue{Kind: wasm.ExternKindFunc, Func: addr}
		case wasm.ExternKindMemory:
			addr := s.Mems.Push(idx, v.Memory)
			exports[field] = ExternalValue{Kind: wasm.ExternKindMemory, Memory: addr}
		case wasm.ExternKindTable:
			addr := s.Tables.Push(idx, v.Table)
			exports[field] = ExternalValue{Kind: wasm.ExternKindTable, Table: addr}
		case wasm.ExternKindGlobal:
			addr := s.Globals.Push(idx, v.Global)
			exports[field] = ExternalValue{Kind: wasm.ExternKindGlobal, Global: addr}
		}
	}
	s.Modules = append(s.Modules, ModuleInstance{Host: &HostModuleInstance{Index: idx, Name: name, Exports: exports}})
	s.indexOfName[name] = idx
	return idx
}

// LoadModule instantiates a decoded module under name: it links imports,
// allocates own functions/tables/memories/globals/elements/data in the
// order the Wasm spec requires, and — on any failure — rolls every
// partially-registered slot back out so the store is left exactly as it was
// before the call (data model invariant 7, "load atomicity"). Grounded on
// original_source/crates/vm/src/store.rs's load_parity_module_internal.
func (s *Store) LoadModule(name string, mod *wasm.Module) (ModuleIndex, error) {
	idx := ModuleIndex(len(s.Modules))
	s.logger.Debug("loading module", zap.String("name", name), zap.Uint32("index", uint32(idx)))

	rollback := func(err error) (ModuleIndex, error) {
		s.Funcs.RemoveModule(idx)
		s.Mems.RemoveModule(idx)
		s.Tables.RemoveModule(idx)
		s.Globals.RemoveModule(idx)
		s.Elems.RemoveModule(idx)
		s.Datas.RemoveModule(idx)
		s.logger.Warn("module load failed, rolled back", zap.String("name", name), zap.Error(err))
		return ModuleIndex(0), err
	}

	var funcAddrs []FuncAddress
	var tableAddrs []TableAddress
	var memAddrs []MemoryAddress
	var globalAddrs []GlobalAddr

	for _, imp := range mod.Imports {
		ref := importRef{Module: imp.Module, Field: imp.Field}
		ownerIdx, ok := s.indexOfName[imp.Module]
		var exported ExternalValue
		if ok {
			owner, _ := s.ModuleAt(ownerIdx)
			exported, ok = ownerExport(owner, imp.Field)
		}
		if !ok || exported.Kind != imp.Kind {
			return rollback(undefinedImportFor(imp.Kind, ref))
		}
		switch imp.Kind {
		case wasm.ExternKindFunc:
			global, ok := s.Funcs.Resolve(exported.Func)
			if !ok {
				return rollback(UndefinedImportFunc{importRef: ref})
			}
			if int(imp.FuncTypeIndex) >= len(mod.Types) {
				return rollback(UnknownType{Index: imp.FuncTypeIndex})
			}
			fn, _ := s.Funcs.GetGlobal(global)
			want := mod.Types[imp.FuncTypeIndex]
			if !fn.Type().Equal(want) {
				return rollback(IncompatibleImportFunc{importRef: ref, Expected: want.String(), Actual: fn.Type().String()})
			}
			funcAddrs = append(funcAddrs, s.Funcs.Link(global, idx))
		case wasm.ExternKindMemory:
			global, ok := s.Mems.Resolve(exported.Memory)
			if !ok {
				return rollback(UndefinedImportMemory{importRef: ref})
			}
			m, _ := s.Mems.GetGlobal(global)
			if imp.Memory.Limits.Min > (*m).PageCount() {
				return rollback(IncompatibleImportMemory{importRef: ref, Reason: "actual memory smaller than declared minimum"})
			}
			if reason, ok := incompatibleMax(imp.Memory.Limits.Max, (*m).max); !ok {
				return rollback(IncompatibleImportMemory{importRef: ref, Reason: reason})
			}
			memAddrs = append(memAddrs, s.Mems.Link(global, idx))
		case wasm.ExternKindTable:
			global, ok := s.Tables.Resolve(exported.Table)
			if !ok {
				return rollback(UndefinedImportTable{importRef: ref})
			}
			t, _ := s.Tables.GetGlobal(global)
			if (*t).ElemType() != imp.Table.ElemType.RefType() {
				return rollback(IncompatibleImportTable{importRef: ref, Reason: "element type mismatch"})
			}
			if imp.Table.Limits.Min > uint32((*t).Len()) {
				return rollback(IncompatibleImportTable{importRef: ref, Reason: "actual table smaller than declared minimum"})
			}
			if reason, ok := incompatibleMax(imp.Table.Limits.Max, (*t).max); !ok {
				return rollback(IncompatibleImportTable{importRef: ref, Reason: reason})
			}
			tableAddrs = append(tableAddrs, s.Tables.Link(global, idx))
		case wasm.ExternKindGlobal:
			global, ok := s.Globals.Resolve(exported.Global)
			if !ok {
				return rollback(UndefinedImportGlobal{importRef: ref})
			}
			g, _ := s.Globals.GetGlobal(global)
			want := imp.Global.ValType.ToValueType()
			if (*g).Type() != want {
				return rollback(IncompatibleImportGlobal{importRef: ref, Expected: want.String(), Actual: (*g).Type().String()})
			}
			if (*g).IsMutable() != imp.Global.Mutable {
				return rollback(IncompatibleImportGlobalMutability{importRef: ref})
			}
			globalAddrs = append(globalAddrs, s.Globals.Link(global, idx))
		}
	}

	for i, code := range mod.Codes {
		typeIdx := mod.FunctionTypeIndices[i]
		if int(typeIdx) >= len(mod.Types) {
			return rollback(UnknownType{Index: typeIdx})
		}
		ty := mod.Types[typeIdx]
		fnName := fmt.Sprintf("%s.func[%d]", name, i+mod.NumImportedFuncs())
		if n, ok := mod.FuncNames[uint32(i+mod.NumImportedFuncs())]; ok {
			fnName = n
		}
		fn := NewDefinedFunctionInstance(fnName, ty, idx, code)
		funcAddrs = append(funcAddrs, s.Funcs.Push(idx, FunctionInstance{Defined: fn}))
	}

	for _, t := range mod.Tables {
		tableAddrs = append(tableAddrs, s.Tables.Push(idx, NewTableInstanceFromType(t)))
	}
	for _, m := range mod.Memories {
		memAddrs = append(memAddrs, s.Mems.Push(idx, NewMemoryInstanceFromType(m)))
	}

	for _, g := range mod.Globals {
		v, err := s.evalConstExpr(g.Init, funcAddrs, globalAddrs)
		if err != nil {
			return rollback(errors.Wrap(err, "global init"))
		}
		globalAddrs = append(globalAddrs, s.Globals.Push(idx, NewGlobalInstance(v, g.Type.Mutable)))
	}

	for _, seg := range mod.Elements {
		refs, err := s.evalElemRefs(seg, funcAddrs)
		if err != nil {
			return rollback(InvalidElementSegments{Reason: err.Error()})
		}
		elemInst := NewElementInstance(seg.RefType.RefType(), refs)
		if seg.Mode == wasm.ElemModeActive {
			offVal, err := s.evalConstExpr(seg.Offset, funcAddrs, globalAddrs)
			if err != nil {
				return rollback(InvalidElementSegments{Reason: err.Error()})
			}
			if int(seg.TableIndex) >= len(tableAddrs) {
				return rollback(InvalidElementSegments{Reason: fmt.Sprintf("bad table index %d", seg.TableIndex)})
			}
			t, _, ok := s.Tables.Get(tableAddrs[seg.TableIndex])
			if !ok || !(*t).Initialize(uint32(offVal.I32()), refs) {
				return rollback(InvalidElementSegments{Reason: "segment out of bounds"})
			}
			elemInst.Drop()
		} else if seg.Mode == wasm.ElemModeDeclarative {
			elemInst.Drop()
		}
		s.Elems.Push(idx, elemInst)
	}

	for _, seg := range mod.Data {
		dataInst := NewDataInstance(seg.Bytes)
		if seg.Mode == wasm.DataModeActive {
			offVal, err := s.evalConstExpr(seg.Offset, funcAddrs, globalAddrs)
			if err != nil {
				return rollback(InvalidDataSegments{Reason: err.Error()})
			}
			if int(seg.MemoryIndex) >= len(memAddrs) {
				return rollback(InvalidDataSegments{Reason: fmt.Sprintf("bad memory index %d", seg.MemoryIndex)})
			}
			m, _, ok := s.Mems.Get(memAddrs[seg.MemoryIndex])
			if !ok || !(*m).Store(uint64(uint32(offVal.I32())), seg.Bytes) {
				return rollback(InvalidDataSegments{Reason: "segment out of bounds"})
			}
			dataInst.Drop()
		}
		s.Datas.Push(idx, dataInst)
	}

	exports := make([]ExportInstance, 0, len(mod.Exports))
	for _, exp := range mod.Exports {
		var val ExternalValue
		switch exp.Kind {
		case wasm.ExternKindFunc:
			val = ExternalValue{Kind: wasm.ExternKindFunc, Func: funcAddrs[exp.Index]}
		case wasm.ExternKindTable:
			val = ExternalValue{Kind: wasm.ExternKindTable, Table: tableAddrs[exp.Index]}
		case wasm.ExternKindMemory:
			val = ExternalValue{Kind: wasm.ExternKindMemory, Memory: memAddrs[exp.Index]}
		case wasm.ExternKindGlobal:
			val = ExternalValue{Kind: wasm.ExternKindGlobal, Global: globalAddrs[exp.Index]}
		}
		exports = append(exports, ExportInstance{Name: exp.Name, Value: val})
	}

	var startFunc *FuncAddress
	if mod.Start != nil {
		f := funcAddrs[*mod.Start]
		startFunc = &f
		// The start function runs via the same executor path as any
		// exported entry (spec.md §4.2); a trap here fails the whole load
		// rather than leaving a module whose initializer never completed.
		if global, ok := s.Funcs.Resolve(f); ok {
			ex := NewExecutor(s, NopInterceptor{})
			if _, trap := ex.Call(global, nil); trap != nil {
				return rollback(FailedEntryFunction{Trap: trap})
			}
		}
	}

	s.Modules = append(s.Modules, ModuleInstance{Defined: &DefinedModuleInstance{
		Index:     idx,
		Types:     mod.Types,
		Exports:   exports,
		StartFunc: startFunc,
	}})
	s.indexOfName[name] = idx
	s.logger.Info("module loaded", zap.String("name", name), zap.Uint32("index", uint32(idx)))
	return idx, nil
}

// undefinedImportFor builds the UndefinedImport{Func|Memory|Table|Global}
// matching imp's kind, used both when the owning module/field can't be
// found at all and when the export exists but is the wrong kind — from the
// importer's perspective both mean "no usable export of this kind exists".
func undefinedImportFor(kind wasm.ExternKind, ref importRef) LoadError {
	switch kind {
	case wasm.ExternKindMemory:
		return UndefinedImportMemory{importRef: ref}
	case wasm.ExternKindTable:
		return UndefinedImportTable{importRef: ref}
	case wasm.ExternKindGlobal:
		return UndefinedImportGlobal{importRef: ref}
	default:
		return UndefinedImportFunc{importRef: ref}
	}
}

// incompatibleMax checks spec.md §4.2's max-limit rule: if declared is set,
// actual must also be set and no greater. Returns a human-readable reason
// and false when the rule is violated.
func incompatibleMax(declared, actual *uint32) (string, bool) {
	if declared == nil {
		return "", true
	}
	if actual == nil {
		return "declared maximum is set but actual has no maximum", false
	}
	if *actual > *declared {
		return fmt.Sprintf("actual maximum %d exceeds declared maximum %d", *actual, *declared), false
	}
	return "", true
}

func ownerExport(owner *ModuleInstance, field string) (ExternalValue, bool) {
	if owner.Defined != nil {
		exp, ok := owner.Defined.ExportedByName(field)
		if !ok {
			return ExternalValue{}, false
		}
		return exp.Value, true
	}
	return owner.Host.ExportedByName(field)
}

// evalConstExpr evaluates a load-time constant initializer. Only
// i32.const/i64.const/f32.const/f64.const, global.get (of an imported
// global), ref.null, and ref.func are legal per the Wasm spec's restriction
// on init-expr shape.
func (s *Store) evalConstExpr(expr wasm.ConstExpr, funcAddrs []FuncAddress, globalAddrs []GlobalAddr) (value.Value, error) {
	inst := expr.Inst
	switch inst.Op {
	case wasm.OpI32Const:
		return value.I32(inst.I32), nil
	case wasm.OpI64Const:
		return value.I64(inst.I64), nil
	case wasm.OpF32Const:
		return value.F32(inst.F32Bits), nil
	case wasm.OpF64Const:
		return value.F64(inst.F64Bits), nil
	case wasm.OpGlobalGet:
		if int(inst.Index) >= len(globalAddrs) {
			return value.Value{}, errors.Errorf("const expr: global index %d out of range", inst.Index)
		}
		g, _, ok := s.Globals.Get(globalAddrs[inst.Index])
		if !ok {
			return value.Value{}, errors.New("const expr: dangling global")
		}
		return (*g).Value(), nil
	case wasm.OpRefNull:
		return value.Ref(value.NullRef(inst.RefType.RefType())), nil
	case wasm.OpRefFunc:
		if int(inst.Index) >= len(funcAddrs) {
			return value.Value{}, errors.Errorf("const expr: func index %d out of range", inst.Index)
		}
		global, ok := s.Funcs.Resolve(funcAddrs[inst.Index])
		if !ok {
			return value.Value{}, errors.New("const expr: dangling func")
		}
		return value.Ref(value.FuncRef(uint64(global.idx))), nil
	default:
		return value.Value{}, errors.Errorf("const expr: illegal opcode %v", inst.Op)
	}
}

func (s *Store) evalElemRefs(seg wasm.ElementSegment, funcAddrs []FuncAddress) ([]value.RefVal, error) {
	if seg.Funcs != nil {
		refs := make([]value.RefVal, len(seg.Funcs))
		for i, fi := range seg.Funcs {
			if int(fi) >= len(funcAddrs) {
				return nil, errors.Errorf("element segment: func index %d out of range", fi)
			}
			global, ok := s.Funcs.Resolve(funcAddrs[fi])
			if !ok {
				return nil, errors.New("element segment: dangling func")
			}
			refs[i] = value.FuncRef(uint64(global.idx))
		}
		return refs, nil
	}
	refs := make([]value.RefVal, len(seg.Exprs))
	for i, e := range seg.Exprs {
		v, err := s.evalConstExpr(e, funcAddrs, nil)
		if err != nil {
			return nil, err
		}
		refs[i] = v.RefVal()
	}
	return refs, nil
}
