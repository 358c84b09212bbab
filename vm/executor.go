package vm

import (
	"math"
	"math/bits"

	"github.com/wasminspect-go/wasminspect/value"
	"github.com/wasminspect-go/wasminspect/wasm"
)

// Executor runs a single thread of execution against a Store: an explicit,
// non-recursive instruction-dispatch loop over a Stack of activations, so
// that stepping and breakpoints can interrupt between any two instructions
// regardless of Wasm call depth. Grounded on
// original_source/crates/vm/src/executor.rs.
type Executor struct {
	store       *Store
	stack       *Stack
	interceptor Interceptor
	pc          ProgramCounter
	// callSignal carries a SignalEnd/SignalBreakpoint raised by an
	// InvokeFunc or AfterStore hook during the current step's dispatch back
	// out to step, which blends it with the ExecuteInst hook's signal.
	// dispatch itself only returns a Trap, so this is how a signal raised
	// mid-dispatch survives to be reported.
	callSignal Signal
}

// NewExecutor constructs an Executor over store. A nil interceptor defaults
// to NopInterceptor{}.
func NewExecutor(store *Store, interceptor Interceptor) *Executor {
	if interceptor == nil {
		interceptor = NopInterceptor{}
	}
	return &Executor{store: store, stack: NewStack(), interceptor: interceptor}
}

// Stack exposes the live stack for inspection (debugger frame/locals/value
// views).
func (e *Executor) Stack() *Stack { return e.stack }

// PC returns the current program counter.
func (e *Executor) PC() ProgramCounter { return e.pc }

func memAddr(m ModuleIndex, local uint32) MemoryAddress   { return MemoryAddress{Module: m, local: int(local), valid: true} }
func tableAddr(m ModuleIndex, local uint32) TableAddress   { return TableAddress{Module: m, local: int(local), valid: true} }
func globalAddr(m ModuleIndex, local uint32) GlobalAddr    { return GlobalAddr{Module: m, local: int(local), valid: true} }
func funcAddrOf(m ModuleIndex, local uint32) FuncAddress   { return FuncAddress{Module: m, local: int(local), valid: true} }
func elemAddrOf(m ModuleIndex, local uint32) ElemAddress   { return ElemAddress{Module: m, local: int(local), valid: true} }
func dataAddrOf(m ModuleIndex, local uint32) DataAddress   { return DataAddress{Module: m, local: int(local), valid: true} }

// Call invokes the function at addr with args, running to completion (or to
// a trap, or until an interceptor hook signals End). The store runs module
// start functions through it; the debugger starts its runs with Prepare and
// drives them with Step instead.
func (e *Executor) Call(addr FuncGlobalAddress, args []value.Value) ([]value.Value, Trap) {
	fn, ok := e.store.Funcs.GetGlobal(addr)
	if !ok {
		return nil, TrapUndefinedFunc{}
	}
	if fn.Host != nil {
		return e.callHost(fn.Host, args)
	}
	baseDepth := e.stack.Len()
	if !e.pushDefinedCall(*fn.Defined, addr, args, nil) {
		return nil, TrapStackError{Reason: "call stack exhausted"}
	}
	for e.stack.Len() > baseDepth {
		sig, trap := e.step()
		if trap != nil {
			return nil, trap
		}
		if sig == SignalEnd {
			return nil, nil
		}
	}
	results := e.stack.lastResults
	e.stack.lastResults = nil
	return results, nil
}

// Step executes exactly one instruction and reports the interceptor signal
// blended across the step's hooks. A non-nil trap means execution has
// already fully unwound to the point of failure.
func (e *Executor) Step() (Signal, Trap) { return e.step() }

// Prepare begins a call without driving it to completion: a host function
// runs synchronously to completion right away (so Stack().IsOverTopLevel()
// is already true when Prepare returns), while a defined function only gets
// its entry frame pushed, leaving the caller to drive it with Step. This is
// the hook a debugger needs to pause between individual steps of a call
// that Call's own run-to-completion loop would never yield control back
// for.
func (e *Executor) Prepare(addr FuncGlobalAddress, args []value.Value) Trap {
	fn, ok := e.store.Funcs.GetGlobal(addr)
	if !ok {
		return TrapUndefinedFunc{}
	}
	if fn.Host != nil {
		results, trap := e.callHost(fn.Host, args)
		if trap != nil {
			return trap
		}
		e.stack.lastResults = results
		return nil
	}
	if !e.pushDefinedCall(*fn.Defined, addr, args, nil) {
		return TrapStackError{Reason: "call stack exhausted"}
	}
	return nil
}

// Results returns and clears the outermost call's return values, valid once
// Stack().IsOverTopLevel() is true after Prepare/Step.
func (e *Executor) Results() []value.Value {
	r := e.stack.lastResults
	e.stack.lastResults = nil
	return r
}

func (e *Executor) callHost(h *HostFunctionInstance, args []value.Value) ([]value.Value, Trap) {
	sig, err := e.interceptor.InvokeFunc(h.ModuleName + "." + h.FieldName)
	if err != nil {
		return nil, TrapHostFunctionError{Cause: err}
	}
	if sig == SignalEnd {
		return nil, nil
	}
	var results []value.Value
	ctx := HostContext{}
	if frame, ok := e.stack.CurrentFrame(); ok {
		if m, _, ok := e.store.Mems.Get(memAddr(frame.ModuleIndex, 0)); ok {
			ctx.Mem = (*m).Raw()
		}
	}
	if err := h.Code(args, &results, ctx); err != nil {
		return nil, TrapHostFunctionError{Cause: err}
	}
	return results, nil
}

func (e *Executor) pushDefinedCall(fn DefinedFunctionInstance, addr FuncGlobalAddress, args []value.Value, retPC *ProgramCounter) bool {
	frame := NewCallFrameFromFunc(fn.ModuleIndex, addr, &fn, args, retPC)
	if !e.stack.PushFrame(frame) {
		return false
	}
	arity := len(fn.Type.Results)
	e.stack.PushLabel(Label{Kind: LabelReturn, Arity: arity, BranchArity: arity})
	e.pc = ProgramCounter{ModuleIndex: fn.ModuleIndex, ExecAddr: addr, InstIndex: 0}
	return true
}

// step executes the instruction at the current pc and advances it.
func (e *Executor) step() (Signal, Trap) {
	frame, ok := e.stack.CurrentFrame()
	if !ok {
		return SignalEnd, nil
	}
	fn, ok := e.store.Funcs.GetGlobal(e.pc.ExecAddr)
	if !ok || fn.Defined == nil {
		return SignalEnd, TrapStackError{Reason: "program counter references no defined function"}
	}
	df := fn.Defined
	if e.pc.InstIndex >= len(df.Instructions) {
		return SignalEnd, TrapNoMoreInstruction{}
	}
	inst := df.Instructions[e.pc.InstIndex]
	sig := e.interceptor.ExecuteInst(inst)
	if sig == SignalEnd {
		return sig, nil
	}

	e.callSignal = SignalNext
	trap := e.dispatch(df, frame, inst)
	if trap != nil {
		return SignalNext, trap
	}
	return combine(sig, e.callSignal), nil
}

func (e *Executor) moduleType(moduleIdx ModuleIndex, bt wasm.BlockType) wasm.FuncType {
	if bt.Empty {
		return wasm.FuncType{}
	}
	if bt.HasVal {
		return wasm.FuncType{Results: []wasm.ValType{bt.ValType}}
	}
	mi, ok := e.store.ModuleAt(moduleIdx)
	if !ok || mi.Defined == nil {
		return wasm.FuncType{}
	}
	ty, _ := mi.Defined.GetType(bt.TypeIndex)
	return ty
}

func (e *Executor) pushBlockLabel(kind LabelKind, inst wasm.Instruction, df *DefinedFunctionInstance) {
	ty := e.moduleType(df.ModuleIndex, inst.Block)
	end := df.matchEnd[e.pc.InstIndex] + 1
	lbl := Label{Kind: kind, Arity: len(ty.Results), BranchArity: len(ty.Results), EndTarget: end}
	if kind == LabelLoop {
		lbl.BranchArity = len(ty.Params)
		lbl.LoopStart = e.pc.InstIndex + 1
	}
	e.stack.PushLabel(lbl)
}

// branch implements br to the label `depth` levels up (0 = innermost),
// leaving the carried values on the stack and repositioning pc.
func (e *Executor) branch(depth uint32) Trap {
	lbl, entryIdx, ok := e.stack.LabelAt(int(depth))
	if !ok {
		return TrapStackError{Reason: "branch depth exceeds label stack"}
	}
	if lbl.Kind == LabelReturn {
		// A branch to the function's own implicit label is equivalent to
		// return: original_source/crates/vm/src/stack.rs's Label::Return.
		return e.doReturn()
	}
	carried := make([]value.Value, lbl.BranchArity)
	for i := lbl.BranchArity - 1; i >= 0; i-- {
		v, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "branch operand underflow"}
		}
		carried[i] = v
	}
	if lbl.Kind == LabelLoop {
		e.stack.TruncateTo(entryIdx + 1)
		e.pc.InstIndex = lbl.LoopStart
	} else {
		e.stack.TruncateTo(entryIdx)
		e.pc.InstIndex = lbl.EndTarget
	}
	for _, v := range carried {
		e.stack.PushValue(v)
	}
	return nil
}

func (e *Executor) doReturn() Trap {
	frame, ok := e.stack.CurrentFrame()
	if !ok {
		return TrapStackError{Reason: "return with no active frame"}
	}
	fn, _ := e.store.Funcs.GetGlobal(e.pc.ExecAddr)
	arity := 0
	if fn != nil {
		arity = len(fn.Type().Results)
	}
	results := make([]value.Value, arity)
	for i := arity - 1; i >= 0; i-- {
		v, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "return value underflow"}
		}
		results[i] = v
	}
	frameIdx, _ := e.stack.CurrentFrameIndex()
	e.stack.PopFrameAt(frameIdx)
	if frame.RetPC != nil {
		e.pc = *frame.RetPC
		for _, v := range results {
			e.stack.PushValue(v)
		}
	} else {
		e.stack.lastResults = results
	}
	return nil
}

// dispatch executes one decoded instruction, mutating e.stack/e.pc.
func (e *Executor) dispatch(df *DefinedFunctionInstance, frame *CallFrame, inst wasm.Instruction) Trap {
	advance := true
	defer func() {
		if advance {
			e.pc.InstIndex++
		}
	}()

	switch inst.Op {
	case wasm.OpUnreachable:
		return TrapUnreachable{}
	case wasm.OpNop:
	case wasm.OpBlock:
		e.pushBlockLabel(LabelBlock, inst, df)
	case wasm.OpLoop:
		e.pushBlockLabel(LabelLoop, inst, df)
	case wasm.OpIf:
		cond, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "if: missing condition"}
		}
		if cond.I32() != 0 {
			e.pushBlockLabel(LabelIf, inst, df)
		} else if elseIdx, ok := df.matchElse[e.pc.InstIndex]; ok {
			e.pushBlockLabel(LabelIf, inst, df)
			e.pc.InstIndex = elseIdx
		} else {
			e.pc.InstIndex = df.matchEnd[e.pc.InstIndex]
		}
	case wasm.OpElse:
		end := df.matchEnd[e.pc.InstIndex]
		if _, entryIdx, ok := e.stack.LabelAt(0); ok {
			vals := e.stack.ValuesSince(entryIdx)
			e.stack.TruncateTo(entryIdx)
			for _, v := range vals {
				e.stack.PushValue(v)
			}
		}
		e.pc.InstIndex = end
	case wasm.OpEnd:
		lbl, entryIdx, ok := e.stack.LabelAt(0)
		if !ok || lbl.Kind == LabelReturn {
			advance = false
			return e.doReturn()
		}
		// Drop the block's label, keep its result values, fall through.
		vals := e.stack.ValuesSince(entryIdx)
		e.stack.TruncateTo(entryIdx)
		for _, v := range vals {
			e.stack.PushValue(v)
		}
	case wasm.OpBr:
		advance = false
		if t := e.branch(inst.Index); t != nil {
			return t
		}
	case wasm.OpBrIf:
		cond, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "br_if: missing condition"}
		}
		if cond.I32() != 0 {
			advance = false
			if t := e.branch(inst.Index); t != nil {
				return t
			}
		}
	case wasm.OpBrTable:
		idxVal, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "br_table: missing index"}
		}
		i := idxVal.U32()
		target := inst.BrTable.Default
		if i < uint32(len(inst.BrTable.Targets)) {
			target = inst.BrTable.Targets[i]
		}
		advance = false
		if t := e.branch(target); t != nil {
			return t
		}
	case wasm.OpReturn:
		advance = false
		return e.doReturn()
	case wasm.OpCall:
		depthBefore := e.stack.FrameDepth()
		trap := e.callLocal(df.ModuleIndex, inst.Index)
		advance = e.stack.FrameDepth() <= depthBefore
		return trap
	case wasm.OpCallIndirect:
		depthBefore := e.stack.FrameDepth()
		trap := e.callIndirect(df, inst)
		advance = e.stack.FrameDepth() <= depthBefore
		return trap
	case wasm.OpDrop:
		if _, ok := e.stack.PopValue(); !ok {
			return TrapStackError{Reason: "drop: empty stack"}
		}
	case wasm.OpSelect, wasm.OpSelectT:
		cond, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "select: missing condition"}
		}
		b, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "select: missing operand"}
		}
		a, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "select: missing operand"}
		}
		if cond.I32() != 0 {
			e.stack.PushValue(a)
		} else {
			e.stack.PushValue(b)
		}
	case wasm.OpLocalGet:
		e.stack.PushValue(frame.Local(int(inst.Index)))
	case wasm.OpLocalSet:
		v, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "local.set: empty stack"}
		}
		frame.SetLocal(int(inst.Index), v)
	case wasm.OpLocalTee:
		v, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "local.tee: empty stack"}
		}
		frame.SetLocal(int(inst.Index), v)
		e.stack.PushValue(v)
	case wasm.OpGlobalGet:
		g, _, ok := e.store.Globals.Get(globalAddr(df.ModuleIndex, inst.Index))
		if !ok {
			return TrapStackError{Reason: "global.get: unresolved global"}
		}
		e.stack.PushValue((*g).Value())
	case wasm.OpGlobalSet:
		v, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "global.set: empty stack"}
		}
		g, _, ok := e.store.Globals.Get(globalAddr(df.ModuleIndex, inst.Index))
		if !ok {
			return TrapStackError{Reason: "global.set: unresolved global"}
		}
		if v.Type() != (*g).Type() {
			return TrapUnexpectedStackValueType{Expected: (*g).Type().String(), Actual: v.Type().String()}
		}
		if !(*g).IsMutable() {
			return TrapStackError{Reason: "global.set: immutable global"}
		}
		(*g).SetValue(v)
	case wasm.OpTableGet:
		return e.execTableGet(df, inst)
	case wasm.OpTableSet:
		return e.execTableSet(df, inst)
	case wasm.OpRefNull:
		e.stack.PushValue(value.Ref(value.NullRef(inst.RefType.RefType())))
	case wasm.OpRefIsNull:
		v, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "ref.is_null: empty stack"}
		}
		if v.RefVal().IsNull() {
			e.stack.PushValue(value.I32(1))
		} else {
			e.stack.PushValue(value.I32(0))
		}
	case wasm.OpRefFunc:
		global, ok := e.store.Funcs.Resolve(funcAddrOf(df.ModuleIndex, inst.Index))
		if !ok {
			return TrapStackError{Reason: "ref.func: unresolved function"}
		}
		e.stack.PushValue(value.Ref(value.FuncRef(uint64(global.idx))))

	case wasm.OpI32Load:
		return e.execLoad(df, inst, 4, func(b []byte) value.Value { return value.I32(int32(le32(b))) })
	case wasm.OpI64Load:
		return e.execLoad(df, inst, 8, func(b []byte) value.Value { return value.I64(int64(le64(b))) })
	case wasm.OpF32Load:
		return e.execLoad(df, inst, 4, func(b []byte) value.Value { return value.F32(le32(b)) })
	case wasm.OpF64Load:
		return e.execLoad(df, inst, 8, func(b []byte) value.Value { return value.F64(le64(b)) })
	case wasm.OpI32Load8S:
		return e.execLoad(df, inst, 1, func(b []byte) value.Value { return value.I32(int32(int8(b[0]))) })
	case wasm.OpI32Load8U:
		return e.execLoad(df, inst, 1, func(b []byte) value.Value { return value.I32(int32(b[0])) })
	case wasm.OpI32Load16S:
		return e.execLoad(df, inst, 2, func(b []byte) value.Value { return value.I32(int32(int16(le16(b)))) })
	case wasm.OpI32Load16U:
		return e.execLoad(df, inst, 2, func(b []byte) value.Value { return value.I32(int32(le16(b))) })
	case wasm.OpI64Load8S:
		return e.execLoad(df, inst, 1, func(b []byte) value.Value { return value.I64(int64(int8(b[0]))) })
	case wasm.OpI64Load8U:
		return e.execLoad(df, inst, 1, func(b []byte) value.Value { return value.I64(int64(b[0])) })
	case wasm.OpI64Load16S:
		return e.execLoad(df, inst, 2, func(b []byte) value.Value { return value.I64(int64(int16(le16(b)))) })
	case wasm.OpI64Load16U:
		return e.execLoad(df, inst, 2, func(b []byte) value.Value { return value.I64(int64(le16(b))) })
	case wasm.OpI64Load32S:
		return e.execLoad(df, inst, 4, func(b []byte) value.Value { return value.I64(int64(int32(le32(b)))) })
	case wasm.OpI64Load32U:
		return e.execLoad(df, inst, 4, func(b []byte) value.Value { return value.I64(int64(le32(b))) })

	case wasm.OpI32Store:
		return e.execStore(df, inst, 4, func(v value.Value) []byte { return put32(uint32(v.I32())) })
	case wasm.OpI64Store:
		return e.execStore(df, inst, 8, func(v value.Value) []byte { return put64(uint64(v.I64())) })
	case wasm.OpF32Store:
		return e.execStore(df, inst, 4, func(v value.Value) []byte { return put32(v.F32Bits()) })
	case wasm.OpF64Store:
		return e.execStore(df, inst, 8, func(v value.Value) []byte { return put64(v.F64Bits()) })
	case wasm.OpI32Store8:
		return e.execStore(df, inst, 1, func(v value.Value) []byte { return []byte{byte(v.U32())} })
	case wasm.OpI32Store16:
		return e.execStore(df, inst, 2, func(v value.Value) []byte { return put16(uint16(v.U32())) })
	case wasm.OpI64Store8:
		return e.execStore(df, inst, 1, func(v value.Value) []byte { return []byte{byte(v.U64())} })
	case wasm.OpI64Store16:
		return e.execStore(df, inst, 2, func(v value.Value) []byte { return put16(uint16(v.U64())) })
	case wasm.OpI64Store32:
		return e.execStore(df, inst, 4, func(v value.Value) []byte { return put32(uint32(v.U64())) })

	case wasm.OpMemorySize:
		m, _, ok := e.store.Mems.Get(memAddr(df.ModuleIndex, 0))
		if !ok {
			return TrapStackError{Reason: "memory.size: no memory"}
		}
		e.stack.PushValue(value.I32(int32((*m).PageCount())))
	case wasm.OpMemoryGrow:
		delta, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "memory.grow: empty stack"}
		}
		m, _, ok := e.store.Mems.Get(memAddr(df.ModuleIndex, 0))
		if !ok {
			return TrapStackError{Reason: "memory.grow: no memory"}
		}
		prev, grew := (*m).Grow(delta.U32())
		if !grew {
			e.stack.PushValue(value.I32(-1))
		} else {
			e.stack.PushValue(value.I32(int32(prev)))
		}
	case wasm.OpMemoryInit:
		return e.execMemoryInit(df, inst)
	case wasm.OpDataDrop:
		d, _, ok := e.store.Datas.Get(dataAddrOf(df.ModuleIndex, inst.Index))
		if ok {
			(*d).Drop()
		}
	case wasm.OpMemoryCopy:
		return e.execMemoryCopy(df)
	case wasm.OpMemoryFill:
		return e.execMemoryFill(df)
	case wasm.OpTableInit:
		return e.execTableInit(df, inst)
	case wasm.OpElemDrop:
		el, _, ok := e.store.Elems.Get(elemAddrOf(df.ModuleIndex, inst.Index))
		if ok {
			(*el).Drop()
		}
	case wasm.OpTableCopy:
		return e.execTableCopy(df, inst)
	case wasm.OpTableGrow:
		return e.execTableGrow(df, inst)
	case wasm.OpTableSize:
		t, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index))
		if !ok {
			return TrapStackError{Reason: "table.size: unresolved table"}
		}
		e.stack.PushValue(value.I32(int32((*t).Len())))
	case wasm.OpTableFill:
		return e.execTableFill(df, inst)

	default:
		return e.dispatchNumeric(inst)
	}
	return nil
}

func (e *Executor) callLocal(moduleIdx ModuleIndex, localIdx uint32) Trap {
	global, ok := e.store.Funcs.Resolve(funcAddrOf(moduleIdx, localIdx))
	if !ok {
		return TrapStackError{Reason: "call: unresolved function"}
	}
	return e.invokeNested(global)
}

func (e *Executor) invokeNested(global FuncGlobalAddress) Trap {
	fn, ok := e.store.Funcs.GetGlobal(global)
	if !ok {
		return TrapUndefinedFunc{}
	}
	sig, err := e.interceptor.InvokeFunc(fn.Name())
	if err != nil {
		return TrapHostFunctionError{Cause: err}
	}
	e.callSignal = combine(e.callSignal, sig)
	if sig == SignalEnd {
		return nil
	}
	if fn.Host != nil {
		args := make([]value.Value, len(fn.Host.Type.Params))
		for i := len(args) - 1; i >= 0; i-- {
			v, ok := e.stack.PopValue()
			if !ok {
				return TrapStackError{Reason: "call: argument underflow"}
			}
			args[i] = v
		}
		results, trap := e.callHost(fn.Host, args)
		if trap != nil {
			return trap
		}
		for _, r := range results {
			e.stack.PushValue(r)
		}
		return nil
	}
	args := make([]value.Value, len(fn.Defined.Type.Params))
	for i := len(args) - 1; i >= 0; i-- {
		v, ok := e.stack.PopValue()
		if !ok {
			return TrapStackError{Reason: "call: argument underflow"}
		}
		if want := fn.Defined.Type.Params[i].ToValueType(); v.Type() != want {
			return TrapDirectCallTypeMismatch{CalleeName: fn.Name(), Expected: want.String(), Actual: v.Type().String()}
		}
		args[i] = v
	}
	retPC := e.pc
	retPC.InstIndex++
	if !e.pushDefinedCall(*fn.Defined, global, args, &retPC) {
		return TrapStackError{Reason: "call stack exhausted"}
	}
	return nil
}

func (e *Executor) callIndirect(df *DefinedFunctionInstance, inst wasm.Instruction) Trap {
	idxVal, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "call_indirect: missing table index"}
	}
	t, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index2))
	if !ok {
		return TrapStackError{Reason: "call_indirect: unresolved table"}
	}
	ref, ok := (*t).GetAt(idxVal.U32())
	if !ok {
		return TrapTableAccessOutOfBounds{Access: uint64(idxVal.U32()), TableSize: uint64((*t).Len())}
	}
	if ref.IsNull() {
		return TrapUndefinedFunc{Index: uint64(idxVal.U32())}
	}
	funcIdx, _ := ref.FuncAddr()
	global := FuncGlobalAddress{idx: int(funcIdx), valid: true}
	fn, ok := e.store.Funcs.GetGlobal(global)
	if !ok {
		return TrapUndefinedFunc{Index: funcIdx}
	}
	want := df.ModuleType(e.store, inst.Index)
	if !fn.Type().Equal(want) {
		return TrapIndirectCallTypeMismatch{CalleeName: fn.Name()}
	}
	return e.invokeNested(global)
}

// ModuleType looks up type index ti in fn's own module's type section — a
// convenience for call_indirect's signature check.
func (fn *DefinedFunctionInstance) ModuleType(s *Store, ti uint32) wasm.FuncType {
	mi, ok := s.ModuleAt(fn.ModuleIndex)
	if !ok || mi.Defined == nil {
		return wasm.FuncType{}
	}
	ty, _ := mi.Defined.GetType(ti)
	return ty
}

func (e *Executor) execTableGet(df *DefinedFunctionInstance, inst wasm.Instruction) Trap {
	idxVal, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.get: empty stack"}
	}
	t, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index))
	if !ok {
		return TrapStackError{Reason: "table.get: unresolved table"}
	}
	ref, ok := (*t).GetAt(idxVal.U32())
	if !ok {
		return TrapTableAccessOutOfBounds{Access: uint64(idxVal.U32()), TableSize: uint64((*t).Len())}
	}
	e.stack.PushValue(value.Ref(ref))
	return nil
}

func (e *Executor) execTableSet(df *DefinedFunctionInstance, inst wasm.Instruction) Trap {
	v, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.set: empty stack"}
	}
	idxVal, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.set: empty stack"}
	}
	t, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index))
	if !ok {
		return TrapStackError{Reason: "table.set: unresolved table"}
	}
	if !(*t).SetAt(idxVal.U32(), v.RefVal()) {
		return TrapTableAccessOutOfBounds{Access: uint64(idxVal.U32()), TableSize: uint64((*t).Len())}
	}
	return nil
}

func (e *Executor) execTableInit(df *DefinedFunctionInstance, inst wasm.Instruction) Trap {
	n, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.init: empty stack"}
	}
	src, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.init: empty stack"}
	}
	dst, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.init: empty stack"}
	}
	el, _, ok := e.store.Elems.Get(elemAddrOf(df.ModuleIndex, inst.Index))
	if !ok {
		return TrapStackError{Reason: "table.init: unresolved element segment"}
	}
	t, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index2))
	if !ok {
		return TrapStackError{Reason: "table.init: unresolved table"}
	}
	count := n.U32()
	srcIdx := src.U32()
	dstIdx := dst.U32()
	if uint64(srcIdx)+uint64(count) > uint64((*el).Len()) {
		return TrapTableAccessOutOfBounds{Access: uint64(srcIdx) + uint64(count), TableSize: uint64((*el).Len())}
	}
	for i := uint32(0); i < count; i++ {
		ref, _ := (*el).GetAt(int(srcIdx + i))
		if !(*t).SetAt(dstIdx+i, ref) {
			return TrapTableAccessOutOfBounds{Access: uint64(dstIdx + i), TableSize: uint64((*t).Len())}
		}
	}
	return nil
}

func (e *Executor) execTableCopy(df *DefinedFunctionInstance, inst wasm.Instruction) Trap {
	n, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.copy: empty stack"}
	}
	src, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.copy: empty stack"}
	}
	dst, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.copy: empty stack"}
	}
	dstT, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index))
	if !ok {
		return TrapStackError{Reason: "table.copy: unresolved destination table"}
	}
	srcT, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index2))
	if !ok {
		return TrapStackError{Reason: "table.copy: unresolved source table"}
	}
	count := n.U32()
	if dstT == srcT {
		if !(*dstT).CopyWithin(dst.U32(), src.U32(), count) {
			return TrapTableAccessOutOfBounds{Access: uint64(dst.U32()) + uint64(count), TableSize: uint64((*dstT).Len())}
		}
		return nil
	}
	for i := uint32(0); i < count; i++ {
		ref, ok := (*srcT).GetAt(src.U32() + i)
		if !ok || !(*dstT).SetAt(dst.U32()+i, ref) {
			return TrapTableAccessOutOfBounds{Access: uint64(src.U32() + i), TableSize: uint64((*srcT).Len())}
		}
	}
	return nil
}

func (e *Executor) execTableGrow(df *DefinedFunctionInstance, inst wasm.Instruction) Trap {
	n, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.grow: empty stack"}
	}
	v, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.grow: empty stack"}
	}
	t, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index))
	if !ok {
		return TrapStackError{Reason: "table.grow: unresolved table"}
	}
	prev, grew := (*t).Grow(n.U32(), v.RefVal())
	if !grew {
		e.stack.PushValue(value.I32(-1))
	} else {
		e.stack.PushValue(value.I32(int32(prev)))
	}
	return nil
}

func (e *Executor) execTableFill(df *DefinedFunctionInstance, inst wasm.Instruction) Trap {
	n, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.fill: empty stack"}
	}
	v, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.fill: empty stack"}
	}
	off, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "table.fill: empty stack"}
	}
	t, _, ok := e.store.Tables.Get(tableAddr(df.ModuleIndex, inst.Index))
	if !ok {
		return TrapStackError{Reason: "table.fill: unresolved table"}
	}
	if !(*t).Fill(off.U32(), n.U32(), v.RefVal()) {
		return TrapTableAccessOutOfBounds{Access: uint64(off.U32()) + uint64(n.U32()), TableSize: uint64((*t).Len())}
	}
	return nil
}

func (e *Executor) execLoad(df *DefinedFunctionInstance, inst wasm.Instruction, size uint64, decode func([]byte) value.Value) Trap {
	addrVal, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "load: empty stack"}
	}
	base := uint64(addrVal.U32())
	eff := base + uint64(inst.Mem.Offset)
	if eff < base {
		return TrapMemoryAddrOverflow{Base: base, Offset: uint64(inst.Mem.Offset)}
	}
	m, _, ok := e.store.Mems.Get(memAddr(df.ModuleIndex, 0))
	if !ok {
		return TrapStackError{Reason: "load: no memory"}
	}
	buf, ok := (*m).Load(eff, size)
	if !ok {
		return TrapMemoryAccessOutOfBounds{Access: eff + size, MemorySize: uint64((*m).DataLen())}
	}
	e.stack.PushValue(decode(buf))
	return nil
}

func (e *Executor) execStore(df *DefinedFunctionInstance, inst wasm.Instruction, size uint64, encode func(value.Value) []byte) Trap {
	v, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "store: empty stack"}
	}
	addrVal, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "store: empty stack"}
	}
	base := uint64(addrVal.U32())
	eff := base + uint64(inst.Mem.Offset)
	if eff < base {
		return TrapMemoryAddrOverflow{Base: base, Offset: uint64(inst.Mem.Offset)}
	}
	m, _, ok := e.store.Mems.Get(memAddr(df.ModuleIndex, 0))
	if !ok {
		return TrapStackError{Reason: "store: no memory"}
	}
	buf := encode(v)
	if !(*m).Store(eff, buf) {
		return TrapMemoryAccessOutOfBounds{Access: eff + size, MemorySize: uint64((*m).DataLen())}
	}
	sig, err := e.interceptor.AfterStore(eff, buf)
	if err != nil {
		return TrapHostFunctionError{Cause: err}
	}
	e.callSignal = combine(e.callSignal, sig)
	return nil
}

func (e *Executor) execMemoryInit(df *DefinedFunctionInstance, inst wasm.Instruction) Trap {
	n, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.init: empty stack"}
	}
	src, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.init: empty stack"}
	}
	dst, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.init: empty stack"}
	}
	d, _, ok := e.store.Datas.Get(dataAddrOf(df.ModuleIndex, inst.Index))
	if !ok {
		return TrapStackError{Reason: "memory.init: unresolved data segment"}
	}
	m, _, ok := e.store.Mems.Get(memAddr(df.ModuleIndex, 0))
	if !ok {
		return TrapStackError{Reason: "memory.init: no memory"}
	}
	buf, ok := (*d).Raw(uint64(src.U32()), uint64(n.U32()))
	if !ok {
		return TrapMemoryAccessOutOfBounds{Access: uint64(src.U32()) + uint64(n.U32()), MemorySize: uint64((*d).Len())}
	}
	if !(*m).Store(uint64(dst.U32()), buf) {
		return TrapMemoryAccessOutOfBounds{Access: uint64(dst.U32()) + uint64(n.U32()), MemorySize: uint64((*m).DataLen())}
	}
	return nil
}

func (e *Executor) execMemoryCopy(df *DefinedFunctionInstance) Trap {
	n, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.copy: empty stack"}
	}
	src, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.copy: empty stack"}
	}
	dst, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.copy: empty stack"}
	}
	m, _, ok := e.store.Mems.Get(memAddr(df.ModuleIndex, 0))
	if !ok {
		return TrapStackError{Reason: "memory.copy: no memory"}
	}
	size := uint64(n.U32())
	srcOff, dstOff := uint64(src.U32()), uint64(dst.U32())
	buf, ok := (*m).Load(srcOff, size)
	if !ok {
		return TrapMemoryAccessOutOfBounds{Access: srcOff + size, MemorySize: uint64((*m).DataLen())}
	}
	if !(*m).Store(dstOff, buf) {
		return TrapMemoryAccessOutOfBounds{Access: dstOff + size, MemorySize: uint64((*m).DataLen())}
	}
	return nil
}

func (e *Executor) execMemoryFill(df *DefinedFunctionInstance) Trap {
	n, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.fill: empty stack"}
	}
	v, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.fill: empty stack"}
	}
	dst, ok := e.stack.PopValue()
	if !ok {
		return TrapStackError{Reason: "memory.fill: empty stack"}
	}
	m, _, ok := e.store.Mems.Get(memAddr(df.ModuleIndex, 0))
	if !ok {
		return TrapStackError{Reason: "memory.fill: no memory"}
	}
	size := uint64(n.U32())
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(v.U32())
	}
	if !(*m).Store(uint64(dst.U32()), buf) {
		return TrapMemoryAccessOutOfBounds{Access: uint64(dst.U32()) + size, MemorySize: uint64((*m).DataLen())}
	}
	return nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
func put16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func put32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func put64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// dispatchNumeric handles every const/comparison/arithmetic/conversion
// opcode: none of these touch memory, tables, or control flow.
func (e *Executor) dispatchNumeric(inst wasm.Instruction) Trap {
	pop := func() value.Value {
		v, _ := e.stack.PopValue()
		return v
	}
	switch inst.Op {
	case wasm.OpI32Const:
		e.stack.PushValue(value.I32(inst.I32))
	case wasm.OpI64Const:
		e.stack.PushValue(value.I64(inst.I64))
	case wasm.OpF32Const:
		e.stack.PushValue(value.F32(inst.F32Bits))
	case wasm.OpF64Const:
		e.stack.PushValue(value.F64(inst.F64Bits))

	case wasm.OpI32Eqz:
		e.stack.PushValue(boolI32(pop().I32() == 0))
	case wasm.OpI32Eq:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I32() == b.I32()))
	case wasm.OpI32Ne:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I32() != b.I32()))
	case wasm.OpI32LtS:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I32() < b.I32()))
	case wasm.OpI32LtU:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.U32() < b.U32()))
	case wasm.OpI32GtS:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I32() > b.I32()))
	case wasm.OpI32GtU:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.U32() > b.U32()))
	case wasm.OpI32LeS:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I32() <= b.I32()))
	case wasm.OpI32LeU:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.U32() <= b.U32()))
	case wasm.OpI32GeS:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I32() >= b.I32()))
	case wasm.OpI32GeU:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.U32() >= b.U32()))

	case wasm.OpI64Eqz:
		e.stack.PushValue(boolI32(pop().I64() == 0))
	case wasm.OpI64Eq:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I64() == b.I64()))
	case wasm.OpI64Ne:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I64() != b.I64()))
	case wasm.OpI64LtS:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I64() < b.I64()))
	case wasm.OpI64LtU:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.U64() < b.U64()))
	case wasm.OpI64GtS:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I64() > b.I64()))
	case wasm.OpI64GtU:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.U64() > b.U64()))
	case wasm.OpI64LeS:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I64() <= b.I64()))
	case wasm.OpI64LeU:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.U64() <= b.U64()))
	case wasm.OpI64GeS:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.I64() >= b.I64()))
	case wasm.OpI64GeU:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(a.U64() >= b.U64()))

	case wasm.OpF32Eq:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f32(a) == f32(b)))
	case wasm.OpF32Ne:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f32(a) != f32(b)))
	case wasm.OpF32Lt:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f32(a) < f32(b)))
	case wasm.OpF32Gt:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f32(a) > f32(b)))
	case wasm.OpF32Le:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f32(a) <= f32(b)))
	case wasm.OpF32Ge:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f32(a) >= f32(b)))

	case wasm.OpF64Eq:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f64(a) == f64(b)))
	case wasm.OpF64Ne:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f64(a) != f64(b)))
	case wasm.OpF64Lt:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f64(a) < f64(b)))
	case wasm.OpF64Gt:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f64(a) > f64(b)))
	case wasm.OpF64Le:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f64(a) <= f64(b)))
	case wasm.OpF64Ge:
		b, a := pop(), pop()
		e.stack.PushValue(boolI32(f64(a) >= f64(b)))

	case wasm.OpI32Clz:
		e.stack.PushValue(value.I32(int32(bits.LeadingZeros32(pop().U32()))))
	case wasm.OpI32Ctz:
		e.stack.PushValue(value.I32(int32(bits.TrailingZeros32(pop().U32()))))
	case wasm.OpI32Popcnt:
		e.stack.PushValue(value.I32(int32(bits.OnesCount32(pop().U32()))))
	case wasm.OpI32Add:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(a.U32() + b.U32())))
	case wasm.OpI32Sub:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(a.U32() - b.U32())))
	case wasm.OpI32Mul:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(a.U32() * b.U32())))
	case wasm.OpI32DivS:
		b, a := pop(), pop()
		if b.I32() == 0 {
			return TrapIntegerDivisionByZero{}
		}
		if a.I32() == math.MinInt32 && b.I32() == -1 {
			return TrapIntegerOverflow{}
		}
		e.stack.PushValue(value.I32(a.I32() / b.I32()))
	case wasm.OpI32DivU:
		b, a := pop(), pop()
		if b.U32() == 0 {
			return TrapIntegerDivisionByZero{}
		}
		e.stack.PushValue(value.I32(int32(a.U32() / b.U32())))
	case wasm.OpI32RemS:
		b, a := pop(), pop()
		if b.I32() == 0 {
			return TrapIntegerDivisionByZero{}
		}
		if a.I32() == math.MinInt32 && b.I32() == -1 {
			e.stack.PushValue(value.I32(0))
		} else {
			e.stack.PushValue(value.I32(a.I32() % b.I32()))
		}
	case wasm.OpI32RemU:
		b, a := pop(), pop()
		if b.U32() == 0 {
			return TrapIntegerDivisionByZero{}
		}
		e.stack.PushValue(value.I32(int32(a.U32() % b.U32())))
	case wasm.OpI32And:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(a.U32() & b.U32())))
	case wasm.OpI32Or:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(a.U32() | b.U32())))
	case wasm.OpI32Xor:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(a.U32() ^ b.U32())))
	case wasm.OpI32Shl:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(a.U32() << (b.U32() % 32))))
	case wasm.OpI32ShrS:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(a.I32() >> (b.U32() % 32)))
	case wasm.OpI32ShrU:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(a.U32() >> (b.U32() % 32))))
	case wasm.OpI32Rotl:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(bits.RotateLeft32(a.U32(), int(b.U32()%32)))))
	case wasm.OpI32Rotr:
		b, a := pop(), pop()
		e.stack.PushValue(value.I32(int32(bits.RotateLeft32(a.U32(), -int(b.U32()%32)))))

	case wasm.OpI64Clz:
		e.stack.PushValue(value.I64(int64(bits.LeadingZeros64(pop().U64()))))
	case wasm.OpI64Ctz:
		e.stack.PushValue(value.I64(int64(bits.TrailingZeros64(pop().U64()))))
	case wasm.OpI64Popcnt:
		e.stack.PushValue(value.I64(int64(bits.OnesCount64(pop().U64()))))
	case wasm.OpI64Add:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(a.U64() + b.U64())))
	case wasm.OpI64Sub:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(a.U64() - b.U64())))
	case wasm.OpI64Mul:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(a.U64() * b.U64())))
	case wasm.OpI64DivS:
		b, a := pop(), pop()
		if b.I64() == 0 {
			return TrapIntegerDivisionByZero{}
		}
		if a.I64() == math.MinInt64 && b.I64() == -1 {
			return TrapIntegerOverflow{}
		}
		e.stack.PushValue(value.I64(a.I64() / b.I64()))
	case wasm.OpI64DivU:
		b, a := pop(), pop()
		if b.U64() == 0 {
			return TrapIntegerDivisionByZero{}
		}
		e.stack.PushValue(value.I64(int64(a.U64() / b.U64())))
	case wasm.OpI64RemS:
		b, a := pop(), pop()
		if b.I64() == 0 {
			return TrapIntegerDivisionByZero{}
		}
		if a.I64() == math.MinInt64 && b.I64() == -1 {
			e.stack.PushValue(value.I64(0))
		} else {
			e.stack.PushValue(value.I64(a.I64() % b.I64()))
		}
	case wasm.OpI64RemU:
		b, a := pop(), pop()
		if b.U64() == 0 {
			return TrapIntegerDivisionByZero{}
		}
		e.stack.PushValue(value.I64(int64(a.U64() % b.U64())))
	case wasm.OpI64And:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(a.U64() & b.U64())))
	case wasm.OpI64Or:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(a.U64() | b.U64())))
	case wasm.OpI64Xor:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(a.U64() ^ b.U64())))
	case wasm.OpI64Shl:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(a.U64() << (b.U64() % 64))))
	case wasm.OpI64ShrS:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(a.I64() >> (b.U64() % 64)))
	case wasm.OpI64ShrU:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(a.U64() >> (b.U64() % 64))))
	case wasm.OpI64Rotl:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(bits.RotateLeft64(a.U64(), int(b.U64()%64)))))
	case wasm.OpI64Rotr:
		b, a := pop(), pop()
		e.stack.PushValue(value.I64(int64(bits.RotateLeft64(a.U64(), -int(b.U64()%64)))))

	case wasm.OpF32Abs:
		e.stack.PushValue(value.F32(pop().F32Bits() &^ 0x80000000))
	case wasm.OpF32Neg:
		v := pop()
		e.stack.PushValue(value.F32(v.F32Bits() ^ 0x80000000))
	case wasm.OpF32Ceil:
		e.stack.PushValue(value.F32(math.Float32bits(float32(math.Ceil(float64(f32(pop())))))))
	case wasm.OpF32Floor:
		e.stack.PushValue(value.F32(math.Float32bits(float32(math.Floor(float64(f32(pop())))))))
	case wasm.OpF32Trunc:
		e.stack.PushValue(value.F32(math.Float32bits(float32(math.Trunc(float64(f32(pop())))))))
	case wasm.OpF32Nearest:
		e.stack.PushValue(value.F32(value.Nearest32(pop().F32Bits())))
	case wasm.OpF32Sqrt:
		e.stack.PushValue(value.F32(math.Float32bits(float32(math.Sqrt(float64(f32(pop())))))))
	case wasm.OpF32Add:
		b, a := pop(), pop()
		e.stack.PushValue(value.F32(math.Float32bits(f32(a) + f32(b))))
	case wasm.OpF32Sub:
		b, a := pop(), pop()
		e.stack.PushValue(value.F32(math.Float32bits(f32(a) - f32(b))))
	case wasm.OpF32Mul:
		b, a := pop(), pop()
		e.stack.PushValue(value.F32(math.Float32bits(f32(a) * f32(b))))
	case wasm.OpF32Div:
		b, a := pop(), pop()
		e.stack.PushValue(value.F32(math.Float32bits(f32(a) / f32(b))))
	case wasm.OpF32Min:
		b, a := pop(), pop()
		e.stack.PushValue(value.F32(value.Min32(a.F32Bits(), b.F32Bits())))
	case wasm.OpF32Max:
		b, a := pop(), pop()
		e.stack.PushValue(value.F32(value.Max32(a.F32Bits(), b.F32Bits())))
	case wasm.OpF32Copysign:
		b, a := pop(), pop()
		e.stack.PushValue(value.F32(value.CopySign32(a.F32Bits(), b.F32Bits())))

	case wasm.OpF64Abs:
		e.stack.PushValue(value.F64(pop().F64Bits() &^ 0x8000000000000000))
	case wasm.OpF64Neg:
		v := pop()
		e.stack.PushValue(value.F64(v.F64Bits() ^ 0x8000000000000000))
	case wasm.OpF64Ceil:
		e.stack.PushValue(value.F64(math.Float64bits(math.Ceil(f64(pop())))))
	case wasm.OpF64Floor:
		e.stack.PushValue(value.F64(math.Float64bits(math.Floor(f64(pop())))))
	case wasm.OpF64Trunc:
		e.stack.PushValue(value.F64(math.Float64bits(math.Trunc(f64(pop())))))
	case wasm.OpF64Nearest:
		e.stack.PushValue(value.F64(value.Nearest64(pop().F64Bits())))
	case wasm.OpF64Sqrt:
		e.stack.PushValue(value.F64(math.Float64bits(math.Sqrt(f64(pop())))))
	case wasm.OpF64Add:
		b, a := pop(), pop()
		e.stack.PushValue(value.F64(math.Float64bits(f64(a) + f64(b))))
	case wasm.OpF64Sub:
		b, a := pop(), pop()
		e.stack.PushValue(value.F64(math.Float64bits(f64(a) - f64(b))))
	case wasm.OpF64Mul:
		b, a := pop(), pop()
		e.stack.PushValue(value.F64(math.Float64bits(f64(a) * f64(b))))
	case wasm.OpF64Div:
		b, a := pop(), pop()
		e.stack.PushValue(value.F64(math.Float64bits(f64(a) / f64(b))))
	case wasm.OpF64Min:
		b, a := pop(), pop()
		e.stack.PushValue(value.F64(value.Min64(a.F64Bits(), b.F64Bits())))
	case wasm.OpF64Max:
		b, a := pop(), pop()
		e.stack.PushValue(value.F64(value.Max64(a.F64Bits(), b.F64Bits())))
	case wasm.OpF64Copysign:
		b, a := pop(), pop()
		e.stack.PushValue(value.F64(value.CopySign64(a.F64Bits(), b.F64Bits())))

	case wasm.OpI32WrapI64:
		e.stack.PushValue(value.I32(int32(pop().U64())))
	case wasm.OpI64ExtendI32S:
		e.stack.PushValue(value.I64(int64(pop().I32())))
	case wasm.OpI64ExtendI32U:
		e.stack.PushValue(value.I64(int64(pop().U32())))
	case wasm.OpF32DemoteF64:
		e.stack.PushValue(value.F32(math.Float32bits(float32(f64(pop())))))
	case wasm.OpF64PromoteF32:
		e.stack.PushValue(value.F64(math.Float64bits(float64(f32(pop())))))
	case wasm.OpF32ConvertI32S:
		e.stack.PushValue(value.F32(math.Float32bits(float32(pop().I32()))))
	case wasm.OpF32ConvertI32U:
		e.stack.PushValue(value.F32(math.Float32bits(float32(pop().U32()))))
	case wasm.OpF32ConvertI64S:
		e.stack.PushValue(value.F32(math.Float32bits(float32(pop().I64()))))
	case wasm.OpF32ConvertI64U:
		e.stack.PushValue(value.F32(math.Float32bits(float32(pop().U64()))))
	case wasm.OpF64ConvertI32S:
		e.stack.PushValue(value.F64(math.Float64bits(float64(pop().I32()))))
	case wasm.OpF64ConvertI32U:
		e.stack.PushValue(value.F64(math.Float64bits(float64(pop().U32()))))
	case wasm.OpF64ConvertI64S:
		e.stack.PushValue(value.F64(math.Float64bits(float64(pop().I64()))))
	case wasm.OpF64ConvertI64U:
		e.stack.PushValue(value.F64(math.Float64bits(float64(pop().U64()))))
	case wasm.OpI32ReinterpretF32:
		e.stack.PushValue(value.I32(int32(pop().F32Bits())))
	case wasm.OpI64ReinterpretF64:
		e.stack.PushValue(value.I64(int64(pop().F64Bits())))
	case wasm.OpF32ReinterpretI32:
		e.stack.PushValue(value.F32(uint32(pop().I32())))
	case wasm.OpF64ReinterpretI64:
		e.stack.PushValue(value.F64(uint64(pop().I64())))

	case wasm.OpI32Extend8S:
		e.stack.PushValue(value.I32(int32(int8(pop().I32()))))
	case wasm.OpI32Extend16S:
		e.stack.PushValue(value.I32(int32(int16(pop().I32()))))
	case wasm.OpI64Extend8S:
		e.stack.PushValue(value.I64(int64(int8(pop().I64()))))
	case wasm.OpI64Extend16S:
		e.stack.PushValue(value.I64(int64(int16(pop().I64()))))
	case wasm.OpI64Extend32S:
		e.stack.PushValue(value.I64(int64(int32(pop().I64()))))

	case wasm.OpI32TruncF32S:
		r, err := value.TruncF32ToI32(pop().F32Bits())
		if t := truncTrap(err); t != nil {
			return t
		}
		e.stack.PushValue(value.I32(r))
	case wasm.OpI32TruncF32U:
		r, err := value.TruncF32ToU32(pop().F32Bits())
		if t := truncTrap(err); t != nil {
			return t
		}
		e.stack.PushValue(value.I32(int32(r)))
	case wasm.OpI32TruncF64S:
		r, err := value.TruncF64ToI32(pop().F64Bits())
		if t := truncTrap(err); t != nil {
			return t
		}
		e.stack.PushValue(value.I32(r))
	case wasm.OpI32TruncF64U:
		r, err := value.TruncF64ToU32(pop().F64Bits())
		if t := truncTrap(err); t != nil {
			return t
		}
		e.stack.PushValue(value.I32(int32(r)))
	case wasm.OpI64TruncF32S:
		r, err := value.TruncF32ToI64(pop().F32Bits())
		if t := truncTrap(err); t != nil {
			return t
		}
		e.stack.PushValue(value.I64(r))
	case wasm.OpI64TruncF32U:
		r, err := value.TruncF32ToU64(pop().F32Bits())
		if t := truncTrap(err); t != nil {
			return t
		}
		e.stack.PushValue(value.I64(int64(r)))
	case wasm.OpI64TruncF64S:
		r, err := value.TruncF64ToI64(pop().F64Bits())
		if t := truncTrap(err); t != nil {
			return t
		}
		e.stack.PushValue(value.I64(r))
	case wasm.OpI64TruncF64U:
		r, err := value.TruncF64ToU64(pop().F64Bits())
		if t := truncTrap(err); t != nil {
			return t
		}
		e.stack.PushValue(value.I64(int64(r)))

	case wasm.OpI32TruncSatF32S:
		e.stack.PushValue(value.I32(value.SatTruncF32ToI32(pop().F32Bits())))
	case wasm.OpI32TruncSatF32U:
		e.stack.PushValue(value.I32(int32(value.SatTruncF32ToU32(pop().F32Bits()))))
	case wasm.OpI32TruncSatF64S:
		e.stack.PushValue(value.I32(value.SatTruncF64ToI32(pop().F64Bits())))
	case wasm.OpI32TruncSatF64U:
		e.stack.PushValue(value.I32(int32(value.SatTruncF64ToU32(pop().F64Bits()))))
	case wasm.OpI64TruncSatF32S:
		e.stack.PushValue(value.I64(value.SatTruncF32ToI64(pop().F32Bits())))
	case wasm.OpI64TruncSatF32U:
		e.stack.PushValue(value.I64(int64(value.SatTruncF32ToU64(pop().F32Bits()))))
	case wasm.OpI64TruncSatF64S:
		e.stack.PushValue(value.I64(value.SatTruncF64ToI64(pop().F64Bits())))
	case wasm.OpI64TruncSatF64U:
		e.stack.PushValue(value.I64(int64(value.SatTruncF64ToU64(pop().F64Bits()))))

	default:
		return TrapStackError{Reason: "unimplemented opcode"}
	}
	return nil
}

func boolI32(b bool) value.Value {
	if b {
		return value.I32(1)
	}
	return value.I32(0)
}

func f32(v value.Value) float32 { return math.Float32frombits(v.F32Bits()) }
func f64(v value.Value) float64 { return math.Float64frombits(v.F64Bits()) }

func truncTrap(err value.TruncError) Trap {
	switch err {
	case value.TruncInvalidConversion:
		return TrapInvalidConversionToInt{}
	case value.TruncOverflow:
		return TrapIntegerOverflow{}
	default:
		return nil
	}
}
