package wasm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/wasminspect-go/wasminspect/internal/leb128"
)

var magic = []byte{0x00, 0x61, 0x73, 0x6d}

const version1 = uint32(1)

type sectionID byte

const (
	secCustom sectionID = iota
	secType
	secImport
	secFunction
	secTable
	secMemory
	secGlobal
	secExport
	secStart
	secElement
	secCode
	secData
)

// DecodeModule parses a Wasm binary module into its structural form. It does
// not validate the module beyond what is necessary to decode it (full
// validation — e.g. type-checking every instruction against the stack — is
// the store's and executor's job, matching original_source's split between
// parsing and instantiation).
func DecodeModule(r io.Reader) (*Module, error) {
	br := bufio.NewReader(r)

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "wasm: reading module header")
	}
	if !bytes.Equal(hdr[:4], magic) {
		return nil, errors.New("wasm: invalid magic number")
	}
	if binary.LittleEndian.Uint32(hdr[4:]) != version1 {
		return nil, errors.New("wasm: unsupported version")
	}

	m := &Module{FuncNames: map[uint32]string{}}
	var funcTypeIdx []uint32 // function-section: type index per own function

	for {
		id, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "wasm: reading section id")
		}
		size, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, errors.Wrap(err, "wasm: reading section size")
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, errors.Wrap(err, "wasm: reading section payload")
		}
		sr := bufio.NewReader(bytes.NewReader(payload))

		switch sectionID(id) {
		case secType:
			if m.Types, err = decodeTypeSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: type section")
			}
		case secImport:
			if m.Imports, err = decodeImportSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: import section")
			}
		case secFunction:
			if funcTypeIdx, err = decodeFunctionSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: function section")
			}
		case secTable:
			if m.Tables, err = decodeTableSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: table section")
			}
		case secMemory:
			if m.Memories, err = decodeMemorySection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: memory section")
			}
		case secGlobal:
			if m.Globals, err = decodeGlobalSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: global section")
			}
		case secExport:
			if m.Exports, err = decodeExportSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: export section")
			}
		case secStart:
			idx, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, errors.Wrap(err, "wasm: start section")
			}
			m.Start = &idx
		case secElement:
			if m.Elements, err = decodeElementSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: element section")
			}
		case secCode:
			if m.Codes, err = decodeCodeSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: code section")
			}
		case secData:
			if m.Data, err = decodeDataSection(sr); err != nil {
				return nil, errors.Wrap(err, "wasm: data section")
			}
		case secCustom:
			name, err := readName(sr)
			if err == nil && name == "name" {
				m.FuncNames = decodeNameSection(sr)
			}
			// Other custom sections (e.g. "producers", DWARF) are ignored:
			// DWARF parsing is an explicit external collaborator.
		default:
			return nil, errors.Errorf("wasm: unknown section id %d", id)
		}
	}

	m.FunctionTypeIndices = funcTypeIdx
	if len(m.Codes) != len(funcTypeIdx) {
		return nil, errors.Errorf("wasm: function section count %d != code section count %d", len(funcTypeIdx), len(m.Codes))
	}
	return m, nil
}

func readName(r io.ByteReader) (string, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		buf[i] = b
	}
	return string(buf), nil
}

func readValType(r io.ByteReader) (ValType, error) {
	b, err := r.ReadByte()
	return ValType(b), err
}

func decodeTypeSection(r *bufio.Reader) ([]FuncType, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	types := make([]FuncType, n)
	for i := range types {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if tag != 0x60 {
			return nil, errors.Errorf("wasm: expected func type tag 0x60, got 0x%x", tag)
		}
		pn, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		params := make([]ValType, pn)
		for j := range params {
			if params[j], err = readValType(r); err != nil {
				return nil, err
			}
		}
		rn, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		results := make([]ValType, rn)
		for j := range results {
			if results[j], err = readValType(r); err != nil {
				return nil, err
			}
		}
		types[i] = FuncType{Params: params, Results: results}
	}
	return types, nil
}

func decodeLimits(r io.ByteReader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	min, err := leb128.DecodeUint32(r)
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: min}
	if flag == 1 {
		max, err := leb128.DecodeUint32(r)
		if err != nil {
			return Limits{}, err
		}
		l.Max = &max
	}
	return l, nil
}

func decodeTableType(r io.ByteReader) (TableType, error) {
	elem, err := readValType(r)
	if err != nil {
		return TableType{}, err
	}
	limits, err := decodeLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elem, Limits: limits}, nil
}

func decodeGlobalType(r io.ByteReader) (GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	m, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	return GlobalType{ValType: vt, Mutable: m == 1}, nil
}

func decodeImportSection(r *bufio.Reader) ([]Import, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	imports := make([]Import, n)
	for i := range imports {
		mod, err := readName(r)
		if err != nil {
			return nil, err
		}
		field, err := readName(r)
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		imp := Import{Module: mod, Field: field, Kind: ExternKind(kind)}
		switch imp.Kind {
		case ExternKindFunc:
			if imp.FuncTypeIndex, err = leb128.DecodeUint32(r); err != nil {
				return nil, err
			}
		case ExternKindTable:
			if imp.Table, err = decodeTableType(r); err != nil {
				return nil, err
			}
		case ExternKindMemory:
			lim, err := decodeLimits(r)
			if err != nil {
				return nil, err
			}
			imp.Memory = MemType{Limits: lim}
		case ExternKindGlobal:
			if imp.Global, err = decodeGlobalType(r); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Errorf("wasm: unknown import kind %d", kind)
		}
		imports[i] = imp
	}
	return imports, nil
}

func decodeFunctionSection(r *bufio.Reader) ([]uint32, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	idx := make([]uint32, n)
	for i := range idx {
		if idx[i], err = leb128.DecodeUint32(r); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func decodeTableSection(r *bufio.Reader) ([]TableType, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	tables := make([]TableType, n)
	for i := range tables {
		if tables[i], err = decodeTableType(r); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

func decodeMemorySection(r *bufio.Reader) ([]MemType, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	mems := make([]MemType, n)
	for i := range mems {
		lim, err := decodeLimits(r)
		if err != nil {
			return nil, err
		}
		mems[i] = MemType{Limits: lim}
	}
	return mems, nil
}

func decodeConstExpr(r *bufio.Reader) (ConstExpr, error) {
	insts, err := decodeInstructions(r)
	if err != nil {
		return ConstExpr{}, err
	}
	if len(insts) == 0 {
		return ConstExpr{}, errors.New("wasm: empty const expression")
	}
	// decodeInstructions returns the whole body including the terminating
	// `end`; a const-expr is exactly one instruction followed by `end`.
	return ConstExpr{Inst: insts[0]}, nil
}

func decodeGlobalSection(r *bufio.Reader) ([]GlobalDecl, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	globals := make([]GlobalDecl, n)
	for i := range globals {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return nil, err
		}
		init, err := decodeConstExpr(r)
		if err != nil {
			return nil, err
		}
		globals[i] = GlobalDecl{Type: gt, Init: init}
	}
	return globals, nil
}

func decodeExportSection(r *bufio.Reader) ([]Export, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	exports := make([]Export, n)
	for i := range exports {
		name, err := readName(r)
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		idx, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		exports[i] = Export{Name: name, Kind: ExternKind(kind), Index: idx}
	}
	return exports, nil
}

func decodeElementSection(r *bufio.Reader) ([]ElementSegment, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	segs := make([]ElementSegment, n)
	for i := range segs {
		flags, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		seg := ElementSegment{RefType: ValTypeFuncref}
		switch flags {
		case 0: // active, table 0, func indices, offset expr
			seg.Mode = ElemModeActive
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return nil, err
			}
			if seg.Funcs, err = decodeU32Vec(r); err != nil {
				return nil, err
			}
		case 1: // passive, func indices, elemkind byte
			seg.Mode = ElemModePassive
			if _, err := r.ReadByte(); err != nil { // elemkind, always 0 (funcref)
				return nil, err
			}
			if seg.Funcs, err = decodeU32Vec(r); err != nil {
				return nil, err
			}
		case 2: // active, explicit table index, elemkind, func indices
			seg.Mode = ElemModeActive
			if seg.TableIndex, err = leb128.DecodeUint32(r); err != nil {
				return nil, err
			}
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return nil, err
			}
			if _, err := r.ReadByte(); err != nil {
				return nil, err
			}
			if seg.Funcs, err = decodeU32Vec(r); err != nil {
				return nil, err
			}
		case 3: // declarative, elemkind, func indices
			seg.Mode = ElemModeDeclarative
			if _, err := r.ReadByte(); err != nil {
				return nil, err
			}
			if seg.Funcs, err = decodeU32Vec(r); err != nil {
				return nil, err
			}
		case 4: // active, table 0, expr elements
			seg.Mode = ElemModeActive
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return nil, err
			}
			if seg.Exprs, err = decodeExprVec(r); err != nil {
				return nil, err
			}
		case 5: // passive, reftype, expr elements
			seg.Mode = ElemModePassive
			if seg.RefType, err = readValType(r); err != nil {
				return nil, err
			}
			if seg.Exprs, err = decodeExprVec(r); err != nil {
				return nil, err
			}
		case 6: // active, explicit table, reftype, expr elements
			seg.Mode = ElemModeActive
			if seg.TableIndex, err = leb128.DecodeUint32(r); err != nil {
				return nil, err
			}
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return nil, err
			}
			if seg.RefType, err = readValType(r); err != nil {
				return nil, err
			}
			if seg.Exprs, err = decodeExprVec(r); err != nil {
				return nil, err
			}
		case 7: // declarative, reftype, expr elements
			seg.Mode = ElemModeDeclarative
			if seg.RefType, err = readValType(r); err != nil {
				return nil, err
			}
			if seg.Exprs, err = decodeExprVec(r); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Errorf("wasm: unknown element segment flags %d", flags)
		}
		segs[i] = seg
	}
	return segs, nil
}

func decodeU32Vec(r *bufio.Reader) ([]uint32, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = leb128.DecodeUint32(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeExprVec(r *bufio.Reader) ([]ConstExpr, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]ConstExpr, n)
	for i := range out {
		if out[i], err = decodeConstExpr(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeCodeSection(r *bufio.Reader) ([]Code, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	codes := make([]Code, n)
	for i := range codes {
		size, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		br := bufio.NewReader(bytes.NewReader(body))

		localGroups, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, err
		}
		var locals []ValType
		for g := uint32(0); g < localGroups; g++ {
			count, err := leb128.DecodeUint32(br)
			if err != nil {
				return nil, err
			}
			vt, err := readValType(br)
			if err != nil {
				return nil, err
			}
			for c := uint32(0); c < count; c++ {
				locals = append(locals, vt)
			}
		}
		insts, err := decodeInstructions(br)
		if err != nil {
			return nil, errors.Wrapf(err, "wasm: decoding function body %d", i)
		}
		codes[i] = Code{Locals: locals, Instructions: insts}
	}
	return codes, nil
}

func decodeDataSection(r *bufio.Reader) ([]DataSegment, error) {
	n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	segs := make([]DataSegment, n)
	for i := range segs {
		kind, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		seg := DataSegment{}
		switch kind {
		case 0:
			seg.Mode = DataModeActive
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return nil, err
			}
		case 1:
			seg.Mode = DataModePassive
		case 2:
			seg.Mode = DataModeActive
			if seg.MemoryIndex, err = leb128.DecodeUint32(r); err != nil {
				return nil, err
			}
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Errorf("wasm: unknown data segment kind %d", kind)
		}
		byteLen, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, byteLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		seg.Bytes = buf
		segs[i] = seg
	}
	return segs, nil
}

func decodeNameSection(r *bufio.Reader) map[uint32]string {
	names := map[uint32]string{}
	for {
		subID, err := r.ReadByte()
		if err != nil {
			return names
		}
		size, err := leb128.DecodeUint32(r)
		if err != nil {
			return names
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return names
		}
		if subID != 1 { // only the function-names subsection is consumed
			continue
		}
		sr := bufio.NewReader(bytes.NewReader(payload))
		count, err := leb128.DecodeUint32(sr)
		if err != nil {
			continue
		}
		for i := uint32(0); i < count; i++ {
			idx, err := leb128.DecodeUint32(sr)
			if err != nil {
				break
			}
			name, err := readName(sr)
			if err != nil {
				break
			}
			names[idx] = name
		}
	}
}

// decodeInstructions reads a flat, offset-tagged instruction sequence from a
// function body or a const expression, stopping after the `end` that closes
// the outermost (function- or expr-level) block.
func decodeInstructions(r *bufio.Reader) ([]Instruction, error) {
	var insts []Instruction
	depth := 0
	offset := uint32(0)
	for {
		inst, n, err := decodeOneInstruction(r, offset)
		if err != nil {
			return nil, err
		}
		offset += n
		insts = append(insts, inst)
		switch inst.Op {
		case OpBlock, OpLoop, OpIf:
			depth++
		case OpEnd:
			if depth == 0 {
				return insts, nil
			}
			depth--
		}
	}
}

// countingByteReader wraps a ByteReader and counts the bytes read through
// it, so decodeOneInstruction can tell how many bytes each instruction took.
type countingByteReader struct {
	r io.ByteReader
	n uint32
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

func decodeOneInstruction(r io.ByteReader, baseOffset uint32) (Instruction, uint32, error) {
	cr := &countingByteReader{r: r}
	opByte, err := cr.ReadByte()
	if err != nil {
		return Instruction{}, 0, err
	}
	inst := Instruction{Offset: baseOffset}

	op := Opcode(opByte)
	if opByte == 0xfc {
		sub, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		op = prefixFC | Opcode(sub)
	}
	inst.Op = op

	switch op {
	case OpBlock, OpLoop, OpIf:
		bt, err := decodeBlockType(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.Block = bt
	case OpBr, OpBrIf, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet,
		OpCall, OpTableGet, OpTableSet, OpRefFunc, OpElemDrop, OpDataDrop, OpTableSize:
		idx, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.Index = idx
	case OpCallIndirect:
		typeIdx, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		tableIdx, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.Index, inst.Index2 = typeIdx, tableIdx
	case OpTableInit, OpTableCopy:
		a, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		b, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.Index, inst.Index2 = a, b
	case OpTableGrow, OpTableFill:
		idx, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.Index = idx
	case OpMemoryInit:
		a, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		if _, err := cr.ReadByte(); err != nil { // memory index, always 0
			return Instruction{}, 0, err
		}
		inst.Index = a
	case OpMemoryCopy:
		if _, err := cr.ReadByte(); err != nil {
			return Instruction{}, 0, err
		}
		if _, err := cr.ReadByte(); err != nil {
			return Instruction{}, 0, err
		}
	case OpMemoryFill:
		if _, err := cr.ReadByte(); err != nil {
			return Instruction{}, 0, err
		}
	case OpBrTable:
		n, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		targets := make([]uint32, n)
		for i := range targets {
			if targets[i], err = leb128.DecodeUint32(cr); err != nil {
				return Instruction{}, 0, err
			}
		}
		def, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.BrTable = BrTableImm{Targets: targets, Default: def}
	case OpI32Const:
		v, err := leb128.DecodeInt32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.I32 = v
	case OpI64Const:
		v, err := leb128.DecodeInt64(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.I64 = v
	case OpF32Const:
		var buf [4]byte
		for i := range buf {
			if buf[i], err = cr.ReadByte(); err != nil {
				return Instruction{}, 0, err
			}
		}
		inst.F32Bits = binary.LittleEndian.Uint32(buf[:])
	case OpF64Const:
		var buf [8]byte
		for i := range buf {
			if buf[i], err = cr.ReadByte(); err != nil {
				return Instruction{}, 0, err
			}
		}
		inst.F64Bits = binary.LittleEndian.Uint64(buf[:])
	case OpRefNull:
		vt, err := readValType(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		inst.RefType = vt
	case OpSelectT:
		n, err := leb128.DecodeUint32(cr)
		if err != nil {
			return Instruction{}, 0, err
		}
		for i := uint32(0); i < n; i++ { // Wasm 1.0 only allows exactly one result type here
			vt, err := readValType(cr)
			if err != nil {
				return Instruction{}, 0, err
			}
			inst.SelectTy = vt
		}
	case OpI32TruncSatF32S, OpI32TruncSatF32U, OpI32TruncSatF64S, OpI32TruncSatF64U,
		OpI64TruncSatF32S, OpI64TruncSatF32U, OpI64TruncSatF64S, OpI64TruncSatF64U:
		// no immediate operand
	case OpMemorySize, OpMemoryGrow:
		if _, err := cr.ReadByte(); err != nil { // reserved memory-index byte
			return Instruction{}, 0, err
		}
	default:
		if isMemOp(op) {
			align, err := leb128.DecodeUint32(cr)
			if err != nil {
				return Instruction{}, 0, err
			}
			off, err := leb128.DecodeUint32(cr)
			if err != nil {
				return Instruction{}, 0, err
			}
			inst.Mem = MemArg{Align: align, Offset: off}
		}
		// everything else (unreachable, nop, else, end, return, drop,
		// select, all comparison/arithmetic/conversion ops, memory.size,
		// memory.grow, ref.is_null) has no immediate operand.
	}
	return inst, cr.n, nil
}

func isMemOp(op Opcode) bool {
	switch op {
	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		return true
	}
	return false
}

func decodeBlockType(r io.ByteReader) (BlockType, error) {
	// Block types are encoded as: 0x40 (empty), a value type byte, or a
	// signed LEB128 s33 type index (always non-negative in practice).
	b, err := peekByte(r)
	if err != nil {
		return BlockType{}, err
	}
	if b == 0x40 {
		consumeByte(r)
		return BlockType{Empty: true}, nil
	}
	switch ValType(b) {
	case ValTypeI32, ValTypeI64, ValTypeF32, ValTypeF64, ValTypeFuncref, ValTypeExternref:
		consumeByte(r)
		return BlockType{ValType: ValType(b), HasVal: true}, nil
	}
	idx, err := leb128.DecodeInt64(r)
	if err != nil {
		return BlockType{}, err
	}
	if idx < 0 {
		return BlockType{}, errors.Errorf("wasm: invalid block type index %d", idx)
	}
	return BlockType{TypeIndex: uint32(idx), HasIndex: true}, nil
}

// peekByte/consumeByte let decodeBlockType distinguish 0x40/value-type bytes
// from a genuine LEB128 type index without a full io.Reader.UnreadByte
// dependency (io.ByteReader alone doesn't guarantee one).
func peekByte(r io.ByteReader) (byte, error) {
	if p, ok := r.(*countingByteReader); ok {
		if br, ok := p.r.(*bufio.Reader); ok {
			bs, err := br.Peek(1)
			if err != nil {
				return 0, err
			}
			return bs[0], nil
		}
	}
	if br, ok := r.(*bufio.Reader); ok {
		bs, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		return bs[0], nil
	}
	return 0, fmt.Errorf("wasm: block type reader does not support peek")
}

func consumeByte(r io.ByteReader) { _, _ = r.ReadByte() }
