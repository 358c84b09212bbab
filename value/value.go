// Package value implements the Wasm value model: the tagged scalar/reference
// value type, its little-endian marshalling, and the float helpers whose
// exact bit-level behavior (NaN quieting, saturating truncation ranges,
// ties-to-even rounding) the Wasm spec mandates.
//
// Grounded on original_source/crates/vm/src/value.rs.
package value

import "fmt"

// Type identifies the kind of a Value, independent of its payload.
type Type byte

const (
	TypeI32 Type = iota
	TypeI64
	TypeF32
	TypeF64
	TypeRef
)

func (t Type) String() string {
	switch t {
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeRef:
		return "ref"
	default:
		return "unknown"
	}
}

// RefType is the element type of a reference value: FuncRef or ExternRef.
type RefType byte

const (
	RefTypeFunc RefType = iota
	RefTypeExtern
)

func (t RefType) String() string {
	if t == RefTypeExtern {
		return "externref"
	}
	return "funcref"
}

// RefVal is a reference-typed value: an opaque function address, an opaque
// host-assigned extern index, or the typed null reference.
type RefVal struct {
	kind    refKind
	funcRef uint64 // GlobalAddress of a FunctionInstance, valid when kind == refKindFunc
	extern  uint32 // host-assigned opaque handle, valid when kind == refKindExtern
	null    RefType
}

type refKind byte

const (
	refKindFunc refKind = iota
	refKindExtern
	refKindNull
)

// FuncRef constructs a reference to the function at the given store-global
// address.
func FuncRef(addr uint64) RefVal { return RefVal{kind: refKindFunc, funcRef: addr} }

// ExternRef constructs an opaque host reference.
func ExternRef(handle uint32) RefVal { return RefVal{kind: refKindExtern, extern: handle} }

// NullRef constructs the null reference of the given reference type.
func NullRef(t RefType) RefVal { return RefVal{kind: refKindNull, null: t} }

// IsNull reports whether r is the null reference.
func (r RefVal) IsNull() bool { return r.kind == refKindNull }

// Type reports the reference type of r.
func (r RefVal) Type() RefType {
	if r.kind == refKindExtern {
		return RefTypeExtern
	}
	if r.kind == refKindNull {
		return r.null
	}
	return RefTypeFunc
}

// FuncAddr returns the function address held by r and whether r holds one.
func (r RefVal) FuncAddr() (uint64, bool) {
	return r.funcRef, r.kind == refKindFunc
}

// ExternHandle returns the opaque handle held by r and whether r holds one.
func (r RefVal) ExternHandle() (uint32, bool) {
	return r.extern, r.kind == refKindExtern
}

func (r RefVal) String() string {
	switch r.kind {
	case refKindFunc:
		return fmt.Sprintf("funcref(%d)", r.funcRef)
	case refKindExtern:
		return fmt.Sprintf("externref(%d)", r.extern)
	default:
		return fmt.Sprintf("null(%s)", r.null)
	}
}

// Value is a tagged Wasm runtime value. Floats are stored as their raw IEEE
// 754 bit patterns so that NaN payloads survive every copy, push, and pop —
// Go's float32/float64 arithmetic is not used to hold a Value at rest.
type Value struct {
	typ Type
	bits uint64 // I32 (low 32 bits, sign-extended on read), I64, F32 bits, F64 bits
	ref  RefVal
}

// I32 constructs an i32 value.
func I32(v int32) Value { return Value{typ: TypeI32, bits: uint64(uint32(v))} }

// I64 constructs an i64 value.
func I64(v int64) Value { return Value{typ: TypeI64, bits: uint64(v)} }

// F32 constructs an f32 value from its raw bit pattern.
func F32(bits uint32) Value { return Value{typ: TypeF32, bits: uint64(bits)} }

// F64 constructs an f64 value from its raw bit pattern.
func F64(bits uint64) Value { return Value{typ: TypeF64, bits: bits} }

// Ref constructs a reference-typed value.
func Ref(r RefVal) Value { return Value{typ: TypeRef, ref: r} }

// Type reports the kind of v.
func (v Value) Type() Type { return v.typ }

// I32 returns v's payload reinterpreted as int32. Panics if v is not an i32.
func (v Value) I32() int32 {
	v.mustBe(TypeI32)
	return int32(uint32(v.bits))
}

// I64 returns v's payload reinterpreted as int64. Panics if v is not an i64.
func (v Value) I64() int64 {
	v.mustBe(TypeI64)
	return int64(v.bits)
}

// F32Bits returns v's raw f32 bit pattern. Panics if v is not an f32.
func (v Value) F32Bits() uint32 {
	v.mustBe(TypeF32)
	return uint32(v.bits)
}

// F64Bits returns v's raw f64 bit pattern. Panics if v is not an f64.
func (v Value) F64Bits() uint64 {
	v.mustBe(TypeF64)
	return v.bits
}

// RefVal returns v's reference payload. Panics if v is not a reference.
func (v Value) RefVal() RefVal {
	v.mustBe(TypeRef)
	return v.ref
}

// U32 returns v's i32 payload reinterpreted as uint32, for unsigned ops.
func (v Value) U32() uint32 {
	v.mustBe(TypeI32)
	return uint32(v.bits)
}

// U64 returns v's i64 payload reinterpreted as uint64, for unsigned ops.
func (v Value) U64() uint64 {
	v.mustBe(TypeI64)
	return v.bits
}

func (v Value) mustBe(t Type) {
	if v.typ != t {
		panic(fmt.Sprintf("value: expected %s, got %s", t, v.typ))
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case TypeI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case TypeF32:
		return fmt.Sprintf("f32:0x%08x", v.F32Bits())
	case TypeF64:
		return fmt.Sprintf("f64:0x%016x", v.F64Bits())
	default:
		return fmt.Sprintf("ref:%s", v.ref)
	}
}

// Zero returns the zero value for t. RefTypes default to the null funcref.
func Zero(t Type) Value {
	switch t {
	case TypeI32:
		return I32(0)
	case TypeI64:
		return I64(0)
	case TypeF32:
		return F32(0)
	case TypeF64:
		return F64(0)
	default:
		return Ref(NullRef(RefTypeFunc))
	}
}
