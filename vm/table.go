package vm

import (
	"github.com/wasminspect-go/wasminspect/value"
	"github.com/wasminspect-go/wasminspect/wasm"
)

// TableAddress names a table within its owning module; TableGlobalAddress is
// its store-wide slot.
type TableAddress = LinkableAddress[*TableInstance]
type TableGlobalAddress = GlobalAddress[*TableInstance]

// TableInstance is a resizable vector of reference values of a single
// RefType. Grounded on original_source/crates/vm/src/table.rs.
type TableInstance struct {
	buffer []value.RefVal
	max    *uint32
	elemTy value.RefType
}

// NewTableInstance allocates a table of initial elements, all null.
func NewTableInstance(elemTy value.RefType, initial uint32, max *uint32) *TableInstance {
	buf := make([]value.RefVal, initial)
	for i := range buf {
		buf[i] = value.NullRef(elemTy)
	}
	return &TableInstance{buffer: buf, max: max, elemTy: elemTy}
}

// NewTableInstanceFromType is a convenience constructor from a decoded
// wasm.TableType.
func NewTableInstanceFromType(t wasm.TableType) *TableInstance {
	return NewTableInstance(t.ElemType.RefType(), t.Limits.Min, t.Limits.Max)
}

// ElemType reports the table's reference type.
func (t *TableInstance) ElemType() value.RefType { return t.elemTy }

// Len returns the current element count.
func (t *TableInstance) Len() int { return len(t.buffer) }

// GetAt returns the element at i.
func (t *TableInstance) GetAt(i uint32) (value.RefVal, bool) {
	if int(i) >= len(t.buffer) {
		return value.RefVal{}, false
	}
	return t.buffer[i], true
}

// SetAt overwrites the element at i.
func (t *TableInstance) SetAt(i uint32, v value.RefVal) bool {
	if int(i) >= len(t.buffer) {
		return false
	}
	t.buffer[i] = v
	return true
}

// Initialize writes data starting at offset, used for active element
// segments at load time.
func (t *TableInstance) Initialize(offset uint32, data []value.RefVal) bool {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(t.buffer)) {
		return false
	}
	copy(t.buffer[offset:], data)
	return true
}

// Grow appends n copies of val. Returns the previous length and true on
// success; on failure the table is left unchanged.
func (t *TableInstance) Grow(n uint32, val value.RefVal) (previous uint32, ok bool) {
	previous = uint32(len(t.buffer))
	target := uint64(previous) + uint64(n)
	if t.max != nil && target > uint64(*t.max) {
		return previous, false
	}
	if target > 1<<32-1 {
		return previous, false
	}
	grown := make([]value.RefVal, target)
	copy(grown, t.buffer)
	for i := previous; i < uint32(target); i++ {
		grown[i] = val
	}
	t.buffer = grown
	return previous, true
}

// Fill overwrites [offset, offset+n) with val.
func (t *TableInstance) Fill(offset, n uint32, val value.RefVal) bool {
	end := uint64(offset) + uint64(n)
	if end > uint64(len(t.buffer)) {
		return false
	}
	for i := offset; i < offset+n; i++ {
		t.buffer[i] = val
	}
	return true
}

// CopyWithin copies n elements from src to dst within the same table,
// correctly handling overlap.
func (t *TableInstance) CopyWithin(dst, src, n uint32) bool {
	if uint64(dst)+uint64(n) > uint64(len(t.buffer)) || uint64(src)+uint64(n) > uint64(len(t.buffer)) {
		return false
	}
	copy(t.buffer[dst:dst+n], t.buffer[src:src+n])
	return true
}
