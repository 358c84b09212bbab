package vm

import "github.com/wasminspect-go/wasminspect/wasm"

// WasmPageSize is the fixed unit of memory growth, in bytes.
const WasmPageSize = 0x10000

// MaxMemoryPages is the hard ceiling on memory size, regardless of any
// declared maximum.
const MaxMemoryPages = 65536

// MemoryAddress names a memory within its owning module; MemoryGlobalAddress
// is its store-wide slot.
type MemoryAddress = LinkableAddress[*MemoryInstance]
type MemoryGlobalAddress = GlobalAddress[*MemoryInstance]

// MemoryInstance is a resizable byte buffer sized in whole pages.
//
// Grounded on original_source/crates/vm/src/memory.rs.
type MemoryInstance struct {
	data []byte
	max  *uint32 // in pages; nil means unbounded up to MaxMemoryPages
}

// NewMemoryInstance allocates a zeroed memory of initial pages, capped at
// max pages if set.
func NewMemoryInstance(initial uint32, max *uint32) *MemoryInstance {
	return &MemoryInstance{data: make([]byte, uint64(initial)*WasmPageSize), max: max}
}

// NewMemoryInstanceFromType is a convenience constructor from a decoded
// wasm.MemType.
func NewMemoryInstanceFromType(t wasm.MemType) *MemoryInstance {
	return NewMemoryInstance(t.Limits.Min, t.Limits.Max)
}

// PageCount returns the current size in pages.
func (m *MemoryInstance) PageCount() uint32 { return uint32(len(m.data) / WasmPageSize) }

// DataLen returns the current size in bytes; always a multiple of
// WasmPageSize (data model invariant 5).
func (m *MemoryInstance) DataLen() int { return len(m.data) }

// Raw returns the live backing byte slice. Callers must treat it as a
// short-lived borrow (spec.md §5 shared-resource policy).
func (m *MemoryInstance) Raw() []byte { return m.data }

// ValidateRegion reports whether [offset, offset+size) lies within bounds.
func (m *MemoryInstance) ValidateRegion(offset, size uint64) bool {
	end := offset + size
	return end >= offset && end <= uint64(len(m.data))
}

// Load copies size bytes starting at offset into a fresh slice.
func (m *MemoryInstance) Load(offset, size uint64) ([]byte, bool) {
	if !m.ValidateRegion(offset, size) {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, m.data[offset:offset+size])
	return out, true
}

// Store writes buf at offset.
func (m *MemoryInstance) Store(offset uint64, buf []byte) bool {
	if !m.ValidateRegion(offset, uint64(len(buf))) {
		return false
	}
	copy(m.data[offset:], buf)
	return true
}

// Grow increases size by delta pages. Returns the previous page count and
// true on success; on failure (exceeding max or the hard ceiling) the
// memory is left unchanged and ok is false — callers push -1, they never
// trap (spec.md §4.3 "Memory ops", and testable property "Bounds
// monotonicity").
func (m *MemoryInstance) Grow(delta uint32) (previous uint32, ok bool) {
	previous = m.PageCount()
	target := uint64(previous) + uint64(delta)
	if target > MaxMemoryPages {
		return previous, false
	}
	if m.max != nil && target > uint64(*m.max) {
		return previous, false
	}
	grown := make([]byte, target*WasmPageSize)
	copy(grown, m.data)
	m.data = grown
	return previous, true
}
