package vm

// DataAddress names a data segment within its owning module.
type DataAddress = LinkableAddress[*DataInstance]

// DataInstance is a drainable byte sequence backing memory.init/data.drop.
// Grounded on original_source/crates/vm/src/data.rs.
type DataInstance struct {
	bytes []byte
}

// NewDataInstance constructs a data instance from its raw bytes.
func NewDataInstance(bytes []byte) *DataInstance { return &DataInstance{bytes: bytes} }

// Len returns the number of live (not yet dropped) bytes.
func (d *DataInstance) Len() int { return len(d.bytes) }

// ValidateRegion reports whether [offset, offset+size) lies within bounds.
func (d *DataInstance) ValidateRegion(offset, size uint64) bool {
	end := offset + size
	return end >= offset && end <= uint64(len(d.bytes))
}

// Raw returns the bytes in [offset, offset+size).
func (d *DataInstance) Raw(offset, size uint64) ([]byte, bool) {
	if !d.ValidateRegion(offset, size) {
		return nil, false
	}
	return d.bytes[offset : offset+size], true
}

// Drop empties the segment, implementing data.drop.
func (d *DataInstance) Drop() { d.bytes = nil }
