package vm

import "github.com/wasminspect-go/wasminspect/value"

// ElemAddress names an element segment within its owning module.
type ElemAddress = LinkableAddress[*ElementInstance]

// ElementInstance is a typed, drainable sequence of reference values backing
// table.init/elem.drop. Grounded on original_source/crates/vm/src/elem.rs.
type ElementInstance struct {
	ty   value.RefType
	elem []value.RefVal
}

// NewElementInstance constructs an element instance from its refs.
func NewElementInstance(ty value.RefType, elem []value.RefVal) *ElementInstance {
	return &ElementInstance{ty: ty, elem: elem}
}

// Len returns the number of live (not yet dropped) elements.
func (e *ElementInstance) Len() int { return len(e.elem) }

// GetAt returns the element at i, or false if i is out of range (including
// after Drop).
func (e *ElementInstance) GetAt(i int) (value.RefVal, bool) {
	if i < 0 || i >= len(e.elem) {
		return value.RefVal{}, false
	}
	return e.elem[i], true
}

// Drop empties the segment, implementing elem.drop.
func (e *ElementInstance) Drop() { e.elem = nil }
