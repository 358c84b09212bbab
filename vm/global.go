package vm

import "github.com/wasminspect-go/wasminspect/value"

// GlobalAddr names a global within its owning module; GlobalGlobalAddress is
// its store-wide slot. (Named GlobalAddr, not GlobalAddress, to avoid
// colliding with the generic GlobalAddress[T] type name.)
type GlobalAddr = LinkableAddress[*GlobalInstance]
type GlobalGlobalAddress = GlobalAddress[*GlobalInstance]

// GlobalInstance is a single mutable-or-constant typed value cell.
//
// Grounded on original_source/crates/vm/src/global.rs.
type GlobalInstance struct {
	val     value.Value
	mutable bool
	ty      value.Type
}

// NewGlobalInstance constructs a global with the given initial value and
// mutability.
func NewGlobalInstance(v value.Value, mutable bool) *GlobalInstance {
	return &GlobalInstance{val: v, mutable: mutable, ty: v.Type()}
}

// Value returns the global's current value.
func (g *GlobalInstance) Value() value.Value { return g.val }

// IsMutable reports whether global.set may target g.
func (g *GlobalInstance) IsMutable() bool { return g.mutable }

// Type reports g's value type.
func (g *GlobalInstance) Type() value.Type { return g.ty }

// SetValue overwrites g's value. Panics if g is immutable: the executor must
// check IsMutable (or rely on load-time validation) before calling — per
// data model invariant 4, a well-formed program never reaches this with an
// immutable target.
func (g *GlobalInstance) SetValue(v value.Value) {
	if !g.mutable {
		panic("vm: global.set on immutable global")
	}
	g.val = v
}
