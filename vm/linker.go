// Package vm implements the store, linker, stack, and instruction-dispatch
// executor: the tree-walking interpreter core. Grounded throughout on
// original_source/crates/vm/src/{linker,store,stack,executor,interceptor,
// func,module,memory,table,elem,data,global,export,host,address}.rs.
package vm

// ModuleIndex identifies one loaded module within a Store.
type ModuleIndex uint32

// GlobalAddress is the store-wide, monotonic slot index of an instance of
// kind T. It survives the module that created it; it is what an exported
// entry and a host module's handles are expressed in terms of.
type GlobalAddress[T any] struct {
	idx   int
	valid bool
}

// IsValid reports whether a is a real address (the zero value is not).
func (a GlobalAddress[T]) IsValid() bool { return a.valid }

// LinkableAddress is a module-local index: (owning or importing module,
// local slot). Every instruction operand that names a function/table/
// memory/global holds one of these; it must be resolved to a GlobalAddress
// before use.
type LinkableAddress[T any] struct {
	Module ModuleIndex
	local  int
	valid  bool
}

// IsValid reports whether a is a real address (the zero value is not).
func (a LinkableAddress[T]) IsValid() bool { return a.valid }

// LinkableCollection owns every instance of kind T across every module in a
// Store, plus the per-module local-index -> global-slot tables used to
// resolve LinkableAddress values. Grounded on
// original_source/crates/vm/src/linker.rs.
type LinkableCollection[T any] struct {
	items             []T
	itemAddrsByModule map[ModuleIndex][]int
}

// NewLinkableCollection constructs an empty collection.
func NewLinkableCollection[T any]() *LinkableCollection[T] {
	return &LinkableCollection[T]{itemAddrsByModule: map[ModuleIndex][]int{}}
}

// PushGlobal appends item without associating it with any module; used for
// host-provided instances that aren't owned by a parsed module.
func (c *LinkableCollection[T]) PushGlobal(item T) GlobalAddress[T] {
	c.items = append(c.items, item)
	return GlobalAddress[T]{idx: len(c.items) - 1, valid: true}
}

// Push appends item and registers it as module m's next local slot.
func (c *LinkableCollection[T]) Push(m ModuleIndex, item T) LinkableAddress[T] {
	global := c.PushGlobal(item)
	localIdx := len(c.itemAddrsByModule[m])
	c.itemAddrsByModule[m] = append(c.itemAddrsByModule[m], global.idx)
	return LinkableAddress[T]{Module: m, local: localIdx, valid: true}
}

// Link aliases an existing global slot into module dst's local slot table,
// returning the LinkableAddress a future instruction in dst can use to
// reach it. Used to satisfy an import.
func (c *LinkableCollection[T]) Link(global GlobalAddress[T], dst ModuleIndex) LinkableAddress[T] {
	localIdx := len(c.itemAddrsByModule[dst])
	c.itemAddrsByModule[dst] = append(c.itemAddrsByModule[dst], global.idx)
	return LinkableAddress[T]{Module: dst, local: localIdx, valid: true}
}

// Resolve maps a LinkableAddress to its GlobalAddress.
func (c *LinkableCollection[T]) Resolve(addr LinkableAddress[T]) (GlobalAddress[T], bool) {
	if !addr.valid {
		return GlobalAddress[T]{}, false
	}
	slots := c.itemAddrsByModule[addr.Module]
	if addr.local < 0 || addr.local >= len(slots) {
		return GlobalAddress[T]{}, false
	}
	return GlobalAddress[T]{idx: slots[addr.local], valid: true}, true
}

// Get resolves addr and returns a pointer to the underlying item plus its
// GlobalAddress. The pointer is valid for the lifetime of the collection
// (items is never reallocated after load time in normal use); callers must
// still treat it as a short-lived borrow scoped to one instruction handler
// per the store's shared-resource policy.
func (c *LinkableCollection[T]) Get(addr LinkableAddress[T]) (*T, GlobalAddress[T], bool) {
	global, ok := c.Resolve(addr)
	if !ok {
		return nil, GlobalAddress[T]{}, false
	}
	return &c.items[global.idx], global, true
}

// GetGlobal returns a pointer to the item at a store-wide address.
func (c *LinkableCollection[T]) GetGlobal(addr GlobalAddress[T]) (*T, bool) {
	if !addr.valid || addr.idx < 0 || addr.idx >= len(c.items) {
		return nil, false
	}
	return &c.items[addr.idx], true
}

// RemoveModule drops m's local slot list. The underlying items remain (a
// known, intentional liveness leak on load failure or module unload — see
// spec.md §9 "Cyclic liveness on load failure"); nothing outside the removed
// module ever held a LinkableAddress into it, so the "every live address
// resolves" invariant is unaffected.
func (c *LinkableCollection[T]) RemoveModule(m ModuleIndex) {
	delete(c.itemAddrsByModule, m)
}

// Items returns the global addresses of every item module m registered, in
// local-index order.
func (c *LinkableCollection[T]) Items(m ModuleIndex) []GlobalAddress[T] {
	slots := c.itemAddrsByModule[m]
	if slots == nil {
		return nil
	}
	out := make([]GlobalAddress[T], len(slots))
	for i, idx := range slots {
		out[i] = GlobalAddress[T]{idx: idx, valid: true}
	}
	return out
}

// IsEmpty reports whether module m has registered no slots of kind T.
func (c *LinkableCollection[T]) IsEmpty(m ModuleIndex) bool {
	return len(c.itemAddrsByModule[m]) == 0
}
