package vm

import "fmt"

// LoadError is the closed taxonomy of failures LoadModule can return. Every
// concrete type below implements LoadError; a type switch on the concrete
// type is how a caller discriminates, matching spec.md §7's load-time error
// taxonomy the same way vm.Trap covers runtime faults. Every LoadModule
// failure — of this taxonomy or not — triggers a full rollback of any
// slots already registered for the module (data model invariant 7, "load
// atomicity").
type LoadError interface {
	error
	loadError()
}

type loadErrorBase struct{}

func (loadErrorBase) loadError() {}

// UnknownType is raised when an import or function definition references a
// type-section index beyond the module's declared types.
type UnknownType struct {
	loadErrorBase
	Index uint32
}

func (e UnknownType) Error() string { return fmt.Sprintf("unknown type index %d", e.Index) }

// importRef identifies the import an error concerns.
type importRef struct {
	Module, Field string
}

func (r importRef) String() string { return r.Module + "." + r.Field }

// UndefinedImportFunc is raised when a function import names a module or
// field with no matching export.
type UndefinedImportFunc struct {
	loadErrorBase
	importRef
}

func (e UndefinedImportFunc) Error() string { return "undefined function import: " + e.String() }

// UndefinedImportMemory is raised when a memory import names a module or
// field with no matching export.
type UndefinedImportMemory struct {
	loadErrorBase
	importRef
}

func (e UndefinedImportMemory) Error() string { return "undefined memory import: " + e.String() }

// UndefinedImportTable is raised when a table import names a module or
// field with no matching export.
type UndefinedImportTable struct {
	loadErrorBase
	importRef
}

func (e UndefinedImportTable) Error() string { return "undefined table import: " + e.String() }

// UndefinedImportGlobal is raised when a global import names a module or
// field with no matching export.
type UndefinedImportGlobal struct {
	loadErrorBase
	importRef
}

func (e UndefinedImportGlobal) Error() string { return "undefined global import: " + e.String() }

// IncompatibleImportFunc is raised when a function import's declared
// signature doesn't equal the actual export's.
type IncompatibleImportFunc struct {
	loadErrorBase
	importRef
	Expected, Actual string
}

func (e IncompatibleImportFunc) Error() string {
	return fmt.Sprintf("incompatible function import %s: expected %s, got %s", e.String(), e.Expected, e.Actual)
}

// IncompatibleImportMemory is raised when a memory import's declared limits
// exceed the actual export's (initial too large, or a declared max not met
// by the actual max).
type IncompatibleImportMemory struct {
	loadErrorBase
	importRef
	Reason string
}

func (e IncompatibleImportMemory) Error() string {
	return fmt.Sprintf("incompatible memory import %s: %s", e.String(), e.Reason)
}

// IncompatibleImportTable is raised when a table import's element type or
// declared limits don't match the actual export's.
type IncompatibleImportTable struct {
	loadErrorBase
	importRef
	Reason string
}

func (e IncompatibleImportTable) Error() string {
	return fmt.Sprintf("incompatible table import %s: %s", e.String(), e.Reason)
}

// IncompatibleImportGlobal is raised when a global import's content type
// doesn't match the actual export's.
type IncompatibleImportGlobal struct {
	loadErrorBase
	importRef
	Expected, Actual string
}

func (e IncompatibleImportGlobal) Error() string {
	return fmt.Sprintf("incompatible global import %s: expected type %s, got %s", e.String(), e.Expected, e.Actual)
}

// IncompatibleImportGlobalMutability is raised when a global import's
// mutability doesn't match the actual export's, even if the content type
// agrees — spec.md §4.2 treats this as distinct from a content-type
// mismatch.
type IncompatibleImportGlobalMutability struct {
	loadErrorBase
	importRef
}

func (e IncompatibleImportGlobalMutability) Error() string {
	return "incompatible global import mutability: " + e.String()
}

// InvalidElementSegments is raised when an element segment names a
// nonexistent table, its offset expression fails to evaluate, or its
// initialization would write out of the target table's bounds.
type InvalidElementSegments struct {
	loadErrorBase
	Reason string
}

func (e InvalidElementSegments) Error() string { return "invalid element segments: " + e.Reason }

// InvalidDataSegments is raised when a data segment names a nonexistent
// memory, its offset expression fails to evaluate, or its initialization
// would write out of the target memory's bounds.
type InvalidDataSegments struct {
	loadErrorBase
	Reason string
}

func (e InvalidDataSegments) Error() string { return "invalid data segments: " + e.Reason }

// FailedEntryFunction is raised when a module's start function traps when
// run as part of loading. Grounded on spec.md §4.2's worked example: a
// start function executing unreachable makes LoadModule return this,
// rolled back, rather than succeed with a module whose invariants were
// never established.
type FailedEntryFunction struct {
	loadErrorBase
	Trap Trap
}

func (e FailedEntryFunction) Error() string { return "start function failed: " + e.Trap.Error() }
func (e FailedEntryFunction) Unwrap() error { return e.Trap }
