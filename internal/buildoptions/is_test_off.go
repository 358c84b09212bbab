//go:build !wazero_testing

package buildoptions

// IstTest reports whether the wazero_testing build tag is set. This file is
// built only without that tag and no file here is built with it, so IstTest
// is false, in unit test runs too.
const IstTest = false

// CallStackCeiling is the maximum number of activation records the
// executor's stack may hold at once. Exceeding it traps with StackError
// instead of growing the Go call stack or the interpreter stack unbounded.
const CallStackCeiling = 1024
