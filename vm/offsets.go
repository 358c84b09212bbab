package vm

import "math"

// instructionOffsets is a compact map from an instruction's index in a
// function body to its byte offset in the original binary, used by
// DefinedFunctionInstance.OffsetAt for instruction-offset breakpoints and
// disassembly views.
//
// Offsets within a function body are monotonically increasing, so the
// array stores the first offset plus a per-instruction delta, picking the
// narrowest integer width that holds the largest delta observed. This is
// the frame-of-reference/delta-encoding scheme internal/bitpack used in
// tetratelabs-wazero, folded directly into the one call shape this module
// needs (instIndex -> byte offset) instead of kept as a general-purpose
// array type with its own interface and entry points.
type instructionOffsets struct {
	first  uint64
	deltas any // nil, []uint8, []uint16, []uint32, or []uint64
}

func newInstructionOffsets(offsets []uint64) instructionOffsets {
	if len(offsets) == 0 {
		return instructionOffsets{}
	}

	maxDelta := uint64(0)
	last := offsets[0]
	for _, off := range offsets[1:] {
		if delta := off - last; delta > maxDelta {
			maxDelta = delta
		}
		last = off
	}

	rest := offsets[1:]
	switch {
	case maxDelta > math.MaxUint32:
		deltas := make([]uint64, len(rest))
		last = offsets[0]
		for i, off := range rest {
			deltas[i] = off - last
			last = off
		}
		return instructionOffsets{first: offsets[0], deltas: deltas}
	case maxDelta > math.MaxUint16:
		deltas := make([]uint32, len(rest))
		last = offsets[0]
		for i, off := range rest {
			deltas[i] = uint32(off - last)
			last = off
		}
		return instructionOffsets{first: offsets[0], deltas: deltas}
	case maxDelta > math.MaxUint8:
		deltas := make([]uint16, len(rest))
		last = offsets[0]
		for i, off := range rest {
			deltas[i] = uint16(off - last)
			last = off
		}
		return instructionOffsets{first: offsets[0], deltas: deltas}
	default:
		deltas := make([]uint8, len(rest))
		last = offsets[0]
		for i, off := range rest {
			deltas[i] = uint8(off - last)
			last = off
		}
		return instructionOffsets{first: offsets[0], deltas: deltas}
	}
}

func (o instructionOffsets) len() int {
	switch d := o.deltas.(type) {
	case []uint8:
		return len(d) + 1
	case []uint16:
		return len(d) + 1
	case []uint32:
		return len(d) + 1
	case []uint64:
		return len(d) + 1
	default:
		return 0
	}
}

// at returns the byte offset at instIndex, assuming 0 <= instIndex < len(o).
func (o instructionOffsets) at(instIndex int) uint64 {
	if instIndex == 0 {
		return o.first
	}
	value := o.first
	switch d := o.deltas.(type) {
	case []uint8:
		for _, delta := range d[:instIndex] {
			value += uint64(delta)
		}
	case []uint16:
		for _, delta := range d[:instIndex] {
			value += uint64(delta)
		}
	case []uint32:
		for _, delta := range d[:instIndex] {
			value += uint64(delta)
		}
	case []uint64:
		for _, delta := range d[:instIndex] {
			value += delta
		}
	}
	return value
}
