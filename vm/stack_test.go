package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasminspect-go/wasminspect/internal/buildoptions"
	"github.com/wasminspect-go/wasminspect/value"
)

func TestStackPushPopValue(t *testing.T) {
	s := NewStack()
	s.PushValue(value.I32(42))
	s.PushValue(value.I64(7))

	v, ok := s.PopValue()
	require.True(t, ok)
	assert.Equal(t, int64(7), v.I64())

	v, ok = s.PopValue()
	require.True(t, ok)
	assert.Equal(t, int32(42), v.I32())

	_, ok = s.PopValue()
	assert.False(t, ok, "empty stack pop must fail, not panic")
}

func TestStackPopValueRejectsNonValueTop(t *testing.T) {
	s := NewStack()
	s.PushLabel(Label{Kind: LabelBlock})

	_, ok := s.PopValue()
	assert.False(t, ok, "top of stack is a label, not a value")
}

func TestStackFrameCeiling(t *testing.T) {
	s := NewStack()
	for i := 0; i < buildoptions.CallStackCeiling; i++ {
		ok := s.PushFrame(&CallFrame{})
		require.True(t, ok, "frame %d should fit under the ceiling", i)
	}
	ok := s.PushFrame(&CallFrame{})
	assert.False(t, ok, "pushing past the ceiling must fail, not panic")
	assert.Equal(t, buildoptions.CallStackCeiling, s.FrameDepth())
}

func TestStackIsOverTopLevel(t *testing.T) {
	s := NewStack()
	assert.True(t, s.IsOverTopLevel())
	s.PushFrame(&CallFrame{})
	assert.False(t, s.IsOverTopLevel())
	s.PopFrame()
	assert.True(t, s.IsOverTopLevel())
}

func TestStackLabelAtInnermostFirst(t *testing.T) {
	s := NewStack()
	s.PushFrame(&CallFrame{})
	s.PushLabel(Label{Kind: LabelBlock, Arity: 1})
	s.PushLabel(Label{Kind: LabelLoop, Arity: 2})

	lbl, _, ok := s.LabelAt(0)
	require.True(t, ok)
	assert.Equal(t, LabelLoop, lbl.Kind)

	lbl, _, ok = s.LabelAt(1)
	require.True(t, ok)
	assert.Equal(t, LabelBlock, lbl.Kind)

	_, _, ok = s.LabelAt(2)
	assert.False(t, ok)
}

func TestStackPopFrameAtRemovesFrameAndEverythingAbove(t *testing.T) {
	s := NewStack()
	s.PushFrame(&CallFrame{ModuleIndex: 1})
	frameIdx, ok := s.CurrentFrameIndex()
	require.True(t, ok)

	s.PushLabel(Label{Kind: LabelBlock})
	s.PushValue(value.I32(1))
	s.PushValue(value.I32(2))

	frame, ok := s.PopFrameAt(frameIdx)
	require.True(t, ok)
	assert.Equal(t, ModuleIndex(1), frame.ModuleIndex)
	assert.Equal(t, 0, s.Len(), "activation and every leftover label/value above it must be gone")
	assert.True(t, s.IsOverTopLevel())
}

func TestCallFrameLocals(t *testing.T) {
	fn := &DefinedFunctionInstance{CachedLocalInits: []value.Value{value.I32(0), value.I32(0), value.I64(0)}}
	frame := NewCallFrameFromFunc(0, FuncGlobalAddress{}, fn, []value.Value{value.I32(9)}, nil)

	assert.Equal(t, int32(9), frame.Local(0).I32())
	assert.Equal(t, int32(0), frame.Local(1).I32())

	frame.SetLocal(1, value.I32(3))
	assert.Equal(t, int32(3), frame.Local(1).I32())
}
