package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	v := I32(-7)
	require.Equal(t, TypeI32, v.Type())
	require.Equal(t, int32(-7), v.I32())

	f := F32(math.Float32bits(float32(math.NaN())))
	require.Equal(t, TypeF32, f.Type())
	require.True(t, isNaN32(f.F32Bits()))

	r := Ref(FuncRef(42))
	addr, ok := r.RefVal().FuncAddr()
	require.True(t, ok)
	require.Equal(t, uint64(42), addr)
}

func TestMinMaxSignedZero(t *testing.T) {
	posZero := math.Float32bits(0.0)
	negZero := math.Float32bits(float32(math.Copysign(0, -1)))

	require.Equal(t, negZero, Min32(posZero, negZero))
	require.Equal(t, posZero, Max32(posZero, negZero))
}

func TestMinMaxNaNPropagates(t *testing.T) {
	nan := math.Float32bits(float32(math.NaN()))
	result := Min32(nan, math.Float32bits(1.0))
	require.True(t, isNaN32(result))
	require.NotZero(t, result&quietBit32)
}

func TestTruncTraps(t *testing.T) {
	_, err := TruncF32ToI32(math.Float32bits(float32(math.NaN())))
	require.Equal(t, TruncInvalidConversion, err)

	_, err = TruncF64ToI32(math.Float64bits(1e20))
	require.Equal(t, TruncOverflow, err)

	got, err := TruncF64ToI32(math.Float64bits(3.9))
	require.Equal(t, TruncOK, err)
	require.Equal(t, int32(3), got)
}

func TestSatTruncClampsInsteadOfTrapping(t *testing.T) {
	require.Equal(t, int32(math.MaxInt32), SatTruncF64ToI32(math.Float64bits(1e20)))
	require.Equal(t, int32(0), SatTruncF64ToI32(math.Float64bits(math.NaN())))
	require.Equal(t, int32(math.MinInt32), SatTruncF64ToI32(math.Float64bits(-1e20)))
}

func TestNearestTiesToEven(t *testing.T) {
	half := Nearest64(math.Float64bits(2.5))
	require.Equal(t, 2.0, math.Float64frombits(half))

	half = Nearest64(math.Float64bits(3.5))
	require.Equal(t, 4.0, math.Float64frombits(half))
}

func TestCopySign(t *testing.T) {
	pos := math.Float32bits(3.0)
	neg := math.Float32bits(-1.0)
	require.Equal(t, math.Float32bits(-3.0), CopySign32(pos, neg))
}
